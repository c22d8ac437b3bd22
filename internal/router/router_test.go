package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ticketpay/config"
	"ticketpay/internal/auth"
	"ticketpay/internal/domain"
	"ticketpay/internal/router"
	"ticketpay/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMoMo answers the collection endpoints used by the MTN rail.
type fakeMoMo struct {
	mu     sync.Mutex
	status string
}

func (f *fakeMoMo) setStatus(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = s
}

func (f *fakeMoMo) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/collection/token/":
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"access_token","expires_in":3600}`))
	case r.Method == http.MethodPost && r.URL.Path == "/collection/v1_0/requesttopay":
		w.WriteHeader(http.StatusAccepted)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/collection/v1_0/requesttopay/"):
		f.mu.Lock()
		status := f.status
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"status":%q}`, status)
	default:
		http.NotFound(w, r)
	}
}

type apiEnv struct {
	cfg    *config.Config
	engine *gin.Engine
	momo   *fakeMoMo
}

func newAPI(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	momo := &fakeMoMo{status: "PENDING"}
	srv := httptest.NewServer(momo)
	t.Cleanup(srv.Close)

	cfg := &config.Config{}
	cfg.Server.Env = "test"
	cfg.Server.RateLimit = 1000
	cfg.JWT = config.JWTConfig{AccessSecret: "test-secret", AccessExpiry: time.Hour, Issuer: "ticketpay"}
	cfg.Payment = config.PaymentConfig{TTL: 15 * time.Minute, TokenSafetyMargin: 30 * time.Second, TokenExchangeLimit: 5 * time.Second}
	cfg.MTN = config.MTNConfig{Enabled: true, BaseURL: srv.URL, APIUser: "user", APIKey: "key", TargetEnvironment: "sandbox", Timeout: 5 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	engine, cleanup := router.Setup(ctx, cfg, testutil.NewDB(t))
	t.Cleanup(func() {
		cleanup()
		cancel()
	})
	return &apiEnv{cfg: cfg, engine: engine, momo: momo}
}

func (e *apiEnv) token(t *testing.T, userID uint, role string) string {
	t.Helper()
	tok, err := auth.GenerateAccessToken(&e.cfg.JWT, userID, role)
	require.NoError(t, err)
	return tok
}

func (e *apiEnv) do(t *testing.T, method, path, token, contentType, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)

	out := map[string]interface{}{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func (e *apiEnv) postJSON(t *testing.T, path, token string, v interface{}) (int, map[string]interface{}) {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return e.do(t, http.MethodPost, path, token, "application/json", string(b))
}

func TestHealthz(t *testing.T) {
	api := newAPI(t)
	code, body := api.do(t, http.MethodGet, "/healthz", "", "", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestWalletPurchaseOverHTTP(t *testing.T) {
	api := newAPI(t)
	customer := api.token(t, 11, domain.RoleCustomer)
	admin := api.token(t, 1, domain.RoleAdmin)

	code, _ := api.postJSON(t, "/api/v1/admin/wallets/11/topup", customer, gin.H{"amount": 30000})
	assert.Equal(t, http.StatusForbidden, code)

	code, entry := api.postJSON(t, "/api/v1/admin/wallets/11/topup", admin, gin.H{"amount": 30000})
	require.Equal(t, http.StatusCreated, code)
	assert.EqualValues(t, 30000, entry["balance_after"])

	purchase := gin.H{"event_id": 4, "ticket_ids": []string{"TCK-9"}, "amount": 25000, "method": "WALLET"}
	code, body := api.postJSON(t, "/api/v1/payments", customer, purchase)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, domain.PaymentStatusCompleted, body["status"])

	code, body = api.postJSON(t, "/api/v1/payments", customer, purchase)
	assert.Equal(t, http.StatusPaymentRequired, code)
	failed, ok := body["payment"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, domain.PaymentStatusFailed, failed["status"])

	code, wallet := api.do(t, http.MethodGet, "/api/v1/me/wallet", customer, "", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 5000, wallet["balance"])
	assert.EqualValues(t, 25000, wallet["lifetime_spent"])

	code, mine := api.do(t, http.MethodGet, "/api/v1/me/payments", customer, "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, mine["payments"], 2)
}

func TestInitiateRejectsBadInput(t *testing.T) {
	api := newAPI(t)
	customer := api.token(t, 12, domain.RoleCustomer)

	code, _ := api.postJSON(t, "/api/v1/payments", "", gin.H{"event_id": 1, "ticket_ids": []string{"T"}, "amount": 100, "method": "WALLET"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := api.postJSON(t, "/api/v1/payments", customer, gin.H{"event_id": 1, "ticket_ids": []string{"T"}, "amount": 100, "method": "BITCOIN"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "method")

	code, _ = api.postJSON(t, "/api/v1/payments", customer, gin.H{"event_id": 1, "ticket_ids": []string{"T"}, "amount": 0, "method": "WALLET"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.postJSON(t, "/api/v1/payments", customer, gin.H{"event_id": 1, "ticket_ids": []string{"T"}, "amount": 100, "method": "MTN_MOMO", "customer_phone": "12"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestMobileMoneyCallbackOverHTTP(t *testing.T) {
	api := newAPI(t)
	customer := api.token(t, 13, domain.RoleCustomer)

	code, created := api.postJSON(t, "/api/v1/payments", customer, gin.H{
		"event_id": 2, "ticket_ids": []string{"TCK-1", "TCK-2"}, "amount": 5000,
		"method": "MTN_MOMO", "customer_phone": "0788 123 456", "customer_name": "Aline",
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, domain.PaymentStatusProcessing, created["status"])
	ref, _ := created["payment_reference"].(string)
	require.NotEmpty(t, ref)
	statusPath := fmt.Sprintf("/api/v1/payments/%v", created["payment_id"])

	// malformed: no status field
	code, body := api.do(t, http.MethodPost, "/api/v1/webhooks/mtn", "", "application/json", `{"externalId":"`+ref+`"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, body["success"])

	code, body = api.do(t, http.MethodGet, statusPath, customer, "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.PaymentStatusProcessing, body["status"])

	callback := `{"financialTransactionId":"98765","externalId":"` + ref + `","status":"SUCCESSFUL"}`
	for i := 0; i < 2; i++ {
		code, body = api.do(t, http.MethodPost, "/api/v1/webhooks/mtn", "", "application/json", callback)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, ref, body["request_id"])
		assert.Equal(t, domain.PaymentStatusCompleted, body["status"])
	}

	// a late poll answer cannot undo the callback
	api.momo.setStatus("FAILED")
	code, body = api.do(t, http.MethodGet, statusPath, customer, "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.PaymentStatusCompleted, body["status"])

	other := api.token(t, 14, domain.RoleCustomer)
	code, _ = api.do(t, http.MethodGet, statusPath, other, "", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestWebhookRejectsUnknownTargets(t *testing.T) {
	api := newAPI(t)

	code, body := api.do(t, http.MethodPost, "/api/v1/webhooks/mtn", "", "application/json", `{"externalId":"missing","status":"SUCCESSFUL"}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, false, body["success"])

	// airtel is disabled in this configuration
	code, _ = api.do(t, http.MethodPost, "/api/v1/webhooks/airtel", "", "application/json", `{"externalId":"missing","status":"TS"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = api.do(t, http.MethodPost, "/api/v1/webhooks/mtn", "", "application/x-www-form-urlencoded", "")
	assert.Equal(t, http.StatusBadRequest, code)
}
