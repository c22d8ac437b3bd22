package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const ProviderCardSwitch = "cardswitch"

// CardSwitchConfig configures the card/bank switch hosted checkout.
type CardSwitchConfig struct {
	BaseURL     string
	MerchantID  string
	SecretKey   string
	CallbackURL string
	ReturnURL   string
	Currency    string
	Timeout     time.Duration
}

// CardSwitchAdapter creates a signed hosted-checkout session. Settlement for
// this rail arrives only through callbacks; there is no pull-status endpoint.
type CardSwitchAdapter struct {
	cfg    CardSwitchConfig
	client *http.Client
	now    func() time.Time
}

func NewCardSwitchAdapter(cfg CardSwitchConfig) *CardSwitchAdapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "RWF"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &CardSwitchAdapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

func (a *CardSwitchAdapter) Name() string { return ProviderCardSwitch }

type cardCheckoutResp struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	TransactionID string `json:"transaction_id"`
	RedirectURL   string `json:"redirect_url"`
}

// Sign computes the hex HMAC-SHA256 of the canonical parameter string:
// keys sorted, "k=v" pairs joined with "&", the signature key itself excluded.
func Sign(secret string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a signature produced by Sign.
func VerifySignature(secret string, params map[string]string, signature string) bool {
	expected := Sign(secret, params)
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected))
}

func (a *CardSwitchAdapter) Initiate(ctx context.Context, c Charge) (*Result, error) {
	currency := c.Currency
	if currency == "" {
		currency = a.cfg.Currency
	}
	params := map[string]string{
		"merchant_id":    a.cfg.MerchantID,
		"reference":      c.Reference,
		"amount":         strconv.FormatInt(c.Amount, 10),
		"currency":       currency,
		"customer_name":  c.CustomerName,
		"customer_email": c.CustomerEmail,
		"description":    c.Description,
		"callback_url":   a.cfg.CallbackURL,
		"return_url":     a.cfg.ReturnURL,
		"timestamp":      strconv.FormatInt(a.now().Unix(), 10),
	}
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set("signature", Sign(a.cfg.SecretKey, params))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/api/checkout", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, providerErr(ProviderCardSwitch, "checkout", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	logrus.WithFields(logrus.Fields{"provider": ProviderCardSwitch, "payment_reference": c.Reference, "amount": c.Amount}).Info("[CardSwitch] POST checkout")
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, providerErr(ProviderCardSwitch, "checkout", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, statusErr(ProviderCardSwitch, "checkout", resp.StatusCode, respBody)
	}
	var out cardCheckoutResp
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, providerErr(ProviderCardSwitch, "checkout", err)
	}
	if out.RedirectURL == "" {
		return nil, statusErr(ProviderCardSwitch, "checkout", resp.StatusCode, respBody)
	}
	ext := out.TransactionID
	if ext == "" {
		ext = c.Reference
	}
	return &Result{
		ExternalReference: ext,
		Status:            StatusProcessing,
		RawPayload:        respBody,
		PaymentURL:        out.RedirectURL,
	}, nil
}

// MapStatus maps switch response codes; unknown codes stay PROCESSING.
func (a *CardSwitchAdapter) MapStatus(code string) Status {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "00", "000", "200", "SUCCESS", "SUCCESSFUL", "APPROVED":
		return StatusCompleted
	case "05", "51", "54", "57", "61", "91", "FAILED", "DECLINED", "CANCELLED", "EXPIRED":
		return StatusFailed
	default:
		return StatusProcessing
	}
}
