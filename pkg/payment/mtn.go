package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const ProviderMTN = "mtn"

// MTNConfig configures the MoMo collection rail.
type MTNConfig struct {
	BaseURL           string
	APIUser           string
	APIKey            string
	SubscriptionKey   string
	TargetEnvironment string
	CallbackURL       string
	Currency          string
	Timeout           time.Duration
}

// MTNAdapter pushes request-to-pay prompts to the payer's handset and polls
// their outcome.
type MTNAdapter struct {
	cfg    MTNConfig
	tokens *TokenCache
	client *http.Client
}

// NewMTNAdapter registers the rail's Basic-auth token exchanger with tokens.
func NewMTNAdapter(cfg MTNConfig, tokens *TokenCache) *MTNAdapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Currency == "" {
		cfg.Currency = "RWF"
	}
	if cfg.TargetEnvironment == "" {
		cfg.TargetEnvironment = "sandbox"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	client := &http.Client{Timeout: cfg.Timeout}
	tokens.Register(ProviderMTN, &BasicAuthExchanger{
		TokenURL:        cfg.BaseURL + "/collection/token/",
		Username:        cfg.APIUser,
		Password:        cfg.APIKey,
		SubscriptionKey: cfg.SubscriptionKey,
		Client:          client,
	})
	return &MTNAdapter{cfg: cfg, tokens: tokens, client: client}
}

func (a *MTNAdapter) Name() string { return ProviderMTN }

type mtnParty struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

type mtnRequestToPay struct {
	Amount       string   `json:"amount"`
	Currency     string   `json:"currency"`
	ExternalID   string   `json:"externalId"`
	Payer        mtnParty `json:"payer"`
	PayerMessage string   `json:"payerMessage"`
	PayeeNote    string   `json:"payeeNote"`
}

type mtnRequestToPayStatus struct {
	Amount                 string   `json:"amount"`
	Currency               string   `json:"currency"`
	FinancialTransactionID string   `json:"financialTransactionId"`
	ExternalID             string   `json:"externalId"`
	Payer                  mtnParty `json:"payer"`
	Status                 string   `json:"status"`
	Reason                 string   `json:"reason"`
}

// Initiate sends a request-to-pay keyed by the payment reference. The rail
// never settles synchronously, so the result is always PROCESSING.
func (a *MTNAdapter) Initiate(ctx context.Context, c Charge) (*Result, error) {
	token, err := a.tokens.Token(ctx, ProviderMTN)
	if err != nil {
		return nil, providerErr(ProviderMTN, "token", err)
	}
	currency := c.Currency
	if currency == "" {
		currency = a.cfg.Currency
	}
	body, _ := json.Marshal(mtnRequestToPay{
		Amount:       strconv.FormatInt(c.Amount, 10),
		Currency:     currency,
		ExternalID:   c.Reference,
		Payer:        mtnParty{PartyIDType: "MSISDN", PartyID: NormalizeMSISDN(c.CustomerPhone)},
		PayerMessage: c.Description,
		PayeeNote:    c.Reference,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/collection/v1_0/requesttopay", bytes.NewReader(body))
	if err != nil {
		return nil, providerErr(ProviderMTN, "requesttopay", err)
	}
	a.setHeaders(req, token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Reference-Id", c.Reference)
	if a.cfg.CallbackURL != "" {
		req.Header.Set("X-Callback-Url", a.cfg.CallbackURL)
	}
	logrus.WithFields(logrus.Fields{"provider": ProviderMTN, "payment_reference": c.Reference, "amount": c.Amount}).Info("[MTN] POST requesttopay")
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, providerErr(ProviderMTN, "requesttopay", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized {
		a.tokens.Invalidate(ProviderMTN)
	}
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return nil, statusErr(ProviderMTN, "requesttopay", resp.StatusCode, respBody)
	}
	raw := respBody
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = body
	}
	return &Result{
		ExternalReference: c.Reference,
		Status:            StatusProcessing,
		RawPayload:        raw,
	}, nil
}

// PollStatus queries the request-to-pay by the reference id given at initiation.
func (a *MTNAdapter) PollStatus(ctx context.Context, c Charge) (Status, error) {
	ref := c.ExternalReference
	if ref == "" {
		ref = c.Reference
	}
	token, err := a.tokens.Token(ctx, ProviderMTN)
	if err != nil {
		return "", providerErr(ProviderMTN, "token", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/collection/v1_0/requesttopay/"+ref, nil)
	if err != nil {
		return "", providerErr(ProviderMTN, "status", err)
	}
	a.setHeaders(req, token)
	resp, err := a.client.Do(req)
	if err != nil {
		return "", providerErr(ProviderMTN, "status", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized {
		a.tokens.Invalidate(ProviderMTN)
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusErr(ProviderMTN, "status", resp.StatusCode, respBody)
	}
	var out mtnRequestToPayStatus
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", providerErr(ProviderMTN, "status", err)
	}
	logrus.WithFields(logrus.Fields{"provider": ProviderMTN, "payment_reference": c.Reference, "status": out.Status, "reason": out.Reason}).Debug("[MTN] requesttopay status")
	return a.MapStatus(out.Status), nil
}

func (a *MTNAdapter) MapStatus(code string) Status {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "SUCCESSFUL", "SUCCESS":
		return StatusCompleted
	case "FAILED", "REJECTED", "TIMEOUT", "EXPIRED":
		return StatusFailed
	default:
		return StatusProcessing
	}
}

func (a *MTNAdapter) setHeaders(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Target-Environment", a.cfg.TargetEnvironment)
	if a.cfg.SubscriptionKey != "" {
		req.Header.Set("Ocp-Apim-Subscription-Key", a.cfg.SubscriptionKey)
	}
}
