package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const ProviderAirtel = "airtel"

// AirtelConfig configures the Airtel Money collection rail.
type AirtelConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Country      string
	Currency     string
	Timeout      time.Duration
}

// AirtelAdapter issues USSD push payments and polls their outcome.
type AirtelAdapter struct {
	cfg    AirtelConfig
	tokens *TokenCache
	client *http.Client
}

// NewAirtelAdapter registers the rail's client-credentials exchanger with tokens.
func NewAirtelAdapter(cfg AirtelConfig, tokens *TokenCache) *AirtelAdapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Country == "" {
		cfg.Country = "RW"
	}
	if cfg.Currency == "" {
		cfg.Currency = "RWF"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	client := &http.Client{Timeout: cfg.Timeout}
	tokens.Register(ProviderAirtel, &ClientCredentialsExchanger{
		Config: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.BaseURL + "/auth/oauth2/token",
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		Client:          client,
		DefaultLifetime: 180 * time.Second,
	})
	return &AirtelAdapter{cfg: cfg, tokens: tokens, client: client}
}

func (a *AirtelAdapter) Name() string { return ProviderAirtel }

type airtelSubscriber struct {
	Country  string `json:"country"`
	Currency string `json:"currency"`
	MSISDN   string `json:"msisdn"`
}

type airtelTransaction struct {
	Amount   int64  `json:"amount"`
	Country  string `json:"country"`
	Currency string `json:"currency"`
	ID       string `json:"id"`
}

type airtelPaymentReq struct {
	Reference   string            `json:"reference"`
	Subscriber  airtelSubscriber  `json:"subscriber"`
	Transaction airtelTransaction `json:"transaction"`
}

type airtelEnvelope struct {
	Data struct {
		Transaction struct {
			ID            string `json:"id"`
			AirtelMoneyID string `json:"airtel_money_id"`
			Status        string `json:"status"`
			Message       string `json:"message"`
		} `json:"transaction"`
	} `json:"data"`
	Status struct {
		Code       string `json:"code"`
		Message    string `json:"message"`
		ResultCode string `json:"result_code"`
		Success    bool   `json:"success"`
	} `json:"status"`
}

// Initiate pushes a payment prompt keyed by the payment reference.
func (a *AirtelAdapter) Initiate(ctx context.Context, c Charge) (*Result, error) {
	token, err := a.tokens.Token(ctx, ProviderAirtel)
	if err != nil {
		return nil, providerErr(ProviderAirtel, "token", err)
	}
	currency := c.Currency
	if currency == "" {
		currency = a.cfg.Currency
	}
	description := c.Description
	if description == "" {
		description = c.Reference
	}
	body, _ := json.Marshal(airtelPaymentReq{
		Reference:   description,
		Subscriber:  airtelSubscriber{Country: a.cfg.Country, Currency: currency, MSISDN: localMSISDN(c.CustomerPhone)},
		Transaction: airtelTransaction{Amount: c.Amount, Country: a.cfg.Country, Currency: currency, ID: c.Reference},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/merchant/v1/payments/", bytes.NewReader(body))
	if err != nil {
		return nil, providerErr(ProviderAirtel, "payment", err)
	}
	a.setHeaders(req, token)
	req.Header.Set("Content-Type", "application/json")
	logrus.WithFields(logrus.Fields{"provider": ProviderAirtel, "payment_reference": c.Reference, "amount": c.Amount}).Info("[Airtel] POST payments")
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, providerErr(ProviderAirtel, "payment", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized {
		a.tokens.Invalidate(ProviderAirtel)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return nil, statusErr(ProviderAirtel, "payment", resp.StatusCode, respBody)
	}
	var out airtelEnvelope
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, providerErr(ProviderAirtel, "payment", err)
	}
	if !out.Status.Success {
		return nil, statusErr(ProviderAirtel, "payment", resp.StatusCode, respBody)
	}
	ext := out.Data.Transaction.ID
	if ext == "" {
		ext = c.Reference
	}
	return &Result{
		ExternalReference: ext,
		Status:            StatusProcessing,
		RawPayload:        respBody,
	}, nil
}

// PollStatus queries the transaction enquiry endpoint.
func (a *AirtelAdapter) PollStatus(ctx context.Context, c Charge) (Status, error) {
	ref := c.ExternalReference
	if ref == "" {
		ref = c.Reference
	}
	token, err := a.tokens.Token(ctx, ProviderAirtel)
	if err != nil {
		return "", providerErr(ProviderAirtel, "token", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/standard/v1/payments/"+ref, nil)
	if err != nil {
		return "", providerErr(ProviderAirtel, "status", err)
	}
	a.setHeaders(req, token)
	resp, err := a.client.Do(req)
	if err != nil {
		return "", providerErr(ProviderAirtel, "status", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized {
		a.tokens.Invalidate(ProviderAirtel)
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusErr(ProviderAirtel, "status", resp.StatusCode, respBody)
	}
	var out airtelEnvelope
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", providerErr(ProviderAirtel, "status", err)
	}
	return a.MapStatus(out.Data.Transaction.Status), nil
}

// MapStatus maps Airtel transaction codes: TS success, TF failed, TE expired,
// TA ambiguous and TIP in progress.
func (a *AirtelAdapter) MapStatus(code string) Status {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "TS", "SUCCESS", "SUCCESSFUL":
		return StatusCompleted
	case "TF", "TE", "FAILED":
		return StatusFailed
	default:
		return StatusProcessing
	}
}

func (a *AirtelAdapter) setHeaders(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("X-Country", a.cfg.Country)
	req.Header.Set("X-Currency", a.cfg.Currency)
}
