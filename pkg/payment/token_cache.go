package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

// defaultTokenLifetime is assumed when a token endpoint does not say how long
// its token lives.
const defaultTokenLifetime = 5 * time.Minute

// TokenExchanger performs one credential exchange against a rail and reports
// the advertised lifetime of the returned bearer token.
type TokenExchanger interface {
	Exchange(ctx context.Context) (accessToken string, lifetime time.Duration, err error)
}

type TokenCacheConfig struct {
	// SafetyMargin is subtracted from the advertised lifetime so a token is
	// never used right at its expiry boundary.
	SafetyMargin time.Duration
	// ExchangeTimeout bounds a single refresh.
	ExchangeTimeout time.Duration
	// OnRefresh, if set, is called after every exchange attempt.
	OnRefresh func(provider string, err error)
}

type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

// TokenCache holds short-lived bearer tokens per provider. Concurrent misses
// for the same provider collapse into one exchange.
type TokenCache struct {
	mu         sync.Mutex
	cfg        TokenCacheConfig
	entries    map[string]cachedToken
	exchangers map[string]TokenExchanger
	group      singleflight.Group
	now        func() time.Time
}

func NewTokenCache(cfg TokenCacheConfig) *TokenCache {
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = 30 * time.Second
	}
	if cfg.ExchangeTimeout <= 0 {
		cfg.ExchangeTimeout = 15 * time.Second
	}
	return &TokenCache{
		cfg:        cfg,
		entries:    make(map[string]cachedToken),
		exchangers: make(map[string]TokenExchanger),
		now:        time.Now,
	}
}

func (c *TokenCache) Register(provider string, ex TokenExchanger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exchangers[provider] = ex
	delete(c.entries, provider)
}

// Invalidate drops the cached token, e.g. after the rail answered 401.
func (c *TokenCache) Invalidate(provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, provider)
}

// Token returns a valid bearer token for provider, refreshing synchronously on
// a miss or after expiry.
func (c *TokenCache) Token(ctx context.Context, provider string) (string, error) {
	if tok, ok := c.lookup(provider); ok {
		return tok, nil
	}
	v, err, _ := c.group.Do(provider, func() (interface{}, error) {
		// a refresh may have landed between lookup and Do
		if tok, ok := c.lookup(provider); ok {
			return tok, nil
		}
		return c.refresh(ctx, provider)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *TokenCache) lookup(provider string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[provider]
	if !ok || !c.now().Before(e.expiresAt) {
		return "", false
	}
	return e.accessToken, true
}

func (c *TokenCache) refresh(ctx context.Context, provider string) (string, error) {
	c.mu.Lock()
	ex, ok := c.exchangers[provider]
	c.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("no token exchanger registered for %s", provider)
	}
	// Shared by every waiter, so the first caller's cancellation must not abort it.
	exCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.ExchangeTimeout)
	defer cancel()

	access, lifetime, err := ex.Exchange(exCtx)
	if c.cfg.OnRefresh != nil {
		c.cfg.OnRefresh(provider, err)
	}
	if err != nil {
		return "", providerErr(provider, "token", err)
	}
	if lifetime <= 0 {
		lifetime = defaultTokenLifetime
	}
	ttl := lifetime - c.cfg.SafetyMargin
	if ttl <= 0 {
		ttl = lifetime / 2
	}
	c.mu.Lock()
	c.entries[provider] = cachedToken{accessToken: access, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return access, nil
}

// BasicAuthExchanger posts to a token endpoint with HTTP Basic credentials,
// the way MoMo-style collection APIs issue tokens.
type BasicAuthExchanger struct {
	TokenURL        string
	Username        string
	Password        string
	SubscriptionKey string
	Client          *http.Client
	// DefaultLifetime applies when the server omits expires_in.
	DefaultLifetime time.Duration
}

type basicTokenResp struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (e *BasicAuthExchanger) Exchange(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.TokenURL, nil)
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(e.Username, e.Password)
	if e.SubscriptionKey != "" {
		req.Header.Set("Ocp-Apim-Subscription-Key", e.SubscriptionKey)
	}
	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token endpoint: %d %s", resp.StatusCode, string(body))
	}
	var out basicTokenResp
	if err := json.Unmarshal(body, &out); err != nil {
		return "", 0, err
	}
	if out.AccessToken == "" {
		return "", 0, fmt.Errorf("token endpoint returned empty token")
	}
	lifetime := time.Duration(out.ExpiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = e.DefaultLifetime
	}
	if lifetime <= 0 {
		lifetime = defaultTokenLifetime
	}
	return out.AccessToken, lifetime, nil
}

// ClientCredentialsExchanger runs an OAuth2 client-credentials grant.
type ClientCredentialsExchanger struct {
	Config *clientcredentials.Config
	Client *http.Client
	// DefaultLifetime applies when the server omits expires_in.
	DefaultLifetime time.Duration
}

func (e *ClientCredentialsExchanger) Exchange(ctx context.Context) (string, time.Duration, error) {
	if e.Client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, e.Client)
	}
	tok, err := e.Config.Token(ctx)
	if err != nil {
		return "", 0, err
	}
	lifetime := e.DefaultLifetime
	if !tok.Expiry.IsZero() {
		lifetime = time.Until(tok.Expiry)
	}
	if lifetime <= 0 {
		lifetime = defaultTokenLifetime
	}
	return tok.AccessToken, lifetime, nil
}
