package payment

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ProviderError reports a failed call to an external rail: transport failure,
// non-2xx response, undecodable body or timeout.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: http %d: %s", e.Provider, e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the call gave up waiting on the rail.
func (e *ProviderError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

func providerErr(provider, op string, err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

func statusErr(provider, op string, code int, body []byte) error {
	b := string(body)
	if len(b) > 512 {
		b = b[:512]
	}
	return &ProviderError{Provider: provider, Op: op, StatusCode: code, Body: b, Err: fmt.Errorf("unexpected status %d", code)}
}
