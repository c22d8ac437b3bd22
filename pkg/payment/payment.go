package payment

import (
	"context"
	"fmt"
	"strings"
)

// Status is the canonical settlement vocabulary every rail is mapped onto.
type Status string

const (
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Charge is what an adapter needs to know about a payment.
type Charge struct {
	PaymentID         uint
	Reference         string // correlation id sent to the rail
	UserID            uint
	Amount            int64 // whole RWF
	Currency          string
	Description       string
	CustomerName      string
	CustomerEmail     string
	CustomerPhone     string
	ExternalReference string // set once the rail has answered; used by PollStatus
}

// Result is an adapter's answer to Initiate.
type Result struct {
	ExternalReference string
	Status            Status
	RawPayload        []byte
	PaymentURL        string
}

// Adapter is implemented by every payment rail.
// Initiate must either fully succeed or return an error; it never partially applies state.
type Adapter interface {
	Name() string
	Initiate(ctx context.Context, c Charge) (*Result, error)
}

// Poller is implemented by asynchronous rails exposing a pull-status endpoint.
type Poller interface {
	PollStatus(ctx context.Context, c Charge) (Status, error)
}

// StatusMapper maps a rail's own callback status vocabulary onto Status.
type StatusMapper interface {
	MapStatus(code string) Status
}

// MapGenericStatus is used for rails without their own StatusMapper.
// Anything not recognised stays PROCESSING; a payment is never guessed COMPLETED.
func MapGenericStatus(code string) Status {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "COMPLETED", "SUCCESS", "SUCCESSFUL", "SUCCEEDED", "PAID":
		return StatusCompleted
	case "FAILED", "FAILURE", "REJECTED", "DECLINED", "CANCELLED", "CANCELED":
		return StatusFailed
	default:
		return StatusProcessing
	}
}

// Registry resolves the adapter serving a method, and the adapter behind a
// provider name used in webhook routes.
type Registry struct {
	byMethod map[Method]Adapter
	byName   map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{
		byMethod: make(map[Method]Adapter),
		byName:   make(map[string]Adapter),
	}
}

// Register binds an adapter to a method. Registering a method twice replaces it.
func (r *Registry) Register(m Method, a Adapter) {
	r.byMethod[m] = a
	r.byName[a.Name()] = a
}

func (r *Registry) ForMethod(m Method) (Adapter, error) {
	a, ok := r.byMethod[m]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for method %s", m)
	}
	return a, nil
}

func (r *Registry) ByName(name string) (Adapter, bool) {
	a, ok := r.byName[name]
	return a, ok
}
