package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strconv"
	"strings"

	"ticketpay/internal/domain"
	"ticketpay/internal/metrics"
	"ticketpay/internal/models"
	"ticketpay/internal/repository"
	"ticketpay/pkg/payment"

	"github.com/sirupsen/logrus"
)

// SettlementEvent is a rail notification reduced to what the state machine
// needs, whatever shape it arrived in.
type SettlementEvent struct {
	Provider          string
	TransactionID     string
	CorrelationID     string
	StatusCode        string
	StatusDescription string
}

// Field aliases seen across rails, in priority order.
var (
	transactionIDKeys = []string{"transaction_id", "financialTransactionId", "airtel_money_id"}
	correlationIDKeys = []string{"request_id", "externalId", "reference", "order_id", "id"}
	statusKeys        = []string{"status_code", "status"}
	descriptionKeys   = []string{"status_desc", "status_description", "message", "reason"}

	// keys that may carry a JSON object, either raw or as an encoded string
	nestedKeys = []string{"data", "transaction"}
)

// DecodeCallback normalizes a callback body into a SettlementEvent. The body
// may be JSON or form-encoded, and may carry the business payload as a nested
// or string-encoded JSON object under "data" or "transaction".
func DecodeCallback(provider, contentType string, body []byte) (*SettlementEvent, error) {
	fields, err := decodeTransport(contentType, body)
	if err != nil {
		return nil, err
	}
	unwrapNested(fields)
	return eventFromFields(provider, fields)
}

// decodeTransport is the first stage: bytes to a flat string map.
func decodeTransport(contentType string, body []byte) (map[string]string, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedCallback)
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if strings.Contains(mediaType, "json") || body[0] == '{' {
		fields, err := decodeJSONObject(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
		}
		return fields, nil
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	fields := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	return fields, nil
}

func decodeJSONObject(data []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("not a JSON object")
	}
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		fields[k] = flattenValue(v)
	}
	return fields, nil
}

func flattenValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// unwrapNested is the second stage: objects found under nestedKeys are merged
// over the outer fields. Rails nest at most a couple of levels deep.
func unwrapNested(fields map[string]string) {
	for depth := 0; depth < 3; depth++ {
		merged := false
		for _, key := range nestedKeys {
			raw := strings.TrimSpace(fields[key])
			if !strings.HasPrefix(raw, "{") {
				continue
			}
			inner, err := decodeJSONObject([]byte(raw))
			if err != nil {
				continue
			}
			delete(fields, key)
			for k, v := range inner {
				if v != "" {
					fields[k] = v
				}
			}
			merged = true
		}
		if !merged {
			return
		}
	}
}

func firstField(fields map[string]string, keys []string) string {
	for _, k := range keys {
		v := strings.TrimSpace(fields[k])
		if v != "" && !strings.HasPrefix(v, "{") && !strings.HasPrefix(v, "[") {
			return v
		}
	}
	return ""
}

func eventFromFields(provider string, fields map[string]string) (*SettlementEvent, error) {
	ev := &SettlementEvent{
		Provider:          provider,
		TransactionID:     firstField(fields, transactionIDKeys),
		CorrelationID:     firstField(fields, correlationIDKeys),
		StatusCode:        firstField(fields, statusKeys),
		StatusDescription: firstField(fields, descriptionKeys),
	}
	if ev.CorrelationID == "" {
		return ev, fmt.Errorf("%w: missing correlation id", ErrMalformedCallback)
	}
	if ev.StatusCode == "" {
		return ev, fmt.Errorf("%w: missing status", ErrMalformedCallback)
	}
	return ev, nil
}

// CallbackRequest is an inbound webhook as received on the wire.
type CallbackRequest struct {
	Provider    string
	ContentType string
	Body        []byte
	IP          string
	UserAgent   string
}

// CallbackReconciler feeds rail callbacks into the payment state machine and
// keeps a record of every callback it had to refuse.
type CallbackReconciler struct {
	payments         *PaymentService
	audit            *repository.AuditLogRepository
	cardSwitchSecret string
}

func NewCallbackReconciler(payments *PaymentService, audit *repository.AuditLogRepository, cardSwitchSecret string) *CallbackReconciler {
	return &CallbackReconciler{payments: payments, audit: audit, cardSwitchSecret: cardSwitchSecret}
}

// Reconcile decodes and applies one callback. The event is returned whenever
// decoding got far enough to produce one, even alongside an error.
func (r *CallbackReconciler) Reconcile(ctx context.Context, req CallbackRequest) (*SettlementEvent, *models.Payment, error) {
	if !r.payments.HasProvider(req.Provider) {
		metrics.CallbacksReceived.WithLabelValues("unknown", "unknown_provider").Inc()
		return nil, nil, ErrUnknownProvider
	}

	fields, err := decodeTransport(req.ContentType, req.Body)
	if err != nil {
		r.reject(ctx, req, "", err)
		return nil, nil, err
	}
	signed := make(map[string]string, len(fields))
	for k, v := range fields {
		signed[k] = v
	}
	unwrapNested(fields)
	ev, err := eventFromFields(req.Provider, fields)
	if err != nil {
		r.reject(ctx, req, ev.CorrelationID, err)
		return ev, nil, err
	}

	// The signature requirement follows the payment's rail, not the route
	// the callback arrived on.
	target, err := r.payments.GetByReference(ctx, ev.CorrelationID)
	if err != nil {
		return ev, nil, r.fail(ctx, req, ev.CorrelationID, err)
	}
	if target.Method == string(payment.MethodCard) && !r.validCardSignature(signed) {
		r.reject(ctx, req, ev.CorrelationID, ErrInvalidSignature)
		return ev, nil, ErrInvalidSignature
	}

	p, err := r.payments.ApplyCallback(ctx, *ev)
	if err != nil {
		return ev, nil, r.fail(ctx, req, ev.CorrelationID, err)
	}
	metrics.CallbacksReceived.WithLabelValues(req.Provider, "applied").Inc()
	return ev, p, nil
}

// validCardSignature checks the switch's HMAC over the fields as received.
// Without a configured secret no card callback can be trusted.
func (r *CallbackReconciler) validCardSignature(fields map[string]string) bool {
	if r.cardSwitchSecret == "" {
		logrus.Warn("[Callback] card switch secret not configured, refusing card callback")
		return false
	}
	return payment.VerifySignature(r.cardSwitchSecret, fields, fields["signature"])
}

// fail records refusals in the audit log; other errors are only counted.
func (r *CallbackReconciler) fail(ctx context.Context, req CallbackRequest, correlationID string, err error) error {
	switch {
	case errors.Is(err, ErrPaymentNotFound), errors.Is(err, ErrProviderMismatch), errors.Is(err, ErrCallbackNotAccepted):
		r.reject(ctx, req, correlationID, err)
	default:
		metrics.CallbacksReceived.WithLabelValues(req.Provider, "error").Inc()
	}
	return err
}

func (r *CallbackReconciler) reject(ctx context.Context, req CallbackRequest, correlationID string, cause error) {
	outcome := "malformed"
	switch {
	case errors.Is(cause, ErrInvalidSignature):
		outcome = "bad_signature"
	case errors.Is(cause, ErrPaymentNotFound):
		outcome = "unknown_reference"
	case errors.Is(cause, ErrProviderMismatch):
		outcome = "provider_mismatch"
	case errors.Is(cause, ErrCallbackNotAccepted):
		outcome = "not_accepted"
	}
	metrics.CallbacksReceived.WithLabelValues(req.Provider, outcome).Inc()

	body := string(req.Body)
	if len(body) > 1000 {
		body = body[:1000]
	}
	meta, _ := json.Marshal(map[string]string{
		"provider": req.Provider,
		"reason":   cause.Error(),
		"body":     body,
	})
	logrus.WithFields(logrus.Fields{
		"provider":          req.Provider,
		"payment_reference": correlationID,
		"outcome":           outcome,
	}).Warn("[Callback] rejected")
	if err := r.audit.Create(ctx, &models.AuditLog{
		Action:     domain.AuditCallbackRejected,
		Resource:   "payment",
		ResourceID: correlationID,
		IP:         req.IP,
		UserAgent:  req.UserAgent,
		Metadata:   string(meta),
	}); err != nil {
		logrus.WithError(err).Error("[Callback] audit log write failed")
	}
}
