package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ticketpay/internal/domain"
	"ticketpay/internal/metrics"
	"ticketpay/internal/models"
	"ticketpay/internal/publisher"
	"ticketpay/internal/repository"
	"ticketpay/pkg/payment"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Notifier pushes a message to every live connection of a user.
type Notifier interface {
	BroadcastToUser(userID uint, payload interface{})
}

// PaymentService owns the payment state machine. Every status change goes
// through settle, which applies a transition at most once.
type PaymentService struct {
	payments  *repository.PaymentRepository
	audit     *repository.AuditLogRepository
	ledger    *Ledger
	adapters  *payment.Registry
	publisher publisher.Publisher
	notifier  Notifier
	ttl       time.Duration
	now       func() time.Time
}

func NewPaymentService(
	payments *repository.PaymentRepository,
	audit *repository.AuditLogRepository,
	ledger *Ledger,
	adapters *payment.Registry,
	pub publisher.Publisher,
	notifier Notifier,
	ttl time.Duration,
) *PaymentService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if pub == nil {
		pub = publisher.NoopPublisher{}
	}
	return &PaymentService{
		payments:  payments,
		audit:     audit,
		ledger:    ledger,
		adapters:  adapters,
		publisher: pub,
		notifier:  notifier,
		ttl:       ttl,
		now:       time.Now,
	}
}

type InitiateRequest struct {
	UserID        uint
	EventID       uint
	TicketIDs     []string
	Amount        int64
	Method        string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
}

func (s *PaymentService) validate(req *InitiateRequest) (payment.Method, error) {
	if req.Amount <= 0 {
		return "", &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	method, ok := payment.ParseMethod(req.Method)
	if !ok {
		return "", &ValidationError{Field: "method", Message: fmt.Sprintf("unsupported payment method %q", req.Method)}
	}
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	switch method.Kind() {
	case payment.KindMobileMoney:
		phone := payment.NormalizeMSISDN(req.CustomerPhone)
		if phone == "" {
			return "", &ValidationError{Field: "customer_phone", Message: "a valid mobile number is required"}
		}
		req.CustomerPhone = phone
	case payment.KindCardSwitch:
		if req.CustomerEmail == "" || !strings.Contains(req.CustomerEmail, "@") {
			return "", &ValidationError{Field: "customer_email", Message: "a valid email is required"}
		}
		if req.CustomerName == "" {
			return "", &ValidationError{Field: "customer_name", Message: "is required"}
		}
	}
	return method, nil
}

// Initiate persists a PENDING payment, then hands it to the rail selected by
// the method. The row is written before any external call so a crash leaves a
// recoverable PENDING payment rather than nothing.
func (s *PaymentService) Initiate(ctx context.Context, req InitiateRequest) (*models.Payment, error) {
	method, err := s.validate(&req)
	if err != nil {
		return nil, err
	}
	adapter, err := s.adapters.ForMethod(method)
	if err != nil {
		return nil, &ValidationError{Field: "method", Message: "payment method is not available"}
	}

	now := s.now()
	p := &models.Payment{
		PaymentReference: newPaymentReference(),
		UserID:           req.UserID,
		EventID:          req.EventID,
		TicketIDs:        req.TicketIDs,
		Amount:           req.Amount,
		Currency:         domain.Currency,
		Method:           string(method),
		CustomerName:     req.CustomerName,
		CustomerEmail:    req.CustomerEmail,
		CustomerPhone:    req.CustomerPhone,
		Status:           domain.PaymentStatusPending,
		InitiatedAt:      now,
		ExpiresAt:        now.Add(s.ttl),
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	metrics.PaymentsInitiated.WithLabelValues(p.Method).Inc()
	metrics.PaymentAmounts.WithLabelValues(p.Method).Observe(float64(p.Amount))

	log := logrus.WithFields(logrus.Fields{
		"payment_reference": p.PaymentReference,
		"provider":          adapter.Name(),
		"amount":            p.Amount,
	})
	log.Info("[Payment] initiating")

	res, err := adapter.Initiate(ctx, chargeFor(p))
	if err != nil {
		var pe *payment.ProviderError
		if errors.As(err, &pe) {
			metrics.ProviderErrors.WithLabelValues(pe.Provider, pe.Op).Inc()
		}
		log.WithError(err).Warn("[Payment] rail rejected initiation")
		failed, ferr := s.settle(context.WithoutCancel(ctx), p, payment.StatusFailed, "initiate", err.Error())
		if ferr != nil {
			log.WithError(ferr).Error("[Payment] could not mark payment failed")
			return p, err
		}
		return failed, err
	}

	applied, err := s.payments.AttachResult(ctx, p.ID, repository.ProviderResult{
		ExternalReference: res.ExternalReference,
		Status:            string(res.Status),
		RawPayload:        string(res.RawPayload),
		PaymentURL:        res.PaymentURL,
	}, s.now())
	if err != nil {
		log.WithError(err).Error("[Payment] could not record rail result")
		persistCtx := context.WithoutCancel(ctx)
		if method == payment.MethodWallet {
			if _, rerr := s.ledger.Refund(persistCtx, p.ID, "Reversal of unrecorded payment "+p.PaymentReference); rerr != nil {
				log.WithError(rerr).Error("[Payment] wallet reversal failed")
			}
		}
		if _, ferr := s.settle(persistCtx, p, payment.StatusFailed, "initiate", "could not record provider result"); ferr != nil {
			log.WithError(ferr).Error("[Payment] could not mark payment failed")
		}
		return p, fmt.Errorf("record provider result: %w", err)
	}

	updated, err := s.payments.GetByID(ctx, p.ID)
	if err != nil {
		return p, err
	}
	if applied {
		s.afterTransition(ctx, updated, "initiate")
	}
	return updated, nil
}

// CheckStatus returns the payment, first asking its rail for news when the
// payment is unsettled and the rail can be polled. A poll failure is not an
// error for the caller: the payment simply stays where it was.
func (s *PaymentService) CheckStatus(ctx context.Context, id uint) (*models.Payment, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.checkStatus(ctx, p)
}

// CheckStatusForUser is CheckStatus restricted to the payment's owner.
func (s *PaymentService) CheckStatusForUser(ctx context.Context, userID, id uint) (*models.Payment, error) {
	p, err := s.GetForUser(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.checkStatus(ctx, p)
}

func (s *PaymentService) checkStatus(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	if p.IsTerminal() {
		return p, nil
	}
	adapter, err := s.adapters.ForMethod(payment.Method(p.Method))
	if err != nil {
		return p, nil
	}
	poller, ok := adapter.(payment.Poller)
	if !ok || p.ExternalReference == "" {
		return p, nil
	}
	status, err := poller.PollStatus(ctx, chargeFor(p))
	if err != nil {
		metrics.ProviderErrors.WithLabelValues(adapter.Name(), "status").Inc()
		logrus.WithFields(logrus.Fields{
			"payment_reference": p.PaymentReference,
			"provider":          adapter.Name(),
		}).WithError(err).Warn("[Payment] status poll failed, keeping stored status")
		return p, nil
	}
	reason := ""
	if status == payment.StatusFailed {
		reason = "rail reported the payment failed"
	}
	return s.settle(ctx, p, status, "poll", reason)
}

// ApplyCallback applies a normalized rail notification to the payment it
// correlates to. The event must come from the payment's own rail; wallet
// payments never settle this way. Notifications for settled payments are
// accepted and ignored.
func (s *PaymentService) ApplyCallback(ctx context.Context, ev SettlementEvent) (*models.Payment, error) {
	p, err := s.GetByReference(ctx, ev.CorrelationID)
	if err != nil {
		return nil, err
	}
	if payment.Method(p.Method).Kind() == payment.KindWallet {
		return nil, ErrCallbackNotAccepted
	}

	log := logrus.WithFields(logrus.Fields{
		"payment_reference": p.PaymentReference,
		"provider":          ev.Provider,
		"status":            ev.StatusCode,
	})
	mapStatus := payment.MapGenericStatus
	adapter, err := s.adapters.ForMethod(payment.Method(p.Method))
	switch {
	case err == nil && ev.Provider != "" && adapter.Name() != ev.Provider:
		log.Warnf("[Payment] callback arrived on the %s route for a %s payment", ev.Provider, adapter.Name())
		return nil, ErrProviderMismatch
	case err == nil:
		if m, ok := adapter.(payment.StatusMapper); ok {
			mapStatus = m.MapStatus
		}
	case ev.Provider != "":
		log.Warnf("[Payment] callback for a %s payment whose rail is not registered", p.Method)
		return nil, ErrProviderMismatch
	}

	if p.IsTerminal() {
		log.Debug("[Payment] callback for settled payment ignored")
		return p, nil
	}
	if ev.TransactionID != "" && p.ExternalReference == "" {
		if err := s.payments.SetExternalReference(ctx, p.ID, ev.TransactionID); err != nil {
			return nil, err
		}
		p.ExternalReference = ev.TransactionID
	}

	status := mapStatus(ev.StatusCode)
	log.Infof("[Payment] callback mapped to %s", status)
	reason := ev.StatusDescription
	if status == payment.StatusFailed && reason == "" {
		reason = "rail reported status " + ev.StatusCode
	}
	return s.settle(ctx, p, status, "callback", reason)
}

// settle moves p to target when that is a legal forward step. A stale view of
// p is fine: the repository applies the change only if the stored status
// still allows it, and a lost race returns the row as the winner left it.
func (s *PaymentService) settle(ctx context.Context, p *models.Payment, target payment.Status, source, reason string) (*models.Payment, error) {
	to := string(target)
	if p.IsTerminal() || p.Status == to {
		return p, nil
	}
	from := []string{domain.PaymentStatusPending, domain.PaymentStatusProcessing}
	if to == domain.PaymentStatusProcessing {
		from = []string{domain.PaymentStatusPending}
	}

	err := s.payments.Transition(ctx, p.ID, from, to, s.now(), reason)
	if errors.Is(err, repository.ErrTransitionLost) {
		metrics.TransitionsLost.Inc()
		logrus.WithFields(logrus.Fields{
			"payment_reference": p.PaymentReference,
			"status":            to,
			"source":            source,
		}).Debug("[Payment] transition already applied elsewhere")
		return s.payments.GetByID(ctx, p.ID)
	}
	if err != nil {
		return p, fmt.Errorf("transition payment %s to %s: %w", p.PaymentReference, to, err)
	}

	updated, err := s.payments.GetByID(ctx, p.ID)
	if err != nil {
		return p, err
	}
	s.afterTransition(ctx, updated, source)
	return updated, nil
}

// afterTransition runs once per applied transition. Its side effects are best
// effort; the stored status is already authoritative.
func (s *PaymentService) afterTransition(ctx context.Context, p *models.Payment, source string) {
	log := logrus.WithFields(logrus.Fields{
		"payment_reference": p.PaymentReference,
		"status":            p.Status,
		"source":            source,
	})
	log.Info("[Payment] status changed")

	var action string
	switch p.Status {
	case domain.PaymentStatusCompleted:
		action = domain.AuditPaymentCompleted
	case domain.PaymentStatusFailed:
		action = domain.AuditPaymentFailed
	default:
		action = domain.AuditPaymentProcessing
	}
	meta, _ := json.Marshal(map[string]interface{}{
		"source":             source,
		"status":             p.Status,
		"method":             p.Method,
		"external_reference": p.ExternalReference,
		"failure_reason":     p.FailureReason,
	})
	userID := p.UserID
	if err := s.audit.Create(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "payment",
		ResourceID: p.PaymentReference,
		Metadata:   string(meta),
	}); err != nil {
		log.WithError(err).Error("[Payment] audit log write failed")
	}

	if !p.IsTerminal() {
		return
	}
	metrics.PaymentsSettled.WithLabelValues(p.Method, p.Status, source).Inc()

	settledAt := s.now()
	if p.CompletedAt != nil {
		settledAt = *p.CompletedAt
	} else if p.FailedAt != nil {
		settledAt = *p.FailedAt
	}
	event := publisher.PaymentSettledEvent{
		PaymentID:         p.ID,
		PaymentReference:  p.PaymentReference,
		UserID:            p.UserID,
		EventID:           p.EventID,
		TicketIDs:         p.TicketIDs,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Method:            p.Method,
		Status:            p.Status,
		ExternalReference: p.ExternalReference,
		Source:            source,
		SettledAt:         settledAt,
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, publisher.PaymentSettledTopic, event); err != nil {
		log.WithError(err).Error("[Payment] settlement event not published")
	}
	if s.notifier != nil {
		s.notifier.BroadcastToUser(p.UserID, map[string]interface{}{
			"type":    "payment_settled",
			"payment": event,
		})
	}
}

func (s *PaymentService) Get(ctx context.Context, id uint) (*models.Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

func (s *PaymentService) GetByReference(ctx context.Context, reference string) (*models.Payment, error) {
	p, err := s.payments.GetByReference(ctx, reference)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

// GetForUser hides other users' payments behind ErrPaymentNotFound.
func (s *PaymentService) GetForUser(ctx context.Context, userID, id uint) (*models.Payment, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, ErrPaymentNotFound
	}
	return p, nil
}

func (s *PaymentService) ListForUser(ctx context.Context, userID uint, limit int) ([]models.Payment, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.payments.ListByUser(ctx, userID, limit)
}

// Now is the clock expiry is judged against.
func (s *PaymentService) Now() time.Time {
	return s.now()
}

// HasProvider reports whether a rail with this name is registered.
func (s *PaymentService) HasProvider(name string) bool {
	_, ok := s.adapters.ByName(name)
	return ok
}

func chargeFor(p *models.Payment) payment.Charge {
	return payment.Charge{
		PaymentID:         p.ID,
		Reference:         p.PaymentReference,
		UserID:            p.UserID,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Description:       fmt.Sprintf("Tickets for event %d", p.EventID),
		CustomerName:      p.CustomerName,
		CustomerEmail:     p.CustomerEmail,
		CustomerPhone:     p.CustomerPhone,
		ExternalReference: p.ExternalReference,
	}
}

// newPaymentReference returns a UUIDv7: time-ordered with a random tail. Some
// rails require the correlation id to be a UUID.
func newPaymentReference() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
