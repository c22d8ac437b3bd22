package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"ticketpay/internal/middleware"
	"ticketpay/internal/models"
	"ticketpay/internal/service"
	"ticketpay/pkg/payment"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type PaymentHandler struct {
	payments *service.PaymentService
}

func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type initiatePaymentRequest struct {
	EventID       uint     `json:"event_id" binding:"required"`
	TicketIDs     []string `json:"ticket_ids" binding:"required,min=1"`
	Amount        int64    `json:"amount"`
	Method        string   `json:"method" binding:"required"`
	CustomerPhone string   `json:"customer_phone"`
	CustomerEmail string   `json:"customer_email"`
	CustomerName  string   `json:"customer_name"`
}

// Initiate starts a payment for the caller. A rail failure still returns the
// failed payment alongside the error.
func (h *PaymentHandler) Initiate(c *gin.Context) {
	var req initiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.payments.Initiate(c.Request.Context(), service.InitiateRequest{
		UserID:        middleware.GetUserID(c),
		EventID:       req.EventID,
		TicketIDs:     req.TicketIDs,
		Amount:        req.Amount,
		Method:        req.Method,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
	})
	if err != nil {
		status, msg := errorStatus(err)
		body := gin.H{"error": msg}
		if p != nil {
			body["payment"] = paymentView(p, h.payments.Now())
		}
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusCreated, paymentView(p, h.payments.Now()))
}

// Status returns one of the caller's payments, asking the rail for news if it
// is still unsettled.
func (h *PaymentHandler) Status(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}
	p, err := h.payments.CheckStatusForUser(c.Request.Context(), middleware.GetUserID(c), uint(id))
	if err != nil {
		status, msg := errorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, paymentView(p, h.payments.Now()))
}

func (h *PaymentHandler) ListMine(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := h.payments.ListForUser(c.Request.Context(), middleware.GetUserID(c), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list payments"})
		return
	}
	now := h.payments.Now()
	out := make([]gin.H, 0, len(list))
	for i := range list {
		out = append(out, paymentView(&list[i], now))
	}
	c.JSON(http.StatusOK, gin.H{"payments": out})
}

// paymentView projects the effective status: an unsettled payment past its
// expiry reads as EXPIRED.
func paymentView(p *models.Payment, now time.Time) gin.H {
	v := gin.H{
		"payment_id":        p.ID,
		"payment_reference": p.PaymentReference,
		"event_id":          p.EventID,
		"ticket_ids":        p.TicketIDs,
		"amount":            p.Amount,
		"currency":          p.Currency,
		"method":            p.Method,
		"status":            p.EffectiveStatus(now),
		"initiated_at":      p.InitiatedAt,
		"expires_at":        p.ExpiresAt,
	}
	if p.ExternalReference != "" {
		v["external_reference"] = p.ExternalReference
	}
	if p.PaymentURL != "" {
		v["payment_url"] = p.PaymentURL
	}
	if p.FailureReason != "" {
		v["failure_reason"] = p.FailureReason
	}
	if p.CompletedAt != nil {
		v["completed_at"] = p.CompletedAt
	}
	if p.FailedAt != nil {
		v["failed_at"] = p.FailedAt
	}
	return v
}

// errorStatus maps service errors onto HTTP. Unknown errors are logged and
// hidden behind a generic message.
func errorStatus(err error) (int, string) {
	var ve *service.ValidationError
	var pe *payment.ProviderError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Error()
	case errors.Is(err, service.ErrInsufficientFunds):
		return http.StatusPaymentRequired, err.Error()
	case errors.Is(err, service.ErrWalletNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrPaymentNotFound):
		return http.StatusNotFound, err.Error()
	case errors.As(err, &pe):
		return http.StatusBadGateway, "payment provider unavailable"
	default:
		logrus.WithError(err).Error("[Handler] request failed")
		return http.StatusInternalServerError, "internal error"
	}
}
