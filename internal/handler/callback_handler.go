package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"

	"ticketpay/internal/service"

	"github.com/gin-gonic/gin"
)

const maxCallbackBody = 64 << 10

type CallbackHandler struct {
	reconciler    *service.CallbackReconciler
	webhookSecret string
}

func NewCallbackHandler(reconciler *service.CallbackReconciler, webhookSecret string) *CallbackHandler {
	return &CallbackHandler{reconciler: reconciler, webhookSecret: webhookSecret}
}

// Handle accepts a rail callback on /webhooks/:provider. Rails retry on
// anything but 2xx, so a callback for an already settled payment still gets 200.
func (h *CallbackHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid body"})
		return
	}
	if h.webhookSecret != "" && !h.verifySignature(body, c.GetHeader("X-Webhook-Signature")) {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid signature"})
		return
	}

	ev, p, err := h.reconciler.Reconcile(c.Request.Context(), service.CallbackRequest{
		Provider:    c.Param("provider"),
		ContentType: c.ContentType(),
		Body:        body,
		IP:          c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
	})
	switch {
	case errors.Is(err, service.ErrUnknownProvider):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": err.Error()})
	case errors.Is(err, service.ErrMalformedCallback):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
	case errors.Is(err, service.ErrInvalidSignature):
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": err.Error()})
	case errors.Is(err, service.ErrProviderMismatch), errors.Is(err, service.ErrCallbackNotAccepted):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
	case errors.Is(err, service.ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": err.Error()})
	case err != nil:
		status, msg := errorStatus(err)
		c.JSON(status, gin.H{"success": false, "message": msg})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "request_id": ev.CorrelationID, "status": p.Status})
	}
}

func (h *CallbackHandler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}
