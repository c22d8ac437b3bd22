package handler

import (
	"net/http"
	"strconv"

	"ticketpay/internal/middleware"
	"ticketpay/internal/service"

	"github.com/gin-gonic/gin"
)

type WalletHandler struct {
	ledger *service.Ledger
}

func NewWalletHandler(ledger *service.Ledger) *WalletHandler {
	return &WalletHandler{ledger: ledger}
}

// GetBalance returns the caller's wallet.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	w, err := h.ledger.Balance(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		status, msg := errorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"balance":             w.Balance,
		"lifetime_spent":      w.LifetimeSpent,
		"total_transactions":  w.TotalTransactions,
		"last_transaction_at": w.LastTransactionAt,
		"currency":            w.Currency,
	})
}

func (h *WalletHandler) ListTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	list, err := h.ledger.Transactions(c.Request.Context(), middleware.GetUserID(c), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list transactions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": list})
}

// TopUp credits a user's wallet (ADMIN only).
func (h *WalletHandler) TopUp(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil || userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	var req struct {
		Amount      int64  `json:"amount" binding:"required,min=1"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Description == "" {
		req.Description = "Wallet top-up"
	}
	entry, err := h.ledger.Credit(c.Request.Context(), uint(userID), req.Amount, req.Description)
	if err != nil {
		status, msg := errorStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusCreated, entry)
}
