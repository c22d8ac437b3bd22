package payment

import (
	"context"
	"encoding/json"
)

const ProviderWallet = "wallet"

// DebitReceipt describes the ledger entry written for a wallet payment.
type DebitReceipt struct {
	TransactionReference string `json:"transaction_reference"`
	BalanceBefore        int64  `json:"balance_before"`
	BalanceAfter         int64  `json:"balance_after"`
}

// Debiter is the ledger primitive the wallet rail settles through.
type Debiter interface {
	DebitForPayment(ctx context.Context, userID uint, amount int64, paymentID uint, description string) (*DebitReceipt, error)
}

// WalletAdapter pays from the internal balance. It never touches the network
// and settles synchronously.
type WalletAdapter struct {
	ledger Debiter
}

func NewWalletAdapter(ledger Debiter) *WalletAdapter {
	return &WalletAdapter{ledger: ledger}
}

func (a *WalletAdapter) Name() string { return ProviderWallet }

// Initiate debits the wallet. Ledger errors (insufficient funds, no wallet)
// are returned as-is so callers can tell them from rail failures.
func (a *WalletAdapter) Initiate(ctx context.Context, c Charge) (*Result, error) {
	receipt, err := a.ledger.DebitForPayment(ctx, c.UserID, c.Amount, c.PaymentID, c.Description)
	if err != nil {
		return nil, err
	}
	raw, _ := json.Marshal(receipt)
	return &Result{
		ExternalReference: receipt.TransactionReference,
		Status:            StatusCompleted,
		RawPayload:        raw,
	}, nil
}
