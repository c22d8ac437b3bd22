package service

import (
	"errors"
	"fmt"

	"ticketpay/internal/repository"
)

// ValidationError is returned before any payment row is written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

var (
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrMalformedCallback = errors.New("malformed callback")
	ErrInvalidSignature  = errors.New("invalid callback signature")
	ErrUnknownProvider   = errors.New("unknown payment provider")

	ErrProviderMismatch    = errors.New("callback route does not match the payment's rail")
	ErrCallbackNotAccepted = errors.New("payment method does not settle by callback")

	ErrInsufficientFunds = repository.ErrInsufficientFunds
	ErrWalletNotFound    = repository.ErrWalletNotFound
)
