package domain

const (
	RoleCustomer = "CUSTOMER"
	RoleAdmin    = "ADMIN"
)

// PaymentStatus values. EXPIRED is never stored; it is derived at read time
// from ExpiresAt on a non-terminal payment.
const (
	PaymentStatusPending    = "PENDING"
	PaymentStatusProcessing = "PROCESSING"
	PaymentStatusCompleted  = "COMPLETED"
	PaymentStatusFailed     = "FAILED"
	PaymentStatusExpired    = "EXPIRED"
)

// IsTerminalStatus reports whether a stored status can no longer change.
func IsTerminalStatus(status string) bool {
	return status == PaymentStatusCompleted || status == PaymentStatusFailed
}

const (
	WalletTxTypePayment = "PAYMENT"
	WalletTxTypeRefund  = "REFUND"
	WalletTxTypeTopup   = "TOPUP"
)

const WalletTxStatusCompleted = "COMPLETED"

// Currency is the only currency in this domain; amounts are whole francs.
const Currency = "RWF"

const (
	AuditPaymentCompleted  = "payment_completed"
	AuditPaymentFailed     = "payment_failed"
	AuditPaymentProcessing = "payment_processing"
	AuditCallbackRejected  = "callback_rejected"
	AuditWalletRefunded    = "wallet_refunded"
)
