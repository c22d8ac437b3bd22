package publisher

import "time"

const PaymentSettledTopic = "payments.settled"

// PaymentSettledEvent is emitted once per terminal transition.
type PaymentSettledEvent struct {
	PaymentID         uint      `json:"payment_id"`
	PaymentReference  string    `json:"payment_reference"`
	UserID            uint      `json:"user_id"`
	EventID           uint      `json:"event_id"`
	TicketIDs         []string  `json:"ticket_ids"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	Method            string    `json:"method"`
	Status            string    `json:"status"`
	ExternalReference string    `json:"external_reference"`
	Source            string    `json:"source"`
	SettledAt         time.Time `json:"settled_at"`
}

func (e PaymentSettledEvent) Key() string {
	return e.PaymentReference
}
