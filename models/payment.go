package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status is the lifecycle state of a payment attempt.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusExpired   Status = "expired"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transition may leave this status.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusExpired || s == StatusFailed
}

// AllStatuses lists every payment status, used by the stats endpoint.
var AllStatuses = []Status{StatusPending, StatusSucceeded, StatusExpired, StatusFailed}

// Payment is one purchase attempt tied to a Telegram chat.
// Payload is the idempotency token round-tripped through the invoice
// and the successful_payment event; it is unique across all payments.
type Payment struct {
	ID                      primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ChatID                  int64              `bson:"chat_id" json:"chat_id"`
	UserID                  int64              `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Payload                 string             `bson:"payload" json:"payload"`
	Status                  Status             `bson:"status" json:"status"`
	Title                   string             `bson:"title,omitempty" json:"title,omitempty"`
	Description             string             `bson:"description,omitempty" json:"description,omitempty"`
	Currency                string             `bson:"currency,omitempty" json:"currency,omitempty"`
	Amount                  int                `bson:"amount,omitempty" json:"amount,omitempty"` // minor units
	InvoiceMessageID        int                `bson:"invoice_message_id,omitempty" json:"invoice_message_id,omitempty"`
	ProviderPaymentChargeID string             `bson:"provider_payment_charge_id,omitempty" json:"provider_payment_charge_id,omitempty"`
	TelegramPaymentChargeID string             `bson:"telegram_payment_charge_id,omitempty" json:"telegram_payment_charge_id,omitempty"`
	ExpiresAt               time.Time          `bson:"expires_at" json:"expires_at"`
	CreatedAt               time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt               time.Time          `bson:"updated_at" json:"updated_at"`
}

// PaymentStats is the shape returned by the admin stats endpoint.
type PaymentStats struct {
	Total       int64            `json:"total"`
	ByStatus    map[Status]int64 `json:"byStatus"`
	GeneratedAt time.Time        `json:"generatedAt"`
}
