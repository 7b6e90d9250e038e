package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Setting is the single global bot configuration record. It is created
// lazily with defaults on first read and replaced wholesale by the admin API.
type Setting struct {
	ID                    primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TelegramBotToken      string             `bson:"telegram_bot_token" json:"telegramBotToken"`
	TelegramProviderToken string             `bson:"telegram_provider_token" json:"telegramProviderToken"`
	Currency              string             `bson:"currency" json:"currency"`
	PriceAmount           int                `bson:"price_amount" json:"priceAmount"` // minor units
	PaymentTitle          string             `bson:"payment_title" json:"paymentTitle"`
	PaymentDescription    string             `bson:"payment_description" json:"paymentDescription"`
	SuccessMessage        string             `bson:"success_message" json:"successMessage"`
	UpdatedAt             time.Time          `bson:"updated_at" json:"updatedAt"`
}

// DefaultSetting returns the configuration used until an admin saves one.
func DefaultSetting() *Setting {
	return &Setting{
		Currency:           "RUB",
		PriceAmount:        100,
		PaymentTitle:       "Оплата",
		PaymentDescription: "Оплата через Telegram",
		SuccessMessage:     "Оплата успешно получена!",
	}
}

// HasValidTokens reports whether both Telegram tokens are present.
// The bot session must not run without them.
func (s *Setting) HasValidTokens() bool {
	if s == nil {
		return false
	}
	return strings.TrimSpace(s.TelegramBotToken) != "" && strings.TrimSpace(s.TelegramProviderToken) != ""
}

// UpdateSettingRequest carries a partial settings update; nil fields
// retain their previous value.
type UpdateSettingRequest struct {
	TelegramBotToken      *string `json:"telegramBotToken"`
	TelegramProviderToken *string `json:"telegramProviderToken"`
	Currency              *string `json:"currency"`
	PriceAmount           *int    `json:"priceAmount"`
	PaymentTitle          *string `json:"paymentTitle"`
	PaymentDescription    *string `json:"paymentDescription"`
	SuccessMessage        *string `json:"successMessage"`
}
