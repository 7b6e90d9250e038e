package services

import (
	"fmt"
	"strings"

	"payment-bot-service/models"
)

// Telegram limits invoice title and price label fields; anything outside
// a narrow character set or over 32 characters gets the whole invoice
// rejected by the Bot API.
const maxInvoiceTextLen = 32

const (
	DefaultInvoiceTitle = "Payment"
	DefaultInvoiceLabel = "Item"
)

// ValidationKind classifies why invoice data was rejected.
type ValidationKind string

const (
	KindCurrency ValidationKind = "currency"
	KindAmount   ValidationKind = "amount"
)

// ValidationError reports malformed invoice configuration.
type ValidationError struct {
	Kind    ValidationKind
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// InvoiceData is the validated, provider-safe invoice content.
type InvoiceData struct {
	Amount   int    // minor units, positive
	Currency string // 3 uppercase letters
	Title    string
	Label    string
}

// BuildInvoiceData validates and sanitizes settings into invoice fields,
// or fails with a *ValidationError.
func BuildInvoiceData(setting *models.Setting) (*InvoiceData, error) {
	currency := strings.ToUpper(strings.TrimSpace(setting.Currency))
	if !isUppercaseCurrency(currency) {
		return nil, &ValidationError{Kind: KindCurrency, Message: "invalid currency: must be 3 uppercase letters"}
	}

	if setting.PriceAmount <= 0 {
		return nil, &ValidationError{Kind: KindAmount, Message: "invalid amount: must be a positive integer in minor units"}
	}

	return &InvoiceData{
		Amount:   setting.PriceAmount,
		Currency: currency,
		Title:    SanitizeInvoiceText(setting.PaymentTitle, DefaultInvoiceTitle),
		Label:    SanitizeInvoiceText(setting.PaymentTitle, DefaultInvoiceLabel),
	}, nil
}

func isUppercaseCurrency(s string) bool {
	if len(s) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

// isAllowedInvoiceRune is the exact allow-list for invoice title/label text:
// ASCII letters and digits, space, hyphen, dot, comma, colon, underscore,
// and Cyrillic letters (basic plus supplement blocks).
func isAllowedInvoiceRune(r rune) bool {
	switch {
	case r == ' ':
		return true
	case r >= '0' && r <= '9':
		return true
	case (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z'):
		return true
	case r == '-' || r == '.' || r == ',' || r == ':' || r == '_':
		return true
	case (r >= 0x0400 && r <= 0x04FF) || (r >= 0x0500 && r <= 0x052F):
		return true
	}
	return false
}

// SanitizeInvoiceText keeps only allow-listed runes, folds line breaks into
// a single space, drops other control characters, and caps the result at
// 32 characters. An empty result falls back to the given default.
func SanitizeInvoiceText(input, fallback string) string {
	var b strings.Builder
	count := 0
	lastWasSpace := false

	for _, r := range input {
		if count >= maxInvoiceTextLen {
			break
		}
		if r == '\n' || r == '\r' {
			if count > 0 && !lastWasSpace {
				b.WriteRune(' ')
				count++
				lastWasSpace = true
			}
			continue
		}
		if r < 0x20 {
			continue
		}
		if !isAllowedInvoiceRune(r) {
			continue
		}
		b.WriteRune(r)
		count++
		lastWasSpace = r == ' '
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return fallback
	}
	return out
}

// ApplyPlaceholders renders a success message template, substituting
// {amount} with the minor-unit amount as a 2-decimal major value and
// {currency} with the uppercased currency code.
func ApplyPlaceholders(template string, amountMinor int, currency string) string {
	out := strings.ReplaceAll(template, "{amount}", formatMinorAmount(amountMinor))
	return strings.ReplaceAll(out, "{currency}", strings.ToUpper(currency))
}

func formatMinorAmount(amountMinor int) string {
	return fmt.Sprintf("%.2f", float64(amountMinor)/100)
}
