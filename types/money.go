// Package types provides common value types used across starpay.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CurrencyStars is the ISO-style code Telegram uses for Stars.
const CurrencyStars = "XTR"

// Money is an integer amount in a currency's smallest unit.
// Stars are indivisible, so Stars(750) is exactly 750 stars.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Stars creates a Money value in Telegram Stars.
func Stars(n int64) Money { return Money{Amount: n, Currency: CurrencyStars} }

// Zero returns a zero Money value in the given currency.
func Zero(currency string) Money { return Money{Currency: normalize(currency)} }

// Add adds two Money values. Panics if currencies don't match.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}
}

// Subtract subtracts another Money value. Panics if currencies don't match.
func (m Money) Subtract(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}
}

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// Equal reports whether both values carry the same amount and currency.
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && normalize(m.Currency) == normalize(other.Currency)
}

// IsStars reports whether the value is denominated in Telegram Stars.
func (m Money) IsStars() bool { return normalize(m.Currency) == CurrencyStars }

// String renders the amount with its unit: "750 ⭐" for stars, "12 EUR" otherwise.
func (m Money) String() string {
	if m.IsStars() {
		return fmt.Sprintf("%d ⭐", m.Amount)
	}
	return fmt.Sprintf("%d %s", m.Amount, normalize(m.Currency))
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

func (m Money) assertSameCurrency(other Money) {
	if normalize(m.Currency) != normalize(other.Currency) {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}

func normalize(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}
