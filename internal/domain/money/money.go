// Package money provides an integer minor-unit money value type.
//
// Amounts are stored in kopecks (1/100 of a ruble) to keep all arithmetic
// exact. Conversion to decimal major units happens only at external payment
// boundaries.
package money

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Currency is an ISO 4217 currency code.
type Currency string

const (
	RUB Currency = "RUB"
	USD Currency = "USD"
	EUR Currency = "EUR"
)

var (
	// ErrCurrencyMismatch is returned when arithmetic mixes currencies.
	ErrCurrencyMismatch = errors.New("currency mismatch")
	// ErrNegativeAmount is returned when an operation would produce a
	// negative amount.
	ErrNegativeAmount = errors.New("amount cannot be negative")
)

// Money is an amount of money in minor currency units (kopecks).
// The zero value is zero rubles.
type Money struct {
	Amount   int64
	Currency Currency
}

// New creates a Money value. Negative amounts are rejected.
func New(kopecks int64, currency Currency) (Money, error) {
	if kopecks < 0 {
		return Money{}, ErrNegativeAmount
	}
	return Money{Amount: kopecks, Currency: currency}, nil
}

// FromKopecks creates a RUB Money value, panicking on negative input.
// Intended for constants and tests where the amount is known to be valid.
func FromKopecks(kopecks int64) Money {
	m, err := New(kopecks, RUB)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero amount in the given currency.
func Zero(currency Currency) Money {
	return Money{Currency: currency}
}

// Add returns m + other. Both values must share a currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, errors.Wrapf(ErrCurrencyMismatch, "add %s to %s", other.Currency, m.Currency)
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Sub returns m - other. Both values must share a currency and the result
// must not underflow below zero.
func (m Money) Sub(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, errors.Wrapf(ErrCurrencyMismatch, "subtract %s from %s", other.Currency, m.Currency)
	}
	if other.Amount > m.Amount {
		return Money{}, errors.Wrap(ErrNegativeAmount, "subtract")
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

// MulInt returns m multiplied by a non-negative integer factor.
func (m Money) MulInt(factor int64) (Money, error) {
	if factor < 0 {
		return Money{}, errors.Wrap(ErrNegativeAmount, "multiply")
	}
	return Money{Amount: m.Amount * factor, Currency: m.Currency}, nil
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

// LessThan reports whether m is strictly less than other.
// Comparing different currencies is a programming error and panics.
func (m Money) LessThan(other Money) bool {
	if m.Currency != other.Currency {
		panic("money: comparing different currencies")
	}
	return m.Amount < other.Amount
}

// Equal reports whether two values have the same amount and currency.
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// Rubles returns the whole major-unit part of the amount.
func (m Money) Rubles() int64 {
	return m.Amount / 100
}

// Kopecks returns the minor-unit remainder of the amount.
func (m Money) Kopecks() int64 {
	return m.Amount % 100
}

// String renders the amount as "123.45 RUB".
func (m Money) String() string {
	return fmt.Sprintf("%d.%02d %s", m.Rubles(), m.Kopecks(), m.Currency)
}
