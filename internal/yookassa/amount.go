package yookassa

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/mkrv/cafeorder/internal/domain/money"
)

// Amount is the provider's money representation: a decimal string of major
// units, "510.00", plus a currency code.
type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// amountFromMoney converts minor units to the provider's decimal string.
// 51000 kopecks becomes "510.00".
func amountFromMoney(m money.Money) Amount {
	return Amount{
		Value:    decimal.NewFromInt(m.Amount).Div(decimal.NewFromInt(100)).StringFixed(2),
		Currency: string(m.Currency),
	}
}

// toMoney converts a provider amount back to minor units. The conversion is
// exact: a fractional kopeck in the response is a protocol violation.
func (a Amount) toMoney() (money.Money, error) {
	d, err := decimal.NewFromString(a.Value)
	if err != nil {
		return money.Money{}, errors.Wrapf(err, "parse amount %q", a.Value)
	}
	kopecks := d.Mul(decimal.NewFromInt(100))
	if !kopecks.IsInteger() {
		return money.Money{}, errors.Errorf("amount %q is not a whole number of kopecks", a.Value)
	}
	return money.New(kopecks.IntPart(), money.Currency(a.Currency))
}
