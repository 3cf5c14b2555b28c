package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInconsistentMoney is returned when a monetary amount's display string
// and base-unit integer disagree under the currency's minor-unit exponent.
var ErrInconsistentMoney = errors.New("ledger: value and valueInBaseUnits disagree")

// Money is a monetary amount in a single currency.
//
// ValueInBaseUnits is the authoritative value for arithmetic; Value is the
// display form and must never be parsed for computation outside Validate.
type Money struct {
	// CurrencyCode is the ISO 4217 currency code, e.g. "AUD".
	CurrencyCode string `json:"currencyCode"`

	// Value is the amount as a decimal string, e.g. "-10.56". Display only.
	Value string `json:"value"`

	// ValueInBaseUnits is the amount in the currency's minor unit,
	// e.g. -1056 for AUD -10.56.
	ValueInBaseUnits int64 `json:"valueInBaseUnits"`
}

// minorUnitExponents maps ISO 4217 codes with a non-default exponent.
// Everything absent from the map uses the common exponent of 2.
var minorUnitExponents = map[string]int32{
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0,
	"KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0,
	"XOF": 0, "XPF": 0,
}

// MinorUnitExponent returns the number of minor-unit digits for an ISO 4217
// currency code.
func MinorUnitExponent(currencyCode string) int32 {
	if exp, ok := minorUnitExponents[currencyCode]; ok {
		return exp
	}
	return 2
}

// Validate checks that Value and ValueInBaseUnits represent the same
// magnitude under the currency's minor-unit exponent.
func (m Money) Validate() error {
	if len(m.CurrencyCode) != 3 {
		return fmt.Errorf("ledger: invalid currency code %q", m.CurrencyCode)
	}

	display, err := decimal.NewFromString(m.Value)
	if err != nil {
		return fmt.Errorf("ledger: invalid money value %q: %w", m.Value, err)
	}

	base := decimal.New(m.ValueInBaseUnits, -MinorUnitExponent(m.CurrencyCode))
	if !display.Equal(base) {
		return fmt.Errorf("%w: %s vs %s %s", ErrInconsistentMoney, m.Value, base.String(), m.CurrencyCode)
	}
	return nil
}

// Decimal returns the amount as a decimal derived from the authoritative
// base-unit value.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.ValueInBaseUnits, -MinorUnitExponent(m.CurrencyCode))
}

// IsNegative reports whether the amount is a debit.
func (m Money) IsNegative() bool {
	return m.ValueInBaseUnits < 0
}

// String returns the display form, e.g. "-10.56 AUD".
func (m Money) String() string {
	return m.Value + " " + m.CurrencyCode
}
