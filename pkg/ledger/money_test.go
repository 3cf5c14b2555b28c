package ledger

import (
	"errors"
	"testing"
)

func TestMoney_Validate(t *testing.T) {
	tests := []struct {
		name        string
		money       Money
		expectError bool
	}{
		{
			name:  "consistent debit",
			money: Money{CurrencyCode: "AUD", Value: "-10.56", ValueInBaseUnits: -1056},
		},
		{
			name:  "consistent credit",
			money: Money{CurrencyCode: "AUD", Value: "175.00", ValueInBaseUnits: 17500},
		},
		{
			name:  "zero",
			money: Money{CurrencyCode: "AUD", Value: "0.00", ValueInBaseUnits: 0},
		},
		{
			name:  "zero-exponent currency",
			money: Money{CurrencyCode: "JPY", Value: "1500", ValueInBaseUnits: 1500},
		},
		{
			name:  "three-digit-exponent currency",
			money: Money{CurrencyCode: "KWD", Value: "1.234", ValueInBaseUnits: 1234},
		},
		{
			name:        "magnitude mismatch",
			money:       Money{CurrencyCode: "AUD", Value: "-10.56", ValueInBaseUnits: -1057},
			expectError: true,
		},
		{
			name:        "exponent mismatch",
			money:       Money{CurrencyCode: "JPY", Value: "15.00", ValueInBaseUnits: 1500},
			expectError: true,
		},
		{
			name:        "unparseable value",
			money:       Money{CurrencyCode: "AUD", Value: "ten dollars", ValueInBaseUnits: 1000},
			expectError: true,
		},
		{
			name:        "bad currency code",
			money:       Money{CurrencyCode: "AUDX", Value: "1.00", ValueInBaseUnits: 100},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.money.Validate()
			if tt.expectError && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestMoney_Validate_MismatchErrorKind(t *testing.T) {
	m := Money{CurrencyCode: "AUD", Value: "1.00", ValueInBaseUnits: 101}
	if err := m.Validate(); !errors.Is(err, ErrInconsistentMoney) {
		t.Errorf("expected ErrInconsistentMoney, got %v", err)
	}
}

func TestMoney_Decimal_UsesBaseUnits(t *testing.T) {
	// The display string is deliberately wrong: arithmetic must come from
	// the base-unit value.
	m := Money{CurrencyCode: "AUD", Value: "99.99", ValueInBaseUnits: -1056}
	if got := m.Decimal().String(); got != "-10.56" {
		t.Errorf("expected -10.56, got %s", got)
	}
	if !m.IsNegative() {
		t.Error("expected IsNegative for debit")
	}
}

func TestMinorUnitExponent(t *testing.T) {
	tests := []struct {
		code string
		want int32
	}{
		{"AUD", 2},
		{"USD", 2},
		{"JPY", 0},
		{"BHD", 3},
		{"XYZ", 2},
	}
	for _, tt := range tests {
		if got := MinorUnitExponent(tt.code); got != tt.want {
			t.Errorf("MinorUnitExponent(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
