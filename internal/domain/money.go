package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is an ISO 4217 code. The service settles in a single configured currency.
type Currency string

const CurrencyUSD Currency = "USD"

func (c Currency) IsValid() bool {
	s := string(c)
	return len(s) == 3 && strings.ToUpper(s) == s && strings.Trim(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") == ""
}

// FormatMinor renders an amount in minor units as a two-decimal string, e.g. 12345 -> "123.45".
func FormatMinor(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}
