package models

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// ToMoney converts a decimal amount into minor units of the given currency.
// Unknown currencies are treated as having two decimals.
func ToMoney(amount decimal.Decimal, currency string) *money.Money {
	fraction := 2
	if cur := money.GetCurrency(currency); cur != nil {
		fraction = cur.Fraction
	}
	return money.New(amount.Shift(int32(fraction)).Round(0).IntPart(), currency)
}

// FormatAmount renders an amount with its currency symbol, e.g. "$1,234.50".
func FormatAmount(amount decimal.Decimal, currency string) string {
	if currency == "" || money.GetCurrency(currency) == nil {
		s := amount.StringFixed(2)
		if currency != "" {
			s += " " + currency
		}
		return s
	}
	return ToMoney(amount, currency).Display()
}
