package utils

import "github.com/shopspring/decimal"

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
}

// FormatAmount renders a money amount for display: currency symbol when known,
// ISO code prefix otherwise, always two decimal places.
func FormatAmount(amount decimal.Decimal, currency string) string {
	if symbol, ok := currencySymbols[currency]; ok {
		return symbol + amount.StringFixed(2)
	}
	return currency + " " + amount.StringFixed(2)
}
