package utils_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"ms-auction/internal/utils"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     string
	}{
		{"10", "USD", "$10.00"},
		{"1234.5", "EUR", "€1234.50"},
		{"99.999", "GBP", "£100.00"},
		{"250", "CHF", "CHF 250.00"},
	}

	for _, tt := range tests {
		amount, err := decimal.NewFromString(tt.amount)
		assert.NoError(t, err)
		assert.Equal(t, tt.want, utils.FormatAmount(amount, tt.currency))
	}
}
