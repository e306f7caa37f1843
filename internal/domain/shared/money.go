package shared

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Currency is an ISO 4217 code
type Currency string

const (
	CLP Currency = "CLP"
	USD Currency = "USD"
)

// DefaultCurrency is used when a row carries no currency
const DefaultCurrency = CLP

var amountPrinter = message.NewPrinter(language.MustParse("es-CL"))

// ParseCurrency normalises a currency code, defaulting to DefaultCurrency
func ParseCurrency(s string) Currency {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return DefaultCurrency
	}
	return Currency(s)
}

// Scale is the number of minor unit digits; pesos have none.
func (c Currency) Scale() int32 {
	if c == CLP {
		return 0
	}
	return 2
}

// FormatAmount renders amount with Chilean grouping, e.g. "$ 1.250.000 CLP".
func FormatAmount(amount decimal.Decimal, c Currency) string {
	if c == "" {
		c = DefaultCurrency
	}
	scale := c.Scale()
	v := amount.Round(scale).InexactFloat64()
	return amountPrinter.Sprintf("$ %v %s", number.Decimal(v, number.Scale(int(scale))), string(c))
}
