package invoice

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Currency describes the precision money is rounded to.
type Currency struct {
	Code       string
	MinorUnits int32
}

// DefaultCurrency is used when no tenant currency table is configured.
var DefaultCurrency = Currency{Code: "USD", MinorUnits: 2}

// Round rounds half-up to the currency minor unit. Amounts are never negative here,
// so decimal's half-away-from-zero rounding is equivalent.
func (c Currency) Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(c.MinorUnits)
}

// MinorUnit returns the smallest representable amount, e.g. 0.01 for USD.
func (c Currency) MinorUnit() decimal.Decimal {
	return decimal.New(1, -c.MinorUnits)
}

// Format renders d with exactly the currency precision.
func (c Currency) Format(d decimal.Decimal) string {
	return d.StringFixed(c.MinorUnits)
}

// CurrencyTable maps ISO codes to minor units. Unknown codes use two.
type CurrencyTable map[string]int32

// DefaultCurrencyTable lists the common currencies that do not use two minor units.
var DefaultCurrencyTable = CurrencyTable{
	"JPY": 0,
	"KRW": 0,
	"CLP": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
}

// Lookup returns the currency for code.
func (t CurrencyTable) Lookup(code string) Currency {
	code = strings.ToUpper(code)
	if units, ok := t[code]; ok {
		return Currency{Code: code, MinorUnits: units}
	}
	if units, ok := DefaultCurrencyTable[code]; ok {
		return Currency{Code: code, MinorUnits: units}
	}
	return Currency{Code: code, MinorUnits: 2}
}

// ParseCurrencyTable parses "JPY:0,KWD:3".
func ParseCurrencyTable(s string) (CurrencyTable, error) {
	table := CurrencyTable{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, units, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("currency %q: expected CODE:UNITS", part)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(units), 10, 32)
		if err != nil || n < 0 || n > 8 {
			return nil, fmt.Errorf("currency %q: invalid minor units", part)
		}
		table[strings.ToUpper(strings.TrimSpace(code))] = int32(n)
	}
	return table, nil
}
