package invoice

import "github.com/shopspring/decimal"

// ToBaseCurrency converts amount with a caller-supplied rate and rounds to the base currency.
// No rate lookup happens here.
func ToBaseCurrency(amount, exchangeRate decimal.Decimal, base Currency) (decimal.Decimal, error) {
	if !exchangeRate.IsPositive() {
		return decimal.Zero, &InvalidRateError{Rate: exchangeRate}
	}
	return base.Round(amount.Mul(exchangeRate)), nil
}
