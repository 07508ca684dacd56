package invoice

import (
	"strings"

	"github.com/diewo77/invoice-engine/internal/models"
	"github.com/diewo77/invoice-engine/validation"
	"github.com/shopspring/decimal"
)

// Line is the calculator's view of a line item. Rates are percentages in [0,100].
type Line struct {
	Description  string
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	TaxRate      decimal.Decimal
	DiscountRate decimal.Decimal
}

// LinesFromItems converts persisted line items.
func LinesFromItems(items []models.LineItem) []Line {
	lines := make([]Line, len(items))
	for i, it := range items {
		lines[i] = Line{
			Description:  it.Description,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			TaxRate:      it.TaxRate,
			DiscountRate: it.DiscountRate,
		}
	}
	return lines
}

// LineTotals is the rounded breakdown of one line, for display.
type LineTotals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Totals holds invoice amounts rounded to the currency minor unit.
// Total always equals Subtotal - Discount + Tax (Tax only when not inclusive).
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
	Lines    []LineTotals
}

// ValidateLines reports every invalid amount or rate with its line index.
// An invoice needs at least one line.
func ValidateLines(lines []Line) validation.Violations {
	v := validation.Violations{}
	if len(lines) == 0 {
		v["line_items"] = validation.CodeRequired
		return v
	}
	for i, l := range lines {
		lv := validation.Violations{}
		validation.PositiveDecimal("quantity", l.Quantity, lv)
		validation.NonNegativeDecimal("unit_price", l.UnitPrice, lv)
		validation.RangeDecimal("tax_rate", l.TaxRate, decimal.Zero, hundred, lv)
		validation.RangeDecimal("discount_rate", l.DiscountRate, decimal.Zero, hundred, lv)
		v.Merge(validation.Indexed("line_items", i, ""), lv)
	}
	return v
}

// ValidateDescriptions requires a description on every line. Pricing does not
// need one; storing and sending an invoice does.
func ValidateDescriptions(lines []Line) validation.Violations {
	v := validation.Violations{}
	for i, l := range lines {
		if strings.TrimSpace(l.Description) == "" {
			v[validation.Indexed("line_items", i, "description")] = validation.CodeRequired
		}
	}
	return v
}

// Calculator computes invoice totals in a given currency precision. It is stateless.
type Calculator struct {
	Currency Currency
}

// ComputeTotals computes totals with the default two-decimal precision.
func ComputeTotals(lines []Line, taxInclusive bool) (Totals, error) {
	return Calculator{Currency: DefaultCurrency}.ComputeTotals(lines, taxInclusive)
}

// ComputeTotals sums exact per-line amounts and rounds the aggregates once.
func (c Calculator) ComputeTotals(lines []Line, taxInclusive bool) (Totals, error) {
	if err := NewValidationError(ValidateLines(lines)); err != nil {
		return Totals{}, err
	}

	subtotal, discount, tax := decimal.Zero, decimal.Zero, decimal.Zero
	perLine := make([]LineTotals, len(lines))
	for i, l := range lines {
		itemSubtotal := l.Quantity.Mul(l.UnitPrice)
		itemDiscount := itemSubtotal.Mul(l.DiscountRate).Div(hundred)
		taxable := itemSubtotal.Sub(itemDiscount)
		itemTax := taxable.Mul(l.TaxRate).Div(hundred)

		subtotal = subtotal.Add(itemSubtotal)
		discount = discount.Add(itemDiscount)
		tax = tax.Add(itemTax)
		perLine[i] = c.total(itemSubtotal, itemDiscount, itemTax, taxInclusive)
	}

	t := c.total(subtotal, discount, tax, taxInclusive)
	return Totals{
		Subtotal: t.Subtotal,
		Discount: t.Discount,
		Tax:      t.Tax,
		Total:    t.Total,
		Lines:    perLine,
	}, nil
}

// total rounds the net amount and the tax once each, so the total never falls
// when an exact input amount grows. Discount is whatever separates the rounded
// subtotal from the rounded net.
func (c Calculator) total(subtotal, discount, tax decimal.Decimal, taxInclusive bool) LineTotals {
	net := c.Currency.Round(subtotal.Sub(discount))
	lt := LineTotals{
		Subtotal: c.Currency.Round(subtotal),
		Tax:      c.Currency.Round(tax),
	}
	lt.Discount = lt.Subtotal.Sub(net)
	lt.Total = net
	if !taxInclusive {
		lt.Total = lt.Total.Add(lt.Tax)
	}
	return lt
}

// Pricer applies totals and the base-currency conversion to whole invoices
// using tenant currency settings.
type Pricer struct {
	Currencies CurrencyTable
	Base       Currency
}

// CurrencyFor returns the precision used for an invoice currency.
func (p Pricer) CurrencyFor(code string) Currency {
	return p.Currencies.Lookup(code)
}

// Price returns inv with every computed amount refreshed from its line items.
// Line validation errors take precedence over an invalid exchange rate.
func (p Pricer) Price(inv models.Invoice) (models.Invoice, error) {
	cur := p.CurrencyFor(inv.Currency)
	totals, err := Calculator{Currency: cur}.ComputeTotals(LinesFromItems(inv.LineItems), inv.TaxInclusive)
	if err != nil {
		return inv, err
	}
	base, err := ToBaseCurrency(totals.Total, inv.ExchangeRate, p.Base)
	if err != nil {
		return inv, err
	}
	inv.Subtotal = totals.Subtotal
	inv.DiscountAmount = totals.Discount
	inv.TaxAmount = totals.Tax
	inv.TotalAmount = totals.Total
	inv.BaseTotalAmount = base
	return inv, nil
}
