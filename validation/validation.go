package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Violation codes returned to API clients next to the offending field.
const (
	CodeRequired          = "required"
	CodeMustBePositive    = "must_be_positive"
	CodeMustNotBeNegative = "must_not_be_negative"
	CodeOutOfRange        = "out_of_range"
	CodeInvalid           = "invalid"
	CodeUnresolved        = "unresolved"
	CodeMustBeFuture      = "must_be_in_future"
	CodeTooManyDecimals   = "too_many_decimals"
)

type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Fields returns the violating field names in a stable order.
func (v Violations) Fields() []string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func (v Violations) String() string {
	parts := make([]string, 0, len(v))
	for _, f := range v.Fields() {
		parts = append(parts, f+"="+v[f])
	}
	return strings.Join(parts, "; ")
}

// Merge copies every violation of other into v, prefixing field names.
func (v Violations) Merge(prefix string, other Violations) {
	for f, code := range other {
		v[prefix+f] = code
	}
}

// Indexed builds a field name for an element of a list, e.g. line_items[2].quantity.
func Indexed(list string, i int, field string) string {
	return fmt.Sprintf("%s[%d].%s", list, i, field)
}

// Basic validators
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v[field] = CodeRequired
	}
}

// Decimal validators, used for every monetary and rate field.

func PositiveDecimal(field string, val decimal.Decimal, v Violations) {
	if !val.IsPositive() {
		v[field] = CodeMustBePositive
	}
}

func NonNegativeDecimal(field string, val decimal.Decimal, v Violations) {
	if val.IsNegative() {
		v[field] = CodeMustNotBeNegative
	}
}

func RangeDecimal(field string, val, minVal, maxVal decimal.Decimal, v Violations) {
	if val.LessThan(minVal) || val.GreaterThan(maxVal) {
		v[field] = CodeOutOfRange
	}
}

// MaxScale rejects values that a column with places decimals would round on write.
// Trailing zeros do not count.
func MaxScale(field string, val decimal.Decimal, places int32, v Violations) {
	if _, taken := v[field]; taken {
		return
	}
	if !val.Equal(val.Truncate(places)) {
		v[field] = CodeTooManyDecimals
	}
}
