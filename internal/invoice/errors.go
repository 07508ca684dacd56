package invoice

import (
	"errors"
	"fmt"

	"github.com/diewo77/invoice-engine/internal/models"
	"github.com/diewo77/invoice-engine/validation"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound         = errors.New("invoice not found")
	ErrNotDraft         = errors.New("only draft invoices can be modified")
	ErrConcurrentUpdate = errors.New("invoice was modified concurrently")
)

// ValidationError carries field-attributed violations, e.g. line_items[1].quantity.
type ValidationError struct {
	Violations validation.Violations
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Violations.String()
}

// NewValidationError returns nil when v holds no violation.
func NewValidationError(v validation.Violations) error {
	if v.Empty() {
		return nil
	}
	return &ValidationError{Violations: v}
}

// InvalidTransitionError reports an illegal lifecycle move. The invoice is left unchanged.
type InvalidTransitionError struct {
	From models.InvoiceStatus
	To   models.InvoiceStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

type InvalidRateError struct {
	Rate decimal.Decimal
}

func (e *InvalidRateError) Error() string {
	return fmt.Sprintf("exchange rate must be positive, got %s", e.Rate)
}

// PersistenceError wraps a failed atomic write. It is never retried inside the core.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: invoice not updated: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ExternalCollaboratorError wraps a failure of the notifier, payment gateway or event bus.
type ExternalCollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *ExternalCollaboratorError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Collaborator, e.Err)
}

func (e *ExternalCollaboratorError) Unwrap() error { return e.Err }
