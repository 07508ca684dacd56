// Package events defines the outbound invoice event contract and its publishers.
package events

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Event is what dashboards and CRM consumers receive. Delivery is at-least-once,
// so consumers must de-duplicate with DedupeKey.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	InvoiceID uint           `json:"invoice_id"`
	TenantID  string         `json:"tenant_id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// New builds an event named after its type, e.g. invoice.status_changed.
func New(tenantID string, invoiceID uint, eventType string, at time.Time, payload map[string]any) Event {
	return Event{
		ID:        uuid.New(),
		Name:      "invoice." + eventType,
		InvoiceID: invoiceID,
		TenantID:  tenantID,
		Type:      eventType,
		Timestamp: at.UTC(),
		Payload:   payload,
	}
}

// DedupeKey identifies an event across redeliveries: invoice id, type and timestamp.
func (e Event) DedupeKey() string {
	return fmt.Sprintf("%d:%s:%s", e.InvoiceID, e.Type, e.Timestamp.UTC().Format(time.RFC3339Nano))
}

// Key is the partition key, the invoice id, so one invoice's events stay ordered.
func (e Event) Key() string {
	return strconv.FormatUint(uint64(e.InvoiceID), 10)
}

// Publisher delivers events to an external bus.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// MultiPublisher fans an event out to every publisher and reports all failures.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiPublisher) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
