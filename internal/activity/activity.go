// Package activity keeps the append-only invoice audit trail and mirrors it to the event bus.
package activity

import (
	"context"
	"fmt"

	"github.com/diewo77/invoice-engine/internal/events"
	"github.com/diewo77/invoice-engine/internal/metrics"
	"github.com/diewo77/invoice-engine/internal/models"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Recorder writes activity records inside the caller's transaction and publishes
// them once that transaction committed.
type Recorder struct {
	publisher events.Publisher
	metrics   *metrics.InvoiceMetrics
	log       zerolog.Logger
}

func NewRecorder(publisher events.Publisher, m *metrics.InvoiceMetrics, log zerolog.Logger) *Recorder {
	return &Recorder{publisher: publisher, metrics: m, log: log}
}

// Record appends one activity row using tx. A storage failure is returned so the
// enclosing mutation rolls back with it.
func (r *Recorder) Record(ctx context.Context, tx *gorm.DB, inv models.Invoice, typ models.ActivityType, description string, payload map[string]any) (models.ActivityRecord, error) {
	rec := models.ActivityRecord{
		InvoiceID:   inv.ID,
		TenantID:    inv.TenantID,
		Type:        typ,
		Description: description,
		Payload:     datatypes.JSONMap(payload),
	}
	if err := tx.WithContext(ctx).Create(&rec).Error; err != nil {
		return models.ActivityRecord{}, fmt.Errorf("record %s activity: %w", typ, err)
	}
	return rec, nil
}

// Emit publishes committed records. Failures are logged and counted; the state change
// they describe stays committed and redelivery is the bus's concern. Cancellation of
// ctx is ignored since the records are already committed.
func (r *Recorder) Emit(ctx context.Context, records ...models.ActivityRecord) {
	if r.publisher == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, rec := range records {
		e := events.New(rec.TenantID, rec.InvoiceID, string(rec.Type), rec.CreatedAt, map[string]any(rec.Payload))
		if err := r.publisher.Publish(ctx, e); err != nil {
			r.metrics.IncEmissionFailure(string(rec.Type))
			r.log.Error().Err(err).
				Str("event", e.Name).
				Uint("invoice_id", rec.InvoiceID).
				Str("dedupe_key", e.DedupeKey()).
				Msg("event emission failed")
		}
	}
}

// List returns the activity of one invoice, oldest first.
func List(ctx context.Context, db *gorm.DB, tenantID string, invoiceID uint) ([]models.ActivityRecord, error) {
	var out []models.ActivityRecord
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
