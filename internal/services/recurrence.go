package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diewo77/invoice-engine/internal/invoice"
	"github.com/diewo77/invoice-engine/internal/models"
	"github.com/diewo77/invoice-engine/validation"
	"gorm.io/gorm"
)

// maxCatchUp bounds how many missed cycles one tick generates for a single template.
const maxCatchUp = 400

// TickRecurrence generates the next invoice of a recurring template when it is due at
// asOf. It returns nil when nothing was generated. Ticks for the same template are
// serialized, and the rule version guards against a concurrent scheduler instance.
func (s *InvoiceService) TickRecurrence(ctx context.Context, tenantID string, templateID uint, asOf time.Time) (*models.Invoice, error) {
	unlock, err := s.locker.Lock(ctx, fmt.Sprintf("recurrence:%d", templateID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	template, err := s.load(ctx, s.db, tenantID, templateID)
	if err != nil {
		return nil, err
	}
	if template.Recurrence == nil {
		return nil, &invoice.ValidationError{Violations: validation.Violations{"recurrence": validation.CodeRequired}}
	}
	rule := *template.Recurrence

	if template.Status == models.InvoiceStatusCancelled || invoice.Exhausted(rule) {
		if rule.Active {
			if err := deactivateRule(s.db.WithContext(ctx), rule); err != nil {
				return nil, &invoice.PersistenceError{Op: "deactivate recurrence", Err: err}
			}
		}
		s.metrics.IncRecurrence("exhausted")
		return nil, nil
	}

	p, err := s.tenants.profile(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	occ, err := invoice.NextOccurrence(rule, template, asOf, p.pricer)
	if err != nil {
		s.metrics.IncRecurrence("failed")
		return nil, err
	}
	if occ == nil {
		s.metrics.IncRecurrence("idle")
		return nil, nil
	}

	generated := occ.Invoice
	var records []models.ActivityRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockRow(tx, &models.RecurrenceRule{}, rule.ID); err != nil {
			return err
		}
		res := tx.Model(&models.RecurrenceRule{}).
			Where("id = ? AND version = ?", rule.ID, rule.Version).
			Updates(map[string]any{
				"occurrence_count":    occ.Rule.OccurrenceCount,
				"last_generated_date": occ.Rule.LastGeneratedDate,
				"active":              !invoice.Exhausted(occ.Rule),
				"version":             rule.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return invoice.ErrConcurrentUpdate
		}

		number, err := models.GenerateInvoiceNumber(tx, tenantID, generated.IssueDate.Year())
		if err != nil {
			return err
		}
		generated.Number = number
		if err := tx.Create(&generated).Error; err != nil {
			return err
		}

		fired, err := s.recorder.Record(ctx, tx, template, models.ActivityRecurrenceFired,
			fmt.Sprintf("generated %s for %s", generated.Number, occ.Date.Format(time.DateOnly)),
			map[string]any{
				"generated_invoice_id": generated.ID,
				"occurrence":           occ.Rule.OccurrenceCount,
				"date":                 occ.Date.Format(time.DateOnly),
			})
		if err != nil {
			return err
		}
		created, err := s.recorder.Record(ctx, tx, generated, models.ActivityInvoiceCreated,
			fmt.Sprintf("invoice %s created from %s", generated.Number, template.Number),
			map[string]any{"number": generated.Number, "template_id": template.ID})
		if err != nil {
			return err
		}
		records = append(records, fired, created)
		return nil
	})
	if err != nil {
		s.metrics.IncRecurrence("failed")
		return nil, &invoice.PersistenceError{Op: "generate recurring invoice", Err: err}
	}

	s.metrics.IncRecurrence("fired")
	s.recorder.Emit(ctx, records...)
	s.log.Info().
		Str("tenant_id", tenantID).
		Uint("template_id", templateID).
		Uint("invoice_id", generated.ID).
		Str("date", occ.Date.Format(time.DateOnly)).
		Msg("recurring invoice generated")
	return &generated, nil
}

func deactivateRule(tx *gorm.DB, rule models.RecurrenceRule) error {
	return tx.Model(&models.RecurrenceRule{}).
		Where("id = ?", rule.ID).
		Updates(map[string]any{"active": false, "version": gorm.Expr("version + 1")}).Error
}

// TickReport summarizes one scheduler run.
type TickReport struct {
	Generated []uint
	Sent      []uint
	Failed    int
}

type templateRef struct {
	InvoiceID uint
	TenantID  string
}

// TickAll catches up every active recurring template and sends the scheduled
// invoices whose send time has come. A failing invoice does not stop the run.
func (s *InvoiceService) TickAll(ctx context.Context, asOf time.Time) (TickReport, error) {
	var report TickReport
	var errs []error
	asOf = asOf.UTC()

	var refs []templateRef
	err := s.db.WithContext(ctx).Table("recurrence_rules").
		Select("recurrence_rules.invoice_id, invoices.tenant_id").
		Joins("JOIN invoices ON invoices.id = recurrence_rules.invoice_id").
		Where("recurrence_rules.active = ? AND recurrence_rules.start_date <= ?", true, asOf).
		Order("recurrence_rules.invoice_id").
		Scan(&refs).Error
	if err != nil {
		return report, &invoice.PersistenceError{Op: "list recurrence rules", Err: err}
	}

	for _, ref := range refs {
		for i := 0; i < maxCatchUp; i++ {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			inv, err := s.TickRecurrence(ctx, ref.TenantID, ref.InvoiceID, asOf)
			if err != nil {
				report.Failed++
				errs = append(errs, fmt.Errorf("template %d: %w", ref.InvoiceID, err))
				s.log.Error().Err(err).Uint("template_id", ref.InvoiceID).Msg("recurrence tick failed")
				break
			}
			if inv == nil {
				break
			}
			report.Generated = append(report.Generated, inv.ID)
		}
	}

	var scheduled []models.Invoice
	err = s.db.WithContext(ctx).Select("id", "tenant_id").
		Where("status = ? AND scheduled_send_at <= ?", models.InvoiceStatusScheduled, asOf).
		Order("scheduled_send_at, id").
		Find(&scheduled).Error
	if err != nil {
		errs = append(errs, &invoice.PersistenceError{Op: "list scheduled invoices", Err: err})
		return report, errors.Join(errs...)
	}
	for _, inv := range scheduled {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, err := s.Send(ctx, inv.TenantID, inv.ID); err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("scheduled invoice %d: %w", inv.ID, err))
			s.log.Error().Err(err).Uint("invoice_id", inv.ID).Msg("scheduled send failed")
			continue
		}
		report.Sent = append(report.Sent, inv.ID)
	}

	return report, errors.Join(errs...)
}
