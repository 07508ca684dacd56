package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diewo77/invoice-engine/internal/invoice"
	"github.com/diewo77/invoice-engine/internal/models"
	"github.com/diewo77/invoice-engine/internal/notify"
	"github.com/diewo77/invoice-engine/internal/payment"
	"github.com/diewo77/invoice-engine/validation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var errGatewayNotConfigured = errors.New("no payment gateway configured")

// Send delivers the invoice to its contact and marks it sent. Nothing is persisted
// when the notification fails.
func (s *InvoiceService) Send(ctx context.Context, tenantID string, id uint) (View, error) {
	current, err := s.load(ctx, s.db, tenantID, id)
	if err != nil {
		return View{}, err
	}
	contact, err := s.contact(ctx, tenantID, current.ContactID)
	if err != nil {
		return View{}, err
	}
	now := s.now()
	next, err := invoice.Send(current, contact, now)
	if err != nil {
		return View{}, err
	}
	p, err := s.tenants.profile(ctx, tenantID)
	if err != nil {
		return View{}, err
	}

	msg := notify.NewMessage(next, *contact, p.currency(next.Currency).Format(next.TotalAmount))
	if err := s.notifier.InvoiceSent(ctx, msg); err != nil {
		s.metrics.IncCollaboratorFailure("notifier")
		s.log.Warn().Err(err).Uint("invoice_id", id).Msg("invoice notification failed")
		return View{}, &invoice.ExternalCollaboratorError{Collaborator: "notifier", Err: err}
	}

	saved, err := s.commit(ctx, "send invoice", current, next,
		[]pendingActivity{statusActivity(current, next, "sent to "+contact.Email)}, nil)
	if err != nil {
		return View{}, err
	}
	return s.view(saved, p, now), nil
}

func (s *InvoiceService) contact(ctx context.Context, tenantID string, id uint) (*models.Contact, error) {
	var c models.Contact
	err := s.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &invoice.PersistenceError{Op: "load contact", Err: err}
	}
	return &c, nil
}

// Schedule plans the invoice to be sent at sendAt by the scheduler.
func (s *InvoiceService) Schedule(ctx context.Context, tenantID string, id uint, sendAt time.Time) (View, error) {
	current, err := s.load(ctx, s.db, tenantID, id)
	if err != nil {
		return View{}, err
	}
	now := s.now()
	next, err := invoice.Schedule(current, sendAt, now)
	if err != nil {
		return View{}, err
	}
	saved, err := s.commit(ctx, "schedule invoice", current, next,
		[]pendingActivity{statusActivity(current, next, "send at "+sendAt.UTC().Format(time.RFC3339))}, nil)
	if err != nil {
		return View{}, err
	}
	p, err := s.tenants.profile(ctx, tenantID)
	if err != nil {
		return View{}, err
	}
	return s.view(saved, p, now), nil
}

func (s *InvoiceService) Cancel(ctx context.Context, tenantID string, id uint) (View, error) {
	current, err := s.load(ctx, s.db, tenantID, id)
	if err != nil {
		return View{}, err
	}
	now := s.now()
	next, err := invoice.Cancel(current, now)
	if err != nil {
		return View{}, err
	}
	var extra func(tx *gorm.DB) error
	if current.Recurrence != nil && current.Recurrence.Active {
		// A cancelled template stops generating invoices.
		extra = func(tx *gorm.DB) error {
			return deactivateRule(tx, *current.Recurrence)
		}
	}
	saved, err := s.commit(ctx, "cancel invoice", current, next,
		[]pendingActivity{statusActivity(current, next, "")}, extra)
	if err != nil {
		return View{}, err
	}
	p, err := s.tenants.profile(ctx, tenantID)
	if err != nil {
		return View{}, err
	}
	return s.view(saved, p, now), nil
}

// PaymentConfirmation is a confirmed payment reported by a provider or an operator.
type PaymentConfirmation struct {
	Amount     decimal.Decimal
	Provider   string
	Reference  string
	ReceivedAt *time.Time
}

// RecordPayment applies a confirmed payment. A confirmation whose reference was
// already recorded leaves the invoice unchanged.
func (s *InvoiceService) RecordPayment(ctx context.Context, tenantID string, id uint, pc PaymentConfirmation) (View, error) {
	current, err := s.load(ctx, s.db, tenantID, id)
	if err != nil {
		return View{}, err
	}
	p, err := s.tenants.profile(ctx, tenantID)
	if err != nil {
		return View{}, err
	}
	now := s.now()

	if pc.Reference == "" {
		pc.Reference = uuid.NewString()
	} else {
		var seen int64
		err := s.db.WithContext(ctx).Model(&models.Payment{}).
			Where("invoice_id = ? AND reference = ?", id, pc.Reference).Count(&seen).Error
		if err != nil {
			return View{}, &invoice.PersistenceError{Op: "record payment", Err: err}
		}
		if seen > 0 {
			s.log.Info().Uint("invoice_id", id).Str("reference", pc.Reference).Msg("duplicate payment confirmation ignored")
			return s.view(current, p, now), nil
		}
	}

	cur := p.currency(current.Currency)
	amount := cur.Round(pc.Amount)
	next, err := invoice.ApplyPayment(current, amount, cur, now)
	if err != nil {
		return View{}, err
	}

	received := now
	if pc.ReceivedAt != nil {
		received = *pc.ReceivedAt
	}
	// One record per payment. A status change it causes is carried in the same record.
	act := pendingActivity{
		typ:  models.ActivityPaymentRecorded,
		desc: fmt.Sprintf("payment of %s %s recorded", cur.Format(amount), cur.Code),
		payload: map[string]any{
			"amount":      cur.Format(amount),
			"amount_paid": cur.Format(next.AmountPaid),
			"reference":   pc.Reference,
			"provider":    pc.Provider,
		},
	}
	if next.Status != current.Status {
		act.desc += fmt.Sprintf(", status changed from %s to %s", current.Status, next.Status)
		act.payload["from"] = string(current.Status)
		act.payload["to"] = string(next.Status)
	}
	saved, err := s.commit(ctx, "record payment", current, next, []pendingActivity{act}, func(tx *gorm.DB) error {
		return tx.Create(&models.Payment{
			InvoiceID:  id,
			Amount:     amount,
			Provider:   pc.Provider,
			Reference:  pc.Reference,
			ReceivedAt: received,
		}).Error
	})
	if err != nil {
		return View{}, err
	}
	return s.view(saved, p, now), nil
}

// PaymentIntent is the result of delegating collection of the outstanding balance.
type PaymentIntent struct {
	Link         models.PaymentLink
	ClientSecret string
}

// CreatePaymentIntent asks the gateway for a payment intent covering the outstanding
// balance and stores the returned reference.
func (s *InvoiceService) CreatePaymentIntent(ctx context.Context, tenantID string, id uint) (PaymentIntent, error) {
	current, err := s.load(ctx, s.db, tenantID, id)
	if err != nil {
		return PaymentIntent{}, err
	}
	if current.Status != models.InvoiceStatusSent && current.Status != models.InvoiceStatusPartiallyPaid {
		return PaymentIntent{}, &invoice.InvalidTransitionError{From: current.Status, To: models.InvoiceStatusPaid}
	}
	outstanding := current.Outstanding()
	if !outstanding.IsPositive() {
		return PaymentIntent{}, &invoice.ValidationError{Violations: validation.Violations{"amount": validation.CodeMustBePositive}}
	}
	if s.gateway == nil {
		return PaymentIntent{}, &invoice.ExternalCollaboratorError{Collaborator: "payment_gateway", Err: errGatewayNotConfigured}
	}
	p, err := s.tenants.profile(ctx, tenantID)
	if err != nil {
		return PaymentIntent{}, err
	}
	cur := p.currency(current.Currency)

	intent, err := s.gateway.CreateIntent(ctx, payment.Request{
		InvoiceID:      current.ID,
		TenantID:       tenantID,
		Number:         current.Number,
		Amount:         outstanding,
		Currency:       cur.Code,
		MinorUnits:     cur.MinorUnits,
		IdempotencyKey: fmt.Sprintf("invoice-%s-%d-v%d", tenantID, current.ID, current.Version),
	})
	if err != nil {
		s.metrics.IncCollaboratorFailure("payment_gateway")
		return PaymentIntent{}, &invoice.ExternalCollaboratorError{Collaborator: "payment_gateway", Err: err}
	}

	link := models.PaymentLink{
		InvoiceID: current.ID,
		Provider:  intent.Provider,
		Reference: intent.Reference,
		URL:       intent.URL,
		Amount:    outstanding,
		Currency:  cur.Code,
	}
	var records []models.ActivityRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&link).Error; err != nil {
			return err
		}
		rec, err := s.recorder.Record(ctx, tx, current, models.ActivityPaymentLinkCreated,
			fmt.Sprintf("%s payment link created", intent.Provider),
			map[string]any{"provider": intent.Provider, "reference": intent.Reference, "amount": cur.Format(outstanding)})
		if err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return PaymentIntent{}, &invoice.PersistenceError{Op: "store payment link", Err: err}
	}
	s.recorder.Emit(ctx, records...)
	return PaymentIntent{Link: link, ClientSecret: intent.ClientSecret}, nil
}
