package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/invoice-engine/internal/activity"
	"github.com/diewo77/invoice-engine/internal/invoice"
	"github.com/diewo77/invoice-engine/internal/lock"
	"github.com/diewo77/invoice-engine/internal/metrics"
	"github.com/diewo77/invoice-engine/internal/models"
	"github.com/diewo77/invoice-engine/internal/notify"
	"github.com/diewo77/invoice-engine/internal/payment"
	"github.com/diewo77/invoice-engine/validation"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Deps wires the InvoiceService collaborators.
type Deps struct {
	DB       *gorm.DB
	Tenants  *TenantService
	Recorder *activity.Recorder
	Notifier notify.Notifier
	Gateway  payment.Gateway
	Locker   lock.Locker
	Metrics  *metrics.InvoiceMetrics
	Log      zerolog.Logger
	Now      func() time.Time
}

// InvoiceService applies every invoice mutation as one atomic read-modify-write
// guarded by the invoice version.
type InvoiceService struct {
	db       *gorm.DB
	tenants  *TenantService
	recorder *activity.Recorder
	notifier notify.Notifier
	gateway  payment.Gateway
	locker   lock.Locker
	metrics  *metrics.InvoiceMetrics
	log      zerolog.Logger
	now      func() time.Time
}

func NewInvoiceService(d Deps) *InvoiceService {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Locker == nil {
		d.Locker = lock.NewKeyedMutex()
	}
	if d.Tenants == nil {
		d.Tenants = NewTenantService(d.DB, TenantDefaults{}, d.Log)
	}
	if d.Notifier == nil {
		d.Notifier = notify.NewLogNotifier(d.Log)
	}
	if d.Recorder == nil {
		d.Recorder = activity.NewRecorder(nil, d.Metrics, d.Log)
	}
	return &InvoiceService{
		db:       d.DB,
		tenants:  d.Tenants,
		recorder: d.Recorder,
		notifier: d.Notifier,
		gateway:  d.Gateway,
		locker:   d.Locker,
		metrics:  d.Metrics,
		log:      d.Log,
		now:      d.Now,
	}
}

// View is an invoice as readers see it: overdue and late fee are derived at read time.
type View struct {
	models.Invoice
	EffectiveStatus models.InvoiceStatus
	LateFeeDue      decimal.Decimal
	Outstanding     decimal.Decimal
	// Money is the precision of the invoice currency, Base that of the tenant base currency.
	Money invoice.Currency
	Base  invoice.Currency
}

func (s *InvoiceService) view(inv models.Invoice, p profile, now time.Time) View {
	cur := p.currency(inv.Currency)
	return View{
		Invoice:         inv,
		EffectiveStatus: invoice.EffectiveStatus(inv, now),
		LateFeeDue:      invoice.LateFee(inv, cur, now),
		Outstanding:     inv.Outstanding(),
		Money:           cur,
		Base:            p.pricer.Base,
	}
}

// LineItemInput is one requested line.
type LineItemInput struct {
	Description  string
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	TaxRate      decimal.Decimal
	DiscountRate decimal.Decimal
}

// RecurrenceInput makes the invoice a recurring template.
type RecurrenceInput struct {
	Frequency      models.Frequency
	StartDate      *time.Time
	EndDate        *time.Time
	MaxOccurrences *int
}

// InvoiceInput is the body of create and update requests. Zero values fall back to
// tenant defaults.
type InvoiceInput struct {
	ContactID      uint
	IssueDate      *time.Time
	DueDate        *time.Time
	PaymentTerms   models.PaymentTerms
	CustomTermDays *int
	Currency       string
	ExchangeRate   *decimal.Decimal
	TaxInclusive   bool
	TaxType        models.TaxType
	Notes          string
	Terms          string
	LineItems      []LineItemInput
	Recurrence     *RecurrenceInput
	LateFee        *models.LateFeeRule
	// Version, when set on update, must match the stored version.
	Version *int
}

// Decimal places of the stored columns. Inputs with more places are rejected so
// totals recomputed from stored rows match the stored totals.
const (
	amountScale       = 4
	exchangeRateScale = 8
)

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// build validates in and turns it into a priced invoice without identity.
func (s *InvoiceService) build(ctx context.Context, tenantID string, in InvoiceInput, p profile) (models.Invoice, *models.RecurrenceRule, error) {
	v := validation.Violations{}

	if in.ContactID == 0 {
		v["contact_id"] = validation.CodeRequired
	} else {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Contact{}).
			Where("tenant_id = ? AND id = ?", tenantID, in.ContactID).Count(&count).Error; err != nil {
			return models.Invoice{}, nil, &invoice.PersistenceError{Op: "resolve contact", Err: err}
		}
		if count == 0 {
			v["contact_id"] = validation.CodeUnresolved
		}
	}

	inv := models.Invoice{
		TenantID:      tenantID,
		ContactID:     in.ContactID,
		PaymentTerms:  in.PaymentTerms,
		Currency:      strings.ToUpper(strings.TrimSpace(in.Currency)),
		TaxInclusive:  in.TaxInclusive,
		TaxType:       in.TaxType,
		Status:        models.InvoiceStatusDraft,
		PaymentStatus: models.PaymentStatusPending,
		AmountPaid:    decimal.Zero,
		Notes:         in.Notes,
		Terms:         in.Terms,
		Version:       1,
	}
	if inv.PaymentTerms == "" {
		inv.PaymentTerms = p.paymentTerms
	}
	if !inv.PaymentTerms.Valid() {
		v["payment_terms"] = validation.CodeInvalid
	}
	if inv.TaxType == "" {
		inv.TaxType = p.taxType
	}
	if !inv.TaxType.Valid() {
		v["tax_type"] = validation.CodeInvalid
	}
	if inv.Currency == "" {
		inv.Currency = p.pricer.Base.Code
	}
	if len(inv.Currency) != 3 {
		v["currency"] = validation.CodeInvalid
	}
	inv.ExchangeRate = decimal.NewFromInt(1)
	if in.ExchangeRate != nil {
		inv.ExchangeRate = *in.ExchangeRate
		validation.MaxScale("exchange_rate", inv.ExchangeRate, exchangeRateScale, v)
	}

	inv.IssueDate = dateOnly(s.now())
	if in.IssueDate != nil {
		inv.IssueDate = dateOnly(*in.IssueDate)
	}
	switch {
	case in.DueDate != nil:
		inv.DueDate = dateOnly(*in.DueDate)
		if inv.DueDate.Before(inv.IssueDate) {
			v["due_date"] = validation.CodeInvalid
		}
		if inv.PaymentTerms == models.PaymentTermsCustom {
			inv.CustomTermDays = int(inv.DueDate.Sub(inv.IssueDate).Hours() / 24)
		}
	case inv.PaymentTerms == models.PaymentTermsCustom:
		if in.CustomTermDays == nil {
			v["custom_term_days"] = validation.CodeRequired
		} else if *in.CustomTermDays < 0 {
			v["custom_term_days"] = validation.CodeMustNotBeNegative
		} else {
			inv.CustomTermDays = *in.CustomTermDays
		}
		inv.DueDate = inv.PaymentTerms.DueDate(inv.IssueDate, inv.CustomTermDays)
	default:
		inv.DueDate = inv.PaymentTerms.DueDate(inv.IssueDate, 0)
	}

	if in.LateFee != nil && in.LateFee.Kind != models.LateFeeNone {
		lf := *in.LateFee
		switch lf.Kind {
		case models.LateFeeFixed:
			validation.NonNegativeDecimal("late_fee.amount", lf.Amount, v)
		case models.LateFeePercentage:
			validation.RangeDecimal("late_fee.amount", lf.Amount, decimal.Zero, decimal.NewFromInt(100), v)
		default:
			v["late_fee.kind"] = validation.CodeInvalid
		}
		if lf.GraceDays < 0 {
			v["late_fee.grace_days"] = validation.CodeMustNotBeNegative
		}
		validation.MaxScale("late_fee.amount", lf.Amount, amountScale, v)
		inv.LateFee = lf
	}

	inv.LineItems = make([]models.LineItem, len(in.LineItems))
	for i, li := range in.LineItems {
		inv.LineItems[i] = models.LineItem{
			Description:  strings.TrimSpace(li.Description),
			Quantity:     li.Quantity,
			UnitPrice:    li.UnitPrice,
			TaxRate:      li.TaxRate,
			DiscountRate: li.DiscountRate,
			Position:     i,
		}
	}
	lines := invoice.LinesFromItems(inv.LineItems)
	v.Merge("", invoice.ValidateLines(lines))
	v.Merge("", invoice.ValidateDescriptions(lines))
	for i, l := range lines {
		lv := validation.Violations{}
		validation.MaxScale("quantity", l.Quantity, amountScale, lv)
		validation.MaxScale("unit_price", l.UnitPrice, amountScale, lv)
		validation.MaxScale("tax_rate", l.TaxRate, amountScale, lv)
		validation.MaxScale("discount_rate", l.DiscountRate, amountScale, lv)
		for f, code := range lv {
			field := validation.Indexed("line_items", i, f)
			if _, taken := v[field]; !taken {
				v[field] = code
			}
		}
	}

	var rule *models.RecurrenceRule
	if in.Recurrence != nil {
		rule = buildRule(*in.Recurrence, inv.IssueDate, v)
	}

	if err := invoice.NewValidationError(v); err != nil {
		return models.Invoice{}, nil, err
	}
	priced, err := p.pricer.Price(inv)
	if err != nil {
		return models.Invoice{}, nil, err
	}
	return priced, rule, nil
}

func buildRule(in RecurrenceInput, issue time.Time, v validation.Violations) *models.RecurrenceRule {
	rule := &models.RecurrenceRule{
		Frequency:      in.Frequency,
		EndDate:        in.EndDate,
		MaxOccurrences: in.MaxOccurrences,
		Active:         true,
		Version:        1,
	}
	if !in.Frequency.Valid() {
		v["recurrence.frequency"] = validation.CodeInvalid
		return rule
	}
	// The template covers the issue period; the first generated invoice is one step later.
	rule.StartDate = invoice.OccurrenceDate(models.RecurrenceRule{Frequency: in.Frequency, StartDate: issue}, 1)
	if in.StartDate != nil {
		rule.StartDate = dateOnly(*in.StartDate)
	}
	if in.EndDate != nil {
		end := dateOnly(*in.EndDate)
		rule.EndDate = &end
		if end.Before(rule.StartDate) {
			v["recurrence.end_date"] = validation.CodeInvalid
		}
	}
	if in.MaxOccurrences != nil && *in.MaxOccurrences <= 0 {
		v["recurrence.max_occurrences"] = validation.CodeMustBePositive
	}
	return rule
}

// Create validates, prices and stores a new draft invoice.
func (s *InvoiceService) Create(ctx context.Context, tenantID string, in InvoiceInput) (View, error) {
	p, err := s.tenants.profile(ctx, tenantID)
	if err != nil {
		return View{}, err
	}
	inv, rule, err := s.build(ctx, tenantID, in, p)
	if err != nil {
		return View{}, err
	}

	var records []models.ActivityRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := models.GenerateInvoiceNumber(tx, tenantID, inv.IssueDate.Year())
		if err != nil {
			return err
		}
		inv.Number = number
		inv.Recurrence = rule
		if err := tx.Create(&inv).Error; err != nil {
			return err
		}
		rec, err := s.recorder.Record(ctx, tx, inv, models.ActivityInvoiceCreated,
			fmt.Sprintf("invoice %s created", inv.Number),
			map[string]any{"number": inv.Number, "total": p.currency(inv.Currency).Format(inv.TotalAmount)})
		if err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return View{}, &invoice.PersistenceError{Op: "create invoice", Err: err}
	}
	s.recorder.Emit(ctx, records...)
	s.log.Info().Str("tenant_id", tenantID).Uint("invoice_id", inv.ID).Str("number", inv.Number).Msg("invoice created")
	return s.view(inv, p, s.now()), nil
}

// Update replaces the content of a draft invoice, line items and recurrence included.
func (s *InvoiceService) Update(ctx context.Context, tenantID string, id uint, in InvoiceInput) (View, error) {
	current, err := s.load(ctx, s.db, tenantID, id)
	if err != nil {
		return View{}, err
	}
	if !current.CanEdit() {
		return View{}, invoice.ErrNotDraft
	}
	if in.Version != nil && *in.Version != current.Version {
		return View{}, &invoice.PersistenceError{Op: "update invoice", Err: invoice.ErrConcurrentUpdate}
	}
	if in.IssueDate == nil {
		in.IssueDate = &current.IssueDate
	}
	p, err := s.tenants.profile(ctx, tenantID)
	if err != nil {
		return View{}, err
	}
	next, rule, err := s.build(ctx, tenantID, in, p)
	if err != nil {
		return View{}, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.Number = current.Number
	next.TemplateID = current.TemplateID

	saved, err := s.commit(ctx, "update invoice", current, next,
		[]pendingActivity{{typ: models.ActivityInvoiceUpdated, desc: "invoice updated",
			payload: map[string]any{"total": p.currency(next.Currency).Format(next.TotalAmount)}}},
		func(tx *gorm.DB) error {
			if err := tx.Where("invoice_id = ?", current.ID).Delete(&models.LineItem{}).Error; err != nil {
				return err
			}
			for i := range next.LineItems {
				next.LineItems[i].InvoiceID = current.ID
			}
			if len(next.LineItems) > 0 {
				if err := tx.Create(&next.LineItems).Error; err != nil {
					return err
				}
			}
			return replaceRule(tx, current, rule)
		})
	if err != nil {
		return View{}, err
	}
	saved.LineItems = next.LineItems
	saved.Recurrence = rule
	return s.view(saved, p, s.now()), nil
}

// replaceRule keeps the progress of an existing rule when only its settings change.
func replaceRule(tx *gorm.DB, current models.Invoice, rule *models.RecurrenceRule) error {
	if rule == nil {
		return tx.Where("invoice_id = ?", current.ID).Delete(&models.RecurrenceRule{}).Error
	}
	rule.InvoiceID = current.ID
	if old := current.Recurrence; old != nil {
		rule.ID = old.ID
		rule.CreatedAt = old.CreatedAt
		rule.OccurrenceCount = old.OccurrenceCount
		rule.LastGeneratedDate = old.LastGeneratedDate
		rule.Version = old.Version + 1
		res := tx.Model(&models.RecurrenceRule{}).Where("id = ? AND version = ?", old.ID, old.Version).
			Updates(map[string]any{
				"frequency":       rule.Frequency,
				"start_date":      rule.StartDate,
				"end_date":        rule.EndDate,
				"max_occurrences": rule.MaxOccurrences,
				"active":          true,
				"version":         rule.Version,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return invoice.ErrConcurrentUpdate
		}
		return nil
	}
	return tx.Create(rule).Error
}

// Delete removes a draft. Issued invoices are kept for audit.
func (s *InvoiceService) Delete(ctx context.Context, tenantID string, id uint) error {
	current, err := s.load(ctx, s.db, tenantID, id)
	if err != nil {
		return err
	}
	if !current.IsDraft() {
		return invoice.ErrNotDraft
	}

	var records []models.ActivityRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invoice_id = ?", id).Delete(&models.LineItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("invoice_id = ?", id).Delete(&models.RecurrenceRule{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ? AND version = ?", id, current.Version).Delete(&models.Invoice{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return invoice.ErrConcurrentUpdate
		}
		rec, err := s.recorder.Record(ctx, tx, current, models.ActivityInvoiceDeleted,
			fmt.Sprintf("draft %s deleted", current.Number), map[string]any{"number": current.Number})
		if err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return &invoice.PersistenceError{Op: "delete invoice", Err: err}
	}
	s.recorder.Emit(ctx, records...)
	return nil
}

// Get returns one invoice with its derived status.
func (s *InvoiceService) Get(ctx context.Context, tenantID string, id uint) (View, error) {
	inv, err := s.load(ctx, s.db, tenantID, id)
	if err != nil {
		return View{}, err
	}
	p, err := s.tenants.profile(ctx, tenantID)
	if err != nil {
		return View{}, err
	}
	return s.view(inv, p, s.now()), nil
}

// ListFilter narrows List. Status matches the effective status, overdue included.
type ListFilter struct {
	Status    models.InvoiceStatus
	ContactID uint
	Limit     int
	Offset    int
}

func (s *InvoiceService) List(ctx context.Context, tenantID string, f ListFilter) ([]View, error) {
	// Stored timestamps are UTC; sqlite compares them as text.
	now := s.now().UTC()
	q := s.db.WithContext(ctx).Model(&models.Invoice{}).Where("tenant_id = ?", tenantID)
	issued := []models.InvoiceStatus{models.InvoiceStatusSent, models.InvoiceStatusPartiallyPaid}
	switch f.Status {
	case "":
	case models.InvoiceStatusOverdue:
		q = q.Where("status IN ? AND due_date < ? AND payment_status <> ?", issued, now, models.PaymentStatusPaid)
	case models.InvoiceStatusSent, models.InvoiceStatusPartiallyPaid:
		q = q.Where("status = ? AND (due_date >= ? OR payment_status = ?)", f.Status, now, models.PaymentStatusPaid)
	default:
		q = q.Where("status = ?", f.Status)
	}
	if f.ContactID != 0 {
		q = q.Where("contact_id = ?", f.ContactID)
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var invoices []models.Invoice
	err := q.Preload("LineItems", orderLines).Preload("Recurrence").
		Order("issue_date DESC, id DESC").Limit(limit).Offset(f.Offset).
		Find(&invoices).Error
	if err != nil {
		return nil, &invoice.PersistenceError{Op: "list invoices", Err: err}
	}

	p, err := s.tenants.profile(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]View, len(invoices))
	for i, inv := range invoices {
		out[i] = s.view(inv, p, now)
	}
	return out, nil
}

// Activity returns the audit trail of an invoice.
func (s *InvoiceService) Activity(ctx context.Context, tenantID string, id uint) ([]models.ActivityRecord, error) {
	if _, err := s.load(ctx, s.db, tenantID, id); err != nil {
		return nil, err
	}
	recs, err := activity.List(ctx, s.db, tenantID, id)
	if err != nil {
		return nil, &invoice.PersistenceError{Op: "list activity", Err: err}
	}
	return recs, nil
}

func orderLines(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC, id ASC")
}

func (s *InvoiceService) load(ctx context.Context, db *gorm.DB, tenantID string, id uint) (models.Invoice, error) {
	var inv models.Invoice
	err := db.WithContext(ctx).
		Preload("LineItems", orderLines).
		Preload("Recurrence").
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return inv, invoice.ErrNotFound
	}
	if err != nil {
		return inv, &invoice.PersistenceError{Op: "load invoice", Err: err}
	}
	return inv, nil
}

// pendingActivity is an activity record to write with a mutation.
type pendingActivity struct {
	typ     models.ActivityType
	desc    string
	payload map[string]any
}

func statusActivity(prev, next models.Invoice, detail string) pendingActivity {
	desc := fmt.Sprintf("status changed from %s to %s", prev.Status, next.Status)
	if detail != "" {
		desc += ": " + detail
	}
	return pendingActivity{
		typ:     models.ActivityStatusChanged,
		desc:    desc,
		payload: map[string]any{"from": string(prev.Status), "to": string(next.Status)},
	}
}

// commit persists next over prev in one transaction: version check, optional extra
// writes and the activity records. Events are emitted only after commit.
func (s *InvoiceService) commit(ctx context.Context, op string, prev, next models.Invoice, acts []pendingActivity, extra func(tx *gorm.DB) error) (models.Invoice, error) {
	var records []models.ActivityRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockRow(tx, &models.Invoice{}, prev.ID); err != nil {
			return err
		}
		res := tx.Model(&models.Invoice{}).
			Where("id = ? AND version = ?", prev.ID, prev.Version).
			Updates(invoiceColumns(next, prev.Version+1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return invoice.ErrConcurrentUpdate
		}
		if extra != nil {
			if err := extra(tx); err != nil {
				return err
			}
		}
		for _, a := range acts {
			rec, err := s.recorder.Record(ctx, tx, next, a.typ, a.desc, a.payload)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return prev, &invoice.PersistenceError{Op: op, Err: err}
	}

	next.Version = prev.Version + 1
	if prev.Status != next.Status {
		s.metrics.IncTransition(string(prev.Status), string(next.Status))
	}
	s.recorder.Emit(ctx, records...)
	return next, nil
}

// lockRow takes a row lock on postgres. sqlite serializes writers on its own.
func lockRow(tx *gorm.DB, model any, id uint) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").Where("id = ?", id).Take(model).Error
}

func invoiceColumns(inv models.Invoice, version int) map[string]any {
	return map[string]any{
		"contact_id":          inv.ContactID,
		"issue_date":          inv.IssueDate,
		"due_date":            inv.DueDate,
		"payment_terms":       inv.PaymentTerms,
		"custom_term_days":    inv.CustomTermDays,
		"currency":            inv.Currency,
		"exchange_rate":       inv.ExchangeRate,
		"tax_inclusive":       inv.TaxInclusive,
		"tax_type":            inv.TaxType,
		"status":              inv.Status,
		"payment_status":      inv.PaymentStatus,
		"subtotal":            inv.Subtotal,
		"discount_amount":     inv.DiscountAmount,
		"tax_amount":          inv.TaxAmount,
		"total_amount":        inv.TotalAmount,
		"base_total_amount":   inv.BaseTotalAmount,
		"amount_paid":         inv.AmountPaid,
		"notes":               inv.Notes,
		"terms":               inv.Terms,
		"scheduled_send_at":   inv.ScheduledSendAt,
		"email_sent_at":       inv.EmailSentAt,
		"paid_at":             inv.PaidAt,
		"cancelled_at":        inv.CancelledAt,
		"late_fee_kind":       inv.LateFee.Kind,
		"late_fee_amount":     inv.LateFee.Amount,
		"late_fee_grace_days": inv.LateFee.GraceDays,
		"version":             version,
	}
}
