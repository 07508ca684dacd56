package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/diewo77/invoice-engine/internal/activity"
	"github.com/diewo77/invoice-engine/internal/config"
	"github.com/diewo77/invoice-engine/internal/db"
	"github.com/diewo77/invoice-engine/internal/events"
	"github.com/diewo77/invoice-engine/internal/lock"
	"github.com/diewo77/invoice-engine/internal/models"
	"github.com/diewo77/invoice-engine/internal/notify"
	"github.com/diewo77/invoice-engine/internal/payment"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const tenant = "acme"

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (c *capturePublisher) Publish(ctx context.Context, e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, e)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func (c *capturePublisher) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (f *fakeNotifier) InvoiceSent(ctx context.Context, msg notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time  { return c.t }
func (c *clock) set(t time.Time) { c.t = t }

type fixture struct {
	db        *gorm.DB
	svc       *InvoiceService
	contacts  *ContactService
	tenants   *TenantService
	publisher *capturePublisher
	notifier  *fakeNotifier
	gateway   *payment.FakeGateway
	clock     *clock
	contact   models.Contact
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.DatabaseConfig{Driver: "sqlite", Path: fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())}
	gdb, err := db.Open(cfg, false, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gdb))

	f := &fixture{
		db:        gdb,
		publisher: &capturePublisher{},
		notifier:  &fakeNotifier{},
		gateway:   payment.NewFakeGateway("http://pay.test"),
		clock:     &clock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)},
	}
	f.tenants = NewTenantService(gdb, TenantDefaults{BaseCurrency: "USD"}, zerolog.Nop())
	f.contacts = NewContactService(gdb)
	f.svc = NewInvoiceService(Deps{
		DB:       gdb,
		Tenants:  f.tenants,
		Recorder: activity.NewRecorder(f.publisher, nil, zerolog.Nop()),
		Notifier: f.notifier,
		Gateway:  f.gateway,
		Locker:   lock.NewKeyedMutex(),
		Log:      zerolog.Nop(),
		Now:      f.clock.now,
	})

	f.contact, err = f.contacts.Create(context.Background(), tenant, models.Contact{Name: "Globex", Email: "billing@globex.test"})
	require.NoError(t, err)
	return f
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f *fixture) input() InvoiceInput {
	return InvoiceInput{
		ContactID:    f.contact.ID,
		PaymentTerms: models.PaymentTermsNet30,
		Currency:     "USD",
		LineItems: []LineItemInput{
			{Description: "Consulting", Quantity: d("2"), UnitPrice: d("50"), TaxRate: d("10")},
			{Description: "Support", Quantity: d("1"), UnitPrice: d("20"), DiscountRate: d("50")},
		},
	}
}

func (f *fixture) create(t *testing.T) View {
	t.Helper()
	v, err := f.svc.Create(context.Background(), tenant, f.input())
	require.NoError(t, err)
	return v
}

func (f *fixture) activityTypes(t *testing.T, id uint) []models.ActivityType {
	t.Helper()
	recs, err := f.svc.Activity(context.Background(), tenant, id)
	require.NoError(t, err)
	out := make([]models.ActivityType, len(recs))
	for i, r := range recs {
		out[i] = r.Type
	}
	return out
}

func date(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func intPtr(i int) *int { return &i }

var errBoom = errors.New("boom")
