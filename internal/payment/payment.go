// Package payment delegates payment collection to an external gateway.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("payment amount must be positive")
	ErrProviderDown  = errors.New("payment provider unavailable")
	ErrRejected      = errors.New("payment provider rejected the request")
)

// Request asks the gateway for a payment intent covering an invoice balance.
type Request struct {
	InvoiceID uint
	TenantID  string
	Number    string
	Amount    decimal.Decimal
	Currency  string
	// MinorUnits converts Amount to the integer amount providers expect.
	MinorUnits int32
	// IdempotencyKey makes a retried request return the same intent.
	IdempotencyKey string
}

// MinorAmount returns the amount in the currency's smallest unit, e.g. cents.
func (r Request) MinorAmount() int64 {
	return r.Amount.Shift(r.MinorUnits).Round(0).IntPart()
}

// Intent is the opaque reference returned by the provider.
type Intent struct {
	Provider     string
	Reference    string
	URL          string
	ClientSecret string
}

// Gateway creates payment intents.
type Gateway interface {
	CreateIntent(ctx context.Context, req Request) (Intent, error)
}

// FakeGateway issues local references. It backs development and tests.
type FakeGateway struct {
	BaseURL string
	Err     error

	mu       sync.Mutex
	requests []Request
	byKey    map[string]Intent
}

func NewFakeGateway(baseURL string) *FakeGateway {
	return &FakeGateway{BaseURL: baseURL, byKey: map[string]Intent{}}
}

func (f *FakeGateway) CreateIntent(ctx context.Context, req Request) (Intent, error) {
	if f.Err != nil {
		return Intent{}, f.Err
	}
	if !req.Amount.IsPositive() {
		return Intent{}, ErrInvalidAmount
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byKey == nil {
		f.byKey = map[string]Intent{}
	}
	f.requests = append(f.requests, req)
	if in, ok := f.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return in, nil
	}
	ref := "fake_pi_" + uuid.NewString()
	in := Intent{
		Provider:  "fake",
		Reference: ref,
		URL:       fmt.Sprintf("%s/pay/%s", f.BaseURL, ref),
	}
	f.byKey[req.IdempotencyKey] = in
	return in, nil
}

// Requests returns every request received so far.
func (f *FakeGateway) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}
