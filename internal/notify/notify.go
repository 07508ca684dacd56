// Package notify delivers the "invoice sent" notification to the invoice contact.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/diewo77/invoice-engine/internal/models"
	"github.com/rs/zerolog"
)

// Message is what a notifier delivers when an invoice is sent.
type Message struct {
	TenantID  string `json:"tenant_id"`
	InvoiceID uint   `json:"invoice_id"`
	Number    string `json:"number"`
	To        string `json:"to"`
	Name      string `json:"name"`
	Address   string `json:"address,omitempty"`
	Total     string `json:"total"`
	Currency  string `json:"currency"`
	DueDate   string `json:"due_date"`
}

// NewMessage builds the notification for inv addressed to contact.
func NewMessage(inv models.Invoice, contact models.Contact, total string) Message {
	return Message{
		TenantID:  inv.TenantID,
		InvoiceID: inv.ID,
		Number:    inv.Number,
		To:        contact.Email,
		Name:      contact.Name,
		Address:   contact.FullAddress(),
		Total:     total,
		Currency:  inv.Currency,
		DueDate:   inv.DueDate.Format(time.DateOnly),
	}
}

// Notifier delivers invoice notifications.
type Notifier interface {
	InvoiceSent(ctx context.Context, msg Message) error
}

// LogNotifier only logs. Real email delivery happens outside this service.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) InvoiceSent(ctx context.Context, msg Message) error {
	n.log.Info().
		Uint("invoice_id", msg.InvoiceID).
		Str("number", msg.Number).
		Str("total", msg.Total+" "+msg.Currency).
		Msg("invoice notification dispatched")
	return nil
}

// WebhookNotifier posts the message as JSON to a mailer service.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{url: url, client: &http.Client{Timeout: timeout}}
}

func (n *WebhookNotifier) InvoiceSent(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", fmt.Sprintf("invoice-sent-%s-%d", msg.TenantID, msg.InvoiceID))

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}
