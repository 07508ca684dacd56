package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/diewo77/invoice-engine/httpx"
	"github.com/diewo77/invoice-engine/internal/invoice"
	"github.com/diewo77/invoice-engine/internal/models"
	"github.com/diewo77/invoice-engine/internal/services"
	"github.com/diewo77/invoice-engine/validation"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type InvoiceHandler struct {
	svc *services.InvoiceService
	log zerolog.Logger
	now func() time.Time
}

func NewInvoiceHandler(svc *services.InvoiceService, log zerolog.Logger) *InvoiceHandler {
	return &InvoiceHandler{svc: svc, log: log, now: time.Now}
}

// Create: POST /invoices
func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	var req invoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	v, err := h.svc.Create(r.Context(), tenantID, in)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newInvoiceResponse(v))
}

// Update: PUT /invoices/{id}
func (h *InvoiceHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := tenantAndID(w, r)
	if !ok {
		return
	}
	var req invoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	in, err := req.input()
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	v, err := h.svc.Update(r.Context(), tenantID, id, in)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newInvoiceResponse(v))
}

// List: GET /invoices?status=overdue&contact_id=1&limit=50&offset=0
func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	var f services.ListFilter
	v := validation.Violations{}
	if s := q.Get("status"); s != "" {
		st, ok := models.ParseInvoiceStatus(s)
		if !ok {
			v["status"] = validation.CodeInvalid
		}
		f.Status = st
	}
	if s := q.Get("contact_id"); s != "" {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			v["contact_id"] = validation.CodeInvalid
		}
		f.ContactID = uint(id)
	}
	if s := q.Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 200 {
			f.Limit = n
		}
	}
	if s := q.Get("offset"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			f.Offset = n
		}
	}
	if err := invoice.NewValidationError(v); err != nil {
		writeError(w, h.log, err)
		return
	}

	views, err := h.svc.List(r.Context(), tenantID, f)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	items := make([]invoiceResponse, len(views))
	for i, view := range views {
		items[i] = newInvoiceResponse(view)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "limit": f.Limit, "offset": f.Offset})
}

// Get: GET /invoices/{id}
func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := tenantAndID(w, r)
	if !ok {
		return
	}
	v, err := h.svc.Get(r.Context(), tenantID, id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newInvoiceResponse(v))
}

// Delete: DELETE /invoices/{id}
func (h *InvoiceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := tenantAndID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), tenantID, id); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Activity: GET /invoices/{id}/activity
func (h *InvoiceHandler) Activity(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := tenantAndID(w, r)
	if !ok {
		return
	}
	recs, err := h.svc.Activity(r.Context(), tenantID, id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if recs == nil {
		recs = []models.ActivityRecord{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": recs})
}

// Send: POST /invoices/{id}/send
func (h *InvoiceHandler) Send(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := tenantAndID(w, r)
	if !ok {
		return
	}
	v, err := h.svc.Send(r.Context(), tenantID, id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newInvoiceResponse(v))
}

// Schedule: POST /invoices/{id}/schedule {"send_at": "2026-05-01T09:00:00Z"}
func (h *InvoiceHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := tenantAndID(w, r)
	if !ok {
		return
	}
	var req struct {
		SendAt string `json:"send_at"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	sendAt, err := time.Parse(time.RFC3339, req.SendAt)
	if err != nil {
		writeError(w, h.log, &invoice.ValidationError{Violations: validation.Violations{"send_at": validation.CodeInvalid}})
		return
	}
	v, err := h.svc.Schedule(r.Context(), tenantID, id, sendAt)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newInvoiceResponse(v))
}

// Cancel: POST /invoices/{id}/cancel
func (h *InvoiceHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := tenantAndID(w, r)
	if !ok {
		return
	}
	v, err := h.svc.Cancel(r.Context(), tenantID, id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newInvoiceResponse(v))
}

type paymentRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	Provider   string          `json:"provider"`
	Reference  string          `json:"reference"`
	ReceivedAt *time.Time      `json:"received_at"`
}

// RecordPayment: POST /invoices/{id}/payments
func (h *InvoiceHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := tenantAndID(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	v, err := h.svc.RecordPayment(r.Context(), tenantID, id, services.PaymentConfirmation{
		Amount:     req.Amount,
		Provider:   req.Provider,
		Reference:  req.Reference,
		ReceivedAt: req.ReceivedAt,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newInvoiceResponse(v))
}

// PaymentIntent: POST /invoices/{id}/payment-intent
func (h *InvoiceHandler) PaymentIntent(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := tenantAndID(w, r)
	if !ok {
		return
	}
	pi, err := h.svc.CreatePaymentIntent(r.Context(), tenantID, id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"provider":      pi.Link.Provider,
		"reference":     pi.Link.Reference,
		"url":           pi.Link.URL,
		"amount":        pi.Link.Amount.String(),
		"currency":      pi.Link.Currency,
		"client_secret": pi.ClientSecret,
	})
}

// TickRecurrence: POST /invoices/{id}/recurrence/tick, optionally {"as_of": "2026-05-01"}
func (h *InvoiceHandler) TickRecurrence(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := tenantAndID(w, r)
	if !ok {
		return
	}
	asOf := h.now()
	if r.ContentLength > 0 {
		var req struct {
			AsOf string `json:"as_of"`
		}
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
			return
		}
		v := validation.Violations{}
		if t := parseDate("as_of", req.AsOf, v); t != nil {
			asOf = *t
		}
		if err := invoice.NewValidationError(v); err != nil {
			writeError(w, h.log, err)
			return
		}
	}
	inv, err := h.svc.TickRecurrence(r.Context(), tenantID, id, asOf)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var generated *uint
	if inv != nil {
		generated = &inv.ID
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoice_id": generated})
}
