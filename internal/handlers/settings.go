package handlers

import (
	"net/http"

	"github.com/diewo77/invoice-engine/httpx"
	"github.com/diewo77/invoice-engine/internal/models"
	"github.com/diewo77/invoice-engine/internal/services"
	"github.com/rs/zerolog"
)

// SettingsHandler exposes the tenant's issuer identity and invoicing defaults.
type SettingsHandler struct {
	svc *services.TenantService
	log zerolog.Logger
}

func NewSettingsHandler(svc *services.TenantService, log zerolog.Logger) *SettingsHandler {
	return &SettingsHandler{svc: svc, log: log}
}

type settingsRequest struct {
	Name                string              `json:"name"`
	Email               string              `json:"email"`
	Phone               string              `json:"phone"`
	Website             string              `json:"website"`
	Address             string              `json:"address"`
	City                string              `json:"city"`
	PostalCode          string              `json:"postal_code"`
	Country             string              `json:"country"`
	TaxNumber           string              `json:"tax_number"`
	BaseCurrency        string              `json:"base_currency"`
	DefaultPaymentTerms models.PaymentTerms `json:"default_payment_terms"`
	DefaultTaxType      models.TaxType      `json:"default_tax_type"`
	CurrencyPrecision   string              `json:"currency_precision"`
}

// Get: GET /settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	s, err := h.svc.Get(r.Context(), tenantID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

// Update: PUT /settings
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	var req settingsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	s, err := h.svc.Save(r.Context(), tenantID, models.TenantSettings{
		Name:                req.Name,
		Email:               req.Email,
		Phone:               req.Phone,
		Website:             req.Website,
		Address:             req.Address,
		City:                req.City,
		PostalCode:          req.PostalCode,
		Country:             req.Country,
		TaxNumber:           req.TaxNumber,
		BaseCurrency:        req.BaseCurrency,
		DefaultPaymentTerms: req.DefaultPaymentTerms,
		DefaultTaxType:      req.DefaultTaxType,
		CurrencyPrecision:   req.CurrencyPrecision,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}
