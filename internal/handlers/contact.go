package handlers

import (
	"net/http"

	"github.com/diewo77/invoice-engine/httpx"
	"github.com/diewo77/invoice-engine/internal/models"
	"github.com/diewo77/invoice-engine/internal/services"
	"github.com/rs/zerolog"
)

type ContactHandler struct {
	svc *services.ContactService
	log zerolog.Logger
}

func NewContactHandler(svc *services.ContactService, log zerolog.Logger) *ContactHandler {
	return &ContactHandler{svc: svc, log: log}
}

type contactRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Company    string `json:"company"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	TaxNumber  string `json:"tax_number"`
}

func (req contactRequest) model() models.Contact {
	return models.Contact{
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		Company:    req.Company,
		Address:    req.Address,
		City:       req.City,
		PostalCode: req.PostalCode,
		Country:    req.Country,
		TaxNumber:  req.TaxNumber,
	}
}

// List: GET /contacts
func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	contacts, err := h.svc.List(r.Context(), tenantID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if contacts == nil {
		contacts = []models.Contact{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": contacts})
}

// Create: POST /contacts
func (h *ContactHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenant(w, r)
	if !ok {
		return
	}
	var req contactRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	c, err := h.svc.Create(r.Context(), tenantID, req.model())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

// Get: GET /contacts/{id}
func (h *ContactHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := tenantAndID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Get(r.Context(), tenantID, id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

// Update: PUT /contacts/{id}
func (h *ContactHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := tenantAndID(w, r)
	if !ok {
		return
	}
	var req contactRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	c, err := h.svc.Update(r.Context(), tenantID, id, req.model())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}
