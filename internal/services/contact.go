package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/diewo77/invoice-engine/internal/invoice"
	"github.com/diewo77/invoice-engine/internal/models"
	"github.com/diewo77/invoice-engine/validation"
	"gorm.io/gorm"
)

// ContactService manages the parties invoices are addressed to.
type ContactService struct {
	db *gorm.DB
}

func NewContactService(db *gorm.DB) *ContactService {
	return &ContactService{db: db}
}

func validateContact(c models.Contact) error {
	v := validation.Violations{}
	validation.Required("name", c.Name, v)
	if c.Email != "" {
		if _, err := mail.ParseAddress(c.Email); err != nil {
			v["email"] = validation.CodeInvalid
		}
	}
	return invoice.NewValidationError(v)
}

func (s *ContactService) Create(ctx context.Context, tenantID string, c models.Contact) (models.Contact, error) {
	c.Email = strings.TrimSpace(c.Email)
	if err := validateContact(c); err != nil {
		return models.Contact{}, err
	}
	c.ID = 0
	c.TenantID = tenantID
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		return models.Contact{}, &invoice.PersistenceError{Op: "create contact", Err: err}
	}
	return c, nil
}

func (s *ContactService) Get(ctx context.Context, tenantID string, id uint) (models.Contact, error) {
	var c models.Contact
	err := s.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c, invoice.ErrNotFound
	}
	if err != nil {
		return c, &invoice.PersistenceError{Op: "load contact", Err: err}
	}
	return c, nil
}

func (s *ContactService) List(ctx context.Context, tenantID string) ([]models.Contact, error) {
	var out []models.Contact
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("name ASC").Find(&out).Error; err != nil {
		return nil, &invoice.PersistenceError{Op: "list contacts", Err: err}
	}
	return out, nil
}

func (s *ContactService) Update(ctx context.Context, tenantID string, id uint, in models.Contact) (models.Contact, error) {
	existing, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return models.Contact{}, err
	}
	in.Email = strings.TrimSpace(in.Email)
	if err := validateContact(in); err != nil {
		return models.Contact{}, err
	}
	in.ID = existing.ID
	in.TenantID = tenantID
	in.CreatedAt = existing.CreatedAt
	if err := s.db.WithContext(ctx).Save(&in).Error; err != nil {
		return models.Contact{}, &invoice.PersistenceError{Op: "update contact", Err: err}
	}
	return in, nil
}
