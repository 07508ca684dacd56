package services

import (
	"context"
	"errors"
	"strings"

	"github.com/diewo77/invoice-engine/internal/invoice"
	"github.com/diewo77/invoice-engine/internal/models"
	"github.com/diewo77/invoice-engine/validation"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// TenantDefaults apply to tenants without stored settings.
type TenantDefaults struct {
	BaseCurrency string
	Currencies   invoice.CurrencyTable
	PaymentTerms models.PaymentTerms
	TaxType      models.TaxType
}

// profile is the resolved invoicing configuration of one tenant.
type profile struct {
	pricer       invoice.Pricer
	paymentTerms models.PaymentTerms
	taxType      models.TaxType
}

func (p profile) currency(code string) invoice.Currency {
	return p.pricer.CurrencyFor(code)
}

// TenantService manages per-tenant invoicing settings.
type TenantService struct {
	db       *gorm.DB
	defaults TenantDefaults
	log      zerolog.Logger
}

func NewTenantService(db *gorm.DB, defaults TenantDefaults, log zerolog.Logger) *TenantService {
	if defaults.BaseCurrency == "" {
		defaults.BaseCurrency = invoice.DefaultCurrency.Code
	}
	if defaults.PaymentTerms == "" {
		defaults.PaymentTerms = models.PaymentTermsNet30
	}
	if defaults.TaxType == "" {
		defaults.TaxType = models.TaxTypeNone
	}
	return &TenantService{db: db, defaults: defaults, log: log}
}

// Get returns the stored settings or the defaults when none were saved.
func (s *TenantService) Get(ctx context.Context, tenantID string) (models.TenantSettings, error) {
	var settings models.TenantSettings
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.TenantSettings{
			TenantID:            tenantID,
			BaseCurrency:        s.defaults.BaseCurrency,
			DefaultPaymentTerms: s.defaults.PaymentTerms,
			DefaultTaxType:      s.defaults.TaxType,
		}, nil
	}
	if err != nil {
		return models.TenantSettings{}, &invoice.PersistenceError{Op: "load tenant settings", Err: err}
	}
	return settings, nil
}

// Save validates and upserts the settings of tenantID.
func (s *TenantService) Save(ctx context.Context, tenantID string, in models.TenantSettings) (models.TenantSettings, error) {
	in.BaseCurrency = strings.ToUpper(strings.TrimSpace(in.BaseCurrency))
	v := validation.Violations{}
	validation.Required("name", in.Name, v)
	if len(in.BaseCurrency) != 3 {
		v["base_currency"] = validation.CodeInvalid
	}
	if in.DefaultPaymentTerms == "" {
		in.DefaultPaymentTerms = s.defaults.PaymentTerms
	} else if !in.DefaultPaymentTerms.Valid() || in.DefaultPaymentTerms == models.PaymentTermsCustom {
		v["default_payment_terms"] = validation.CodeInvalid
	}
	if in.DefaultTaxType == "" {
		in.DefaultTaxType = s.defaults.TaxType
	} else if !in.DefaultTaxType.Valid() {
		v["default_tax_type"] = validation.CodeInvalid
	}
	if _, err := invoice.ParseCurrencyTable(in.CurrencyPrecision); err != nil {
		v["currency_precision"] = validation.CodeInvalid
	}
	if err := invoice.NewValidationError(v); err != nil {
		return models.TenantSettings{}, err
	}

	existing, err := s.Get(ctx, tenantID)
	if err != nil {
		return models.TenantSettings{}, err
	}
	in.ID = existing.ID
	in.CreatedAt = existing.CreatedAt
	in.TenantID = tenantID
	if err := s.db.WithContext(ctx).Save(&in).Error; err != nil {
		return models.TenantSettings{}, &invoice.PersistenceError{Op: "save tenant settings", Err: err}
	}
	return in, nil
}

func (s *TenantService) profile(ctx context.Context, tenantID string) (profile, error) {
	settings, err := s.Get(ctx, tenantID)
	if err != nil {
		return profile{}, err
	}
	table := invoice.CurrencyTable{}
	for code, units := range s.defaults.Currencies {
		table[code] = units
	}
	if settings.CurrencyPrecision != "" {
		own, err := invoice.ParseCurrencyTable(settings.CurrencyPrecision)
		if err != nil {
			s.log.Warn().Err(err).Str("tenant_id", tenantID).Msg("ignoring invalid currency precision")
		}
		for code, units := range own {
			table[code] = units
		}
	}
	return profile{
		pricer:       invoice.Pricer{Currencies: table, Base: table.Lookup(settings.BaseCurrency)},
		paymentTerms: settings.DefaultPaymentTerms,
		taxType:      settings.DefaultTaxType,
	}, nil
}
