package db

import (
	"errors"

	"github.com/diewo77/invoice-engine/internal/models"
	"gorm.io/gorm"
)

// Seed creates development settings and a demo contact for tenant. It is idempotent.
func Seed(db *gorm.DB, tenantID, baseCurrency string) error {
	var settings models.TenantSettings
	err := db.Where("tenant_id = ?", tenantID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		settings = models.TenantSettings{
			TenantID:            tenantID,
			Name:                "Demo Company",
			BaseCurrency:        baseCurrency,
			DefaultPaymentTerms: models.PaymentTermsNet30,
			DefaultTaxType:      models.TaxTypeNone,
		}
		if err := db.Create(&settings).Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	var count int64
	if err := db.Model(&models.Contact{}).Where("tenant_id = ? AND email = ?", tenantID, "billing@example.com").Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return db.Create(&models.Contact{TenantID: tenantID, Name: "Demo Customer", Email: "billing@example.com"}).Error
	}
	return nil
}
