package migration

import (
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	auditdomain "github.com/countercore/tally/internal/audit/domain"
	"github.com/countercore/tally/internal/config"
	discountdomain "github.com/countercore/tally/internal/discount/domain"
	invoicedomain "github.com/countercore/tally/internal/invoice/domain"
	loyaltydomain "github.com/countercore/tally/internal/loyalty/domain"
)

// RunMigrations creates the core tables so the service is usable out of
// the box for local and self-hosted environments.
func RunMigrations(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}

	return conn.AutoMigrate(
		&discountdomain.Rule{},
		&discountdomain.Policy{},
		&discountdomain.Application{},
		&loyaltydomain.Account{},
		&loyaltydomain.Settings{},
		&invoicedomain.Invoice{},
		&auditdomain.AuditLog{},
	)
}

// EnsurePolicy seeds the singleton discount policy row when none exists.
// The defaults are fully permissive with an uncapped amount.
func EnsurePolicy(conn *gorm.DB, genID *snowflake.Node) error {
	var count int64
	if err := conn.Model(&discountdomain.Policy{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	return conn.Create(&discountdomain.Policy{
		ID:                    genID.Generate(),
		EnableDiscounts:       true,
		AllowPercentDiscount:  true,
		AllowFlatDiscount:     true,
		MaxDiscountPercentage: 100,
		MaxDiscountAmount:     0,
		AllowedDiscountLevel:  discountdomain.DiscountLevelBoth,
		DiscountTaxConfig:     discountdomain.TaxTreatmentBeforeTax,
	}).Error
}

// EnsureLoyaltySettings seeds the singleton loyalty settings row from the
// configured thresholds when none exists.
func EnsureLoyaltySettings(conn *gorm.DB, genID *snowflake.Node, cfg config.Config) error {
	var count int64
	if err := conn.Model(&loyaltydomain.Settings{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	return conn.Create(&loyaltydomain.Settings{
		ID:                genID.Generate(),
		SilverThreshold:   cfg.Loyalty.SilverThreshold,
		GoldThreshold:     cfg.Loyalty.GoldThreshold,
		PlatinumThreshold: cfg.Loyalty.PlatinumThreshold,
		RedeemValue:       cfg.Loyalty.RedeemValue,
	}).Error
}
