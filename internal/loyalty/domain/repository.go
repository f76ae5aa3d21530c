package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindByCustomer(ctx context.Context, db *gorm.DB, customerID string) (*Account, error)
	Save(ctx context.Context, db *gorm.DB, account *Account) error

	LoadSettings(ctx context.Context, db *gorm.DB) (*Settings, error)
	SaveSettings(ctx context.Context, db *gorm.DB, settings *Settings) error
}
