package repository

import (
	"context"
	"strings"

	"github.com/countercore/tally/internal/loyalty/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByCustomer(ctx context.Context, db *gorm.DB, customerID string) (*domain.Account, error) {
	var account domain.Account
	err := db.WithContext(ctx).
		Where("customer_id = ?", strings.TrimSpace(customerID)).
		First(&account).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, account *domain.Account) error {
	return db.WithContext(ctx).Save(account).Error
}

func (r *repo) LoadSettings(ctx context.Context, db *gorm.DB) (*domain.Settings, error) {
	var settings domain.Settings
	err := db.WithContext(ctx).
		Order("id asc").
		First(&settings).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *repo) SaveSettings(ctx context.Context, db *gorm.DB, settings *domain.Settings) error {
	return db.WithContext(ctx).Save(settings).Error
}
