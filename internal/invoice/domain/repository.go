package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByNumber(ctx context.Context, db *gorm.DB, number string) (*Invoice, error)
}
