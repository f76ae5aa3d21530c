package domain

import (
	"context"

	"github.com/countercore/tally/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListRulesFilter struct {
	ActiveOnly bool
}

type Repository interface {
	InsertRule(ctx context.Context, db *gorm.DB, rule *Rule) error
	FindRuleByCode(ctx context.Context, db *gorm.DB, code string) (*Rule, error)
	ListRules(ctx context.Context, db *gorm.DB, filter ListRulesFilter, page pagination.Pagination) ([]*Rule, error)

	InsertApplication(ctx context.Context, db *gorm.DB, app *Application) error
	FindApplicationByInvoiceRef(ctx context.Context, db *gorm.DB, invoiceRef string) (*Application, error)

	LoadPolicy(ctx context.Context, db *gorm.DB) (*Policy, error)
	SavePolicy(ctx context.Context, db *gorm.DB, policy *Policy) error
}
