package repository

import (
	"context"
	"strings"

	"github.com/countercore/tally/internal/discount/domain"
	"github.com/countercore/tally/pkg/db/option"
	"github.com/countercore/tally/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertRule(ctx context.Context, db *gorm.DB, rule *domain.Rule) error {
	return db.WithContext(ctx).Create(rule).Error
}

func (r *repo) FindRuleByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Rule, error) {
	var rule domain.Rule
	err := db.WithContext(ctx).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&rule).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *repo) ListRules(ctx context.Context, db *gorm.DB, filter domain.ListRulesFilter, page pagination.Pagination) ([]*domain.Rule, error) {
	var rules []*domain.Rule
	stmt := db.WithContext(ctx).Model(&domain.Rule{})
	if filter.ActiveOnly {
		stmt = stmt.Where("is_active = ?", true)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) InsertApplication(ctx context.Context, db *gorm.DB, app *domain.Application) error {
	return db.WithContext(ctx).Create(app).Error
}

func (r *repo) FindApplicationByInvoiceRef(ctx context.Context, db *gorm.DB, invoiceRef string) (*domain.Application, error) {
	var app domain.Application
	err := db.WithContext(ctx).
		Where("invoice_ref = ?", invoiceRef).
		First(&app).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *repo) LoadPolicy(ctx context.Context, db *gorm.DB) (*domain.Policy, error) {
	var policy domain.Policy
	err := db.WithContext(ctx).
		Order("id asc").
		First(&policy).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &policy, nil
}

func (r *repo) SavePolicy(ctx context.Context, db *gorm.DB, policy *domain.Policy) error {
	return db.WithContext(ctx).Save(policy).Error
}
