package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/countercore/tally/internal/clock"
	"github.com/countercore/tally/internal/invoice/domain"
	"github.com/countercore/tally/internal/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Metrics *telemetry.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	metrics *telemetry.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("invoice.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *Service) Submit(ctx context.Context, req domain.SubmitRequest) (domain.Invoice, error) {
	if len(req.Lines) == 0 || req.Method == "" {
		return domain.Invoice{}, domain.ErrInvalidSubmission
	}
	if req.Subtotal < 0 || req.DiscountAmount < 0 || req.Total < 0 || req.PaidAmount < 0 {
		return domain.Invoice{}, domain.ErrInvalidSubmission
	}
	if req.DiscountAmount > req.Subtotal {
		return domain.Invoice{}, domain.ErrInvalidSubmission
	}

	lines, err := json.Marshal(req.Lines)
	if err != nil {
		return domain.Invoice{}, domain.ErrInvalidSubmission
	}

	detail := datatypes.JSONMap{}
	for key, value := range req.PaymentDetail {
		if key == "" {
			continue
		}
		detail[key] = value
	}

	id := s.genID.Generate()
	invoice := domain.Invoice{
		ID:             id,
		Number:         fmt.Sprintf("INV-%d", id),
		CustomerID:     strings.TrimSpace(req.CustomerID),
		BillingMode:    string(req.BillingMode),
		Method:         req.Method,
		Subtotal:       req.Subtotal,
		DiscountAmount: req.DiscountAmount,
		TaxAmount:      req.TaxAmount,
		// The record of truth recomputes the total rather than trusting
		// the caller's arithmetic.
		Total:         req.Subtotal - req.DiscountAmount + req.TaxAmount,
		PaidAmount:    req.PaidAmount,
		Lines:         datatypes.JSON(lines),
		PaymentDetail: detail,
		CreatedAt:     s.clock.Now(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.Insert(ctx, tx, &invoice)
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	s.metrics.ObserveInvoiceAmount(float64(invoice.Total))
	s.log.Info("invoice recorded",
		zap.String("number", invoice.Number),
		zap.String("method", invoice.Method),
		zap.Int64("total", invoice.Total),
	)
	return invoice, nil
}

func (s *Service) GetByNumber(ctx context.Context, number string) (domain.Invoice, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return domain.Invoice{}, domain.ErrNotFound
	}
	invoice, err := s.repo.FindByNumber(ctx, s.db, number)
	if err != nil {
		return domain.Invoice{}, err
	}
	if invoice == nil {
		return domain.Invoice{}, domain.ErrNotFound
	}
	return *invoice, nil
}
