package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/countercore/tally/internal/audit/domain"
	"github.com/countercore/tally/internal/clock"
	"github.com/countercore/tally/internal/config"
	"github.com/countercore/tally/internal/loyalty/domain"
	"github.com/countercore/tally/internal/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Cfg      config.Config
	Repo     domain.Repository
	AuditSvc auditdomain.Service
	Metrics  *telemetry.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.Config
	repo     domain.Repository
	auditSvc auditdomain.Service
	metrics  *telemetry.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("loyalty.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Cfg,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *Service) Accrue(ctx context.Context, customerID string, n int64) (domain.Balance, error) {
	if n <= 0 {
		s.metrics.ObserveLoyaltyMutation("accrue", "rejected")
		return domain.Balance{}, domain.ErrInvalidPoints
	}
	balance, err := s.mutate(ctx, customerID, "loyalty.accrue", func(points int64) (int64, error) {
		return points + n, nil
	})
	s.metrics.ObserveLoyaltyMutation("accrue", statusOf(err))
	return balance, err
}

func (s *Service) Redeem(ctx context.Context, customerID string, n int64) (domain.Balance, error) {
	if n <= 0 {
		s.metrics.ObserveLoyaltyMutation("redeem", "rejected")
		return domain.Balance{}, domain.ErrInvalidPoints
	}
	balance, err := s.mutate(ctx, customerID, "loyalty.redeem", func(points int64) (int64, error) {
		if n > points {
			return points, domain.ErrInsufficientPoints
		}
		return points - n, nil
	})
	s.metrics.ObserveLoyaltyMutation("redeem", statusOf(err))
	return balance, err
}

func (s *Service) Reset(ctx context.Context, customerID string) (domain.Balance, error) {
	balance, err := s.mutate(ctx, customerID, "loyalty.reset", func(int64) (int64, error) {
		return 0, nil
	})
	s.metrics.ObserveLoyaltyMutation("reset", statusOf(err))
	return balance, err
}

func (s *Service) GetBalance(ctx context.Context, customerID string) (domain.Balance, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Balance{}, domain.ErrInvalidCustomer
	}

	settings, err := s.GetSettings(ctx)
	if err != nil {
		return domain.Balance{}, err
	}

	account, err := s.repo.FindByCustomer(ctx, s.db, customerID)
	if err != nil {
		return domain.Balance{}, err
	}

	var points int64
	if account != nil {
		points = account.Points
	}
	return s.balanceOf(customerID, points, settings), nil
}

func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	settings, err := s.repo.LoadSettings(ctx, s.db)
	if err != nil {
		return domain.Settings{}, err
	}
	if settings == nil {
		return domain.Settings{
			SilverThreshold:   s.cfg.Loyalty.SilverThreshold,
			GoldThreshold:     s.cfg.Loyalty.GoldThreshold,
			PlatinumThreshold: s.cfg.Loyalty.PlatinumThreshold,
			RedeemValue:       s.cfg.Loyalty.RedeemValue,
		}, nil
	}
	return *settings, nil
}

func (s *Service) UpdateSettings(ctx context.Context, req domain.UpdateSettingsRequest) (domain.Settings, error) {
	if req.SilverThreshold <= 0 ||
		req.GoldThreshold <= req.SilverThreshold ||
		req.PlatinumThreshold <= req.GoldThreshold ||
		req.RedeemValue <= 0 {
		return domain.Settings{}, domain.ErrInvalidThresholds
	}

	current, err := s.repo.LoadSettings(ctx, s.db)
	if err != nil {
		return domain.Settings{}, err
	}

	settings := domain.Settings{
		SilverThreshold:   req.SilverThreshold,
		GoldThreshold:     req.GoldThreshold,
		PlatinumThreshold: req.PlatinumThreshold,
		RedeemValue:       req.RedeemValue,
		UpdatedAt:         s.clock.Now(),
	}
	if current != nil {
		settings.ID = current.ID
	} else {
		settings.ID = s.genID.Generate()
	}

	if err := s.repo.SaveSettings(ctx, s.db, &settings); err != nil {
		return domain.Settings{}, err
	}
	return settings, nil
}

// mutate re-reads the stored points and the thresholds, applies the
// operation and writes back the full (points, tier) pair in one
// transaction.
func (s *Service) mutate(ctx context.Context, customerID, action string, op func(points int64) (int64, error)) (domain.Balance, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Balance{}, domain.ErrInvalidCustomer
	}

	settings, err := s.GetSettings(ctx)
	if err != nil {
		return domain.Balance{}, err
	}

	var result domain.Balance
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.repo.FindByCustomer(ctx, tx, customerID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if account == nil {
			account = &domain.Account{
				ID:         s.genID.Generate(),
				CustomerID: customerID,
				CreatedAt:  now,
			}
		}

		next, err := op(account.Points)
		if err != nil {
			return err
		}

		account.Points = next
		account.Tier = domain.DeriveTier(next, settings)
		account.UpdatedAt = now
		if err := s.repo.Save(ctx, tx, account); err != nil {
			return err
		}

		result = s.balanceOf(customerID, next, settings)
		return nil
	})
	if err != nil {
		return domain.Balance{}, err
	}

	if auditErr := s.auditSvc.AuditLog(ctx, "", action, "loyalty_account", customerID, map[string]any{
		"points": result.Points,
		"tier":   string(result.Tier),
	}); auditErr != nil {
		s.log.Warn("audit sink rejected loyalty entry",
			zap.String("customer_id", customerID),
			zap.Error(auditErr),
		)
	}

	return result, nil
}

func (s *Service) balanceOf(customerID string, points int64, settings domain.Settings) domain.Balance {
	return domain.Balance{
		CustomerID:      customerID,
		Points:          points,
		Tier:            domain.DeriveTier(points, settings),
		RedeemableValue: domain.RedeemableValue(points, settings.RedeemValue),
	}
}

func statusOf(err error) string {
	if err != nil {
		return "rejected"
	}
	return "ok"
}
