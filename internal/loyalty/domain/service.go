package domain

import (
	"context"
	"errors"
)

// Balance is the result of every ledger mutation: the new points total,
// the tier derived from it, and its redeemable value in minor currency
// units.
type Balance struct {
	CustomerID      string `json:"customer_id"`
	Points          int64  `json:"points"`
	Tier            Tier   `json:"tier"`
	RedeemableValue int64  `json:"redeemable_value"`
}

type Service interface {
	// Accrue adds n > 0 points and returns the new balance.
	Accrue(ctx context.Context, customerID string, n int64) (Balance, error)
	// Redeem removes n points, valid iff 0 < n <= points; the balance is
	// left untouched on rejection.
	Redeem(ctx context.Context, customerID string, n int64) (Balance, error)
	// Reset zeroes the balance.
	Reset(ctx context.Context, customerID string) (Balance, error)
	GetBalance(ctx context.Context, customerID string) (Balance, error)

	GetSettings(ctx context.Context) (Settings, error)
	UpdateSettings(ctx context.Context, req UpdateSettingsRequest) (Settings, error)
}

type UpdateSettingsRequest struct {
	SilverThreshold   int64
	GoldThreshold     int64
	PlatinumThreshold int64
	RedeemValue       int64
}

var (
	ErrInvalidCustomer    = errors.New("invalid_customer")
	ErrInvalidPoints      = errors.New("invalid_points")
	ErrInsufficientPoints = errors.New("insufficient_points")
	ErrInvalidThresholds  = errors.New("invalid_thresholds")
)
