package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Tier string

const (
	TierBronze   Tier = "Bronze"
	TierSilver   Tier = "Silver"
	TierGold     Tier = "Gold"
	TierPlatinum Tier = "Platinum"
)

// Account holds a customer's loyalty balance. Tier is always recomputed
// from points against the current thresholds, never stored independently
// of that derivation.
type Account struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	CustomerID string       `gorm:"not null;uniqueIndex" json:"customer_id"`
	Points     int64        `gorm:"not null;default:0" json:"points"`
	Tier       Tier         `gorm:"not null;default:'Bronze'" json:"tier"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// Settings holds the owner-configurable tier thresholds and the
// points-per-currency-unit redemption ratio. Re-read before every
// derivation, not cached across a session.
type Settings struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	SilverThreshold   int64        `gorm:"not null" json:"silver_threshold"`
	GoldThreshold     int64        `gorm:"not null" json:"gold_threshold"`
	PlatinumThreshold int64        `gorm:"not null" json:"platinum_threshold"`
	RedeemValue       int64        `gorm:"not null" json:"redeem_value"`
	UpdatedAt         time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// DeriveTier classifies points against the thresholds, highest first.
func DeriveTier(points int64, settings Settings) Tier {
	switch {
	case points >= settings.PlatinumThreshold:
		return TierPlatinum
	case points >= settings.GoldThreshold:
		return TierGold
	case points >= settings.SilverThreshold:
		return TierSilver
	default:
		return TierBronze
	}
}

// RedeemableValue converts points into minor currency units of discount:
// floor(points / redeem_value x 100). Pure display/redemption computation.
func RedeemableValue(points int64, redeemValue int64) int64 {
	if redeemValue <= 0 {
		return 0
	}
	return points * 100 / redeemValue
}
