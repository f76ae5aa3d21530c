package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type RuleType string

const (
	RuleTypePercentage RuleType = "percentage"
	RuleTypeFlat       RuleType = "flat"
)

type AppliesTo string

const (
	AppliesToBill AppliesTo = "bill"
	AppliesToItem AppliesTo = "item"
)

type DiscountLevel string

const (
	DiscountLevelItemOnly DiscountLevel = "ITEM_ONLY"
	DiscountLevelBillOnly DiscountLevel = "BILL_ONLY"
	DiscountLevelBoth     DiscountLevel = "BOTH"
)

type TaxTreatment string

const (
	TaxTreatmentBeforeTax TaxTreatment = "BEFORE_TAX"
	TaxTreatmentAfterTax  TaxTreatment = "AFTER_TAX"
)

// ManualRuleCode marks applications entered by a cashier override rather
// than a stored rule.
const ManualRuleCode = "MANUAL"

// Rule is a named, coded discount policy. Value is percentage points for
// percentage rules and minor currency units for flat rules. Rules never
// auto-expire in storage; the validity window is evaluated at application
// time.
type Rule struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	Code             string       `gorm:"not null;uniqueIndex" json:"code"`
	Name             string       `gorm:"not null" json:"name"`
	Type             RuleType     `gorm:"not null" json:"type"`
	Value            float64      `gorm:"not null" json:"value"`
	AppliesTo        AppliesTo    `gorm:"not null;default:'bill'" json:"applies_to"`
	MinOrderValue    int64        `gorm:"not null;default:0" json:"min_order_value"`
	MaxDiscountValue *int64       `json:"max_discount_value,omitempty"`
	ValidFrom        time.Time    `gorm:"not null" json:"valid_from"`
	ValidTo          time.Time    `gorm:"not null" json:"valid_to"`
	IsActive         bool         `gorm:"not null;default:true" json:"is_active"`
	RequiresApproval bool         `gorm:"not null;default:false" json:"requires_approval"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// Policy carries the platform-level caps that bound every rule regardless
// of its own configuration.
type Policy struct {
	ID                    snowflake.ID  `gorm:"primaryKey" json:"id"`
	EnableDiscounts       bool          `gorm:"not null;default:true" json:"enable_discounts"`
	AllowPercentDiscount  bool          `gorm:"not null;default:true" json:"allow_percent_discount"`
	AllowFlatDiscount     bool          `gorm:"not null;default:true" json:"allow_flat_discount"`
	MaxDiscountPercentage float64       `gorm:"not null;default:100" json:"max_discount_percentage"`
	MaxDiscountAmount     int64         `gorm:"not null;default:0" json:"max_discount_amount"`
	AllowedDiscountLevel  DiscountLevel `gorm:"not null;default:'BOTH'" json:"allowed_discount_level"`
	DiscountTaxConfig     TaxTreatment  `gorm:"not null;default:'BEFORE_TAX'" json:"discount_tax_config"`
	UpdatedAt             time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// Application is the immutable audit record written exactly once per
// committed discount. Rows are never updated or deleted. PreClampAmount
// records the raw computed amount so a capped grant is distinguishable
// from a full one.
type Application struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	RuleCode       string            `gorm:"not null" json:"rule_code"`
	InvoiceRef     string            `gorm:"not null;uniqueIndex" json:"invoice_ref"`
	ActorID        string            `gorm:"not null" json:"actor_id"`
	ApprovedBy     string            `json:"approved_by,omitempty"`
	Amount         int64             `gorm:"not null" json:"amount"`
	PreClampAmount int64             `gorm:"not null" json:"pre_clamp_amount"`
	Clamped        bool              `gorm:"not null;default:false" json:"clamped"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}
