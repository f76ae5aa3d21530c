package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/countercore/tally/internal/order/domain"
	"gorm.io/datatypes"
)

// Invoice is the permanent record of a confirmed sale. The number and
// total here are authoritative; callers display these, not their locally
// computed values.
type Invoice struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	Number         string            `gorm:"not null;uniqueIndex" json:"number"`
	CustomerID     string            `json:"customer_id"`
	BillingMode    string            `gorm:"not null" json:"billing_mode"`
	Method         string            `gorm:"not null" json:"method"`
	Subtotal       int64             `gorm:"not null" json:"subtotal"`
	DiscountAmount int64             `gorm:"not null;default:0" json:"discount_amount"`
	TaxAmount      int64             `gorm:"not null;default:0" json:"tax_amount"`
	Total          int64             `gorm:"not null" json:"total"`
	PaidAmount     int64             `gorm:"not null" json:"paid_amount"`
	Lines          datatypes.JSON    `gorm:"type:jsonb" json:"lines"`
	PaymentDetail  datatypes.JSONMap `gorm:"type:jsonb" json:"payment_detail,omitempty"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// SubmitRequest is a finalized checkout handed to the service of record.
type SubmitRequest struct {
	CustomerID     string
	BillingMode    orderdomain.BillingMode
	Lines          []orderdomain.LineItem
	Method         string
	Subtotal       int64
	DiscountAmount int64
	TaxAmount      int64
	Total          int64
	PaidAmount     int64
	PaymentDetail  map[string]any
}

type Service interface {
	// Submit persists the finalized sale and returns the authoritative
	// invoice. Synchronous; the caller must not assume success before it
	// returns.
	Submit(ctx context.Context, req SubmitRequest) (Invoice, error)
	GetByNumber(ctx context.Context, number string) (Invoice, error)
}

var (
	ErrInvalidSubmission = errors.New("invalid_submission")
	ErrNotFound          = errors.New("invoice_not_found")
)
