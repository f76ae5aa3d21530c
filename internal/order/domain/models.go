package domain

import (
	"errors"
	"math"
)

// BillingMode selects whether GST is added on top of the order subtotal.
type BillingMode string

const (
	BillingModeWithGST    BillingMode = "with_gst"
	BillingModeWithoutGST BillingMode = "without_gst"
)

var (
	ErrEmptyOrder          = errors.New("empty_order")
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrInvalidUnitPrice    = errors.New("invalid_unit_price")
	ErrInvalidLineDiscount = errors.New("invalid_line_discount")
	ErrInvalidBillingMode  = errors.New("invalid_billing_mode")
)

// LineItem is one ordered product line. Amounts are minor currency units.
type LineItem struct {
	ProductID    string `json:"product_id"`
	Name         string `json:"name"`
	Quantity     int64  `json:"quantity"`
	UnitPrice    int64  `json:"unit_price"`
	LineDiscount int64  `json:"line_discount"`
}

// Snapshot is the immutable input to checkout. It is created once when
// checkout begins; adjustments (discount, tax) derive new totals rather
// than mutating it.
type Snapshot struct {
	CustomerID  string      `json:"customer_id"`
	BillingMode BillingMode `json:"billing_mode"`
	Lines       []LineItem  `json:"lines"`

	subtotal int64
}

// NewSnapshot validates lines and derives the subtotal.
func NewSnapshot(customerID string, mode BillingMode, lines []LineItem) (Snapshot, error) {
	if mode != BillingModeWithGST && mode != BillingModeWithoutGST {
		return Snapshot{}, ErrInvalidBillingMode
	}
	if len(lines) == 0 {
		return Snapshot{}, ErrEmptyOrder
	}

	var subtotal int64
	copied := make([]LineItem, len(lines))
	for i, line := range lines {
		if line.Quantity < 1 {
			return Snapshot{}, ErrInvalidQuantity
		}
		if line.UnitPrice < 0 {
			return Snapshot{}, ErrInvalidUnitPrice
		}
		gross := line.Quantity * line.UnitPrice
		if line.LineDiscount < 0 || line.LineDiscount > gross {
			return Snapshot{}, ErrInvalidLineDiscount
		}
		subtotal += gross - line.LineDiscount
		copied[i] = line
	}

	return Snapshot{
		CustomerID:  customerID,
		BillingMode: mode,
		Lines:       copied,
		subtotal:    subtotal,
	}, nil
}

// Subtotal is the sum of quantity x unit price minus line discounts.
func (s Snapshot) Subtotal() int64 {
	return s.subtotal
}

// Tax returns the GST amount on the given base for this snapshot's billing
// mode, rounded half away from zero.
func (s Snapshot) Tax(base int64, gstRatePercent float64) int64 {
	if s.BillingMode != BillingModeWithGST {
		return 0
	}
	return RoundMinor(float64(base) * gstRatePercent / 100)
}

// RoundMinor rounds a fractional minor-unit amount to the nearest whole
// minor unit.
func RoundMinor(v float64) int64 {
	return int64(math.Round(v))
}
