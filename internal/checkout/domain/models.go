package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/countercore/tally/internal/order/domain"
)

type Status string

const (
	StatusSelecting  Status = "selecting"
	StatusCollecting Status = "collecting"
	StatusConfirmed  Status = "confirmed"
	StatusFailed     Status = "failed"
)

// AllowedTransitions defines the valid state transitions. failed may
// return to collecting for a retry; confirmed is terminal.
var AllowedTransitions = map[Status][]Status{
	StatusSelecting:  {StatusCollecting},
	StatusCollecting: {StatusCollecting, StatusConfirmed, StatusFailed},
	StatusFailed:     {StatusCollecting},
	StatusConfirmed:  {},
}

// CanTransition checks if a transition from one status to another is
// allowed.
func CanTransition(from, to Status) bool {
	allowed, exists := AllowedTransitions[from]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

type Method string

const (
	MethodCash  Method = "cash"
	MethodCard  Method = "card"
	MethodUPI   Method = "upi"
	MethodSplit Method = "split"
)

type UPIMode string

const (
	UPIModeID UPIMode = "id"
	UPIModeQR UPIMode = "qr"
)

// SplitTolerance is the one-currency-unit rounding tolerance on a split
// payment, in minor units.
const SplitTolerance = 100

type CashDetails struct {
	AmountReceived int64 `json:"amount_received"`
	ChangeDue      int64 `json:"change_due"`
}

// Valid reports whether the received amount covers the total due.
func (d CashDetails) Valid(totalDue int64) bool {
	return d.AmountReceived >= totalDue
}

type CardDetails struct {
	// Reference is optional but recorded when present.
	Reference string `json:"reference,omitempty"`
}

type UPIDetails struct {
	Mode  UPIMode `json:"mode"`
	UPIID string  `json:"upi_id,omitempty"`
}

// Valid requires a UPI id in id mode; QR mode is treated as externally
// verified.
func (d UPIDetails) Valid() bool {
	if d.Mode == UPIModeQR {
		return true
	}
	return d.Mode == UPIModeID && d.UPIID != ""
}

type SplitDetails struct {
	CashPart int64 `json:"cash_part"`
	UPIPart  int64 `json:"upi_part"`
}

// Recompute derives the UPI part from the cash part: total minus cash,
// clamped to zero when the cash part exceeds the total.
func (d SplitDetails) Recompute(totalDue int64) SplitDetails {
	upi := totalDue - d.CashPart
	if upi < 0 {
		upi = 0
	}
	return SplitDetails{CashPart: d.CashPart, UPIPart: upi}
}

// Valid allows confirmation only when the parts sum to the total within
// the rounding tolerance.
func (d SplitDetails) Valid(totalDue int64) bool {
	diff := d.CashPart + d.UPIPart - totalDue
	if diff < 0 {
		diff = -diff
	}
	return diff <= SplitTolerance
}

// Transaction is the in-progress checkout. TotalDue is fixed before
// payment begins and read-only thereafter; the transaction is discarded
// on cancellation and becomes a permanent invoice only once the service
// of record accepts it.
type Transaction struct {
	ID            snowflake.ID         `json:"id"`
	Order         orderdomain.Snapshot `json:"order"`
	Subtotal      int64                `json:"subtotal"`
	Discount      int64                `json:"discount"`
	Tax           int64                `json:"tax"`
	TotalDue      int64                `json:"total_due"`
	Status        Status               `json:"status"`
	Method        Method               `json:"method,omitempty"`
	Cash          *CashDetails         `json:"cash,omitempty"`
	Card          *CardDetails         `json:"card,omitempty"`
	UPI           *UPIDetails          `json:"upi,omitempty"`
	Split         *SplitDetails        `json:"split,omitempty"`
	FailureReason string               `json:"failure_reason,omitempty"`
	InvoiceNumber string               `json:"invoice_number,omitempty"`
	InvoiceTotal  int64                `json:"invoice_total,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// CollectingValid runs the method-specific validation for the current
// inputs.
func (t *Transaction) CollectingValid() bool {
	switch t.Method {
	case MethodCash:
		return t.Cash != nil && t.Cash.Valid(t.TotalDue)
	case MethodCard:
		return t.Card != nil
	case MethodUPI:
		return t.UPI != nil && t.UPI.Valid()
	case MethodSplit:
		return t.Split != nil && t.Split.Valid(t.TotalDue)
	default:
		return false
	}
}
