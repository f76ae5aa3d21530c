package domain

import (
	"context"
	"errors"

	discountdomain "github.com/countercore/tally/internal/discount/domain"
	invoicedomain "github.com/countercore/tally/internal/invoice/domain"
	orderdomain "github.com/countercore/tally/internal/order/domain"
)

// Submitter is the invoicing collaborator boundary: it accepts a
// finalized transaction and returns the authoritative invoice.
type Submitter interface {
	Submit(ctx context.Context, req invoicedomain.SubmitRequest) (invoicedomain.Invoice, error)
}

// BeginRequest opens a checkout session from an order snapshot, with an
// optional discount candidate resolved against the session policy.
type BeginRequest struct {
	CustomerID  string
	BillingMode orderdomain.BillingMode
	Lines       []orderdomain.LineItem
	RuleCode    string
	Manual      *discountdomain.ManualDiscount
	ActorID     string
	ApprovedBy  string
}

type UpdateCashRequest struct {
	ID             string
	AmountReceived int64
}

type UpdateCardRequest struct {
	ID        string
	Reference string
}

type UpdateUPIRequest struct {
	ID    string
	Mode  UPIMode
	UPIID string
}

// UpdateSplitRequest edits the split parts. When UPIPart is nil the UPI
// part auto-recomputes from the cash part.
type UpdateSplitRequest struct {
	ID       string
	CashPart int64
	UPIPart  *int64
}

// Receipt is what the register shows after a confirmed checkout. Number
// and Total come from the service of record, not from local arithmetic.
type Receipt struct {
	InvoiceNumber string `json:"invoice_number"`
	Total         int64  `json:"total"`
	Method        Method `json:"method"`
	ChangeDue     int64  `json:"change_due,omitempty"`
}

type Service interface {
	Begin(ctx context.Context, req BeginRequest) (Transaction, error)
	SelectMethod(ctx context.Context, id string, method Method) (Transaction, error)
	UpdateCash(ctx context.Context, req UpdateCashRequest) (Transaction, error)
	UpdateCard(ctx context.Context, req UpdateCardRequest) (Transaction, error)
	UpdateUPI(ctx context.Context, req UpdateUPIRequest) (Transaction, error)
	UpdateSplit(ctx context.Context, req UpdateSplitRequest) (Transaction, error)
	// Confirm submits to the invoicing collaborator and transitions to
	// confirmed only on its synchronous success. Confirm signals arriving
	// while a submission is in flight are dropped.
	Confirm(ctx context.Context, id string) (Receipt, error)
	// Cancel discards the transaction with no side effect.
	Cancel(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (Transaction, error)
}

var (
	ErrNotFound           = errors.New("checkout_not_found")
	ErrInvalidID          = errors.New("invalid_checkout_id")
	ErrInvalidMethod      = errors.New("invalid_method")
	ErrInvalidTransition  = errors.New("invalid_transition")
	ErrNoMethodSelected   = errors.New("no_method_selected")
	ErrMethodMismatch     = errors.New("method_mismatch")
	ErrPaymentInvalid     = errors.New("payment_invalid")
	ErrAlreadyConfirmed   = errors.New("already_confirmed")
	ErrConfirmInFlight    = errors.New("confirm_in_flight")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidUPI         = errors.New("invalid_upi")
	ErrSubmitFailed       = errors.New("submit_failed")
)
