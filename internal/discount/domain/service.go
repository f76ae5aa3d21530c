package domain

import (
	"context"
	"errors"
	"time"

	"github.com/countercore/tally/pkg/db/pagination"
)

// EvaluateRequest carries one candidate discount against one order.
// Exactly one of RuleCode or Manual must be set. Subtotal is the order
// snapshot subtotal in minor currency units.
type EvaluateRequest struct {
	Subtotal int64
	RuleCode string
	Manual   *ManualDiscount
}

// ManualDiscount is a cashier-entered override, still bounded by the
// global policy caps.
type ManualDiscount struct {
	Type  RuleType
	Value float64
}

// Evaluation is a successful (or approval-pending) evaluation outcome.
// Amount is never negative and never exceeds the order subtotal.
type Evaluation struct {
	RuleCode        string       `json:"rule_code"`
	Amount          int64        `json:"amount"`
	PreClampAmount  int64        `json:"pre_clamp_amount"`
	Clamped         bool         `json:"clamped"`
	PendingApproval bool         `json:"pending_approval"`
	TaxTreatment    TaxTreatment `json:"tax_treatment"`
}

// CommitRequest commits an evaluated discount against an invoice
// reference. ApprovedBy must name a second actor when the rule requires
// approval. When Granted is set it is the evaluation already shown at
// checkout and is persisted as-is; rule or policy edits made after that
// evaluation do not change what was granted. Without Granted the
// candidate is re-evaluated against current rule and policy state.
type CommitRequest struct {
	Subtotal   int64
	RuleCode   string
	Manual     *ManualDiscount
	InvoiceRef string
	ActorID    string
	ApprovedBy string
	Granted    *Evaluation
}

type CreateRuleRequest struct {
	Code             string
	Name             string
	Type             RuleType
	Value            float64
	AppliesTo        AppliesTo
	MinOrderValue    int64
	MaxDiscountValue *int64
	ValidFrom        time.Time
	ValidTo          time.Time
	IsActive         bool
	RequiresApproval bool
}

type ListRulesRequest struct {
	pagination.Pagination
	ActiveOnly bool
}

type ListRulesResponse struct {
	pagination.PageInfo
	Rules []Rule `json:"rules"`
}

type UpdatePolicyRequest struct {
	EnableDiscounts       bool
	AllowPercentDiscount  bool
	AllowFlatDiscount     bool
	MaxDiscountPercentage float64
	MaxDiscountAmount     int64
	AllowedDiscountLevel  DiscountLevel
	DiscountTaxConfig     TaxTreatment
}

type Service interface {
	// Evaluate resolves the candidate and produces an applied amount or a
	// rejection. It never mutates state.
	Evaluate(ctx context.Context, req EvaluateRequest) (Evaluation, error)
	// Commit re-evaluates and writes the one immutable application record
	// for the invoice reference. A second commit against the same invoice
	// is rejected as a duplicate.
	Commit(ctx context.Context, req CommitRequest) (Application, error)

	CreateRule(ctx context.Context, req CreateRuleRequest) (Rule, error)
	ListRules(ctx context.Context, req ListRulesRequest) (ListRulesResponse, error)
	GetRuleByCode(ctx context.Context, code string) (Rule, error)

	GetPolicy(ctx context.Context) (Policy, error)
	UpdatePolicy(ctx context.Context, req UpdatePolicyRequest) (Policy, error)
}

var (
	ErrDiscountsDisabled       = errors.New("discounts_disabled")
	ErrRuleNotFound            = errors.New("rule_not_found")
	ErrRuleInactive            = errors.New("rule_inactive")
	ErrRuleNotInWindow         = errors.New("rule_not_in_window")
	ErrMinOrderValueNotMet     = errors.New("min_order_value_not_met")
	ErrRuleTypeNotAllowed      = errors.New("rule_type_not_allowed")
	ErrDiscountLevelNotAllowed = errors.New("discount_level_not_allowed")
	ErrInvalidRuleCode         = errors.New("invalid_rule_code")
	ErrInvalidRuleName         = errors.New("invalid_rule_name")
	ErrInvalidRuleType         = errors.New("invalid_rule_type")
	ErrInvalidRuleValue        = errors.New("invalid_rule_value")
	ErrInvalidValidityWindow   = errors.New("invalid_validity_window")
	ErrInvalidSubtotal         = errors.New("invalid_subtotal")
	ErrInvalidCandidate        = errors.New("invalid_candidate")
	ErrInvalidInvoiceRef       = errors.New("invalid_invoice_ref")
	ErrInvalidActor            = errors.New("invalid_actor")
	ErrApprovalRequired        = errors.New("approval_required")
	ErrDuplicateApplication    = errors.New("duplicate_application")
	ErrRuleExists              = errors.New("rule_exists")
	ErrPolicyNotFound          = errors.New("policy_not_found")
)
