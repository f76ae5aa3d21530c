package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/countercore/tally/internal/audit/domain"
	"github.com/countercore/tally/internal/clock"
	"github.com/countercore/tally/internal/discount/domain"
	"github.com/countercore/tally/internal/telemetry"
	"github.com/countercore/tally/pkg/db"
	"github.com/countercore/tally/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	AuditSvc auditdomain.Service
	Metrics  *telemetry.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	auditSvc auditdomain.Service
	metrics  *telemetry.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("discount.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *Service) Evaluate(ctx context.Context, req domain.EvaluateRequest) (domain.Evaluation, error) {
	candidate, policy, err := s.resolveCandidate(ctx, req.RuleCode, req.Manual)
	if err != nil {
		s.metrics.ObserveDiscountDecision("rejected")
		return domain.Evaluation{}, err
	}

	eval, err := domain.EvaluateCandidate(candidate, req.Subtotal, policy, s.clock.Now())
	if err != nil {
		s.metrics.ObserveDiscountDecision("rejected")
		return domain.Evaluation{}, err
	}

	if eval.PendingApproval {
		s.metrics.ObserveDiscountDecision("pending")
	} else {
		s.metrics.ObserveDiscountDecision("applied")
	}
	return eval, nil
}

func (s *Service) Commit(ctx context.Context, req domain.CommitRequest) (domain.Application, error) {
	invoiceRef := strings.TrimSpace(req.InvoiceRef)
	if invoiceRef == "" {
		return domain.Application{}, domain.ErrInvalidInvoiceRef
	}
	actorID := strings.TrimSpace(req.ActorID)
	if actorID == "" {
		return domain.Application{}, domain.ErrInvalidActor
	}

	var eval domain.Evaluation
	if req.Granted != nil {
		// The evaluation the register already showed; it is persisted as
		// granted even if the rule or policy changed since.
		if req.Granted.RuleCode == "" || req.Granted.Amount < 0 {
			return domain.Application{}, domain.ErrInvalidCandidate
		}
		eval = *req.Granted
	} else {
		candidate, policy, err := s.resolveCandidate(ctx, req.RuleCode, req.Manual)
		if err != nil {
			return domain.Application{}, err
		}
		eval, err = domain.EvaluateCandidate(candidate, req.Subtotal, policy, s.clock.Now())
		if err != nil {
			return domain.Application{}, err
		}
	}

	approvedBy := strings.TrimSpace(req.ApprovedBy)
	if eval.PendingApproval && (approvedBy == "" || approvedBy == actorID) {
		return domain.Application{}, domain.ErrApprovalRequired
	}

	app := domain.Application{
		ID:             s.genID.Generate(),
		RuleCode:       eval.RuleCode,
		InvoiceRef:     invoiceRef,
		ActorID:        actorID,
		ApprovedBy:     approvedBy,
		Amount:         eval.Amount,
		PreClampAmount: eval.PreClampAmount,
		Clamped:        eval.Clamped,
		Metadata: datatypes.JSONMap{
			"subtotal":      req.Subtotal,
			"tax_treatment": string(eval.TaxTreatment),
		},
		CreatedAt: s.clock.Now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindApplicationByInvoiceRef(ctx, tx, invoiceRef)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrDuplicateApplication
		}
		return s.repo.InsertApplication(ctx, tx, &app)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Application{}, domain.ErrDuplicateApplication
		}
		return domain.Application{}, err
	}

	// Sink failure must not roll back a committed discount.
	if auditErr := s.auditSvc.AuditLog(ctx, actorID, "discount.commit", "invoice", invoiceRef, map[string]any{
		"rule_code":        app.RuleCode,
		"amount":           app.Amount,
		"pre_clamp_amount": app.PreClampAmount,
		"clamped":          app.Clamped,
	}); auditErr != nil {
		s.log.Warn("audit sink rejected discount commit entry",
			zap.String("invoice_ref", invoiceRef),
			zap.Error(auditErr),
		)
	}

	return app, nil
}

func (s *Service) CreateRule(ctx context.Context, req domain.CreateRuleRequest) (domain.Rule, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" || code == domain.ManualRuleCode {
		return domain.Rule{}, domain.ErrInvalidRuleCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Rule{}, domain.ErrInvalidRuleName
	}
	if req.Type != domain.RuleTypePercentage && req.Type != domain.RuleTypeFlat {
		return domain.Rule{}, domain.ErrInvalidRuleType
	}
	if req.Value <= 0 {
		return domain.Rule{}, domain.ErrInvalidRuleValue
	}
	if req.MinOrderValue < 0 {
		return domain.Rule{}, domain.ErrInvalidRuleValue
	}
	if req.MaxDiscountValue != nil && (req.Type != domain.RuleTypePercentage || *req.MaxDiscountValue <= 0) {
		return domain.Rule{}, domain.ErrInvalidRuleValue
	}
	if req.ValidFrom.IsZero() || req.ValidTo.IsZero() || req.ValidTo.Before(req.ValidFrom) {
		return domain.Rule{}, domain.ErrInvalidValidityWindow
	}

	appliesTo := req.AppliesTo
	if appliesTo == "" {
		appliesTo = domain.AppliesToBill
	}
	if appliesTo != domain.AppliesToBill && appliesTo != domain.AppliesToItem {
		return domain.Rule{}, domain.ErrInvalidRuleValue
	}

	now := s.clock.Now()
	rule := domain.Rule{
		ID:               s.genID.Generate(),
		Code:             code,
		Name:             name,
		Type:             req.Type,
		Value:            req.Value,
		AppliesTo:        appliesTo,
		MinOrderValue:    req.MinOrderValue,
		MaxDiscountValue: req.MaxDiscountValue,
		ValidFrom:        req.ValidFrom.UTC(),
		ValidTo:          req.ValidTo.UTC(),
		IsActive:         req.IsActive,
		RequiresApproval: req.RequiresApproval,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.InsertRule(ctx, s.db, &rule); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Rule{}, domain.ErrRuleExists
		}
		return domain.Rule{}, err
	}
	return rule, nil
}

func (s *Service) ListRules(ctx context.Context, req domain.ListRulesRequest) (domain.ListRulesResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.ListRules(ctx, s.db, domain.ListRulesFilter{ActiveOnly: req.ActiveOnly}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListRulesResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(rule *domain.Rule) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        rule.ID.String(),
			CreatedAt: rule.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	rules := make([]domain.Rule, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		rules = append(rules, *item)
	}

	resp := domain.ListRulesResponse{Rules: rules}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) GetRuleByCode(ctx context.Context, code string) (domain.Rule, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Rule{}, domain.ErrInvalidRuleCode
	}
	rule, err := s.repo.FindRuleByCode(ctx, s.db, code)
	if err != nil {
		return domain.Rule{}, err
	}
	if rule == nil {
		return domain.Rule{}, domain.ErrRuleNotFound
	}
	return *rule, nil
}

func (s *Service) GetPolicy(ctx context.Context) (domain.Policy, error) {
	policy, err := s.repo.LoadPolicy(ctx, s.db)
	if err != nil {
		return domain.Policy{}, err
	}
	if policy == nil {
		return s.defaultPolicy(), nil
	}
	return *policy, nil
}

func (s *Service) UpdatePolicy(ctx context.Context, req domain.UpdatePolicyRequest) (domain.Policy, error) {
	if req.MaxDiscountPercentage < 0 || req.MaxDiscountPercentage > 100 {
		return domain.Policy{}, domain.ErrInvalidRuleValue
	}
	if req.MaxDiscountAmount < 0 {
		return domain.Policy{}, domain.ErrInvalidRuleValue
	}
	switch req.AllowedDiscountLevel {
	case domain.DiscountLevelItemOnly, domain.DiscountLevelBillOnly, domain.DiscountLevelBoth:
	default:
		return domain.Policy{}, domain.ErrDiscountLevelNotAllowed
	}
	switch req.DiscountTaxConfig {
	case domain.TaxTreatmentBeforeTax, domain.TaxTreatmentAfterTax:
	default:
		return domain.Policy{}, domain.ErrInvalidRuleValue
	}

	current, err := s.repo.LoadPolicy(ctx, s.db)
	if err != nil {
		return domain.Policy{}, err
	}

	policy := domain.Policy{
		EnableDiscounts:       req.EnableDiscounts,
		AllowPercentDiscount:  req.AllowPercentDiscount,
		AllowFlatDiscount:     req.AllowFlatDiscount,
		MaxDiscountPercentage: req.MaxDiscountPercentage,
		MaxDiscountAmount:     req.MaxDiscountAmount,
		AllowedDiscountLevel:  req.AllowedDiscountLevel,
		DiscountTaxConfig:     req.DiscountTaxConfig,
		UpdatedAt:             s.clock.Now(),
	}
	if current != nil {
		policy.ID = current.ID
	} else {
		policy.ID = s.genID.Generate()
	}

	if err := s.repo.SavePolicy(ctx, s.db, &policy); err != nil {
		return domain.Policy{}, err
	}
	return policy, nil
}

// resolveCandidate turns a promo code or a manual override into a rule to
// run through the pipeline, along with the policy for this session.
func (s *Service) resolveCandidate(ctx context.Context, ruleCode string, manual *domain.ManualDiscount) (domain.Rule, domain.Policy, error) {
	ruleCode = strings.TrimSpace(ruleCode)
	if (ruleCode == "") == (manual == nil) {
		return domain.Rule{}, domain.Policy{}, domain.ErrInvalidCandidate
	}

	policy, err := s.GetPolicy(ctx)
	if err != nil {
		return domain.Rule{}, domain.Policy{}, err
	}

	if manual != nil {
		if manual.Value <= 0 {
			return domain.Rule{}, domain.Policy{}, domain.ErrInvalidRuleValue
		}
		return domain.ManualCandidate(*manual, s.clock.Now()), policy, nil
	}

	rule, err := s.repo.FindRuleByCode(ctx, s.db, ruleCode)
	if err != nil {
		return domain.Rule{}, domain.Policy{}, err
	}
	if rule == nil {
		return domain.Rule{}, domain.Policy{}, domain.ErrRuleNotFound
	}
	return *rule, policy, nil
}

func (s *Service) defaultPolicy() domain.Policy {
	return domain.Policy{
		EnableDiscounts:       true,
		AllowPercentDiscount:  true,
		AllowFlatDiscount:     true,
		MaxDiscountPercentage: 100,
		AllowedDiscountLevel:  domain.DiscountLevelBoth,
		DiscountTaxConfig:     domain.TaxTreatmentBeforeTax,
	}
}
