package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/countercore/tally/internal/audit/domain"
	"github.com/countercore/tally/internal/clock"
	"github.com/countercore/tally/internal/discount/domain"
	"github.com/countercore/tally/internal/discount/repository"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type auditStub struct {
	entries []string
}

func (a *auditStub) AuditLog(ctx context.Context, actorID, action, targetType, targetID string, metadata map[string]any) error {
	a.entries = append(a.entries, action)
	return nil
}

func (a *auditStub) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

func newTestService(t *testing.T, now time.Time) (domain.Service, *clock.FakeClock) {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, conn.AutoMigrate(&domain.Rule{}, &domain.Policy{}, &domain.Application{}))

	node, err := snowflake.NewNode(1)
	assert.NoError(t, err)

	fake := clock.NewFakeClock(now)
	svc := New(Params{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fake,
		Repo:     repository.Provide(),
		AuditSvc: &auditStub{},
	})
	return svc, fake
}

func seedRule(t *testing.T, svc domain.Service, now time.Time, mutate func(*domain.CreateRuleRequest)) domain.Rule {
	t.Helper()

	req := domain.CreateRuleRequest{
		Code:      "FESTIVE10",
		Name:      "Festive 10",
		Type:      domain.RuleTypePercentage,
		Value:     10,
		ValidFrom: now.Add(-time.Hour),
		ValidTo:   now.Add(24 * time.Hour),
		IsActive:  true,
	}
	if mutate != nil {
		mutate(&req)
	}
	rule, err := svc.CreateRule(context.Background(), req)
	assert.NoError(t, err)
	return rule
}

func TestEvaluatePercentageWithCap(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)

	cap := int64(15000)
	seedRule(t, svc, now, func(req *domain.CreateRuleRequest) {
		req.MaxDiscountValue = &cap
	})

	eval, err := svc.Evaluate(context.Background(), domain.EvaluateRequest{
		Subtotal: 200000,
		RuleCode: "FESTIVE10",
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(15000), eval.Amount)
	assert.Equal(t, int64(20000), eval.PreClampAmount)
	assert.True(t, eval.Clamped)
}

func TestEvaluateUnknownRule(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)

	_, err := svc.Evaluate(context.Background(), domain.EvaluateRequest{
		Subtotal: 200000,
		RuleCode: "NOPE",
	})
	assert.ErrorIs(t, err, domain.ErrRuleNotFound)
}

func TestEvaluateExpiredRule(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, fake := newTestService(t, now)

	seedRule(t, svc, now, nil)
	fake.Advance(48 * time.Hour)

	_, err := svc.Evaluate(context.Background(), domain.EvaluateRequest{
		Subtotal: 200000,
		RuleCode: "FESTIVE10",
	})
	assert.ErrorIs(t, err, domain.ErrRuleNotInWindow)
}

func TestEvaluateRejectsBothOrNeitherCandidate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)
	seedRule(t, svc, now, nil)

	_, err := svc.Evaluate(context.Background(), domain.EvaluateRequest{Subtotal: 200000})
	assert.ErrorIs(t, err, domain.ErrInvalidCandidate)

	_, err = svc.Evaluate(context.Background(), domain.EvaluateRequest{
		Subtotal: 200000,
		RuleCode: "FESTIVE10",
		Manual:   &domain.ManualDiscount{Type: domain.RuleTypeFlat, Value: 5000},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCandidate)
}

func TestManualOverrideBoundByPolicyCaps(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)

	_, err := svc.UpdatePolicy(context.Background(), domain.UpdatePolicyRequest{
		EnableDiscounts:       true,
		AllowPercentDiscount:  true,
		AllowFlatDiscount:     true,
		MaxDiscountPercentage: 100,
		MaxDiscountAmount:     7500,
		AllowedDiscountLevel:  domain.DiscountLevelBoth,
		DiscountTaxConfig:     domain.TaxTreatmentBeforeTax,
	})
	assert.NoError(t, err)

	eval, err := svc.Evaluate(context.Background(), domain.EvaluateRequest{
		Subtotal: 200000,
		Manual:   &domain.ManualDiscount{Type: domain.RuleTypeFlat, Value: 30000},
	})
	assert.NoError(t, err)
	assert.Equal(t, domain.ManualRuleCode, eval.RuleCode)
	assert.Equal(t, int64(7500), eval.Amount)
	assert.True(t, eval.Clamped)
}

func TestCommitWritesApplicationOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)
	seedRule(t, svc, now, nil)

	req := domain.CommitRequest{
		Subtotal:   200000,
		RuleCode:   "FESTIVE10",
		InvoiceRef: "INV-1001",
		ActorID:    "cashier-1",
	}

	app, err := svc.Commit(context.Background(), req)
	assert.NoError(t, err)
	assert.Equal(t, "FESTIVE10", app.RuleCode)
	assert.Equal(t, int64(20000), app.Amount)

	_, err = svc.Commit(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrDuplicateApplication)
}

func TestCommitGrantedSurvivesRuleExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, fake := newTestService(t, now)
	seedRule(t, svc, now, func(req *domain.CreateRuleRequest) {
		req.ValidTo = now.Add(time.Hour)
	})

	eval, err := svc.Evaluate(context.Background(), domain.EvaluateRequest{
		Subtotal: 200000,
		RuleCode: "FESTIVE10",
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(20000), eval.Amount)

	fake.Advance(2 * time.Hour)

	// Re-deriving against the now-expired rule rejects the commit.
	_, err = svc.Commit(context.Background(), domain.CommitRequest{
		Subtotal:   200000,
		RuleCode:   "FESTIVE10",
		InvoiceRef: "INV-3001",
		ActorID:    "cashier-1",
	})
	assert.ErrorIs(t, err, domain.ErrRuleNotInWindow)

	// The evaluation shown at checkout is persisted as granted.
	app, err := svc.Commit(context.Background(), domain.CommitRequest{
		Subtotal:   200000,
		InvoiceRef: "INV-3001",
		ActorID:    "cashier-1",
		Granted:    &eval,
	})
	assert.NoError(t, err)
	assert.Equal(t, "FESTIVE10", app.RuleCode)
	assert.Equal(t, int64(20000), app.Amount)
}

func TestCommitGrantedStillRequiresApproval(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)

	granted := domain.Evaluation{RuleCode: "BIGDEAL", Amount: 50000, PendingApproval: true}
	_, err := svc.Commit(context.Background(), domain.CommitRequest{
		Subtotal:   200000,
		InvoiceRef: "INV-3002",
		ActorID:    "cashier-1",
		Granted:    &granted,
	})
	assert.ErrorIs(t, err, domain.ErrApprovalRequired)

	app, err := svc.Commit(context.Background(), domain.CommitRequest{
		Subtotal:   200000,
		InvoiceRef: "INV-3002",
		ActorID:    "cashier-1",
		ApprovedBy: "manager-1",
		Granted:    &granted,
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(50000), app.Amount)
}

func TestCommitRequiresDistinctApprover(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)
	seedRule(t, svc, now, func(req *domain.CreateRuleRequest) {
		req.RequiresApproval = true
	})

	req := domain.CommitRequest{
		Subtotal:   200000,
		RuleCode:   "FESTIVE10",
		InvoiceRef: "INV-2001",
		ActorID:    "cashier-1",
	}
	_, err := svc.Commit(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrApprovalRequired)

	// Self-approval does not count.
	req.ApprovedBy = "cashier-1"
	_, err = svc.Commit(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrApprovalRequired)

	req.ApprovedBy = "manager-1"
	app, err := svc.Commit(context.Background(), req)
	assert.NoError(t, err)
	assert.Equal(t, "manager-1", app.ApprovedBy)
}

func TestCreateRuleValidation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)

	_, err := svc.CreateRule(context.Background(), domain.CreateRuleRequest{
		Code:      "MANUAL",
		Name:      "Reserved",
		Type:      domain.RuleTypeFlat,
		Value:     100,
		ValidFrom: now,
		ValidTo:   now.Add(time.Hour),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRuleCode)

	_, err = svc.CreateRule(context.Background(), domain.CreateRuleRequest{
		Code:      "BAD",
		Name:      "Bad window",
		Type:      domain.RuleTypeFlat,
		Value:     100,
		ValidFrom: now.Add(time.Hour),
		ValidTo:   now,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidValidityWindow)

	cap := int64(100)
	_, err = svc.CreateRule(context.Background(), domain.CreateRuleRequest{
		Code:             "FLATCAP",
		Name:             "Flat with cap",
		Type:             domain.RuleTypeFlat,
		Value:            100,
		MaxDiscountValue: &cap,
		ValidFrom:        now,
		ValidTo:          now.Add(time.Hour),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRuleValue)
}

func TestCreateRuleDuplicateCode(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)
	seedRule(t, svc, now, nil)

	_, err := svc.CreateRule(context.Background(), domain.CreateRuleRequest{
		Code:      "festive10",
		Name:      "Same code, lowercased",
		Type:      domain.RuleTypeFlat,
		Value:     100,
		ValidFrom: now,
		ValidTo:   now.Add(time.Hour),
		IsActive:  true,
	})
	assert.ErrorIs(t, err, domain.ErrRuleExists)
}

func TestGetPolicyDefaultsWhenUnset(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)

	policy, err := svc.GetPolicy(context.Background())
	assert.NoError(t, err)
	assert.True(t, policy.EnableDiscounts)
	assert.Equal(t, domain.DiscountLevelBoth, policy.AllowedDiscountLevel)
	assert.Equal(t, domain.TaxTreatmentBeforeTax, policy.DiscountTaxConfig)
}

func TestKillSwitchBlocksEvaluation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)
	seedRule(t, svc, now, nil)

	_, err := svc.UpdatePolicy(context.Background(), domain.UpdatePolicyRequest{
		EnableDiscounts:       false,
		AllowPercentDiscount:  true,
		AllowFlatDiscount:     true,
		MaxDiscountPercentage: 100,
		AllowedDiscountLevel:  domain.DiscountLevelBoth,
		DiscountTaxConfig:     domain.TaxTreatmentBeforeTax,
	})
	assert.NoError(t, err)

	_, err = svc.Evaluate(context.Background(), domain.EvaluateRequest{
		Subtotal: 200000,
		RuleCode: "FESTIVE10",
	})
	assert.ErrorIs(t, err, domain.ErrDiscountsDisabled)
}
