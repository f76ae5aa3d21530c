package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/countercore/tally/internal/audit/domain"
	"github.com/countercore/tally/internal/checkout/domain"
	"github.com/countercore/tally/internal/clock"
	"github.com/countercore/tally/internal/config"
	discountdomain "github.com/countercore/tally/internal/discount/domain"
	invoicedomain "github.com/countercore/tally/internal/invoice/domain"
	loyaltydomain "github.com/countercore/tally/internal/loyalty/domain"
	orderdomain "github.com/countercore/tally/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type discountStub struct {
	evaluate func(req discountdomain.EvaluateRequest) (discountdomain.Evaluation, error)

	mu      sync.Mutex
	commits []discountdomain.CommitRequest
}

func (d *discountStub) Evaluate(ctx context.Context, req discountdomain.EvaluateRequest) (discountdomain.Evaluation, error) {
	if d.evaluate == nil {
		return discountdomain.Evaluation{}, discountdomain.ErrRuleNotFound
	}
	return d.evaluate(req)
}

func (d *discountStub) Commit(ctx context.Context, req discountdomain.CommitRequest) (discountdomain.Application, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commits = append(d.commits, req)
	return discountdomain.Application{InvoiceRef: req.InvoiceRef}, nil
}

func (d *discountStub) CreateRule(ctx context.Context, req discountdomain.CreateRuleRequest) (discountdomain.Rule, error) {
	return discountdomain.Rule{}, nil
}

func (d *discountStub) ListRules(ctx context.Context, req discountdomain.ListRulesRequest) (discountdomain.ListRulesResponse, error) {
	return discountdomain.ListRulesResponse{}, nil
}

func (d *discountStub) GetRuleByCode(ctx context.Context, code string) (discountdomain.Rule, error) {
	return discountdomain.Rule{}, discountdomain.ErrRuleNotFound
}

func (d *discountStub) GetPolicy(ctx context.Context) (discountdomain.Policy, error) {
	return discountdomain.Policy{}, nil
}

func (d *discountStub) UpdatePolicy(ctx context.Context, req discountdomain.UpdatePolicyRequest) (discountdomain.Policy, error) {
	return discountdomain.Policy{}, nil
}

type loyaltyStub struct {
	mu       sync.Mutex
	accruals map[string]int64
}

func (l *loyaltyStub) Accrue(ctx context.Context, customerID string, n int64) (loyaltydomain.Balance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.accruals == nil {
		l.accruals = make(map[string]int64)
	}
	l.accruals[customerID] += n
	return loyaltydomain.Balance{CustomerID: customerID, Points: l.accruals[customerID]}, nil
}

func (l *loyaltyStub) Redeem(ctx context.Context, customerID string, n int64) (loyaltydomain.Balance, error) {
	return loyaltydomain.Balance{}, nil
}

func (l *loyaltyStub) Reset(ctx context.Context, customerID string) (loyaltydomain.Balance, error) {
	return loyaltydomain.Balance{}, nil
}

func (l *loyaltyStub) GetBalance(ctx context.Context, customerID string) (loyaltydomain.Balance, error) {
	return loyaltydomain.Balance{}, nil
}

func (l *loyaltyStub) GetSettings(ctx context.Context) (loyaltydomain.Settings, error) {
	return loyaltydomain.Settings{}, nil
}

func (l *loyaltyStub) UpdateSettings(ctx context.Context, req loyaltydomain.UpdateSettingsRequest) (loyaltydomain.Settings, error) {
	return loyaltydomain.Settings{}, nil
}

type auditStub struct{}

func (auditStub) AuditLog(ctx context.Context, actorID, action, targetType, targetID string, metadata map[string]any) error {
	return nil
}

func (auditStub) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

type submitterStub struct {
	submit func(ctx context.Context, req invoicedomain.SubmitRequest) (invoicedomain.Invoice, error)

	mu    sync.Mutex
	calls int
}

func (s *submitterStub) Submit(ctx context.Context, req invoicedomain.SubmitRequest) (invoicedomain.Invoice, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.submit != nil {
		return s.submit(ctx, req)
	}
	return invoicedomain.Invoice{Number: "INV-1", Total: req.Subtotal - req.DiscountAmount + req.TaxAmount}, nil
}

func (s *submitterStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fixture struct {
	svc       domain.Service
	discount  *discountStub
	loyalty   *loyaltyStub
	submitter *submitterStub
	clock     *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	node, err := snowflake.NewNode(1)
	assert.NoError(t, err)

	f := &fixture{
		discount:  &discountStub{},
		loyalty:   &loyaltyStub{},
		submitter: &submitterStub{},
		clock:     clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	f.svc = New(Params{
		Log:   zap.NewNop(),
		GenID: node,
		Clock: f.clock,
		Cfg: config.Config{
			InvoiceSubmitTimeout: 250 * time.Millisecond,
			Loyalty:              config.LoyaltyConfig{EarnRate: 1},
			Tax:                  config.TaxConfig{GSTRatePercent: 18},
		},
		DiscountSvc: f.discount,
		LoyaltySvc:  f.loyalty,
		Submitter:   f.submitter,
		AuditSvc:    auditStub{},
	})
	return f
}

func beginPlain(t *testing.T, f *fixture) domain.Transaction {
	t.Helper()

	txn, err := f.svc.Begin(context.Background(), domain.BeginRequest{
		CustomerID:  "cust-1",
		BillingMode: orderdomain.BillingModeWithoutGST,
		Lines: []orderdomain.LineItem{
			{ProductID: "p1", Name: "Tea", Quantity: 1, UnitPrice: 100000},
		},
		ActorID: "cashier-1",
	})
	assert.NoError(t, err)
	return txn
}

func TestBeginStartsSelecting(t *testing.T) {
	f := newFixture(t)

	txn := beginPlain(t, f)
	assert.Equal(t, domain.StatusSelecting, txn.Status)
	assert.Equal(t, int64(100000), txn.Subtotal)
	assert.Equal(t, int64(100000), txn.TotalDue)
	assert.Equal(t, int64(0), txn.Tax)
}

func TestBeginAppliesDiscountAndTax(t *testing.T) {
	f := newFixture(t)
	f.discount.evaluate = func(req discountdomain.EvaluateRequest) (discountdomain.Evaluation, error) {
		return discountdomain.Evaluation{
			RuleCode:     "FESTIVE10",
			Amount:       20000,
			TaxTreatment: discountdomain.TaxTreatmentBeforeTax,
		}, nil
	}

	txn, err := f.svc.Begin(context.Background(), domain.BeginRequest{
		CustomerID:  "cust-1",
		BillingMode: orderdomain.BillingModeWithGST,
		Lines: []orderdomain.LineItem{
			{ProductID: "p1", Name: "Tea", Quantity: 2, UnitPrice: 100000},
		},
		RuleCode: "FESTIVE10",
		ActorID:  "cashier-1",
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(200000), txn.Subtotal)
	assert.Equal(t, int64(20000), txn.Discount)
	assert.Equal(t, int64(32400), txn.Tax)
	assert.Equal(t, int64(212400), txn.TotalDue)
}

func TestBeginRejectsUnapprovedPendingDiscount(t *testing.T) {
	f := newFixture(t)
	f.discount.evaluate = func(req discountdomain.EvaluateRequest) (discountdomain.Evaluation, error) {
		return discountdomain.Evaluation{RuleCode: "BIGDEAL", Amount: 50000, PendingApproval: true}, nil
	}

	_, err := f.svc.Begin(context.Background(), domain.BeginRequest{
		CustomerID:  "cust-1",
		BillingMode: orderdomain.BillingModeWithoutGST,
		Lines:       []orderdomain.LineItem{{ProductID: "p1", Quantity: 1, UnitPrice: 100000}},
		RuleCode:    "BIGDEAL",
		ActorID:     "cashier-1",
	})
	assert.ErrorIs(t, err, discountdomain.ErrApprovalRequired)

	// Self-approval does not satisfy the gate.
	_, err = f.svc.Begin(context.Background(), domain.BeginRequest{
		CustomerID:  "cust-1",
		BillingMode: orderdomain.BillingModeWithoutGST,
		Lines:       []orderdomain.LineItem{{ProductID: "p1", Quantity: 1, UnitPrice: 100000}},
		RuleCode:    "BIGDEAL",
		ActorID:     "cashier-1",
		ApprovedBy:  "cashier-1",
	})
	assert.ErrorIs(t, err, discountdomain.ErrApprovalRequired)

	_, err = f.svc.Begin(context.Background(), domain.BeginRequest{
		CustomerID:  "cust-1",
		BillingMode: orderdomain.BillingModeWithoutGST,
		Lines:       []orderdomain.LineItem{{ProductID: "p1", Quantity: 1, UnitPrice: 100000}},
		RuleCode:    "BIGDEAL",
		ActorID:     "cashier-1",
		ApprovedBy:  "manager-1",
	})
	assert.NoError(t, err)
}

func TestConfirmBeforeMethodSelection(t *testing.T) {
	f := newFixture(t)
	txn := beginPlain(t, f)

	_, err := f.svc.Confirm(context.Background(), txn.ID.String())
	assert.ErrorIs(t, err, domain.ErrNoMethodSelected)
}

func TestCashFlowWithChange(t *testing.T) {
	f := newFixture(t)
	txn := beginPlain(t, f)
	id := txn.ID.String()

	txn, err := f.svc.SelectMethod(context.Background(), id, domain.MethodCash)
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusCollecting, txn.Status)

	// Short tender cannot confirm.
	txn, err = f.svc.UpdateCash(context.Background(), domain.UpdateCashRequest{ID: id, AmountReceived: 45000})
	assert.NoError(t, err)
	_, err = f.svc.Confirm(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrPaymentInvalid)

	txn, err = f.svc.UpdateCash(context.Background(), domain.UpdateCashRequest{ID: id, AmountReceived: 120000})
	assert.NoError(t, err)
	assert.Equal(t, int64(20000), txn.Cash.ChangeDue)

	receipt, err := f.svc.Confirm(context.Background(), id)
	assert.NoError(t, err)
	assert.Equal(t, "INV-1", receipt.InvoiceNumber)
	assert.Equal(t, int64(20000), receipt.ChangeDue)

	final, err := f.svc.Get(context.Background(), id)
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, final.Status)
}

func TestSplitAutoRecomputeAndTolerance(t *testing.T) {
	f := newFixture(t)
	txn := beginPlain(t, f)
	id := txn.ID.String()

	_, err := f.svc.SelectMethod(context.Background(), id, domain.MethodSplit)
	assert.NoError(t, err)

	txn, err = f.svc.UpdateSplit(context.Background(), domain.UpdateSplitRequest{ID: id, CashPart: 40000})
	assert.NoError(t, err)
	assert.Equal(t, int64(60000), txn.Split.UPIPart)

	// Manual parts off by more than one currency unit cannot confirm.
	upi := int64(55000)
	txn, err = f.svc.UpdateSplit(context.Background(), domain.UpdateSplitRequest{ID: id, CashPart: 40000, UPIPart: &upi})
	assert.NoError(t, err)
	_, err = f.svc.Confirm(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrPaymentInvalid)

	upi = 60050
	_, err = f.svc.UpdateSplit(context.Background(), domain.UpdateSplitRequest{ID: id, CashPart: 40000, UPIPart: &upi})
	assert.NoError(t, err)
	_, err = f.svc.Confirm(context.Background(), id)
	assert.NoError(t, err)
}

func TestUPIRequiresIDInIDMode(t *testing.T) {
	f := newFixture(t)
	txn := beginPlain(t, f)
	id := txn.ID.String()

	_, err := f.svc.SelectMethod(context.Background(), id, domain.MethodUPI)
	assert.NoError(t, err)

	_, err = f.svc.Confirm(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrPaymentInvalid)

	_, err = f.svc.UpdateUPI(context.Background(), domain.UpdateUPIRequest{ID: id, Mode: domain.UPIModeID, UPIID: "alice@upi"})
	assert.NoError(t, err)
	_, err = f.svc.Confirm(context.Background(), id)
	assert.NoError(t, err)
}

func TestMethodSwitchResetsDetails(t *testing.T) {
	f := newFixture(t)
	txn := beginPlain(t, f)
	id := txn.ID.String()

	_, err := f.svc.SelectMethod(context.Background(), id, domain.MethodCash)
	assert.NoError(t, err)
	_, err = f.svc.UpdateCash(context.Background(), domain.UpdateCashRequest{ID: id, AmountReceived: 120000})
	assert.NoError(t, err)

	txn, err = f.svc.SelectMethod(context.Background(), id, domain.MethodCard)
	assert.NoError(t, err)
	assert.Nil(t, txn.Cash)
	assert.NotNil(t, txn.Card)

	// Edits for the abandoned method are rejected.
	_, err = f.svc.UpdateCash(context.Background(), domain.UpdateCashRequest{ID: id, AmountReceived: 120000})
	assert.ErrorIs(t, err, domain.ErrMethodMismatch)
}

func TestSubmitFailureThenRetry(t *testing.T) {
	f := newFixture(t)
	f.submitter.submit = func(ctx context.Context, req invoicedomain.SubmitRequest) (invoicedomain.Invoice, error) {
		return invoicedomain.Invoice{}, errors.New("gateway unreachable")
	}

	txn := beginPlain(t, f)
	id := txn.ID.String()

	_, err := f.svc.SelectMethod(context.Background(), id, domain.MethodCash)
	assert.NoError(t, err)
	_, err = f.svc.UpdateCash(context.Background(), domain.UpdateCashRequest{ID: id, AmountReceived: 100000})
	assert.NoError(t, err)

	_, err = f.svc.Confirm(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrSubmitFailed)

	failed, err := f.svc.Get(context.Background(), id)
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, failed.Status)
	assert.Equal(t, "gateway unreachable", failed.FailureReason)
	// Entered amounts survive the failure for the retry.
	assert.Equal(t, int64(100000), failed.Cash.AmountReceived)

	f.submitter.submit = nil
	receipt, err := f.svc.Confirm(context.Background(), id)
	assert.NoError(t, err)
	assert.Equal(t, "INV-1", receipt.InvoiceNumber)
}

func TestSubmitTimeoutFails(t *testing.T) {
	f := newFixture(t)
	f.submitter.submit = func(ctx context.Context, req invoicedomain.SubmitRequest) (invoicedomain.Invoice, error) {
		<-ctx.Done()
		return invoicedomain.Invoice{}, ctx.Err()
	}

	txn := beginPlain(t, f)
	id := txn.ID.String()

	_, err := f.svc.SelectMethod(context.Background(), id, domain.MethodCash)
	assert.NoError(t, err)
	_, err = f.svc.UpdateCash(context.Background(), domain.UpdateCashRequest{ID: id, AmountReceived: 100000})
	assert.NoError(t, err)

	_, err = f.svc.Confirm(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrSubmitFailed)

	failed, err := f.svc.Get(context.Background(), id)
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, failed.Status)
}

func TestConfirmAtMostOnce(t *testing.T) {
	f := newFixture(t)

	started := make(chan struct{})
	release := make(chan struct{})
	f.submitter.submit = func(ctx context.Context, req invoicedomain.SubmitRequest) (invoicedomain.Invoice, error) {
		close(started)
		<-release
		return invoicedomain.Invoice{Number: "INV-1", Total: req.Total}, nil
	}

	txn := beginPlain(t, f)
	id := txn.ID.String()

	_, err := f.svc.SelectMethod(context.Background(), id, domain.MethodCash)
	assert.NoError(t, err)
	_, err = f.svc.UpdateCash(context.Background(), domain.UpdateCashRequest{ID: id, AmountReceived: 100000})
	assert.NoError(t, err)

	winner := make(chan error, 1)
	go func() {
		_, err := f.svc.Confirm(context.Background(), id)
		winner <- err
	}()
	<-started

	// Repeated confirm signals while the submission is in flight are
	// dropped, never run concurrently.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Confirm(context.Background(), id)
			assert.ErrorIs(t, err, domain.ErrConfirmInFlight)
		}()
	}
	wg.Wait()

	close(release)
	assert.NoError(t, <-winner)
	assert.Equal(t, 1, f.submitter.callCount())

	_, err = f.svc.Confirm(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrAlreadyConfirmed)
}

func TestConfirmSettlesCollaborators(t *testing.T) {
	f := newFixture(t)
	f.discount.evaluate = func(req discountdomain.EvaluateRequest) (discountdomain.Evaluation, error) {
		return discountdomain.Evaluation{RuleCode: "FESTIVE10", Amount: 10000}, nil
	}

	txn, err := f.svc.Begin(context.Background(), domain.BeginRequest{
		CustomerID:  "cust-1",
		BillingMode: orderdomain.BillingModeWithoutGST,
		Lines:       []orderdomain.LineItem{{ProductID: "p1", Quantity: 1, UnitPrice: 100000}},
		RuleCode:    "FESTIVE10",
		ActorID:     "cashier-1",
	})
	assert.NoError(t, err)
	id := txn.ID.String()
	assert.Equal(t, int64(90000), txn.TotalDue)

	_, err = f.svc.SelectMethod(context.Background(), id, domain.MethodCard)
	assert.NoError(t, err)
	_, err = f.svc.Confirm(context.Background(), id)
	assert.NoError(t, err)

	// The application is recorded against the authoritative invoice number.
	assert.Len(t, f.discount.commits, 1)
	assert.Equal(t, "INV-1", f.discount.commits[0].InvoiceRef)
	if assert.NotNil(t, f.discount.commits[0].Granted) {
		assert.Equal(t, "FESTIVE10", f.discount.commits[0].Granted.RuleCode)
	}

	// One point per whole currency unit paid.
	assert.Equal(t, int64(900), f.loyalty.accruals["cust-1"])
}

func TestConfirmKeepsEvaluationFromBegin(t *testing.T) {
	f := newFixture(t)
	f.discount.evaluate = func(req discountdomain.EvaluateRequest) (discountdomain.Evaluation, error) {
		return discountdomain.Evaluation{RuleCode: "FESTIVE10", Amount: 10000}, nil
	}

	txn, err := f.svc.Begin(context.Background(), domain.BeginRequest{
		CustomerID:  "cust-1",
		BillingMode: orderdomain.BillingModeWithoutGST,
		Lines:       []orderdomain.LineItem{{ProductID: "p1", Quantity: 1, UnitPrice: 100000}},
		RuleCode:    "FESTIVE10",
		ActorID:     "cashier-1",
	})
	assert.NoError(t, err)
	id := txn.ID.String()

	// The rule window closing between begin and confirm must not change
	// what was granted; the paid total already includes the discount.
	f.clock.Advance(48 * time.Hour)

	_, err = f.svc.SelectMethod(context.Background(), id, domain.MethodCard)
	assert.NoError(t, err)
	_, err = f.svc.Confirm(context.Background(), id)
	assert.NoError(t, err)

	assert.Len(t, f.discount.commits, 1)
	if assert.NotNil(t, f.discount.commits[0].Granted) {
		assert.Equal(t, "FESTIVE10", f.discount.commits[0].Granted.RuleCode)
		assert.Equal(t, int64(10000), f.discount.commits[0].Granted.Amount)
	}
}

func TestCancelDiscardsSession(t *testing.T) {
	f := newFixture(t)
	txn := beginPlain(t, f)
	id := txn.ID.String()

	assert.NoError(t, f.svc.Cancel(context.Background(), id))

	_, err := f.svc.Get(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 0, f.submitter.callCount())
	assert.Len(t, f.discount.commits, 0)
}

func TestConfirmWithStaleSessionAfterCancel(t *testing.T) {
	f := newFixture(t)
	txn := beginPlain(t, f)
	id := txn.ID.String()

	_, err := f.svc.SelectMethod(context.Background(), id, domain.MethodCard)
	assert.NoError(t, err)

	// A confirm may resolve the session pointer just before a racing
	// cancel removes it from the map. The cancelled mark must stop it
	// from submitting an invoice for a discarded checkout.
	svc := f.svc.(*Service)
	svc.mu.RLock()
	sess := svc.sessions[id]
	svc.mu.RUnlock()

	assert.NoError(t, f.svc.Cancel(context.Background(), id))

	svc.mu.Lock()
	svc.sessions[id] = sess
	svc.mu.Unlock()

	_, err = f.svc.Confirm(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 0, f.submitter.callCount())
}

func TestCancelBlockedAfterConfirm(t *testing.T) {
	f := newFixture(t)
	txn := beginPlain(t, f)
	id := txn.ID.String()

	_, err := f.svc.SelectMethod(context.Background(), id, domain.MethodCard)
	assert.NoError(t, err)
	_, err = f.svc.Confirm(context.Background(), id)
	assert.NoError(t, err)

	assert.ErrorIs(t, f.svc.Cancel(context.Background(), id), domain.ErrAlreadyConfirmed)
}

func TestCancelAllowedFromFailed(t *testing.T) {
	f := newFixture(t)
	f.submitter.submit = func(ctx context.Context, req invoicedomain.SubmitRequest) (invoicedomain.Invoice, error) {
		return invoicedomain.Invoice{}, errors.New("gateway unreachable")
	}

	txn := beginPlain(t, f)
	id := txn.ID.String()

	_, err := f.svc.SelectMethod(context.Background(), id, domain.MethodCard)
	assert.NoError(t, err)
	_, err = f.svc.Confirm(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrSubmitFailed)

	assert.NoError(t, f.svc.Cancel(context.Background(), id))
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Get(context.Background(), "12345")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.SelectMethod(context.Background(), "12345", domain.MethodCash)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
