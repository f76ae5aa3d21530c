package service

import (
	"context"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/countercore/tally/internal/audit/domain"
	"github.com/countercore/tally/internal/checkout/domain"
	"github.com/countercore/tally/internal/clock"
	"github.com/countercore/tally/internal/config"
	discountdomain "github.com/countercore/tally/internal/discount/domain"
	invoicedomain "github.com/countercore/tally/internal/invoice/domain"
	loyaltydomain "github.com/countercore/tally/internal/loyalty/domain"
	orderdomain "github.com/countercore/tally/internal/order/domain"
	"github.com/countercore/tally/internal/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Cfg         config.Config
	DiscountSvc discountdomain.Service
	LoyaltySvc  loyaltydomain.Service
	Submitter   domain.Submitter
	AuditSvc    auditdomain.Service
	Metrics     *telemetry.Metrics `optional:"true"`
}

// session wraps one in-progress transaction. The mutex serializes every
// user-driven action on it; inFlight guards the confirm round trip so a
// repeated confirm signal can never produce two invoices.
type session struct {
	mu        sync.Mutex
	txn       domain.Transaction
	inFlight  bool
	cancelled bool

	discount   *discountdomain.Evaluation
	actorID    string
	approvedBy string
}

type Service struct {
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	cfg         config.Config
	discountSvc discountdomain.Service
	loyaltySvc  loyaltydomain.Service
	submitter   domain.Submitter
	auditSvc    auditdomain.Service
	metrics     *telemetry.Metrics

	mu       sync.RWMutex
	sessions map[string]*session
}

func New(p Params) domain.Service {
	return &Service{
		log:         p.Log.Named("checkout.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		cfg:         p.Cfg,
		discountSvc: p.DiscountSvc,
		loyaltySvc:  p.LoyaltySvc,
		submitter:   p.Submitter,
		auditSvc:    p.AuditSvc,
		metrics:     p.Metrics,
		sessions:    make(map[string]*session),
	}
}

func (s *Service) Begin(ctx context.Context, req domain.BeginRequest) (domain.Transaction, error) {
	snapshot, err := orderdomain.NewSnapshot(strings.TrimSpace(req.CustomerID), req.BillingMode, req.Lines)
	if err != nil {
		return domain.Transaction{}, err
	}
	subtotal := snapshot.Subtotal()

	var eval *discountdomain.Evaluation
	treatment := discountdomain.TaxTreatmentBeforeTax
	if strings.TrimSpace(req.RuleCode) != "" || req.Manual != nil {
		result, err := s.discountSvc.Evaluate(ctx, discountdomain.EvaluateRequest{
			Subtotal: subtotal,
			RuleCode: req.RuleCode,
			Manual:   req.Manual,
		})
		if err != nil {
			return domain.Transaction{}, err
		}
		approvedBy := strings.TrimSpace(req.ApprovedBy)
		if result.PendingApproval && (approvedBy == "" || approvedBy == strings.TrimSpace(req.ActorID)) {
			return domain.Transaction{}, discountdomain.ErrApprovalRequired
		}
		eval = &result
		treatment = result.TaxTreatment
	}

	var discountAmount int64
	if eval != nil {
		discountAmount = eval.Amount
	}

	taxed := snapshot.BillingMode == orderdomain.BillingModeWithGST
	tax, totalDue := discountdomain.ComputePayable(subtotal, discountAmount, s.cfg.Tax.GSTRatePercent, taxed, treatment)

	now := s.clock.Now()
	txn := domain.Transaction{
		ID:        s.genID.Generate(),
		Order:     snapshot,
		Subtotal:  subtotal,
		Discount:  discountAmount,
		Tax:       tax,
		TotalDue:  totalDue,
		Status:    domain.StatusSelecting,
		CreatedAt: now,
		UpdatedAt: now,
	}

	sess := &session{
		txn:        txn,
		discount:   eval,
		actorID:    strings.TrimSpace(req.ActorID),
		approvedBy: strings.TrimSpace(req.ApprovedBy),
	}

	s.mu.Lock()
	s.sessions[txn.ID.String()] = sess
	s.mu.Unlock()

	return txn, nil
}

func (s *Service) SelectMethod(ctx context.Context, id string, method domain.Method) (domain.Transaction, error) {
	switch method {
	case domain.MethodCash, domain.MethodCard, domain.MethodUPI, domain.MethodSplit:
	default:
		return domain.Transaction{}, domain.ErrInvalidMethod
	}

	sess, err := s.lookup(id)
	if err != nil {
		return domain.Transaction{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.cancelled {
		return domain.Transaction{}, domain.ErrNotFound
	}
	if sess.inFlight {
		return domain.Transaction{}, domain.ErrConfirmInFlight
	}
	if !domain.CanTransition(sess.txn.Status, domain.StatusCollecting) {
		return domain.Transaction{}, domain.ErrInvalidTransition
	}

	sess.txn.Status = domain.StatusCollecting
	sess.txn.Method = method
	sess.txn.FailureReason = ""
	sess.txn.Cash, sess.txn.Card, sess.txn.UPI, sess.txn.Split = nil, nil, nil, nil
	switch method {
	case domain.MethodCash:
		sess.txn.Cash = &domain.CashDetails{}
	case domain.MethodCard:
		sess.txn.Card = &domain.CardDetails{}
	case domain.MethodUPI:
		sess.txn.UPI = &domain.UPIDetails{Mode: domain.UPIModeID}
	case domain.MethodSplit:
		split := domain.SplitDetails{}.Recompute(sess.txn.TotalDue)
		sess.txn.Split = &split
	}
	sess.txn.UpdatedAt = s.clock.Now()

	return sess.txn, nil
}

func (s *Service) UpdateCash(ctx context.Context, req domain.UpdateCashRequest) (domain.Transaction, error) {
	return s.updateCollecting(req.ID, domain.MethodCash, func(txn *domain.Transaction) error {
		if req.AmountReceived < 0 {
			return domain.ErrInvalidAmount
		}
		change := req.AmountReceived - txn.TotalDue
		if change < 0 {
			change = 0
		}
		txn.Cash = &domain.CashDetails{
			AmountReceived: req.AmountReceived,
			ChangeDue:      change,
		}
		return nil
	})
}

func (s *Service) UpdateCard(ctx context.Context, req domain.UpdateCardRequest) (domain.Transaction, error) {
	return s.updateCollecting(req.ID, domain.MethodCard, func(txn *domain.Transaction) error {
		txn.Card = &domain.CardDetails{Reference: strings.TrimSpace(req.Reference)}
		return nil
	})
}

func (s *Service) UpdateUPI(ctx context.Context, req domain.UpdateUPIRequest) (domain.Transaction, error) {
	return s.updateCollecting(req.ID, domain.MethodUPI, func(txn *domain.Transaction) error {
		if req.Mode != domain.UPIModeID && req.Mode != domain.UPIModeQR {
			return domain.ErrInvalidUPI
		}
		txn.UPI = &domain.UPIDetails{
			Mode:  req.Mode,
			UPIID: strings.TrimSpace(req.UPIID),
		}
		return nil
	})
}

func (s *Service) UpdateSplit(ctx context.Context, req domain.UpdateSplitRequest) (domain.Transaction, error) {
	return s.updateCollecting(req.ID, domain.MethodSplit, func(txn *domain.Transaction) error {
		if req.CashPart < 0 || (req.UPIPart != nil && *req.UPIPart < 0) {
			return domain.ErrInvalidAmount
		}
		split := domain.SplitDetails{CashPart: req.CashPart}
		if req.UPIPart != nil {
			split.UPIPart = *req.UPIPart
		} else {
			split = split.Recompute(txn.TotalDue)
		}
		txn.Split = &split
		return nil
	})
}

func (s *Service) Confirm(ctx context.Context, id string) (domain.Receipt, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return domain.Receipt{}, err
	}

	sess.mu.Lock()
	if sess.cancelled {
		sess.mu.Unlock()
		return domain.Receipt{}, domain.ErrNotFound
	}
	if sess.txn.Status == domain.StatusConfirmed {
		sess.mu.Unlock()
		return domain.Receipt{}, domain.ErrAlreadyConfirmed
	}
	if sess.inFlight {
		// A prior confirm is still talking to the invoicing service;
		// this signal is dropped, never run concurrently.
		sess.mu.Unlock()
		return domain.Receipt{}, domain.ErrConfirmInFlight
	}
	if sess.txn.Status != domain.StatusCollecting && sess.txn.Status != domain.StatusFailed {
		sess.mu.Unlock()
		return domain.Receipt{}, domain.ErrNoMethodSelected
	}
	if sess.txn.Status == domain.StatusFailed {
		// Retry path: entered amounts were preserved.
		sess.txn.Status = domain.StatusCollecting
	}
	if !sess.txn.CollectingValid() {
		sess.mu.Unlock()
		return domain.Receipt{}, domain.ErrPaymentInvalid
	}

	sess.inFlight = true
	submit := s.buildSubmission(&sess.txn)
	method := sess.txn.Method
	sess.mu.Unlock()

	start := s.clock.Now()
	submitCtx, cancel := context.WithTimeout(ctx, s.cfg.InvoiceSubmitTimeout)
	invoice, submitErr := s.submitter.Submit(submitCtx, submit)
	cancel()
	elapsed := s.clock.Now().Sub(start).Seconds()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.inFlight = false
	sess.txn.UpdatedAt = s.clock.Now()

	if submitErr != nil {
		sess.txn.Status = domain.StatusFailed
		sess.txn.FailureReason = submitErr.Error()
		s.metrics.ObserveConfirm(string(method), "failed", elapsed)
		s.log.Warn("invoice submission failed",
			zap.String("checkout_id", sess.txn.ID.String()),
			zap.Error(submitErr),
		)
		return domain.Receipt{}, domain.ErrSubmitFailed
	}

	sess.txn.Status = domain.StatusConfirmed
	sess.txn.InvoiceNumber = invoice.Number
	sess.txn.InvoiceTotal = invoice.Total
	s.metrics.ObserveConfirm(string(method), "confirmed", elapsed)

	s.settleCollaborators(ctx, sess, invoice)

	receipt := domain.Receipt{
		InvoiceNumber: invoice.Number,
		Total:         invoice.Total,
		Method:        method,
	}
	if sess.txn.Cash != nil {
		receipt.ChangeDue = sess.txn.Cash.ChangeDue
	}
	return receipt, nil
}

func (s *Service) Cancel(ctx context.Context, id string) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.inFlight {
		return domain.ErrConfirmInFlight
	}
	if sess.txn.Status == domain.StatusConfirmed {
		return domain.ErrAlreadyConfirmed
	}
	// Marked under the session lock so a confirm that already resolved
	// this session cannot proceed after the cancel.
	sess.cancelled = true

	s.mu.Lock()
	delete(s.sessions, strings.TrimSpace(id))
	s.mu.Unlock()
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Transaction, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return domain.Transaction{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.cancelled {
		return domain.Transaction{}, domain.ErrNotFound
	}
	return sess.txn, nil
}

func (s *Service) lookup(id string) (*session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidID
	}
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return sess, nil
}

// buildSubmission shapes the finalized transaction for the service of
// record. Called with the session lock held.
func (s *Service) buildSubmission(txn *domain.Transaction) invoicedomain.SubmitRequest {
	detail := map[string]any{}
	switch txn.Method {
	case domain.MethodCash:
		detail["amount_received"] = txn.Cash.AmountReceived
		detail["change_due"] = txn.Cash.ChangeDue
	case domain.MethodCard:
		if txn.Card.Reference != "" {
			detail["reference"] = txn.Card.Reference
		}
	case domain.MethodUPI:
		detail["mode"] = string(txn.UPI.Mode)
		if txn.UPI.UPIID != "" {
			detail["upi_id"] = txn.UPI.UPIID
		}
	case domain.MethodSplit:
		detail["cash_part"] = txn.Split.CashPart
		detail["upi_part"] = txn.Split.UPIPart
	}

	return invoicedomain.SubmitRequest{
		CustomerID:     txn.Order.CustomerID,
		BillingMode:    txn.Order.BillingMode,
		Lines:          txn.Order.Lines,
		Method:         string(txn.Method),
		Subtotal:       txn.Subtotal,
		DiscountAmount: txn.Discount,
		TaxAmount:      txn.Tax,
		Total:          txn.TotalDue,
		PaidAmount:     txn.TotalDue,
		PaymentDetail:  detail,
	}
}

// settleCollaborators records the discount application, accrues loyalty
// points and notifies the audit sink after a confirmed sale. None of
// these may roll back the committed payment; failures are logged and the
// receipt stands. Called with the session lock held.
func (s *Service) settleCollaborators(ctx context.Context, sess *session, invoice invoicedomain.Invoice) {
	if sess.discount != nil {
		// The application log records the evaluation the register showed;
		// rule or policy edits between begin and confirm do not alter the
		// discount already included in the paid total.
		commit := discountdomain.CommitRequest{
			Subtotal:   sess.txn.Subtotal,
			InvoiceRef: invoice.Number,
			ActorID:    sess.actorID,
			ApprovedBy: sess.approvedBy,
			Granted:    sess.discount,
		}
		if _, err := s.discountSvc.Commit(ctx, commit); err != nil {
			s.log.Warn("discount application log failed after confirm",
				zap.String("invoice_number", invoice.Number),
				zap.Error(err),
			)
		}
	}

	if customerID := sess.txn.Order.CustomerID; customerID != "" && s.cfg.Loyalty.EarnRate > 0 {
		points := sess.txn.TotalDue / 100 * s.cfg.Loyalty.EarnRate
		if points > 0 {
			if _, err := s.loyaltySvc.Accrue(ctx, customerID, points); err != nil {
				s.log.Warn("loyalty accrual failed after confirm",
					zap.String("customer_id", customerID),
					zap.Error(err),
				)
			}
		}
	}

	if err := s.auditSvc.AuditLog(ctx, sess.actorID, "checkout.confirm", "invoice", invoice.Number, map[string]any{
		"method": string(sess.txn.Method),
		"total":  invoice.Total,
	}); err != nil {
		s.log.Warn("audit sink rejected confirm entry",
			zap.String("invoice_number", invoice.Number),
			zap.Error(err),
		)
	}
}

// updateCollecting applies a method-specific edit under the session
// lock. Edits are legal while collecting or retrying after a failure;
// an edit from failed returns the transaction to collecting.
func (s *Service) updateCollecting(id string, method domain.Method, apply func(*domain.Transaction) error) (domain.Transaction, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return domain.Transaction{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.cancelled {
		return domain.Transaction{}, domain.ErrNotFound
	}
	if sess.inFlight {
		return domain.Transaction{}, domain.ErrConfirmInFlight
	}
	if sess.txn.Status != domain.StatusCollecting && sess.txn.Status != domain.StatusFailed {
		return domain.Transaction{}, domain.ErrInvalidTransition
	}
	if sess.txn.Method != method {
		return domain.Transaction{}, domain.ErrMethodMismatch
	}

	if err := apply(&sess.txn); err != nil {
		return domain.Transaction{}, err
	}

	sess.txn.Status = domain.StatusCollecting
	sess.txn.FailureReason = ""
	sess.txn.UpdatedAt = s.clock.Now()
	return sess.txn, nil
}
