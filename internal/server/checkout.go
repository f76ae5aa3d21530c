package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/countercore/tally/internal/checkout/domain"
	discountdomain "github.com/countercore/tally/internal/discount/domain"
	orderdomain "github.com/countercore/tally/internal/order/domain"
)

type beginCheckoutRequest struct {
	CustomerID  string `json:"customer_id"`
	BillingMode string `json:"billing_mode"`
	Lines       []struct {
		ProductID    string `json:"product_id"`
		Name         string `json:"name"`
		Quantity     int64  `json:"quantity"`
		UnitPrice    int64  `json:"unit_price"`
		LineDiscount int64  `json:"line_discount"`
	} `json:"lines"`
	RuleCode    string  `json:"rule_code"`
	ManualType  string  `json:"manual_type"`
	ManualValue float64 `json:"manual_value"`
	ActorID     string  `json:"actor_id"`
	ApprovedBy  string  `json:"approved_by"`
}

func (s *Server) BeginCheckout(c *gin.Context) {
	var req beginCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	lines := make([]orderdomain.LineItem, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, orderdomain.LineItem{
			ProductID:    strings.TrimSpace(line.ProductID),
			Name:         strings.TrimSpace(line.Name),
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
			LineDiscount: line.LineDiscount,
		})
	}

	begin := checkoutdomain.BeginRequest{
		CustomerID:  req.CustomerID,
		BillingMode: orderdomain.BillingMode(req.BillingMode),
		Lines:       lines,
		RuleCode:    req.RuleCode,
		ActorID:     req.ActorID,
		ApprovedBy:  req.ApprovedBy,
	}
	if req.ManualType != "" {
		begin.Manual = &discountdomain.ManualDiscount{
			Type:  discountdomain.RuleType(req.ManualType),
			Value: req.ManualValue,
		}
	}

	txn, err := s.checkoutSvc.Begin(c.Request.Context(), begin)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": txn})
}

func (s *Server) GetCheckout(c *gin.Context) {
	txn, err := s.checkoutSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": txn})
}

func (s *Server) SelectMethod(c *gin.Context) {
	var req struct {
		Method string `json:"method"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	txn, err := s.checkoutSvc.SelectMethod(c.Request.Context(), c.Param("id"), checkoutdomain.Method(req.Method))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": txn})
}

type updatePaymentRequest struct {
	AmountReceived *int64  `json:"amount_received"`
	Reference      *string `json:"reference"`
	UPIMode        *string `json:"upi_mode"`
	UPIID          *string `json:"upi_id"`
	CashPart       *int64  `json:"cash_part"`
	UPIPart        *int64  `json:"upi_part"`
}

// UpdatePayment routes the edit to the method-specific validation based
// on which fields are present.
func (s *Server) UpdatePayment(c *gin.Context) {
	var req updatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	id := c.Param("id")
	ctx := c.Request.Context()

	var (
		txn checkoutdomain.Transaction
		err error
	)
	switch {
	case req.CashPart != nil:
		txn, err = s.checkoutSvc.UpdateSplit(ctx, checkoutdomain.UpdateSplitRequest{
			ID:       id,
			CashPart: *req.CashPart,
			UPIPart:  req.UPIPart,
		})
	case req.AmountReceived != nil:
		txn, err = s.checkoutSvc.UpdateCash(ctx, checkoutdomain.UpdateCashRequest{
			ID:             id,
			AmountReceived: *req.AmountReceived,
		})
	case req.UPIMode != nil:
		upiID := ""
		if req.UPIID != nil {
			upiID = *req.UPIID
		}
		txn, err = s.checkoutSvc.UpdateUPI(ctx, checkoutdomain.UpdateUPIRequest{
			ID:    id,
			Mode:  checkoutdomain.UPIMode(*req.UPIMode),
			UPIID: upiID,
		})
	case req.Reference != nil:
		txn, err = s.checkoutSvc.UpdateCard(ctx, checkoutdomain.UpdateCardRequest{
			ID:        id,
			Reference: *req.Reference,
		})
	default:
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": txn})
}

func (s *Server) ConfirmCheckout(c *gin.Context) {
	receipt, err := s.checkoutSvc.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": receipt})
}

func (s *Server) CancelCheckout(c *gin.Context) {
	if err := s.checkoutSvc.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"cancelled": true}})
}
