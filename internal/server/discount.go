package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	discountdomain "github.com/countercore/tally/internal/discount/domain"
	"github.com/countercore/tally/pkg/db/pagination"
)

type discountCandidateRequest struct {
	Subtotal    int64   `json:"subtotal"`
	RuleCode    string  `json:"rule_code"`
	ManualType  string  `json:"manual_type"`
	ManualValue float64 `json:"manual_value"`
}

func (r discountCandidateRequest) manual() *discountdomain.ManualDiscount {
	if r.ManualType == "" {
		return nil
	}
	return &discountdomain.ManualDiscount{
		Type:  discountdomain.RuleType(r.ManualType),
		Value: r.ManualValue,
	}
}

func (s *Server) EvaluateDiscount(c *gin.Context) {
	var req discountCandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	eval, err := s.discountSvc.Evaluate(c.Request.Context(), discountdomain.EvaluateRequest{
		Subtotal: req.Subtotal,
		RuleCode: req.RuleCode,
		Manual:   req.manual(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": eval})
}

func (s *Server) CommitDiscount(c *gin.Context) {
	var req struct {
		discountCandidateRequest
		InvoiceRef string `json:"invoice_ref"`
		ActorID    string `json:"actor_id"`
		ApprovedBy string `json:"approved_by"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	app, err := s.discountSvc.Commit(c.Request.Context(), discountdomain.CommitRequest{
		Subtotal:   req.Subtotal,
		RuleCode:   req.RuleCode,
		Manual:     req.manual(),
		InvoiceRef: req.InvoiceRef,
		ActorID:    req.ActorID,
		ApprovedBy: req.ApprovedBy,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": app})
}

type createRuleRequest struct {
	Code             string  `json:"code"`
	Name             string  `json:"name"`
	Type             string  `json:"type"`
	Value            float64 `json:"value"`
	AppliesTo        string  `json:"applies_to"`
	MinOrderValue    int64   `json:"min_order_value"`
	MaxDiscountValue *int64  `json:"max_discount_value"`
	ValidFrom        string  `json:"valid_from"`
	ValidTo          string  `json:"valid_to"`
	IsActive         bool    `json:"is_active"`
	RequiresApproval bool    `json:"requires_approval"`
}

func (s *Server) CreateDiscountRule(c *gin.Context) {
	var req createRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	validFrom, err := time.Parse(time.RFC3339, req.ValidFrom)
	if err != nil {
		AbortWithError(c, discountdomain.ErrInvalidValidityWindow)
		return
	}
	validTo, err := time.Parse(time.RFC3339, req.ValidTo)
	if err != nil {
		AbortWithError(c, discountdomain.ErrInvalidValidityWindow)
		return
	}

	rule, err := s.discountSvc.CreateRule(c.Request.Context(), discountdomain.CreateRuleRequest{
		Code:             req.Code,
		Name:             req.Name,
		Type:             discountdomain.RuleType(req.Type),
		Value:            req.Value,
		AppliesTo:        discountdomain.AppliesTo(req.AppliesTo),
		MinOrderValue:    req.MinOrderValue,
		MaxDiscountValue: req.MaxDiscountValue,
		ValidFrom:        validFrom,
		ValidTo:          validTo,
		IsActive:         req.IsActive,
		RequiresApproval: req.RequiresApproval,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) ListDiscountRules(c *gin.Context) {
	var query struct {
		pagination.Pagination
		ActiveOnly bool `form:"active_only"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.discountSvc.ListRules(c.Request.Context(), discountdomain.ListRulesRequest{
		Pagination: query.Pagination,
		ActiveOnly: query.ActiveOnly,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetDiscountRule(c *gin.Context) {
	rule, err := s.discountSvc.GetRuleByCode(c.Request.Context(), strings.TrimSpace(c.Param("code")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) GetDiscountPolicy(c *gin.Context) {
	policy, err := s.discountSvc.GetPolicy(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": policy})
}

func (s *Server) UpdateDiscountPolicy(c *gin.Context) {
	var req struct {
		EnableDiscounts       bool    `json:"enable_discounts"`
		AllowPercentDiscount  bool    `json:"allow_percent_discount"`
		AllowFlatDiscount     bool    `json:"allow_flat_discount"`
		MaxDiscountPercentage float64 `json:"max_discount_percentage"`
		MaxDiscountAmount     int64   `json:"max_discount_amount"`
		AllowedDiscountLevel  string  `json:"allowed_discount_level"`
		DiscountTaxConfig     string  `json:"discount_tax_config"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	policy, err := s.discountSvc.UpdatePolicy(c.Request.Context(), discountdomain.UpdatePolicyRequest{
		EnableDiscounts:       req.EnableDiscounts,
		AllowPercentDiscount:  req.AllowPercentDiscount,
		AllowFlatDiscount:     req.AllowFlatDiscount,
		MaxDiscountPercentage: req.MaxDiscountPercentage,
		MaxDiscountAmount:     req.MaxDiscountAmount,
		AllowedDiscountLevel:  discountdomain.DiscountLevel(req.AllowedDiscountLevel),
		DiscountTaxConfig:     discountdomain.TaxTreatment(req.DiscountTaxConfig),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": policy})
}
