package domain

import (
	"math"
	"time"
)

// EvaluateCandidate runs the full rule-against-policy pipeline: the policy
// kill switch, rule applicability, type and level gates, raw amount, then
// the rule cap, the policy caps (whichever is tighter) and the subtotal
// clamp. It is pure; callers supply the session policy and current time.
//
// A policy MaxDiscountAmount of zero means no amount cap.
func EvaluateCandidate(rule Rule, subtotal int64, policy Policy, now time.Time) (Evaluation, error) {
	if subtotal <= 0 {
		return Evaluation{}, ErrInvalidSubtotal
	}
	if !policy.EnableDiscounts {
		return Evaluation{}, ErrDiscountsDisabled
	}

	if !rule.IsActive {
		return Evaluation{}, ErrRuleInactive
	}
	if now.Before(rule.ValidFrom) || now.After(rule.ValidTo) {
		return Evaluation{}, ErrRuleNotInWindow
	}
	if subtotal < rule.MinOrderValue {
		return Evaluation{}, ErrMinOrderValueNotMet
	}

	switch rule.Type {
	case RuleTypePercentage:
		if !policy.AllowPercentDiscount {
			return Evaluation{}, ErrRuleTypeNotAllowed
		}
	case RuleTypeFlat:
		if !policy.AllowFlatDiscount {
			return Evaluation{}, ErrRuleTypeNotAllowed
		}
	default:
		return Evaluation{}, ErrInvalidRuleType
	}

	switch policy.AllowedDiscountLevel {
	case DiscountLevelBoth:
	case DiscountLevelBillOnly:
		if rule.AppliesTo != AppliesToBill {
			return Evaluation{}, ErrDiscountLevelNotAllowed
		}
	case DiscountLevelItemOnly:
		if rule.AppliesTo != AppliesToItem {
			return Evaluation{}, ErrDiscountLevelNotAllowed
		}
	default:
		return Evaluation{}, ErrDiscountLevelNotAllowed
	}

	var raw int64
	switch rule.Type {
	case RuleTypePercentage:
		raw = int64(math.Round(float64(subtotal) * rule.Value / 100))
	case RuleTypeFlat:
		raw = int64(math.Round(rule.Value))
	}
	if raw < 0 {
		return Evaluation{}, ErrInvalidRuleValue
	}

	amount := raw
	if rule.Type == RuleTypePercentage && rule.MaxDiscountValue != nil && amount > *rule.MaxDiscountValue {
		amount = *rule.MaxDiscountValue
	}
	if policy.MaxDiscountPercentage > 0 {
		pctCap := int64(math.Round(float64(subtotal) * policy.MaxDiscountPercentage / 100))
		if amount > pctCap {
			amount = pctCap
		}
	}
	if policy.MaxDiscountAmount > 0 && amount > policy.MaxDiscountAmount {
		amount = policy.MaxDiscountAmount
	}
	if amount > subtotal {
		amount = subtotal
	}

	return Evaluation{
		RuleCode:        rule.Code,
		Amount:          amount,
		PreClampAmount:  raw,
		Clamped:         amount != raw,
		PendingApproval: rule.RequiresApproval,
		TaxTreatment:    policy.DiscountTaxConfig,
	}, nil
}

// ManualCandidate shapes a cashier override as a rule so the same pipeline
// and the same policy caps apply on both checkout paths.
func ManualCandidate(manual ManualDiscount, now time.Time) Rule {
	return Rule{
		Code:      ManualRuleCode,
		Name:      "Manual override",
		Type:      manual.Type,
		Value:     manual.Value,
		AppliesTo: AppliesToBill,
		ValidFrom: now,
		ValidTo:   now,
		IsActive:  true,
	}
}

// ComputePayable derives tax and payable for a discounted order. The tax
// treatment decides whether the discount comes off the pre-tax subtotal or
// off the tax-inclusive total; the same function serves every checkout
// path so two identical orders always pay the same amount.
func ComputePayable(subtotal, discount int64, gstRatePercent float64, taxed bool, treatment TaxTreatment) (tax int64, payable int64) {
	if discount > subtotal {
		discount = subtotal
	}
	if !taxed {
		return 0, subtotal - discount
	}

	switch treatment {
	case TaxTreatmentAfterTax:
		tax = int64(math.Round(float64(subtotal) * gstRatePercent / 100))
		payable = subtotal + tax - discount
	default: // BEFORE_TAX
		base := subtotal - discount
		tax = int64(math.Round(float64(base) * gstRatePercent / 100))
		payable = base + tax
	}
	if payable < 0 {
		payable = 0
	}
	return tax, payable
}
