package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/countercore/tally/internal/checkout/domain"
	discountdomain "github.com/countercore/tally/internal/discount/domain"
	invoicedomain "github.com/countercore/tally/internal/invoice/domain"
	loyaltydomain "github.com/countercore/tally/internal/loyalty/domain"
	orderdomain "github.com/countercore/tally/internal/order/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrInternal       = errors.New("internal_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    err.Error(),
			Message: "validation error",
		}
	case isPolicyViolation(err):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "policy_violation",
			Code:    err.Error(),
			Message: "policy violation",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    err.Error(),
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Code:    err.Error(),
			Message: "not found",
		}
	case errors.Is(err, checkoutdomain.ErrSubmitFailed):
		return http.StatusBadGateway, errorPayload{
			Type:    "collaborator_error",
			Code:    err.Error(),
			Message: "invoice submission failed; the checkout may be retried",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Code:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, orderdomain.ErrEmptyOrder),
		errors.Is(err, orderdomain.ErrInvalidQuantity),
		errors.Is(err, orderdomain.ErrInvalidUnitPrice),
		errors.Is(err, orderdomain.ErrInvalidLineDiscount),
		errors.Is(err, orderdomain.ErrInvalidBillingMode),
		errors.Is(err, discountdomain.ErrRuleInactive),
		errors.Is(err, discountdomain.ErrRuleNotInWindow),
		errors.Is(err, discountdomain.ErrMinOrderValueNotMet),
		errors.Is(err, discountdomain.ErrInvalidRuleCode),
		errors.Is(err, discountdomain.ErrInvalidRuleName),
		errors.Is(err, discountdomain.ErrInvalidRuleType),
		errors.Is(err, discountdomain.ErrInvalidRuleValue),
		errors.Is(err, discountdomain.ErrInvalidValidityWindow),
		errors.Is(err, discountdomain.ErrInvalidSubtotal),
		errors.Is(err, discountdomain.ErrInvalidCandidate),
		errors.Is(err, discountdomain.ErrInvalidInvoiceRef),
		errors.Is(err, discountdomain.ErrInvalidActor),
		errors.Is(err, loyaltydomain.ErrInvalidCustomer),
		errors.Is(err, loyaltydomain.ErrInvalidPoints),
		errors.Is(err, loyaltydomain.ErrInsufficientPoints),
		errors.Is(err, loyaltydomain.ErrInvalidThresholds),
		errors.Is(err, checkoutdomain.ErrInvalidID),
		errors.Is(err, checkoutdomain.ErrInvalidMethod),
		errors.Is(err, checkoutdomain.ErrInvalidAmount),
		errors.Is(err, checkoutdomain.ErrInvalidUPI),
		errors.Is(err, checkoutdomain.ErrNoMethodSelected),
		errors.Is(err, checkoutdomain.ErrMethodMismatch),
		errors.Is(err, checkoutdomain.ErrPaymentInvalid),
		errors.Is(err, invoicedomain.ErrInvalidSubmission):
		return true
	default:
		return false
	}
}

func isPolicyViolation(err error) bool {
	switch {
	case errors.Is(err, discountdomain.ErrDiscountsDisabled),
		errors.Is(err, discountdomain.ErrRuleTypeNotAllowed),
		errors.Is(err, discountdomain.ErrDiscountLevelNotAllowed),
		errors.Is(err, discountdomain.ErrApprovalRequired):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, discountdomain.ErrDuplicateApplication),
		errors.Is(err, discountdomain.ErrRuleExists),
		errors.Is(err, checkoutdomain.ErrAlreadyConfirmed),
		errors.Is(err, checkoutdomain.ErrConfirmInFlight),
		errors.Is(err, checkoutdomain.ErrInvalidTransition):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, discountdomain.ErrRuleNotFound),
		errors.Is(err, discountdomain.ErrPolicyNotFound),
		errors.Is(err, checkoutdomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
