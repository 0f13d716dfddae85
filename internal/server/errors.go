package server

import (
	"errors"
	"net/http"
	"strings"

	analyticsdomain "github.com/classbill/classbill/internal/analytics/domain"
	"github.com/classbill/classbill/internal/authorization"
	organizationdomain "github.com/classbill/classbill/internal/organization/domain"
	paymentdomain "github.com/classbill/classbill/internal/payment/domain"
	plandomain "github.com/classbill/classbill/internal/plan/domain"
	promodomain "github.com/classbill/classbill/internal/promo/domain"
	subscriptiondomain "github.com/classbill/classbill/internal/subscription/domain"
	transactiondomain "github.com/classbill/classbill/internal/transaction/domain"
	usagedomain "github.com/classbill/classbill/internal/usage/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
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

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, subscriptiondomain.ErrPermissionDenied):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, usagedomain.ErrLimitReached):
		return http.StatusConflict, errorPayload{
			Type:    "limit_reached",
			Message: "resource limit reached for current plan",
		}
	case errors.Is(err, paymentdomain.ErrVerificationFailed):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "payment_failed",
			Message: "payment verification failed",
		}
	case errors.Is(err, paymentdomain.ErrAmountMismatch):
		return http.StatusPaymentRequired, errorPayload{
			Type:    "payment_failed",
			Message: "payment amount does not match the plan price",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, plandomain.ErrInvalidPlanTier),
		errors.Is(err, plandomain.ErrUnsupportedCurrency),
		errors.Is(err, organizationdomain.ErrInvalidName),
		errors.Is(err, organizationdomain.ErrInvalidEmail),
		errors.Is(err, organizationdomain.ErrInvalidRole),
		errors.Is(err, usagedomain.ErrInvalidResource),
		errors.Is(err, usagedomain.ErrInvalidOrganization),
		errors.Is(err, subscriptiondomain.ErrInvalidOrganization),
		errors.Is(err, transactiondomain.ErrInvalidReference),
		errors.Is(err, transactiondomain.ErrInvalidStatus),
		errors.Is(err, analyticsdomain.ErrInvalidEvent),
		errors.Is(err, promodomain.ErrInvalidPromo),
		errors.Is(err, promodomain.ErrPromoExpired),
		errors.Is(err, promodomain.ErrPromoExhausted),
		errors.Is(err, promodomain.ErrPromoCurrencyMismatch):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, organizationdomain.ErrOrganizationNotFound),
		errors.Is(err, organizationdomain.ErrMemberNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, usagedomain.ErrUserNotInOrganization),
		errors.Is(err, promodomain.ErrPromoNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, subscriptiondomain.ErrSubscriptionExists),
		errors.Is(err, subscriptiondomain.ErrAlreadyOnPlan),
		errors.Is(err, subscriptiondomain.ErrInvalidTransition),
		errors.Is(err, usagedomain.ErrUsageUnderflow),
		errors.Is(err, organizationdomain.ErrSlugTaken):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, subscriptiondomain.ErrAlreadyOnPlan):
		return "organization is already on this plan"
	case errors.Is(err, subscriptiondomain.ErrInvalidTransition):
		return "subscription state does not allow this transition"
	case errors.Is(err, usagedomain.ErrUsageUnderflow):
		return "usage counter is already zero"
	case errors.Is(err, organizationdomain.ErrSlugTaken):
		return "organization name is taken"
	default:
		return "conflict"
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return strings.TrimSpace(err.Error())
}

func validationErrorField(code string) string {
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
