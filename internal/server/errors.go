package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	gatewaydomain "github.com/smallbiznis/payway/internal/gateway/domain"
	methoddomain "github.com/smallbiznis/payway/internal/method/domain"
	orderdomain "github.com/smallbiznis/payway/internal/order/domain"
	profiledomain "github.com/smallbiznis/payway/internal/profile/domain"
	txnlogdomain "github.com/smallbiznis/payway/internal/txnlog/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

// ErrorHandlingMiddleware turns errors recorded on the gin context into one
// JSON error response after the handler chain finishes.
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
	case err == nil:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}

	// Entry point misses deliberately read as forbidden, not as a routing 404.
	case errors.Is(err, gatewaydomain.ErrEntryPointNotFound):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}

	case errors.Is(err, gatewaydomain.ErrGatewayNotFound),
		errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, txnlogdomain.ErrNotFound),
		errors.Is(err, methoddomain.ErrNotFound),
		errors.Is(err, profiledomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}

	case errors.Is(err, gatewaydomain.ErrAlreadyProcessed),
		errors.Is(err, orderdomain.ErrAlreadyProcessed):
		return http.StatusConflict, errorPayload{
			Type:    "already_processed",
			Message: "payment has already been processed",
		}

	// Validation failures surface their interpolated message to the caller.
	case errors.Is(err, gatewaydomain.ErrBelowMinimumTotal),
		errors.Is(err, gatewaydomain.ErrPaymentMethodMismatch),
		errors.Is(err, gatewaydomain.ErrRefundExceedsTotal),
		errors.Is(err, gatewaydomain.ErrNoChargeToRefund),
		errors.Is(err, gatewaydomain.ErrNothingToRefund),
		errors.Is(err, gatewaydomain.ErrNotImplemented),
		errors.Is(err, methoddomain.ErrInvalidMethod),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}

	case errors.Is(err, gatewaydomain.ErrWebhookSignature):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_signature",
			Message: "webhook signature verification failed",
		}

	// Provider failures never leak the raw payload; it lives in the log.
	case errors.Is(err, gatewaydomain.ErrProvider):
		return http.StatusBadGateway, errorPayload{
			Type:    "provider_error",
			Message: "payment could not be completed, please try again later",
		}

	case errors.Is(err, gatewaydomain.ErrConfiguration):
		return http.StatusInternalServerError, errorPayload{
			Type:    "configuration_error",
			Message: "payment method is not configured correctly",
		}

	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger's error fields.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	return payload.Type, payload.Type
}
