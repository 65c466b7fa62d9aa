package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/robsonalexmmf/contact-pilot-system-sub002/app/models"

	"github.com/gin-gonic/gin"
)

var (
	// ErrConfiguration marks a missing required secret.
	ErrConfiguration = errors.New("payment gateway not configured")
	// ErrAuth marks a missing or invalid credential.
	ErrAuth = errors.New("unauthorized")
	// ErrValidation marks an unsupported request.
	ErrValidation = errors.New("invalid request")
)

// GatewayError is a non-success response or a transport failure from the
// payment gateway. StatusCode is 0 for transport failures.
type GatewayError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("payment gateway unreachable: %v", e.Err)
	}
	switch {
	case e.Body != "":
		return fmt.Sprintf("payment gateway error: status %d: %s", e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("payment gateway error: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("payment gateway error: status %d", e.StatusCode)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// errorKind labels an error for metrics.
func errorKind(err error) string {
	var gwErr *GatewayError
	switch {
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.As(err, &gwErr):
		return "gateway"
	default:
		return "internal"
	}
}

// respondError collapses every checkout failure into the single error shape.
func respondError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
}
