// Package apperror maps errors to the JSON error body shared by the services.
package apperror

import (
	"errors"
	"net/http"
	"time"

	"github.com/fleetmanager/backend/gomicro/jwtutil"
	"github.com/fleetmanager/backend/gomicro/logger"
	"github.com/fleetmanager/backend/gomicro/tenant"
	"github.com/fleetmanager/backend/gomicro/tenantdb"
	"github.com/fleetmanager/backend/gomicro/validation"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Error is an error with an HTTP status and a client-facing message.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an Error with the given status and message.
func New(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

// Wrap returns an Error that keeps err for errors.Is and logging.
func Wrap(status int, message string, err error) *Error {
	return &Error{Status: status, Message: message, Err: err}
}

// Common client errors.
func BadRequest(message string) *Error   { return New(http.StatusBadRequest, message) }
func NotFound(message string) *Error     { return New(http.StatusNotFound, message) }
func Conflict(message string) *Error     { return New(http.StatusConflict, message) }
func Unauthorized(message string) *Error { return New(http.StatusUnauthorized, message) }
func Forbidden(message string) *Error    { return New(http.StatusForbidden, message) }

// Body is the JSON error response.
type Body struct {
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Status    int               `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Respond writes the response for err.
func Respond(c echo.Context, err error) error {
	log := logger.FromEcho(c)
	body := Body{Timestamp: time.Now().UTC()}

	var (
		appErr   *Error
		httpErr  *echo.HTTPError
		validErr validator.ValidationErrors
	)
	switch {
	case errors.As(err, &appErr):
		body.Status, body.Message = appErr.Status, appErr.Message
		if body.Status >= http.StatusInternalServerError {
			log.Error("Request failed", zap.Error(err))
		}
	case errors.As(err, &validErr):
		body.Status, body.Message = http.StatusBadRequest, "Validation failed"
		body.Fields = validation.FieldErrors(validErr)
	case errors.Is(err, tenantdb.ErrCrossTenantOverride):
		// Kept apart from validation errors so it can be audited on its own.
		log.Error("Cross-tenant override rejected", zap.Error(err))
		body.Status, body.Message = http.StatusBadRequest, "Cross-tenant data access attempt blocked"
		body.Error = "Cross-Tenant Violation"
	case errors.Is(err, tenant.ErrMissingTenantContext):
		log.Error("Tenant context missing behind the tenant filter", zap.Error(err))
		body.Status, body.Message = http.StatusUnauthorized, "Tenant context is missing"
	case errors.Is(err, jwtutil.ErrInvalidToken), errors.Is(err, jwtutil.ErrMissingClaim):
		body.Status, body.Message = http.StatusUnauthorized, "Invalid or expired token"
	case errors.Is(err, gorm.ErrRecordNotFound):
		body.Status, body.Message = http.StatusNotFound, "Resource not found"
	case errors.As(err, &httpErr):
		body.Status = httpErr.Code
		if msg, ok := httpErr.Message.(string); ok {
			body.Message = msg
		} else {
			body.Message = http.StatusText(httpErr.Code)
		}
	default:
		log.Error("Unhandled error", zap.Error(err))
		body.Status, body.Message = http.StatusInternalServerError, "An unexpected error occurred"
	}

	if body.Error == "" {
		body.Error = http.StatusText(body.Status)
	}
	return c.JSON(body.Status, body)
}

// HTTPErrorHandler is an echo.HTTPErrorHandler built on Respond.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(statusOf(err))
		return
	}
	if rerr := Respond(c, err); rerr != nil {
		logger.FromEcho(c).Error("Failed to write error response", zap.Error(rerr))
	}
}

func statusOf(err error) int {
	var appErr *Error
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		return appErr.Status
	case errors.As(err, &httpErr):
		return httpErr.Code
	}
	return http.StatusInternalServerError
}
