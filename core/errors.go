package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput               = "BACKORDER_BAD_INPUT"
	ErrorOrderNotFound          = "ORDER_NOT_FOUND"
	ErrorRequestNotFound        = "PROCESSED_REQUEST_NOT_FOUND"
	ErrorOrderAlreadyTerminal   = "ORDER_ALREADY_TERMINAL"
	ErrorBreakerOpen            = "BREAKER_OPEN"
	ErrorProviderRequestFailed  = "PROVIDER_REQUEST_FAILED"
	ErrorRegistrarRequestFailed = "REGISTRAR_REQUEST_FAILED"
	ErrorDispatchInProgress     = "DISPATCH_IN_PROGRESS"
	ErrorActionFailed           = "DISPATCH_ACTION_FAILED"
	ErrorLockHeld               = "LOCK_HELD"
	ErrorRateLimited            = "BACKORDER_RATE_LIMITED"
	ErrorInternal               = "BACKORDER_INTERNAL_ERROR"
)

type ErrorKind string

const (
	ErrorKindNone        ErrorKind = "none"
	ErrorKindTransient   ErrorKind = "transient"
	ErrorKindPermanent   ErrorKind = "permanent"
	ErrorKindBreakerOpen ErrorKind = "breaker_open"
)

func NewError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(goerrors.New(message, category).WithTextCode(textCode))
}

func WrapError(err error, category goerrors.Category, message string, textCode string) *goerrors.Error {
	if err == nil {
		return nil
	}
	return ensureErrorEnvelope(goerrors.Wrap(err, category, message).WithTextCode(textCode))
}

func NewBreakerOpenError(name string) *goerrors.Error {
	return NewError("circuit breaker open", goerrors.CategoryExternal, ErrorBreakerOpen).
		WithCode(http.StatusServiceUnavailable).
		WithMetadata(map[string]any{"breaker": name})
}

func NewOrderNotFoundError(orderID string) *goerrors.Error {
	return NewError("tracked order not found", goerrors.CategoryNotFound, ErrorOrderNotFound).
		WithMetadata(map[string]any{"order_id": orderID})
}

func NewOrderTerminalError(orderID string) *goerrors.Error {
	return NewError("tracked order already terminal", goerrors.CategoryConflict, ErrorOrderAlreadyTerminal).
		WithMetadata(map[string]any{"order_id": orderID})
}

func HasTextCode(err error, textCode string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCode
}

func IsNotFound(err error) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category == goerrors.CategoryNotFound
	}
	return false
}

// ClassifyError decides whether a failed downstream call is worth trying
// again on the next tick.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTransient
	}
	if errors.Is(err, context.Canceled) {
		return ErrorKindPermanent
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return ErrorKindTransient
	}
	if richErr.TextCode == ErrorBreakerOpen {
		return ErrorKindBreakerOpen
	}
	switch richErr.Category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation,
		goerrors.CategoryAuth, goerrors.CategoryAuthz, goerrors.CategoryNotFound:
		return ErrorKindPermanent
	case goerrors.CategoryRateLimit:
		return ErrorKindTransient
	}
	switch {
	case richErr.Code == http.StatusTooManyRequests, richErr.Code >= 500:
		return ErrorKindTransient
	case richErr.Code >= 400:
		return ErrorKindPermanent
	}
	return ErrorKindTransient
}

func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return NewError(err.Error(), goerrors.CategoryNotFound, ErrorOrderNotFound)
	case strings.Contains(msg, "lock") && strings.Contains(msg, "held"):
		return NewError(err.Error(), goerrors.CategoryConflict, ErrorLockHeld)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return NewError(err.Error(), goerrors.CategoryRateLimit, ErrorRateLimited)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return NewError(err.Error(), goerrors.CategoryBadInput, ErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorOrderNotFound
	case goerrors.CategoryConflict:
		return ErrorLockHeld
	case goerrors.CategoryRateLimit:
		return ErrorRateLimited
	default:
		return ErrorInternal
	}
}

func httpStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
