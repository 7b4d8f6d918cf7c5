package transport

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-backorder/core"
	goerrors "github.com/goliatone/go-errors"
)

const maxErrorBodyExcerpt = 512

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) *goerrors.Error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// StatusError converts a non 2xx response into a go-errors envelope whose
// code is the upstream status, so callers can classify it as retryable.
func StatusError(res Response, textCode string) *goerrors.Error {
	category := statusCategory(res.StatusCode)
	if strings.TrimSpace(textCode) == "" {
		textCode = transportTextCode(category)
	}
	excerpt := strings.TrimSpace(string(res.Body))
	if len(excerpt) > maxErrorBodyExcerpt {
		excerpt = excerpt[:maxErrorBodyExcerpt]
	}
	return goerrors.New(
		fmt.Sprintf("transport: upstream responded %d %s", res.StatusCode, http.StatusText(res.StatusCode)),
		category,
	).
		WithCode(res.StatusCode).
		WithTextCode(textCode).
		WithMetadata(map[string]any{
			"adapter":     KindREST,
			"status_code": res.StatusCode,
			"body":        excerpt,
		})
}

func statusCategory(status int) goerrors.Category {
	switch {
	case status == http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit
	case status == http.StatusUnauthorized:
		return goerrors.CategoryAuth
	case status == http.StatusForbidden:
		return goerrors.CategoryAuthz
	case status == http.StatusNotFound:
		return goerrors.CategoryNotFound
	case status == http.StatusRequestTimeout:
		return goerrors.CategoryExternal
	case status >= 400 && status < 500:
		return goerrors.CategoryBadInput
	default:
		return goerrors.CategoryExternal
	}
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ErrorBadInput
	case goerrors.CategoryRateLimit:
		return core.ErrorRateLimited
	case goerrors.CategoryNotFound:
		return core.ErrorOrderNotFound
	case goerrors.CategoryExternal, goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return core.ErrorProviderRequestFailed
	default:
		return core.ErrorInternal
	}
}
