package command

import (
	"net/http"

	"github.com/goliatone/go-backorder/core"
	goerrors "github.com/goliatone/go-errors"
)

// missingDependency reports a handler built without one of its collaborators.
func missingDependency(name string) error {
	return goerrors.New("command: "+name+" is required", goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorInternal).
		WithMetadata(map[string]any{"dependency": name})
}

func invalidField(field string, message string) error {
	return goerrors.NewValidation("command: validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput)
}

// invalidPayload wraps a decode or validation failure on a trigger payload
// or message body; what names the thing being decoded.
func invalidPayload(err error, what string) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryValidation, "command: invalid "+what).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorBadInput)
}
