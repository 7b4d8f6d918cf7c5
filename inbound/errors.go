package inbound

import (
	"net/http"

	"github.com/goliatone/go-backorder/core"
	goerrors "github.com/goliatone/go-errors"
)

// stage names the dispatch step an error came from. It is carried in the
// error metadata so a stuck trigger can be traced to the step that failed.
type stage string

const (
	stageLock   stage = "acquire distributed lock"
	stageLookup stage = "read processed ledger"
	stageBegin  stage = "begin processed request"
	stageAction stage = "run action"
	stageSettle stage = "mark request processed"
)

// stageFailure wraps err for the trigger key. Only action failures are
// reported as upstream failures; the other stages are local storage or
// locking problems.
func stageFailure(err error, at stage, key string) error {
	category := goerrors.CategoryInternal
	code := http.StatusInternalServerError
	textCode := core.ErrorInternal
	if at == stageAction {
		category = goerrors.CategoryOperation
		code = http.StatusBadGateway
		textCode = core.ErrorActionFailed
	}
	return goerrors.Wrap(err, category, "inbound: "+string(at)+" failed").
		WithCode(code).
		WithTextCode(textCode).
		WithMetadata(map[string]any{"key": key, "stage": string(at)})
}

func invalidTrigger(message string, status int, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(status).
		WithTextCode(core.ErrorBadInput)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func misconfigured(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorInternal)
}
