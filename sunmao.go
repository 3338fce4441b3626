// Package sunmao evaluates low-code application documents.
//
// Component properties are strings that may embed expressions in {{ }}.
// A state manager evaluates them against a shared store of component state
// and keeps them current as the store changes:
//
//	mgr := sunmao.NewStateManager(nil)
//	mgr.Store().Set("input1", map[string]any{"value": "world"})
//	v, _ := mgr.MaskedEval("Hello {{ input1.value }}!", sunmao.EvalOptions{})
//
// A Runtime does the same for every component of an application:
//
//	app, _ := sunmao.ParseApplication(data, schema.FormatYAML)
//	rt := sunmao.NewRuntime(app, mgr, nil)
//	rt.Start(ctx)
//	rt.Subscribe(func(u runtime.Update) { ... })
//
// The packages under pkg/ hold the full API; this package re-exports the
// common entry points.
package sunmao

import (
	"log/slog"

	"github.com/sunmao-dev/sunmao/pkg/runtime"
	"github.com/sunmao-dev/sunmao/pkg/schema"
	"github.com/sunmao-dev/sunmao/pkg/state"
)

// Version is the library version.
const Version = "0.1.0"

// Manager evaluates expressions against the state store.
type Manager = state.Manager

// EvalOptions control a single evaluation.
type EvalOptions = state.EvalOptions

// ExpressionError is the value of a failed evaluation.
type ExpressionError = state.ExpressionError

// WatchResult is delivered to DeepEvalAndWatch callbacks.
type WatchResult = state.WatchResult

// Application is a parsed application document.
type Application = schema.Application

// Runtime is one running instance of an application.
type Runtime = runtime.Runtime

// NewStateManager creates a state manager. dependencies are merged over
// the default helpers (dayjs and _).
func NewStateManager(dependencies map[string]any, opts ...state.Option) *Manager {
	return state.New(dependencies, opts...)
}

// ParseApplication parses and validates an application document.
func ParseApplication(data []byte, format schema.Format) (*Application, error) {
	app, err := schema.Parse(data, format)
	if err != nil {
		return nil, err
	}
	if err := app.Validate(); err != nil {
		return nil, err
	}
	return app, nil
}

// NewRuntime binds app to mgr. A nil logger uses slog.Default.
func NewRuntime(app *Application, mgr *Manager, logger *slog.Logger) *Runtime {
	return runtime.New(app, mgr, logger)
}
