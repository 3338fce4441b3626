package state

import (
	"log/slog"
	"time"

	"github.com/sunmao-dev/sunmao/pkg/reactive"
)

// EvalOptions control a single evaluation.
type EvalOptions struct {
	// ScopeObject holds the innermost names, such as $listItem or $slot.
	ScopeObject map[string]any

	// OverrideScope hides the dependencies and the store, leaving only
	// ScopeObject and the language globals.
	OverrideScope bool

	// FallbackWhenError, when set, produces the result of a failed
	// evaluation from the raw string. The error is still logged.
	FallbackWhenError func(raw string) any

	// IgnoreEvalError turns a failing expression into its own source text,
	// "{{" + text + "}}", instead of an error.
	IgnoreEvalError bool

	// SlotKey selects the slot store entry that $slot reads from.
	SlotKey string

	// EvalListItem enables parsing of strings that reference $listItem.
	EvalListItem bool

	// Silent suppresses the error log of this evaluation only.
	Silent bool
}

// withScope returns a copy of o whose scope object is extended by extra.
// The caller's map is never modified.
func (o EvalOptions) withScope(extra map[string]any) EvalOptions {
	scope := make(map[string]any, len(o.ScopeObject)+len(extra))
	for k, v := range o.ScopeObject {
		scope[k] = v
	}
	for k, v := range extra {
		scope[k] = v
	}
	o.ScopeObject = scope
	return o
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger expression errors are reported to.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics records evaluation and watch metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithDefaults replaces the default dependencies that SetDependencies
// merges over. Mostly useful to pin the clock in tests.
func WithDefaults(defaults map[string]any) Option {
	return func(m *Manager) {
		m.defaults = defaults
	}
}

// WithRuntime shares a reactive runtime with other stores.
func WithRuntime(rt *reactive.Runtime) Option {
	return func(m *Manager) {
		if rt != nil {
			m.rt = rt
		}
	}
}

// WithCacheSize bounds the compiled expression cache. Zero means
// unbounded.
func WithCacheSize(n int) Option {
	return func(m *Manager) {
		m.cacheSize = n
	}
}

// WithNoConsoleError starts the manager with error logging suppressed.
func WithNoConsoleError() Option {
	return func(m *Manager) {
		m.noConsoleError.Store(true)
	}
}

// defaultCacheSize is large enough for the expressions of a typical
// application.
const defaultCacheSize = 4096

// slowEvalThreshold marks evaluations that are logged at debug level.
const slowEvalThreshold = 50 * time.Millisecond
