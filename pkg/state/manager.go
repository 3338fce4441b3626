package state

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/sunmao-dev/sunmao/pkg/deps"
	"github.com/sunmao-dev/sunmao/pkg/expression"
	"github.com/sunmao-dev/sunmao/pkg/reactive"
)

// Manager evaluates expressions against the component state store.
type Manager struct {
	rt     *reactive.Runtime
	logger *slog.Logger

	mu       sync.RWMutex
	store    *reactive.Store
	slots    *reactive.Store
	defaults map[string]any
	deps     map[string]any

	noConsoleError atomic.Bool

	cacheSize int
	cache     *expression.Cache
	metrics   *Metrics
}

// New creates a manager whose dependencies are dependencies merged over the
// defaults (dayjs and _). A nil map is allowed.
func New(dependencies map[string]any, opts ...Option) *Manager {
	m := &Manager{
		rt:        reactive.NewRuntime(),
		logger:    slog.Default().With("component", "state"),
		cacheSize: defaultCacheSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.defaults == nil {
		m.defaults = deps.Defaults()
	}
	m.store = reactive.NewStore(m.rt)
	m.slots = reactive.NewStore(m.rt)
	m.deps = deps.Merge(m.defaults, dependencies)
	m.cache = expression.NewCache(m.cacheSize)
	return m
}

// Runtime returns the reactive runtime shared by the store and the slot
// store.
func (m *Manager) Runtime() *reactive.Runtime {
	return m.rt
}

// Store returns the component state store.
func (m *Manager) Store() *reactive.Store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store
}

// SlotStore returns the store $slot reads from, keyed by slot key.
func (m *Manager) SlotStore() *reactive.Store {
	return m.slots
}

// Dependencies returns a copy of the current dependency map.
func (m *Manager) Dependencies() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return deps.Merge(m.deps, nil)
}

// SetDependencies replaces the host dependencies. The defaults are always
// kept underneath.
func (m *Manager) SetDependencies(dependencies map[string]any) {
	merged := deps.Merge(m.defaults, dependencies)
	m.mu.Lock()
	m.deps = merged
	m.mu.Unlock()
}

// Clear replaces the store with an empty one. Watchers installed before the
// call stay subscribed to the discarded store, so store writes no longer
// reach them. A watcher that re-runs for another reason, such as a slot
// write, reads the new store from then on. Callers re-run DeepEvalAndWatch
// to follow the new store fully.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.store = reactive.NewStore(m.rt)
	m.mu.Unlock()
}

// SetNoConsoleError suppresses (or re-enables) logging of expression
// errors.
func (m *Manager) SetNoConsoleError(v bool) {
	m.noConsoleError.Store(v)
}

// NoConsoleError reports whether expression errors are being logged.
func (m *Manager) NoConsoleError() bool {
	return m.noConsoleError.Load()
}

// storeScope resolves names from the store. Reads are tracked.
type storeScope struct {
	store *reactive.Store
}

func (s storeScope) Lookup(name string) (any, bool) {
	return s.store.Get(name)
}

// scope builds the lookup chain for one evaluation.
func (m *Manager) scope(opts EvalOptions) expression.Scope {
	local := expression.MapScope(opts.ScopeObject)
	if opts.OverrideScope {
		return local
	}
	m.mu.RLock()
	dependencies, store := m.deps, m.store
	m.mu.RUnlock()
	return expression.Layers{local, expression.MapScope(dependencies), storeScope{store}}
}

// EvalSegment evaluates one segment of a parsed chunk. Literal segments
// are returned as is.
func (m *Manager) EvalSegment(seg expression.Segment, opts EvalOptions) (any, error) {
	if !seg.Dynamic {
		return seg.Text, nil
	}
	return m.EvalChunk(seg.Inner, opts)
}

// EvalChunk evaluates the inner chunk of a dynamic segment. Nested dynamic
// segments are evaluated first and their values spliced into the
// expression text, so "{{ {{ key }}.value }}" reads the component whose id
// is the value of key.
//
// With IgnoreEvalError a failure yields the text wrapped back in braces
// instead of an error.
func (m *Manager) EvalChunk(chunk expression.Chunk, opts EvalOptions) (any, error) {
	var text strings.Builder
	for _, seg := range chunk {
		v, err := m.EvalSegment(seg, opts)
		if err != nil {
			return nil, err
		}
		text.WriteString(expression.ToString(v))
	}

	src := text.String()
	v, err := m.run(strings.TrimLeftFunc(src, unicode.IsSpace), opts)
	if err != nil {
		if opts.IgnoreEvalError {
			return "{{" + src + "}}", nil
		}
		return nil, err
	}
	return v, nil
}

func (m *Manager) run(src string, opts EvalOptions) (any, error) {
	prog, err := m.cache.Compile(src)
	if err != nil {
		return nil, err
	}
	return prog.Eval(m.scope(opts))
}

// MaskedEval evaluates a raw property string:
//
//   - numeric strings become numbers and "true"/"false" booleans
//   - strings without {{ }} are returned unchanged
//   - a single dynamic segment yields its value with its own type
//   - anything else yields the concatenated string
//
// A failure is logged unless logging is suppressed. It then returns the
// FallbackWhenError result with a nil error when a fallback is set, or an
// *ExpressionError otherwise.
func (m *Manager) MaskedEval(raw string, opts EvalOptions) (any, error) {
	start := time.Now()
	v, err := m.maskedEval(raw, opts)
	elapsed := time.Since(start)
	if elapsed > slowEvalThreshold {
		m.logger.Debug("slow expression", "expression", raw, "duration", elapsed)
	}

	if err == nil {
		m.metrics.recordEval("ok", elapsed.Seconds())
		return v, nil
	}

	exprErr := &ExpressionError{Raw: raw, Err: err}
	if !m.noConsoleError.Load() && !opts.Silent {
		m.logger.Error("expression error", "expression", raw, "error", exprErr.Error())
	}
	if opts.FallbackWhenError != nil {
		m.metrics.recordEval("fallback", elapsed.Seconds())
		return opts.FallbackWhenError(raw), nil
	}
	m.metrics.recordEval("error", elapsed.Seconds())
	return nil, exprErr
}

func (m *Manager) maskedEval(raw string, opts EvalOptions) (any, error) {
	if n, ok := expression.ParseNumeric(raw); ok {
		return n, nil
	}
	switch raw {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}

	chunk := expression.ParseChunk(raw, expression.ParseListItem(opts.EvalListItem))
	if !chunk.IsDynamic() {
		return raw, nil
	}

	if len(chunk) == 1 {
		return m.EvalSegment(chunk[0], opts)
	}
	var out strings.Builder
	for _, seg := range chunk {
		v, err := m.EvalSegment(seg, opts)
		if err != nil {
			return nil, err
		}
		out.WriteString(expression.ToString(v))
	}
	return out.String(), nil
}

// Evaluate is MaskedEval folded into a single value: a failure is returned
// as the *ExpressionError itself. It is the form stored at tree leaves.
func (m *Manager) Evaluate(raw string, opts EvalOptions) any {
	v, err := m.MaskedEval(raw, opts)
	if err != nil {
		return err
	}
	return v
}

// slotObject backs $slot. It reads the slot store entry for key and never
// fails: without a key, or for a missing entry, every property is nil.
type slotObject struct {
	slots *reactive.Store
	key   string
}

func (s slotObject) Property(name string) (any, bool) {
	if s.key == "" {
		return nil, true
	}
	v, ok := s.slots.Get(s.key)
	if !ok {
		return nil, true
	}
	prop, err := expression.Member(v, name)
	if err != nil {
		return nil, true
	}
	return prop, true
}
