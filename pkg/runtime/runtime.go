// Package runtime binds an application document to a state manager: it
// keeps the evaluated properties of every component current as the state
// store changes and reports each change to subscribers.
package runtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	serrors "github.com/sunmao-dev/sunmao/internal/errors"
	"github.com/sunmao-dev/sunmao/pkg/schema"
	"github.com/sunmao-dev/sunmao/pkg/state"
)

const tracerName = "github.com/sunmao-dev/sunmao/pkg/runtime"

// RenderedTrait is a trait with evaluated properties.
type RenderedTrait struct {
	Type       string `json:"type"`
	Properties any    `json:"properties"`
}

// RenderedComponent is a component with evaluated properties. Property
// trees are shared between renders and must not be modified.
type RenderedComponent struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Properties any             `json:"properties"`
	Traits     []RenderedTrait `json:"traits"`
	SlotKey    string          `json:"slotKey,omitempty"`
}

// Update describes one changed leaf.
type Update struct {
	Component string `json:"component"`

	// Trait is the index of the trait whose properties changed, or -1 for
	// the component's own properties.
	Trait     int    `json:"trait"`
	TraitType string `json:"traitType,omitempty"`

	Path  []any `json:"path"`
	Value any   `json:"value"`

	// Properties is the whole new property tree the leaf belongs to.
	Properties any `json:"properties"`
}

// Runtime is one running instance of an application.
type Runtime struct {
	mgr    *state.Manager
	logger *slog.Logger
	tracer trace.Tracer

	// ops serializes everything that runs inside the reactive runtime:
	// lifecycle changes, writes and Evaluate. The reactive runtime has a
	// single tracking listener, so two of these must never interleave.
	// Subscribers run while ops is held and must not call back into these
	// methods.
	ops sync.Mutex

	// lifecycle guards app and running.
	lifecycle sync.Mutex
	app       *schema.Application
	running   bool
	stops     []state.StopFunc

	mu       sync.RWMutex
	gen      uint64
	rendered []RenderedComponent

	subMu   sync.RWMutex
	subs    map[uint64]func(Update)
	nextSub uint64
}

// New creates a runtime for app. It does nothing until Start.
func New(app *schema.Application, mgr *state.Manager, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		app:    app,
		mgr:    mgr,
		logger: logger.With("component", "runtime"),
		tracer: otel.Tracer(tracerName),
		subs:   make(map[uint64]func(Update)),
	}
}

// Manager returns the state manager.
func (r *Runtime) Manager() *state.Manager {
	return r.mgr
}

// App returns the current application document.
func (r *Runtime) App() *schema.Application {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	return r.app
}

// Running reports whether Start has been called without a matching Stop.
func (r *Runtime) Running() bool {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	return r.running
}

// Start evaluates and watches the properties of every component and of
// every trait. Starting a running runtime does nothing.
func (r *Runtime) Start(ctx context.Context) error {
	r.ops.Lock()
	defer r.ops.Unlock()
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	return r.start(ctx)
}

func (r *Runtime) start(ctx context.Context) error {
	if r.running {
		return nil
	}
	if r.app == nil {
		return serrors.New("E401")
	}

	_, span := r.tracer.Start(ctx, "runtime.Start", trace.WithAttributes(
		attribute.String("sunmao.app", r.app.Metadata.Name),
		attribute.Int("sunmao.components", len(r.app.Spec.Components)),
	))
	defer span.End()

	r.warnUnresolved()

	components := r.app.Spec.Components
	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.rendered = make([]RenderedComponent, len(components))
	for i, c := range components {
		r.rendered[i] = RenderedComponent{ID: c.ID, Type: c.Type, Traits: make([]RenderedTrait, len(c.Traits))}
		for j, t := range c.Traits {
			r.rendered[i].Traits[j].Type = t.Type
		}
	}
	r.mu.Unlock()

	for i, c := range components {
		var opts state.EvalOptions
		if container, slot, ok := c.Slot(); ok {
			opts.SlotKey = schema.SlotKey(container, slot, "")
		}

		props, stop := r.mgr.DeepEvalAndWatch(c.Properties, r.watcher(gen, i, -1), opts)
		r.stops = append(r.stops, stop)
		traits := make([]any, len(c.Traits))
		for j, t := range c.Traits {
			traits[j], stop = r.mgr.DeepEvalAndWatch(t.Properties, r.watcher(gen, i, j), opts)
			r.stops = append(r.stops, stop)
		}

		r.mu.Lock()
		rc := &r.rendered[i]
		rc.SlotKey = opts.SlotKey
		// A watcher may already have replaced a tree that changed during
		// evaluation; keep the newer one.
		if rc.Properties == nil {
			rc.Properties = props
		}
		for j := range traits {
			if rc.Traits[j].Properties == nil {
				rc.Traits[j].Properties = traits[j]
			}
		}
		r.mu.Unlock()
	}

	r.running = true
	r.logger.Info("runtime started",
		"app", r.app.Metadata.Name,
		"components", len(components),
		"watches", len(r.stops))
	return nil
}

func (r *Runtime) warnUnresolved() {
	deps := r.mgr.Dependencies()
	refs := r.app.CheckReferences(func(name string) bool {
		if _, ok := deps[name]; ok {
			return true
		}
		return r.mgr.Store().Has(name)
	})
	for _, ref := range refs {
		r.logger.Warn("unresolved reference",
			"component", ref.Component,
			"trait", ref.Trait,
			"property", ref.Property,
			"name", ref.Name)
	}
}

// watcher returns the DeepEvalAndWatch callback for one property tree.
func (r *Runtime) watcher(gen uint64, component, trait int) func(state.WatchResult) {
	return func(res state.WatchResult) {
		r.mu.Lock()
		if gen != r.gen || component >= len(r.rendered) {
			r.mu.Unlock()
			return
		}
		rc := &r.rendered[component]
		u := Update{Component: rc.ID, Trait: trait, Path: res.Path, Value: res.Value, Properties: res.Result}
		if trait < 0 {
			rc.Properties = res.Result
		} else {
			rc.Traits[trait].Properties = res.Result
			u.TraitType = rc.Traits[trait].Type
		}
		r.mu.Unlock()

		r.logger.Debug("component updated", "id", u.Component, "trait", u.Trait, "path", u.Path)
		r.publish(u)
	}
}

// Stop stops every watch. The last render stays readable.
func (r *Runtime) Stop() {
	r.ops.Lock()
	defer r.ops.Unlock()
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	r.stop()
}

func (r *Runtime) stop() {
	for _, stop := range r.stops {
		stop()
	}
	r.stops = nil
	if r.running {
		r.logger.Info("runtime stopped")
	}
	r.running = false
}

// Reload stops the runtime, swaps in app and starts again. The state store
// is kept, so values entered by users survive.
func (r *Runtime) Reload(ctx context.Context, app *schema.Application) error {
	ctx, span := r.tracer.Start(ctx, "runtime.Reload")
	defer span.End()

	r.ops.Lock()
	defer r.ops.Unlock()
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	r.stop()
	r.app = app
	return r.start(ctx)
}

// Reset discards the state store and starts again from empty state.
func (r *Runtime) Reset(ctx context.Context) error {
	r.ops.Lock()
	defer r.ops.Unlock()
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	wasRunning := r.running
	r.stop()
	r.mgr.Clear()
	if !wasRunning {
		return nil
	}
	return r.start(ctx)
}

// Render returns the current rendered components in document order.
func (r *Runtime) Render() []RenderedComponent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RenderedComponent, len(r.rendered))
	for i, rc := range r.rendered {
		out[i] = rc
		out[i].Traits = make([]RenderedTrait, len(rc.Traits))
		copy(out[i].Traits, rc.Traits)
	}
	return out
}

// Component returns the rendered component with id.
func (r *Runtime) Component(id string) (RenderedComponent, error) {
	for _, rc := range r.Render() {
		if rc.ID == id {
			return rc, nil
		}
	}
	return RenderedComponent{}, serrors.New("E301").WithDetail(id)
}

// Subscribe registers fn for every Update and returns a function that
// removes it. fn runs synchronously on the goroutine that wrote the store,
// inside that write, so it must not write state or call Evaluate itself.
func (r *Runtime) Subscribe(fn func(Update)) (unsubscribe func()) {
	r.subMu.Lock()
	r.nextSub++
	id := r.nextSub
	r.subs[id] = fn
	r.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, id)
			r.subMu.Unlock()
		})
	}
}

func (r *Runtime) publish(u Update) {
	r.subMu.RLock()
	ids := make([]uint64, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(Update), len(ids))
	for i, id := range ids {
		fns[i] = r.subs[id]
	}
	r.subMu.RUnlock()

	for _, fn := range fns {
		fn(u)
	}
}

// SetState replaces the state of id.
func (r *Runtime) SetState(id string, value any) {
	r.ops.Lock()
	defer r.ops.Unlock()
	r.mgr.Store().Set(id, schema.Normalize(value))
}

// MergeState sets each field of partial inside the state of id. Watchers
// run once after all fields are written.
func (r *Runtime) MergeState(id string, partial map[string]any) {
	r.ops.Lock()
	defer r.ops.Unlock()
	store := r.mgr.Store()
	keys := make([]string, 0, len(partial))
	for k := range partial {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	r.mgr.Runtime().Batch(func() {
		if _, ok := store.Peek(id); !ok {
			store.Set(id, map[string]any{})
		}
		for _, k := range keys {
			store.SetIn(id, []any{k}, schema.Normalize(partial[k]))
		}
	})
}

// State returns the current state of id without subscribing.
func (r *Runtime) State(id string) (any, bool) {
	return r.mgr.Store().Peek(id)
}

// SetSlot stores the variables a container passes into one of its slots.
func (r *Runtime) SetSlot(key string, vars map[string]any) {
	r.ops.Lock()
	defer r.ops.Unlock()
	r.mgr.SlotStore().Set(key, schema.Normalize(vars))
}

// ClearSlot removes the variables of a slot.
func (r *Runtime) ClearSlot(key string) {
	r.ops.Lock()
	defer r.ops.Unlock()
	r.mgr.SlotStore().Delete(key)
}

// Evaluate runs an ad-hoc expression against the current state, as the
// editor console does. Failures are returned, not logged.
func (r *Runtime) Evaluate(raw string, scope map[string]any) (any, error) {
	r.ops.Lock()
	defer r.ops.Unlock()
	var v any
	var err error
	// Reads here must not subscribe whatever watcher is running.
	r.mgr.Runtime().Untracked(func() {
		v, err = r.mgr.MaskedEval(raw, state.EvalOptions{ScopeObject: scope, Silent: true})
	})
	return v, err
}
