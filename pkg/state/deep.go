package state

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/sunmao-dev/sunmao/pkg/expression"
	"github.com/sunmao-dev/sunmao/pkg/reactive"
)

// MapValuesDeep returns a copy of tree with fn applied to every leaf. Maps
// and slices are walked; everything else is a leaf. path holds map keys as
// strings and slice indices as ints.
func MapValuesDeep(tree any, fn func(value any, path []any) any) any {
	return mapValuesDeep(tree, fn, nil)
}

func mapValuesDeep(v any, fn func(value any, path []any) any, path []any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = mapValuesDeep(child, fn, appendPath(path, k))
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = mapValuesDeep(child, fn, appendPath(path, i))
		}
		return out
	}
	return fn(v, path)
}

// appendPath never shares a backing array between siblings.
func appendPath(path []any, seg any) []any {
	out := make([]any, len(path), len(path)+1)
	copy(out, path)
	return append(out, seg)
}

// SetIn returns a copy of tree with value at path. Untouched subtrees are
// shared with tree.
func SetIn(tree any, path []any, value any) any {
	return reactive.SetPath(tree, path, value)
}

func (m *Manager) leafOptions(opts EvalOptions) EvalOptions {
	return opts.withScope(map[string]any{
		"$slot": slotObject{slots: m.slots, key: opts.SlotKey},
	})
}

// DeepEval evaluates every string leaf of tree. A failing leaf holds its
// *ExpressionError; the rest of the tree is still evaluated.
func (m *Manager) DeepEval(tree any, opts EvalOptions) any {
	opts = m.leafOptions(opts)
	return MapValuesDeep(tree, func(v any, _ []any) any {
		s, ok := v.(string)
		if !ok {
			return v
		}
		return m.Evaluate(s, opts)
	})
}

// WatchResult is delivered to a DeepEvalAndWatch callback.
type WatchResult struct {
	// Result is the whole evaluated tree after the change.
	Result any

	// Path and Value identify the leaf that changed.
	Path  []any
	Value any
}

// StopFunc stops every watcher installed by one DeepEvalAndWatch call. It
// may be called more than once.
type StopFunc func()

// DeepEvalAndWatch evaluates tree like DeepEval and watches each dynamic
// leaf. When the value of a leaf changes, the last result is copied along
// the path of that leaf only, so other subtrees keep their identity, and
// fn receives the new tree. Each leaf reports on its own; a store write read
// by several leaves produces one callback per changed leaf.
func (m *Manager) DeepEvalAndWatch(tree any, fn func(WatchResult), opts EvalOptions) (any, StopFunc) {
	opts = m.leafOptions(opts)

	var (
		mu       sync.Mutex
		current  any
		watchers []*reactive.Watcher
		stopped  atomic.Bool
	)

	initial := MapValuesDeep(tree, func(v any, path []any) any {
		s, ok := v.(string)
		if !ok {
			return v
		}
		if !expression.ParseChunk(s, expression.ParseListItem(opts.EvalListItem)).IsDynamic() {
			return m.Evaluate(s, opts)
		}

		w := reactive.Watch(m.rt, func() any {
			return m.Evaluate(s, opts)
		}, func(newValue, _ any) {
			if stopped.Load() {
				return
			}
			mu.Lock()
			current = reactive.SetPath(current, path, newValue)
			result := current
			mu.Unlock()

			m.metrics.watchUpdated()
			if fn != nil {
				fn(WatchResult{Result: result, Path: path, Value: newValue})
			}
		}, reactive.WithEquals(sameResult))
		watchers = append(watchers, w)
		return w.Value()
	})

	mu.Lock()
	current = initial
	mu.Unlock()
	m.metrics.watchAdded(len(watchers))

	var once sync.Once
	stop := func() {
		once.Do(func() {
			stopped.Store(true)
			for _, w := range watchers {
				w.Stop()
			}
			m.metrics.watchAdded(-len(watchers))
		})
	}
	return initial, stop
}

// sameResult compares two leaf values. Errors are equal when they carry the
// same message for the same expression.
func sameResult(a, b any) bool {
	ea, aIsErr := a.(*ExpressionError)
	eb, bIsErr := b.(*ExpressionError)
	if aIsErr || bIsErr {
		return aIsErr && bIsErr && ea.Raw == eb.Raw && ea.Error() == eb.Error()
	}
	return reflect.DeepEqual(a, b)
}
