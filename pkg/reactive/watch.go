package reactive

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// Watcher re-runs a getter whenever one of the sources it read changes, and
// reports changed results to a callback. The set of sources is re-collected
// on every run, so conditional reads are handled.
type Watcher struct {
	id uint64
	rt *Runtime

	getter   func() any
	callback func(newValue, oldValue any)
	equal    func(a, b any) bool

	// value is the result of the last run.
	value any

	sources   []*source
	sourcesMu sync.Mutex

	// running and dirty make re-entrant notifications (a callback writing a
	// key this watcher reads) re-run the getter after the current run
	// instead of recursing.
	stateMu sync.Mutex
	running bool
	dirty   bool

	immediate bool
	stopped   atomic.Bool
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// Immediate makes the callback also fire for the initial run, with a nil old
// value.
func Immediate() WatchOption {
	return func(w *Watcher) {
		w.immediate = true
	}
}

// WithEquals sets the function deciding whether a re-run produced a new
// value. The default is reflect.DeepEqual.
func WithEquals(fn func(a, b any) bool) WatchOption {
	return func(w *Watcher) {
		w.equal = fn
	}
}

// Always fires the callback after every re-run, even if the result is equal
// to the previous one.
func Always() WatchOption {
	return WithEquals(func(a, b any) bool { return false })
}

// Watch runs getter once to collect its dependencies and returns the
// watcher. The initial result is available through Value.
//
//	w := reactive.Watch(rt, func() any {
//	    v, _ := store.Get("count")
//	    return v
//	}, func(newValue, oldValue any) {
//	    fmt.Println(oldValue, "->", newValue)
//	})
func Watch(rt *Runtime, getter func() any, callback func(newValue, oldValue any), opts ...WatchOption) *Watcher {
	w := &Watcher{
		id:       nextID(),
		rt:       rt,
		getter:   getter,
		callback: callback,
		equal:    reflect.DeepEqual,
	}
	for _, opt := range opts {
		opt(w)
	}

	w.value = w.collect()
	if w.immediate && w.callback != nil {
		w.callback(w.value, nil)
	}
	return w
}

// ID returns the unique identifier for this watcher.
func (w *Watcher) ID() uint64 {
	return w.id
}

// Value returns the result of the latest run.
func (w *Watcher) Value() any {
	return w.value
}

// MarkDirty re-runs the getter and fires the callback if the result changed.
func (w *Watcher) MarkDirty() {
	if w.stopped.Load() {
		return
	}

	w.stateMu.Lock()
	if w.running {
		w.dirty = true
		w.stateMu.Unlock()
		return
	}
	w.running = true
	w.stateMu.Unlock()

	for {
		w.stateMu.Lock()
		w.dirty = false
		w.stateMu.Unlock()

		if w.stopped.Load() {
			break
		}

		newValue := w.collect()
		oldValue := w.value
		w.value = newValue
		if !w.equal(newValue, oldValue) && w.callback != nil && !w.stopped.Load() {
			w.callback(newValue, oldValue)
		}

		w.stateMu.Lock()
		again := w.dirty
		if !again {
			w.running = false
		}
		w.stateMu.Unlock()
		if !again {
			return
		}
	}

	w.stateMu.Lock()
	w.running = false
	w.stateMu.Unlock()
}

// collect unsubscribes from the previous sources and runs the getter with
// this watcher as the current listener.
func (w *Watcher) collect() any {
	w.clearSources()

	var result any
	w.rt.WithListener(w, func() {
		result = w.getter()
	})
	return result
}

// addSource records a source read during collect.
func (w *Watcher) addSource(src *source) {
	w.sourcesMu.Lock()
	defer w.sourcesMu.Unlock()

	for _, s := range w.sources {
		if s == src {
			return
		}
	}
	w.sources = append(w.sources, src)
}

func (w *Watcher) clearSources() {
	w.sourcesMu.Lock()
	defer w.sourcesMu.Unlock()
	for _, src := range w.sources {
		src.unsubscribe(w)
	}
	w.sources = w.sources[:0]
}

// Sources returns how many sources the last run read.
func (w *Watcher) Sources() int {
	w.sourcesMu.Lock()
	defer w.sourcesMu.Unlock()
	return len(w.sources)
}

// Stop unsubscribes the watcher from every source. It is safe to call more
// than once; later notifications are ignored.
func (w *Watcher) Stop() {
	if w.stopped.Swap(true) {
		return
	}
	w.clearSources()
}

// Stopped reports whether Stop has been called.
func (w *Watcher) Stopped() bool {
	return w.stopped.Load()
}
