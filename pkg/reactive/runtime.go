package reactive

import "sync"

// Runtime holds the reactive tracking state for one independent graph of
// stores and watchers.
type Runtime struct {
	mu sync.Mutex

	// currentListener is what's currently tracking dependencies.
	// nil means reads don't create subscriptions.
	currentListener Listener

	// batchDepth tracks nested Batch calls.
	batchDepth int

	// pendingUpdates accumulates listeners to notify when the outermost
	// batch completes.
	pendingUpdates []Listener
}

// NewRuntime creates an empty runtime.
func NewRuntime() *Runtime {
	return &Runtime{}
}

// listener returns the listener being tracked, or nil.
func (rt *Runtime) listener() Listener {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.currentListener
}

// setListener sets the current listener and returns the previous one.
func (rt *Runtime) setListener(l Listener) Listener {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	old := rt.currentListener
	rt.currentListener = l
	return old
}

// WithListener runs fn with l as the current listener.
func (rt *Runtime) WithListener(l Listener, fn func()) {
	old := rt.setListener(l)
	defer rt.setListener(old)
	fn()
}

// Untracked runs fn without tracking reads as dependencies.
func (rt *Runtime) Untracked(fn func()) {
	old := rt.setListener(nil)
	defer rt.setListener(old)
	fn()
}

// Tracking reports whether a listener is currently collecting dependencies.
func (rt *Runtime) Tracking() bool {
	return rt.listener() != nil
}

// track subscribes the current listener to src.
func (rt *Runtime) track(src *source) {
	l := rt.listener()
	if l == nil {
		return
	}
	src.subscribe(l)
	if t, ok := l.(sourceTracker); ok {
		t.addSource(src)
	}
}

// Batch groups writes so that every affected listener is notified once, after
// the outermost batch returns. Batches nest.
//
//	rt.Batch(func() {
//	    store.Set("firstName", "John")
//	    store.Set("lastName", "Doe")
//	})
func (rt *Runtime) Batch(fn func()) {
	rt.mu.Lock()
	rt.batchDepth++
	rt.mu.Unlock()

	defer func() {
		rt.mu.Lock()
		rt.batchDepth--
		done := rt.batchDepth == 0
		rt.mu.Unlock()
		if done {
			rt.processPendingUpdates()
		}
	}()

	fn()
}

// InBatch reports whether a batch is open.
func (rt *Runtime) InBatch() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.batchDepth > 0
}

// notify marks subs dirty now, or queues them while a batch is open.
func (rt *Runtime) notify(subs []Listener) {
	if len(subs) == 0 {
		return
	}
	rt.mu.Lock()
	if rt.batchDepth > 0 {
		rt.pendingUpdates = append(rt.pendingUpdates, subs...)
		rt.mu.Unlock()
		return
	}
	rt.mu.Unlock()

	for _, sub := range dedupe(subs) {
		sub.MarkDirty()
	}
}

// processPendingUpdates deduplicates and notifies all pending listeners.
func (rt *Runtime) processPendingUpdates() {
	rt.mu.Lock()
	updates := rt.pendingUpdates
	rt.pendingUpdates = nil
	rt.mu.Unlock()

	for _, l := range dedupe(updates) {
		l.MarkDirty()
	}
}

// dedupe removes repeated listeners, keeping first occurrence order.
func dedupe(ls []Listener) []Listener {
	if len(ls) < 2 {
		return ls
	}
	seen := make(map[uint64]bool, len(ls))
	unique := make([]Listener, 0, len(ls))
	for _, l := range ls {
		id := l.ID()
		if !seen[id] {
			seen[id] = true
			unique = append(unique, l)
		}
	}
	return unique
}
