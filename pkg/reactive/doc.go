// Package reactive provides the observable state primitives used by the
// expression runtime.
//
// The model is fine-grained and pull-tracked: reading a key of a Store while
// a listener is current subscribes that listener to the key. Writing the key
// later marks every subscriber dirty.
//
// # Core Types
//
// Runtime holds the tracking context (current listener, batch depth and the
// pending notification queue). Every Store and Watcher belongs to exactly one
// Runtime; there is no package-level state, so independent runtimes never
// observe each other.
//
//	rt := reactive.NewRuntime()
//	store := reactive.NewStore(rt)
//	store.Set("input1", map[string]any{"value": "hi"})
//
// Watcher re-runs a getter whenever a key it read changes:
//
//	w := reactive.Watch(rt, func() any {
//	    v, _ := store.Get("input1")
//	    return v
//	}, func(newValue, oldValue any) {
//	    fmt.Println("changed:", newValue)
//	})
//	defer w.Stop()
//
// # Batching
//
//	rt.Batch(func() {
//	    store.Set("a", 1)
//	    store.Set("b", 2)
//	}) // each dirty watcher re-runs once
//
// # Concurrency
//
// Stores are safe for concurrent reads and writes, but a Runtime tracks a
// single current listener. Evaluations that rely on tracking must not
// interleave; callers serialise them (the server does so per application).
package reactive
