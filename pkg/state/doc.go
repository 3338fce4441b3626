// Package state evaluates component properties against application state.
//
// A Manager owns the reactive store of component states, a slot store for
// values passed into slots, and the dependencies (dayjs, _ and anything the
// host registers) visible to expressions.
//
//	mgr := state.New(nil)
//	mgr.Store().Set("input1", map[string]any{"value": "world"})
//
//	v, err := mgr.MaskedEval("Hello {{ input1.value }}!", state.EvalOptions{})
//	// v == "Hello world!"
//
// DeepEval evaluates every string leaf of a property tree. DeepEvalAndWatch
// additionally installs one watcher per dynamic leaf and reports a new tree
// whenever a leaf changes:
//
//	tree, stop := mgr.DeepEvalAndWatch(props, func(r state.WatchResult) {
//	    render(r.Result)
//	}, state.EvalOptions{})
//	defer stop()
//
// Names resolve from the innermost scope outwards: the local scope object,
// then dependencies, then the store, then the language globals. Reading a
// store key while a watcher runs subscribes the watcher to that key.
package state
