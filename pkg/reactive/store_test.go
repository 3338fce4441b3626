package reactive

import (
	"reflect"
	"testing"
)

func TestStoreGetSet(t *testing.T) {
	rt := NewRuntime()
	store := NewStore(rt)

	if _, ok := store.Get("missing"); ok {
		t.Error("Get(missing) reported ok")
	}

	store.Set("input1", map[string]any{"value": "hi"})
	v, ok := store.Get("input1")
	if !ok {
		t.Fatal("Get(input1) not found")
	}
	if got := v.(map[string]any)["value"]; got != "hi" {
		t.Errorf("value = %v, want hi", got)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestStoreSetEqualValueDoesNotNotify(t *testing.T) {
	rt := NewRuntime()
	store := NewStore(rt)
	store.Set("a", map[string]any{"x": 1.0})

	listener := newTestListener()
	rt.WithListener(listener, func() { store.Get("a") })

	store.Set("a", map[string]any{"x": 1.0})
	if listener.getDirtyCount() != 0 {
		t.Errorf("equal Set notified %d times", listener.getDirtyCount())
	}

	store.Set("a", map[string]any{"x": 2.0})
	if listener.getDirtyCount() != 1 {
		t.Errorf("changed Set notified %d times, want 1", listener.getDirtyCount())
	}
}

func TestStoreMissTracksKey(t *testing.T) {
	rt := NewRuntime()
	store := NewStore(rt)
	listener := newTestListener()

	rt.WithListener(listener, func() { store.Get("later") })
	store.Set("later", true)

	if listener.getDirtyCount() != 1 {
		t.Errorf("read miss did not subscribe, got %d", listener.getDirtyCount())
	}
}

func TestStoreSetInCopiesOnWrite(t *testing.T) {
	rt := NewRuntime()
	store := NewStore(rt)

	original := map[string]any{
		"value": "a",
		"meta":  map[string]any{"touched": false},
	}
	store.Set("input", original)
	store.SetIn("input", []any{"value"}, "b")

	if original["value"] != "a" {
		t.Errorf("SetIn mutated the previous value: %v", original["value"])
	}
	v, _ := store.Peek("input")
	next := v.(map[string]any)
	if next["value"] != "b" {
		t.Errorf("value = %v, want b", next["value"])
	}
	if reflect.ValueOf(next["meta"]).Pointer() != reflect.ValueOf(original["meta"]).Pointer() {
		t.Error("untouched subtree was copied")
	}
}

func TestStoreKeysTracksAdditions(t *testing.T) {
	rt := NewRuntime()
	store := NewStore(rt)
	store.Set("b", 1)
	store.Set("a", 1)

	listener := newTestListener()
	var keys []string
	rt.WithListener(listener, func() { keys = store.Keys() })

	if !reflect.DeepEqual(keys, []string{"a", "b"}) {
		t.Errorf("Keys() = %v", keys)
	}

	store.Set("a", 2)
	if listener.getDirtyCount() != 0 {
		t.Errorf("value change notified key-set listener %d times", listener.getDirtyCount())
	}
	store.Set("c", 1)
	store.Delete("b")
	if listener.getDirtyCount() != 2 {
		t.Errorf("key-set changes notified %d times, want 2", listener.getDirtyCount())
	}
}

func TestStoreLoadBatches(t *testing.T) {
	rt := NewRuntime()
	store := NewStore(rt)
	listener := newTestListener()
	rt.WithListener(listener, func() {
		store.Get("a")
		store.Get("b")
	})

	store.Load(map[string]any{"a": 1, "b": 2})
	if listener.getDirtyCount() != 1 {
		t.Errorf("Load notified %d times, want 1", listener.getDirtyCount())
	}
	if got := store.Snapshot(); !reflect.DeepEqual(got, map[string]any{"a": 1, "b": 2}) {
		t.Errorf("Snapshot() = %v", got)
	}
}

func TestStoreUpdate(t *testing.T) {
	store := NewStore(NewRuntime())
	store.Update("n", func(v any) any {
		if v != nil {
			t.Errorf("Update on missing key got %v", v)
		}
		return 1
	})
	store.Update("n", func(v any) any { return v.(int) + 1 })
	if v, _ := store.Peek("n"); v != 2 {
		t.Errorf("n = %v, want 2", v)
	}
}
