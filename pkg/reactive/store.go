package reactive

import (
	"reflect"
	"sort"
	"sync"
)

// Store is an observable key-value map. Each key has its own subscriber
// list; the key set has one more, so readers of Keys see additions and
// removals.
//
// Values are treated as immutable. Use SetIn to change a nested field; it
// copies the containers along the path instead of mutating them.
type Store struct {
	rt *Runtime

	mu      sync.RWMutex
	values  map[string]any
	sources map[string]*source

	keys *source
}

// NewStore creates an empty store bound to rt.
func NewStore(rt *Runtime) *Store {
	return &Store{
		rt:      rt,
		values:  make(map[string]any),
		sources: make(map[string]*source),
		keys:    newSource(),
	}
}

// Runtime returns the runtime this store reports reads and writes to.
func (s *Store) Runtime() *Runtime {
	return s.rt
}

// sourceFor returns the source of key, creating it on first use. Sources are
// created for missing keys too so that a read miss still subscribes.
func (s *Store) sourceFor(key string) *source {
	s.mu.RLock()
	src, ok := s.sources[key]
	s.mu.RUnlock()
	if ok {
		return src
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if src, ok := s.sources[key]; ok {
		return src
	}
	src = newSource()
	s.sources[key] = src
	return src
}

// Get returns the value for key and subscribes the current listener.
func (s *Store) Get(key string) (any, bool) {
	s.rt.track(s.sourceFor(key))
	return s.Peek(key)
}

// Peek returns the value for key without subscribing.
func (s *Store) Peek(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Has reports whether key is present and subscribes the current listener.
func (s *Store) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Set stores value under key. Subscribers are notified only when the value
// is not deeply equal to the previous one.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	old, existed := s.values[key]
	if existed && reflect.DeepEqual(old, value) {
		s.mu.Unlock()
		return
	}
	s.values[key] = value
	s.mu.Unlock()

	s.changed(key, !existed)
}

// SetIn stores value at path inside the value of key.
func (s *Store) SetIn(key string, path []any, value any) {
	if len(path) == 0 {
		s.Set(key, value)
		return
	}

	s.mu.Lock()
	old, existed := s.values[key]
	if cur, ok := GetPath(old, path); ok && reflect.DeepEqual(cur, value) {
		s.mu.Unlock()
		return
	}
	s.values[key] = SetPath(old, path, value)
	s.mu.Unlock()

	s.changed(key, !existed)
}

// Update replaces the value of key with fn(current). fn receives nil when
// the key is missing.
func (s *Store) Update(key string, fn func(any) any) {
	cur, _ := s.Peek(key)
	s.Set(key, fn(cur))
}

// Delete removes key.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	if _, ok := s.values[key]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.values, key)
	s.mu.Unlock()

	s.changed(key, true)
}

// Keys returns the sorted key set and subscribes the current listener to
// additions and removals.
func (s *Store) Keys() []string {
	s.rt.track(s.keys)

	s.mu.RLock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Len returns the number of keys without subscribing.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Snapshot returns a shallow copy of the store contents without subscribing.
// Values are shared; they must not be mutated.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Load sets every entry of values inside a single batch.
func (s *Store) Load(values map[string]any) {
	s.rt.Batch(func() {
		for k, v := range values {
			s.Set(k, v)
		}
	})
}

// Subscribers returns the number of listeners subscribed to key.
func (s *Store) Subscribers(key string) int {
	s.mu.RLock()
	src, ok := s.sources[key]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	return src.subscriberCount()
}

func (s *Store) changed(key string, keySetChanged bool) {
	subs := s.sourceFor(key).subscribers()
	if keySetChanged {
		subs = append(subs, s.keys.subscribers()...)
	}
	s.rt.notify(subs)
}
