package reactive

import "sync"

// source is a single observable dependency (one store key, or a store's key
// set). It only manages subscribers; values live in the owning Store.
type source struct {
	id uint64

	subs  []Listener
	subMu sync.RWMutex
}

func newSource() *source {
	return &source{id: nextID()}
}

// subscribe adds a listener, deduplicated by listener ID.
func (s *source) subscribe(l Listener) {
	if l == nil {
		return
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()

	lid := l.ID()
	for _, existing := range s.subs {
		if existing.ID() == lid {
			return
		}
	}
	s.subs = append(s.subs, l)
}

// unsubscribe removes a listener. Order of subscribers is not preserved.
func (s *source) unsubscribe(l Listener) {
	if l == nil {
		return
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()

	lid := l.ID()
	for i, existing := range s.subs {
		if existing.ID() == lid {
			s.subs[i] = s.subs[len(s.subs)-1]
			s.subs = s.subs[:len(s.subs)-1]
			return
		}
	}
}

// subscribers returns a copy of the subscriber list so notification never
// runs under the lock.
func (s *source) subscribers() []Listener {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	if len(s.subs) == 0 {
		return nil
	}
	subs := make([]Listener, len(s.subs))
	copy(subs, s.subs)
	return subs
}

func (s *source) subscriberCount() int {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	return len(s.subs)
}
