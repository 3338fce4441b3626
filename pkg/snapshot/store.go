// Package snapshot persists the state store of a running application so
// that a restarted server resumes with the values users had entered.
package snapshot

import (
	"context"
	"encoding/json"
	"time"
)

// Store defines the interface for snapshot persistence backends.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save persists the snapshot of app, overwriting any previous one.
	Save(ctx context.Context, app string, data []byte) error

	// Load retrieves the snapshot of app.
	// Returns (nil, nil) if there is none.
	Load(ctx context.Context, app string) ([]byte, error)

	// Delete removes the snapshot of app. Deleting a missing snapshot is
	// not an error.
	Delete(ctx context.Context, app string) error

	// Close releases any resources held by the store.
	Close() error
}

// ErrStoreClosed is returned when operations are attempted on a closed store.
type ErrStoreClosed struct{}

func (e ErrStoreClosed) Error() string {
	return "snapshot store is closed"
}

// Snapshot is the persisted form of a state store.
type Snapshot struct {
	App     string         `json:"app"`
	SavedAt time.Time      `json:"savedAt"`
	State   map[string]any `json:"state"`
}

// Encode serializes the state of app.
func Encode(app string, state map[string]any, now time.Time) ([]byte, error) {
	if state == nil {
		state = map[string]any{}
	}
	return json.Marshal(Snapshot{App: app, SavedAt: now.UTC(), State: state})
}

// Decode parses data written by Encode.
func Decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.State == nil {
		s.State = map[string]any{}
	}
	return &s, nil
}
