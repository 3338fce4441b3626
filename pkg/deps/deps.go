// Package deps provides the default dependencies every expression can use:
// a dayjs-style date helper and a lodash-style utility object.
package deps

import (
	"time"

	"github.com/sunmao-dev/sunmao/pkg/expression"
)

// Option configures Defaults.
type Option func(*options)

type options struct {
	now func() time.Time
	loc *time.Location
}

// WithClock sets the time source used by dayjs() and fromNow.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLocation sets the zone dates are rendered in. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.loc = loc
	}
}

// Defaults returns a fresh map of the default dependencies:
//
//	dayjs  date construction, formatting and arithmetic
//	_      utility functions (get, isEmpty, sum, camelCase, ...)
func Defaults(opts ...Option) map[string]any {
	o := options{now: time.Now, loc: time.Local}
	for _, opt := range opts {
		opt(&o)
	}
	return map[string]any{
		"dayjs": NewDayjs(o.now, o.loc),
		"_":     Lodash(),
	}
}

// Merge returns base overlaid with extra. Neither map is modified.
func Merge(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

var _ expression.Object = (*Date)(nil)
