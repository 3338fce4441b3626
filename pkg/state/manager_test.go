package state

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sunmao-dev/sunmao/pkg/expression"
)

func newTestManager(t *testing.T) (*Manager, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	return New(nil, WithLogger(logger)), &buf
}

func TestMaskedEval(t *testing.T) {
	m, _ := newTestManager(t)
	m.Store().Set("input1", map[string]any{"value": "world"})
	m.Store().Set("count", float64(2))

	tests := []struct {
		raw  string
		want any
	}{
		{"plain text", "plain text"},
		{"", ""},
		{"42", float64(42)},
		{" 1.5 ", 1.5},
		{"true", true},
		{"false", false},
		{"{{1+1}}", float64(2)},
		{"a{{1+1}}b", "a2b"},
		{"Hello {{ input1.value }}!", "Hello world!"},
		{"{{ input1 }}", map[string]any{"value": "world"}},
		{"{{ count > 1 }}", true},
		{"{{ [count, count * 2] }}", []any{float64(2), float64(4)}},
		{"{{ typeof undefinedValue }}", "undefined"},
		{"{{ _.sum([count, 3]) }}", float64(5)},
		{"{{}}", nil},
		{"{{ count }}{{ count }}", "22"},
		{"{{ $listItem.value }}", "{{ $listItem.value }}"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := m.MaskedEval(tt.raw, EvalOptions{})
			if err != nil {
				t.Fatalf("MaskedEval(%q) error: %v", tt.raw, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("MaskedEval(%q) mismatch (-want +got):\n%s", tt.raw, diff)
			}
		})
	}
}

func TestMaskedEvalUndefinedReference(t *testing.T) {
	m, logs := newTestManager(t)

	got, err := m.MaskedEval("{{ missing.value }}", EvalOptions{})
	if got != nil {
		t.Errorf("value = %v, want nil", got)
	}

	var exprErr *ExpressionError
	if !errors.As(err, &exprErr) {
		t.Fatalf("error %T is not *ExpressionError", err)
	}
	if exprErr.Raw != "{{ missing.value }}" {
		t.Errorf("Raw = %q", exprErr.Raw)
	}
	if exprErr.Kind() != expression.ReferenceError {
		t.Errorf("Kind = %v, want ReferenceError", exprErr.Kind())
	}
	if exprErr.Error() != "ReferenceError: missing is not defined" {
		t.Errorf("Error() = %q", exprErr.Error())
	}
	if !strings.Contains(logs.String(), "missing is not defined") {
		t.Errorf("expected the error to be logged, got %q", logs.String())
	}
}

func TestNoConsoleError(t *testing.T) {
	m, logs := newTestManager(t)
	m.SetNoConsoleError(true)

	if _, err := m.MaskedEval("{{ nope }}", EvalOptions{}); err == nil {
		t.Fatal("expected error")
	}
	if logs.Len() != 0 {
		t.Errorf("nothing should be logged, got %q", logs.String())
	}
	if !m.NoConsoleError() {
		t.Error("NoConsoleError() = false")
	}
}

func TestIgnoreEvalError(t *testing.T) {
	m, _ := newTestManager(t)
	m.Store().Set("key", "input1")

	tests := []struct {
		raw  string
		want any
	}{
		{"{{ nope }}", "{{ nope }}"},
		{"a {{ nope }} b", "a {{ nope }} b"},
		{"{{ 1 + }}", "{{ 1 + }}"},
		{"{{ {{ key }}.value }}", "{{ input1.value }}"},
	}
	for _, tt := range tests {
		got, err := m.MaskedEval(tt.raw, EvalOptions{IgnoreEvalError: true})
		if err != nil {
			t.Fatalf("MaskedEval(%q) error: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Errorf("MaskedEval(%q) = %#v, want %#v", tt.raw, got, tt.want)
		}
	}
}

func TestFallbackWhenError(t *testing.T) {
	m, logs := newTestManager(t)

	got, err := m.MaskedEval("{{ nope }}", EvalOptions{
		FallbackWhenError: func(raw string) any { return "fallback:" + raw },
	})
	if err != nil {
		t.Fatalf("fallback should clear the error, got %v", err)
	}
	if got != "fallback:{{ nope }}" {
		t.Errorf("got %v", got)
	}
	if logs.Len() == 0 {
		t.Error("the error should still be logged")
	}
}

func TestNestedExpression(t *testing.T) {
	m, _ := newTestManager(t)
	m.Store().Set("key", "input1")
	m.Store().Set("input1", map[string]any{"value": "deep"})

	got, err := m.MaskedEval("{{ {{ key }}.value }}", EvalOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got != "deep" {
		t.Errorf("got %v, want deep", got)
	}
}

func TestScopePrecedence(t *testing.T) {
	m := New(map[string]any{"name": "dependency", "onlyDep": "dep"}, WithNoConsoleError())
	m.Store().Set("name", "store")
	m.Store().Set("onlyStore", "store")

	eval := func(raw string, opts EvalOptions) any {
		t.Helper()
		v, err := m.MaskedEval(raw, opts)
		if err != nil {
			t.Fatalf("MaskedEval(%q): %v", raw, err)
		}
		return v
	}

	if got := eval("{{ name }}", EvalOptions{}); got != "dependency" {
		t.Errorf("dependencies should shadow the store, got %v", got)
	}
	if got := eval("{{ name }}", EvalOptions{ScopeObject: map[string]any{"name": "local"}}); got != "local" {
		t.Errorf("scope object should shadow dependencies, got %v", got)
	}
	if got := eval("{{ onlyStore }}", EvalOptions{}); got != "store" {
		t.Errorf("store fallback, got %v", got)
	}

	_, err := m.MaskedEval("{{ onlyStore }}", EvalOptions{OverrideScope: true})
	if err == nil {
		t.Error("OverrideScope should hide the store")
	}
	if got := eval("{{ Math.max(a, 2) }}", EvalOptions{OverrideScope: true, ScopeObject: map[string]any{"a": float64(5)}}); got != float64(5) {
		t.Errorf("OverrideScope keeps the scope object and globals, got %v", got)
	}
}

func TestSetDependenciesKeepsDefaults(t *testing.T) {
	m := New(map[string]any{"first": float64(1)}, WithNoConsoleError())
	m.SetDependencies(map[string]any{"second": float64(2)})

	d := m.Dependencies()
	if _, ok := d["first"]; ok {
		t.Error("SetDependencies should replace host dependencies")
	}
	for _, name := range []string{"second", "dayjs", "_"} {
		if _, ok := d[name]; !ok {
			t.Errorf("missing dependency %q", name)
		}
	}

	got, err := m.MaskedEval("{{ _.isArray([]) && second }}", EvalOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got != float64(2) {
		t.Errorf("got %v", got)
	}
}

func TestClear(t *testing.T) {
	m, _ := newTestManager(t)
	old := m.Store()
	old.Set("a", float64(1))

	m.Clear()
	if m.Store() == old {
		t.Fatal("Clear should install a new store")
	}
	if m.Store().Len() != 0 {
		t.Errorf("new store should be empty")
	}
	m.SetNoConsoleError(true)
	if _, err := m.MaskedEval("{{ a }}", EvalOptions{}); err == nil {
		t.Error("cleared keys should be undefined")
	}
}

func TestEvalListItem(t *testing.T) {
	m, _ := newTestManager(t)
	opts := EvalOptions{
		EvalListItem: true,
		ScopeObject:  map[string]any{"$listItem": map[string]any{"name": "row"}, "$i": float64(3)},
	}
	got, err := m.MaskedEval("{{ $listItem.name }}-{{ $i }}", opts)
	if err != nil {
		t.Fatal(err)
	}
	if got != "row-3" {
		t.Errorf("got %v", got)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(WithMetricsRegistry(reg))
	m := New(nil, WithMetrics(metrics), WithNoConsoleError())

	m.MaskedEval("{{ 1 }}", EvalOptions{})
	m.MaskedEval("{{ nope }}", EvalOptions{})
	m.MaskedEval("{{ nope }}", EvalOptions{FallbackWhenError: func(string) any { return nil }})

	for result, want := range map[string]float64{"ok": 1, "error": 1, "fallback": 1} {
		if got := testutil.ToFloat64(metrics.evaluations.WithLabelValues(result)); got != want {
			t.Errorf("evaluations{result=%q} = %v, want %v", result, got, want)
		}
	}

	_, stop := m.DeepEvalAndWatch(map[string]any{"a": "{{ x }}", "b": "{{ y }}", "c": "static"}, nil, EvalOptions{})
	if got := testutil.ToFloat64(metrics.activeWatches); got != 2 {
		t.Errorf("active watches = %v, want 2", got)
	}
	stop()
	stop()
	if got := testutil.ToFloat64(metrics.activeWatches); got != 0 {
		t.Errorf("active watches after stop = %v, want 0", got)
	}
}
