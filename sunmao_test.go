package sunmao

import (
	"context"
	"testing"

	"github.com/sunmao-dev/sunmao/pkg/schema"
)

func TestFacade(t *testing.T) {
	mgr := NewStateManager(map[string]any{"greeting": "Hello"})
	mgr.Store().Set("input1", map[string]any{"value": "world"})

	v, err := mgr.MaskedEval("{{ greeting }} {{ input1.value }}!", EvalOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if v != "Hello world!" {
		t.Errorf("MaskedEval = %v", v)
	}

	// Defaults stay available next to the given dependencies.
	if v, _ := mgr.MaskedEval("{{ _.upperCase('a b') }}", EvalOptions{}); v != "A B" {
		t.Errorf("_.upperCase = %v", v)
	}
}

func TestParseApplicationAndRun(t *testing.T) {
	doc := `{"kind":"Application","version":"example/v1","metadata":{"name":"x"},
	"spec":{"components":[{"id":"text1","type":"core/v1/text","properties":{"value":"{{ 2 * 21 }}"},"traits":[]}]}}`
	app, err := ParseApplication([]byte(doc), schema.FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	rt := NewRuntime(app, NewStateManager(nil), nil)
	if err := rt.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer rt.Stop()

	rc, err := rt.Component("text1")
	if err != nil {
		t.Fatal(err)
	}
	if got := rc.Properties.(map[string]any)["value"]; got != float64(42) {
		t.Errorf("value = %v, want 42", got)
	}

	if _, err := ParseApplication([]byte(`{"kind":"Application","spec":{"components":[{"id":"","type":"core/v1/text"}]}}`), schema.FormatJSON); err == nil {
		t.Error("expected validation error")
	}
}
