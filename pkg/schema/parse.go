package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	serrors "github.com/sunmao-dev/sunmao/internal/errors"
)

// Format is a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension. Anything that is
// not .yaml or .yml is treated as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

type header struct {
	Kind Kind `json:"kind" yaml:"kind"`
}

// DetectKind reads only the kind of a document.
func DetectKind(data []byte, format Format) (Kind, error) {
	var h header
	if err := decode(data, format, &h); err != nil {
		return "", err
	}
	return h.Kind, nil
}

// Parse decodes an Application document and normalizes its property
// values: every number becomes a float64 and every mapping a
// map[string]any, matching what expressions produce.
func Parse(data []byte, format Format) (*Application, error) {
	var app Application
	if err := decode(data, format, &app); err != nil {
		return nil, err
	}
	if app.Kind == "" {
		app.Kind = KindApplication
	}
	if app.Kind != KindApplication {
		return nil, serrors.New("E201").WithDetail(fmt.Sprintf("expected kind Application, got %q", app.Kind))
	}
	normalizeComponents(app.Spec.Components)
	return &app, nil
}

// ParseModule decodes a Module document.
func ParseModule(data []byte, format Format) (*Module, error) {
	var mod Module
	if err := decode(data, format, &mod); err != nil {
		return nil, err
	}
	if mod.Kind != KindModule {
		return nil, serrors.New("E201").WithDetail(fmt.Sprintf("expected kind Module, got %q", mod.Kind))
	}
	if props, ok := Normalize(mod.Spec.Properties).(map[string]any); ok {
		mod.Spec.Properties = props
	}
	normalizeComponents(mod.Impl)
	return &mod, nil
}

// Encode writes the application in format.
func Encode(app *Application, format Format) ([]byte, error) {
	if format == FormatYAML {
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(app); err != nil {
			return nil, err
		}
		return buf.Bytes(), enc.Close()
	}
	return json.MarshalIndent(app, "", "  ")
}

func decode(data []byte, format Format, v any) error {
	if format == FormatYAML {
		if err := yaml.Unmarshal(data, v); err != nil {
			return serrors.New("E200").Wrap(err)
		}
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		e := serrors.New("E200").Wrap(err)
		if syn, ok := err.(*json.SyntaxError); ok {
			e.WithOffset("", data, syn.Offset)
		}
		return e
	}
	return nil
}

func normalizeComponents(components []Component) {
	for i := range components {
		c := &components[i]
		if props, ok := Normalize(c.Properties).(map[string]any); ok {
			c.Properties = props
		} else {
			c.Properties = map[string]any{}
		}
		if c.Traits == nil {
			c.Traits = []Trait{}
		}
		for j := range c.Traits {
			if props, ok := Normalize(c.Traits[j].Properties).(map[string]any); ok {
				c.Traits[j].Properties = props
			} else {
				c.Traits[j].Properties = map[string]any{}
			}
		}
	}
}

// Normalize converts decoded JSON or YAML values to the canonical value
// types: numbers to float64, mappings to map[string]any and sequences to
// []any.
func Normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Normalize(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = Normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	}
	return v
}
