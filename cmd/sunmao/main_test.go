package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	serrors "github.com/sunmao-dev/sunmao/internal/errors"
)

const testApp = `kind: Application
version: example/v1
metadata:
  name: cli
spec:
  components:
    - id: input1
      type: core/v1/input
      properties:
        placeholder: "{{ 'Your ' + 'name' }}"
    - id: text1
      type: core/v1/text
      properties:
        value: "Hello {{ input1.value }}!"
    - id: title1
      type: core/v1/text
      properties:
        value: "{{ $slot.title }}"
      traits:
        - type: core/v1/slot
          properties:
            container:
              id: list1
              slot: content
`

// run executes the CLI in dir and returns its standard output.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err = cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEval(t *testing.T) {
	dir := t.TempDir()
	store := writeFile(t, dir, "store.json", `{"input1": {"value": "world"}}`)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"arithmetic", []string{"{{ 1 + 2 }}"}, "3"},
		{"template", []string{"Hello {{ input1.value }}!", "--store", store}, `"Hello world!"`},
		{"scope", []string{"{{ $i * 2 }}", "--scope", `{"$i": 3}`}, "6"},
		{"lodash", []string{"{{ _.camelCase('hello big world') }}"}, `"helloBigWorld"`},
		{"fallback", []string{"{{ nope.value }}", "--fallback", "n/a", "-q"}, `"n/a"`},
		{"ignore errors", []string{"a{{ nope.value }}", "--ignore-errors", "-q"}, `"a{{ nope.value }}"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, dir, append([]string{"eval"}, tt.args...)...)
			if err != nil {
				t.Fatalf("eval: %v", err)
			}
			if got := strings.TrimSpace(out); got != tt.want {
				t.Errorf("eval %v = %s, want %s", tt.args, got, tt.want)
			}
		})
	}
}

func TestEvalError(t *testing.T) {
	_, err := run(t, t.TempDir(), "eval", "{{ nope.value }}", "-q")
	if err == nil || !strings.Contains(err.Error(), "nope is not defined") {
		t.Fatalf("err = %v, want reference error", err)
	}

	_, err = run(t, t.TempDir(), "eval", "{{ 1 }}", "--scope", "[1, 2")
	if !errors.Is(err, serrors.New("E400")) {
		t.Fatalf("err = %v, want E400", err)
	}
}

func TestRender(t *testing.T) {
	dir := t.TempDir()
	app := writeFile(t, dir, "app.yaml", testApp)
	store := writeFile(t, dir, "store.yaml", "input1:\n  value: yaml\n")

	out, err := run(t, dir, "render", app, "--store", store, "--slot", `list1_content={"title":"first"}`)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	var components []struct {
		ID         string         `json:"id"`
		Properties map[string]any `json:"properties"`
		SlotKey    string         `json:"slotKey"`
	}
	if err := json.Unmarshal([]byte(out), &components); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(components) != 3 {
		t.Fatalf("got %d components, want 3", len(components))
	}
	want := map[string]string{"input1": "", "text1": "Hello yaml!", "title1": "first"}
	for _, c := range components {
		if c.ID == "input1" {
			if c.Properties["placeholder"] != "Your name" {
				t.Errorf("placeholder = %v", c.Properties["placeholder"])
			}
			continue
		}
		if c.Properties["value"] != want[c.ID] {
			t.Errorf("%s.value = %v, want %q", c.ID, c.Properties["value"], want[c.ID])
		}
	}
	if components[2].SlotKey != "list1_content" {
		t.Errorf("slotKey = %q", components[2].SlotKey)
	}
}

func TestRenderYAMLAndConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "hello.yaml", testApp)
	writeFile(t, dir, "sunmao.yaml", "app: hello.yaml\nlog:\n  level: error\n")

	out, err := run(t, dir, "render", "-o", "yaml")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "id: text1") || !strings.Contains(out, "placeholder: Your name") {
		t.Errorf("unexpected output:\n%s", out)
	}

	_, err = run(t, dir, "render", "-o", "xml")
	if !errors.Is(err, serrors.New("E400")) {
		t.Errorf("err = %v, want E400", err)
	}
}

func TestRenderMissingApp(t *testing.T) {
	_, err := run(t, t.TempDir(), "render", "missing.json")
	if !errors.Is(err, serrors.New("E206")) {
		t.Fatalf("err = %v, want E206", err)
	}
}

func TestParseSlot(t *testing.T) {
	key, vars, err := parseSlot(`list1_content_0={"$i": 0}`)
	if err != nil {
		t.Fatal(err)
	}
	if key != "list1_content_0" || vars["$i"] != float64(0) {
		t.Errorf("parseSlot = %q, %v", key, vars)
	}
	if _, _, err := parseSlot("novalue"); err == nil {
		t.Error("expected error for missing '='")
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, t.TempDir(), "version", "--short")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != version {
		t.Errorf("version = %q", out)
	}
}

func TestErrorPrinter(t *testing.T) {
	cliErr := serrors.New("E400").WithDetail("--slot")

	tests := []struct {
		name  string
		flags map[string]string
		want  string
	}{
		{"piped output is one line", nil, "E400: Invalid flag value\n"},
		{"json logs", map[string]string{"log-format": "json"}, `"code":"E400"`},
		{"no color", map[string]string{"no-color": "true"}, "E400: Invalid flag value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd()
			for k, v := range tt.flags {
				if err := cmd.PersistentFlags().Set(k, v); err != nil {
					t.Fatal(err)
				}
			}
			var out bytes.Buffer
			p := errorPrinter(cmd, &out)
			if p.Color {
				t.Error("color enabled for a buffer")
			}
			p.Print(cliErr)
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output = %q, want it to contain %q", out.String(), tt.want)
			}
			if strings.Count(out.String(), "\n") != 1 {
				t.Errorf("output spans several lines: %q", out.String())
			}
		})
	}
}
