package schema

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/sunmao-dev/sunmao/internal/errors"
)

const appJSON = `{
  "version": "example/v1",
  "kind": "Application",
  "metadata": {"name": "hello"},
  "spec": {
    "components": [
      {"id": "input1", "type": "core/v1/input", "properties": {"defaultValue": "world", "size": 3}, "traits": []},
      {"id": "text1", "type": "core/v1/text", "properties": {"value": {"raw": "Hello {{ input1.value }}", "format": "plain"}},
       "traits": [{"type": "core/v1/style", "properties": {"styles": [{"cssProperties": {"width": 100}}]}}]}
    ]
  }
}`

const appYAML = `version: example/v1
kind: Application
metadata:
  name: hello
spec:
  components:
    - id: input1
      type: core/v1/input
      properties:
        defaultValue: world
        size: 3
    - id: text1
      type: core/v1/text
      properties:
        value:
          raw: "Hello {{ input1.value }}"
          format: plain
      traits:
        - type: core/v1/style
          properties:
            styles:
              - cssProperties:
                  width: 100
`

func TestParseFormats(t *testing.T) {
	fromJSON, err := Parse([]byte(appJSON), FormatJSON)
	require.NoError(t, err)
	fromYAML, err := Parse([]byte(appYAML), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, fromJSON.Spec, fromYAML.Spec)
	assert.Equal(t, "hello", fromYAML.Metadata.Name)

	input := fromYAML.Component("input1")
	require.NotNil(t, input)
	assert.Equal(t, float64(3), input.Properties["size"], "numbers are float64")
	assert.Empty(t, input.Traits)

	style := fromJSON.Component("text1").Traits[0].Properties["styles"].([]any)[0].(map[string]any)
	assert.Equal(t, map[string]any{"width": float64(100)}, style["cssProperties"])
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("{\n  \"kind\": ,\n}"), FormatJSON)
	require.Error(t, err)
	var e *serrors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "E200", e.Code)
	require.NotNil(t, e.Location)
	assert.Equal(t, 2, e.Location.Line)

	_, err = Parse([]byte(`{"kind": "Module"}`), FormatJSON)
	assert.True(t, errors.Is(err, serrors.New("E201")))
}

func TestParseModule(t *testing.T) {
	mod, err := ParseModule([]byte(`
kind: Module
version: custom/v1
metadata: {name: counter}
spec:
  properties: {step: 1}
  events: [onChange]
  stateMap: {value: "{{ $moduleId }}__count.value"}
impl:
  - id: "{{ $moduleId }}__count"
    type: core/v1/state
    properties: {initialValue: 0}
`), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, float64(1), mod.Spec.Properties["step"])
	assert.Equal(t, []string{"onChange"}, mod.Spec.Events)
	require.Len(t, mod.Impl, 1)
	assert.Equal(t, float64(0), mod.Impl[0].Properties["initialValue"])
}

func TestValidate(t *testing.T) {
	app := &Application{Kind: KindApplication, Spec: ApplicationSpec{Components: []Component{
		{ID: "a", Type: "core/v1/text"},
		{ID: "a", Type: "core/v1/text"},
		{ID: "", Type: "core/v1/text"},
		{ID: "b", Type: "text", Traits: []Trait{{Type: "core/v1/"}}},
	}}}

	err := app.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, serrors.New("E202")))
	assert.True(t, errors.Is(err, serrors.New("E203")))
	assert.True(t, errors.Is(err, serrors.New("E204")))

	ok := &Application{Spec: ApplicationSpec{Components: []Component{{ID: "a", Type: "core/v1/text"}}}}
	assert.NoError(t, ok.Validate())
}

func TestCheckReferences(t *testing.T) {
	app, err := Parse([]byte(`{"spec": {"components": [
		{"id": "input1", "type": "core/v1/input", "properties": {}},
		{"id": "text1", "type": "core/v1/text", "properties": {
			"value": "{{ input1.value }} {{ missing.value }}",
			"list": ["{{ items.map(i => i.name) }}"],
			"slot": "{{ $slot.title + dayjs().year() + Math.PI }}"
		}}
	]}}`), FormatJSON)
	require.NoError(t, err)

	refs := app.CheckReferences(func(name string) bool { return name == "dayjs" })
	require.Len(t, refs, 2)
	assert.Equal(t, Reference{Component: "text1", Property: "list.0", Name: "items"}, refs[0])
	assert.Equal(t, "missing", refs[1].Name)
	assert.Equal(t, "text1.value: cannot find 'missing' in store", refs[1].String())
}

func TestSlot(t *testing.T) {
	c := Component{ID: "child", Traits: []Trait{{
		Type:       SlotTrait,
		Properties: map[string]any{"container": map[string]any{"id": "list1", "slot": "content"}},
	}}}
	id, slot, ok := c.Slot()
	require.True(t, ok)
	assert.Equal(t, "list1", id)
	assert.Equal(t, "content", slot)
	assert.Equal(t, "list1_content", SlotKey(id, slot, ""))
	assert.Equal(t, "list1_content_2", SlotKey(id, slot, "2"))
}

func TestEncodeRoundTrip(t *testing.T) {
	app, err := Parse([]byte(appJSON), FormatJSON)
	require.NoError(t, err)

	for _, format := range []Format{FormatJSON, FormatYAML} {
		data, err := Encode(app, format)
		require.NoError(t, err)
		again, err := Parse(data, format)
		require.NoError(t, err)
		assert.Equal(t, app.Spec, again.Spec, "format %s", format)
	}
}

func TestLoaderLocal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(appYAML), 0o644))

	app, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, app.Spec.Components, 2)

	_, err = NewLoader().Load(context.Background(), filepath.Join(dir, "missing.json"))
	assert.True(t, errors.Is(err, serrors.New("E206")))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoaderLocalSyntaxErrorLocation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.json")
	require.NoError(t, os.WriteFile(path, []byte("{\n  \"kind\": ,\n}"), 0o644))

	_, err := NewLoader().Load(context.Background(), path)
	var e *serrors.Error
	require.True(t, errors.As(err, &e))
	require.NotNil(t, e.Location)
	assert.Equal(t, path, e.Location.File)
	assert.NotEmpty(t, e.Context)
}

type fakeS3 struct {
	objects map[string]string
	calls   []string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := *in.Bucket + "/" + *in.Key
	f.calls = append(f.calls, key)
	body, ok := f.objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestLoaderS3(t *testing.T) {
	client := &fakeS3{objects: map[string]string{"apps/prod/app.json": appJSON}}
	loader := NewLoader(WithS3(client))

	app, err := loader.Load(context.Background(), "s3://apps/prod/app.json")
	require.NoError(t, err)
	assert.Equal(t, "hello", app.Metadata.Name)
	assert.Equal(t, []string{"apps/prod/app.json"}, client.calls)

	_, err = loader.Load(context.Background(), "s3://apps/prod/other.json")
	assert.True(t, errors.Is(err, serrors.New("E206")))

	_, err = loader.Load(context.Background(), "s3://bucket-only")
	assert.True(t, errors.Is(err, serrors.New("E207")))

	_, err = NewLoader().Load(context.Background(), "s3://apps/prod/app.json")
	assert.True(t, errors.Is(err, serrors.New("E207")), "no client configured")
}

func TestNewS3Client(t *testing.T) {
	client := NewS3Client(S3Config{Region: "us-east-1", Endpoint: "http://localhost:9000", UsePathStyle: true})
	require.NotNil(t, client)
	opts := client.Options()
	assert.Equal(t, "us-east-1", opts.Region)
	assert.True(t, opts.UsePathStyle)
}
