package expression

import (
	"reflect"
	"testing"
)

func TestParseChunk(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Chunk
	}{
		{"plain", "hello", Chunk{{Text: "hello"}}},
		{"empty", "", Chunk{}},
		{"single", "{{ a }}", Chunk{{Dynamic: true, Inner: Chunk{{Text: " a "}}}}},
		{
			"mixed",
			"Hello {{ name }}!",
			Chunk{
				{Text: "Hello "},
				{Dynamic: true, Inner: Chunk{{Text: " name "}}},
				{Text: "!"},
			},
		},
		{
			"adjacent",
			"{{a}}{{b}}",
			Chunk{
				{Dynamic: true, Inner: Chunk{{Text: "a"}}},
				{Dynamic: true, Inner: Chunk{{Text: "b"}}},
			},
		},
		{
			"nested",
			"{{ {{ key }}.value }}",
			Chunk{{Dynamic: true, Inner: Chunk{
				{Text: " "},
				{Dynamic: true, Inner: Chunk{{Text: " key "}}},
				{Text: ".value "},
			}}},
		},
		{"unclosed", "x {{ a", Chunk{{Text: "x "}, {Dynamic: true, Inner: Chunk{{Text: " a"}}}}},
		{"stray close", "a }} b", Chunk{{Text: "a }} b"}}},
		{"empty expression", "{{}}", Chunk{{Dynamic: true, Inner: Chunk{}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseChunk(tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseChunk(%q) = %#v, want %#v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseChunkListItem(t *testing.T) {
	raw := "{{ $listItem.name }}"

	got := ParseChunk(raw)
	if got.IsDynamic() {
		t.Errorf("$listItem chunk should stay literal by default, got %#v", got)
	}
	if got.String() != raw {
		t.Errorf("String() = %q, want %q", got.String(), raw)
	}

	got = ParseChunk(raw, ParseListItem(true))
	if !got.IsDynamic() {
		t.Errorf("ParseListItem(true) should parse $listItem expressions")
	}
}

func TestChunkStringRoundTrip(t *testing.T) {
	for _, raw := range []string{
		"plain",
		"a {{ b }} c",
		"{{ {{ x }} }}",
		"{{a}}{{b}}",
	} {
		if got := ParseChunk(raw).String(); got != raw {
			t.Errorf("ParseChunk(%q).String() = %q", raw, got)
		}
	}
}

func TestIsNumeric(t *testing.T) {
	tests := []struct {
		in   string
		want bool
		num  float64
	}{
		{"1", true, 1},
		{" 42 ", true, 42},
		{"-3.5", true, -3.5},
		{".5", true, 0.5},
		{"1e3", true, 1000},
		{"0x1F", true, 31},
		{"", false, 0},
		{"abc", false, 0},
		{"1a", false, 0},
		{"1.2.3", false, 0},
	}
	for _, tt := range tests {
		if got := IsNumeric(tt.in); got != tt.want {
			t.Errorf("IsNumeric(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if n, ok := ParseNumeric(tt.in); ok && n != tt.num {
			t.Errorf("ParseNumeric(%q) = %v, want %v", tt.in, n, tt.num)
		}
	}
}
