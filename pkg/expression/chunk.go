package expression

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"

	// listItemVar is left alone unless the caller owns the list scope.
	listItemVar = "$listItem"
)

// Segment is one piece of a Chunk: literal text, or a dynamic expression
// whose own text is the Inner chunk.
type Segment struct {
	Dynamic bool
	Text    string
	Inner   Chunk
}

// Chunk is a parsed raw string.
type Chunk []Segment

// IsDynamic reports whether any segment needs evaluation.
func (c Chunk) IsDynamic() bool {
	for _, s := range c {
		if s.Dynamic {
			return true
		}
	}
	return false
}

// String re-creates the raw text the chunk was parsed from.
func (c Chunk) String() string {
	var b strings.Builder
	c.write(&b)
	return b.String()
}

func (c Chunk) write(b *strings.Builder) {
	for _, s := range c {
		if s.Dynamic {
			b.WriteString(openDelim)
			s.Inner.write(b)
			b.WriteString(closeDelim)
			continue
		}
		b.WriteString(s.Text)
	}
}

// ParseOption configures ParseChunk.
type ParseOption func(*parseOptions)

type parseOptions struct {
	listItem bool
}

// ParseListItem controls whether strings referencing $listItem are parsed.
// By default they are kept literal so that a list component can evaluate
// them per item.
func ParseListItem(enabled bool) ParseOption {
	return func(o *parseOptions) {
		o.listItem = enabled
	}
}

// ParseChunk splits raw into literal and dynamic segments. An unclosed {{
// extends to the end of the input; a }} with no open {{ is literal text.
func ParseChunk(raw string, opts ...ParseOption) Chunk {
	var o parseOptions
	for _, opt := range opts {
		opt(&o)
	}

	if !o.listItem && strings.Contains(raw, listItemVar) {
		return Chunk{{Text: raw}}
	}

	p := chunkParser{src: raw}
	return p.build(0)
}

type chunkParser struct {
	src string
	pos int
}

func (p *chunkParser) build(depth int) Chunk {
	chunk := Chunk{}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			chunk = append(chunk, Segment{Text: lit.String()})
			lit.Reset()
		}
	}

	for p.pos < len(p.src) {
		rest := p.src[p.pos:]
		switch {
		case strings.HasPrefix(rest, openDelim):
			flush()
			p.pos += len(openDelim)
			chunk = append(chunk, Segment{Dynamic: true, Inner: p.build(depth + 1)})
		case depth > 0 && strings.HasPrefix(rest, closeDelim):
			p.pos += len(closeDelim)
			flush()
			return chunk
		default:
			lit.WriteByte(p.src[p.pos])
			p.pos++
		}
	}
	flush()
	return chunk
}

var (
	decimalPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)
	hexPattern     = regexp.MustCompile(`^0[xX][0-9a-fA-F]+$`)
)

// IsNumeric reports whether s is a numeric literal the way Number(s) would
// accept it: optional surrounding whitespace, decimal with optional sign and
// exponent, or unsigned hexadecimal.
func IsNumeric(s string) bool {
	_, ok := ParseNumeric(s)
	return ok
}

// ParseNumeric converts a numeric literal string to its value.
func ParseNumeric(s string) (float64, bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, false
	}
	if hexPattern.MatchString(t) {
		n, err := strconv.ParseUint(t[2:], 16, 64)
		if err != nil {
			return 0, false
		}
		return float64(n), true
	}
	if !decimalPattern.MatchString(t) {
		return 0, false
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil {
		// Out of range values still parse to ±Inf with an error.
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f, true
		}
		return 0, false
	}
	return f, true
}
