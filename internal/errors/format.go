package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Style selects how a Printer renders errors.
type Style int

const (
	// StyleTerminal is the multi-line report with source context and hint.
	StyleTerminal Style = iota
	// StyleCompact is one "file:line:col: code: message" line per error.
	StyleCompact
	// StyleJSON is one JSON object per error, matching JSON log output.
	StyleJSON
)

// Printer writes errors for the command line.
type Printer struct {
	Out   io.Writer
	Style Style
	Color bool
}

// NewPrinter returns a terminal-style printer for w. Color is on only when w
// is a terminal and NO_COLOR is unset.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{Out: w, Style: StyleTerminal, Color: IsTerminal(w) && os.Getenv("NO_COLOR") == ""}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Print writes err in the printer's style. Errors that are not *Error are
// printed with their message only.
func (p *Printer) Print(err error) {
	if err == nil {
		return
	}
	var e *Error
	if !stderrors.As(err, &e) {
		e = &Error{Message: err.Error()}
	}
	switch p.Style {
	case StyleCompact:
		fmt.Fprintln(p.Out, e.FormatCompact())
	case StyleJSON:
		fmt.Fprintln(p.Out, e.FormatJSON())
	default:
		fmt.Fprint(p.Out, e.format(palette(p.Color)))
	}
}

// palette wraps text in ANSI codes when true.
type palette bool

func (c palette) wrap(code, text string) string {
	if !c {
		return text
	}
	return "\033[" + code + "m" + text + "\033[0m"
}

func (c palette) red(s string) string   { return c.wrap("31", s) }
func (c palette) blue(s string) string  { return c.wrap("34", s) }
func (c palette) cyan(s string) string  { return c.wrap("36", s) }
func (c palette) gray(s string) string  { return c.wrap("90", s) }
func (c palette) bold(s string) string  { return c.wrap("1", s) }
func (c palette) alert(s string) string { return c.wrap("1;31", s) }

// Format returns the multi-line report without colors.
func (e *Error) Format() string {
	return e.format(false)
}

func (e *Error) format(c palette) string {
	var b strings.Builder
	b.WriteString("\n")
	if e.Code != "" {
		fmt.Fprintf(&b, "%s %s %s\n\n", c.alert("ERROR"), c.bold(e.Code+":"), e.Message)
	} else {
		fmt.Fprintf(&b, "%s %s\n\n", c.alert("ERROR:"), e.Message)
	}

	if e.Location != nil {
		fmt.Fprintf(&b, "  %s\n\n", c.cyan(e.Location.String()))
		e.writeSource(&b, c)
	}
	if e.Detail != "" {
		for _, line := range wrapText(e.Detail, 70) {
			fmt.Fprintf(&b, "  %s\n", line)
		}
		b.WriteString("\n")
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "  %s%s\n\n", c.cyan("Hint: "), e.Suggestion)
	}
	if e.Example != "" {
		fmt.Fprintf(&b, "  %s\n", c.blue("Example:"))
		for _, line := range strings.Split(e.Example, "\n") {
			fmt.Fprintf(&b, "    %s\n", line)
		}
		b.WriteString("\n")
	}
	if e.Wrapped != nil {
		fmt.Fprintf(&b, "  %s%s\n", c.gray("Caused by: "), e.Wrapped.Error())
	}
	return b.String()
}

// writeSource prints the context lines centered on the error line, with a
// caret under the column.
func (e *Error) writeSource(b *strings.Builder, c palette) {
	if len(e.Context) == 0 {
		return
	}
	first := e.Location.Line - len(e.Context)/2
	for i, line := range e.Context {
		n := first + i
		marker := "  "
		if n == e.Location.Line {
			marker = c.red("→ ")
		}
		fmt.Fprintf(b, "  %s%4d%s%s\n", marker, n, c.gray(" │ "), line)
		if n == e.Location.Line && e.Location.Column > 0 {
			fmt.Fprintf(b, "        %s%s%s\n", c.gray("│ "), strings.Repeat(" ", e.Location.Column-1), c.red("^"))
		}
	}
	b.WriteString("\n")
}

// FormatCompact returns "file:line:col: code: message" on one line.
func (e *Error) FormatCompact() string {
	var parts []string
	if e.Location != nil {
		parts = append(parts, e.Location.String())
	}
	if e.Code != "" {
		parts = append(parts, e.Code)
	}
	msg := e.Message
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return strings.Join(append(parts, msg), ": ")
}

type jsonLocation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column,omitempty"`
}

type jsonError struct {
	Code       string        `json:"code,omitempty"`
	Category   Category      `json:"category,omitempty"`
	Message    string        `json:"message"`
	Detail     string        `json:"detail,omitempty"`
	Location   *jsonLocation `json:"location,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
	Cause      string        `json:"cause,omitempty"`
}

// FormatJSON returns the error as a single-line JSON object.
func (e *Error) FormatJSON() string {
	out := jsonError{
		Code:       e.Code,
		Category:   e.Category,
		Message:    e.Message,
		Detail:     e.Detail,
		Suggestion: e.Suggestion,
	}
	if e.Location != nil {
		out.Location = &jsonLocation{File: e.Location.File, Line: e.Location.Line, Column: e.Location.Column}
	}
	if e.Wrapped != nil {
		out.Cause = e.Wrapped.Error()
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprintf(`{"message":%q}`, e.Error())
	}
	return string(data)
}

// wrapText breaks text into lines of at most width bytes at word
// boundaries.
func wrapText(text string, width int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= width {
		return []string{text}
	}
	var lines []string
	var cur strings.Builder
	for _, word := range strings.Fields(text) {
		if cur.Len() > 0 && cur.Len()+len(word)+1 > width {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}
