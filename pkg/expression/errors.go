package expression

import "fmt"

// Kind classifies an evaluation failure the way the browser would report it.
type Kind int

const (
	SyntaxError Kind = iota + 1
	ReferenceError
	TypeError
	RangeError
)

// String returns the JavaScript error name for the kind.
func (k Kind) String() string {
	switch k {
	case SyntaxError:
		return "SyntaxError"
	case ReferenceError:
		return "ReferenceError"
	case TypeError:
		return "TypeError"
	case RangeError:
		return "RangeError"
	default:
		return "Error"
	}
}

// Error is a failure raised while compiling or evaluating an expression.
type Error struct {
	Kind    Kind
	Message string

	// Pos is the byte offset in the source, or -1 when unknown.
	Pos int
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Message
}

func syntaxErrorf(pos int, format string, args ...any) *Error {
	return &Error{Kind: SyntaxError, Message: fmt.Sprintf(format, args...), Pos: pos}
}

func referenceErrorf(format string, args ...any) *Error {
	return &Error{Kind: ReferenceError, Message: fmt.Sprintf(format, args...), Pos: -1}
}

func typeErrorf(format string, args ...any) *Error {
	return &Error{Kind: TypeError, Message: fmt.Sprintf(format, args...), Pos: -1}
}

func rangeErrorf(format string, args ...any) *Error {
	return &Error{Kind: RangeError, Message: fmt.Sprintf(format, args...), Pos: -1}
}
