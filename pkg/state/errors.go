package state

import (
	"encoding/json"
	"errors"

	"github.com/sunmao-dev/sunmao/pkg/expression"
)

// ExpressionError is the error value produced for a failed evaluation. It
// wraps the underlying *expression.Error, so errors.As reaches the kind
// and position.
type ExpressionError struct {
	// Raw is the property string that failed.
	Raw string
	Err error
}

func (e *ExpressionError) Error() string {
	return e.Err.Error()
}

func (e *ExpressionError) Unwrap() error {
	return e.Err
}

// Kind returns the expression error kind, or -1 when the failure did not
// come from the expression language.
func (e *ExpressionError) Kind() expression.Kind {
	var exprErr *expression.Error
	if errors.As(e.Err, &exprErr) {
		return exprErr.Kind
	}
	return -1
}

// MarshalJSON encodes the error so evaluated trees can be serialized with
// failing leaves in place.
func (e *ExpressionError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name       string `json:"name"`
		Message    string `json:"message"`
		Expression string `json:"expression"`
	}{
		Name:       "ExpressionError",
		Message:    e.Error(),
		Expression: e.Raw,
	})
}

// IsExpressionError reports whether v is an *ExpressionError.
func IsExpressionError(v any) bool {
	_, ok := v.(*ExpressionError)
	return ok
}
