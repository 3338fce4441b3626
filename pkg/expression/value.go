package expression

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Func is a callable value. Arrow functions, built-in methods and most
// dependency helpers are Funcs.
type Func func(args ...any) (any, error)

// Object is a host value that exposes named properties to expressions, such
// as a date value returned by a helper library.
type Object interface {
	Property(name string) (any, bool)
}

// Undefined is what a missing property evaluates to. It is nil: the
// language does not distinguish null from undefined.
var Undefined any = nil

// Normalize converts Go values of common shapes into the canonical value
// types: integer and float kinds to float64, string-keyed maps to
// map[string]any and slices to []any. Other values are returned unchanged.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, float64, string, bool, []any, map[string]any, Func, Object:
		return v
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return f
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case func(args ...any) (any, error):
		return Func(x)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
	}
	return v
}

// TypeOf returns the typeof operator result for v.
func TypeOf(v any) string {
	switch Normalize(v).(type) {
	case nil:
		return "undefined"
	case float64:
		return "number"
	case string:
		return "string"
	case bool:
		return "boolean"
	case Func:
		return "function"
	}
	if reflect.TypeOf(v).Kind() == reflect.Func {
		return "function"
	}
	return "object"
}

// Truthy reports JavaScript truthiness.
func Truthy(v any) bool {
	switch x := Normalize(v).(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	}
	return true
}

// ToNumber converts v the way unary plus would.
func ToNumber(v any) float64 {
	switch x := Normalize(v).(type) {
	case nil:
		return math.NaN()
	case float64:
		return x
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		t := strings.TrimSpace(x)
		if t == "" {
			return 0
		}
		switch t {
		case "Infinity", "+Infinity":
			return math.Inf(1)
		case "-Infinity":
			return math.Inf(-1)
		}
		if f, ok := ParseNumeric(t); ok {
			return f
		}
		return math.NaN()
	case []any:
		switch len(x) {
		case 0:
			return 0
		case 1:
			return ToNumber(ToString(x[0]))
		}
	}
	return math.NaN()
}

// ToString converts v the way string concatenation would. nil becomes the
// empty string, which is what joining evaluated segments produces.
func ToString(v any) string {
	switch x := Normalize(v).(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case float64:
		return FormatNumber(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = ToString(e)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		return "[object Object]"
	case Func:
		return "function () { [native code] }"
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	}
	return fmt.Sprint(v)
}

// FormatNumber renders f like Number.prototype.toString.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		// Go pads the exponent to two digits ("1e-07"); JavaScript does not.
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[0]
		digits := strings.TrimLeft(exp[1:], "0")
		if digits == "" {
			digits = "0"
		}
		return mant + "e" + string(sign) + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// StrictEquals implements ===. Arrays, maps and functions compare by
// identity.
func StrictEquals(a, b any) bool {
	a, b = Normalize(a), Normalize(b)
	switch x := a.(type) {
	case nil:
		return b == nil
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	if b == nil {
		return false
	}
	return sameReference(a, b)
}

// LooseEquals implements ==.
func LooseEquals(a, b any) bool {
	a, b = Normalize(a), Normalize(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case float64:
		switch y := b.(type) {
		case string, bool:
			return x == ToNumber(y)
		}
	case string:
		switch b.(type) {
		case float64, bool:
			return ToNumber(x) == ToNumber(b)
		}
	case bool:
		if _, isBool := b.(bool); !isBool {
			return LooseEquals(ToNumber(x), b)
		}
	}
	if _, ok := b.(bool); ok {
		if _, isBool := a.(bool); !isBool {
			return LooseEquals(a, ToNumber(b))
		}
	}
	return StrictEquals(a, b)
}

func sameReference(a, b any) bool {
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Kind() != rb.Kind() {
		return false
	}
	switch ra.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return ra.Pointer() == rb.Pointer()
	case reflect.Slice:
		return ra.Pointer() == rb.Pointer() && ra.Len() == rb.Len()
	}
	if ra.Type().Comparable() && rb.Type().Comparable() {
		return a == b
	}
	return false
}

// sortedKeys returns the keys of m in sorted order. Go maps do not keep
// insertion order, so iteration is made deterministic instead.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
