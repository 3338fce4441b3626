package expression

import (
	"bytes"
	"encoding/json"
	"math"
	"math/rand"
	"strconv"
	"strings"
)

// globals are the built-in names visible to every expression after the
// caller's scope.
var globals map[string]any

func init() {
	globals = map[string]any{
		"undefined":  nil,
		"NaN":        math.NaN(),
		"Infinity":   math.Inf(1),
		"Math":       mathObject(),
		"JSON":       jsonObject(),
		"Number":     numberObject(),
		"String":     Func(func(args ...any) (any, error) { return ToString(argAt(args, 0)), nil }),
		"Boolean":    Func(func(args ...any) (any, error) { return Truthy(argAt(args, 0)), nil }),
		"Array":      map[string]any{"isArray": Func(isArray)},
		"Object":     objectObject(),
		"parseInt":   Func(parseInt),
		"parseFloat": Func(parseFloat),
		"isNaN": Func(func(args ...any) (any, error) {
			return math.IsNaN(ToNumber(argAt(args, 0))), nil
		}),
		"isFinite": Func(func(args ...any) (any, error) {
			f := ToNumber(argAt(args, 0))
			return !math.IsNaN(f) && !math.IsInf(f, 0), nil
		}),
	}
}

func mathFunc1(fn func(float64) float64) Func {
	return func(args ...any) (any, error) {
		return fn(ToNumber(argAt(args, 0))), nil
	}
}

func mathObject() map[string]any {
	minmax := func(pick func(a, b float64) float64, start float64) Func {
		return func(args ...any) (any, error) {
			acc := start
			for _, a := range args {
				f := ToNumber(a)
				if math.IsNaN(f) {
					return math.NaN(), nil
				}
				acc = pick(acc, f)
			}
			return acc, nil
		}
	}
	return map[string]any{
		"PI":    math.Pi,
		"E":     math.E,
		"abs":   mathFunc1(math.Abs),
		"ceil":  mathFunc1(math.Ceil),
		"floor": mathFunc1(math.Floor),
		"round": mathFunc1(func(f float64) float64 { return math.Floor(f + 0.5) }),
		"trunc": mathFunc1(math.Trunc),
		"sqrt":  mathFunc1(math.Sqrt),
		"sign": mathFunc1(func(f float64) float64 {
			switch {
			case f > 0:
				return 1
			case f < 0:
				return -1
			}
			return f
		}),
		"log": mathFunc1(math.Log),
		"pow": Func(func(args ...any) (any, error) {
			return math.Pow(ToNumber(argAt(args, 0)), ToNumber(argAt(args, 1))), nil
		}),
		"max": minmax(math.Max, math.Inf(-1)),
		"min": minmax(math.Min, math.Inf(1)),
		"random": Func(func(args ...any) (any, error) {
			return rand.Float64(), nil
		}),
	}
}

func numberObject() Func {
	return func(args ...any) (any, error) {
		if len(args) == 0 {
			return float64(0), nil
		}
		return ToNumber(args[0]), nil
	}
}

func isArray(args ...any) (any, error) {
	_, ok := Normalize(argAt(args, 0)).([]any)
	return ok, nil
}

func parseInt(args ...any) (any, error) {
	s := strings.TrimSpace(ToString(argAt(args, 0)))
	radix := 10
	if r := argAt(args, 1); r != nil {
		radix = int(ToNumber(r))
	}
	sign := 1.0
	if strings.HasPrefix(s, "-") {
		sign, s = -1, s[1:]
	} else {
		s = strings.TrimPrefix(s, "+")
	}
	if (radix == 16 || radix == 0) && (strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		s, radix = s[2:], 16
	}
	if radix == 0 {
		radix = 10
	}
	if radix < 2 || radix > 36 {
		return math.NaN(), nil
	}
	end := 0
	for end < len(s) {
		if _, err := strconv.ParseInt(s[end:end+1], radix, 64); err != nil {
			break
		}
		end++
	}
	if end == 0 {
		return math.NaN(), nil
	}
	n, err := strconv.ParseInt(s[:end], radix, 64)
	if err != nil {
		f, _ := strconv.ParseFloat(s[:end], 64)
		return sign * f, nil
	}
	return sign * float64(n), nil
}

func parseFloat(args ...any) (any, error) {
	s := strings.TrimSpace(ToString(argAt(args, 0)))
	for end := len(s); end > 0; end-- {
		if f, ok := ParseNumeric(s[:end]); ok && !strings.HasPrefix(strings.ToLower(s), "0x") {
			return f, nil
		}
	}
	if strings.HasPrefix(s, "Infinity") || strings.HasPrefix(s, "+Infinity") {
		return math.Inf(1), nil
	}
	if strings.HasPrefix(s, "-Infinity") {
		return math.Inf(-1), nil
	}
	return math.NaN(), nil
}

func objectObject() map[string]any {
	asMap := func(v any) map[string]any {
		m, _ := Normalize(v).(map[string]any)
		return m
	}
	return map[string]any{
		"keys": Func(func(args ...any) (any, error) {
			m := asMap(argAt(args, 0))
			out := []any{}
			for _, k := range sortedKeys(m) {
				out = append(out, k)
			}
			return out, nil
		}),
		"values": Func(func(args ...any) (any, error) {
			m := asMap(argAt(args, 0))
			out := []any{}
			for _, k := range sortedKeys(m) {
				out = append(out, m[k])
			}
			return out, nil
		}),
		"entries": Func(func(args ...any) (any, error) {
			m := asMap(argAt(args, 0))
			out := []any{}
			for _, k := range sortedKeys(m) {
				out = append(out, []any{k, m[k]})
			}
			return out, nil
		}),
		"assign": Func(func(args ...any) (any, error) {
			out := map[string]any{}
			for _, a := range args {
				for k, v := range asMap(a) {
					out[k] = v
				}
			}
			return out, nil
		}),
	}
}

func jsonObject() map[string]any {
	return map[string]any{
		"stringify": Func(func(args ...any) (any, error) {
			v := argAt(args, 0)
			if _, ok := v.(Func); ok || v == nil && len(args) == 0 {
				return nil, nil
			}
			indent := ""
			if sp := argAt(args, 2); sp != nil {
				if s, ok := sp.(string); ok {
					indent = s
				} else {
					indent = strings.Repeat(" ", int(ToNumber(sp)))
				}
			}
			return Stringify(v, indent)
		}),
		"parse": Func(func(args ...any) (any, error) {
			var out any
			dec := json.NewDecoder(strings.NewReader(ToString(argAt(args, 0))))
			if err := dec.Decode(&out); err != nil {
				return nil, syntaxErrorf(0, "%s", err.Error())
			}
			return out, nil
		}),
	}
}

// Stringify renders v as JSON without HTML escaping. Non-finite numbers
// become null and functions are dropped.
func Stringify(v any, indent string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(jsonSafe(Normalize(v))); err != nil {
		return "", typeErrorf("%s", err.Error())
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func jsonSafe(v any) any {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return t
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			if isCallable(e) {
				out[i] = nil
				continue
			}
			out[i] = jsonSafe(Normalize(e))
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			if e != nil && isCallable(e) {
				continue
			}
			out[k] = jsonSafe(Normalize(e))
		}
		return out
	case Func:
		return nil
	}
	return v
}

// JSONValue converts v into a value encoding/json can always encode, as
// JSON.stringify sees it: functions are dropped from objects and become
// null in arrays, and NaN and infinities become null.
func JSONValue(v any) any {
	return jsonSafe(Normalize(v))
}
