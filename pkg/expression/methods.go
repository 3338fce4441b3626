package expression

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

func argAt(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

// relIndex resolves a possibly negative index argument against length n.
func relIndex(v any, n int, def int) int {
	if v == nil {
		return def
	}
	f := ToNumber(v)
	if math.IsNaN(f) {
		return 0
	}
	i := int(math.Trunc(f))
	if i < 0 {
		i += n
		if i < 0 {
			i = 0
		}
	}
	if i > n {
		i = n
	}
	return i
}

func callback(fn any, name string) (any, error) {
	if !isCallable(fn) {
		return nil, typeErrorf("%s is not a function", ToString(fn))
	}
	return fn, nil
}

// arrayMethod returns the named method bound to arr, or nil.
func arrayMethod(arr []any, name string) any {
	switch name {
	case "map":
		return Func(func(args ...any) (any, error) {
			fn, err := callback(argAt(args, 0), name)
			if err != nil {
				return nil, err
			}
			out := make([]any, len(arr))
			for i, v := range arr {
				r, err := callValue(fn, v, float64(i), arr)
				if err != nil {
					return nil, err
				}
				out[i] = r
			}
			return out, nil
		})
	case "filter":
		return Func(func(args ...any) (any, error) {
			fn, err := callback(argAt(args, 0), name)
			if err != nil {
				return nil, err
			}
			out := []any{}
			for i, v := range arr {
				r, err := callValue(fn, v, float64(i), arr)
				if err != nil {
					return nil, err
				}
				if Truthy(r) {
					out = append(out, v)
				}
			}
			return out, nil
		})
	case "find", "findIndex", "some", "every":
		return Func(func(args ...any) (any, error) {
			fn, err := callback(argAt(args, 0), name)
			if err != nil {
				return nil, err
			}
			for i, v := range arr {
				r, err := callValue(fn, v, float64(i), arr)
				if err != nil {
					return nil, err
				}
				hit := Truthy(r)
				switch {
				case name == "find" && hit:
					return v, nil
				case name == "findIndex" && hit:
					return float64(i), nil
				case name == "some" && hit:
					return true, nil
				case name == "every" && !hit:
					return false, nil
				}
			}
			switch name {
			case "findIndex":
				return float64(-1), nil
			case "some":
				return false, nil
			case "every":
				return true, nil
			}
			return nil, nil
		})
	case "reduce":
		return Func(func(args ...any) (any, error) {
			fn, err := callback(argAt(args, 0), name)
			if err != nil {
				return nil, err
			}
			start := 0
			var acc any
			if len(args) > 1 {
				acc = args[1]
			} else {
				if len(arr) == 0 {
					return nil, typeErrorf("Reduce of empty array with no initial value")
				}
				acc = arr[0]
				start = 1
			}
			for i := start; i < len(arr); i++ {
				acc, err = callValue(fn, acc, arr[i], float64(i), arr)
				if err != nil {
					return nil, err
				}
			}
			return acc, nil
		})
	case "join":
		return Func(func(args ...any) (any, error) {
			sep := ","
			if s := argAt(args, 0); s != nil {
				sep = ToString(s)
			}
			parts := make([]string, len(arr))
			for i, v := range arr {
				parts[i] = ToString(v)
			}
			return strings.Join(parts, sep), nil
		})
	case "includes":
		return Func(func(args ...any) (any, error) {
			target := argAt(args, 0)
			for _, v := range arr {
				if StrictEquals(v, target) {
					return true, nil
				}
			}
			return false, nil
		})
	case "indexOf":
		return Func(func(args ...any) (any, error) {
			target := argAt(args, 0)
			for i, v := range arr {
				if StrictEquals(v, target) {
					return float64(i), nil
				}
			}
			return float64(-1), nil
		})
	case "slice":
		return Func(func(args ...any) (any, error) {
			start := relIndex(argAt(args, 0), len(arr), 0)
			end := relIndex(argAt(args, 1), len(arr), len(arr))
			if end < start {
				return []any{}, nil
			}
			out := make([]any, end-start)
			copy(out, arr[start:end])
			return out, nil
		})
	case "concat":
		return Func(func(args ...any) (any, error) {
			out := append([]any{}, arr...)
			for _, a := range args {
				if more, ok := Normalize(a).([]any); ok {
					out = append(out, more...)
				} else {
					out = append(out, a)
				}
			}
			return out, nil
		})
	case "reverse":
		return Func(func(args ...any) (any, error) {
			out := make([]any, len(arr))
			for i, v := range arr {
				out[len(arr)-1-i] = v
			}
			return out, nil
		})
	case "sort":
		return Func(func(args ...any) (any, error) {
			out := append([]any{}, arr...)
			cmp := argAt(args, 0)
			var sortErr error
			sort.SliceStable(out, func(i, j int) bool {
				if cmp == nil {
					return ToString(out[i]) < ToString(out[j])
				}
				r, err := callValue(cmp, out[i], out[j])
				if err != nil && sortErr == nil {
					sortErr = err
				}
				return ToNumber(r) < 0
			})
			if sortErr != nil {
				return nil, sortErr
			}
			return out, nil
		})
	case "flat":
		return Func(func(args ...any) (any, error) {
			out := []any{}
			for _, v := range arr {
				if inner, ok := Normalize(v).([]any); ok {
					out = append(out, inner...)
				} else {
					out = append(out, v)
				}
			}
			return out, nil
		})
	case "at":
		return Func(func(args ...any) (any, error) {
			i := int(ToNumber(argAt(args, 0)))
			if i < 0 {
				i += len(arr)
			}
			if i < 0 || i >= len(arr) {
				return nil, nil
			}
			return arr[i], nil
		})
	case "toString":
		return Func(func(args ...any) (any, error) {
			return ToString(arr), nil
		})
	}
	return nil
}

// stringMethod returns the named method bound to s, or nil.
func stringMethod(s string, name string) any {
	runes := []rune(s)
	switch name {
	case "toUpperCase":
		return Func(func(args ...any) (any, error) { return strings.ToUpper(s), nil })
	case "toLowerCase":
		return Func(func(args ...any) (any, error) { return strings.ToLower(s), nil })
	case "trim":
		return Func(func(args ...any) (any, error) { return strings.TrimSpace(s), nil })
	case "trimStart":
		return Func(func(args ...any) (any, error) { return strings.TrimLeft(s, " \t\n\r\v\f"), nil })
	case "trimEnd":
		return Func(func(args ...any) (any, error) { return strings.TrimRight(s, " \t\n\r\v\f"), nil })
	case "includes":
		return Func(func(args ...any) (any, error) {
			return strings.Contains(s, ToString(argAt(args, 0))), nil
		})
	case "startsWith":
		return Func(func(args ...any) (any, error) {
			return strings.HasPrefix(s, ToString(argAt(args, 0))), nil
		})
	case "endsWith":
		return Func(func(args ...any) (any, error) {
			return strings.HasSuffix(s, ToString(argAt(args, 0))), nil
		})
	case "indexOf", "lastIndexOf":
		return Func(func(args ...any) (any, error) {
			sub := ToString(argAt(args, 0))
			var i int
			if name == "indexOf" {
				i = strings.Index(s, sub)
			} else {
				i = strings.LastIndex(s, sub)
			}
			if i < 0 {
				return float64(-1), nil
			}
			return float64(len([]rune(s[:i]))), nil
		})
	case "slice":
		return Func(func(args ...any) (any, error) {
			start := relIndex(argAt(args, 0), len(runes), 0)
			end := relIndex(argAt(args, 1), len(runes), len(runes))
			if end < start {
				return "", nil
			}
			return string(runes[start:end]), nil
		})
	case "substring":
		return Func(func(args ...any) (any, error) {
			clamp := func(v any, def int) int {
				if v == nil {
					return def
				}
				f := ToNumber(v)
				if math.IsNaN(f) || f < 0 {
					return 0
				}
				if int(f) > len(runes) {
					return len(runes)
				}
				return int(f)
			}
			start, end := clamp(argAt(args, 0), 0), clamp(argAt(args, 1), len(runes))
			if start > end {
				start, end = end, start
			}
			return string(runes[start:end]), nil
		})
	case "split":
		return Func(func(args ...any) (any, error) {
			sepArg := argAt(args, 0)
			if sepArg == nil {
				return []any{s}, nil
			}
			var parts []string
			if sep := ToString(sepArg); sep == "" {
				for _, r := range runes {
					parts = append(parts, string(r))
				}
			} else {
				parts = strings.Split(s, sep)
			}
			if limit := argAt(args, 1); limit != nil {
				if n := int(ToNumber(limit)); n >= 0 && n < len(parts) {
					parts = parts[:n]
				}
			}
			out := make([]any, len(parts))
			for i, p := range parts {
				out[i] = p
			}
			return out, nil
		})
	case "replace":
		return Func(func(args ...any) (any, error) {
			return strings.Replace(s, ToString(argAt(args, 0)), ToString(argAt(args, 1)), 1), nil
		})
	case "replaceAll":
		return Func(func(args ...any) (any, error) {
			return strings.ReplaceAll(s, ToString(argAt(args, 0)), ToString(argAt(args, 1))), nil
		})
	case "padStart", "padEnd":
		return Func(func(args ...any) (any, error) {
			width := int(ToNumber(argAt(args, 0)))
			pad := " "
			if p := argAt(args, 1); p != nil {
				pad = ToString(p)
			}
			missing := width - len(runes)
			if missing <= 0 || pad == "" {
				return s, nil
			}
			fill := []rune(strings.Repeat(pad, missing/len([]rune(pad))+1))[:missing]
			if name == "padStart" {
				return string(fill) + s, nil
			}
			return s + string(fill), nil
		})
	case "repeat":
		return Func(func(args ...any) (any, error) {
			n := ToNumber(argAt(args, 0))
			if n < 0 || math.IsInf(n, 0) {
				return nil, rangeErrorf("Invalid count value: %s", FormatNumber(n))
			}
			return strings.Repeat(s, int(n)), nil
		})
	case "charAt":
		return Func(func(args ...any) (any, error) {
			i := int(ToNumber(argAt(args, 0)))
			if argAt(args, 0) == nil {
				i = 0
			}
			if i < 0 || i >= len(runes) {
				return "", nil
			}
			return string(runes[i]), nil
		})
	case "at":
		return Func(func(args ...any) (any, error) {
			i := int(ToNumber(argAt(args, 0)))
			if i < 0 {
				i += len(runes)
			}
			if i < 0 || i >= len(runes) {
				return nil, nil
			}
			return string(runes[i]), nil
		})
	case "concat":
		return Func(func(args ...any) (any, error) {
			var b strings.Builder
			b.WriteString(s)
			for _, a := range args {
				b.WriteString(ToString(a))
			}
			return b.String(), nil
		})
	case "toString", "valueOf":
		return Func(func(args ...any) (any, error) { return s, nil })
	}
	return nil
}

// numberMethod returns the named method bound to f, or nil.
func numberMethod(f float64, name string) any {
	switch name {
	case "toFixed":
		return Func(func(args ...any) (any, error) {
			digits := 0
			if d := argAt(args, 0); d != nil {
				digits = int(ToNumber(d))
			}
			if digits < 0 || digits > 100 {
				return nil, rangeErrorf("toFixed() digits argument must be between 0 and 100")
			}
			return strconv.FormatFloat(f, 'f', digits, 64), nil
		})
	case "toString":
		return Func(func(args ...any) (any, error) {
			if r := argAt(args, 0); r != nil {
				radix := int(ToNumber(r))
				if radix < 2 || radix > 36 {
					return nil, rangeErrorf("toString() radix must be between 2 and 36")
				}
				if f == math.Trunc(f) {
					return strconv.FormatInt(int64(f), radix), nil
				}
			}
			return FormatNumber(f), nil
		})
	case "valueOf":
		return Func(func(args ...any) (any, error) { return f, nil })
	}
	return nil
}
