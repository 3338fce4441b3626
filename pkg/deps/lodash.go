package deps

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sunmao-dev/sunmao/pkg/expression"
)

// Lodash returns the "_" utility object.
func Lodash() map[string]any {
	fns := map[string]expression.Func{
		"get":        get,
		"isEmpty":    isEmpty,
		"isNil":      func(a ...any) (any, error) { return expression.Normalize(arg(a, 0)) == nil, nil },
		"isArray":    func(a ...any) (any, error) { return is[[]any](arg(a, 0)), nil },
		"isString":   func(a ...any) (any, error) { return is[string](arg(a, 0)), nil },
		"isNumber":   func(a ...any) (any, error) { return is[float64](arg(a, 0)), nil },
		"isObject":   func(a ...any) (any, error) { return is[map[string]any](arg(a, 0)) || is[[]any](arg(a, 0)), nil },
		"keys":       keys,
		"values":     values,
		"size":       size,
		"sum":        sum,
		"max":        extreme(1),
		"min":        extreme(-1),
		"uniq":       uniq,
		"includes":   includes,
		"first":      first,
		"head":       first,
		"last":       last,
		"join":       join,
		"range":      rangeFn,
		"chunk":      chunk,
		"toNumber":   func(a ...any) (any, error) { return expression.ToNumber(arg(a, 0)), nil },
		"toString":   func(a ...any) (any, error) { return expression.ToString(arg(a, 0)), nil },
		"upperCase":  caseFn(func(w []string) string { return strings.Join(mapWords(w, upper), " ") }),
		"lowerCase":  caseFn(func(w []string) string { return strings.Join(mapWords(w, lower), " ") }),
		"kebabCase":  caseFn(func(w []string) string { return strings.Join(mapWords(w, lower), "-") }),
		"snakeCase":  caseFn(func(w []string) string { return strings.Join(mapWords(w, lower), "_") }),
		"startCase":  caseFn(func(w []string) string { return strings.Join(mapWords(w, upperFirst), " ") }),
		"camelCase":  caseFn(camelCase),
		"capitalize": func(a ...any) (any, error) { return title(lower(expression.ToString(arg(a, 0)))), nil },
		"upperFirst": func(a ...any) (any, error) { return upperFirst(expression.ToString(arg(a, 0))), nil },
		"round":      round,
		"clamp":      clamp,
		"map":        mapFn,
		"filter":     filter,
		"find":       find,
		"sortBy":     sortBy,
	}

	out := make(map[string]any, len(fns))
	for k, fn := range fns {
		out[k] = fn
	}
	return out
}

// Casers carry state, so each call gets its own.
func upper(s string) string { return cases.Upper(language.Und).String(s) }
func lower(s string) string { return cases.Lower(language.Und).String(s) }
func title(s string) string { return cases.Title(language.Und, cases.NoLower).String(s) }

func is[T any](v any) bool {
	_, ok := expression.Normalize(v).(T)
	return ok
}

// pathSegments splits "a.b[0].c" into ["a", "b", "0", "c"].
func pathSegments(v any) []any {
	if arr, ok := expression.Normalize(v).([]any); ok {
		return arr
	}
	s := expression.ToString(v)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == '[' || r == ']'
	})
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = strings.Trim(f, `'"`)
	}
	return out
}

func get(a ...any) (any, error) {
	cur := arg(a, 0)
	for _, seg := range pathSegments(arg(a, 1)) {
		if expression.Normalize(cur) == nil {
			return arg(a, 2), nil
		}
		next, err := expression.Member(cur, seg)
		if err != nil {
			return arg(a, 2), nil
		}
		cur = next
	}
	if cur == nil {
		return arg(a, 2), nil
	}
	return cur, nil
}

func isEmpty(a ...any) (any, error) {
	switch v := expression.Normalize(arg(a, 0)).(type) {
	case string:
		return v == "", nil
	case []any:
		return len(v) == 0, nil
	case map[string]any:
		return len(v) == 0, nil
	}
	return true, nil
}

// collection returns the elements of an array or the values of an object
// in key order.
func collection(v any) []any {
	switch c := expression.Normalize(v).(type) {
	case []any:
		return c
	case map[string]any:
		ks := sortedKeys(c)
		out := make([]any, len(ks))
		for i, k := range ks {
			out[i] = c[k]
		}
		return out
	case string:
		out := []any{}
		for _, r := range c {
			out = append(out, string(r))
		}
		return out
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}

func keys(a ...any) (any, error) {
	out := []any{}
	switch c := expression.Normalize(arg(a, 0)).(type) {
	case map[string]any:
		for _, k := range sortedKeys(c) {
			out = append(out, k)
		}
	case []any:
		for i := range c {
			out = append(out, expression.FormatNumber(float64(i)))
		}
	}
	return out, nil
}

func values(a ...any) (any, error) {
	c := collection(arg(a, 0))
	if c == nil {
		return []any{}, nil
	}
	return c, nil
}

func size(a ...any) (any, error) {
	if s, ok := arg(a, 0).(string); ok {
		return float64(len([]rune(s))), nil
	}
	return float64(len(collection(arg(a, 0)))), nil
}

func sum(a ...any) (any, error) {
	total := 0.0
	for _, v := range collection(arg(a, 0)) {
		total += expression.ToNumber(v)
	}
	return total, nil
}

func extreme(sign float64) expression.Func {
	return func(a ...any) (any, error) {
		var best any
		for _, v := range collection(arg(a, 0)) {
			n := expression.ToNumber(v)
			if math.IsNaN(n) {
				continue
			}
			if best == nil || n*sign > expression.ToNumber(best)*sign {
				best = v
			}
		}
		return best, nil
	}
}

func uniq(a ...any) (any, error) {
	out := []any{}
	for _, v := range collection(arg(a, 0)) {
		dup := false
		for _, seen := range out {
			if expression.StrictEquals(seen, v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out, nil
}

func includes(a ...any) (any, error) {
	target := arg(a, 1)
	if s, ok := arg(a, 0).(string); ok {
		return strings.Contains(s, expression.ToString(target)), nil
	}
	for _, v := range collection(arg(a, 0)) {
		if expression.StrictEquals(v, target) {
			return true, nil
		}
	}
	return false, nil
}

func first(a ...any) (any, error) {
	c := collection(arg(a, 0))
	if len(c) == 0 {
		return nil, nil
	}
	return c[0], nil
}

func last(a ...any) (any, error) {
	c := collection(arg(a, 0))
	if len(c) == 0 {
		return nil, nil
	}
	return c[len(c)-1], nil
}

func join(a ...any) (any, error) {
	sep := ","
	if s := arg(a, 1); s != nil {
		sep = expression.ToString(s)
	}
	c := collection(arg(a, 0))
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = expression.ToString(v)
	}
	return strings.Join(parts, sep), nil
}

// maxRangeLength bounds _.range so that one expression cannot allocate
// without limit.
const maxRangeLength = 1 << 20

// rangeFn follows lodash: NaN bounds count as 0 and a zero step repeats
// start ceil(end-start) times.
func rangeFn(a ...any) (any, error) {
	finite := func(v any) float64 {
		f := expression.ToNumber(v)
		if math.IsNaN(f) {
			return 0
		}
		return f
	}
	start, end := 0.0, 0.0
	switch len(a) {
	case 0:
	case 1:
		end = finite(a[0])
	default:
		start, end = finite(a[0]), finite(a[1])
	}
	step := 1.0
	if len(a) > 2 && a[2] != nil {
		step = finite(a[2])
	} else if end < start {
		step = -1
	}

	div := step
	if div == 0 {
		div = 1
	}
	n := math.Max(math.Ceil((end-start)/div), 0)
	if n > maxRangeLength {
		return nil, fmt.Errorf("RangeError: Invalid array length")
	}
	out := make([]any, int(n))
	for i := range out {
		out[i] = start
		start += step
	}
	return out, nil
}

func chunk(a ...any) (any, error) {
	n := 1
	if s := arg(a, 1); s != nil {
		n = int(expression.ToNumber(s))
	}
	out := []any{}
	if n < 1 {
		return out, nil
	}
	c := collection(arg(a, 0))
	for i := 0; i < len(c); i += n {
		end := i + n
		if end > len(c) {
			end = len(c)
		}
		out = append(out, append([]any{}, c[i:end]...))
	}
	return out, nil
}

// words splits s on separators and on lower-to-upper and letter-digit
// boundaries: "fooBar-baz2" gives ["foo", "Bar", "baz", "2"].
func words(s string) []string {
	var out []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = cur[:0]
		}
	}
	runes := []rune(s)
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if len(cur) > 0 {
			prev := cur[len(cur)-1]
			switch {
			case unicode.IsLower(prev) && unicode.IsUpper(r):
				flush()
			case unicode.IsDigit(prev) != unicode.IsDigit(r):
				flush()
			case unicode.IsUpper(prev) && unicode.IsUpper(r) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return out
}

func mapWords(ws []string, fn func(string) string) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = fn(w)
	}
	return out
}

func upperFirst(s string) string {
	for i, r := range s {
		return string(unicode.ToUpper(r)) + s[i+len(string(r)):]
	}
	return s
}

func camelCase(ws []string) string {
	var b strings.Builder
	for i, w := range ws {
		w = lower(w)
		if i > 0 {
			w = title(w)
		}
		b.WriteString(w)
	}
	return b.String()
}

func caseFn(fn func([]string) string) expression.Func {
	return func(a ...any) (any, error) {
		return fn(words(expression.ToString(arg(a, 0)))), nil
	}
}

// round shifts the decimal point through the exponent so that values like
// 1.005 round to 1.01 rather than suffering binary representation error.
func round(a ...any) (any, error) {
	n := expression.ToNumber(arg(a, 0))
	precision := 0
	if p := arg(a, 1); p != nil {
		precision = int(expression.ToNumber(p))
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return n, nil
	}
	shifted := shift(n, precision)
	return shift(math.Floor(shifted+0.5), -precision), nil
}

func shift(n float64, exp int) float64 {
	s := strconv.FormatFloat(n, 'g', -1, 64)
	mant, e, _ := strings.Cut(s, "e")
	base, _ := strconv.Atoi(e)
	f, err := strconv.ParseFloat(mant+"e"+strconv.Itoa(base+exp), 64)
	if err != nil {
		return n * math.Pow(10, float64(exp))
	}
	return f
}

func clamp(a ...any) (any, error) {
	n := expression.ToNumber(arg(a, 0))
	lo, hi := expression.ToNumber(arg(a, 1)), expression.ToNumber(arg(a, 2))
	if len(a) == 2 {
		lo, hi = math.Inf(-1), lo
	}
	return math.Max(lo, math.Min(hi, n)), nil
}

// iteratee turns a function or a property name into a callable.
func iteratee(v any) func(item any, i int) (any, error) {
	if expression.IsCallable(v) {
		return func(item any, i int) (any, error) {
			return expression.Call(v, item, float64(i))
		}
	}
	if v == nil {
		return func(item any, _ int) (any, error) { return item, nil }
	}
	return func(item any, _ int) (any, error) {
		return get(item, v)
	}
}

func mapFn(a ...any) (any, error) {
	fn := iteratee(arg(a, 1))
	c := collection(arg(a, 0))
	out := make([]any, len(c))
	for i, v := range c {
		r, err := fn(v, i)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func filter(a ...any) (any, error) {
	fn := iteratee(arg(a, 1))
	out := []any{}
	for i, v := range collection(arg(a, 0)) {
		r, err := fn(v, i)
		if err != nil {
			return nil, err
		}
		if expression.Truthy(r) {
			out = append(out, v)
		}
	}
	return out, nil
}

func find(a ...any) (any, error) {
	fn := iteratee(arg(a, 1))
	for i, v := range collection(arg(a, 0)) {
		r, err := fn(v, i)
		if err != nil {
			return nil, err
		}
		if expression.Truthy(r) {
			return v, nil
		}
	}
	return nil, nil
}

func sortBy(a ...any) (any, error) {
	fn := iteratee(arg(a, 1))
	c := collection(arg(a, 0))
	type keyed struct {
		key  any
		item any
	}
	ks := make([]keyed, len(c))
	for i, v := range c {
		k, err := fn(v, i)
		if err != nil {
			return nil, err
		}
		ks[i] = keyed{key: k, item: v}
	}
	sort.SliceStable(ks, func(i, j int) bool {
		a, b := expression.Normalize(ks[i].key), expression.Normalize(ks[j].key)
		if x, ok := a.(float64); ok {
			if y, ok := b.(float64); ok {
				return x < y
			}
		}
		return expression.ToString(a) < expression.ToString(b)
	})
	out := make([]any, len(ks))
	for i, k := range ks {
		out[i] = k.item
	}
	return out, nil
}
