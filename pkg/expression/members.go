package expression

import (
	"fmt"
	"math"
	"reflect"
	"unicode/utf8"
)

// getMember implements obj[key].
func getMember(obj, key any) (any, error) {
	name := ToString(key)

	switch o := Normalize(obj).(type) {
	case nil:
		return nil, typeErrorf("Cannot read properties of undefined (reading '%s')", name)
	case map[string]any:
		return o[name], nil
	case []any:
		if idx, ok := arrayIndex(key); ok {
			if idx < len(o) {
				return o[idx], nil
			}
			return nil, nil
		}
		if name == "length" {
			return float64(len(o)), nil
		}
		return arrayMethod(o, name), nil
	case string:
		if idx, ok := arrayIndex(key); ok {
			runes := []rune(o)
			if idx < len(runes) {
				return string(runes[idx]), nil
			}
			return nil, nil
		}
		if name == "length" {
			return float64(utf8.RuneCountInString(o)), nil
		}
		return stringMethod(o, name), nil
	case float64:
		return numberMethod(o, name), nil
	case bool:
		if name == "toString" {
			return Func(func(args ...any) (any, error) { return ToString(o), nil }), nil
		}
		return nil, nil
	case Object:
		v, _ := o.Property(name)
		return v, nil
	case Func:
		return nil, nil
	}
	return reflectMember(obj, name), nil
}

// reflectMember reads exported struct fields by name for host values that
// are neither maps nor slices.
func reflectMember(obj any, name string) any {
	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	f := rv.FieldByName(name)
	if !f.IsValid() || !f.CanInterface() {
		return nil
	}
	return f.Interface()
}

// arrayIndex interprets key as a non-negative integer index.
func arrayIndex(key any) (int, bool) {
	switch k := Normalize(key).(type) {
	case float64:
		if k >= 0 && k == math.Trunc(k) && k < math.MaxInt32 {
			return int(k), true
		}
	case string:
		if f, ok := ParseNumeric(k); ok && f >= 0 && f == math.Trunc(f) && f < math.MaxInt32 && FormatNumber(f) == k {
			return int(f), true
		}
	}
	return 0, false
}

func isCallable(fn any) bool {
	if fn == nil {
		return false
	}
	if _, ok := fn.(Func); ok {
		return true
	}
	return reflect.TypeOf(fn).Kind() == reflect.Func
}

// callValue invokes fn. Funcs are called directly; other Go functions are
// called through reflection with arguments converted to the parameter
// types. A trailing error result is returned as the call error.
func callValue(fn any, args ...any) (any, error) {
	switch f := fn.(type) {
	case Func:
		return f(args...)
	case func(args ...any) (any, error):
		return f(args...)
	case func(args ...any) any:
		return f(args...), nil
	}

	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return nil, typeErrorf("%s is not a function", ToString(fn))
	}
	rt := rv.Type()

	in := make([]reflect.Value, 0, len(args))
	numIn := rt.NumIn()
	for i := 0; i < numIn; i++ {
		if rt.IsVariadic() && i == numIn-1 {
			elem := rt.In(i).Elem()
			for j := i; j < len(args); j++ {
				v, err := convertArg(args[j], elem)
				if err != nil {
					return nil, err
				}
				in = append(in, v)
			}
			break
		}
		var arg any
		if i < len(args) {
			arg = args[i]
		}
		v, err := convertArg(arg, rt.In(i))
		if err != nil {
			return nil, err
		}
		in = append(in, v)
	}

	out := rv.Call(in)
	if len(out) == 0 {
		return nil, nil
	}
	last := out[len(out)-1]
	if rt.Out(len(out)-1) == reflect.TypeOf((*error)(nil)).Elem() {
		if !last.IsNil() {
			return nil, last.Interface().(error)
		}
		if len(out) == 1 {
			return nil, nil
		}
	}
	return Normalize(out[0].Interface()), nil
}

func convertArg(arg any, want reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(want), nil
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(want) {
		return v, nil
	}
	switch want.Kind() {
	case reflect.String:
		return reflect.ValueOf(ToString(arg)).Convert(want), nil
	case reflect.Bool:
		return reflect.ValueOf(Truthy(arg)).Convert(want), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return reflect.ValueOf(ToNumber(arg)).Convert(want), nil
	}
	if v.Type().ConvertibleTo(want) {
		return v.Convert(want), nil
	}
	return reflect.Value{}, typeErrorf("cannot use %s as %s", fmt.Sprintf("%T", arg), want)
}

// Member reads obj[key] with the same rules as a member expression.
func Member(obj, key any) (any, error) {
	return getMember(obj, key)
}

// Call invokes fn the way a call expression would. Host functions may be
// Funcs or any Go function value.
func Call(fn any, args ...any) (any, error) {
	if !isCallable(fn) {
		return nil, typeErrorf("%s is not a function", ToString(fn))
	}
	return callValue(fn, args...)
}

// IsCallable reports whether fn can be invoked by Call.
func IsCallable(fn any) bool {
	return isCallable(fn)
}
