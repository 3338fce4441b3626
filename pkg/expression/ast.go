package expression

import (
	"errors"
	"math"
)

// node is a compiled expression.
type node interface {
	eval(e *env) (any, error)
}

// errShortCircuit unwinds an optional chain whose base is nullish.
var errShortCircuit = errors.New("optional chain short-circuit")

type literal struct {
	value any
}

func (n *literal) eval(*env) (any, error) {
	return n.value, nil
}

type identifier struct {
	name string
}

func (n *identifier) eval(e *env) (any, error) {
	v, ok := e.lookup(n.name)
	if !ok {
		return nil, referenceErrorf("%s is not defined", n.name)
	}
	return v, nil
}

type member struct {
	object   node
	property string
	computed node
	optional bool
}

func (n *member) eval(e *env) (any, error) {
	obj, err := n.object.eval(e)
	if err != nil {
		return nil, err
	}
	if n.optional && Normalize(obj) == nil {
		return nil, errShortCircuit
	}

	var key any = n.property
	if n.computed != nil {
		key, err = n.computed.eval(e)
		if err != nil {
			return nil, err
		}
	}
	return getMember(obj, key)
}

type call struct {
	callee   node
	args     []node
	optional bool
	src      string
}

func (n *call) eval(e *env) (any, error) {
	fn, err := n.callee.eval(e)
	if err != nil {
		return nil, err
	}
	if n.optional && Normalize(fn) == nil {
		return nil, errShortCircuit
	}

	args, err := evalList(e, n.args)
	if err != nil {
		return nil, err
	}
	if !isCallable(fn) {
		return nil, typeErrorf("%s is not a function", n.src)
	}
	return callValue(fn, args...)
}

type optionalChain struct {
	expr node
}

func (n *optionalChain) eval(e *env) (any, error) {
	v, err := n.expr.eval(e)
	if errors.Is(err, errShortCircuit) {
		return nil, nil
	}
	return v, err
}

type unary struct {
	op      string
	operand node
}

func (n *unary) eval(e *env) (any, error) {
	if n.op == "typeof" {
		if id, ok := n.operand.(*identifier); ok {
			v, found := e.lookup(id.name)
			if !found {
				return "undefined", nil
			}
			return TypeOf(v), nil
		}
	}

	v, err := n.operand.eval(e)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "!":
		return !Truthy(v), nil
	case "-":
		return -ToNumber(v), nil
	case "+":
		return ToNumber(v), nil
	case "typeof":
		return TypeOf(v), nil
	}
	return nil, syntaxErrorf(-1, "unknown unary operator %s", n.op)
}

type binary struct {
	op          string
	left, right node
}

func (n *binary) eval(e *env) (any, error) {
	l, err := n.left.eval(e)
	if err != nil {
		return nil, err
	}
	r, err := n.right.eval(e)
	if err != nil {
		return nil, err
	}
	return binaryOp(n.op, l, r)
}

type logical struct {
	op          string
	left, right node
}

func (n *logical) eval(e *env) (any, error) {
	l, err := n.left.eval(e)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "&&":
		if !Truthy(l) {
			return l, nil
		}
	case "||":
		if Truthy(l) {
			return l, nil
		}
	case "??":
		if Normalize(l) != nil {
			return l, nil
		}
	}
	return n.right.eval(e)
}

type conditional struct {
	test, consequent, alternate node
}

func (n *conditional) eval(e *env) (any, error) {
	t, err := n.test.eval(e)
	if err != nil {
		return nil, err
	}
	if Truthy(t) {
		return n.consequent.eval(e)
	}
	return n.alternate.eval(e)
}

type spread struct {
	expr node
}

func (n *spread) eval(e *env) (any, error) {
	return n.expr.eval(e)
}

type arrayLit struct {
	elems []node
}

func (n *arrayLit) eval(e *env) (any, error) {
	return evalList(e, n.elems)
}

type objectLit struct {
	keys   []string
	values []node
}

func (n *objectLit) eval(e *env) (any, error) {
	out := make(map[string]any, len(n.keys))
	for i, v := range n.values {
		val, err := v.eval(e)
		if err != nil {
			return nil, err
		}
		if _, ok := v.(*spread); ok {
			switch src := Normalize(val).(type) {
			case map[string]any:
				for k, sv := range src {
					out[k] = sv
				}
			case []any:
				for j, sv := range src {
					out[FormatNumber(float64(j))] = sv
				}
			}
			continue
		}
		out[n.keys[i]] = val
	}
	return out, nil
}

type templateLit struct {
	quasis []string
	exprs  []node
}

func (n *templateLit) eval(e *env) (any, error) {
	out := n.quasis[0]
	for i, x := range n.exprs {
		v, err := x.eval(e)
		if err != nil {
			return nil, err
		}
		if v == nil {
			out += "undefined"
		} else {
			out += ToString(v)
		}
		out += n.quasis[i+1]
	}
	return out, nil
}

type arrowFunc struct {
	params []string
	body   node
}

func (n *arrowFunc) eval(e *env) (any, error) {
	return Func(func(args ...any) (any, error) {
		locals := make(map[string]any, len(n.params))
		for i, p := range n.params {
			if i < len(args) {
				locals[p] = args[i]
			} else {
				locals[p] = nil
			}
		}
		return n.body.eval(e.child(locals))
	}), nil
}

// evalList evaluates nodes in order, expanding spread elements.
func evalList(e *env, nodes []node) ([]any, error) {
	out := make([]any, 0, len(nodes))
	for _, x := range nodes {
		v, err := x.eval(e)
		if err != nil {
			return nil, err
		}
		if _, ok := x.(*spread); ok {
			switch src := Normalize(v).(type) {
			case []any:
				out = append(out, src...)
			case string:
				for _, r := range src {
					out = append(out, string(r))
				}
			case nil:
				return nil, typeErrorf("undefined is not iterable")
			default:
				return nil, typeErrorf("%s is not iterable", ToString(v))
			}
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// binaryOp applies a non short-circuit binary operator.
func binaryOp(op string, l, r any) (any, error) {
	switch op {
	case "+":
		pl, pr := toPrimitive(l), toPrimitive(r)
		_, ls := pl.(string)
		_, rs := pr.(string)
		if ls || rs {
			return ToString(pl) + ToString(pr), nil
		}
		return ToNumber(pl) + ToNumber(pr), nil
	case "-":
		return ToNumber(l) - ToNumber(r), nil
	case "*":
		return ToNumber(l) * ToNumber(r), nil
	case "/":
		return ToNumber(l) / ToNumber(r), nil
	case "%":
		return math.Mod(ToNumber(l), ToNumber(r)), nil
	case "**":
		return math.Pow(ToNumber(l), ToNumber(r)), nil
	case "==":
		return LooseEquals(l, r), nil
	case "!=":
		return !LooseEquals(l, r), nil
	case "===":
		return StrictEquals(l, r), nil
	case "!==":
		return !StrictEquals(l, r), nil
	case "<", "<=", ">", ">=":
		return compare(op, l, r), nil
	}
	return nil, syntaxErrorf(-1, "unknown operator %s", op)
}

// toPrimitive turns composite values into their string form.
func toPrimitive(v any) any {
	switch x := Normalize(v).(type) {
	case nil, float64, string, bool:
		return x
	default:
		return ToString(x)
	}
}

func compare(op string, l, r any) bool {
	pl, pr := toPrimitive(l), toPrimitive(r)
	ls, lok := pl.(string)
	rs, rok := pr.(string)
	if lok && rok {
		switch op {
		case "<":
			return ls < rs
		case "<=":
			return ls <= rs
		case ">":
			return ls > rs
		default:
			return ls >= rs
		}
	}

	a, b := ToNumber(pl), ToNumber(pr)
	if math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	switch op {
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	default:
		return a >= b
	}
}
