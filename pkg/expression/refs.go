package expression

import "sort"

// Identifiers returns the free identifiers the program reads, sorted and
// without duplicates. Arrow function parameters are bound, not free.
func (p *Program) Identifiers() []string {
	seen := map[string]bool{}
	collectIdents(p.root, map[string]bool{}, seen)

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func collectIdents(n node, bound, seen map[string]bool) {
	switch t := n.(type) {
	case *identifier:
		if !bound[t.name] {
			seen[t.name] = true
		}
	case *member:
		collectIdents(t.object, bound, seen)
		if t.computed != nil {
			collectIdents(t.computed, bound, seen)
		}
	case *call:
		collectIdents(t.callee, bound, seen)
		for _, a := range t.args {
			collectIdents(a, bound, seen)
		}
	case *optionalChain:
		collectIdents(t.expr, bound, seen)
	case *unary:
		collectIdents(t.operand, bound, seen)
	case *binary:
		collectIdents(t.left, bound, seen)
		collectIdents(t.right, bound, seen)
	case *logical:
		collectIdents(t.left, bound, seen)
		collectIdents(t.right, bound, seen)
	case *conditional:
		collectIdents(t.test, bound, seen)
		collectIdents(t.consequent, bound, seen)
		collectIdents(t.alternate, bound, seen)
	case *spread:
		collectIdents(t.expr, bound, seen)
	case *arrayLit:
		for _, e := range t.elems {
			collectIdents(e, bound, seen)
		}
	case *objectLit:
		for _, v := range t.values {
			collectIdents(v, bound, seen)
		}
	case *templateLit:
		for _, e := range t.exprs {
			collectIdents(e, bound, seen)
		}
	case *arrowFunc:
		inner := make(map[string]bool, len(bound)+len(t.params))
		for k := range bound {
			inner[k] = true
		}
		for _, p := range t.params {
			inner[p] = true
		}
		collectIdents(t.body, inner, seen)
	}
}

// IsGlobal reports whether name is a built-in global.
func IsGlobal(name string) bool {
	_, ok := globals[name]
	return ok
}
