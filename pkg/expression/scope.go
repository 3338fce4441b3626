package expression

// Scope resolves free identifiers.
type Scope interface {
	Lookup(name string) (any, bool)
}

// MapScope is a Scope backed by a map.
type MapScope map[string]any

// Lookup implements Scope.
func (m MapScope) Lookup(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// ScopeFunc adapts a function to the Scope interface.
type ScopeFunc func(name string) (any, bool)

// Lookup implements Scope.
func (f ScopeFunc) Lookup(name string) (any, bool) {
	return f(name)
}

// Layers is a stack of scopes searched in order. The first layer that knows
// a name wins; layers are never merged.
type Layers []Scope

// Lookup implements Scope.
func (l Layers) Lookup(name string) (any, bool) {
	for _, s := range l {
		if s == nil {
			continue
		}
		if v, ok := s.Lookup(name); ok {
			return v, true
		}
	}
	return nil, false
}

// env is the evaluation environment: arrow function parameters chained in
// front of the caller's scope.
type env struct {
	locals map[string]any
	parent *env
	scope  Scope
}

func (e *env) lookup(name string) (any, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		if cur.locals != nil {
			if v, ok := cur.locals[name]; ok {
				return v, true
			}
		}
		if cur.parent == nil && cur.scope != nil {
			if v, ok := cur.scope.Lookup(name); ok {
				return v, true
			}
		}
	}
	if v, ok := globals[name]; ok {
		return v, true
	}
	return nil, false
}

func (e *env) child(locals map[string]any) *env {
	return &env{locals: locals, parent: e}
}
