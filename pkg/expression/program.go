package expression

import (
	"errors"
	"sync"

	"github.com/golang/groupcache/lru"
)

// Program is a compiled expression. It is immutable and safe to evaluate
// concurrently against different scopes.
type Program struct {
	src  string
	root node
}

// Compile parses src into a Program.
func Compile(src string) (*Program, error) {
	root, err := parse(src, 0)
	if err != nil {
		return nil, err
	}
	return &Program{src: src, root: root}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string) *Program {
	p, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return p
}

// Source returns the expression text the program was compiled from.
func (p *Program) Source() string {
	return p.src
}

// Eval runs the program. Free identifiers resolve through scope and then
// the built-in globals.
func (p *Program) Eval(scope Scope) (any, error) {
	v, err := p.root.eval(&env{scope: scope})
	if errors.Is(err, errShortCircuit) {
		return nil, nil
	}
	return v, err
}

// Eval compiles and runs src in one step.
func Eval(src string, scope Scope) (any, error) {
	p, err := Compile(src)
	if err != nil {
		return nil, err
	}
	return p.Eval(scope)
}

// Cache memoizes compiled programs by source text. Compile errors are
// cached too.
type Cache struct {
	mu  sync.Mutex
	lru *lru.Cache
}

type cacheEntry struct {
	prog *Program
	err  error
}

// NewCache creates a cache holding at most max programs. Zero means no
// limit.
func NewCache(max int) *Cache {
	return &Cache{lru: lru.New(max)}
}

// Compile returns the cached program for src, compiling it on a miss.
func (c *Cache) Compile(src string) (*Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.lru.Get(src); ok {
		e := v.(cacheEntry)
		return e.prog, e.err
	}
	p, err := Compile(src)
	c.lru.Add(src, cacheEntry{prog: p, err: err})
	return p, err
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
