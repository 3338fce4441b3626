package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	serrors "github.com/sunmao-dev/sunmao/internal/errors"
	"github.com/sunmao-dev/sunmao/pkg/expression"
)

// Validate checks the structural rules of an application: every component
// has a unique, non-empty id and every component and trait type has the
// form version/name. All problems are reported, joined.
func (a *Application) Validate() error {
	var errs []error
	seen := make(map[string]int, len(a.Spec.Components))

	for i, c := range a.Spec.Components {
		if c.ID == "" {
			errs = append(errs, serrors.New("E203").WithDetail(fmt.Sprintf("component #%d has no id", i)))
		} else if first, dup := seen[c.ID]; dup {
			errs = append(errs, serrors.New("E202").WithDetail(
				fmt.Sprintf("component id %q is used by components #%d and #%d", c.ID, first, i)))
		} else {
			seen[c.ID] = i
		}

		if _, _, ok := splitType(c.Type); !ok {
			errs = append(errs, serrors.New("E204").WithDetail(fmt.Sprintf("component %q has type %q", c.ID, c.Type)))
		}
		for _, t := range c.Traits {
			if _, _, ok := splitType(t.Type); !ok {
				errs = append(errs, serrors.New("E204").WithDetail(fmt.Sprintf("trait of component %q has type %q", c.ID, t.Type)))
			}
		}
	}
	return errors.Join(errs...)
}

// Reference is a name read by an expression that nothing defines.
type Reference struct {
	Component string
	Trait     string
	Property  string
	Name      string
}

func (r Reference) String() string {
	where := r.Component
	if r.Trait != "" {
		where += " trait " + r.Trait
	}
	return fmt.Sprintf("%s.%s: cannot find '%s' in store", where, r.Property, r.Name)
}

// CheckReferences lists expression identifiers that are neither component
// ids, built-ins, names accepted by known, nor $-prefixed scope variables
// such as $slot and $listItem. Expressions that fail to compile are skipped.
func (a *Application) CheckReferences(known func(name string) bool) []Reference {
	ids := make(map[string]bool, len(a.Spec.Components))
	for _, c := range a.Spec.Components {
		ids[c.ID] = true
	}

	var refs []Reference
	check := func(component, trait string, props map[string]any) {
		walkStrings(props, "", func(path, raw string) {
			for _, name := range expressionIdents(raw) {
				if ids[name] || expression.IsGlobal(name) || strings.HasPrefix(name, "$") {
					continue
				}
				if known != nil && known(name) {
					continue
				}
				refs = append(refs, Reference{Component: component, Trait: trait, Property: path, Name: name})
			}
		})
	}

	for _, c := range a.Spec.Components {
		check(c.ID, "", c.Properties)
		for _, t := range c.Traits {
			check(c.ID, t.Type, t.Properties)
		}
	}

	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].Component != refs[j].Component {
			return refs[i].Component < refs[j].Component
		}
		return refs[i].Property < refs[j].Property
	})
	return refs
}

// walkStrings calls fn for each string leaf with its dotted path.
func walkStrings(v any, path string, fn func(path, s string)) {
	join := func(k string) string {
		if path == "" {
			return k
		}
		return path + "." + k
	}
	switch t := v.(type) {
	case string:
		fn(path, t)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkStrings(t[k], join(k), fn)
		}
	case []any:
		for i, e := range t {
			walkStrings(e, join(fmt.Sprint(i)), fn)
		}
	}
}

// expressionIdents returns the free identifiers of every dynamic segment
// of raw. Nested segments are skipped since their text is only known at
// evaluation time.
func expressionIdents(raw string) []string {
	var out []string
	for _, seg := range expression.ParseChunk(raw, expression.ParseListItem(true)) {
		if !seg.Dynamic {
			continue
		}
		if seg.Inner.IsDynamic() {
			continue
		}
		prog, err := expression.Compile(seg.Inner.String())
		if err != nil {
			continue
		}
		out = append(out, prog.Identifiers()...)
	}
	return out
}
