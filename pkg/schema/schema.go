// Package schema defines the application documents a runtime renders and
// loads them from JSON or YAML, on disk or in S3.
package schema

import (
	"fmt"
	"strings"
)

// Kind is the document kind.
type Kind string

const (
	KindApplication Kind = "Application"
	KindModule      Kind = "Module"
)

// SlotTrait is the trait type that places a component into a slot of a
// container component.
const SlotTrait = "core/v1/slot"

// Metadata names a document.
type Metadata struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty" yaml:"annotations,omitempty"`
}

// Trait attaches extra behaviour to a component. Its properties are
// evaluated like component properties.
type Trait struct {
	Type       string         `json:"type" yaml:"type"`
	Properties map[string]any `json:"properties" yaml:"properties"`
}

// Component is one node of an application. Its id is also its key in the
// state store.
type Component struct {
	ID         string         `json:"id" yaml:"id"`
	Type       string         `json:"type" yaml:"type"`
	Properties map[string]any `json:"properties" yaml:"properties"`
	Traits     []Trait        `json:"traits" yaml:"traits"`
}

// Slot returns the container id and slot name from the component's slot
// trait.
func (c *Component) Slot() (container, slot string, ok bool) {
	for _, t := range c.Traits {
		if t.Type != SlotTrait {
			continue
		}
		ref, _ := t.Properties["container"].(map[string]any)
		id, _ := ref["id"].(string)
		name, _ := ref["slot"].(string)
		if id != "" {
			return id, name, true
		}
	}
	return "", "", false
}

// ApplicationSpec holds the components of an application.
type ApplicationSpec struct {
	Components []Component `json:"components" yaml:"components"`
}

// Application is the document authored in the editor.
type Application struct {
	Version  string          `json:"version" yaml:"version"`
	Kind     Kind            `json:"kind" yaml:"kind"`
	Metadata Metadata        `json:"metadata" yaml:"metadata"`
	Spec     ApplicationSpec `json:"spec" yaml:"spec"`
}

// Component returns the component with id, or nil.
func (a *Application) Component(id string) *Component {
	for i := range a.Spec.Components {
		if a.Spec.Components[i].ID == id {
			return &a.Spec.Components[i]
		}
	}
	return nil
}

// ModuleSpec declares the interface of a reusable module.
type ModuleSpec struct {
	Properties map[string]any    `json:"properties" yaml:"properties"`
	Events     []string          `json:"events" yaml:"events"`
	StateMap   map[string]string `json:"stateMap" yaml:"stateMap"`
}

// Module is a reusable group of components.
type Module struct {
	Version  string      `json:"version" yaml:"version"`
	Kind     Kind        `json:"kind" yaml:"kind"`
	Metadata Metadata    `json:"metadata" yaml:"metadata"`
	Spec     ModuleSpec  `json:"spec" yaml:"spec"`
	Impl     []Component `json:"impl" yaml:"impl"`
}

// SlotKey is the slot store key for the props passed into slot of the
// container component id. key distinguishes repeated slots, such as the
// rows of a list.
func SlotKey(id, slot, key string) string {
	if key == "" {
		return fmt.Sprintf("%s_%s", id, slot)
	}
	return fmt.Sprintf("%s_%s_%s", id, slot, key)
}

// splitType splits "core/v1/text" into its version "core/v1" and name
// "text".
func splitType(t string) (version, name string, ok bool) {
	i := strings.LastIndex(t, "/")
	if i <= 0 || i == len(t)-1 {
		return "", "", false
	}
	return t[:i], t[i+1:], true
}
