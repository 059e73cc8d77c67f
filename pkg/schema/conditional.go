package schema

import (
	"sort"

	"github.com/invopop/jsonschema"
)

// ConditionalRequire builds an if/then/else fragment that makes fields
// required depending on constant property values, e.g. "make" and "model"
// are required only when "type" is "car".
type ConditionalRequire struct {
	when      map[string]any
	then      []string
	otherwise []string
}

// NewConditionalRequire returns an empty fragment.
func NewConditionalRequire() *ConditionalRequire {
	return &ConditionalRequire{when: make(map[string]any)}
}

// If adds property constants that must all match for Then to apply.
func (c *ConditionalRequire) If(properties map[string]any) *ConditionalRequire {
	for k, v := range properties {
		c.when[k] = v
	}
	return c
}

// Then sets the fields required when the condition holds.
func (c *ConditionalRequire) Then(required ...string) *ConditionalRequire {
	c.then = append(c.then, required...)
	return c
}

// Else sets the fields required when the condition does not hold.
func (c *ConditionalRequire) Else(required ...string) *ConditionalRequire {
	c.otherwise = append(c.otherwise, required...)
	return c
}

// Empty reports whether the fragment constrains nothing.
func (c *ConditionalRequire) Empty() bool {
	return len(c.when) == 0 && len(c.then) == 0 && len(c.otherwise) == 0
}

// Schema renders the fragment. An empty fragment marshals as the boolean
// schema true, which accepts every instance.
func (c *ConditionalRequire) Schema() *jsonschema.Schema {
	s := &jsonschema.Schema{}
	if len(c.when) > 0 {
		keys := make([]string, 0, len(c.when))
		for k := range c.when {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		props := jsonschema.NewProperties()
		for _, k := range keys {
			props.Set(k, &jsonschema.Schema{Const: c.when[k]})
		}
		s.If = &jsonschema.Schema{Properties: props}
	}
	if len(c.then) > 0 {
		s.Then = &jsonschema.Schema{Required: c.then}
	}
	if len(c.otherwise) > 0 {
		s.Else = &jsonschema.Schema{Required: c.otherwise}
	}
	return s
}
