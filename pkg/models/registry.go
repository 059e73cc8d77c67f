package models

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hamzaessahbaoui/ai-instructor/instructor"
	"github.com/hamzaessahbaoui/ai-instructor/pkg/schema"
)

// Registry looks up response models by name, e.g. for a CLI flag.
type Registry struct {
	models map[string]instructor.Model
}

// NewRegistry registers models under the snake_case form of their type name
// ("UserDetail" is "user_detail"). Two models with the same name are an error.
func NewRegistry(ms ...instructor.Model) (*Registry, error) {
	r := &Registry{models: make(map[string]instructor.Model, len(ms))}
	for _, m := range ms {
		if m == nil {
			return nil, fmt.Errorf("nil model provided to NewRegistry")
		}
		d, err := m.Descriptor()
		if err != nil {
			return nil, err
		}
		name := schema.Underscore(d.Name)
		if _, exists := r.models[name]; exists {
			return nil, fmt.Errorf("duplicate model name %q", name)
		}
		r.models[name] = m
	}
	return r, nil
}

// Builtin returns a registry holding every model of this package.
func Builtin() *Registry {
	r, err := NewRegistry(
		instructor.For[UserDetail](),
		instructor.For[Contact](),
		instructor.For[SinglePrediction](),
		instructor.For[SearchQuery](),
		instructor.For[ActionItems](),
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the model registered under name.
func (r *Registry) Lookup(name string) (instructor.Model, error) {
	m, ok := r.models[schema.Underscore(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown model %q, expected one of: %s", name, strings.Join(r.Names(), ", "))
	}
	return m, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe lists every model with the description its function would carry.
func (r *Registry) Describe() string {
	var sb strings.Builder
	for _, name := range r.Names() {
		d, _ := r.models[name].Descriptor()
		desc, err := instructor.GenerateDescription(d)
		if err != nil {
			desc = err.Error()
		}
		fmt.Fprintf(&sb, "%-18s %s\n", name, desc)
	}
	return sb.String()
}
