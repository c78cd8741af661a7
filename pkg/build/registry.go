package build

import (
	"sort"
	"sync"
)

// Registry tracks builders by group name, for fleet-wide bakes and
// teardown.
type Registry struct {
	mu     sync.Mutex
	groups map[string][]*Builder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{groups: map[string][]*Builder{}}
}

// Add appends builders to group, ignoring ones already in it.
func (r *Registry) Add(group string, builders ...*Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range builders {
		if !contains(r.groups[group], b) {
			r.groups[group] = append(r.groups[group], b)
		}
	}
}

// Remove drops b from every group.
func (r *Registry) Remove(b *Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, list := range r.groups {
		out := list[:0]
		for _, x := range list {
			if x != b {
				out = append(out, x)
			}
		}
		if len(out) == 0 {
			delete(r.groups, name)
			continue
		}
		r.groups[name] = out
	}
}

// Groups returns the group names in sorted order.
func (r *Registry) Groups() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Group returns a snapshot scope of one group.
func (r *Registry) Group(name string) Scope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Builders(append([]*Builder(nil), r.groups[name]...))
}

// Builders returns every registered builder, grouped by sorted group name,
// so a Registry is itself a Scope.
func (r *Registry) Builders() []*Builder {
	var out []*Builder
	for _, name := range r.Groups() {
		for _, b := range r.Group(name).Builders() {
			if !contains(out, b) {
				out = append(out, b)
			}
		}
	}
	return out
}

// Find returns the first builder with the given name.
func (r *Registry) Find(name string) *Builder {
	for _, b := range r.Builders() {
		if b.Name() == name {
			return b
		}
	}
	return nil
}

func contains(list []*Builder, b *Builder) bool {
	for _, x := range list {
		if x == b {
			return true
		}
	}
	return false
}
