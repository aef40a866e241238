package lexicon

import "fmt"

// Registry is the keyed NSID -> Method collection. It is built once at
// server start via a Builder and is read-only thereafter: per spec.md
// §5, concurrent lookups after construction require no locking.
type Registry struct {
	methods map[string]*Method
}

// Builder accumulates methods before freezing them into a Registry. Using
// a separate builder type makes the "write-once, then immutable" contract
// a compile-time property instead of a runtime convention.
type Builder struct {
	methods map[string]*Method
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{methods: make(map[string]*Method)}
}

// Add registers a method definition. It panics on a duplicate NSID, since
// duplicate registration is a boot-time programming error, not a runtime
// condition callers should branch on.
func (b *Builder) Add(m *Method) *Builder {
	if _, exists := b.methods[m.NSID]; exists {
		panic(fmt.Sprintf("lexicon: duplicate method registration for %s", m.NSID))
	}
	b.methods[m.NSID] = m
	return b
}

// Build freezes the accumulated methods into an immutable Registry.
func (b *Builder) Build() *Registry {
	frozen := make(map[string]*Method, len(b.methods))
	for k, v := range b.methods {
		frozen[k] = v
	}
	return &Registry{methods: frozen}
}

// Lookup returns the method definition for an NSID, O(1), and whether it
// was found.
func (r *Registry) Lookup(nsidStr string) (*Method, bool) {
	m, ok := r.methods[nsidStr]
	return m, ok
}

// Len returns the number of registered methods.
func (r *Registry) Len() int {
	return len(r.methods)
}

// NSIDs returns the registered method names in unspecified order. Callers
// that need a stable order (e.g. deterministic handler registration logs)
// should sort the result themselves.
func (r *Registry) NSIDs() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	return names
}
