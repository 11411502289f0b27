package objmodel

import "github.com/tinytalk/tinytalk/internal/omap"

// Symbol is an interned identifier. Selector and name identity is the
// symbol's address, not its contents: two symbols interned from equal
// strings are the very same *Symbol. Symbols are never moved by the
// collector and never collected — every Symbol is permanently reachable
// once interned, which is why the registry, not the moving heap, owns
// their storage.
type Symbol struct {
	Name string
}

// Registry interns strings to unique, permanent Symbols. It is backed by
// an ordered map keyed by C-string name (spec §4.3), so repeated interns
// of hot selectors splay to the root and stay cheap.
type Registry struct {
	byName *omap.Tree[string, *Symbol]
	all    []*Symbol // declaration order, for reverse lookup and All
}

// NewRegistry creates an empty symbol registry.
func NewRegistry() *Registry {
	return &Registry{byName: omap.New[string, *Symbol](omap.StringCompare)}
}

// Intern returns the unique Symbol for name, allocating and recording a
// fresh one on first use. intern(s1) == intern(s2) whenever s1 == s2, by
// construction: every later call sees the earlier entry already in the
// tree and returns it unchanged.
func (r *Registry) Intern(name string) *Symbol {
	if sym, ok := r.byName.Find(name); ok {
		return sym
	}
	sym := &Symbol{Name: name}
	r.byName.Insert(name, sym)
	r.all = append(r.all, sym)
	return sym
}

// Lookup returns the Symbol already interned for name, if any, without
// creating one.
func (r *Registry) Lookup(name string) (*Symbol, bool) {
	return r.byName.Find(name)
}

// StringOf reverse-looks-up the name bound to sym. The registry is kept
// small in practice (one entry per distinct selector/identifier the image
// has ever seen), so the linear scan the spec sanctions is acceptable;
// this only runs for debugging/printing, never on a dispatch hot path.
func (r *Registry) StringOf(sym *Symbol) (string, bool) {
	for _, s := range r.all {
		if s == sym {
			return s.Name, true
		}
	}
	return "", false
}

// Len reports how many distinct symbols have been interned.
func (r *Registry) Len() int { return len(r.all) }

// All returns every interned symbol in declaration order. Symbols are
// not heap objects, so the collector neither reads this list nor needs
// to root them.
func (r *Registry) All() []*Symbol { return r.all }
