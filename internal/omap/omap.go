// Package omap implements an ordered map backed by a splay tree.
//
// Splay trees amortize repeated lookups of "hot" keys — in this image,
// hot keys are selectors looked up over and over during message dispatch
// and globals read over and over during execution — by rotating the
// matched node to the root on every successful Find or Insert. The tree
// also supports an allocation-free, recursion-free in-order walk (Morris
// traversal) so that large method dictionaries or the global scope can be
// enumerated during a GC-style sweep without risking a stack overflow on
// pathological input and without a separate auxiliary stack.
//
// Comparators are free functions rather than methods so callers can pick
// the right total order for their key type. This package provides
// C-string lexicographic order (StringCompare) and a generic
// int-difference clamp (Clamp) usable to build comparators for any
// ordered scalar; the selector-identity comparator lives with the Symbol
// type, as objmodel.SymbolIdentityCompare.
package omap

import "github.com/tinytalk/tinytalk/internal/pool"

// Compare returns <0 if a<b, 0 if a==b, >0 if a>b.
type Compare[K any] func(a, b K) int

// Clamp normalizes an arbitrary int difference (e.g. a-b) to -1, 0, or 1,
// so comparators built from subtraction don't leak magnitude into callers
// that only care about ordering.
func Clamp(diff int) int {
	switch {
	case diff < 0:
		return -1
	case diff > 0:
		return 1
	default:
		return 0
	}
}

// StringCompare is the C-string lexicographic comparator.
func StringCompare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// node is the intrusive tree element: left/right children form the
// header, key/val are supplied by the map. Nodes are slab-allocated —
// the pool is the "containing record" in the spec's terms, and node is
// the header that record embeds.
type node[K any, V any] struct {
	left, right *node[K, V]
	key         K
	val         V
}

// Tree is a splay-tree-backed ordered map.
type Tree[K any, V any] struct {
	root *node[K, V]
	cmp  Compare[K]
	pool *pool.Pool[node[K, V]]
	size int
}

// New creates an empty tree using cmp as the total order over keys.
func New[K any, V any](cmp Compare[K]) *Tree[K, V] {
	return &Tree[K, V]{cmp: cmp, pool: pool.New[node[K, V]](16)}
}

// Len reports the number of keys currently stored.
func (t *Tree[K, V]) Len() int { return t.size }

// splay rotates the node matching key to the root, using the classic
// top-down zig/zig-zig/zig-zag splay, and reports whether key was found.
// If key is absent, the last node visited (key's would-be parent) ends up
// at the root instead — the standard splay-on-miss behavior, which keeps
// subsequent nearby lookups cheap too.
func (t *Tree[K, V]) splay(key K) bool {
	if t.root == nil {
		return false
	}
	var header node[K, V]
	left, right := &header, &header
	cur := t.root
	found := false
	for {
		c := t.cmp(key, cur.key)
		switch {
		case c < 0:
			if cur.left == nil {
				found = false
				goto done
			}
			if t.cmp(key, cur.left.key) < 0 {
				// zig-zig: rotate right
				y := cur.left
				cur.left = y.right
				y.right = cur
				cur = y
				if cur.left == nil {
					found = false
					goto done
				}
			}
			right.left = cur
			right = cur
			cur = cur.left
		case c > 0:
			if cur.right == nil {
				found = false
				goto done
			}
			if t.cmp(key, cur.right.key) > 0 {
				// zag-zag: rotate left
				y := cur.right
				cur.right = y.left
				y.left = cur
				cur = y
				if cur.right == nil {
					found = false
					goto done
				}
			}
			left.right = cur
			left = cur
			cur = cur.right
		default:
			found = true
			goto done
		}
	}
done:
	left.right = cur.left
	right.left = cur.right
	cur.left = header.right
	cur.right = header.left
	t.root = cur
	return found
}

// Find looks up key, splaying it to the root on success.
func (t *Tree[K, V]) Find(key K) (V, bool) {
	var zero V
	if t.root == nil {
		return zero, false
	}
	if t.splay(key); t.cmp(key, t.root.key) == 0 {
		return t.root.val, true
	}
	return zero, false
}

// Insert adds key/val, reporting false without modifying the tree if key
// is already present (duplicate insertion is silently ignored — the
// caller owns whatever scratch record it built and may discard it).
func (t *Tree[K, V]) Insert(key K, val V) bool {
	cell := t.pool.Alloc()
	n := &cell.Value
	n.key, n.val = key, val

	if t.root == nil {
		t.root = n
		t.size++
		return true
	}
	if t.splay(key); t.cmp(key, t.root.key) == 0 {
		t.pool.Free(cell)
		return false
	}
	if t.cmp(key, t.root.key) < 0 {
		n.left = t.root.left
		n.right = t.root
		t.root.left = nil
	} else {
		n.right = t.root.right
		n.left = t.root
		t.root.right = nil
	}
	t.root = n
	t.size++
	return true
}

// Set binds key to val, overwriting any existing binding instead of
// ignoring the call — the upsert semantics global-scope rebinding needs,
// as distinct from Insert's silently-ignored-duplicate rule used by
// method dictionaries and the symbol registry.
func (t *Tree[K, V]) Set(key K, val V) {
	if t.root == nil {
		t.Insert(key, val)
		return
	}
	if t.splay(key); t.cmp(key, t.root.key) == 0 {
		t.root.val = val
		return
	}
	t.Insert(key, val)
}

// Remove deletes key if present, reporting whether it was found.
func (t *Tree[K, V]) Remove(key K) bool {
	if t.root == nil || !t.splay(key) || t.cmp(key, t.root.key) != 0 {
		return false
	}
	old := t.root
	if old.left == nil {
		t.root = old.right
	} else {
		right := old.right
		t.root = old.left
		t.splay(key) // brings the max of the left subtree to root
		t.root.right = right
	}
	t.size--
	return true
}

// InOrder walks every key/value pair in ascending key order without
// recursion or an auxiliary stack, using Morris threading: each node's
// left subtree is temporarily linked back to it via its own inorder
// predecessor's right pointer, then unthreaded once visited.
func (t *Tree[K, V]) InOrder(visit func(K, V)) {
	cur := t.root
	for cur != nil {
		if cur.left == nil {
			visit(cur.key, cur.val)
			cur = cur.right
			continue
		}
		pred := cur.left
		for pred.right != nil && pred.right != cur {
			pred = pred.right
		}
		if pred.right == nil {
			pred.right = cur // thread
			cur = cur.left
		} else {
			pred.right = nil // unthread
			visit(cur.key, cur.val)
			cur = cur.right
		}
	}
}

// ForEachValuePtr walks every key in ascending order like InOrder, but
// hands visit a pointer directly into the node's stored value instead of
// a copy — letting a caller (the garbage collector, rewriting global
// bindings after compaction) mutate values in place without a Remove
// plus Insert round trip.
func (t *Tree[K, V]) ForEachValuePtr(visit func(key K, val *V)) {
	cur := t.root
	for cur != nil {
		if cur.left == nil {
			visit(cur.key, &cur.val)
			cur = cur.right
			continue
		}
		pred := cur.left
		for pred.right != nil && pred.right != cur {
			pred = pred.right
		}
		if pred.right == nil {
			pred.right = cur
			cur = cur.left
		} else {
			pred.right = nil
			visit(cur.key, &cur.val)
			cur = cur.right
		}
	}
}

// Release discards every node and returns the backing slab pool's memory.
// Callers must ensure the tree is no longer reachable afterward.
func (t *Tree[K, V]) Release() {
	t.root = nil
	t.pool.Release()
	t.size = 0
}
