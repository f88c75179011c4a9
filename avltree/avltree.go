// Package avltree implements the balanced ordered-map engine every
// higher-level façade in this module (orderedset.Set, orderedmap.Map) is
// built on: a self-balancing AVL tree over opaque key/value pointers,
// with explicit parent links so iteration needs no recursion stack.
package avltree

import (
	"unsafe"

	"github.com/orizon-lang/cmagic/allocator"
	"github.com/orizon-lang/cmagic/internal/assert"
)

// Comparator orders two keys the same way bytes.Compare orders byte
// slices: negative if a < b, zero if equal, positive if a > b. Tree never
// interprets key bytes itself — every comparison is delegated here, which
// is what lets a single engine serve both orderedset.Set (no value) and
// orderedmap.Map (key+value).
type Comparator func(a, b unsafe.Pointer) int

type node struct {
	left, right, parent unsafe.Pointer // *node
	height               int32
	key, value unsafe.Pointer
}

func nodeOf(ptr unsafe.Pointer) *node {
	return (*node)(ptr)
}

func ptrOf(n *node) unsafe.Pointer {
	if n == nil {
		return nil
	}
	return unsafe.Pointer(n)
}

// Tree is the AVL engine. The tree's own bookkeeping lives in ordinary Go
// memory; only the nodes it allocates to hold caller key/value pointers
// come from the pluggable Allocator, so a Region-backed tree still keeps
// every byte a caller can account for inside the region.
type Tree struct {
	magic   assert.Magic
	root    unsafe.Pointer // *node
	size    int
	compare Comparator
	alloc   *allocator.Allocator
}

// New creates an empty tree ordered by compare, allocating nodes from alloc.
func New(compare Comparator, alloc *allocator.Allocator) *Tree {
	return &Tree{
		magic:   assert.MagicAVLTree,
		compare: compare,
		alloc:   alloc,
	}
}

// GetAllocator returns the allocator this tree allocates nodes from, so a
// façade can allocate its key/value copies from the same backing.
func (t *Tree) GetAllocator() *allocator.Allocator {
	return t.alloc
}

// Size returns the number of entries currently in the tree.
func (t *Tree) Size() int {
	t.checkMagic()
	return t.size
}

func (t *Tree) checkMagic() {
	assert.That(t.magic == assert.MagicAVLTree, "avltree: use of a zero-value or corrupted Tree")
}

var nodeSize = unsafe.Sizeof(node{})

func (t *Tree) newNode(key, value unsafe.Pointer) *node {
	raw := t.alloc.Allocate(nodeSize)
	if raw == nil {
		return nil
	}

	n := nodeOf(raw)
	*n = node{key: key, value: value}

	return n
}

func nodeHeight(n *node) int32 {
	if n == nil {
		return 0
	}
	return n.height
}

func updateHeight(n *node) {
	n.height = 1 + max(nodeHeight(nodeOf(n.left)), nodeHeight(nodeOf(n.right)))
}

func balanceFactor(n *node) int32 {
	return nodeHeight(nodeOf(n.left)) - nodeHeight(nodeOf(n.right))
}

// rotateLeft and rotateRight are the two primitive rotations the 4-case
// rebalance table composes: LL is a single rotateRight, RR a single
// rotateLeft, LR a rotateLeft on the left child followed by rotateRight,
// RL a rotateRight on the right child followed by rotateLeft.
func (t *Tree) rotateLeft(x *node) *node {
	y := nodeOf(x.right)

	x.right = y.left
	if y.left != nil {
		nodeOf(y.left).parent = ptrOf(x)
	}

	y.parent = x.parent
	t.replaceChild(nodeOf(x.parent), x, y)

	y.left = ptrOf(x)
	x.parent = ptrOf(y)

	updateHeight(x)
	updateHeight(y)

	return y
}

func (t *Tree) rotateRight(x *node) *node {
	y := nodeOf(x.left)

	x.left = y.right
	if y.right != nil {
		nodeOf(y.right).parent = ptrOf(x)
	}

	y.parent = x.parent
	t.replaceChild(nodeOf(x.parent), x, y)

	y.right = ptrOf(x)
	x.parent = ptrOf(y)

	updateHeight(x)
	updateHeight(y)

	return y
}

// replaceChild rewires parent's child pointer that used to point at
// oldChild to point at newChild instead; parent == nil means oldChild was
// the tree root.
func (t *Tree) replaceChild(parent, oldChild, newChild *node) {
	if parent == nil {
		t.root = ptrOf(newChild)
		return
	}

	if parent.left == ptrOf(oldChild) {
		parent.left = ptrOf(newChild)
	} else {
		parent.right = ptrOf(newChild)
	}
}

// rebalance restores the AVL invariant at x, returning whichever node now
// occupies x's former position (x itself if no rotation was needed).
func (t *Tree) rebalance(x *node) *node {
	updateHeight(x)

	switch bf := balanceFactor(x); {
	case bf > 1:
		if balanceFactor(nodeOf(x.left)) < 0 {
			t.rotateLeft(nodeOf(x.left))
		}
		return t.rotateRight(x)
	case bf < -1:
		if balanceFactor(nodeOf(x.right)) > 0 {
			t.rotateRight(nodeOf(x.right))
		}
		return t.rotateLeft(x)
	default:
		return x
	}
}

// retrace walks from start up to the root, rebalancing every ancestor.
// Used identically after an insert and after an erase splice point.
func (t *Tree) retrace(start *node) {
	for cur := start; cur != nil; {
		newSub := t.rebalance(cur)
		cur = nodeOf(newSub.parent)
	}
}

// Insert places key/value into the tree, using key both to navigate to
// its position and as the node's permanent key pointer. If an equal key
// already exists, Insert reports exists=true and leaves the tree
// untouched. It is Reserve with searchKey and storageKey equal; see
// Reserve when the two must differ.
func (t *Tree) Insert(key, value unsafe.Pointer) (it Iterator, exists bool) {
	return t.Reserve(key, key, value)
}

// Reserve places storageKey/value into the tree at the position
// determined by comparing searchKey against existing keys. searchKey is
// used only for comparisons during the descent and may be transient
// (e.g. the address of a stack-local search key); storageKey becomes the
// node's permanent key pointer and is never read or written by Reserve
// itself, so it may point at still-uninitialized allocator storage that
// the caller fills in afterward (see orderedset.Set.Allocate, which
// reserves a key's storage before copying into it).
//
// Reserve reports exists=true and leaves the tree untouched if a key
// equal to searchKey already exists. If node allocation fails, it
// returns a zero Iterator and exists=false; the caller must check
// Iterator.Valid().
func (t *Tree) Reserve(searchKey, storageKey, value unsafe.Pointer) (it Iterator, exists bool) {
	t.checkMagic()

	if t.root == nil {
		n := t.newNode(storageKey, value)
		if n == nil {
			return Iterator{}, false
		}

		n.height = 1
		t.root = ptrOf(n)
		t.size++

		return Iterator{tree: t, n: n}, false
	}

	cur := nodeOf(t.root)
	for {
		c := t.compare(searchKey, cur.key)
		switch {
		case c == 0:
			return Iterator{tree: t, n: cur}, true
		case c < 0:
			if cur.left == nil {
				n := t.newNode(storageKey, value)
				if n == nil {
					return Iterator{}, false
				}

				n.height = 1
				n.parent = ptrOf(cur)
				cur.left = ptrOf(n)
				t.size++
				t.retrace(cur)

				return Iterator{tree: t, n: n}, false
			}

			cur = nodeOf(cur.left)
		default:
			if cur.right == nil {
				n := t.newNode(storageKey, value)
				if n == nil {
					return Iterator{}, false
				}

				n.height = 1
				n.parent = ptrOf(cur)
				cur.right = ptrOf(n)
				t.size++
				t.retrace(cur)

				return Iterator{tree: t, n: n}, false
			}

			cur = nodeOf(cur.right)
		}
	}
}

// Find locates key, returning a zero Iterator (Valid() == false) if absent.
func (t *Tree) Find(key unsafe.Pointer) Iterator {
	t.checkMagic()

	cur := nodeOf(t.root)
	for cur != nil {
		c := t.compare(key, cur.key)
		switch {
		case c == 0:
			return Iterator{tree: t, n: cur}
		case c < 0:
			cur = nodeOf(cur.left)
		default:
			cur = nodeOf(cur.right)
		}
	}

	return Iterator{}
}

func minNode(n *node) *node {
	for n.left != nil {
		n = nodeOf(n.left)
	}

	return n
}

func maxNode(n *node) *node {
	for n.right != nil {
		n = nodeOf(n.right)
	}

	return n
}

// Erase removes the entry matching key, returning the key/value pointers
// that were stored for it so the caller can release their backing memory.
// ok is false if no such entry exists.
func (t *Tree) Erase(key unsafe.Pointer) (removedKey, removedValue unsafe.Pointer, ok bool) {
	t.checkMagic()

	target := nodeOf(t.root)
	for target != nil {
		c := t.compare(key, target.key)
		if c == 0 {
			break
		} else if c < 0 {
			target = nodeOf(target.left)
		} else {
			target = nodeOf(target.right)
		}
	}

	if target == nil {
		return nil, nil, false
	}

	removedKey, removedValue = target.key, target.value

	victim := target
	if victim.left != nil && victim.right != nil {
		succ := minNode(nodeOf(victim.right))
		// Splice the successor's key/value into target's slot rather than
		// relinking the whole subtree; only succ, which has at most one
		// child, is physically unlinked below.
		victim.key, victim.value = succ.key, succ.value
		victim = succ
	}

	child := nodeOf(victim.left)
	if child == nil {
		child = nodeOf(victim.right)
	}

	parent := nodeOf(victim.parent)
	if child != nil {
		child.parent = ptrOf(parent)
	}

	t.replaceChild(parent, victim, child)
	t.size--
	t.alloc.Release(unsafe.Pointer(victim))

	if parent != nil {
		t.retrace(parent)
	}

	return removedKey, removedValue, true
}

// Clear removes every entry, invoking release(key, value) for each before
// freeing the node that held it. release is typically the façade's own
// key/value-buffer destructor (and, for orderedmap.Map, its user-supplied
// value Destructor).
func (t *Tree) Clear(release func(key, value unsafe.Pointer)) {
	t.checkMagic()
	clearSubtree(t, nodeOf(t.root), release)
	t.root = nil
	t.size = 0
}

func clearSubtree(t *Tree, n *node, release func(key, value unsafe.Pointer)) {
	if n == nil {
		return
	}

	clearSubtree(t, nodeOf(n.left), release)
	clearSubtree(t, nodeOf(n.right), release)

	if release != nil {
		release(n.key, n.value)
	}

	t.alloc.Release(unsafe.Pointer(n))
}

// First returns the smallest-keyed entry, or an invalid Iterator if empty.
func (t *Tree) First() Iterator {
	t.checkMagic()

	if t.root == nil {
		return Iterator{}
	}

	return Iterator{tree: t, n: minNode(nodeOf(t.root))}
}

// Last returns the largest-keyed entry, or an invalid Iterator if empty.
func (t *Tree) Last() Iterator {
	t.checkMagic()

	if t.root == nil {
		return Iterator{}
	}

	return Iterator{tree: t, n: maxNode(nodeOf(t.root))}
}

// Iterator addresses one entry in a Tree. The zero Iterator is invalid.
type Iterator struct {
	tree *Tree
	n    *node
}

// Valid reports whether the iterator addresses a real entry.
func (it Iterator) Valid() bool {
	return it.n != nil
}

// Key returns the entry's key pointer.
func (it Iterator) Key() unsafe.Pointer {
	return it.n.key
}

// Value returns the entry's value pointer.
func (it Iterator) Value() unsafe.Pointer {
	return it.n.value
}

// Next returns the entry immediately after it in key order, or an invalid
// Iterator if it was already the last entry.
func (it Iterator) Next() Iterator {
	n := it.n
	if n.right != nil {
		return Iterator{tree: it.tree, n: minNode(nodeOf(n.right))}
	}

	cur := n
	parent := nodeOf(cur.parent)
	for parent != nil && ptrOf(cur) == parent.right {
		cur = parent
		parent = nodeOf(cur.parent)
	}

	return Iterator{tree: it.tree, n: parent}
}

// Prev returns the entry immediately before it in key order, or an
// invalid Iterator if it was already the first entry.
func (it Iterator) Prev() Iterator {
	n := it.n
	if n.left != nil {
		return Iterator{tree: it.tree, n: maxNode(nodeOf(n.left))}
	}

	cur := n
	parent := nodeOf(cur.parent)
	for parent != nil && ptrOf(cur) == parent.left {
		cur = parent
		parent = nodeOf(cur.parent)
	}

	return Iterator{tree: it.tree, n: parent}
}
