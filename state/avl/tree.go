// Package avl implements a persistent, path-copying AVL search tree keyed
// by 32-byte box ids, authenticated by a domain-separated hash over each
// node's key, value hash, and child hashes. It is the node's authenticated
// dictionary: every Insert/Remove/Lookup can produce a Proof a verifier
// uses to recompute the tree's root hash without holding the full tree.
package avl

import "github.com/Bromel777/EncryCore/chain"

const (
	leafTag byte = 0x10
	nodeTag byte = 0x11
)

var zeroHash [32]byte

// node is an immutable tree node; every mutating operation replaces the
// nodes on the path from the root to the change and reuses every other
// subtree, giving every past root a live, queryable snapshot.
type node struct {
	key       [32]byte
	value     []byte
	valueHash [32]byte
	left      *node
	right     *node
	height    int8
	hash      [32]byte
}

func height(n *node) int8 {
	if n == nil {
		return 0
	}
	return n.height
}

// hashOf is an O(1) lookup: every node caches its own merkle hash at
// construction time, so a fresh root hash never requires re-walking the
// subtrees path-copying left untouched.
func hashOf(n *node) [32]byte {
	if n == nil {
		return zeroHash
	}
	return n.hash
}

func computeHash(key, valueHash [32]byte, left, right *node) [32]byte {
	lh := hashOf(left)
	rh := hashOf(right)
	return chain.TaggedHash(nodeTag, key[:], valueHash[:], lh[:], rh[:])
}

func balanceFactor(n *node) int {
	if n == nil {
		return 0
	}
	return int(height(n.left)) - int(height(n.right))
}

func newLeaf(key [32]byte, value []byte) *node {
	valueHash := chain.Hash256(value)
	return &node{
		key: key, value: value, valueHash: valueHash, height: 1,
		hash: computeHash(key, valueHash, nil, nil),
	}
}

func clone(n *node, left, right *node) *node {
	h := int8(1 + max8(height(left), height(right)))
	return &node{
		key: n.key, value: n.value, valueHash: n.valueHash,
		left: left, right: right, height: h,
		hash: computeHash(n.key, n.valueHash, left, right),
	}
}

func max8(a, b int8) int8 {
	if a > b {
		return a
	}
	return b
}

func rotateRight(n *node) *node {
	l := n.left
	newRight := clone(n, l.right, n.right)
	return clone(l, l.left, newRight)
}

func rotateLeft(n *node) *node {
	r := n.right
	newLeft := clone(n, n.left, r.left)
	return clone(r, newLeft, r.right)
}

func rebalance(n *node) *node {
	bf := balanceFactor(n)
	if bf > 1 {
		if balanceFactor(n.left) < 0 {
			n = clone(n, rotateLeft(n.left), n.right)
		}
		return rotateRight(n)
	}
	if bf < -1 {
		if balanceFactor(n.right) > 0 {
			n = clone(n, n.left, rotateRight(n.right))
		}
		return rotateLeft(n)
	}
	return n
}

// Tree is an immutable snapshot of the authenticated dictionary at one
// version; every mutation returns a new Tree value and leaves the
// receiver untouched.
type Tree struct {
	root *node
	size int
}

// New returns the empty tree.
func New() *Tree {
	return &Tree{}
}

// RootHash is the tree's merkle root, or the all-zero hash when empty.
func (t *Tree) RootHash() [32]byte {
	return hashOf(t.root)
}

// Height returns the tree's height clamped to a byte, matching the
// granularity chain.ADDigest carries.
func (t *Tree) Height() byte {
	h := height(t.root)
	if h > 255 {
		return 255
	}
	return byte(h)
}

// Digest packages RootHash and Height into the header-carried commitment.
func (t *Tree) Digest() chain.ADDigest {
	return chain.ADDigest{RootHash: t.RootHash(), TreeHeight: t.Height()}
}

// Size is the number of keys currently stored.
func (t *Tree) Size() int {
	return t.size
}

// Walk visits every key/value pair in ascending key order, used to resync
// an external durable store to a tree snapshot.
func (t *Tree) Walk(fn func(key [32]byte, value []byte)) {
	walk(t.root, fn)
}

func walk(n *node, fn func(key [32]byte, value []byte)) {
	if n == nil {
		return
	}
	walk(n.left, fn)
	fn(n.key, n.value)
	walk(n.right, fn)
}

// Lookup returns the value stored under key, whether it was found, and a
// Proof a verifier can check against RootHash().
func (t *Tree) Lookup(key [32]byte) ([]byte, bool, Proof) {
	path := collectPath(t.root, key)
	last := path[len(path)-1]
	if last.found {
		return last.node.value, true, Proof{Key: key, Steps: toSteps(path), Found: true, Value: last.node.value}
	}
	return nil, false, Proof{Key: key, Steps: toSteps(path), Found: false}
}

// Insert returns a new Tree with key bound to value (overwriting any
// existing binding) plus a Proof of the pre-state search path.
func (t *Tree) Insert(key [32]byte, value []byte) (*Tree, Proof) {
	path := collectPath(t.root, key)
	last := path[len(path)-1]
	proof := Proof{Key: key, Steps: toSteps(path)}
	if last.found {
		proof.Found = true
		proof.Value = last.node.value
	}
	newRoot, grew := insert(t.root, key, value)
	size := t.size
	if grew {
		size++
	}
	return &Tree{root: newRoot, size: size}, proof
}

func insert(n *node, key [32]byte, value []byte) (*node, bool) {
	if n == nil {
		return newLeaf(key, value), true
	}
	switch {
	case key == n.key:
		return clone(&node{key: key, value: value, valueHash: chain.Hash256(value)}, n.left, n.right), false
	case lessKey(key, n.key):
		newLeft, grew := insert(n.left, key, value)
		return rebalance(clone(n, newLeft, n.right)), grew
	default:
		newRight, grew := insert(n.right, key, value)
		return rebalance(clone(n, n.left, newRight)), grew
	}
}

// Remove returns a new Tree without key, whether key was present, and a
// Proof of the pre-state search path.
func (t *Tree) Remove(key [32]byte) (*Tree, bool, Proof) {
	path := collectPath(t.root, key)
	last := path[len(path)-1]
	proof := Proof{Key: key, Steps: toSteps(path)}
	if !last.found {
		return t, false, proof
	}
	proof.Found = true
	proof.Value = last.node.value
	newRoot := remove(t.root, key)
	return &Tree{root: newRoot, size: t.size - 1}, true, proof
}

func remove(n *node, key [32]byte) *node {
	if n == nil {
		return nil
	}
	switch {
	case key == n.key:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		succ := leftmost(n.right)
		newRight := remove(n.right, succ.key)
		return rebalance(clone(succ, n.left, newRight))
	case lessKey(key, n.key):
		return rebalance(clone(n, remove(n.left, key), n.right))
	default:
		return rebalance(clone(n, n.left, remove(n.right, key)))
	}
}

func leftmost(n *node) *node {
	for n.left != nil {
		n = n.left
	}
	return n
}

func lessKey(a, b [32]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

type pathEntry struct {
	node  *node
	found bool
}

func collectPath(n *node, key [32]byte) []pathEntry {
	var path []pathEntry
	for {
		if n == nil {
			path = append(path, pathEntry{node: nil, found: false})
			return path
		}
		if key == n.key {
			path = append(path, pathEntry{node: n, found: true})
			return path
		}
		path = append(path, pathEntry{node: n, found: false})
		if lessKey(key, n.key) {
			n = n.left
		} else {
			n = n.right
		}
	}
}
