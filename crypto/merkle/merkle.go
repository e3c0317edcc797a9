package merkle

import (
	"bytes"
	"errors"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// OddNodePolicy controls how a lone node at the end of an odd-length layer is
// folded into its parent. The two policies produce different roots and
// different proof shapes, so the policy is part of the commitment format: a
// tree built with one policy cannot be verified against proofs generated
// under the other.
type OddNodePolicy uint8

const (
	// OddNodeDuplicate pairs the lone node with itself: parent = H(node, node).
	OddNodeDuplicate OddNodePolicy = iota
	// OddNodePromote carries the lone node up unchanged: parent = node.
	OddNodePromote
)

// DefaultOddNodePolicy is the policy used across the ledger unless a caller
// explicitly selects otherwise.
const DefaultOddNodePolicy = OddNodeDuplicate

var (
	ErrNoLeaves        = errors.New("merkle: tree requires at least one leaf")
	ErrIndexOutOfRange = errors.New("merkle: leaf index out of range")
)

// Tree holds the full layer stack of a commitment tree. Layer 0 contains the
// leaf hashes as supplied; each subsequent layer halves the previous one
// (rounded up) until a single root remains. Trees are ephemeral: only the
// root is persisted by the ledger, the layers exist to derive proofs.
type Tree struct {
	layers [][][32]byte
	policy OddNodePolicy
}

// LeafHash returns the leaf commitment for a canonical identity encoding.
// The hash covers the identity bytes alone: leaves are deliberately not bound
// to a task, so a root (and its proofs) can be reused across tasks. Callers
// that want task-bound leaves supply their own encoder to the ledger engine.
func LeafHash(identity []byte) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(identity))
	return out
}

// SortLeaves orders leaf hashes ascending. Builders sort before constructing
// the tree so that a given identity set always commits to the same root.
func SortLeaves(leaves [][32]byte) {
	sort.Slice(leaves, func(i, j int) bool {
		return bytes.Compare(leaves[i][:], leaves[j][:]) < 0
	})
}

// hashPair combines two nodes into their parent. The pair is sorted before
// hashing so that proof verification does not need to track left/right
// positions. The builder and verifier must share this rule exactly.
func hashPair(a, b [32]byte) [32]byte {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(a[:], b[:]))
	return out
}

// NewTree builds the layer stack for the provided leaf hashes. The input
// slice is copied; mutating it afterwards does not affect the tree.
func NewTree(leaves [][32]byte, policy OddNodePolicy) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrNoLeaves
	}
	base := make([][32]byte, len(leaves))
	copy(base, leaves)
	layers := [][][32]byte{base}
	for current := base; len(current) > 1; {
		next := make([][32]byte, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 < len(current) {
				next = append(next, hashPair(current[i], current[i+1]))
				continue
			}
			switch policy {
			case OddNodePromote:
				next = append(next, current[i])
			default:
				next = append(next, hashPair(current[i], current[i]))
			}
		}
		layers = append(layers, next)
		current = next
	}
	return &Tree{layers: layers, policy: policy}, nil
}

// Root returns the single hash in the top layer.
func (t *Tree) Root() [32]byte {
	top := t.layers[len(t.layers)-1]
	return top[0]
}

// Len returns the number of leaves committed to by the tree.
func (t *Tree) Len() int {
	return len(t.layers[0])
}

// Policy returns the odd-node policy the tree was built with.
func (t *Tree) Policy() OddNodePolicy {
	return t.policy
}

// Layers returns the height of the tree including the leaf layer.
func (t *Tree) Layers() int {
	return len(t.layers)
}

// Proof returns the ordered sibling hashes for the leaf at the given index,
// one entry per layer from the leaves up to just below the root. Under the
// duplicate policy a lone node contributes itself as its own sibling; under
// the promote policy the layer is skipped entirely. Verify folds either shape
// correctly because the fold simply consumes whatever entries are present.
func (t *Tree) Proof(index int) ([][32]byte, error) {
	if index < 0 || index >= t.Len() {
		return nil, ErrIndexOutOfRange
	}
	proof := make([][32]byte, 0, len(t.layers)-1)
	for _, layer := range t.layers[:len(t.layers)-1] {
		sibling := index ^ 1
		switch {
		case sibling < len(layer):
			proof = append(proof, layer[sibling])
		case t.policy == OddNodeDuplicate:
			proof = append(proof, layer[index])
		}
		index /= 2
	}
	return proof, nil
}

// Verify reports whether the proof reconstructs the root starting from the
// leaf. It applies the identical sorted-pair rule as the builder and is
// deterministic with no side effects.
func Verify(root, leaf [32]byte, proof [][32]byte) bool {
	computed := leaf
	for _, sibling := range proof {
		computed = hashPair(computed, sibling)
	}
	return computed == root
}
