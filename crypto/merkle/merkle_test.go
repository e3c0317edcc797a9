package merkle_test

import (
	"errors"
	"fmt"
	"testing"

	"rewardnet/crypto/merkle"
)

func identityLeaves(n int) [][32]byte {
	leaves := make([][32]byte, 0, n)
	for i := 0; i < n; i++ {
		leaves = append(leaves, merkle.LeafHash([]byte(fmt.Sprintf("identity-%d", i))))
	}
	merkle.SortLeaves(leaves)
	return leaves
}

func TestNewTreeRejectsEmptyInput(t *testing.T) {
	if _, err := merkle.NewTree(nil, merkle.DefaultOddNodePolicy); !errors.Is(err, merkle.ErrNoLeaves) {
		t.Fatalf("expected ErrNoLeaves, got %v", err)
	}
}

func TestSingleLeafTree(t *testing.T) {
	leaf := merkle.LeafHash([]byte("solo"))
	tree, err := merkle.NewTree([][32]byte{leaf}, merkle.DefaultOddNodePolicy)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	if tree.Root() != leaf {
		t.Fatalf("single leaf root must equal the leaf")
	}
	proof, err := tree.Proof(0)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if len(proof) != 0 {
		t.Fatalf("expected empty proof, got %d entries", len(proof))
	}
	if !merkle.Verify(tree.Root(), leaf, proof) {
		t.Fatalf("empty proof must verify for single leaf tree")
	}
}

func TestProofRoundTripAllSizes(t *testing.T) {
	for _, policy := range []merkle.OddNodePolicy{merkle.OddNodeDuplicate, merkle.OddNodePromote} {
		for n := 1; n <= 9; n++ {
			leaves := identityLeaves(n)
			tree, err := merkle.NewTree(leaves, policy)
			if err != nil {
				t.Fatalf("build tree (n=%d): %v", n, err)
			}
			if tree.Len() != n {
				t.Fatalf("expected %d leaves, got %d", n, tree.Len())
			}
			for i, leaf := range leaves {
				proof, err := tree.Proof(i)
				if err != nil {
					t.Fatalf("proof (n=%d, i=%d): %v", n, i, err)
				}
				if !merkle.Verify(tree.Root(), leaf, proof) {
					t.Fatalf("proof failed to verify (policy=%d, n=%d, i=%d)", policy, n, i)
				}
			}
		}
	}
}

func TestVerifyRejectsNonMember(t *testing.T) {
	leaves := identityLeaves(5)
	tree, err := merkle.NewTree(leaves, merkle.DefaultOddNodePolicy)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	proof, err := tree.Proof(2)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	outsider := merkle.LeafHash([]byte("not-in-the-set"))
	if merkle.Verify(tree.Root(), outsider, proof) {
		t.Fatalf("outsider leaf must not verify with a member's proof")
	}
}

func TestVerifyRejectsTamperedProof(t *testing.T) {
	leaves := identityLeaves(8)
	tree, err := merkle.NewTree(leaves, merkle.DefaultOddNodePolicy)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	proof, err := tree.Proof(3)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	proof[1][0] ^= 0xFF
	if merkle.Verify(tree.Root(), leaves[3], proof) {
		t.Fatalf("tampered proof must not verify")
	}
}

func TestPoliciesAreNotInterchangeable(t *testing.T) {
	// Odd leaf count forces the policies to diverge.
	leaves := identityLeaves(5)
	duplicated, err := merkle.NewTree(leaves, merkle.OddNodeDuplicate)
	if err != nil {
		t.Fatalf("build duplicate tree: %v", err)
	}
	promoted, err := merkle.NewTree(leaves, merkle.OddNodePromote)
	if err != nil {
		t.Fatalf("build promote tree: %v", err)
	}
	if duplicated.Root() == promoted.Root() {
		t.Fatalf("policies must commit to different roots for odd layers")
	}
	proof, err := promoted.Proof(4)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if merkle.Verify(duplicated.Root(), leaves[4], proof) {
		t.Fatalf("promote-policy proof must not verify against duplicate-policy root")
	}
}

func TestProofIndexOutOfRange(t *testing.T) {
	leaves := identityLeaves(4)
	tree, err := merkle.NewTree(leaves, merkle.DefaultOddNodePolicy)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	if _, err := tree.Proof(4); !errors.Is(err, merkle.ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	if _, err := tree.Proof(-1); !errors.Is(err, merkle.ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestDeterministicRootAcrossInputOrder(t *testing.T) {
	a := identityLeaves(6)
	b := make([][32]byte, len(a))
	copy(b, a)
	// Reverse then re-sort; the committed root must not move.
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	merkle.SortLeaves(b)
	treeA, err := merkle.NewTree(a, merkle.DefaultOddNodePolicy)
	if err != nil {
		t.Fatalf("build tree a: %v", err)
	}
	treeB, err := merkle.NewTree(b, merkle.DefaultOddNodePolicy)
	if err != nil {
		t.Fatalf("build tree b: %v", err)
	}
	if treeA.Root() != treeB.Root() {
		t.Fatalf("sorted identity sets must commit to identical roots")
	}
}
