package rewards

import "math/big"

// Task captures a reward campaign: a fixed payout per eligible claimant, an
// escrowed pool, a claim window and a membership commitment. Timestamps are
// unix seconds. Records are never deleted; a task past its EndTime is
// implicitly terminal and only eligible for the unclaimed sweep.
type Task struct {
	ID             uint64
	Name           string
	MembershipRoot [32]byte
	RewardAmount   *big.Int
	TotalPool      *big.Int
	ClaimedAmount  *big.Int
	MaxClaims      uint64
	ClaimCount     uint64
	StartTime      uint64
	EndTime        uint64
	CreatedAt      uint64
	Active         bool
}

// Clone returns a deep copy so callers can hold task snapshots without
// aliasing ledger state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	out.RewardAmount = cloneBigInt(t.RewardAmount)
	out.TotalPool = cloneBigInt(t.TotalPool)
	out.ClaimedAmount = cloneBigInt(t.ClaimedAmount)
	return &out
}

// TaskDefinition carries the caller-supplied parameters for CreateTask. The
// membership root may be the zero hash at creation and supplied later via
// UpdateMembershipRoot.
type TaskDefinition struct {
	Name           string
	MembershipRoot [32]byte
	RewardAmount   *big.Int
	TotalPool      *big.Int
	MaxClaims      uint64
	StartTime      uint64
	EndTime        uint64
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
