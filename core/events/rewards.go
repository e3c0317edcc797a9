package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"rewardnet/core/types"
	"rewardnet/crypto"
)

const (
	// TypeRewardTaskCreated is emitted when a reward task is first
	// registered on the ledger.
	TypeRewardTaskCreated = "rewards.task.created"
	// TypeRewardClaimed is emitted when an eligible identity receives its
	// payout for a task.
	TypeRewardClaimed = "rewards.claimed"
	// TypeRewardTaskDeactivated is emitted when an administrator disables
	// claims for a task.
	TypeRewardTaskDeactivated = "rewards.task.deactivated"
	// TypeRewardTaskReactivated is emitted when an administrator re-enables
	// claims for a task.
	TypeRewardTaskReactivated = "rewards.task.reactivated"
	// TypeRewardRootUpdated is emitted when a validator replaces a task's
	// membership root.
	TypeRewardRootUpdated = "rewards.root.updated"
	// TypeRewardPoolIncreased is emitted when additional funds are escrowed
	// into a task's pool.
	TypeRewardPoolIncreased = "rewards.pool.increased"
	// TypeRewardUnclaimedWithdrawn is emitted when an administrator sweeps a
	// task's unclaimed balance after the window closes.
	TypeRewardUnclaimedWithdrawn = "rewards.unclaimed.withdrawn"
)

// RewardTaskCreated captures the key metadata of a newly created reward task.
type RewardTaskCreated struct {
	TaskID       uint64
	Name         string
	Creator      [20]byte
	Root         [32]byte
	RewardAmount *big.Int
	TotalPool    *big.Int
	MaxClaims    uint64
	StartTime    int64
	EndTime      int64
}

// EventType implements the Event interface.
func (RewardTaskCreated) EventType() string { return TypeRewardTaskCreated }

// Event converts the creation details to the generic event payload.
func (e RewardTaskCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardTaskCreated,
		Attributes: map[string]string{
			"taskId":       strconv.FormatUint(e.TaskID, 10),
			"name":         e.Name,
			"creator":      crypto.NewAddress(crypto.RWDPrefix, e.Creator[:]).String(),
			"root":         hex.EncodeToString(e.Root[:]),
			"rewardAmount": formatAmount(e.RewardAmount),
			"totalPool":    formatAmount(e.TotalPool),
			"maxClaims":    strconv.FormatUint(e.MaxClaims, 10),
			"startTime":    strconv.FormatInt(e.StartTime, 10),
			"endTime":      strconv.FormatInt(e.EndTime, 10),
		},
	}
}

// RewardClaimed records a successful payout to a claimant.
type RewardClaimed struct {
	TaskID   uint64
	Claimant [20]byte
	Amount   *big.Int
}

// EventType implements the Event interface.
func (RewardClaimed) EventType() string { return TypeRewardClaimed }

// Event converts the claim details to the generic event payload.
func (e RewardClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardClaimed,
		Attributes: map[string]string{
			"taskId":   strconv.FormatUint(e.TaskID, 10),
			"claimant": crypto.NewAddress(crypto.RWDPrefix, e.Claimant[:]).String(),
			"amount":   formatAmount(e.Amount),
		},
	}
}

// RewardTaskDeactivated captures the deactivation of a task.
type RewardTaskDeactivated struct {
	TaskID uint64
	Caller [20]byte
}

// EventType implements the Event interface.
func (RewardTaskDeactivated) EventType() string { return TypeRewardTaskDeactivated }

// Event converts the deactivation to the generic event payload.
func (e RewardTaskDeactivated) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardTaskDeactivated,
		Attributes: map[string]string{
			"taskId": strconv.FormatUint(e.TaskID, 10),
			"caller": crypto.NewAddress(crypto.RWDPrefix, e.Caller[:]).String(),
		},
	}
}

// RewardTaskReactivated captures the reactivation of a task.
type RewardTaskReactivated struct {
	TaskID uint64
	Caller [20]byte
}

// EventType implements the Event interface.
func (RewardTaskReactivated) EventType() string { return TypeRewardTaskReactivated }

// Event converts the reactivation to the generic event payload.
func (e RewardTaskReactivated) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardTaskReactivated,
		Attributes: map[string]string{
			"taskId": strconv.FormatUint(e.TaskID, 10),
			"caller": crypto.NewAddress(crypto.RWDPrefix, e.Caller[:]).String(),
		},
	}
}

// RewardRootUpdated records the replacement of a task's membership root.
type RewardRootUpdated struct {
	TaskID  uint64
	OldRoot [32]byte
	NewRoot [32]byte
	Caller  [20]byte
}

// EventType implements the Event interface.
func (RewardRootUpdated) EventType() string { return TypeRewardRootUpdated }

// Event converts the root update to the generic event payload.
func (e RewardRootUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardRootUpdated,
		Attributes: map[string]string{
			"taskId":  strconv.FormatUint(e.TaskID, 10),
			"oldRoot": hex.EncodeToString(e.OldRoot[:]),
			"newRoot": hex.EncodeToString(e.NewRoot[:]),
			"caller":  crypto.NewAddress(crypto.RWDPrefix, e.Caller[:]).String(),
		},
	}
}

// RewardPoolIncreased records an escrow top-up for a task.
type RewardPoolIncreased struct {
	TaskID    uint64
	Amount    *big.Int
	TotalPool *big.Int
	Caller    [20]byte
}

// EventType implements the Event interface.
func (RewardPoolIncreased) EventType() string { return TypeRewardPoolIncreased }

// Event converts the top-up to the generic event payload.
func (e RewardPoolIncreased) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardPoolIncreased,
		Attributes: map[string]string{
			"taskId":    strconv.FormatUint(e.TaskID, 10),
			"amount":    formatAmount(e.Amount),
			"totalPool": formatAmount(e.TotalPool),
			"caller":    crypto.NewAddress(crypto.RWDPrefix, e.Caller[:]).String(),
		},
	}
}

// RewardUnclaimedWithdrawn records the sweep of a task's unclaimed balance.
type RewardUnclaimedWithdrawn struct {
	TaskID uint64
	Amount *big.Int
	Caller [20]byte
}

// EventType implements the Event interface.
func (RewardUnclaimedWithdrawn) EventType() string { return TypeRewardUnclaimedWithdrawn }

// Event converts the sweep to the generic event payload.
func (e RewardUnclaimedWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardUnclaimedWithdrawn,
		Attributes: map[string]string{
			"taskId": strconv.FormatUint(e.TaskID, 10),
			"amount": formatAmount(e.Amount),
			"caller": crypto.NewAddress(crypto.RWDPrefix, e.Caller[:]).String(),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
