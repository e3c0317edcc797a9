package rewards

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"rewardnet/core/events"
	"rewardnet/crypto/merkle"
	nativecommon "rewardnet/native/common"
	"rewardnet/observability/metrics"
)

const (
	moduleName = "rewards"

	// RoleAdmin may create, (de)activate, top up and sweep tasks.
	RoleAdmin = "ROLE_REWARDS_ADMIN"
	// RoleValidator may replace a task's membership root. Narrower trust
	// than RoleAdmin: a validator cannot move funds.
	RoleValidator = "ROLE_REWARDS_VALIDATOR"
)

var (
	taskCounterKey      = []byte("rewards/task-counter")
	totalDistributedKey = []byte("rewards/total-distributed")
	taskKeyPrefix       = []byte("rewards/task/")
	claimKeyPrefix      = []byte("rewards/claim/")
)

type engineState interface {
	HasRole(role string, addr []byte) bool
	Balance(addr []byte, symbol string) (*big.Int, error)
	Transfer(from, to []byte, symbol string, amount *big.Int) error
	KVPut(key []byte, value interface{}) error
	KVGet(key []byte, out interface{}) (bool, error)
	KVDelete(key []byte) error
}

// LeafHashFunc maps a claimant's canonical identity bytes to a leaf
// commitment. The default hashes the identity alone, so a root is reusable
// across tasks; deployments that want task-bound proofs install their own
// encoder via SetLeafHash.
type LeafHashFunc func(identity []byte) [32]byte

// Engine owns the task registry and the claim ledger. All state mutations go
// through the engine; no caller holds a direct mutable reference to a task
// record. The engine serialises mutations and rejects re-entrant invocations
// while a guarded mutation is in flight.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	nowFn    func() int64
	leafHash LeafHashFunc
	token    string
	vault    [20]byte
	metrics  *metrics.RewardsMetrics
	inFlight bool
}

// NewEngine creates a rewards engine escrowing funds in the given token. The
// vault address is derived from the module name so every instance of the
// ledger escrows at the same account.
func NewEngine(token string) *Engine {
	e := &Engine{
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
		leafHash: merkle.LeafHash,
		token:    strings.ToUpper(strings.TrimSpace(token)),
	}
	copy(e.vault[:], ethcrypto.Keccak256([]byte("rewards/module-vault"))[12:])
	return e
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets the emitter to
// a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the governance pause switches consulted by every guarded
// mutation.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetLeafHash overrides the identity-to-leaf encoding used during proof
// verification. Passing nil restores the default identity-only hash.
func (e *Engine) SetLeafHash(fn LeafHashFunc) {
	if fn == nil {
		e.leafHash = merkle.LeafHash
		return
	}
	e.leafHash = fn
}

// SetMetrics wires the prometheus collectors updated on claims and sweeps.
func (e *Engine) SetMetrics(m *metrics.RewardsMetrics) { e.metrics = m }

// Vault returns the module escrow address holding all task pools.
func (e *Engine) Vault() [20]byte { return e.vault }

func (e *Engine) now() int64 {
	if e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(event events.Event) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}

// enter flips the single-flight guard. Guarded mutations call enter before
// touching state and exit on return, so a custody callback that re-enters the
// engine fails fast instead of interleaving partial effects.
func (e *Engine) enter() error {
	if e.inFlight {
		return ErrReentrantCall
	}
	e.inFlight = true
	return nil
}

func (e *Engine) exit() { e.inFlight = false }

func taskKey(id uint64) []byte {
	buf := make([]byte, len(taskKeyPrefix)+8)
	copy(buf, taskKeyPrefix)
	binary.BigEndian.PutUint64(buf[len(taskKeyPrefix):], id)
	return buf
}

func claimKey(id uint64, claimant [20]byte) []byte {
	buf := make([]byte, len(claimKeyPrefix)+8+1+len(claimant))
	copy(buf, claimKeyPrefix)
	binary.BigEndian.PutUint64(buf[len(claimKeyPrefix):], id)
	buf[len(claimKeyPrefix)+8] = ':'
	copy(buf[len(claimKeyPrefix)+9:], claimant[:])
	return buf
}

func (e *Engine) loadTask(id uint64) (*Task, bool, error) {
	if e.state == nil {
		return nil, false, ErrNilState
	}
	task := new(Task)
	found, err := e.state.KVGet(taskKey(id), task)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return task, true, nil
}

func (e *Engine) storeTask(task *Task) error {
	if e.state == nil {
		return ErrNilState
	}
	return e.state.KVPut(taskKey(task.ID), task)
}

func (e *Engine) nextTaskID() (uint64, error) {
	var counter uint64
	if _, err := e.state.KVGet(taskCounterKey, &counter); err != nil {
		return 0, err
	}
	counter++
	if err := e.state.KVPut(taskCounterKey, counter); err != nil {
		return 0, err
	}
	return counter, nil
}

func (e *Engine) loadDistributed() (*big.Int, error) {
	total := new(big.Int)
	found, err := e.state.KVGet(totalDistributedKey, total)
	if err != nil {
		return nil, err
	}
	if !found {
		return big.NewInt(0), nil
	}
	return total, nil
}

// CreateTask registers a new reward task and escrows its pool from the
// creator into the module vault. Only RoleAdmin may create tasks.
func (e *Engine) CreateTask(caller [20]byte, def *TaskDefinition) (uint64, error) {
	if err := e.enter(); err != nil {
		return 0, err
	}
	defer e.exit()
	if def == nil {
		return 0, ErrNilDefinition
	}
	if e.state == nil {
		return 0, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if !e.state.HasRole(RoleAdmin, caller[:]) {
		return 0, ErrUnauthorized
	}
	if def.RewardAmount == nil || def.RewardAmount.Sign() <= 0 {
		return 0, fmt.Errorf("%w: reward amount must be positive", ErrInvalidAmount)
	}
	if def.TotalPool == nil || def.TotalPool.Sign() <= 0 {
		return 0, fmt.Errorf("%w: total pool must be positive", ErrInvalidAmount)
	}
	if def.MaxClaims == 0 {
		return 0, fmt.Errorf("%w: max claims must be positive", ErrInvalidAmount)
	}
	now := uint64(e.now())
	if def.EndTime <= def.StartTime {
		return 0, fmt.Errorf("%w: end time must follow start time", ErrInvalidTimeRange)
	}
	if def.StartTime < now {
		return 0, fmt.Errorf("%w: start time is in the past", ErrInvalidTimeRange)
	}

	if err := e.state.Transfer(caller[:], e.vault[:], e.token, def.TotalPool); err != nil {
		return 0, fmt.Errorf("rewards: escrow deposit failed: %w", err)
	}
	// The deposit is refunded if the record fails to persist: no funds may
	// sit in the vault without a task claiming them.
	id, err := e.nextTaskID()
	if err != nil {
		_ = e.state.Transfer(e.vault[:], caller[:], e.token, def.TotalPool)
		return 0, err
	}
	task := &Task{
		ID:             id,
		Name:           strings.TrimSpace(def.Name),
		MembershipRoot: def.MembershipRoot,
		RewardAmount:   cloneBigInt(def.RewardAmount),
		TotalPool:      cloneBigInt(def.TotalPool),
		ClaimedAmount:  big.NewInt(0),
		MaxClaims:      def.MaxClaims,
		StartTime:      def.StartTime,
		EndTime:        def.EndTime,
		CreatedAt:      now,
		Active:         true,
	}
	if err := e.storeTask(task); err != nil {
		_ = e.state.Transfer(e.vault[:], caller[:], e.token, def.TotalPool)
		return 0, err
	}
	e.metrics.TaskCreated()
	e.emit(events.RewardTaskCreated{
		TaskID:       id,
		Name:         task.Name,
		Creator:      caller,
		Root:         task.MembershipRoot,
		RewardAmount: cloneBigInt(task.RewardAmount),
		TotalPool:    cloneBigInt(task.TotalPool),
		MaxClaims:    task.MaxClaims,
		StartTime:    int64(task.StartTime),
		EndTime:      int64(task.EndTime),
	})
	return id, nil
}

// UpdateMembershipRoot replaces the commitment gating a task's claims.
// Requires RoleValidator. Existing claim records survive the swap: an
// identity that already claimed stays claimed under the new root.
func (e *Engine) UpdateMembershipRoot(caller [20]byte, id uint64, newRoot [32]byte) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if e.state == nil {
		return ErrNilState
	}
	if !e.state.HasRole(RoleValidator, caller[:]) {
		return ErrUnauthorized
	}
	task, found, err := e.loadTask(id)
	if err != nil {
		return err
	}
	if !found {
		return ErrTaskNotFound
	}
	oldRoot := task.MembershipRoot
	task.MembershipRoot = newRoot
	if err := e.storeTask(task); err != nil {
		return err
	}
	e.emit(events.RewardRootUpdated{TaskID: id, OldRoot: oldRoot, NewRoot: newRoot, Caller: caller})
	return nil
}

// DeactivateTask disables claims for a task regardless of the time window.
func (e *Engine) DeactivateTask(caller [20]byte, id uint64) error {
	return e.setActive(caller, id, false)
}

// ReactivateTask re-enables claims for a previously deactivated task.
func (e *Engine) ReactivateTask(caller [20]byte, id uint64) error {
	return e.setActive(caller, id, true)
}

func (e *Engine) setActive(caller [20]byte, id uint64, active bool) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if e.state == nil {
		return ErrNilState
	}
	if !e.state.HasRole(RoleAdmin, caller[:]) {
		return ErrUnauthorized
	}
	task, found, err := e.loadTask(id)
	if err != nil {
		return err
	}
	if !found {
		return ErrTaskNotFound
	}
	task.Active = active
	if err := e.storeTask(task); err != nil {
		return err
	}
	if active {
		e.emit(events.RewardTaskReactivated{TaskID: id, Caller: caller})
	} else {
		e.emit(events.RewardTaskDeactivated{TaskID: id, Caller: caller})
	}
	return nil
}

// IncreaseRewardPool escrows additional funds into a task's pool.
func (e *Engine) IncreaseRewardPool(caller [20]byte, id uint64, amount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if e.state == nil {
		return ErrNilState
	}
	if !e.state.HasRole(RoleAdmin, caller[:]) {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: top-up must be positive", ErrInvalidAmount)
	}
	task, found, err := e.loadTask(id)
	if err != nil {
		return err
	}
	if !found {
		return ErrTaskNotFound
	}
	if err := e.state.Transfer(caller[:], e.vault[:], e.token, amount); err != nil {
		return fmt.Errorf("rewards: escrow deposit failed: %w", err)
	}
	task.TotalPool = new(big.Int).Add(task.TotalPool, amount)
	if err := e.storeTask(task); err != nil {
		_ = e.state.Transfer(e.vault[:], caller[:], e.token, amount)
		return err
	}
	e.emit(events.RewardPoolIncreased{
		TaskID:    id,
		Amount:    cloneBigInt(amount),
		TotalPool: cloneBigInt(task.TotalPool),
		Caller:    caller,
	})
	return nil
}

// WithdrawUnclaimed sweeps a task's unclaimed balance back to the caller once
// the claim window has closed. The operation is idempotent: a second sweep
// finds nothing to move and succeeds returning zero.
func (e *Engine) WithdrawUnclaimed(caller [20]byte, id uint64) (*big.Int, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if e.state == nil {
		return nil, ErrNilState
	}
	if !e.state.HasRole(RoleAdmin, caller[:]) {
		return nil, ErrUnauthorized
	}
	task, found, err := e.loadTask(id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrTaskNotFound
	}
	if uint64(e.now()) <= task.EndTime {
		return nil, ErrTaskNotEnded
	}
	unclaimed := new(big.Int).Sub(task.TotalPool, task.ClaimedAmount)
	if unclaimed.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	prior := task.Clone()
	task.TotalPool = cloneBigInt(task.ClaimedAmount)
	if err := e.storeTask(task); err != nil {
		return nil, err
	}
	if err := e.state.Transfer(e.vault[:], caller[:], e.token, unclaimed); err != nil {
		_ = e.storeTask(prior)
		return nil, fmt.Errorf("rewards: sweep payout failed: %w", err)
	}
	e.metrics.UnclaimedSwept()
	e.emit(events.RewardUnclaimedWithdrawn{TaskID: id, Amount: cloneBigInt(unclaimed), Caller: caller})
	return unclaimed, nil
}

// Claim pays the task's fixed reward to the claimant when every authorization
// check passes. Checks run in a fixed order so the error a caller observes is
// deterministic when several conditions are violated at once. The operation
// is all-or-nothing: a failed payout rolls back the claim record and the task
// counters before returning.
func (e *Engine) Claim(claimant [20]byte, id uint64, proof [][32]byte) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.claim(claimant, id, proof); err != nil {
		e.metrics.ClaimRejected(rejectionReason(err))
		return err
	}
	return nil
}

func (e *Engine) claim(claimant [20]byte, id uint64, proof [][32]byte) error {
	if e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	task, found, err := e.loadTask(id)
	if err != nil {
		return err
	}
	// A nonexistent task is indistinguishable from an inactive one on
	// purpose: probing claim calls learn nothing about the id space.
	if !found || !task.Active {
		return ErrTaskNotActive
	}
	now := uint64(e.now())
	if now < task.StartTime {
		return ErrTaskNotStarted
	}
	if now > task.EndTime {
		return ErrTaskEnded
	}
	record := claimKey(id, claimant)
	claimed, err := e.state.KVGet(record, nil)
	if err != nil {
		return err
	}
	if claimed {
		return ErrAlreadyClaimed
	}
	if task.ClaimCount >= task.MaxClaims {
		return ErrMaxClaimsReached
	}
	projected := new(big.Int).Add(task.ClaimedAmount, task.RewardAmount)
	if projected.Cmp(task.TotalPool) > 0 {
		return ErrInsufficientRewardPool
	}
	if !merkle.Verify(task.MembershipRoot, e.leafHash(claimant[:]), proof) {
		return ErrInvalidProof
	}

	prior := task.Clone()
	priorDistributed, err := e.loadDistributed()
	if err != nil {
		return err
	}
	task.ClaimedAmount = projected
	task.ClaimCount++
	if err := e.state.KVPut(record, true); err != nil {
		return err
	}
	if err := e.storeTask(task); err != nil {
		_ = e.state.KVDelete(record)
		return err
	}
	distributed := new(big.Int).Add(priorDistributed, task.RewardAmount)
	if err := e.state.KVPut(totalDistributedKey, distributed); err != nil {
		_ = e.state.KVDelete(record)
		_ = e.storeTask(prior)
		return err
	}
	if err := e.state.Transfer(e.vault[:], claimant[:], e.token, task.RewardAmount); err != nil {
		_ = e.state.KVDelete(record)
		_ = e.storeTask(prior)
		_ = e.state.KVPut(totalDistributedKey, priorDistributed)
		return fmt.Errorf("rewards: payout failed: %w", err)
	}
	e.metrics.ClaimServed(strconv.FormatUint(id, 10))
	e.metrics.SetTotalDistributed(distributed)
	e.emit(events.RewardClaimed{TaskID: id, Claimant: claimant, Amount: cloneBigInt(task.RewardAmount)})
	return nil
}

// HasClaimed reports whether the identity already received its payout for the
// task.
func (e *Engine) HasClaimed(id uint64, claimant [20]byte) (bool, error) {
	if e.state == nil {
		return false, ErrNilState
	}
	return e.state.KVGet(claimKey(id, claimant), nil)
}

// IsEligible answers the narrow question "does this proof place the identity
// under the task's current root, and is it still unclaimed". It deliberately
// skips the window, active-flag and pool checks Claim enforces, so a true
// result does not promise that a claim would currently succeed.
func (e *Engine) IsEligible(id uint64, identity []byte, proof [][32]byte) (bool, error) {
	if e.state == nil {
		return false, ErrNilState
	}
	task, found, err := e.loadTask(id)
	if err != nil {
		return false, err
	}
	if !found {
		return false, ErrTaskNotFound
	}
	if len(identity) == 20 {
		var addr [20]byte
		copy(addr[:], identity)
		claimed, err := e.state.KVGet(claimKey(id, addr), nil)
		if err != nil {
			return false, err
		}
		if claimed {
			return false, nil
		}
	}
	return merkle.Verify(task.MembershipRoot, e.leafHash(identity), proof), nil
}

// GetTask retrieves a snapshot of a task by its identifier.
func (e *Engine) GetTask(id uint64) (*Task, bool) {
	task, found, err := e.loadTask(id)
	if err != nil || !found {
		return nil, false
	}
	return task.Clone(), true
}

// RemainingRewards returns the funds still claimable from a task's pool.
func (e *Engine) RemainingRewards(id uint64) (*big.Int, error) {
	task, found, err := e.loadTask(id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrTaskNotFound
	}
	return new(big.Int).Sub(task.TotalPool, task.ClaimedAmount), nil
}

// RemainingClaims returns the number of claim slots left on a task.
func (e *Engine) RemainingClaims(id uint64) (uint64, error) {
	task, found, err := e.loadTask(id)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrTaskNotFound
	}
	return task.MaxClaims - task.ClaimCount, nil
}

// TotalDistributed returns the cumulative payouts across all tasks. The
// counter is informational and never consulted by the authorization path.
func (e *Engine) TotalDistributed() (*big.Int, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	return e.loadDistributed()
}

// PoolBalance returns the funds currently held by the module vault.
func (e *Engine) PoolBalance() (*big.Int, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	return e.state.Balance(e.vault[:], e.token)
}

func rejectionReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, nativecommon.ErrModulePaused):
		return "paused"
	case errors.Is(err, ErrTaskNotActive):
		return "not_active"
	case errors.Is(err, ErrTaskNotStarted):
		return "not_started"
	case errors.Is(err, ErrTaskEnded):
		return "ended"
	case errors.Is(err, ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ErrMaxClaimsReached):
		return "max_claims"
	case errors.Is(err, ErrInsufficientRewardPool):
		return "pool_exhausted"
	case errors.Is(err, ErrInvalidProof):
		return "invalid_proof"
	default:
		return "internal"
	}
}
