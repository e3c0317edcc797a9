package state_test

import (
	"errors"
	"math/big"
	"testing"

	"rewardnet/core/state"
	"rewardnet/storage"
)

func newTestManager(t *testing.T) *state.Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	manager := state.NewManager(db)
	if err := manager.RegisterToken("RWD", "Reward Token", 18); err != nil {
		t.Fatalf("register token: %v", err)
	}
	return manager
}

func TestRegisterTokenRejectsDuplicates(t *testing.T) {
	manager := newTestManager(t)
	if err := manager.RegisterToken("rwd", "Reward Token", 18); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if !manager.TokenExists("RWD") {
		t.Fatalf("expected token to be registered")
	}
	list, err := manager.TokenList()
	if err != nil {
		t.Fatalf("token list: %v", err)
	}
	if len(list) != 1 || list[0] != "RWD" {
		t.Fatalf("unexpected token list: %v", list)
	}
}

func TestBalancesAndTransfer(t *testing.T) {
	manager := newTestManager(t)
	alice := []byte{0x01, 0x02}
	bob := []byte{0x03, 0x04}

	if err := manager.SetBalance(alice, "RWD", big.NewInt(500)); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	if err := manager.Transfer(alice, bob, "RWD", big.NewInt(200)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	aliceBal, err := manager.Balance(alice, "RWD")
	if err != nil {
		t.Fatalf("alice balance: %v", err)
	}
	bobBal, err := manager.Balance(bob, "RWD")
	if err != nil {
		t.Fatalf("bob balance: %v", err)
	}
	if aliceBal.Int64() != 300 || bobBal.Int64() != 200 {
		t.Fatalf("unexpected balances: alice=%s bob=%s", aliceBal, bobBal)
	}
}

func TestTransferInsufficientBalanceLeavesStateUntouched(t *testing.T) {
	manager := newTestManager(t)
	alice := []byte{0x01}
	bob := []byte{0x02}

	if err := manager.SetBalance(alice, "RWD", big.NewInt(50)); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	err := manager.Transfer(alice, bob, "RWD", big.NewInt(100))
	if !errors.Is(err, state.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	aliceBal, _ := manager.Balance(alice, "RWD")
	bobBal, _ := manager.Balance(bob, "RWD")
	if aliceBal.Int64() != 50 || bobBal.Sign() != 0 {
		t.Fatalf("balances mutated on failed transfer: alice=%s bob=%s", aliceBal, bobBal)
	}
}

func TestRoles(t *testing.T) {
	manager := newTestManager(t)
	admin := []byte{0xAA}

	if manager.HasRole("ROLE_REWARDS_ADMIN", admin) {
		t.Fatalf("role must not exist before assignment")
	}
	if err := manager.SetRole("ROLE_REWARDS_ADMIN", admin); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if !manager.HasRole("ROLE_REWARDS_ADMIN", admin) {
		t.Fatalf("expected role membership")
	}
	// Duplicate assignment is a no-op.
	if err := manager.SetRole("ROLE_REWARDS_ADMIN", admin); err != nil {
		t.Fatalf("duplicate set role: %v", err)
	}
	members, err := manager.RoleMembers("ROLE_REWARDS_ADMIN")
	if err != nil {
		t.Fatalf("role members: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected one member, got %d", len(members))
	}
}

func TestPauseFlags(t *testing.T) {
	manager := newTestManager(t)
	if manager.IsPaused("rewards") {
		t.Fatalf("modules must start unpaused")
	}
	if err := manager.SetPaused("rewards", true); err != nil {
		t.Fatalf("set paused: %v", err)
	}
	if !manager.IsPaused("rewards") {
		t.Fatalf("expected module to be paused")
	}
	if err := manager.SetPaused("rewards", false); err != nil {
		t.Fatalf("unset paused: %v", err)
	}
	if manager.IsPaused("rewards") {
		t.Fatalf("expected module to be unpaused")
	}
}

// faultyDB fails every read once armed, imitating a disk fault underneath an
// otherwise healthy store.
type faultyDB struct {
	storage.Database
	broken bool
}

func (db *faultyDB) Get(key []byte) ([]byte, error) {
	if db.broken {
		return nil, errors.New("disk read fault")
	}
	return db.Database.Get(key)
}

func TestReadFaultsPropagate(t *testing.T) {
	inner := storage.NewMemDB()
	t.Cleanup(inner.Close)
	db := &faultyDB{Database: inner}
	manager := state.NewManager(db)
	if err := manager.RegisterToken("RWD", "Reward Token", 18); err != nil {
		t.Fatalf("register token: %v", err)
	}
	alice := []byte{0x01}
	if err := manager.SetBalance(alice, "RWD", big.NewInt(500)); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	if err := manager.KVPut([]byte("rewards/test"), uint64(7)); err != nil {
		t.Fatalf("kv put: %v", err)
	}

	db.broken = true
	// A failed read must surface as an error, never as a zero balance or an
	// absent record.
	if _, err := manager.Balance(alice, "RWD"); err == nil {
		t.Fatalf("expected balance read to fail")
	}
	var out uint64
	if _, err := manager.KVGet([]byte("rewards/test"), &out); err == nil {
		t.Fatalf("expected kv read to fail")
	}
	if err := manager.Transfer(alice, []byte{0x02}, "RWD", big.NewInt(10)); err == nil {
		t.Fatalf("expected transfer to fail on read fault")
	}

	db.broken = false
	bal, err := manager.Balance(alice, "RWD")
	if err != nil || bal.Int64() != 500 {
		t.Fatalf("state must be intact after fault clears: bal=%v err=%v", bal, err)
	}
}

func TestKVHelpers(t *testing.T) {
	manager := newTestManager(t)
	type record struct {
		Name  string
		Count uint64
	}

	if err := manager.KVPut([]byte("rewards/test"), &record{Name: "spring", Count: 3}); err != nil {
		t.Fatalf("kv put: %v", err)
	}
	out := new(record)
	found, err := manager.KVGet([]byte("rewards/test"), out)
	if err != nil || !found {
		t.Fatalf("kv get: found=%v err=%v", found, err)
	}
	if out.Name != "spring" || out.Count != 3 {
		t.Fatalf("unexpected record: %+v", out)
	}

	if err := manager.KVDelete([]byte("rewards/test")); err != nil {
		t.Fatalf("kv delete: %v", err)
	}
	found, err = manager.KVGet([]byte("rewards/test"), new(record))
	if err != nil {
		t.Fatalf("kv get after delete: %v", err)
	}
	if found {
		t.Fatalf("expected record to be deleted")
	}

	if err := manager.KVAppend([]byte("rewards/index"), []byte{0x01}); err != nil {
		t.Fatalf("kv append: %v", err)
	}
	if err := manager.KVAppend([]byte("rewards/index"), []byte{0x01}); err != nil {
		t.Fatalf("kv append duplicate: %v", err)
	}
	var list [][]byte
	if err := manager.KVGetList([]byte("rewards/index"), &list); err != nil {
		t.Fatalf("kv get list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("duplicates must be ignored, got %d entries", len(list))
	}

	var empty [][]byte
	if err := manager.KVGetList([]byte("rewards/empty"), &empty); err != nil {
		t.Fatalf("kv get empty list: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected initialised empty slice")
	}
}
