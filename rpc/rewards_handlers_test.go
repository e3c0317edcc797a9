package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"rewardnet/core/state"
	"rewardnet/crypto"
	"rewardnet/crypto/merkle"
	"rewardnet/native/rewards"
	"rewardnet/storage"
)

type rewardsTestEnv struct {
	server  *Server
	manager *state.Manager
	token   string
	now     int64
	admin   [20]byte
}

func testAddr(last byte) [20]byte {
	var a [20]byte
	a[19] = last
	return a
}

func bech(a [20]byte) string {
	return crypto.NewAddress(crypto.RWDPrefix, a[:]).String()
}

func newRewardsTestEnv(t *testing.T) *rewardsTestEnv {
	t.Helper()
	token := "test-token"
	if err := os.Setenv("REWARDNET_RPC_TOKEN", token); err != nil {
		t.Fatalf("set env: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Unsetenv("REWARDNET_RPC_TOKEN")
	})

	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	manager := state.NewManager(db)
	if err := manager.RegisterToken("RWD", "Reward Token", 18); err != nil {
		t.Fatalf("register token: %v", err)
	}

	env := &rewardsTestEnv{manager: manager, token: token, now: 1_000_000, admin: testAddr(0xAD)}
	if err := manager.SetRole(rewards.RoleAdmin, env.admin[:]); err != nil {
		t.Fatalf("set admin role: %v", err)
	}
	if err := manager.SetBalance(env.admin[:], "RWD", big.NewInt(1_000_000)); err != nil {
		t.Fatalf("fund admin: %v", err)
	}

	engine := rewards.NewEngine("RWD")
	engine.SetState(manager)
	engine.SetPauses(manager)
	engine.SetNowFunc(func() int64 { return env.now })
	env.server = NewServer(engine, nil)
	return env
}

func (env *rewardsTestEnv) call(t *testing.T, method string, params interface{}, authed bool) (json.RawMessage, *RPCError) {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	body, err := json.Marshal(&RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  method,
		Params:  []json.RawMessage{raw},
		ID:      1,
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if authed {
		req.Header.Set("Authorization", "Bearer "+env.token)
	}
	rec := httptest.NewRecorder()
	env.server.handle(rec, req)

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Result, resp.Error
}

func membershipTree(t *testing.T, members ...[20]byte) (*merkle.Tree, map[[20]byte]int) {
	t.Helper()
	leaves := make([][32]byte, 0, len(members))
	for _, m := range members {
		leaves = append(leaves, merkle.LeafHash(m[:]))
	}
	merkle.SortLeaves(leaves)
	index := make(map[[20]byte]int, len(members))
	for _, m := range members {
		leaf := merkle.LeafHash(m[:])
		for i, l := range leaves {
			if l == leaf {
				index[m] = i
				break
			}
		}
	}
	tree, err := merkle.NewTree(leaves, merkle.DefaultOddNodePolicy)
	if err != nil {
		t.Fatalf("build tree: %v", err)
	}
	return tree, index
}

func hexProof(t *testing.T, tree *merkle.Tree, index int) []string {
	t.Helper()
	proof, err := tree.Proof(index)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	out := make([]string, 0, len(proof))
	for _, node := range proof {
		out = append(out, hex.EncodeToString(node[:]))
	}
	return out
}

func TestCreateTaskRequiresAuth(t *testing.T) {
	env := newRewardsTestEnv(t)
	_, rpcErr := env.call(t, "rewards_createTask", createTaskParams{
		Caller:       bech(env.admin),
		Name:         "drop",
		Root:         hex.EncodeToString(make([]byte, 32)),
		RewardAmount: "100",
		TotalPool:    "300",
		MaxClaims:    3,
		StartTime:    uint64(env.now),
		EndTime:      uint64(env.now) + 3600,
	}, false)
	if rpcErr == nil || rpcErr.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized error, got %+v", rpcErr)
	}
}

func TestCreateAndClaimOverRPC(t *testing.T) {
	env := newRewardsTestEnv(t)
	claimant := testAddr(0x01)
	tree, index := membershipTree(t, claimant, testAddr(0x02), testAddr(0x03))
	root := tree.Root()

	result, rpcErr := env.call(t, "rewards_createTask", createTaskParams{
		Caller:       bech(env.admin),
		Name:         "spring airdrop",
		Root:         hex.EncodeToString(root[:]),
		RewardAmount: "100",
		TotalPool:    "300",
		MaxClaims:    3,
		StartTime:    uint64(env.now),
		EndTime:      uint64(env.now) + 3600,
	}, true)
	if rpcErr != nil {
		t.Fatalf("create task: %+v", rpcErr)
	}
	var created createTaskResult
	if err := json.Unmarshal(result, &created); err != nil {
		t.Fatalf("decode create result: %v", err)
	}
	if created.TaskID != 1 {
		t.Fatalf("unexpected task id %d", created.TaskID)
	}

	result, rpcErr = env.call(t, "rewards_claim", claimParams{
		Claimant: bech(claimant),
		TaskID:   created.TaskID,
		Proof:    hexProof(t, tree, index[claimant]),
	}, false)
	if rpcErr != nil {
		t.Fatalf("claim: %+v", rpcErr)
	}
	var ok okResult
	if err := json.Unmarshal(result, &ok); err != nil {
		t.Fatalf("decode claim result: %v", err)
	}
	if !ok.OK {
		t.Fatalf("claim not acknowledged")
	}
	balance, err := env.manager.Balance(claimant[:], "RWD")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected claimant balance %s", balance)
	}

	// Second claim for the same claimant must surface a conflict.
	_, rpcErr = env.call(t, "rewards_claim", claimParams{
		Claimant: bech(claimant),
		TaskID:   created.TaskID,
		Proof:    hexProof(t, tree, index[claimant]),
	}, false)
	if rpcErr == nil || rpcErr.Code != codeRewardsConflict {
		t.Fatalf("expected conflict on double claim, got %+v", rpcErr)
	}
}

func TestClaimRejectsOutsiderProof(t *testing.T) {
	env := newRewardsTestEnv(t)
	member := testAddr(0x01)
	outsider := testAddr(0x09)
	tree, index := membershipTree(t, member, testAddr(0x02))
	root := tree.Root()

	result, rpcErr := env.call(t, "rewards_createTask", createTaskParams{
		Caller:       bech(env.admin),
		Name:         "gated drop",
		Root:         hex.EncodeToString(root[:]),
		RewardAmount: "50",
		TotalPool:    "100",
		MaxClaims:    2,
		StartTime:    uint64(env.now),
		EndTime:      uint64(env.now) + 3600,
	}, true)
	if rpcErr != nil {
		t.Fatalf("create task: %+v", rpcErr)
	}
	var created createTaskResult
	if err := json.Unmarshal(result, &created); err != nil {
		t.Fatalf("decode create result: %v", err)
	}

	_, rpcErr = env.call(t, "rewards_claim", claimParams{
		Claimant: bech(outsider),
		TaskID:   created.TaskID,
		Proof:    hexProof(t, tree, index[member]),
	}, false)
	if rpcErr == nil || rpcErr.Code != codeRewardsConflict {
		t.Fatalf("expected conflict for outsider proof, got %+v", rpcErr)
	}
}

func TestClaimRateLimit(t *testing.T) {
	env := newRewardsTestEnv(t)
	env.server.SetClaimRateLimit(60, 1)
	claimant := testAddr(0x01)
	tree, index := membershipTree(t, claimant, testAddr(0x02))

	params := claimParams{
		Claimant: bech(claimant),
		TaskID:   99,
		Proof:    hexProof(t, tree, index[claimant]),
	}
	// First request passes the limiter (and fails later on the unknown task).
	_, rpcErr := env.call(t, "rewards_claim", params, false)
	if rpcErr == nil || rpcErr.Message == "rate limit exceeded" {
		t.Fatalf("first request should reach the engine, got %+v", rpcErr)
	}
	_, rpcErr = env.call(t, "rewards_claim", params, false)
	if rpcErr == nil || rpcErr.Message != "rate limit exceeded" {
		t.Fatalf("expected rate limit rejection, got %+v", rpcErr)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	env := newRewardsTestEnv(t)
	_, rpcErr := env.call(t, "rewards_getTask", taskIDParams{TaskID: 42}, false)
	if rpcErr == nil || rpcErr.Code != codeRewardsNotFound {
		t.Fatalf("expected not found, got %+v", rpcErr)
	}
}

func TestCreateTaskRejectsMalformedRoot(t *testing.T) {
	env := newRewardsTestEnv(t)
	_, rpcErr := env.call(t, "rewards_createTask", createTaskParams{
		Caller:       bech(env.admin),
		Name:         "bad root",
		Root:         "0xdeadbeef",
		RewardAmount: "100",
		TotalPool:    "300",
		MaxClaims:    3,
		StartTime:    uint64(env.now),
		EndTime:      uint64(env.now) + 3600,
	}, true)
	if rpcErr == nil || rpcErr.Code != codeRewardsInvalidParams {
		t.Fatalf("expected invalid params, got %+v", rpcErr)
	}
}

func TestIsEligibleOverRPC(t *testing.T) {
	env := newRewardsTestEnv(t)
	member := testAddr(0x01)
	tree, index := membershipTree(t, member, testAddr(0x02), testAddr(0x03))
	root := tree.Root()

	result, rpcErr := env.call(t, "rewards_createTask", createTaskParams{
		Caller:       bech(env.admin),
		Name:         "eligibility check",
		Root:         hex.EncodeToString(root[:]),
		RewardAmount: "10",
		TotalPool:    "30",
		MaxClaims:    3,
		StartTime:    uint64(env.now),
		EndTime:      uint64(env.now) + 3600,
	}, true)
	if rpcErr != nil {
		t.Fatalf("create task: %+v", rpcErr)
	}
	var created createTaskResult
	if err := json.Unmarshal(result, &created); err != nil {
		t.Fatalf("decode create result: %v", err)
	}

	result, rpcErr = env.call(t, "rewards_isEligible", isEligibleParams{
		TaskID:   created.TaskID,
		Identity: bech(member),
		Proof:    hexProof(t, tree, index[member]),
	}, false)
	if rpcErr != nil {
		t.Fatalf("isEligible: %+v", rpcErr)
	}
	var eligible eligibleResult
	if err := json.Unmarshal(result, &eligible); err != nil {
		t.Fatalf("decode eligibility: %v", err)
	}
	if !eligible.Eligible {
		t.Fatalf("expected member to be eligible")
	}
}
