package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"rewardnet/crypto"
	nativecommon "rewardnet/native/common"
	"rewardnet/native/rewards"
)

const (
	codeRewardsInvalidParams = -32061
	codeRewardsForbidden     = -32062
	codeRewardsNotFound      = -32063
	codeRewardsConflict      = -32064
	codeRewardsInternal      = -32065
)

type createTaskParams struct {
	Caller       string `json:"caller"`
	Name         string `json:"name"`
	Root         string `json:"root"`
	RewardAmount string `json:"rewardAmount"`
	TotalPool    string `json:"totalPool"`
	MaxClaims    uint64 `json:"maxClaims"`
	StartTime    uint64 `json:"startTime"`
	EndTime      uint64 `json:"endTime"`
}

type taskIDParams struct {
	Caller string `json:"caller,omitempty"`
	TaskID uint64 `json:"taskId"`
}

type updateRootParams struct {
	Caller  string `json:"caller"`
	TaskID  uint64 `json:"taskId"`
	NewRoot string `json:"newRoot"`
}

type increasePoolParams struct {
	Caller string `json:"caller"`
	TaskID uint64 `json:"taskId"`
	Amount string `json:"amount"`
}

type claimParams struct {
	Claimant string   `json:"claimant"`
	TaskID   uint64   `json:"taskId"`
	Proof    []string `json:"proof"`
}

type isEligibleParams struct {
	TaskID   uint64   `json:"taskId"`
	Identity string   `json:"identity"`
	Proof    []string `json:"proof"`
}

type createTaskResult struct {
	TaskID uint64 `json:"taskId"`
}

type okResult struct {
	OK bool `json:"ok"`
}

type withdrawResult struct {
	Amount string `json:"amount"`
}

type eligibleResult struct {
	Eligible bool `json:"eligible"`
}

type remainingResult struct {
	Rewards string `json:"rewards"`
	Claims  uint64 `json:"claims"`
}

type totalDistributedResult struct {
	Total string `json:"total"`
}

type taskJSON struct {
	TaskID        uint64 `json:"taskId"`
	Name          string `json:"name"`
	Root          string `json:"root"`
	RewardAmount  string `json:"rewardAmount"`
	TotalPool     string `json:"totalPool"`
	ClaimedAmount string `json:"claimedAmount"`
	MaxClaims     uint64 `json:"maxClaims"`
	ClaimCount    uint64 `json:"claimCount"`
	StartTime     uint64 `json:"startTime"`
	EndTime       uint64 `json:"endTime"`
	CreatedAt     uint64 `json:"createdAt"`
	Active        bool   `json:"active"`
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddress(value string) ([20]byte, error) {
	var out [20]byte
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, err
	}
	copy(out[:], decoded.Bytes())
	return out, nil
}

func parseRoot(value string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("invalid root encoding: %w", err)
	}
	if len(decoded) != 32 {
		return out, fmt.Errorf("root must be 32 bytes, got %d", len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}

func parseProof(entries []string) ([][32]byte, error) {
	proof := make([][32]byte, 0, len(entries))
	for i, entry := range entries {
		node, err := parseRoot(entry)
		if err != nil {
			return nil, fmt.Errorf("proof element %d: %w", i, err)
		}
		proof = append(proof, node)
	}
	return proof, nil
}

func parsePositiveBigInt(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

func writeRewardsError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, rewards.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeRewardsForbidden, "forbidden", err.Error())
	case errors.Is(err, rewards.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, id, codeRewardsNotFound, "not_found", err.Error())
	case errors.Is(err, rewards.ErrInvalidAmount), errors.Is(err, rewards.ErrInvalidTimeRange), errors.Is(err, rewards.ErrNilDefinition):
		writeError(w, http.StatusBadRequest, id, codeRewardsInvalidParams, "invalid_params", err.Error())
	case errors.Is(err, rewards.ErrTaskNotActive),
		errors.Is(err, rewards.ErrTaskNotStarted),
		errors.Is(err, rewards.ErrTaskEnded),
		errors.Is(err, rewards.ErrTaskNotEnded),
		errors.Is(err, rewards.ErrAlreadyClaimed),
		errors.Is(err, rewards.ErrMaxClaimsReached),
		errors.Is(err, rewards.ErrInsufficientRewardPool),
		errors.Is(err, rewards.ErrInvalidProof),
		errors.Is(err, rewards.ErrReentrantCall),
		errors.Is(err, nativecommon.ErrModulePaused):
		writeError(w, http.StatusConflict, id, codeRewardsConflict, "conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeRewardsInternal, "internal_error", err.Error())
	}
}

func (s *Server) handleCreateTask(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params createTaskParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", err.Error())
		return
	}
	root, err := parseRoot(params.Root)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", err.Error())
		return
	}
	reward, err := parsePositiveBigInt(params.RewardAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", err.Error())
		return
	}
	pool, err := parsePositiveBigInt(params.TotalPool)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := s.engine.CreateTask(caller, &rewards.TaskDefinition{
		Name:           params.Name,
		MembershipRoot: root,
		RewardAmount:   reward,
		TotalPool:      pool,
		MaxClaims:      params.MaxClaims,
		StartTime:      params.StartTime,
		EndTime:        params.EndTime,
	})
	if err != nil {
		writeRewardsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, createTaskResult{TaskID: id})
}

func (s *Server) handleUpdateRoot(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params updateRootParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", err.Error())
		return
	}
	newRoot, err := parseRoot(params.NewRoot)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.UpdateMembershipRoot(caller, params.TaskID, newRoot); err != nil {
		writeRewardsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleSetActive(w http.ResponseWriter, _ *http.Request, req *RPCRequest, active bool) {
	var params taskIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", err.Error())
		return
	}
	if active {
		err = s.engine.ReactivateTask(caller, params.TaskID)
	} else {
		err = s.engine.DeactivateTask(caller, params.TaskID)
	}
	if err != nil {
		writeRewardsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleIncreasePool(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params increasePoolParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.IncreaseRewardPool(caller, params.TaskID, amount); err != nil {
		writeRewardsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleWithdrawUnclaimed(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params taskIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := s.engine.WithdrawUnclaimed(caller, params.TaskID)
	if err != nil {
		writeRewardsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, withdrawResult{Amount: amount.String()})
}

func (s *Server) handleClaim(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params claimParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", err.Error())
		return
	}
	claimant, err := parseAddress(params.Claimant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", err.Error())
		return
	}
	proof, err := parseProof(params.Proof)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.engine.Claim(claimant, params.TaskID, proof); err != nil {
		writeRewardsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleGetTask(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params taskIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", err.Error())
		return
	}
	task, ok := s.engine.GetTask(params.TaskID)
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeRewardsNotFound, "not_found", "task not found")
		return
	}
	writeResult(w, req.ID, taskJSON{
		TaskID:        task.ID,
		Name:          task.Name,
		Root:          hex.EncodeToString(task.MembershipRoot[:]),
		RewardAmount:  task.RewardAmount.String(),
		TotalPool:     task.TotalPool.String(),
		ClaimedAmount: task.ClaimedAmount.String(),
		MaxClaims:     task.MaxClaims,
		ClaimCount:    task.ClaimCount,
		StartTime:     task.StartTime,
		EndTime:       task.EndTime,
		CreatedAt:     task.CreatedAt,
		Active:        task.Active,
	})
}

func (s *Server) handleIsEligible(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params isEligibleParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", err.Error())
		return
	}
	identity, err := parseAddress(params.Identity)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", err.Error())
		return
	}
	proof, err := parseProof(params.Proof)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", err.Error())
		return
	}
	eligible, err := s.engine.IsEligible(params.TaskID, identity[:], proof)
	if err != nil {
		writeRewardsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, eligibleResult{Eligible: eligible})
}

func (s *Server) handleRemaining(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params taskIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRewardsInvalidParams, "invalid_params", err.Error())
		return
	}
	remaining, err := s.engine.RemainingRewards(params.TaskID)
	if err != nil {
		writeRewardsError(w, req.ID, err)
		return
	}
	claims, err := s.engine.RemainingClaims(params.TaskID)
	if err != nil {
		writeRewardsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, remainingResult{Rewards: remaining.String(), Claims: claims})
}

func (s *Server) handleTotalDistributed(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	total, err := s.engine.TotalDistributed()
	if err != nil {
		writeRewardsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, totalDistributedResult{Total: total.String()})
}
