package rewards

import "errors"

var (
	// ErrUnauthorized is the authorization failure family: the caller lacks
	// the role the operation requires. Distinct from the domain-state errors
	// below so UIs can tell "not allowed" from "claim invalid".
	ErrUnauthorized = errors.New("rewards: unauthorized")

	ErrNilDefinition          = errors.New("rewards: nil task definition")
	ErrInvalidAmount          = errors.New("rewards: invalid amount")
	ErrInvalidTimeRange       = errors.New("rewards: invalid time range")
	ErrTaskNotFound           = errors.New("rewards: task not found")
	ErrTaskNotActive          = errors.New("rewards: task not active")
	ErrTaskNotStarted         = errors.New("rewards: task not started")
	ErrTaskEnded              = errors.New("rewards: task ended")
	ErrTaskNotEnded           = errors.New("rewards: task not ended")
	ErrAlreadyClaimed         = errors.New("rewards: already claimed")
	ErrMaxClaimsReached       = errors.New("rewards: max claims reached")
	ErrInsufficientRewardPool = errors.New("rewards: insufficient reward pool")
	ErrInvalidProof           = errors.New("rewards: invalid proof")
	ErrReentrantCall          = errors.New("rewards: reentrant call")
	ErrNilState               = errors.New("rewards: state not configured")
)
