package execution

import "errors"

// Service errors surfaced to transport layers.
var (
	ErrNotOwner        = errors.New("execution does not belong to user")
	ErrNotDeployed     = errors.New("bot has no active deployment in environment")
	ErrInvalidTrigger  = errors.New("unknown trigger type")
	ErrAlreadyTerminal = errors.New("execution already reached a terminal status")
)
