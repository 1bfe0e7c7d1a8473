package deploy

import "errors"

// Service errors surfaced to transport layers.
var (
	ErrNotOwner               = errors.New("deployment does not belong to user")
	ErrInvalidEnvironment     = errors.New("unknown deployment environment")
	ErrAlreadyTerminal        = errors.New("deployment already reached a terminal status")
	ErrInvalidPromotionSource = errors.New("promotion source must be a staging deployment")
	ErrInvalidRollbackTarget  = errors.New("rollback source is not a superseded deployment")
)

// BuildError marks a failure during the build stage.
type BuildError struct {
	Message string
	Stack   string
}

func (e *BuildError) Error() string { return "build failed: " + e.Message }

// DeployError marks a failure during the deploy stage.
type DeployError struct {
	Message string
	Stack   string
}

func (e *DeployError) Error() string { return "deploy failed: " + e.Message }
