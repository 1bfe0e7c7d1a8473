package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/botforge/botforge/internal/domain"
)

// StepResult carries the outcome of one executed step. Output becomes the
// input of the next step in the artifact.
type StepResult struct {
	Output       json.RawMessage
	Console      []string
	TokensUsed   int64
	APICallsMade int64
}

// StepExecutor runs a single compiled step. The runtime treats steps as
// opaque and delegates all interpretation here.
type StepExecutor interface {
	ExecuteStep(ctx context.Context, step domain.Step, input json.RawMessage) (*StepResult, error)
}

// LocalExecutor interprets the built-in step vocabulary in-process.
type LocalExecutor struct {
	// MaxDelay caps delay steps so a misbehaving artifact cannot hold a
	// worker indefinitely.
	MaxDelay time.Duration
}

const defaultMaxDelay = 10 * time.Second

// ExecuteStep dispatches on the step type.
func (e *LocalExecutor) ExecuteStep(ctx context.Context, step domain.Step, input json.RawMessage) (*StepResult, error) {
	switch step.Type {
	case "log":
		return e.logStep(step, input)
	case "echo":
		return &StepResult{Output: step.Params}, nil
	case "transform":
		return e.transformStep(step, input)
	case "delay":
		return e.delayStep(ctx, step, input)
	case "fail":
		return nil, e.failStep(step)
	default:
		return nil, fmt.Errorf("unsupported step type %q", step.Type)
	}
}

func (e *LocalExecutor) logStep(step domain.Step, input json.RawMessage) (*StepResult, error) {
	var params struct {
		Message string `json:"message"`
	}
	if len(step.Params) > 0 {
		if err := json.Unmarshal(step.Params, &params); err != nil {
			return nil, fmt.Errorf("log step params: %w", err)
		}
	}
	return &StepResult{Output: input, Console: []string{params.Message}}, nil
}

func (e *LocalExecutor) transformStep(step domain.Step, input json.RawMessage) (*StepResult, error) {
	var params struct {
		Set map[string]json.RawMessage `json:"set"`
	}
	if len(step.Params) > 0 {
		if err := json.Unmarshal(step.Params, &params); err != nil {
			return nil, fmt.Errorf("transform step params: %w", err)
		}
	}
	doc := map[string]json.RawMessage{}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &doc); err != nil {
			return nil, fmt.Errorf("transform step input is not an object: %w", err)
		}
	}
	for key, value := range params.Set {
		doc[key] = value
	}
	output, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("transform step output: %w", err)
	}
	return &StepResult{Output: output}, nil
}

func (e *LocalExecutor) delayStep(ctx context.Context, step domain.Step, input json.RawMessage) (*StepResult, error) {
	var params struct {
		Milliseconds int64 `json:"ms"`
	}
	if len(step.Params) > 0 {
		if err := json.Unmarshal(step.Params, &params); err != nil {
			return nil, fmt.Errorf("delay step params: %w", err)
		}
	}
	maxDelay := e.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	delay := time.Duration(params.Milliseconds) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(delay):
	}
	return &StepResult{Output: input}, nil
}

func (e *LocalExecutor) failStep(step domain.Step) error {
	var params struct {
		Message string `json:"message"`
	}
	if len(step.Params) > 0 {
		if err := json.Unmarshal(step.Params, &params); err != nil {
			return fmt.Errorf("fail step params: %w", err)
		}
	}
	if params.Message == "" {
		params.Message = "step failed"
	}
	return fmt.Errorf("%s", params.Message)
}
