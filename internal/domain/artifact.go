package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Step is one abstract unit of work inside a compiled bot artifact. The
// pipeline and runtime treat params as opaque; execution is delegated to an
// injected step executor.
type Step struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

// CompiledArtifact is the opaque compiled form of a bot: an ordered sequence
// of step descriptors produced by the external compiler.
type CompiledArtifact struct {
	Steps []Step `json:"steps"`
}

// ErrEmptyArtifact indicates a compiled artifact with no steps.
var ErrEmptyArtifact = errors.New("compiled artifact has no steps")

// DecodeArtifact parses a compiled artifact payload. Both the canonical
// {"steps": [...]} envelope and a bare step array are accepted.
func DecodeArtifact(raw json.RawMessage) (*CompiledArtifact, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyArtifact
	}
	var artifact CompiledArtifact
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(raw, &artifact.Steps); err != nil {
			return nil, fmt.Errorf("decode step list: %w", err)
		}
	} else {
		if err := json.Unmarshal(raw, &artifact); err != nil {
			return nil, fmt.Errorf("decode artifact: %w", err)
		}
	}
	if len(artifact.Steps) == 0 {
		return nil, ErrEmptyArtifact
	}
	for i, step := range artifact.Steps {
		if strings.TrimSpace(step.Type) == "" {
			return nil, fmt.Errorf("step %d has no type", i)
		}
	}
	return &artifact, nil
}
