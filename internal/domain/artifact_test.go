package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeArtifactEnvelope(t *testing.T) {
	artifact, err := DecodeArtifact(json.RawMessage(`{"steps":[{"type":"log"},{"type":"echo","params":{"a":1}}]}`))
	if err != nil {
		t.Fatalf("DecodeArtifact returned error: %v", err)
	}
	if len(artifact.Steps) != 2 || artifact.Steps[1].Type != "echo" {
		t.Fatalf("unexpected steps: %+v", artifact.Steps)
	}
}

func TestDecodeArtifactBareArray(t *testing.T) {
	artifact, err := DecodeArtifact(json.RawMessage(`[{"type":"log"}]`))
	if err != nil {
		t.Fatalf("DecodeArtifact returned error: %v", err)
	}
	if len(artifact.Steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(artifact.Steps))
	}
}

func TestDecodeArtifactEmpty(t *testing.T) {
	for _, raw := range []json.RawMessage{nil, json.RawMessage(`{"steps":[]}`), json.RawMessage(`[]`)} {
		if _, err := DecodeArtifact(raw); !errors.Is(err, ErrEmptyArtifact) {
			t.Fatalf("expected ErrEmptyArtifact for %q, got %v", raw, err)
		}
	}
}

func TestDecodeArtifactRejectsUntypedStep(t *testing.T) {
	if _, err := DecodeArtifact(json.RawMessage(`{"steps":[{"params":{}}]}`)); err == nil {
		t.Fatal("expected error for step without type")
	}
}
