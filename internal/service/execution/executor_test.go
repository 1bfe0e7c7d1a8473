package execution

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/botforge/botforge/internal/domain"
)

func TestLocalExecutorLogStep(t *testing.T) {
	exec := &LocalExecutor{}
	input := json.RawMessage(`{"a":1}`)

	result, err := exec.ExecuteStep(context.Background(), domain.Step{
		Type:   "log",
		Params: json.RawMessage(`{"message":"hello"}`),
	}, input)
	if err != nil {
		t.Fatalf("log step returned error: %v", err)
	}
	if string(result.Output) != string(input) {
		t.Fatalf("log step must pass input through, got %s", result.Output)
	}
	if len(result.Console) != 1 || result.Console[0] != "hello" {
		t.Fatalf("expected console line, got %v", result.Console)
	}
}

func TestLocalExecutorEchoStep(t *testing.T) {
	exec := &LocalExecutor{}

	result, err := exec.ExecuteStep(context.Background(), domain.Step{
		Type:   "echo",
		Params: json.RawMessage(`{"done":true}`),
	}, json.RawMessage(`{"ignored":1}`))
	if err != nil {
		t.Fatalf("echo step returned error: %v", err)
	}
	if string(result.Output) != `{"done":true}` {
		t.Fatalf("echo must output its params, got %s", result.Output)
	}
}

func TestLocalExecutorTransformStep(t *testing.T) {
	exec := &LocalExecutor{}

	result, err := exec.ExecuteStep(context.Background(), domain.Step{
		Type:   "transform",
		Params: json.RawMessage(`{"set":{"b":2}}`),
	}, json.RawMessage(`{"a":1}`))
	if err != nil {
		t.Fatalf("transform step returned error: %v", err)
	}
	var doc map[string]int
	if err := json.Unmarshal(result.Output, &doc); err != nil {
		t.Fatalf("transform output not decodable: %v", err)
	}
	if doc["a"] != 1 || doc["b"] != 2 {
		t.Fatalf("expected merged object, got %v", doc)
	}
}

func TestLocalExecutorTransformRejectsNonObjectInput(t *testing.T) {
	exec := &LocalExecutor{}

	_, err := exec.ExecuteStep(context.Background(), domain.Step{
		Type:   "transform",
		Params: json.RawMessage(`{"set":{"b":2}}`),
	}, json.RawMessage(`[1,2,3]`))
	if err == nil {
		t.Fatal("expected error for array input")
	}
}

func TestLocalExecutorDelayRespectsContext(t *testing.T) {
	exec := &LocalExecutor{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exec.ExecuteStep(ctx, domain.Step{
		Type:   "delay",
		Params: json.RawMessage(`{"ms":5000}`),
	}, nil)
	if err == nil {
		t.Fatal("expected context error from cancelled delay")
	}
}

func TestLocalExecutorDelayCapped(t *testing.T) {
	exec := &LocalExecutor{MaxDelay: 10 * time.Millisecond}
	start := time.Now()

	_, err := exec.ExecuteStep(context.Background(), domain.Step{
		Type:   "delay",
		Params: json.RawMessage(`{"ms":60000}`),
	}, nil)
	if err != nil {
		t.Fatalf("delay step returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("delay was not capped, took %v", elapsed)
	}
}

func TestLocalExecutorFailStep(t *testing.T) {
	exec := &LocalExecutor{}

	_, err := exec.ExecuteStep(context.Background(), domain.Step{
		Type:   "fail",
		Params: json.RawMessage(`{"message":"deliberate"}`),
	}, nil)
	if err == nil || err.Error() != "deliberate" {
		t.Fatalf("expected configured failure message, got %v", err)
	}
}

func TestLocalExecutorUnknownStep(t *testing.T) {
	exec := &LocalExecutor{}

	_, err := exec.ExecuteStep(context.Background(), domain.Step{Type: "teleport"}, nil)
	if err == nil || !strings.Contains(err.Error(), "unsupported step type") {
		t.Fatalf("expected unsupported step error, got %v", err)
	}
}
