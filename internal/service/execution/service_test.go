package execution

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/botforge/botforge/internal/domain"
	"github.com/botforge/botforge/internal/repository"
	"github.com/botforge/botforge/internal/worker"
)

func TestExecuteRequiresActiveDeployment(t *testing.T) {
	env := newTestEnv(t)
	bot := env.seedBot("user-1")
	// No deployment seeded.

	_, err := env.svc.Execute(context.Background(), "user-1", ExecuteInput{BotID: bot.ID})
	if !errors.Is(err, ErrNotDeployed) {
		t.Fatalf("expected ErrNotDeployed, got %v", err)
	}
	if env.executions.createCalls != 0 {
		t.Fatalf("expected no execution record, got %d creates", env.executions.createCalls)
	}
}

func TestExecuteRejectsInvalidTrigger(t *testing.T) {
	env := newTestEnv(t)
	bot := env.seedBot("user-1")
	env.seedActiveDeployment(bot.ID, logArtifact(2))

	_, err := env.svc.Execute(context.Background(), "user-1", ExecuteInput{
		BotID:       bot.ID,
		TriggerType: "carrier-pigeon",
	})
	if !errors.Is(err, ErrInvalidTrigger) {
		t.Fatalf("expected ErrInvalidTrigger, got %v", err)
	}
}

func TestExecuteRejectsForeignBot(t *testing.T) {
	env := newTestEnv(t)
	bot := env.seedBot("owner")
	env.seedActiveDeployment(bot.ID, logArtifact(1))

	_, err := env.svc.Execute(context.Background(), "intruder", ExecuteInput{BotID: bot.ID})
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestExecuteRunsArtifactToCompletion(t *testing.T) {
	env := newTestEnv(t)
	bot := env.seedBot("user-1")
	artifact := json.RawMessage(`{"steps":[
		{"type":"log","params":{"message":"hello"}},
		{"type":"transform","params":{"set":{"greeting":"\"hi\""}}},
		{"type":"echo","params":{"done":true}}
	]}`)
	deployment := env.seedActiveDeployment(bot.ID, artifact)

	created, err := env.svc.Execute(context.Background(), "user-1", ExecuteInput{
		BotID:     bot.ID,
		InputData: json.RawMessage(`{"name":"world"}`),
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	final := env.executions.get(t, created.ID)
	if final.Status != domain.ExecutionStatusCompleted {
		t.Fatalf("expected completed execution, got %q (%s)", final.Status, final.ErrorData)
	}
	if string(final.OutputData) != `{"done":true}` {
		t.Fatalf("expected echo output to win, got %s", final.OutputData)
	}
	if got := countStepStarts(final.ExecutionLogs); got != 3 {
		t.Fatalf("expected 3 step-start log entries, got %d", got)
	}
	if len(final.ConsoleLogs) != 1 || final.ConsoleLogs[0] != "hello" {
		t.Fatalf("expected console output from log step, got %v", final.ConsoleLogs)
	}
	if final.ExecutionTimeMS == nil || final.CompletedAt == nil || final.StartedAt == nil {
		t.Fatal("expected runtime timestamps and duration to be recorded")
	}

	d := env.deployments.get(t, deployment.ID)
	if d.TotalExecutions != 1 || d.SuccessfulExecutions != 1 || d.FailedExecutions != 0 {
		t.Fatalf("expected success counter bump, got total=%d success=%d failed=%d",
			d.TotalExecutions, d.SuccessfulExecutions, d.FailedExecutions)
	}
}

func TestStepFailurePreservesLogsAndRecordsContext(t *testing.T) {
	env := newTestEnv(t)
	bot := env.seedBot("user-1")
	artifact := json.RawMessage(`{"steps":[
		{"type":"log","params":{"message":"one"}},
		{"type":"log","params":{"message":"two"}},
		{"type":"fail","params":{"message":"boom"}},
		{"type":"log","params":{"message":"never"}},
		{"type":"log","params":{"message":"never"}}
	]}`)
	deployment := env.seedActiveDeployment(bot.ID, artifact)

	created, err := env.svc.Execute(context.Background(), "user-1", ExecuteInput{BotID: bot.ID})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	final := env.executions.get(t, created.ID)
	if final.Status != domain.ExecutionStatusFailed {
		t.Fatalf("expected failed execution, got %q", final.Status)
	}
	if got := countStepStarts(final.ExecutionLogs); got != 3 {
		t.Fatalf("steps after the failure must not start; got %d step-start entries", got)
	}
	if len(final.OutputData) != 0 {
		t.Fatalf("failed execution must not record output, got %s", final.OutputData)
	}

	var data failureData
	if err := json.Unmarshal(final.ErrorData, &data); err != nil {
		t.Fatalf("error data not decodable: %v", err)
	}
	if data.Message != "boom" || data.StepIndex == nil || *data.StepIndex != 2 || data.StepType != "fail" {
		t.Fatalf("expected failure context for step 2, got %+v", data)
	}

	d := env.deployments.get(t, deployment.ID)
	if d.TotalExecutions != 1 || d.FailedExecutions != 1 {
		t.Fatalf("expected failure counter bump, got total=%d failed=%d", d.TotalExecutions, d.FailedExecutions)
	}
}

func TestCancelWhileQueuedPreventsRun(t *testing.T) {
	env := newTestEnv(t)
	held := &holdingSubmitter{}
	env.svc.pool = held
	counting := &countingExecutor{inner: &LocalExecutor{}}
	env.svc.executor = counting
	bot := env.seedBot("user-1")
	env.seedActiveDeployment(bot.ID, logArtifact(3))

	created, err := env.svc.Execute(context.Background(), "user-1", ExecuteInput{BotID: bot.ID})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if err := env.svc.Cancel(context.Background(), "user-1", created.ID); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	held.release(context.Background())

	final := env.executions.get(t, created.ID)
	if final.Status != domain.ExecutionStatusCancelled {
		t.Fatalf("expected cancelled execution, got %q", final.Status)
	}
	if counting.calls != 0 {
		t.Fatalf("executor must not run a cancelled execution, got %d calls", counting.calls)
	}
}

func TestCancellationObservedBetweenSteps(t *testing.T) {
	env := newTestEnv(t)
	bot := env.seedBot("user-1")
	env.seedActiveDeployment(bot.ID, logArtifact(3))

	// The executor cancels its own execution mid-flight, standing in for a
	// concurrent cancel request landing between steps.
	sabotage := &cancellingExecutor{repo: env.executions, svc: env.svc}
	env.svc.executor = sabotage

	created, err := env.svc.Execute(context.Background(), "user-1", ExecuteInput{BotID: bot.ID})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	final := env.executions.get(t, created.ID)
	if final.Status != domain.ExecutionStatusCancelled {
		t.Fatalf("expected cancelled execution, got %q", final.Status)
	}
	if sabotage.calls != 1 {
		t.Fatalf("expected exactly one step before cancellation took hold, got %d", sabotage.calls)
	}
	stopped := false
	for _, entry := range final.ExecutionLogs {
		if entry.Level == "warn" && strings.Contains(entry.Message, "execution stopped before step") {
			stopped = true
		}
	}
	if !stopped {
		t.Fatal("expected cooperative-stop log entry")
	}
}

func TestCancelTerminalExecution(t *testing.T) {
	env := newTestEnv(t)
	bot := env.seedBot("user-1")
	env.seedActiveDeployment(bot.ID, logArtifact(1))

	created, err := env.svc.Execute(context.Background(), "user-1", ExecuteInput{BotID: bot.ID})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	// Ran synchronously, so it is already completed.
	err = env.svc.Cancel(context.Background(), "user-1", created.ID)
	if !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}
}

func TestQueueFullMarksExecutionFailed(t *testing.T) {
	env := newTestEnv(t)
	env.svc.pool = failingSubmitter{err: worker.ErrQueueFull}
	bot := env.seedBot("user-1")
	env.seedActiveDeployment(bot.ID, logArtifact(1))

	created, err := env.svc.Execute(context.Background(), "user-1", ExecuteInput{BotID: bot.ID})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if created.Status != domain.ExecutionStatusFailed {
		t.Fatalf("expected failed status on returned execution, got %q", created.Status)
	}
	final := env.executions.get(t, created.ID)
	if final.Status != domain.ExecutionStatusFailed {
		t.Fatalf("expected stored execution failed, got %q", final.Status)
	}
	if !strings.Contains(string(final.ErrorData), "could not be scheduled") {
		t.Fatalf("expected scheduling failure in error data, got %s", final.ErrorData)
	}
}

func TestCostAggregatesAcrossSteps(t *testing.T) {
	env := newTestEnv(t)
	env.svc.executor = &meteredExecutor{tokensPerStep: 100, callsPerStep: 2}
	env.svc.pricer = NewLinearPricer(10, 0.5)
	bot := env.seedBot("user-1")
	env.seedActiveDeployment(bot.ID, logArtifact(2))

	created, err := env.svc.Execute(context.Background(), "user-1", ExecuteInput{BotID: bot.ID})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	final := env.executions.get(t, created.ID)
	if final.TokensUsed != 200 || final.APICallsMade != 4 {
		t.Fatalf("expected 200 tokens / 4 calls, got %d / %d", final.TokensUsed, final.APICallsMade)
	}
	// 200 tokens at 10/1k plus 4 calls at 0.5.
	if final.EstimatedCostUSD != 4.0 {
		t.Fatalf("expected cost 4.0, got %v", final.EstimatedCostUSD)
	}
}

func TestStatisticsZeroTotal(t *testing.T) {
	env := newTestEnv(t)
	bot := env.seedBot("user-1")

	stats, err := env.svc.Statistics(context.Background(), "user-1", bot.ID, 0)
	if err != nil {
		t.Fatalf("Statistics returned error: %v", err)
	}
	if stats.Total != 0 || stats.SuccessRate != 0 {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}

func TestStatisticsSuccessRateIsPercentage(t *testing.T) {
	env := newTestEnv(t)
	bot := env.seedBot("user-1")
	env.executions.stats = &domain.ExecutionStats{Total: 4, Completed: 3, Failed: 1}

	stats, err := env.svc.Statistics(context.Background(), "user-1", bot.ID, 1)
	if err != nil {
		t.Fatalf("Statistics returned error: %v", err)
	}
	if stats.SuccessRate != 75 {
		t.Fatalf("expected success rate 75, got %v", stats.SuccessRate)
	}
}

func TestStatisticsWindowDays(t *testing.T) {
	env := newTestEnv(t)
	bot := env.seedBot("user-1")
	base := time.Date(2026, time.August, 29, 12, 0, 0, 0, time.UTC)
	env.svc.now = func() time.Time { return base }

	if _, err := env.svc.Statistics(context.Background(), "user-1", bot.ID, 7); err != nil {
		t.Fatalf("Statistics returned error: %v", err)
	}
	if want := base.AddDate(0, 0, -7); !env.executions.lastSince.Equal(want) {
		t.Fatalf("expected window cutoff %v, got %v", want, env.executions.lastSince)
	}

	// A non-positive window falls back to one day.
	if _, err := env.svc.Statistics(context.Background(), "user-1", bot.ID, 0); err != nil {
		t.Fatalf("Statistics returned error: %v", err)
	}
	if want := base.AddDate(0, 0, -1); !env.executions.lastSince.Equal(want) {
		t.Fatalf("expected default one-day cutoff %v, got %v", want, env.executions.lastSince)
	}
}

// --- test fixtures ---

type testEnv struct {
	bots        *fakeBotRepo
	deployments *fakeDeploymentRepo
	executions  *fakeExecutionRepo
	svc         *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	env := &testEnv{
		bots:        newFakeBotRepo(),
		deployments: newFakeDeploymentRepo(),
		executions:  newFakeExecutionRepo(),
	}
	env.svc = NewService(env.executions, env.deployments, env.bots, nil, &LocalExecutor{}, nil, nil, nil, logger)
	env.svc.pool = &syncSubmitter{svc: env.svc}
	return env
}

func (e *testEnv) seedBot(userID string) *domain.Bot {
	bot := &domain.Bot{
		ID:     uuid.NewString(),
		UserID: userID,
		Name:   "support-bot",
		Status: domain.BotStatusPublished,
	}
	e.bots.put(bot)
	return bot
}

func (e *testEnv) seedActiveDeployment(botID string, artifact json.RawMessage) *domain.Deployment {
	deployment := &domain.Deployment{
		ID:           uuid.NewString(),
		BotID:        botID,
		Environment:  domain.EnvProduction,
		Status:       domain.DeploymentStatusActive,
		CompiledCode: artifact,
	}
	e.deployments.put(deployment)
	return deployment
}

// logArtifact builds an artifact of n log steps.
func logArtifact(n int) json.RawMessage {
	steps := make([]string, n)
	for i := range steps {
		steps[i] = `{"type":"log","params":{"message":"tick"}}`
	}
	return json.RawMessage(`{"steps":[` + strings.Join(steps, ",") + `]}`)
}

func countStepStarts(entries []domain.ExecutionLogEntry) int {
	n := 0
	for _, entry := range entries {
		if entry.Message == "step started" {
			n++
		}
	}
	return n
}

type syncSubmitter struct {
	svc *Service
}

func (s *syncSubmitter) Submit(task worker.Task) error {
	task(context.Background())
	return nil
}

type failingSubmitter struct {
	err error
}

func (f failingSubmitter) Submit(worker.Task) error { return f.err }

type holdingSubmitter struct {
	mu    sync.Mutex
	tasks []worker.Task
}

func (h *holdingSubmitter) Submit(task worker.Task) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tasks = append(h.tasks, task)
	return nil
}

func (h *holdingSubmitter) release(ctx context.Context) {
	h.mu.Lock()
	tasks := h.tasks
	h.tasks = nil
	h.mu.Unlock()
	for _, task := range tasks {
		task(ctx)
	}
}

type countingExecutor struct {
	inner StepExecutor
	calls int
}

func (c *countingExecutor) ExecuteStep(ctx context.Context, step domain.Step, input json.RawMessage) (*StepResult, error) {
	c.calls++
	return c.inner.ExecuteStep(ctx, step, input)
}

// cancellingExecutor cancels its own execution from inside the first step.
type cancellingExecutor struct {
	repo  *fakeExecutionRepo
	svc   *Service
	calls int
}

func (c *cancellingExecutor) ExecuteStep(_ context.Context, _ domain.Step, input json.RawMessage) (*StepResult, error) {
	c.calls++
	c.repo.cancelRunning()
	return &StepResult{Output: input}, nil
}

type meteredExecutor struct {
	tokensPerStep int64
	callsPerStep  int64
}

func (m *meteredExecutor) ExecuteStep(_ context.Context, _ domain.Step, input json.RawMessage) (*StepResult, error) {
	return &StepResult{Output: input, TokensUsed: m.tokensPerStep, APICallsMade: m.callsPerStep}, nil
}

type fakeBotRepo struct {
	mu   sync.Mutex
	bots map[string]domain.Bot
}

func newFakeBotRepo() *fakeBotRepo {
	return &fakeBotRepo{bots: make(map[string]domain.Bot)}
}

func (f *fakeBotRepo) put(bot *domain.Bot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bots[bot.ID] = *bot
}

func (f *fakeBotRepo) CreateBot(_ context.Context, bot *domain.Bot) error {
	f.put(bot)
	return nil
}

func (f *fakeBotRepo) GetBotByID(_ context.Context, botID string) (*domain.Bot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bot, ok := f.bots[botID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := bot
	return &out, nil
}

func (f *fakeBotRepo) UpdateBotDraft(_ context.Context, bot *domain.Bot) error {
	f.put(bot)
	return nil
}

func (f *fakeBotRepo) ListBotsByUser(context.Context, string) ([]domain.Bot, error) { return nil, nil }

func (f *fakeBotRepo) CreateBotVersion(context.Context, *domain.BotVersion) error { return nil }

func (f *fakeBotRepo) ListBotVersions(context.Context, string, int) ([]domain.BotVersion, error) {
	return nil, nil
}

type fakeDeploymentRepo struct {
	mu          sync.Mutex
	deployments map[string]*domain.Deployment
}

func newFakeDeploymentRepo() *fakeDeploymentRepo {
	return &fakeDeploymentRepo{deployments: make(map[string]*domain.Deployment)}
}

func (f *fakeDeploymentRepo) put(d *domain.Deployment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *d
	f.deployments[d.ID] = &stored
}

func (f *fakeDeploymentRepo) get(t *testing.T, id string) domain.Deployment {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deployments[id]
	if !ok {
		t.Fatalf("deployment %s not stored", id)
	}
	return *d
}

func (f *fakeDeploymentRepo) CreateDeployment(_ context.Context, deployment *domain.Deployment) error {
	f.put(deployment)
	return nil
}

func (f *fakeDeploymentRepo) GetDeploymentByID(_ context.Context, id string) (*domain.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deployments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *d
	return &out, nil
}

func (f *fakeDeploymentRepo) ListDeploymentsByBot(context.Context, string, string, int) ([]domain.Deployment, error) {
	return nil, nil
}

func (f *fakeDeploymentRepo) UpdateDeploymentStatus(context.Context, domain.DeploymentStatusUpdate) error {
	return nil
}

func (f *fakeDeploymentRepo) ActivateDeployment(context.Context, string, time.Time) error {
	return nil
}

func (f *fakeDeploymentRepo) GetActiveDeployment(_ context.Context, botID, environment string) (*domain.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deployments {
		if d.BotID == botID && d.Environment == environment && d.Status == domain.DeploymentStatusActive {
			out := *d
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeDeploymentRepo) AppendBuildLog(context.Context, string, domain.LogEntry) error {
	return nil
}

func (f *fakeDeploymentRepo) AppendDeployLog(context.Context, string, domain.LogEntry) error {
	return nil
}

func (f *fakeDeploymentRepo) IncrementExecutionCounters(_ context.Context, deploymentID string, succeeded bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deployments[deploymentID]
	if !ok {
		return repository.ErrNotFound
	}
	d.TotalExecutions++
	if succeeded {
		d.SuccessfulExecutions++
	} else {
		d.FailedExecutions++
	}
	return nil
}

func (f *fakeDeploymentRepo) ListDeploymentsInStatusUpdatedBefore(context.Context, string, time.Time) ([]domain.Deployment, error) {
	return nil, nil
}

type fakeExecutionRepo struct {
	mu          sync.Mutex
	executions  map[string]*domain.Execution
	stats       *domain.ExecutionStats
	lastSince   time.Time
	createCalls int
}

func newFakeExecutionRepo() *fakeExecutionRepo {
	return &fakeExecutionRepo{executions: make(map[string]*domain.Execution)}
}

func (f *fakeExecutionRepo) get(t *testing.T, id string) domain.Execution {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.executions[id]
	if !ok {
		t.Fatalf("execution %s not stored", id)
	}
	return *e
}

// cancelRunning flips any running execution to cancelled, bypassing the
// service path, to model a concurrent cancel.
func (f *fakeExecutionRepo) cancelRunning() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.executions {
		if e.Status == domain.ExecutionStatusRunning {
			e.Status = domain.ExecutionStatusCancelled
		}
	}
}

func (f *fakeExecutionRepo) CreateExecution(_ context.Context, execution *domain.Execution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	stored := *execution
	f.executions[execution.ID] = &stored
	return nil
}

func (f *fakeExecutionRepo) GetExecutionByID(_ context.Context, id string) (*domain.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.executions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *e
	return &out, nil
}

func (f *fakeExecutionRepo) GetExecutionStatus(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.executions[id]
	if !ok {
		return "", repository.ErrNotFound
	}
	return e.Status, nil
}

func (f *fakeExecutionRepo) ListExecutionsByBot(context.Context, string, string, int, int) ([]domain.Execution, error) {
	return nil, nil
}

func (f *fakeExecutionRepo) ListRecentExecutionsByUser(context.Context, string, int) ([]domain.Execution, error) {
	return nil, nil
}

func (f *fakeExecutionRepo) UpdateExecutionStatus(_ context.Context, update domain.ExecutionStatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.executions[update.ExecutionID]
	if !ok {
		return repository.ErrNotFound
	}
	if len(update.FromStatuses) > 0 {
		matched := false
		for _, status := range update.FromStatuses {
			if e.Status == status {
				matched = true
				break
			}
		}
		if !matched {
			return repository.ErrStatusConflict
		}
	}
	e.Status = update.Status
	if len(update.OutputData) > 0 {
		e.OutputData = update.OutputData
	}
	if len(update.ErrorData) > 0 {
		e.ErrorData = update.ErrorData
	}
	if update.ExecutionTimeMS != nil {
		e.ExecutionTimeMS = update.ExecutionTimeMS
	}
	if update.TokensUsed != nil {
		e.TokensUsed = *update.TokensUsed
	}
	if update.APICallsMade != nil {
		e.APICallsMade = *update.APICallsMade
	}
	if update.EstimatedCostUSD != nil {
		e.EstimatedCostUSD = *update.EstimatedCostUSD
	}
	if update.StartedAt != nil {
		e.StartedAt = update.StartedAt
	}
	if update.CompletedAt != nil {
		e.CompletedAt = update.CompletedAt
	}
	return nil
}

func (f *fakeExecutionRepo) AppendExecutionLog(_ context.Context, id string, entry domain.ExecutionLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.executions[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.ExecutionLogs = append(e.ExecutionLogs, entry)
	return nil
}

func (f *fakeExecutionRepo) AppendConsoleLog(_ context.Context, id string, line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.executions[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.ConsoleLogs = append(e.ConsoleLogs, line)
	return nil
}

func (f *fakeExecutionRepo) ExecutionStatistics(_ context.Context, _ string, since time.Time) (*domain.ExecutionStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSince = since
	if f.stats != nil {
		out := *f.stats
		return &out, nil
	}
	return &domain.ExecutionStats{}, nil
}

func (f *fakeExecutionRepo) ListExecutionsInStatusSince(context.Context, string, time.Time) ([]domain.Execution, error) {
	return nil, nil
}
