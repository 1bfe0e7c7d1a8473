package bot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/botforge/botforge/internal/domain"
	"github.com/botforge/botforge/internal/repository"
)

func TestCreateTrimsAndDefaults(t *testing.T) {
	repo, svc := newTestService()

	b, err := svc.Create(context.Background(), "user-1", CreateInput{Name: "  support-bot  "})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if b.Name != "support-bot" {
		t.Fatalf("expected trimmed name, got %q", b.Name)
	}
	if b.Status != domain.BotStatusDraft {
		t.Fatalf("expected draft status, got %q", b.Status)
	}
	if repo.createCalls != 1 {
		t.Fatalf("expected 1 create, got %d", repo.createCalls)
	}
}

func TestCreateRequiresName(t *testing.T) {
	_, svc := newTestService()

	_, err := svc.Create(context.Background(), "user-1", CreateInput{Name: "   "})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestGetEnforcesOwnership(t *testing.T) {
	repo, svc := newTestService()
	repo.put(&domain.Bot{ID: "bot-1", UserID: "owner"})

	_, err := svc.Get(context.Background(), "intruder", "bot-1")
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}

func TestUpdateDraftLeavesNilFieldsAlone(t *testing.T) {
	repo, svc := newTestService()
	repo.put(&domain.Bot{
		ID:          "bot-1",
		UserID:      "user-1",
		Status:      domain.BotStatusDraft,
		Description: "original",
		SourceCode:  "say hello",
	})

	source := "say goodbye"
	updated, err := svc.UpdateDraft(context.Background(), "user-1", "bot-1", DraftInput{SourceCode: &source})
	if err != nil {
		t.Fatalf("UpdateDraft returned error: %v", err)
	}
	if updated.SourceCode != "say goodbye" {
		t.Fatalf("expected updated source, got %q", updated.SourceCode)
	}
	if updated.Description != "original" {
		t.Fatalf("nil fields must stay untouched, got %q", updated.Description)
	}
}

func TestUpdateDraftRejectsArchivedBot(t *testing.T) {
	repo, svc := newTestService()
	repo.put(&domain.Bot{ID: "bot-1", UserID: "user-1", Status: domain.BotStatusArchived})

	desc := "new description"
	_, err := svc.UpdateDraft(context.Background(), "user-1", "bot-1", DraftInput{Description: &desc})
	if !errors.Is(err, ErrArchived) {
		t.Fatalf("expected ErrArchived, got %v", err)
	}
}

func TestPublishRequiresValidArtifact(t *testing.T) {
	repo, svc := newTestService()
	repo.put(&domain.Bot{ID: "bot-1", UserID: "user-1", Status: domain.BotStatusDraft})

	_, err := svc.Publish(context.Background(), "user-1", "bot-1", "1.0.0", "")
	if !errors.Is(err, domain.ErrEmptyArtifact) {
		t.Fatalf("expected ErrEmptyArtifact for bot without compiled code, got %v", err)
	}
	if repo.versionCalls != 0 {
		t.Fatalf("failed publish must not record a version, got %d", repo.versionCalls)
	}
}

func TestPublishSnapshotsDraft(t *testing.T) {
	repo, svc := newTestService()
	artifact := json.RawMessage(`{"steps":[{"type":"log"}]}`)
	repo.put(&domain.Bot{
		ID:           "bot-1",
		UserID:       "user-1",
		Status:       domain.BotStatusDraft,
		SourceCode:   "say hello",
		CompiledCode: artifact,
	})

	v, err := svc.Publish(context.Background(), "user-1", "bot-1", "1.0.0", "first release")
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if v.Version != "1.0.0" || string(v.CompiledCode) != string(artifact) {
		t.Fatalf("expected version snapshot of draft, got %+v", v)
	}

	b, err := svc.Get(context.Background(), "user-1", "bot-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if b.Status != domain.BotStatusPublished || b.CurrentVersion != "1.0.0" {
		t.Fatalf("expected published bot at 1.0.0, got status=%q version=%q", b.Status, b.CurrentVersion)
	}
}

func TestPublishRequiresVersion(t *testing.T) {
	_, svc := newTestService()

	_, err := svc.Publish(context.Background(), "user-1", "bot-1", "  ", "")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func newTestService() (*fakeBotRepo, *Service) {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	repo := &fakeBotRepo{bots: make(map[string]domain.Bot)}
	return repo, NewService(repo, logger)
}

type fakeBotRepo struct {
	mu           sync.Mutex
	bots         map[string]domain.Bot
	createCalls  int
	versionCalls int
}

func (f *fakeBotRepo) put(b *domain.Bot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bots[b.ID] = *b
}

func (f *fakeBotRepo) CreateBot(_ context.Context, b *domain.Bot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.bots[b.ID] = *b
	return nil
}

func (f *fakeBotRepo) GetBotByID(_ context.Context, botID string) (*domain.Bot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bots[botID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := b
	return &out, nil
}

func (f *fakeBotRepo) UpdateBotDraft(_ context.Context, b *domain.Bot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bots[b.ID] = *b
	return nil
}

func (f *fakeBotRepo) ListBotsByUser(_ context.Context, userID string) ([]domain.Bot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Bot, 0)
	for _, b := range f.bots {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBotRepo) CreateBotVersion(context.Context, *domain.BotVersion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versionCalls++
	return nil
}

func (f *fakeBotRepo) ListBotVersions(context.Context, string, int) ([]domain.BotVersion, error) {
	return nil, nil
}
