package bot

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/botforge/botforge/internal/domain"
	"github.com/botforge/botforge/internal/repository"
)

// Service errors surfaced to transport layers.
var (
	ErrNotOwner     = errors.New("bot does not belong to user")
	ErrInvalidInput = errors.New("invalid bot input")
	ErrArchived     = errors.New("bot is archived")
)

// Service manages bots, their mutable drafts, and published versions.
type Service struct {
	repo   repository.BotRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a bot service.
func NewService(repo repository.BotRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		logger: logger.With("component", "bot"),
		now:    time.Now,
	}
}

// CreateInput carries the fields for a new bot.
type CreateInput struct {
	Name        string
	Description string
	SourceCode  string
	Config      json.RawMessage
	EnvVars     json.RawMessage
}

// Create registers a new bot draft owned by the user.
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (*domain.Bot, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrInvalidInput
	}
	now := s.now().UTC()
	b := &domain.Bot{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		Status:      domain.BotStatusDraft,
		Description: strings.TrimSpace(input.Description),
		SourceCode:  input.SourceCode,
		Config:      input.Config,
		EnvVars:     input.EnvVars,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateBot(ctx, b); err != nil {
		return nil, err
	}
	s.logger.Info("bot created", "bot_id", b.ID, "user_id", userID)
	return b, nil
}

// Get returns a bot owned by the user.
func (s *Service) Get(ctx context.Context, userID, botID string) (*domain.Bot, error) {
	b, err := s.repo.GetBotByID(ctx, botID)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, ErrNotOwner
	}
	return b, nil
}

// List returns all bots owned by the user.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Bot, error) {
	return s.repo.ListBotsByUser(ctx, userID)
}

// DraftInput carries a draft update. Nil fields are left untouched.
type DraftInput struct {
	Description     *string
	SourceCode      *string
	CompiledCode    json.RawMessage
	CompilerVersion *string
	Config          json.RawMessage
	EnvVars         json.RawMessage
}

// UpdateDraft mutates the bot's draft artifact. Running deployments are
// unaffected; they snapshot the draft at creation time.
func (s *Service) UpdateDraft(ctx context.Context, userID, botID string, input DraftInput) (*domain.Bot, error) {
	b, err := s.Get(ctx, userID, botID)
	if err != nil {
		return nil, err
	}
	if b.Status == domain.BotStatusArchived {
		return nil, ErrArchived
	}
	if input.Description != nil {
		b.Description = strings.TrimSpace(*input.Description)
	}
	if input.SourceCode != nil {
		b.SourceCode = *input.SourceCode
	}
	if len(input.CompiledCode) > 0 {
		b.CompiledCode = input.CompiledCode
	}
	if input.CompilerVersion != nil {
		b.CompilerVersion = strings.TrimSpace(*input.CompilerVersion)
	}
	if len(input.Config) > 0 {
		b.Config = input.Config
	}
	if len(input.EnvVars) > 0 {
		b.EnvVars = input.EnvVars
	}
	b.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateBotDraft(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Publish snapshots the current draft into an immutable version and marks it
// as the bot's current version.
func (s *Service) Publish(ctx context.Context, userID, botID, version, changelog string) (*domain.BotVersion, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return nil, ErrInvalidInput
	}
	b, err := s.Get(ctx, userID, botID)
	if err != nil {
		return nil, err
	}
	if b.Status == domain.BotStatusArchived {
		return nil, ErrArchived
	}
	if _, err := domain.DecodeArtifact(b.CompiledCode); err != nil {
		return nil, err
	}
	v := &domain.BotVersion{
		ID:              uuid.NewString(),
		BotID:           b.ID,
		Version:         version,
		Changelog:       strings.TrimSpace(changelog),
		SourceCode:      b.SourceCode,
		CompiledCode:    b.CompiledCode,
		CompilerVersion: b.CompilerVersion,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.repo.CreateBotVersion(ctx, v); err != nil {
		return nil, err
	}
	b.CurrentVersion = version
	b.Status = domain.BotStatusPublished
	b.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateBotDraft(ctx, b); err != nil {
		return nil, err
	}
	s.logger.Info("bot version published", "bot_id", b.ID, "version", version)
	return v, nil
}

// Versions lists the bot's published versions, newest first.
func (s *Service) Versions(ctx context.Context, userID, botID string, limit int) ([]domain.BotVersion, error) {
	if _, err := s.Get(ctx, userID, botID); err != nil {
		return nil, err
	}
	return s.repo.ListBotVersions(ctx, botID, limit)
}
