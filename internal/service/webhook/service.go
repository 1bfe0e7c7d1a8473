package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/botforge/botforge/internal/domain"
	"github.com/botforge/botforge/internal/repository"
	"github.com/botforge/botforge/internal/service/execution"
	"github.com/botforge/botforge/pkg/crypto"
)

// Service errors surfaced to transport layers.
var (
	ErrNotOwner         = errors.New("bot does not belong to user")
	ErrNoSecret         = errors.New("bot has no webhook trigger secret")
	ErrInvalidSignature = errors.New("webhook signature mismatch")
)

// Service verifies signed webhook triggers and turns them into executions.
// Secrets are stored encrypted at rest and returned in plaintext only once,
// at rotation time.
type Service struct {
	secrets       repository.WebhookRepository
	bots          repository.BotRepository
	executions    *execution.Service
	encryptionKey string
	logger        *slog.Logger
}

// NewService constructs a webhook service.
func NewService(secrets repository.WebhookRepository, bots repository.BotRepository, executions *execution.Service, encryptionKey string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		secrets:       secrets,
		bots:          bots,
		executions:    executions,
		encryptionKey: encryptionKey,
		logger:        logger.With("component", "webhook"),
	}
}

// RotateSecret generates a fresh trigger secret for the bot and returns it.
// The previous secret stops working immediately.
func (s *Service) RotateSecret(ctx context.Context, userID, botID string) (string, error) {
	bot, err := s.bots.GetBotByID(ctx, botID)
	if err != nil {
		return "", err
	}
	if bot.UserID != userID {
		return "", ErrNotOwner
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	secret := hex.EncodeToString(raw)
	sealed, err := crypto.EncryptString(s.encryptionKey, secret)
	if err != nil {
		return "", err
	}
	if err := s.secrets.UpsertTriggerSecret(ctx, botID, sealed); err != nil {
		return "", err
	}
	s.logger.Info("webhook secret rotated", "bot_id", botID)
	return secret, nil
}

// Trigger verifies the HMAC-SHA256 signature over the raw payload and queues
// an execution of the bot's active production deployment on success.
func (s *Service) Trigger(ctx context.Context, botID, environment string, payload []byte, signature string) (*domain.Execution, error) {
	sealed, err := s.secrets.GetTriggerSecret(ctx, botID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoSecret
		}
		return nil, err
	}
	secret, err := crypto.DecryptToString(s.encryptionKey, sealed)
	if err != nil {
		return nil, err
	}
	if !verifySignature(secret, payload, signature) {
		s.logger.Warn("webhook signature rejected", "bot_id", botID)
		return nil, ErrInvalidSignature
	}

	bot, err := s.bots.GetBotByID(ctx, botID)
	if err != nil {
		return nil, err
	}
	input := json.RawMessage(payload)
	if len(payload) == 0 || !json.Valid(payload) {
		wrapped, _ := json.Marshal(map[string]string{"raw": string(payload)})
		input = wrapped
	}
	return s.executions.Execute(ctx, bot.UserID, execution.ExecuteInput{
		BotID:         botID,
		Environment:   environment,
		TriggerType:   domain.TriggerWebhook,
		TriggerSource: "webhook",
		InputData:     input,
	})
}

// verifySignature accepts hex HMAC-SHA256 signatures, with or without the
// conventional "sha256=" prefix, and compares in constant time.
func verifySignature(secret string, payload []byte, signature string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	provided, err := hex.DecodeString(signature)
	if err != nil || len(provided) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(provided, mac.Sum(nil))
}
