package domain

import (
	"encoding/json"
	"time"
)

// Bot statuses describe the lifecycle of the user-facing draft.
const (
	BotStatusDraft     = "draft"
	BotStatusPublished = "published"
	BotStatusArchived  = "archived"
)

// Bot is a user-owned logical entity with a mutable draft artifact. Deployments
// snapshot the draft at creation time and never reference it afterwards.
type Bot struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Name            string          `json:"name"`
	Status          string          `json:"status"`
	Description     string          `json:"description,omitempty"`
	CurrentVersion  string          `json:"current_version,omitempty"`
	SourceCode      string          `json:"source_code,omitempty"`
	CompiledCode    json.RawMessage `json:"compiled_code,omitempty"`
	CompilerVersion string          `json:"compiler_version,omitempty"`
	Config          json.RawMessage `json:"config,omitempty"`
	EnvVars         json.RawMessage `json:"env_vars,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// BotVersion is a published, immutable snapshot of a bot draft.
type BotVersion struct {
	ID              string          `json:"id"`
	BotID           string          `json:"bot_id"`
	Version         string          `json:"version"`
	Changelog       string          `json:"changelog,omitempty"`
	SourceCode      string          `json:"source_code,omitempty"`
	CompiledCode    json.RawMessage `json:"compiled_code,omitempty"`
	CompilerVersion string          `json:"compiler_version,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}
