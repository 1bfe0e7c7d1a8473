package postgres

import (
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/botforge/botforge/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.BotRepository        = (*Repository)(nil)
	_ repository.DeploymentRepository = (*Repository)(nil)
	_ repository.ExecutionRepository  = (*Repository)(nil)
	_ repository.TelemetryRepository  = (*Repository)(nil)
	_ repository.WebhookRepository    = (*Repository)(nil)
)

// mustJSON marshals v for a jsonb parameter; the inputs are in-process
// structs, so a marshal failure is a programming error surfaced as null.
func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// decodeJSON unmarshals jsonb bytes into out, tolerating empty columns.
func decodeJSON(raw []byte, out any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
