package sweep

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hayakawa-lab/jprag/internal/errors"
	"github.com/hayakawa-lab/jprag/internal/eval"
)

const checkpointSchema = `
CREATE TABLE IF NOT EXISTS sweep_runs (
	config_key TEXT PRIMARY KEY,
	label      TEXT NOT NULL,
	state      TEXT NOT NULL,
	message    TEXT,
	summary    TEXT,
	updated_at TEXT NOT NULL
);
`

// Checkpoint persists per-configuration run state keyed by SweepConfig.Key.
// A rerun of the same grid consults it to skip configurations that already
// succeeded, making sweeps idempotent across interruptions.
type Checkpoint struct {
	db *sql.DB
}

// NewCheckpoint prepares the checkpoint table on an existing database,
// typically the chunk store's.
func NewCheckpoint(db *sql.DB) (*Checkpoint, error) {
	if db == nil {
		return nil, errors.ConfigErrorf("checkpoint requires a database handle")
	}
	if _, err := db.Exec(checkpointSchema); err != nil {
		return nil, fmt.Errorf("create sweep checkpoint table: %w", err)
	}
	return &Checkpoint{db: db}, nil
}

// Entry is one checkpoint row.
type Entry struct {
	Key     string
	Label   string
	State   RunState
	Message string
	Summary *eval.Summary
}

// Get returns the entry for a configuration key, or nil when unknown.
func (c *Checkpoint) Get(ctx context.Context, key string) (*Entry, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT config_key, label, state, message, summary FROM sweep_runs WHERE config_key = ?`, key)

	var e Entry
	var state string
	var message, summary sql.NullString
	if err := row.Scan(&e.Key, &e.Label, &state, &message, &summary); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint %s: %w", key, err)
	}
	e.State = RunState(state)
	e.Message = message.String
	if summary.Valid && summary.String != "" {
		var s eval.Summary
		if err := json.Unmarshal([]byte(summary.String), &s); err != nil {
			return nil, fmt.Errorf("decode checkpoint summary %s: %w", key, err)
		}
		e.Summary = &s
	}
	return &e, nil
}

// SetState upserts the state for a configuration, preserving any stored
// summary.
func (c *Checkpoint) SetState(ctx context.Context, cfg SweepConfig, state RunState, message string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO sweep_runs (config_key, label, state, message, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(config_key) DO UPDATE SET
			state = excluded.state,
			message = excluded.message,
			updated_at = excluded.updated_at`,
		cfg.Key(), cfg.Label(), string(state), message, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("checkpoint %s -> %s: %w", cfg.Key(), state, err)
	}
	return nil
}

// SetSucceeded records a terminal success with its metrics.
func (c *Checkpoint) SetSucceeded(ctx context.Context, cfg SweepConfig, summary *eval.Summary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary for %s: %w", cfg.Key(), err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO sweep_runs (config_key, label, state, message, summary, updated_at)
		VALUES (?, ?, ?, '', ?, ?)
		ON CONFLICT(config_key) DO UPDATE SET
			state = excluded.state,
			message = '',
			summary = excluded.summary,
			updated_at = excluded.updated_at`,
		cfg.Key(), cfg.Label(), string(StateSucceeded), string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("checkpoint %s succeeded: %w", cfg.Key(), err)
	}
	return nil
}

// Succeeded reports whether a configuration already has a terminal success.
func (c *Checkpoint) Succeeded(ctx context.Context, key string) (bool, *eval.Summary, error) {
	e, err := c.Get(ctx, key)
	if err != nil {
		return false, nil, err
	}
	if e == nil || e.State != StateSucceeded {
		return false, nil, nil
	}
	return true, e.Summary, nil
}
