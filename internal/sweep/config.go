// Package sweep runs grids of retrieval configurations through build and
// evaluation, with per-configuration failure isolation, bounded workers,
// and checkpointed reruns.
package sweep

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/hayakawa-lab/jprag/internal/errors"
	"github.com/hayakawa-lab/jprag/internal/search"
)

// RunState is the lifecycle state of one sweep configuration.
type RunState string

const (
	StatePending    RunState = "pending"
	StateBuilding   RunState = "building"
	StateEvaluating RunState = "evaluating"
	StateSucceeded  RunState = "succeeded"
	StateFailed     RunState = "failed"
)

// Terminal reports whether no further transition can occur.
func (s RunState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// SweepConfig is one point of the parameter grid. The chunking parameters
// drive the upstream chunker; mode selects the retrieval path under test.
type SweepConfig struct {
	// ChunkChars is the chunk size in characters.
	ChunkChars int `yaml:"chunk_chars" json:"chunk_chars"`

	// OverlapChars is the overlap between adjacent chunks.
	OverlapChars int `yaml:"overlap_chars" json:"overlap_chars"`

	// CleaningEnabled toggles the text cleaning stage before chunking.
	CleaningEnabled bool `yaml:"cleaning_enabled" json:"cleaning_enabled"`

	// Mode is the retrieval mode to evaluate.
	Mode search.Mode `yaml:"mode" json:"mode"`
}

// Validate rejects grids that cannot produce a working index.
func (c SweepConfig) Validate() error {
	if c.ChunkChars < 1 {
		return errors.ConfigErrorf("chunk size must be >= 1, got %d", c.ChunkChars)
	}
	if c.OverlapChars < 0 {
		return errors.ConfigErrorf("chunk overlap must be >= 0, got %d", c.OverlapChars)
	}
	if c.OverlapChars >= c.ChunkChars {
		return errors.ConfigErrorf("chunk overlap %d must be smaller than chunk size %d", c.OverlapChars, c.ChunkChars)
	}
	if _, err := search.ParseMode(string(c.Mode)); err != nil {
		return err
	}
	return nil
}

// Key returns the stable identity of this configuration, used for
// checkpoint lookups and report rows. Two configs with equal parameters
// always share a key, across processes and runs.
func (c SweepConfig) Key() string {
	canonical := fmt.Sprintf("chunk=%d|overlap=%d|clean=%t|mode=%s",
		c.ChunkChars, c.OverlapChars, c.CleaningEnabled, c.Mode)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:8])
}

// Label is the human-readable form used in logs and reports.
func (c SweepConfig) Label() string {
	return fmt.Sprintf("chunk%d-ov%d-clean%t-%s", c.ChunkChars, c.OverlapChars, c.CleaningEnabled, c.Mode)
}

// Grid expands the cross product of parameter values into configurations,
// in deterministic order.
func Grid(chunkSizes, overlaps []int, cleaning []bool, modes []search.Mode) []SweepConfig {
	var out []SweepConfig
	for _, cs := range chunkSizes {
		for _, ov := range overlaps {
			for _, cl := range cleaning {
				for _, m := range modes {
					out = append(out, SweepConfig{
						ChunkChars:      cs,
						OverlapChars:    ov,
						CleaningEnabled: cl,
						Mode:            m,
					})
				}
			}
		}
	}
	return out
}
