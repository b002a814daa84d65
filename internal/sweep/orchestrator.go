package sweep

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hayakawa-lab/jprag/internal/errors"
	"github.com/hayakawa-lab/jprag/internal/eval"
)

// Runner is the per-configuration work the orchestrator drives: build the
// indexes for a configuration, then evaluate them. Split in two so the
// orchestrator can record the Building -> Evaluating transition between.
type Runner struct {
	// Build prepares indexes for the configuration and returns the search
	// function evaluation will use.
	Build func(ctx context.Context, cfg SweepConfig) (eval.SearchFunc, error)

	// Evaluate scores the built configuration.
	Evaluate func(ctx context.Context, cfg SweepConfig, search eval.SearchFunc) (*eval.Summary, error)
}

// Stages a configuration can fail in.
const (
	StageBuild    = "build"
	StageEvaluate = "evaluate"
)

// Result is the terminal outcome of one configuration.
type Result struct {
	Config  SweepConfig   `json:"config"`
	State   RunState      `json:"state"`
	Summary *eval.Summary `json:"summary,omitempty"`
	Stage   string        `json:"stage,omitempty"`
	Message string        `json:"message,omitempty"`
	Skipped bool          `json:"skipped,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// Orchestrator executes a configuration grid with bounded concurrency.
// One configuration failing records a Failed row and never aborts the
// remaining configurations; only context cancellation stops the sweep.
type Orchestrator struct {
	runner     Runner
	checkpoint *Checkpoint
	report     *ReportWriter
	workers    int
	logger     *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithCheckpoint enables idempotent reruns backed by the given checkpoint.
func WithCheckpoint(cp *Checkpoint) OrchestratorOption {
	return func(o *Orchestrator) { o.checkpoint = cp }
}

// WithReportWriter appends every terminal result to the report files.
func WithReportWriter(rw *ReportWriter) OrchestratorOption {
	return func(o *Orchestrator) { o.report = rw }
}

// WithWorkers bounds concurrent configurations (default: GOMAXPROCS, capped
// at 4 because index builds are memory-hungry).
func WithWorkers(n int) OrchestratorOption {
	return func(o *Orchestrator) { o.workers = n }
}

// WithLogger sets the sweep logger.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator creates an orchestrator around the given runner.
func NewOrchestrator(runner Runner, opts ...OrchestratorOption) (*Orchestrator, error) {
	if runner.Build == nil || runner.Evaluate == nil {
		return nil, errors.ConfigErrorf("sweep runner requires both build and evaluate functions")
	}
	o := &Orchestrator{runner: runner, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.workers <= 0 {
		o.workers = runtime.GOMAXPROCS(0)
		if o.workers > 4 {
			o.workers = 4
		}
	}
	return o, nil
}

// Execute runs every configuration and returns one terminal result per
// distinct configuration, ordered by configuration key. The returned error
// is non-nil only for grid-level problems (invalid config, cancellation),
// never for individual run failures.
func (o *Orchestrator) Execute(ctx context.Context, configs []SweepConfig) ([]Result, error) {
	if len(configs) == 0 {
		return nil, errors.ConfigErrorf("sweep grid is empty")
	}

	// Validate and dedupe up front: a bad grid fails before any work runs.
	seen := make(map[string]struct{}, len(configs))
	unique := make([]SweepConfig, 0, len(configs))
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		key := cfg.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, cfg)
	}

	runID := uuid.NewString()
	o.logger.Info("sweep starting",
		"run_id", runID, "configs", len(unique), "workers", o.workers)

	results := make([]Result, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for i, cfg := range unique {
		g.Go(func() error {
			// Check between tasks so cancellation stops scheduling promptly.
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = o.runOne(gctx, runID, cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Config.Key() < results[j].Config.Key()
	})

	succeeded, failed := 0, 0
	for _, r := range results {
		if r.State == StateSucceeded {
			succeeded++
		} else {
			failed++
		}
	}
	o.logger.Info("sweep finished",
		"run_id", runID, "succeeded", succeeded, "failed", failed)
	return results, nil
}

// runOne drives a single configuration through its lifecycle. All failures
// end in a Failed result with a non-empty message; only the checkpoint and
// report side channels can surface their own write errors into the message.
func (o *Orchestrator) runOne(ctx context.Context, runID string, cfg SweepConfig) Result {
	start := time.Now()
	log := o.logger.With("run_id", runID, "config", cfg.Label())

	res := Result{Config: cfg, State: StatePending}
	defer func() {
		res.Elapsed = time.Since(start)
		if o.report != nil && !res.Skipped {
			if err := o.report.Append(runID, res); err != nil {
				log.Error("report append failed", "error", err)
			}
		}
	}()

	if o.checkpoint != nil {
		done, summary, err := o.checkpoint.Succeeded(ctx, cfg.Key())
		if err != nil {
			log.Warn("checkpoint read failed, running anyway", "error", err)
		} else if done {
			log.Info("configuration already succeeded, skipping")
			res.State = StateSucceeded
			res.Summary = summary
			res.Skipped = true
			return res
		}
	}

	o.transition(ctx, cfg, StateBuilding, "")
	log.Info("building")
	searchFn, err := o.runner.Build(ctx, cfg)
	if err != nil {
		return o.fail(ctx, log, cfg, res, StageBuild, err)
	}

	o.transition(ctx, cfg, StateEvaluating, "")
	log.Info("evaluating")
	summary, err := o.runner.Evaluate(ctx, cfg, searchFn)
	if err != nil {
		return o.fail(ctx, log, cfg, res, StageEvaluate, err)
	}

	res.State = StateSucceeded
	res.Summary = summary
	if o.checkpoint != nil {
		if err := o.checkpoint.SetSucceeded(ctx, cfg, summary); err != nil {
			log.Error("checkpoint write failed", "error", err)
		}
	}
	log.Info("configuration succeeded",
		"recall", summary.Recall, "mrr", summary.MRR, "ndcg", summary.NDCG)
	return res
}

func (o *Orchestrator) fail(ctx context.Context, log *slog.Logger, cfg SweepConfig, res Result, stage string, err error) Result {
	res.State = StateFailed
	res.Stage = stage
	res.Message = err.Error()
	o.transition(ctx, cfg, StateFailed, stage+": "+res.Message)
	log.Error("configuration failed", "stage", stage, "error", res.Message)
	return res
}

func (o *Orchestrator) transition(ctx context.Context, cfg SweepConfig, state RunState, message string) {
	if o.checkpoint == nil {
		return
	}
	if err := o.checkpoint.SetState(ctx, cfg, state, message); err != nil {
		o.logger.Warn("checkpoint transition failed",
			"config", cfg.Label(), "state", string(state), "error", err)
	}
}
