package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hayakawa-lab/jprag/internal/config"
	"github.com/hayakawa-lab/jprag/internal/embed"
	"github.com/hayakawa-lab/jprag/internal/eval"
	"github.com/hayakawa-lab/jprag/internal/search"
	"github.com/hayakawa-lab/jprag/internal/store"
	"github.com/hayakawa-lab/jprag/internal/sweep"
	"github.com/hayakawa-lab/jprag/internal/ui"
)

func newSweepCmd() *cobra.Command {
	var chunksDir string
	var goldPath string
	var workers int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Evaluate a grid of retrieval configurations",
		Long: `Expands the parameter grid from config into configurations, builds and
evaluates each one, and appends a CSV row per configuration. The chunk
feeds are produced by the external chunking stage, one file per chunking
configuration:

    <chunks-dir>/chunks_c<chunk>_o<overlap>_<clean|raw>.jsonl

Failed configurations are recorded with their error and never abort the
rest of the grid. Reruns skip configurations already checkpointed as
succeeded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if goldPath == "" {
				goldPath = cfg.Paths.Gold
			}
			if goldPath == "" {
				return fmt.Errorf("no gold set: pass --gold or set paths.gold in config")
			}
			if chunksDir == "" {
				return fmt.Errorf("--chunks-dir is required")
			}
			if workers > 0 {
				cfg.Sweep.Workers = workers
			}
			return runSweep(cmd.Context(), cfg, chunksDir, goldPath)
		},
	}

	cmd.Flags().StringVar(&chunksDir, "chunks-dir", "", "Directory holding per-configuration chunk feeds")
	cmd.Flags().StringVar(&goldPath, "gold", "", "Gold question JSONL file")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent configurations")
	return cmd
}

func runSweep(ctx context.Context, cfg *config.Config, chunksDir, goldPath string) error {
	golds, err := eval.LoadGoldJSONL(goldPath)
	if err != nil {
		return err
	}

	modes := make([]search.Mode, 0, len(cfg.Sweep.Modes))
	for _, m := range cfg.Sweep.Modes {
		parsed, err := search.ParseMode(m)
		if err != nil {
			return err
		}
		modes = append(modes, parsed)
	}
	grid := sweep.Grid(cfg.Sweep.ChunkSizes, cfg.Sweep.Overlaps, cfg.Sweep.Cleaning, modes)

	cs, err := store.NewChunkStore(cfg.ChunkDBPath())
	if err != nil {
		return err
	}
	defer cs.Close()
	checkpoint, err := sweep.NewCheckpoint(cs.DB())
	if err != nil {
		return err
	}

	report, err := sweep.NewReportWriter(cfg.ReportsDir())
	if err != nil {
		return err
	}

	runner := sweep.Runner{
		Build: func(ctx context.Context, sc sweep.SweepConfig) (eval.SearchFunc, error) {
			return buildSweepConfig(ctx, cfg, chunksDir, sc)
		},
		Evaluate: func(ctx context.Context, sc sweep.SweepConfig, searchFn eval.SearchFunc) (*eval.Summary, error) {
			evaluator, err := eval.NewEvaluator(searchFn, cfg.Eval.K, nil)
			if err != nil {
				return nil, err
			}
			rep, err := evaluator.Evaluate(ctx, golds)
			if err != nil {
				return nil, err
			}
			return &rep.Summary, nil
		},
	}

	orch, err := sweep.NewOrchestrator(runner,
		sweep.WithCheckpoint(checkpoint),
		sweep.WithReportWriter(report),
		sweep.WithWorkers(cfg.Sweep.Workers),
	)
	if err != nil {
		return err
	}

	results, err := orch.Execute(ctx, grid)
	if err != nil {
		return err
	}

	r := ui.NewRenderer(os.Stdout, flagNoColor)
	r.SweepResults(results)
	fmt.Fprintf(os.Stdout, "report: %s\n", report.CSVPath())
	return nil
}

// sweepFeedPath names the chunk feed the external chunker produced for a
// chunking configuration.
func sweepFeedPath(dir string, sc sweep.SweepConfig) string {
	cleaning := "raw"
	if sc.CleaningEnabled {
		cleaning = "clean"
	}
	return filepath.Join(dir, fmt.Sprintf("chunks_c%d_o%d_%s.jsonl", sc.ChunkChars, sc.OverlapChars, cleaning))
}

// buildSweepConfig builds in-memory indexes for one configuration and
// returns the search function evaluation will drive. Sweep indexes are
// throwaway; only the persisted report and checkpoint survive the run.
func buildSweepConfig(ctx context.Context, cfg *config.Config, chunksDir string, sc sweep.SweepConfig) (eval.SearchFunc, error) {
	chunks, err := store.LoadChunksJSONL(sweepFeedPath(chunksDir, sc))
	if err != nil {
		return nil, err
	}

	opts := []search.EngineOption{
		search.WithWeights(cfg.Weights()),
		search.WithRRFK(cfg.Search.RRFConstant),
	}

	if sc.Mode == search.ModeBM25 || sc.Mode == search.ModeHybrid {
		bm25, err := store.BuildBM25Index(chunks, cfg.BM25Config())
		if err != nil {
			return nil, err
		}
		opts = append(opts, search.WithBM25(bm25))
	}

	if sc.Mode == search.ModeDense || sc.Mode == search.ModeHybrid {
		embedder, err := embed.New(embed.FactoryConfig{
			Provider:   cfg.Embeddings.Provider,
			Endpoint:   cfg.Embeddings.Endpoint,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
			BatchSize:  cfg.Embeddings.BatchSize,
			Timeout:    cfg.Embeddings.Timeout,
			CacheSize:  cfg.Embeddings.CacheSize,
		})
		if err != nil {
			return nil, err
		}
		vcfg := store.VectorIndexConfig{
			Backend:    cfg.Index.VectorBackend,
			Model:      embedder.ModelName(),
			Dimensions: embedder.Dimensions(),
			BatchSize:  cfg.Embeddings.BatchSize,
			M:          cfg.Index.HNSWM,
			EfSearch:   cfg.Index.HNSWEfSearch,
		}
		dense, err := store.BuildVectorIndex(ctx, chunks, embedder.EmbedBatch, vcfg)
		if err != nil {
			embedder.Close()
			return nil, err
		}
		opts = append(opts, search.WithDense(dense, embedder))
	}

	engine := search.NewEngine(opts...)
	return searchFuncForEval(engine, sc.Mode, cfg), nil
}
