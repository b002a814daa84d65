package cmd

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hayakawa-lab/jprag/internal/config"
	"github.com/hayakawa-lab/jprag/internal/embed"
	"github.com/hayakawa-lab/jprag/internal/search"
	"github.com/hayakawa-lab/jprag/internal/store"
	"github.com/hayakawa-lab/jprag/internal/ui"
)

func newSearchCmd() *cobra.Command {
	var mode string
	var topK int
	var rerank bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Query the indexes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if mode == "" {
				mode = cfg.Search.Mode
			}
			m, err := search.ParseMode(mode)
			if err != nil {
				return err
			}
			if topK <= 0 {
				topK = cfg.Search.TopK
			}

			query := strings.Join(args, " ")
			engine, closeAll, err := openEngine(cfg, m)
			if err != nil {
				return err
			}
			defer closeAll()

			results, err := engine.Search(cmd.Context(), query, search.Options{
				Mode:        m,
				TopK:        topK,
				FetchK:      cfg.Search.FetchK,
				Rerank:      rerank || cfg.Search.Rerank,
				RerankDepth: cfg.Search.RerankDepth,
			})
			if err != nil {
				return err
			}

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(results)
			}
			ui.NewRenderer(os.Stdout, flagNoColor).SearchResults(query, results)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "Retrieval mode: bm25, dense, or hybrid")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of results")
	cmd.Flags().BoolVar(&rerank, "rerank", false, "Rescore the fused head")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

// openEngine loads the persisted artifacts a mode needs and assembles the
// engine. The returned closer releases the chunk store and embedder.
func openEngine(cfg *config.Config, mode search.Mode) (*search.Engine, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	cs, err := store.NewChunkStore(cfg.ChunkDBPath())
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, func() { cs.Close() })

	opts := []search.EngineOption{
		search.WithChunkStore(cs),
		search.WithWeights(cfg.Weights()),
		search.WithRRFK(cfg.Search.RRFConstant),
		search.WithReranker(search.NewReranker(search.NgramOverlapScorer, search.TextLookupFromStore(cs))),
	}

	if mode == search.ModeBM25 || mode == search.ModeHybrid {
		bm25, err := store.LoadBM25Index(cfg.BM25IndexPath())
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		opts = append(opts, search.WithBM25(bm25))
	}

	if mode == search.ModeDense || mode == search.ModeHybrid {
		dense, err := store.LoadVectorIndex(cfg.VectorIndexPath())
		if err != nil {
			closeAll()
			return nil, nil, err
		}
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
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, func() { embedder.Close() })

		if err := store.VerifyModel(dense, embedder.ModelName(), embedder.Dimensions()); err != nil {
			closeAll()
			return nil, nil, err
		}
		opts = append(opts, search.WithDense(dense, embedder))
	}

	return search.NewEngine(opts...), closeAll, nil
}

// searchFuncForEval adapts an engine to the evaluator's ranked-ID contract.
func searchFuncForEval(engine *search.Engine, mode search.Mode, cfg *config.Config) func(ctx context.Context, query string) ([]string, error) {
	return func(ctx context.Context, query string) ([]string, error) {
		results, err := engine.Search(ctx, query, search.Options{
			Mode:   mode,
			TopK:   cfg.Eval.K,
			FetchK: cfg.Search.FetchK,
		})
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(results))
		for i, r := range results {
			ids[i] = r.ChunkID
		}
		return ids, nil
	}
}
