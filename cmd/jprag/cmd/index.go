package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hayakawa-lab/jprag/internal/config"
	"github.com/hayakawa-lab/jprag/internal/embed"
	"github.com/hayakawa-lab/jprag/internal/store"
)

func newIndexCmd() *cobra.Command {
	var chunksPath string
	var skipDense bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the BM25 and dense indexes from a chunk feed",
		Long: `Reads a JSONL chunk feed, stores chunk text in the chunk database, and
builds the BM25 inverted index and the dense vector index as persisted
artifacts in the data directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if chunksPath == "" {
				chunksPath = cfg.Paths.Chunks
			}
			if chunksPath == "" {
				return fmt.Errorf("no chunk feed: pass --chunks or set paths.chunks in config")
			}
			return runIndex(cmd.Context(), cfg, chunksPath, skipDense)
		},
	}

	cmd.Flags().StringVar(&chunksPath, "chunks", "", "Chunk feed JSONL file")
	cmd.Flags().BoolVar(&skipDense, "skip-dense", false, "Build only the BM25 index")
	return cmd
}

func runIndex(ctx context.Context, cfg *config.Config, chunksPath string, skipDense bool) error {
	start := time.Now()
	log := slog.Default()

	chunks, err := store.LoadChunksJSONL(chunksPath)
	if err != nil {
		return err
	}
	log.Info("chunk feed loaded", "chunks", len(chunks), "path", chunksPath)

	cs, err := store.NewChunkStore(cfg.ChunkDBPath())
	if err != nil {
		return err
	}
	defer cs.Close()
	if err := cs.SaveChunks(ctx, chunks); err != nil {
		return err
	}

	bm25, err := store.BuildBM25Index(chunks, cfg.BM25Config())
	if err != nil {
		return err
	}
	if err := bm25.Save(cfg.BM25IndexPath()); err != nil {
		return err
	}
	if err := cs.SetState(ctx, store.StateKeyNgramSize, strconv.Itoa(cfg.Index.NgramSize)); err != nil {
		return err
	}
	log.Info("bm25 index built",
		"chunks", bm25.ChunkCount(), "terms", bm25.TermCount(), "path", cfg.BM25IndexPath())

	if !skipDense {
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
			return err
		}
		defer embedder.Close()

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
			return err
		}
		if err := dense.Save(cfg.VectorIndexPath()); err != nil {
			return err
		}
		if err := cs.SetState(ctx, store.StateKeyEmbedModel, embedder.ModelName()); err != nil {
			return err
		}
		log.Info("dense index built",
			"vectors", dense.Count(),
			"backend", cfg.Index.VectorBackend,
			"model", dense.Model(),
			"path", cfg.VectorIndexPath())
	}

	log.Info("indexing complete", "duration", time.Since(start).Round(time.Millisecond).String())
	return nil
}
