package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hayakawa-lab/jprag/internal/eval"
	"github.com/hayakawa-lab/jprag/internal/search"
	"github.com/hayakawa-lab/jprag/internal/ui"
)

func newEvalCmd() *cobra.Command {
	var goldPath string
	var mode string
	var k int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate retrieval quality against a gold question set",
		Long: `Runs every gold question through the selected retrieval mode and reports
Recall@k, HitRate@k, MRR, and nDCG@k. Questions without gold targets are
excluded from the averages and counted as malformed.`,
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
			if mode == "" {
				mode = cfg.Search.Mode
			}
			m, err := search.ParseMode(mode)
			if err != nil {
				return err
			}
			if k > 0 {
				cfg.Eval.K = k
			}

			golds, err := eval.LoadGoldJSONL(goldPath)
			if err != nil {
				return err
			}

			engine, closeAll, err := openEngine(cfg, m)
			if err != nil {
				return err
			}
			defer closeAll()

			evaluator, err := eval.NewEvaluator(searchFuncForEval(engine, m, cfg), cfg.Eval.K, nil)
			if err != nil {
				return err
			}
			report, err := evaluator.Evaluate(cmd.Context(), golds)
			if err != nil {
				return err
			}

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(report)
			}
			ui.NewRenderer(os.Stdout, flagNoColor).EvalSummary(report.Summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&goldPath, "gold", "", "Gold question JSONL file")
	cmd.Flags().StringVar(&mode, "mode", "", "Retrieval mode: bm25, dense, or hybrid")
	cmd.Flags().IntVar(&k, "k", 0, "Metric cutoff")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the full report as JSON")
	return cmd
}
