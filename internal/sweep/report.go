package sweep

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// csvHeader is written once when the report file is created.
var csvHeader = []string{
	"run_id", "config_key", "chunk_chars", "overlap_chars", "cleaning", "mode",
	"state", "recall", "hit_rate", "mrr", "ndcg", "evaluated", "malformed", "message",
}

// ReportWriter appends sweep rows to a CSV report and failures to a JSONL
// log. Appends are serialized in-process with a mutex and across processes
// with a file lock, so concurrent sweeps on a shared results directory
// never interleave partial rows.
type ReportWriter struct {
	mu       sync.Mutex
	csvPath  string
	failPath string
	lock     *flock.Flock
}

// NewReportWriter prepares a writer rooted at dir.
func NewReportWriter(dir string) (*ReportWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}
	return &ReportWriter{
		csvPath:  filepath.Join(dir, "sweep_results.csv"),
		failPath: filepath.Join(dir, "sweep_failures.jsonl"),
		lock:     flock.New(filepath.Join(dir, ".sweep.lock")),
	}, nil
}

// CSVPath returns the report file location.
func (w *ReportWriter) CSVPath() string { return w.csvPath }

// FailureLogPath returns the failure log location.
func (w *ReportWriter) FailureLogPath() string { return w.failPath }

// Append writes one result row.
func (w *ReportWriter) Append(runID string, res Result) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.lock.Lock(); err != nil {
		return fmt.Errorf("acquire report lock: %w", err)
	}
	defer w.lock.Unlock()

	if err := w.appendCSV(runID, res); err != nil {
		return err
	}
	if res.State == StateFailed {
		return w.appendFailure(runID, res)
	}
	return nil
}

func (w *ReportWriter) appendCSV(runID string, res Result) error {
	_, statErr := os.Stat(w.csvPath)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(w.csvPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open sweep report: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if fresh {
		if err := cw.Write(csvHeader); err != nil {
			return fmt.Errorf("write report header: %w", err)
		}
	}

	row := []string{
		runID,
		res.Config.Key(),
		strconv.Itoa(res.Config.ChunkChars),
		strconv.Itoa(res.Config.OverlapChars),
		strconv.FormatBool(res.Config.CleaningEnabled),
		string(res.Config.Mode),
		string(res.State),
		"", "", "", "", "", "",
		res.Message,
	}
	if res.Summary != nil {
		row[7] = formatMetric(res.Summary.Recall)
		row[8] = formatMetric(res.Summary.HitRate)
		row[9] = formatMetric(res.Summary.MRR)
		row[10] = formatMetric(res.Summary.NDCG)
		row[11] = strconv.Itoa(res.Summary.Evaluated)
		row[12] = strconv.Itoa(res.Summary.Malformed)
	}
	if err := cw.Write(row); err != nil {
		return fmt.Errorf("write report row: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

type failureRecord struct {
	RunID     string      `json:"run_id"`
	ConfigKey string      `json:"config_key"`
	Config    SweepConfig `json:"config"`
	Stage     string      `json:"stage"`
	Message   string      `json:"message"`
	Time      string      `json:"time"`
}

func (w *ReportWriter) appendFailure(runID string, res Result) error {
	f, err := os.OpenFile(w.failPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open failure log: %w", err)
	}
	defer f.Close()

	rec := failureRecord{
		RunID:     runID,
		ConfigKey: res.Config.Key(),
		Config:    res.Config,
		Stage:     res.Stage,
		Message:   res.Message,
		Time:      time.Now().UTC().Format(time.RFC3339),
	}
	return json.NewEncoder(f).Encode(rec)
}

func formatMetric(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
