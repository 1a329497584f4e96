package sweep

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/banshee-data/imufusion/internal/fsutil"
)

// File names written at the top of the results directory.
const (
	ConvergenceFile = "convergence.csv"
	AccuracyFile    = "accuracy.csv"
	SummaryFile     = "summary.json"
)

// GainFileName returns the per-gain file name, e.g. "0007.csv".
func GainFileName(index int) string {
	return fmt.Sprintf("%04d.csv", index)
}

// RepetitionDir returns the directory holding one repetition's files.
func RepetitionDir(root string, rep int) string {
	return filepath.Join(root, strconv.Itoa(rep))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// CSVWriter writes flat numeric rows (no header) to an io.Writer.
type CSVWriter struct {
	w   *csv.Writer
	c   io.Closer
	rec []string
}

// NewCSVWriter wraps w. If w is an io.Closer it is closed by Close.
func NewCSVWriter(w io.Writer) *CSVWriter {
	cw := &CSVWriter{w: csv.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		cw.c = c
	}
	return cw
}

// CreateCSV creates path (and its directory) on fs.
func CreateCSV(fs fsutil.FileSystem, path string) (*CSVWriter, error) {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return NewCSVWriter(f), nil
}

// WriteRow writes one row with six decimals per value.
func (c *CSVWriter) WriteRow(vals []float64) error {
	c.rec = c.rec[:0]
	for _, v := range vals {
		c.rec = append(c.rec, formatFloat(v))
	}
	return c.w.Write(c.rec)
}

// Close flushes and closes the underlying writer.
func (c *CSVWriter) Close() error {
	c.w.Flush()
	err := c.w.Error()
	if c.c != nil {
		if cerr := c.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// ReadCSV parses a flat numeric CSV file.
func ReadCSV(fs fsutil.FileSystem, path string) ([][]float64, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	rows := make([][]float64, len(records))
	for i, rec := range records {
		rows[i] = make([]float64, len(rec))
		for j, s := range rec {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: invalid float '%s': %w", path, i, s, err)
			}
			rows[i][j] = v
		}
	}
	return rows, nil
}

// WriteTrace writes the quaternion and Euler files of one trace.
func WriteTrace(fs fsutil.FileSystem, quatPath, eulerPath string, t *Trace) error {
	for _, out := range []struct {
		path string
		row  func(int) []float64
	}{
		{quatPath, t.QuatRow},
		{eulerPath, t.EulerRow},
	} {
		w, err := CreateCSV(fs, out.path)
		if err != nil {
			return err
		}
		for i := 0; i < t.Len(); i++ {
			if err := w.WriteRow(out.row(i)); err != nil {
				w.Close()
				return fmt.Errorf("failed to write %s: %w", out.path, err)
			}
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("failed to write %s: %w", out.path, err)
		}
	}
	return nil
}

// WriteConvergence writes one row per gain: roll, pitch, yaw convergence
// seconds for each variant, then gain.
func WriteConvergence(fs fsutil.FileSystem, path string, results []GainResult) error {
	return writeRows(fs, path, results, func(r GainResult) []float64 {
		row := make([]float64, 0, 3*len(r.Convergence)+1)
		for _, c := range r.Convergence {
			row = append(row, c[0], c[1], c[2])
		}
		return append(row, r.Gain)
	})
}

// WriteAccuracy writes one row per gain: mean and standard deviation of
// the post-convergence error for each variant, then gain.
func WriteAccuracy(fs fsutil.FileSystem, path string, results []GainResult) error {
	return writeRows(fs, path, results, func(r GainResult) []float64 {
		row := make([]float64, 0, 2*len(r.Accuracy)+1)
		for v := range r.Accuracy {
			row = append(row, r.Accuracy[v], r.AccuracyStd[v])
		}
		return append(row, r.Gain)
	})
}

func writeRows(fs fsutil.FileSystem, path string, results []GainResult, row func(GainResult) []float64) error {
	w, err := CreateCSV(fs, path)
	if err != nil {
		return err
	}
	for _, r := range results {
		if err := w.WriteRow(row(r)); err != nil {
			w.Close()
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Summary describes a completed sweep.
type Summary struct {
	RunID       string        `json:"run_id"`
	DataSource  string        `json:"data_source"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Samples     int           `json:"samples"`
	Repetitions int           `json:"repetitions"`
	Variants    []string      `json:"variants"`
	Gains       []float64     `json:"gains"`
	Results     []GainSummary `json:"results"`
	Version     string        `json:"version,omitempty"`
}

// GainSummary is the per-gain entry of a Summary.
type GainSummary struct {
	Gain            float64   `json:"gain"`
	ConvergenceSecs []float64 `json:"convergence_secs"` // per variant, -1 if never
	AccuracyDeg     []float64 `json:"accuracy_deg"`
	AccuracyStdDeg  []float64 `json:"accuracy_std_deg"`
}

// summarize converts aggregated results to their JSON form.
func summarize(results []GainResult) []GainSummary {
	out := make([]GainSummary, len(results))
	for i, r := range results {
		gs := GainSummary{Gain: r.Gain, AccuracyDeg: r.Accuracy, AccuracyStdDeg: r.AccuracyStd}
		for v := range r.Convergence {
			gs.ConvergenceSecs = append(gs.ConvergenceSecs, r.ConvergenceTime(v))
		}
		out[i] = gs
	}
	return out
}

// WriteSummary writes s as indented JSON.
func WriteSummary(fs fsutil.FileSystem, path string, s *Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := fs.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// ReadSummary loads a summary written by WriteSummary.
func ReadSummary(fs fsutil.FileSystem, path string) (*Summary, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse summary: %w", err)
	}
	return &s, nil
}
