// Package report exports job listings as YAML or XLSX workbooks.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/raphaelgruber/cutout/internal/jobs"
	"github.com/raphaelgruber/cutout/internal/metrics"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// Row is one job as it appears in a report.
type Row struct {
	ID        string    `yaml:"id"`
	Category  string    `yaml:"category"`
	File      string    `yaml:"file"`
	Size      string    `yaml:"size"`
	Phase     string    `yaml:"phase"`
	Status    string    `yaml:"status"`
	Progress  int       `yaml:"progress"`
	Handle    string    `yaml:"handle,omitempty"`
	Original  string    `yaml:"original,omitempty"`
	Result    string    `yaml:"result,omitempty"`
	Error     string    `yaml:"error,omitempty"`
	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// Report is a point-in-time listing of jobs plus session statistics.
type Report struct {
	GeneratedAt time.Time         `yaml:"generated_at"`
	Jobs        []Row             `yaml:"jobs"`
	Metrics     *metrics.Snapshot `yaml:"metrics,omitempty"`
}

// Build collects every category of store in display order.
// A nil collector leaves Metrics empty.
func Build(store *jobs.Store, collector *metrics.Collector, now time.Time) Report {
	r := Report{GeneratedAt: now.UTC(), Jobs: []Row{}}
	for _, c := range jobs.Categories() {
		for _, j := range store.Snapshot(c) {
			r.Jobs = append(r.Jobs, RowOf(j))
		}
	}
	if collector != nil {
		snap := collector.Snapshot()
		r.Metrics = &snap
	}
	return r
}

// RowOf converts a job to its report row.
func RowOf(j jobs.Job) Row {
	return Row{
		ID:        j.ID,
		Category:  string(j.Category),
		File:      j.File.Name,
		Size:      j.File.SizeMB(),
		Phase:     string(j.Phase),
		Status:    j.StatusLine(),
		Progress:  j.Progress,
		Handle:    j.Handle,
		Original:  j.OriginalURL,
		Result:    j.ResultURL,
		Error:     j.Error,
		CreatedAt: j.CreatedAt.UTC(),
		UpdatedAt: j.UpdatedAt.UTC(),
	}
}

// WriteYAML encodes r to w.
func WriteYAML(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("yaml encode: %w", err)
	}
	return enc.Close()
}

// Summary counts jobs per category and phase.
func (r Report) Summary() map[string]map[string]int {
	out := map[string]map[string]int{}
	for _, row := range r.Jobs {
		if out[row.Category] == nil {
			out[row.Category] = map[string]int{}
		}
		out[row.Category][row.Phase]++
	}
	return out
}

var phaseColumns = []jobs.Phase{
	jobs.PhaseUnsubmitted, jobs.PhaseQueued, jobs.PhaseRunning, jobs.PhaseSucceeded, jobs.PhaseFailed,
}

// XLSX renders r as a workbook with a Jobs sheet and a Summary sheet.
func XLSX(r Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Jobs"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headers := []string{"ID", "Category", "File", "Size", "Phase", "Status", "Progress", "Handle", "Original", "Result", "Error", "Created", "Updated"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range r.Jobs {
		values := []any{
			row.ID, row.Category, row.File, row.Size, row.Phase, row.Status, row.Progress,
			row.Handle, row.Original, row.Result, row.Error,
			row.CreatedAt.Format(time.RFC3339), row.UpdatedAt.Format(time.RFC3339),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	_ = f.SetColWidth(sheet, "A", "B", 18) // id, category
	_ = f.SetColWidth(sheet, "C", "C", 32) // file
	_ = f.SetColWidth(sheet, "F", "F", 28) // status
	_ = f.SetColWidth(sheet, "I", "J", 48) // locations
	_ = f.SetColWidth(sheet, "K", "K", 40) // error

	const summary = "Summary"
	if _, err := f.NewSheet(summary); err != nil {
		return nil, fmt.Errorf("create summary sheet: %w", err)
	}
	_ = f.SetCellValue(summary, "A1", "Category")
	for i, p := range phaseColumns {
		cell, _ := excelize.CoordinatesToCellName(i+2, 1)
		_ = f.SetCellValue(summary, cell, string(p))
	}
	counts := r.Summary()
	for i, c := range jobs.Categories() {
		rowNum := i + 2
		_ = f.SetCellValue(summary, fmt.Sprintf("A%d", rowNum), string(c))
		for j, p := range phaseColumns {
			cell, _ := excelize.CoordinatesToCellName(j+2, rowNum)
			_ = f.SetCellValue(summary, cell, counts[string(c)][string(p)])
		}
	}
	_ = f.SetColWidth(summary, "A", "A", 20)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
