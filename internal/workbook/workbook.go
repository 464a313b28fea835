// Package workbook writes a run to an xlsx workbook.
//
// The Normalized sheet holds the per-replicate normalized signal with its
// statistics, the fit table and, for every converged model, a fitted curve
// sampled across the tested range. A rendered chart is embedded next to the
// data. The Unnormalized sheet holds the corrected signal and its statistics.
//
// Files are written to a temporary name and renamed into place, so a failed
// write never leaves a partial workbook behind.
package workbook

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rewired-gh/trfret/internal/fitting"
	"github.com/rewired-gh/trfret/internal/logger"
	"github.com/rewired-gh/trfret/internal/models"
)

// Sheet names
const (
	NormalizedSheet   = "Normalized"
	UnnormalizedSheet = "Unnormalized"
)

const timestampLayout = "20060102-150405"

// Writer saves run workbooks
type Writer struct {
	dir             string
	chart           bool
	filePermissions os.FileMode
	dirPermissions  os.FileMode
	now             func() time.Time
}

// NewWriter creates a Writer. An empty dir writes next to the input.
func NewWriter(dir string, chart bool) *Writer {
	return &Writer{
		dir:             dir,
		chart:           chart,
		filePermissions: 0644,
		dirPermissions:  0755,
		now:             time.Now,
	}
}

// OutputPath names the workbook for a dataset path: <stem>_<stamp>.xlsx next to
// a file input, or <dir>/<dirname>_<stamp>.xlsx for a directory input. A
// non-empty dir overrides the directory.
func OutputPath(input, dir string, at time.Time) string {
	stamp := at.Format(timestampLayout)
	clean := filepath.Clean(input)

	var parent, stem string
	if info, err := os.Stat(clean); err == nil && info.IsDir() {
		parent, stem = clean, filepath.Base(clean)
	} else {
		parent = filepath.Dir(clean)
		stem = strings.TrimSuffix(filepath.Base(clean), filepath.Ext(clean))
	}
	if dir != "" {
		parent = dir
	}
	return filepath.Join(parent, fmt.Sprintf("%s_%s.xlsx", stem, stamp))
}

// Save writes the run workbook and returns its path.
func (w *Writer) Save(run *models.Run) (string, error) {
	path := OutputPath(run.Dataset.Path, w.dir, w.now())

	f, err := Build(run, w.chart)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn("Failed to close workbook: %v", err)
		}
	}()

	// Create output directory if needed
	if err := os.MkdirAll(filepath.Dir(path), w.dirPermissions); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	// Write to temporary file first (atomic write)
	tempPath := path + ".tmp"
	tmp, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, w.filePermissions)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if err := f.Write(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("failed to write workbook: %w", err)
	}

	// Rename temp file to actual file
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath) // Clean up temp file on rename failure
		return "", fmt.Errorf("failed to rename file: %w", err)
	}

	logger.Info("Workbook written to %s", path)
	return path, nil
}

// Build lays the run out in a new workbook. The caller closes it.
func Build(run *models.Run, withChart bool) (*excelize.File, error) {
	f := excelize.NewFile()
	ok := false
	defer func() {
		if !ok {
			_ = f.Close()
		}
	}()

	if err := f.SetSheetName("Sheet1", NormalizedSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(UnnormalizedSheet); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	l := layout{f: f, bold: bold}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:       "TR-FRET binding analysis",
		Identifier:  run.ID,
		Description: run.Dataset.Path,
		Created:     run.StartedAt.UTC().Format(time.RFC3339),
	}); err != nil {
		return nil, err
	}

	col, err := l.signalTable(NormalizedSheet, run.Normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to write normalized data: %w", err)
	}
	fitRow := run.Normalized.Concentrations.Len() + 3
	if err := l.fitTable(NormalizedSheet, fitRow, run.Fits); err != nil {
		return nil, fmt.Errorf("failed to write fit table: %w", err)
	}
	curves := fittedCurves(run)
	curveCol := max(col, len(fitHeader)) + 2
	if err := l.curveTable(NormalizedSheet, curveCol, curves); err != nil {
		return nil, fmt.Errorf("failed to write fitted curves: %w", err)
	}
	if _, err := l.signalTable(UnnormalizedSheet, run.Corrected); err != nil {
		return nil, fmt.Errorf("failed to write corrected data: %w", err)
	}

	if withChart {
		png, err := renderChart(run.Normalized, curves)
		if err != nil {
			logger.Warn("Skipping chart: %v", err)
		} else {
			anchor, _ := excelize.CoordinatesToCellName(curveCol+2*len(curves)+1, 1)
			if err := f.AddPictureFromBytes(NormalizedSheet, anchor, &excelize.Picture{
				Extension: ".png",
				File:      png,
				Format:    &excelize.GraphicOptions{AltText: "Normalized binding curve"},
			}); err != nil {
				return nil, fmt.Errorf("failed to embed chart: %w", err)
			}
		}
	}

	ok = true
	return f, nil
}

type layout struct {
	f    *excelize.File
	bold int
}

func (l layout) row(sheet string, col, row int, values []interface{}, header bool) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := l.f.SetSheetRow(sheet, cell, &values); err != nil {
		return err
	}
	if !header || len(values) == 0 {
		return nil
	}
	last, err := excelize.CoordinatesToCellName(col+len(values)-1, row)
	if err != nil {
		return err
	}
	return l.f.SetCellStyle(sheet, cell, last, l.bold)
}

// signalTable writes concentrations, one column per replicate, then the
// statistics. It returns the last column used.
func (l layout) signalTable(sheet string, view models.SignalView) (int, error) {
	indices := view.Signal.Indices()
	header := []interface{}{"Concentration (nM)", "log10 Concentration"}
	for _, idx := range indices {
		header = append(header, fmt.Sprintf("Replicate %d", idx))
	}
	header = append(header, "Average", "Standard Deviation", "Standard Error")
	if err := l.row(sheet, 1, 1, header, true); err != nil {
		return 0, err
	}

	for i := 0; i < view.Concentrations.Len(); i++ {
		values := []interface{}{view.Concentrations.Nanomolar[i], view.Concentrations.Log10[i]}
		for _, idx := range indices {
			values = append(values, view.Signal[idx][i])
		}
		values = append(values, view.Statistics.Average[i], view.Statistics.Dispersion[i], view.Statistics.StdError[i])
		if err := l.row(sheet, 1, i+2, values, false); err != nil {
			return 0, err
		}
	}
	return len(header), nil
}

var fitHeader = []interface{}{"Model", "Status", "Parameter", "Value", "CI Lower", "CI Upper",
	"Standard Deviation", "Standard Error", "Degrees of Freedom", "Points Used", "SSR"}

// fitTable writes one row per model parameter starting at row.
func (l layout) fitTable(sheet string, row int, fits []models.FitResult) error {
	if err := l.row(sheet, 1, row, fitHeader, true); err != nil {
		return err
	}
	for _, fit := range fits {
		for _, p := range fit.Parameters {
			row++
			values := []interface{}{fit.Model, string(fit.Status), p.Name, p.Value, p.CILower, p.CIUpper,
				p.Dispersion, p.StdError, fit.DOF, fit.PointsUsed, fit.SSR}
			if err := l.row(sheet, 1, row, values, false); err != nil {
				return err
			}
		}
	}
	return nil
}

type curve struct {
	model string
	x, y  []float64
}

func fittedCurves(run *models.Run) []curve {
	nm := run.Normalized.Concentrations.Nanomolar
	if len(nm) < 2 {
		return nil
	}
	lo, hi := nm[0], nm[0]
	for _, v := range nm {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	var curves []curve
	for _, fit := range run.Fits {
		if !fit.Succeeded() {
			continue
		}
		x, y, err := fitting.Curve(fit, lo, hi, fitting.CurvePoints)
		if err != nil {
			logger.Warn("Skipping %s curve: %v", fit.Model, err)
			continue
		}
		curves = append(curves, curve{model: fit.Model, x: x, y: y})
	}
	return curves
}

// curveTable writes a concentration/value column pair per curve from col.
func (l layout) curveTable(sheet string, col int, curves []curve) error {
	for k, c := range curves {
		start := col + 2*k
		if err := l.row(sheet, start, 1, []interface{}{c.model + " Concentration (nM)", c.model + " Fit"}, true); err != nil {
			return err
		}
		for i := range c.x {
			if err := l.row(sheet, start, i+2, []interface{}{c.x[i], c.y[i]}, false); err != nil {
				return err
			}
		}
	}
	return nil
}
