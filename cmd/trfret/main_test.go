package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rewired-gh/trfret/internal/config"
	"github.com/rewired-gh/trfret/internal/models"
)

type recordingNotifier struct {
	workbooks []string
}

func (r *recordingNotifier) Notify(ctx context.Context, run *models.Run, workbook string) error {
	r.workbooks = append(r.workbooks, workbook)
	return nil
}

func writePlates(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, alpha := range map[string]string{"rep1.csv": "700", "rep2.csv": "630"} {
		csv := strings.Join([]string{
			"100,50", "90,45", "80,40", "70,35", ",",
			"500,150", "430,135", "360,120", "290," + alpha,
		}, "\n") + "\n"
		if err := os.WriteFile(filepath.Join(dir, name), []byte(csv), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.Output.Dir = t.TempDir()
	cfg.Output.Chart = false
	cfg.Output.Summary = config.SummaryJSON
	cfg.Fitting.Models = []string{"simple"}
	return cfg
}

func TestProcess(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	a, err := newApp(cfg, &out)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	rec := &recordingNotifier{}
	a.notifier = rec

	if err := a.process(context.Background(), cfg.DatasetFor(writePlates(t))); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	var summary map[string]any
	if err := json.Unmarshal(out.Bytes(), &summary); err != nil {
		t.Fatalf("Expected JSON summary, got %q: %v", out.String(), err)
	}
	if len(rec.workbooks) != 1 {
		t.Fatalf("Expected one notification, got %d", len(rec.workbooks))
	}
	if _, err := os.Stat(rec.workbooks[0]); err != nil {
		t.Errorf("Expected workbook at %s: %v", rec.workbooks[0], err)
	}
	if filepath.Dir(rec.workbooks[0]) != cfg.Output.Dir {
		t.Errorf("Expected workbook in %s, got %s", cfg.Output.Dir, rec.workbooks[0])
	}
}

func TestProcess_NoWorkbook(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Workbook = false
	cfg.Output.Summary = config.SummaryNone
	var out bytes.Buffer
	a, err := newApp(cfg, &out)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	rec := &recordingNotifier{}
	a.notifier = rec

	if err := a.process(context.Background(), cfg.DatasetFor(writePlates(t))); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("Expected no summary output, got %q", out.String())
	}
	if len(rec.workbooks) != 1 || rec.workbooks[0] != "" {
		t.Errorf("Expected notification without workbook, got %v", rec.workbooks)
	}
}

func TestProcess_MissingPath(t *testing.T) {
	cfg := testConfig(t)
	a, err := newApp(cfg, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	if err := a.process(context.Background(), cfg.DatasetFor(filepath.Join(t.TempDir(), "missing.csv"))); err == nil {
		t.Error("Expected error for missing dataset")
	}
}

func TestInteractive_ContinuesAfterFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Summary = config.SummaryNone
	var out bytes.Buffer
	a, err := newApp(cfg, &out)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	rec := &recordingNotifier{}
	a.notifier = rec

	input := "missing.csv\n\n\n\n\n" + writePlates(t) + "\n\n\n\n\nq\n"
	a.interactive(context.Background(), newPrompter(strings.NewReader(input), &out))

	if len(rec.workbooks) != 1 {
		t.Errorf("Expected one successful run, got %d", len(rec.workbooks))
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := testConfig(t)
	for name, value := range map[string]string{
		"max-conc":      "5",
		"dilution":      "3",
		"increasing":    "true",
		"row-format":    "true",
		"normalization": "global",
	} {
		if err := flag.Set(name, value); err != nil {
			t.Fatalf("flag.Set(%s) failed: %v", name, err)
		}
	}
	applyFlags(cfg)

	if cfg.Dataset.MaxConcentration != 5 || cfg.Dataset.DilutionFactor != 3 {
		t.Errorf("Unexpected dataset values: %+v", cfg.Dataset)
	}
	if cfg.Dataset.Ordering != "increasing" || cfg.Dataset.Orientation != "row" {
		t.Errorf("Unexpected layout values: %+v", cfg.Dataset)
	}
	if cfg.Analysis.Normalization != "global" {
		t.Errorf("Expected global normalization, got %s", cfg.Analysis.Normalization)
	}
	if cfg.Output.Summary != config.SummaryJSON {
		t.Errorf("Unset flag should leave summary alone, got %s", cfg.Output.Summary)
	}
}
