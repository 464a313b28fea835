// Package plate reads plate-reader exports into raw dual-channel replicates.
//
// Each CSV file holds one replicate. In column orientation every non-empty
// column lists its donor (615) readings first, then after a blank or zero
// separator cell its acceptor (665) readings. Row-oriented files are
// transposed before the columns are read. A directory path loads every *.csv
// beneath it, one replicate per file, in lexical path order.
package plate

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rewired-gh/trfret/internal/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Load reads the dataset at d.Path. Replicates are numbered from 1.
func Load(d models.DatasetConfig) (models.ReplicateSet, error) {
	files, err := Files(d.Path)
	if err != nil {
		return nil, err
	}

	set := make(models.ReplicateSet, len(files))
	for i, path := range files {
		rep, err := ReadFile(path, d.Orientation)
		if err != nil {
			return nil, err
		}
		set[i+1] = rep
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// Files resolves path into the CSV files that make up a dataset.
func Files(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(p), ".csv") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan dataset directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no .csv files in %s", models.ErrMalformedInput, path)
	}
	sort.Strings(files)
	return files, nil
}

// ReadFile parses one replicate file.
func ReadFile(path string, orientation models.Orientation) (models.RawReplicate, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.RawReplicate{}, fmt.Errorf("failed to open plate file: %w", err)
	}
	defer f.Close()

	rep, err := Parse(f, orientation)
	if err != nil {
		return models.RawReplicate{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return rep, nil
}

// Parse reads one replicate from CSV.
func Parse(r io.Reader, orientation models.Orientation) (models.RawReplicate, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return models.RawReplicate{}, fmt.Errorf("failed to read plate: %w", err)
	}
	records, err := readRecords(bytes.TrimPrefix(data, utf8BOM))
	if err != nil {
		return models.RawReplicate{}, err
	}

	grid, err := parseGrid(records)
	if err != nil {
		return models.RawReplicate{}, err
	}
	if orientation == models.RowOrientation {
		grid = transpose(grid)
	}

	rep := splitChannels(grid)
	if err := rep.Validate(); err != nil {
		return models.RawReplicate{}, err
	}
	return rep, nil
}

// readRecords splits CSV data line by line. Blank lines are kept as empty
// records since they separate the channels of single-column plates, which
// csv.Reader would otherwise drop.
func readRecords(data []byte) ([][]string, error) {
	var records [][]string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for line := 1; sc.Scan(); line++ {
		text := sc.Text()
		if strings.TrimSpace(text) == "" {
			records = append(records, nil)
			continue
		}
		rdr := csv.NewReader(strings.NewReader(text))
		rdr.FieldsPerRecord = -1
		rdr.TrimLeadingSpace = true
		rec, err := rdr.Read()
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", models.ErrMalformedInput, line, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read plate: %w", err)
	}
	return records, nil
}

// cell is one parsed reading; blank cells are not set.
type cell struct {
	value float64
	set   bool
}

// parseGrid converts records to a rectangular grid, padding short rows with blanks.
func parseGrid(records [][]string) ([][]cell, error) {
	width := 0
	for _, rec := range records {
		if len(rec) > width {
			width = len(rec)
		}
	}

	grid := make([][]cell, len(records))
	for i, rec := range records {
		grid[i] = make([]cell, width)
		for j, raw := range rec {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %d: %q is not a number", models.ErrMalformedInput, i+1, j+1, raw)
			}
			if v < 0 {
				return nil, fmt.Errorf("%w: row %d column %d: negative reading %v", models.ErrMalformedInput, i+1, j+1, v)
			}
			grid[i][j] = cell{value: v, set: true}
		}
	}
	return grid, nil
}

func transpose(grid [][]cell) [][]cell {
	if len(grid) == 0 {
		return grid
	}
	out := make([][]cell, len(grid[0]))
	for j := range out {
		out[j] = make([]cell, len(grid))
		for i := range grid {
			out[j][i] = grid[i][j]
		}
	}
	return out
}

// splitChannels walks columns left to right. Positive readings go to the donor
// channel until the first blank or zero cell of the column, then to the acceptor.
// Columns without any non-zero reading are skipped.
func splitChannels(grid [][]cell) models.RawReplicate {
	var rep models.RawReplicate
	if len(grid) == 0 {
		return rep
	}
	for j := range grid[0] {
		if !columnHasReadings(grid, j) {
			continue
		}
		donor := true
		for i := range grid {
			c := grid[i][j]
			if c.set && c.value > 0 {
				if donor {
					rep.Donor = append(rep.Donor, c.value)
				} else {
					rep.Acceptor = append(rep.Acceptor, c.value)
				}
				continue
			}
			donor = false
		}
	}
	return rep
}

func columnHasReadings(grid [][]cell, j int) bool {
	for i := range grid {
		if grid[i][j].set && grid[i][j].value != 0 {
			return true
		}
	}
	return false
}
