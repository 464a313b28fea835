package plate

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/rewired-gh/trfret/internal/models"
)

// columnPlate is a two-column export: 4 donor readings, a blank separator row,
// 4 acceptor readings per column. The third column is empty.
const columnPlate = `100,50,
90,45,
80,40,
70,35,
,,
500,150,
430,135,
360,120,
290,700,
`

var wantDonor = []float64{100, 90, 80, 70, 50, 45, 40, 35}
var wantAcceptor = []float64{500, 430, 360, 290, 150, 135, 120, 700}

func TestParse_ColumnOrientation(t *testing.T) {
	rep, err := Parse(strings.NewReader(columnPlate), models.ColumnOrientation)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !reflect.DeepEqual(rep.Donor, wantDonor) {
		t.Errorf("Donor = %v, want %v", rep.Donor, wantDonor)
	}
	if !reflect.DeepEqual(rep.Acceptor, wantAcceptor) {
		t.Errorf("Acceptor = %v, want %v", rep.Acceptor, wantAcceptor)
	}
}

func TestParse_RowOrientation(t *testing.T) {
	rows := "100,90,80,70,0,500,430,360,290\n50,45,40,35,0,150,135,120,700\n"
	rep, err := Parse(strings.NewReader(rows), models.RowOrientation)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !reflect.DeepEqual(rep.Donor, wantDonor) || !reflect.DeepEqual(rep.Acceptor, wantAcceptor) {
		t.Errorf("Unexpected channels: %+v", rep)
	}
}

func TestParse_SingleColumnBlankLine(t *testing.T) {
	data := "\xEF\xBB\xBF10\r\n9\r\n8\r\n7\r\n\r\n50\r\n45\r\n40\r\n35\r\n"
	rep, err := Parse(strings.NewReader(data), models.ColumnOrientation)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !reflect.DeepEqual(rep.Donor, []float64{10, 9, 8, 7}) {
		t.Errorf("Donor = %v", rep.Donor)
	}
	if !reflect.DeepEqual(rep.Acceptor, []float64{50, 45, 40, 35}) {
		t.Errorf("Acceptor = %v", rep.Acceptor)
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"non-numeric", "100\nabc\n90\n80\n\n1\n2\n3\n4\n"},
		{"negative", "100\n-5\n90\n80\n\n1\n2\n3\n4\n"},
		{"ragged channels", "100\n90\n80\n70\n\n1\n2\n3\n"},
		{"no separator", "100\n90\n80\n70\n"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.data), models.ColumnOrientation)
			if !errors.Is(err, models.ErrMalformedInput) {
				t.Errorf("Expected ErrMalformedInput, got %v", err)
			}
		})
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	second := strings.Replace(columnPlate, "100,", "110,", 1)
	writeFile(t, filepath.Join(dir, "b.csv"), second)
	writeFile(t, filepath.Join(dir, "a.csv"), columnPlate)
	writeFile(t, filepath.Join(dir, "notes.txt"), "not a plate")

	set, err := Load(models.DatasetConfig{Path: dir, Orientation: models.ColumnOrientation})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(set) != 2 {
		t.Fatalf("Expected 2 replicates, got %d", len(set))
	}
	// Lexical order: a.csv is replicate 1.
	if set[1].Donor[0] != 100 || set[2].Donor[0] != 110 {
		t.Errorf("Unexpected replicate order: %v, %v", set[1].Donor, set[2].Donor)
	}
}

func TestLoad_SingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plate.csv")
	writeFile(t, path, columnPlate)

	set, err := Load(models.DatasetConfig{Path: path, Orientation: models.ColumnOrientation})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(set) != 1 || !reflect.DeepEqual(set[1].Donor, wantDonor) {
		t.Errorf("Unexpected set: %+v", set)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(models.DatasetConfig{Path: filepath.Join(dir, "missing")}); err == nil {
		t.Error("Expected error for missing path")
	}
	if _, err := Load(models.DatasetConfig{Path: dir}); !errors.Is(err, models.ErrMalformedInput) {
		t.Errorf("Expected ErrMalformedInput for empty directory, got %v", err)
	}

	writeFile(t, filepath.Join(dir, "a.csv"), columnPlate)
	writeFile(t, filepath.Join(dir, "b.csv"), "10\n9\n8\n7\n6\n5\n\n1\n2\n3\n4\n5\n6\n")
	if _, err := Load(models.DatasetConfig{Path: dir}); !errors.Is(err, models.ErrMalformedInput) {
		t.Errorf("Expected ErrMalformedInput for mismatched well counts, got %v", err)
	}
}
