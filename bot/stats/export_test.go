package stats

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/m3rciful/quizbot/bot/quiz"
)

func TestXLSXExporterWritesRankedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.xlsx")
	exp := NewXLSXExporter(path)

	users := map[string]quiz.UserRecord{
		"1": {FirstName: "Anna", LastName: "Lee", Scores: []int{1, 0}},
		"2": {FirstName: "Boris", LastName: "Young", Scores: []int{1, 1}},
	}
	if err := exp.Export(context.Background(), users); err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("row count = %d, want 3", len(rows))
	}

	header := rows[0]
	if header[0] != "Name" || header[1] != "Surname" || header[2] != "Correct answers" {
		t.Fatalf("header = %v", header)
	}
	if rows[1][0] != "Boris" || rows[1][2] != "2" {
		t.Fatalf("row 1 = %v, want Boris with 2", rows[1])
	}
	if rows[2][0] != "Anna" || rows[2][2] != "1" {
		t.Fatalf("row 2 = %v, want Anna with 1", rows[2])
	}
}

func TestXLSXExporterEmptySnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.xlsx")
	exp := NewXLSXExporter(path)

	if err := exp.Export(context.Background(), nil); err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("row count = %d, want header only", len(rows))
	}
}
