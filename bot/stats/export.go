// Package stats persists cumulative per-user scores and drives the tabular
// export. Two backends implement the quiz.StatsStore contract: a JSON file
// store and a Postgres store.
package stats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"github.com/m3rciful/quizbot/bot/quiz"
	"github.com/m3rciful/quizbot/core/logger"
)

// Exporter regenerates a tabular snapshot of the statistics, one row per
// user. Stores call it wholesale after every statistics change.
type Exporter interface {
	Export(ctx context.Context, users map[string]quiz.UserRecord) error
}

// XLSXExporter writes the snapshot to an Excel workbook: one row per user
// with Name, Surname, and total correct answers, in ranking order.
type XLSXExporter struct {
	path string
}

// NewXLSXExporter creates an exporter writing to the given workbook path.
func NewXLSXExporter(path string) *XLSXExporter {
	return &XLSXExporter{path: path}
}

// Export rewrites the workbook from scratch.
func (e *XLSXExporter) Export(ctx context.Context, users map[string]quiz.UserRecord) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	headers := []interface{}{"Name", "Surname", "Correct answers"}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return fmt.Errorf("export header: %w", err)
	}

	for i, row := range quiz.Rank(users) {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("export cell: %w", err)
		}
		values := []interface{}{row.FirstName, row.LastName, row.Total()}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("export row %d: %w", i+1, err)
		}
	}

	if err := f.SaveAs(e.path); err != nil {
		logger.Error(ctx, "service.export", "export.fail",
			slog.String("status", "fail"),
			slog.String("path", e.path),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("export save: %w", err)
	}

	logger.Debug(ctx, "service.export", "export.ok",
		slog.String("status", "ok"),
		slog.String("path", e.path),
		slog.Int("users", len(users)),
	)
	return nil
}
