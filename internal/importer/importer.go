package importer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/hanzidex/hanzidex/internal/models"
)

// Repository is what catalog seeding needs from storage.
type Repository interface {
	UpsertItem(ctx context.Context, item *models.Item) error
	BackfillLockedProgress(ctx context.Context) (int64, error)
}

// Importer loads the item catalog from an .xlsx workbook. Expected columns:
// value, kinds, hsk_level, components, constituent_items, radicals_contained,
// pinyin, english_definition, stroke_count. List columns are
// comma-separated; the first row is a header and is skipped.
type Importer struct {
	repo Repository
}

func New(repo Repository) *Importer {
	return &Importer{repo: repo}
}

// ImportFile reads the first sheet of the workbook at path and upserts every
// row, then backfills LOCKED progress rows for existing users. Returns the
// number of items upserted.
func (imp *Importer) ImportFile(ctx context.Context, path string) (int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return 0, fmt.Errorf("open workbook (path: %s): %w", path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return 0, fmt.Errorf("read sheet (name: %s): %w", sheet, err)
	}
	if len(rows) <= 1 {
		return 0, fmt.Errorf("workbook has no data rows (path: %s)", path)
	}

	count, err := imp.ImportRows(ctx, rows[1:])
	if err != nil {
		return count, err
	}

	backfilled, err := imp.repo.BackfillLockedProgress(ctx)
	if err != nil {
		return count, fmt.Errorf("backfill progress: %w", err)
	}
	zap.S().Infow("catalog imported", "items", count, "progress_backfilled", backfilled)
	return count, nil
}

// ImportRows upserts parsed data rows. Rows with an empty value cell are
// skipped.
func (imp *Importer) ImportRows(ctx context.Context, rows [][]string) (int, error) {
	count := 0
	for i, row := range rows {
		item := parseRow(row)
		if item == nil {
			continue
		}
		if err := imp.repo.UpsertItem(ctx, item); err != nil {
			return count, fmt.Errorf("upsert item (row: %d, value: %s): %w", i+2, item.Value, err)
		}
		count++
	}
	return count, nil
}

func parseRow(row []string) *models.Item {
	value := strings.TrimSpace(cell(row, 0))
	if value == "" {
		return nil
	}
	item := &models.Item{
		Value:             value,
		Kinds:             splitList(cell(row, 1)),
		Components:        splitList(cell(row, 3)),
		ConstituentItems:  splitList(cell(row, 4)),
		RadicalsContained: splitList(cell(row, 5)),
	}
	if len(item.Kinds) == 0 {
		item.Kinds = models.StringList{models.KindCharacter}
	}
	if n, err := strconv.Atoi(strings.TrimSpace(cell(row, 2))); err == nil && n > 0 {
		item.HSKLevel = &n
	}
	if p := strings.TrimSpace(cell(row, 6)); p != "" {
		item.Pinyin = &p
	}
	if e := strings.TrimSpace(cell(row, 7)); e != "" {
		item.EnglishDefinition = &e
	}
	if n, err := strconv.Atoi(strings.TrimSpace(cell(row, 8))); err == nil && n > 0 {
		item.StrokeCount = &n
	}
	return item
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return row[i]
}

func splitList(raw string) models.StringList {
	var out models.StringList
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
