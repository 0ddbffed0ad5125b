// Package input parses batch entity lists from CSV and XLSX files.
// Expected columns: type, id, title, year, fields — where fields is a
// semicolon-separated list of field names, empty meaning "all schema
// fields".
package input

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/filmgrid/enrich-cli/internal/model"
	"github.com/filmgrid/enrich-cli/internal/resolver"
	"github.com/filmgrid/enrich-cli/internal/schema"
)

// ReadEntities loads batch items from path, dispatching on extension.
func ReadEntities(path string) ([]resolver.BatchItem, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path)
	case ".xlsx":
		return readXLSX(path)
	default:
		return nil, eris.Errorf("input: unsupported file type %q", filepath.Ext(path))
	}
}

func readCSV(path string) ([]resolver.BatchItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "input: open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate ragged rows
	rows, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "input: read %s", path)
	}
	return rowsToItems(rows)
}

func readXLSX(path string) ([]resolver.BatchItem, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "input: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("input: %s has no sheets", path)
	}

	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rowsToItems(rows)
}

// rowsToItems maps header-indexed rows to batch items. Rows without a
// usable key (no id and no title) are skipped.
func rowsToItems(rows [][]string) ([]resolver.BatchItem, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	idx := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"type"} {
		if _, ok := idx[required]; !ok {
			return nil, eris.Errorf("input: missing %q column", required)
		}
	}

	cell := func(row []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var items []resolver.BatchItem
	for _, row := range rows[1:] {
		key := model.EntityKey{
			Type:  model.EntityType(strings.ToLower(cell(row, "type"))),
			ID:    cell(row, "id"),
			Title: cell(row, "title"),
		}
		if y := cell(row, "year"); y != "" {
			if year, err := strconv.Atoi(y); err == nil {
				key.Year = year
			}
		}
		if key.IsZero() {
			continue
		}

		items = append(items, resolver.BatchItem{
			Key:    key,
			Fields: ParseFields(key.Type, cell(row, "fields")),
		})
	}
	return items, nil
}

// ParseFields splits a semicolon- or comma-separated field list. An
// empty list expands to every field the entity type's schema declares.
func ParseFields(t model.EntityType, raw string) []model.FieldName {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if reg := schema.ForType(t); reg != nil {
			return reg.Names()
		}
		return nil
	}

	var fields []model.FieldName
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ';' || r == ',' }) {
		if f := strings.TrimSpace(part); f != "" {
			fields = append(fields, model.FieldName(f))
		}
	}
	return fields
}
