// Package export writes the rendered state of a dashboard page as an XLSX
// workbook: one sheet of metrics, one per table and one per live chart.
package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hospitaltm/citas-dashboard/internal/dashboard/chart"
	"github.com/hospitaltm/citas-dashboard/pkg/dom"
	"github.com/hospitaltm/citas-dashboard/pkg/i18n"
)

// ContentType is the media type of the produced file.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// maxSheetName is the sheet-name limit of the format.
const maxSheetName = 31

// Filename names the export of page taken at t.
func Filename(page string, cycle uint64, t time.Time) string {
	return fmt.Sprintf("%s-%s-ciclo%d.xlsx", page, t.Format("20060102-150405"), cycle)
}

// Workbook renders snap. Hidden elements are left out.
func Workbook(snap dom.Snapshot, l *i18n.Localizer) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return nil, err
	}

	metrics := l.T("export.hoja_metricas")
	if err := f.SetSheetName("Sheet1", metrics); err != nil {
		return nil, err
	}
	rows := [][]interface{}{{l.T("export.columna_elemento"), l.T("export.columna_valor")}}
	for _, el := range snap.Elements {
		if el.Hidden || el.Tag != dom.TagSpan || strings.TrimSpace(el.Text) == "" {
			continue
		}
		rows = append(rows, []interface{}{el.ID, el.Text})
	}
	if err := writeSheet(f, metrics, rows, headerStyle); err != nil {
		return nil, err
	}

	used := map[string]bool{metrics: true}
	for _, el := range snap.Elements {
		switch {
		case el.Hidden:
		case el.Tag == dom.TagTable && len(el.Rows) > 0:
			name := sheetName(el.ID, used)
			if _, err := f.NewSheet(name); err != nil {
				return nil, err
			}
			if err := writeSheet(f, name, tableRows(el.Rows), -1); err != nil {
				return nil, err
			}
		case el.Chart != nil:
			cfg, ok := el.Chart.Config.(*chart.Config)
			if !ok || !cfg.HasData() {
				continue
			}
			name := sheetName(el.ID, used)
			if _, err := f.NewSheet(name); err != nil {
				return nil, err
			}
			if err := writeSheet(f, name, chartRows(cfg, l), headerStyle); err != nil {
				return nil, err
			}
		}
	}

	f.SetActiveSheet(0)
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func tableRows(rows [][]string) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, r := range rows {
		out[i] = make([]interface{}, len(r))
		for j, v := range r {
			out[i][j] = v
		}
	}
	return out
}

// chartRows lays a chart out as one column of labels and one per dataset.
func chartRows(cfg *chart.Config, l *i18n.Localizer) [][]interface{} {
	header := []interface{}{l.T("export.columna_elemento")}
	for _, ds := range cfg.Datasets {
		header = append(header, ds.Label)
	}
	rows := [][]interface{}{header}
	for i, label := range cfg.Labels {
		row := []interface{}{label}
		for _, ds := range cfg.Datasets {
			if i < len(ds.Data) {
				row = append(row, ds.Data[i])
			} else {
				row = append(row, nil)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// writeSheet writes rows from A1. headerStyle < 0 leaves the first row plain.
func writeSheet(f *excelize.File, sheet string, rows [][]interface{}, headerStyle int) error {
	width := 0
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return err
		}
		if len(row) > width {
			width = len(row)
		}
	}
	if width == 0 {
		return nil
	}
	last, _ := excelize.ColumnNumberToName(width)
	if err := f.SetColWidth(sheet, "A", last, 18); err != nil {
		return err
	}
	if headerStyle >= 0 {
		end, _ := excelize.CoordinatesToCellName(width, 1)
		return f.SetCellStyle(sheet, "A1", end, headerStyle)
	}
	return nil
}

// sheetName derives a unique, valid sheet name from an element id.
func sheetName(id string, used map[string]bool) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '_'
		}
		return r
	}, id)
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	base := name
	for n := 2; used[name]; n++ {
		suffix := fmt.Sprintf("~%d", n)
		if len(base)+len(suffix) > maxSheetName {
			base = base[:maxSheetName-len(suffix)]
		}
		name = base + suffix
	}
	used[name] = true
	return name
}
