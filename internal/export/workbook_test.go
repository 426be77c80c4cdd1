package export_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hospitaltm/citas-dashboard/internal/dashboard/chart"
	"github.com/hospitaltm/citas-dashboard/internal/export"
	"github.com/hospitaltm/citas-dashboard/pkg/dom"
	"github.com/hospitaltm/citas-dashboard/pkg/i18n"
)

func sampleSnapshot() dom.Snapshot {
	table := dom.Table("tablaEspecialidades")
	table.Rows = [][]string{{"Cardiología", "4", "1", "0", "2", "7"}, {"Pediatría", "2", "0", "1", "0", "3"}}
	canvas := dom.Canvas("graficoDistribucion")
	canvas.Chart = &dom.ChartBinding{Instance: 1, Type: "doughnut", Config: &chart.Config{
		Type:     chart.TypeDoughnut,
		Labels:   []string{"Paciente", "Derivación"},
		Datasets: []chart.Dataset{{Label: "Citas", Data: []float64{60, 40}}},
	}}
	doc := dom.New("origen",
		dom.Text("totalCitas", "100"),
		dom.Hide(dom.Text("mensaje", "oculto")),
		dom.Text("vacio", ""),
		table,
		canvas,
	)
	return doc.Snapshot()
}

func TestWorkbook_Sheets(t *testing.T) {
	data, err := export.Workbook(sampleSnapshot(), i18n.NewLocalizer(i18n.LocaleSpanish))
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Métricas", "tablaEspecialidades", "graficoDistribucion"}, f.GetSheetList())

	metrics, err := f.GetRows("Métricas")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Elemento", "Valor"}, {"totalCitas", "100"}}, metrics)

	table, err := f.GetRows("tablaEspecialidades")
	require.NoError(t, err)
	require.Len(t, table, 2)
	assert.Equal(t, "Pediatría", table[1][0])

	chartRows, err := f.GetRows("graficoDistribucion")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Elemento", "Citas"}, {"Paciente", "60"}, {"Derivación", "40"}}, chartRows)
}

func TestWorkbook_English(t *testing.T) {
	data, err := export.Workbook(dom.New("asistencia").Snapshot(), i18n.NewLocalizer(i18n.LocaleEnglish))
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Metrics"}, f.GetSheetList())
}

func TestFilename(t *testing.T) {
	at := time.Date(2025, 3, 4, 15, 6, 7, 0, time.UTC)
	assert.Equal(t, "origen-20250304-150607-ciclo3.xlsx", export.Filename("origen", 3, at))
}
