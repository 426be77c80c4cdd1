package origen_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospitaltm/citas-dashboard/internal/backend"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/chart"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/controller"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/doctors"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/fetch"
	"github.com/hospitaltm/citas-dashboard/internal/pages"
	"github.com/hospitaltm/citas-dashboard/internal/pages/origen"
	"github.com/hospitaltm/citas-dashboard/pkg/dom"
	"github.com/hospitaltm/citas-dashboard/pkg/i18n"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
	"github.com/hospitaltm/citas-dashboard/pkg/testutil"
)

func samplePayload() map[string]any {
	return map[string]any{
		"total_general": 40,
		"distribucion_origen": map[string]any{
			"paciente": 20, "derivacion": 10, "seguimiento": 6, "admision": 4,
		},
		"estados": map[string]any{
			"paciente":    map[string]any{"pendiente": 5, "atendida": 15},
			"derivacion":  map[string]any{"confirmada": 10},
			"seguimiento": map[string]any{"cancelada": 6},
			"admision":    map[string]any{"atendida": 4},
		},
		"dias_semana": map[string]any{
			"paciente":    map[string]any{"2025-01-02": 12, "2025-01-01": 8},
			"derivacion":  map[string]any{"2025-01-03": 10},
			"seguimiento": map[string]any{},
			"admision":    map[string]any{"2025-01-01": 4},
		},
		"especialidades": map[string]any{
			"paciente": []map[string]any{
				{"medico__especialidad__nombre": "Pediatría", "total": 12},
				{"medico__especialidad__nombre": "Cardiología", "total": 8},
			},
			"derivacion": []map[string]any{
				{"medico__especialidad__nombre": "Cardiología", "total": 10},
				{"medico__especialidad__nombre": nil, "total": 3},
			},
			"seguimiento": []map[string]any{{"medico__especialidad__nombre": "Neurología", "total": 6}},
			"admision":    []map[string]any{},
		},
	}
}

type harness struct {
	backend *testutil.FakeBackend
	page    *origen.Page
	doc     *dom.Document
	charts  *chart.Manager
	ctrl    *controller.Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fb := testutil.NewFakeBackend(t)
	client := backend.NewClientWithHTTP(fb.URL(), &http.Client{Timeout: 2 * time.Second}, logger.Nop())
	lock := &sync.Mutex{}
	page := origen.New(pages.Deps{
		Getter: client,
		Lock:   lock,
		Now:    func() time.Time { return time.Date(2025, 1, 31, 9, 0, 0, 0, time.Local) },
	})
	doc := page.Document()
	charts := chart.NewManager(doc, chart.NewDocumentFactory(doc), 0, logger.Nop())
	ctrl := controller.New(page, doc, charts, fetch.New(client, logger.Nop()), controller.Options{Lock: lock})
	return &harness{backend: fb, page: page, doc: doc, charts: charts, ctrl: ctrl}
}

func TestRefresh_RendersBreakdown(t *testing.T) {
	h := newHarness(t)
	h.backend.Handle(http.MethodGet, origen.Endpoint, http.StatusOK, samplePayload())

	_, err := h.ctrl.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "40", h.doc.Text(origen.TotalCitas))
	assert.Equal(t, "20", h.doc.Text("citasPaciente"))
	assert.Equal(t, "50.0%", h.doc.Text("porcPaciente"))
	assert.Equal(t, "10.0%", h.doc.Text("porcAdmision"))

	for _, id := range []string{origen.DistribucionChart, origen.EstadosChart, origen.TendenciaChart} {
		assert.True(t, h.charts.Live(id), id)
	}
	canvas, _ := h.doc.Get(origen.TendenciaChart)
	require.NotNil(t, canvas.Chart)
	cfg, ok := canvas.Chart.Config.(*chart.Config)
	require.True(t, ok)
	assert.Equal(t, []string{"01/01", "02/01", "03/01"}, cfg.Labels)
	assert.Equal(t, []float64{8, 12, 0}, cfg.Datasets[0].Data)
	assert.Equal(t, []float64{4, 0, 0}, cfg.Datasets[3].Data)

	table, _ := h.doc.Get(origen.TablaEspecialidades)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, []string{"Cardiología", "8", "10", "0", "0", "18"}, table.Rows[0])
	assert.Equal(t, "Pediatría", table.Rows[1][0])

	text := h.doc.Text(origen.Interpretacion)
	assert.Contains(t, text, "<strong>40 citas</strong>")
	assert.Contains(t, text, "La mayoría de las citas (50.0%) provienen de <strong>paciente</strong>")
	assert.Contains(t, text, "seguidas por <strong>derivación</strong> (25.0%)")
	assert.Contains(t, text, "<strong>Cardiología</strong>, <strong>Pediatría</strong> y <strong>Neurología</strong>")

	assert.True(t, h.doc.IsHidden(origen.Overlay))
	assert.False(t, h.backend.Requests(http.MethodGet, origen.Endpoint)[0].Query.Has("especialidad"))
}

func TestRefresh_EmptyWindow(t *testing.T) {
	h := newHarness(t)
	h.backend.Handle(http.MethodGet, origen.Endpoint, http.StatusOK, map[string]any{
		"total_general":       0,
		"distribucion_origen": map[string]any{"paciente": 0, "derivacion": 0, "seguimiento": 0, "admision": 0},
		"dias_semana":         map[string]any{},
	})

	_, err := h.ctrl.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "0%", h.doc.Text("porcPaciente"))
	assert.Equal(t, "No hay datos disponibles para el período seleccionado.", h.doc.Text(origen.Interpretacion))
	table, _ := h.doc.Get(origen.TablaEspecialidades)
	assert.Equal(t, [][]string{{"No hay datos disponibles"}}, table.Rows)
	assert.False(t, h.charts.Live(origen.TendenciaChart))
}

func TestRefresh_ServerMessageSurfaced(t *testing.T) {
	h := newHarness(t)
	h.backend.Handle(http.MethodGet, origen.Endpoint, http.StatusBadRequest, map[string]any{"mensaje": "Rango demasiado amplio"})

	_, err := h.ctrl.Refresh(context.Background())
	require.Error(t, err)

	alerts := h.doc.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "Error del servidor: Rango demasiado amplio", alerts[0].Message)
	assert.True(t, h.doc.IsHidden(origen.Overlay))
}

func TestChanged_EmptySpecialtyDisablesDoctors(t *testing.T) {
	h := newHarness(t)
	h.doc.SetValue(origen.Especialidad, "")

	require.NoError(t, h.page.Changed(context.Background(), origen.Especialidad))

	el, _ := h.doc.Get(origen.Medico)
	assert.True(t, el.Disabled)
	assert.Equal(t, i18n.NewLocalizer(i18n.LocaleSpanish).T("medicos.seleccione"), el.Options[0].Text)
	assert.Equal(t, 0, h.backend.Hits(http.MethodGet, doctors.Endpoint))
}

func TestChanged_SpecialtyEnablesDoctors(t *testing.T) {
	h := newHarness(t)
	h.backend.Handle(http.MethodGet, doctors.Endpoint, http.StatusOK, map[string]any{
		"medicos": []map[string]any{{"id": 2, "nombre": "Dra. Paz"}},
	})
	h.doc.SetValue(origen.Especialidad, "7")

	require.NoError(t, h.page.Changed(context.Background(), origen.Especialidad))

	el, _ := h.doc.Get(origen.Medico)
	assert.False(t, el.Disabled)
	assert.Equal(t, dom.Option{Value: "", Text: "Todos los médicos", Selected: true}, el.Options[0])
	assert.Equal(t, "2", el.Options[1].Value)
}

func TestMergeSpecialties_SkipsUnnamed(t *testing.T) {
	p, err := fetch.Decode([]byte(`{"especialidades":{"paciente":[{"medico__especialidad__nombre":"","total":4}]}}`))
	require.NoError(t, err)

	assert.Empty(t, origen.MergeSpecialties(p))
}
