package receta_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospitaltm/citas-dashboard/internal/backend"
	"github.com/hospitaltm/citas-dashboard/internal/receta"
	apperrors "github.com/hospitaltm/citas-dashboard/pkg/errors"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
	"github.com/hospitaltm/citas-dashboard/pkg/testutil"
)

const submitRoute = "/atencion/{cita}/"

var hits = []map[string]any{
	{"id": 11, "nombre_comercial": "Amoxil", "nombre_generico": "Amoxicilina", "presentacion": "Cápsula 500mg", "stock": 30},
	{"id": 12, "nombre_comercial": "Amoxidal", "nombre_generico": "Amoxicilina", "presentacion": "Jarabe", "stock": 4},
}

func newWidget(t *testing.T, debounce time.Duration) (*receta.Widget, *testutil.FakeBackend) {
	t.Helper()
	fb := testutil.NewFakeBackend(t)
	client := backend.NewClientWithHTTP(fb.URL(), &http.Client{Timeout: 2 * time.Second}, logger.Nop())
	w := receta.New(receta.Deps{Client: client, CitaID: "9", Debounce: debounce, Tokens: backend.StaticToken("tok")})
	return w, fb
}

func ptr[T any](v T) *T { return &v }

func TestQuantity(t *testing.T) {
	tests := []struct {
		dosis      float64
		frecuencia int
		duracion   int
		want       int
	}{
		{1, 8, 5, 15},
		{0.5, 6, 7, 14},
		{1.5, 12, 3, 9},
		{0.5, 24, 3, 2},
		{1, 0, 3, 0},
		{0, 8, 3, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, receta.Quantity(tt.dosis, tt.frecuencia, tt.duracion))
	}
}

func TestStockLevel(t *testing.T) {
	assert.Equal(t, "success", receta.StockLevel(21))
	assert.Equal(t, "warning", receta.StockLevel(20))
	assert.Equal(t, "warning", receta.StockLevel(6))
	assert.Equal(t, "danger", receta.StockLevel(5))
}

func TestSearch_ShortQuerySendsNothing(t *testing.T) {
	w, fb := newWidget(t, time.Millisecond)

	meds, err := w.Search(context.Background(), " a ")

	require.NoError(t, err)
	assert.Nil(t, meds)
	assert.Zero(t, fb.TotalHits())
	assert.True(t, w.Document().IsHidden(receta.Resultados))
}

func TestSearch_ShowsResultsWithStockBadge(t *testing.T) {
	w, fb := newWidget(t, time.Millisecond)
	fb.Handle(http.MethodGet, receta.SearchPath, http.StatusOK, hits)

	meds, err := w.Search(context.Background(), "amox")
	require.NoError(t, err)
	require.Len(t, meds, 2)

	assert.Equal(t, "amox", fb.Requests(http.MethodGet, receta.SearchPath)[0].Query.Get("q"))
	el, _ := w.Document().Get(receta.Resultados)
	assert.False(t, el.Hidden)
	require.Len(t, el.Items, 2)
	assert.Equal(t, "bg-success", el.Items[0].Fields["badge"])
	assert.Equal(t, "bg-danger", el.Items[1].Fields["badge"])
	assert.Equal(t, "4 en stock", el.Items[1].Fields["stock"])
}

func TestSearch_ErrorShowsMessage(t *testing.T) {
	w, fb := newWidget(t, time.Millisecond)
	fb.Handle(http.MethodGet, receta.SearchPath, http.StatusInternalServerError, "oops")

	_, err := w.Search(context.Background(), "amox")

	require.Error(t, err)
	el, _ := w.Document().Get(receta.Resultados)
	require.Len(t, el.Items, 1)
	assert.Equal(t, "Error al buscar medicamentos", el.Items[0].Text)
	assert.False(t, el.Hidden)
}

func TestSearch_LatestQueryWins(t *testing.T) {
	w, fb := newWidget(t, 150*time.Millisecond)
	fb.Handle(http.MethodGet, receta.SearchPath, http.StatusOK, hits)

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = w.Search(context.Background(), "am")
	}()
	time.Sleep(30 * time.Millisecond)

	_, err := w.Search(context.Background(), "amox")
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, apperrors.KindStale, apperrors.KindOf(firstErr))
	reqs := fb.Requests(http.MethodGet, receta.SearchPath)
	require.Len(t, reqs, 1)
	assert.Equal(t, "amox", reqs[0].Query.Get("q"))
}

func TestAdd_RejectsDuplicate(t *testing.T) {
	w, fb := newWidget(t, time.Millisecond)
	fb.Handle(http.MethodGet, receta.SearchPath, http.StatusOK, hits)
	w.SetPrescribe(true)
	_, err := w.Search(context.Background(), "amox")
	require.NoError(t, err)

	_, err = w.Add("11")
	require.NoError(t, err)
	doc := w.Document()
	assert.Equal(t, "1 medicamento", doc.Text(receta.Contador))
	assert.True(t, doc.IsHidden(receta.NoMedicamentos))
	assert.True(t, doc.IsHidden(receta.Resultados))

	_, err = w.Add("11")
	require.Error(t, err)
	alerts := doc.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "Este medicamento ya está en la receta", alerts[0].Message)
	assert.Len(t, w.Lines(), 1)

	_, err = w.Add("99")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestUpdate_ComputesQuantityAndStockWarning(t *testing.T) {
	w, fb := newWidget(t, time.Millisecond)
	fb.Handle(http.MethodGet, receta.SearchPath, http.StatusOK, hits)
	w.SetPrescribe(true)
	_, err := w.Search(context.Background(), "amox")
	require.NoError(t, err)
	_, err = w.Add("12")
	require.NoError(t, err)

	line, err := w.Update("12", receta.LineUpdate{Dosis: ptr(1.0), Frecuencia: ptr(8), Duracion: ptr(5)})
	require.NoError(t, err)
	assert.Equal(t, 15, line.Cantidad())
	assert.True(t, line.ExceedsStock())

	el, _ := w.Document().Get(receta.Seleccionados)
	require.Len(t, el.Items, 1)
	assert.Equal(t, "med_12", el.Items[0].ID)
	assert.Equal(t, "15", el.Items[0].Fields["cantidad"])
	assert.Contains(t, el.Items[0].Classes, "stock-warning")
	assert.Equal(t, "La cantidad requerida excede el stock disponible (4 unidades)", el.Items[0].Fields["advertencia_stock"])

	_, err = w.Update("12", receta.LineUpdate{Frecuencia: ptr(5)})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestSetPrescribeOff_ClearsList(t *testing.T) {
	w, fb := newWidget(t, time.Millisecond)
	fb.Handle(http.MethodGet, receta.SearchPath, http.StatusOK, hits)
	w.SetPrescribe(true)
	_, err := w.Search(context.Background(), "amox")
	require.NoError(t, err)
	_, err = w.Add("11")
	require.NoError(t, err)

	w.SetPrescribe(false)

	assert.Empty(t, w.Lines())
	doc := w.Document()
	assert.Equal(t, "0 medicamentos", doc.Text(receta.Contador))
	assert.False(t, doc.IsHidden(receta.NoMedicamentos))
	assert.True(t, doc.IsHidden(receta.Bloque))
}

func TestSubmit_Rules(t *testing.T) {
	w, fb := newWidget(t, time.Millisecond)
	fb.Handle(http.MethodGet, receta.SearchPath, http.StatusOK, hits)
	fb.Handle(http.MethodPost, submitRoute, http.StatusOK, map[string]any{"success": true})
	ctx := context.Background()
	doc := w.Document()

	_, err := w.Submit(ctx)
	assert.Equal(t, "Debes completar el diagnóstico y tratamiento.", doc.Alerts()[0].Message)
	require.Error(t, err)

	doc.SetValue(receta.Diagnostico, "Faringitis")
	doc.SetValue(receta.Tratamiento, "Antibiótico")
	w.SetPrescribe(true)
	_, err = w.Submit(ctx)
	require.Error(t, err)
	assert.Equal(t, "Debe agregar al menos un medicamento a la receta", doc.Alerts()[1].Message)

	_, err = w.Search(ctx, "amox")
	require.NoError(t, err)
	_, err = w.Add("12")
	require.NoError(t, err)
	_, err = w.Submit(ctx)
	require.Error(t, err)
	assert.Equal(t, "Por favor complete todos los campos requeridos en los medicamentos", doc.Alerts()[2].Message)

	_, err = w.Update("12", receta.LineUpdate{Dosis: ptr(1.0), Frecuencia: ptr(8), Duracion: ptr(5), Indicaciones: ptr("Con agua")})
	require.NoError(t, err)
	_, err = w.Submit(ctx)
	require.Error(t, err)
	assert.Equal(t, "Uno o más medicamentos exceden el stock disponible", doc.Alerts()[3].Message)
	assert.Zero(t, fb.Hits(http.MethodPost, submitRoute))

	_, err = w.Update("12", receta.LineUpdate{Duracion: ptr(1)})
	require.NoError(t, err)
	a, err := w.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, "si", a.Prescribir)

	req := fb.Requests(http.MethodPost, submitRoute)[0]
	assert.Equal(t, "/atencion/9/", req.Path)
	assert.Equal(t, "tok", req.Header.Get(backend.CSRFHeader))
	var body receta.Attention
	require.NoError(t, json.Unmarshal(req.Body, &body))
	require.Len(t, body.Medicamentos, 1)
	assert.Equal(t, 3, body.Medicamentos[0].Cantidad)
	assert.Equal(t, "12", body.Medicamentos[0].MedicamentoID)
}
