package doctors_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospitaltm/citas-dashboard/internal/backend"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/doctors"
	"github.com/hospitaltm/citas-dashboard/pkg/dom"
	apperrors "github.com/hospitaltm/citas-dashboard/pkg/errors"
	"github.com/hospitaltm/citas-dashboard/pkg/i18n"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
	"github.com/hospitaltm/citas-dashboard/pkg/testutil"
)

func setup(t *testing.T, v doctors.Variant) (*testutil.FakeBackend, *dom.Document, *doctors.Cascade) {
	t.Helper()
	fb := testutil.NewFakeBackend(t)
	client := backend.NewClientWithHTTP(fb.URL(), &http.Client{Timeout: 2 * time.Second}, logger.Nop())
	doc := dom.New("asistencia", dom.Select("medico_id", dom.Option{Value: "0", Text: "Todos"}, dom.Option{Value: "9", Text: "Dr. Viejo"}))
	c := doctors.New(client, doc, &sync.Mutex{}, "medico_id", v, i18n.NewLocalizer(i18n.LocaleSpanish), logger.Nop())
	return fb, doc, c
}

func TestLoad_SentinelResetsWithoutRequest(t *testing.T) {
	fb, doc, c := setup(t, doctors.Standard)

	require.NoError(t, c.Load(context.Background(), "0"))

	el, _ := doc.Get("medico_id")
	require.Len(t, el.Options, 1)
	assert.Equal(t, dom.Option{Value: "0", Text: "Todos", Selected: true}, el.Options[0])
	assert.Equal(t, 0, fb.TotalHits())
}

func TestLoad_OriginVariantEmptySpecialty(t *testing.T) {
	fb, doc, c := setup(t, doctors.Origin)

	require.NoError(t, c.Load(context.Background(), ""))

	el, _ := doc.Get("medico_id")
	assert.True(t, el.Disabled)
	assert.Equal(t, "Seleccione un médico", el.Options[0].Text)
	assert.Equal(t, 0, fb.TotalHits())
}

func TestLoad_FillsDoctors(t *testing.T) {
	fb, doc, c := setup(t, doctors.Standard)
	fb.Handle(http.MethodGet, doctors.Endpoint, http.StatusOK, map[string]any{
		"medicos": []map[string]any{{"id": 4, "nombre": "Dra. Rojas"}, {"id": 7}},
	})

	require.NoError(t, c.Load(context.Background(), "3"))

	el, _ := doc.Get("medico_id")
	require.Len(t, el.Options, 2)
	assert.Equal(t, "Todos", el.Options[0].Text)
	assert.Equal(t, dom.Option{Value: "4", Text: "Dra. Rojas"}, el.Options[1])
	assert.False(t, el.Disabled)
	assert.Equal(t, "0", el.Value)
	assert.Equal(t, "3", fb.Requests(http.MethodGet, doctors.Endpoint)[0].Query.Get("especialidad_id"))
}

func TestLoad_ErrorVariants(t *testing.T) {
	for _, tc := range []struct {
		name     string
		variant  doctors.Variant
		disabled bool
	}{
		{name: "standard re-enables", variant: doctors.Standard, disabled: false},
		{name: "origin stays disabled", variant: doctors.Origin, disabled: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fb, doc, c := setup(t, tc.variant)
			fb.Handle(http.MethodGet, doctors.Endpoint, http.StatusInternalServerError, map[string]any{})

			err := c.Load(context.Background(), "3")

			assert.Equal(t, apperrors.KindTransport, apperrors.KindOf(err))
			el, _ := doc.Get("medico_id")
			assert.Equal(t, "Error al cargar médicos", el.Options[0].Text)
			assert.Equal(t, tc.disabled, el.Disabled)
		})
	}
}

func TestLoad_StaleListDropped(t *testing.T) {
	fb, doc, c := setup(t, doctors.Standard)
	release := make(chan struct{})
	fb.HandleFunc(http.MethodGet, doctors.Endpoint, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("especialidad_id") == "1" {
			<-release
			_, _ = w.Write([]byte(`{"medicos":[{"id":1,"nombre":"Lento"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"medicos":[{"id":2,"nombre":"Rápido"}]}`))
	})

	slow := make(chan error, 1)
	go func() { slow <- c.Load(context.Background(), "1") }()
	require.Eventually(t, func() bool { return fb.Hits(http.MethodGet, doctors.Endpoint) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Load(context.Background(), "2"))
	close(release)

	assert.Equal(t, apperrors.KindStale, apperrors.KindOf(<-slow))
	el, _ := doc.Get("medico_id")
	assert.Equal(t, "Rápido", el.Options[1].Text)
}
