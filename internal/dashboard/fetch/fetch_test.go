package fetch_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospitaltm/citas-dashboard/internal/dashboard/fetch"
	"github.com/hospitaltm/citas-dashboard/internal/dashboard/filter"
	"github.com/hospitaltm/citas-dashboard/pkg/dom"
	apperrors "github.com/hospitaltm/citas-dashboard/pkg/errors"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
)

type stubGetter struct {
	body  string
	err   error
	calls int
	query url.Values
	seen  func()
}

func (s *stubGetter) Get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	s.calls++
	s.query = q
	if s.seen != nil {
		s.seen()
	}
	return []byte(s.body), s.err
}

func TestBuildQuery_OmitsSentinels(t *testing.T) {
	set := filter.NewSet(
		"fecha_inicio", "2025-01-01",
		"fecha_fin", "2025-01-31",
		"especialidad_id", "0",
		"medico_id", "",
		"agrupacion", "all",
	).With("estados", "pendiente", "", "cancelada")

	q := fetch.BuildQuery(set)

	assert.Equal(t, url.Values{
		"fecha_inicio": {"2025-01-01"},
		"fecha_fin":    {"2025-01-31"},
		"estados":      {"pendiente,cancelada"},
	}, q)
	for _, vals := range q {
		for _, v := range vals {
			assert.False(t, fetch.IsSentinel(v))
		}
	}
}

func TestPayload_Lookups(t *testing.T) {
	p, err := fetch.Decode([]byte(`{
		"tasas": {"asistencia": 82.5, "recuperacion": "45"},
		"evolucion": {"etiquetas": ["Ene", "Feb"], "asistencia": [80, null]},
		"dias": {"viernes": 1, "lunes": 2, "domingo": 3}
	}`))
	require.NoError(t, err)

	v, ok := p.Float("tasas.asistencia")
	assert.True(t, ok)
	assert.Equal(t, 82.5, v)
	assert.Equal(t, 45.0, p.FloatOr("tasas.recuperacion", 0))
	assert.False(t, p.Has("tasas.cancelacion"))

	labels, _ := p.Strings("evolucion.etiquetas")
	assert.Equal(t, []string{"Ene", "Feb"}, labels)
	series, _ := p.Floats("evolucion.asistencia")
	assert.Equal(t, []float64{80, 0}, series)

	assert.Equal(t, []string{"lunes", "viernes", "domingo"}, p.Keys("dias"))
	assert.Equal(t, []string{"dias", "evolucion", "tasas"}, p.Keys(""))
}

func TestOrderKeys(t *testing.T) {
	assert.Equal(t, []string{"mañana", "tarde"}, fetch.OrderKeys([]string{"tarde", "mañana"}))
	assert.Equal(t, []string{"pendiente", "cancelada", "otro"}, fetch.OrderKeys([]string{"otro", "cancelada", "pendiente"}))
	assert.Equal(t, []string{"a", "b"}, fetch.OrderKeys([]string{"b", "a"}))
}

func TestFetch_RequiredPathMissing(t *testing.T) {
	doc := dom.New("asistencia", dom.Hide(dom.Container("loadingOverlay")))
	overlay := fetch.NewOverlay(doc, "loadingOverlay")
	visibleDuringCall := false
	g := &stubGetter{body: `{"tasas": {}}`}
	g.seen = func() { visibleDuringCall = !doc.IsHidden("loadingOverlay") }

	_, err := fetch.New(g, logger.Nop()).Fetch(context.Background(), fetch.Request{
		Endpoint:  "/api/tasas-asistencia/",
		Required:  []string{"recuperacion.inasistencias_totales"},
		Indicator: overlay,
	})

	assert.Equal(t, apperrors.KindPayload, apperrors.KindOf(err))
	assert.True(t, visibleDuringCall)
	assert.True(t, doc.IsHidden("loadingOverlay"))
}

func TestFetch_TransportErrorClearsSpinner(t *testing.T) {
	doc := dom.New("tendencias", dom.Canvas("tendencias-chart"))
	g := &stubGetter{err: apperrors.Transport("/api/tendencias-citas/", 500, nil)}

	_, err := fetch.New(g, logger.Nop()).Fetch(context.Background(), fetch.Request{
		Endpoint:  "/api/tendencias-citas/",
		Indicator: fetch.NewSpinner(doc, "tendencias-chart"),
	})

	assert.Equal(t, apperrors.KindTransport, apperrors.KindOf(err))
	el, _ := doc.Get("tendencias-chart")
	assert.False(t, el.HasClass(fetch.LoadingClass))
	assert.Empty(t, el.Attr("aria-busy"))
}

func TestFetch_MalformedJSON(t *testing.T) {
	g := &stubGetter{body: `[1,2]`}
	_, err := fetch.New(g, logger.Nop()).Fetch(context.Background(), fetch.Request{Endpoint: "/x"})
	assert.True(t, apperrors.Is(err, apperrors.ErrPayload))
}

func TestFetch_PanicClearsIndicator(t *testing.T) {
	doc := dom.New("p", dom.Hide(dom.Container("overlay")))
	g := &stubGetter{body: `{}`}
	g.seen = func() { panic("boom") }

	_, err := fetch.New(g, logger.Nop()).Fetch(context.Background(), fetch.Request{
		Endpoint:  "/x",
		Indicator: fetch.NewOverlay(doc, "overlay"),
	})

	assert.Equal(t, apperrors.KindPayload, apperrors.KindOf(err))
	assert.True(t, doc.IsHidden("overlay"))
}

func TestOverlay_Nested(t *testing.T) {
	doc := dom.New("p", dom.Hide(dom.Container("overlay")))
	o := fetch.NewOverlay(doc, "overlay")

	o.Show()
	o.Show()
	o.Hide()
	assert.False(t, doc.IsHidden("overlay"))
	o.Hide()
	assert.True(t, doc.IsHidden("overlay"))
	o.Hide()
	assert.True(t, doc.IsHidden("overlay"))
}

func TestSequence(t *testing.T) {
	var s fetch.Sequence
	a := s.Next()
	b := s.Next()

	assert.False(t, s.IsLatest(a))
	assert.True(t, s.IsLatest(b))
	assert.Equal(t, b, s.Current())
}
