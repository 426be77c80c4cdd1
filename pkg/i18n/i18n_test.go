package i18n_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hospitaltm/citas-dashboard/pkg/i18n"
)

func TestLocalizer_T(t *testing.T) {
	es := i18n.NewLocalizer(i18n.LocaleSpanish)
	assert.Equal(t, "Por favor seleccione ambas fechas", es.T("filtros.ambas_fechas"))

	en := i18n.NewLocalizer(i18n.LocaleEnglish)
	assert.Equal(t, "Please select both dates", en.T("filtros.ambas_fechas"))
}

func TestLocalizer_Params(t *testing.T) {
	got := i18n.T("receta.contador_plural", map[string]string{"n": "3"})
	assert.Equal(t, "3 medicamentos", got)
}

func TestLocalizer_UnknownLocaleFallsBackToSpanish(t *testing.T) {
	l := i18n.NewLocalizer("de")
	assert.Equal(t, i18n.LocaleSpanish, l.GetLocale())
	assert.Equal(t, "Todos", l.T("medicos.todos"))
}

func TestLocalizer_MissingKeyReturnsKey(t *testing.T) {
	l := i18n.NewLocalizer(i18n.LocaleEnglish)
	assert.Equal(t, "nope.missing", l.T("nope.missing"))
	assert.False(t, l.Has("nope.missing"))
	assert.True(t, l.Has("asistencia.calificacion.critico"))
}

func TestParseAcceptLanguage(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", i18n.LocaleSpanish},
		{"en-US,en;q=0.9", i18n.LocaleEnglish},
		{"es-PE,es;q=0.9,en;q=0.8", i18n.LocaleSpanish},
		{"fr-FR,en;q=0.5", i18n.LocaleEnglish},
		{"de-DE", i18n.LocaleSpanish},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, i18n.ParseAcceptLanguage(tt.header))
		})
	}
}

func TestMiddleware_QueryOverridesHeader(t *testing.T) {
	var got string
	h := i18n.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = i18n.GetLocaleFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/?lang=en", nil)
	req.Header.Set("Accept-Language", "es-PE")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, i18n.LocaleEnglish, got)
}

func TestTFromContext(t *testing.T) {
	ctx := i18n.WithLocale(context.Background(), i18n.LocaleEnglish)
	assert.Equal(t, "All", i18n.TFromContext(ctx, "medicos.todos"))
}
