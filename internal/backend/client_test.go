package backend_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospitaltm/citas-dashboard/internal/backend"
	"github.com/hospitaltm/citas-dashboard/pkg/dom"
	apperrors "github.com/hospitaltm/citas-dashboard/pkg/errors"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
	"github.com/hospitaltm/citas-dashboard/pkg/testutil"
)

func newClient(fb *testutil.FakeBackend) *backend.Client {
	return backend.NewClientWithHTTP(fb.URL()+"/", &http.Client{Timeout: 2 * time.Second}, logger.Nop())
}

func TestGet_PassesQueryAndCookies(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.Handle(http.MethodGet, "/api/tasas-asistencia/", http.StatusOK, map[string]any{"ok": true})
	client := newClient(fb)

	ctx := backend.WithCookies(context.Background(), []*http.Cookie{{Name: "sessionid", Value: "s1"}})
	body, err := client.Get(ctx, "/api/tasas-asistencia/", url.Values{"fecha_inicio": {"2025-01-01"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))

	reqs := fb.Requests(http.MethodGet, "/api/tasas-asistencia/")
	require.Len(t, reqs, 1)
	assert.Equal(t, "2025-01-01", reqs[0].Query.Get("fecha_inicio"))
	assert.Contains(t, reqs[0].Header.Get("Cookie"), "sessionid=s1")
}

func TestGet_ErrorStatusCarriesServerMessage(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.Handle(http.MethodGet, "/api/citas/origen/", http.StatusInternalServerError, map[string]any{"mensaje": "fallo interno"})

	_, err := newClient(fb).Get(context.Background(), "/api/citas/origen/", nil)

	require.Error(t, err)
	assert.Equal(t, apperrors.KindTransport, apperrors.KindOf(err))
	assert.Equal(t, "fallo interno", backend.ServerMessage(err))
}

func TestGetJSON_MalformedIsPayloadError(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.Handle(http.MethodGet, "/x", http.StatusOK, "{not json")

	var v map[string]any
	err := newClient(fb).GetJSON(context.Background(), "/x", nil, &v)
	assert.Equal(t, apperrors.KindPayload, apperrors.KindOf(err))
}

func TestPostJSON_CookieToken(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.Handle(http.MethodPost, "/api/marcar-notificacion-leida/{id}/", http.StatusOK, map[string]any{"success": true})

	ctx := backend.WithCookies(context.Background(), []*http.Cookie{{Name: "csrftoken", Value: "tok"}})
	err := newClient(fb).PostJSON(ctx, "/api/marcar-notificacion-leida/5/", backend.CookieToken{Name: "csrftoken"}, map[string]any{}, nil)
	require.NoError(t, err)

	reqs := fb.Requests(http.MethodPost, "/api/marcar-notificacion-leida/{id}/")
	require.Len(t, reqs, 1)
	assert.Equal(t, "tok", reqs[0].Header.Get(backend.CSRFHeader))
}

func TestPostJSON_FormFieldTokenAndFailure(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.Handle(http.MethodPost, "/api/notificaciones/marcar-leida/", http.StatusOK, map[string]any{"success": false, "error": "no existe"})
	doc := dom.New("notificaciones", dom.Input("csrfmiddlewaretoken", "form-tok"))

	err := newClient(fb).PostJSON(context.Background(), "/api/notificaciones/marcar-leida/",
		backend.FormFieldToken{Doc: doc, Field: "csrfmiddlewaretoken"}, map[string]any{"notificacion_id": "9"}, nil)

	require.Error(t, err)
	assert.Equal(t, "no existe", backend.ServerMessage(err))
	reqs := fb.Requests(http.MethodPost, "/api/notificaciones/marcar-leida/")
	require.Len(t, reqs, 1)
	assert.Equal(t, "form-tok", reqs[0].Header.Get(backend.CSRFHeader))
	assert.JSONEq(t, `{"notificacion_id":"9"}`, string(reqs[0].Body))
}

func TestGet_NetworkFailure(t *testing.T) {
	client := backend.NewClientWithHTTP("http://127.0.0.1:1", &http.Client{Timeout: time.Second}, logger.Nop())
	_, err := client.Get(context.Background(), "/api/tendencias-citas/", nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrTransport))
}
