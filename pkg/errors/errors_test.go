package errors_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hospitaltm/citas-dashboard/pkg/errors"
	"github.com/hospitaltm/citas-dashboard/pkg/i18n"
)

func TestTransport_KeepsSentinelAndCause(t *testing.T) {
	err := apperrors.Transport("/api/tasas-asistencia/", 502, io.ErrUnexpectedEOF)

	assert.True(t, apperrors.Is(err, apperrors.ErrTransport))
	assert.True(t, apperrors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, apperrors.KindTransport, apperrors.KindOf(err))
	assert.Equal(t, "502", err.Details["status"])
	assert.Equal(t, http.StatusBadGateway, err.StatusCode)
}

func TestKindOf_WrappedError(t *testing.T) {
	wrapped := fmt.Errorf("refresh: %w", apperrors.Payload("recuperacion.inasistencias_totales", nil))

	assert.Equal(t, apperrors.KindPayload, apperrors.KindOf(wrapped))
	assert.Equal(t, apperrors.KindNone, apperrors.KindOf(io.EOF))
}

func TestInvalidInput_Localizes(t *testing.T) {
	err := apperrors.InvalidInput("filtros.rango_invertido")

	assert.Equal(t, "La fecha de inicio no puede ser posterior a la fecha fin", err.Message)
	ctx := i18n.WithLocale(context.Background(), i18n.LocaleEnglish)
	assert.Equal(t, "The start date cannot be after the end date", err.Localize(ctx))
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestAppError_As(t *testing.T) {
	var target *apperrors.AppError
	err := fmt.Errorf("wrap: %w", apperrors.Unavailable("chart factory"))

	require.True(t, apperrors.As(err, &target))
	assert.Equal(t, "CAPABILITY_UNAVAILABLE", target.Code)
}

func TestNotFoundWithKey(t *testing.T) {
	err := apperrors.NotFoundWithKey("session")

	assert.Equal(t, "Sesión not found", err.Message)
	assert.Equal(t, "Sesión no encontrado", err.Localize(context.Background()))
}
