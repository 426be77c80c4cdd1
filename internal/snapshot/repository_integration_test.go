package snapshot_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospitaltm/citas-dashboard/internal/snapshot"
	apperrors "github.com/hospitaltm/citas-dashboard/pkg/errors"
	"github.com/hospitaltm/citas-dashboard/pkg/testutil"
)

func TestRepository_Postgres(t *testing.T) {
	testutil.SkipIfShort(t)
	suite := testutil.NewIntegrationSuite(t)
	repo := snapshot.NewRepository(suite.DB)
	ctx := context.Background()

	first := &snapshot.Snapshot{SessionID: sessionID, Page: "asistencia", Cycle: 1, Document: []byte(`{"page":"asistencia"}`)}
	require.NoError(t, repo.Create(ctx, first))
	second := &snapshot.Snapshot{SessionID: sessionID, Page: "asistencia", Cycle: 2, Filters: []byte(`{"medico_id":"4"}`), Document: []byte(`{}`)}
	require.NoError(t, repo.Create(ctx, second))

	dup := &snapshot.Snapshot{SessionID: sessionID, Page: "asistencia", Cycle: 2, Document: []byte(`{}`)}
	assert.True(t, apperrors.Is(repo.Create(ctx, dup), apperrors.ErrConflict))

	bad := &snapshot.Snapshot{SessionID: sessionID, Page: "derivacion", Cycle: 3, Document: []byte(`{}`)}
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(repo.Create(ctx, bad)))

	list, err := repo.ListBySession(ctx, sessionID, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].Cycle)

	got, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"page":"asistencia"}`, string(got.Document))
}
