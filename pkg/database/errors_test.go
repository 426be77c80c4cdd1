package database_test

import (
	"io"
	"net/http"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hospitaltm/citas-dashboard/pkg/database"
)

func TestMapPQError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{
			name:   "page check",
			err:    &pq.Error{Code: "23514", Constraint: "dashboard_snapshots_page_valid"},
			status: http.StatusBadRequest,
			detail: "page",
		},
		{
			name:   "duplicate cycle",
			err:    &pq.Error{Code: "23505", Constraint: "dashboard_snapshots_session_cycle_unique"},
			status: http.StatusConflict,
		},
		{
			name:   "not null",
			err:    &pq.Error{Code: "23502", Column: "document"},
			status: http.StatusBadRequest,
			detail: "document",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := database.MapPQError(tt.err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.status, appErr.StatusCode)
			if tt.detail != "" {
				assert.Contains(t, appErr.Details, tt.detail)
			}
		})
	}
}

func TestMapPQError_NonPQ(t *testing.T) {
	assert.Nil(t, database.MapPQError(io.EOF))
	assert.Nil(t, database.MapPQError(&pq.Error{Code: "42P01"}))
}

func TestMigrations_Embedded(t *testing.T) {
	stmts, err := database.Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, stmts)
	assert.Contains(t, stmts[0], "dashboard_snapshots")
}
