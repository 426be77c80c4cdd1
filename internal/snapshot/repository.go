// Package snapshot persists the rendered document of completed refresh
// cycles so a session's history can be listed and exported later.
package snapshot

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"

	"github.com/hospitaltm/citas-dashboard/pkg/database"
	"github.com/hospitaltm/citas-dashboard/pkg/errors"
)

// DefaultLimit caps list results when the caller passes no limit.
const DefaultLimit = 50

// Snapshot is one stored refresh cycle.
type Snapshot struct {
	ID        string         `db:"id" json:"id"`
	SessionID string         `db:"session_id" json:"session_id"`
	Page      string         `db:"page" json:"page"`
	Cycle     int64          `db:"cycle" json:"cycle"`
	Filters   types.JSONText `db:"filters" json:"filters"`
	Document  types.JSONText `db:"document" json:"document"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// Repository handles snapshot persistence
type Repository struct {
	db *database.DB
}

// NewRepository creates a new snapshot repository
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Create stores s, assigning an id when it has none.
func (r *Repository) Create(ctx context.Context, s *Snapshot) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if len(s.Filters) == 0 {
		s.Filters = types.JSONText("{}")
	}

	query := `
		INSERT INTO dashboard_snapshots (id, session_id, page, cycle, filters, document)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		s.ID, s.SessionID, s.Page, s.Cycle, s.Filters, s.Document,
	).Scan(&s.CreatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return appErr
		}
		return err
	}
	return nil
}

// Get returns the snapshot with id.
func (r *Repository) Get(ctx context.Context, id string) (*Snapshot, error) {
	var s Snapshot
	query := `
		SELECT id, session_id, page, cycle, filters, document, created_at
		FROM dashboard_snapshots WHERE id = $1
	`
	err := r.db.GetContext(ctx, &s, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFoundWithKey("snapshot")
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListBySession returns the newest snapshots of a session first.
func (r *Repository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var out []*Snapshot
	query := `
		SELECT id, session_id, page, cycle, filters, document, created_at
		FROM dashboard_snapshots WHERE session_id = $1
		ORDER BY created_at DESC, cycle DESC
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &out, query, sessionID, limit); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteOlderThan removes snapshots created before cutoff and returns how many went.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM dashboard_snapshots WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
