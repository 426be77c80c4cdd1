package snapshot

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx/types"

	"github.com/hospitaltm/citas-dashboard/internal/dashboard/controller"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
)

// Store is where recorded cycles go.
type Store interface {
	Create(ctx context.Context, s *Snapshot) error
}

// NopStore drops every snapshot. Used when persistence is disabled.
type NopStore struct{}

// Create implements Store.
func (NopStore) Create(context.Context, *Snapshot) error { return nil }

// Recorder turns completed cycles into stored snapshots.
type Recorder struct {
	store  Store
	logger *logger.Logger
}

// NewRecorder creates a recorder writing to store.
func NewRecorder(store Store, log *logger.Logger) *Recorder {
	return &Recorder{store: store, logger: log.WithComponent("snapshot")}
}

// Observer returns the controller observer for one session. A failed write
// is logged; it never fails the refresh.
func (r *Recorder) Observer(sessionID string) controller.Observer {
	return func(ctx context.Context, c controller.Cycle) {
		s, err := FromCycle(sessionID, c)
		if err != nil {
			r.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to encode snapshot")
			return
		}
		if err := r.store.Create(ctx, s); err != nil {
			r.logger.Error().Err(err).Str("session_id", sessionID).Uint64("cycle", c.ID).Msg("failed to store snapshot")
			return
		}
		r.logger.Debug().Str("session_id", sessionID).Uint64("cycle", c.ID).Msg("snapshot stored")
	}
}

// FromCycle encodes a cycle as a snapshot row.
func FromCycle(sessionID string, c controller.Cycle) (*Snapshot, error) {
	filters, err := json.Marshal(c.Filters.Map())
	if err != nil {
		return nil, err
	}
	doc, err := json.Marshal(c.Snapshot)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		SessionID: sessionID,
		Page:      c.Page,
		Cycle:     int64(c.ID),
		Filters:   types.JSONText(filters),
		Document:  types.JSONText(doc),
	}, nil
}
