package session

import (
	"context"

	"github.com/hospitaltm/citas-dashboard/internal/dashboard/filter"
	"github.com/hospitaltm/citas-dashboard/pkg/httputil"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
	"github.com/hospitaltm/citas-dashboard/pkg/messaging"
)

// CitaEventHandler refreshes open dashboards when an appointment changes.
type CitaEventHandler struct {
	sessions *Manager
	logger   *logger.Logger
}

// NewCitaEventHandler creates a handler refreshing the sessions of m.
func NewCitaEventHandler(m *Manager, log *logger.Logger) *CitaEventHandler {
	return &CitaEventHandler{sessions: m, logger: log.WithComponent("cita-events")}
}

// Handle refreshes the dashboards whose date window contains the appointment.
// An event without a usable date is dropped.
func (h *CitaEventHandler) Handle(ctx context.Context, event *messaging.Event) error {
	var data messaging.CitaEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}
	if err := httputil.Var(data.Fecha, "required,fecha"); err != nil {
		h.logger.Warn().Str("event_id", event.ID).Str("fecha", data.Fecha).Msg("appointment event without a valid date")
		return nil
	}

	n := h.sessions.RefreshCovering(ctx, data.Fecha)
	h.logger.Info().
		Str("event", event.Type).
		Int64("cita_id", data.CitaID).
		Str("fecha", data.Fecha).
		Int("refreshed", n).
		Msg("appointment event handled")
	return nil
}

// CitaEventConsumer feeds the appointment event queue into a CitaEventHandler.
type CitaEventConsumer struct {
	consumer *messaging.Consumer
}

// NewCitaEventConsumer binds the service queue to every appointment event.
func NewCitaEventConsumer(rmq *messaging.RabbitMQ, h *CitaEventHandler, log *logger.Logger) (*CitaEventConsumer, error) {
	if err := rmq.DeclareDeadLetterQueue(messaging.SourceDashboard); err != nil {
		return nil, err
	}

	consumer, err := messaging.NewConsumer(rmq, messaging.QueueCitaEvents, log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeCitaEvents, "cita.#"); err != nil {
		return nil, err
	}

	consumer.RegisterHandler(h.Handle,
		messaging.EventCitaCreated,
		messaging.EventCitaUpdated,
		messaging.EventCitaCancelled,
		messaging.EventCitaAttended,
	)
	return &CitaEventConsumer{consumer: consumer}, nil
}

// Start starts consuming messages
func (c *CitaEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

// Covers reports whether fecha falls inside one of the date ranges of set. An
// unset bound is open, and a page without ranges covers every date.
func Covers(ranges []filter.Range, set filter.Set, fecha string) bool {
	for _, rg := range ranges {
		start, end := set.Get(rg.Start), set.Get(rg.End)
		if start != "" && fecha < start {
			continue
		}
		if end != "" && fecha > end {
			continue
		}
		return true
	}
	return len(ranges) == 0
}
