package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Appointment events, published by the hospital backend
	EventCitaCreated   = "cita.created"
	EventCitaUpdated   = "cita.updated"
	EventCitaCancelled = "cita.cancelled"
	EventCitaAttended  = "cita.attended"

	// Dashboard events, published by this service
	EventDashboardRefreshed = "dashboard.refreshed"
	EventDerivacionCreated  = "dashboard.derivacion.created"
	EventRecetaCreated      = "dashboard.receta.created"
)

// Exchange names
const (
	ExchangeCitaEvents      = "citas.events"
	ExchangeDashboardEvents = "dashboard.events"
)

// QueueCitaEvents is the queue this service consumes appointment changes from.
const QueueCitaEvents = "citas-dashboard.cita-events"

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// CitaEvent describes a change to one appointment. Fecha is YYYY-MM-DD.
type CitaEvent struct {
	CitaID         int64  `json:"cita_id"`
	Fecha          string `json:"fecha"`
	EspecialidadID int64  `json:"especialidad_id,omitempty"`
	MedicoID       int64  `json:"medico_id,omitempty"`
	Estado         string `json:"estado,omitempty"`
	Origen         string `json:"origen,omitempty"`
}

// DashboardRefreshedEvent is published after every successful refresh cycle.
type DashboardRefreshedEvent struct {
	SessionID string            `json:"session_id"`
	Page      string            `json:"page"`
	Cycle     uint64            `json:"cycle"`
	Filters   map[string]string `json:"filters"`
}

// DerivacionCreatedEvent is published when a referral form is accepted by the backend.
type DerivacionCreatedEvent struct {
	SessionID      string `json:"session_id"`
	CitaID         string `json:"cita_id"`
	EspecialidadID string `json:"especialidad_id"`
	MedicoID       string `json:"medico_id,omitempty"`
	Fecha          string `json:"fecha,omitempty"`
}

// RecetaCreatedEvent is published when a consultation with its prescription is saved.
type RecetaCreatedEvent struct {
	SessionID    string `json:"session_id"`
	CitaID       string `json:"cita_id"`
	Medicamentos int    `json:"medicamentos"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.New().String()
}
