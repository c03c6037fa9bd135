package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusProcessed OutboxStatus = "PROCESSED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

// Booking lifecycle event types; also used as broker channels.
const (
	EventAppointmentBooked        = "appointment.booked"
	EventAppointmentStatusChanged = "appointment.status_changed"
	EventSequenceIssued           = "sequence.issued"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	AggregateID  uuid.UUID       `db:"aggregate_id" json:"aggregate_id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}

// NewOutboxEvent marshals payload into a pending event.
func NewOutboxEvent(eventType string, aggregateID uuid.UUID, payload interface{}, now time.Time) (*OutboxEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &OutboxEvent{
		ID:          uuid.New(),
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     body,
		Status:      OutboxStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// AppointmentBookedPayload is published when a booking commits.
type AppointmentBookedPayload struct {
	AppointmentID   uuid.UUID `json:"appointment_id"`
	AppointmentCode string    `json:"appointment_code"`
	BeneficiaryID   uuid.UUID `json:"beneficiary_id"`
	BranchID        uuid.UUID `json:"branch_id"`
	ServiceTypeID   uuid.UUID `json:"service_type_id"`
	Date            string    `json:"date"`
	Time            Clock     `json:"time"`
}

// AppointmentStatusChangedPayload is published on every status transition.
type AppointmentStatusChangedPayload struct {
	AppointmentID uuid.UUID         `json:"appointment_id"`
	From          AppointmentStatus `json:"from"`
	To            AppointmentStatus `json:"to"`
	Reason        string            `json:"reason,omitempty"`
}
