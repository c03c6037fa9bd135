// Package event builds the lifecycle events that storage records in the
// outbox, in the same transaction as the change they describe, for the relay
// worker to publish.
package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/appointment-engine/internal/model"
)

// Booked builds the appointment.booked event for a freshly created
// appointment.
func Booked(apt *model.Appointment, now time.Time) (*model.OutboxEvent, error) {
	return model.NewOutboxEvent(model.EventAppointmentBooked, apt.ID, model.AppointmentBookedPayload{
		AppointmentID:   apt.ID,
		AppointmentCode: apt.AppointmentCode,
		BeneficiaryID:   apt.BeneficiaryID,
		BranchID:        apt.BranchID,
		ServiceTypeID:   apt.ServiceTypeID,
		Date:            apt.AppointmentDate.Format(model.DateLayout),
		Time:            apt.AppointmentTime,
	}, now)
}

// StatusChanged builds the appointment.status_changed event.
func StatusChanged(id uuid.UUID, from, to model.AppointmentStatus, reason string, now time.Time) (*model.OutboxEvent, error) {
	return model.NewOutboxEvent(model.EventAppointmentStatusChanged, id, model.AppointmentStatusChangedPayload{
		AppointmentID: id,
		From:          from,
		To:            to,
		Reason:        reason,
	}, now)
}

// SequenceIssuedPayload is published when a code is issued outside a
// booking.
type SequenceIssuedPayload struct {
	BranchID uuid.UUID `json:"branch_id"`
	Year     int       `json:"year"`
	Number   int       `json:"number"`
	Code     string    `json:"code"`
}

// SequenceIssued builds the sequence.issued event. The branch is the
// aggregate.
func SequenceIssued(payload SequenceIssuedPayload, now time.Time) (*model.OutboxEvent, error) {
	return model.NewOutboxEvent(model.EventSequenceIssued, payload.BranchID, payload, now)
}
