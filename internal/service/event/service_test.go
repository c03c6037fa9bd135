package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/appointment-engine/internal/model"
)

func TestBookedPayload(t *testing.T) {
	apt := &model.Appointment{
		Base:            model.Base{ID: uuid.New()},
		BeneficiaryID:   uuid.New(),
		BranchID:        uuid.New(),
		ServiceTypeID:   uuid.New(),
		AppointmentDate: time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
		AppointmentTime: model.MustParseClock("08:00"),
		AppointmentCode: "HQ-2025-0001",
	}

	evt, err := Booked(apt, time.Now())
	require.NoError(t, err)
	assert.Equal(t, model.EventAppointmentBooked, evt.EventType)
	assert.Equal(t, apt.ID, evt.AggregateID)
	assert.Equal(t, model.OutboxStatusPending, evt.Status)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	assert.Equal(t, "HQ-2025-0001", payload["appointment_code"])
	assert.Equal(t, "2025-01-05", payload["date"])
	assert.Equal(t, "08:00", payload["time"])
}

func TestSequenceIssuedPayload(t *testing.T) {
	branchID := uuid.New()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	evt, err := SequenceIssued(SequenceIssuedPayload{BranchID: branchID, Year: 2025, Number: 7, Code: "HQ-2025-0007"}, now)
	require.NoError(t, err)
	assert.Equal(t, model.EventSequenceIssued, evt.EventType)
	assert.Equal(t, branchID, evt.AggregateID)
	assert.Equal(t, now, evt.CreatedAt)

	var payload SequenceIssuedPayload
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	assert.Equal(t, 7, payload.Number)
	assert.Equal(t, "HQ-2025-0007", payload.Code)
}
