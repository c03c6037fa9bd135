package model

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/appointment-engine/pkg/geo"
)

type PreferenceType string

const (
	PreferenceNearestCenter PreferenceType = "NEAREST_CENTER"
	PreferenceEarliestDate  PreferenceType = "EARLIEST_DATE"
)

func (p PreferenceType) Valid() bool {
	return p == PreferenceNearestCenter || p == PreferenceEarliestDate
}

// SearchRequest asks for the best branches offering a service near a point.
type SearchRequest struct {
	ServiceTypeID uuid.UUID
	Latitude      float64
	Longitude     float64
	PreferredDate *time.Time
	Preference    PreferenceType
	RadiusKm      float64
	MaxResults    int
}

// Validate rejects malformed input before any lookup happens. Zero radius and
// result limit are left for the caller to default.
func (r *SearchRequest) Validate() error {
	if r.ServiceTypeID == uuid.Nil {
		return fmt.Errorf("service_type_id is required")
	}
	if !geo.ValidCoordinates(r.Latitude, r.Longitude) {
		return fmt.Errorf("coordinates (%v, %v) out of range", r.Latitude, r.Longitude)
	}
	if r.RadiusKm < 0 || math.IsNaN(r.RadiusKm) || math.IsInf(r.RadiusKm, 0) {
		return fmt.Errorf("radius must be a positive number of kilometres")
	}
	if r.MaxResults < 0 {
		return fmt.Errorf("max results must be positive")
	}
	if r.Preference != "" && !r.Preference.Valid() {
		return fmt.Errorf("unknown preference %q", r.Preference)
	}
	return nil
}

// AvailableAppointment is one ranked search result: a branch and its first
// free slot inside the search window.
type AvailableAppointment struct {
	BranchID            uuid.UUID `json:"branch_id"`
	BranchName          string    `json:"branch_name"`
	BranchAddress       string    `json:"branch_address,omitempty"`
	DistanceKm          float64   `json:"distance_km"`
	AvailableDate       time.Time `json:"available_date"`
	AvailableTime       Clock     `json:"available_time"`
	SlotDurationMinutes int       `json:"slot_duration_minutes"`
	ServiceTypeName     string    `json:"service_type_name"`
	AvailableSlotsCount int       `json:"available_slots_count"`
}

// DaySlots is the availability of one branch on one date.
type DaySlots struct {
	BranchID            uuid.UUID `json:"branch_id"`
	Date                time.Time `json:"date"`
	Open                bool      `json:"open"`
	ClosedReason        string    `json:"closed_reason,omitempty"`
	SlotDurationMinutes int       `json:"slot_duration_minutes,omitempty"`
	TotalSlots          int       `json:"total_slots"`
	AvailableSlots      int       `json:"available_slots"`
	FreeSlots           []Clock   `json:"free_slots"`
}
