package search

import (
	"bytes"
	"math"
	"sort"

	"github.com/jwalitptl/appointment-engine/internal/model"
)

// Rank orders results in place: by distance for NEAREST_CENTER, by first
// available (date, time) for EARLIEST_DATE. Ties fall back to distance and
// then branch id so the output is deterministic.
func Rank(results []model.AvailableAppointment, preference model.PreferenceType) {
	byDistance := func(a, b *model.AvailableAppointment) int {
		switch {
		case a.DistanceKm < b.DistanceKm:
			return -1
		case a.DistanceKm > b.DistanceKm:
			return 1
		}
		return bytes.Compare(a.BranchID[:], b.BranchID[:])
	}
	byDate := func(a, b *model.AvailableAppointment) int {
		switch {
		case a.AvailableDate.Before(b.AvailableDate):
			return -1
		case a.AvailableDate.After(b.AvailableDate):
			return 1
		case a.AvailableTime != b.AvailableTime:
			if a.AvailableTime < b.AvailableTime {
				return -1
			}
			return 1
		}
		return byDistance(a, b)
	}

	cmp := byDistance
	if preference == model.PreferenceEarliestDate {
		cmp = byDate
	}
	sort.SliceStable(results, func(i, j int) bool {
		return cmp(&results[i], &results[j]) < 0
	})
}

func roundKm(km float64) float64 {
	return math.Round(km*100) / 100
}
