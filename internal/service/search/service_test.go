package search

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository"
	"github.com/jwalitptl/appointment-engine/internal/repository/memory"
	"github.com/jwalitptl/appointment-engine/internal/service/availability"
	"github.com/jwalitptl/appointment-engine/internal/service/schedule"
	apperrors "github.com/jwalitptl/appointment-engine/pkg/errors"
	"github.com/jwalitptl/appointment-engine/pkg/logger"
	"github.com/jwalitptl/appointment-engine/pkg/metrics"
)

const originLat, originLon = 24.7136, 46.6753

// Saturday; tomorrow is Sunday 2025-01-05.
var now = time.Date(2025, 1, 4, 10, 0, 0, 0, time.UTC)

// northOf returns the latitude km kilometres due north of the origin.
func northOf(km float64) float64 {
	return originLat + km/6371.0*180/math.Pi
}

type countingDirectory struct {
	repository.BranchDirectory
	offering     atomic.Int32
	serviceTypes atomic.Int32
}

func (d *countingDirectory) ListBranchesOfferingService(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	d.offering.Add(1)
	return d.BranchDirectory.ListBranchesOfferingService(ctx, id)
}

func (d *countingDirectory) GetServiceType(ctx context.Context, id uuid.UUID) (*model.ServiceType, error) {
	d.serviceTypes.Add(1)
	return d.BranchDirectory.GetServiceType(ctx, id)
}

type env struct {
	store     *memory.Store
	svc       *Service
	dir       *countingDirectory
	metrics   *metrics.Metrics
	serviceID uuid.UUID
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.NewStore()
	e := &env{store: store, serviceID: uuid.New(), metrics: metrics.NewNop()}
	store.AddServiceType(model.ServiceType{ID: e.serviceID, Name: "Passport renewal", DurationMinutes: 30})

	cal := schedule.NewCalendar(store.ScheduleRules(), store.Holidays(), store.Overrides(), schedule.MatchWeekday, logger.Nop())
	e.dir = &countingDirectory{BranchDirectory: store.Directory()}
	e.svc = NewService(e.dir, availability.NewService(cal, store.Appointments()), Options{
		Now:         func() time.Time { return now },
		Parallelism: 2,
	}, e.metrics, logger.Nop())
	return e
}

// addBranch registers an active branch km north of the origin, open 08:00 to
// 10:00 on day.
func (e *env) addBranch(t *testing.T, name string, km float64, day model.DayOfWeek, offers bool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	var services []uuid.UUID
	if offers {
		services = append(services, e.serviceID)
	}
	e.store.AddBranch(model.Branch{
		ID: id, Code: name, Name: name, Latitude: northOf(km), Longitude: originLon, IsActive: true,
	}, services...)
	require.NoError(t, e.store.ScheduleRules().Create(context.Background(), &model.WeeklyScheduleRule{
		BranchID:            id,
		DayOfWeek:           day,
		StartTime:           model.MustParseClock("08:00"),
		EndTime:             model.MustParseClock("10:00"),
		SlotDurationMinutes: 30,
		MaxCapacityPerSlot:  1,
		IsActive:            true,
	}))
	return id
}

func (e *env) request(pref model.PreferenceType) model.SearchRequest {
	return model.SearchRequest{
		ServiceTypeID: e.serviceID,
		Latitude:      originLat,
		Longitude:     originLon,
		Preference:    pref,
	}
}

func distances(results []model.AvailableAppointment) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.DistanceKm
	}
	return out
}

func TestRankNearestCenter(t *testing.T) {
	results := []model.AvailableAppointment{
		{BranchID: uuid.New(), DistanceKm: 12.0},
		{BranchID: uuid.New(), DistanceKm: 3.5},
		{BranchID: uuid.New(), DistanceKm: 40.1},
	}
	Rank(results, model.PreferenceNearestCenter)
	assert.Equal(t, []float64{3.5, 12.0, 40.1}, distances(results))
}

func TestRankEarliestDateIgnoresDistance(t *testing.T) {
	sunday := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	results := []model.AvailableAppointment{
		{BranchID: uuid.New(), DistanceKm: 3.5, AvailableDate: sunday.AddDate(0, 0, 2), AvailableTime: model.MustParseClock("08:00")},
		{BranchID: uuid.New(), DistanceKm: 40.1, AvailableDate: sunday, AvailableTime: model.MustParseClock("09:00")},
		{BranchID: uuid.New(), DistanceKm: 12.0, AvailableDate: sunday, AvailableTime: model.MustParseClock("08:30")},
		{BranchID: uuid.New(), DistanceKm: 7.0, AvailableDate: sunday, AvailableTime: model.MustParseClock("09:00")},
	}
	Rank(results, model.PreferenceEarliestDate)
	assert.Equal(t, []float64{12.0, 7.0, 40.1, 3.5}, distances(results))
}

func TestSearchRanksByPreference(t *testing.T) {
	e := newEnv(t)
	e.addBranch(t, "A", 3.5, model.Tuesday, true)
	e.addBranch(t, "B", 12.0, model.Sunday, true)
	e.addBranch(t, "C", 40.1, model.Monday, true)

	nearest, err := e.svc.SearchAvailableAppointments(context.Background(), e.request(model.PreferenceNearestCenter))
	require.NoError(t, err)
	assert.Equal(t, []float64{3.5, 12.0, 40.1}, distances(nearest))
	assert.Equal(t, "A", nearest[0].BranchName)
	assert.Equal(t, "Passport renewal", nearest[0].ServiceTypeName)
	assert.Equal(t, model.MustParseClock("08:00"), nearest[0].AvailableTime)
	assert.Equal(t, 30, nearest[0].SlotDurationMinutes)
	assert.Equal(t, 4, nearest[0].AvailableSlotsCount)

	earliest, err := e.svc.SearchAvailableAppointments(context.Background(), e.request(model.PreferenceEarliestDate))
	require.NoError(t, err)
	require.Len(t, earliest, 3)
	assert.Equal(t, []string{"B", "C", "A"}, []string{earliest[0].BranchName, earliest[1].BranchName, earliest[2].BranchName})
	assert.Equal(t, time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), earliest[0].AvailableDate)

	assert.Equal(t, 2, testutil.CollectAndCount(e.metrics.SearchDuration))
}

func TestSearchFiltersCandidates(t *testing.T) {
	e := newEnv(t)
	near := e.addBranch(t, "near", 5, model.Sunday, true)
	e.addBranch(t, "not-offering", 1, model.Sunday, false)
	e.addBranch(t, "too-far", 80, model.Sunday, true)
	inactive := e.addBranch(t, "inactive", 4, model.Sunday, true)
	e.store.AddBranch(model.Branch{ID: inactive, Name: "inactive", Latitude: northOf(4), Longitude: originLon})

	// Every Sunday of the 30-day window is fully booked here.
	full := e.addBranch(t, "full", 2, model.Sunday, true)
	for week := 0; week < 5; week++ {
		for _, at := range []string{"08:00", "08:30", "09:00", "09:30"} {
			e.store.SeedAppointment(model.Appointment{
				BeneficiaryID:   uuid.New(),
				BranchID:        full,
				ServiceTypeID:   e.serviceID,
				AppointmentDate: time.Date(2025, 1, 5+7*week, 0, 0, 0, 0, time.UTC),
				AppointmentTime: model.MustParseClock(at),
				Status:          model.AppointmentStatusConfirmed,
			})
		}
	}

	results, err := e.svc.SearchAvailableAppointments(context.Background(), e.request(model.PreferenceNearestCenter))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, near, results[0].BranchID)
}

func TestSearchTruncatesAndRounds(t *testing.T) {
	e := newEnv(t)
	e.addBranch(t, "pi", 3.14159, model.Sunday, true)
	for i := 0; i < 6; i++ {
		e.addBranch(t, "b", float64(10+i), model.Sunday, true)
	}

	results, err := e.svc.SearchAvailableAppointments(context.Background(), e.request(""))
	require.NoError(t, err)
	require.Len(t, results, DefaultMaxResults)
	assert.Equal(t, 3.14, results[0].DistanceKm)

	req := e.request(model.PreferenceNearestCenter)
	req.MaxResults = 2
	results, err = e.svc.SearchAvailableAppointments(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchHonoursPreferredDate(t *testing.T) {
	e := newEnv(t)
	e.addBranch(t, "A", 3, model.Sunday, true)

	friday := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	req := e.request(model.PreferenceNearestCenter)
	req.PreferredDate = &friday
	results, err := e.svc.SearchAvailableAppointments(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC), results[0].AvailableDate)

	past := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	req.PreferredDate = &past
	results, err = e.svc.SearchAvailableAppointments(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), results[0].AvailableDate)
}

func TestWindowStartUsesConfiguredLocation(t *testing.T) {
	late := time.Date(2025, 1, 4, 22, 0, 0, 0, time.UTC)
	svc := NewService(nil, nil, Options{
		Location: time.FixedZone("UTC+3", 3*3600),
		Now:      func() time.Time { return late },
	}, metrics.NewNop(), logger.Nop())

	assert.Equal(t, time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), svc.WindowStart(nil))
}

func TestSearchRejectsMalformedInput(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name   string
		mutate func(*model.SearchRequest)
		code   apperrors.ErrorCode
	}{
		{"latitude", func(r *model.SearchRequest) { r.Latitude = 91 }, apperrors.CodeBadRequest},
		{"longitude", func(r *model.SearchRequest) { r.Longitude = -181 }, apperrors.CodeBadRequest},
		{"radius", func(r *model.SearchRequest) { r.RadiusKm = -1 }, apperrors.CodeBadRequest},
		{"NaN latitude", func(r *model.SearchRequest) { r.Latitude = math.NaN() }, apperrors.CodeBadRequest},
		{"NaN longitude", func(r *model.SearchRequest) { r.Longitude = math.NaN() }, apperrors.CodeBadRequest},
		{"infinite latitude", func(r *model.SearchRequest) { r.Latitude = math.Inf(1) }, apperrors.CodeBadRequest},
		{"NaN radius", func(r *model.SearchRequest) { r.RadiusKm = math.NaN() }, apperrors.CodeBadRequest},
		{"infinite radius", func(r *model.SearchRequest) { r.RadiusKm = math.Inf(1) }, apperrors.CodeBadRequest},
		{"preference", func(r *model.SearchRequest) { r.Preference = "CHEAPEST" }, apperrors.CodeBadRequest},
		{"service type", func(r *model.SearchRequest) { r.ServiceTypeID = uuid.New() }, apperrors.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := e.request(model.PreferenceNearestCenter)
			tt.mutate(&req)
			_, err := e.svc.SearchAvailableAppointments(context.Background(), req)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestSearchNoAvailabilityIsEmpty(t *testing.T) {
	e := newEnv(t)

	results, err := e.svc.SearchAvailableAppointments(context.Background(), e.request(model.PreferenceEarliestDate))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchCachesDirectoryLookups(t *testing.T) {
	e := newEnv(t)
	e.addBranch(t, "A", 3, model.Sunday, true)

	for i := 0; i < 3; i++ {
		_, err := e.svc.SearchAvailableAppointments(context.Background(), e.request(model.PreferenceNearestCenter))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), e.dir.offering.Load())
	assert.Equal(t, int32(1), e.dir.serviceTypes.Load())
}
