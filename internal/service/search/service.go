// Package search finds the best branches with an open slot for a service.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository"
	"github.com/jwalitptl/appointment-engine/internal/service/availability"
	apperrors "github.com/jwalitptl/appointment-engine/pkg/errors"
	"github.com/jwalitptl/appointment-engine/pkg/geo"
	"github.com/jwalitptl/appointment-engine/pkg/logger"
	"github.com/jwalitptl/appointment-engine/pkg/metrics"
)

const (
	DefaultRadiusKm   = 50.0
	DefaultMaxResults = 5
	DefaultWindowDays = 30
	DefaultCacheTTL   = 5 * time.Minute
	defaultParallel   = 8
)

type Options struct {
	DefaultRadiusKm   float64
	DefaultMaxResults int
	WindowDays        int
	CacheTTL          time.Duration
	Parallelism       int
	// Location decides when "tomorrow" starts.
	Location *time.Location
	Now      func() time.Time
}

func (o *Options) applyDefaults() {
	if o.DefaultRadiusKm <= 0 {
		o.DefaultRadiusKm = DefaultRadiusKm
	}
	if o.DefaultMaxResults <= 0 {
		o.DefaultMaxResults = DefaultMaxResults
	}
	if o.WindowDays <= 0 {
		o.WindowDays = DefaultWindowDays
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = DefaultCacheTTL
	}
	if o.Parallelism <= 0 {
		o.Parallelism = defaultParallel
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type Service struct {
	directory    repository.BranchDirectory
	availability *availability.Service
	cache        *cache.Cache
	opts         Options
	metrics      *metrics.Metrics
	log          *logger.Logger
}

func NewService(directory repository.BranchDirectory, avail *availability.Service, opts Options, m *metrics.Metrics, log *logger.Logger) *Service {
	opts.applyDefaults()
	return &Service{
		directory:    directory,
		availability: avail,
		cache:        cache.New(opts.CacheTTL, 2*opts.CacheTTL),
		opts:         opts,
		metrics:      m,
		log:          log.With("search"),
	}
}

// WindowStart is the first date a search scans: tomorrow in the configured
// location, or the preferred date when that is later.
func (s *Service) WindowStart(preferred *time.Time) time.Time {
	now := s.opts.Now().In(s.opts.Location)
	tomorrow := model.Date(now).AddDate(0, 0, 1)
	if preferred != nil {
		if p := model.Date(*preferred); !p.Before(tomorrow) {
			return p
		}
	}
	return tomorrow
}

// SearchAvailableAppointments returns up to MaxResults branches near the
// requested point that offer the service and have a free slot in the
// search window. No availability is an empty result, not an error.
func (s *Service) SearchAvailableAppointments(ctx context.Context, req model.SearchRequest) ([]model.AvailableAppointment, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.NewBadRequest(err.Error(), err)
	}
	if req.RadiusKm == 0 {
		req.RadiusKm = s.opts.DefaultRadiusKm
	}
	if req.MaxResults == 0 {
		req.MaxResults = s.opts.DefaultMaxResults
	}
	if req.Preference == "" {
		req.Preference = model.PreferenceNearestCenter
	}

	start := time.Now()
	defer func() {
		s.metrics.SearchDuration.WithLabelValues(string(req.Preference)).Observe(time.Since(start).Seconds())
	}()

	serviceType, err := s.serviceType(ctx, req.ServiceTypeID)
	if err != nil {
		return nil, err
	}
	candidates, err := s.candidates(ctx, req)
	if err != nil {
		return nil, err
	}

	from := s.WindowStart(req.PreferredDate)
	found := make([]*model.AvailableAppointment, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Parallelism)
	for i, branch := range candidates {
		i, branch := i, branch
		g.Go(func() error {
			opening, err := s.availability.FirstAvailable(gctx, branch.ID, from, s.opts.WindowDays, &req.ServiceTypeID)
			if err != nil {
				return fmt.Errorf("branch %s: %w", branch.ID, err)
			}
			if opening == nil {
				return nil
			}
			found[i] = &model.AvailableAppointment{
				BranchID:            branch.ID,
				BranchName:          branch.Name,
				BranchAddress:       branch.Address,
				DistanceKm:          geo.HaversineKm(req.Latitude, req.Longitude, branch.Latitude, branch.Longitude),
				AvailableDate:       opening.Date,
				AvailableTime:       opening.Time,
				SlotDurationMinutes: opening.SlotDurationMinutes,
				ServiceTypeName:     serviceType.Name,
				AvailableSlotsCount: opening.AvailableSlots,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, repository.ToAppError("availability", err)
	}

	results := make([]model.AvailableAppointment, 0, len(found))
	for _, r := range found {
		if r != nil {
			results = append(results, *r)
		}
	}
	Rank(results, req.Preference)
	if len(results) > req.MaxResults {
		results = results[:req.MaxResults]
	}
	for i := range results {
		results[i].DistanceKm = roundKm(results[i].DistanceKm)
	}

	s.metrics.SearchResults.Observe(float64(len(results)))
	s.log.Debug("search completed",
		"service_type_id", req.ServiceTypeID,
		"preference", string(req.Preference),
		"candidates", len(candidates),
		"results", len(results))
	return results, nil
}

// candidates intersects the branches offering the service with the active
// branches inside the radius.
func (s *Service) candidates(ctx context.Context, req model.SearchRequest) ([]*model.Branch, error) {
	offering, err := s.offering(ctx, req.ServiceTypeID)
	if err != nil {
		return nil, err
	}
	if len(offering) == 0 {
		return nil, nil
	}

	nearby, err := s.directory.FindNearbyActiveBranches(ctx, req.Latitude, req.Longitude, req.RadiusKm)
	if err != nil {
		return nil, repository.ToAppError("branch", err)
	}

	var out []*model.Branch
	for _, b := range nearby {
		if _, ok := offering[b.ID]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Service) offering(ctx context.Context, serviceTypeID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	key := "offers:" + serviceTypeID.String()
	if cached, ok := s.cache.Get(key); ok {
		return cached.(map[uuid.UUID]struct{}), nil
	}

	ids, err := s.directory.ListBranchesOfferingService(ctx, serviceTypeID)
	if err != nil {
		return nil, repository.ToAppError("branch", err)
	}
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	s.cache.SetDefault(key, set)
	return set, nil
}

func (s *Service) serviceType(ctx context.Context, id uuid.UUID) (*model.ServiceType, error) {
	key := "service_type:" + id.String()
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*model.ServiceType), nil
	}

	st, err := s.directory.GetServiceType(ctx, id)
	if err != nil {
		return nil, repository.ToAppError("service type", err)
	}
	s.cache.SetDefault(key, st)
	return st, nil
}
