package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/internal/repository"
)

type branchDirectory struct {
	BaseRepository
}

// NewBranchDirectory reads branches and their service offering from the
// directory tables.
func NewBranchDirectory(base BaseRepository) repository.BranchDirectory {
	return &branchDirectory{base}
}

func (r *branchDirectory) ListBranchesOfferingService(ctx context.Context, serviceTypeID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT bs.branch_id
		FROM branch_services bs
		JOIN branches b ON b.id = bs.branch_id
		WHERE bs.service_type_id = $1 AND b.is_active = true
		ORDER BY bs.branch_id
	`
	var ids []uuid.UUID
	if err := r.db.SelectContext(ctx, &ids, query, serviceTypeID); err != nil {
		return nil, fmt.Errorf("failed to list branches offering service: %w", classify(err))
	}
	return ids, nil
}

// FindNearbyActiveBranches filters on the great-circle distance computed in
// SQL with the same Earth radius the ranker uses. The haversine term is
// clamped to 1: rounding can push it just past 1 for near-antipodal points,
// which asin rejects.
func (r *branchDirectory) FindNearbyActiveBranches(ctx context.Context, lat, lon, radiusKm float64) ([]*model.Branch, error) {
	query := `
		SELECT id, code, name, address, latitude, longitude, is_active
		FROM branches
		WHERE is_active = true
		AND 2 * 6371 * asin(sqrt(LEAST(1.0,
			power(sin(radians(latitude - $1) / 2), 2) +
			cos(radians($1)) * cos(radians(latitude)) * power(sin(radians(longitude - $2) / 2), 2)
		))) <= $3
	`
	var branches []*model.Branch
	if err := r.db.SelectContext(ctx, &branches, query, lat, lon, radiusKm); err != nil {
		return nil, fmt.Errorf("failed to find nearby branches: %w", classify(err))
	}
	return branches, nil
}

func (r *branchDirectory) GetBranch(ctx context.Context, id uuid.UUID) (*model.Branch, error) {
	var branch model.Branch
	err := r.db.GetContext(ctx, &branch,
		`SELECT id, code, name, address, latitude, longitude, is_active FROM branches WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get branch: %w", classify(err))
	}
	return &branch, nil
}

func (r *branchDirectory) GetServiceType(ctx context.Context, id uuid.UUID) (*model.ServiceType, error) {
	var st model.ServiceType
	err := r.db.GetContext(ctx, &st,
		`SELECT id, name, duration_minutes FROM service_types WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get service type: %w", classify(err))
	}
	return &st, nil
}
