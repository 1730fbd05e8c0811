package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ExclusionService manages the small registry of unit ids and project names
// hidden from aggregates and budget search.
type ExclusionService interface {
	ListExcludedUnits(ctx context.Context) ([]ExcludedUnit, error)
	ExcludedUnitIDs(ctx context.Context) (map[int64]bool, error)
	ExcludeUnit(ctx context.Context, unitID int64, comment string) error
	IncludeUnit(ctx context.Context, unitID int64) error

	ListExcludedProjects(ctx context.Context) ([]ExcludedProject, error)
	// ToggleProject adds the project to the exclusion list if absent, removes
	// it otherwise. Returns true when the project ends up excluded.
	ToggleProject(ctx context.Context, project string) (bool, error)
}

type exclusionService struct {
	pool *pgxpool.Pool
}

func NewExclusionService(pool *pgxpool.Pool) ExclusionService {
	return &exclusionService{pool: pool}
}

func (s *exclusionService) ListExcludedUnits(ctx context.Context) ([]ExcludedUnit, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT unit_id, comment, created_at FROM excluded_units ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query excluded units: %w", err)
	}
	defer rows.Close()

	var out []ExcludedUnit
	for rows.Next() {
		var e ExcludedUnit
		if err := rows.Scan(&e.UnitID, &e.Comment, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan excluded unit: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *exclusionService) ExcludedUnitIDs(ctx context.Context) (map[int64]bool, error) {
	rows, err := s.pool.Query(ctx, "SELECT unit_id FROM excluded_units")
	if err != nil {
		return nil, fmt.Errorf("failed to query excluded unit ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan excluded unit id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

func (s *exclusionService) ExcludeUnit(ctx context.Context, unitID int64, comment string) error {
	if unitID <= 0 {
		return fmt.Errorf("%w: unit id must be positive", ErrInvalidInput)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO excluded_units (unit_id, comment)
		VALUES ($1, NULLIF($2, ''))
		ON CONFLICT (unit_id) DO UPDATE SET comment = EXCLUDED.comment
	`, unitID, comment)
	if err != nil {
		return fmt.Errorf("failed to exclude unit %d: %w", unitID, err)
	}
	return nil
}

func (s *exclusionService) IncludeUnit(ctx context.Context, unitID int64) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM excluded_units WHERE unit_id = $1", unitID)
	if err != nil {
		return fmt.Errorf("failed to remove unit exclusion %d: %w", unitID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: unit %d is not excluded", ErrNotFound, unitID)
	}
	return nil
}

func (s *exclusionService) ListExcludedProjects(ctx context.Context) ([]ExcludedProject, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, project_name FROM excluded_projects ORDER BY project_name")
	if err != nil {
		return nil, fmt.Errorf("failed to query excluded projects: %w", err)
	}
	defer rows.Close()

	var out []ExcludedProject
	for rows.Next() {
		var e ExcludedProject
		if err := rows.Scan(&e.ID, &e.Project); err != nil {
			return nil, fmt.Errorf("failed to scan excluded project: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *exclusionService) ToggleProject(ctx context.Context, project string) (bool, error) {
	project = strings.TrimSpace(project)
	if project == "" {
		return false, fmt.Errorf("%w: project name required", ErrInvalidInput)
	}

	tag, err := s.pool.Exec(ctx, "DELETE FROM excluded_projects WHERE project_name = $1", project)
	if err != nil {
		return false, fmt.Errorf("failed to toggle project exclusion: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return false, nil
	}

	_, err = s.pool.Exec(ctx,
		"INSERT INTO excluded_projects (project_name) VALUES ($1) ON CONFLICT DO NOTHING", project)
	if err != nil {
		return false, fmt.Errorf("failed to exclude project: %w", err)
	}
	return true, nil
}
