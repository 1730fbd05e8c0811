package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PlanFactRow compares a month's sales plan with the deals actually closed,
// per project and property type.
type PlanFactRow struct {
	Project      string          `json:"complex_name"`
	PropertyType string          `json:"property_type"`
	PlanUnits    int             `json:"plan_units"`
	PlanVolume   decimal.Decimal `json:"plan_volume"`
	FactUnits    int             `json:"fact_units"`
	FactVolume   decimal.Decimal `json:"fact_volume"`
}

// RemainderLine summarizes the saleable stock of one property type within a
// project.
type RemainderLine struct {
	PropertyType string          `json:"property_type"`
	Units        int             `json:"units"`
	TotalValue   decimal.Decimal `json:"total_value_uzs"`
	TotalUSD     decimal.Decimal `json:"total_value_usd"`
}

// ProjectRemainder is the per-project inventory remainder.
type ProjectRemainder struct {
	Project string          `json:"complex_name"`
	Lines   []RemainderLine `json:"lines"`
}

// ReportingService reads the mirror and the planning store to produce the
// operational reports.
type ReportingService interface {
	PlanFact(ctx context.Context, year, month int) ([]PlanFactRow, error)
	RemainderSummary(ctx context.Context) ([]ProjectRemainder, error)
}

type reportingService struct {
	mirror   *pgxpool.Pool
	planning PlanningService
	currency CurrencyService
}

func NewReportingService(mirror *pgxpool.Pool, planning PlanningService, currency CurrencyService) ReportingService {
	return &reportingService{mirror: mirror, planning: planning, currency: currency}
}

func (s *reportingService) PlanFact(ctx context.Context, year, month int) ([]PlanFactRow, error) {
	plans, err := s.planning.SalesPlans(ctx, year, month)
	if err != nil {
		return nil, err
	}

	type key struct{ project, propertyType string }
	byKey := make(map[key]*PlanFactRow)
	for _, p := range plans {
		byKey[key{p.Project, p.PropertyType}] = &PlanFactRow{
			Project:      p.Project,
			PropertyType: p.PropertyType,
			PlanUnits:    p.PlanUnits,
			PlanVolume:   p.PlanVolume,
		}
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	rows, err := s.mirror.Query(ctx, `
		SELECT h.complex_name, u.category, COUNT(*), COALESCE(SUM(d.sum), 0)
		FROM deals d
		JOIN units u ON u.id = d.unit_id
		JOIN houses h ON h.id = u.house_id
		WHERE d.status = $1 AND d.agreement_date >= $2 AND d.agreement_date < $3
		GROUP BY h.complex_name, u.category
	`, stageDealDone, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query closed deals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var project, category string
		var units int
		var volume decimal.Decimal
		if err := rows.Scan(&project, &category, &units, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan deal aggregate: %w", err)
		}
		k := key{project, category}
		row := byKey[k]
		if row == nil {
			row = &PlanFactRow{Project: k.project, PropertyType: k.propertyType}
			byKey[k] = row
		}
		row.FactUnits = units
		row.FactVolume = volume
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]PlanFactRow, 0, len(byKey))
	for _, row := range byKey {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Project != out[j].Project {
			return out[i].Project < out[j].Project
		}
		return out[i].PropertyType < out[j].PropertyType
	})
	return out, nil
}

func (s *reportingService) RemainderSummary(ctx context.Context) ([]ProjectRemainder, error) {
	rate := fallbackUSDRate
	if cs, err := s.currency.Settings(ctx); err == nil && cs.EffectiveRate.IsPositive() {
		rate = cs.EffectiveRate
	}

	rows, err := s.mirror.Query(ctx, `
		SELECT h.complex_name, u.category, COUNT(*), COALESCE(SUM(u.price), 0)
		FROM units u
		JOIN houses h ON h.id = u.house_id
		WHERE u.status = ANY($1)
		  AND NOT EXISTS (SELECT 1 FROM excluded_projects ep WHERE ep.project_name = h.complex_name)
		GROUP BY h.complex_name, u.category
		ORDER BY h.complex_name, u.category
	`, ActiveUnitStatuses)
	if err != nil {
		return nil, fmt.Errorf("failed to query remainder: %w", err)
	}
	defer rows.Close()

	var out []ProjectRemainder
	for rows.Next() {
		var project, category string
		var units int
		var total decimal.Decimal
		if err := rows.Scan(&project, &category, &units, &total); err != nil {
			return nil, fmt.Errorf("failed to scan remainder line: %w", err)
		}
		line := RemainderLine{
			PropertyType: category,
			Units:        units,
			TotalValue:   total,
			TotalUSD:     total.Div(rate),
		}
		if len(out) == 0 || out[len(out)-1].Project != project {
			out = append(out, ProjectRemainder{Project: project})
		}
		out[len(out)-1].Lines = append(out[len(out)-1].Lines, line)
	}
	return out, rows.Err()
}
