package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PlanningService owns sales plans, per-manager plans, and the zero-rate
// mortgage cashback matrix in the planning store.
type PlanningService interface {
	UpsertSalesPlan(ctx context.Context, plan SalesPlan) error
	SalesPlans(ctx context.Context, year, month int) ([]SalesPlan, error)
	UpsertManagerPlan(ctx context.Context, plan ManagerPlan) error
	ManagerPlans(ctx context.Context, year, month int) ([]ManagerPlan, error)

	// ReplaceCashbackMatrix swaps the whole matrix atomically.
	ReplaceCashbackMatrix(ctx context.Context, cells []CashbackCell) error
	CashbackMatrix(ctx context.Context) ([]CashbackCell, error)
}

type planningService struct {
	planning *pgxpool.Pool
}

func NewPlanningService(planning *pgxpool.Pool) PlanningService {
	return &planningService{planning: planning}
}

func validPeriod(year, month int) error {
	if year < 2000 || year > 2100 {
		return fmt.Errorf("%w: year %d out of range", ErrInvalidInput, year)
	}
	if month < 1 || month > 12 {
		return fmt.Errorf("%w: month %d out of range", ErrInvalidInput, month)
	}
	return nil
}

func (s *planningService) UpsertSalesPlan(ctx context.Context, plan SalesPlan) error {
	if err := validPeriod(plan.Year, plan.Month); err != nil {
		return err
	}
	if plan.Project == "" {
		return fmt.Errorf("%w: project name required", ErrInvalidInput)
	}
	_, err := s.planning.Exec(ctx, `
		INSERT INTO sales_plans (complex_name, property_type, year, month, plan_units, plan_volume, plan_income)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (complex_name, property_type, year, month) DO UPDATE SET
			plan_units = EXCLUDED.plan_units,
			plan_volume = EXCLUDED.plan_volume,
			plan_income = EXCLUDED.plan_income
	`, plan.Project, plan.PropertyType, plan.Year, plan.Month, plan.PlanUnits, plan.PlanVolume, plan.PlanIncome)
	if err != nil {
		return fmt.Errorf("failed to upsert sales plan: %w", err)
	}
	return nil
}

func (s *planningService) SalesPlans(ctx context.Context, year, month int) ([]SalesPlan, error) {
	if err := validPeriod(year, month); err != nil {
		return nil, err
	}
	rows, err := s.planning.Query(ctx, `
		SELECT id, complex_name, property_type, year, month, plan_units, plan_volume, plan_income
		FROM sales_plans WHERE year = $1 AND month = $2
		ORDER BY complex_name, property_type
	`, year, month)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales plans: %w", err)
	}
	defer rows.Close()

	var out []SalesPlan
	for rows.Next() {
		var p SalesPlan
		if err := rows.Scan(&p.ID, &p.Project, &p.PropertyType, &p.Year, &p.Month,
			&p.PlanUnits, &p.PlanVolume, &p.PlanIncome); err != nil {
			return nil, fmt.Errorf("failed to scan sales plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *planningService) UpsertManagerPlan(ctx context.Context, plan ManagerPlan) error {
	if err := validPeriod(plan.Year, plan.Month); err != nil {
		return err
	}
	if plan.ManagerID <= 0 {
		return fmt.Errorf("%w: manager id required", ErrInvalidInput)
	}
	_, err := s.planning.Exec(ctx, `
		INSERT INTO manager_plans (manager_id, year, month, plan_volume, plan_income)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (manager_id, year, month) DO UPDATE SET
			plan_volume = EXCLUDED.plan_volume,
			plan_income = EXCLUDED.plan_income
	`, plan.ManagerID, plan.Year, plan.Month, plan.PlanVolume, plan.PlanIncome)
	if err != nil {
		return fmt.Errorf("failed to upsert manager plan: %w", err)
	}
	return nil
}

func (s *planningService) ManagerPlans(ctx context.Context, year, month int) ([]ManagerPlan, error) {
	if err := validPeriod(year, month); err != nil {
		return nil, err
	}
	rows, err := s.planning.Query(ctx, `
		SELECT id, manager_id, year, month, plan_volume, plan_income
		FROM manager_plans WHERE year = $1 AND month = $2
		ORDER BY manager_id
	`, year, month)
	if err != nil {
		return nil, fmt.Errorf("failed to query manager plans: %w", err)
	}
	defer rows.Close()

	var out []ManagerPlan
	for rows.Next() {
		var p ManagerPlan
		if err := rows.Scan(&p.ID, &p.ManagerID, &p.Year, &p.Month, &p.PlanVolume, &p.PlanIncome); err != nil {
			return nil, fmt.Errorf("failed to scan manager plan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *planningService) ReplaceCashbackMatrix(ctx context.Context, cells []CashbackCell) error {
	for _, c := range cells {
		if c.TermMonths <= 0 {
			return fmt.Errorf("%w: cashback term must be positive", ErrInvalidInput)
		}
		if c.DPPercent < 0 || c.DPPercent > 100 {
			return fmt.Errorf("%w: cashback down-payment percent must be within [0,100]", ErrInvalidInput)
		}
		if c.Cashback.IsNegative() || c.Cashback.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("%w: cashback fraction must be within [0,1)", ErrInvalidInput)
		}
	}

	tx, err := s.planning.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM zero_mortgage_matrix"); err != nil {
		return fmt.Errorf("failed to clear cashback matrix: %w", err)
	}
	for _, c := range cells {
		_, err := tx.Exec(ctx, `
			INSERT INTO zero_mortgage_matrix (term_months, dp_percent, cashback_percent)
			VALUES ($1, $2, $3)
			ON CONFLICT (term_months, dp_percent) DO UPDATE SET cashback_percent = EXCLUDED.cashback_percent
		`, c.TermMonths, c.DPPercent, c.Cashback)
		if err != nil {
			return fmt.Errorf("failed to insert cashback cell (%d, %d): %w", c.TermMonths, c.DPPercent, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit cashback matrix: %w", err)
	}
	return nil
}

func (s *planningService) CashbackMatrix(ctx context.Context) ([]CashbackCell, error) {
	rows, err := s.planning.Query(ctx, `
		SELECT term_months, dp_percent, cashback_percent
		FROM zero_mortgage_matrix ORDER BY term_months, dp_percent
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cashback matrix: %w", err)
	}
	defer rows.Close()

	var out []CashbackCell
	for rows.Next() {
		var c CashbackCell
		if err := rows.Scan(&c.TermMonths, &c.DPPercent, &c.Cashback); err != nil {
			return nil, fmt.Errorf("failed to scan cashback cell: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
