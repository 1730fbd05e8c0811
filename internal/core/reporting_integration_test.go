package core_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/DieForGlory/portal-analytics-sub000/internal/core"
)

func TestRemainderSummaryHidesExcludedProjects(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	pool.Exec(ctx, "TRUNCATE TABLE houses, units, excluded_projects, sales_plans CASCADE")

	if _, err := pool.Exec(ctx, `
		INSERT INTO houses (id, complex_name, name, geo, data_hash) VALUES
		  (1, 'Манхэттен', 'Дом 1', NULL, 'h1'),
		  (2, 'Ривьера', 'Дом 1', NULL, 'h2')`); err != nil {
		t.Fatalf("seed houses: %v", err)
	}
	if _, err := pool.Exec(ctx, `
		INSERT INTO units (id, house_id, category, floor, rooms, status, price, area, data_hash) VALUES
		  (10, 1, $1, 3, 2, 'Подбор', 650000000, 43.3, 'u10'),
		  (20, 2, $1, 5, 3, 'Подбор', 800000000, 60.1, 'u20')`,
		string(core.PropertyFlat)); err != nil {
		t.Fatalf("seed units: %v", err)
	}

	exclusions := core.NewExclusionService(pool)
	svc := core.NewReportingService(pool, core.NewPlanningService(pool), stubCurrency{rate: decimal.NewFromInt(12500)})

	summary, err := svc.RemainderSummary(ctx)
	if err != nil {
		t.Fatalf("RemainderSummary: %v", err)
	}
	if len(summary) != 2 {
		t.Fatalf("expected both projects before exclusion, got %d", len(summary))
	}

	if _, err := exclusions.ToggleProject(ctx, "Ривьера"); err != nil {
		t.Fatalf("ToggleProject: %v", err)
	}

	summary, err = svc.RemainderSummary(ctx)
	if err != nil {
		t.Fatalf("RemainderSummary after exclusion: %v", err)
	}
	if len(summary) != 1 || summary[0].Project != "Манхэттен" {
		t.Fatalf("expected only Манхэттен after exclusion, got %+v", summary)
	}
	if summary[0].Lines[0].Units != 1 {
		t.Errorf("expected 1 remaining unit, got %d", summary[0].Lines[0].Units)
	}

	// Re-including brings the project back.
	if _, err := exclusions.ToggleProject(ctx, "Ривьера"); err != nil {
		t.Fatalf("ToggleProject (second): %v", err)
	}
	summary, err = svc.RemainderSummary(ctx)
	if err != nil {
		t.Fatalf("RemainderSummary after re-include: %v", err)
	}
	if len(summary) != 2 {
		t.Errorf("expected both projects after re-include, got %d", len(summary))
	}
}

func TestActiveSummaryHidesExcludedProjects(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	pool.Exec(ctx, `TRUNCATE TABLE houses, units, excluded_projects,
		discounts, project_notes, discount_versions CASCADE`)

	svc := core.NewDiscountService(pool, pool, stubCurrency{rate: decimal.NewFromInt(12500)})

	v, err := svc.CreateBlankVersion(ctx, "сводка")
	if err != nil {
		t.Fatalf("CreateBlankVersion: %v", err)
	}
	rows := []core.DiscountRow{
		{Project: "Манхэттен", PropertyType: core.PropertyFlat, PaymentMethod: core.FullPayment,
			MPP: decimal.RequireFromString("0.03")},
		{Project: "Ривьера", PropertyType: core.PropertyFlat, PaymentMethod: core.FullPayment,
			MPP: decimal.RequireFromString("0.02")},
	}
	if _, _, err := svc.ImportRows(ctx, v.ID, rows); err != nil {
		t.Fatalf("ImportRows: %v", err)
	}
	if _, err := svc.Activate(ctx, v.ID, "запуск"); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	if _, err := core.NewExclusionService(pool).ToggleProject(ctx, "Ривьера"); err != nil {
		t.Fatalf("ToggleProject: %v", err)
	}

	summary, err := svc.ActiveSummary(ctx)
	if err != nil {
		t.Fatalf("ActiveSummary: %v", err)
	}
	if _, ok := summary["Ривьера"]; ok {
		t.Error("excluded project must not appear in the summary")
	}
	if _, ok := summary["Манхэттен"]; !ok {
		t.Error("non-excluded project missing from the summary")
	}
}
