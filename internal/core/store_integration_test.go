package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DieForGlory/portal-analytics-sub000/internal/core"
)

type fixedFetcher struct {
	rate decimal.Decimal
	err  error
}

func (f fixedFetcher) Current(context.Context) (decimal.Decimal, error) { return f.rate, f.err }
func (f fixedFetcher) OnDate(context.Context, time.Time) (decimal.Decimal, error) {
	return f.rate, f.err
}

func TestCurrencyOracle(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	pool.Exec(ctx, "TRUNCATE TABLE currency_settings, currency_daily_rates CASCADE")

	svc := core.NewCurrencyService(pool, fixedFetcher{rate: decimal.NewFromInt(12720)})

	t.Run("SeedsManualDefault", func(t *testing.T) {
		settings, err := svc.Settings(ctx)
		if err != nil {
			t.Fatalf("Settings: %v", err)
		}
		if settings.Source != core.RateSourceManual {
			t.Errorf("expected manual source on first touch, got %s", settings.Source)
		}
		if !settings.EffectiveRate.IsPositive() {
			t.Errorf("expected positive seeded rate, got %s", settings.EffectiveRate)
		}
	})

	t.Run("ManualRateTakesEffect", func(t *testing.T) {
		if err := svc.SetManualRate(ctx, decimal.NewFromInt(13100)); err != nil {
			t.Fatalf("SetManualRate: %v", err)
		}
		rate, err := svc.EffectiveRate(ctx)
		if err != nil {
			t.Fatalf("EffectiveRate: %v", err)
		}
		if !rate.Equal(decimal.NewFromInt(13100)) {
			t.Errorf("expected 13100, got %s", rate)
		}
	})

	t.Run("RefreshAndSwitchToCBU", func(t *testing.T) {
		if _, err := svc.RefreshCBU(ctx); err != nil {
			t.Fatalf("RefreshCBU: %v", err)
		}
		if err := svc.SetSource(ctx, core.RateSourceCBU); err != nil {
			t.Fatalf("SetSource: %v", err)
		}
		rate, err := svc.EffectiveRate(ctx)
		if err != nil {
			t.Fatalf("EffectiveRate: %v", err)
		}
		if !rate.Equal(decimal.NewFromInt(12720)) {
			t.Errorf("expected CBU rate 12720, got %s", rate)
		}
	})

	t.Run("BrokenOracleLeavesStateUntouched", func(t *testing.T) {
		broken := core.NewCurrencyService(pool, fixedFetcher{err: errors.New("timeout")})
		if _, err := broken.RefreshCBU(ctx); !errors.Is(err, core.ErrExternalFailure) {
			t.Fatalf("expected ErrExternalFailure, got %v", err)
		}
		rate, err := svc.EffectiveRate(ctx)
		if err != nil {
			t.Fatalf("EffectiveRate: %v", err)
		}
		if !rate.Equal(decimal.NewFromInt(12720)) {
			t.Errorf("rate changed after failed refresh: %s", rate)
		}
	})

	t.Run("InvalidSourceRejected", func(t *testing.T) {
		if err := svc.SetSource(ctx, "oracle"); !errors.Is(err, core.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestCalculatorSettingsStore(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	pool.Exec(ctx, "TRUNCATE TABLE calculator_settings CASCADE")

	svc := core.NewSettingsService(pool)

	settings, err := svc.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if settings.DPInstallmentMaxTerm != 6 {
		t.Errorf("expected seeded max term 6, got %d", settings.DPInstallmentMaxTerm)
	}

	settings.StandardInstallmentWhitelist = "10, 11,12"
	settings.DPInstallmentMaxTerm = 9
	if err := svc.Update(ctx, *settings); err != nil {
		t.Fatalf("Update: %v", err)
	}

	reloaded, err := svc.Get(ctx)
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if reloaded.DPInstallmentMaxTerm != 9 {
		t.Errorf("expected max term 9, got %d", reloaded.DPInstallmentMaxTerm)
	}
	ids, err := core.ParseWhitelist(reloaded.StandardInstallmentWhitelist)
	if err != nil {
		t.Fatalf("ParseWhitelist: %v", err)
	}
	if !ids[10] || !ids[11] || !ids[12] || len(ids) != 3 {
		t.Errorf("unexpected whitelist parse: %v", ids)
	}
}

func TestExclusions(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	pool.Exec(ctx, "TRUNCATE TABLE excluded_units, excluded_projects CASCADE")

	svc := core.NewExclusionService(pool)

	if err := svc.ExcludeUnit(ctx, 42, "бронь инвестора"); err != nil {
		t.Fatalf("ExcludeUnit: %v", err)
	}
	ids, err := svc.ExcludedUnitIDs(ctx)
	if err != nil {
		t.Fatalf("ExcludedUnitIDs: %v", err)
	}
	if !ids[42] {
		t.Error("unit 42 missing from exclusion set")
	}

	if err := svc.IncludeUnit(ctx, 42); err != nil {
		t.Fatalf("IncludeUnit: %v", err)
	}
	if err := svc.IncludeUnit(ctx, 42); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound on double include, got %v", err)
	}

	excluded, err := svc.ToggleProject(ctx, "Манхэттен")
	if err != nil {
		t.Fatalf("ToggleProject: %v", err)
	}
	if !excluded {
		t.Error("first toggle must exclude the project")
	}
	excluded, err = svc.ToggleProject(ctx, "Манхэттен")
	if err != nil {
		t.Fatalf("ToggleProject (second): %v", err)
	}
	if excluded {
		t.Error("second toggle must re-include the project")
	}
}

func TestPlanningStore(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	pool.Exec(ctx, "TRUNCATE TABLE sales_plans, manager_plans, zero_mortgage_matrix CASCADE")

	svc := core.NewPlanningService(pool)

	plan := core.SalesPlan{
		Project: "Манхэттен", PropertyType: "Квартира", Year: 2026, Month: 9,
		PlanUnits: 20, PlanVolume: decimal.NewFromInt(10_000_000_000),
	}
	if err := svc.UpsertSalesPlan(ctx, plan); err != nil {
		t.Fatalf("UpsertSalesPlan: %v", err)
	}
	plan.PlanUnits = 25
	if err := svc.UpsertSalesPlan(ctx, plan); err != nil {
		t.Fatalf("UpsertSalesPlan (update): %v", err)
	}
	plans, err := svc.SalesPlans(ctx, 2026, 9)
	if err != nil {
		t.Fatalf("SalesPlans: %v", err)
	}
	if len(plans) != 1 || plans[0].PlanUnits != 25 {
		t.Errorf("expected single plan with 25 units, got %+v", plans)
	}

	if err := svc.UpsertSalesPlan(ctx, core.SalesPlan{Project: "X", PropertyType: "Квартира", Year: 2026, Month: 13}); !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for month 13, got %v", err)
	}

	cells := []core.CashbackCell{
		{TermMonths: 6, DPPercent: 30, Cashback: decimal.RequireFromString("0.08")},
		{TermMonths: 12, DPPercent: 50, Cashback: decimal.RequireFromString("0.12")},
	}
	if err := svc.ReplaceCashbackMatrix(ctx, cells); err != nil {
		t.Fatalf("ReplaceCashbackMatrix: %v", err)
	}
	if err := svc.ReplaceCashbackMatrix(ctx, cells[:1]); err != nil {
		t.Fatalf("ReplaceCashbackMatrix (shrink): %v", err)
	}
	matrix, err := svc.CashbackMatrix(ctx)
	if err != nil {
		t.Fatalf("CashbackMatrix: %v", err)
	}
	if len(matrix) != 1 {
		t.Errorf("expected matrix replaced atomically, got %d cells", len(matrix))
	}
}

func TestNotificationSubscribers(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	pool.Exec(ctx, "TRUNCATE TABLE notification_subscribers CASCADE")

	svc := core.NewNotificationService(pool)

	if err := svc.Subscribe(ctx, " Sales@Example.COM "); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	// Duplicate subscription is a silent no-op.
	if err := svc.Subscribe(ctx, "sales@example.com"); err != nil {
		t.Fatalf("Subscribe (duplicate): %v", err)
	}
	if err := svc.Subscribe(ctx, "not-an-email"); !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	recipients, err := svc.Recipients(ctx)
	if err != nil {
		t.Fatalf("Recipients: %v", err)
	}
	if len(recipients) != 1 || recipients[0] != "sales@example.com" {
		t.Errorf("unexpected recipients: %v", recipients)
	}

	if err := svc.Unsubscribe(ctx, "sales@example.com"); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if err := svc.Unsubscribe(ctx, "sales@example.com"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
