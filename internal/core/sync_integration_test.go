package core_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DieForGlory/portal-analytics-sub000/internal/core"
)

// sourceFixtureSchema mimics the upstream CRM tables the replication engine
// reads from, so the whole cycle can run against a single test database.
const sourceFixtureSchema = `
CREATE TABLE IF NOT EXISTS estate_houses (
    id BIGINT PRIMARY KEY, complex_name TEXT, name TEXT, geo_house TEXT
);
CREATE TABLE IF NOT EXISTS estate_sells (
    id BIGINT PRIMARY KEY, house_id BIGINT, estate_sell_category TEXT,
    estate_floor BIGINT, estate_rooms BIGINT, estate_price_m2 NUMERIC,
    estate_sell_status_name TEXT, estate_price NUMERIC, estate_area NUMERIC
);
CREATE TABLE IF NOT EXISTS estate_buys (
    id BIGINT PRIMARY KEY, date_added TIMESTAMPTZ, status_name TEXT, custom_status_name TEXT
);
CREATE TABLE IF NOT EXISTS estate_buys_statuses_log (
    id BIGINT PRIMARY KEY, estate_buy_id BIGINT, log_date TIMESTAMPTZ,
    status_to_name TEXT, status_custom_to_name TEXT, users_id BIGINT
);
CREATE TABLE IF NOT EXISTS estate_deals (
    id BIGINT PRIMARY KEY, estate_sell_id BIGINT, deal_status_name TEXT, deal_manager_id BIGINT,
    agreement_date TIMESTAMPTZ, preliminary_date TIMESTAMPTZ, deal_sum NUMERIC, date_modified TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS finances (
    id BIGINT PRIMARY KEY, estate_sell_id BIGINT, summa NUMERIC, status_name TEXT,
    types_name TEXT, date_added TIMESTAMPTZ, date_to TIMESTAMPTZ, respons_manager_id BIGINT
);
CREATE TABLE IF NOT EXISTS users (
    id BIGINT PRIMARY KEY, users_name TEXT, post_title TEXT
);
`

func setupSyncFixtures(t *testing.T, pool *pgxpool.Pool) {
	ctx := context.Background()
	if _, err := pool.Exec(ctx, sourceFixtureSchema); err != nil {
		t.Fatalf("Failed to create source fixtures: %v", err)
	}
	_, err := pool.Exec(ctx, `
		TRUNCATE TABLE estate_houses, estate_sells, estate_buys, estate_buys_statuses_log,
		               estate_deals, finances, users,
		               houses, units, leads, lead_status_events, deals, finance_operations,
		               managers, sync_log CASCADE;

		INSERT INTO estate_houses (id, complex_name, name, geo_house) VALUES
		  (1, 'Манхэттен', 'Дом 1', NULL),
		  (2, 'Манхэттен', 'Дом 2', '41.31,69.28'),
		  (3, NULL, 'Без ЖК', NULL);

		INSERT INTO estate_sells (id, house_id, estate_sell_category, estate_floor, estate_rooms,
		                          estate_price_m2, estate_sell_status_name, estate_price, estate_area) VALUES
		  (10, 1, 'flat', 3, 2, 15000000, 'Маркетинговый резерв', 650000000, 43.3),
		  (11, 1, 'comm', 1, NULL, 18000000, 'Подбор', 900000000, 50.0),
		  (12, 1, 'penthouse', 9, 4, 22000000, 'Подбор', 1800000000, 110.0);

		INSERT INTO users (id, users_name, post_title) VALUES
		  (100, 'Иванов Иван', 'МПП'),
		  (101, ' Иванов Иван ', 'РОП'),
		  (102, 'Петрова Анна', 'МПП');
	`)
	if err != nil {
		t.Fatalf("Failed to seed source fixtures: %v", err)
	}
}

func TestIncrementalSync(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	setupSyncFixtures(t, pool)

	svc := core.NewSyncService(pool, pool)

	outcomes, err := svc.IncrementalSync(ctx)
	if err != nil {
		t.Fatalf("IncrementalSync: %v", err)
	}

	byTable := make(map[string]core.TableOutcome)
	for _, o := range outcomes {
		byTable[o.Table] = o
	}

	// House with NULL complex_name is filtered out upstream.
	if o := byTable["houses"]; o.Added != 2 {
		t.Errorf("houses: expected 2 added, got %+v", o)
	}
	if o := byTable["units"]; o.Added != 3 {
		t.Errorf("units: expected 3 added, got %+v", o)
	}
	// Duplicate trimmed manager names collapse to one row per name.
	if o := byTable["managers"]; o.Added != 2 {
		t.Errorf("managers: expected 2 added, got %+v", o)
	}

	// Category codes are translated to display values on the way in.
	var category string
	if err := pool.QueryRow(ctx, "SELECT category FROM units WHERE id = 10").Scan(&category); err != nil {
		t.Fatalf("read mirrored unit: %v", err)
	}
	if category != string(core.PropertyFlat) {
		t.Errorf("expected category %q in mirror, got %q", core.PropertyFlat, category)
	}
	// Unknown codes pass through untouched.
	if err := pool.QueryRow(ctx, "SELECT category FROM units WHERE id = 12").Scan(&category); err != nil {
		t.Fatalf("read mirrored unit: %v", err)
	}
	if category != "penthouse" {
		t.Errorf("expected unmapped category to pass through, got %q", category)
	}

	t.Run("UnchangedRowsAreSkipped", func(t *testing.T) {
		outcomes, err := svc.IncrementalSync(ctx)
		if err != nil {
			t.Fatalf("second IncrementalSync: %v", err)
		}
		for _, o := range outcomes {
			if o.Added != 0 || o.Updated != 0 || o.Deleted != 0 {
				t.Errorf("%s: expected no-op on unchanged data, got %+v", o.Table, o)
			}
		}
	})

	t.Run("ChangedRowIsUpdated", func(t *testing.T) {
		if _, err := pool.Exec(ctx,
			"UPDATE estate_sells SET estate_price = 700000000 WHERE id = 10"); err != nil {
			t.Fatalf("mutate source: %v", err)
		}
		outcomes, err := svc.IncrementalSync(ctx)
		if err != nil {
			t.Fatalf("IncrementalSync after update: %v", err)
		}
		for _, o := range outcomes {
			if o.Table == "units" && o.Updated != 1 {
				t.Errorf("units: expected 1 updated, got %+v", o)
			}
		}
		var price string
		if err := pool.QueryRow(ctx, "SELECT price::text FROM units WHERE id = 10").Scan(&price); err != nil {
			t.Fatalf("read updated unit: %v", err)
		}
		if price != "700000000" {
			t.Errorf("expected mirrored price 700000000, got %s", price)
		}
	})

	t.Run("VanishedRowIsDeleted", func(t *testing.T) {
		if _, err := pool.Exec(ctx, "DELETE FROM estate_sells WHERE id = 11"); err != nil {
			t.Fatalf("delete source row: %v", err)
		}
		outcomes, err := svc.IncrementalSync(ctx)
		if err != nil {
			t.Fatalf("IncrementalSync after delete: %v", err)
		}
		for _, o := range outcomes {
			if o.Table == "units" && o.Deleted != 1 {
				t.Errorf("units: expected 1 deleted, got %+v", o)
			}
		}
	})

	t.Run("RunsAreLogged", func(t *testing.T) {
		runs, err := svc.RecentRuns(ctx, 10)
		if err != nil {
			t.Fatalf("RecentRuns: %v", err)
		}
		if len(runs) == 0 {
			t.Fatal("expected sync_log entries after syncing")
		}
	})
}

func TestFullRefresh(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	setupSyncFixtures(t, pool)

	// A stale mirror row absent upstream must not survive a full refresh.
	if _, err := pool.Exec(ctx, `
		INSERT INTO houses (id, complex_name, name, geo, data_hash)
		VALUES (999, 'Призрак', 'Дом X', NULL, 'stale')`); err != nil {
		t.Fatalf("seed stale mirror row: %v", err)
	}

	svc := core.NewSyncService(pool, pool)
	if _, err := svc.FullRefresh(ctx); err != nil {
		t.Fatalf("FullRefresh: %v", err)
	}

	var count int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM houses WHERE id = 999").Scan(&count); err != nil {
		t.Fatalf("count stale rows: %v", err)
	}
	if count != 0 {
		t.Errorf("stale row survived full refresh")
	}
}
