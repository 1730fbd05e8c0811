package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// RateFetcher is the central-bank oracle. Implemented by the CBU HTTP client;
// tests substitute a stub.
type RateFetcher interface {
	// Current returns today's published USD→UZS rate.
	Current(ctx context.Context) (decimal.Decimal, error)
	// OnDate returns the rate published for the given day.
	OnDate(ctx context.Context, day time.Time) (decimal.Decimal, error)
}

// CurrencyService owns the currency-settings singleton. All pricing consumers
// read EffectiveRate; setters are atomic single-row updates, so concurrent
// readers observe either the pre- or post-state, never a torn one.
type CurrencyService interface {
	Settings(ctx context.Context) (*CurrencySettings, error)
	EffectiveRate(ctx context.Context) (decimal.Decimal, error)
	SetSource(ctx context.Context, source RateSource) error
	SetManualRate(ctx context.Context, rate decimal.Decimal) error
	// RefreshCBU fetches from the oracle. On failure the stored state is left
	// untouched and ErrExternalFailure is returned.
	RefreshCBU(ctx context.Context) (decimal.Decimal, error)
	// RateOn returns the stored daily rate for the given date, falling back
	// to the effective rate when no daily rate is recorded.
	RateOn(ctx context.Context, day time.Time) (decimal.Decimal, error)
}

type currencyService struct {
	pool    *pgxpool.Pool
	fetcher RateFetcher
}

func NewCurrencyService(pool *pgxpool.Pool, fetcher RateFetcher) CurrencyService {
	return &currencyService{pool: pool, fetcher: fetcher}
}

// defaultManualRate seeds a fresh installation so pricing works before the
// first oracle refresh.
var defaultManualRate = decimal.NewFromInt(13050)

func (s *currencyService) Settings(ctx context.Context) (*CurrencySettings, error) {
	cs, err := s.load(ctx)
	if err == nil {
		return cs, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// First touch: create the singleton with the manual rate effective.
	_, err = s.pool.Exec(ctx, `
		INSERT INTO currency_settings (id, rate_source, cbu_rate, manual_rate, effective_rate)
		VALUES (1, 'manual', 0, $1, $1)
		ON CONFLICT (id) DO NOTHING
	`, defaultManualRate)
	if err != nil {
		return nil, fmt.Errorf("failed to seed currency settings: %w", err)
	}
	return s.load(ctx)
}

func (s *currencyService) load(ctx context.Context) (*CurrencySettings, error) {
	var cs CurrencySettings
	err := s.pool.QueryRow(ctx, `
		SELECT rate_source, cbu_rate, manual_rate, effective_rate, cbu_last_updated
		FROM currency_settings WHERE id = 1
	`).Scan(&cs.Source, &cs.CBURate, &cs.ManualRate, &cs.EffectiveRate, &cs.CBULastUpdated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load currency settings: %w", err)
	}
	return &cs, nil
}

func (s *currencyService) EffectiveRate(ctx context.Context) (decimal.Decimal, error) {
	cs, err := s.Settings(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return cs.EffectiveRate, nil
}

func (s *currencyService) SetSource(ctx context.Context, source RateSource) error {
	if source != RateSourceCBU && source != RateSourceManual {
		return fmt.Errorf("%w: rate source must be cbu or manual, got %q", ErrInvalidInput, source)
	}
	if _, err := s.Settings(ctx); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE currency_settings
		SET rate_source = $1,
		    effective_rate = CASE WHEN $1 = 'cbu' THEN cbu_rate ELSE manual_rate END
		WHERE id = 1
	`, string(source))
	if err != nil {
		return fmt.Errorf("failed to set rate source: %w", err)
	}
	return nil
}

func (s *currencyService) SetManualRate(ctx context.Context, rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return fmt.Errorf("%w: manual rate must be positive, got %s", ErrInvalidInput, rate)
	}
	if _, err := s.Settings(ctx); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE currency_settings
		SET manual_rate = $1,
		    effective_rate = CASE WHEN rate_source = 'manual' THEN $1 ELSE effective_rate END
		WHERE id = 1
	`, rate)
	if err != nil {
		return fmt.Errorf("failed to set manual rate: %w", err)
	}
	return nil
}

func (s *currencyService) RefreshCBU(ctx context.Context) (decimal.Decimal, error) {
	if _, err := s.Settings(ctx); err != nil {
		return decimal.Zero, err
	}

	rate, err := s.fetcher.Current(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: cbu fetch: %v", ErrExternalFailure, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: cbu returned non-positive rate %s", ErrExternalFailure, rate)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE currency_settings
		SET cbu_rate = $1,
		    cbu_last_updated = NOW(),
		    effective_rate = CASE WHEN rate_source = 'cbu' THEN $1 ELSE effective_rate END
		WHERE id = 1
	`, rate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to store cbu rate: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO currency_daily_rates (rate_date, rate)
		VALUES (CURRENT_DATE, $1)
		ON CONFLICT (rate_date) DO UPDATE SET rate = EXCLUDED.rate
	`, rate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to store daily rate: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("failed to commit rate refresh: %w", err)
	}
	return rate, nil
}

func (s *currencyService) RateOn(ctx context.Context, day time.Time) (decimal.Decimal, error) {
	var rate decimal.Decimal
	err := s.pool.QueryRow(ctx,
		"SELECT rate FROM currency_daily_rates WHERE rate_date = $1", day.Format("2006-01-02"),
	).Scan(&rate)
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("failed to load daily rate: %w", err)
	}

	// No stored rate for that day: try the historical oracle, then fall back
	// to the effective rate.
	if s.fetcher != nil {
		if fetched, ferr := s.fetcher.OnDate(ctx, day); ferr == nil && fetched.IsPositive() {
			_, _ = s.pool.Exec(ctx, `
				INSERT INTO currency_daily_rates (rate_date, rate)
				VALUES ($1, $2)
				ON CONFLICT (rate_date) DO NOTHING
			`, day.Format("2006-01-02"), fetched)
			return fetched, nil
		}
	}
	return s.EffectiveRate(ctx)
}
