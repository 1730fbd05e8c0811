package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// SettingsService owns the calculator-settings singleton (row id = 1 in the
// planning store). Update has replace semantics: the whole row is rewritten.
type SettingsService interface {
	Get(ctx context.Context) (*CalculatorSettings, error)
	Update(ctx context.Context, s CalculatorSettings) error
}

type settingsService struct {
	pool *pgxpool.Pool
}

func NewSettingsService(pool *pgxpool.Pool) SettingsService {
	return &settingsService{pool: pool}
}

func (s *settingsService) Get(ctx context.Context) (*CalculatorSettings, error) {
	cs, err := s.load(ctx)
	if err == nil {
		return cs, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO calculator_settings
			(id, standard_installment_whitelist, dp_installment_whitelist, zero_mortgage_whitelist,
			 dp_installment_max_term, time_value_rate_annual, standard_installment_min_dp_percent)
		VALUES (1, '', '', '', 6, 16.5, 15.0)
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to seed calculator settings: %w", err)
	}
	return s.load(ctx)
}

func (s *settingsService) load(ctx context.Context) (*CalculatorSettings, error) {
	var cs CalculatorSettings
	err := s.pool.QueryRow(ctx, `
		SELECT standard_installment_whitelist, dp_installment_whitelist, zero_mortgage_whitelist,
		       dp_installment_max_term, time_value_rate_annual, standard_installment_min_dp_percent
		FROM calculator_settings WHERE id = 1
	`).Scan(
		&cs.StandardInstallmentWhitelist, &cs.DPInstallmentWhitelist, &cs.ZeroMortgageWhitelist,
		&cs.DPInstallmentMaxTerm, &cs.TimeValueRateAnnual, &cs.MinStandardInstallmentDPPct,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load calculator settings: %w", err)
	}
	return &cs, nil
}

func (s *settingsService) Update(ctx context.Context, cs CalculatorSettings) error {
	if cs.DPInstallmentMaxTerm < 1 || cs.DPInstallmentMaxTerm > 36 {
		return fmt.Errorf("%w: dp installment max term must be in [1,36], got %d", ErrInvalidInput, cs.DPInstallmentMaxTerm)
	}
	if cs.TimeValueRateAnnual.IsNegative() {
		return fmt.Errorf("%w: time value rate must be >= 0, got %s", ErrInvalidInput, cs.TimeValueRateAnnual)
	}
	if cs.MinStandardInstallmentDPPct.IsNegative() || cs.MinStandardInstallmentDPPct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: min dp percent must be in [0,100], got %s", ErrInvalidInput, cs.MinStandardInstallmentDPPct)
	}
	for _, wl := range []string{cs.StandardInstallmentWhitelist, cs.DPInstallmentWhitelist, cs.ZeroMortgageWhitelist} {
		if _, err := ParseWhitelist(wl); err != nil {
			return err
		}
	}

	if _, err := s.Get(ctx); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE calculator_settings SET
			standard_installment_whitelist = $1,
			dp_installment_whitelist = $2,
			zero_mortgage_whitelist = $3,
			dp_installment_max_term = $4,
			time_value_rate_annual = $5,
			standard_installment_min_dp_percent = $6
		WHERE id = 1
	`, cs.StandardInstallmentWhitelist, cs.DPInstallmentWhitelist, cs.ZeroMortgageWhitelist,
		cs.DPInstallmentMaxTerm, cs.TimeValueRateAnnual, cs.MinStandardInstallmentDPPct)
	if err != nil {
		return fmt.Errorf("failed to update calculator settings: %w", err)
	}
	return nil
}

// ParseWhitelist parses the canonical comma-separated unit-id form into a
// lookup set. Blank segments are skipped; anything non-numeric is rejected.
func ParseWhitelist(raw string) (map[int64]bool, error) {
	set := make(map[int64]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: whitelist entry %q is not a unit id", ErrInvalidInput, part)
		}
		set[id] = true
	}
	return set, nil
}
