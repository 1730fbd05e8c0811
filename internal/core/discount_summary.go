package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ProjectDiscountSummary is the per-project card for the discount overview:
// headline discount sums for flats, time to cadastre, an averaged remainder
// price in USD per m², and the special-condition tags present in the matrix.
type ProjectDiscountSummary struct {
	Sum100Payment    decimal.Decimal `json:"sum_100_payment"`
	SumMortgage      decimal.Decimal `json:"sum_mortgage"`
	MonthsToCadastre *int            `json:"months_to_cadastre"`
	AvgRemainderM2   decimal.Decimal `json:"avg_remainder_price_sqm"`
	AvailableTags    []string        `json:"available_tags"`
	MaxAction        decimal.Decimal `json:"max_action_discount"`
	Note             *string         `json:"complex_comment"`

	Details map[PropertyType][]DiscountRow `json:"details"`
}

// fallbackUSDRate is used when the stored effective rate is unusable.
var fallbackUSDRate = decimal.NewFromInt(13000)

var tagFields = map[string]string{
	"kd":          "КД",
	"opt":         "ОПТ",
	"gd":          "ГД",
	"holding":     "Холдинг",
	"shareholder": "Акционер",
}

// avgDaysPerMonth is the mean Gregorian month length, used to express the
// distance to a cadastre date in whole months.
const avgDaysPerMonth = 30.44

func (s *discountService) ActiveSummary(ctx context.Context) (map[string]ProjectDiscountSummary, error) {
	active, err := s.ActiveVersion(ctx)
	if err != nil {
		return nil, err
	}

	allRows, err := s.Rows(ctx, active.ID)
	if err != nil {
		return nil, err
	}
	if len(allRows) == 0 {
		return map[string]ProjectDiscountSummary{}, nil
	}

	notes, err := s.Notes(ctx, active.ID)
	if err != nil {
		return nil, err
	}
	noteByProject := make(map[string]*string, len(notes))
	for _, n := range notes {
		noteByProject[n.Project] = n.Note
	}

	usdRate := fallbackUSDRate
	if settings, err := s.currency.Settings(ctx); err == nil && settings.EffectiveRate.IsPositive() {
		usdRate = settings.EffectiveRate
	}

	excluded, err := s.excludedProjects(ctx)
	if err != nil {
		return nil, err
	}

	rowsByProject := make(map[string][]DiscountRow)
	for _, r := range allRows {
		if excluded[r.Project] {
			continue
		}
		rowsByProject[r.Project] = append(rowsByProject[r.Project], r)
	}

	remainderByProject, err := s.remainderPricesPerM2(ctx, rowsByProject)
	if err != nil {
		return nil, err
	}

	out := make(map[string]ProjectDiscountSummary, len(rowsByProject))
	today := time.Now().Truncate(24 * time.Hour)
	for project, rows := range rowsByProject {
		card := ProjectDiscountSummary{
			Note:    noteByProject[project],
			Details: make(map[PropertyType][]DiscountRow, len(PropertyTypes)),
		}
		for _, pt := range PropertyTypes {
			card.Details[pt] = nil
		}

		var tags []string
		for _, r := range rows {
			card.Details[r.PropertyType] = append(card.Details[r.PropertyType], r)

			if r.PropertyType == PropertyFlat {
				switch r.PaymentMethod {
				case FullPayment:
					card.Sum100Payment = r.MPP.Add(r.ROP)
					if r.CadastreDate != nil && r.CadastreDate.After(today) {
						months := int(r.CadastreDate.Sub(today).Hours() / 24 / avgDaysPerMonth)
						card.MonthsToCadastre = &months
					}
				case Mortgage:
					card.SumMortgage = r.MPP.Add(r.ROP)
				}
			}

			if r.Action.GreaterThan(card.MaxAction) {
				card.MaxAction = r.Action
			}
			for field, tag := range tagFields {
				if r.Coefficient(field).IsPositive() && !contains(tags, tag) {
					tags = append(tags, tag)
				}
			}
		}
		sort.Strings(tags)
		card.AvailableTags = tags

		if prices := remainderByProject[project]; len(prices) > 0 {
			sum := decimal.Zero
			for _, p := range prices {
				sum = sum.Add(p)
			}
			card.AvgRemainderM2 = sum.Div(decimal.NewFromInt(int64(len(prices)))).Div(usdRate)
		}

		out[project] = card
	}
	return out, nil
}

// excludedProjects reads the registry of projects hidden from aggregates.
func (s *discountService) excludedProjects(ctx context.Context) (map[string]bool, error) {
	rows, err := s.mirror.Query(ctx, "SELECT project_name FROM excluded_projects")
	if err != nil {
		return nil, fmt.Errorf("failed to query excluded projects: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan excluded project: %w", err)
		}
		out[name] = true
	}
	return out, rows.Err()
}

// remainderPricesPerM2 computes, per project, the discounted price per m² of
// every saleable flat: (price − reservation fee) × (1 − mpp − rop − kd −
// action of the flat/full-payment row), divided by area. Amounts stay in UZS.
func (s *discountService) remainderPricesPerM2(ctx context.Context, rowsByProject map[string][]DiscountRow) (map[string][]decimal.Decimal, error) {
	totalRate := make(map[string]decimal.Decimal, len(rowsByProject))
	for project, rows := range rowsByProject {
		for _, r := range rows {
			if r.PropertyType == PropertyFlat && r.PaymentMethod == FullPayment {
				totalRate[project] = r.MPP.Add(r.ROP).Add(r.KD).Add(r.Action)
				break
			}
		}
	}

	dbRows, err := s.mirror.Query(ctx, `
		SELECT h.complex_name, u.price, u.area
		FROM units u
		JOIN houses h ON h.id = u.house_id
		WHERE u.status = ANY($1) AND u.category = $2
		  AND u.price IS NOT NULL AND u.area IS NOT NULL AND u.area > 0
	`, ActiveUnitStatuses, string(PropertyFlat))
	if err != nil {
		return nil, fmt.Errorf("failed to query saleable flats: %w", err)
	}
	defer dbRows.Close()

	out := make(map[string][]decimal.Decimal)
	one := decimal.NewFromInt(1)
	for dbRows.Next() {
		var project string
		var price, area decimal.Decimal
		if err := dbRows.Scan(&project, &price, &area); err != nil {
			return nil, fmt.Errorf("failed to scan saleable flat: %w", err)
		}
		if _, ok := rowsByProject[project]; !ok {
			continue
		}
		afterFee := price.Sub(ReservationFee)
		if !afterFee.IsPositive() {
			continue
		}
		final := afterFee.Mul(one.Sub(totalRate[project]))
		out[project] = append(out[project], final.Div(area))
	}
	return out, dbRows.Err()
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
