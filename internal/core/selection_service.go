package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// fallbackSearchRate keeps the budget search usable when the currency
// singleton is unreadable.
var fallbackSearchRate = decimal.NewFromInt(12650)

// BudgetSearchRequest filters the saleable inventory by an available budget.
// Budget is interpreted in Currency ("UZS" or "USD"). PaymentMethod narrows
// the search to one method when set.
type BudgetSearchRequest struct {
	Budget        decimal.Decimal
	Currency      string
	PropertyType  string
	Floor         *int
	Rooms         *int
	PaymentMethod string
}

// BudgetMatch is one affordable unit under a specific payment method.
type BudgetMatch struct {
	UnitID         int64            `json:"id"`
	Floor          *int             `json:"floor"`
	Area           *decimal.Decimal `json:"area"`
	BasePrice      decimal.Decimal  `json:"base_price"`
	FinalPrice     decimal.Decimal  `json:"final_price"`
	InitialPayment *decimal.Decimal `json:"initial_payment,omitempty"`
	// MortgageType names the first variant that fit; when both fit,
	// InitialPaymentExtended carries the second.
	MortgageType           string           `json:"mortgage_type,omitempty"`
	InitialPaymentExtended *decimal.Decimal `json:"initial_payment_extended,omitempty"`
}

// MethodMatches groups matches of one payment method by room count.
type MethodMatches struct {
	Total   int                      `json:"total"`
	ByRooms map[string][]BudgetMatch `json:"by_rooms"`
}

// ProjectMatches aggregates the matches of one project.
type ProjectMatches struct {
	TotalMatches    int                       `json:"total_matches"`
	ByPaymentMethod map[string]*MethodMatches `json:"by_payment_method"`
}

// SelectionService answers "what can the buyer afford" over the replicated
// inventory and the active discount version.
type SelectionService interface {
	FindByBudget(ctx context.Context, req BudgetSearchRequest) (map[string]*ProjectMatches, error)
}

type selectionService struct {
	mirror    *pgxpool.Pool
	discount  DiscountService
	currency  CurrencyService
	exclusion ExclusionService
}

func NewSelectionService(mirror *pgxpool.Pool, discount DiscountService, currency CurrencyService, exclusion ExclusionService) SelectionService {
	return &selectionService{mirror: mirror, discount: discount, currency: currency, exclusion: exclusion}
}

func (s *selectionService) FindByBudget(ctx context.Context, req BudgetSearchRequest) (map[string]*ProjectMatches, error) {
	if !req.Budget.IsPositive() {
		return nil, fmt.Errorf("%w: budget must be positive", ErrInvalidInput)
	}
	propertyType, err := ParsePropertyType(req.PropertyType)
	if err != nil {
		return nil, err
	}

	budgetUZS := req.Budget
	if strings.EqualFold(req.Currency, "USD") {
		rate := fallbackSearchRate
		if settings, err := s.currency.Settings(ctx); err == nil && settings.EffectiveRate.IsPositive() {
			rate = settings.EffectiveRate
		}
		budgetUZS = req.Budget.Mul(rate)
	}

	active, err := s.discount.ActiveVersion(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: no active discount version", ErrMissingReference)
		}
		return nil, err
	}

	allRows, err := s.discount.Rows(ctx, active.ID)
	if err != nil {
		return nil, err
	}
	rowByKey := make(map[string]map[PaymentMethod]DiscountRow)
	for _, r := range allRows {
		if r.PropertyType != propertyType {
			continue
		}
		if rowByKey[r.Project] == nil {
			rowByKey[r.Project] = make(map[PaymentMethod]DiscountRow)
		}
		rowByKey[r.Project][r.PaymentMethod] = r
	}

	excluded, err := s.exclusion.ExcludedUnitIDs(ctx)
	if err != nil {
		return nil, err
	}

	methods := PaymentMethods
	if req.PaymentMethod != "" {
		pm, err := ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			return nil, err
		}
		methods = []PaymentMethod{pm}
	}

	query := `
		SELECT u.id, h.complex_name, u.floor, u.rooms, u.price, u.area
		FROM units u
		JOIN houses h ON h.id = u.house_id
		WHERE u.category = $1 AND u.status = ANY($2)
		  AND u.price IS NOT NULL AND u.price > $3`
	fee := decimal.Zero
	if propertyType == PropertyFlat {
		fee = ReservationFee
	}
	args := []any{string(propertyType), ActiveUnitStatuses, fee}
	if req.Floor != nil {
		args = append(args, *req.Floor)
		query += fmt.Sprintf(" AND u.floor = $%d", len(args))
	}
	if req.Rooms != nil {
		args = append(args, *req.Rooms)
		query += fmt.Sprintf(" AND u.rooms = $%d", len(args))
	}

	dbRows, err := s.mirror.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory: %w", err)
	}
	defer dbRows.Close()

	results := make(map[string]*ProjectMatches)
	for dbRows.Next() {
		var unitID int64
		var project string
		var floor, rooms *int
		var price decimal.Decimal
		var area *decimal.Decimal
		if err := dbRows.Scan(&unitID, &project, &floor, &rooms, &price, &area); err != nil {
			return nil, fmt.Errorf("failed to scan inventory row: %w", err)
		}
		if excluded[unitID] {
			continue
		}

		for _, pm := range methods {
			match, ok := affordable(budgetUZS, price.Sub(fee), rowByKey[project][pm], pm)
			if !ok {
				continue
			}
			match.UnitID = unitID
			match.Floor = floor
			match.Area = area
			match.BasePrice = price

			pr := results[project]
			if pr == nil {
				pr = &ProjectMatches{ByPaymentMethod: make(map[string]*MethodMatches)}
				results[project] = pr
			}
			byMethod := pr.ByPaymentMethod[string(pm)]
			if byMethod == nil {
				byMethod = &MethodMatches{ByRooms: make(map[string][]BudgetMatch)}
				pr.ByPaymentMethod[string(pm)] = byMethod
			}
			roomsKey := "Студия"
			if rooms != nil && *rooms > 0 {
				roomsKey = strconv.Itoa(*rooms)
			}
			byMethod.ByRooms[roomsKey] = append(byMethod.ByRooms[roomsKey], *match)
			byMethod.Total++
			pr.TotalMatches++
		}
	}
	return results, dbRows.Err()
}

// affordable prices the unit under one payment method and checks it against
// the budget. afterDeduction already carries the booking-fee deduction for
// flats; other categories pay the full list price. A missing discount row
// means a zero-discount row.
func affordable(budgetUZS, afterDeduction decimal.Decimal, row DiscountRow, pm PaymentMethod) (*BudgetMatch, bool) {
	rate := row.MPP.Add(row.ROP).Add(row.Action)
	discounted := afterDeduction.Mul(decimal.NewFromInt(1).Sub(rate))

	switch pm {
	case FullPayment:
		if budgetUZS.GreaterThanOrEqual(discounted) {
			return &BudgetMatch{FinalPrice: discounted}, true
		}
		return nil, false

	case Mortgage:
		match := &BudgetMatch{FinalPrice: discounted}
		found := false
		for _, variant := range []MortgageVariant{MortgageStandard, MortgageExtended} {
			dp := requiredDownPayment(discounted, variant)
			if budgetUZS.LessThan(dp) {
				continue
			}
			if !found {
				match.InitialPayment = &dp
				match.MortgageType = mortgageVariantLabel(variant)
				found = true
			} else {
				match.InitialPaymentExtended = &dp
			}
		}
		return match, found
	}
	return nil, false
}

// requiredDownPayment is the larger of the amount overflowing the variant's
// body cap and the variant's minimum fraction of the discounted price.
func requiredDownPayment(discounted decimal.Decimal, variant MortgageVariant) decimal.Decimal {
	dp := discounted.Sub(variant.BodyCap())
	if min := discounted.Mul(variant.MinDPFraction()); dp.LessThan(min) {
		dp = min
	}
	return dp
}

func mortgageVariantLabel(v MortgageVariant) string {
	if v == MortgageExtended {
		return "Расширенная"
	}
	return "Стандартная"
}
