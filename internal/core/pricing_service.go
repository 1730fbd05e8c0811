package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// OfferDiscount is one named discount line shown on an offer option.
type OfferDiscount struct {
	Name  string          `json:"name"`
	Value decimal.Decimal `json:"value"`
}

// OfferOption is one purchase scenario for a unit: the price waterfall from
// the list price down to the contract price, with the mortgage split when the
// scenario involves one.
type OfferOption struct {
	PaymentMethod       string           `json:"payment_method"`
	TypeKey             string           `json:"type_key"`
	BasePrice           decimal.Decimal  `json:"base_price"`
	Deduction           decimal.Decimal  `json:"deduction"`
	PriceAfterDeduction decimal.Decimal  `json:"price_after_deduction"`
	FinalPrice          decimal.Decimal  `json:"final_price"`
	InitialPayment      *decimal.Decimal `json:"initial_payment"`
	MortgageBody        *decimal.Decimal `json:"mortgage_body"`
	Discounts           []OfferDiscount  `json:"discounts"`
}

// UnitOffer is the full offer card for one unit: identity, the applicable
// discount rows of the active version, and every priced scenario.
type UnitOffer struct {
	Unit         Unit          `json:"apartment"`
	House        House         `json:"house"`
	PropertyType string        `json:"property_type"`
	Options      []OfferOption `json:"pricing"`
	DiscountRows []DiscountRow `json:"all_discounts_for_property_type"`
}

// PricingService builds offer cards against the active discount version.
type PricingService interface {
	BuildUnitOffer(ctx context.Context, unitID int64) (*UnitOffer, error)
}

type pricingService struct {
	mirror   *pgxpool.Pool
	discount DiscountService
}

func NewPricingService(mirror *pgxpool.Pool, discount DiscountService) PricingService {
	return &pricingService{mirror: mirror, discount: discount}
}

func (s *pricingService) BuildUnitOffer(ctx context.Context, unitID int64) (*UnitOffer, error) {
	var u Unit
	var h House
	err := s.mirror.QueryRow(ctx, `
		SELECT u.id, u.house_id, u.category, u.floor, u.rooms, u.price_m2, u.status, u.price, u.area,
		       h.id, h.complex_name, h.name, h.geo
		FROM units u
		JOIN houses h ON h.id = u.house_id
		WHERE u.id = $1
	`, unitID).Scan(
		&u.ID, &u.HouseID, &u.Category, &u.Floor, &u.Rooms, &u.PriceM2, &u.Status, &u.Price, &u.Area,
		&h.ID, &h.Project, &h.Name, &h.Geo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: unit %d", ErrNotFound, unitID)
		}
		return nil, fmt.Errorf("failed to load unit %d: %w", unitID, err)
	}

	offer := &UnitOffer{Unit: u, House: h, PropertyType: u.Category}

	active, err := s.discount.ActiveVersion(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: no active discount version", ErrMissingReference)
		}
		return nil, err
	}

	propertyType, err := ParsePropertyType(offer.PropertyType)
	if err != nil {
		// Category outside the discount matrix: card without priced options.
		return offer, nil
	}

	allRows, err := s.discount.Rows(ctx, active.ID)
	if err != nil {
		return nil, err
	}
	byMethod := make(map[PaymentMethod]DiscountRow)
	for _, r := range allRows {
		if r.Project == h.Project && r.PropertyType == propertyType {
			offer.DiscountRows = append(offer.DiscountRows, r)
			byMethod[r.PaymentMethod] = r
		}
	}

	if u.Price == nil {
		return offer, nil
	}
	offer.Options = buildOfferOptions(*u.Price, propertyType, byMethod)
	return offer, nil
}

// buildOfferOptions prices every scenario from the list price. Flats get the
// promotional "Легкий старт" variants in addition to the regular ones, and
// only flats carry the reservation-fee deduction.
func buildOfferOptions(basePrice decimal.Decimal, propertyType PropertyType, byMethod map[PaymentMethod]DiscountRow) []OfferOption {
	afterDeduction := basePrice
	if propertyType == PropertyFlat {
		afterDeduction = basePrice.Sub(ReservationFee)
	}
	var options []OfferOption

	if propertyType == PropertyFlat {
		if row, ok := byMethod[FullPayment]; ok {
			options = append(options, fullPaymentOption(
				"Легкий старт (100% оплата)", "easy_start_100", basePrice, afterDeduction, row))
		}
		if row, ok := byMethod[Mortgage]; ok && row.MPP.Add(row.ROP).IsPositive() {
			options = append(options,
				mortgageOption("Легкий старт (стандартная ипотека)", "easy_start_mortgage_standard",
					basePrice, afterDeduction, row, MortgageStandard),
				mortgageOption("Легкий старт (расширенная ипотека)", "easy_start_mortgage_extended",
					basePrice, afterDeduction, row, MortgageExtended))
		}
	}

	fullRow := byMethod[FullPayment]
	options = append(options, fullPaymentOption(
		string(FullPayment), "full_payment", basePrice, afterDeduction, fullRow))

	if row, ok := byMethod[Mortgage]; ok && row.MPP.Add(row.ROP).IsPositive() {
		options = append(options,
			mortgageOption("Ипотека (стандарт)", "mortgage_standard", basePrice, afterDeduction, row, MortgageStandard),
			mortgageOption("Ипотека (расширенная)", "mortgage_extended", basePrice, afterDeduction, row, MortgageExtended))
	}
	return options
}

func fullPaymentOption(label, typeKey string, basePrice, afterDeduction decimal.Decimal, row DiscountRow) OfferOption {
	rate := row.MPP.Add(row.ROP)
	return OfferOption{
		PaymentMethod:       label,
		TypeKey:             typeKey,
		BasePrice:           basePrice,
		Deduction:           basePrice.Sub(afterDeduction),
		PriceAfterDeduction: afterDeduction,
		FinalPrice:          afterDeduction.Mul(decimal.NewFromInt(1).Sub(rate)),
		Discounts:           headDiscounts(row),
	}
}

// mortgageOption splits the discounted price into a down payment and the
// mortgage body capped by the variant. The down payment is never below the
// variant's minimum fraction of the discounted price.
func mortgageOption(label, typeKey string, basePrice, afterDeduction decimal.Decimal, row DiscountRow, variant MortgageVariant) OfferOption {
	rate := row.MPP.Add(row.ROP)
	discounted := afterDeduction.Mul(decimal.NewFromInt(1).Sub(rate))

	body := variant.BodyCap()
	dp := discounted.Sub(body)
	if dp.IsNegative() {
		dp = decimal.Zero
	}
	if min := discounted.Mul(variant.MinDPFraction()); dp.LessThan(min) {
		dp = min
	}
	finalPrice := dp.Add(body)

	return OfferOption{
		PaymentMethod:       label,
		TypeKey:             typeKey,
		BasePrice:           basePrice,
		Deduction:           basePrice.Sub(afterDeduction),
		PriceAfterDeduction: afterDeduction,
		FinalPrice:          finalPrice,
		InitialPayment:      &dp,
		MortgageBody:        &body,
		Discounts:           headDiscounts(row),
	}
}

func headDiscounts(row DiscountRow) []OfferDiscount {
	return []OfferDiscount{
		{Name: "МПП", Value: row.MPP},
		{Name: "РОП", Value: row.ROP},
	}
}
