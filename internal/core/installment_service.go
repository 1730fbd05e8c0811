package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// DPKind says how a down-payment amount is denominated.
type DPKind string

const (
	DPUzs     DPKind = "uzs"
	DPUsd     DPKind = "usd"
	DPPercent DPKind = "percent"
)

// fallbackDPRate backs the DP-installment calculator when the effective rate
// is unreadable.
var fallbackDPRate = decimal.NewFromInt(13050)

// StandardInstallmentRequest asks for a developer installment over the full
// discounted price. AdditionalDiscounts are fractions keyed by coefficient
// name, each capped by the unit's full-payment discount row.
type StandardInstallmentRequest struct {
	UnitID              int64
	TermMonths          int
	DPAmount            decimal.Decimal
	DPKind              DPKind
	AdditionalDiscounts map[string]decimal.Decimal
	StartDate           *time.Time
}

// InstallmentPlan is the contract-ready result of a standard installment.
// Discount is the floored whole-percent discount actually written into the
// contract.
type InstallmentPlan struct {
	ListPrice      decimal.Decimal `json:"price_list"`
	InitialPayment decimal.Decimal `json:"initial_payment_uzs"`
	Discount       decimal.Decimal `json:"calculated_discount"`
	ContractValue  decimal.Decimal `json:"calculated_contract_value"`
	MonthlyPayment decimal.Decimal `json:"monthly_payment"`
	TermMonths     int             `json:"term_months"`
	Schedule       []PaymentEntry  `json:"payment_schedule"`
}

// DPInstallmentRequest asks for an installment over the mortgage down payment
// only; the mortgage body is paid by the bank at the end.
type DPInstallmentRequest struct {
	UnitID              int64
	TermMonths          int
	DPAmount            decimal.Decimal
	DPKind              DPKind
	AdditionalDiscounts map[string]decimal.Decimal
	StartDate           *time.Time
	Variant             MortgageVariant
}

type DPInstallmentPlan struct {
	TermMonths       int             `json:"term_months"`
	MonthlyDPPayment decimal.Decimal `json:"monthly_payment_for_dp"`
	MortgageBody     decimal.Decimal `json:"mortgage_body"`
	ContractValue    decimal.Decimal `json:"calculated_contract_value"`
	Discount         decimal.Decimal `json:"calculated_discount"`
	Schedule         []PaymentEntry  `json:"payment_schedule"`
}

// ZeroMortgageRequest asks for the zero-rate mortgage product: the bank's
// interest is prepaid through a contract-value markup taken from the cashback
// matrix.
type ZeroMortgageRequest struct {
	UnitID              int64
	TermMonths          int
	DPPercent           int
	AdditionalDiscounts map[string]decimal.Decimal
	Variant             MortgageVariant
}

type ZeroMortgagePlan struct {
	ListPrice      decimal.Decimal `json:"price_list"`
	ContractValue  decimal.Decimal `json:"contract_value"`
	InitialPayment decimal.Decimal `json:"initial_payment"`
	MonthlyPayment decimal.Decimal `json:"monthly_payment"`
	TermMonths     int             `json:"term_months"`
	DPPercent      int             `json:"dp_percent"`
	Schedule       []PaymentEntry  `json:"payment_schedule"`
}

// InstallmentService prices the three whitelist-gated installment products.
type InstallmentService interface {
	StandardInstallment(ctx context.Context, req StandardInstallmentRequest) (*InstallmentPlan, error)
	DPInstallment(ctx context.Context, req DPInstallmentRequest) (*DPInstallmentPlan, error)
	ZeroMortgage(ctx context.Context, req ZeroMortgageRequest) (*ZeroMortgagePlan, error)
}

type installmentService struct {
	planning *pgxpool.Pool
	settings SettingsService
	currency CurrencyService
	pricing  PricingService
}

func NewInstallmentService(planning *pgxpool.Pool, settings SettingsService, currency CurrencyService, pricing PricingService) InstallmentService {
	return &installmentService{planning: planning, settings: settings, currency: currency, pricing: pricing}
}

func (s *installmentService) StandardInstallment(ctx context.Context, req StandardInstallmentRequest) (*InstallmentPlan, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkWhitelist(settings.StandardInstallmentWhitelist, req.UnitID); err != nil {
		return nil, err
	}
	if req.TermMonths <= 0 {
		return nil, fmt.Errorf("%w: installment term must be positive", ErrInvalidInput)
	}

	offer, fullRow, err := s.offerWithRow(ctx, req.UnitID, FullPayment)
	if err != nil {
		return nil, err
	}

	if fullRow.CadastreDate != nil {
		if limit := monthsBetween(today(), *fullRow.CadastreDate); req.TermMonths > limit {
			return nil, fmt.Errorf("%w: term exceeds %d months remaining to cadastre", ErrPolicyViolation, limit)
		}
	} else {
		return nil, fmt.Errorf("%w: cadastre date is not set for this unit", ErrInvalidInput)
	}

	priceForCalc, err := basePriceForCalc(offer)
	if err != nil {
		return nil, err
	}

	dpUZS, err := s.resolveDP(ctx, req.DPAmount, req.DPKind, priceForCalc)
	if err != nil {
		return nil, err
	}
	minDP := priceForCalc.Mul(settings.MinStandardInstallmentDPPct).Div(decimal.NewFromInt(100))
	if dpUZS.LessThan(minDP) {
		return nil, fmt.Errorf("%w: down payment below the minimum of %s%% (%s UZS)",
			ErrPolicyViolation, settings.MinStandardInstallmentDPPct.String(), minDP.StringFixed(0))
	}

	totalRate, err := sumAdditionalDiscounts(req.AdditionalDiscounts, *fullRow)
	if err != nil {
		return nil, err
	}

	one := decimal.NewFromInt(1)
	discounted := priceForCalc.Mul(one.Sub(totalRate))
	remaining := discounted.Sub(dpUZS)
	if !remaining.IsPositive() {
		return nil, fmt.Errorf("%w: down payment covers the discounted price", ErrInvalidInput)
	}

	monthlyRate := settings.TimeValueRateAnnual.Div(decimal.NewFromInt(1200))
	theoreticalMonthly := Pmt(monthlyRate, remaining, req.TermMonths)
	theoreticalContract := theoreticalMonthly.Mul(decimal.NewFromInt(int64(req.TermMonths))).Add(dpUZS)
	discountPct := floorPercent(one.Sub(theoreticalContract.Div(priceForCalc)).Mul(decimal.NewFromInt(100)))

	contract := priceForCalc.Mul(one.Sub(discountPct.Div(decimal.NewFromInt(100))))
	monthly := contract.Sub(dpUZS).Div(decimal.NewFromInt(int64(req.TermMonths)))

	start := today()
	if req.StartDate != nil {
		start = *req.StartDate
	}
	schedule := append([]PaymentEntry{{MonthNumber: 0, Date: start, Amount: dpUZS, Type: PaymentInitial}},
		monthlySchedule(start, req.TermMonths, monthly, PaymentMonthly)...)

	return &InstallmentPlan{
		ListPrice:      *offer.Unit.Price,
		InitialPayment: dpUZS,
		Discount:       discountPct,
		ContractValue:  contract,
		MonthlyPayment: monthly,
		TermMonths:     req.TermMonths,
		Schedule:       schedule,
	}, nil
}

func (s *installmentService) DPInstallment(ctx context.Context, req DPInstallmentRequest) (*DPInstallmentPlan, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkWhitelist(settings.DPInstallmentWhitelist, req.UnitID); err != nil {
		return nil, err
	}
	if req.TermMonths < 1 || req.TermMonths > settings.DPInstallmentMaxTerm {
		return nil, fmt.Errorf("%w: down-payment installment term must be between 1 and %d months",
			ErrInvalidInput, settings.DPInstallmentMaxTerm)
	}
	variant, err := ParseMortgageVariant(string(req.Variant))
	if err != nil {
		return nil, err
	}

	offer, mortgageRow, err := s.offerWithRow(ctx, req.UnitID, Mortgage)
	if err != nil {
		return nil, err
	}
	priceForCalc, err := basePriceForCalc(offer)
	if err != nil {
		return nil, err
	}

	totalRate, err := sumAdditionalDiscounts(req.AdditionalDiscounts, *mortgageRow)
	if err != nil {
		return nil, err
	}
	one := decimal.NewFromInt(1)
	discounted := priceForCalc.Mul(one.Sub(totalRate))

	usdRate := fallbackDPRate
	if cs, err := s.currency.Settings(ctx); err == nil && cs.EffectiveRate.IsPositive() {
		usdRate = cs.EffectiveRate
	}

	var dpUZS decimal.Decimal
	switch req.DPKind {
	case DPPercent:
		dpUZS = discounted.Mul(req.DPAmount).Div(decimal.NewFromInt(100))
	case DPUsd:
		dpUZS = req.DPAmount.Mul(usdRate)
	default:
		dpUZS = req.DPAmount
	}

	if min := discounted.Mul(variant.MinDPFraction()); dpUZS.LessThan(min) {
		return nil, fmt.Errorf("%w: down payment below the minimum of %s%% (%s UZS)",
			ErrPolicyViolation, variant.MinDPFraction().Mul(decimal.NewFromInt(100)).String(), min.StringFixed(0))
	}

	body := discounted.Sub(dpUZS)
	if body.GreaterThan(variant.BodyCap()) {
		overflow := body.Sub(variant.BodyCap())
		var hint string
		switch req.DPKind {
		case DPPercent:
			hint = fmt.Sprintf("increase the down payment by %s%%",
				overflow.Div(discounted).Mul(decimal.NewFromInt(100)).StringFixed(2))
		case DPUsd:
			hint = fmt.Sprintf("increase the down payment by $%s", overflow.Div(usdRate).StringFixed(0))
		default:
			hint = fmt.Sprintf("increase the down payment by %s UZS", overflow.StringFixed(0))
		}
		return nil, fmt.Errorf("%w: mortgage body exceeds the %s UZS cap, %s",
			ErrPolicyViolation, variant.BodyCap().StringFixed(0), hint)
	}

	monthlyRate := settings.TimeValueRateAnnual.Div(decimal.NewFromInt(1200))
	theoreticalMonthly := Pmt(monthlyRate, dpUZS, req.TermMonths)
	theoreticalContract := theoreticalMonthly.Mul(decimal.NewFromInt(int64(req.TermMonths))).Add(body)
	discountPct := floorPercent(one.Sub(theoreticalContract.Div(priceForCalc)).Mul(decimal.NewFromInt(100)))

	contract := priceForCalc.Mul(one.Sub(discountPct.Div(decimal.NewFromInt(100))))
	dpValue := contract.Sub(body)
	monthly := dpValue.Div(decimal.NewFromInt(int64(req.TermMonths)))

	start := today()
	if req.StartDate != nil {
		start = *req.StartDate
	}
	// DP payments begin on the start date itself; the body settles one month
	// after the last of them.
	schedule := make([]PaymentEntry, 0, req.TermMonths+1)
	for i := 1; i <= req.TermMonths; i++ {
		schedule = append(schedule, PaymentEntry{
			MonthNumber: i,
			Date:        addMonths(start, i-1),
			Amount:      monthly,
			Type:        PaymentDownPayment,
		})
	}
	schedule = append(schedule, PaymentEntry{
		MonthNumber: req.TermMonths + 1,
		Date:        addMonths(start, req.TermMonths),
		Amount:      body,
		Type:        PaymentMortgageBody,
	})

	return &DPInstallmentPlan{
		TermMonths:       req.TermMonths,
		MonthlyDPPayment: monthly,
		MortgageBody:     body,
		ContractValue:    contract,
		Discount:         discountPct,
		Schedule:         schedule,
	}, nil
}

func (s *installmentService) ZeroMortgage(ctx context.Context, req ZeroMortgageRequest) (*ZeroMortgagePlan, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkWhitelist(settings.ZeroMortgageWhitelist, req.UnitID); err != nil {
		return nil, err
	}
	if req.TermMonths <= 0 {
		return nil, fmt.Errorf("%w: mortgage term must be positive", ErrInvalidInput)
	}
	variant, err := ParseMortgageVariant(string(req.Variant))
	if err != nil {
		return nil, err
	}

	offer, fullRow, err := s.offerWithRow(ctx, req.UnitID, FullPayment)
	if err != nil {
		return nil, err
	}
	priceForCalc, err := basePriceForCalc(offer)
	if err != nil {
		return nil, err
	}

	totalRate, err := sumAdditionalDiscounts(req.AdditionalDiscounts, *fullRow)
	if err != nil {
		return nil, err
	}

	var cashback decimal.Decimal
	err = s.planning.QueryRow(ctx,
		"SELECT cashback_percent FROM zero_mortgage_matrix WHERE term_months = $1 AND dp_percent = $2",
		req.TermMonths, req.DPPercent).Scan(&cashback)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no cashback terms for %d months and %d%% down payment",
				ErrNotFound, req.TermMonths, req.DPPercent)
		}
		return nil, fmt.Errorf("failed to load cashback terms: %w", err)
	}

	one := decimal.NewFromInt(1)
	denominator := one.Sub(cashback)
	if denominator.IsZero() {
		return nil, fmt.Errorf("%w: 100%% cashback is not representable", ErrInvalidInput)
	}

	minPct := variant.MinDPFraction().Mul(decimal.NewFromInt(100))
	if decimal.NewFromInt(int64(req.DPPercent)).LessThan(minPct) {
		return nil, fmt.Errorf("%w: down payment must be at least %s%% for this mortgage variant",
			ErrPolicyViolation, minPct.String())
	}

	contract := priceForCalc.Mul(one.Sub(totalRate)).Div(denominator)
	initial := contract.Mul(decimal.NewFromInt(int64(req.DPPercent))).Div(decimal.NewFromInt(100))
	remaining := contract.Sub(initial)
	if remaining.GreaterThan(variant.BodyCap()) {
		return nil, fmt.Errorf("%w: mortgage body %s UZS exceeds the %s UZS cap",
			ErrPolicyViolation, remaining.StringFixed(0), variant.BodyCap().StringFixed(0))
	}
	monthly := remaining.Div(decimal.NewFromInt(int64(req.TermMonths)))

	start := today()
	schedule := append([]PaymentEntry{{MonthNumber: 0, Date: start, Amount: initial, Type: PaymentInitial}},
		monthlySchedule(start, req.TermMonths, monthly, PaymentMonthly)...)

	return &ZeroMortgagePlan{
		ListPrice:      *offer.Unit.Price,
		ContractValue:  contract,
		InitialPayment: initial,
		MonthlyPayment: monthly,
		TermMonths:     req.TermMonths,
		DPPercent:      req.DPPercent,
		Schedule:       schedule,
	}, nil
}

// offerWithRow loads the unit offer and picks its discount row for the given
// payment method.
func (s *installmentService) offerWithRow(ctx context.Context, unitID int64, pm PaymentMethod) (*UnitOffer, *DiscountRow, error) {
	offer, err := s.pricing.BuildUnitOffer(ctx, unitID)
	if err != nil {
		return nil, nil, err
	}
	for i := range offer.DiscountRows {
		if offer.DiscountRows[i].PaymentMethod == pm {
			return offer, &offer.DiscountRows[i], nil
		}
	}
	return nil, nil, fmt.Errorf("%w: no %s discount row for this unit", ErrMissingReference, pm)
}

func (s *installmentService) resolveDP(ctx context.Context, amount decimal.Decimal, kind DPKind, base decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, nil
	}
	switch kind {
	case DPPercent:
		return base.Mul(amount).Div(decimal.NewFromInt(100)), nil
	case DPUsd:
		cs, err := s.currency.Settings(ctx)
		if err != nil || !cs.EffectiveRate.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: USD rate unavailable for down-payment conversion", ErrExternalFailure)
		}
		return amount.Mul(cs.EffectiveRate), nil
	default:
		return amount, nil
	}
}

func basePriceForCalc(offer *UnitOffer) (decimal.Decimal, error) {
	if offer.Unit.Price == nil {
		return decimal.Zero, fmt.Errorf("%w: unit has no list price", ErrInvalidInput)
	}
	// The reservation fee is deducted for flats only.
	base := *offer.Unit.Price
	if offer.PropertyType == string(PropertyFlat) {
		base = base.Sub(ReservationFee)
	}
	if !base.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: base price after the reservation fee must be positive", ErrInvalidInput)
	}
	return base, nil
}

// sumAdditionalDiscounts validates each requested discount against the row's
// ceiling and returns the combined fraction.
func sumAdditionalDiscounts(requested map[string]decimal.Decimal, row DiscountRow) (decimal.Decimal, error) {
	total := decimal.Zero
	for name, value := range requested {
		key := strings.ToLower(strings.TrimSpace(name))
		if !isCoefficient(key) {
			return decimal.Zero, fmt.Errorf("%w: unknown discount %q", ErrInvalidInput, name)
		}
		if max := row.Coefficient(key); value.GreaterThan(max) {
			return decimal.Zero, fmt.Errorf("%w: discount %s exceeds the maximum of %s%%",
				ErrPolicyViolation, strings.ToUpper(key), max.Mul(decimal.NewFromInt(100)).String())
		}
		total = total.Add(value)
	}
	return total, nil
}

func checkWhitelist(raw string, unitID int64) error {
	allowed, err := ParseWhitelist(raw)
	if err != nil {
		return err
	}
	if !allowed[unitID] {
		return fmt.Errorf("%w: this payment product is not available for unit %d", ErrWhitelistReject, unitID)
	}
	return nil
}

func today() time.Time {
	y, m, d := time.Now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
