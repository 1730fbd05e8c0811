package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DieForGlory/portal-analytics-sub000/internal/core"
)

type stubSettings struct {
	cs core.CalculatorSettings
}

func (s stubSettings) Get(context.Context) (*core.CalculatorSettings, error) {
	cs := s.cs
	return &cs, nil
}

func (s stubSettings) Update(context.Context, core.CalculatorSettings) error { return nil }

type stubCurrency struct {
	rate decimal.Decimal
}

func (s stubCurrency) Settings(context.Context) (*core.CurrencySettings, error) {
	return &core.CurrencySettings{EffectiveRate: s.rate}, nil
}

func (s stubCurrency) EffectiveRate(context.Context) (decimal.Decimal, error) { return s.rate, nil }
func (s stubCurrency) SetSource(context.Context, core.RateSource) error       { return nil }
func (s stubCurrency) SetManualRate(context.Context, decimal.Decimal) error   { return nil }
func (s stubCurrency) RefreshCBU(context.Context) (decimal.Decimal, error)    { return s.rate, nil }
func (s stubCurrency) RateOn(context.Context, time.Time) (decimal.Decimal, error) {
	return s.rate, nil
}

type stubPricing struct {
	offer *core.UnitOffer
}

func (s stubPricing) BuildUnitOffer(context.Context, int64) (*core.UnitOffer, error) {
	return s.offer, nil
}

func testOffer(price int64, rows ...core.DiscountRow) *core.UnitOffer {
	p := decimal.NewFromInt(price)
	return &core.UnitOffer{
		Unit:         core.Unit{ID: 101, Price: &p},
		PropertyType: string(core.PropertyFlat),
		DiscountRows: rows,
	}
}

func futureDate(months int) *time.Time {
	d := time.Now().AddDate(0, months, 0)
	return &d
}

func defaultSettings() core.CalculatorSettings {
	return core.CalculatorSettings{
		StandardInstallmentWhitelist: "101",
		DPInstallmentWhitelist:       "101",
		ZeroMortgageWhitelist:        "101",
		DPInstallmentMaxTerm:         6,
		TimeValueRateAnnual:          decimal.Zero,
		MinStandardInstallmentDPPct:  decimal.Zero,
	}
}

func TestPmt(t *testing.T) {
	principal := decimal.NewFromInt(1000)

	zero := core.Pmt(decimal.Zero, principal, 10)
	if !zero.Equal(decimal.NewFromInt(100)) {
		t.Errorf("zero-rate pmt = %s, want 100", zero)
	}

	rate := decimal.NewFromFloat(0.01)
	got := core.Pmt(rate, principal, 12)
	want := decimal.NewFromFloat(88.8488)
	if got.Sub(want).Abs().GreaterThan(decimal.NewFromFloat(0.001)) {
		t.Errorf("pmt(0.01, 1000, 12) = %s, want ~%s", got, want)
	}
}

func TestStandardInstallmentZeroRate(t *testing.T) {
	row := core.DiscountRow{
		PropertyType:  core.PropertyFlat,
		PaymentMethod: core.FullPayment,
		MPP:           decimal.NewFromFloat(0.05),
		ROP:           decimal.NewFromFloat(0.05),
		CadastreDate:  futureDate(24),
	}
	svc := core.NewInstallmentService(nil,
		stubSettings{defaultSettings()},
		stubCurrency{decimal.NewFromInt(13000)},
		stubPricing{testOffer(103_000_000, row)})

	plan, err := svc.StandardInstallment(context.Background(), core.StandardInstallmentRequest{
		UnitID:     101,
		TermMonths: 10,
		DPKind:     core.DPUzs,
		AdditionalDiscounts: map[string]decimal.Decimal{
			"mpp": decimal.NewFromFloat(0.05),
			"rop": decimal.NewFromFloat(0.05),
		},
	})
	if err != nil {
		t.Fatalf("StandardInstallment: %v", err)
	}

	if !plan.Discount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("discount = %s, want 10", plan.Discount)
	}
	if !plan.ContractValue.Equal(decimal.NewFromInt(90_000_000)) {
		t.Errorf("contract = %s, want 90000000", plan.ContractValue)
	}
	if !plan.MonthlyPayment.Equal(decimal.NewFromInt(9_000_000)) {
		t.Errorf("monthly = %s, want 9000000", plan.MonthlyPayment)
	}

	// With no time value the scheduled payments reproduce the contract exactly.
	total := decimal.Zero
	for _, p := range plan.Schedule {
		total = total.Add(p.Amount)
	}
	if !total.Equal(plan.ContractValue) {
		t.Errorf("schedule sums to %s, contract is %s", total, plan.ContractValue)
	}
	if len(plan.Schedule) != 11 || plan.Schedule[0].Type != core.PaymentInitial {
		t.Errorf("unexpected schedule shape: %d entries", len(plan.Schedule))
	}
}

func TestStandardInstallmentWhitelistReject(t *testing.T) {
	settings := defaultSettings()
	settings.StandardInstallmentWhitelist = "200, 300"
	svc := core.NewInstallmentService(nil, stubSettings{settings},
		stubCurrency{decimal.NewFromInt(13000)}, stubPricing{testOffer(103_000_000)})

	_, err := svc.StandardInstallment(context.Background(), core.StandardInstallmentRequest{
		UnitID: 101, TermMonths: 6, DPKind: core.DPUzs,
	})
	if !errors.Is(err, core.ErrWhitelistReject) {
		t.Fatalf("expected ErrWhitelistReject, got %v", err)
	}
}

func TestStandardInstallmentTermBeyondCadastre(t *testing.T) {
	row := core.DiscountRow{
		PropertyType:  core.PropertyFlat,
		PaymentMethod: core.FullPayment,
		CadastreDate:  futureDate(3),
	}
	svc := core.NewInstallmentService(nil, stubSettings{defaultSettings()},
		stubCurrency{decimal.NewFromInt(13000)}, stubPricing{testOffer(103_000_000, row)})

	_, err := svc.StandardInstallment(context.Background(), core.StandardInstallmentRequest{
		UnitID: 101, TermMonths: 12, DPKind: core.DPUzs,
	})
	if !errors.Is(err, core.ErrPolicyViolation) {
		t.Fatalf("expected ErrPolicyViolation, got %v", err)
	}
}

func TestStandardInstallmentMissingCadastre(t *testing.T) {
	row := core.DiscountRow{PropertyType: core.PropertyFlat, PaymentMethod: core.FullPayment}
	svc := core.NewInstallmentService(nil, stubSettings{defaultSettings()},
		stubCurrency{decimal.NewFromInt(13000)}, stubPricing{testOffer(103_000_000, row)})

	_, err := svc.StandardInstallment(context.Background(), core.StandardInstallmentRequest{
		UnitID: 101, TermMonths: 6, DPKind: core.DPUzs,
	})
	if !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestStandardInstallmentMinDownPayment(t *testing.T) {
	settings := defaultSettings()
	settings.MinStandardInstallmentDPPct = decimal.NewFromInt(15)
	row := core.DiscountRow{
		PropertyType:  core.PropertyFlat,
		PaymentMethod: core.FullPayment,
		CadastreDate:  futureDate(24),
	}
	svc := core.NewInstallmentService(nil, stubSettings{settings},
		stubCurrency{decimal.NewFromInt(13000)}, stubPricing{testOffer(103_000_000, row)})

	_, err := svc.StandardInstallment(context.Background(), core.StandardInstallmentRequest{
		UnitID: 101, TermMonths: 6, DPKind: core.DPUzs, DPAmount: decimal.NewFromInt(1_000_000),
	})
	if !errors.Is(err, core.ErrPolicyViolation) {
		t.Fatalf("expected ErrPolicyViolation, got %v", err)
	}
}

func TestStandardInstallmentDiscountCeiling(t *testing.T) {
	row := core.DiscountRow{
		PropertyType:  core.PropertyFlat,
		PaymentMethod: core.FullPayment,
		MPP:           decimal.NewFromFloat(0.05),
		CadastreDate:  futureDate(24),
	}
	svc := core.NewInstallmentService(nil, stubSettings{defaultSettings()},
		stubCurrency{decimal.NewFromInt(13000)}, stubPricing{testOffer(103_000_000, row)})

	_, err := svc.StandardInstallment(context.Background(), core.StandardInstallmentRequest{
		UnitID: 101, TermMonths: 6, DPKind: core.DPUzs,
		AdditionalDiscounts: map[string]decimal.Decimal{"mpp": decimal.NewFromFloat(0.08)},
	})
	if !errors.Is(err, core.ErrPolicyViolation) {
		t.Fatalf("expected ErrPolicyViolation, got %v", err)
	}
}

func TestDPInstallmentZeroRate(t *testing.T) {
	row := core.DiscountRow{
		PropertyType:  core.PropertyFlat,
		PaymentMethod: core.Mortgage,
	}
	svc := core.NewInstallmentService(nil, stubSettings{defaultSettings()},
		stubCurrency{decimal.NewFromInt(13000)}, stubPricing{testOffer(1_003_000_000, row)})

	plan, err := svc.DPInstallment(context.Background(), core.DPInstallmentRequest{
		UnitID:     101,
		TermMonths: 6,
		DPAmount:   decimal.NewFromInt(60),
		DPKind:     core.DPPercent,
		Variant:    core.MortgageStandard,
	})
	if err != nil {
		t.Fatalf("DPInstallment: %v", err)
	}

	if !plan.MortgageBody.Equal(decimal.NewFromInt(400_000_000)) {
		t.Errorf("body = %s, want 400000000", plan.MortgageBody)
	}
	if !plan.Discount.Equal(decimal.Zero) {
		t.Errorf("discount = %s, want 0", plan.Discount)
	}
	if !plan.MonthlyDPPayment.Equal(decimal.NewFromInt(100_000_000)) {
		t.Errorf("monthly = %s, want 100000000", plan.MonthlyDPPayment)
	}

	last := plan.Schedule[len(plan.Schedule)-1]
	if last.Type != core.PaymentMortgageBody || last.MonthNumber != 7 {
		t.Errorf("unexpected closing entry: %+v", last)
	}
}

func TestDPInstallmentBodyOverCap(t *testing.T) {
	row := core.DiscountRow{PropertyType: core.PropertyFlat, PaymentMethod: core.Mortgage}
	svc := core.NewInstallmentService(nil, stubSettings{defaultSettings()},
		stubCurrency{decimal.NewFromInt(13000)}, stubPricing{testOffer(1_003_000_000, row)})

	_, err := svc.DPInstallment(context.Background(), core.DPInstallmentRequest{
		UnitID:     101,
		TermMonths: 6,
		DPAmount:   decimal.NewFromInt(200_000_000),
		DPKind:     core.DPUzs,
		Variant:    core.MortgageStandard,
	})
	if !errors.Is(err, core.ErrPolicyViolation) {
		t.Fatalf("expected ErrPolicyViolation, got %v", err)
	}
}

func TestDPInstallmentTermBounds(t *testing.T) {
	svc := core.NewInstallmentService(nil, stubSettings{defaultSettings()},
		stubCurrency{decimal.NewFromInt(13000)}, stubPricing{testOffer(1_003_000_000)})

	_, err := svc.DPInstallment(context.Background(), core.DPInstallmentRequest{
		UnitID: 101, TermMonths: 7, DPKind: core.DPUzs, Variant: core.MortgageStandard,
	})
	if !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestZeroMortgageWhitelistReject(t *testing.T) {
	settings := defaultSettings()
	settings.ZeroMortgageWhitelist = ""
	svc := core.NewInstallmentService(nil, stubSettings{settings},
		stubCurrency{decimal.NewFromInt(13000)}, stubPricing{testOffer(103_000_000)})

	_, err := svc.ZeroMortgage(context.Background(), core.ZeroMortgageRequest{
		UnitID: 101, TermMonths: 12, DPPercent: 20,
	})
	if !errors.Is(err, core.ErrWhitelistReject) {
		t.Fatalf("expected ErrWhitelistReject, got %v", err)
	}
}
