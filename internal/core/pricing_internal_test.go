package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func findOption(t *testing.T, options []OfferOption, typeKey string) OfferOption {
	t.Helper()
	for _, o := range options {
		if o.TypeKey == typeKey {
			return o
		}
	}
	t.Fatalf("option %q not built, got %+v", typeKey, options)
	return OfferOption{}
}

func TestBuildOfferOptionsReservationFee(t *testing.T) {
	price := decimal.NewFromInt(103_000_000)
	rows := map[PaymentMethod]DiscountRow{
		FullPayment: {
			MPP: decimal.RequireFromString("0.03"),
			ROP: decimal.RequireFromString("0.02"),
		},
	}

	t.Run("FlatDeductsFee", func(t *testing.T) {
		opt := findOption(t, buildOfferOptions(price, PropertyFlat, rows), "full_payment")
		want := price.Sub(ReservationFee)
		if !opt.PriceAfterDeduction.Equal(want) {
			t.Errorf("PriceAfterDeduction = %s, want %s", opt.PriceAfterDeduction, want)
		}
		if !opt.Deduction.Equal(ReservationFee) {
			t.Errorf("Deduction = %s, want %s", opt.Deduction, ReservationFee)
		}
		if !opt.FinalPrice.Equal(want.Mul(decimal.RequireFromString("0.95"))) {
			t.Errorf("FinalPrice = %s", opt.FinalPrice)
		}
	})

	t.Run("CommercialPaysFullPrice", func(t *testing.T) {
		opt := findOption(t, buildOfferOptions(price, PropertyCommercial, rows), "full_payment")
		if !opt.PriceAfterDeduction.Equal(price) {
			t.Errorf("PriceAfterDeduction = %s, want %s (no deduction for non-flat)",
				opt.PriceAfterDeduction, price)
		}
		if !opt.Deduction.IsZero() {
			t.Errorf("Deduction = %s, want 0", opt.Deduction)
		}
	})

	t.Run("NonFlatSkipsEasyStart", func(t *testing.T) {
		for _, o := range buildOfferOptions(price, PropertyParking, rows) {
			if o.TypeKey == "easy_start_100" {
				t.Error("easy start must not be offered outside flats")
			}
		}
	})
}

func TestBuildOfferOptionsMortgageSplit(t *testing.T) {
	rows := map[PaymentMethod]DiscountRow{
		FullPayment: {},
		Mortgage: {
			MPP: decimal.RequireFromString("0.01"),
		},
	}

	t.Run("DPIsRemainderAboveBodyCap", func(t *testing.T) {
		price := decimal.NewFromInt(703_000_000)
		opt := findOption(t, buildOfferOptions(price, PropertyFlat, rows), "mortgage_standard")
		discounted := price.Sub(ReservationFee).Mul(decimal.RequireFromString("0.99"))
		wantDP := discounted.Sub(MaxMortgageBodyStandard)
		if opt.InitialPayment == nil || !opt.InitialPayment.Equal(wantDP) {
			t.Errorf("InitialPayment = %v, want %s", opt.InitialPayment, wantDP)
		}
		if opt.MortgageBody == nil || !opt.MortgageBody.Equal(MaxMortgageBodyStandard) {
			t.Errorf("MortgageBody = %v, want %s", opt.MortgageBody, MaxMortgageBodyStandard)
		}
	})

	t.Run("DPNeverBelowVariantMinimum", func(t *testing.T) {
		// Cheap enough that price minus the body cap goes negative.
		price := decimal.NewFromInt(103_000_000)
		opt := findOption(t, buildOfferOptions(price, PropertyFlat, rows), "mortgage_standard")
		discounted := price.Sub(ReservationFee).Mul(decimal.RequireFromString("0.99"))
		wantDP := discounted.Mul(MinDPFractionStandard)
		if opt.InitialPayment == nil || !opt.InitialPayment.Equal(wantDP) {
			t.Errorf("InitialPayment = %v, want %s", opt.InitialPayment, wantDP)
		}
	})
}
