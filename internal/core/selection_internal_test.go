package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestAffordable(t *testing.T) {
	// The caller hands in the price with any booking-fee deduction already
	// applied; affordable itself deducts nothing.
	price := decimal.NewFromInt(100_000_000)
	row := DiscountRow{
		MPP: decimal.RequireFromString("0.03"),
		ROP: decimal.RequireFromString("0.02"),
	}
	discounted := price.Mul(decimal.RequireFromString("0.95"))

	t.Run("FullPaymentAtExactBudget", func(t *testing.T) {
		match, ok := affordable(discounted, price, row, FullPayment)
		if !ok {
			t.Fatal("expected a match at the exact discounted price")
		}
		if !match.FinalPrice.Equal(discounted) {
			t.Errorf("FinalPrice = %s, want %s", match.FinalPrice, discounted)
		}
	})

	t.Run("FullPaymentOneBelow", func(t *testing.T) {
		if _, ok := affordable(discounted.Sub(decimal.NewFromInt(1)), price, row, FullPayment); ok {
			t.Error("budget one below the discounted price must not match")
		}
	})

	t.Run("MortgageBothVariantsFit", func(t *testing.T) {
		match, ok := affordable(discounted, price, row, Mortgage)
		if !ok {
			t.Fatal("expected a mortgage match with budget covering both down payments")
		}
		wantStd := requiredDownPayment(discounted, MortgageStandard)
		if match.InitialPayment == nil || !match.InitialPayment.Equal(wantStd) {
			t.Errorf("InitialPayment = %v, want %s", match.InitialPayment, wantStd)
		}
		if match.InitialPaymentExtended == nil {
			t.Error("expected extended down payment when both variants fit")
		}
	})

	t.Run("MortgageBudgetBelowBothMinimums", func(t *testing.T) {
		if _, ok := affordable(decimal.NewFromInt(1_000_000), price, row, Mortgage); ok {
			t.Error("budget below every variant minimum must not match")
		}
	})
}
