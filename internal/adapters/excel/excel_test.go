package excel_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DieForGlory/portal-analytics-sub000/internal/adapters/excel"
	"github.com/DieForGlory/portal-analytics-sub000/internal/core"
)

func TestDiscountTemplateRoundTrip(t *testing.T) {
	cadastre := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	existing := []core.DiscountRow{
		{
			Project:       "Манхэттен",
			PropertyType:  core.PropertyFlat,
			PaymentMethod: core.FullPayment,
			MPP:           decimal.RequireFromString("0.03"),
			ROP:           decimal.RequireFromString("0.02"),
			Action:        decimal.RequireFromString("0.05"),
			CadastreDate:  &cadastre,
		},
	}

	f, err := excel.BuildDiscountTemplate([]string{"Манхэттен"}, existing)
	if err != nil {
		t.Fatalf("BuildDiscountTemplate: %v", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	rows, err := excel.ParseDiscountWorkbook(buf)
	if err != nil {
		t.Fatalf("ParseDiscountWorkbook: %v", err)
	}

	// One row per property type x payment method combination for the project.
	want := len(core.PropertyTypes) * len(core.PaymentMethods)
	if len(rows) != want {
		t.Fatalf("expected %d rows, got %d", want, len(rows))
	}

	var found *core.DiscountRow
	for i := range rows {
		if rows[i].PropertyType == core.PropertyFlat && rows[i].PaymentMethod == core.FullPayment {
			found = &rows[i]
			break
		}
	}
	if found == nil {
		t.Fatal("pre-filled flat/full-payment row missing after round trip")
	}
	if !found.MPP.Equal(decimal.RequireFromString("0.03")) {
		t.Errorf("MPP: expected 0.03, got %s", found.MPP)
	}
	if !found.Action.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("Action: expected 0.05, got %s", found.Action)
	}
	if found.CadastreDate == nil || !found.CadastreDate.Equal(cadastre) {
		t.Errorf("cadastre date lost: got %v", found.CadastreDate)
	}
}

func TestParseDiscountWorkbookMissingColumns(t *testing.T) {
	cells := []core.CashbackCell{{TermMonths: 6, DPPercent: 30, Cashback: decimal.RequireFromString("0.1")}}
	f, err := excel.BuildCashbackTemplate(cells)
	if err != nil {
		t.Fatalf("BuildCashbackTemplate: %v", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	// A cashback grid is not a discount template.
	if _, err := excel.ParseDiscountWorkbook(buf); err == nil {
		t.Fatal("expected error for workbook without discount columns")
	}
}

func TestCashbackTemplateRoundTrip(t *testing.T) {
	cells := []core.CashbackCell{
		{TermMonths: 6, DPPercent: 30, Cashback: decimal.RequireFromString("0.08")},
		{TermMonths: 6, DPPercent: 50, Cashback: decimal.RequireFromString("0.12")},
		{TermMonths: 12, DPPercent: 30, Cashback: decimal.RequireFromString("0.05")},
	}

	f, err := excel.BuildCashbackTemplate(cells)
	if err != nil {
		t.Fatalf("BuildCashbackTemplate: %v", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	parsed, err := excel.ParseCashbackWorkbook(buf)
	if err != nil {
		t.Fatalf("ParseCashbackWorkbook: %v", err)
	}
	if len(parsed) != len(cells) {
		t.Fatalf("expected %d cells, got %d", len(cells), len(parsed))
	}

	byKey := make(map[[2]int]decimal.Decimal)
	for _, c := range parsed {
		byKey[[2]int{c.TermMonths, c.DPPercent}] = c.Cashback
	}
	for _, c := range cells {
		got, ok := byKey[[2]int{c.TermMonths, c.DPPercent}]
		if !ok {
			t.Errorf("cell (%d, %d) missing after round trip", c.TermMonths, c.DPPercent)
			continue
		}
		if !got.Equal(c.Cashback) {
			t.Errorf("cell (%d, %d): expected %s, got %s", c.TermMonths, c.DPPercent, c.Cashback, got)
		}
	}
}
