// Package excel renders and parses the spreadsheet forms used to bulk-edit
// the discount matrix and the cashback matrix.
package excel

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/DieForGlory/portal-analytics-sub000/internal/core"
)

const discountSheet = "Шаблон скидок"
const cashbackSheet = "Матрица кэшбека"

var discountHeaders = []string{
	"ЖК", "Тип недвижимости", "Тип оплаты", "Дата кадастра",
	"МПП", "РОП", "КД", "ОПТ", "ГД", "Холдинг", "Акционер", "Акция",
}

// dateLayouts accepted in the cadastre column.
var dateLayouts = []string{"2006-01-02", "02.01.2006", "01-02-06", "2006-01-02 15:04:05"}

// BuildDiscountTemplate produces a workbook with one row per
// (project, property type, payment method) combination, pre-filled from the
// given rows when a matching one exists.
func BuildDiscountTemplate(projects []string, existing []core.DiscountRow) (*excelize.File, error) {
	byKey := make(map[string]core.DiscountRow, len(existing))
	for _, r := range existing {
		byKey[r.Project+"|"+string(r.PropertyType)+"|"+string(r.PaymentMethod)] = r
	}

	f := excelize.NewFile()
	f.SetSheetName(f.GetSheetName(0), discountSheet)
	if err := f.SetSheetRow(discountSheet, "A1", &discountHeaders); err != nil {
		return nil, fmt.Errorf("failed to write template header: %w", err)
	}

	rowIdx := 2
	for _, project := range projects {
		for _, pt := range core.PropertyTypes {
			for _, pm := range core.PaymentMethods {
				cadastre := ""
				values := make([]any, 0, len(discountHeaders))
				values = append(values, project, string(pt), string(pm))

				if r, ok := byKey[project+"|"+string(pt)+"|"+string(pm)]; ok {
					if r.CadastreDate != nil {
						cadastre = r.CadastreDate.Format("2006-01-02")
					}
					values = append(values, cadastre)
					for _, name := range core.CoefficientNames {
						pct, _ := r.Coefficient(name).Mul(decimal.NewFromInt(100)).Float64()
						values = append(values, pct)
					}
				} else {
					values = append(values, cadastre)
					for range core.CoefficientNames {
						values = append(values, 0)
					}
				}

				cell, err := excelize.CoordinatesToCellName(1, rowIdx)
				if err != nil {
					return nil, err
				}
				if err := f.SetSheetRow(discountSheet, cell, &values); err != nil {
					return nil, fmt.Errorf("failed to write template row: %w", err)
				}
				rowIdx++
			}
		}
	}
	return f, nil
}

// ParseDiscountWorkbook reads the first sheet of an uploaded workbook into
// discount rows. Unparseable rows are skipped, matching the tolerant import
// behavior of the editing UI.
func ParseDiscountWorkbook(r io.Reader) ([]core.DiscountRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open workbook: %v", core.ErrInvalidInput, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: workbook has no data rows", core.ErrInvalidInput)
	}

	colIdx := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		colIdx[strings.TrimSpace(h)] = i
	}
	for _, required := range []string{"ЖК", "Тип недвижимости", "Тип оплаты"} {
		if _, ok := colIdx[required]; !ok {
			return nil, fmt.Errorf("%w: workbook is missing the %q column", core.ErrInvalidInput, required)
		}
	}

	coefficientColumns := map[string]string{
		"МПП": "mpp", "РОП": "rop", "КД": "kd", "ОПТ": "opt",
		"ГД": "gd", "Холдинг": "holding", "Акционер": "shareholder", "Акция": "action",
	}

	var out []core.DiscountRow
	for _, raw := range rows[1:] {
		get := func(header string) string {
			i, ok := colIdx[header]
			if !ok || i >= len(raw) {
				return ""
			}
			return strings.TrimSpace(raw[i])
		}

		project := get("ЖК")
		if project == "" {
			continue
		}
		pt, err := core.ParsePropertyType(get("Тип недвижимости"))
		if err != nil {
			continue
		}
		pm, err := core.ParsePaymentMethod(get("Тип оплаты"))
		if err != nil {
			continue
		}

		row := core.DiscountRow{Project: project, PropertyType: pt, PaymentMethod: pm}
		for header, field := range coefficientColumns {
			row.SetCoefficient(field, normalizeFraction(get(header)))
		}
		if d := parseDate(get("Дата кадастра")); d != nil {
			row.CadastreDate = d
		}
		out = append(out, row)
	}
	return out, nil
}

// normalizeFraction accepts either a fraction ("0.05") or a percentage
// ("5"); values above 1 are treated as percentages. Garbage reads as zero.
func normalizeFraction(raw string) decimal.Decimal {
	raw = strings.ReplaceAll(raw, ",", ".")
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	if v.GreaterThan(decimal.NewFromInt(1)) {
		return v.Div(decimal.NewFromInt(100))
	}
	return v
}

func parseDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

// BuildCashbackTemplate lays the cashback matrix out as a grid: terms down
// the rows, down-payment percentages across the columns, fractions in cells.
func BuildCashbackTemplate(cells []core.CashbackCell) (*excelize.File, error) {
	termSet := make(map[int]bool)
	dpSet := make(map[int]bool)
	value := make(map[[2]int]decimal.Decimal)
	for _, c := range cells {
		termSet[c.TermMonths] = true
		dpSet[c.DPPercent] = true
		value[[2]int{c.TermMonths, c.DPPercent}] = c.Cashback
	}
	terms := sortedInts(termSet)
	dps := sortedInts(dpSet)

	f := excelize.NewFile()
	f.SetSheetName(f.GetSheetName(0), cashbackSheet)

	header := []any{"Срок (мес.)"}
	for _, dp := range dps {
		header = append(header, fmt.Sprintf("ПВ %d%%", dp))
	}
	if err := f.SetSheetRow(cashbackSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write cashback header: %w", err)
	}

	for i, term := range terms {
		row := []any{term}
		for _, dp := range dps {
			if v, ok := value[[2]int{term, dp}]; ok {
				fv, _ := v.Float64()
				row = append(row, fv)
			} else {
				row = append(row, "")
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(cashbackSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write cashback row: %w", err)
		}
	}
	return f, nil
}

// ParseCashbackWorkbook reads the grid form back into cells.
func ParseCashbackWorkbook(r io.Reader) ([]core.CashbackCell, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open workbook: %v", core.ErrInvalidInput, err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("failed to read cashback sheet: %w", err)
	}
	if len(rows) < 2 || len(rows[0]) < 2 {
		return nil, fmt.Errorf("%w: cashback workbook has no data", core.ErrInvalidInput)
	}

	dps := make([]int, 0, len(rows[0])-1)
	for _, h := range rows[0][1:] {
		h = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(h, "ПВ"), "%"))
		dp, err := strconv.Atoi(strings.TrimSpace(h))
		if err != nil {
			return nil, fmt.Errorf("%w: bad down-payment header %q", core.ErrInvalidInput, h)
		}
		dps = append(dps, dp)
	}

	var out []core.CashbackCell
	for _, raw := range rows[1:] {
		if len(raw) == 0 || strings.TrimSpace(raw[0]) == "" {
			continue
		}
		term, err := strconv.Atoi(strings.TrimSpace(raw[0]))
		if err != nil {
			continue
		}
		for i, dp := range dps {
			if i+1 >= len(raw) {
				break
			}
			cellRaw := strings.ReplaceAll(strings.TrimSpace(raw[i+1]), ",", ".")
			if cellRaw == "" {
				continue
			}
			v, err := decimal.NewFromString(cellRaw)
			if err != nil {
				continue
			}
			out = append(out, core.CashbackCell{TermMonths: term, DPPercent: dp, Cashback: v})
		}
	}
	return out, nil
}

func sortedInts(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
