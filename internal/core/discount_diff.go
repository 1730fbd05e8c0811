package core

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

type discountKey struct {
	Project       string
	PropertyType  PropertyType
	PaymentMethod PaymentMethod
}

func (k discountKey) label() string {
	return fmt.Sprintf("%s (%s, %s)", html.EscapeString(k.Project), k.PropertyType, k.PaymentMethod)
}

// VersionDiff describes matrix changes between two versions as ready-to-send
// HTML fragments, grouped by change kind.
type VersionDiff struct {
	Added    []string
	Removed  []string
	Modified []string
}

// Empty reports whether the two versions are coefficient-identical.
func (d VersionDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// BuildVersionDiff compares two row sets keyed by (project, property type,
// payment method). Coefficient changes below 1e-9 are treated as equal.
func BuildVersionDiff(oldRows, newRows []DiscountRow) VersionDiff {
	oldByKey := indexRows(oldRows)
	newByKey := indexRows(newRows)

	var diff VersionDiff
	for _, key := range sortedKeys(newByKey) {
		newRow := newByKey[key]
		oldRow, ok := oldByKey[key]
		if !ok {
			diff.Added = append(diff.Added, fmt.Sprintf("Добавлена скидка для %s", key.label()))
			continue
		}

		var changes []string
		for _, field := range CoefficientNames {
			oldVal, newVal := oldRow.Coefficient(field), newRow.Coefficient(field)
			delta := newVal.Sub(oldVal)
			if delta.Abs().LessThanOrEqual(coefficientEpsilon) {
				continue
			}
			verb := "увеличилась на"
			if delta.IsNegative() {
				verb = "уменьшилась на"
			}
			changes = append(changes, fmt.Sprintf("<b>%s</b> %s %s%% (с %s%% до %s%%)",
				strings.ToUpper(field), verb,
				asPct(delta.Abs()), asPct(oldVal), asPct(newVal)))
		}
		if len(changes) > 0 {
			var b strings.Builder
			fmt.Fprintf(&b, "<strong>%s:</strong><ul>", key.label())
			for _, c := range changes {
				b.WriteString("<li>" + c + "</li>")
			}
			b.WriteString("</ul>")
			diff.Modified = append(diff.Modified, b.String())
		}
	}

	for _, key := range sortedKeys(oldByKey) {
		if _, ok := newByKey[key]; !ok {
			diff.Removed = append(diff.Removed, fmt.Sprintf("Удалена скидка для %s", key.label()))
		}
	}
	return diff
}

// RenderHTML assembles the activation notification body. The editor-supplied
// change summary, when present, is appended as a separate block.
func (d VersionDiff) RenderHTML(oldNumber, newNumber int, changesSummaryJSON *string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>Система скидок обновлена: версия №%d → №%d</h2>", oldNumber, newNumber)

	if d.Empty() {
		b.WriteString("<p>Коэффициенты не изменились.</p>")
	}
	writeSection(&b, "Изменено", d.Modified)
	writeSection(&b, "Добавлено", d.Added)
	writeSection(&b, "Удалено", d.Removed)

	if changesSummaryJSON != nil && strings.TrimSpace(*changesSummaryJSON) != "" {
		b.WriteString("<h3>Комментарии редактора</h3><pre>")
		b.WriteString(html.EscapeString(*changesSummaryJSON))
		b.WriteString("</pre>")
	}
	return b.String()
}

func writeSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "<h3>%s</h3><ul>", title)
	for _, item := range items {
		b.WriteString("<li>" + item + "</li>")
	}
	b.WriteString("</ul>")
}

func indexRows(rows []DiscountRow) map[discountKey]DiscountRow {
	out := make(map[discountKey]DiscountRow, len(rows))
	for _, r := range rows {
		out[discountKey{r.Project, r.PropertyType, r.PaymentMethod}] = r
	}
	return out
}

func sortedKeys(m map[discountKey]DiscountRow) []discountKey {
	keys := make([]discountKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Project != b.Project {
			return a.Project < b.Project
		}
		if a.PropertyType != b.PropertyType {
			return a.PropertyType < b.PropertyType
		}
		return a.PaymentMethod < b.PaymentMethod
	})
	return keys
}

func asPct(v decimal.Decimal) string {
	return v.Mul(decimal.NewFromInt(100)).StringFixed(1)
}
