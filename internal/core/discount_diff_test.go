package core_test

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/DieForGlory/portal-analytics-sub000/internal/core"
)

func row(project string, pt core.PropertyType, pm core.PaymentMethod, mpp float64) core.DiscountRow {
	return core.DiscountRow{
		Project:       project,
		PropertyType:  pt,
		PaymentMethod: pm,
		MPP:           decimal.NewFromFloat(mpp),
	}
}

func TestBuildVersionDiffIdentical(t *testing.T) {
	rows := []core.DiscountRow{row("Яккасарай", core.PropertyFlat, core.FullPayment, 0.05)}
	diff := core.BuildVersionDiff(rows, rows)
	if !diff.Empty() {
		t.Fatalf("expected empty diff, got %+v", diff)
	}
}

func TestBuildVersionDiffModified(t *testing.T) {
	oldRows := []core.DiscountRow{row("Яккасарай", core.PropertyFlat, core.FullPayment, 0.05)}
	newRows := []core.DiscountRow{row("Яккасарай", core.PropertyFlat, core.FullPayment, 0.07)}

	diff := core.BuildVersionDiff(oldRows, newRows)
	if len(diff.Modified) != 1 || len(diff.Added) != 0 || len(diff.Removed) != 0 {
		t.Fatalf("unexpected diff: %+v", diff)
	}
	got := diff.Modified[0]
	for _, want := range []string{"MPP", "увеличилась на", "2.0%", "с 5.0% до 7.0%"} {
		if !strings.Contains(got, want) {
			t.Errorf("modified entry missing %q: %s", want, got)
		}
	}
}

func TestBuildVersionDiffDecreaseVerb(t *testing.T) {
	oldRows := []core.DiscountRow{row("Эльбек", core.PropertyFlat, core.Mortgage, 0.07)}
	newRows := []core.DiscountRow{row("Эльбек", core.PropertyFlat, core.Mortgage, 0.05)}

	diff := core.BuildVersionDiff(oldRows, newRows)
	if len(diff.Modified) != 1 {
		t.Fatalf("unexpected diff: %+v", diff)
	}
	if !strings.Contains(diff.Modified[0], "уменьшилась на") {
		t.Errorf("expected decrease verb in %s", diff.Modified[0])
	}
}

func TestBuildVersionDiffAddedRemoved(t *testing.T) {
	oldRows := []core.DiscountRow{row("Старый", core.PropertyFlat, core.FullPayment, 0.05)}
	newRows := []core.DiscountRow{row("Новый", core.PropertyFlat, core.FullPayment, 0.05)}

	diff := core.BuildVersionDiff(oldRows, newRows)
	if len(diff.Added) != 1 || !strings.Contains(diff.Added[0], "Новый") {
		t.Errorf("added: %v", diff.Added)
	}
	if len(diff.Removed) != 1 || !strings.Contains(diff.Removed[0], "Старый") {
		t.Errorf("removed: %v", diff.Removed)
	}
}

func TestBuildVersionDiffIgnoresNoise(t *testing.T) {
	oldRows := []core.DiscountRow{row("Яккасарай", core.PropertyFlat, core.FullPayment, 0.05)}
	newRows := []core.DiscountRow{{
		Project:       "Яккасарай",
		PropertyType:  core.PropertyFlat,
		PaymentMethod: core.FullPayment,
		MPP:           decimal.NewFromFloat(0.05).Add(decimal.New(1, -12)),
	}}

	if diff := core.BuildVersionDiff(oldRows, newRows); !diff.Empty() {
		t.Fatalf("sub-threshold change should be ignored: %+v", diff)
	}
}

func TestRenderHTML(t *testing.T) {
	oldRows := []core.DiscountRow{row("Яккасарай", core.PropertyFlat, core.FullPayment, 0.05)}
	newRows := []core.DiscountRow{row("Яккасарай", core.PropertyFlat, core.FullPayment, 0.10)}
	diff := core.BuildVersionDiff(oldRows, newRows)

	summary := `{"note":"сезонная акция"}`
	out := diff.RenderHTML(3, 4, &summary)
	for _, want := range []string{"№3", "№4", "Изменено", "сезонная акция"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
}
