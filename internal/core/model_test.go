package core_test

import (
	"testing"

	"github.com/DieForGlory/portal-analytics-sub000/internal/core"
)

func TestCategoryToDisplay(t *testing.T) {
	for code, want := range map[string]core.PropertyType{
		"flat":        core.PropertyFlat,
		"comm":        core.PropertyCommercial,
		"garage":      core.PropertyParking,
		"storageroom": core.PropertyStorage,
	} {
		got, ok := core.CategoryToDisplay(code)
		if !ok || got != string(want) {
			t.Errorf("CategoryToDisplay(%q) = %q, %v; want %q, true", code, got, ok, want)
		}
	}

	got, ok := core.CategoryToDisplay("penthouse")
	if ok || got != "penthouse" {
		t.Errorf("unmapped code must pass through: got %q, %v", got, ok)
	}
}
