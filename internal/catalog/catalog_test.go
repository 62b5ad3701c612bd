package catalog

import (
	"errors"
	"fmt"
	"testing"

	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/models"
)

func buildAssets(categories []string, perSide int) []models.ImageAsset {
	var assets []models.ImageAsset
	for _, cat := range categories {
		for i := 0; i < perSide; i++ {
			assets = append(assets,
				models.ImageAsset{ID: fmt.Sprintf("%s-s%d", cat, i), URL: "u", Category: cat, IsSynthetic: true},
				models.ImageAsset{ID: fmt.Sprintf("%s-r%d", cat, i), URL: "u", Category: cat},
			)
		}
	}
	return assets
}

func TestStaticCatalogPartitions(t *testing.T) {
	cats := []string{"faces", "food", "art", "animals", "vehicles", "landscapes"}
	c := NewStaticCatalog(buildAssets(cats, 2))

	got := c.Categories()
	if len(got) != len(cats) {
		t.Fatalf("expected %d categories, got %d", len(cats), len(got))
	}
	// Categories come back sorted
	for i := 1; i < len(got); i++ {
		if got[i-1] >= got[i] {
			t.Errorf("categories not sorted: %v", got)
			break
		}
	}

	synth := c.Assets("faces", true)
	if len(synth) != 2 {
		t.Fatalf("expected 2 synthetic faces, got %d", len(synth))
	}
	for _, a := range synth {
		if !a.IsSynthetic {
			t.Errorf("asset %s on wrong side of partition", a.ID)
		}
	}

	if got := c.Assets("unknown", false); got != nil {
		t.Errorf("expected nil for unknown category, got %v", got)
	}
}

func TestValidate(t *testing.T) {
	cats := []string{"faces", "food", "art", "animals", "vehicles", "landscapes"}

	if err := Validate(NewStaticCatalog(buildAssets(cats, 1))); err != nil {
		t.Fatalf("expected playable catalog, got %v", err)
	}

	// Too few categories
	if err := Validate(NewStaticCatalog(buildAssets(cats[:4], 1))); err == nil {
		t.Error("expected error for too few categories")
	}

	// One category missing its authentic side
	assets := buildAssets(cats[:5], 1)
	assets = append(assets, models.ImageAsset{ID: "solo", URL: "u", Category: "lonely", IsSynthetic: true})
	err := Validate(NewStaticCatalog(assets))
	if !errors.Is(err, ErrCategoryUnavailable) {
		t.Errorf("expected ErrCategoryUnavailable, got %v", err)
	}
}
