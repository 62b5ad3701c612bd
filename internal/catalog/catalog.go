package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/models"
)

// ErrCategoryUnavailable is returned when a category is missing assets
// on one side of the synthetic/authentic split. This is a deployment
// configuration fault, not a gameplay condition.
var ErrCategoryUnavailable = errors.New("category has no eligible assets")

// Catalog exposes image assets partitioned by category and authenticity.
// Implementations are read-only to the game core.
type Catalog interface {
	Categories() []string
	Assets(category string, synthetic bool) []models.ImageAsset
	ForceReload(ctx context.Context) error
}

// partition holds both sides of one category
type partition struct {
	synthetic []models.ImageAsset
	authentic []models.ImageAsset
}

// cache is the shared read-through structure behind catalog implementations
type cache struct {
	mu         sync.RWMutex
	partitions map[string]*partition
	categories []string
}

func newCache() *cache {
	return &cache{partitions: make(map[string]*partition)}
}

// replace swaps in a freshly loaded asset set
func (c *cache) replace(assets []models.ImageAsset) {
	partitions := make(map[string]*partition)
	for _, a := range assets {
		p, ok := partitions[a.Category]
		if !ok {
			p = &partition{}
			partitions[a.Category] = p
		}
		if a.IsSynthetic {
			p.synthetic = append(p.synthetic, a)
		} else {
			p.authentic = append(p.authentic, a)
		}
	}

	categories := make([]string, 0, len(partitions))
	for cat := range partitions {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	c.mu.Lock()
	c.partitions = partitions
	c.categories = categories
	c.mu.Unlock()
}

func (c *cache) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, len(c.categories))
	copy(out, c.categories)
	return out
}

func (c *cache) Assets(category string, synthetic bool) []models.ImageAsset {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.partitions[category]
	if !ok {
		return nil
	}
	src := p.authentic
	if synthetic {
		src = p.synthetic
	}
	out := make([]models.ImageAsset, len(src))
	copy(out, src)
	return out
}

// Validate checks that every category can serve both sides of a pair
func Validate(c Catalog) error {
	categories := c.Categories()
	if len(categories) < models.RoundsPerDay {
		return fmt.Errorf("catalog has %d categories, need at least %d", len(categories), models.RoundsPerDay)
	}
	for _, cat := range categories {
		if len(c.Assets(cat, true)) == 0 {
			return fmt.Errorf("%w: %s (synthetic)", ErrCategoryUnavailable, cat)
		}
		if len(c.Assets(cat, false)) == 0 {
			return fmt.Errorf("%w: %s (authentic)", ErrCategoryUnavailable, cat)
		}
	}
	return nil
}

// StaticCatalog serves a fixed asset set. Used by tests and by the
// importer to validate manifests before writing them.
type StaticCatalog struct {
	*cache
}

// NewStaticCatalog builds a catalog from an in-memory asset list
func NewStaticCatalog(assets []models.ImageAsset) *StaticCatalog {
	c := newCache()
	c.replace(assets)
	return &StaticCatalog{cache: c}
}

// ForceReload is a no-op for a static asset set
func (s *StaticCatalog) ForceReload(ctx context.Context) error {
	return nil
}
