package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	"gopkg.in/yaml.v3"

	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/catalog"
	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/models"
)

// manifest is one YAML asset file: a category with both sides of its
// image pool
type manifest struct {
	Category string          `yaml:"category"`
	Assets   []manifestAsset `yaml:"assets"`
}

type manifestAsset struct {
	ID          string `yaml:"id"`
	URL         string `yaml:"url"`
	Synthetic   bool   `yaml:"synthetic"`
	Source      string `yaml:"source"`
	Description string `yaml:"description"`
}

const schema = `
CREATE TABLE IF NOT EXISTS image_assets (
	id           TEXT PRIMARY KEY,
	url          TEXT NOT NULL,
	category     TEXT NOT NULL,
	is_synthetic BOOLEAN NOT NULL,
	source       TEXT,
	description  TEXT,
	active       BOOLEAN NOT NULL DEFAULT true
);
CREATE INDEX IF NOT EXISTS idx_image_assets_category ON image_assets (category, is_synthetic) WHERE active;
`

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	dir := flag.String("dir", "./manifests", "directory of YAML asset manifests")
	dsn := flag.String("dsn", os.Getenv("DATABASE_DSN"), "postgres DSN (defaults to DATABASE_DSN)")
	dryRun := flag.Bool("dry-run", false, "validate manifests without writing")
	flag.Parse()

	if *dsn == "" && !*dryRun {
		slog.Error("postgres DSN is required (use -dsn or DATABASE_DSN)")
		os.Exit(1)
	}

	assets, err := loadManifests(*dir)
	if err != nil {
		slog.Error("failed to load manifests", "error", err)
		os.Exit(1)
	}

	slog.Info("manifests loaded", "assets", len(assets))

	// A manifest set that cannot back a full daily game is rejected
	// before anything is written.
	if err := catalog.Validate(catalog.NewStaticCatalog(assets)); err != nil {
		slog.Error("manifest set is not playable", "error", err)
		os.Exit(1)
	}

	if *dryRun {
		slog.Info("dry run: manifests are valid")
		return
	}

	if err := importAssets(*dsn, assets); err != nil {
		slog.Error("import failed", "error", err)
		os.Exit(1)
	}

	slog.Info("import complete", "assets", len(assets))
}

// loadManifests reads every YAML file in the directory
func loadManifests(dir string) ([]models.ImageAsset, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no manifest files in %s", dir)
	}

	var assets []models.ImageAsset
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}

		var m manifest
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}

		if m.Category == "" {
			return nil, fmt.Errorf("%s: category is required", file)
		}

		for _, a := range m.Assets {
			if a.ID == "" || a.URL == "" {
				return nil, fmt.Errorf("%s: every asset needs an id and url", file)
			}
			assets = append(assets, models.ImageAsset{
				ID:          a.ID,
				URL:         a.URL,
				Category:    m.Category,
				IsSynthetic: a.Synthetic,
				Source:      a.Source,
				Description: a.Description,
			})
		}

		slog.Info("manifest parsed", "file", filepath.Base(file), "category", m.Category, "assets", len(m.Assets))
	}

	return assets, nil
}

// importAssets upserts the asset set into Postgres
func importAssets(dsn string, assets []models.ImageAsset) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO image_assets (id, url, category, is_synthetic, source, description, active)
		VALUES ($1, $2, $3, $4, $5, $6, true)
		ON CONFLICT (id) DO UPDATE SET
			url = EXCLUDED.url,
			category = EXCLUDED.category,
			is_synthetic = EXCLUDED.is_synthetic,
			source = EXCLUDED.source,
			description = EXCLUDED.description,
			active = true
	`

	for _, a := range assets {
		if _, err := tx.Exec(upsert, a.ID, a.URL, a.Category, a.IsSynthetic, a.Source, a.Description); err != nil {
			return fmt.Errorf("failed to upsert asset %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	return nil
}
