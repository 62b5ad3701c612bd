package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kaivalyagandhi/ai-or-not-game-sub000/internal/models"
)

// PostgresCatalog reads image assets from PostgreSQL into a process-wide
// cache. It is constructed once at startup and passed to the components
// that need it; ForceReload refreshes the cache in place.
type PostgresCatalog struct {
	*cache
	pool *pgxpool.Pool
}

// PostgresConfig holds catalog database configuration
type PostgresConfig struct {
	DSN      string
	MaxConns int32
}

// NewPostgresCatalog connects to the asset database and performs the
// initial load. The returned catalog is ready to serve.
func NewPostgresCatalog(ctx context.Context, cfg PostgresConfig) (*PostgresCatalog, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	} else {
		poolConfig.MaxConns = 10 // default
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping asset database: %w", err)
	}

	c := &PostgresCatalog{
		cache: newCache(),
		pool:  pool,
	}

	if err := c.ForceReload(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return c, nil
}

// ForceReload replaces the cached asset set with the database contents
func (c *PostgresCatalog) ForceReload(ctx context.Context) error {
	query := `
		SELECT id, url, category, is_synthetic, COALESCE(source, ''), COALESCE(description, '')
		FROM image_assets
		WHERE active = true
	`

	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to load image assets: %w", err)
	}
	defer rows.Close()

	var assets []models.ImageAsset
	for rows.Next() {
		var a models.ImageAsset
		if err := rows.Scan(&a.ID, &a.URL, &a.Category, &a.IsSynthetic, &a.Source, &a.Description); err != nil {
			return fmt.Errorf("failed to scan image asset: %w", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read image assets: %w", err)
	}

	c.replace(assets)

	slog.Info("asset catalog loaded",
		"assets", len(assets),
		"categories", len(c.Categories()),
	)

	return nil
}

// Ping checks database connectivity
func (c *PostgresCatalog) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Close closes the database connection pool
func (c *PostgresCatalog) Close() error {
	c.pool.Close()
	return nil
}
