package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/soundforge/soundforge/pkg/host/store/sqlbase"
	"github.com/soundforge/soundforge/pkg/models"
)

func postgresMigrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS graph_assets (
				location TEXT PRIMARY KEY,
				id TEXT NOT NULL,
				name TEXT NOT NULL,
				path TEXT NOT NULL,
				document JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_graph_assets_path ON graph_assets (path);
		`,
	}
}

// PostgresStore persists assets in a PostgreSQL table, with the graph
// document stored as JSONB.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore connects to the database, runs migrations and returns
// the store.
func NewPostgresStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*PostgresStore, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, postgresMigrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: database, logger: logger}, nil
}

// Put implements AssetStore. The primary key on location enforces the
// create-only rule; a unique violation surfaces as ErrConflict.
func (s *PostgresStore) Put(ctx context.Context, asset *StoredAsset) error {
	document, err := json.Marshal(asset.Document)
	if err != nil {
		return fmt.Errorf("failed to marshal asset document: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO graph_assets (location, id, name, path, document, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, asset.Ref.Location(), asset.Ref.ID, asset.Ref.Name, asset.Ref.Path, document, asset.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrConflict
		}

		return fmt.Errorf("failed to insert asset: %w", err)
	}

	return nil
}

// Get implements AssetStore.
func (s *PostgresStore) Get(ctx context.Context, location string) (*StoredAsset, error) {
	asset := &StoredAsset{}

	var document []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, path, document, created_at
		FROM graph_assets
		WHERE location = $1
	`, location).Scan(&asset.Ref.ID, &asset.Ref.Name, &asset.Ref.Path, &document, &asset.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to query asset: %w", err)
	}

	asset.Document = &models.GraphDocument{}
	if err := json.Unmarshal(document, asset.Document); err != nil {
		return nil, fmt.Errorf("failed to unmarshal asset document: %w", err)
	}

	return asset, nil
}

// List implements AssetStore.
func (s *PostgresStore) List(ctx context.Context, pathPrefix string) ([]*StoredAsset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, path, document, created_at
		FROM graph_assets
		WHERE location LIKE $1 || '%'
		ORDER BY location
	`, pathPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var assets []*StoredAsset

	for rows.Next() {
		asset := &StoredAsset{}

		var document []byte

		err := rows.Scan(&asset.Ref.ID, &asset.Ref.Name, &asset.Ref.Path, &document, &asset.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset row: %w", err)
		}

		asset.Document = &models.GraphDocument{}
		if err := json.Unmarshal(document, asset.Document); err != nil {
			return nil, fmt.Errorf("failed to unmarshal asset document: %w", err)
		}

		assets = append(assets, asset)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate asset rows: %w", err)
	}

	return assets, nil
}

// HealthCheck implements AssetStore.
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close implements AssetStore.
func (s *PostgresStore) Close(_ context.Context) error {
	if s.db != nil {
		err := s.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
