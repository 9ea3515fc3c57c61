package settings

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PostgresBackend keeps the settings document in one jsonb row, so several
// bot deployments can share a database under different document names.
type PostgresBackend struct {
	pool *pgxpool.Pool
	name string
}

func NewPostgresBackend(ctx context.Context, databaseURL, name string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresBackend{pool: pool, name: name}, nil
}

func (b *PostgresBackend) Close() {
	b.pool.Close()
}

func (b *PostgresBackend) Migrate(ctx context.Context) error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return err
	}

	var files []string
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := migrations.ReadFile(path.Join("migrations", file))
		if err != nil {
			return err
		}
		if _, err := b.pool.Exec(ctx, string(content)); err != nil {
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
	}
	return nil
}

func (b *PostgresBackend) Load(ctx context.Context) ([]byte, error) {
	var document string
	err := b.pool.QueryRow(ctx,
		`SELECT document::text FROM steward_settings_documents WHERE name = $1`,
		b.name,
	).Scan(&document)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return []byte(document), nil
}

func (b *PostgresBackend) Save(ctx context.Context, data []byte) error {
	_, err := b.pool.Exec(ctx, `
		INSERT INTO steward_settings_documents (name, document, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (name) DO UPDATE SET
			document = excluded.document,
			updated_at = excluded.updated_at
	`, b.name, string(data))
	return err
}
