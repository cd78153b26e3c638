package interest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresDocumentID = "hashed-interests"

// PostgresBackend keeps the document as one JSONB row.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

func NewPostgresBackend(ctx context.Context, dsn string) (*PostgresBackend, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	b := &PostgresBackend{pool: pool}
	if err := b.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

func (b *PostgresBackend) Load(ctx context.Context) (Document, error) {
	var raw []byte
	err := b.pool.QueryRow(ctx, `SELECT body FROM interest_documents WHERE id = $1`, postgresDocumentID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, nil
		}
		return nil, fmt.Errorf("select interest document: %w", err)
	}
	return decodeDocument(raw)
}

func (b *PostgresBackend) Save(ctx context.Context, doc Document) error {
	raw, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	_, err = b.pool.Exec(ctx, `
INSERT INTO interest_documents (id, body, updated_at)
VALUES ($1, $2::jsonb, NOW())
ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
`, postgresDocumentID, string(raw))
	if err != nil {
		return fmt.Errorf("upsert interest document: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}

func (b *PostgresBackend) initSchema(ctx context.Context) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS interest_documents (
	id TEXT PRIMARY KEY,
	body JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`,
	}
	for _, stmt := range statements {
		if _, err := b.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("initialize interest schema: %w", err)
		}
	}
	return nil
}
