package repositories

import (
	"context"

	"github.com/bimmatch/guard/internal/database"
	"github.com/bimmatch/guard/internal/models"
)

// PostgresStore keeps documents in the documents table as jsonb.
// updated_at is assigned by the server on every write.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get loads the document stored under key
func (s *PostgresStore) Get(ctx context.Context, key string) (models.Document, error) {
	query := `SELECT body FROM documents WHERE key = $1`

	var body []byte
	if err := s.db.Pool.QueryRow(ctx, query, key).Scan(&body); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return decodeDocument(body)
}

// Put creates or replaces the document stored under key
func (s *PostgresStore) Put(ctx context.Context, key string, doc models.Document) error {
	body, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO documents (key, body, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (key) DO UPDATE
		SET body = EXCLUDED.body, updated_at = NOW()
	`

	_, err = s.db.Pool.Exec(ctx, query, key, string(body))
	return database.MapPostgresError(err)
}

// Delete removes the document stored under key. Deleting a missing key is not an error.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM documents WHERE key = $1`

	_, err := s.db.Pool.Exec(ctx, query, key)
	return database.MapPostgresError(err)
}

func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}
