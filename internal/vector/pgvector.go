package vector

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hyperjump/soulsync/internal/models"
)

// PGVectorStore keeps embeddings in a pgvector column and lets PostgreSQL run the
// nearest-neighbor query with the L2 operator.
type PGVectorStore struct {
	db         *sql.DB
	dimensions int
}

// NewPGVectorStore enables the vector extension and creates the embeddings table on db.
func NewPGVectorStore(db *sql.DB, dimensions int) (*PGVectorStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	stmt := `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS user_embeddings (
			user_id TEXT PRIMARY KEY REFERENCES users(id),
			journey_embedding vector(` + strconv.Itoa(dimensions) + `) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`
	if _, err := db.Exec(stmt); err != nil {
		return nil, errors.Wrap(err, "failed to create user_embeddings table")
	}
	return &PGVectorStore{db: db, dimensions: dimensions}, nil
}

// Type returns the store type identifier.
func (s *PGVectorStore) Type() string {
	return string(StoreTypePGVector)
}

// Dimensions returns the vector dimension the store accepts.
func (s *PGVectorStore) Dimensions() int {
	return s.dimensions
}

// Upsert replaces the user's vector.
func (s *PGVectorStore) Upsert(ctx context.Context, userID string, vector []float32) error {
	if len(vector) != s.dimensions {
		return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vector), s.dimensions)
	}
	stmt := `
		INSERT INTO user_embeddings (user_id, journey_embedding, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET
			journey_embedding = EXCLUDED.journey_embedding,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, stmt, userID, pgvector.NewVector(vector), time.Now().UTC()); err != nil {
		return wrapPGError(err, "failed to upsert embedding")
	}
	return nil
}

// Get returns the stored embedding or ErrNotFound.
func (s *PGVectorStore) Get(ctx context.Context, userID string) (*models.ProfileEmbedding, error) {
	var (
		vec pgvector.Vector
		e   = &models.ProfileEmbedding{UserID: userID}
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT journey_embedding, updated_at FROM user_embeddings WHERE user_id = $1`, userID,
	).Scan(&vec, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get embedding")
	}
	e.Vector = vec.Slice()
	if len(e.Vector) != s.dimensions {
		return nil, fmt.Errorf("%w: stored %d, expected %d", ErrDimensionMismatch, len(e.Vector), s.dimensions)
	}
	return e, nil
}

// Nearest orders candidates by journey_embedding <-> reference, then user_id.
func (s *PGVectorStore) Nearest(ctx context.Context, q NearestQuery) ([]*Neighbor, error) {
	ref, err := s.Get(ctx, q.ReferenceID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoVectorForReference
	}
	if err != nil {
		return nil, err
	}

	args := []any{pgvector.NewVector(ref.Vector), q.ReferenceID}
	where := []string{"e.user_id <> $2"}
	if q.ExcludeID != "" && q.ExcludeID != q.ReferenceID {
		args = append(args, q.ExcludeID)
		where = append(where, "e.user_id <> $"+strconv.Itoa(len(args)))
	}
	if q.EligibleOnly {
		where = append(where, "u.is_active", "u.is_email_verified")
	}
	query := `
		SELECT e.user_id, e.journey_embedding <-> $1 AS distance
		FROM user_embeddings e
		INNER JOIN users u ON u.id = e.user_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY distance, e.user_id`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapPGError(err, "failed to query nearest embeddings")
	}
	defer rows.Close()

	var neighbors []*Neighbor
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.UserID, &n.Distance); err != nil {
			return nil, errors.Wrap(err, "failed to scan neighbor")
		}
		neighbors = append(neighbors, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPGError(err, "failed to read neighbors")
	}
	return neighbors, nil
}

// Count returns the number of stored embeddings.
func (s *PGVectorStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_embeddings`).Scan(&n)
	return n, errors.Wrap(err, "failed to count embeddings")
}

// Close is a no-op; the database handle belongs to storage.
func (s *PGVectorStore) Close() error {
	return nil
}

// wrapPGError maps pgvector's dimension errors onto ErrDimensionMismatch.
func wrapPGError(err error, msg string) error {
	if isDimensionError(err) {
		return fmt.Errorf("%w: %s: %v", ErrDimensionMismatch, msg, err)
	}
	return errors.Wrap(err, msg)
}

func isDimensionError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "different vector dimensions") ||
		(strings.Contains(s, "expected") && strings.Contains(s, "dimensions"))
}
