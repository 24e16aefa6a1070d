package vector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/hyperjump/soulsync/internal/models"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS user_embeddings (
		user_id TEXT PRIMARY KEY,
		vector BLOB NOT NULL,
		dimensions INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);
	`

// SQLiteStore keeps embeddings as little-endian float32 BLOBs next to the users table.
// Distances are computed in Go over the candidate rows; eligibility is a join against users.
type SQLiteStore struct {
	db         *sql.DB
	dimensions int
}

// NewSQLiteStore creates the embeddings table on db if needed.
func NewSQLiteStore(db *sql.DB, dimensions int) (*SQLiteStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, errors.Wrap(err, "failed to create user_embeddings table")
	}
	return &SQLiteStore{db: db, dimensions: dimensions}, nil
}

// Type returns the store type identifier.
func (s *SQLiteStore) Type() string {
	return string(StoreTypeSQLite)
}

// Dimensions returns the vector dimension the store accepts.
func (s *SQLiteStore) Dimensions() int {
	return s.dimensions
}

// Upsert replaces the user's vector.
func (s *SQLiteStore) Upsert(ctx context.Context, userID string, vector []float32) error {
	if len(vector) != s.dimensions {
		return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vector), s.dimensions)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_embeddings (user_id, vector, dimensions, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			vector = excluded.vector,
			dimensions = excluded.dimensions,
			updated_at = excluded.updated_at
	`, userID, float32SliceToBytes(vector), len(vector), time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "failed to upsert embedding")
	}
	return nil
}

// Get returns the stored embedding or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, userID string) (*models.ProfileEmbedding, error) {
	var (
		blob []byte
		dims int
		e    = &models.ProfileEmbedding{UserID: userID}
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT vector, dimensions, updated_at FROM user_embeddings WHERE user_id = ?`, userID,
	).Scan(&blob, &dims, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get embedding")
	}
	if dims != s.dimensions {
		return nil, fmt.Errorf("%w: stored %d, expected %d", ErrDimensionMismatch, dims, s.dimensions)
	}
	e.Vector = bytesToFloat32Slice(blob)
	return e, nil
}

// Nearest scans candidate rows and ranks them by L2 distance.
func (s *SQLiteStore) Nearest(ctx context.Context, q NearestQuery) ([]*Neighbor, error) {
	ref, err := s.Get(ctx, q.ReferenceID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNoVectorForReference
	}
	if err != nil {
		return nil, err
	}

	query := `SELECT e.user_id, e.vector FROM user_embeddings e`
	args := []any{q.ReferenceID}
	if q.EligibleOnly {
		query += ` JOIN users u ON u.id = e.user_id WHERE u.is_active = ? AND u.is_email_verified = ? AND e.user_id <> ?`
		args = []any{true, true, q.ReferenceID}
	} else {
		query += ` WHERE e.user_id <> ?`
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query embeddings")
	}
	defer rows.Close()

	var neighbors []*Neighbor
	for rows.Next() {
		var (
			id   string
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, errors.Wrap(err, "failed to scan embedding")
		}
		if q.excludes(id) {
			continue
		}
		d, err := L2Distance(ref.Vector, bytesToFloat32Slice(blob))
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", id, err)
		}
		neighbors = append(neighbors, &Neighbor{UserID: id, Distance: d})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read embeddings")
	}
	return sortAndTrim(neighbors, q.Limit), nil
}

// Count returns the number of stored embeddings.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_embeddings`).Scan(&n)
	return n, errors.Wrap(err, "failed to count embeddings")
}

// Close is a no-op; the database handle belongs to storage.
func (s *SQLiteStore) Close() error {
	return nil
}
