// Package vector stores one profile embedding per user and answers nearest-neighbor queries.
package vector

import (
	"context"
	"errors"
	"sort"

	"github.com/hyperjump/soulsync/internal/models"
)

var (
	// ErrNotFound is returned by Get when a user has no stored vector yet.
	ErrNotFound = errors.New("vector not found")
	// ErrNoVectorForReference is returned by Nearest when the reference user has no stored vector.
	ErrNoVectorForReference = errors.New("no vector for reference user")
	// ErrDimensionMismatch indicates vectors of different dimensions were compared or stored.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Store persists one embedding per user (upsert semantics) and serves k-nearest-neighbor queries
// under Euclidean distance.
type Store interface {
	// Upsert replaces any existing vector for userID entirely.
	Upsert(ctx context.Context, userID string, vector []float32) error
	// Get returns the stored embedding or ErrNotFound.
	Get(ctx context.Context, userID string) (*models.ProfileEmbedding, error)
	// Nearest returns up to q.Limit other users ordered by ascending distance, ties by user ID.
	Nearest(ctx context.Context, q NearestQuery) ([]*Neighbor, error)
	Count(ctx context.Context) (int, error)
	Dimensions() int
	Type() string
	Close() error
}

// NearestQuery selects neighbors of ReferenceID. The reference user is always excluded;
// ExcludeID removes one more user when set.
type NearestQuery struct {
	ReferenceID  string
	ExcludeID    string
	EligibleOnly bool
	Limit        int
}

// Neighbor is a single nearest-neighbor hit.
type Neighbor struct {
	UserID   string
	Distance float64
}

// Eligibility reports which of the given user IDs are active and verified.
// storage.Storage satisfies it.
type Eligibility interface {
	FilterEligible(ctx context.Context, ids []string) (map[string]bool, error)
}

func (q NearestQuery) excludes(userID string) bool {
	return userID == q.ReferenceID || (q.ExcludeID != "" && userID == q.ExcludeID)
}

// sortAndTrim orders neighbors by distance then user ID and keeps at most limit entries.
func sortAndTrim(neighbors []*Neighbor, limit int) []*Neighbor {
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Distance != neighbors[j].Distance {
			return neighbors[i].Distance < neighbors[j].Distance
		}
		return neighbors[i].UserID < neighbors[j].UserID
	})
	if limit > 0 && len(neighbors) > limit {
		neighbors = neighbors[:limit]
	}
	return neighbors
}
