package matching

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/soulsync/internal/models"
	"github.com/hyperjump/soulsync/internal/storage"
	"github.com/hyperjump/soulsync/internal/vector"
)

// DefaultLimit is the number of candidates returned when the caller does not ask for a count.
const DefaultLimit = 20

// Ranker answers match queries: eligibility check, profile-ready check, nearest-neighbor
// query, similarity and confidence mapping, and the random fallback.
type Ranker struct {
	storage      storage.Storage
	vectors      vector.Store
	fallback     *Fallback
	queryTimeout atomic.Int64
	logger       *zap.Logger
}

// RankerOption configures a Ranker.
type RankerOption func(*Ranker)

// WithQueryTimeout bounds the vector store calls of one match query.
func WithQueryTimeout(d time.Duration) RankerOption {
	return func(r *Ranker) { r.SetQueryTimeout(d) }
}

// WithLogger sets the logger for fallbacks and fatal data errors.
func WithLogger(l *zap.Logger) RankerOption {
	return func(r *Ranker) { r.logger = l }
}

// NewRanker creates a Ranker. The fallback draws from st.
func NewRanker(st storage.Storage, vs vector.Store, opts ...RankerOption) *Ranker {
	r := &Ranker{
		storage:  st,
		vectors:  vs,
		fallback: NewFallback(st),
		logger:   zap.NewNop(),
	}
	r.SetQueryTimeout(10 * time.Second)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetQueryTimeout replaces the per-query timeout; zero or less disables it.
func (r *Ranker) SetQueryTimeout(d time.Duration) {
	r.queryTimeout.Store(int64(d))
}

// QueryTimeout returns the current per-query timeout.
func (r *Ranker) QueryTimeout() time.Duration {
	return time.Duration(r.queryTimeout.Load())
}

// RankMatches returns up to limit candidates for userID, best first. When no neighbor
// exists it returns exactly one fallback candidate. limit <= 0 means DefaultLimit.
func (r *Ranker) RankMatches(ctx context.Context, userID string, limit int) ([]*models.MatchCandidate, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if timeout := r.QueryTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	user, err := r.storage.GetUser(ctx, userID)
	if errors.Is(err, storage.ErrUserNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrUserNotEligible, err)
	}
	if err != nil {
		return nil, unavailable("load user", err)
	}
	if !user.Eligible() {
		return nil, ErrUserNotEligible
	}

	if _, err := r.vectors.Get(ctx, userID); err != nil {
		if errors.Is(err, vector.ErrNotFound) {
			return nil, ErrProfileNotReady
		}
		return nil, r.vectorError("load profile vector", userID, err)
	}

	neighbors, err := r.vectors.Nearest(ctx, vector.NearestQuery{
		ReferenceID:  userID,
		ExcludeID:    userID,
		EligibleOnly: true,
		Limit:        limit,
	})
	if err != nil {
		if errors.Is(err, vector.ErrNoVectorForReference) {
			return nil, ErrProfileNotReady
		}
		return nil, r.vectorError("query neighbors", userID, err)
	}

	ids := make([]string, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.UserID
	}
	users, err := r.storage.GetUsers(ctx, ids)
	if err != nil {
		return nil, unavailable("load candidates", err)
	}

	candidates := make([]*models.MatchCandidate, 0, len(neighbors))
	for _, n := range neighbors {
		u, ok := users[n.UserID]
		if !ok {
			// Removed between the two reads.
			continue
		}
		similarity := vector.Similarity(n.Distance)
		candidates = append(candidates, &models.MatchCandidate{
			UserID:            n.UserID,
			DisplayName:       u.DisplayName,
			Similarity:        similarity,
			ConfidencePercent: ToPercent(similarity),
		})
	}
	if len(candidates) == 0 {
		candidate, err := r.fallback.Pick(ctx, userID)
		if err != nil {
			return nil, err
		}
		r.logger.Debug("Serving fallback match",
			zap.String("user_id", userID),
			zap.String("candidate_id", candidate.UserID),
		)
		return []*models.MatchCandidate{candidate}, nil
	}
	return candidates, nil
}

func (r *Ranker) vectorError(op, userID string, err error) error {
	if errors.Is(err, vector.ErrDimensionMismatch) {
		r.logger.Error("Vector dimension mismatch",
			zap.String("op", op),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return fmt.Errorf("%s: %w", op, err)
	}
	return unavailable(op, err)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
