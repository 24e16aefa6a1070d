package profile

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hyperjump/soulsync/internal/config"
	"github.com/hyperjump/soulsync/internal/embedding"
	"github.com/hyperjump/soulsync/internal/metrics"
	"github.com/hyperjump/soulsync/internal/storage"
	"github.com/hyperjump/soulsync/internal/vector"
)

// Refresher recomputes a user's profile embedding from the full answer ledger and upserts it
// into the vector store. It holds no lock across the embedding call.
type Refresher struct {
	storage  storage.Storage
	vectors  vector.Store
	embedder embedding.Embedder
	policy   atomic.Pointer[Policy]
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithLogger sets the logger for skipped and failed refreshes.
func WithLogger(l *zap.Logger) RefresherOption {
	return func(r *Refresher) { r.logger = l }
}

// WithMetrics records refresh results.
func WithMetrics(m *metrics.Metrics) RefresherOption {
	return func(r *Refresher) { r.metrics = m }
}

// NewRefresher creates a Refresher with the given policy.
func NewRefresher(st storage.Storage, vs vector.Store, emb embedding.Embedder, policy Policy, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		storage:  st,
		vectors:  vs,
		embedder: emb,
		logger:   zap.NewNop(),
	}
	r.SetPolicy(policy)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetPolicy replaces the policy; safe to call while refreshes are running.
func (r *Refresher) SetPolicy(p Policy) {
	p = p.normalized()
	r.policy.Store(&p)
}

// Policy returns the current policy.
func (r *Refresher) Policy() Policy {
	return *r.policy.Load()
}

// OnAnswer is called after an answer was appended. It recomputes the embedding when the
// policy asks for it and reports whether the vector store was updated.
func (r *Refresher) OnAnswer(ctx context.Context, userID string) (bool, error) {
	count, err := r.storage.CountAnswers(ctx, userID)
	if err != nil {
		r.metrics.RecordRefresh(metrics.RefreshError)
		return false, fmt.Errorf("failed to count answers: %w", err)
	}
	policy := r.Policy()
	if !policy.ShouldEmbed(count) {
		r.metrics.RecordRefresh(metrics.RefreshSkipped)
		return false, nil
	}

	// Only threshold_only past the crossing answer depends on whether a vector exists.
	hasEmbedding := true
	if policy.Recompute == config.RecomputeThresholdOnly && count != policy.MinAnswers {
		_, err := r.vectors.Get(ctx, userID)
		switch {
		case errors.Is(err, vector.ErrNotFound):
			hasEmbedding = false
		case err != nil:
			r.metrics.RecordRefresh(metrics.RefreshError)
			return false, fmt.Errorf("failed to read embedding: %w", err)
		}
	}
	if !policy.ShouldRecompute(count, hasEmbedding) {
		r.metrics.RecordRefresh(metrics.RefreshSkipped)
		return false, nil
	}
	return r.Refresh(ctx, userID)
}

// Refresh recomputes the user's embedding from their whole history if it meets the answer
// threshold, regardless of the recompute policy. It returns false without error when the
// user has too few answers. Embedding failures wrap embedding.ErrUnavailable and leave the
// stored vector untouched.
func (r *Refresher) Refresh(ctx context.Context, userID string) (bool, error) {
	user, err := r.storage.GetUser(ctx, userID)
	if err != nil {
		r.metrics.RecordRefresh(metrics.RefreshError)
		return false, fmt.Errorf("failed to load user: %w", err)
	}
	answers, err := r.storage.ListAnswers(ctx, userID)
	if err != nil {
		r.metrics.RecordRefresh(metrics.RefreshError)
		return false, fmt.Errorf("failed to load answers: %w", err)
	}
	if !r.Policy().ShouldEmbed(len(answers)) {
		r.metrics.RecordRefresh(metrics.RefreshSkipped)
		return false, nil
	}

	text := BuildProfileText(user.LookingFor, answers)
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		if !errors.Is(err, embedding.ErrUnavailable) {
			err = fmt.Errorf("%w: %w", embedding.ErrUnavailable, err)
		}
		r.metrics.RecordRefresh(metrics.RefreshEmbedFailed)
		r.logger.Warn("Profile embedding skipped",
			zap.String("user_id", userID),
			zap.Int("answers", len(answers)),
			zap.Error(err),
		)
		return false, err
	}

	if err := r.vectors.Upsert(ctx, userID, vec); err != nil {
		r.metrics.RecordRefresh(metrics.RefreshError)
		if errors.Is(err, vector.ErrDimensionMismatch) {
			r.logger.Error("Embedding dimension does not match vector store",
				zap.String("user_id", userID),
				zap.Int("got", len(vec)),
				zap.Int("expected", r.vectors.Dimensions()),
			)
		}
		return false, fmt.Errorf("failed to store embedding: %w", err)
	}
	r.metrics.RecordRefresh(metrics.RefreshUpdated)
	r.logger.Debug("Profile embedding updated",
		zap.String("user_id", userID),
		zap.Int("answers", len(answers)),
	)
	return true, nil
}
