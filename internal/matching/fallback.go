package matching

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/soulsync/internal/models"
	"github.com/hyperjump/soulsync/internal/storage"
)

// RandomSource picks a uniformly random eligible user other than excludeID, returning
// storage.ErrUserNotFound when there is none. storage.Storage satisfies it.
type RandomSource interface {
	RandomEligibleUser(ctx context.Context, excludeID string) (*models.User, error)
}

// Fallback supplies a single random candidate when the neighbor query finds nobody.
type Fallback struct {
	source RandomSource
}

// NewFallback creates a Fallback drawing from source.
func NewFallback(source RandomSource) *Fallback {
	return &Fallback{source: source}
}

// Pick returns a random eligible user as a candidate with zero similarity and the floor
// confidence, or ErrNoEligibleUsers when the platform has no other eligible user.
func (f *Fallback) Pick(ctx context.Context, excludeID string) (*models.MatchCandidate, error) {
	user, err := f.source.RandomEligibleUser(ctx, excludeID)
	if errors.Is(err, storage.ErrUserNotFound) {
		return nil, ErrNoEligibleUsers
	}
	if err != nil {
		return nil, fmt.Errorf("%w: pick fallback: %w", ErrUnavailable, err)
	}
	return &models.MatchCandidate{
		UserID:            user.ID,
		DisplayName:       user.DisplayName,
		Similarity:        0,
		ConfidencePercent: MinConfidence,
		Fallback:          true,
	}, nil
}
