// Package profile builds profile texts from a user's journey and keeps their embeddings current.
package profile

import (
	"fmt"

	"github.com/hyperjump/soulsync/internal/config"
)

// DefaultMinAnswers is the number of journey answers required before a profile is embedded.
const DefaultMinAnswers = 3

// Policy decides when a user's profile embedding is (re)computed.
type Policy struct {
	// MinAnswers is the answer count at which a profile becomes embeddable.
	MinAnswers int
	// Recompute is config.RecomputeEveryAnswer or config.RecomputeThresholdOnly.
	Recompute string
}

// DefaultPolicy embeds once three answers exist and recomputes on every answer after that.
func DefaultPolicy() Policy {
	return Policy{MinAnswers: DefaultMinAnswers, Recompute: config.RecomputeEveryAnswer}
}

// PolicyFromConfig builds a Policy from the matching section of the config.
func PolicyFromConfig(cfg config.MatchingConfig) Policy {
	p := Policy{MinAnswers: cfg.MinAnswers, Recompute: cfg.Recompute}
	return p.normalized()
}

// Validate reports an unusable policy.
func (p Policy) Validate() error {
	if p.MinAnswers < 1 {
		return fmt.Errorf("min answers must be at least 1, got %d", p.MinAnswers)
	}
	switch p.Recompute {
	case config.RecomputeEveryAnswer, config.RecomputeThresholdOnly:
		return nil
	default:
		return fmt.Errorf("unknown recompute policy: %q", p.Recompute)
	}
}

// ShouldEmbed reports whether answerCount is enough history to embed a profile.
func (p Policy) ShouldEmbed(answerCount int) bool {
	return answerCount >= p.normalized().MinAnswers
}

// ShouldRecompute reports whether a new answer bringing the total to answerCount should
// trigger a recomputation. With threshold_only, only the crossing answer recomputes, unless
// no embedding exists yet (an earlier attempt failed).
func (p Policy) ShouldRecompute(answerCount int, hasEmbedding bool) bool {
	p = p.normalized()
	if !p.ShouldEmbed(answerCount) {
		return false
	}
	if p.Recompute == config.RecomputeThresholdOnly {
		return answerCount == p.MinAnswers || !hasEmbedding
	}
	return true
}

func (p Policy) normalized() Policy {
	if p.MinAnswers < 1 {
		p.MinAnswers = DefaultMinAnswers
	}
	if p.Recompute == "" {
		p.Recompute = config.RecomputeEveryAnswer
	}
	return p
}
