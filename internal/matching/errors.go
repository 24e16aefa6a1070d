// Package matching ranks match candidates for a user, maps similarity to a confidence
// percentage, and falls back to a random eligible user when no neighbors exist.
package matching

import (
	"context"
	"errors"

	"github.com/hyperjump/soulsync/internal/embedding"
	"github.com/hyperjump/soulsync/internal/storage"
)

var (
	// ErrUserNotEligible means the querying user is unknown, inactive or unverified.
	ErrUserNotEligible = errors.New("user not eligible for matching")
	// ErrProfileNotReady means the user has no profile embedding yet; they should answer more questions.
	ErrProfileNotReady = errors.New("profile not ready: answer more journey questions")
	// ErrNoEligibleUsers means no other eligible user exists on the platform.
	ErrNoEligibleUsers = errors.New("no other eligible users")
	// ErrUnavailable wraps retryable storage and timeout failures.
	ErrUnavailable = errors.New("matching temporarily unavailable")
	// ErrInvalidInput marks malformed requests.
	ErrInvalidInput = errors.New("invalid input")
)

// Kind classifies an error for presentation.
type Kind string

const (
	KindNone            Kind = ""
	KindNotEligible     Kind = "not_eligible"
	KindProfileNotReady Kind = "profile_not_ready"
	KindNoEligibleUsers Kind = "no_eligible_users"
	KindUnavailable     Kind = "unavailable"
	KindInvalidInput    Kind = "invalid_input"
	KindNotFound        Kind = "not_found"
	KindInternal        Kind = "internal"
)

// KindOf returns the kind of err. Domain sentinels take precedence over the causes they wrap.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrUserNotEligible):
		return KindNotEligible
	case errors.Is(err, ErrProfileNotReady):
		return KindProfileNotReady
	case errors.Is(err, ErrNoEligibleUsers):
		return KindNoEligibleUsers
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrUnavailable),
		errors.Is(err, embedding.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return KindUnavailable
	case errors.Is(err, storage.ErrUserNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}
