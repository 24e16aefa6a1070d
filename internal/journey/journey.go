// Package journey is the library-level entry point: user lifecycle, answer submission with
// background profile refresh, and match requests.
package journey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/soulsync/internal/embedding"
	"github.com/hyperjump/soulsync/internal/matching"
	"github.com/hyperjump/soulsync/internal/metrics"
	"github.com/hyperjump/soulsync/internal/models"
	"github.com/hyperjump/soulsync/internal/profile"
	"github.com/hyperjump/soulsync/internal/storage"
	"github.com/hyperjump/soulsync/internal/vector"
)

// ErrInvalidInput is returned for malformed requests.
var ErrInvalidInput = matching.ErrInvalidInput

// MinLookingForLength is the minimum length of a trimmed looking-for statement.
const MinLookingForLength = 3

// Limits bounds the number of candidates per match request.
type Limits struct {
	Default int
	Max     int
}

// Service coordinates storage, the profile refresher and the ranker.
type Service struct {
	storage   storage.Storage
	vectors   vector.Store
	refresher *profile.Refresher
	ranker    *matching.Ranker

	limits       atomic.Pointer[Limits]
	embedTimeout time.Duration
	queryTimeout time.Duration
	metrics      *metrics.Metrics
	logger       *zap.Logger

	refreshLocks userLocks
	wg           sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger passed down to the refresher and ranker.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics records answers, refreshes and match outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLimits sets the default and maximum candidate counts.
func WithLimits(l Limits) Option {
	return func(s *Service) { s.SetLimits(l) }
}

// WithEmbedTimeout bounds each background profile refresh.
func WithEmbedTimeout(d time.Duration) Option {
	return func(s *Service) { s.embedTimeout = d }
}

// WithQueryTimeout bounds the vector store calls of each match request.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Service) { s.queryTimeout = d }
}

// NewService wires a Service. emb should already be wrapped (see embedding.New).
func NewService(st storage.Storage, vs vector.Store, emb embedding.Embedder, policy profile.Policy, opts ...Option) *Service {
	s := &Service{
		storage:      st,
		vectors:      vs,
		embedTimeout: 30 * time.Second,
		queryTimeout: 10 * time.Second,
		logger:       zap.NewNop(),
	}
	s.SetLimits(Limits{Default: matching.DefaultLimit, Max: 100})
	for _, opt := range opts {
		opt(s)
	}
	s.refresher = profile.NewRefresher(st, vs, emb, policy,
		profile.WithLogger(s.logger),
		profile.WithMetrics(s.metrics),
	)
	s.ranker = matching.NewRanker(st, vs,
		matching.WithLogger(s.logger),
		matching.WithQueryTimeout(s.queryTimeout),
	)
	return s
}

// SetPolicy replaces the re-embedding policy.
func (s *Service) SetPolicy(p profile.Policy) {
	s.refresher.SetPolicy(p)
}

// Policy returns the current re-embedding policy.
func (s *Service) Policy() profile.Policy {
	return s.refresher.Policy()
}

// SetLimits replaces the candidate limits. Zero values keep the defaults.
func (s *Service) SetLimits(l Limits) {
	if l.Default <= 0 {
		l.Default = matching.DefaultLimit
	}
	if l.Max <= 0 {
		l.Max = 100
	}
	if l.Default > l.Max {
		l.Default = l.Max
	}
	s.limits.Store(&l)
}

// SetQueryTimeout replaces the bound on the vector store calls of each match request.
func (s *Service) SetQueryTimeout(d time.Duration) {
	s.ranker.SetQueryTimeout(d)
}

// QueryTimeout returns the current match query timeout.
func (s *Service) QueryTimeout() time.Duration {
	return s.ranker.QueryTimeout()
}

// Limits returns the current candidate limits.
func (s *Service) Limits() Limits {
	return *s.limits.Load()
}

// RegisterUser creates an active, unverified user with a generated ID.
func (s *Service) RegisterUser(ctx context.Context, displayName string) (*models.User, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, fmt.Errorf("%w: display name is required", ErrInvalidInput)
	}
	user := &models.User{
		ID:          uuid.New().String(),
		DisplayName: displayName,
		Active:      true,
	}
	if err := s.storage.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.logger.Info("User registered", zap.String("user_id", user.ID))
	return user, nil
}

// GetUser returns a user.
func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.storage.GetUser(ctx, id)
}

// VerifyUser marks the user's email as verified.
func (s *Service) VerifyUser(ctx context.Context, id string) (*models.User, error) {
	return s.updateUser(ctx, id, func(u *models.User) { u.EmailVerified = true })
}

// DeactivateUser removes the user from matching; their data is kept.
func (s *Service) DeactivateUser(ctx context.Context, id string) (*models.User, error) {
	return s.updateUser(ctx, id, func(u *models.User) { u.Active = false })
}

func (s *Service) updateUser(ctx context.Context, id string, mutate func(*models.User)) (*models.User, error) {
	user, err := s.storage.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	mutate(user)
	if err := s.storage.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// SetLookingFor stores the trimmed preference statement of an eligible user and refreshes
// the profile in the background when enough answers exist.
func (s *Service) SetLookingFor(ctx context.Context, id, text string) error {
	text = strings.TrimSpace(text)
	if len([]rune(text)) < MinLookingForLength {
		return fmt.Errorf("%w: looking-for text must be at least %d characters", ErrInvalidInput, MinLookingForLength)
	}
	if _, err := s.eligibleUser(ctx, id); err != nil {
		return err
	}
	if err := s.storage.SetLookingFor(ctx, id, text); err != nil {
		return fmt.Errorf("failed to store looking-for text: %w", err)
	}
	s.background(id, s.refresher.Refresh)
	return nil
}

// SubmitAnswer appends an answer to the user's ledger and recomputes the profile embedding
// in the background when the policy asks for it. Embedding failures never fail the call.
func (s *Service) SubmitAnswer(ctx context.Context, input *models.AnswerInput) (*models.AnsweredQuestion, error) {
	if input == nil {
		return nil, fmt.Errorf("%w: answer is required", ErrInvalidInput)
	}
	if err := input.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if _, err := s.eligibleUser(ctx, input.UserID); err != nil {
		return nil, err
	}
	answer := input.ToAnsweredQuestion()
	if err := s.storage.AppendAnswer(ctx, answer); err != nil {
		return nil, fmt.Errorf("failed to record answer: %w", err)
	}
	s.metrics.RecordAnswer()
	s.background(input.UserID, s.refresher.OnAnswer)
	return answer, nil
}

// RefreshProfile synchronously recomputes the user's embedding. It reports whether the
// vector store was updated; false without error means too few answers.
func (s *Service) RefreshProfile(ctx context.Context, id string) (bool, error) {
	if _, err := s.storage.GetUser(ctx, id); err != nil {
		return false, err
	}
	unlock := s.refreshLocks.lock(id)
	defer unlock()
	return s.refresher.Refresh(ctx, id)
}

// RequestMatches ranks candidates for the user. limit <= 0 uses the default limit and
// values above the maximum are capped.
func (s *Service) RequestMatches(ctx context.Context, id string, limit int) ([]*models.MatchCandidate, error) {
	start := time.Now()
	limits := s.Limits()
	if limit <= 0 {
		limit = limits.Default
	}
	if limit > limits.Max {
		limit = limits.Max
	}

	candidates, err := s.ranker.RankMatches(ctx, id, limit)
	s.metrics.RecordMatch(outcome(candidates, err), time.Since(start))
	if err != nil {
		if matching.KindOf(err) == matching.KindUnavailable {
			s.logger.Warn("Match query failed", zap.String("user_id", id), zap.Error(err))
		}
		return nil, err
	}
	return candidates, nil
}

// ProfileReady reports whether the user has a stored embedding.
func (s *Service) ProfileReady(ctx context.Context, id string) (bool, error) {
	_, err := s.vectors.Get(ctx, id)
	if errors.Is(err, vector.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// AnswerCount returns the number of ledger entries for the user.
func (s *Service) AnswerCount(ctx context.Context, id string) (int, error) {
	return s.storage.CountAnswers(ctx, id)
}

// Stats summarizes the stored users, answers and embeddings.
type Stats struct {
	Users         int64  `json:"users"`
	EligibleUsers int64  `json:"eligible_users"`
	Answers       int64  `json:"answers"`
	Embeddings    int    `json:"embeddings"`
	VectorStore   string `json:"vector_store"`
	Dimensions    int    `json:"embedding_dimensions"`
}

// Stats returns counts across storage and the vector store.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var (
		st  = &Stats{VectorStore: s.vectors.Type(), Dimensions: s.vectors.Dimensions()}
		err error
	)
	if st.Users, err = s.storage.CountUsers(ctx); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if st.EligibleUsers, err = s.storage.CountEligibleUsers(ctx); err != nil {
		return nil, fmt.Errorf("count eligible users: %w", err)
	}
	if st.Answers, err = s.storage.CountAnswersTotal(ctx); err != nil {
		return nil, fmt.Errorf("count answers: %w", err)
	}
	if st.Embeddings, err = s.vectors.Count(ctx); err != nil {
		return nil, fmt.Errorf("count embeddings: %w", err)
	}
	return st, nil
}

// Wait blocks until all background refreshes have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) eligibleUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.storage.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.Eligible() {
		return nil, matching.ErrUserNotEligible
	}
	return user, nil
}

// background runs fn for userID on a context detached from the request, bounded by the
// embedding timeout. Refreshes of one user run one at a time and each reads the ledger
// after taking the lock, so the last one to finish has seen every prior answer. Errors are
// logged by the refresher and dropped here.
func (s *Service) background(userID string, fn func(context.Context, string) (bool, error)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		unlock := s.refreshLocks.lock(userID)
		defer unlock()
		ctx, cancel := context.WithTimeout(context.Background(), s.embedTimeout)
		defer cancel()
		if _, err := fn(ctx, userID); err != nil && !errors.Is(err, embedding.ErrUnavailable) {
			s.logger.Warn("Profile refresh failed", zap.String("user_id", userID), zap.Error(err))
		}
	}()
}

func outcome(candidates []*models.MatchCandidate, err error) string {
	switch matching.KindOf(err) {
	case matching.KindNone:
		if len(candidates) == 1 && candidates[0].Fallback {
			return metrics.OutcomeFallback
		}
		return metrics.OutcomeMatched
	case matching.KindNotEligible:
		return metrics.OutcomeNotEligible
	case matching.KindProfileNotReady:
		return metrics.OutcomeProfileNotReady
	case matching.KindNoEligibleUsers:
		return metrics.OutcomeNoEligibleUsers
	case matching.KindUnavailable:
		return metrics.OutcomeUnavailable
	default:
		return metrics.OutcomeError
	}
}
