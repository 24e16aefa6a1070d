// Package storage defines the persistence interface for users and the answer ledger.
package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hyperjump/soulsync/internal/models"
)

// ErrUserNotFound is returned when a user lookup matches no row.
var ErrUserNotFound = errors.New("user not found")

// Storage defines user and answer ledger persistence operations.
type Storage interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUsers(ctx context.Context, ids []string) (map[string]*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	SetLookingFor(ctx context.Context, id, text string) error

	// Eligibility
	FilterEligible(ctx context.Context, ids []string) (map[string]bool, error)
	RandomEligibleUser(ctx context.Context, excludeID string) (*models.User, error)

	// Answer ledger (append-only)
	AppendAnswer(ctx context.Context, answer *models.AnsweredQuestion) error
	ListAnswers(ctx context.Context, userID string) ([]*models.AnsweredQuestion, error)
	CountAnswers(ctx context.Context, userID string) (int, error)

	// Stats
	CountUsers(ctx context.Context) (int64, error)
	CountEligibleUsers(ctx context.Context) (int64, error)
	CountAnswersTotal(ctx context.Context) (int64, error)

	// DB exposes the shared handle so SQL-backed vector stores can join against users.
	DB() *sql.DB
	Dialect() Dialect
	Close() error
}
