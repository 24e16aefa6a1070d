package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/hyperjump/soulsync/internal/models"
)

const userColumns = `id, display_name, looking_for_text, is_active, is_email_verified, created_at, updated_at`

// SQLStorage implements Storage on database/sql for SQLite and PostgreSQL.
type SQLStorage struct {
	db      *sql.DB
	dialect Dialect
}

// New opens storage for the given driver ("sqlite" or "postgres"). For sqlite, source is
// the database file path; for postgres it is the DSN.
func New(driver, source string) (*SQLStorage, error) {
	switch Dialect(driver) {
	case DialectSQLite:
		return NewSQLiteStorage(source)
	case DialectPostgres:
		return NewPostgresStorage(source)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLStorage, error) {
	memory := dbPath == ":memory:"
	dsn := dbPath
	if !memory {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn = "file:" + dbPath + "?_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// Every connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if _, err := db.Exec(DialectSQLite.schema()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLStorage{db: db, dialect: DialectSQLite}, nil
}

// NewPostgresStorage connects to PostgreSQL using dsn and initializes the schema.
func NewPostgresStorage(dsn string) (*SQLStorage, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, DialectPostgres.schema()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLStorage{db: db, dialect: DialectPostgres}, nil
}

// CreateUser inserts a user. CreatedAt and UpdatedAt are set to now.
func (s *SQLStorage) CreateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		user.ID, user.DisplayName, user.LookingFor, user.Active, user.EmailVerified, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create user")
	}
	return nil
}

// GetUser returns a user by ID, or ErrUserNotFound.
func (s *SQLStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user")
	}
	return user, nil
}

// GetUsers returns the users with the given IDs keyed by ID. Unknown IDs are absent from the map.
func (s *SQLStorage) GetUsers(ctx context.Context, ids []string) (map[string]*models.User, error) {
	out := make(map[string]*models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id IN (` + s.dialect.Placeholders(1, len(ids)) + `)`
	rows, err := s.db.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get users")
	}
	defer rows.Close()
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan user")
		}
		out[user.ID] = user
	}
	return out, rows.Err()
}

// UpdateUser writes display name and status flags.
func (s *SQLStorage) UpdateUser(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, s.dialect.Rebind(
		`UPDATE users SET display_name = ?, is_active = ?, is_email_verified = ?, updated_at = ?
		 WHERE id = ?`),
		user.DisplayName, user.Active, user.EmailVerified, user.UpdatedAt, user.ID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update user")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, user.ID)
	}
	return nil
}

// SetLookingFor stores the free-text preference statement.
func (s *SQLStorage) SetLookingFor(ctx context.Context, id, text string) error {
	result, err := s.db.ExecContext(ctx, s.dialect.Rebind(
		`UPDATE users SET looking_for_text = ?, updated_at = ? WHERE id = ?`),
		text, time.Now().UTC(), id,
	)
	if err != nil {
		return errors.Wrap(err, "failed to set looking_for_text")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, id)
	}
	return nil
}

// FilterEligible returns the subset of ids whose users are active and verified.
func (s *SQLStorage) FilterEligible(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := `SELECT id FROM users WHERE is_active = ` + s.dialect.Placeholders(1, 1) +
		` AND is_email_verified = ` + s.dialect.Placeholders(2, 1) +
		` AND id IN (` + s.dialect.Placeholders(3, len(ids)) + `)`
	args := append([]any{true, true}, stringArgs(ids)...)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to filter eligible users")
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan user id")
		}
		out[id] = true
	}
	return out, rows.Err()
}

// RandomEligibleUser picks a uniformly random eligible user other than excludeID.
// Returns ErrUserNotFound when no such user exists.
func (s *SQLStorage) RandomEligibleUser(ctx context.Context, excludeID string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT `+userColumns+` FROM users
		 WHERE id <> ? AND is_active = ? AND is_email_verified = ?
		 ORDER BY RANDOM() LIMIT 1`),
		excludeID, true, true,
	)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to pick random user")
	}
	return user, nil
}

// AppendAnswer inserts a ledger entry and sets its ID and CreatedAt.
func (s *SQLStorage) AppendAnswer(ctx context.Context, answer *models.AnsweredQuestion) error {
	answer.CreatedAt = time.Now().UTC()
	query := `INSERT INTO journey_answers (user_id, question_id, question, answer, created_at)
		 VALUES (?, ?, ?, ?, ?)`
	args := []any{answer.UserID, answer.QuestionID, answer.QuestionText, answer.AnswerSummary, answer.CreatedAt}
	if s.dialect == DialectPostgres {
		err := s.db.QueryRowContext(ctx, s.dialect.Rebind(query+` RETURNING id`), args...).Scan(&answer.ID)
		if err != nil {
			return errors.Wrap(err, "failed to append answer")
		}
		return nil
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "failed to append answer")
	}
	answer.ID, _ = result.LastInsertId()
	return nil
}

// ListAnswers returns a user's ledger entries in insertion order.
func (s *SQLStorage) ListAnswers(ctx context.Context, userID string) ([]*models.AnsweredQuestion, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(
		`SELECT id, user_id, question_id, question, answer, created_at
		 FROM journey_answers WHERE user_id = ? ORDER BY id`), userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list answers")
	}
	defer rows.Close()

	var answers []*models.AnsweredQuestion
	for rows.Next() {
		var a models.AnsweredQuestion
		if err := rows.Scan(&a.ID, &a.UserID, &a.QuestionID, &a.QuestionText, &a.AnswerSummary, &a.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan answer")
		}
		answers = append(answers, &a)
	}
	return answers, rows.Err()
}

// CountAnswers returns the number of ledger entries for a user.
func (s *SQLStorage) CountAnswers(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT COUNT(*) FROM journey_answers WHERE user_id = ?`), userID).Scan(&count)
	return count, errors.Wrap(err, "failed to count answers")
}

// CountUsers returns the total number of users.
func (s *SQLStorage) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, errors.Wrap(err, "failed to count users")
}

// CountEligibleUsers returns the number of active, verified users.
func (s *SQLStorage) CountEligibleUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT COUNT(*) FROM users WHERE is_active = ? AND is_email_verified = ?`), true, true).Scan(&count)
	return count, errors.Wrap(err, "failed to count eligible users")
}

// CountAnswersTotal returns the size of the whole ledger.
func (s *SQLStorage) CountAnswersTotal(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM journey_answers`).Scan(&count)
	return count, errors.Wrap(err, "failed to count answers")
}

// DB returns the underlying handle.
func (s *SQLStorage) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect of the store.
func (s *SQLStorage) Dialect() Dialect {
	return s.dialect
}

// Close closes the database connection.
func (s *SQLStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.DisplayName, &u.LookingFor, &u.Active, &u.EmailVerified, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.LookingFor = strings.TrimSpace(u.LookingFor)
	return &u, nil
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
