// Package models defines core data structures for users, journey answers, embeddings, and match results.
package models

import "time"

// User is the identity anchor for matching.
type User struct {
	ID            string    `json:"id" db:"id"`
	DisplayName   string    `json:"display_name" db:"display_name"`
	LookingFor    string    `json:"looking_for,omitempty" db:"looking_for_text"`
	Active        bool      `json:"active" db:"is_active"`
	EmailVerified bool      `json:"email_verified" db:"is_email_verified"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Eligible reports whether the user may appear as a candidate or query for matches.
func (u *User) Eligible() bool {
	return u != nil && u.Active && u.EmailVerified
}

// ProfileEmbedding is the vector representation of a user's preferences and journey so far.
type ProfileEmbedding struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Vector    []float32 `json:"-" db:"journey_embedding"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// UserSummary is a user with its journey progress.
type UserSummary struct {
	*User
	AnswerCount  int  `json:"answer_count"`
	ProfileReady bool `json:"profile_ready"`
}
