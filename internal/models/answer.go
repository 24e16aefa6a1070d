package models

import (
	"fmt"
	"strings"
	"time"
)

// AnsweredQuestion is one Answer Ledger entry. Entries are append-only.
type AnsweredQuestion struct {
	ID            int64     `json:"id" db:"id"`
	UserID        string    `json:"user_id" db:"user_id"`
	QuestionID    string    `json:"question_id" db:"question_id"`
	QuestionText  string    `json:"question" db:"question"`
	AnswerSummary string    `json:"answer_summary" db:"answer"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// AnswerInput is the input for recording an answer.
type AnswerInput struct {
	UserID        string `json:"user_id,omitempty"`
	QuestionID    string `json:"question_id"`
	QuestionText  string `json:"question"`
	AnswerSummary string `json:"answer_summary"`
}

// Validate trims the fields and returns an error naming the first empty one.
func (in *AnswerInput) Validate() error {
	in.UserID = strings.TrimSpace(in.UserID)
	in.QuestionID = strings.TrimSpace(in.QuestionID)
	in.QuestionText = strings.TrimSpace(in.QuestionText)
	in.AnswerSummary = strings.TrimSpace(in.AnswerSummary)
	switch {
	case in.UserID == "":
		return fmt.Errorf("user_id is required")
	case in.QuestionID == "":
		return fmt.Errorf("question_id is required")
	case in.QuestionText == "":
		return fmt.Errorf("question is required")
	case in.AnswerSummary == "":
		return fmt.Errorf("answer_summary is required")
	}
	return nil
}

// ToAnsweredQuestion converts a validated input into a ledger entry.
func (in *AnswerInput) ToAnsweredQuestion() *AnsweredQuestion {
	return &AnsweredQuestion{
		UserID:        in.UserID,
		QuestionID:    in.QuestionID,
		QuestionText:  in.QuestionText,
		AnswerSummary: in.AnswerSummary,
	}
}
