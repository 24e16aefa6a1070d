package models

import (
	"testing"
)

func TestAnswerInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		input   *AnswerInput
		wantErr bool
	}{
		{"valid", &AnswerInput{UserID: "u1", QuestionID: "q1", QuestionText: "Q?", AnswerSummary: "A"}, false},
		{"trims whitespace", &AnswerInput{UserID: " u1 ", QuestionID: " q1", QuestionText: "Q? ", AnswerSummary: "\tA\n"}, false},
		{"missing user", &AnswerInput{QuestionID: "q1", QuestionText: "Q?", AnswerSummary: "A"}, true},
		{"missing question id", &AnswerInput{UserID: "u1", QuestionText: "Q?", AnswerSummary: "A"}, true},
		{"blank question", &AnswerInput{UserID: "u1", QuestionID: "q1", QuestionText: "  ", AnswerSummary: "A"}, true},
		{"missing answer", &AnswerInput{UserID: "u1", QuestionID: "q1", QuestionText: "Q?"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.name == "trims whitespace" {
				if tt.input.UserID != "u1" || tt.input.AnswerSummary != "A" {
					t.Errorf("fields not trimmed: %+v", tt.input)
				}
			}
		})
	}
}

func TestUser_Eligible(t *testing.T) {
	tests := []struct {
		name string
		user *User
		want bool
	}{
		{"nil", nil, false},
		{"active and verified", &User{Active: true, EmailVerified: true}, true},
		{"inactive", &User{Active: false, EmailVerified: true}, false},
		{"unverified", &User{Active: true, EmailVerified: false}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.Eligible(); got != tt.want {
				t.Errorf("Eligible() = %v, want %v", got, tt.want)
			}
		})
	}
}
