package profile

import (
	"testing"

	"github.com/hyperjump/soulsync/internal/models"
)

func TestBuildProfileText(t *testing.T) {
	answers := []*models.AnsweredQuestion{
		{QuestionText: "Favourite weekend?", AnswerSummary: "Hiking"},
		{QuestionText: "Pets?", AnswerSummary: "Two cats"},
	}
	tests := []struct {
		name       string
		lookingFor string
		answers    []*models.AnsweredQuestion
		want       string
	}{
		{
			name:       "two answers",
			lookingFor: "  someone outdoorsy ",
			answers:    answers,
			want:       "Looking for: someone outdoorsy\n\nJourney Q&A:\nQ1: Favourite weekend?\nA1: Hiking\nQ2: Pets?\nA2: Two cats",
		},
		{
			name:       "no answers",
			lookingFor: "kindness",
			want:       "Looking for: kindness\n\nJourney Q&A:",
		},
		{
			name:    "empty statement",
			answers: answers[:1],
			want:    "Looking for: \n\nJourney Q&A:\nQ1: Favourite weekend?\nA1: Hiking",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildProfileText(tt.lookingFor, tt.answers)
			if got != tt.want {
				t.Errorf("BuildProfileText() =\n%q\nwant\n%q", got, tt.want)
			}
			if again := BuildProfileText(tt.lookingFor, tt.answers); again != got {
				t.Error("BuildProfileText is not deterministic")
			}
		})
	}
}

func TestBuildProfileText_OrderMatters(t *testing.T) {
	a := &models.AnsweredQuestion{QuestionText: "q1", AnswerSummary: "a1"}
	b := &models.AnsweredQuestion{QuestionText: "q2", AnswerSummary: "a2"}
	if BuildProfileText("x", []*models.AnsweredQuestion{a, b}) == BuildProfileText("x", []*models.AnsweredQuestion{b, a}) {
		t.Error("answer order must be preserved in the text")
	}
}
