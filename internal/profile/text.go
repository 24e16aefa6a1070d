package profile

import (
	"strconv"
	"strings"

	"github.com/hyperjump/soulsync/internal/models"
)

// BuildProfileText concatenates the looking-for statement and every question/answer pair,
// in ledger order, into the text that gets embedded. Identical inputs always produce
// identical text.
//
//	Looking for: <statement>
//
//	Journey Q&A:
//	Q1: <question>
//	A1: <answer>
func BuildProfileText(lookingFor string, answers []*models.AnsweredQuestion) string {
	var b strings.Builder
	b.WriteString("Looking for: ")
	b.WriteString(strings.TrimSpace(lookingFor))
	b.WriteString("\n\nJourney Q&A:")
	for i, a := range answers {
		n := strconv.Itoa(i + 1)
		b.WriteString("\nQ")
		b.WriteString(n)
		b.WriteString(": ")
		b.WriteString(a.QuestionText)
		b.WriteString("\nA")
		b.WriteString(n)
		b.WriteString(": ")
		b.WriteString(a.AnswerSummary)
	}
	return b.String()
}
