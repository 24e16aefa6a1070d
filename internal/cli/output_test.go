package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/soulsync/internal/models"
)

func sampleResponse() *models.MatchResponse {
	return &models.MatchResponse{
		OK:        true,
		UserID:    "me",
		QueryTime: 12,
		Matches: []*models.MatchCandidate{
			{UserID: "u1", DisplayName: "Alice", Similarity: 0.8123, ConfidencePercent: 81},
			{UserID: "u2", DisplayName: "Bob", Similarity: 0.4, ConfidencePercent: 40},
		},
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"COMPACT", OutputCompact, false},
		{" json ", OutputJSON, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWriteMatches_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMatches(&buf, sampleResponse(), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.MatchResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if !decoded.OK || decoded.UserID != "me" || len(decoded.Matches) != 2 || decoded.Matches[0].ConfidencePercent != 81 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteMatches_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMatches(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"Found 2 matches for me", "12ms", "#1 Alice (u1)", "Confidence: 81%", "Similarity: 0.8123", "#2 Bob"} {
		if !strings.Contains(out, sub) {
			t.Errorf("text output missing %q:\n%s", sub, out)
		}
	}
}

func TestWriteMatches_TextFallback(t *testing.T) {
	resp := &models.MatchResponse{OK: true, UserID: "me", Matches: []*models.MatchCandidate{
		{UserID: "r", DisplayName: "Random", ConfidencePercent: 1, Fallback: true},
	}}
	var buf bytes.Buffer
	if err := WriteMatches(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "random pick") {
		t.Errorf("fallback not marked:\n%s", buf.String())
	}
}

func TestWriteMatches_Compact(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMatches(&buf, sampleResponse(), OutputCompact); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if lines[0] != "u1\t81%\tAlice" {
		t.Errorf("line 0 = %q", lines[0])
	}
}

func TestWriteUser(t *testing.T) {
	u := &models.UserSummary{
		User:         &models.User{ID: "u1", DisplayName: "Alice", Active: true, LookingFor: "someone kind"},
		AnswerCount:  2,
		ProfileReady: false,
	}

	var buf bytes.Buffer
	if err := WriteUser(&buf, u, OutputText); err != nil {
		t.Fatal(err)
	}
	for _, sub := range []string{"ID:             u1", "Alice", "Email verified: false", "someone kind", "Answers:        2"} {
		if !strings.Contains(buf.String(), sub) {
			t.Errorf("text output missing %q:\n%s", sub, buf.String())
		}
	}

	buf.Reset()
	_ = WriteUser(&buf, u, OutputCompact)
	if buf.String() != "u1\n" {
		t.Errorf("compact = %q", buf.String())
	}

	buf.Reset()
	_ = WriteUser(&buf, u, OutputJSON)
	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["id"] != "u1" || decoded["answer_count"] != float64(2) {
		t.Errorf("json = %v", decoded)
	}
}
