// Package cli formats match results and users for the soulsync command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/soulsync/internal/models"
	"github.com/hyperjump/soulsync/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one line per candidate.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const maxNameWidth = 32

// ParseOutputFormat accepts "", "text", "compact" and "json".
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputCompact:
		return OutputCompact, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (supported: text, compact, json)", s)
	}
}

// WriteMatches writes a match response to w in the given format.
func WriteMatches(w io.Writer, response *models.MatchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for _, m := range response.Matches {
			fmt.Fprintf(w, "%s\t%d%%\t%s\n", m.UserID, m.ConfidencePercent, m.DisplayName)
		}
		return nil
	default:
		writeMatchesText(w, response)
		return nil
	}
}

func writeMatchesText(w io.Writer, response *models.MatchResponse) {
	fmt.Fprintf(w, "\nFound %d matches for %s in %dms\n\n", len(response.Matches), response.UserID, response.QueryTime)
	for i, m := range response.Matches {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "#%d %s (%s)\n", i+1, utils.Truncate(m.DisplayName, maxNameWidth), m.UserID)
		if m.Fallback {
			fmt.Fprintf(w, "Confidence: %d%% (random pick, no close profiles yet)\n", m.ConfidencePercent)
		} else {
			fmt.Fprintf(w, "Confidence: %d%% | Similarity: %.4f\n", m.ConfidencePercent, m.Similarity)
		}
	}
	fmt.Fprintln(w)
}

// WriteUser writes a user summary to w. Compact output is the user ID alone.
func WriteUser(w io.Writer, user *models.UserSummary, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, user)
	case OutputCompact:
		fmt.Fprintln(w, user.ID)
		return nil
	}
	fmt.Fprintf(w, "ID:             %s\n", user.ID)
	fmt.Fprintf(w, "Name:           %s\n", user.DisplayName)
	fmt.Fprintf(w, "Active:         %t\n", user.Active)
	fmt.Fprintf(w, "Email verified: %t\n", user.EmailVerified)
	if user.LookingFor != "" {
		fmt.Fprintf(w, "Looking for:    %s\n", utils.Truncate(user.LookingFor, 80))
	}
	fmt.Fprintf(w, "Answers:        %d\n", user.AnswerCount)
	fmt.Fprintf(w, "Profile ready:  %t\n", user.ProfileReady)
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
