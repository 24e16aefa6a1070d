package models

// MatchCandidate is one ranked result of a match query. It is never persisted.
type MatchCandidate struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	// Similarity is 1 - distance and may fall outside [0,1].
	Similarity        float64 `json:"similarity"`
	ConfidencePercent int     `json:"confidence_percent"`
	// Fallback is set when the candidate was drawn at random because no neighbor existed.
	Fallback bool `json:"fallback,omitempty"`
}

// MatchResponse is the response for a match request.
type MatchResponse struct {
	OK        bool              `json:"ok"`
	UserID    string            `json:"user_id"`
	Matches   []*MatchCandidate `json:"matches"`
	QueryTime int64             `json:"query_time_ms"`
}
