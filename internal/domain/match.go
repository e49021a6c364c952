package domain

// Match represents one confirmed result handed to the results page renderer.
// Optional fields are empty strings when absent; Confidence defaults to 0.
type Match struct {
	Title      string  `json:"title"`
	Confidence float64 `json:"confidence"` // similarity score in [0,1]
	Platform   string  `json:"platform"`
	Price      string  `json:"price,omitempty"`
	URL        string  `json:"url,omitempty"`
	SessionID  string  `json:"session_id"`
	Filename   string  `json:"filename"` // image file within the session folder
}

// MatchDetail represents the matcher's verdict for a single scraped image
type MatchDetail struct {
	TestImage       string  `json:"test_image"` // basename of the scraped image
	BestMatch       string  `json:"best_match"` // reference image it resembles most
	BestScore       float64 `json:"best_score"`
	IsLikelyMatch   bool    `json:"is_likely_match"`
	ConfidenceLevel string  `json:"confidence_level"`
	Platform        string  `json:"platform,omitempty"`
}

// PlatformMatchResult aggregates matcher output for one platform
type PlatformMatchResult struct {
	TotalImages   int           `json:"total_images"`
	LikelyMatches int           `json:"likely_matches"`
	MatchDetails  []MatchDetail `json:"match_details"`
	Error         string        `json:"error,omitempty"`
}

// ConfidenceLevel converts a similarity score to a human-readable label
func ConfidenceLevel(score float64) string {
	switch {
	case score > 0.90:
		return "Very Likely Match"
	case score > 0.80:
		return "Possible Match"
	case score > 0.70:
		return "Weak Match"
	default:
		return "No Match"
	}
}
