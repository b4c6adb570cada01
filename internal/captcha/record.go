package captcha

import "time"

// ImageRecord is the state behind a cdn handle. Image holds the memoized
// PNG and stays nil until the first fetch renders it; ExpiresAt mirrors
// the TTL the store enforces.
type ImageRecord struct {
	Solution    string    `json:"solution"`
	Image       []byte    `json:"image,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	AccessCount int       `json:"access_count"`
	MaxAccess   int       `json:"max_access"`
	SolutionRef string    `json:"solution_ref"`
}

// SolutionRecord is the state behind a solution handle. It carries its own
// copy of the solution text so verification never reads the image table.
type SolutionRecord struct {
	Solution   string `json:"solution"`
	CheckCount int    `json:"check_count"`
	MaxCheck   int    `json:"max_check"`
}
