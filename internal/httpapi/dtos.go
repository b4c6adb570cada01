package httpapi

// Limits applied when the issue payload omits them.
const (
	DefaultMaxCDNAccess     = 5
	DefaultMaxSolutionCheck = 5
)

// ---------------------------------------------------------------------------------------------------- Requests

// IssueRequest carries the optional per-challenge budgets. Absent fields
// fall back to the defaults; present fields must sit inside [1, 19].
type IssueRequest struct {
	MaxCDNAccess     *int `json:"maxCdnAccess" validate:"omitnil,gte=1,lte=19"`
	MaxSolutionCheck *int `json:"maxSolutionCheck" validate:"omitnil,gte=1,lte=19"`
}

type CheckRequest struct {
	Attempt string `json:"attempt"`
}

// ---------------------------------------------------------------------------------------------------- Responses

type IssueResponse struct {
	CDNURL           string `json:"cdn_url"`
	SolutionCheckURL string `json:"solution_check_url"`
	CDNID            string `json:"cdn_id"`
	SolutionID       string `json:"solution_id"`
}

type CheckResponse struct {
	CaseSensitiveCorrect   bool `json:"case_sensitive_correct"`
	CaseInsensitiveCorrect bool `json:"case_insensitive_correct"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
