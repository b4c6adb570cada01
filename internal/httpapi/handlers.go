package httpapi

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/ammarsys/captchaAPI/internal/captcha"
	"github.com/ammarsys/captchaAPI/internal/logging"
)

var validate = validator.New()

//go:embed static/index.html
var indexPage []byte

//go:embed static/examples.html
var examplesPage []byte

// Engine is the slice of the challenge lifecycle the HTTP layer consumes.
type Engine interface {
	Issue(ctx context.Context, maxCDNAccess, maxSolutionCheck int) (captcha.Challenge, error)
	Retrieve(ctx context.Context, cdnID string) ([]byte, error)
	Verify(ctx context.Context, solutionID, attempt string) (captcha.Outcome, error)
}

type ChallengeController struct {
	engine Engine
}

func NewChallengeController(engine Engine) *ChallengeController {
	return &ChallengeController{engine: engine}
}

// ---------------------------------------------------------------------------------------------------- Challenge endpoints

// IssueChallenge handles POST /api/v5/captcha. The body is optional; absent
// or malformed JSON means both budgets default.
func (c *ChallengeController) IssueChallenge(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, limitErrorText(err))
		return
	}

	maxCDN := DefaultMaxCDNAccess
	if req.MaxCDNAccess != nil {
		maxCDN = *req.MaxCDNAccess
	}
	maxCheck := DefaultMaxSolutionCheck
	if req.MaxSolutionCheck != nil {
		maxCheck = *req.MaxSolutionCheck
	}

	challenge, err := c.engine.Issue(r.Context(), maxCDN, maxCheck)
	switch {
	case errors.Is(err, captcha.ErrInvalidParameter):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		logging.Logger.WithError(err).Error("Failed to issue challenge")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	base := baseURL(r)
	respondJSON(w, http.StatusOK, IssueResponse{
		CDNURL:           fmt.Sprintf("%s/api/v5/cdn/%s", base, challenge.CDNID),
		SolutionCheckURL: fmt.Sprintf("%s/api/v5/check/%s", base, challenge.SolutionID),
		CDNID:            challenge.CDNID,
		SolutionID:       challenge.SolutionID,
	})
}

// GetImage handles GET /api/v5/cdn/{cdn_id} and streams the rendered PNG.
func (c *ChallengeController) GetImage(w http.ResponseWriter, r *http.Request) {
	cdnID := mux.Vars(r)["cdn_id"]

	img, err := c.engine.Retrieve(r.Context(), cdnID)
	switch {
	case errors.Is(err, captcha.ErrExhausted):
		respondError(w, http.StatusTeapot, "captcha CDN accessed too many times, now expired & deleted")
		return
	case errors.Is(err, captcha.ErrNotFound):
		respondError(w, http.StatusBadRequest, "cdn key not found")
		return
	case err != nil:
		logging.Logger.WithError(err).Error("Failed to retrieve challenge image")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(img); err != nil {
		logging.Logger.WithError(err).Error("Failed to write image response")
	}
}

// CheckSolution handles POST /api/v5/check/{solution_id}. A malformed or
// empty body still spends one check, exactly like an empty attempt.
func (c *ChallengeController) CheckSolution(w http.ResponseWriter, r *http.Request) {
	solutionID := mux.Vars(r)["solution_id"]

	var req CheckRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	outcome, err := c.engine.Verify(r.Context(), solutionID, req.Attempt)
	switch {
	case errors.Is(err, captcha.ErrNotFound):
		respondError(w, http.StatusBadRequest, "solution_id not found")
		return
	case errors.Is(err, captcha.ErrExhausted):
		respondError(w, http.StatusTeapot, "this route has been accessed too many times. records now expired & deleted")
		return
	case errors.Is(err, captcha.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, "attempt not found in HTTP json")
		return
	case err != nil:
		logging.Logger.WithError(err).Error("Failed to verify challenge attempt")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, CheckResponse{
		CaseSensitiveCorrect:   outcome.CaseSensitiveMatch,
		CaseInsensitiveCorrect: outcome.CaseInsensitiveMatch,
	})
}

// ---------------------------------------------------------------------------------------------------- Pages & health

func (c *ChallengeController) Home(w http.ResponseWriter, r *http.Request) {
	servePage(w, indexPage)
}

func (c *ChallengeController) Examples(w http.ResponseWriter, r *http.Request) {
	servePage(w, examplesPage)
}

func (c *ChallengeController) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func servePage(w http.ResponseWriter, page []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(page); err != nil {
		logging.Logger.WithError(err).Error("Failed to write page response")
	}
}

// ---------------------------------------------------------------------------------------------------- Helpers

// limitErrorText keeps the historical wire texts for budget violations.
func limitErrorText(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Field() == "MaxSolutionCheck" {
		return "maxSolutionCheck is over 20. default is 5 max is 20, min is 1"
	}
	return "maxCdnAccess is over 20. default is 5 max is 20, min is 1"
}

// baseURL rebuilds the absolute origin the client reached us on, honouring
// a forwarding proxy's X-Forwarded-Proto.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
