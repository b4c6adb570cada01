package httpapi

import (
	"bytes"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammarsys/captchaAPI/internal/captcha"
	"github.com/ammarsys/captchaAPI/internal/render"
	"github.com/ammarsys/captchaAPI/internal/store"
)

// stubRenderer leaks the solution into the body so wire tests can solve
// the challenge they issued.
type stubRenderer struct{}

func (stubRenderer) Render(solution string) ([]byte, error) {
	return []byte("png:" + solution), nil
}

func swapCase(s string) string {
	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z':
			b[i] = c - ('a' - 'A')
		case c >= 'A' && c <= 'Z':
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func testOptions() Options {
	return Options{
		IssuePerMin:    1000,
		CDNPerMin:      1000,
		CheckPerMin:    1000,
		AllowedOrigins: []string{"*"},
	}
}

func newTestServer(t *testing.T, renderer captcha.Renderer, opts Options) *httptest.Server {
	t.Helper()

	images := store.NewMemory[captcha.ImageRecord]()
	solutions := store.NewMemory[captcha.SolutionRecord]()
	engine := captcha.NewEngine(images, solutions, renderer, time.Minute, "")

	srv := NewServer(engine, opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts
}

func issueChallenge(t *testing.T, ts *httptest.Server, body string) IssueResponse {
	t.Helper()

	resp, err := http.Post(ts.URL+"/api/v5/captcha", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var issued IssueResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&issued))
	return issued
}

func decodeError(t *testing.T, resp *http.Response) apiError {
	t.Helper()

	var apiErr apiError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&apiErr))
	return apiErr
}

func TestIssueDefaults(t *testing.T) {
	ts := newTestServer(t, stubRenderer{}, testOptions())

	issued := issueChallenge(t, ts, "")

	assert.NotEmpty(t, issued.CDNID)
	assert.NotEmpty(t, issued.SolutionID)
	assert.NotEqual(t, issued.CDNID, issued.SolutionID)
	assert.Equal(t, ts.URL+"/api/v5/cdn/"+issued.CDNID, issued.CDNURL)
	assert.Equal(t, ts.URL+"/api/v5/check/"+issued.SolutionID, issued.SolutionCheckURL)
}

func TestIssueDefaultBudgetsAreFive(t *testing.T) {
	ts := newTestServer(t, stubRenderer{}, testOptions())
	issued := issueChallenge(t, ts, "")

	for i := 1; i <= 5; i++ {
		resp, err := http.Get(issued.CDNURL)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, "fetch %d is within the default budget", i)
	}

	resp, err := http.Get(issued.CDNURL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode, "sixth fetch exceeds the default budget")
}

func TestIssueMalformedBodyFallsBackToDefaults(t *testing.T) {
	ts := newTestServer(t, stubRenderer{}, testOptions())

	issued := issueChallenge(t, ts, "{not json at all")

	assert.NotEmpty(t, issued.CDNID)
}

func TestIssueRejectsOutOfRangeLimits(t *testing.T) {
	ts := newTestServer(t, stubRenderer{}, testOptions())

	tests := []struct {
		name string
		body string
		text string
	}{
		{"cdn zero", `{"maxCdnAccess": 0}`, "maxCdnAccess is over 20. default is 5 max is 20, min is 1"},
		{"cdn twenty", `{"maxCdnAccess": 20}`, "maxCdnAccess is over 20. default is 5 max is 20, min is 1"},
		{"check zero", `{"maxSolutionCheck": 0}`, "maxSolutionCheck is over 20. default is 5 max is 20, min is 1"},
		{"check twenty", `{"maxSolutionCheck": 20}`, "maxSolutionCheck is over 20. default is 5 max is 20, min is 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/api/v5/captcha", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			apiErr := decodeError(t, resp)
			assert.Equal(t, "error", apiErr.Type)
			assert.Equal(t, http.StatusBadRequest, apiErr.Code)
			assert.Equal(t, tt.text, apiErr.Text)
		})
	}
}

func TestIssueAcceptsBoundaryLimits(t *testing.T) {
	ts := newTestServer(t, stubRenderer{}, testOptions())

	issueChallenge(t, ts, `{"maxCdnAccess": 1, "maxSolutionCheck": 19}`)
	issueChallenge(t, ts, `{"maxCdnAccess": 19, "maxSolutionCheck": 1}`)
}

func TestImageLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t, stubRenderer{}, testOptions())
	issued := issueChallenge(t, ts, `{"maxCdnAccess": 2}`)

	var first []byte
	for i := 0; i < 2; i++ {
		resp, err := http.Get(issued.CDNURL)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
		if first == nil {
			first = body
		} else {
			assert.Equal(t, first, body, "repeat fetches must serve identical bytes")
		}
	}

	// Budget spent: the next fetch destroys the pair.
	resp, err := http.Get(issued.CDNURL)
	require.NoError(t, err)
	apiErr := decodeError(t, resp)
	resp.Body.Close()
	require.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "captcha CDN accessed too many times, now expired & deleted", apiErr.Text)

	resp, err = http.Get(issued.CDNURL)
	require.NoError(t, err)
	apiErr = decodeError(t, resp)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "cdn key not found", apiErr.Text)

	// The paired solution record went down with the image.
	resp, err = http.Post(issued.SolutionCheckURL, "application/json", strings.NewReader(`{"attempt": "x"}`))
	require.NoError(t, err)
	apiErr = decodeError(t, resp)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "solution_id not found", apiErr.Text)
}

func TestCheckSolutionOverHTTP(t *testing.T) {
	ts := newTestServer(t, stubRenderer{}, testOptions())
	issued := issueChallenge(t, ts, `{"maxSolutionCheck": 3}`)

	// The stub renderer leaks the solution after its "png:" prefix.
	resp, err := http.Get(issued.CDNURL)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	solution := strings.TrimPrefix(string(body), "png:")

	check := func(attempt string) CheckResponse {
		t.Helper()
		payload, err := json.Marshal(CheckRequest{Attempt: attempt})
		require.NoError(t, err)
		resp, err := http.Post(issued.SolutionCheckURL, "application/json", bytes.NewReader(payload))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out CheckResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	wrong := check("definitely-wrong")
	assert.False(t, wrong.CaseSensitiveCorrect)
	assert.False(t, wrong.CaseInsensitiveCorrect)

	// Swapping the case of every letter guarantees a non-identical string
	// that still matches case-insensitively.
	folded := check(swapCase(solution))
	assert.False(t, folded.CaseSensitiveCorrect)
	assert.True(t, folded.CaseInsensitiveCorrect)

	exact := check(solution)
	assert.True(t, exact.CaseSensitiveCorrect)
	assert.True(t, exact.CaseInsensitiveCorrect)
}

func TestCheckBudgetExhaustionOverHTTP(t *testing.T) {
	ts := newTestServer(t, stubRenderer{}, testOptions())
	issued := issueChallenge(t, ts, `{"maxSolutionCheck": 1}`)

	resp, err := http.Post(issued.SolutionCheckURL, "application/json", strings.NewReader(`{"attempt": "x"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(issued.SolutionCheckURL, "application/json", strings.NewReader(`{"attempt": "x"}`))
	require.NoError(t, err)
	apiErr := decodeError(t, resp)
	resp.Body.Close()
	require.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "this route has been accessed too many times. records now expired & deleted", apiErr.Text)

	// Solution-side exhaustion leaves the image record alone.
	resp, err = http.Get(issued.CDNURL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCheckWithoutAttemptStillSpendsTheCheck(t *testing.T) {
	ts := newTestServer(t, stubRenderer{}, testOptions())
	issued := issueChallenge(t, ts, `{"maxSolutionCheck": 2}`)

	// Empty and malformed bodies get the same answer and each burn a check.
	for _, body := range []string{`{}`, `{broken`} {
		resp, err := http.Post(issued.SolutionCheckURL, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		apiErr := decodeError(t, resp)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "attempt not found in HTTP json", apiErr.Text)
	}

	// Those two pokes consumed the whole budget.
	resp, err := http.Post(issued.SolutionCheckURL, "application/json", strings.NewReader(`{"attempt": "x"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}

func TestUnknownPathRedirectsHome(t *testing.T) {
	ts := newTestServer(t, stubRenderer{}, testOptions())

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Get(ts.URL + "/no/such/path")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestWrongMethodGetsJSON405(t *testing.T) {
	ts := newTestServer(t, stubRenderer{}, testOptions())

	resp, err := http.Get(ts.URL + "/api/v5/captcha")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	apiErr := decodeError(t, resp)
	assert.Equal(t, "not allowed", apiErr.Type)
	assert.Equal(t, "method not allowed", apiErr.Text)
}

func TestRateLimitAnswers429(t *testing.T) {
	opts := testOptions()
	opts.IssuePerMin = 2
	ts := newTestServer(t, stubRenderer{}, opts)

	issueChallenge(t, ts, "")
	issueChallenge(t, ts, "")

	resp, err := http.Post(ts.URL+"/api/v5/captcha", "application/json", strings.NewReader(""))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	apiErr := decodeError(t, resp)
	assert.Equal(t, "ratelimited", apiErr.Type)
	assert.Equal(t, "too fast", apiErr.Text)
}

func TestRateLimitsArePerRoute(t *testing.T) {
	opts := testOptions()
	opts.CheckPerMin = 1
	ts := newTestServer(t, stubRenderer{}, opts)

	issued := issueChallenge(t, ts, "")

	resp, err := http.Post(issued.SolutionCheckURL, "application/json", strings.NewReader(`{"attempt": "x"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(issued.SolutionCheckURL, "application/json", strings.NewReader(`{"attempt": "x"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// The check budget is gone for this client, issuing is not.
	issueChallenge(t, ts, "")
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, stubRenderer{}, testOptions())

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
}

func TestStaticPages(t *testing.T) {
	ts := newTestServer(t, stubRenderer{}, testOptions())

	for path, marker := range map[string]string{
		"/":         "captchaAPI",
		"/examples": "Examples",
	} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
		assert.Contains(t, string(body), marker)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, stubRenderer{}, testOptions())

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v5/captcha", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestForwardedProtoShapesURLs(t *testing.T) {
	ts := newTestServer(t, stubRenderer{}, testOptions())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v5/captcha", strings.NewReader(""))
	require.NoError(t, err)
	req.Header.Set("X-Forwarded-Proto", "https")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var issued IssueResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&issued))
	assert.True(t, strings.HasPrefix(issued.CDNURL, "https://"), issued.CDNURL)
}

func TestFullLifecycleWithRealRenderer(t *testing.T) {
	pipeline, err := render.NewPipeline(render.Config{})
	require.NoError(t, err)
	ts := newTestServer(t, pipeline, testOptions())

	issued := issueChallenge(t, ts, "")

	resp, err := http.Get(issued.CDNURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	bounds := img.Bounds()
	assert.Equal(t, render.DefaultWidth, bounds.Dx())
	assert.Equal(t, render.DefaultHeight, bounds.Dy())
}
