// Package httpapi exposes the challenge lifecycle over HTTP: issue,
// image CDN and solution check endpoints, each behind its own per-client
// rate limit, plus static pages and a health probe.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Options carries the transport knobs the server cannot default sensibly.
type Options struct {
	IssuePerMin    int
	CDNPerMin      int
	CheckPerMin    int
	AllowedOrigins []string
}

// Server bundles the wired router with the limiter janitors it owns.
type Server struct {
	handler  http.Handler
	limiters []*rateLimiter
}

// NewServer builds the full HTTP surface around an engine. Unknown paths
// redirect home; known paths with a wrong method get a JSON 405.
func NewServer(engine Engine, opts Options) *Server {
	controller := NewChallengeController(engine)

	issueLimit := newRateLimiter(opts.IssuePerMin)
	cdnLimit := newRateLimiter(opts.CDNPerMin)
	checkLimit := newRateLimiter(opts.CheckPerMin)

	router := mux.NewRouter()
	router.Use(requestLog)

	router.Handle(RouteIssue, issueLimit.wrap(http.HandlerFunc(controller.IssueChallenge))).Methods(http.MethodPost)
	router.Handle(RouteCDN, cdnLimit.wrap(http.HandlerFunc(controller.GetImage))).Methods(http.MethodGet)
	router.Handle(RouteCheck, checkLimit.wrap(http.HandlerFunc(controller.CheckSolution))).Methods(http.MethodPost)

	router.HandleFunc(RouteHealth, controller.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc(RouteExamples, controller.Examples).Methods(http.MethodGet)
	router.HandleFunc(RouteHome, controller.Home).Methods(http.MethodGet)

	router.NotFoundHandler = requestLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, RouteHome, http.StatusFound)
	}))
	router.MethodNotAllowedHandler = requestLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondTypedError(w, http.StatusMethodNotAllowed, "not allowed", "method not allowed")
	}))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})

	return &Server{
		handler:  corsHandler.Handler(router),
		limiters: []*rateLimiter{issueLimit, cdnLimit, checkLimit},
	}
}

// Handler returns the root handler to mount on an http.Server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close stops the limiter janitors.
func (s *Server) Close() {
	for _, rl := range s.limiters {
		rl.Close()
	}
}
