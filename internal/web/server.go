package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spacesedan/tweetpulse/internal/analysis"
	"github.com/spacesedan/tweetpulse/internal/models"
)

// Controller is implemented by analysis.Controller.
type Controller interface {
	Session(ctx context.Context, id string) (*models.Session, error)
	Trigger(ctx context.Context, id, username string) (models.AnalysisState, error)
	TriggerSample(ctx context.Context, id, username string) (models.AnalysisState, error)
	Reset(ctx context.Context, id string) (models.AnalysisState, error)
	Analyze(ctx context.Context, username string) (models.AnalysisState, error)
	OpenLanding(ctx context.Context, id string) (*models.Session, error)
	StartAnalysis(ctx context.Context, id string) error
}

var _ Controller = (*analysis.Controller)(nil)

type Options struct {
	CookieName string
	SessionTTL time.Duration
	// Nil means the upstream is never probed and /ready always succeeds.
	UpstreamHealthy *atomic.Bool
}

type Server struct {
	controller Controller
	pages      *renderer
	opts       Options
	now        func() time.Time
	handler    http.Handler
}

func NewServer(controller Controller, opts Options) (*Server, error) {
	pages, err := newRenderer()
	if err != nil {
		return nil, err
	}

	s := &Server{
		controller: controller,
		pages:      pages,
		opts:       opts,
		now:        time.Now,
	}

	mux := http.NewServeMux()
	s.routes(mux)
	s.handler = recoverer(requestLogger(mux))
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleLanding)
	mux.HandleFunc("POST /start", s.handleStart)

	mux.HandleFunc("GET /analyzetweets", s.handleAnalysis)
	mux.HandleFunc("POST /analyzetweets", s.handleTrigger)
	mux.HandleFunc("POST /analyzetweets/sample", s.handleSample)
	mux.HandleFunc("POST /analyzetweets/reset", s.handleReset)

	mux.HandleFunc("GET /charts/landing.svg", s.handleLandingChart)
	mux.HandleFunc("GET /charts/analysis.svg", s.handleAnalysisChart)

	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/analyze", s.handleAPIAnalyze)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// sessionID returns the caller's session id, issuing a new cookie when the
// request has none or carries a malformed one.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(s.opts.CookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.opts.SessionTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

type errorResponse struct {
	Error string `json:"error"`
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("[Server] Failed to encode response",
			slog.String("error", err.Error()))
	}
}

func sendError(w http.ResponseWriter, status int, msg string) {
	sendJSON(w, status, errorResponse{Error: msg})
}

func sendPageError(w http.ResponseWriter, err error) {
	slog.Error("[Server] Request failed",
		slog.String("error", err.Error()))
	http.Error(w, "Something went wrong. Please try again.", http.StatusInternalServerError)
}

func redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}
