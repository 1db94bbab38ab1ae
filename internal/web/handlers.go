package web

import (
	"errors"
	"net/http"

	"github.com/spacesedan/tweetpulse/internal/analysis"
	"github.com/spacesedan/tweetpulse/internal/charts"
	"github.com/spacesedan/tweetpulse/internal/clients"
	"github.com/spacesedan/tweetpulse/internal/models"
	"github.com/spacesedan/tweetpulse/internal/sentiment"
)

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	sess, err := s.controller.OpenLanding(r.Context(), id)
	if err != nil {
		sendPageError(w, err)
		return
	}

	page := s.pages.landing(sess.Landing, sess.UpdatedAt.UnixNano())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.pages.render(w, PAGE_LANDING, page); err != nil {
		sendPageError(w, err)
	}
}

// handleStart navigates to the analysis screen even if scheduling the
// landing update fails.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	if err := s.controller.StartAnalysis(r.Context(), id); err != nil {
		logRequestError(r, "[Server] Failed to schedule landing update", err)
	}
	redirect(w, r, "/analyzetweets")
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	sess, err := s.controller.Session(r.Context(), id)
	if err != nil {
		sendPageError(w, err)
		return
	}

	page := analysisPageFor(sess.Analysis, s.now())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.pages.render(w, PAGE_ANALYSIS, page); err != nil {
		sendPageError(w, err)
	}
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	if _, err := s.controller.Trigger(r.Context(), id, r.PostForm.Get("username")); err != nil {
		sendPageError(w, err)
		return
	}
	redirect(w, r, "/analyzetweets")
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	if _, err := s.controller.TriggerSample(r.Context(), id, r.PostForm.Get("username")); err != nil {
		sendPageError(w, err)
		return
	}
	redirect(w, r, "/analyzetweets")
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	if _, err := s.controller.Reset(r.Context(), id); err != nil {
		sendPageError(w, err)
		return
	}
	redirect(w, r, "/analyzetweets")
}

func (s *Server) handleLandingChart(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	sess, err := s.controller.Session(r.Context(), id)
	if err != nil {
		sendPageError(w, err)
		return
	}

	w.Header().Set("Content-Type", charts.CONTENT_TYPE_SVG)
	w.Header().Set("Cache-Control", "no-store")
	err = charts.RenderPie(w, sess.Landing.Samples, charts.PieOptions{Palette: sentiment.LandingColors})
	if err != nil {
		logRequestError(r, "[Server] Failed to render landing chart", err)
	}
}

func (s *Server) handleAnalysisChart(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	sess, err := s.controller.Session(r.Context(), id)
	if err != nil {
		sendPageError(w, err)
		return
	}

	w.Header().Set("Content-Type", charts.CONTENT_TYPE_SVG)
	w.Header().Set("Cache-Control", "no-store")
	err = charts.RenderPie(w, sentiment.ToSamples(sess.Analysis.Result), charts.PieOptions{
		Palette:     sentiment.AnalysisColors,
		Placeholder: "No analysis yet",
	})
	if err != nil {
		logRequestError(r, "[Server] Failed to render analysis chart", err)
	}
}

type stateResponse struct {
	Landing  landingStateResponse `json:"landing"`
	Analysis AnalysisView         `json:"analysis"`
}

type landingStateResponse struct {
	Jittering bool           `json:"jittering"`
	Slices    []charts.Slice `json:"slices"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	id := s.sessionID(w, r)
	sess, err := s.controller.Session(r.Context(), id)
	if err != nil {
		logRequestError(r, "[Server] Failed to load session", err)
		sendError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	sendJSON(w, http.StatusOK, stateResponse{
		Landing: landingStateResponse{
			Jittering: sess.Landing.Jittering,
			Slices:    charts.Slices(sess.Landing.Samples, sentiment.LandingColors),
		},
		Analysis: NewAnalysisView(sess.Analysis),
	})
}

func (s *Server) handleAPIAnalyze(w http.ResponseWriter, r *http.Request) {
	state, err := s.controller.Analyze(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		var inputErr *analysis.InputError
		switch {
		case errors.As(err, &inputErr):
			sendError(w, http.StatusBadRequest, inputErr.Message)
		case clients.IsCanceled(err):
			// client went away
		default:
			logRequestError(r, "[Server] Analyze failed", err)
			sendError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	status := http.StatusOK
	if state.Failure == models.FailureFetch {
		status = http.StatusBadGateway
	}
	sendJSON(w, status, NewAnalysisView(state))
}

type healthResponse struct {
	Status   string `json:"status"`
	Upstream string `json:"upstream,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.opts.UpstreamHealthy == nil {
		sendJSON(w, http.StatusOK, healthResponse{Status: "ready"})
		return
	}
	if !s.opts.UpstreamHealthy.Load() {
		sendJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Upstream: "unhealthy"})
		return
	}
	sendJSON(w, http.StatusOK, healthResponse{Status: "ready", Upstream: "healthy"})
}
