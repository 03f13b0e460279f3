// Package httpapi exposes the tracking core over HTTP. Handlers stay thin:
// decode, call the service, map the error kind to a status code.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	shared "github.com/racepulse/server/pkg"
	"github.com/racepulse/server/pkg/apperrors"
	"github.com/racepulse/server/pkg/correction"
	"github.com/racepulse/server/pkg/coursecache"
	"github.com/racepulse/server/pkg/eventdetail"
	sentryutil "github.com/racepulse/server/pkg/infrastructure/sentry"
)

// maxGPXBytes bounds course uploads; 20MB covers multi-day ultra tracks.
const maxGPXBytes = 20 << 20

// DefaultLeaderboardSize is the page size when the query omits one.
const DefaultLeaderboardSize = 10

// Server wires the route tree over the core services.
type Server struct {
	Courses     *coursecache.Cache
	Correction  *correction.Service
	EventDetail *eventdetail.Service
	Board       shared.Leaderboard
	LiveStore   shared.LiveStore
	Logger      *slog.Logger
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/courses/{eventID}/{eventDetailID}", s.handleUploadCourse)
		r.Get("/courses/{eventID}/{eventDetailID}", s.handleGetCourse)
		r.Delete("/courses/{eventID}/{eventDetailID}", s.handleInvalidateCourse)

		r.Post("/locations", s.handleCorrectLocation)
		r.Get("/events/{eventID}/details/{eventDetailID}", s.handleGetEventDetail)
		r.Get("/leaderboards/{eventDetailID}", s.handleLeaderboard)
		r.Post("/admin/reset", s.handleReset)
	})

	return r
}

func (s *Server) handleUploadCourse(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxGPXBytes))
	if err != nil {
		s.writeError(w, r, apperrors.InvalidInput("read request body: %v", err))
		return
	}

	summary, err := s.Courses.UploadCourse(r.Context(),
		chi.URLParam(r, "eventID"), chi.URLParam(r, "eventDetailID"), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, summary)
}

func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	c, err := s.Courses.GetCourse(r.Context(),
		chi.URLParam(r, "eventID"), chi.URLParam(r, "eventDetailID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleInvalidateCourse(w http.ResponseWriter, r *http.Request) {
	err := s.Courses.Invalidate(r.Context(),
		chi.URLParam(r, "eventID"), chi.URLParam(r, "eventDetailID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCorrectLocation(w http.ResponseWriter, r *http.Request) {
	var req correction.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperrors.InvalidInput("decode request: %v", err))
		return
	}

	resp, err := s.Correction.CorrectLocation(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetEventDetail(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	resp, err := s.EventDetail.GetEventDetail(r.Context(), userID,
		chi.URLParam(r, "eventID"), chi.URLParam(r, "eventDetailID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleLeaderboard serves the top list by default; with userId it returns the
// window around that user (before/after default to 2).
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	eventDetailID := chi.URLParam(r, "eventDetailID")
	q := r.URL.Query()

	if userID := q.Get("userId"); userID != "" {
		before := queryInt(q.Get("before"), 2)
		after := queryInt(q.Get("after"), 2)
		entries, err := s.Board.RangeAround(r.Context(), eventDetailID, userID, before, after)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
		return
	}

	n := queryInt(q.Get("n"), DefaultLeaderboardSize)
	entries, err := s.Board.Top(r.Context(), eventDetailID, n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// handleReset clears all live tracking state: locations, splits, rankings.
// Course data and the read model are untouched.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	locations, err := s.LiveStore.Reset(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	boards, err := s.Board.Reset(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Logger.Info("live state reset", "records", locations, "leaderboards", boards)
	s.writeJSON(w, http.StatusOK, map[string]int64{
		"recordsDeleted":      locations,
		"leaderboardsDeleted": boards,
	})
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Logger.Error("failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperrors.KindOf(err)
	status := statusFor(kind)

	msg := err.Error()
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}

	if status >= 500 {
		s.Logger.Error("request failed", "path", r.URL.Path, "kind", kind.String(), "error", err)
		sentryutil.CaptureException(err, map[string]interface{}{
			"path": r.URL.Path,
			"kind": kind.String(),
		}, s.Logger)
	} else {
		s.Logger.Warn("request rejected", "path", r.URL.Path, "kind", kind.String(), "error", err)
	}

	s.writeJSON(w, status, errorResponse{Error: msg, Kind: kind.String()})
}

func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindInvalidInput, apperrors.KindInvalidGPX:
		return http.StatusBadRequest
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindDeadline:
		return http.StatusGatewayTimeout
	case apperrors.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
