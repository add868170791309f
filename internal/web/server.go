// Package web exposes the review workflow over a JSON HTTP API.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/recallkit/recallkit/internal/domain"
	"github.com/recallkit/recallkit/internal/sm2"
	"github.com/recallkit/recallkit/internal/storage"
	"github.com/recallkit/recallkit/internal/sync"
)

// conflictRetries bounds how often a graded review is recomputed after a
// concurrent write to the same state.
const conflictRetries = 3

// Options configures a Server.
type Options struct {
	// Limit is the default cap on the due queue.
	Limit int
	// LogHistory is passed to storage on every review write.
	LogHistory bool
	// ReposDir is where git deck sources are mirrored during sync.
	ReposDir string
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	db       *storage.DB
	router   *http.ServeMux
	params   sm2.Params
	validate *validator.Validate
	opts     Options
}

// NewServer creates and configures a new server.
func NewServer(db *storage.DB, opts Options) *Server {
	s := &Server{
		db:       db,
		router:   http.NewServeMux(),
		params:   sm2.DefaultParams(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		opts:     opts,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /learners", s.handleListLearners)
	s.router.HandleFunc("POST /learners", s.handleCreateLearner)
	s.router.HandleFunc("DELETE /learners/{id}", s.handleDeleteLearner)
	s.router.HandleFunc("POST /learners/{id}/enroll", s.handleEnroll)
	s.router.HandleFunc("GET /learners/{id}/queue", s.handleQueue)
	s.router.HandleFunc("GET /learners/{id}/review/next", s.handleNextReview)
	s.router.HandleFunc("POST /learners/{id}/review/{stateID}", s.handleReview)

	s.router.HandleFunc("GET /cards/{hash}", s.handleGetCard)

	s.router.HandleFunc("GET /sources", s.handleListSources)
	s.router.HandleFunc("POST /sources", s.handleAddSource)
	s.router.HandleFunc("DELETE /sources/{id}", s.handleDeleteSource)
	s.router.HandleFunc("POST /sync", s.handleSync)
}

// stateJSON is the wire form of a memory state.
type stateJSON struct {
	ID             int64      `json:"id"`
	LearnerID      string     `json:"learner_id"`
	CardID         string     `json:"card_id"`
	DueAt          time.Time  `json:"due_at"`
	IntervalDays   int        `json:"interval_days"`
	EaseFactor     float64    `json:"ease_factor"`
	Repetitions    int        `json:"repetitions"`
	LastReviewedAt *time.Time `json:"last_reviewed_at"`
}

func toStateJSON(st domain.MemoryState) stateJSON {
	return stateJSON{
		ID:             st.ID,
		LearnerID:      st.LearnerID,
		CardID:         st.CardHash,
		DueAt:          st.DueAt,
		IntervalDays:   st.IntervalDays,
		EaseFactor:     st.EaseFactor,
		Repetitions:    st.Repetitions,
		LastReviewedAt: st.LastReviewedAt,
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("error encoding response", "error", err)
	}
}

// respondError maps the domain error taxonomy onto HTTP statuses.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("internal error", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (s *Server) handleListLearners(w http.ResponseWriter, r *http.Request) {
	learners, err := s.db.ListLearners()
	if err != nil {
		s.respondError(w, err)
		return
	}
	type learnerJSON struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
	}
	out := make([]learnerJSON, 0, len(learners))
	for _, l := range learners {
		out = append(out, learnerJSON{ID: l.ID, DisplayName: l.DisplayName})
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateLearner(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID          string `json:"id" validate:"required"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.db.CreateLearner(req.ID, req.DisplayName, time.Now()); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleDeleteLearner(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.db.GetLearner(id); err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.db.DeleteLearner(id); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEnroll seeds a memory state for every card the learner does not
// yet track.
func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.db.GetLearner(id); err != nil {
		s.respondError(w, err)
		return
	}

	n, err := s.db.EnrollLearner(id, time.Now())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int64{"enrolled": n})
}

// handleQueue returns the learner's due states, most-overdue first.
// Query parameters: limit (positive integer, defaults to the server cap)
// and filter (e.g. "tag=tables-to-9").
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	limit := s.opts.Limit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	filterExpr := r.URL.Query().Get("filter")
	// Validate the expression up front so a malformed filter is a 400, not
	// an empty result.
	if _, err := sm2.ParseFilter(filterExpr); err != nil {
		s.respondError(w, err)
		return
	}
	tag := strings.TrimPrefix(filterExpr, "tag=")

	due, err := s.db.ListDue(id, time.Now(), tag, limit)
	if err != nil {
		s.respondError(w, err)
		return
	}

	out := make([]stateJSON, 0, len(due))
	for _, st := range due {
		out = append(out, toStateJSON(st))
	}
	s.respondJSON(w, http.StatusOK, out)
}

// handleNextReview returns the front of the most overdue card, or 204 when
// nothing is due.
func (s *Server) handleNextReview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	due, err := s.db.ListDue(id, time.Now(), "", 1)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if len(due) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	st := due[0]
	card, err := s.db.FindCardByHash(st.CardHash)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if card == nil {
		s.respondError(w, domain.ErrNotFound)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"state_id": st.ID,
		"card_id":  card.Hash,
		"question": card.Question,
		"context":  card.Context,
	})
}

// handleGetCard returns the full card including the answer. Called by the
// client when the learner flips the card.
func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.db.FindCardByHash(r.PathValue("hash"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	if card == nil {
		http.NotFound(w, r)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"card_id":  card.Hash,
		"question": card.Question,
		"answer":   card.Answer,
		"context":  card.Context,
		"tags":     card.Tags,
	})
}

// handleReview grades a card. The state is re-read and the schedule
// recomputed on every conflicted write, so a lost-update race never drops
// a review silently.
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	stateID, err := strconv.ParseInt(r.PathValue("stateID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid state ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Grade string `json:"grade" validate:"required,oneof=again hard good easy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	grade, err := domain.ParseGrade(req.Grade)
	if err != nil {
		s.respondError(w, err)
		return
	}

	learnerID := r.PathValue("id")
	var next domain.MemoryState
	for attempt := 0; ; attempt++ {
		st, err := s.db.GetStateByID(stateID)
		if err != nil {
			s.respondError(w, err)
			return
		}
		if st.LearnerID != learnerID {
			s.respondError(w, domain.ErrNotFound)
			return
		}

		next, err = s.params.ApplyReview(*st, grade, time.Now())
		if err != nil {
			s.respondError(w, err)
			return
		}

		err = s.db.RecordReview(next, grade, storage.RecordOptions{LogHistory: s.opts.LogHistory})
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrConflict) || attempt+1 >= conflictRetries {
			s.respondError(w, err)
			return
		}
		slog.Warn("review write conflict, retrying", "state_id", stateID, "attempt", attempt+1)
	}

	s.respondJSON(w, http.StatusOK, toStateJSON(next))
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.db.GetAllSources()
	if err != nil {
		s.respondError(w, err)
		return
	}
	type sourceJSON struct {
		ID   int64  `json:"id"`
		Path string `json:"path"`
		Type string `json:"type"`
	}
	out := make([]sourceJSON, 0, len(sources))
	for _, src := range sources {
		out = append(out, sourceJSON{ID: src.ID, Path: src.Path, Type: src.Type})
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := s.db.InsertSource(req.Path, sync.DetectType(req.Path))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid source ID", http.StatusBadRequest)
		return
	}
	if err := s.db.DeleteSource(id); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSync runs a full source sync in the foreground.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if err := sync.Run(s.db, s.opts.ReposDir); err != nil {
		s.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
