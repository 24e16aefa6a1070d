package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/soulsync/internal/matching"
	"github.com/hyperjump/soulsync/internal/models"
	"github.com/hyperjump/soulsync/internal/storage"
)

// retryAfterSeconds is sent with 503 responses.
const retryAfterSeconds = "5"

type registerRequest struct {
	DisplayName string `json:"display_name"`
}

type lookingForRequest struct {
	LookingFor string `json:"looking_for"`
}

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := s.service.RegisterUser(r.Context(), req.DisplayName)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, user)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	user, err := s.service.GetUser(ctx, id)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	count, err := s.service.AnswerCount(ctx, id)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	ready, err := s.service.ProfileReady(ctx, id)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, &models.UserSummary{User: user, AnswerCount: count, ProfileReady: ready})
}

func (s *Server) handleVerifyUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.VerifyUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.DeactivateUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleSetLookingFor(w http.ResponseWriter, r *http.Request) {
	var req lookingForRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.service.SetLookingFor(r.Context(), id, req.LookingFor); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"user_id": id, "status": "updated"})
}

func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var input models.AnswerInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	input.UserID = chi.URLParam(r, "id")
	s.logger.Debug("submit answer request", zap.String("user_id", input.UserID), zap.String("question_id", input.QuestionID))
	answer, err := s.service.SubmitAnswer(r.Context(), &input)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, answer)
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	start := time.Now()
	matches, err := s.service.RequestMatches(r.Context(), id, limit)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, &models.MatchResponse{
		OK:        true,
		UserID:    id,
		Matches:   matches,
		QueryTime: time.Since(start).Milliseconds(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		s.logger.Error("status: collect stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	policy := s.service.Policy()
	limits := s.service.Limits()
	resp := map[string]interface{}{
		"stats": stats,
	}
	configInfo := map[string]interface{}{
		"min_answers":   policy.MinAnswers,
		"recompute":     policy.Recompute,
		"default_limit": limits.Default,
		"max_limit":     limits.Max,
	}
	if cfg := s.config(); cfg != nil {
		configInfo["storage_driver"] = cfg.Storage.Driver
		configInfo["embedding_provider"] = cfg.Embedding.Provider
		configInfo["embedding_model"] = cfg.Embedding.Model
		if cfg.Storage.Driver == "sqlite" {
			configInfo["database_path"] = cfg.Storage.DatabasePath
			diskBytes, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.VectorIndexPath)
			if err == nil {
				resp["disk_usage_bytes"] = diskBytes
			}
		}
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

// respondDomainError maps an error kind onto an HTTP status.
func (s *Server) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := matching.KindOf(err)
	status := statusForKind(kind)
	message := err.Error()
	switch kind {
	case matching.KindProfileNotReady:
		message = "answer more journey questions"
	case matching.KindUnavailable:
		w.Header().Set("Retry-After", retryAfterSeconds)
		message = "temporarily unavailable, retry later"
	case matching.KindInternal:
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		message = "internal error"
	}
	s.respondJSON(w, status, map[string]string{"error": message, "kind": string(kind)})
}

func statusForKind(kind matching.Kind) int {
	switch kind {
	case matching.KindNotEligible:
		return http.StatusForbidden
	case matching.KindProfileNotReady:
		return http.StatusConflict
	case matching.KindNoEligibleUsers, matching.KindNotFound:
		return http.StatusNotFound
	case matching.KindUnavailable:
		return http.StatusServiceUnavailable
	case matching.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
