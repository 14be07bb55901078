package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MimeLyc/contextual-meta-translator/internal/metadata"
	"github.com/MimeLyc/contextual-meta-translator/internal/service"
)

const maxRequestBody = 1 << 20

type translateRequest struct {
	Metadata        metadata.Snapshot `json:"metadata"`
	TargetLanguages []string          `json:"target_languages"`
}

type errorResponse struct {
	Error   string          `json:"error"`
	Type    string          `json:"type,omitempty"`
	Partial *service.Result `json:"partial,omitempty"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req translateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.TargetLanguages) == 0 {
		writeError(w, http.StatusBadRequest, "target_languages is required")
		return
	}

	ctx := r.Context()
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	result, err := s.svc.Translate(ctx, req.Metadata, req.TargetLanguages)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := s.svc.CacheStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.svc.ClearCache(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusFor(errType service.ErrorType) int {
	switch errType {
	case service.ErrValidation:
		return http.StatusBadRequest
	case service.ErrQuotaExceeded:
		return http.StatusTooManyRequests
	case service.ErrNetwork, service.ErrStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	var terr *service.TranslationError
	if !errors.As(err, &terr) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, statusFor(terr.Type), errorResponse{
		Error:   terr.Message,
		Type:    terr.Type.String(),
		Partial: terr.Partial,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
