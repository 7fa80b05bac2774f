package proxy

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/raaihank/lexmask/internal/alias"
	"github.com/raaihank/lexmask/internal/logger"
	"github.com/raaihank/lexmask/internal/privacy"
	"go.uber.org/zap"
)

type textRequest struct {
	Text string `json:"text"`
}

type textResponse struct {
	Text string `json:"text"`
}

type blacklistRequest struct {
	Terms []string `json:"terms"`
	Raw   *string  `json:"raw"`
}

type blacklistResponse struct {
	Terms []string `json:"terms"`
}

type aliasRequest struct {
	Original string `json:"original"`
	Category string `json:"category"`
}

type aliasResponse struct {
	Token    string         `json:"token"`
	Category alias.Category `json:"category"`
}

type aliasStatsResponse struct {
	Total      int                    `json:"total"`
	Categories map[alias.Category]int `json:"categories"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes()))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeRedactError maps engine errors to HTTP status codes.
func (s *Server) writeRedactError(w http.ResponseWriter, log *logger.Logger, err error) {
	if errors.Is(err, privacy.ErrInputTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	log.Error("Redaction failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "redaction failed")
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	store := s.engine.Store()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":              "lexmask",
		"version":           s.version,
		"uptime":            time.Since(s.started).Round(time.Second).String(),
		"privacy_enabled":   s.config.Privacy.Enabled,
		"detectors":         s.engine.EnabledDetectors(),
		"ner_ready":         s.engine.NERReady(),
		"aliases":           store.Len(),
		"alias_categories":  store.CountByCategory(),
		"blacklist_terms":   len(s.engine.Blacklist().Terms()),
		"websocket_clients": s.wsHub.GetStats().ActiveConnections,
	})
}

func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decode(w, r, &req) {
		return
	}

	requestID := getRequestID(r.Context())
	start := time.Now()

	res, err := s.engine.Redact(r.Context(), req.Text)
	if err != nil {
		s.writeRedactError(w, s.logger.WithRequestID(requestID), err)
		return
	}

	if res.WasMasked {
		s.broadcastRedaction(requestID, "api", r.URL.Path, res.Findings, time.Since(start))
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, textResponse{Text: s.engine.Restore(req.Text)})
}

func (s *Server) handleReveal(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, textResponse{Text: s.engine.Reveal(req.Text)})
}

func (s *Server) handleGetBlacklist(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, blacklistResponse{Terms: s.engine.Blacklist().Terms()})
}

func (s *Server) handlePutBlacklist(w http.ResponseWriter, r *http.Request) {
	var req blacklistRequest
	if !s.decode(w, r, &req) {
		return
	}

	terms := req.Terms
	if req.Raw != nil {
		terms = privacy.ParseTerms(*req.Raw)
	}

	bl := s.engine.Blacklist()
	if err := bl.Set(r.Context(), terms); err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to update blacklist", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to persist blacklist")
		return
	}

	s.logger.Info("Blacklist updated", zap.Int("terms", len(bl.Terms())))
	writeJSON(w, http.StatusOK, blacklistResponse{Terms: bl.Terms()})
}

func (s *Server) handleCreateAlias(w http.ResponseWriter, r *http.Request) {
	var req aliasRequest
	if !s.decode(w, r, &req) {
		return
	}

	category := alias.CategoryEntity
	if req.Category != "" {
		c, err := alias.ParseCategory(req.Category)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		category = c
	}

	token, err := s.engine.Store().GetOrCreate(r.Context(), req.Original, category)
	switch {
	case errors.Is(err, alias.ErrEmptyOriginal), errors.Is(err, alias.ErrTokenOriginal):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to create alias", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to persist alias")
		return
	}

	c, _, _ := alias.ParseToken(token)
	writeJSON(w, http.StatusOK, aliasResponse{Token: token, Category: c})
}

func (s *Server) handleAliasStats(w http.ResponseWriter, r *http.Request) {
	store := s.engine.Store()
	writeJSON(w, http.StatusOK, aliasStatsResponse{
		Total:      store.Len(),
		Categories: store.CountByCategory(),
	})
}
