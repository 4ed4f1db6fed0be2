package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/truptisatsangi/robo-defi-advisor/internal/engine"
	"github.com/truptisatsangi/robo-defi-advisor/internal/model"
)

// maxBodyBytes bounds request bodies; evaluate requests carry whole pool lists
const maxBodyBytes = 10 << 20

// AdviseRequest asks the engine to pick from the configured catalog
type AdviseRequest struct {
	Criteria model.Criteria `json:"criteria"`
}

// EvaluateRequest asks the engine to pick from caller-supplied pools
type EvaluateRequest struct {
	Criteria model.Criteria `json:"criteria"`
	Pools    []model.Pool   `json:"pools"`
}

// ErrorResponse is the body of every request-level failure
type ErrorResponse struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// apiHandler wraps a decision endpoint with the request id, rate limiting, the
// API key check and request metrics. h returns the status label to record.
func (s *Server) apiHandler(endpoint string, h func(w http.ResponseWriter, r *http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		r = r.WithContext(engine.WithRequestID(r.Context(), requestID))

		status := s.serveAPI(w, r, h)

		s.metrics.requestCounter.WithLabelValues(endpoint, status).Inc()
		s.metrics.requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

func (s *Server) serveAPI(w http.ResponseWriter, r *http.Request, h func(w http.ResponseWriter, r *http.Request) string) string {
	if r.Method != http.MethodPost {
		s.errorResponse(w, r, http.StatusMethodNotAllowed, "Method not allowed")
		return "error"
	}
	if s.rateLimit != nil && !s.rateLimit.Allow() {
		s.errorResponse(w, r, http.StatusTooManyRequests, "Rate limit exceeded")
		return "rate_limited"
	}
	if !s.authorized(r) {
		s.errorResponse(w, r, http.StatusUnauthorized, "Missing or invalid API key")
		return "unauthorized"
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return h(w, r)
}

// authorized checks X-API-Key against the configured keys; no keys means open access
func (s *Server) authorized(r *http.Request) bool {
	if len(s.apiKeys) == 0 {
		return true
	}
	given := []byte(r.Header.Get("X-API-Key"))
	if len(given) == 0 {
		return false
	}
	for _, key := range s.apiKeys {
		if subtle.ConstantTimeCompare(given, []byte(key)) == 1 {
			return true
		}
	}
	return false
}

func (s *Server) handleAdvise(w http.ResponseWriter, r *http.Request) string {
	var req AdviseRequest
	if err := decodeJSON(r, &req); err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return "error"
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	return s.respondDecision(w, s.engine.Advise(ctx, req.Criteria))
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) string {
	var req EvaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.errorResponse(w, r, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return "error"
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	return s.respondDecision(w, s.engine.Evaluate(ctx, req.Criteria, req.Pools))
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.config.RequestTimeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.config.RequestTimeout)
}

// respondDecision always answers 200: a decision without a selection is a
// valid result and carries its own error message
func (s *Server) respondDecision(w http.ResponseWriter, d model.Decision) string {
	writeJSON(w, http.StatusOK, d)
	if d.Success {
		return "success"
	}
	return "no_selection"
}

// handleHealth is a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"version":   version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleMetrics exposes Prometheus metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// handleStatus provides detailed service status information
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "operational",
		"uptime":  time.Since(s.startTime).String(),
		"version": version,
		"configuration": map[string]interface{}{
			"catalog_mode":    s.config.CatalogMode,
			"fact_store":      s.config.FactStoreURL,
			"fact_timeout":    s.config.FactTimeout.String(),
			"request_timeout": s.config.RequestTimeout.String(),
			"max_concurrency": s.config.MaxConcurrency,
			"default_top_n":   s.config.DefaultTopN,
		},
	}

	if s.breaker != nil {
		status["circuit_state"] = s.breaker.GetState().String()
	}
	if s.runner != nil {
		started, failed := s.runner.Stats()
		status["background_tasks"] = map[string]int64{"started": started, "failed": failed}
	}

	writeJSON(w, http.StatusOK, status)
}

// handleCircuitStatus allows viewing and resetting the fact store circuit breaker
func (s *Server) handleCircuitStatus(w http.ResponseWriter, r *http.Request) {
	if s.breaker == nil {
		s.errorResponse(w, r, http.StatusServiceUnavailable, "Circuit breaker not enabled")
		return
	}

	response := map[string]interface{}{}

	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		if r.URL.Query().Get("action") != "reset" {
			s.errorResponse(w, r, http.StatusBadRequest, "Unknown action")
			return
		}
		s.breaker.Reset()
		response["message"] = "Circuit breaker reset"
		logrus.Info("Fact store circuit breaker reset via API")
	default:
		s.errorResponse(w, r, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	response["state"] = s.breaker.GetState().String()
	response["failures"] = s.breaker.Failures()
	writeJSON(w, http.StatusOK, response)
}

// errorResponse writes the JSON error body used by every endpoint
func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, statusCode int, errorMsg string) {
	requestID := engine.RequestID(r.Context())
	logrus.WithFields(logrus.Fields{
		"path":       r.URL.Path,
		"status":     statusCode,
		"request_id": requestID,
	}).Warn(errorMsg)

	writeJSON(w, statusCode, ErrorResponse{
		Status:    "error",
		Error:     errorMsg,
		RequestID: requestID,
	})
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}
