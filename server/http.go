package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/DANIELAGORA/leiberluna/codec"
	"github.com/DANIELAGORA/leiberluna/message"
	"github.com/DANIELAGORA/leiberluna/transport"
)

const maxHTTPBody = 50 << 20

// HTTPHandler serves the companion REST surface:
//
//	GET  /health        {status, models, timestamp}
//	POST /api/generate  {prompt, model, ...options} → {response} | {error}
//	GET  /ws            WebSocket upgrade into the RPC protocol
func (s *Server) HTTPHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/generate", s.handleGenerate).Methods(http.MethodPost)
	r.HandleFunc("/ws", s.handleWebSocket)
	return r
}

// WSHandler upgrades every request path into the RPC protocol.
func (s *Server) WSHandler() http.Handler {
	r := mux.NewRouter()
	r.PathPrefix("/").HandlerFunc(s.handleWebSocket)
	return r
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	s.log.Info().Str("remote", r.RemoteAddr).Msg("websocket connection established")
	s.ServeConn(s.baseContext(), transport.NewWSConn(ws, codec.CodecTypeJSON))
	s.log.Info().Str("remote", r.RemoteAddr).Msg("websocket connection closed")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.shutdown.Load() {
		status = "shutting_down"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"models":    s.opts.Models,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// handleGenerate runs a generate call through the same middleware chain as RPC
// callers, so it shares rate limiting and retries.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxHTTPBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if !json.Valid(body) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request body is not valid JSON"})
		return
	}

	call := &message.Envelope{
		ID:     "http-" + uuid.NewString(),
		Method: message.MethodGenerate,
		Params: body,
	}
	resp := s.handle(r.Context(), call)
	if resp.Error != nil {
		writeJSON(w, httpStatus(resp.Error.Code), map[string]string{"error": resp.Error.Message})
		return
	}

	var text string
	if err := json.Unmarshal(resp.Result, &text); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": text})
}

func httpStatus(code int) int {
	switch code {
	case message.CodeInvalidParams, message.CodeInvalidRequest:
		return http.StatusBadRequest
	case message.CodeRateLimited:
		return http.StatusTooManyRequests
	case message.CodeTimeout:
		return http.StatusGatewayTimeout
	case message.CodeUnavailable, message.CodeCircuitOpen:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
