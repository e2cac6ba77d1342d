// Package httpapi exposes the conversation manager over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/petasbytes/chatd/internal/conversation"
)

// Welcome is the plain-text body served at the root route.
const Welcome = "Welcome to the Chatbot API! Please use the /chat endpoint to interact with the chatbot."

const maxBodyBytes = 1 << 20

// TurnHandler runs one chat turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, userID, message string) (conversation.Result, error)
}

type chatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Server routes requests to a TurnHandler.
type Server struct {
	turns TurnHandler
	log   *slog.Logger
	mux   *http.ServeMux
}

// New builds the handler tree. A nil logger uses slog.Default().
func New(turns TurnHandler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		turns: turns,
		log:   logger.With("component", "http"),
		mux:   http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	return s
}

// Handler returns the mux wrapped in CORS and request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(cors(s.mux))
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(Welcome))
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}

	res, err := s.turns.HandleTurn(r.Context(), req.UserID, req.Message)
	if err != nil {
		status, msg := classify(err)
		if status >= http.StatusInternalServerError {
			s.log.Error("chat turn failed", "user_id", req.UserID, "err", err)
		}
		writeJSON(w, status, errorBody{Error: msg})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// classify maps a turn error to a status code and client message.
func classify(err error) (int, string) {
	var invalid *conversation.InvalidRequestError
	if errors.As(err, &invalid) {
		return http.StatusBadRequest, invalid.Error()
	}
	return http.StatusInternalServerError, err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
				h.Set("Access-Control-Allow-Headers", req)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
