package web

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/positions", s.handleListPositions).Methods(http.MethodGet)
	api.HandleFunc("/positions", s.handleCreatePosition).Methods(http.MethodPost)
	api.HandleFunc("/positions/{id}", s.handleGetPosition).Methods(http.MethodGet)
	api.HandleFunc("/positions/{id}", s.handleDeletePosition).Methods(http.MethodDelete)
	api.HandleFunc("/positions/{id}/guidance", s.handleGuidance).Methods(http.MethodGet)
	api.HandleFunc("/positions/{id}/chart", s.handleChart).Methods(http.MethodGet)
	api.HandleFunc("/positions/{id}/transactions", s.handleListTransactions).Methods(http.MethodGet)
	api.HandleFunc("/positions/{id}/transactions", s.handleAddTransaction).Methods(http.MethodPost)
	api.HandleFunc("/positions/{id}/transactions/{txID}", s.handleDeleteTransaction).Methods(http.MethodDelete)
	api.HandleFunc("/positions/{id}/settle", s.handleSettle).Methods(http.MethodPost)
	api.HandleFunc("/positions/{id}/split", s.handleSplit).Methods(http.MethodPost)
	api.HandleFunc("/events/stream", s.handleEventStream).Methods(http.MethodGet)

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.l.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
