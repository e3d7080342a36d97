package server

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
)

// NewRouter registers the API routes and middleware.
func NewRouter(api *API, logger *log.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(Recover(logger), Logging(logger))

	s := r.PathPrefix("/api").Subrouter()
	s.HandleFunc("/health", api.Health).Methods(http.MethodGet)
	s.HandleFunc("/playlists", api.ListPlaylists).Methods(http.MethodGet)
	s.HandleFunc("/sync-jobs", api.StartSync).Methods(http.MethodPost)
	s.HandleFunc("/sync-jobs", api.ListSyncJobs).Methods(http.MethodGet)
	s.HandleFunc("/sync-jobs/{id}", api.GetSyncJob).Methods(http.MethodGet)
	s.HandleFunc("/sync-jobs/{id}/tracks", api.ListTracks).Methods(http.MethodGet)
	s.HandleFunc("/sync-jobs/{id}/cancel", api.CancelSyncJob).Methods(http.MethodPost)
	s.HandleFunc("/downloads", api.ListDownloads).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Logging logs one line per request with its status and duration.
func Logging(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("http request",
				"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
		})
	}
}

// Recover turns a handler panic into a 500 response.
func Recover(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					logger.Error("handler panic", "path", r.URL.Path, "panic", v, "stack", string(debug.Stack()))
					writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
