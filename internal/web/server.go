/*
   NTVbot - News Truthfulness Verification bot
   Copyright (C) 2025  Unbewohnte (Kasyanov Nikolay Alexeevich)

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU General Public License as published by
   the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU General Public License for more details.

   You should have received a copy of the GNU General Public License
   along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"Unbewohnte/NTVbot/internal/article"
	"Unbewohnte/NTVbot/internal/logging"
	"Unbewohnte/NTVbot/internal/metrics"
	"Unbewohnte/NTVbot/internal/pipeline"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const requestIDHeader = "X-Request-ID"

// Analyzer is the part of the analysis pipeline served over HTTP.
type Analyzer interface {
	Ready() bool
	Legend() string
	Verify(ctx context.Context, headline, content string) (article.Verification, error)
	VerifyURL(ctx context.Context, pageURL string) (article.Verification, error)
	FetchHeadlines(ctx context.Context, limit int) ([]article.Raw, error)
	News(ctx context.Context, limit int) ([]article.Analyzed, error)
	Analyze(ctx context.Context, articles []article.Raw) ([]article.Analyzed, error)
	Stream(ctx context.Context, articles []article.Raw) <-chan pipeline.ItemResult
}

type Config struct {
	Port         uint
	DefaultLimit int
	// MaxUploadSize bounds request bodies and uploaded spreadsheets.
	MaxUploadSize int64
}

func DefaultConfig() Config {
	return Config{
		Port:          8080,
		DefaultLimit:  10,
		MaxUploadSize: 20 << 20,
	}
}

type Server struct {
	analyzer Analyzer
	conf     Config
	logger   logging.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
	router   *mux.Router
}

func NewServer(analyzer Analyzer, conf Config, logger logging.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	if conf.DefaultLimit <= 0 {
		conf.DefaultLimit = DefaultConfig().DefaultLimit
	}
	if conf.MaxUploadSize <= 0 {
		conf.MaxUploadSize = DefaultConfig().MaxUploadSize
	}

	s := &Server{
		analyzer: analyzer,
		conf:     conf,
		logger:   logger.With(logging.String("component", "web")),
		metrics:  m,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.router = s.routes()

	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestID, s.logRequests)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/headlines", s.handleHeadlines).Methods(http.MethodGet)
	api.HandleFunc("/news", s.handleNews).Methods(http.MethodGet)
	api.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)
	api.HandleFunc("/analyze/xlsx", s.handleAnalyzeXLSX).Methods(http.MethodPost)
	api.HandleFunc("/verify", s.handleVerify).Methods(http.MethodPost)
	api.HandleFunc("/verify/url", s.handleVerifyURL).Methods(http.MethodPost)

	r.HandleFunc("/legend", s.handleLegend).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.conf.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Web server started", logging.Int("port", int(s.conf.Port)))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("Shutting down web server")
		return srv.Shutdown(shutdownCtx)
	}
}

type requestIDKey struct{}

// requestID takes the ID from the X-Request-ID header or generates one.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			// the upgrader needs the raw writer
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Debug("Request served",
			logging.String("request_id", requestIDFrom(r.Context())),
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", rec.status),
			logging.Duration("duration", time.Since(start)),
		)
	})
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: requestIDFrom(r.Context())})
}
