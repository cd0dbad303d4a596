// Package server exposes imports and the transaction edit path over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/cleared-dev/tally/internal/ingest"
	"github.com/cleared-dev/tally/internal/model"
)

// MaxUploadSize caps the body of POST /api/import.
const MaxUploadSize = 10 << 20

// Importer imports one file. *ingest.Coordinator satisfies it.
type Importer interface {
	ImportFile(ctx context.Context, filename string, content []byte) (ingest.Result, error)
}

// Store is the read and manual-edit side the handlers need.
// store.Admin satisfies it.
type Store interface {
	FindAccountByName(ctx context.Context, name string) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
	ListImports(ctx context.Context) ([]model.ImportRecord, error)
	ListTransactions(ctx context.Context, accountID string) ([]model.StoredTransaction, error)
	EditTransaction(ctx context.Context, id string, edit model.TransactionEdit) (*model.StoredTransaction, error)
}

// Options configures a Server.
type Options struct {
	// RepoRoot, when set, receives an import log row per upload.
	RepoRoot       string
	AllowedOrigins []string
}

// Server routes the HTTP API.
type Server struct {
	importer Importer
	store    Store
	opts     Options
	logger   *slog.Logger
	router   *mux.Router
}

// New creates a Server with its routes registered.
func New(imp Importer, s Store, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		importer: imp,
		store:    s,
		opts:     opts,
		logger:   logger,
		router:   mux.NewRouter(),
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/import", s.handleImport).Methods(http.MethodPost)
	api.HandleFunc("/imports", s.handleListImports).Methods(http.MethodGet)
	api.HandleFunc("/accounts", s.handleListAccounts).Methods(http.MethodGet)
	api.HandleFunc("/transactions", s.handleListTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", s.handleEditTransaction).Methods(http.MethodPatch)
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPatch,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	})
	return c.Handler(s.router)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}
