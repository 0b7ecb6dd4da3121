// Package api exposes the engine over JSON/HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"kartoteka/internal/availability"
	"kartoteka/internal/booking"
	"kartoteka/internal/ledger"
	"kartoteka/internal/model"
)

// AvailabilityQuerier answers availability queries.
type AvailabilityQuerier interface {
	Query(ctx context.Context, q availability.Query) (*availability.Result, error)
}

// Admitter admits reservations.
type Admitter interface {
	Admit(ctx context.Context, req booking.Request) (*model.Reservation, error)
}

// Ledger expands and exports ledger entries.
type Ledger interface {
	ParseRange(from, to string) (time.Time, time.Time, error)
	Window(ctx context.Context, tenantID int64, from, to time.Time) (*ledger.Window, error)
	ExportMonth(ctx context.Context, tenantID int64, month string, out io.Writer) error
}

// Auditor exports a tenant's stored tables.
type Auditor interface {
	ExportAudit(ctx context.Context, tenantID int64, out io.Writer) error
}

// Options configures the HTTP server.
type Options struct {
	Port      int
	APIKey    string
	RateRPS   float64
	RateBurst int
	// Auditor enables GET /api/audit/export when set.
	Auditor Auditor
}

type HTTPServer struct {
	availability AvailabilityQuerier
	booking      Admitter
	ledger       Ledger
	auditor      Auditor
	apiKey       string
	limiter      *clientLimiter
	logger       zerolog.Logger
	server       *http.Server
}

func NewHTTPServer(opts Options, avail AvailabilityQuerier, admit Admitter, ledgerSvc Ledger, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		availability: avail,
		booking:      admit,
		ledger:       ledgerSvc,
		auditor:      opts.Auditor,
		apiKey:       opts.APIKey,
		logger:       logger.With().Str("component", "api").Logger(),
	}
	if opts.RateRPS > 0 {
		s.limiter = newClientLimiter(opts.RateRPS, opts.RateBurst)
	}

	mux := http.NewServeMux()
	s.route(mux, "/api/availability", s.handleAvailability)
	s.route(mux, "/api/reservations", s.handleReservations)
	s.route(mux, "/api/ledger", s.handleLedger)
	s.route(mux, "/api/ledger/export", s.handleLedgerExport)
	s.route(mux, "/api/slots", s.handleSlots)
	if s.auditor != nil {
		s.route(mux, "/api/audit/export", s.handleAuditExport)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.withRequestID(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is cancelled.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctxShutdown)
	}()

	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, s.withAccessLog(pattern, s.withAuth(s.withRateLimit(h))))
}
