// Package web exposes the tracker over a JSON HTTP API with an SSE event stream.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/infbuy/internal/domain"
	"github.com/vadiminshakov/infbuy/internal/services/chart"
	"github.com/vadiminshakov/infbuy/internal/services/tracker"
	"go.uber.org/zap"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
	heartbeatInterval = 30 * time.Second
)

type positionService interface {
	CreatePosition(ctx context.Context, req tracker.NewPositionRequest) (*domain.Position, error)
	GetPositions(ctx context.Context) ([]*domain.Position, error)
	DeletePosition(ctx context.Context, id string) error
	Load(ctx context.Context, id string) (*tracker.Snapshot, error)
	Transactions(ctx context.Context, id string) ([]domain.Transaction, error)
	AddTransaction(ctx context.Context, id string, req tracker.NewTransactionRequest) (*tracker.TransactionResult, error)
	DeleteTransaction(ctx context.Context, id, txID string) (*tracker.Snapshot, error)
	Settle(ctx context.Context, id string, date time.Time) (*domain.Position, error)
	Split(ctx context.Context, id string, ratio decimal.Decimal, date time.Time) (*tracker.Snapshot, error)
	Guidance(ctx context.Context, id string) (*tracker.GuidanceReport, error)
}

type chartBuilder interface {
	Build(ctx context.Context, p *domain.Position, txs []domain.Transaction) (*chart.Chart, error)
}

type eventSource interface {
	Subscribe() chan domain.PositionEvent
	Unsubscribe(ch chan domain.PositionEvent)
}

// Server exposes HTTP endpoints for positions, metrics and the event stream.
type Server struct {
	Addr string

	l       *zap.Logger
	tracker positionService
	charts  chartBuilder
	events  eventSource
	metrics http.Handler
	handler http.Handler
}

// NewServer creates a new web server instance. events and metrics may be nil.
func NewServer(l *zap.Logger, addr string, svc positionService, charts chartBuilder, events eventSource, metrics http.Handler) *Server {
	s := &Server{
		Addr:    addr,
		l:       l,
		tracker: svc,
		charts:  charts,
		events:  events,
		metrics: metrics,
	}
	s.handler = s.routes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.l.Info("http server listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
