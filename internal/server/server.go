package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fwdctl/internal/forward"
	"fwdctl/pkg/logging"
)

const shutdownTimeout = 5 * time.Second

// Forwards is the supervisor surface the API exposes.
type Forwards interface {
	Add(def forward.Definition) forward.Definition
	Remove(id string)
	Edit(def forward.Definition) (forward.Definition, bool)
	Start(id string)
	Stop(id string)
	Snapshot(id string) (forward.Snapshot, bool)
	Snapshots() []forward.Snapshot
	LiveCount() int
}

// Options configure a Server.
type Options struct {
	Address  string
	Version  string
	Gatherer prometheus.Gatherer // nil serves the default registry
}

// Server is the daemon's local control API.
type Server struct {
	engine  *echo.Echo
	handler *Handler
	address string
}

// New builds the echo engine and registers all routes.
func New(forwards Forwards, opts Options) *Server {
	engine := echo.New()
	engine.HideBanner = true
	engine.HidePort = true

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h := NewHandler(forwards, opts.Version)
	h.SetupRoutes(engine, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &Server{engine: engine, handler: h, address: opts.Address}
}

// ServeHTTP lets the server be driven directly, mainly by tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// Run serves until ctx is cancelled, then shuts the listener down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info("API", "Starting control API on %s", s.address)
		errCh <- s.engine.Start(s.address)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logging.Info("API", "Shutting down control API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.engine.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
