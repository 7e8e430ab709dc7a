// Package api is the local control surface of the daemon: JSON routes for
// the frozen-domain list and for the clicks a toolbar would deliver, a
// management page, a websocket feed of render changes, and /metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"

	"github.com/hazyhaar/tabfreeze/freezer"
	"github.com/hazyhaar/tabfreeze/host"
	"github.com/hazyhaar/tabfreeze/idgen"
)

// Surface is the read side of what the daemon renders.
type Surface interface {
	Render(id host.TabID) (host.RenderState, bool)
	Menus() []host.MenuItem
	Subscribe(buffer int) (<-chan host.Change, func())
}

// Options configures a Server.
type Options struct {
	Freezer *freezer.Freezer
	Surface Surface
	// Gatherer backs /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
	// TokenHash is a bcrypt hash of the bearer token. Empty disables auth.
	TokenHash string
	// MaxConns caps concurrent connections in Serve. Zero means unlimited.
	MaxConns int
	Logger   *slog.Logger
	NewID    idgen.Generator
}

// Server serves the control API.
type Server struct {
	opts   Options
	logger *slog.Logger
	router chi.Router
}

// New builds the router.
func New(opts Options) (*Server, error) {
	if opts.Freezer == nil || opts.Surface == nil {
		return nil, errors.New("api: freezer and surface are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewID == nil {
		opts.NewID = idgen.Prefixed("req_", idgen.UUIDv7())
	}
	s := &Server{opts: opts, logger: opts.Logger}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(headToGet, securityHeaders, requestID(s.opts.NewID, s.logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if s.opts.TokenHash != "" {
			r.Use(requireToken(s.opts.TokenHash))
		}

		r.Get("/", s.handlePage)
		if s.opts.Gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
		}

		r.Route("/api", func(r chi.Router) {
			r.Use(maxBody(16 * 1024))

			r.Get("/domains", s.handleListDomains)
			r.Delete("/domains", s.handleResetDomains)
			r.Delete("/domains/{domain}", s.handleRemoveDomain)

			r.Get("/tabs/{id}", s.handleTab)
			r.Post("/tabs/{id}/action", s.handleAction)
			r.Post("/tabs/{id}/activate", s.handleActivate)

			r.Get("/menu", s.handleMenu)
			r.Post("/menu/{item}/click", s.handleMenuClick)

			r.Get("/events", s.handleEvents)
		})
	})
	return r
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	if s.opts.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.opts.MaxConns)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("api: listening", "addr", ln.Addr().String(), "auth", s.opts.TokenHash != "")

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("api: shutdown", "error", err)
		return err
	}
	s.logger.Info("api: stopped")
	return nil
}
