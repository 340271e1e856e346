package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/rendercache/cache"
	"github.com/jonwraymond/rendercache/health"
	"github.com/jonwraymond/rendercache/observe"
	"github.com/jonwraymond/rendercache/revalidate"
	"github.com/jonwraymond/rendercache/scope"
)

// Config configures the admin server.
type Config struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"` // debug|release|test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RevalidateRole is the role a caller needs for /api routes.
	// Default: "revalidate"
	RevalidateRole string `mapstructure:"revalidate_role"`
}

// Deps are the components the server fronts.
type Deps struct {
	Router   *revalidate.Router
	Sessions *scope.SessionResolver
	// Keys, when set, also admits X-API-Key callers.
	Keys *scope.KeyStore
	// Health defaults to an empty aggregator.
	Health *health.Aggregator
	// Profiles, when set, is listed at /api/profiles.
	Profiles *cache.Profiles
	// Metrics serves /metrics. Default: the Prometheus default gatherer.
	Metrics http.Handler
	Logger  observe.Logger
}

// Server is the admin HTTP server.
type Server struct {
	cfg         Config
	engine      *gin.Engine
	hub         *Hub
	logger      observe.Logger
	unsubscribe func()
}

// New creates a Server and subscribes its event hub to the router.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Router == nil {
		return nil, ErrMissingRouter
	}
	if deps.Sessions == nil {
		return nil, ErrMissingSessions
	}
	if deps.Health == nil {
		deps.Health = health.NewAggregator(health.AggregatorConfig{})
	}
	if deps.Metrics == nil {
		deps.Metrics = promhttp.Handler()
	}
	if deps.Logger == nil {
		deps.Logger = observe.NopLogger()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.RevalidateRole == "" {
		cfg.RevalidateRole = "revalidate"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	logger := deps.Logger.With(observe.F("component", "server"))
	s := &Server{
		cfg:    cfg,
		engine: gin.New(),
		hub:    NewHub(logger),
		logger: logger,
	}
	s.unsubscribe = deps.Router.Subscribe(s.hub.Publish)

	s.engine.Use(gin.Recovery(), requestLog(logger))
	health.Register(s.engine, deps.Health)
	s.engine.GET("/metrics", gin.WrapH(deps.Metrics))

	api := s.engine.Group("/api/revalidate")
	api.Use(authenticate(deps.Sessions, deps.Keys, cfg.RevalidateRole, logger))
	{
		h := &revalidateHandler{router: deps.Router}
		api.POST("", h.batch)
		api.POST("/tag", h.tag)
		api.POST("/path", h.path)
		api.GET("/events", s.hub.events)
	}
	if deps.Profiles != nil {
		s.engine.GET("/api/profiles", authenticate(deps.Sessions, deps.Keys, cfg.RevalidateRole, logger), listProfiles(deps.Profiles))
	}
	return s, nil
}

type profileView struct {
	Stale      string `json:"stale"`
	Revalidate string `json:"revalidate"`
	Expire     string `json:"expire"`
}

func lifeString(d time.Duration) string {
	if d == cache.Forever {
		return "forever"
	}
	return d.String()
}

// listProfiles reports the cache-life profiles currently in effect.
func listProfiles(profiles *cache.Profiles) gin.HandlerFunc {
	return func(c *gin.Context) {
		out := make(map[string]profileView)
		for _, name := range profiles.Names() {
			p, err := profiles.Get(name)
			if err != nil {
				continue
			}
			out[name] = profileView{
				Stale:      lifeString(p.Stale),
				Revalidate: lifeString(p.Revalidate),
				Expire:     lifeString(p.Expire),
			}
		}
		c.JSON(http.StatusOK, out)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Hub returns the event hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run serves on the configured address until ctx is done, then shuts down
// within the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info(ctx, "admin server listening", observe.F("addr", ln.Addr().String()))

	select {
	case err := <-errc:
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()

	s.Close()
	err := srv.Shutdown(shutdownCtx)
	if serveErr := <-errc; !errors.Is(serveErr, http.ErrServerClosed) {
		err = errors.Join(err, serveErr)
	}
	s.logger.Info(ctx, "admin server stopped")
	return err
}

// Close unsubscribes from the router and disconnects event subscribers.
func (s *Server) Close() {
	s.unsubscribe()
	s.hub.Close()
}
