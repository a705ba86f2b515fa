package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/marmos91/dittorepo/internal/logger"
	"github.com/marmos91/dittorepo/internal/ratelimiter"
	"github.com/marmos91/dittorepo/pkg/events"
	"github.com/marmos91/dittorepo/pkg/metrics"
	"github.com/marmos91/dittorepo/pkg/registry"
	"github.com/marmos91/dittorepo/pkg/session"
)

// SessionHeader carries the caller's session id on session-scoped requests.
const SessionHeader = "X-Session-ID"

// HTTPAdapter implements the adapter.Adapter interface over HTTP/JSON.
//
// Routes (all under /api/v1):
//
//	GET    /repositories                          names of all repositories
//	GET    /repositories/:repo                    root record
//	GET    /repositories/:repo/list               ?path=&files=true
//	GET    /repositories/:repo/mimetype           ?path=
//	GET    /repositories/:repo/exists             ?path=
//	POST   /repositories/:repo/register           {path, mimetype}
//	POST   /repositories/:repo/create             {path}
//	POST   /repositories/:repo/mkdir              {path}
//	POST   /repositories/:repo/delete             {path}
//	POST   /repositories/:repo/delete-files       {paths}
//	POST   /repositories/:repo/streams/file       {path, mode}  (session)
//	POST   /repositories/:repo/streams/file-by-id {id}          (session)
//	POST   /repositories/:repo/streams/pixels     {path}        (session)
//	POST   /sessions                              open a session
//	GET    /sessions/:id
//	DELETE /sessions/:id                          close it and its streams
//	GET    /streams/:token                        info          (session)
//	GET    /streams/:token/data                   ?offset=&length=
//	PUT    /streams/:token/data                   ?offset=, raw body
//	POST   /streams/:token/truncate               {size}
//	POST   /streams/:token/sync
//	GET    /streams/:token/dimensions
//	GET    /streams/:token/region                 ?x=&y=&w=&h=
//	DELETE /streams/:token                        release
//	GET    /events                                websocket feed
//
// Session-scoped requests must send the session id in the X-Session-ID
// header; a stream token is only honored for the session that owns it.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. http.Server.Shutdown stops the listener and waits for requests
//  3. Event feed connections are closed
type HTTPAdapter struct {
	config HTTPConfig

	registry *registry.Registry
	sessions *session.Manager
	bus      *events.Bus
	metrics  metrics.HTTPMetrics
	limiter  *ratelimiter.RateLimiter

	router   *gin.Engine
	upgrader websocket.Upgrader

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener

	boundPort    atomic.Int32
	shutdownOnce sync.Once
	shutdown     chan struct{}

	// feeds tracks open websocket connections so shutdown can close them
	feeds     sync.Map
	feedCount atomic.Int32
}

// Dependencies are the shared services the adapter serves from.
type Dependencies struct {
	// Sessions is required.
	Sessions *session.Manager

	// Events is optional; without it /events returns 501.
	Events *events.Bus

	// Metrics is optional.
	Metrics metrics.HTTPMetrics
}

// New creates an HTTP adapter. It panics on an invalid configuration or a
// missing session manager (programmer error, configuration is validated
// upstream).
func New(config HTTPConfig, deps Dependencies) *HTTPAdapter {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid HTTP config: %v", err))
	}
	if deps.Sessions == nil {
		panic("http adapter requires a session manager")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoopHTTPMetrics()
	}

	a := &HTTPAdapter{
		config:   config,
		sessions: deps.Sessions,
		bus:      deps.Events,
		metrics:  deps.Metrics,
		limiter:  ratelimiter.New(config.RateLimit.RequestsPerSecond, config.RateLimit.Burst, config.RateLimit.MaxClients),
		shutdown: make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	a.router = a.routes()

	if a.limiter.Enabled() {
		logger.Debug("HTTP rate limit: %d req/s per client (burst %d)",
			config.RateLimit.RequestsPerSecond, config.RateLimit.Burst)
	}
	return a
}

// SetRegistry injects the shared registry.
func (a *HTTPAdapter) SetRegistry(reg *registry.Registry) {
	a.registry = reg
	logger.Debug("HTTP adapter registry configured (%d repositories)", reg.CountRepositories())
}

// Handler exposes the router, mainly for tests.
func (a *HTTPAdapter) Handler() http.Handler {
	return a.router
}

// Serve listens on the configured port and blocks until ctx is cancelled or
// Stop is called.
func (a *HTTPAdapter) Serve(ctx context.Context) error {
	if a.registry == nil {
		return fmt.Errorf("http adapter: registry not set")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", a.config.Port))
	if err != nil {
		return fmt.Errorf("failed to create HTTP listener on port %d: %w", a.config.Port, err)
	}

	server := &http.Server{
		Handler:      a.router,
		ReadTimeout:  a.config.ReadTimeout,
		WriteTimeout: a.config.WriteTimeout,
		IdleTimeout:  a.config.IdleTimeout,
	}

	a.mu.Lock()
	a.listener = listener
	a.server = server
	a.mu.Unlock()

	a.boundPort.Store(int32(listener.Addr().(*net.TCPAddr).Port))
	logger.Info("HTTP server listening on port %d", a.Port())

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("HTTP shutdown signal received: %v", ctx.Err())
			stopCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
			defer cancel()
			_ = a.Stop(stopCtx)
		case <-a.shutdown:
		}
	}()

	err = server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the server down gracefully. Safe to call more than once.
func (a *HTTPAdapter) Stop(ctx context.Context) error {
	var err error
	a.shutdownOnce.Do(func() {
		close(a.shutdown)

		// hijacked connections are not tracked by http.Server
		a.feeds.Range(func(key, _ any) bool {
			_ = key.(*websocket.Conn).Close()
			return true
		})

		a.mu.Lock()
		server := a.server
		a.mu.Unlock()

		if server == nil {
			return
		}
		if err = server.Shutdown(ctx); err != nil {
			logger.Warn("HTTP graceful shutdown incomplete: %v", err)
			_ = server.Close()
		}
		logger.Debug("HTTP adapter stopped")
	})
	return err
}

// Protocol returns "HTTP".
func (a *HTTPAdapter) Protocol() string {
	return "HTTP"
}

// Port returns the bound port once serving, the configured port before.
func (a *HTTPAdapter) Port() int {
	if p := a.boundPort.Load(); p != 0 {
		return int(p)
	}
	return a.config.Port
}

func (a *HTTPAdapter) routes() *gin.Engine {
	router := gin.New()
	router.Use(a.recoverPanics(), a.observe(), a.rateLimit())

	api := router.Group("/api/v1")
	api.GET("/health", a.handleHealth)
	api.GET("/events", a.handleEvents)

	api.GET("/repositories", a.handleListRepositories)
	repo := api.Group("/repositories/:repo")
	repo.GET("", a.handleRoot)
	repo.GET("/list", a.handleList)
	repo.GET("/mimetype", a.handleMimetype)
	repo.GET("/exists", a.handleExists)
	repo.POST("/register", a.handleRegister)
	repo.POST("/create", a.handleCreate)
	repo.POST("/mkdir", a.handleMakeDir)
	repo.POST("/delete", a.handleDelete)
	repo.POST("/delete-files", a.handleDeleteFiles)
	repo.POST("/rename", a.handleRename)
	repo.POST("/render", a.handleUnsupported)
	repo.POST("/thumbs", a.handleUnsupported)
	repo.POST("/transfer", a.handleUnsupported)
	repo.POST("/load", a.handleUnsupported)
	repo.POST("/streams/file", a.handleOpenFile)
	repo.POST("/streams/file-by-id", a.handleOpenFileByID)
	repo.POST("/streams/pixels", a.handleOpenPixels)

	api.POST("/sessions", a.handleCreateSession)
	api.GET("/sessions/:id", a.handleGetSession)
	api.DELETE("/sessions/:id", a.handleCloseSession)

	streams := api.Group("/streams/:token")
	streams.GET("", a.handleStreamInfo)
	streams.GET("/data", a.handleStreamRead)
	streams.PUT("/data", a.handleStreamWrite)
	streams.POST("/truncate", a.handleStreamTruncate)
	streams.POST("/sync", a.handleStreamSync)
	streams.GET("/dimensions", a.handleStreamDimensions)
	streams.GET("/region", a.handleStreamRegion)
	streams.DELETE("", a.handleStreamRelease)

	return router
}
