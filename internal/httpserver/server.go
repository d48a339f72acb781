// Package httpserver exposes log records, listings, aggregations and the
// severity histogram over a JSON HTTP API.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tinytelemetry/logboard/internal/model"
	"github.com/tinytelemetry/logboard/internal/query"
)

// Options tunes optional server features.
type Options struct {
	MetricsEnabled bool
	Version        string
}

// Server provides the logboard HTTP API.
type Server struct {
	addr      string
	store     model.RecordWriter
	engine    *query.Engine
	validator *query.Validator
	metrics   *queryMetrics
	version   string
	server    *http.Server
	listener  net.Listener
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
	now       func() time.Time
}

// NewServer creates a new HTTP API server. Writes go straight to store;
// reads go through engine after validator has normalized the request.
func NewServer(addr string, store model.RecordWriter, engine *query.Engine, validator *query.Validator, opts Options) *Server {
	if addr == "" {
		addr = "0.0.0.0:8000"
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:      addr,
		store:     store,
		engine:    engine,
		validator: validator,
		version:   opts.Version,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
		now:       time.Now,
	}
	if opts.MetricsEnabled {
		s.metrics = newQueryMetrics()
	}
	return s
}

// routes builds the gin engine. gin's mode must be set before calling it.
func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), allowAllOrigins())

	r.GET("/", s.handleRoot)
	r.GET("/health", s.handleHealth)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.handler()))
	}

	logs := r.Group("/logs")
	logs.POST("", s.handleCreate)
	logs.GET("", s.handleList)
	logs.GET("/search", s.handleSearch)
	logs.GET("/histogram", s.handleHistogram)
	logs.GET("/export/csv", s.handleExportCSV)
	logs.GET("/:id", s.handleGet)
	logs.PUT("/:id", s.handleUpdate)
	logs.DELETE("/:id", s.handleDelete)

	return r
}

// Start binds the listen address. Requests are handled once Serve runs.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.routes(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.startTime = time.Now()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Serve handles requests until ctx is cancelled or the listener fails.
// Cancellation shuts the server down gracefully and returns the shutdown
// result; any other exit returns the serve error.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("httpserver: Serve called before Start")
	}

	serveDone := make(chan struct{})
	shutdownErr := make(chan error, 1)
	go func() {
		select {
		case <-ctx.Done():
			shutdownErr <- s.Stop()
		case <-serveDone:
			shutdownErr <- nil
		}
	}()

	err := s.server.Serve(s.listener)
	close(serveDone)
	stopErr := <-shutdownErr
	if errors.Is(err, http.ErrServerClosed) {
		return stopErr
	}
	return err
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// allowAllOrigins lets browser dashboards on any origin call the API.
func allowAllOrigins() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
