// Package http provides the gin-based HTTP server.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/kart-io/logger"

	"github.com/kart-io/learning-rag/pkg/infra/middleware"
	serveropts "github.com/kart-io/learning-rag/pkg/options/server"
	apierrors "github.com/kart-io/learning-rag/pkg/utils/errors"
	"github.com/kart-io/learning-rag/pkg/utils/response"
	"github.com/kart-io/learning-rag/pkg/utils/validator"
)

// Server is the HTTP server.
type Server struct {
	opts   *serveropts.Options
	engine *gin.Engine

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates a gin engine with the standard middleware chain and
// installs v as the gin binding validator.
func NewServer(opts *serveropts.Options, v *validator.Validator) *Server {
	if opts == nil {
		opts = serveropts.NewOptions()
	}
	if v == nil {
		v = validator.Global()
	}

	gin.SetMode(gin.ReleaseMode)
	binding.Validator = validator.NewGinValidator(v)

	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	// 中间件必须在注册路由之前应用，子路由组会复制当前的 handlers
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Tracing(opts.SkipTracePaths...))
	engine.Use(middleware.Logger(opts.SkipLogPaths...))
	if len(opts.CORSAllowOrigins) > 0 {
		engine.Use(middleware.CORS(opts.CORSAllowOrigins))
	}

	engine.NoRoute(func(c *gin.Context) {
		response.Fail(c, apierrors.ErrRouteNotFound)
	})
	engine.NoMethod(func(c *gin.Context) {
		response.Fail(c, apierrors.ErrRouteNotFound.WithMessage("Method not allowed"))
	})

	return &Server{opts: opts, engine: engine}
}

// Name returns the server name.
func (s *Server) Name() string {
	return "http[gin]"
}

// Engine returns the underlying gin.Engine for route registration.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Addr returns the bound address once started, otherwise the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.opts.Addr
}

// Start binds the listener and serves in the background.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      s.engine,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}

	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	logger.Infow("HTTP server listening", "addr", ln.Addr().String())

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("HTTP server exited", "error", err.Error())
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
