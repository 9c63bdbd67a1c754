// Package devserver serves the task store's JSON HTTP API over a devstore.Store.
package devserver

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tasksync/internal/devstore"
)

// Server is the development task server.
type Server struct {
	store  *devstore.Store
	router *gin.Engine
	log    *log.Logger
}

// New creates a server over store. Request logging goes to logger when debug is set.
func New(store *devstore.Store, logger *log.Logger, debug bool) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if debug {
		router.Use(gin.LoggerWithWriter(logger.Writer()))
	}

	s := &Server{
		store:  store,
		router: router,
		log:    logger,
	}

	auth := router.Group("/api/auth")
	{
		auth.POST("/register", s.handleRegister)
		auth.POST("/login", s.handleLogin)
	}

	tasks := router.Group("/api/:actor/tasks", s.requireActor)
	{
		tasks.GET("/", s.handleList)
		tasks.POST("/", s.handleCreate)
		tasks.GET("/:id", s.handleGet)
		tasks.PUT("/:id", s.handleUpdate)
		tasks.PATCH("/:id", s.handleUpdate)
		tasks.PATCH("/:id/complete", s.handleToggle)
		tasks.DELETE("/:id", s.handleDelete)
	}

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Printf("devserver: listening on %s", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Printf("devserver: shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
