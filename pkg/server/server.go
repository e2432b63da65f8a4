package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	ShutdownTimeout   = 10 * time.Second
	ReadHeaderTimeout = 10 * time.Second
)

// NewRouter returns a gin engine with the request id, access log, error and
// recovery middleware installed. Unknown routes answer with a 404 envelope.
func NewRouter(logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), AccessLog(logger), ErrorHandler(logger), Recovery(logger))
	router.NoRoute(notFound)
	return router
}

// Run listens on addr and serves handler until ctx is done, then shuts down
// gracefully.
func Run(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}
	return Serve(ctx, listener, handler, logger)
}

func Serve(ctx context.Context, listener net.Listener, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: ReadHeaderTimeout}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("Listening on %s", listener.Addr()))
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(fmt.Sprintf("Graceful shutdown failed: %s", err))
		return err
	}
	return nil
}
