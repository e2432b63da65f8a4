package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dkhoanguyen/playground/api"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestID reuses the caller's X-Request-ID or generates one, and echoes it
// on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func GetRequestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	return "-"
}

func AccessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		req := c.Request
		fields := []zap.Field{
			zap.String("request_id", GetRequestID(c)),
			zap.String("url", req.URL.String()),
			zap.String("remote_addr", c.ClientIP()),
		}
		args := req.URL.Query()

		logger.Info(fmt.Sprintf("<--BEGIN: %s %s %v", req.Method, req.URL.Path, args), fields...)
		c.Next()

		elapsed := float64(time.Since(start).Microseconds()) / 1000
		logger.Info(fmt.Sprintf("%.2f ms %s %s %d %v :END-->",
			elapsed, req.Method, req.URL.Path, c.Writer.Status(), args), fields...)
	}
}

// ErrorHandler renders the last error a handler attached with c.Error. An
// *api.Error keeps its status and message, anything else becomes a 500.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		var apiErr *api.Error
		if !errors.As(err, &apiErr) {
			logger.Error(fmt.Sprintf("Unhandled error on %s %s: %s", c.Request.Method, c.Request.URL.Path, err),
				zap.String("request_id", GetRequestID(c)))
			apiErr = api.ErrInternal
		}
		c.JSON(apiErr.StatusCode, apiErr.Body())
	}
}

// Recovery turns a panic into the 500 envelope.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered interface{}) {
		logger.Error(fmt.Sprintf("Recovered from panic on %s %s: %v", c.Request.Method, c.Request.URL.Path, recovered),
			zap.String("request_id", GetRequestID(c)), zap.Stack("stack"))
		c.AbortWithStatusJSON(http.StatusInternalServerError, api.ErrInternal.Body())
	})
}

func notFound(c *gin.Context) {
	_ = c.Error(api.ErrNotFound)
}
