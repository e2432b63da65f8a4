package utils

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
)

// Ping reports whether a TCP connection to address can be opened within
// numTries attempts. Attempts are spaced by interval and each one is bounded
// by timeout.
func Ping(ctx context.Context, address string, numTries int, timeout, interval time.Duration, logger *zap.Logger) bool {
	dialer := net.Dialer{Timeout: timeout}
	for attempt := 1; attempt <= numTries; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err == nil {
			conn.Close()
			return true
		}
		logger.Debug(fmt.Sprintf("Cannot reach %s (attempt %d/%d): %s", address, attempt, numTries, err))
		if attempt == numTries {
			break
		}
		select {
		case <-ctx.Done():
			logger.Error(fmt.Sprintf("Gave up reaching %s: %s", address, ctx.Err()))
			return false
		case <-time.After(interval):
		}
	}
	logger.Error(fmt.Sprintf("Cannot reach %s after %d attempts", address, numTries))
	return false
}
