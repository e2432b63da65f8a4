package health

import (
	"fmt"
	"net/http"

	"github.com/dkhoanguyen/playground/pkg/db"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	StatusUp   = "UP"
	StatusDown = "DOWN"
)

func LivenessGet(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": StatusUp,
	})
}

// MakeReadiness reports UP only when the primary database answers a health
// query.
func MakeReadiness(databases db.Provider, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn := databases.Postgres(c.Request.Context())
		if conn == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": StatusDown, db.PostgresName: "unavailable"})
			return
		}
		if err := db.HealthCheck(c.Request.Context(), conn); err != nil {
			logger.Warn(fmt.Sprintf("Readiness check failed: %s", err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": StatusDown, db.PostgresName: err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": StatusUp, db.PostgresName: StatusUp})
	}
}
