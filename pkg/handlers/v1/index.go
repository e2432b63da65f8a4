package v1

import (
	"net/http"

	"github.com/dkhoanguyen/playground/pkg/db"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const sessionQuery = "SELECT session_user, current_database()"

// MakeIndex reports which user and database each configured connection is
// using. A connection that is not available is reported as null.
func MakeIndex(databases db.Provider, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		data := gin.H{"health": "UP"}
		for name, conn := range map[string]db.Connector{
			db.PostgresName: databases.Postgres(ctx),
			db.OracleName:   databases.Oracle(ctx),
		} {
			if conn == nil {
				data[name] = nil
				continue
			}
			row, err := conn.FetchOne(ctx, sessionQuery)
			if err != nil {
				_ = c.Error(err)
				return
			}
			data[name] = row
		}
		c.JSON(http.StatusOK, gin.H{"data": data})
	}
}
