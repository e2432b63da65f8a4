package v1

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/dkhoanguyen/playground/api"
	"github.com/dkhoanguyen/playground/pkg/db"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 5
	MaxPageSize     = 100
	DefaultSchema   = "public"

	tablesQuery = "SELECT table_name, table_type FROM information_schema.tables WHERE table_schema = ? ORDER BY table_name"
)

type Table struct {
	Name string `json:"table_name"`
	Type string `json:"table_type"`
}

func tableFromRow(row db.Row) Table {
	return Table{Name: fmt.Sprint(row["table_name"]), Type: fmt.Sprint(row["table_type"])}
}

// MakeTables lists the tables of a schema one page at a time.
func MakeTables(databases db.Provider, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := positiveQuery(c, "page", DefaultPage)
		if err != nil {
			_ = c.Error(err)
			return
		}
		size, err := positiveQuery(c, "size", DefaultPageSize)
		if err != nil {
			_ = c.Error(err)
			return
		}
		if size > MaxPageSize {
			_ = c.Error(api.Errorf(http.StatusBadRequest, "size must not exceed %d", MaxPageSize))
			return
		}
		schema := c.DefaultQuery("schema", DefaultSchema)

		conn := databases.Postgres(c.Request.Context())
		if conn == nil {
			logger.Error("PostgreSQL connection is not available")
			_ = c.Error(api.NewError(http.StatusServiceUnavailable, "Database unavailable"))
			return
		}
		result, err := conn.FetchAll(c.Request.Context(), tablesQuery, &db.Pagination{Page: page, Size: size}, schema)
		if err != nil {
			_ = c.Error(err)
			return
		}

		tables := make([]Table, 0, len(result.Rows))
		for _, row := range result.Rows {
			tables = append(tables, tableFromRow(row))
		}
		if len(tables) == 0 {
			logger.Warn(fmt.Sprintf("No tables found in schema %s on page %d", schema, page))
		}
		c.JSON(http.StatusOK, api.NewPaginated(tables, page, size, result.Total, api.RequestURL(c.Request)))
	}
}

func positiveQuery(c *gin.Context, key string, fallback int) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, api.Errorf(http.StatusBadRequest, "%s must be a positive integer", key)
	}
	return n, nil
}
