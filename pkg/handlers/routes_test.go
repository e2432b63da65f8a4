package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dkhoanguyen/playground/pkg/db"
	"github.com/dkhoanguyen/playground/pkg/server"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type databases struct {
	postgres db.Connector
	oracle   db.Connector
}

func (d *databases) Postgres(context.Context) db.Connector { return d.postgres }
func (d *databases) Oracle(context.Context) db.Connector   { return d.oracle }

func mockConnector(t *testing.T, name string) (db.Connector, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return db.NewPostgresConnectorWithDB(name, sqlx.NewDb(mockDB, "postgres"), zap.NewNop()), mock
}

func newRouter(dbs db.Provider) *gin.Engine {
	router := server.NewRouter(zap.NewNop())
	Register(router, dbs, zap.NewNop())
	return router
}

func get(router http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	router := newRouter(&databases{})
	for _, path := range []string{"/health", "/health/liveness"} {
		rec := get(router, path)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"UP"}`, rec.Body.String())
	}
}

func TestReadiness(t *testing.T) {
	rec := get(newRouter(&databases{}), "/health/readiness")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"DOWN","postgres":"unavailable"}`, rec.Body.String())

	conn, mock := mockConnector(t, db.PostgresName)
	mock.ExpectQuery("SELECT 1 AS _health").
		WillReturnRows(sqlmock.NewRows([]string{"_health"}).AddRow(int64(1)))
	rec = get(newRouter(&databases{postgres: conn}), "/health/readiness")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"UP","postgres":"UP"}`, rec.Body.String())
}

func TestIndex(t *testing.T) {
	conn, mock := mockConnector(t, db.PostgresName)
	mock.ExpectQuery("SELECT session_user, current_database()").
		WillReturnRows(sqlmock.NewRows([]string{"session_user", "current_database"}).
			AddRow([]byte("postgres"), []byte("playground")))

	rec := get(newRouter(&databases{postgres: conn}), "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{
		"postgres":{"session_user":"postgres","current_database":"playground"},
		"oracle":null,
		"health":"UP"
	}}`, rec.Body.String())
}

func TestIndexQueryFails(t *testing.T) {
	conn, mock := mockConnector(t, db.PostgresName)
	mock.ExpectQuery("SELECT session_user, current_database()").WillReturnError(assert.AnError)

	rec := get(newRouter(&databases{postgres: conn}), "/")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error","status_code":500}`, rec.Body.String())
}

const pagedTables = "SELECT *, COUNT(*) OVER () AS total_count FROM (SELECT table_name, table_type FROM information_schema.tables WHERE table_schema = $1 ORDER BY table_name) AS subquery LIMIT 2 OFFSET 2"

func TestTables(t *testing.T) {
	conn, mock := mockConnector(t, db.PostgresName)
	mock.ExpectQuery(pagedTables).
		WithArgs("sales").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "table_type", "total_count"}).
			AddRow([]byte("invoices"), []byte("BASE TABLE"), int64(5)).
			AddRow([]byte("orders"), []byte("BASE TABLE"), int64(5)))

	rec := get(newRouter(&databases{postgres: conn}), "/api/v1/tables?schema=sales&page=2&size=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"message": "Success",
		"data": [
			{"table_name": "invoices", "table_type": "BASE TABLE"},
			{"table_name": "orders", "table_type": "BASE TABLE"}
		],
		"metadata": {
			"pagination": {"page": 2, "page_size": 2, "total": 5, "total_pages": 3},
			"links": {
				"self": "http://example.com/api/v1/tables?page=2&schema=sales&size=2",
				"next": "http://example.com/api/v1/tables?page=3&schema=sales&size=2",
				"prev": "http://example.com/api/v1/tables?page=1&schema=sales&size=2"
			}
		}
	}`, rec.Body.String())
}

func TestTablesEmptyPage(t *testing.T) {
	conn, mock := mockConnector(t, db.PostgresName)
	mock.ExpectQuery(strings.Replace(pagedTables, "LIMIT 2 OFFSET 2", "LIMIT 5 OFFSET 0", 1)).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "table_type", "total_count"}))

	rec := get(newRouter(&databases{postgres: conn}), "/api/v1/tables")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Success","data":[],"metadata":null}`, rec.Body.String())
}

func TestTablesBadParameters(t *testing.T) {
	router := newRouter(&databases{})
	tests := map[string]string{
		"/api/v1/tables?page=0":   "page must be a positive integer",
		"/api/v1/tables?page=abc": "page must be a positive integer",
		"/api/v1/tables?size=-1":  "size must be a positive integer",
		"/api/v1/tables?size=101": "size must not exceed 100",
	}
	for target, message := range tests {
		rec := get(router, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, message, body["error"], target)
	}
}

func TestTablesDatabaseUnavailable(t *testing.T) {
	rec := get(newRouter(&databases{}), "/api/v1/tables")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"Database unavailable","status_code":503}`, rec.Body.String())
}

func postCompose(router http.Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/compose/validate", strings.NewReader(body)))
	return rec
}

func TestComposeValidate(t *testing.T) {
	router := newRouter(&databases{})
	rec := postCompose(router, `
services:
  pgadmin:
    image: dpage/pgadmin4:${PGADMIN_TAG:-8}
    depends_on: [postgres]
  postgres:
    image: postgres:16
    volumes:
      - pgdata:/var/lib/postgresql/data
volumes:
  pgdata: {}
`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"message":"Success","data":{
		"name":"upload",
		"services":["postgres","pgadmin"],
		"volumes":["pgdata"]
	}}`, rec.Body.String())
}

func TestComposeValidateIssues(t *testing.T) {
	rec := postCompose(newRouter(&databases{}), `
name: broken
services:
  postgres:
    volumes:
      - pgdata:/var/lib/postgresql/data
`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body struct {
		Message string
		Data    []map[string]string
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Invalid compose file", body.Message)
	var paths []string
	for _, issue := range body.Data {
		paths = append(paths, issue["path"])
	}
	assert.ElementsMatch(t, []string{"services.postgres.image", "services.postgres.volumes[0]"}, paths)
}

func TestComposeValidateReportsRulesNotParseErrors(t *testing.T) {
	router := newRouter(&databases{})
	tests := map[string]struct {
		body  string
		paths []string
	}{
		"missing services key": {
			body:  "volumes:\n  pgdata: {}\n",
			paths: []string{"services"},
		},
		"short port out of range": {
			body:  "services:\n  db:\n    image: postgres:16\n    ports: [\"70000:5432\"]\n    restart: sometimes\n",
			paths: []string{"services.db.ports[0]", "services.db.restart"},
		},
		"long port out of range": {
			body:  "services:\n  db:\n    image: postgres:16\n    ports:\n      - target: 5432\n        published: 70000\n",
			paths: []string{"services.db.ports[0]"},
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec := postCompose(router, tt.body)
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

			var body struct {
				Data []map[string]string
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			var paths []string
			for _, issue := range body.Data {
				paths = append(paths, issue["path"])
			}
			assert.ElementsMatch(t, tt.paths, paths)
		})
	}
}

func TestComposeValidateMalformed(t *testing.T) {
	rec := postCompose(newRouter(&databases{}), "services: [")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
