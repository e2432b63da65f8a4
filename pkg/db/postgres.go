package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	MaxOpenConns = 20
	MaxIdleConns = 5

	totalCountColumn = "total_count"
)

// PostgresConnector is a pooled Postgres connection. It connects on first use.
type PostgresConnector struct {
	Name string

	mu     sync.Mutex
	db     *sqlx.DB
	open   func() (*sqlx.DB, error)
	logger *zap.Logger
}

func NewPostgresConnector(name, dsn string, logger *zap.Logger) *PostgresConnector {
	return &PostgresConnector{
		Name: name,
		open: func() (*sqlx.DB, error) {
			return sqlx.Open("postgres", dsn)
		},
		logger: logger,
	}
}

// NewPostgresConnectorWithDB wraps an already opened pool.
func NewPostgresConnectorWithDB(name string, db *sqlx.DB, logger *zap.Logger) *PostgresConnector {
	return &PostgresConnector{
		Name: name,
		db:   db,
		open: func() (*sqlx.DB, error) {
			return db, nil
		},
		logger: logger,
	}
}

func (pc *PostgresConnector) Connect(ctx context.Context) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	_, err := pc.connectLocked(ctx)
	return err
}

func (pc *PostgresConnector) connectLocked(ctx context.Context) (*sqlx.DB, error) {
	if pc.db != nil {
		return pc.db, nil
	}
	db, err := pc.open()
	if err != nil {
		pc.logger.Error(fmt.Sprintf("Database connection error for %s: %s", pc.Name, err))
		return nil, errors.Wrapf(err, "open %s", pc.Name)
	}
	db.SetMaxOpenConns(MaxOpenConns)
	db.SetMaxIdleConns(MaxIdleConns)
	if err := db.PingContext(ctx); err != nil {
		pc.logger.Error(fmt.Sprintf("Database connection error for %s: %s", pc.Name, err))
		_ = db.Close()
		return nil, errors.Wrapf(err, "connect %s", pc.Name)
	}
	pc.db = db
	pc.logger.Debug(fmt.Sprintf("Successfully connected to %s", pc.Name))
	return db, nil
}

func (pc *PostgresConnector) conn(ctx context.Context) (*sqlx.DB, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.connectLocked(ctx)
}

func (pc *PostgresConnector) Close() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.db == nil {
		return nil
	}
	err := pc.db.Close()
	pc.db = nil
	if err != nil {
		pc.logger.Error(fmt.Sprintf("Error closing %s: %s", pc.Name, err))
		return err
	}
	pc.logger.Debug(fmt.Sprintf("%s connection pool released", pc.Name))
	return nil
}

func (pc *PostgresConnector) Reconnect(ctx context.Context) error {
	if err := pc.Close(); err != nil {
		return err
	}
	return pc.Connect(ctx)
}

// Execute runs a statement in its own transaction.
func (pc *PostgresConnector) Execute(ctx context.Context, query string, args ...interface{}) (err error) {
	defer pc.track("execute", time.Now(), &err)

	db, err := pc.conn(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, db.Rebind(query), args...); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			pc.logger.Error(fmt.Sprintf("Rollback failed on %s: %s", pc.Name, rbErr))
		}
		return err
	}
	return tx.Commit()
}

func (pc *PostgresConnector) FetchOne(ctx context.Context, query string, args ...interface{}) (row Row, err error) {
	defer pc.track("fetch one", time.Now(), &err)

	rows, err := pc.fetch(ctx, query, 1, args)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (pc *PostgresConnector) FetchMany(ctx context.Context, query string, size int, args ...interface{}) (rows []Row, err error) {
	defer pc.track("fetch many", time.Now(), &err)

	if size < 1 {
		return nil, errors.Wrapf(ErrInvalidPage, "size %d", size)
	}
	return pc.fetch(ctx, query, size, args)
}

func (pc *PostgresConnector) FetchAll(ctx context.Context, query string, page *Pagination, args ...interface{}) (result *Result, err error) {
	defer pc.track("fetch all", time.Now(), &err)

	builder := sq.Select("*", "COUNT(*) OVER () AS "+totalCountColumn).
		From("(" + query + ") AS subquery").
		PlaceholderFormat(sq.Dollar)
	if page != nil {
		if err := page.Validate(); err != nil {
			return nil, err
		}
		builder = builder.Limit(uint64(page.Size)).Offset(uint64(page.Offset()))
	}
	paged, _, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := pc.query(ctx, paged, 0, args)
	if err != nil {
		return nil, err
	}
	result = &Result{Rows: rows}
	for _, row := range rows {
		if total, ok := row[totalCountColumn].(int64); ok {
			result.Total = total
		}
		delete(row, totalCountColumn)
	}
	return result, nil
}

func (pc *PostgresConnector) fetch(ctx context.Context, query string, limit int, args []interface{}) ([]Row, error) {
	db, err := pc.conn(ctx)
	if err != nil {
		return nil, err
	}
	return pc.query(ctx, db.Rebind(query), limit, args)
}

// query reads at most limit rows, or all of them when limit is 0.
func (pc *PostgresConnector) query(ctx context.Context, query string, limit int, args []interface{}) ([]Row, error) {
	db, err := pc.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		row := Row{}
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		out = append(out, normalize(row))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, rows.Err()
}

// normalize turns driver byte slices (text-like types such as name) into
// strings so rows encode as JSON text.
func normalize(row Row) Row {
	for key, val := range row {
		if b, ok := val.([]byte); ok {
			row[key] = string(b)
		}
	}
	return row
}

func (pc *PostgresConnector) track(op string, start time.Time, err *error) {
	elapsed := time.Since(start)
	if *err != nil {
		pc.logger.Error(fmt.Sprintf("%s on %s failed after %s: %s", op, pc.Name, elapsed, *err))
		return
	}
	pc.logger.Debug(fmt.Sprintf("%s on %s took %s", op, pc.Name, elapsed))
}

var _ Connector = (*PostgresConnector)(nil)
