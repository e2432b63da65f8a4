package db

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrInvalidPage = errors.New("page and size must be positive")
	ErrUnhealthy   = errors.New("database health check returned no row")
)

// Row is one result row keyed by column name.
type Row map[string]interface{}

// Pagination selects one page of a result. Page numbers start at 1.
type Pagination struct {
	Page int
	Size int
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.Size
}

func (p Pagination) Validate() error {
	if p.Page < 1 || p.Size < 1 {
		return errors.Wrapf(ErrInvalidPage, "page %d size %d", p.Page, p.Size)
	}
	return nil
}

// Result is a FetchAll result. Total counts every row the query matches, not
// just the returned page.
type Result struct {
	Total int64
	Rows  []Row
}

// Connector is a database connection. Queries use ? placeholders.
type Connector interface {
	Connect(ctx context.Context) error
	Close() error
	Reconnect(ctx context.Context) error

	Execute(ctx context.Context, query string, args ...interface{}) error
	// FetchOne returns nil when no row matches.
	FetchOne(ctx context.Context, query string, args ...interface{}) (Row, error)
	FetchMany(ctx context.Context, query string, size int, args ...interface{}) ([]Row, error)
	// FetchAll returns every row, or one page of them when page is not nil.
	FetchAll(ctx context.Context, query string, page *Pagination, args ...interface{}) (*Result, error)
}

// HealthCheck runs a trivial query through conn.
func HealthCheck(ctx context.Context, conn Connector) error {
	row, err := conn.FetchOne(ctx, "SELECT 1 AS _health")
	if err != nil {
		return err
	}
	if row == nil {
		return ErrUnhealthy
	}
	return nil
}
