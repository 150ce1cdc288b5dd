package core

import (
	"context"
	"database/sql"
)

type (
	DBExecutor interface {
		Exec(query string, args ...interface{}) (sql.Result, error)
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		Query(query string, args ...interface{}) (*sql.Rows, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRow(query string, args ...interface{}) *sql.Row
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}

	DB interface {
		DBExecutor

		Begin() (*sql.Tx, error)
		BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error)
	}

	DBTransactor interface {
		DBExecutor

		Commit() error
		Rollback() error
	}

	// UnitOfWork runs `fn` atomically, serialized against every other unit holding one of `keys`.
	// The executor handed to `fn` must be passed down to the repositories; it is nil for storages
	// that are not backed by a SQL database.
	UnitOfWork interface {
		Atomically(ctx context.Context, keys []string, fn func(exec DBExecutor) error) error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// Page describes a slice of a query result. Zero values mean "everything".
type Page struct {
	Page  int `query:"page"`
	Limit int `query:"limit"`
}

func (p Page) Offset() int {
	if p.Page <= 1 || p.Limit <= 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

func (p Page) IsZero() bool { return p.Limit <= 0 }

// Pagination is returned alongside paginated query results.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func NewPagination(p Page, total int) Pagination {
	pg := Pagination{Page: p.Page, Limit: p.Limit, Total: total, Pages: 1}
	if pg.Page < 1 {
		pg.Page = 1
	}
	if p.Limit > 0 {
		pg.Pages = (total + p.Limit - 1) / p.Limit
	} else {
		pg.Limit = total
	}
	return pg
}
