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

// Pagination describes one page of a fixed-size paginated listing.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Pages    int `json:"pages"`
	Count    int `json:"count"`
}

// NewPagination computes page bounds for a listing of count items.
// The first page is always valid, even when empty.
func NewPagination(page, pageSize, count int) (Pagination, bool) {
	pages := (count + pageSize - 1) / pageSize
	if pages == 0 {
		pages = 1
	}
	p := Pagination{Page: page, PageSize: pageSize, Pages: pages, Count: count}
	if page < 1 || page > pages {
		return p, false
	}
	return p, true
}

func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}
