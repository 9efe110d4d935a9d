package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carlosapgomes/caseflow/internal/db"
)

// DefaultPageSize is used when ListFilter.PageSize is zero.
const DefaultPageSize = 10

// CaseListRow is one row of the paginated case list.
type CaseListRow struct {
	CaseID    uuid.UUID `db:"case_id"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ListFilter is the query accepted by CaseList. Page is 1-indexed. A zero
// FromDate/ToDate defaults the window to today UTC, per spec.md §6.
type ListFilter struct {
	Page     int
	PageSize int
	Status   *string
	FromDate *time.Time
	ToDate   *time.Time
}

// CaseListResult is the paginated response.
type CaseListResult struct {
	Cases      []CaseListRow
	Page       int
	PageSize   int
	TotalCount int
}

// CaseLister paginates the cases table for the monitoring list endpoint.
type CaseLister struct {
	db *db.Client
}

// NewCaseLister builds a CaseLister.
func NewCaseLister(client *db.Client) *CaseLister {
	return &CaseLister{db: client}
}

// CaseList returns a page of cases matching f, most recently created
// first.
func (l *CaseLister) CaseList(ctx context.Context, f ListFilter) (CaseListResult, error) {
	page := f.Page
	if page < 1 {
		page = 1
	}
	pageSize := f.PageSize
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}

	from, to := f.FromDate, f.ToDate
	if from == nil && to == nil {
		now := time.Now().UTC()
		todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		tomorrowStart := todayStart.AddDate(0, 0, 1)
		from, to = &todayStart, &tomorrowStart
	}

	const countQ = `
		SELECT count(*) FROM cases
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)`
	var total int
	if err := l.db.GetContext(ctx, &total, countQ, f.Status, from, to); err != nil {
		return CaseListResult{}, fmt.Errorf("count cases: %w", err)
	}

	const listQ = `
		SELECT case_id, status, created_at, updated_at FROM cases
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`
	var rows []CaseListRow
	offset := (page - 1) * pageSize
	if err := l.db.SelectContext(ctx, &rows, listQ, f.Status, from, to, pageSize, offset); err != nil {
		return CaseListResult{}, fmt.Errorf("list cases: %w", err)
	}

	return CaseListResult{Cases: rows, Page: page, PageSize: pageSize, TotalCount: total}, nil
}
