//go:build !nopostgres
// +build !nopostgres

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/fxdesk/dashboard-api/filter"
	"github.com/fxdesk/dashboard-api/idb"
)

var zipcodeDistributionQuery = fmt.Sprintf(`WITH base AS (
	SELECT COALESCE(NULLIF(TRIM(zipcode), ''), 'UNKNOWN') AS zipcode, client_id
	FROM public.pnl_client_summary
	WHERE is_enabled = 1
)
SELECT zipcode, COUNT(*)::bigint AS client_count,
	CASE WHEN COUNT(*) < %d THEN ARRAY_AGG(client_id ORDER BY client_id) END AS client_ids
	FROM base
	GROUP BY zipcode
	ORDER BY client_count DESC, zipcode ASC`, idb.ZipcodeDetailLimit)

const zipcodeChangeColumns = `client_id, zipcode_before, zipcode_after, change_reason, change_time`

const exclusionColumns = `id, client_id, reason_code, added_by, added_at, expires_at, is_active`

// pagedQueries is a count query and a page query sharing their arguments.
// The page query binds LIMIT and OFFSET after them.
type pagedQueries struct {
	count    string
	page     string
	args     []interface{}
	pageArgs []interface{}
}

func paged(count, page string, w *filter.Where, limit, offset int) pagedQueries {
	args := w.Args()
	pageArgs := make([]interface{}, 0, len(args)+2)
	pageArgs = append(pageArgs, args...)
	pageArgs = append(pageArgs, limit, offset)
	return pagedQueries{
		count:    count,
		page:     fmt.Sprintf("%s LIMIT $%d OFFSET $%d", page, len(args)+1, len(args)+2),
		args:     args,
		pageArgs: pageArgs,
	}
}

// nullTime binds the zero time as NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// buildZipcodeChangesQuery selects changes inside [start, end]. A missing end
// is now and a missing start is idb.DefaultChangeWindow before now.
func buildZipcodeChangesQuery(q idb.ZipcodeChangeQuery) pagedQueries {
	w := filter.NewWhere(filter.Postgres)
	start, end := w.Arg(nullTime(q.Start)), w.Arg(nullTime(q.End))
	w.And(fmt.Sprintf(
		"change_time BETWEEN COALESCE(%s::timestamptz, NOW() - INTERVAL '%d hours') AND COALESCE(%s::timestamptz, NOW())",
		start, int(idb.DefaultChangeWindow.Hours()), end))
	where := w.Clause()

	return paged(
		"SELECT COUNT(*) FROM public.swapfree_zipcode_changes"+where,
		"SELECT "+zipcodeChangeColumns+" FROM public.swapfree_zipcode_changes"+where+" ORDER BY change_time DESC",
		w, q.PageSize, q.Offset())
}

func buildExclusionsQuery(active *bool) (string, []interface{}) {
	w := filter.NewWhere(filter.Postgres)
	if active != nil {
		w.And("is_active = " + w.Arg(*active))
	}
	return "SELECT " + exclusionColumns + " FROM public.swapfree_exclusions" + w.Clause() +
		" ORDER BY is_active DESC, added_at DESC NULLS LAST, id DESC", w.Args()
}

// buildChangeFrequencyQuery counts the changes of every client over the last
// WindowDays days.
func buildChangeFrequencyQuery(q idb.ChangeFrequencyQuery) pagedQueries {
	w := filter.NewWhere(filter.Postgres)
	w.And(fmt.Sprintf("change_time >= NOW() - make_interval(days => %s)", w.Arg(q.WindowDays)))
	agg := "SELECT client_id, COUNT(*)::bigint AS changes, MAX(change_time) AS last_change" +
		" FROM public.swapfree_zipcode_changes" + w.Clause() + " GROUP BY client_id"

	return paged(
		"SELECT COUNT(*) FROM ("+agg+") AS agg",
		agg+" ORDER BY changes DESC, last_change DESC, client_id ASC",
		w, q.PageSize, q.Offset())
}

// ZipcodeDistribution is part of idb.ReportDb.
func (db *ReportDb) ZipcodeDistribution(ctx context.Context) ([]idb.ZipcodeBucket, error) {
	rows, err := db.db.Query(ctx, zipcodeDistributionQuery)
	if err != nil {
		return nil, fmt.Errorf("ZipcodeDistribution() err: %w", err)
	}
	defer rows.Close()

	result := make([]idb.ZipcodeBucket, 0)
	for rows.Next() {
		var b idb.ZipcodeBucket
		if err = rows.Scan(&b.Zipcode, &b.ClientCount, &b.ClientIDs); err != nil {
			return nil, fmt.Errorf("ZipcodeDistribution() scan err: %w", err)
		}
		result = append(result, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ZipcodeDistribution() err: %w", err)
	}
	return result, nil
}

// ZipcodeChanges is part of idb.ReportDb.
func (db *ReportDb) ZipcodeChanges(ctx context.Context, q idb.ZipcodeChangeQuery) (idb.ZipcodeChangePage, error) {
	if err := q.Validate(); err != nil {
		return idb.ZipcodeChangePage{}, err
	}
	queries := buildZipcodeChangesQuery(q)

	var page idb.ZipcodeChangePage
	f := func(tx pgx.Tx) error {
		page = idb.ZipcodeChangePage{Rows: make([]idb.ZipcodeChange, 0)}
		if err := tx.QueryRow(ctx, queries.count, queries.args...).Scan(&page.Total); err != nil {
			return fmt.Errorf("count query: %w", err)
		}

		rows, err := tx.Query(ctx, queries.page, queries.pageArgs...)
		if err != nil {
			return fmt.Errorf("page query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var c idb.ZipcodeChange
			err = rows.Scan(&c.ClientID, &c.ZipcodeBefore, &c.ZipcodeAfter, &c.ChangeReason, &c.ChangeTime)
			if err != nil {
				return fmt.Errorf("scanning zipcode change: %w", err)
			}
			page.Rows = append(page.Rows, c)
		}
		return rows.Err()
	}
	if err := db.txWithRetry(ctx, readonlyRepeatableRead, f); err != nil {
		return idb.ZipcodeChangePage{}, fmt.Errorf("ZipcodeChanges() err: %w", err)
	}
	return page, nil
}

// ZipcodeExclusions is part of idb.ReportDb.
func (db *ReportDb) ZipcodeExclusions(ctx context.Context, active *bool) ([]idb.ZipcodeExclusion, error) {
	query, args := buildExclusionsQuery(active)
	rows, err := db.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ZipcodeExclusions() err: %w", err)
	}
	defer rows.Close()

	result := make([]idb.ZipcodeExclusion, 0)
	for rows.Next() {
		var e idb.ZipcodeExclusion
		err = rows.Scan(&e.ID, &e.ClientID, &e.ReasonCode, &e.AddedBy, &e.AddedAt, &e.ExpiresAt, &e.IsActive)
		if err != nil {
			return nil, fmt.Errorf("ZipcodeExclusions() scan err: %w", err)
		}
		result = append(result, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ZipcodeExclusions() err: %w", err)
	}
	return result, nil
}

// ZipcodeChangeFrequency is part of idb.ReportDb.
func (db *ReportDb) ZipcodeChangeFrequency(ctx context.Context, q idb.ChangeFrequencyQuery) (idb.ChangeFrequencyPage, error) {
	if err := q.Validate(); err != nil {
		return idb.ChangeFrequencyPage{}, err
	}
	queries := buildChangeFrequencyQuery(q)

	var page idb.ChangeFrequencyPage
	f := func(tx pgx.Tx) error {
		page = idb.ChangeFrequencyPage{Rows: make([]idb.ChangeFrequency, 0)}
		if err := tx.QueryRow(ctx, queries.count, queries.args...).Scan(&page.Total); err != nil {
			return fmt.Errorf("count query: %w", err)
		}

		rows, err := tx.Query(ctx, queries.page, queries.pageArgs...)
		if err != nil {
			return fmt.Errorf("page query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var c idb.ChangeFrequency
			if err = rows.Scan(&c.ClientID, &c.Changes, &c.LastChange); err != nil {
				return fmt.Errorf("scanning change frequency: %w", err)
			}
			page.Rows = append(page.Rows, c)
		}
		return rows.Err()
	}
	if err := db.txWithRetry(ctx, readonlyRepeatableRead, f); err != nil {
		return idb.ChangeFrequencyPage{}, fmt.Errorf("ZipcodeChangeFrequency() err: %w", err)
	}
	return page, nil
}
