package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/onhold/core"
	"github.com/trezcool/onhold/core/activity"
)

type activityRow struct {
	ID          int64  `db:"id"`
	Actor       string `db:"actor"`
	Action      string `db:"action"`
	Detail      string `db:"detail"`
	CreatedAtMs int64  `db:"created_at_ms"`
}

type activityRepository struct {
	exec core.DBExecutor
}

var _ activity.Repository = (*activityRepository)(nil) // interface compliance check

func NewActivityRepository(exec core.DBExecutor) *activityRepository {
	return &activityRepository{exec: exec}
}

func (repo activityRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

func (repo activityRepository) fromRow(row activityRow) activity.Entry {
	return activity.Entry{
		ID:        row.ID,
		Actor:     row.Actor,
		Action:    row.Action,
		Detail:    row.Detail,
		CreatedAt: time.UnixMilli(row.CreatedAtMs).UTC(),
	}
}

func (repo activityRepository) AppendEntry(ctx context.Context, entry activity.Entry, exec ...core.DBExecutor) (activity.Entry, error) {
	exe := repo.getExec(exec)
	row := activityRow{
		Actor:       entry.Actor,
		Action:      entry.Action,
		Detail:      entry.Detail,
		CreatedAtMs: entry.CreatedAt.UnixMilli(),
	}
	q := exe.Rebind(`INSERT INTO activities (actor, action, detail, created_at_ms) VALUES (?, ?, ?, ?) RETURNING id`)
	if err := exe.QueryRowxContext(ctx, q, row.Actor, row.Action, row.Detail, row.CreatedAtMs).Scan(&row.ID); err != nil {
		return activity.Entry{}, errors.Wrap(err, "inserting activity")
	}
	return repo.fromRow(row), nil
}

func (repo activityRepository) QueryEntries(ctx context.Context, filter activity.QueryFilter, exec ...core.DBExecutor) ([]activity.Entry, error) {
	exe := repo.getExec(exec)
	var (
		where []string
		args  []interface{}
	)
	if filter.Actor != "" {
		where = append(where, "actor = ?")
		args = append(args, filter.Actor)
	}
	if filter.Action != "" {
		where = append(where, "action = ?")
		args = append(args, filter.Action)
	}

	q := `SELECT id, actor, action, detail, created_at_ms FROM activities`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	if filter.Limit > 0 {
		// latest N, returned oldest first
		q = `SELECT id, actor, action, detail, created_at_ms FROM (` + q + ` ORDER BY id DESC LIMIT ?) latest`
		args = append(args, filter.Limit)
	}
	q += ` ORDER BY id ASC`

	var rows []activityRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying activities")
	}
	entries := make([]activity.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, repo.fromRow(r))
	}
	return entries, nil
}
