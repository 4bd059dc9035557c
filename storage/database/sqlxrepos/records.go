package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/onhold/core"
	"github.com/trezcool/onhold/core/record"
)

const recordColumns = `id, record_id, student_name, owner_name, contact_email, contact_email_hash, contact_phone,
	category, hold_reason, follow_up_comments, status, next_reminder_date, reminders_suppressed, created_by,
	created_at_ms, updated_at_ms`

// recordOrderings maps API ordering fields to columns.
var recordOrderings = map[string]string{
	"record_id":          "record_id",
	"student_name":       "student_name",
	"owner_name":         "owner_name",
	"category":           "category",
	"status":             "status",
	"next_reminder_date": "next_reminder_date",
	"created_at":         "created_at_ms",
	"updated_at":         "updated_at_ms",
}

type recordRow struct {
	PK                  int64       `db:"id"`
	RecordID            string      `db:"record_id"`
	StudentName         string      `db:"student_name"`
	OwnerName           string      `db:"owner_name"`
	ContactEmail        string      `db:"contact_email"`
	ContactEmailHash    string      `db:"contact_email_hash"`
	ContactPhone        string      `db:"contact_phone"`
	Category            string      `db:"category"`
	HoldReason          string      `db:"hold_reason"`
	FollowUpComments    string      `db:"follow_up_comments"`
	Status              string      `db:"status"`
	NextReminderDate    null.String `db:"next_reminder_date"`
	RemindersSuppressed bool        `db:"reminders_suppressed"`
	CreatedBy           string      `db:"created_by"`
	CreatedAtMs         int64       `db:"created_at_ms"`
	UpdatedAtMs         int64       `db:"updated_at_ms"`
}

type recordRepository struct {
	exec core.DBExecutor
}

var _ record.Repository = (*recordRepository)(nil) // interface compliance check

func NewRecordRepository(exec core.DBExecutor) *recordRepository {
	return &recordRepository{exec: exec}
}

func (repo recordRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

func (repo recordRepository) toRow(rec record.StoredRecord) recordRow {
	return recordRow{
		RecordID:            rec.ID,
		StudentName:         rec.StudentName,
		OwnerName:           rec.OwnerName,
		ContactEmail:        rec.ContactEmail,
		ContactEmailHash:    rec.ContactEmailHash,
		ContactPhone:        rec.ContactPhone,
		Category:            rec.Category,
		HoldReason:          rec.HoldReason,
		FollowUpComments:    rec.FollowUpComments,
		Status:              rec.Status,
		NextReminderDate:    null.NewString(rec.NextReminderDate, rec.NextReminderDate != ""),
		RemindersSuppressed: rec.RemindersSuppressed,
		CreatedBy:           rec.CreatedBy,
		CreatedAtMs:         rec.CreatedAt.UnixMilli(),
		UpdatedAtMs:         rec.UpdatedAt.UnixMilli(),
	}
}

func (repo recordRepository) fromRow(row recordRow) record.StoredRecord {
	return record.StoredRecord{
		ID:                  row.RecordID,
		StudentName:         row.StudentName,
		OwnerName:           row.OwnerName,
		ContactEmail:        row.ContactEmail,
		ContactEmailHash:    row.ContactEmailHash,
		ContactPhone:        row.ContactPhone,
		Category:            row.Category,
		HoldReason:          row.HoldReason,
		FollowUpComments:    row.FollowUpComments,
		Status:              row.Status,
		NextReminderDate:    row.NextReminderDate.String,
		RemindersSuppressed: row.RemindersSuppressed,
		CreatedBy:           row.CreatedBy,
		CreatedAt:           time.UnixMilli(row.CreatedAtMs).UTC(),
		UpdatedAt:           time.UnixMilli(row.UpdatedAtMs).UTC(),
	}
}

func (repo recordRepository) fromRows(rows []recordRow) []record.StoredRecord {
	records := make([]record.StoredRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, repo.fromRow(r))
	}
	return records
}

func (repo recordRepository) CreateRecord(ctx context.Context, rec record.StoredRecord, exec ...core.DBExecutor) (record.StoredRecord, error) {
	exe := repo.getExec(exec)
	q := `INSERT INTO records (record_id, student_name, owner_name, contact_email, contact_email_hash, contact_phone,
		category, hold_reason, follow_up_comments, status, next_reminder_date, reminders_suppressed, created_by,
		created_at_ms, updated_at_ms)
	VALUES (:record_id, :student_name, :owner_name, :contact_email, :contact_email_hash, :contact_phone,
		:category, :hold_reason, :follow_up_comments, :status, :next_reminder_date, :reminders_suppressed, :created_by,
		:created_at_ms, :updated_at_ms)`
	if _, err := sqlx.NamedExecContext(ctx, exe, q, repo.toRow(rec)); err != nil {
		if IsUniqueViolation(err) {
			return record.StoredRecord{}, record.ErrDuplicateID
		}
		return record.StoredRecord{}, errors.Wrap(err, "inserting record")
	}
	return repo.GetRecord(ctx, rec.ID, exe)
}

func (repo recordRepository) GetRecord(ctx context.Context, id string, exec ...core.DBExecutor) (record.StoredRecord, error) {
	exe := repo.getExec(exec)
	var row recordRow
	q := exe.Rebind(`SELECT ` + recordColumns + ` FROM records WHERE record_id = ?`)
	if err := sqlx.GetContext(ctx, exe, &row, q, id); err != nil {
		return record.StoredRecord{}, trapNoRowsErr(err, record.ErrNotFound, "finding record by ID")
	}
	return repo.fromRow(row), nil
}

func (repo recordRepository) QueryRecords(ctx context.Context, filter *record.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]record.StoredRecord, error) {
	exe := repo.getExec(exec)
	var (
		where []string
		args  []interface{}
	)

	if filter != nil {
		// records with student name, owner name or category matching the search keyword
		if filter.Search != "" {
			val := "%" + strings.ToLower(filter.Search) + "%"
			where = append(where, "(LOWER(student_name) LIKE ? OR LOWER(owner_name) LIKE ? OR LOWER(category) LIKE ?)")
			args = append(args, val, val, val)
		}
		if len(filter.Statuses) > 0 {
			clause, inArgs, err := sqlx.In("status IN (?)", filter.Statuses)
			if err != nil {
				return nil, errors.Wrap(err, "building status filter")
			}
			where = append(where, clause)
			args = append(args, inArgs...)
		}
		if filter.Owner != "" {
			where = append(where, "LOWER(owner_name) = ?")
			args = append(args, strings.ToLower(filter.Owner))
		}
		if filter.EmailHash != "" {
			where = append(where, "contact_email_hash = ?")
			args = append(args, filter.EmailHash)
		}
		if filter.DueBefore != "" {
			where = append(where, "next_reminder_date IS NOT NULL AND next_reminder_date <= ?")
			args = append(args, filter.DueBefore)
		}
		if filter.Suppressed != nil {
			where = append(where, "reminders_suppressed = ?")
			args = append(args, *filter.Suppressed)
		}
	}

	q := `SELECT ` + recordColumns + ` FROM records`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY ` + repo.orderBy(ordering)

	var rows []recordRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying records")
	}
	return repo.fromRows(rows), nil
}

// orderBy only keeps known fields; the storage id breaks ties.
func (repo recordRepository) orderBy(ordering []core.DBOrdering) string {
	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if col, ok := recordOrderings[ord.Field]; ok {
			orderList = append(orderList, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
		}
	}
	if len(orderList) == 0 {
		orderList = append(orderList, "created_at_ms DESC")
	}
	return strings.Join(append(orderList, "id DESC"), ", ")
}

func (repo recordRepository) UpdateRecord(ctx context.Context, rec record.StoredRecord, withReminderDate bool, exec ...core.DBExecutor) (record.StoredRecord, error) {
	exe := repo.getExec(exec)
	reminderDate := ""
	if withReminderDate {
		reminderDate = "next_reminder_date = :next_reminder_date,"
	}
	q := `UPDATE records SET
		student_name = :student_name,
		owner_name = :owner_name,
		contact_email = :contact_email,
		contact_email_hash = :contact_email_hash,
		contact_phone = :contact_phone,
		category = :category,
		hold_reason = :hold_reason,
		follow_up_comments = :follow_up_comments,
		status = :status,
		` + reminderDate + `
		reminders_suppressed = :reminders_suppressed,
		updated_at_ms = :updated_at_ms
	WHERE record_id = :record_id`
	res, err := sqlx.NamedExecContext(ctx, exe, q, repo.toRow(rec))
	if err != nil {
		return record.StoredRecord{}, errors.Wrap(err, "updating record")
	}
	if err = checkAffected(res, record.ErrNotFound, "updating record"); err != nil {
		return record.StoredRecord{}, err
	}
	return repo.GetRecord(ctx, rec.ID, exe)
}

func (repo recordRepository) DeleteRecord(ctx context.Context, id string, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind(`DELETE FROM records WHERE record_id = ?`), id)
	if err != nil {
		return errors.Wrap(err, "deleting record")
	}
	return checkAffected(res, record.ErrNotFound, "deleting record")
}

func (repo recordRepository) SelectDue(ctx context.Context, today string, exec ...core.DBExecutor) ([]record.StoredRecord, error) {
	exe := repo.getExec(exec)
	q, args, err := sqlx.In(`SELECT `+recordColumns+` FROM records
		WHERE reminders_suppressed = ?
			AND next_reminder_date IS NOT NULL
			AND next_reminder_date <= ?
			AND status IN (?)
		ORDER BY record_id`, false, today, record.DueStatuses)
	if err != nil {
		return nil, errors.Wrap(err, "building due query")
	}

	var rows []recordRow
	if err = sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting due records")
	}
	return repo.fromRows(rows), nil
}

func (repo recordRepository) AdvanceReminders(ctx context.Context, ids []string, date string, exec ...core.DBExecutor) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	exe := repo.getExec(exec)
	q, args, err := sqlx.In(`UPDATE records SET next_reminder_date = ? WHERE record_id IN (?)`, date, ids)
	if err != nil {
		return 0, errors.Wrap(err, "building advance query")
	}
	res, err := exe.ExecContext(ctx, exe.Rebind(q), args...)
	if err != nil {
		return 0, errors.Wrap(err, "advancing reminders")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "advancing reminders")
}
