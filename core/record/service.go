package record

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/onhold/core"
)

var (
	// errors
	ErrNotFound    = errors.New("record not found")
	ErrDuplicateID = errors.New("a record with this id already exists")

	errInvalidUpdate = errors.New("invalid record update")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		// CreateRecord must return ErrDuplicateID when the storage unique constraint on the record id fires.
		CreateRecord(ctx context.Context, rec StoredRecord, exec ...core.DBExecutor) (StoredRecord, error)
		GetRecord(ctx context.Context, id string, exec ...core.DBExecutor) (StoredRecord, error)
		// QueryRecords applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of student name, owner name or category.
		// Without orderings, the most recently created records come first.
		QueryRecords(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]StoredRecord, error)
		// UpdateRecord writes the mutable columns, next_reminder_date only when withReminderDate is set.
		// It never writes the record id, its creator or creation time.
		UpdateRecord(ctx context.Context, rec StoredRecord, withReminderDate bool, exec ...core.DBExecutor) (StoredRecord, error)
		DeleteRecord(ctx context.Context, id string, exec ...core.DBExecutor) error
		// SelectDue returns the records due on `today`, ordered by record id.
		SelectDue(ctx context.Context, today string, exec ...core.DBExecutor) ([]StoredRecord, error)
		// AdvanceReminders sets the next reminder date of every listed record in a single statement.
		AdvanceReminders(ctx context.Context, ids []string, date string, exec ...core.DBExecutor) (int64, error)
	}

	Service struct {
		repo     Repository
		codec    *Codec
		validate *validator.Validate
	}
)

func NewService(repo Repository, codec *Codec, validate *validator.Validate) *Service {
	return &Service{repo: repo, codec: codec, validate: validate}
}

func (svc *Service) Codec() *Codec { return svc.codec }

// Create validates nr and persists it on behalf of actor, who becomes the record creator.
func (svc *Service) Create(ctx context.Context, nr NewRecord, actor string) (Record, error) {
	if err := nr.Validate(svc.validate); err != nil {
		return Record{}, err
	}
	if nr.ID == "" {
		nr.ID = uuid.New().String()
	}

	now := NowFunc().UTC()
	rec := Record{
		ID:                  nr.ID,
		StudentName:         nr.StudentName,
		OwnerName:           nr.OwnerName,
		ContactEmail:        nr.ContactEmail,
		ContactPhone:        nr.ContactPhone,
		Category:            nr.Category,
		HoldReason:          nr.HoldReason,
		FollowUpComments:    nr.FollowUpComments,
		Status:              nr.Status,
		NextReminderDate:    nr.NextReminderDate,
		RemindersSuppressed: nr.RemindersSuppressed,
		CreatedBy:           actor,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	stored, err := svc.codec.ToStorage(rec)
	if err != nil {
		return Record{}, errors.Wrap(err, "encoding record")
	}
	stored, err = svc.repo.CreateRecord(ctx, stored)
	if err != nil {
		return Record{}, errors.Wrap(err, "inserting record")
	}
	return svc.codec.FromStorage(stored), nil
}

func (svc *Service) Get(ctx context.Context, id string) (Record, error) {
	stored, err := svc.repo.GetRecord(ctx, id)
	if err != nil {
		return Record{}, errors.Wrap(err, "finding record by ID")
	}
	return svc.codec.FromStorage(stored), nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Record, error) {
	if filter != nil && filter.Email != "" {
		filter.EmailHash = svc.codec.HashEmail(filter.Email)
	}
	stored, err := svc.repo.QueryRecords(ctx, filter, ordering)
	if err != nil {
		return nil, errors.Wrap(err, "querying records")
	}
	return svc.codec.FromStorageSlice(stored), nil
}

// QueryAll lists every record, most recently created first.
func (svc *Service) QueryAll(ctx context.Context) ([]Record, error) {
	return svc.Query(ctx, nil, nil)
}

// Update merges uu into the record identified by id. The creator is never changed, and the next reminder
// date is only written when uu sets it so that a reminder batch advancing it meanwhile is kept.
func (svc *Service) Update(ctx context.Context, id string, uu UpdateRecord) (Record, error) {
	if err := uu.Validate(svc.validate); err != nil {
		return Record{}, err
	}
	stored, err := svc.repo.GetRecord(ctx, id)
	if err != nil {
		return Record{}, errors.Wrap(err, "finding record by ID")
	}
	if err = svc.codec.ApplyUpdate(&stored, uu); err != nil {
		return Record{}, errors.Wrap(err, "encoding record")
	}
	stored.UpdatedAt = NowFunc().UTC()

	stored, err = svc.repo.UpdateRecord(ctx, stored, uu.NextReminderDate != nil)
	if err != nil {
		return Record{}, errors.Wrap(err, "updating record")
	}
	return svc.codec.FromStorage(stored), nil
}

// Delete removes the record for good.
func (svc *Service) Delete(ctx context.Context, id string) error {
	return errors.Wrap(svc.repo.DeleteRecord(ctx, id), "deleting record")
}

// SelectDue returns the decoded records due on `today`.
func (svc *Service) SelectDue(ctx context.Context, today string) ([]Record, error) {
	stored, err := svc.repo.SelectDue(ctx, today)
	if err != nil {
		return nil, errors.Wrap(err, "selecting due records")
	}
	return svc.codec.FromStorageSlice(stored), nil
}

// AdvanceReminders moves the next reminder date of the listed records to `date`.
func (svc *Service) AdvanceReminders(ctx context.Context, ids []string, date string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := svc.repo.AdvanceReminders(ctx, ids, date)
	return n, errors.Wrap(err, "advancing reminders")
}

// Stats aggregates every record; only plain columns are read, nothing is decrypted.
func (svc *Service) Stats(ctx context.Context, today string) (Stats, error) {
	stored, err := svc.repo.QueryRecords(ctx, nil, nil)
	if err != nil {
		return Stats{}, errors.Wrap(err, "querying records")
	}

	stats := Stats{
		Total:    len(stored),
		ByStatus: make(map[string]int, len(AllStatuses)),
		ByOwner:  make(map[string]int),
	}
	for _, s := range AllStatuses {
		stats.ByStatus[s] = 0
	}
	for _, s := range stored {
		stats.ByStatus[s.Status]++
		stats.ByOwner[OwnerGroup(s.OwnerName)]++
		if s.IsDue(today) {
			stats.Due++
		}
		if s.RemindersSuppressed {
			stats.Suppressed++
		}
	}
	return stats, nil
}
