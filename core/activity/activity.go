// Package activity is the append-only audit log.
package activity

import (
	"context"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/onhold/core"
)

// Actions
const (
	ActionRecordCreate          = "record.create"
	ActionRecordUpdate          = "record.update"
	ActionRecordDelete          = "record.delete"
	ActionRecordExport          = "record.export"
	ActionRecordView            = "record.view"
	ActionNotificationSend      = "notification.send"
	ActionReminderBatch         = "reminder.batch"
	ActionReminderAdvanceFailed = "reminder.advance_failed"
	ActionReminderBatchAborted  = "reminder.batch_aborted"
	ActionUserLogin             = "user.login"

	// SystemActor is the actor of entries written by the reminder pipeline.
	SystemActor = "system"
)

var (
	AllActions = []string{
		ActionRecordCreate, ActionRecordUpdate, ActionRecordDelete, ActionRecordExport, ActionRecordView,
		ActionNotificationSend, ActionReminderBatch, ActionReminderAdvanceFailed, ActionReminderBatchAborted,
		ActionUserLogin,
	}

	// ClientActions are the actions staff may append through Append; the others are written by the system only.
	ClientActions = []string{ActionRecordExport, ActionRecordView}

	actionTag        = "activityaction"
	actionText       = "unknown action"
	clientActionTag  = "clientaction"
	clientActionText = "action is reserved to the system"

	NowFunc = time.Now // mockable
)

type Entry struct {
	ID        int64     `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// NewEntry contains information needed to append an Entry.
type NewEntry struct {
	Action string `json:"action" validate:"required,activityaction,clientaction"`
	Detail string `json:"detail" validate:"max=2000"`
}

func (ne *NewEntry) Validate(validate *validator.Validate) error {
	ne.Action = core.CleanString(ne.Action, true /* lower */)
	ne.Detail = core.CleanString(ne.Detail)
	return validate.Struct(ne)
}

type QueryFilter struct {
	Actor  string `query:"actor"`
	Action string `query:"action"`
	Limit  int    `query:"limit"` // latest N entries, still in insertion order
}

type (
	Repository interface {
		AppendEntry(ctx context.Context, entry Entry, exec ...core.DBExecutor) (Entry, error)
		// QueryEntries returns entries in insertion order.
		QueryEntries(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Entry, error)
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
	}
)

func NewService(repo Repository, validate *validator.Validate) *Service {
	return &Service{repo: repo, validate: validate}
}

// InitValidators registers the activity validations on validate.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(actionTag, func(fl validator.FieldLevel) bool {
		return IsAction(fl.Field().String())
	})
	_ = validate.RegisterValidation(clientActionTag, func(fl validator.FieldLevel) bool {
		return IsClientAction(fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, actionTag, actionText)
	core.RegisterCustomTranslation(validate, translator, clientActionTag, clientActionText)
}

func IsAction(action string) bool {
	return contains(AllActions, action)
}

func IsClientAction(action string) bool {
	return contains(ClientActions, action)
}

func contains(actions []string, action string) bool {
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

// Append validates ne and stores it on behalf of actor. Only ClientActions are accepted.
func (svc *Service) Append(ctx context.Context, actor string, ne NewEntry) (Entry, error) {
	if err := ne.Validate(svc.validate); err != nil {
		return Entry{}, err
	}
	return svc.Log(ctx, actor, ne.Action, ne.Detail)
}

// Log stores an entry written by the system itself.
func (svc *Service) Log(ctx context.Context, actor, action, detail string) (Entry, error) {
	if !IsAction(action) {
		return Entry{}, errors.Errorf("unknown action %q", action)
	}
	entry, err := svc.repo.AppendEntry(ctx, Entry{
		Actor:     actor,
		Action:    action,
		Detail:    detail,
		CreatedAt: NowFunc().UTC(),
	})
	return entry, errors.Wrap(err, "appending activity")
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	filter.Actor = core.CleanString(filter.Actor)
	filter.Action = core.CleanString(filter.Action, true /* lower */)
	if filter.Limit < 0 {
		filter.Limit = 0
	}
	entries, err := svc.repo.QueryEntries(ctx, filter)
	return entries, errors.Wrap(err, "querying activities")
}
