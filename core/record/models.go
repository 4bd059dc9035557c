package record

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/onhold/core"
)

// Statuses
const (
	StatusOnHold       = "on-hold"
	StatusAdded        = "added"
	StatusPending      = "pending"
	StatusRefunded     = "refunded"
	StatusDiscontinued = "discontinued"

	// UnassignedOwner groups records without an owner.
	UnassignedOwner = "Unassigned"
)

var (
	AllStatuses = []string{StatusOnHold, StatusAdded, StatusPending, StatusRefunded, StatusDiscontinued}
	// DueStatuses are the statuses that still call for a follow-up reminder.
	DueStatuses = []string{StatusOnHold, StatusPending}
)

// NormalizeStatus maps user input such as "Pending", "ON HOLD" or "on_hold" to a known status.
func NormalizeStatus(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "-", "_", "-").Replace(s)
	for _, status := range AllStatuses {
		if s == status {
			return status, true
		}
	}
	return s, false
}

// OwnerGroup returns the trimmed owner name, or UnassignedOwner when blank.
func OwnerGroup(owner string) string {
	if owner = strings.TrimSpace(owner); owner != "" {
		return owner
	}
	return UnassignedOwner
}

// Record is the decoded, plaintext on-hold record.
type Record struct {
	ID                  string    `json:"record_id"`
	StudentName         string    `json:"student_name"`
	OwnerName           string    `json:"owner_name"`
	ContactEmail        string    `json:"contact_email"`
	ContactPhone        string    `json:"contact_phone"`
	Category            string    `json:"category"`
	HoldReason          string    `json:"hold_reason"`
	FollowUpComments    string    `json:"follow_up_comments"`
	Status              string    `json:"status"`
	NextReminderDate    string    `json:"next_reminder_date"` // YYYY-MM-DD, "" when unset
	RemindersSuppressed bool      `json:"reminders_suppressed"`
	CreatedBy           string    `json:"created_by"`
	CreatedAt           time.Time `json:"created_at"` // UTC
	UpdatedAt           time.Time `json:"updated_at"` // UTC
}

// IsDue reports whether the record is eligible for a reminder on `today` (YYYY-MM-DD).
func (r Record) IsDue(today string) bool {
	return isDue(r.Status, r.NextReminderDate, r.RemindersSuppressed, today)
}

// StoredRecord is the at-rest representation of a Record: sensitive fields hold envelopes.
type StoredRecord struct {
	ID                  string
	StudentName         string
	OwnerName           string
	ContactEmail        string // envelope
	ContactEmailHash    string
	ContactPhone        string // envelope
	Category            string
	HoldReason          string // envelope
	FollowUpComments    string // envelope
	Status              string
	NextReminderDate    string
	RemindersSuppressed bool
	CreatedBy           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (s StoredRecord) IsDue(today string) bool {
	return isDue(s.Status, s.NextReminderDate, s.RemindersSuppressed, today)
}

func isDue(status, nextReminder string, suppressed bool, today string) bool {
	if suppressed || nextReminder == "" || nextReminder > today {
		return false
	}
	for _, s := range DueStatuses {
		if status == s {
			return true
		}
	}
	return false
}

// NewRecord contains information needed to create a new Record.
type NewRecord struct {
	ID                  string `json:"record_id" validate:"omitempty,max=64,recordid"`
	StudentName         string `json:"student_name" validate:"required,notblank,max=200"`
	OwnerName           string `json:"owner_name" validate:"max=200"`
	ContactEmail        string `json:"contact_email" validate:"omitempty,email"`
	ContactPhone        string `json:"contact_phone" validate:"max=50"`
	Category            string `json:"category" validate:"max=100"`
	HoldReason          string `json:"hold_reason"`
	FollowUpComments    string `json:"follow_up_comments"`
	Status              string `json:"status" validate:"recordstatus"`
	NextReminderDate    string `json:"next_reminder_date" validate:"isodate"`
	RemindersSuppressed bool   `json:"reminders_suppressed"`
}

func (nr *NewRecord) Validate(validate *validator.Validate) error {
	nr.ID = core.CleanString(nr.ID)
	nr.StudentName = core.CleanString(nr.StudentName)
	nr.OwnerName = core.CleanString(nr.OwnerName)
	nr.ContactEmail = core.CleanString(nr.ContactEmail)
	nr.ContactPhone = core.CleanString(nr.ContactPhone)
	nr.Category = core.CleanString(nr.Category)
	nr.NextReminderDate = core.CleanString(nr.NextReminderDate)
	if core.CleanString(nr.Status) == "" {
		nr.Status = StatusOnHold
	} else {
		nr.Status, _ = NormalizeStatus(nr.Status)
	}
	return validate.Struct(nr)
}

// UpdateRecord defines what information may be provided to modify an existing Record.
// The record id and its creator cannot be changed.
type UpdateRecord struct {
	StudentName         *string `json:"student_name" validate:"omitempty,max=200"`
	OwnerName           *string `json:"owner_name" validate:"omitempty,max=200"`
	ContactEmail        *string `json:"contact_email" validate:"omitempty,email"`
	ContactPhone        *string `json:"contact_phone" validate:"omitempty,max=50"`
	Category            *string `json:"category" validate:"omitempty,max=100"`
	HoldReason          *string `json:"hold_reason"`
	FollowUpComments    *string `json:"follow_up_comments"`
	Status              *string `json:"status"`
	NextReminderDate    *string `json:"next_reminder_date" validate:"omitempty,isodate"`
	RemindersSuppressed *bool   `json:"reminders_suppressed"`
}

func (uu *UpdateRecord) Validate(validate *validator.Validate) error {
	for _, fld := range []*string{uu.OwnerName, uu.ContactEmail, uu.ContactPhone, uu.Category, uu.NextReminderDate} {
		if fld != nil {
			*fld = core.CleanString(*fld)
		}
	}
	var fldErrs []core.FieldError
	if uu.StudentName != nil {
		name := core.CleanString(*uu.StudentName)
		uu.StudentName = &name
		if name == "" {
			fldErrs = append(fldErrs, core.FieldError{Field: "student_name", Error: "this field cannot be blank"})
		}
	}
	if uu.Status != nil {
		status, ok := NormalizeStatus(*uu.Status)
		uu.Status = &status
		if !ok {
			fldErrs = append(fldErrs, core.FieldError{Field: "status", Error: recordStatusText})
		}
	}
	if len(fldErrs) > 0 {
		return core.NewValidationError(errInvalidUpdate, fldErrs...)
	}
	return validate.Struct(uu)
}

// IsEmpty reports whether no field was supplied.
func (uu UpdateRecord) IsEmpty() bool {
	return uu.StudentName == nil && uu.OwnerName == nil && uu.ContactEmail == nil && uu.ContactPhone == nil &&
		uu.Category == nil && uu.HoldReason == nil && uu.FollowUpComments == nil && uu.Status == nil &&
		uu.NextReminderDate == nil && uu.RemindersSuppressed == nil
}

type QueryFilter struct {
	Search     string   `query:"search"`
	Statuses   []string `query:"status"`
	Owner      string   `query:"owner"`
	Email      string   `query:"email"`
	DueBefore  string   `query:"due_before"` // next reminder on or before, YYYY-MM-DD
	Suppressed *bool    `query:"-"`

	// EmailHash is derived from Email by the service; the repository only ever sees the hash.
	EmailHash string `query:"-"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Statuses == nil && qf.Owner == "" && qf.Email == "" && qf.EmailHash == "" && qf.DueBefore == "" &&
		qf.Suppressed == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Owner = core.CleanString(qf.Owner)
	qf.Email = core.CleanString(qf.Email)
	qf.DueBefore = core.CleanString(qf.DueBefore)
	if qf.DueBefore != "" && !core.IsDate(qf.DueBefore) {
		qf.DueBefore = ""
	}
	statuses := make([]string, 0, len(qf.Statuses))
	for _, s := range qf.Statuses {
		if status, ok := NormalizeStatus(s); ok {
			statuses = append(statuses, status)
		}
	}
	if len(statuses) > 0 {
		qf.Statuses = statuses
	} else if qf.Statuses != nil {
		qf.Statuses = []string{""} // only unknown statuses were requested: match nothing
	}
}

// Stats is an aggregate view over all records.
type Stats struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ByOwner    map[string]int `json:"by_owner"`
	Due        int            `json:"due"`
	Suppressed int            `json:"suppressed"`
}
