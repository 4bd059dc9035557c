package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/onhold/core"
	"github.com/trezcool/onhold/core/activity"
	"github.com/trezcool/onhold/core/record"
)

// DefaultAdvanceDays is how far the next reminder date moves after a successful send.
const DefaultAdvanceDays = 7

// ErrAdvanceFailed is returned when the bulk date update failed.
var ErrAdvanceFailed = errors.New("advancing next reminder dates failed")

// AddDays returns the calendar date `days` after date (YYYY-MM-DD).
func AddDays(date string, days int) (string, error) {
	t, err := time.Parse(core.DateLayout, date)
	if err != nil {
		return "", errors.Wrapf(err, "parsing date %q", date)
	}
	return t.AddDate(0, 0, days).Format(core.DateLayout), nil
}

// Advancer moves the reminder date of successfully notified records and audits the batch.
type Advancer struct {
	records    *record.Service
	activities *activity.Service
	days       int
	logger     core.Logger
}

func NewAdvancer(records *record.Service, activities *activity.Service, days int, logger core.Logger) *Advancer {
	if days < 1 {
		days = DefaultAdvanceDays
	}
	return &Advancer{records: records, activities: activities, days: days, logger: logger}
}

// Advance sets the next reminder date of sum.SentRecordIDs to sum.Date + days in a single update,
// then writes the batch audit entry. A failed update is audited separately and returned as ErrAdvanceFailed;
// the sends stay counted as sent.
func (a *Advancer) Advance(ctx context.Context, sum *Summary) error {
	var advanceErr error
	if sum.Sent > 0 && len(sum.SentRecordIDs) > 0 {
		next, err := AddDays(sum.Date, a.days)
		if err != nil {
			return err
		}
		sum.NextReminderDate = next
		n, err := a.records.AdvanceReminders(ctx, sum.SentRecordIDs, next)
		if err != nil {
			sum.AdvanceFailed = true
			advanceErr = errors.Wrapf(ErrAdvanceFailed, "%v", err)
		} else {
			sum.Advanced = n
		}
	}

	a.audit(ctx, activity.ActionReminderBatch, batchDetail(*sum))
	if advanceErr != nil {
		a.logger.Error("advancing reminders", map[string]interface{}{"records": len(sum.SentRecordIDs), "error": advanceErr.Error()})
		a.audit(ctx, activity.ActionReminderAdvanceFailed, fmt.Sprintf("date=%s next=%s records=%s error=%v",
			sum.Date, sum.NextReminderDate, strings.Join(sum.SentRecordIDs, ","), advanceErr))
	}
	return advanceErr
}

func (a *Advancer) audit(ctx context.Context, action, detail string) {
	if _, err := a.activities.Log(ctx, activity.SystemActor, action, detail); err != nil {
		a.logger.Error("writing audit entry", map[string]interface{}{"action": action, "error": err.Error()})
	}
}

func batchDetail(sum Summary) string {
	detail := fmt.Sprintf("date=%s due=%d sent=%d failed=%d", sum.Date, sum.Due, sum.Sent, sum.Failed)
	if len(sum.FailedOwners) > 0 {
		detail += " failed_owners=" + strings.Join(sum.FailedOwners, ",")
	}
	return detail
}
