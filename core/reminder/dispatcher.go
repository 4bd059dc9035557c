// Package reminder selects due records, mails one reminder per owner and moves their next reminder date forward.
package reminder

import (
	"context"
	"fmt"
	"net/mail"
	"sort"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/onhold/core"
	"github.com/trezcool/onhold/core/record"
)

const templateName = "reminder"

type (
	// Group is the set of due records sharing an owner.
	Group struct {
		Owner   string
		Records []record.Record
	}

	// Summary reports the outcome of one batch run.
	Summary struct {
		Date             string   `json:"date"`
		Due              int      `json:"due"`
		Sent             int      `json:"sent"`
		Failed           int      `json:"failed"`
		SentRecordIDs    []string `json:"sent_record_ids"`
		FailedOwners     []string `json:"failed_owners"`
		NextReminderDate string   `json:"next_reminder_date,omitempty"`
		Advanced         int64    `json:"advanced"`
		AdvanceFailed    bool     `json:"advance_failed"`
	}

	reminderRow struct {
		StudentName  string
		Phone        string
		Category     string
		Reason       string
		ReminderDate string
	}

	reminderData struct {
		Owner string
		Count int
		Rows  []reminderRow
	}
)

func newSummary(date string) Summary {
	return Summary{Date: date, SentRecordIDs: []string{}, FailedOwners: []string{}}
}

// GroupByOwner groups records by trimmed owner name, blank owners falling under record.UnassignedOwner.
// Groups are sorted by owner; records keep their input order.
func GroupByOwner(records []record.Record) []Group {
	idx := make(map[string]int)
	groups := make([]Group, 0)
	for _, rec := range records {
		owner := record.OwnerGroup(rec.OwnerName)
		i, ok := idx[owner]
		if !ok {
			i = len(groups)
			idx[owner] = i
			groups = append(groups, Group{Owner: owner})
		}
		groups[i].Records = append(groups[i].Records, rec)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Owner < groups[j].Owner })
	return groups
}

// NewMessage builds the reminder for one group, addressed to `to`.
func NewMessage(grp Group, to mail.Address) *core.EmailMessage {
	data := reminderData{Owner: grp.Owner, Count: len(grp.Records), Rows: make([]reminderRow, 0, len(grp.Records))}
	for _, rec := range grp.Records {
		data.Rows = append(data.Rows, reminderRow{
			StudentName:  rec.StudentName,
			Phone:        rec.ContactPhone,
			Category:     rec.Category,
			Reason:       rec.HoldReason,
			ReminderDate: rec.NextReminderDate,
		})
	}
	return &core.EmailMessage{
		To:           []mail.Address{to},
		Subject:      fmt.Sprintf("Follow-up reminder: %s (%d records)", grp.Owner, len(grp.Records)),
		TemplateName: templateName,
		TemplateData: data,
	}
}

// Dispatcher mails one reminder per owner group to the operations mailbox.
type Dispatcher struct {
	mailer      core.EmailService
	to          mail.Address
	maxAttempts int
	timer       backoff.Timer
	logger      core.Logger
	metrics     *Metrics
}

// NewDispatcher returns a dispatcher sending to mailbox. A nil timer really sleeps between attempts.
func NewDispatcher(mailer core.EmailService, mailbox mail.Address, maxAttempts int, timer backoff.Timer, logger core.Logger, metrics *Metrics) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Dispatcher{
		mailer:      mailer,
		to:          mailbox,
		maxAttempts: maxAttempts,
		timer:       timer,
		logger:      logger,
		metrics:     metrics,
	}
}

// Configured reports whether reminders can be sent at all.
func (d *Dispatcher) Configured() bool {
	return d.mailer != nil && d.mailer.Configured() && d.to.Address != ""
}

// Dispatch sends one message per group, sequentially. A group that fails every attempt is reported
// in the summary and the next group is tried. Only an unconfigured transport is an error.
func (d *Dispatcher) Dispatch(ctx context.Context, sum *Summary, records []record.Record) error {
	if !d.Configured() {
		return core.ErrMailUnconfigured
	}

	for _, grp := range GroupByOwner(records) {
		attempts, err := SendWithRetry(ctx, d.mailer, NewMessage(grp, d.to), d.maxAttempts, d.timer, d.logger)
		if err != nil {
			if errors.Cause(err) == core.ErrMailUnconfigured {
				return err
			}
			sum.Failed++
			sum.FailedOwners = append(sum.FailedOwners, grp.Owner)
			d.metrics.emailFailed()
			d.logger.Error("reminder not sent", map[string]interface{}{
				"owner":    grp.Owner,
				"records":  len(grp.Records),
				"attempts": attempts,
				"error":    err.Error(),
			})
			continue
		}

		sum.Sent++
		for _, rec := range grp.Records {
			sum.SentRecordIDs = append(sum.SentRecordIDs, rec.ID)
		}
		d.metrics.emailSent()
		d.logger.Info("reminder sent", map[string]interface{}{
			"owner":    grp.Owner,
			"records":  len(grp.Records),
			"attempts": attempts,
		})
	}
	return nil
}
