package reminder

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/onhold/core"
	"github.com/trezcool/onhold/core/activity"
	"github.com/trezcool/onhold/core/record"
)

// States of a batch run.
const (
	StateIdle        State = "IDLE"
	StateSelecting   State = "SELECTING"
	StateDispatching State = "DISPATCHING"
	StateAdvancing   State = "ADVANCING"
	StateDone        State = "DONE"
	StateAborted     State = "ABORTED"

	outcomeDone          = "done"
	outcomePartial       = "partial"
	outcomeAborted       = "aborted"
	outcomeAdvanceFailed = "advance_failed"
)

var (
	// ErrRunInProgress is returned when a batch is started while another one is running.
	ErrRunInProgress = errors.New("a reminder batch is already running")

	NowFunc = time.Now // mockable
)

type State string

// Runner executes batch runs: select the due records, dispatch the reminders, advance the dates.
type Runner struct {
	records    *record.Service
	dispatcher *Dispatcher
	advancer   *Advancer
	activities *activity.Service
	loc        *time.Location
	logger     core.Logger
	metrics    *Metrics

	runMu   sync.Mutex
	stateMu sync.RWMutex
	state   State
}

type RunnerDeps struct {
	Records    *record.Service
	Activities *activity.Service
	Dispatcher *Dispatcher
	Advancer   *Advancer
	Location   *time.Location // "today" is computed in this location
	Logger     core.Logger
	Metrics    *Metrics
}

func NewRunner(deps RunnerDeps) *Runner {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Runner{
		records:    deps.Records,
		dispatcher: deps.Dispatcher,
		advancer:   deps.Advancer,
		activities: deps.Activities,
		loc:        loc,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		state:      StateIdle,
	}
}

// State returns the state of the current, or last, batch run.
func (r *Runner) State() State {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.state
}

func (r *Runner) setState(s State) {
	r.stateMu.Lock()
	r.state = s
	r.stateMu.Unlock()
}

// Today returns the current date in the runner location.
func (r *Runner) Today() string {
	return NowFunc().In(r.loc).Format(core.DateLayout)
}

// Run executes one batch for `today` (YYYY-MM-DD; blank means Today()).
// Per-group send failures and a failed date advance are reported in the summary, not as errors.
// The batch is aborted, with an audit entry, when mail is unconfigured or the due records cannot be selected.
func (r *Runner) Run(ctx context.Context, today string) (Summary, error) {
	if !r.runMu.TryLock() {
		return Summary{}, ErrRunInProgress
	}
	defer r.runMu.Unlock()

	started := time.Now()
	if today == "" {
		today = r.Today()
	} else if !core.IsDate(today) {
		return Summary{}, core.NewValidationError(errors.Errorf("invalid date %q", today),
			core.FieldError{Field: "date", Error: "date must be formatted as YYYY-MM-DD"})
	}
	sum := newSummary(today)

	if !r.dispatcher.Configured() {
		return sum, r.abort(ctx, sum, started, core.ErrMailUnconfigured)
	}

	r.setState(StateSelecting)
	due, err := r.records.SelectDue(ctx, today)
	if err != nil {
		return sum, r.abort(ctx, sum, started, err)
	}
	sum.Due = len(due)

	r.setState(StateDispatching)
	if err = r.dispatcher.Dispatch(ctx, &sum, due); err != nil {
		return sum, r.abort(ctx, sum, started, err)
	}

	r.setState(StateAdvancing)
	outcome := outcomeDone
	if sum.Failed > 0 {
		outcome = outcomePartial
	}
	if err = r.advancer.Advance(ctx, &sum); err != nil {
		outcome = outcomeAdvanceFailed
	}

	r.setState(StateDone)
	r.metrics.run(outcome, started)
	r.logger.Info("reminder batch done", map[string]interface{}{
		"date":           sum.Date,
		"due":            sum.Due,
		"sent":           sum.Sent,
		"failed":         sum.Failed,
		"advanced":       sum.Advanced,
		"advance_failed": sum.AdvanceFailed,
	})
	return sum, nil
}

func (r *Runner) abort(ctx context.Context, sum Summary, started time.Time, cause error) error {
	r.setState(StateAborted)
	r.metrics.run(outcomeAborted, started)
	r.logger.Error("reminder batch aborted", map[string]interface{}{"date": sum.Date, "error": cause.Error()})
	if _, err := r.activities.Log(ctx, activity.SystemActor, activity.ActionReminderBatchAborted,
		"date="+sum.Date+" reason="+cause.Error()); err != nil {
		r.logger.Error("writing audit entry", map[string]interface{}{"action": activity.ActionReminderBatchAborted, "error": err.Error()})
	}
	return errors.Wrap(cause, "reminder batch aborted")
}
