package echoapi_test

import (
	"context"
	"crypto/rand"
	"net/http"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/onhold/core/activity"
	"github.com/trezcool/onhold/core/cryptox"
	"github.com/trezcool/onhold/core/record"
	"github.com/trezcool/onhold/core/reminder"
	"github.com/trezcool/onhold/tests"
)

func recordIDs(records []record.Record) []string {
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	return ids
}

func Test_recordCreate(t *testing.T) {
	f := setup(t)
	token := getToken(t, f.app, f.staff)

	body := []byte(`{
		"record_id": "R-1",
		"student_name": " Jane Doe ",
		"owner_name": "Alice",
		"contact_email": "jane@family.test",
		"hold_reason": "fees",
		"status": "Pending",
		"next_reminder_date": "2026-10-18",
		"created_by": "mallory"
	}`)
	req, rec := newAuthRequest(http.MethodPost, "/api/records", token, body)
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created record.Record
	decode(t, rec, &created)
	assert.Equal(t, "R-1", created.ID)
	assert.Equal(t, "Jane Doe", created.StudentName)
	assert.Equal(t, "jane@family.test", created.ContactEmail)
	assert.Equal(t, record.StatusPending, created.Status)
	assert.Equal(t, "alice@school.test", created.CreatedBy)

	tests := []httpTest{
		{name: "Auth required", body: body, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Duplicate id", token: token, body: body,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: record.ErrDuplicateID.Error()}),
		},
		{
			name: "Missing student name", token: token, body: []byte(`{"record_id": "R-2"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"student_name": "this field is required"}),
		},
		{
			name: "Bad date", token: token, body: []byte(`{"student_name": "Joe", "next_reminder_date": "18/10/2026"}`),
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/api/records"

		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, f.run(t, tt))
		})
	}

	entries, err := f.activities.Query(context.Background(), activity.QueryFilter{Action: activity.ActionRecordCreate})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "record_id=R-1", entries[0].Detail)
	assert.Equal(t, "alice@school.test", entries[0].Actor)
}

func Test_recordQuery(t *testing.T) {
	f := setup(t)
	token := getToken(t, f.app, f.staff)

	create := func(nr record.NewRecord) record.Record {
		testutil.CreateRecord(t, f.records, nr, "alice@school.test")
		rec, err := f.records.Get(context.Background(), nr.ID)
		require.NoError(t, err)
		return rec
	}
	r1 := create(record.NewRecord{ID: "R-1", StudentName: "Amy", OwnerName: "Alice", ContactEmail: "amy@family.test", Status: "pending"})
	r2 := create(record.NewRecord{ID: "R-2", StudentName: "Bea", OwnerName: "Bob", Status: "refunded", RemindersSuppressed: true})
	r3 := create(record.NewRecord{ID: "R-3", StudentName: "Cid", OwnerName: "Alice", Status: "on-hold"})

	empty := []byte(`[]`)
	tests := []httpTest{
		{name: "Auth required", path: "/api/records", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Search", path: "/api/records?search=bE", wantData: marchallList(t, r2)},
		{name: "Owner", path: "/api/records?owner=alice&ordering=record_id", wantData: marchallList(t, r1, r3)},
		{name: "Email", path: "/api/records?email=%20AMY@family.test", wantData: marchallList(t, r1)},
		{name: "Email (unknown)", path: "/api/records?email=zed@family.test", wantData: empty},
		{name: "Statuses", path: "/api/records?status=Pending,on_hold&ordering=-record_id", wantData: marchallList(t, r3, r1)},
		{name: "Status (unknown)", path: "/api/records?status=lol", wantData: empty},
		{name: "Suppressed", path: "/api/records?suppressed=true", wantData: marchallList(t, r2)},
		{
			name: "Suppressed (invalid)", path: "/api/records?suppressed=maybe", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"suppressed": "must be true or false"}),
		},
		{name: "Ordering", path: "/api/records?ordering=-student_name", wantData: marchallList(t, r3, r2, r1)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.token == "" && tt.wantCode == 0 {
			tt.token = token
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, f.run(t, tt))
		})
	}

	t.Run("Most recent first", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/records", token)
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var records []record.Record
		decode(t, rec, &records)
		assert.Equal(t, []string{"R-3", "R-2", "R-1"}, recordIDs(records))
	})
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy source failed") }

func Test_recordCreateEncryptionFailure(t *testing.T) {
	f := setup(t)
	cryptox.RandReader = failingReader{}
	t.Cleanup(func() { cryptox.RandReader = rand.Reader })

	tt := httpTest{
		method:   http.MethodPost,
		path:     "/api/records",
		token:    getToken(t, f.app, f.staff),
		body:     []byte(`{"record_id": "R-1", "student_name": "Jane", "contact_phone": "555-0100"}`),
		wantCode: http.StatusInternalServerError,
		wantData: marchallObj(t, httpErr{Error: "Internal Server Error"}),
	}
	checkCodeAndData(t, tt, f.run(t, tt))

	select {
	case <-f.app.ShutdownSignal():
	default:
		t.Error("server was not asked to shut down")
	}
	assert.Equal(t, 1, f.logger.Count("error", "Internal Server Error"))
	assert.NotContains(t, f.logger.Dump(), "555-0100")
}

func Test_recordStats(t *testing.T) {
	reminder.NowFunc = func() time.Time { return time.Date(2026, 10, 18, 23, 30, 0, 0, time.UTC) }
	t.Cleanup(func() { reminder.NowFunc = time.Now })

	f := setup(t)
	testutil.CreateRecord(t, f.records, record.NewRecord{StudentName: "Amy", OwnerName: "Alice", Status: "pending", NextReminderDate: "2026-10-18"}, "x")
	testutil.CreateRecord(t, f.records, record.NewRecord{StudentName: "Bea", Status: "added", RemindersSuppressed: true}, "x")
	testutil.CreateRecord(t, f.records, record.NewRecord{StudentName: "Cid", Status: "on-hold", NextReminderDate: "2026-10-19"}, "x")

	req, rec := newAuthRequest(http.MethodGet, "/api/records/stats", getToken(t, f.app, f.staff))
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats record.Stats
	decode(t, rec, &stats)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[record.StatusPending])
	assert.Equal(t, 1, stats.ByOwner["Alice"])
	assert.Equal(t, 1, stats.Due)
	assert.Equal(t, 1, stats.Suppressed)
}

func Test_recordDetail(t *testing.T) {
	f := setup(t)
	staffToken := getToken(t, f.app, f.staff)
	adminToken := getToken(t, f.app, f.admin)

	testutil.CreateRecord(t, f.records, record.NewRecord{
		ID: "R-1", StudentName: "Amy", ContactPhone: "555-0100", Status: "pending",
	}, "admin@school.test")
	r1, err := f.records.Get(context.Background(), "R-1")
	require.NoError(t, err)

	notFound := marchallObj(t, httpErr{Error: record.ErrNotFound.Error()})
	tests := []httpTest{
		{name: "Get", method: http.MethodGet, path: "/api/records/R-1", token: staffToken, wantCode: http.StatusOK, wantData: marchallObj(t, r1)},
		{name: "Get (unknown)", method: http.MethodGet, path: "/api/records/R-9", token: staffToken, wantCode: http.StatusNotFound, wantData: notFound},
		{
			name: "Update (unknown)", method: http.MethodPut, path: "/api/records/R-9", token: staffToken,
			body: []byte(`{"status": "added"}`), wantCode: http.StatusNotFound, wantData: notFound,
		},
		{
			name: "Update (bad status)", method: http.MethodPut, path: "/api/records/R-1", token: staffToken,
			body: []byte(`{"status": "lost"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "Delete (staff)", method: http.MethodDelete, path: "/api/records/R-1", token: staffToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "Delete (unknown)", method: http.MethodDelete, path: "/api/records/R-9", token: adminToken, wantCode: http.StatusNotFound, wantData: notFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, f.run(t, tt))
		})
	}

	t.Run("Update", func(t *testing.T) {
		body := []byte(`{"status": "Added", "follow_up_comments": "called twice", "record_id": "R-2", "created_by": "mallory"}`)
		req, rec := newAuthRequest(http.MethodPut, "/api/records/R-1", staffToken, body)
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var updated record.Record
		decode(t, rec, &updated)
		assert.Equal(t, "R-1", updated.ID)
		assert.Equal(t, record.StatusAdded, updated.Status)
		assert.Equal(t, "called twice", updated.FollowUpComments)
		assert.Equal(t, "555-0100", updated.ContactPhone)
		assert.Equal(t, "admin@school.test", updated.CreatedBy)
	})

	t.Run("Delete", func(t *testing.T) {
		tt := httpTest{
			method: http.MethodDelete, path: "/api/records/R-1", token: adminToken,
			wantCode: http.StatusOK, wantData: []byte(`{"success": "record deleted"}`),
		}
		checkCodeAndData(t, tt, f.run(t, tt))

		_, err := f.records.Get(context.Background(), "R-1")
		assert.Equal(t, record.ErrNotFound, errors.Cause(err))
	})

	entries, err := f.activities.Query(context.Background(), activity.QueryFilter{})
	require.NoError(t, err)
	actions := make([]string, len(entries))
	for i, e := range entries {
		actions[i] = e.Action
	}
	assert.Equal(t, []string{activity.ActionRecordUpdate, activity.ActionRecordDelete}, actions)
}
