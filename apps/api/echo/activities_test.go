package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/onhold/core/activity"
)

func Test_activities(t *testing.T) {
	f := setup(t)
	staffToken := getToken(t, f.app, f.staff)
	adminToken := getToken(t, f.app, f.admin)

	tests := []httpTest{
		{name: "Auth required", method: http.MethodPost, body: []byte(`{"action": "record.export"}`), wantCode: http.StatusUnauthorized},
		{
			name: "Unknown action", method: http.MethodPost, token: staffToken, body: []byte(`{"action": "record.burn"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"action": "unknown action"}),
		},
		{
			name: "System action", method: http.MethodPost, token: adminToken, body: []byte(`{"action": "reminder.batch", "detail": "date=2026-10-18 due=0 sent=0 failed=0"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"action": "action is reserved to the system"}),
		},
		{
			name: "Advance failure action", method: http.MethodPost, token: staffToken, body: []byte(`{"action": "reminder.advance_failed"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"action": "action is reserved to the system"}),
		},
		{name: "Export", method: http.MethodPost, token: staffToken, body: []byte(`{"action": "Record.Export", "detail": "csv"}`), wantCode: http.StatusCreated},
		{name: "View", method: http.MethodPost, token: adminToken, body: []byte(`{"action": "record.view", "detail": "R-1"}`), wantCode: http.StatusCreated},
		{name: "Bad limit", method: http.MethodGet, path: "/api/activities?limit=ten", token: staffToken, wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		if tt.path == "" {
			tt.path = "/api/activities"
		}

		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, f.run(t, tt))
		})
	}

	query := func(path string) []activity.Entry {
		req, rec := newAuthRequest(http.MethodGet, path, staffToken)
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var entries []activity.Entry
		decode(t, rec, &entries)
		return entries
	}

	entries := query("/api/activities")
	require.Len(t, entries, 2)
	assert.Equal(t, activity.ActionRecordExport, entries[0].Action)
	assert.Equal(t, "alice@school.test", entries[0].Actor)
	assert.Equal(t, "csv", entries[0].Detail)

	entries = query("/api/activities?actor=admin@school.test")
	require.Len(t, entries, 1)
	assert.Equal(t, activity.ActionRecordView, entries[0].Action)

	entries = query("/api/activities?limit=1")
	require.Len(t, entries, 1)
	assert.Equal(t, activity.ActionRecordView, entries[0].Action)
}
