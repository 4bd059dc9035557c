package echoapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/onhold/apps/api/echo"
	"github.com/trezcool/onhold/core"
	"github.com/trezcool/onhold/core/activity"
	"github.com/trezcool/onhold/core/record"
	"github.com/trezcool/onhold/core/reminder"
	"github.com/trezcool/onhold/core/user"
	emailsvc "github.com/trezcool/onhold/services/email"
	"github.com/trezcool/onhold/storage/database/sqlxrepos"
	"github.com/trezcool/onhold/tests"
)

const (
	batchSecret = "s3cr3t-batch"
	password    = "Strong_Pa$$w0rd"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

type fixture struct {
	app        *echoapi.Server
	conf       *core.Config
	usrRepo    user.Repository
	records    *record.Service
	activities *activity.Service
	mailer     *emailsvc.ConsoleServiceMock
	logger     *testutil.Logger
	registry   *prometheus.Registry

	admin, staff, inactive user.User
}

// instantTimer lets retries go through without waiting.
type instantTimer struct {
	mu sync.Mutex
	c  chan time.Time
}

func (t *instantTimer) Start(time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.c = make(chan time.Time, 1)
	t.c <- time.Time{}
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.c
}

func newConfig() *core.Config {
	conf := &core.Config{AppName: "OnHold", Env: "TEST", TestMode: true, SecretKey: "secret"}
	conf.Server.JWTExpirationDelta = 10 * time.Minute
	conf.Server.JWTRefreshExpirationDelta = 4 * time.Hour
	conf.Mail.DefaultFromEmail = "noreply@school.test"
	conf.Mail.OperationsMailbox = "ops@school.test"
	conf.Reminders.BatchSecret = batchSecret
	conf.Reminders.AdvanceDays = 7
	conf.Reminders.MaxAttempts = 3
	return conf
}

type fixtureOpts struct {
	unconfiguredMail bool
	reqLog           io.Writer // request logs are disabled when nil
}

func setup(t *testing.T, unconfiguredMail ...bool) *fixture {
	return setupWith(t, fixtureOpts{unconfiguredMail: len(unconfiguredMail) > 0 && unconfiguredMail[0]})
}

func setupWith(t *testing.T, opts fixtureOpts) *fixture {
	conf := newConfig()
	db := testutil.OpenDB(t)
	logger := new(testutil.Logger)

	validate, translator := core.NewValidator()
	record.InitValidators(validate, translator)
	activity.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	f := &fixture{conf: conf, logger: logger, registry: prometheus.NewRegistry()}
	f.usrRepo = sqlxrepos.NewUserRepository(db)
	f.records = record.NewService(
		sqlxrepos.NewRecordRepository(db),
		record.NewCodec(testutil.NewCipher(t), logger),
		validate,
	)
	f.activities = activity.NewService(sqlxrepos.NewActivityRepository(db), validate)
	if opts.unconfiguredMail {
		f.mailer = emailsvc.NewUnconfiguredServiceMock(conf)
	} else {
		f.mailer = emailsvc.NewConsoleServiceMock(conf)
	}

	mailbox := mail.Address{Address: conf.Mail.OperationsMailbox}
	runner := reminder.NewRunner(reminder.RunnerDeps{
		Records:    f.records,
		Activities: f.activities,
		Dispatcher: reminder.NewDispatcher(f.mailer, mailbox, conf.Reminders.MaxAttempts, new(instantTimer), logger, nil),
		Advancer:   reminder.NewAdvancer(f.records, f.activities, conf.Reminders.AdvanceDays, logger),
		Logger:     logger,
	})

	f.app = echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         logger,
		UserSvc:        user.NewService(f.usrRepo, validate),
		RecordSvc:      f.records,
		ActivitySvc:    f.activities,
		MailSvc:        f.mailer,
		Runner:         runner,
		Validate:       validate,
		Translator:     translator,
		Registry:       f.registry,
		DisableReqLogs: opts.reqLog == nil,
		ReqLogOutput:   opts.reqLog,
	})
	t.Cleanup(func() { _ = f.app.Close() })

	f.admin = testutil.CreateUser(t, f.usrRepo, "Admin", "admin", "admin@school.test", password, user.AdminRoles, true)
	f.staff = testutil.CreateUser(t, f.usrRepo, "Alice", "alice", "alice@school.test", password, user.StaffRoles, true)
	f.inactive = testutil.CreateUser(t, f.usrRepo, "Gone", "gone", "gone@school.test", password, user.StaffRoles, false)
	return f
}

func (f *fixture) run(t *testing.T, tt httpTest) *httptest.ResponseRecorder {
	t.Helper()
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	f.app.ServeHTTP(rec, req)
	return rec
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, app *echoapi.Server, usr user.User) string {
	token, err := app.GenerateToken(app.GetUserClaims(usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestServer_Home(t *testing.T) {
	f := setup(t)

	req, rec := newRequest(http.MethodGet, "/")
	f.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to OnHold API!", rec.Body.String())
}

func TestServer_Metrics(t *testing.T) {
	f := setup(t)

	req, rec := newRequest(http.MethodGet, "/api/records")
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req, rec = newRequest(http.MethodGet, "/metrics")
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `onhold_http_requests_total{code="401",method="GET",route="/api/records"} 1`), body)
	assert.Contains(t, body, "onhold_http_request_duration_seconds")
}

func TestServer_RequestLog(t *testing.T) {
	var out bytes.Buffer
	f := setupWith(t, fixtureOpts{reqLog: &out})
	token := getToken(t, f.app, f.staff)
	testutil.CreateRecord(t, f.records, record.NewRecord{
		ID: "R-1", StudentName: "Jane", ContactEmail: "secret.person@b.com", Status: "pending",
	}, "alice@school.test")

	req, rec := newAuthRequest(http.MethodGet, "/api/records?email=secret.person@b.com&status=pending", token)
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var records []record.Record
	decode(t, rec, &records)
	require.Len(t, records, 1)
	assert.Equal(t, "R-1", records[0].ID)

	logs := out.String()
	require.NotEmpty(t, logs)
	assert.Contains(t, logs, `"path":"/api/records"`)
	assert.Contains(t, logs, `"status":200`)
	assert.NotContains(t, logs, "secret.person")
	assert.NotContains(t, logs, "email=")
}
