package emailsvc

import (
	"bytes"
	"context"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/onhold/core"
)

func testConfig() *core.Config {
	conf := new(core.Config)
	conf.AppName = "OnHold"
	conf.Mail.DefaultFromEmail = "noreply@school.test"
	conf.Mail.SendgridAPIKey = "SG.key"
	conf.Mail.SendTimeout = 50 * time.Millisecond
	return conf
}

func textMessage() *core.EmailMessage {
	return &core.EmailMessage{
		To:      []mail.Address{{Address: "ops@school.test"}},
		Subject: "Hello",
		BodyStr: "Hi there",
	}
}

// mockSendgrid points the sendgrid service at a local server running handler.
func mockSendgrid(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	srv := httptest.NewServer(handler)
	orig := host
	host = srv.URL
	t.Cleanup(func() {
		host = orig
		srv.Close()
	})
	return srv
}

func TestSendgridService_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("unconfigured", func(t *testing.T) {
		conf := testConfig()
		conf.Mail.SendgridAPIKey = ""
		svc := NewSendgridService(conf)
		assert.False(t, svc.Configured())
		assert.Equal(t, core.ErrMailUnconfigured, svc.Send(ctx, textMessage()))
	})

	t.Run("accepted", func(t *testing.T) {
		var method, path, auth, body string
		mockSendgrid(t, func(w http.ResponseWriter, r *http.Request) {
			data, _ := io.ReadAll(r.Body)
			method, path, auth, body = r.Method, r.URL.Path, r.Header.Get("Authorization"), string(data)
			w.WriteHeader(http.StatusAccepted)
		})
		svc := NewSendgridService(testConfig())
		assert.True(t, svc.Configured())
		require.NoError(t, svc.Send(ctx, textMessage()))
		assert.Equal(t, http.MethodPost, method)
		assert.Equal(t, "/v3/mail/send", path)
		assert.Equal(t, "Bearer SG.key", auth)
		assert.Contains(t, body, `"subject":"[OnHold] Hello"`)
		assert.Contains(t, body, `"ops@school.test"`)
		assert.NotContains(t, body, "text/html")
	})

	t.Run("rejected", func(t *testing.T) {
		mockSendgrid(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("bad key"))
		})
		err := NewSendgridService(testConfig()).Send(ctx, textMessage())
		assert.EqualError(t, err, "sending email - status: 401 - body: bad key")
	})

	t.Run("transport error", func(t *testing.T) {
		srv := mockSendgrid(t, func(w http.ResponseWriter, r *http.Request) {})
		srv.Close()
		err := NewSendgridService(testConfig()).Send(ctx, textMessage())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sending email: ")
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		mockSendgrid(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		})
		defer close(release)

		started := time.Now()
		err := NewSendgridService(testConfig()).Send(ctx, textMessage())
		assert.Less(t, time.Since(started), 5*time.Second)
		var netErr net.Error
		require.True(t, errors.As(err, &netErr), "got %v", err)
		assert.True(t, netErr.Timeout())
	})

	t.Run("canceled", func(t *testing.T) {
		mockSendgrid(t, func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusAccepted) })
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := NewSendgridService(testConfig()).Send(cctx, textMessage())
		assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	})

	t.Run("no recipient", func(t *testing.T) {
		msg := textMessage()
		msg.To = nil
		assert.Error(t, NewSendgridService(testConfig()).Send(ctx, msg))
	})
}

func TestConsoleService_Send(t *testing.T) {
	var buf bytes.Buffer
	svc := NewConsoleService(testConfig(), log.New(&buf, "", 0))
	assert.True(t, svc.Configured())

	require.NoError(t, svc.Send(context.Background(), textMessage()))
	out := buf.String()
	assert.Contains(t, out, "From: \"OnHold\" <noreply@school.test>\r\n")
	assert.Contains(t, out, "Subject: [OnHold] Hello\r\n")
	assert.Contains(t, out, "To: <ops@school.test>\r\n")
	assert.Contains(t, out, "Hi there")

	err := svc.Send(context.Background(), &core.EmailMessage{To: textMessage().To, TemplateName: "nope"})
	assert.Error(t, err)
}

func TestConsoleServiceMock(t *testing.T) {
	ctx := context.Background()
	svc := NewConsoleServiceMock(testConfig())
	boom := errors.New("boom")

	svc.FailNext(boom)
	svc.FailWhenSubjectContains("Bob", boom)

	assert.Equal(t, boom, svc.Send(ctx, textMessage()))
	require.NoError(t, svc.Send(ctx, textMessage()))
	msg := textMessage()
	msg.Subject = "For Bob"
	assert.Equal(t, boom, svc.Send(ctx, msg))

	assert.Equal(t, 3, svc.Attempts)
	sent := svc.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Hi there", sent[0].TextContent)

	unconfigured := NewUnconfiguredServiceMock(testConfig())
	assert.False(t, unconfigured.Configured())
	assert.Equal(t, core.ErrMailUnconfigured, unconfigured.Send(ctx, textMessage()))
}
