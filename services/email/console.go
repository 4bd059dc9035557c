package emailsvc

import (
	"context"
	"fmt"
	"log"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/onhold/core"
)

type consoleService struct {
	defaultFromEmail mail.Address
	subjPrefix       string
	out              *log.Logger // nil disables output
}

var _ core.EmailService = (*consoleService)(nil)

// NewConsoleService returns a transport that prints messages to out instead of delivering them.
func NewConsoleService(conf *core.Config, out *log.Logger) core.EmailService {
	return &consoleService{
		defaultFromEmail: conf.DefaultFromEmail(),
		subjPrefix:       "[" + conf.AppName + "] ",
		out:              out,
	}
}

func (svc *consoleService) Configured() bool { return true }

func (svc *consoleService) Send(ctx context.Context, msg *core.EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := msg.Render(); err != nil {
		return errors.Wrap(err, "rendering email")
	}
	if !msg.HasRecipients() || !msg.HasContent() {
		return nil
	}
	body, err := svc.format(*msg)
	if err != nil {
		return err
	}
	if svc.out != nil {
		svc.out.Println(body)
	}
	return nil
}

func (svc *consoleService) format(msg core.EmailMessage) (string, error) {
	body := new(strings.Builder)

	// Write mail header
	_, _ = fmt.Fprintf(body, "From: %s\r\n", svc.defaultFromEmail.String())
	_, _ = fmt.Fprint(body, "MIME-Version: 1.0\r\n")
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s\r\n", svc.subjPrefix+msg.Subject)
	_, _ = fmt.Fprintf(body, "To: %s\r\n", joinAddresses(msg.To))
	if len(msg.Cc) > 0 {
		_, _ = fmt.Fprintf(body, "CC: %s\r\n", joinAddresses(msg.Cc))
	}

	altW := multipart.NewWriter(body)
	_, _ = fmt.Fprintf(body, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", altW.Boundary())

	w, err := altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain"}})
	if err != nil {
		return "", errors.Wrap(err, "creating text/plain part")
	}
	_, _ = fmt.Fprintf(w, "%s\r\n", msg.TextContent)

	if msg.HTMLContent != "" {
		w, err = altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html"}})
		if err != nil {
			return "", errors.Wrap(err, "creating text/html part")
		}
		_, _ = fmt.Fprintf(w, "%s\r\n", msg.HTMLContent)
	}
	if err = altW.Close(); err != nil {
		return "", errors.Wrap(err, "closing multipart writer")
	}
	return body.String(), nil
}

func joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}

// ConsoleServiceMock is a silent console transport that keeps every sent message.
// Failures can be queued with FailNext; unconfigured mocks behave like a transport without credentials.
type ConsoleServiceMock struct {
	consoleService
	unconfigured bool

	mu           sync.Mutex
	SentMessages []core.EmailMessage
	Attempts     int
	failures     []error
	failFor      map[string]error // {recipient or subject substring: err}
}

var _ core.EmailService = (*ConsoleServiceMock)(nil)

func NewConsoleServiceMock(conf *core.Config) *ConsoleServiceMock {
	return &ConsoleServiceMock{
		consoleService: consoleService{
			defaultFromEmail: conf.DefaultFromEmail(),
			subjPrefix:       "[" + conf.AppName + "] ",
		},
		failFor: make(map[string]error),
	}
}

// NewUnconfiguredServiceMock returns a mock reporting that no transport is configured.
func NewUnconfiguredServiceMock(conf *core.Config) *ConsoleServiceMock {
	svc := NewConsoleServiceMock(conf)
	svc.unconfigured = true
	return svc
}

func (svc *ConsoleServiceMock) Configured() bool { return !svc.unconfigured }

// FailNext makes the next len(errs) sends fail, in order.
func (svc *ConsoleServiceMock) FailNext(errs ...error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.failures = append(svc.failures, errs...)
}

// FailWhenSubjectContains makes every send whose subject contains s fail with err.
func (svc *ConsoleServiceMock) FailWhenSubjectContains(s string, err error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.failFor[s] = err
}

func (svc *ConsoleServiceMock) Send(ctx context.Context, msg *core.EmailMessage) error {
	if svc.unconfigured {
		return core.ErrMailUnconfigured
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.Attempts++
	if len(svc.failures) > 0 {
		err := svc.failures[0]
		svc.failures = svc.failures[1:]
		return err
	}
	for s, err := range svc.failFor {
		if strings.Contains(msg.Subject, s) {
			return err
		}
	}

	if err := svc.consoleService.Send(ctx, msg); err != nil {
		return err
	}
	svc.SentMessages = append(svc.SentMessages, *msg)
	return nil
}

// Sent returns a copy of the sent messages.
func (svc *ConsoleServiceMock) Sent() []core.EmailMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return append([]core.EmailMessage(nil), svc.SentMessages...)
}
