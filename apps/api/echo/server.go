package echoapi

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/onhold/core"
	"github.com/trezcool/onhold/core/activity"
	"github.com/trezcool/onhold/core/record"
	"github.com/trezcool/onhold/core/reminder"
	"github.com/trezcool/onhold/core/user"
)

// requestLogFormat logs the path without the query string: lookups such as ?email= carry personal data.
const requestLogFormat = `{"time":"${time_rfc3339_nano}","id":"${id}","remote_ip":"${remote_ip}",` +
	`"host":"${host}","method":"${method}","path":"${path}","user_agent":"${user_agent}",` +
	`"status":${status},"error":"${error}","latency":${latency},"latency_human":"${latency_human}"` +
	`,"bytes_in":${bytes_in},"bytes_out":${bytes_out}}` + "\n"

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		UserSvc        *user.Service
		RecordSvc      *record.Service
		ActivitySvc    *activity.Service
		MailSvc        core.EmailService
		Runner         *reminder.Runner
		Validate       *validator.Validate
		Translator     ut.Translator
		Registry       *prometheus.Registry // served under /metrics; a fresh one when nil
		DisableReqLogs bool
		ReqLogOutput   io.Writer // os.Stdout when nil
	}

	Server struct {
		app         *echo.Echo
		conf        *core.Config
		logger      core.Logger
		jwtConf     middleware.JWTConfig
		userSvc     *user.Service
		recordSvc   *record.Service
		activitySvc *activity.Service
		mailSvc     core.EmailService
		runner      *reminder.Runner
		validate    *validator.Validate
		translator  ut.Translator
		registry    *prometheus.Registry
		errors      chan error
		shutdown    chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		app:         echo.New(),
		conf:        deps.Conf,
		logger:      deps.Logger,
		jwtConf:     jwtConfig(deps.Conf),
		userSvc:     deps.UserSvc,
		recordSvc:   deps.RecordSvc,
		activitySvc: deps.ActivitySvc,
		mailSvc:     deps.MailSvc,
		runner:      deps.Runner,
		validate:    deps.Validate,
		translator:  deps.Translator,
		registry:    deps.Registry,
		errors:      make(chan error, 1),
		shutdown:    make(chan os.Signal, 1),
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup(deps.DisableReqLogs, deps.ReqLogOutput)
	return s
}

func (s *Server) setup(disableReqLogs bool, reqLogOutput io.Writer) {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !disableReqLogs {
		if reqLogOutput == nil {
			reqLogOutput = os.Stdout
		}
		s.app.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
			Format: requestLogFormat,
			Output: reqLogOutput,
		}))
	}
	// do not recover in DEV|TEST mode
	if !(s.conf.Debug || s.conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(metricsMiddleware(s.registry))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.logger, s.translator, s.signalShutdown)
	s.app.Debug = s.conf.Debug

	s.app.GET("/", home)
	s.app.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	g := s.app.Group("/api")
	jwt := middleware.JWTWithConfig(s.jwtConf)

	s.registerUserAPI(g, jwt)
	s.registerRecordAPI(g, jwt)
	s.registerActivityAPI(g, jwt)
	s.registerNotificationAPI(g, jwt)
	s.registerReminderAPI(g)
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

// Start blocks serving requests; a listener failure is sent to Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

// Close stops the server immediately.
func (s *Server) Close() error {
	signal.Stop(s.shutdown)
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

// log appends an audit entry; failures are logged, never returned.
func (s *Server) log(ctx echo.Context, actor, action, detail string) {
	if _, err := s.activitySvc.Log(ctx.Request().Context(), actor, action, detail); err != nil {
		s.logger.Error("writing audit entry", map[string]interface{}{"action": action, "error": err.Error()})
	}
}

// today is the current date as the reminder batch sees it.
func (s *Server) today() string {
	if s.runner != nil {
		return s.runner.Today()
	}
	return reminder.NowFunc().In(s.conf.Location()).Format(core.DateLayout)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to OnHold API!")
}
