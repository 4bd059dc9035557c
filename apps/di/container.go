// Package di builds the application dependency graph shared by the API server and the admin CLI.
package di

import (
	"context"
	"log"
	"net/mail"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/trezcool/onhold/core"
	"github.com/trezcool/onhold/core/activity"
	"github.com/trezcool/onhold/core/cryptox"
	"github.com/trezcool/onhold/core/record"
	"github.com/trezcool/onhold/core/reminder"
	"github.com/trezcool/onhold/core/user"
	emailsvc "github.com/trezcool/onhold/services/email"
	logsvc "github.com/trezcool/onhold/services/logger"
	"github.com/trezcool/onhold/storage/database"
	"github.com/trezcool/onhold/storage/database/sqlxrepos"
)

const logFlags = log.LstdFlags | log.Lmicroseconds | log.Lshortfile

type Container struct {
	Conf       *core.Config
	Logger     *logsvc.RollbarLogger
	DB         *sqlx.DB
	Validate   *validator.Validate
	Translator ut.Translator
	Registry   *prometheus.Registry

	MailSvc     core.EmailService
	UserSvc     *user.Service
	RecordSvc   *record.Service
	ActivitySvc *activity.Service
	Runner      *reminder.Runner
}

func NewLogger(conf *core.Config, prefix string) *logsvc.RollbarLogger {
	return logsvc.NewRollbarLogger(log.New(os.Stdout, prefix, logFlags), conf)
}

func NewDB(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}

	if err = database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewEmailService picks SendGrid when an API key is set, the console in debug mode,
// and an unconfigured SendGrid transport otherwise.
func NewEmailService(conf *core.Config) core.EmailService {
	if conf.Mail.SendgridAPIKey == "" && conf.Debug {
		return emailsvc.NewConsoleService(conf, log.New(os.Stdout, "MAIL : ", logFlags))
	}
	return emailsvc.NewSendgridService(conf)
}

// NewValidator returns a validator with every custom validation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate, translator := core.NewValidator()
	record.InitValidators(validate, translator)
	activity.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func NewCipher(conf *core.Config, logger core.Logger) (*cryptox.Cipher, error) {
	key, ephemeral, err := cryptox.ResolveKey(cryptox.KeyOptions{
		Key:       conf.Encryption.Key,
		KeyFile:   conf.Encryption.KeyFile,
		Ephemeral: conf.Encryption.Ephemeral,
	})
	if err != nil {
		return nil, errors.Wrap(err, "resolving encryption key")
	}
	if ephemeral {
		logger.Warn("using an ephemeral encryption key: encrypted fields will be unreadable after a restart")
	}
	return cryptox.New(key, conf.Encryption.HashSalt)
}

// New opens the database and wires every service.
func New(ctx context.Context, conf *core.Config, logger *logsvc.RollbarLogger) (*Container, error) {
	if err := core.ParseEmailTemplates(); err != nil {
		return nil, errors.Wrap(err, "parsing email templates")
	}

	cipher, err := NewCipher(conf, logger)
	if err != nil {
		return nil, err
	}

	db, err := NewDB(ctx, conf)
	if err != nil {
		return nil, errors.Wrap(err, "setting up database")
	}

	c := &Container{
		Conf:     conf,
		Logger:   logger,
		DB:       db,
		Registry: prometheus.NewRegistry(),
		MailSvc:  NewEmailService(conf),
	}
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Validate, c.Translator = NewValidator()

	c.UserSvc = user.NewService(sqlxrepos.NewUserRepository(db), c.Validate)
	c.RecordSvc = record.NewService(
		sqlxrepos.NewRecordRepository(db),
		record.NewCodec(cipher, logger.Component("CODEC : ")),
		c.Validate,
	)
	c.ActivitySvc = activity.NewService(sqlxrepos.NewActivityRepository(db), c.Validate)
	c.Runner = c.newRunner()
	return c, nil
}

func (c *Container) newRunner() *reminder.Runner {
	logger := c.Logger.Component("REMINDERS : ")
	metrics := reminder.NewMetrics(c.Registry)
	mailbox := mail.Address{Address: c.Conf.Mail.OperationsMailbox}

	return reminder.NewRunner(reminder.RunnerDeps{
		Records:    c.RecordSvc,
		Activities: c.ActivitySvc,
		Dispatcher: reminder.NewDispatcher(c.MailSvc, mailbox, c.Conf.Reminders.MaxAttempts, nil, logger, metrics),
		Advancer:   reminder.NewAdvancer(c.RecordSvc, c.ActivitySvc, c.Conf.Reminders.AdvanceDays, logger),
		Location:   c.Conf.Location(),
		Logger:     logger,
		Metrics:    metrics,
	})
}

// NewScheduler returns the in-process reminder scheduler.
func (c *Container) NewScheduler() (*reminder.Scheduler, error) {
	return reminder.NewScheduler(c.Runner, c.Conf.Reminders.Times, c.Conf.Location(), c.Logger.Component("SCHEDULER : "))
}

func (c *Container) Close() error {
	return c.DB.Close()
}
