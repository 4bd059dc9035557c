package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"

	echoapi "github.com/trezcool/onhold/apps/api/echo"
	"github.com/trezcool/onhold/apps/di"
	"github.com/trezcool/onhold/core"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := di.NewLogger(conf, "API : ")
	dbLogger := logger.Component("DB : ")

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	c, err := di.New(context.Background(), conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("initializing application: %v", err), err)
	}
	defer func() {
		if err = c.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	if !c.MailSvc.Configured() {
		logger.Warn("mail transport is not configured: reminder batches will be aborted")
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugAddress, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Reminder Scheduler

	ctx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()

	if conf.Reminders.ScheduleEnabled {
		scheduler, err := c.NewScheduler()
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up reminder scheduler: %v", err), err)
		}
		go scheduler.Start(ctx)
	}

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:        conf,
			Logger:      logger,
			UserSvc:     c.UserSvc,
			RecordSvc:   c.RecordSvc,
			ActivitySvc: c.ActivitySvc,
			MailSvc:     c.MailSvc,
			Runner:      c.Runner,
			Validate:    c.Validate,
			Translator:  c.Translator,
			Registry:    c.Registry,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
		stopScheduler()

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
