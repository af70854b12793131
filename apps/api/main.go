package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	echoapi "github.com/trezcool/coursereview/apps/api/echo"
	"github.com/trezcool/coursereview/apps/shared"
	"github.com/trezcool/coursereview/core"
	emailsvc "github.com/trezcool/coursereview/services/email"
	logsvc "github.com/trezcool/coursereview/services/logger"
	"github.com/trezcool/coursereview/services/metrics"
	"github.com/trezcool/coursereview/storage/provider"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)
	defer logger.Close()

	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)

	// set up the review store
	ctx, cancel := context.WithTimeout(context.Background(), conf.Store.Timeout)
	backend, err := provider.Open(ctx, conf, logger, recorder)
	cancel()
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening review store: %v", err), err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error(fmt.Sprintf("closing review store: %v", err), err)
		}
	}()

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	app, err := shared.NewApp(shared.Deps{
		Conf:     conf,
		Logger:   logger,
		Backend:  backend,
		Mail:     mailSvc,
		Recorder: recorder,
	})
	if err != nil {
		logger.Fatal(fmt.Sprintf("initializing app: %v", err), err)
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus metrics.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("store").Set(conf.Store.Backend)
	http.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Catalog:    app.Catalog,
		ReviewSvc:  app.Reviews,
		UserSvc:    app.Users,
		Validate:   app.Validate,
		Translator: app.Translator,
		Recorder:   recorder,
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

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
