package main

import (
	"context"
	"log"
	"os"

	"github.com/trezcool/coursereview/core"
	emailsvc "github.com/trezcool/coursereview/services/email"
	logsvc "github.com/trezcool/coursereview/services/logger"
	"github.com/trezcool/coursereview/storage"
	"github.com/trezcool/coursereview/storage/provider"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	logger.Enable(!conf.Debug)

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	cli := commandLine{
		conf:   conf,
		logger: logger,
		mail:   mailSvc,
		out:    os.Stdout,
		openStore: func(ctx context.Context) (storage.Backend, error) {
			return provider.Open(ctx, conf, logger, nil)
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), conf.Store.Timeout)
	err := cli.run(ctx, os.Args)
	cancel()
	if w, ok := mailSvc.(interface{ Wait() }); ok {
		w.Wait() // emails are sent in the background
	}
	if cerr := cli.close(); cerr != nil {
		logger.Error("closing review store", cerr)
	}
	logger.Close() // flush queued rollbar items
	if err != nil {
		if err != errHelp {
			logger.Info("error: " + err.Error())
		}
		os.Exit(1)
	}
}
