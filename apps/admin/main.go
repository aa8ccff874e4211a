package main

import (
	"context"
	"log"
	"os"

	"github.com/trezcool/masomo-web/core"
	"github.com/trezcool/masomo-web/core/gate"
	"github.com/trezcool/masomo-web/core/navigation"
	"github.com/trezcool/masomo-web/services/classes"
	logsvc "github.com/trezcool/masomo-web/services/logger"
	"github.com/trezcool/masomo-web/storage"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	creds, err := storage.OpenCredentials(context.Background(), conf)
	errAndDie(err)
	defer creds.Close()

	apiClient, err := classes.NewClient(classes.Config{
		BaseURL: conf.ClassesAPI.BaseURL,
		Timeout: conf.ClassesAPI.Timeout,
	}, logsvc.NewRollbarLogger(logger, conf))
	errAndDie(err)

	// start CLI
	cli := commandLine{
		gate: gate.New(
			navigation.DefaultRegistry(),
			gate.WithLoginPath(conf.Gate.LoginPath),
			gate.WithUnregisteredPaths(gate.ParseUnregisteredPolicy(conf.Gate.UnregisteredPaths)),
		),
		auth:  apiClient,
		creds: creds.Store,
		db:    creds.DB,
		out:   os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		_ = creds.Close()
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
