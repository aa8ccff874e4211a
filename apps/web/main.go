package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-playground/validator/v10"

	echoweb "github.com/trezcool/masomo-web/apps/web/echo"
	"github.com/trezcool/masomo-web/core"
	"github.com/trezcool/masomo-web/core/classroom"
	"github.com/trezcool/masomo-web/core/gate"
	"github.com/trezcool/masomo-web/core/navigation"
	appfs "github.com/trezcool/masomo-web/fs"
	"github.com/trezcool/masomo-web/services/classes"
	emailsvc "github.com/trezcool/masomo-web/services/email"
	logsvc "github.com/trezcool/masomo-web/services/logger"
	"github.com/trezcool/masomo-web/storage"
)

const purgeInterval = time.Hour

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "WEB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up the credential store
	creds, err := storage.OpenCredentials(context.Background(), conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening %s credential store: %v", conf.Session.Store, err), err)
	}
	defer func() {
		if err = creds.Close(); err != nil {
			logger.Error("closing credential store", err)
		}
	}()
	if expirer, ok := creds.Store.(storage.Expirer); ok {
		go purgeExpired(expirer, logger)
	}

	// set up services
	apiClient, err := classes.NewClient(classes.Config{
		BaseURL:    conf.ClassesAPI.BaseURL,
		Timeout:    conf.ClassesAPI.Timeout,
		RetryLimit: 2,
	}, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up classes api client: %v", err), err)
	}

	mailTemplates := core.NewMailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf)
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, mailTemplates, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, mailTemplates, logger)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	classroom.InitValidators(validate, translator)

	classroomSvc := classroom.NewService(apiClient, mailSvc, validate, translator, logger)

	g := gate.New(
		navigation.DefaultRegistry(),
		gate.WithLoginPath(conf.Gate.LoginPath),
		gate.WithUnregisteredPaths(gate.ParseUnregisteredPolicy(conf.Gate.UnregisteredPaths)),
	)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("sessionStore").Set(conf.Session.Store)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugAddress, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Web Service

	server, err := echoweb.NewServer(echoweb.ServerDeps{
		Conf:         conf,
		Logger:       logger,
		Auth:         apiClient,
		Credentials:  creds.Store,
		ClassroomSvc: classroomSvc,
		Gate:         g,
		Validate:     validate,
		Translator:   translator,
	})
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up server: %v", err), err)
	}

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

		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// purgeExpired deletes expired credentials every purgeInterval.
func purgeExpired(store storage.Expirer, logger core.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		n, err := store.DeleteExpired(ctx)
		cancel()
		if err != nil {
			logger.Error("purging expired credentials", err)
			continue
		}
		if n > 0 {
			logger.Debug(fmt.Sprintf("%d expired credentials purged", n))
		}
	}
}
