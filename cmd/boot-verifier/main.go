package main

import (
	"context"
	"os"

	"github.com/alecthomas/kingpin/v2"
	log "github.com/sirupsen/logrus"

	"github.com/unbasical/slotupdate/common"
	"github.com/unbasical/slotupdate/configs"
	"github.com/unbasical/slotupdate/internal/pkg/metrics"
	"github.com/unbasical/slotupdate/internal/pkg/runner"
	"github.com/unbasical/slotupdate/internal/pkg/utils/logutils"
	"github.com/unbasical/slotupdate/pkg/efivar"
)

func main() {
	var (
		app = kingpin.New("boot-verifier", "Checks the health of the booted slot and marks it as good")

		configPath = app.Flag("config", "Path to the verifier config file").Short('c').Envar("SLOTUPDATE_VERIFIER_CONFIG").ExistingFile()
		force      = app.Flag("force", "Run all checks even if the slot is already marked normal").Bool()
		// Logging
		logLevel  = app.Flag("log-level", "Log-Level, must be one of [TRACE, DEBUG, INFO, WARN, ERROR]").Default("INFO").Envar("LOG_LEVEL").Enum(logutils.Levels()...)
		logFormat = app.Flag("log-format", "Log-Format, must be one of [TEXT, JSON]").Default("TEXT").Envar("LOG_FORMAT").Enum("TEXT", "JSON")
	)
	app.Version(common.Version())
	app.HelpFlag.Short('h')
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logutils.SetLogLevel(*logLevel)
	logutils.SetLogFormat(*logFormat)

	cfg, err := configs.LoadVerifierConfig(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	store, err := efivar.NewFSStore(cfg.EfivarsDir)
	if err != nil {
		log.WithError(err).Fatal("failed to open efivars")
	}
	v, err := runner.NewVerifier(cfg, store, *force)
	if err != nil {
		log.WithError(err).Fatal("failed to set up verifier")
	}

	outcome, runErr := v.Run(context.Background())
	if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
		log.WithError(err).Warn("failed to write metrics")
	}
	if runErr != nil {
		log.WithError(runErr).Fatal("boot verification failed, the bootloader falls back once the retry counter runs out")
	}
	log.Infof("boot verification finished: %s", outcome)
}
