package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

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
		app = kingpin.New("slot-update-agent", "Installs an update into the inactive slot and selects it for the next boot")

		configPath         = app.Flag("config", "Path to the agent config file").Short('c').Envar("SLOTUPDATE_CONFIG").ExistingFile()
		manifestPath       = app.Flag("manifest", "Manifest file, overrides the manifest shipped with the payloads").ExistingFile()
		skipVersionAsserts = app.Flag("skip-version-asserts", "Do not check component versions against the installed ones").Bool()
		recovery           = app.Flag("recovery", "Only install components of the recovery phase").Bool()
		// Logging
		logLevel  = app.Flag("log-level", "Log-Level, must be one of [TRACE, DEBUG, INFO, WARN, ERROR]").Default("INFO").Envar("LOG_LEVEL").Enum(logutils.Levels()...)
		logFormat = app.Flag("log-format", "Log-Format, must be one of [TEXT, JSON]").Default("TEXT").Envar("LOG_FORMAT").Enum("TEXT", "JSON")
	)
	app.Version(common.Version())
	app.HelpFlag.Short('h')
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logutils.SetLogLevel(*logLevel)
	logutils.SetLogFormat(*logFormat)

	cfg, err := configs.LoadAgentConfig(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	if *manifestPath != "" {
		cfg.Manifest = *manifestPath
	}
	cfg.SkipVersionAsserts = cfg.SkipVersionAsserts || *skipVersionAsserts
	cfg.Recovery = cfg.Recovery || *recovery

	store, err := efivar.NewFSStore(cfg.EfivarsDir)
	if err != nil {
		log.WithError(err).Fatal("failed to open efivars")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runErr := runner.RunAgent(ctx, cfg, store)
	if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
		log.WithError(err).Warn("failed to write metrics")
	}
	if runErr != nil {
		log.WithError(runErr).Fatal("update failed")
	}
	log.Info("update succeeded, reboot to activate it")
}
