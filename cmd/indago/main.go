package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/common"
	"github.com/ternarybob/indago/internal/interfaces"
	"github.com/ternarybob/indago/internal/pipeline"
	"github.com/ternarybob/indago/internal/services/arxiv"
	"github.com/ternarybob/indago/internal/services/backends"
	"github.com/ternarybob/indago/internal/services/report"
	"github.com/ternarybob/indago/internal/storage/badger"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
	runOnceFlag  = flag.Bool("once", false, "Run a single pipeline invocation and exit, ignoring the schedule")

	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Indago version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("indago.toml"); err == nil {
			configFiles = append(configFiles, "indago.toml")
		} else if _, err := os.Stat("deployments/local/indago.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/indago.toml")
		}
	}

	// Startup sequence: config -> logger -> banner -> wiring
	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	if err := run(); err != nil {
		logger.Fatal().Err(err).Msg("Indago exited with error")
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backendList, err := backends.NewBackends(config, logger)
	if err != nil {
		return err
	}

	tracker := backends.NewFailureTracker(
		config.Backends.MaxFailures,
		common.ParseDurationOr(config.Backends.ResetWindow, 0),
	)
	selector := backends.NewSelector(backendList, tracker, backends.SelectorOptions{
		Pinned:           config.Backends.Pinned,
		CallTimeout:      common.ParseDurationOr(config.Backends.CallTimeout, 0),
		SweepExemptKinds: config.Backends.SweepExemptKind,
	}, logger)

	db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return err
	}
	sink := badger.NewOutcomeStorage(db, logger)
	defer sink.Close()

	source := arxiv.NewClient(&config.Arxiv, logger)
	fullText := arxiv.NewFullTextService(&config.Arxiv, logger)
	formatter := report.NewFormatter(&config.Report, logger)
	mailer := report.NewMailer(&config.SMTP, logger)

	var notifier interfaces.Notifier
	if mailer.IsConfigured() {
		notifier = mailer
	} else {
		logger.Warn().Msg("SMTP not configured, reports will only be written to disk")
	}

	coordinator := pipeline.NewCoordinator(config, source, fullText, selector, sink, notifier, logger)

	runPipeline := func() error {
		runReport, runErr := coordinator.Run(ctx)
		if runErr != nil {
			return runErr
		}

		html, markdown, renderErr := formatter.Render(runReport)
		if renderErr != nil {
			return renderErr
		}
		if _, _, writeErr := formatter.WriteFiles(runReport, html, markdown); writeErr != nil {
			return writeErr
		}

		if config.Report.SendEmail && notifier != nil {
			if sendErr := notifier.SendReport(ctx, runReport, html, markdown); sendErr != nil {
				logger.Error().Err(sendErr).Msg("Failed to send report email")
			}
		}
		return nil
	}

	if *runOnceFlag || !config.Schedule.Enabled {
		return runPipeline()
	}

	// Scheduled mode: run on the configured cron expression until signalled
	scheduler := cron.New()
	_, err = scheduler.AddFunc(config.Schedule.Cron, func() {
		if runErr := runPipeline(); runErr != nil {
			logger.Error().Err(runErr).Msg("Scheduled pipeline run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule.cron %q: %w", config.Schedule.Cron, err)
	}

	logger.Info().Str("cron", config.Schedule.Cron).Msg("Scheduler started")
	scheduler.Start()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")
	scheduler.Stop()

	return nil
}
