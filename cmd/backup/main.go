package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/edvin/backup/internal/config"
	"github.com/edvin/backup/internal/logging"
	"github.com/edvin/backup/internal/processor"
)

const defaultConfigPath = "/etc/backup/config.yaml"

func main() {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to the application config file")
	fs.StringVar(configPath, "c", defaultConfigPath, "Shorthand for -config")
	fs.Parse(os.Args[1:])

	appCfg, err := config.LoadApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	logger := logging.NewLogger(appCfg.LogLevel).With().Str("run_id", uuid.NewString()).Logger()
	logger.Info().Str("config", *configPath).Int("configurations", len(appCfg.Backups)).Msg("starting backup")

	registry := processor.NewRegistry(logger)
	ctx := context.Background()

	// One configuration's failure must not abort its siblings.
	var updated, upToDate, failed int
	for _, cfg := range appCfg.Backups {
		if cfg.BackupType != config.TypeArchive {
			logger.Debug().Str("backup", cfg.Name).Msg("skipping checker configuration")
			continue
		}

		n, err := processor.New(logger, cfg, registry).Process(ctx)
		switch {
		case err != nil:
			logger.Error().Err(err).Str("backup", cfg.Name).Msg("backup failed")
			failed++
		case n > 0:
			updated++
		default:
			upToDate++
		}
	}

	if failed > 0 {
		logger.Error().
			Int("failed", failed).
			Int("updated", updated).
			Int("skipped", upToDate).
			Msg("backup partially failed")
		os.Exit(1)
	}

	logger.Info().Int("updated", updated).Int("skipped", upToDate).Msg("backup finished")
}
