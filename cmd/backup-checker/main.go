package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/edvin/backup/internal/checker"
	"github.com/edvin/backup/internal/config"
	"github.com/edvin/backup/internal/logging"
)

const defaultConfigPath = "/etc/backup/config.yaml"

// Exit codes: 0 = all up to date, 1 = one or more stale or failed checks,
// 2 = unexpected top-level error.
func main() {
	fs := flag.NewFlagSet("backup-checker", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to the application config file")
	fs.StringVar(configPath, "c", defaultConfigPath, "Shorthand for -config")
	fs.Parse(os.Args[1:])

	appCfg, err := config.LoadApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	logger := logging.NewLogger(appCfg.LogLevel).With().Str("run_id", uuid.NewString()).Logger()
	logger.Info().Str("config", *configPath).Int("configurations", len(appCfg.Backups)).Msg("starting backup check")

	ctx := context.Background()

	stale := 0
	for _, cfg := range appCfg.Backups {
		ok, err := checker.New(logger, cfg).Check(ctx)
		if err != nil {
			logger.Error().Err(err).Str("backup", cfg.Name).Msg("check failed")
			stale++
			continue
		}
		if !ok {
			stale++
		}
	}

	if stale > 0 {
		logger.Error().Int("stale", stale).Msg("backup check failed")
		os.Exit(1)
	}
	logger.Info().Int("checked", len(appCfg.Backups)).Msg("all backups up to date")
}
