package main

import (
	"context"
	"fmt"
	"os"

	"pairdb/internal/app"
	"pairdb/pkg/config"
	"pairdb/pkg/logger"
	"pairdb/pkg/presence"
	"pairdb/pkg/shutdown"
	"pairdb/pkg/store"
)

// build metadata - set via ldflags during build/release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	flags := config.ParseConfigFlags()

	fileCfg, fileExists, err := config.ParseConfigFile(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	envCfg, envRes := config.ParseConfigEnvs()

	eff, err := config.LoadEffectiveConfig(flags, fileCfg, fileExists, envCfg, envRes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to resolve config: %v\n", err)
		os.Exit(1)
	}

	logger.InitWithLevel(eff.Config.Logging.Level)

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	a, err := app.New(eff, version, commit, buildDate)
	if err != nil {
		shutdown.Abort("startup failed", err, eff.DBPath)
	}

	runErr := a.Run(ctx)

	// flush any coalesced heartbeats before the store closes
	presence.Flush()
	if err := store.Close(); err != nil {
		logger.Error("store_close_failed", "error", err.Error())
	}
	logger.SyncAccessLog()

	if runErr != nil {
		shutdown.Abort("server failed", runErr, eff.DBPath)
	}
}
