package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"pairdb/internal/sweeper"
	"pairdb/pkg/config"
	"pairdb/pkg/logger"
	"pairdb/pkg/presence"
	"pairdb/pkg/state"
	"pairdb/pkg/store"
	"pairdb/pkg/telemetry"
	"pairdb/pkg/validation"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	cancelSweeper context.CancelFunc

	srv *http.Server
}

// New initializes resources that do not require a running context (state
// dirs, DB, validation rules, runtime keys, presence tunables). It does not
// start background workers or the HTTP server; call Run to start those and
// block until shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	// validate effective config early and fail fast
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	// backend API keys double as the signing secrets
	runtimeCfg := &config.RuntimeConfig{SigningKeys: map[string]struct{}{}}
	for _, k := range eff.Config.Security.APIKeys.Backend {
		runtimeCfg.SigningKeys[k] = struct{}{}
	}
	config.SetRuntime(runtimeCfg)

	// validation rules
	initValidation(eff)

	// presence tunables
	presence.Configure(eff.Config.Presence.OnlineWindow.Duration(), eff.Config.Presence.TypingTTL.Duration())

	// state dirs must exist before the store or any sink opens files
	if err := state.EnsureStateDirs(eff.DBPath); err != nil {
		return nil, fmt.Errorf("state dirs: %w", err)
	}

	// open store
	if err := store.Open(eff.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}

	if err := logger.AttachAuditFileSink(state.PathsVar.Audit); err != nil {
		logger.Warn("audit_sink_unavailable", "error", err.Error())
	}
	telemetry.RegisterDiskUsage(store.DiskUsage)

	a := &App{eff: eff, version: version, commit: commit, buildDate: buildDate}
	return a, nil
}

// Run starts the presence flusher, the sweeper (if enabled) and the HTTP
// server, and blocks until ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	go presence.Run(ctx, a.flushInterval())

	if a.eff.Config.Sweeper.Enabled {
		cancel, err := sweeper.Start(ctx, a.eff)
		if err != nil {
			return fmt.Errorf("sweeper: %w", err)
		}
		a.cancelSweeper = cancel
	}

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		if a.cancelSweeper != nil {
			a.cancelSweeper()
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// flushInterval resolves the presence flush cadence, defaulting to a
// quarter of the online window so a beat lands well inside it.
func (a *App) flushInterval() time.Duration {
	if d := a.eff.Config.Presence.FlushInterval.Duration(); d > 0 {
		return d
	}
	return presence.OnlineWindow() / 4
}

// initValidation builds validation rules from config and sets them globally.
func initValidation(eff config.EffectiveConfigResult) {
	vr := validation.Rules{MaxContentBytes: int(eff.Config.Limits.MaxContentBytes.Int64())}
	validation.SetRules(vr)
}
