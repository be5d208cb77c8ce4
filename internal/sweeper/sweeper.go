// Package sweeper runs scheduled storage hygiene: it clears typing
// pointers that outlived their TTL and prunes old message version rows.
package sweeper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"pairdb/pkg/config"
	"pairdb/pkg/logger"
	"pairdb/pkg/presence"
	"pairdb/pkg/state"
	"pairdb/pkg/store"
)

var storedEff *config.EffectiveConfigResult

// SetEffectiveConfig stores the effective config so tests (or admin
// triggers) can invoke sweep runs on-demand.
func SetEffectiveConfig(eff config.EffectiveConfigResult) {
	storedEff = &eff
}

// RunImmediate triggers a single sweep using the stored effective config.
func RunImmediate() error {
	if storedEff == nil {
		return fmt.Errorf("no effective config registered for sweep run")
	}
	if state.PathsVar.Sweeper == "" {
		return fmt.Errorf("state paths not initialized")
	}
	return runOnce(context.Background(), *storedEff, state.PathsVar.Sweeper)
}

// Start starts the sweep scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, eff config.EffectiveConfigResult) (context.CancelFunc, error) {
	sw := eff.Config.Sweeper

	if !sw.Enabled {
		logger.Info("sweeper_disabled")
		return func() {}, nil
	}

	sweeperPath := state.PathsVar.Sweeper
	if err := os.MkdirAll(sweeperPath, 0o700); err != nil {
		logger.Error("sweeper_path_create_failed", "path", sweeperPath, "error", err)
		return nil, err
	}

	// map empty cron to default hourly
	cronExpr := sw.Cron
	if cronExpr == "" {
		cronExpr = "0 * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("sweeper_invalid_cron", "cron", sw.Cron)
		return nil, fmt.Errorf("invalid sweeper cron expression: %s", sw.Cron)
	}

	logger.Info("sweeper_enabled", "cron", cronExpr, "version_keep", sw.VersionKeep, "dry_run", sw.DryRun)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, eff, sweeperPath, cronExpr)
	return cancel, nil
}

// runScheduler sleeps until the next cron tick and triggers a sweep.
func runScheduler(ctx context.Context, eff config.EffectiveConfigResult, sweeperPath, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("sweeper_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("sweeper_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait < time.Second {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
			if err := runOnce(ctx, eff, sweeperPath); err != nil {
				logger.Error("sweeper_run_error", "error", err)
			}
		case <-ctx.Done():
			logger.Info("sweeper_scheduler_stopping")
			return
		}
	}
}

// report summarizes one sweep for the last_run artifact.
type report struct {
	StartedTS      int64 `json:"started_ts"`
	DurationMs     int64 `json:"duration_ms"`
	TypingCleared  int   `json:"typing_cleared"`
	VersionsPruned int   `json:"versions_pruned"`
	DryRun         bool  `json:"dry_run"`
}

func runOnce(ctx context.Context, eff config.EffectiveConfigResult, sweeperPath string) error {
	start := time.Now().UTC()
	rep := report{StartedTS: start.UnixNano(), DryRun: eff.Config.Sweeper.DryRun}

	cleared, err := sweepTyping(ctx, rep.DryRun)
	if err != nil {
		return err
	}
	rep.TypingCleared = cleared

	if keep := eff.Config.Sweeper.VersionKeep; keep > 0 {
		pruned, err := pruneVersions(ctx, keep, rep.DryRun)
		if err != nil {
			return err
		}
		rep.VersionsPruned = pruned
	}

	rep.DurationMs = time.Since(start).Milliseconds()
	writeReport(sweeperPath, rep)
	if logger.Audit != nil {
		logger.Audit.Info("sweep_completed", "typing_cleared", rep.TypingCleared, "versions_pruned", rep.VersionsPruned, "dry_run", rep.DryRun)
	}
	logger.Info("sweep_completed", "typing_cleared", rep.TypingCleared, "versions_pruned", rep.VersionsPruned, "duration_ms", rep.DurationMs)
	return nil
}

// sweepTyping clears typing pointers older than the TTL. The pointer is
// already ignored at read time once stale; clearing it just keeps user
// rows tidy.
func sweepTyping(ctx context.Context, dryRun bool) (int, error) {
	users, err := store.ScanUsers()
	if err != nil {
		return 0, err
	}
	ttl := int64(presence.TypingTTL())
	now := time.Now().UTC().UnixNano()
	cleared := 0
	for _, u := range users {
		select {
		case <-ctx.Done():
			return cleared, ctx.Err()
		default:
		}
		if u.TypingTarget == "" || now-u.TypingTS < ttl {
			continue
		}
		cleared++
		if dryRun {
			continue
		}
		if err := presence.SetTyping(u.ID, ""); err != nil {
			logger.Warn("sweep_clear_typing_failed", "user", u.ID, "error", err)
		}
	}
	return cleared, nil
}

// pruneVersions keeps only the trailing keep version rows per message.
func pruneVersions(ctx context.Context, keep int, dryRun bool) (int, error) {
	locators, err := store.ListKeys("msgidx:")
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, loc := range locators {
		select {
		case <-ctx.Done():
			return pruned, ctx.Err()
		default:
		}
		msgID := strings.TrimPrefix(loc, "msgidx:")
		keys, err := store.ListVersionKeys(msgID)
		if err != nil {
			return pruned, err
		}
		if len(keys) <= keep {
			continue
		}
		for _, k := range keys[:len(keys)-keep] {
			pruned++
			if dryRun {
				continue
			}
			if err := store.DeleteKey(k); err != nil {
				return pruned, err
			}
		}
	}
	return pruned, nil
}

func writeReport(dir string, rep report) {
	b, err := json.Marshal(rep)
	if err != nil {
		return
	}
	if err := os.WriteFile(filepath.Join(dir, "last_run.json"), b, 0o600); err != nil {
		logger.Warn("sweep_report_write_failed", "error", err)
	}
}
