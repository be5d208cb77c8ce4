// Package shutdown handles fatal exits: it writes a crash report under
// the state dir so an operator can see why the server died, and wires
// process signals to context cancellation.
package shutdown

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"pairdb/pkg/logger"
)

// crashMarker is the machine-readable companion to the crash log. The
// log holds the environment and goroutine dump; the marker is what a
// supervisor greps for.
type crashMarker struct {
	Time     string `json:"time"`
	Reason   string `json:"reason"`
	Error    string `json:"error,omitempty"`
	Pid      int    `json:"pid"`
	CrashLog string `json:"crash_log"`
}

// Abort writes a crash report, counts down so log sinks flush, and exits
// with status 2. dbPath may be empty early in startup; the report then
// lands in ./crash.
func Abort(reason string, err error, dbPath string, delaySeconds ...int) {
	delay := 10
	if len(delaySeconds) > 0 && delaySeconds[0] >= 0 {
		delay = delaySeconds[0]
	}
	logger.Error("fatal", "reason", reason, "error", err)
	logPath, markerPath, werr := WriteCrashReport(dbPath, reason, err)
	if werr != nil {
		logger.Error("crash_report_write_failed", "error", werr)
		fmt.Fprintf(os.Stderr, "FAILED TO WRITE CRASH REPORT: %v\n", werr)
	} else {
		logger.Error("crash_report_written", "log", logPath, "marker", markerPath)
		fmt.Fprintf(os.Stderr, "CRASH REPORT WRITTEN: %s\n", logPath)
	}
	for i := delay; i > 0; i-- {
		logger.Info("exiting_in_seconds", "seconds", i)
		time.Sleep(1 * time.Second)
	}
	os.Exit(2)
}

// WriteCrashReport writes the crash log (environ + goroutine stacks) and
// its JSON marker into <dbPath>/state/crash, both renamed into place from
// temp files so a half-written report is never picked up.
func WriteCrashReport(dbPath, reason string, cause error) (string, string, error) {
	crashDir := "./crash"
	if dbPath != "" {
		crashDir = filepath.Join(dbPath, "state", "crash")
	}
	if err := os.MkdirAll(crashDir, 0o700); err != nil {
		return "", "", fmt.Errorf("create crash dir: %w", err)
	}

	ts := time.Now().UnixNano()
	logPath := filepath.Join(crashDir, fmt.Sprintf("fatal-%d.log", ts))

	f, err := os.CreateTemp(crashDir, ".fatal-*.tmp")
	if err != nil {
		return "", "", fmt.Errorf("create temp crash log: %w", err)
	}
	tmpName := f.Name()
	defer func() { _ = os.Remove(tmpName) }()

	fmt.Fprintf(f, "time: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(f, "reason: %s\n", reason)
	fmt.Fprintf(f, "error: %v\n", cause)
	fmt.Fprintf(f, "\n--- environ ---\n")
	for _, e := range os.Environ() {
		fmt.Fprintln(f, e)
	}
	fmt.Fprintf(f, "\n--- goroutine stacks ---\n")
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	f.Write(buf[:n])
	f.Sync()
	f.Close()

	if err := os.Rename(tmpName, logPath); err != nil {
		return "", "", fmt.Errorf("move crash log into place: %w", err)
	}
	_ = os.Chmod(logPath, 0o600)

	marker := crashMarker{
		Time:     time.Now().UTC().Format(time.RFC3339),
		Reason:   reason,
		Pid:      os.Getpid(),
		CrashLog: logPath,
	}
	if cause != nil {
		marker.Error = cause.Error()
	}
	mtmp, err := os.CreateTemp(crashDir, ".marker-*.tmp")
	if err != nil {
		return logPath, "", fmt.Errorf("create temp marker: %w", err)
	}
	mname := mtmp.Name()
	enc := json.NewEncoder(mtmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(marker); err != nil {
		mtmp.Close()
		_ = os.Remove(mname)
		return logPath, "", fmt.Errorf("encode marker: %w", err)
	}
	mtmp.Sync()
	mtmp.Close()

	markerPath := filepath.Join(crashDir, fmt.Sprintf("fatal-%d.json", ts))
	if err := os.Rename(mname, markerPath); err != nil {
		_ = os.Remove(mname)
		return logPath, "", fmt.Errorf("move marker into place: %w", err)
	}
	_ = os.Chmod(markerPath, 0o600)

	return logPath, markerPath, nil
}

// SetupSignalHandler returns a context cancelled by SIGINT or SIGTERM.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigc
		logger.Info("signal_received", "signal", s.String(), "msg", "shutdown requested")
		cancel()
	}()

	return ctx, cancel
}
