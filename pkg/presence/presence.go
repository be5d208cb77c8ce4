// Package presence derives online status from heartbeat timestamps and
// tracks the single-target typing pointer.
//
// Heartbeats are coalesced: callers record them into an in-memory map and
// a flusher persists the newest timestamp per user on an interval, so a
// busy client beats the store once per flush rather than once per beat.
package presence

import (
	"context"
	"sync"
	"time"

	"pairdb/pkg/events"
	"pairdb/pkg/logger"
	"pairdb/pkg/models"
	"pairdb/pkg/store"
	"pairdb/pkg/telemetry"
)

const (
	// DefaultOnlineWindow matches the recommended 2s heartbeat interval
	// so one missed beat flips status.
	DefaultOnlineWindow = 2000 * time.Millisecond
	// DefaultTypingTTL is the quiet period after which a typing pointer
	// stops being honored.
	DefaultTypingTTL = 2000 * time.Millisecond
)

var (
	cfgMu        sync.RWMutex
	onlineWindow = DefaultOnlineWindow
	typingTTL    = DefaultTypingTTL
)

// Configure sets the online window and typing TTL. Zero values keep the
// defaults.
func Configure(window, ttl time.Duration) {
	cfgMu.Lock()
	if window > 0 {
		onlineWindow = window
	}
	if ttl > 0 {
		typingTTL = ttl
	}
	cfgMu.Unlock()
}

// OnlineWindow returns the configured online window.
func OnlineWindow() time.Duration {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return onlineWindow
}

// TypingTTL returns the configured typing quiet period.
func TypingTTL() time.Duration {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	return typingTTL
}

var (
	pendingMu sync.Mutex
	pending   = map[string]int64{}
)

// Heartbeat records that the user was seen now. The write is coalesced
// and persisted by the next Flush.
func Heartbeat(userID string) {
	ts := time.Now().UTC().UnixNano()
	pendingMu.Lock()
	if ts > pending[userID] {
		pending[userID] = ts
	}
	pendingMu.Unlock()
}

// Flush persists every pending heartbeat and returns how many users were
// written. Exposed so tests and shutdown can force a drain.
func Flush() int {
	pendingMu.Lock()
	if len(pending) == 0 {
		pendingMu.Unlock()
		return 0
	}
	batch := pending
	pending = map[string]int64{}
	pendingMu.Unlock()

	n := 0
	for userID, ts := range batch {
		if err := persistSeen(userID, ts); err != nil {
			logger.Warn("heartbeat_flush_failed", "user", userID, "error", err)
			continue
		}
		n++
		events.Publish(events.Event{Type: events.PresenceUpdated, User: userID, TS: ts})
	}
	if n > 0 {
		telemetry.HeartbeatsCoalesced.Add(float64(n))
	}
	return n
}

func persistSeen(userID string, ts int64) error {
	release := store.LockKey(store.UserKey(userID))
	defer release()
	u, err := store.GetUser(userID)
	if err != nil {
		return err
	}
	// never move the watermark backwards
	if ts <= u.LastSeenTS {
		return nil
	}
	u.LastSeenTS = ts
	return store.SaveUser(u)
}

// Run flushes pending heartbeats on the given interval until the context
// is cancelled, then drains once more.
func Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			Flush()
		case <-ctx.Done():
			Flush()
			return
		}
	}
}

// Online reports whether the user counts as online at the given instant.
// Derived at read time; never stored.
func Online(u models.User, now time.Time) bool {
	if u.LastSeenTS == 0 {
		return false
	}
	return now.UTC().UnixNano()-u.LastSeenTS < int64(OnlineWindow())
}

// SetTyping sets or clears the user's typing target. A new target
// replaces any prior one.
func SetTyping(userID, target string) error {
	release := store.LockKey(store.UserKey(userID))
	defer release()
	u, err := store.GetUser(userID)
	if err != nil {
		if store.IsNotFound(err) {
			return models.ErrNotFound
		}
		return err
	}
	u.TypingTarget = target
	if target == "" {
		u.TypingTS = 0
	} else {
		u.TypingTS = time.Now().UTC().UnixNano()
	}
	if err := store.SaveUser(u); err != nil {
		return err
	}
	events.Publish(events.Event{Type: events.TypingChanged, User: userID, TS: u.TypingTS})
	return nil
}

// TypingFor reports whether other is currently typing to viewer: the
// pointer must name the viewer and still be inside the typing TTL.
func TypingFor(other models.User, viewerID string, now time.Time) bool {
	if other.TypingTarget != viewerID || other.TypingTS == 0 {
		return false
	}
	return now.UTC().UnixNano()-other.TypingTS < int64(TypingTTL())
}
