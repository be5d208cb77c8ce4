package sweeper

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pairdb/pkg/config"
	"pairdb/pkg/logger"
	"pairdb/pkg/models"
	"pairdb/pkg/store"
)

func openTestStore(t *testing.T) {
	t.Helper()
	logger.Init()
	require.NoError(t, store.Open(t.TempDir()))
	t.Cleanup(func() { _ = store.Close() })
}

func effWith(sw config.SweeperConfig) config.EffectiveConfigResult {
	return config.EffectiveConfigResult{Config: &config.Config{Sweeper: sw}}
}

// seedTyping stores a user with a typing pointer aged by age.
func seedTyping(t *testing.T, id, target string, age time.Duration) {
	t.Helper()
	require.NoError(t, store.SaveUser(models.User{
		ID:           id,
		ExternalID:   "ext-" + id,
		Name:         id,
		Email:        id + "@example.com",
		TypingTarget: target,
		TypingTS:     time.Now().Add(-age).UnixNano(),
	}))
}

// seedVersions appends one message and rewrites it until versions rows
// exist for the original plus updates.
func seedVersions(t *testing.T, convID string, updates int) string {
	t.Helper()
	m := models.Message{ID: "msg-" + convID, Conversation: convID, Sender: "usr-a", Content: "v0"}
	m, err := store.AppendMessage(m)
	require.NoError(t, err)
	for i := 0; i < updates; i++ {
		cur, logKey, err := store.GetMessage(m.ID)
		require.NoError(t, err)
		cur.Content = "edited"
		require.NoError(t, store.UpdateMessage(logKey, cur))
	}
	return m.ID
}

func TestRunOnceClearsStaleTypingAndPrunesVersions(t *testing.T) {
	openTestStore(t)

	seedTyping(t, "usr-stale", "usr-x", 10*time.Second)
	seedTyping(t, "usr-fresh", "usr-x", 0)
	seedTyping(t, "usr-idle", "", 10*time.Second)
	msgID := seedVersions(t, "conv-sweep", 4) // 5 version rows

	dir := t.TempDir()
	eff := effWith(config.SweeperConfig{Enabled: true, VersionKeep: 2})
	require.NoError(t, runOnce(context.Background(), eff, dir))

	stale, err := store.GetUser("usr-stale")
	require.NoError(t, err)
	require.Empty(t, stale.TypingTarget)

	fresh, err := store.GetUser("usr-fresh")
	require.NoError(t, err)
	require.Equal(t, "usr-x", fresh.TypingTarget)

	keys, err := store.ListVersionKeys(msgID)
	require.NoError(t, err)
	require.Len(t, keys, 2)

	// the surviving rows are the newest ones
	v, err := store.GetKey(keys[len(keys)-1])
	require.NoError(t, err)
	var last models.Message
	require.NoError(t, json.Unmarshal([]byte(v), &last))
	require.Equal(t, "edited", last.Content)

	var rep report
	b, err := os.ReadFile(filepath.Join(dir, "last_run.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &rep))
	require.Equal(t, 1, rep.TypingCleared)
	require.Equal(t, 3, rep.VersionsPruned)
	require.False(t, rep.DryRun)
}

func TestRunOnceDryRunCountsWithoutMutating(t *testing.T) {
	openTestStore(t)

	seedTyping(t, "usr-stale", "usr-x", 10*time.Second)
	msgID := seedVersions(t, "conv-dry", 3) // 4 version rows

	dir := t.TempDir()
	eff := effWith(config.SweeperConfig{Enabled: true, VersionKeep: 1, DryRun: true})
	require.NoError(t, runOnce(context.Background(), eff, dir))

	stale, err := store.GetUser("usr-stale")
	require.NoError(t, err)
	require.Equal(t, "usr-x", stale.TypingTarget)

	keys, err := store.ListVersionKeys(msgID)
	require.NoError(t, err)
	require.Len(t, keys, 4)

	var rep report
	b, err := os.ReadFile(filepath.Join(dir, "last_run.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &rep))
	require.Equal(t, 1, rep.TypingCleared)
	require.Equal(t, 3, rep.VersionsPruned)
	require.True(t, rep.DryRun)
}

func TestRunOnceKeepZeroSkipsVersionPrune(t *testing.T) {
	openTestStore(t)
	msgID := seedVersions(t, "conv-keep", 2)

	dir := t.TempDir()
	require.NoError(t, runOnce(context.Background(), effWith(config.SweeperConfig{Enabled: true}), dir))

	keys, err := store.ListVersionKeys(msgID)
	require.NoError(t, err)
	require.Len(t, keys, 3)
}
