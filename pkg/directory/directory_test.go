package directory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"pairdb/pkg/logger"
	"pairdb/pkg/models"
	"pairdb/pkg/presence"
	"pairdb/pkg/store"
)

func openTestStore(t *testing.T) {
	t.Helper()
	logger.Init()
	require.NoError(t, store.Open(t.TempDir()))
	t.Cleanup(func() { require.NoError(t, store.Close()) })
}

func TestSyncProfileCreatesOnce(t *testing.T) {
	openTestStore(t)

	id1, err := SyncProfile("ext-1", "Ada", "ada@example.com", "avatars/ada")
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	// second sync with the same external id is an update, not a new user
	id2, err := SyncProfile("ext-1", "Ada L.", "changed@example.com", "avatars/ada2")
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	u, err := Lookup(id1)
	require.NoError(t, err)
	require.Equal(t, "Ada L.", u.Name)
	require.Equal(t, "avatars/ada2", u.AvatarRef)
	// email and external id are frozen at creation
	require.Equal(t, "ada@example.com", u.Email)
	require.Equal(t, "ext-1", u.ExternalID)
}

func TestSyncProfileValidation(t *testing.T) {
	openTestStore(t)

	_, err := SyncProfile("  ", "Ada", "", "")
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = SyncProfile("ext-1", "  ", "", "")
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestSyncProfileConcurrentSameExternalID(t *testing.T) {
	openTestStore(t)

	const n = 16
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = SyncProfile("ext-race", "Racer", "racer@example.com", "")
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, ids[0], ids[i], "duplicate syncs must converge on one user")
	}

	users, err := store.ScanUsers()
	require.NoError(t, err)
	require.Len(t, users, 1)
}

func TestSyncProfileKeepsConcurrentPresenceWrites(t *testing.T) {
	openTestStore(t)

	id, err := SyncProfile("ext-p", "Pat", "pat@example.com", "")
	require.NoError(t, err)

	// hammer profile syncs while typing updates land on the same record;
	// the sync must never write back a snapshot taken before the typing
	// write committed
	done := make(chan struct{})
	var syncErr error
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			if _, err := SyncProfile("ext-p", "Pat", "pat@example.com", ""); err != nil {
				syncErr = err
				return
			}
		}
	}()

	var lost int
	for i := 0; i < 2000; i++ {
		require.NoError(t, presence.SetTyping(id, "usr-peer"))
		u, err := store.GetUser(id)
		require.NoError(t, err)
		if u.TypingTarget != "usr-peer" {
			lost++
		}
	}
	<-done
	require.NoError(t, syncErr)
	require.Zero(t, lost, "profile sync overwrote a committed typing pointer")
}

func TestLookupMissing(t *testing.T) {
	openTestStore(t)
	_, err := Lookup("usr-missing")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestSearchExcludesCallerAndSortsByName(t *testing.T) {
	openTestStore(t)

	carol, err := SyncProfile("ext-c", "Carol", "", "")
	require.NoError(t, err)
	_, err = SyncProfile("ext-a", "alice", "", "")
	require.NoError(t, err)
	_, err = SyncProfile("ext-b", "Alicia", "", "")
	require.NoError(t, err)

	// case-insensitive substring, caller excluded
	got, err := Search("ali", carol)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Alicia", got[0].Name)
	require.Equal(t, "alice", got[1].Name)

	// empty query returns everyone but the caller
	got, err = Search("", carol)
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = Search("zzz", carol)
	require.NoError(t, err)
	require.Empty(t, got)
}
