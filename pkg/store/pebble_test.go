package store

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"pairdb/pkg/logger"
	"pairdb/pkg/models"
)

func openTestStore(t *testing.T) {
	t.Helper()
	logger.Init()
	require.NoError(t, Open(t.TempDir()))
	t.Cleanup(func() { require.NoError(t, Close()) })
}

func TestPairKeyCanonicalOrder(t *testing.T) {
	require.Equal(t, PairKey("usr-b", "usr-a"), PairKey("usr-a", "usr-b"))
	require.Equal(t, "convpair:usr-a/usr-b", PairKey("usr-b", "usr-a"))
}

func TestMsgKeySortsByTimestamp(t *testing.T) {
	k1, err := MsgKey("conv-1", 100, 1)
	require.NoError(t, err)
	k2, err := MsgKey("conv-1", 100, 2)
	require.NoError(t, err)
	k3, err := MsgKey("conv-1", 99999999999, 1)
	require.NoError(t, err)

	keys := []string{k3, k2, k1}
	sort.Strings(keys)
	require.Equal(t, []string{k1, k2, k3}, keys)

	_, err = MsgKey("", 1, 1)
	require.Error(t, err)
}

func TestMsgKeySeqTieBreakNeverWraps(t *testing.T) {
	// same-nanosecond messages key in insertion order across the full
	// sequence range, including counts a truncated suffix would fold
	seqs := []uint64{1, 999999, 1000000, 1000001, 1 << 40}
	var prev string
	for _, s := range seqs {
		k, err := MsgKey("conv-1", 100, s)
		require.NoError(t, err)
		require.Greater(t, k, prev)
		prev = k
	}

	v1, err := VersionKey("msg-1", 100, 999999)
	require.NoError(t, err)
	v2, err := VersionKey("msg-1", 100, 1000000)
	require.NoError(t, err)
	require.Greater(t, v2, v1)
}

func TestNextStampMonotonicPerConversation(t *testing.T) {
	var lastTS int64
	var lastSeq uint64
	for i := 0; i < 1000; i++ {
		ts, seq := NextStamp("conv-stamp")
		require.GreaterOrEqual(t, ts, lastTS)
		require.Greater(t, seq, lastSeq)
		lastTS, lastSeq = ts, seq
	}
}

func TestUserRoundtripAndExternalIndex(t *testing.T) {
	openTestStore(t)

	u := models.User{ID: "usr-1", ExternalID: "ext-1", Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, SaveUser(u))
	require.NoError(t, IndexUserExternal(u.ExternalID, u.ID))

	got, err := GetUser("usr-1")
	require.NoError(t, err)
	require.Equal(t, u, got)

	id, err := LookupUserByExternal("ext-1")
	require.NoError(t, err)
	require.Equal(t, "usr-1", id)

	_, err = LookupUserByExternal("ext-missing")
	require.True(t, IsNotFound(err))

	users, err := ScanUsers()
	require.NoError(t, err)
	require.Len(t, users, 1)
}

func TestCreateConversationWritesIndexes(t *testing.T) {
	openTestStore(t)

	c := models.Conversation{ID: "conv-1", UserA: "usr-a", UserB: "usr-b", LastRead: map[string]int64{}}
	require.NoError(t, CreateConversation(c))

	id, err := GetPairConversation("usr-b", "usr-a")
	require.NoError(t, err)
	require.Equal(t, "conv-1", id)

	got, err := GetConversation("conv-1")
	require.NoError(t, err)
	require.Equal(t, c.UserA, got.UserA)
	require.Equal(t, c.UserB, got.UserB)

	for _, u := range []string{"usr-a", "usr-b"} {
		ids, err := ListUserConversationIDs(u)
		require.NoError(t, err)
		require.Equal(t, []string{"conv-1"}, ids)
	}
}

func TestAppendMessageAssignsTimestampAndLocator(t *testing.T) {
	openTestStore(t)

	m := models.Message{ID: "msg-1", Conversation: "conv-1", Sender: "usr-a", Content: "hello"}
	stored, err := AppendMessage(m)
	require.NoError(t, err)
	require.NotZero(t, stored.CreatedTS)

	got, logKey, err := GetMessage("msg-1")
	require.NoError(t, err)
	require.Equal(t, stored, got)
	require.Contains(t, logKey, "conv:conv-1:msg:")

	_, _, err = GetMessage("msg-missing")
	require.True(t, IsNotFound(err))
}

func TestAppendOrderIsAscending(t *testing.T) {
	openTestStore(t)

	for i := 0; i < 50; i++ {
		_, err := AppendMessage(models.Message{ID: fmt.Sprintf("msg-order-%d", i), Conversation: "conv-order", Sender: "usr-a", Content: "x"})
		require.NoError(t, err)
	}
	msgs, err := ListConvMessages("conv-order")
	require.NoError(t, err)
	require.Len(t, msgs, 50)
	for i := 1; i < len(msgs); i++ {
		require.GreaterOrEqual(t, msgs[i].CreatedTS, msgs[i-1].CreatedTS)
	}

	limited, err := ListConvMessages("conv-order", 10)
	require.NoError(t, err)
	require.Len(t, limited, 10)
	require.Equal(t, msgs[:10], limited)
}

func TestUpdateMessageKeepsLogKeyAndAppendsVersion(t *testing.T) {
	openTestStore(t)

	stored, err := AppendMessage(models.Message{ID: "msg-v", Conversation: "conv-v", Sender: "usr-a", Content: "hi"})
	require.NoError(t, err)

	_, logKey, err := GetMessage("msg-v")
	require.NoError(t, err)

	stored.Deleted = true
	require.NoError(t, UpdateMessage(logKey, stored))

	got, logKey2, err := GetMessage("msg-v")
	require.NoError(t, err)
	require.Equal(t, logKey, logKey2)
	require.True(t, got.Deleted)

	versions, err := ListMessageVersions("msg-v")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	require.False(t, versions[0].Deleted)
	require.True(t, versions[1].Deleted)

	keys, err := ListVersionKeys("msg-v")
	require.NoError(t, err)
	require.Len(t, keys, 2)
}

func TestRawKeyHelpers(t *testing.T) {
	openTestStore(t)

	require.NoError(t, SaveKey("meta:test", []byte("v1")))
	v, err := GetKey("meta:test")
	require.NoError(t, err)
	require.Equal(t, "v1", v)

	keys, err := ListKeys("meta:")
	require.NoError(t, err)
	require.Equal(t, []string{"meta:test"}, keys)

	require.NoError(t, DeleteKey("meta:test"))
	_, err = GetKey("meta:test")
	require.True(t, IsNotFound(err))
}
