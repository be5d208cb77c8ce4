package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pairdb/pkg/logger"
	"pairdb/pkg/models"
	"pairdb/pkg/store"
)

func openTestStore(t *testing.T) {
	t.Helper()
	logger.Init()
	require.NoError(t, store.Open(t.TempDir()))
	t.Cleanup(func() { require.NoError(t, store.Close()) })
}

func seedUser(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, store.SaveUser(models.User{ID: id, Name: id}))
}

func TestResolveIdempotentAndOrderIndependent(t *testing.T) {
	openTestStore(t)

	c1, err := Resolve("usr-a", "usr-b")
	require.NoError(t, err)
	c2, err := Resolve("usr-b", "usr-a")
	require.NoError(t, err)
	require.Equal(t, c1.ID, c2.ID)
	require.Equal(t, "usr-a", c1.UserA)
	require.Equal(t, "usr-b", c1.UserB)
}

func TestResolveRejectsBadInput(t *testing.T) {
	openTestStore(t)

	_, err := Resolve("", "usr-b")
	require.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = Resolve("usr-a", "")
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = Resolve("usr-a", "usr-a")
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestResolveConcurrentFirstContact(t *testing.T) {
	openTestStore(t)

	const n = 32
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// both sides race to create the same conversation
			a, b := "usr-x", "usr-y"
			if i%2 == 1 {
				a, b = b, a
			}
			c, err := Resolve(a, b)
			ids[i], errs[i] = c.ID, err
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, ids[0], ids[i])
	}
}

func TestSendAppendsInOrder(t *testing.T) {
	openTestStore(t)
	seedUser(t, "usr-a")
	seedUser(t, "usr-b")

	var sent []models.Message
	for i := 0; i < 20; i++ {
		m, err := Send("usr-a", "usr-b", "hello")
		require.NoError(t, err)
		require.NotEmpty(t, m.ID)
		require.NotZero(t, m.CreatedTS)
		sent = append(sent, m)
	}

	msgs, err := List("usr-a", "usr-b")
	require.NoError(t, err)
	require.Len(t, msgs, len(sent))
	for i, v := range msgs {
		require.Equal(t, sent[i].ID, v.ID)
		if i > 0 {
			require.GreaterOrEqual(t, v.CreatedTS, msgs[i-1].CreatedTS)
		}
	}
}

func TestSendValidation(t *testing.T) {
	openTestStore(t)

	_, err := Send("", "usr-b", "hi")
	require.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = Send("usr-a", "usr-b", "   \n\t ")
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestSendClearsSenderTyping(t *testing.T) {
	openTestStore(t)
	seedUser(t, "usr-a")
	seedUser(t, "usr-b")

	require.NoError(t, setTypingForTest("usr-a", "usr-b"))
	_, err := Send("usr-a", "usr-b", "hello")
	require.NoError(t, err)

	u, err := store.GetUser("usr-a")
	require.NoError(t, err)
	require.Empty(t, u.TypingTarget)
	require.Zero(t, u.TypingTS)
}

func setTypingForTest(userID, target string) error {
	u, err := store.GetUser(userID)
	if err != nil {
		return err
	}
	u.TypingTarget = target
	u.TypingTS = time.Now().UTC().UnixNano()
	return store.SaveUser(u)
}

func TestListViewerAnnotation(t *testing.T) {
	openTestStore(t)
	seedUser(t, "usr-a")
	seedUser(t, "usr-b")

	_, err := Send("usr-a", "usr-b", "from a")
	require.NoError(t, err)
	_, err = Send("usr-b", "usr-a", "from b")
	require.NoError(t, err)

	forA, err := List("usr-a", "usr-b")
	require.NoError(t, err)
	require.Len(t, forA, 2)
	require.True(t, forA[0].IsMine)
	require.False(t, forA[1].IsMine)

	forB, err := List("usr-b", "usr-a")
	require.NoError(t, err)
	require.False(t, forB[0].IsMine)
	require.True(t, forB[1].IsMine)
}

func TestListDegradesToEmpty(t *testing.T) {
	openTestStore(t)

	msgs, err := List("", "usr-b")
	require.NoError(t, err)
	require.Empty(t, msgs)

	msgs, err = List("usr-a", "usr-never-met")
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestSoftDeleteSenderOnly(t *testing.T) {
	openTestStore(t)
	seedUser(t, "usr-a")
	seedUser(t, "usr-b")

	mine, err := Send("usr-a", "usr-b", "mine")
	require.NoError(t, err)
	theirs, err := Send("usr-b", "usr-a", "theirs")
	require.NoError(t, err)

	// foreign and missing ids are skipped silently; own id is deleted
	require.NoError(t, SoftDelete("usr-a", []string{theirs.ID, "msg-missing", mine.ID}))

	msgs, err := List("usr-b", "usr-a")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.True(t, msgs[0].Deleted)
	require.Empty(t, msgs[0].Content, "deleted content must be blanked for the peer")
	require.False(t, msgs[1].Deleted)
	require.Equal(t, "theirs", msgs[1].Content)

	// re-deleting is a no-op, not an error
	require.NoError(t, SoftDelete("usr-a", []string{mine.ID}))

	require.ErrorIs(t, SoftDelete("", []string{mine.ID}), models.ErrUnauthorized)
}

func TestToggleReactionStructural(t *testing.T) {
	openTestStore(t)
	seedUser(t, "usr-a")
	seedUser(t, "usr-b")

	m, err := Send("usr-a", "usr-b", "react to me")
	require.NoError(t, err)

	require.NoError(t, ToggleReaction("usr-b", m.ID, "👍"))
	require.NoError(t, ToggleReaction("usr-b", m.ID, "🎉"))
	// not a participant, still allowed
	require.NoError(t, ToggleReaction("usr-c", m.ID, "👍"))

	got, _, err := store.GetMessage(m.ID)
	require.NoError(t, err)
	require.Len(t, got.Reactions, 3)
	require.True(t, got.HasReaction("usr-b", "👍"))

	// toggling the same pair again removes exactly that pair
	require.NoError(t, ToggleReaction("usr-b", m.ID, "👍"))
	got, _, err = store.GetMessage(m.ID)
	require.NoError(t, err)
	require.Len(t, got.Reactions, 2)
	require.False(t, got.HasReaction("usr-b", "👍"))
	require.True(t, got.HasReaction("usr-b", "🎉"))
	require.True(t, got.HasReaction("usr-c", "👍"))

	// missing message is a silent no-op
	require.NoError(t, ToggleReaction("usr-b", "msg-missing", "👍"))

	require.ErrorIs(t, ToggleReaction("", m.ID, "👍"), models.ErrUnauthorized)
	require.ErrorIs(t, ToggleReaction("usr-b", m.ID, "  "), models.ErrValidation)
}

func TestMarkReadMonotonic(t *testing.T) {
	openTestStore(t)
	seedUser(t, "usr-a")
	seedUser(t, "usr-b")

	// no conversation yet: nothing to mark
	require.NoError(t, MarkRead("usr-a", "usr-stranger"))

	_, err := Send("usr-a", "usr-b", "hello")
	require.NoError(t, err)

	require.NoError(t, MarkRead("usr-b", "usr-a"))
	c, _, err := lookupPair("usr-a", "usr-b")
	require.NoError(t, err)
	first := c.LastRead["usr-b"]
	require.NotZero(t, first)

	require.NoError(t, MarkRead("usr-b", "usr-a"))
	c, _, err = lookupPair("usr-a", "usr-b")
	require.NoError(t, err)
	require.GreaterOrEqual(t, c.LastRead["usr-b"], first)

	require.ErrorIs(t, MarkRead("", "usr-a"), models.ErrUnauthorized)
}

func TestUnreadCounts(t *testing.T) {
	openTestStore(t)
	for _, id := range []string{"usr-a", "usr-b", "usr-c"} {
		seedUser(t, id)
	}

	// b sends two messages to a, c sends one
	_, err := Send("usr-b", "usr-a", "one")
	require.NoError(t, err)
	m2, err := Send("usr-b", "usr-a", "two")
	require.NoError(t, err)
	_, err = Send("usr-c", "usr-a", "hi")
	require.NoError(t, err)
	// a's own message never counts against a
	_, err = Send("usr-a", "usr-b", "reply")
	require.NoError(t, err)

	counts, err := UnreadCounts("usr-a")
	require.NoError(t, err)
	require.Equal(t, map[string]int{"usr-b": 2, "usr-c": 1}, counts)

	// deleted messages stop counting
	require.NoError(t, SoftDelete("usr-b", []string{m2.ID}))
	counts, err = UnreadCounts("usr-a")
	require.NoError(t, err)
	require.Equal(t, 1, counts["usr-b"])

	// marking read zeroes the pair but keeps the conversation entry
	require.NoError(t, MarkRead("usr-a", "usr-b"))
	counts, err = UnreadCounts("usr-a")
	require.NoError(t, err)
	require.Equal(t, map[string]int{"usr-b": 0, "usr-c": 1}, counts)

	// messages after the watermark count again
	_, err = Send("usr-b", "usr-a", "three")
	require.NoError(t, err)
	counts, err = UnreadCounts("usr-a")
	require.NoError(t, err)
	require.Equal(t, 1, counts["usr-b"])

	// no identity: empty map, not an error
	counts, err = UnreadCounts("")
	require.NoError(t, err)
	require.Empty(t, counts)
}

func TestListConversations(t *testing.T) {
	openTestStore(t)
	for _, id := range []string{"usr-a", "usr-b", "usr-c"} {
		seedUser(t, id)
	}

	_, err := Send("usr-a", "usr-b", "hi")
	require.NoError(t, err)
	_, err = Send("usr-c", "usr-a", "yo")
	require.NoError(t, err)

	cs, err := ListConversations("usr-a")
	require.NoError(t, err)
	require.Len(t, cs, 2)

	cs, err = ListConversations("usr-b")
	require.NoError(t, err)
	require.Len(t, cs, 1)

	cs, err = ListConversations("")
	require.NoError(t, err)
	require.Empty(t, cs)
}

func TestListVersionsParticipantsOnly(t *testing.T) {
	openTestStore(t)
	seedUser(t, "usr-a")
	seedUser(t, "usr-b")

	m, err := Send("usr-a", "usr-b", "versioned")
	require.NoError(t, err)
	require.NoError(t, ToggleReaction("usr-b", m.ID, "👍"))

	vs, err := ListVersions("usr-a", m.ID)
	require.NoError(t, err)
	require.Len(t, vs, 2)

	vs, err = ListVersions("usr-outsider", m.ID)
	require.NoError(t, err)
	require.Empty(t, vs)

	vs, err = ListVersions("usr-a", "msg-missing")
	require.NoError(t, err)
	require.Empty(t, vs)
}
