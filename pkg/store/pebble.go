package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pairdb/pkg/logger"
	"pairdb/pkg/models"

	"github.com/cockroachdb/pebble"
)

var db *pebble.DB

var dbPath string

// seq breaks ties between messages that share the same nanosecond
// timestamp; the full counter goes into the key so order survives any
// count of writes.
var seq uint64

// lastStamp tracks the highest timestamp handed out per conversation so
// message keys stay strictly sortable even when the clock stalls.
var (
	stampMu   sync.Mutex
	lastStamp = map[string]int64{}
)

// Open opens (or creates) a Pebble database at the given path and keeps
// a global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

// Path returns the filesystem path of the opened database.
func Path() string { return dbPath }

// IsNotFound reports whether err means the key does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, pebble.ErrNotFound)
}

// NextStamp returns a per-conversation monotonic timestamp plus a global
// sequence number. Together they form a unique, sortable message key.
func NextStamp(convID string) (int64, uint64) {
	ts := time.Now().UTC().UnixNano()
	stampMu.Lock()
	if last := lastStamp[convID]; ts < last {
		ts = last
	}
	lastStamp[convID] = ts
	stampMu.Unlock()
	return ts, atomic.AddUint64(&seq, 1)
}

// SaveUser stores user metadata under its reserved key.
func SaveUser(u models.User) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := db.Set([]byte(UserKey(u.ID)), data, pebble.Sync); err != nil {
		logger.Error("save_user_failed", "user", u.ID, "error", err)
		return err
	}
	return nil
}

// GetUser returns the stored user for the given internal ID.
func GetUser(userID string) (models.User, error) {
	var u models.User
	if db == nil {
		return u, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get([]byte(UserKey(userID)))
	if err != nil {
		return u, err
	}
	if closer != nil {
		defer closer.Close()
	}
	if err := json.Unmarshal(v, &u); err != nil {
		return u, fmt.Errorf("invalid user JSON: %w", err)
	}
	return u, nil
}

// IndexUserExternal maps an external identity to an internal user ID.
func IndexUserExternal(externalID, userID string) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if err := db.Set([]byte(UserExtKey(externalID)), []byte(userID), pebble.Sync); err != nil {
		logger.Error("index_user_external_failed", "external", externalID, "error", err)
		return err
	}
	return nil
}

// LookupUserByExternal returns the internal user ID for an external
// identity, or pebble.ErrNotFound when no mapping exists.
func LookupUserByExternal(externalID string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get([]byte(UserExtKey(externalID)))
	if err != nil {
		return "", err
	}
	if closer != nil {
		defer closer.Close()
	}
	return string(v), nil
}

// ScanUsers returns every stored user. The directory layer applies search
// filters and ordering on top of this.
func ScanUsers() ([]models.User, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte("user:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.User
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		if !strings.HasSuffix(string(iter.Key()), ":meta") {
			continue
		}
		var u models.User
		if err := json.Unmarshal(iter.Value(), &u); err != nil {
			logger.Warn("scan_users_bad_row", "key", string(iter.Key()), "error", err)
			continue
		}
		out = append(out, u)
	}
	return out, iter.Error()
}

// CreateConversation writes the conversation metadata plus its pair index
// and both per-user membership rows in a single batch.
func CreateConversation(c models.Conversation) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	b := db.NewBatch()
	defer b.Close()
	if err := b.Set([]byte(ConvKey(c.ID)), data, nil); err != nil {
		return err
	}
	if err := b.Set([]byte(PairKey(c.UserA, c.UserB)), []byte(c.ID), nil); err != nil {
		return err
	}
	if err := b.Set([]byte(ConvUserKey(c.UserA, c.ID)), nil, nil); err != nil {
		return err
	}
	if err := b.Set([]byte(ConvUserKey(c.UserB, c.ID)), nil, nil); err != nil {
		return err
	}
	if err := db.Apply(b, pebble.Sync); err != nil {
		logger.Error("create_conversation_failed", "conv", c.ID, "error", err)
		return err
	}
	logger.Info("conversation_created", "conv", c.ID, "a", c.UserA, "b", c.UserB)
	return nil
}

// SaveConversation rewrites conversation metadata in place. Indexes are
// immutable and written only by CreateConversation.
func SaveConversation(c models.Conversation) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	if err := db.Set([]byte(ConvKey(c.ID)), data, pebble.Sync); err != nil {
		logger.Error("save_conversation_failed", "conv", c.ID, "error", err)
		return err
	}
	return nil
}

// GetConversation returns the stored conversation for the given ID.
func GetConversation(convID string) (models.Conversation, error) {
	var c models.Conversation
	if db == nil {
		return c, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get([]byte(ConvKey(convID)))
	if err != nil {
		return c, err
	}
	if closer != nil {
		defer closer.Close()
	}
	if err := json.Unmarshal(v, &c); err != nil {
		return c, fmt.Errorf("invalid conversation JSON: %w", err)
	}
	return c, nil
}

// GetPairConversation returns the conversation ID indexed for the
// unordered pair, or pebble.ErrNotFound when none exists.
func GetPairConversation(a, b string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get([]byte(PairKey(a, b)))
	if err != nil {
		return "", err
	}
	if closer != nil {
		defer closer.Close()
	}
	return string(v), nil
}

// ListUserConversationIDs returns the IDs of every conversation the user
// belongs to.
func ListUserConversationIDs(userID string) ([]string, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte(convUserPrefix(userID))
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		out = append(out, strings.TrimPrefix(string(iter.Key()), string(prefix)))
	}
	return out, iter.Error()
}

// AppendMessage assigns the message a creation timestamp, appends it to
// the conversation log and indexes it by message ID. The log row, the
// locator and the first version row commit in one batch. The stored
// message is returned.
func AppendMessage(msg models.Message) (models.Message, error) {
	if db == nil {
		return msg, fmt.Errorf("pebble not opened; call store.Open first")
	}
	ts, s := NextStamp(msg.Conversation)
	msg.CreatedTS = ts
	key, err := MsgKey(msg.Conversation, ts, s)
	if err != nil {
		return msg, err
	}
	verKey, err := VersionKey(msg.ID, ts, s)
	if err != nil {
		return msg, err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return msg, fmt.Errorf("failed to marshal message: %w", err)
	}

	b := db.NewBatch()
	defer b.Close()
	if err := b.Set([]byte(key), data, nil); err != nil {
		return msg, err
	}
	// the locator stores the log key so later mutations land on the same
	// row and thread order never changes
	if err := b.Set([]byte(MsgIdxKey(msg.ID)), []byte(key), nil); err != nil {
		return msg, err
	}
	if err := b.Set([]byte(verKey), data, nil); err != nil {
		return msg, err
	}
	if err := db.Apply(b, pebble.Sync); err != nil {
		logger.Error("append_message_failed", "conv", msg.Conversation, "key", key, "error", err)
		return msg, err
	}
	logger.Info("message_appended", "conv", msg.Conversation, "key", key, "msg_id", msg.ID)
	return msg, nil
}

// GetMessage looks a message up by ID through its locator. It returns the
// message and the log key it lives at.
func GetMessage(msgID string) (models.Message, string, error) {
	var m models.Message
	if db == nil {
		return m, "", fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get([]byte(MsgIdxKey(msgID)))
	if err != nil {
		return m, "", err
	}
	logKey := string(v)
	if closer != nil {
		closer.Close()
	}
	v, closer, err = db.Get([]byte(logKey))
	if err != nil {
		return m, "", err
	}
	if closer != nil {
		defer closer.Close()
	}
	if err := json.Unmarshal(v, &m); err != nil {
		return m, "", fmt.Errorf("invalid message JSON: %w", err)
	}
	return m, logKey, nil
}

// UpdateMessage rewrites a message at its original log key and appends a
// version row recording the new state.
func UpdateMessage(logKey string, msg models.Message) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	ts, s := NextStamp(msg.Conversation)
	verKey, err := VersionKey(msg.ID, ts, s)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	b := db.NewBatch()
	defer b.Close()
	if err := b.Set([]byte(logKey), data, nil); err != nil {
		return err
	}
	if err := b.Set([]byte(verKey), data, nil); err != nil {
		return err
	}
	if err := db.Apply(b, pebble.Sync); err != nil {
		logger.Error("update_message_failed", "key", logKey, "msg_id", msg.ID, "error", err)
		return err
	}
	logger.Info("message_updated", "key", logKey, "msg_id", msg.ID)
	return nil
}

// ListConvMessages returns all messages of a conversation in creation
// order. A positive limit caps the result.
func ListConvMessages(convID string, limit ...int) ([]models.Message, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte(msgPrefix(convID))
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	max := -1
	if len(limit) > 0 {
		max = limit[0]
	}
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("invalid message JSON: %w", err)
		}
		out = append(out, m)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out, iter.Error()
}

// ListMessageVersions returns all stored versions for a given message ID
// in chronological order.
func ListMessageVersions(msgID string) ([]models.Message, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte(versionPrefix(msgID))
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("invalid message JSON: %w", err)
		}
		out = append(out, m)
	}
	return out, iter.Error()
}

// ListVersionKeys returns the raw version-row keys for a message in
// chronological order. Used by the retention sweeper to prune old rows.
func ListVersionKeys(msgID string) ([]string, error) {
	return ListKeys(versionPrefix(msgID))
}

// ListKeys returns all keys (as strings) that start with the given prefix.
// If prefix is empty it returns all keys in the DB.
func ListKeys(prefix string) ([]string, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	if prefix == "" {
		for iter.First(); iter.Valid(); iter.Next() {
			out = append(out, string(iter.Key()))
		}
	} else {
		pfx := []byte(prefix)
		for iter.SeekGE(pfx); iter.Valid(); iter.Next() {
			if !bytes.HasPrefix(iter.Key(), pfx) {
				break
			}
			out = append(out, string(iter.Key()))
		}
	}
	return out, iter.Error()
}

// GetKey returns the raw value for the given key.
func GetKey(key string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get([]byte(key))
	if err != nil {
		return "", err
	}
	if closer != nil {
		defer closer.Close()
	}
	return string(v), nil
}

// SaveKey stores an arbitrary key/value pair. Callers should choose a
// safe namespace.
func SaveKey(key string, value []byte) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if err := db.Set([]byte(key), value, pebble.Sync); err != nil {
		logger.Error("save_key_failed", "key", key, "error", err)
		return err
	}
	return nil
}

// DeleteKey removes a key. Missing keys are not an error.
func DeleteKey(key string) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	if err := db.Delete([]byte(key), pebble.Sync); err != nil {
		logger.Error("delete_key_failed", "key", key, "error", err)
		return err
	}
	return nil
}

// DBIter returns a raw Pebble iterator for low-level operations. Caller
// must close the iterator when done.
func DBIter() (*pebble.Iterator, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	return db.NewIter(&pebble.IterOptions{})
}
