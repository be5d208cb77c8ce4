package store

import "fmt"

// Key layout. Conversation ids are generated with a "conv-" prefix and user
// ids with "usr-", so the namespaces below cannot collide.
//
//	user:<userID>:meta                 user record
//	userext:<externalID>               external id -> user id (unique index)
//	conv:<convID>:meta                 conversation record
//	conv:<convID>:msg:<ts>-<seq>       message log, ascending key = total order
//	convpair:<a>/<b>                   canonical pair -> conversation id (unique index)
//	convuser:<userID>:<convID>         participant index -> other participant id
//	msgidx:<msgID>                     message id -> owning log key
//	version:msg:<msgID>:<ts>-<seq>     mutation audit trail

func UserKey(userID string) string { return "user:" + userID + ":meta" }

func UserExtKey(externalID string) string { return "userext:" + externalID }

func ConvKey(convID string) string { return "conv:" + convID + ":meta" }

// PairKey returns the unique index key for an unordered user pair. The
// smaller id always comes first, so PairKey(x, y) == PairKey(y, x).
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "convpair:" + a + "/" + b
}

func ConvUserKey(userID, convID string) string { return "convuser:" + userID + ":" + convID }

func convUserPrefix(userID string) string { return "convuser:" + userID + ":" }

func msgPrefix(convID string) string { return "conv:" + convID + ":msg:" }

// MsgKey builds a message log key. The zero-padded timestamp makes keys
// sort by creation time; seq breaks same-nanosecond ties in insertion order.
func MsgKey(convID string, ts int64, seq uint64) (string, error) {
	if convID == "" {
		return "", fmt.Errorf("empty conversation id")
	}
	// full sequence width so the tie-break never wraps out of order
	return fmt.Sprintf("conv:%s:msg:%020d-%020d", convID, ts, seq), nil
}

func MsgIdxKey(msgID string) string { return "msgidx:" + msgID }

// VersionKey builds a version-trail key for a message mutation.
func VersionKey(msgID string, ts int64, seq uint64) (string, error) {
	if msgID == "" {
		return "", fmt.Errorf("empty message id")
	}
	return fmt.Sprintf("version:msg:%s:%020d-%020d", msgID, ts, seq), nil
}

func versionPrefix(msgID string) string { return "version:msg:" + msgID + ":" }
