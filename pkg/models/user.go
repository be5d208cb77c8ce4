package models

// User is a directory record synced from the external identity provider.
// ExternalID and Email are frozen at creation; profile syncs may only
// rewrite Name and AvatarRef.
type User struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	AvatarRef  string `json:"avatar_ref,omitempty"`
	// CreatedTS is the creation timestamp (ns).
	CreatedTS int64 `json:"created_ts"`
	// LastSeenTS is the last heartbeat timestamp (ns); 0 means never seen.
	// "Online" is always derived from this at read time, never stored.
	LastSeenTS int64 `json:"last_seen_ts,omitempty"`
	// TypingTarget is the user this user is currently typing to. A single
	// mutable pointer: setting a new target overwrites, empty clears.
	TypingTarget string `json:"typing_target,omitempty"`
	// TypingTS records when TypingTarget was last set (ns); the pointer is
	// only honored while younger than the configured typing TTL.
	TypingTS int64 `json:"typing_ts,omitempty"`
}
