package models

// Conversation pairs two users for all their direct messages. Participants
// are stored in canonical order (UserA < UserB lexicographically) so the
// pair index key is order-independent; at most one record exists per
// unordered pair.
type Conversation struct {
	ID    string `json:"id"`
	UserA string `json:"user_a"`
	UserB string `json:"user_b"`
	// LastRead maps participant id -> read watermark (ns). Absent means
	// never read. Watermarks only move forward.
	LastRead  map[string]int64 `json:"last_read,omitempty"`
	CreatedTS int64            `json:"created_ts"`
}

// Other returns the participant that is not id, or empty when id is not a
// participant.
func (c *Conversation) Other(id string) string {
	switch id {
	case c.UserA:
		return c.UserB
	case c.UserB:
		return c.UserA
	}
	return ""
}

// Has reports whether id participates in the conversation.
func (c *Conversation) Has(id string) bool {
	return id == c.UserA || id == c.UserB
}
