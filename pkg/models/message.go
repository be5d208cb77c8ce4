package models

// Reaction is a single (user, emoji) pair on a message. Pairs are unique
// under structural equality: a user may apply the same emoji at most once
// but may apply several distinct emojis.
type Reaction struct {
	UserID string `json:"user_id"`
	Emoji  string `json:"emoji"`
}

// Message is one entry in a conversation's append-ordered log. Content is
// immutable once sent; soft delete keeps the row and flips Deleted so the
// thread layout stays stable for both viewers.
type Message struct {
	ID           string `json:"id"`
	Conversation string `json:"conversation"`
	Sender       string `json:"sender"`
	Content      string `json:"content,omitempty"`
	// CreatedTS is server-assigned (ns) and non-decreasing within a
	// conversation; ties are broken by insertion order in the log key.
	CreatedTS int64      `json:"created_ts"`
	Deleted   bool       `json:"deleted,omitempty"`
	DeletedTS int64      `json:"deleted_ts,omitempty"`
	Reactions []Reaction `json:"reactions,omitempty"`
}

// HasReaction reports whether the (userID, emoji) pair is present.
func (m *Message) HasReaction(userID, emoji string) bool {
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			return true
		}
	}
	return false
}

// MessageView is a Message annotated for one viewer. IsMine is computed at
// read time and never stored; Content is blanked on deleted rows so peers
// render a placeholder at the original position.
type MessageView struct {
	Message
	IsMine bool `json:"is_mine"`
}

// ViewFor derives the viewer-specific projection of m.
func ViewFor(m Message, viewerID string) MessageView {
	v := MessageView{Message: m, IsMine: m.Sender == viewerID}
	if m.Deleted {
		v.Content = ""
		v.Reactions = nil
	}
	return v
}
