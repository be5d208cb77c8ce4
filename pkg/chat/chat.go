// Package chat implements the conversation resolver, the message log and
// read tracking on top of the store.
package chat

import (
	"fmt"
	"time"

	"pairdb/pkg/events"
	"pairdb/pkg/logger"
	"pairdb/pkg/models"
	"pairdb/pkg/presence"
	"pairdb/pkg/store"
	"pairdb/pkg/telemetry"
	"pairdb/pkg/utils"
	"pairdb/pkg/validation"
)

// Resolve returns the one conversation for the unordered pair of caller
// and other, creating it when absent. Order-independent and idempotent:
// a concurrent duplicate create loses the pair lock, re-reads and gets
// the winner's record instead of creating a second one.
func Resolve(callerID, otherID string) (models.Conversation, error) {
	var c models.Conversation
	if callerID == "" {
		return c, models.ErrUnauthorized
	}
	if otherID == "" {
		return c, fmt.Errorf("%w: other user id must not be blank", models.ErrValidation)
	}
	if callerID == otherID {
		return c, fmt.Errorf("%w: cannot open a conversation with yourself", models.ErrValidation)
	}

	if id, err := store.GetPairConversation(callerID, otherID); err == nil {
		return store.GetConversation(id)
	} else if !store.IsNotFound(err) {
		return c, err
	}

	// the pair lock serializes first contact from both sides
	release := store.LockKey(store.PairKey(callerID, otherID))
	defer release()

	if id, err := store.GetPairConversation(callerID, otherID); err == nil {
		// lost the race; the winner's conversation is authoritative
		return store.GetConversation(id)
	} else if !store.IsNotFound(err) {
		return c, err
	}

	a, b := callerID, otherID
	if b < a {
		a, b = b, a
	}
	c = models.Conversation{
		ID:        utils.GenConvID(),
		UserA:     a,
		UserB:     b,
		LastRead:  map[string]int64{},
		CreatedTS: time.Now().UTC().UnixNano(),
	}
	if err := store.CreateConversation(c); err != nil {
		return c, err
	}
	telemetry.ConversationsCreated.Inc()
	events.Publish(events.Event{Type: events.ConversationCreated, Conversation: c.ID})
	return c, nil
}

// lookupPair returns the existing conversation for the pair without
// creating one. The bool reports whether it exists.
func lookupPair(a, b string) (models.Conversation, bool, error) {
	var c models.Conversation
	id, err := store.GetPairConversation(a, b)
	if err != nil {
		if store.IsNotFound(err) {
			return c, false, nil
		}
		return c, false, err
	}
	c, err = store.GetConversation(id)
	if err != nil {
		return c, false, err
	}
	return c, true, nil
}

// Send validates and appends a message from sender to receiver, resolving
// the conversation first. The stored message, including its assigned
// creation timestamp, is returned. Sending clears the sender's typing
// pointer.
func Send(senderID, receiverID, content string) (models.Message, error) {
	var m models.Message
	if senderID == "" {
		return m, models.ErrUnauthorized
	}
	if err := validation.ValidateContent(content); err != nil {
		return m, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	conv, err := Resolve(senderID, receiverID)
	if err != nil {
		return m, err
	}
	m = models.Message{
		ID:           utils.GenMsgID(),
		Conversation: conv.ID,
		Sender:       senderID,
		Content:      content,
	}
	m, err = store.AppendMessage(m)
	if err != nil {
		return m, err
	}
	if terr := presence.SetTyping(senderID, ""); terr != nil {
		logger.Debug("clear_typing_failed", "user", senderID, "error", terr)
	}
	telemetry.MessagesSent.Inc()
	events.Publish(events.Event{Type: events.MessageSent, Conversation: conv.ID, User: senderID, Message: m.ID, TS: m.CreatedTS})
	return m, nil
}

// List returns the full thread between requester and other, ascending by
// creation time, each message annotated with the requester's view.
// Deleted rows stay in place with their content blanked. No conversation
// or no caller identity yields an empty sequence, not an error.
func List(requesterID, otherID string) ([]models.MessageView, error) {
	if requesterID == "" {
		return []models.MessageView{}, nil
	}
	conv, ok, err := lookupPair(requesterID, otherID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []models.MessageView{}, nil
	}
	msgs, err := store.ListConvMessages(conv.ID)
	if err != nil {
		return nil, err
	}
	out := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, models.ViewFor(m, requesterID))
	}
	return out, nil
}

// SoftDelete marks the requester's own messages deleted. Missing ids and
// ids sent by someone else are skipped silently so one stale id never
// aborts the batch. Re-deleting a deleted message is a no-op.
func SoftDelete(requesterID string, msgIDs []string) error {
	if requesterID == "" {
		return models.ErrUnauthorized
	}
	for _, id := range msgIDs {
		release := store.LockKey(store.MsgIdxKey(id))
		m, logKey, err := store.GetMessage(id)
		if err != nil {
			release()
			if store.IsNotFound(err) {
				logger.Debug("soft_delete_skip_missing", "msg_id", id)
				continue
			}
			return err
		}
		if m.Sender != requesterID {
			release()
			logger.Debug("soft_delete_skip_foreign", "msg_id", id, "requester", requesterID)
			continue
		}
		if m.Deleted {
			release()
			continue
		}
		m.Deleted = true
		m.DeletedTS = time.Now().UTC().UnixNano()
		err = store.UpdateMessage(logKey, m)
		release()
		if err != nil {
			return err
		}
		telemetry.MessagesDeleted.Inc()
		events.Publish(events.Event{Type: events.MessageDeleted, Conversation: m.Conversation, User: requesterID, Message: id})
	}
	return nil
}

// ToggleReaction adds the (user, emoji) pair to the message's reaction
// set, or removes it when already present. Participation in the
// conversation is not required. A missing message is a silent no-op.
func ToggleReaction(userID, msgID, emoji string) error {
	if userID == "" {
		return models.ErrUnauthorized
	}
	if err := validation.ValidateEmoji(emoji); err != nil {
		return fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	release := store.LockKey(store.MsgIdxKey(msgID))
	defer release()

	m, logKey, err := store.GetMessage(msgID)
	if err != nil {
		if store.IsNotFound(err) {
			logger.Debug("toggle_reaction_skip_missing", "msg_id", msgID)
			return nil
		}
		return err
	}
	found := -1
	for i, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			found = i
			break
		}
	}
	if found >= 0 {
		m.Reactions = append(m.Reactions[:found], m.Reactions[found+1:]...)
	} else {
		m.Reactions = append(m.Reactions, models.Reaction{UserID: userID, Emoji: emoji})
	}
	if err := store.UpdateMessage(logKey, m); err != nil {
		return err
	}
	telemetry.ReactionsToggled.Inc()
	events.Publish(events.Event{Type: events.ReactionToggled, Conversation: m.Conversation, User: userID, Message: msgID})
	return nil
}

// MarkRead advances the caller's read watermark on the conversation with
// other to now. The watermark never moves backwards. No conversation yet
// means nothing to mark.
func MarkRead(userID, otherID string) error {
	if userID == "" {
		return models.ErrUnauthorized
	}
	conv, ok, err := lookupPair(userID, otherID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	release := store.LockKey(store.ConvKey(conv.ID))
	defer release()

	c, err := store.GetConversation(conv.ID)
	if err != nil {
		return err
	}
	now := time.Now().UTC().UnixNano()
	if c.LastRead == nil {
		c.LastRead = map[string]int64{}
	}
	if now <= c.LastRead[userID] {
		return nil
	}
	c.LastRead[userID] = now
	if err := store.SaveConversation(c); err != nil {
		return err
	}
	events.Publish(events.Event{Type: events.ReadWatermarkAdvanced, Conversation: c.ID, User: userID, TS: now})
	return nil
}

// UnreadCounts recomputes, from scratch, how many live messages from each
// peer arrived after the caller's watermark. No caller identity yields an
// empty map. The scan recomputes on every call so the count can never
// drift from the log.
func UnreadCounts(userID string) (map[string]int, error) {
	counts := map[string]int{}
	if userID == "" {
		return counts, nil
	}
	start := time.Now()
	defer func() { telemetry.UnreadScanSeconds.Observe(time.Since(start).Seconds()) }()

	convIDs, err := store.ListUserConversationIDs(userID)
	if err != nil {
		return nil, err
	}
	for _, cid := range convIDs {
		c, err := store.GetConversation(cid)
		if err != nil {
			if store.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		watermark := int64(0)
		if c.LastRead != nil {
			watermark = c.LastRead[userID]
		}
		msgs, err := store.ListConvMessages(cid)
		if err != nil {
			return nil, err
		}
		n := 0
		for _, m := range msgs {
			if m.Sender != userID && !m.Deleted && m.CreatedTS > watermark {
				n++
			}
		}
		counts[c.Other(userID)] = n
	}
	return counts, nil
}

// ListConversations returns every conversation the caller belongs to. No
// caller identity yields an empty slice.
func ListConversations(userID string) ([]models.Conversation, error) {
	if userID == "" {
		return []models.Conversation{}, nil
	}
	ids, err := store.ListUserConversationIDs(userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Conversation, 0, len(ids))
	for _, id := range ids {
		c, err := store.GetConversation(id)
		if err != nil {
			if store.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ListVersions returns the stored mutation trail for a message. Only the
// conversation's participants see it; everyone else gets an empty slice.
func ListVersions(requesterID, msgID string) ([]models.Message, error) {
	if requesterID == "" {
		return []models.Message{}, nil
	}
	m, _, err := store.GetMessage(msgID)
	if err != nil {
		if store.IsNotFound(err) {
			return []models.Message{}, nil
		}
		return nil, err
	}
	c, err := store.GetConversation(m.Conversation)
	if err != nil {
		return nil, err
	}
	if !c.Has(requesterID) {
		return []models.Message{}, nil
	}
	return store.ListMessageVersions(msgID)
}
