package handlers

import (
	"encoding/json"
	"net/http"

	"pairdb/pkg/auth"
	"pairdb/pkg/chat"
	"pairdb/pkg/logger"
	"pairdb/pkg/models"
	"pairdb/pkg/telemetry"
	"pairdb/pkg/utils"

	"github.com/gorilla/mux"
)

// RegisterMessages registers HTTP handlers for message endpoints.
func RegisterMessages(r *mux.Router) {
	r.HandleFunc("/messages", sendMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages", listMessages).Methods(http.MethodGet)
	r.HandleFunc("/messages/delete", deleteMessages).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}/reactions/toggle", toggleReaction).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}/versions", listMessageVersions).Methods(http.MethodGet)
}

// RegisterConversations registers the pair resolver endpoints.
func RegisterConversations(r *mux.Router) {
	r.HandleFunc("/conversations/resolve", resolveConversation).Methods(http.MethodPost)
	r.HandleFunc("/conversations", listConversations).Methods(http.MethodGet)
}

func sendMessage(w http.ResponseWriter, r *http.Request) {
	telemetry.SetRequestOp(r.Context(), "send_message")
	var body struct {
		Sender  string `json:"sender"`
		To      string `json:"to"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	caller, status, msg := auth.ResolveCallerFromRequest(r, body.Sender)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	span := telemetry.StartSpan(r.Context(), "chat.send")
	m, err := chat.Send(caller, body.To, body.Content)
	span()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	logger.Info("message_created", "conversation", m.Conversation, "id", m.ID)
	_ = utils.JSONWrite(w, http.StatusOK, models.ViewFor(m, caller))
}

// listMessages returns the full thread with the user named by ?other=. An
// unauthenticated caller gets an empty thread, not an error.
func listMessages(w http.ResponseWriter, r *http.Request) {
	other := r.URL.Query().Get("other")
	caller, status, _ := auth.ResolveCallerFromRequest(r, "")
	if status != 0 {
		caller = ""
	}
	msgs, err := chat.List(caller, other)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	logger.Debug("messages_list", "caller", caller, "other", other, "count", len(msgs))
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Messages []models.MessageView `json:"messages"`
	}{Messages: msgs})
}

func deleteMessages(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Requester string   `json:"requester"`
		IDs       []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	caller, status, msg := auth.ResolveCallerFromRequest(r, body.Requester)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	if err := chat.SoftDelete(caller, body.IDs); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toggleReaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		UserID string `json:"user_id"`
		Emoji  string `json:"emoji"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	caller, status, msg := auth.ResolveCallerFromRequest(r, body.UserID)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	if err := chat.ToggleReaction(caller, id, body.Emoji); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func listMessageVersions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	caller, status, _ := auth.ResolveCallerFromRequest(r, "")
	if status != 0 {
		caller = ""
	}
	vs, err := chat.ListVersions(caller, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		ID       string           `json:"id"`
		Versions []models.Message `json:"versions"`
	}{ID: id, Versions: vs})
}

func resolveConversation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
		Other  string `json:"other"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	caller, status, msg := auth.ResolveCallerFromRequest(r, body.UserID)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	c, err := chat.Resolve(caller, body.Other)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, c)
}

// conversationView annotates a conversation with the peer and the caller's
// unread count, the shape a conversation-list UI renders directly.
type conversationView struct {
	models.Conversation
	Other  string `json:"other"`
	Unread int    `json:"unread"`
}

func listConversations(w http.ResponseWriter, r *http.Request) {
	caller, status, _ := auth.ResolveCallerFromRequest(r, "")
	if status != 0 {
		caller = ""
	}
	cs, err := chat.ListConversations(caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	unread := map[string]int{}
	if len(cs) > 0 {
		if unread, err = chat.UnreadCounts(caller); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	out := make([]conversationView, 0, len(cs))
	for _, c := range cs {
		other := c.Other(caller)
		out = append(out, conversationView{Conversation: c, Other: other, Unread: unread[other]})
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Conversations []conversationView `json:"conversations"`
	}{Conversations: out})
}
