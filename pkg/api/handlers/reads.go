package handlers

import (
	"encoding/json"
	"net/http"

	"pairdb/pkg/auth"
	"pairdb/pkg/chat"
	"pairdb/pkg/utils"

	"github.com/gorilla/mux"
)

// RegisterReads registers read-watermark endpoints.
func RegisterReads(r *mux.Router) {
	r.HandleFunc("/reads/mark", markRead).Methods(http.MethodPost)
	r.HandleFunc("/reads/unread", unreadCounts).Methods(http.MethodGet)
}

func markRead(w http.ResponseWriter, r *http.Request) {
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
	if err := chat.MarkRead(caller, body.Other); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// unreadCounts degrades to an empty map without a caller identity.
func unreadCounts(w http.ResponseWriter, r *http.Request) {
	caller, status, _ := auth.ResolveCallerFromRequest(r, "")
	if status != 0 {
		caller = ""
	}
	counts, err := chat.UnreadCounts(caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Unread map[string]int `json:"unread"`
	}{Unread: counts})
}
