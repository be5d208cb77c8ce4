package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"pairdb/pkg/auth"
	"pairdb/pkg/directory"
	"pairdb/pkg/logger"
	"pairdb/pkg/models"
	"pairdb/pkg/presence"
	"pairdb/pkg/utils"

	"github.com/gorilla/mux"
)

// RegisterUsers registers directory and presence endpoints.
func RegisterUsers(r *mux.Router) {
	r.HandleFunc("/users/sync", syncProfile).Methods(http.MethodPost)
	r.HandleFunc("/users/heartbeat", heartbeat).Methods(http.MethodPost)
	r.HandleFunc("/users/typing", setTyping).Methods(http.MethodPost)
	r.HandleFunc("/users", searchUsers).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}", getUser).Methods(http.MethodGet)
}

// userView is a User annotated with presence state derived at read time.
type userView struct {
	models.User
	Online bool `json:"online"`
	// TypingToMe is set only when a caller identity is known.
	TypingToMe bool `json:"typing_to_me,omitempty"`
}

func annotate(u models.User, viewerID string, now time.Time) userView {
	v := userView{User: u, Online: presence.Online(u, now)}
	if viewerID != "" {
		v.TypingToMe = presence.TypingFor(u, viewerID, now)
	}
	return v
}

func syncProfile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ExternalID string `json:"external_id"`
		Name       string `json:"name"`
		Email      string `json:"email"`
		AvatarRef  string `json:"avatar_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	id, err := directory.SyncProfile(body.ExternalID, body.Name, body.Email, body.AvatarRef)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	logger.Debug("profile_sync_handled", "user", id)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"id": id})
}

func heartbeat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
	}
	// body is optional; signed callers carry identity in headers
	_ = json.NewDecoder(r.Body).Decode(&body)
	caller, status, msg := auth.ResolveCallerFromRequest(r, body.UserID)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	presence.Heartbeat(caller)
	w.WriteHeader(http.StatusNoContent)
}

func setTyping(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"user_id"`
		Target string `json:"target"`
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
	if err := presence.SetTyping(caller, body.Target); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func getUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	u, err := directory.Lookup(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	viewer := auth.CallerIDFromContext(r.Context())
	_ = utils.JSONWrite(w, http.StatusOK, annotate(u, viewer, time.Now()))
}

// searchUsers degrades to an empty result when no caller identity is
// present: logged out means see nothing, not an error.
func searchUsers(w http.ResponseWriter, r *http.Request) {
	caller, status, _ := auth.ResolveCallerFromRequest(r, "")
	if status != 0 {
		_ = utils.JSONWrite(w, http.StatusOK, struct {
			Users []userView `json:"users"`
		}{Users: []userView{}})
		return
	}
	users, err := directory.Search(r.URL.Query().Get("search"), caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	now := time.Now()
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, annotate(u, caller, now))
	}
	logger.Debug("users_search", "caller", caller, "count", len(out))
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Users []userView `json:"users"`
	}{Users: out})
}
