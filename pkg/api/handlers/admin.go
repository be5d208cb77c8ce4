package handlers

import (
	"net/http"
	"net/url"

	"pairdb/pkg/logger"
	"pairdb/pkg/store"
	"pairdb/pkg/utils"

	"github.com/gorilla/mux"
)

// RegisterAdmin registers admin-only routes onto the admin subrouter.
func RegisterAdmin(r *mux.Router) {
	r.HandleFunc("/health", adminHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", adminStats).Methods(http.MethodGet)
	r.HandleFunc("/keys", adminListKeys).Methods(http.MethodGet)
	r.HandleFunc("/keys/{key}", adminGetKey).Methods(http.MethodGet)
	logger.Info("admin_routes_registered")
}

func isAdmin(r *http.Request) bool {
	role := r.Header.Get("X-Role-Name")
	return role == "admin" || role == "backend"
}

func adminHealth(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok", "service": "pairdb"})
}

func adminStats(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	users, _ := store.ScanUsers()
	convKeys, _ := store.ListKeys("convpair:")
	var msgCount int64
	for _, k := range convKeys {
		if id, err := store.GetKey(k); err == nil {
			if msgs, err := store.ListConvMessages(id); err == nil {
				msgCount += int64(len(msgs))
			}
		}
	}
	out := struct {
		Users         int    `json:"users"`
		Conversations int    `json:"conversations"`
		Messages      int64  `json:"messages"`
		DiskBytes     uint64 `json:"disk_bytes"`
	}{Users: len(users), Conversations: len(convKeys), Messages: msgCount, DiskBytes: store.DiskUsage()}
	_ = utils.JSONWrite(w, http.StatusOK, out)
}

// adminListKeys lists keys in the underlying store. Optional query param
// `prefix` limits keys by prefix.
func adminListKeys(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	keys, err := store.ListKeys(r.URL.Query().Get("prefix"))
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Keys []string `json:"keys"`
	}{Keys: keys})
}

// adminGetKey returns the raw value for a given key. The key path variable
// is URL-unescaped before lookup.
func adminGetKey(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	keyEnc, ok := mux.Vars(r)["key"]
	if !ok {
		utils.JSONError(w, http.StatusBadRequest, "missing key")
		return
	}
	// gorilla/mux does not unescape path variables
	key, err := url.PathUnescape(keyEnc)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid key encoding")
		return
	}
	v, err := store.GetKey(key)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write([]byte(v))
}
