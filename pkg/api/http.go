package api

import (
	"net/http"

	"pairdb/pkg/api/handlers"
	"pairdb/pkg/auth"

	"github.com/gorilla/mux"
)

// Handler returns the versioned API router. Everything under /v1 runs
// behind the signed-caller middleware; /admin relies on the role header
// set by the gateway.
func Handler() http.Handler {
	r := mux.NewRouter()

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(auth.RequireSignedCaller)
	handlers.RegisterUsers(v1)
	handlers.RegisterMessages(v1)
	handlers.RegisterConversations(v1)
	handlers.RegisterReads(v1)
	handlers.RegisterSigning(v1)

	adm := r.PathPrefix("/admin").Subrouter()
	handlers.RegisterAdmin(adm)

	// Simple root help
	r.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"endpoints":["POST /v1/users/sync","POST /v1/users/heartbeat","POST /v1/users/typing","GET /v1/users/{id}","GET /v1/users?search=<q>","POST /v1/messages","GET /v1/messages?other=<id>","POST /v1/messages/delete","POST /v1/messages/{id}/reactions/toggle","GET /v1/messages/{id}/versions","POST /v1/conversations/resolve","GET /v1/conversations","POST /v1/reads/mark","GET /v1/reads/unread"]}`))
	})

	return r
}
