// Package httpapi exposes the node's HTTP and websocket surface: account
// signup and login, store linking, direct and group messaging, file upload
// URLs and the realtime event socket.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/openchat-im/openchat/internal/logging"
	"github.com/openchat-im/openchat/internal/server/accounts"
	"github.com/openchat-im/openchat/internal/server/files"
	"github.com/openchat-im/openchat/internal/server/groups"
	"github.com/openchat-im/openchat/internal/server/linking"
	"github.com/openchat-im/openchat/internal/server/messaging"
	"github.com/openchat-im/openchat/internal/server/ws"
)

type Server struct {
	log       logging.Logger
	accounts  *accounts.Service
	linking   *linking.Service
	messaging *messaging.Service
	groups    *groups.Service
	files     *files.Service
	hub       *ws.Hub
	secretKey []byte
}

func NewServer(
	log logging.Logger,
	accountsSvc *accounts.Service,
	linkingSvc *linking.Service,
	messagingSvc *messaging.Service,
	groupsSvc *groups.Service,
	filesSvc *files.Service,
	hub *ws.Hub,
	secretKey []byte,
) *Server {
	return &Server{
		log:       log,
		accounts:  accountsSvc,
		linking:   linkingSvc,
		messaging: messagingSvc,
		groups:    groupsSvc,
		files:     filesSvc,
		hub:       hub,
		secretKey: secretKey,
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/signup", s.handleSignUp).Methods(http.MethodPost)
	r.HandleFunc("/api/login", s.handleLogin).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(mux.MiddlewareFunc(s.authMiddleware))

	api.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	api.HandleFunc("/contacts", s.handleContacts).Methods(http.MethodGet)
	api.HandleFunc("/link", s.handleLink).Methods(http.MethodPost)

	api.HandleFunc("/messages", s.handleSendMessage).Methods(http.MethodPost)
	api.HandleFunc("/messages/{peer}", s.handleHistory).Methods(http.MethodGet)

	api.HandleFunc("/groups", s.handleCreateGroup).Methods(http.MethodPost)
	api.HandleFunc("/groups", s.handleListGroups).Methods(http.MethodGet)
	api.HandleFunc("/groups/{id}", s.handleGroupDetails).Methods(http.MethodGet)
	api.HandleFunc("/groups/{id}", s.handleDeleteGroup).Methods(http.MethodDelete)
	api.HandleFunc("/groups/{id}/members", s.handleAddMembers).Methods(http.MethodPost)
	api.HandleFunc("/groups/{id}/messages", s.handleGroupMessage).Methods(http.MethodPost)
	api.HandleFunc("/groups/{id}/messages", s.handleGroupHistory).Methods(http.MethodGet)

	api.HandleFunc("/push/subscription", s.handlePushSubscription).Methods(http.MethodPost)
	api.HandleFunc("/files/upload-url", s.handleUploadURL).Methods(http.MethodGet)
	api.HandleFunc("/files/download-url", s.handleDownloadURL).Methods(http.MethodGet)

	r.Handle("/ws", s.authMiddleware(http.HandlerFunc(s.handleWebsocket))).Methods(http.MethodGet)

	return r
}
