package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/openchat-im/openchat/internal/common"
	"github.com/openchat-im/openchat/internal/server/ws"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token         string `json:"token"`
	Username      string `json:"username"`
	Authenticator string `json:"authenticator"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, common.ErrorInvalidInput)
		return
	}

	session, err := s.accounts.SignUp(r.Context(), creds.Username, creds.Password)
	if err != nil {
		s.log.Warn(r.Context(), "signup failed", "username", creds.Username, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		Token:         session.Token,
		Username:      session.Username,
		Authenticator: session.Authenticator,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, common.ErrorInvalidInput)
		return
	}

	session, err := s.accounts.Login(r.Context(), creds.Username, creds.Password)
	if err != nil {
		s.log.Warn(r.Context(), "login failed", "username", creds.Username, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Token:         session.Token,
		Username:      session.Username,
		Authenticator: session.Authenticator,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	username := usernameFrom(r)
	if err := s.accounts.SetOnline(r.Context(), username, false); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.accounts.Contacts(r.Context(), usernameFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}

	type contactResponse struct {
		Username      string `json:"username"`
		Authenticator string `json:"authenticator"`
		Online        bool   `json:"online"`
	}
	out := make([]contactResponse, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, contactResponse{Username: c.Username, Authenticator: c.Authenticator, Online: c.Online})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Authenticator string `json:"authenticator"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Authenticator == "" {
		writeError(w, common.ErrorInvalidInput)
		return
	}

	result, err := s.linking.Link(r.Context(), usernameFrom(r), req.Authenticator)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"username":      result.PeerUsername,
		"authenticator": result.Authenticator,
	})
}

func (s *Server) handlePushSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subscription json.RawMessage `json:"subscription"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Subscription) == 0 {
		writeError(w, common.ErrorInvalidInput)
		return
	}

	if err := s.accounts.SubscribePush(r.Context(), usernameFrom(r), string(req.Subscription)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if err := ws.Serve(s.hub, w, r, usernameFrom(r)); err != nil {
		s.log.Warn(r.Context(), "websocket upgrade failed", "error", err)
	}
}
