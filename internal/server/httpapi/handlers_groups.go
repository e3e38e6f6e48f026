package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/openchat-im/openchat/internal/common"
	"github.com/openchat-im/openchat/internal/server/groups"
	"github.com/openchat-im/openchat/internal/server/models"
)

type groupResponse struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Creator   string   `json:"creator"`
	Members   []string `json:"members"`
	CreatedAt int64    `json:"createdAt"`
	UpdatedAt int64    `json:"updatedAt"`
	Partial   bool     `json:"partial,omitempty"`
}

func toGroupResponse(g *models.Group, partial bool) groupResponse {
	return groupResponse{
		ID:        g.ID,
		Name:      g.Name,
		Creator:   g.Creator,
		Members:   g.Members,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
		Partial:   partial,
	}
}

type groupMessageResponse struct {
	ID        string `json:"id"`
	GroupID   string `json:"groupId"`
	Sender    string `json:"sender"`
	Body      string `json:"body,omitempty"`
	FileURL   string `json:"fileUrl,omitempty"`
	FileName  string `json:"fileName,omitempty"`
	FileType  string `json:"fileType,omitempty"`
	FileSize  int64  `json:"fileSize,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Partial   bool   `json:"partial,omitempty"`
}

func toGroupMessageResponse(m *models.GroupMessage, partial bool) groupMessageResponse {
	return groupMessageResponse{
		ID:        m.ID,
		GroupID:   m.GroupID,
		Sender:    m.Sender,
		Body:      m.Body,
		FileURL:   m.FileURL,
		FileName:  m.FileName,
		FileType:  m.FileType,
		FileSize:  m.FileSize,
		Timestamp: m.Timestamp,
		Partial:   partial,
	}
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string   `json:"name"`
		Members []string `json:"members"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, common.ErrorInvalidInput)
		return
	}

	g, err := s.groups.Create(r.Context(), usernameFrom(r), req.Name, req.Members)
	// Some member stores may have been unreachable; the group still exists.
	partial := errors.Is(err, common.ErrorPartialFailure)
	if err != nil && !partial {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toGroupResponse(g, partial))
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	list, err := s.groups.List(r.Context(), usernameFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]groupResponse, 0, len(list))
	for _, g := range list {
		out = append(out, toGroupResponse(g, false))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGroupDetails(w http.ResponseWriter, r *http.Request) {
	details, err := s.groups.GetDetails(r.Context(), usernameFrom(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		groupResponse
		AvailableContacts []string `json:"availableContacts"`
	}{
		groupResponse:     toGroupResponse(details.Group, false),
		AvailableContacts: details.AvailableContacts,
	})
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	err := s.groups.Delete(r.Context(), usernameFrom(r), mux.Vars(r)["id"])
	if errors.Is(err, common.ErrorPartialFailure) {
		writeJSON(w, http.StatusOK, map[string]bool{"partial": true})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddMembers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Members []string `json:"members"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Members) == 0 {
		writeError(w, common.ErrorInvalidInput)
		return
	}

	g, err := s.groups.AddMembers(r.Context(), usernameFrom(r), mux.Vars(r)["id"], req.Members)
	partial := errors.Is(err, common.ErrorPartialFailure)
	if err != nil && !partial {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toGroupResponse(g, partial))
}

func (s *Server) handleGroupMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Body     string `json:"body"`
		FileURL  string `json:"fileUrl"`
		FileName string `json:"fileName"`
		FileType string `json:"fileType"`
		FileSize int64  `json:"fileSize"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, common.ErrorInvalidInput)
		return
	}

	msg, err := s.groups.Message(r.Context(), usernameFrom(r), mux.Vars(r)["id"], &groups.Draft{
		Body:     req.Body,
		FileURL:  req.FileURL,
		FileName: req.FileName,
		FileType: req.FileType,
		FileSize: req.FileSize,
	})
	partial := errors.Is(err, common.ErrorPartialFailure)
	if err != nil && !partial {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toGroupMessageResponse(msg, partial))
}

func (s *Server) handleGroupHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.groups.LoadMessages(r.Context(), usernameFrom(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]groupMessageResponse, 0, len(history))
	for _, m := range history {
		out = append(out, toGroupMessageResponse(m, false))
	}
	writeJSON(w, http.StatusOK, out)
}
