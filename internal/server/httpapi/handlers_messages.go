package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/openchat-im/openchat/internal/common"
	"github.com/openchat-im/openchat/internal/server/messaging"
	"github.com/openchat-im/openchat/internal/server/models"
)

type messageResponse struct {
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Body      string `json:"body,omitempty"`
	FileURL   string `json:"fileUrl,omitempty"`
	FileName  string `json:"fileName,omitempty"`
	FileType  string `json:"fileType,omitempty"`
	FileSize  int64  `json:"fileSize,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func toMessageResponse(m *models.Message) messageResponse {
	return messageResponse{
		Sender:    m.Sender,
		Receiver:  m.Receiver,
		Body:      m.Body,
		FileURL:   m.FileURL,
		FileName:  m.FileName,
		FileType:  m.FileType,
		FileSize:  m.FileSize,
		Timestamp: m.Timestamp,
	}
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To       string `json:"to"`
		Body     string `json:"body"`
		FileURL  string `json:"fileUrl"`
		FileName string `json:"fileName"`
		FileType string `json:"fileType"`
		FileSize int64  `json:"fileSize"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.To == "" {
		writeError(w, common.ErrorInvalidInput)
		return
	}

	sent, err := s.messaging.Send(r.Context(), usernameFrom(r), req.To, &messaging.Draft{
		Body:     req.Body,
		FileURL:  req.FileURL,
		FileName: req.FileName,
		FileType: req.FileType,
		FileSize: req.FileSize,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toMessageResponse(sent))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	peer := mux.Vars(r)["peer"]

	history, err := s.messaging.LoadHistory(r.Context(), usernameFrom(r), peer)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]messageResponse, 0, len(history))
	for _, m := range history {
		out = append(out, toMessageResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}
