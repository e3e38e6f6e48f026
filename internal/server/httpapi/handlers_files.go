package httpapi

import (
	"net/http"

	"github.com/openchat-im/openchat/internal/common"
)

func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	key, url, err := s.files.GetPresignedPutUrl(r.Context())
	if err != nil {
		s.log.Error(r.Context(), "presigning upload url", "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"key": key, "url": url})
}

func (s *Server) handleDownloadURL(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, common.ErrorInvalidInput)
		return
	}

	url, err := s.files.GetPresignedGetUrl(r.Context(), key)
	if err != nil {
		s.log.Error(r.Context(), "presigning download url", "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
