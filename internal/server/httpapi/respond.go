package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/openchat-im/openchat/internal/common"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the domain sentinels onto HTTP status codes. Anything
// unmapped is a 500 with a generic body; details stay in the log.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrorInvalidInput),
		errors.Is(err, common.ErrorInvalidLocation),
		errors.Is(err, common.ErrorWeakPassword):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, common.ErrInvalidPassword),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrorUnknownCaller):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.Is(err, common.ErrorUnauthorized):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, common.ErrorNotFound),
		errors.Is(err, common.ErrorAuthenticatorNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, common.ErrorDuplicateUsername),
		errors.Is(err, common.ErrorAlreadyLinked),
		errors.Is(err, common.ErrorSelfLinkRejected),
		errors.Is(err, common.ErrorAuthenticatorExhausted):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, common.ErrorMissingKeys),
		errors.Is(err, common.ErrorIncompleteAccount):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.Is(err, common.ErrorPartialLink),
		errors.Is(err, common.ErrorUnreachable):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
