package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gbsr/chappy/internal/common"
)

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Field   string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

// decode reads a JSON body into v. Malformed bodies are validation errors.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return common.NewValidationError("body", "invalid request body: %v", err)
	}
	return nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// fail writes the single response for err. entity names the resource the
// route works on ("user", "channel", "message"); fault is the message used
// for unexpected errors, e.g. "Error adding user".
func (h *APIHandler) fail(w http.ResponseWriter, r *http.Request, entity, fault string, err error) {
	ctx := r.Context()

	var (
		ve *common.ValidationError
		ce *common.ConflictError
		nf *common.NotFoundError
	)
	switch {
	case errors.As(err, &ve):
		msg := fmt.Sprintf("Invalid %s data", entity)
		if ve.Field == "_id" {
			msg = fmt.Sprintf("Invalid %s ID", entity)
		}
		h.logger.Warn(ctx, "validation error", "entity", entity, "error", ve.Msg)
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: msg, Error: ve.Msg})
	case errors.As(err, &ce):
		h.logger.Warn(ctx, "conflict", "entity", entity, "field", ce.Field)
		writeJSON(w, http.StatusConflict, errorResponse{Message: ce.Error(), Field: ce.Field})
	case errors.As(err, &nf):
		h.logger.Warn(ctx, "not found", "entity", nf.Entity)
		writeMessage(w, http.StatusNotFound, nf.Error())
	case errors.Is(err, common.ErrNotFound):
		writeMessage(w, http.StatusNotFound, titleCase(entity)+" not found")
	case errors.Is(err, common.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, common.ErrAuthenticationRequired):
		writeMessage(w, http.StatusUnauthorized, "Authentication required")
	case errors.Is(err, common.ErrInvalidToken):
		writeMessage(w, http.StatusForbidden, "Invalid token")
	case errors.Is(err, common.ErrAccessDenied):
		h.logger.Warn(ctx, "access denied", "entity", entity, "error", err)
		writeMessage(w, http.StatusForbidden, "Access restricted")
	default:
		h.logger.Error(ctx, fault, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: fault, Error: err.Error()})
	}
}
