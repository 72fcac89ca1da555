package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/J41RO/MeStore-sub006/internal/services/authz"
)

// errorResponse is the JSON body for every non-2xx answer.
type errorResponse struct {
	Error string `json:"error"`

	// Code is a stable machine-readable reason, present on denials and
	// classified failures.
	Code string `json:"code,omitempty"`

	// Clearance detail accompanies insufficient-clearance denials.
	RequiredClearance  int `json:"required_clearance,omitempty"`
	PrincipalClearance int `json:"principal_clearance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: encode response: %v", err)
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Code: "bad_request"})
}

func unauthorized(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: msg, Code: "unauthorized"})
}

// writeServiceError translates engine errors into HTTP answers. Denials
// carry their deny code so clients can branch without parsing prose; store
// outages come back retryable.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var denied *authz.AccessDenied
	var unavailable *authz.StoreUnavailable

	switch {
	case errors.As(err, &denied):
		writeJSON(w, http.StatusForbidden, errorResponse{
			Error:              denied.Reason,
			Code:               denied.Code,
			RequiredClearance:  denied.RequiredClearance,
			PrincipalClearance: denied.PrincipalClearance,
		})
	case errors.Is(err, authz.ErrPrincipalNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Code: "principal_not_found"})
	case errors.Is(err, authz.ErrPermissionNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Code: "permission_not_found"})
	case errors.As(err, &unavailable):
		log.Printf("ERROR: %s %s: backing store unavailable: %v", r.Method, r.URL.Path, err)
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "backing store unavailable", Code: "store_unavailable"})
	default:
		log.Printf("ERROR: %s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}
