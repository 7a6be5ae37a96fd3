package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/rzbill/pulse/internal/auth"
	"github.com/rzbill/pulse/internal/membership"
	"github.com/rzbill/pulse/internal/stream"
	"github.com/rzbill/pulse/pkg/log"
)

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON writes a JSON response with the given data.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// writeJSONStatus writes a JSON response with an explicit status code.
func writeJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeAdmissionError renders a rejected stream request as a plain text body,
// which is what EventSource clients surface.
func writeAdmissionError(w http.ResponseWriter, err *stream.AdmissionError) {
	if err.RetryAfter != "" {
		w.Header().Set("Retry-After", err.RetryAfter)
	}
	http.Error(w, err.Message, err.Status)
}

// authorizeOrg checks that id belongs to orgID, falling back to the token's
// organization when orgID is empty. On failure it writes the response and
// returns ok=false.
func authorizeOrg(w http.ResponseWriter, r *http.Request, members membership.Store, logger log.Logger, op string, id auth.Identity, orgID string) (string, bool) {
	if orgID == "" {
		orgID = id.OrganizationID
	}
	_, member, err := members.Lookup(r.Context(), id.UserID, orgID)
	if err != nil {
		logger.Error("membership lookup failed", log.Operation(op), log.Org(orgID), log.Err(err))
		writeError(w, http.StatusServiceUnavailable, "Membership lookup unavailable")
		return "", false
	}
	if !member {
		writeError(w, http.StatusForbidden, "Forbidden")
		return "", false
	}
	return orgID, true
}
