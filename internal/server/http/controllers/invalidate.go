package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rzbill/pulse/internal/auth"
	"github.com/rzbill/pulse/internal/invalidation"
	"github.com/rzbill/pulse/internal/ratelimit"
	"github.com/rzbill/pulse/internal/realtime"
	"github.com/rzbill/pulse/internal/runtime"
	"github.com/rzbill/pulse/pkg/log"
)

// invalidateReq is the body of POST /v1/invalidate.
type invalidateReq struct {
	Topic          string `json:"topic"`
	OrganizationID string `json:"organizationId"`
	EntityID       string `json:"entityId,omitempty"`
}

// InvalidateController is the mutation hook for services that change
// dashboard data.
type InvalidateController struct {
	rt     *runtime.Runtime
	logger log.Logger
}

// NewInvalidateController creates the mutation hook controller.
func NewInvalidateController(rt *runtime.Runtime, logger log.Logger) *InvalidateController {
	return &InvalidateController{rt: rt, logger: logger}
}

// RegisterRoutes registers POST /v1/invalidate behind the mutation limiter.
func (c *InvalidateController) RegisterRoutes(r chi.Router) {
	r.With(ratelimit.Middleware(c.rt.MutationLimiter(), auth.UserID)).
		Post("/v1/invalidate", c.handleInvalidate)
}

// handleInvalidate drops the cached tag and publishes the event. Both steps
// are best effort, so an accepted request always answers 202.
func (c *InvalidateController) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var req invalidateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	topic, err := realtime.ParseTopic(req.Topic)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	orgID, ok := authorizeOrg(w, r, c.rt.Members(), c.logger, "invalidate", id, req.OrganizationID)
	if !ok {
		return
	}

	params := invalidation.Params{Topic: topic, OrganizationID: orgID, EntityID: req.EntityID}
	c.rt.Publisher().InvalidateAndPublish(r.Context(), params)
	writeJSONStatus(w, http.StatusAccepted, realtime.NewInvalidate(topic, orgID, req.EntityID))
}
