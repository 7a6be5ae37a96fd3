package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/rzbill/pulse/internal/auth"
	"github.com/rzbill/pulse/internal/ratelimit"
	"github.com/rzbill/pulse/internal/realtime"
	"github.com/rzbill/pulse/internal/runtime"
	"github.com/rzbill/pulse/internal/stream"
	"github.com/rzbill/pulse/pkg/log"
)

const wsWriteTimeout = 10 * time.Second

// RealtimeController serves the SSE and WebSocket event streams.
type RealtimeController struct {
	rt       *runtime.Runtime
	logger   log.Logger
	upgrader websocket.Upgrader
}

// NewRealtimeController creates the stream controller.
func NewRealtimeController(rt *runtime.Runtime, logger log.Logger) *RealtimeController {
	return &RealtimeController{
		rt:     rt,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Auth is carried by the bearer token or cookie, not the origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// RegisterRoutes registers the stream and status routes.
func (c *RealtimeController) RegisterRoutes(r chi.Router) {
	r.Get("/v1/realtime", c.handleSSE)
	r.Get("/v1/realtime/ws", c.handleWS)
	r.Get("/v1/realtime/status", c.handleStatus)
	r.Get("/v1/realtime/snapshot", c.handleSnapshot)
}

// admit runs admission for r. On rejection it writes the response and
// returns nil.
func (c *RealtimeController) admit(w http.ResponseWriter, r *http.Request) *stream.Session {
	id, ok := auth.FromContext(r.Context())
	q := r.URL.Query()
	sess, err := c.rt.Endpoint().Admit(r.Context(), stream.Request{
		Identity:       id,
		Authenticated:  ok,
		OrganizationID: q.Get("organizationId"),
		Filter:         q.Get("filter"),
		RateKey:        ratelimit.KeyFor(id.UserID, r),
	})
	if err != nil {
		var ae *stream.AdmissionError
		if !errors.As(err, &ae) {
			ae = &stream.AdmissionError{Status: http.StatusInternalServerError, Message: "Internal error"}
		}
		writeAdmissionError(w, ae)
		return nil
	}
	return sess
}

// handleSSE streams events as text/event-stream until the client goes away.
func (c *RealtimeController) handleSSE(w http.ResponseWriter, r *http.Request) {
	sess := c.admit(w, r)
	if sess == nil {
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := sess.Run(r.Context(), newSSESink(w)); err != nil {
		c.logger.Debug("sse stream ended", log.Str("session", sess.ID), log.Err(err))
	}
}

// handleWS admits before upgrading so rejections are ordinary HTTP
// responses.
func (c *RealtimeController) handleWS(w http.ResponseWriter, r *http.Request) {
	sess := c.admit(w, r)
	if sess == nil {
		return
	}
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		sess.Close()
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Inbound messages are ignored; reading surfaces the close frame.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := sess.Run(ctx, &wsSink{conn: conn, writeTimeout: wsWriteTimeout}); err != nil {
		c.logger.Debug("ws stream ended", log.Str("session", sess.ID), log.Err(err))
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// handleStatus reports broker mode and readiness.
func (c *RealtimeController) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, c.rt.Status())
}

// handleSnapshot returns the cached revision of one dashboard topic. The
// revision is also the ETag, so a client that reconnects can skip a refetch
// when nothing was invalidated while it was away.
func (c *RealtimeController) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	q := r.URL.Query()
	topic, err := realtime.ParseTopic(q.Get("topic"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	orgID, ok := authorizeOrg(w, r, c.rt.Members(), c.logger, "snapshot", id, q.Get("organizationId"))
	if !ok {
		return
	}

	snap, hit, err := c.rt.Tags().Snapshot(r.Context(), topic, orgID)
	if err != nil {
		c.logger.Error("snapshot load failed", log.Operation("snapshot"), log.Org(orgID), log.Err(err))
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	etag := `"` + snap.Revision + `"`
	h := w.Header()
	h.Set("ETag", etag)
	h.Set("Cache-Control", "private, no-cache")
	if hit {
		h.Set("X-Cache", "HIT")
	} else {
		h.Set("X-Cache", "MISS")
	}
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, snap)
}
