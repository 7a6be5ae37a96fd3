package controllers

import (
	"github.com/go-chi/chi/v5"

	"github.com/rzbill/pulse/internal/runtime"
	"github.com/rzbill/pulse/pkg/log"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general    *GeneralController
	realtime   *RealtimeController
	invalidate *InvalidateController
}

// NewControllerRegistry creates the controllers over a shared runtime.
func NewControllerRegistry(rt *runtime.Runtime, logger log.Logger) *ControllerRegistry {
	return &ControllerRegistry{
		general:    NewGeneralController(rt),
		realtime:   NewRealtimeController(rt, logger),
		invalidate: NewInvalidateController(rt, logger),
	}
}

// RegisterAllRoutes registers every controller's routes on r.
func (c *ControllerRegistry) RegisterAllRoutes(r chi.Router) {
	c.general.RegisterRoutes(r)
	c.realtime.RegisterRoutes(r)
	c.invalidate.RegisterRoutes(r)
}
