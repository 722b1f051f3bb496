package router

import (
	"context"

	"github.com/jmarlin/focusd/internal/logging"
	"github.com/jmarlin/focusd/internal/types"
)

// Handler enriches a session's context for one category of application.
// CanHandle inspects the snapshot; Enrich may do slow work (bounded by ctx)
// and must degrade to a partial result rather than fail the trigger.
type Handler interface {
	Name() string
	CanHandle(s *types.SessionSnapshot) bool
	Enrich(ctx context.Context, s *types.SessionSnapshot) types.EnrichedContext
}

// Router dispatches a session to the first handler that claims it.
type Router struct {
	handlers []Handler
	fallback Handler
}

// New builds a router with the given fallback. The fallback is consulted
// only when no registered handler claims the session.
func New(fallback Handler) *Router {
	return &Router{fallback: fallback}
}

// Register adds a handler ahead of the existing ones. Later registrations
// take precedence, so callers layer specific handlers over general ones.
func (r *Router) Register(h Handler) {
	r.handlers = append([]Handler{h}, r.handlers...)
	logging.Debug("router", "registered handler %s", h.Name())
}

// Route enriches the session via the first handler whose CanHandle accepts
// it. Always returns a usable context.
func (r *Router) Route(ctx context.Context, s *types.SessionSnapshot) types.EnrichedContext {
	for _, h := range r.handlers {
		if h.CanHandle(s) {
			logging.Debug("router", "session %s -> %s", s.ID, h.Name())
			return h.Enrich(ctx, s)
		}
	}
	return r.fallback.Enrich(ctx, s)
}
