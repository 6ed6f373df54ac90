package handler

import (
	"context"
	"net/http"
	"time"
)

// ----- Handler: GET /admin/health -----

// handleHealth reports liveness plus a few counters. It needs no token.
func (handler *AdminHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Cache-Control", "no-store")
	handler.jsonResponse(ctx, w, http.StatusOK, handler.svc.Health(ctx))
}
