package handler

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// --- Handler: GET /admin/rules/stats ---

func (handler *AdminHTTPHandler) handleRuleStats(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	handler.jsonResponse(ctx, w, http.StatusOK, handler.svc.RuleStats(ctx))
}

// --- Handler: POST /admin/rules/reload ---

func (handler *AdminHTTPHandler) handleReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	// bound service call
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := handler.svc.ReloadRules(ctxWithTimeout)
	if err != nil {
		handler.serviceError(ctx, w, http.StatusInternalServerError, "failed to reload rules", err)
		return
	}

	handler.logger.Info(ctx, "rules_reloaded", "Rules reloaded on request", res)
	handler.jsonResponse(ctx, w, http.StatusOK, res)
}

// --- Handler: POST /admin/cleanup ---

func (handler *AdminHTTPHandler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	handler.jsonResponse(ctx, w, http.StatusOK, handler.svc.Cleanup(ctx))
}

// --- Handler: POST /admin/vehicles/{vehicle_id}/reset ---

func (handler *AdminHTTPHandler) handleResetVehicle(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	vehicleID := strings.TrimSpace(r.PathValue("vehicle_id"))

	handler.svc.ResetVehicle(vehicleID)
	handler.logger.Info(ctx, "vehicle_reset", "Vehicle membership reset", map[string]any{"vehicle_id": vehicleID})
	handler.jsonResponse(ctx, w, http.StatusOK, map[string]string{"vehicle_id": vehicleID, "status": "reset"})
}

// --- Handler: POST /admin/membership/reset ---

func (handler *AdminHTTPHandler) handleResetAll(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	handler.svc.ResetAll()
	handler.logger.Info(ctx, "membership_reset", "All membership state cleared", nil)
	handler.jsonResponse(ctx, w, http.StatusOK, map[string]string{"status": "reset"})
}
