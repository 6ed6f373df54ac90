package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"geofence-events/internal/software/adminboard/service"
)

// --- Handler: GET /admin/vehicles/{vehicle_id}/membership ---

func (handler *AdminHTTPHandler) handleVehicleMembership(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	vehicleID := strings.TrimSpace(r.PathValue("vehicle_id"))

	view, err := handler.svc.VehicleMembership(vehicleID)
	if errors.Is(err, service.ErrVehicleNotTracked) {
		handler.httpError(ctx, w, http.StatusNotFound, "vehicle is not tracked", err)
		return
	}
	if _, err := scopeOrg(r, view.OrganizationID); err != nil {
		// do not reveal that another organization's vehicle exists
		handler.httpError(ctx, w, http.StatusNotFound, "vehicle is not tracked", err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, view)
}

// --- Handler: GET /admin/regions/{region_id}/vehicles[?org_id=O] ---

func (handler *AdminHTTPHandler) handleRegionVehicles(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	regionID := strings.TrimSpace(r.PathValue("region_id"))

	orgID, err := scopeOrg(r, strings.TrimSpace(r.URL.Query().Get("org_id")))
	if err != nil {
		handler.httpError(ctx, w, http.StatusForbidden, err.Error(), err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, handler.svc.RegionVehicles(regionID, orgID))
}

// --- Handler: GET /admin/organizations/{org_id}/stats ---

func (handler *AdminHTTPHandler) handleOrganizationStats(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	orgID, err := scopeOrg(r, strings.TrimSpace(r.PathValue("org_id")))
	if err != nil {
		handler.httpError(ctx, w, http.StatusForbidden, err.Error(), err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, handler.svc.OrganizationStats(orgID))
}

// --- Handler: GET /admin/regions/nearby?lon=X&lat=Y&radius=Z[&org_id=O] ---

func (handler *AdminHTTPHandler) handleNearbyRegions(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)
	query := r.URL.Query()

	orgID, err := scopeOrg(r, strings.TrimSpace(query.Get("org_id")))
	if err != nil {
		handler.httpError(ctx, w, http.StatusForbidden, err.Error(), err)
		return
	}

	var parsed [3]float64
	for i, name := range []string{"lon", "lat", "radius"} {
		v, err := strconv.ParseFloat(query.Get(name), 64)
		if err != nil {
			handler.httpError(ctx, w, http.StatusBadRequest, name+" must be a number", err)
			return
		}
		parsed[i] = v
	}

	// bound the geometry query
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	regions, err := handler.svc.NearbyRegions(ctxWithTimeout, parsed[0], parsed[1], parsed[2], orgID)
	switch {
	case errors.Is(err, service.ErrInvalidPoint), errors.Is(err, service.ErrInvalidRadius):
		handler.httpError(ctx, w, http.StatusBadRequest, err.Error(), err)
		return
	case errors.Is(err, service.ErrRadiusUnavailable):
		handler.httpError(ctx, w, http.StatusNotImplemented, err.Error(), err)
		return
	case err != nil:
		handler.serviceError(ctx, w, http.StatusInternalServerError, "failed to query nearby regions", err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]any{
		"organization_id": orgID,
		"radius_meters":   parsed[2],
		"regions":         regions,
	})
}
