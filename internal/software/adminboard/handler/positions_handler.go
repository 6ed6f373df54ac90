package handler

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"sort"
	"time"

	"geofence-events/internal/domain/geofence"
	"geofence-events/internal/domain/user"
	"geofence-events/internal/general/jwt"
	ingestsvc "geofence-events/internal/software/ingest/service"
)

const maxPositionsBody = 1 << 20

type rejection struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type positionsResponse struct {
	Accepted int              `json:"accepted"`
	Rejected []rejection      `json:"rejected"`
	Events   []geofence.Event `json:"events"`
}

// --- Handler: POST /positions ---

func (handler *AdminHTTPHandler) handlePositions(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType != "application/json" {
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "content type must be application/json", nil)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPositionsBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handler.httpError(ctx, w, http.StatusRequestEntityTooLarge, "body too large", err)
			return
		}
		handler.httpError(ctx, w, http.StatusBadRequest, "failed to read body", err)
		return
	}

	// devices may only report for their own organization
	orgID := ""
	if claims := jwt.RequireClaims(r); claims != nil && claims.Role != user.RoleAdmin {
		orgID = claims.OrganizationID
	}

	// bound the tracker call
	ctxWithTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res, err := handler.ingestor.Ingest(ctxWithTimeout, body, orgID)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ingestsvc.ErrForeignOrg) {
			status = http.StatusForbidden
		}
		handler.httpError(ctx, w, status, err.Error(), err)
		return
	}

	resp := positionsResponse{Accepted: res.Accepted, Rejected: []rejection{}, Events: res.Events}
	if resp.Events == nil {
		resp.Events = []geofence.Event{}
	}
	for i, rerr := range res.Rejected {
		resp.Rejected = append(resp.Rejected, rejection{Index: i, Error: rerr.Error()})
	}
	sort.Slice(resp.Rejected, func(a, b int) bool { return resp.Rejected[a].Index < resp.Rejected[b].Index })

	handler.jsonResponse(ctx, w, http.StatusOK, resp)
}
