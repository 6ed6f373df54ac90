package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"geofence-events/internal/domain/user"
	"geofence-events/internal/general/jwt"
	"geofence-events/internal/general/logger"
	"geofence-events/internal/ports"
	ingestsvc "geofence-events/internal/software/ingest/service"

	"github.com/jackc/pgx/v5/pgconn"
)

var errForeignOrganization = errors.New("organization is outside the token scope")

// PositionIngestor feeds raw position bodies to the tracker.
type PositionIngestor interface {
	Ingest(ctx context.Context, body []byte, orgID string) (ingestsvc.Result, error)
}

// AdminHTTPHandler adapts HTTP requests to the AdminService, the position ingestor
// and the notification hub.
type AdminHTTPHandler struct {
	svc      ports.AdminService
	ingestor PositionIngestor
	notify   http.HandlerFunc
	logger   *logger.Logger
	auth     *jwt.Manager
}

// NewAdminHTTPHandler wires the HTTP surface. notify serves the websocket endpoint.
func NewAdminHTTPHandler(
	svc ports.AdminService,
	ingestor PositionIngestor,
	notify http.HandlerFunc,
	logger *logger.Logger,
	auth *jwt.Manager,
) *AdminHTTPHandler {
	return &AdminHTTPHandler{svc: svc, ingestor: ingestor, notify: notify, logger: logger, auth: auth}
}

// RegisterRoutes mounts every endpoint on the provided mux.
func (handler *AdminHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	read := jwt.AuthMiddlewareFunc(handler.auth, user.RoleAdmin, user.RoleOperator)
	write := jwt.AuthMiddlewareFunc(handler.auth, user.RoleAdmin)
	ingest := jwt.AuthMiddlewareFunc(handler.auth, user.RoleAdmin, user.RoleDevice)

	mux.HandleFunc("GET /admin/vehicles/{vehicle_id}/membership", read(handler.handleVehicleMembership))
	mux.HandleFunc("GET /admin/regions/{region_id}/vehicles", read(handler.handleRegionVehicles))
	mux.HandleFunc("GET /admin/regions/nearby", read(handler.handleNearbyRegions))
	mux.HandleFunc("GET /admin/organizations/{org_id}/stats", read(handler.handleOrganizationStats))
	mux.HandleFunc("GET /admin/rules/stats", read(handler.handleRuleStats))

	mux.HandleFunc("POST /admin/cleanup", write(handler.handleCleanup))
	mux.HandleFunc("POST /admin/vehicles/{vehicle_id}/reset", write(handler.handleResetVehicle))
	mux.HandleFunc("POST /admin/membership/reset", write(handler.handleResetAll))
	mux.HandleFunc("POST /admin/rules/reload", write(handler.handleReloadRules))

	mux.HandleFunc("POST /positions", ingest(handler.handlePositions))

	mux.HandleFunc("GET /admin/health", handler.handleHealth)
	if handler.notify != nil {
		mux.HandleFunc("GET /ws/notifications", handler.notify)
	}
}

// ----- general helpers -----

// jsonResponse takes any type of data and encode it to HTTP response.
func (handler *AdminHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	// encode to buffer first so we can control status on failure
	var buf []byte
	var err error

	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends a JSON error response with a message.
func (handler *AdminHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	switch {
	case status >= 500:
		handler.logger.Error(ctx, "http_internal_error", msg, err, nil)
	case status == http.StatusBadRequest:
		handler.logger.Warn(ctx, "validation_failed", msg, err, nil)
	case status == http.StatusUnsupportedMediaType:
		handler.logger.Warn(ctx, "unsupported_media_type", msg, err, nil)
	default:
		handler.logger.Warn(ctx, "request_failed", msg, err, nil)
	}

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// serviceError maps database failures to 500 and everything else to fallback.
func (handler *AdminHTTPHandler) serviceError(ctx context.Context, w http.ResponseWriter, fallback int, msg string, err error) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		handler.httpError(ctx, w, http.StatusInternalServerError, "database error", err)
		return
	}
	handler.httpError(ctx, w, fallback, msg, err)
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *AdminHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = randID()
	}
	ctx = handler.logger.WithRequestID(ctx, reqID)
	if claims, ok := jwt.FromContext(ctx); ok {
		ctx = handler.logger.WithOrganizationID(ctx, claims.OrganizationID)
	}
	return ctx
}

// scopeOrg returns the organization a request may touch. Admins may name any
// organization; everyone else is pinned to the token's organization.
func scopeOrg(r *http.Request, requested string) (string, error) {
	claims := jwt.RequireClaims(r)
	if claims == nil {
		return "", errForeignOrganization
	}
	if claims.Role == user.RoleAdmin {
		if requested == "" {
			return claims.OrganizationID, nil
		}
		return requested, nil
	}
	if requested != "" && requested != claims.OrganizationID {
		return "", errForeignOrganization
	}
	return claims.OrganizationID, nil
}

// randID generates a random 24-char hex string suitable for request IDs.
func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
