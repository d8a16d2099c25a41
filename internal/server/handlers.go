package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	iammiddleware "github.com/mappa-gov/portal-iam/internal/middleware"
	"github.com/mappa-gov/portal-iam/internal/services/iam"
)

type handlers struct {
	identity identityService
	admin    adminService
	logger   logrus.FieldLogger
}

type errorResponse struct {
	Error string `json:"error"`
}

type permissionCheckResponse struct {
	Code    string `json:"code"`
	Granted bool   `json:"granted"`
}

type assignRoleRequest struct {
	RoleCode string `json:"roleCode"`
}

type grantPermissionRequest struct {
	PermissionCode string `json:"permissionCode"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// currentView resolves the caller's identity. It writes the error response
// and returns nil when there is no usable identity.
func (h *handlers) currentView(w http.ResponseWriter, r *http.Request, force bool) *iam.View {
	id, err := h.identity.GetIdentity(r.Context(), iam.ResolveOptions{Force: force})
	if err != nil {
		h.logger.WithError(err).Warn("identity resolution failed")
		writeError(w, http.StatusServiceUnavailable, "session unavailable")
		return nil
	}
	if id == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return nil
	}
	return iam.NewView(id)
}

// getMe handles GET /api/iam/me[?force=true].
func (h *handlers) getMe(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	if view := h.currentView(w, r, force); view != nil {
		writeJSON(w, http.StatusOK, view)
	}
}

// refreshMe handles POST /api/iam/me/refresh.
func (h *handlers) refreshMe(w http.ResponseWriter, r *http.Request) {
	if view := h.currentView(w, r, true); view != nil {
		writeJSON(w, http.StatusOK, view)
	}
}

// checkPermission handles GET /api/iam/me/permissions/{code}.
func (h *handlers) checkPermission(w http.ResponseWriter, r *http.Request) {
	view := h.currentView(w, r, false)
	if view == nil {
		return
	}
	code := chi.URLParam(r, "code")
	writeJSON(w, http.StatusOK, permissionCheckResponse{Code: code, Granted: view.HasPerm(code)})
}

func (h *handlers) listUserRoles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.identity.GetUserRoles(r.Context(), chi.URLParam(r, "userID")))
}

func (h *handlers) listUserPermissions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.identity.GetEffectivePermissions(r.Context(), chi.URLParam(r, "userID")))
}

func (h *handlers) assignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.RoleCode) == "" {
		writeError(w, http.StatusBadRequest, "roleCode is required")
		return
	}
	userID := chi.URLParam(r, "userID")
	if err := h.admin.AssignRole(r.Context(), userID, req.RoleCode, actorID(r)); err != nil {
		h.adminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) revokeRole(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.RevokeRole(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "roleCode")); err != nil {
		h.adminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) grantPermission(w http.ResponseWriter, r *http.Request) {
	var req grantPermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.PermissionCode) == "" {
		writeError(w, http.StatusBadRequest, "permissionCode is required")
		return
	}
	userID := chi.URLParam(r, "userID")
	if err := h.admin.GrantPermission(r.Context(), userID, req.PermissionCode, actorID(r)); err != nil {
		h.adminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) revokePermission(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.RevokePermission(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "permissionCode")); err != nil {
		h.adminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// clearCache handles DELETE /api/iam/cache.
func (h *handlers) clearCache(w http.ResponseWriter, r *http.Request) {
	h.identity.ClearIdentityCache(r.Context())
	h.logger.WithField("actor", deref(actorID(r))).Info("identity cache cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) adminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, iam.ErrUnknownRole), errors.Is(err, iam.ErrUnknownPermission), errors.Is(err, iam.ErrNotAssigned):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.WithError(err).Error("iam admin operation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// actorID is the user id of the caller as resolved by the authz middleware.
func actorID(r *http.Request) *string {
	view, ok := iammiddleware.ViewFromContext(r.Context())
	if !ok || view.UserID() == "" {
		return nil
	}
	id := view.UserID()
	return &id
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
