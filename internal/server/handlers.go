// Package server assembles the HTTP surface: a thin JSON layer over the
// authorization engine. Handlers decode, delegate, and translate; no
// access rules live here.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/J41RO/MeStore-sub006/internal/access"
	"github.com/J41RO/MeStore-sub006/internal/db/models"
	"github.com/J41RO/MeStore-sub006/internal/middleware"
	"github.com/J41RO/MeStore-sub006/internal/services/authz"
)

// AccessService is the slice of the engine the HTTP layer exposes.
type AccessService interface {
	Validate(ctx context.Context, principalID string, key access.Key, checkCtx *authz.CheckContext) (*authz.Decision, error)
	Grant(ctx context.Context, grantorID, targetID, permissionName string, expiresAt *time.Time) (*authz.GrantResult, error)
	Revoke(ctx context.Context, revokerID, targetID, permissionName string) (*authz.GrantResult, error)
	ListEffective(ctx context.Context, principalID string, includeInherited bool) ([]authz.EffectivePermission, error)
	SweepExpired(ctx context.Context) (*authz.SweepResult, error)
	InvalidatePrincipal(ctx context.Context, principalID string) error
}

// AuditHealth reports the depth of the asynchronous audit pipeline for the
// health endpoint.
type AuditHealth interface {
	QueueLen() int
	DeadLetterLen() int
}

// AccessHandlers wires the access-control REST endpoints.
type AccessHandlers struct {
	service AccessService
	audit   AuditHealth
}

// NewAccessHandlers creates the handler set. audit may be nil; the health
// endpoint then omits queue depths.
func NewAccessHandlers(service AccessService, audit AuditHealth) (*AccessHandlers, error) {
	if service == nil {
		return nil, errors.New("access handlers require a service")
	}
	return &AccessHandlers{service: service, audit: audit}, nil
}

type checkContext struct {
	IPAddress    string         `json:"ip_address,omitempty"`
	DepartmentID string         `json:"department_id,omitempty"`
	MFAVerified  bool           `json:"mfa_verified,omitempty"`
	ApprovalRef  string         `json:"approval_ref,omitempty"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}

func (c *checkContext) toEngine() *authz.CheckContext {
	if c == nil {
		return nil
	}
	return &authz.CheckContext{
		IPAddress:    c.IPAddress,
		DepartmentID: c.DepartmentID,
		MFAVerified:  c.MFAVerified,
		ApprovalRef:  c.ApprovalRef,
		Attributes:   c.Attributes,
	}
}

type checkRequest struct {
	PrincipalID string        `json:"principal_id"`
	Permission  string        `json:"permission"`
	Context     *checkContext `json:"context,omitempty"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
	*authz.Decision
}

// Check handles POST /api/access/check. Denials answer 403 with the full
// decision in the body; only infrastructure failures surface as 5xx.
func (h *AccessHandlers) Check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Sprintf("decode request: %v", err))
		return
	}
	if req.PrincipalID == "" {
		badRequest(w, "principal_id is required")
		return
	}
	key, err := access.ParseKey(req.Permission)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	decision, err := h.service.Validate(r.Context(), req.PrincipalID, key, req.Context.toEngine())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if !decision.Allowed() {
		status = http.StatusForbidden
	}
	writeJSON(w, status, checkResponse{Allowed: decision.Allowed(), Decision: decision})
}

// grantView is the wire shape of a grant row.
type grantView struct {
	ID          string     `json:"id"`
	PrincipalID string     `json:"principal_id"`
	Permission  string     `json:"permission"`
	GrantedBy   string     `json:"granted_by"`
	GrantedAt   time.Time  `json:"granted_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	State       string     `json:"state"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	RevokedBy   *string    `json:"revoked_by,omitempty"`
}

func toGrantView(g *models.Grant, permissionName string) grantView {
	return grantView{
		ID:          g.ID,
		PrincipalID: g.PrincipalID,
		Permission:  permissionName,
		GrantedBy:   g.GrantedBy,
		GrantedAt:   g.GrantedAt,
		ExpiresAt:   g.ExpiresAt,
		State:       string(g.State),
		RevokedAt:   g.RevokedAt,
		RevokedBy:   g.RevokedBy,
	}
}

type grantRequest struct {
	TargetID   string     `json:"target_id"`
	Permission string     `json:"permission"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

type grantResponse struct {
	Changed bool       `json:"changed"`
	Grant   *grantView `json:"grant,omitempty"`
}

// CreateGrant handles POST /api/access/grants. The grantor is the
// authenticated actor; 201 on a new grant, 200 on an idempotent repeat.
func (h *AccessHandlers) CreateGrant(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.ActorIDFromContext(r.Context())
	if !ok {
		unauthorized(w, "actor identity required")
		return
	}

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Sprintf("decode request: %v", err))
		return
	}
	if req.TargetID == "" {
		badRequest(w, "target_id is required")
		return
	}
	if _, err := access.ParseKey(req.Permission); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		badRequest(w, "expires_at must be in the future")
		return
	}

	result, err := h.service.Grant(r.Context(), actorID, req.TargetID, req.Permission, req.ExpiresAt)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Changed {
		status = http.StatusCreated
	}
	view := toGrantView(result.Grant, req.Permission)
	writeJSON(w, status, grantResponse{Changed: result.Changed, Grant: &view})
}

type revokeRequest struct {
	TargetID   string `json:"target_id"`
	Permission string `json:"permission"`
}

// RevokeGrant handles POST /api/access/revocations. Revoking a permission
// the target does not hold answers 200 with changed=false.
func (h *AccessHandlers) RevokeGrant(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.ActorIDFromContext(r.Context())
	if !ok {
		unauthorized(w, "actor identity required")
		return
	}

	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Sprintf("decode request: %v", err))
		return
	}
	if req.TargetID == "" {
		badRequest(w, "target_id is required")
		return
	}
	if _, err := access.ParseKey(req.Permission); err != nil {
		badRequest(w, err.Error())
		return
	}

	result, err := h.service.Revoke(r.Context(), actorID, req.TargetID, req.Permission)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := grantResponse{Changed: result.Changed}
	if result.Grant != nil {
		view := toGrantView(result.Grant, req.Permission)
		resp.Grant = &view
	}
	writeJSON(w, http.StatusOK, resp)
}

// permissionView is the wire shape of a catalog permission.
type permissionView struct {
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	RequiredClearance int    `json:"required_clearance"`
	RiskLevel         string `json:"risk_level"`
	Inheritable       bool   `json:"inheritable"`
	Delegatable       bool   `json:"delegatable"`
	RequiresMFA       bool   `json:"requires_mfa"`
	RequiresApproval  bool   `json:"requires_approval"`
}

type effectivePermissionView struct {
	Permission permissionView `json:"permission"`
	Source     string         `json:"source"`
	GrantID    string         `json:"grant_id,omitempty"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
}

type effectiveResponse struct {
	PrincipalID string                    `json:"principal_id"`
	Permissions []effectivePermissionView `json:"permissions"`
}

// ListPermissions handles
// GET /api/access/principals/{principalID}/permissions. Tier-inherited
// entries are included unless include_inherited=false.
func (h *AccessHandlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	principalID := chi.URLParam(r, "principalID")

	includeInherited := true
	if raw := r.URL.Query().Get("include_inherited"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, fmt.Sprintf("include_inherited: %v", err))
			return
		}
		includeInherited = parsed
	}

	perms, err := h.service.ListEffective(r.Context(), principalID, includeInherited)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	views := make([]effectivePermissionView, 0, len(perms))
	for _, ep := range perms {
		views = append(views, effectivePermissionView{
			Permission: permissionView{
				Name:              ep.Permission.Name,
				Description:       ep.Permission.Description,
				RequiredClearance: ep.Permission.RequiredClearance,
				RiskLevel:         string(ep.Permission.RiskLevel),
				Inheritable:       ep.Permission.Inheritable,
				Delegatable:       ep.Permission.Delegatable,
				RequiresMFA:       ep.Permission.RequiresMFA,
				RequiresApproval:  ep.Permission.RequiresApproval,
			},
			Source:    ep.Source,
			GrantID:   ep.GrantID,
			ExpiresAt: ep.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, effectiveResponse{PrincipalID: principalID, Permissions: views})
}

// InvalidateCache handles POST /admin/cache/invalidate/{principalID}.
func (h *AccessHandlers) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	principalID := chi.URLParam(r, "principalID")
	if err := h.service.InvalidatePrincipal(r.Context(), principalID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":       "ok",
		"principal_id": principalID,
	})
}

// Sweep handles POST /admin/sweep, running one expiry pass inline.
func (h *AccessHandlers) Sweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.SweepExpired(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Health handles GET /health.
func (h *AccessHandlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if h.audit != nil {
		resp["audit"] = map[string]int{
			"queued":      h.audit.QueueLen(),
			"dead_letter": h.audit.DeadLetterLen(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
