package handler

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/flagwise/auth-service/internal/repository"
	"github.com/flagwise/auth-service/internal/service"
)

// Handler is the HTTP boundary of the auth service.
type Handler struct {
	authorizer *service.Authorizer
	auth       *service.AuthService
	accounts   *service.AccountService
	production bool
	log        zerolog.Logger
}

func New(
	authorizer *service.Authorizer,
	auth *service.AuthService,
	accounts *service.AccountService,
	production bool,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		authorizer: authorizer,
		auth:       auth,
		accounts:   accounts,
		production: production,
		log:        log,
	}
}

// Router assembles all routes. Protected routes are composed with the
// Authenticate middleware and the relevant gates.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.handleRegister)
		r.Post("/login", h.handleUserLogin)
		r.Post("/federated/{provider}", h.handleFederatedLogin)
		r.With(h.Authenticate).Get("/me", h.handleMe)
	})

	r.Route("/admin/users", func(r chi.Router) {
		r.Use(h.Authenticate, h.RequireAdmin, h.RequirePermission("users:manage"))
		r.Put("/{userID}/status", h.handleSetUserStatus)
	})

	r.Route("/admin/admins", func(r chi.Router) {
		r.Use(h.Authenticate, h.RequireRole(repository.RoleSuperAdmin))
		r.Put("/{adminID}/permissions", h.handleUpdateAdminPermissions)
	})

	r.Route("/admin/auth", func(r chi.Router) {
		r.Post("/login", h.handleAdminLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.Authenticate, h.RequireAdmin)
			r.Post("/logout", h.handleAdminLogout)
			r.Post("/password", h.handleChangePassword)
			r.Get("/sessions", h.handleListSessions)
			r.Delete("/sessions", h.handleTerminateOtherSessions)
			r.Delete("/sessions/{sessionID}", h.handleTerminateSession)
		})
	})

	return r
}

// Sanitized projections. Password hashes, lockout internals and raw session
// tokens never leave the service.

type userView struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	DisplayName   string    `json:"displayName"`
	AvatarURL     *string   `json:"avatarUrl,omitempty"`
	Provider      *string   `json:"provider,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

type adminView struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	FullName    string    `json:"fullName"`
	Role        string    `json:"role"`
	Permissions []string  `json:"permissions"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toUserView(u *repository.User) userView {
	return userView{
		ID:            u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		DisplayName:   u.DisplayName,
		AvatarURL:     u.AvatarURL,
		Provider:      u.Provider,
		Status:        u.Status,
		CreatedAt:     u.CreatedAt,
	}
}

func toAdminView(a *repository.Admin) adminView {
	perms := a.Permissions
	if perms == nil {
		perms = []string{}
	}
	return adminView{
		ID:          a.ID,
		Email:       a.Email,
		FullName:    a.FullName,
		Role:        a.Role,
		Permissions: perms,
		Status:      a.Status,
		CreatedAt:   a.CreatedAt,
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		h.writeBadRequest(w, "email and password are required")
		return
	}

	user, err := h.accounts.Register(r.Context(), &service.RegisterRequest{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"user": toUserView(user)})
}

func (h *Handler) handleUserLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "invalid request body")
		return
	}

	resp, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":  toUserView(resp.User),
		"token": resp.Token,
	})
}

func (h *Handler) handleFederatedLogin(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.writeBadRequest(w, "invalid request body")
		return
	}

	resp, err := h.accounts.FederatedLogin(r.Context(), providerName, payload)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":  toUserView(resp.User),
		"token": resp.Token,
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, service.ErrMissingToken)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":          principal.ID,
		"email":       principal.Email,
		"kind":        principal.Kind,
		"role":        principal.Role,
		"permissions": principal.Permissions,
	})
}

func (h *Handler) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "invalid request body")
		return
	}

	resp, err := h.auth.Login(r.Context(), &service.AdminLoginRequest{
		Email:     req.Email,
		Password:  req.Password,
		Device:    r.UserAgent(),
		IPAddress: clientIP(r),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"admin": toAdminView(resp.Admin),
		"token": resp.Token,
	})
}

func (h *Handler) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	if err := h.auth.Logout(r.Context(), principal.ID, principal.TokenHash); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "invalid request body")
		return
	}
	if req.NewPassword == "" {
		h.writeBadRequest(w, "new password is required")
		return
	}

	err := h.auth.ChangePassword(r.Context(), principal.ID, req.CurrentPassword, req.NewPassword, principal.TokenHash)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	sessions, err := h.auth.ListSessions(r.Context(), principal.ID, principal.TokenHash)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *Handler) handleTerminateSession(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.auth.TerminateSession(r.Context(), principal.ID, sessionID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "session terminated"})
}

func (h *Handler) handleTerminateOtherSessions(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	if err := h.auth.TerminateOtherSessions(r.Context(), principal.ID, principal.TokenHash); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "other sessions terminated"})
}

func (h *Handler) handleSetUserStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "invalid request body")
		return
	}

	if err := h.accounts.SetUserStatus(r.Context(), userID, req.Status); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "status updated"})
}

func (h *Handler) handleUpdateAdminPermissions(w http.ResponseWriter, r *http.Request) {
	adminID := chi.URLParam(r, "adminID")

	var req struct {
		Permissions []string `json:"permissions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "invalid request body")
		return
	}

	if err := h.auth.UpdateAdminPermissions(r.Context(), adminID, req.Permissions); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "permissions updated"})
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
