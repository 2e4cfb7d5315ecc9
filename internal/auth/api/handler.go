// Package authapi exposes the HTTP authentication surface: the OAuth
// round-trip that provisions identities, and the session endpoints the UI
// polls. The realtime relay depends only on the session cookie this package
// issues; everything else here is collaborator glue.
package authapi

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"

	"github.com/Kabilan-0809/chat-application/internal/auth/session"
	"github.com/Kabilan-0809/chat-application/internal/identity"
)

const (
	stateCookieName = "chat_oauth_state"
	stateTTL        = 10 * time.Minute
)

// Config carries the handler's redirect targets and cookie policy.
type Config struct {
	// PostLoginRedirect is where the browser lands after a successful
	// callback (the dashboard in the reference UI).
	PostLoginRedirect string

	// PostLogoutRedirect is where the browser lands after logout.
	PostLogoutRedirect string

	// SecureCookies controls the Secure attribute on issued cookies.
	// Keep it on everywhere except plain-HTTP dev setups.
	SecureCookies bool
}

// Handler wires the HTTP auth endpoints to identity and session services.
type Handler struct {
	log        *slog.Logger
	cfg        Config
	identities identity.Store
	sessions   *session.Service
	exchanger  ProfileExchanger
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, identities identity.Store, sessions *session.Service, exchanger ProfileExchanger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if cfg.PostLoginRedirect == "" {
		cfg.PostLoginRedirect = "/"
	}
	if cfg.PostLogoutRedirect == "" {
		cfg.PostLogoutRedirect = "/"
	}
	return &Handler{
		log:        log,
		cfg:        cfg,
		identities: identities,
		sessions:   sessions,
		exchanger:  exchanger,
	}
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/google", h.handleLogin)
	mux.HandleFunc("/auth/google/callback", h.handleCallback)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.HandleFunc("/auth/user", h.handleUser)
}

// ---- handlers ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.exchanger == nil {
		http.Error(w, "oauth not configured", http.StatusServiceUnavailable)
		return
	}

	state := newStateToken()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth",
		Expires:  time.Now().Add(stateTTL),
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.exchanger.AuthCodeURL(state), http.StatusFound)
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.exchanger == nil {
		http.Error(w, "oauth not configured", http.StatusServiceUnavailable)
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		h.log.Info("auth.callback.bad_state", "remote", r.RemoteAddr)
		http.Error(w, "invalid oauth state", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()

	profile, err := h.exchanger.Exchange(r.Context(), code)
	if err != nil {
		h.log.Info("auth.callback.exchange_fail", "err", err)
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	ident, err := h.identities.UpsertByProvider(r.Context(), now, profile)
	if err != nil {
		h.log.Error("auth.callback.upsert_fail", "err", err)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	issued, err := h.sessions.Issue(r.Context(), now, ident.ID)
	if err != nil {
		h.log.Error("auth.callback.issue_fail", "identity_id", ident.ID, "err", err)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	// Burn the state cookie and set the session cookie.
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/auth", MaxAge: -1})
	http.SetCookie(w, session.NewCookie(issued.Token, issued.ExpiresAt, h.cfg.SecureCookies))

	h.log.Info("auth.login", "identity_id", ident.ID, "user", ident.DisplayName)
	http.Redirect(w, r, h.cfg.PostLoginRedirect, http.StatusFound)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if c, err := r.Cookie(session.CookieName); err == nil && c.Value != "" {
		if row, err := h.sessions.Lookup(r.Context(), c.Value); err == nil {
			if err := h.sessions.Revoke(r.Context(), time.Now().UTC(), row.ID); err != nil {
				h.log.Warn("auth.logout.revoke_fail", "session_id", row.ID, "err", err)
			}
		}
	}

	http.SetCookie(w, session.ClearCookie(h.cfg.SecureCookies))
	http.Redirect(w, r, h.cfg.PostLogoutRedirect, http.StatusFound)
}

// handleUser is the auth boundary the relay's clients poll:
// the caller's identity as JSON when a valid session cookie is present,
// else a 401.
func (h *Handler) handleUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	c, err := r.Cookie(session.CookieName)
	if err != nil || c.Value == "" {
		writeUnauthorized(w)
		return
	}

	ident, err := h.sessions.Validate(r.Context(), c.Value)
	if err != nil {
		writeUnauthorized(w)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		ID:          ident.ID,
		DisplayName: ident.DisplayName,
		Email:       ident.Email,
		AvatarURL:   ident.AvatarURL,
		CreatedAt:   ident.CreatedAt,
	})
}

type userResponse struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"name"`
	Email       string    `json:"email"`
	AvatarURL   string    `json:"profile_pic,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func newStateToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}
