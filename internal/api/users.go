package api

import (
	"errors"
	"net/http"

	"github.com/jw6ventures/calgrid/internal/auth"
	httperrors "github.com/jw6ventures/calgrid/internal/http/errors"
	"github.com/jw6ventures/calgrid/internal/metrics"
	"github.com/jw6ventures/calgrid/internal/store"
)

type credentials struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account and returns 201 {token, user}.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := decodeJSON(w, r, &body); err != nil {
		httperrors.BadRequestError(w, r, err, "invalid request body")
		return
	}

	sess, err := h.authService.Register(r.Context(), body.Name, body.Email, body.Password)
	switch {
	case errors.Is(err, auth.ErrNameRequired),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrWeakPassword):
		httperrors.BadRequestError(w, r, err, err.Error())
		return
	case errors.Is(err, auth.ErrEmailTaken):
		httperrors.Write(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		httperrors.InternalError(w, r, err, "register user")
		return
	}

	httperrors.LogInfo(r, "user registered", "user_id", sess.User.ID)
	httperrors.WriteJSON(w, http.StatusCreated, sessionView(sess))
}

// Login checks credentials and returns 201 {token, user}; bad credentials are
// a 400.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := decodeJSON(w, r, &body); err != nil {
		httperrors.BadRequestError(w, r, err, "invalid request body")
		return
	}

	sess, err := h.authService.Login(r.Context(), body.Email, body.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		metrics.ObserveLogin("password", false)
		httperrors.BadRequestError(w, r, err, "Unable to login")
		return
	}
	if err != nil {
		httperrors.InternalError(w, r, err, "login")
		return
	}

	metrics.ObserveLogin("password", true)
	httperrors.WriteJSON(w, http.StatusCreated, sessionView(sess))
}

// CheckToken answers 200 when the posted token is valid and 400 otherwise.
func (h *Handler) CheckToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(w, r, &body); err != nil || body.Token == "" {
		httperrors.Write(w, http.StatusBadRequest, "invalid token")
		return
	}

	_, err := h.authService.Authenticate(r.Context(), body.Token)
	if errors.Is(err, auth.ErrInvalidToken) {
		httperrors.Write(w, http.StatusBadRequest, "invalid token")
		return
	}
	if err != nil {
		httperrors.InternalError(w, r, err, "check token")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Me returns the authenticated user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, userView(user))
}

// Logout revokes the token the request was made with.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.authService.Logout(r.Context(), user, auth.TokenFromContext(r.Context())); err != nil {
		httperrors.InternalError(w, r, err, "logout")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// LogoutAll revokes every token of the user.
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	n, err := h.authService.LogoutAll(r.Context(), user)
	if err != nil {
		httperrors.InternalError(w, r, err, "logout all")
		return
	}
	httperrors.LogInfo(r, "revoked all tokens", "user_id", user.ID, "count", n)
	w.WriteHeader(http.StatusOK)
}

// OIDCLogin redirects to the identity provider.
func (h *Handler) OIDCLogin(w http.ResponseWriter, r *http.Request) {
	if h.oidc == nil {
		httperrors.NotFound(w, r, "oidc sign-in is not configured")
		return
	}
	if err := h.oidc.Begin(w, r); err != nil {
		httperrors.InternalError(w, r, err, "begin oidc")
	}
}

// OIDCCallback completes provider sign-in and returns 201 {token, user}.
func (h *Handler) OIDCCallback(w http.ResponseWriter, r *http.Request) {
	if h.oidc == nil {
		httperrors.NotFound(w, r, "oidc sign-in is not configured")
		return
	}
	sess, err := h.oidc.Complete(w, r)
	switch {
	case errors.Is(err, auth.ErrStateMismatch),
		errors.Is(err, auth.ErrEmailUnverified),
		errors.Is(err, store.ErrAccountLinked),
		errors.Is(err, auth.ErrInvalidEmail):
		metrics.ObserveLogin("oidc", false)
		httperrors.BadRequestError(w, r, err, "Unable to login")
		return
	case err != nil:
		metrics.ObserveLogin("oidc", false)
		httperrors.InternalError(w, r, err, "complete oidc")
		return
	}
	metrics.ObserveLogin("oidc", true)
	httperrors.WriteJSON(w, http.StatusCreated, sessionView(sess))
}
