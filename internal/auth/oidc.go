package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/jw6ventures/calgrid/internal/config"
)

// ErrEmailUnverified is returned when the identity provider does not vouch
// for the account email. A missing email_verified claim counts as unverified.
var ErrEmailUnverified = errors.New("oidc email not verified")

// OIDC signs users in through an OpenID Connect provider and issues the same
// login tokens as password sign-in.
type OIDC struct {
	svc      *Service
	verifier *oidc.IDTokenVerifier
	oauth    oauth2.Config
	states   *StateManager
}

// NewOIDC discovers the provider. When a discovery URL is configured it is
// used in place of the issuer's well-known document.
func NewOIDC(ctx context.Context, cfg *config.Config, svc *Service) (*OIDC, error) {
	discovery := cfg.OAuth.IssuerURL
	if cfg.OAuth.DiscoveryURL != "" {
		ctx = oidc.InsecureIssuerURLContext(ctx, cfg.OAuth.IssuerURL)
		discovery = strings.TrimSuffix(cfg.OAuth.DiscoveryURL, "/.well-known/openid-configuration")
	}
	provider, err := oidc.NewProvider(ctx, discovery)
	if err != nil {
		return nil, fmt.Errorf("discover oidc provider: %w", err)
	}

	oauthCfg := oauth2.Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  strings.TrimRight(cfg.BaseURL, "/") + cfg.OAuth.RedirectPath,
		Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.OAuth.ClientID})
	return newOIDC(svc, verifier, oauthCfg, NewStateManager(cfg)), nil
}

func newOIDC(svc *Service, verifier *oidc.IDTokenVerifier, oauthCfg oauth2.Config, states *StateManager) *OIDC {
	return &OIDC{svc: svc, verifier: verifier, oauth: oauthCfg, states: states}
}

// Begin redirects the browser to the provider.
func (o *OIDC) Begin(w http.ResponseWriter, r *http.Request) error {
	state, nonce, err := o.states.Issue(w)
	if err != nil {
		return fmt.Errorf("issue oauth state: %w", err)
	}
	http.Redirect(w, r, o.oauth.AuthCodeURL(state, oidc.Nonce(nonce)), http.StatusFound)
	return nil
}

type idClaims struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
	PreferredName string `json:"preferred_username"`
}

// Complete handles the provider callback and signs the user in.
func (o *OIDC) Complete(w http.ResponseWriter, r *http.Request) (*Session, error) {
	ctx := r.Context()
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		return nil, fmt.Errorf("oidc provider error: %s", e)
	}
	nonce, err := o.states.Consume(w, r, q.Get("state"))
	if err != nil {
		return nil, err
	}

	tok, err := o.oauth.Exchange(ctx, q.Get("code"))
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	rawID, ok := tok.Extra("id_token").(string)
	if !ok || rawID == "" {
		return nil, errors.New("oidc response has no id_token")
	}
	idToken, err := o.verifier.Verify(ctx, rawID)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	if idToken.Nonce != nonce {
		return nil, ErrStateMismatch
	}

	var claims idClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("decode claims: %w", err)
	}
	if claims.EmailVerified == nil || !*claims.EmailVerified {
		return nil, ErrEmailUnverified
	}
	email, err := NormalizeEmail(claims.Email)
	if err != nil {
		return nil, err
	}
	name := claims.Name
	if name == "" {
		name = claims.PreferredName
	}
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	user, err := o.svc.users.UpsertOIDC(ctx, idToken.Subject, email, NormalizeName(name))
	if err != nil {
		return nil, fmt.Errorf("link oidc user: %w", err)
	}
	return o.svc.IssueFor(ctx, user)
}
