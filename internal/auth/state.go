package auth

import (
	"crypto/sha256"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"

	"github.com/jw6ventures/calgrid/internal/config"
)

// ErrStateMismatch is returned when the OAuth state cookie is missing, expired
// or does not match the callback.
var ErrStateMismatch = errors.New("oauth state mismatch")

const stateTTL = 10 * time.Minute

// StateManager keeps the OAuth state and nonce of a sign-in attempt in a
// signed and encrypted cookie.
type StateManager struct {
	cookieName string
	codec      *securecookie.SecureCookie
	secure     bool
	now        func() time.Time
}

type oauthState struct {
	State string `json:"state"`
	Nonce string `json:"nonce"`
	Exp   int64  `json:"exp"`
}

func NewStateManager(cfg *config.Config) *StateManager {
	hashKey := sha256.Sum256([]byte(cfg.Session.Secret))
	blockKey := sha256.Sum256([]byte("block:" + cfg.Session.Secret))
	sc := securecookie.New(hashKey[:], blockKey[:])
	sc.MaxAge(int(stateTTL.Seconds()))
	sc.SetSerializer(securecookie.JSONEncoder{})

	secure := true
	if base, err := url.Parse(cfg.BaseURL); err == nil && base.Scheme != "https" {
		secure = false
	}

	return &StateManager{
		cookieName: "calgrid_oauth_state",
		codec:      sc,
		secure:     secure,
		now:        time.Now,
	}
}

// Issue starts a sign-in attempt and returns its state and nonce.
func (m *StateManager) Issue(w http.ResponseWriter) (state, nonce string, err error) {
	value := oauthState{
		State: uuid.NewString(),
		Nonce: uuid.NewString(),
		Exp:   m.now().Add(stateTTL).Unix(),
	}
	encoded, err := m.codec.Encode(m.cookieName, value)
	if err != nil {
		return "", "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return value.State, value.Nonce, nil
}

// Consume checks state against the cookie, clears it and returns the nonce.
func (m *StateManager) Consume(w http.ResponseWriter, r *http.Request, state string) (string, error) {
	c, err := r.Cookie(m.cookieName)
	if err != nil {
		return "", ErrStateMismatch
	}
	m.clear(w)

	var value oauthState
	if err := m.codec.Decode(m.cookieName, c.Value, &value); err != nil {
		return "", ErrStateMismatch
	}
	if value.State == "" || value.State != state || time.Unix(value.Exp, 0).Before(m.now()) {
		return "", ErrStateMismatch
	}
	return value.Nonce, nil
}

func (m *StateManager) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.secure,
	})
}
