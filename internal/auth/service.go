package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/jw6ventures/calgrid/internal/config"
	httperrors "github.com/jw6ventures/calgrid/internal/http/errors"
	"github.com/jw6ventures/calgrid/internal/store"
)

var (
	// ErrInvalidCredentials is returned by Login for an unknown email or a
	// wrong password alike.
	ErrInvalidCredentials = errors.New("unable to login")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrNameRequired       = errors.New("name is required")
	ErrEmailTaken         = errors.New("email already registered")
)

// Session is the result of a successful sign-in.
type Session struct {
	Token     string
	User      *store.User
	ExpiresAt time.Time
}

// Service encapsulates account registration and token authentication.
type Service struct {
	users  store.UserRepository
	tokens store.TokenRepository
	issuer *TokenIssuer
	cost   int
	now    func() time.Time
}

func NewService(cfg *config.Config, users store.UserRepository, tokens store.TokenRepository) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		issuer: NewTokenIssuer(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL),
		cost:   cfg.Auth.BcryptCost,
		now:    time.Now,
	}
}

// NormalizeName trims and lowercases a user name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizeEmail validates an address and returns it trimmed and lowercased.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// CreateUser validates and stores a password account without signing in.
func (s *Service) CreateUser(ctx context.Context, name, email, password string) (*store.User, error) {
	name = NormalizeName(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return nil, err
	}
	user, err := s.users.Create(ctx, store.User{Name: name, Email: email, PasswordHash: hash})
	if errors.Is(err, store.ErrConflict) {
		return nil, ErrEmailTaken
	}
	return user, err
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, name, email, password string) (*Session, error) {
	user, err := s.CreateUser(ctx, name, email, password)
	if err != nil {
		return nil, err
	}
	return s.IssueFor(ctx, user)
}

// Login checks credentials and issues a new token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.IssueFor(ctx, user)
}

// IssueFor signs a token for user and records its hash.
func (s *Service) IssueFor(ctx context.Context, user *store.User) (*Session, error) {
	raw, expires, err := s.issuer.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	if _, err := s.tokens.Create(ctx, store.Token{UserID: user.ID, TokenHash: HashToken(raw), ExpiresAt: expires}); err != nil {
		return nil, fmt.Errorf("record token: %w", err)
	}
	return &Session{Token: raw, User: user, ExpiresAt: expires}, nil
}

// Authenticate resolves a raw token to its user. The token must verify and
// still be on record.
func (s *Service) Authenticate(ctx context.Context, raw string) (*store.User, error) {
	userID, err := s.issuer.Parse(raw)
	if err != nil {
		return nil, err
	}
	tok, err := s.tokens.FindActive(ctx, HashToken(raw), s.now())
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	if tok.UserID != userID {
		return nil, ErrInvalidToken
	}
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

// Logout revokes one token.
func (s *Service) Logout(ctx context.Context, user *store.User, raw string) error {
	err := s.tokens.Delete(ctx, user.ID, HashToken(raw))
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// LogoutAll revokes every token of user and returns how many were removed.
func (s *Service) LogoutAll(ctx context.Context, user *store.User) (int64, error) {
	return s.tokens.DeleteAllForUser(ctx, user.ID)
}

// PurgeExpired removes expired tokens.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpired(ctx, s.now())
}

// RequireToken authenticates the request token and stores the user and token
// in the request context.
func (s *Service) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := BearerToken(r)
		if raw == "" {
			httperrors.Unauthorized(w, r)
			return
		}

		user, err := s.Authenticate(r.Context(), raw)
		if errors.Is(err, ErrInvalidToken) {
			httperrors.Unauthorized(w, r)
			return
		}
		if err != nil {
			httperrors.InternalError(w, r, err, "authenticate request")
			return
		}

		ctx := WithToken(WithUser(r.Context(), user), raw)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BearerToken extracts the token from the Authorization header. Both
// "Bearer <token>" and a bare token are accepted.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return h
}
