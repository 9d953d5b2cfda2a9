package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"stash/internal/server/database"
)

// ErrInvalidCredentials is returned when a request carries credentials that
// do not match a stored user.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Principal is the authenticated identity behind a request. The zero value
// means no identity could be established; uploads are never retained for it.
type Principal string

// Anonymous reports whether no identity was established.
func (p Principal) Anonymous() bool {
	return p == ""
}

// UserStore looks up stored users for credential checks.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*database.User, error)
}

// Authenticator resolves the principal behind a request.
type Authenticator interface {
	CurrentPrincipal(r *http.Request) (Principal, error)
}

// BasicAuthenticator verifies HTTP Basic credentials against bcrypt hashes
// in the user store.
type BasicAuthenticator struct {
	users UserStore
}

// NewBasicAuthenticator creates an authenticator backed by the given store.
func NewBasicAuthenticator(users UserStore) *BasicAuthenticator {
	return &BasicAuthenticator{users: users}
}

// CurrentPrincipal returns the authenticated principal for the request, the
// zero principal when the request carries no credentials at all, or
// ErrInvalidCredentials when it carries bad ones.
func (a *BasicAuthenticator) CurrentPrincipal(r *http.Request) (Principal, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return "", nil
	}

	user, err := a.users.GetByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return Principal(user.Username), nil
}
