package auth

import (
	"context"
	"errors"

	"github.com/textsql/textsql/internal/catalog"
)

var (
	// ErrUnauthorized covers unknown users, wrong passwords, inactive
	// accounts and bad or expired tokens alike.
	ErrUnauthorized     = errors.New("incorrect username or password")
	ErrProviderDisabled = errors.New("external sign-in is not enabled")
	ErrInvalidInput     = errors.New("invalid input")
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID   int64
	Username string
	Email    string
}

func IdentityFor(user catalog.User) Identity {
	return Identity{UserID: user.ID, Username: user.Username, Email: user.Email}
}

// Authenticator resolves a bearer token to an active user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (catalog.User, error)
}

// UserStore is the part of the catalog the auth service needs.
type UserStore interface {
	CreateUser(ctx context.Context, in catalog.CreateUserInput) (catalog.User, error)
	GetUserByUsername(ctx context.Context, username string) (catalog.User, error)
	GetUserByEmail(ctx context.Context, email string) (catalog.User, error)
	UserExists(ctx context.Context, email, username string) (bool, error)
}

type contextKey string

const identityKey contextKey = "auth_identity"

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}
