package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/textsql/textsql/internal/catalog"
	"github.com/textsql/textsql/internal/config"
	"github.com/textsql/textsql/internal/observability"
)

type ServiceOptions struct {
	Users  UserStore
	Tokens *TokenIssuer
	// Provider enables LoginWithProvider. Nil disables it.
	Provider ProviderVerifier
	// PasswordCost defaults to bcrypt.DefaultCost.
	PasswordCost int
	Logger       *slog.Logger
}

type Service struct {
	users    UserStore
	tokens   *TokenIssuer
	provider ProviderVerifier
	cost     int
	logger   *slog.Logger
}

var _ Authenticator = (*Service)(nil)

func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if opts.Tokens == nil {
		return nil, fmt.Errorf("token issuer is required")
	}
	cost := opts.PasswordCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &Service{users: opts.Users, tokens: opts.Tokens, provider: opts.Provider, cost: cost, logger: logger}, nil
}

func (s *Service) ProviderEnabled() bool {
	return s.provider != nil
}

func (s *Service) Register(ctx context.Context, email, username, password string) (catalog.User, error) {
	email = strings.TrimSpace(email)
	username = strings.TrimSpace(username)
	if err := validateEmail(email); err != nil {
		return catalog.User{}, err
	}
	if username == "" {
		return catalog.User{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if password == "" {
		return catalog.User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	if len(password) > maxPasswordBytes {
		return catalog.User{}, fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, maxPasswordBytes)
	}

	exists, err := s.users.UserExists(ctx, email, username)
	if err != nil {
		return catalog.User{}, err
	}
	if exists {
		return catalog.User{}, fmt.Errorf("register %q: %w", username, catalog.ErrConflict)
	}

	hash, err := hashPassword(password, s.cost)
	if err != nil {
		return catalog.User{}, err
	}
	user, err := s.users.CreateUser(ctx, catalog.CreateUserInput{Email: email, Username: username, PasswordHash: hash})
	if err != nil {
		return catalog.User{}, err
	}
	s.logger.InfoContext(ctx, "user registered",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.Int64("user_id", user.ID),
	)
	return user, nil
}

func (s *Service) Login(ctx context.Context, username, password string) (Token, error) {
	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Token{}, ErrUnauthorized
		}
		return Token{}, err
	}
	if !user.IsActive || !checkPassword(user.PasswordHash, password) {
		return Token{}, ErrUnauthorized
	}
	return s.tokens.Issue(user.Username)
}

// LoginWithProvider exchanges an external provider token for a session
// token, creating the account on first sight.
func (s *Service) LoginWithProvider(ctx context.Context, providerToken string) (Token, error) {
	if s.provider == nil {
		return Token{}, ErrProviderDisabled
	}
	if strings.TrimSpace(providerToken) == "" {
		return Token{}, fmt.Errorf("%w: id_token is required", ErrInvalidInput)
	}
	identity, err := s.provider.Verify(ctx, providerToken)
	if err != nil {
		return Token{}, err
	}

	user, err := s.users.GetUserByEmail(ctx, identity.Email)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		hash, hashErr := unusablePassword(s.cost)
		if hashErr != nil {
			return Token{}, hashErr
		}
		user, err = s.users.CreateUser(ctx, catalog.CreateUserInput{
			Email:        identity.Email,
			Username:     identity.Username,
			PasswordHash: hash,
		})
		if err != nil {
			return Token{}, err
		}
		s.logger.InfoContext(ctx, "provider user created",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.Int64("user_id", user.ID),
		)
	case err != nil:
		return Token{}, err
	}
	if !user.IsActive {
		return Token{}, ErrUnauthorized
	}
	return s.tokens.Issue(user.Username)
}

func (s *Service) Authenticate(ctx context.Context, token string) (catalog.User, error) {
	username, err := s.tokens.Parse(token)
	if err != nil {
		return catalog.User{}, err
	}
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.User{}, ErrUnauthorized
		}
		return catalog.User{}, err
	}
	if !user.IsActive {
		return catalog.User{}, ErrUnauthorized
	}
	return user, nil
}

// EnsureDemoUser creates the demo account unless a user with its email or
// username already exists. It reports whether an account was created.
func (s *Service) EnsureDemoUser(ctx context.Context, demo config.DemoAccountConfig) (bool, error) {
	if !demo.Enabled {
		return false, nil
	}
	exists, err := s.users.UserExists(ctx, demo.Email, demo.Username)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if _, err := s.Register(ctx, demo.Email, demo.Username, demo.Password); err != nil {
		if errors.Is(err, catalog.ErrConflict) {
			return false, nil
		}
		return false, fmt.Errorf("create demo user: %w", err)
	}
	return true, nil
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	address, err := mail.ParseAddress(email)
	if err != nil || address.Address != email {
		return fmt.Errorf("%w: %q is not a valid email address", ErrInvalidInput, email)
	}
	return nil
}
