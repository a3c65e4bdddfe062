package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Account is the stored user record consulted during login.
type Account struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         Role
	FullName     string
}

// AccountFinder is the single persistence dependency of the login flow.
type AccountFinder interface {
	FindAccountByEmail(ctx context.Context, email string) (Account, error)
}

// ErrAccountNotFound is returned by AccountFinder implementations when no
// user matches the email.
var ErrAccountNotFound = errors.New("auth: account not found")

// LoginResult is the outcome of a login attempt. Bad credentials are a soft
// failure carried in the result, not an error.
type LoginResult struct {
	OK        bool
	Message   string
	Token     string
	ExpiresAt time.Time
	Identity  Identity
}

const invalidCredentialsMsg = "Invalid email or password"

// Service performs credential checks and token issuance.
type Service struct {
	accounts AccountFinder
	tokens   *Authenticator
}

// NewService constructs the login service.
func NewService(accounts AccountFinder, tokens *Authenticator) *Service {
	return &Service{accounts: accounts, tokens: tokens}
}

// Login looks up the user by email and verifies the password. Unknown email
// and hash mismatch produce the same user-facing message so the response
// does not reveal which half failed.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return LoginResult{Message: invalidCredentialsMsg}, nil
	}

	acct, err := s.accounts.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) || errors.Is(err, sql.ErrNoRows) {
			return LoginResult{Message: invalidCredentialsMsg}, nil
		}
		return LoginResult{}, fmt.Errorf("find account: %w", err)
	}

	if err := VerifyPassword(acct.PasswordHash, password); err != nil {
		return LoginResult{Message: invalidCredentialsMsg}, nil
	}

	id := Identity{
		UserID:   acct.ID,
		Email:    acct.Email,
		Role:     acct.Role,
		FullName: acct.FullName,
	}
	token, expiresAt, err := s.tokens.Issue(id)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	return LoginResult{
		OK:        true,
		Token:     token,
		ExpiresAt: expiresAt,
		Identity:  id,
	}, nil
}
