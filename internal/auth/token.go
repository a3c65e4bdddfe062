package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "rfqtrack"

// Role is the authorization role carried in the token. It drives the
// mandatory scoping predicate on every RFQ query.
type Role string

const (
	RoleEngineer Role = "engineer"
	RoleSales    Role = "sales"
	RoleAdmin    Role = "admin"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleEngineer, RoleSales, RoleAdmin:
		return true
	}
	return false
}

// Identity is the verified payload carried by a token.
type Identity struct {
	UserID   int64  `json:"-"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	FullName string `json:"full_name"`
}

// Claims is the JWT claim set: the identity plus registered claims. The
// user id rides in the registered subject.
type Claims struct {
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	FullName string `json:"full_name"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies HS256 tokens. The secret is injected at
// construction; there is no environment fallback.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(secret string, ttl time.Duration) (*Authenticator, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token ttl must be greater than zero")
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// WithClock overrides the time source. Only intended for test use.
func (a *Authenticator) WithClock(fn func() time.Time) *Authenticator {
	if fn != nil {
		a.now = fn
	}
	return a
}

// Issue signs a token embedding the identity.
func (a *Authenticator) Issue(id Identity) (string, time.Time, error) {
	if id.UserID <= 0 {
		return "", time.Time{}, errors.New("auth: user id is required")
	}
	if !id.Role.Valid() {
		return "", time.Time{}, errors.New("auth: unknown role")
	}

	now := a.now().UTC()
	expiresAt := now.Add(a.ttl)
	claims := Claims{
		Email:    id.Email,
		Role:     id.Role,
		FullName: id.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(id.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify validates signature and claims, distinguishing absent, malformed
// and expired tokens.
func (a *Authenticator) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrMalformedToken
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrMalformedToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrMalformedToken
	}
	if claims.Issuer != issuer || !claims.Role.Valid() {
		return Identity{}, ErrMalformedToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Identity{}, ErrMalformedToken
	}

	return Identity{
		UserID:   userID,
		Email:    claims.Email,
		Role:     claims.Role,
		FullName: claims.FullName,
	}, nil
}
