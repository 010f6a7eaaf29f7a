package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "advance-engine"

var (
	ErrMissingSecret = errors.New("jwt secret not configured")
	ErrInvalidToken  = errors.New("invalid session token")
)

// Claims is the JWT payload.
type Claims struct {
	jwt.RegisteredClaims
	Role       Role   `json:"role"`
	Email      string `json:"email,omitempty"`
	Name       string `json:"name,omitempty"`
	EmployerID string `json:"employer_id,omitempty"`
}

// TokenIssuer signs and verifies HS256 session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue mints a token for u and returns the logged-in session it represents.
func (ti *TokenIssuer) Issue(u User) (string, Session, error) {
	if u.ID == "" {
		return "", Session{}, fmt.Errorf("%w: subject is required", ErrInvalidToken)
	}
	if !u.Role.Valid() {
		return "", Session{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, u.Role)
	}

	now := ti.now()
	expires := now.Add(ti.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   u.ID,
		},
		Role:       u.Role,
		Email:      u.Email,
		Name:       u.Name,
		EmployerID: u.EmployerID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.secret)
	if err != nil {
		return "", Session{}, err
	}
	return signed, Reduce(Anonymous(), LoggedIn{User: u, Token: signed, ExpiresAt: expires}), nil
}

// Parse verifies a token and returns the session it carries.
func (ti *TokenIssuer) Parse(tokenStr string) (Session, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return ti.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		return Anonymous(), fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Anonymous(), ErrInvalidToken
	}
	if !claims.Role.Valid() || claims.Subject == "" {
		return Anonymous(), fmt.Errorf("%w: bad claims", ErrInvalidToken)
	}

	u := User{
		ID:         claims.Subject,
		Email:      claims.Email,
		Name:       claims.Name,
		Role:       claims.Role,
		EmployerID: claims.EmployerID,
	}
	var expires time.Time
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	return Reduce(Anonymous(), LoggedIn{User: u, Token: tokenStr, ExpiresAt: expires}), nil
}
