package auth

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

const issuer = "stockroom"

// Claims is the JWT payload carrying an actor.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
	Role string `json:"role"`
}

// Tokens signs and verifies HS256 actor tokens.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

// NewTokens returns a Tokens using the given HMAC secret.
func NewTokens(secret []byte) *Tokens {
	return &Tokens{secret: secret, now: time.Now}
}

// Issue mints a token for the actor that expires after ttl.
func (t *Tokens) Issue(a Actor, ttl time.Duration) (string, error) {
	if a.Email == "" {
		return "", errors.New("actor email is required")
	}
	now := t.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   a.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name: a.Name,
		Role: string(a.Role),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// Verify parses the token and returns the actor it carries. Any parse,
// signature, or expiry failure is reported as ErrUnauthenticated.
func (t *Tokens) Verify(raw string) (Actor, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Actor{}, errors.Wrap(ErrUnauthenticated, err.Error())
	}
	if claims.Subject == "" {
		return Actor{}, ErrUnauthenticated
	}
	return Actor{
		Role:  ParseRole(claims.Role),
		Email: claims.Subject,
		Name:  claims.Name,
	}, nil
}
