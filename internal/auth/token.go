package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// TokenDecoder turns a bearer token into claims. Token issuance lives in the
// user service; the gateway only verifies.
type TokenDecoder interface {
	Decode(token string) (*Claims, error)
}

// JWTDecoder verifies HS256 tokens signed with a shared secret.
type JWTDecoder struct {
	secret []byte
}

func NewJWTDecoder(secret string) *JWTDecoder {
	return &JWTDecoder{secret: []byte(secret)}
}

func (d *JWTDecoder) Decode(raw string) (*Claims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return d.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return nil, ErrInvalidToken
	}

	role, _ := mc["role"].(string)
	if role == "" {
		return nil, fmt.Errorf("%w: missing role claim", ErrInvalidToken)
	}

	claims := &Claims{Role: Role(role)}
	// user ids are numeric in some issuers, so sub is not assumed to be a string
	if sub, ok := mc["sub"]; ok && sub != nil {
		claims.Subject = fmt.Sprint(sub)
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
