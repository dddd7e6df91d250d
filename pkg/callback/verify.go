package callback

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	xe "github.com/opst/relmon/pkg/errors"
)

var ErrInvalidToken = errors.New("callback: invalid token")

// Verifier checks bearer tokens of callbacks, signed by RS256.
type Verifier struct {
	parser *jwt.Parser
	key    any
}

// NewVerifier makes Verifier with PEM encoded RSA public key.
//
// Empty audience or issuer is not checked.
func NewVerifier(pem []byte, audience, issuer string) (*Verifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM(pem)
	if err != nil {
		return nil, xe.WrapWithNote("public key", err)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Verifier{parser: jwt.NewParser(opts...), key: key}, nil
}

// LoadVerifier reads the public key from file.
func LoadVerifier(publicKeyFile, audience, issuer string) (*Verifier, error) {
	pem, err := os.ReadFile(publicKeyFile)
	if err != nil {
		return nil, xe.WrapWithNote("public key", err)
	}
	return NewVerifier(pem, audience, issuer)
}

// Verify parses token and returns its claims.
//
// Returns
//
// - error: ErrInvalidToken (joined) when the token is not acceptable.
func (v *Verifier) Verify(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	return claims, nil
}

// BearerToken extracts token from Authorization header value.
func BearerToken(authorization string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authorization), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: bearer token is required", ErrInvalidToken)
	}
	return strings.TrimSpace(token), nil
}
