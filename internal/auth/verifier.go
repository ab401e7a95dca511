//
//
package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Signing algorithms.
const (
	AlgHS256 = "HS256"
	AlgRS256 = "RS256"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// VerifierConfig holds configuration for JWT verification.
type VerifierConfig struct {
	// RS256
	PublicKeyPEM string

	// HS256
	SecretKey string

	// Algorithm defaults to RS256 when a PEM key is set, HS256 otherwise.
	Algorithm string
}

// Verifier checks token signatures and extracts claims.
type Verifier struct {
	alg       string
	secret    []byte
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
}

// NewVerifier creates a new JWT verifier.
func NewVerifier(config VerifierConfig) (*Verifier, error) {
	alg := config.Algorithm
	if alg == "" {
		alg = AlgHS256
		if config.PublicKeyPEM != "" {
			alg = AlgRS256
		}
	}

	v := &Verifier{
		alg:    alg,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{alg}), jwt.WithExpirationRequired()),
	}

	switch alg {
	case AlgRS256:
		if config.PublicKeyPEM == "" {
			return nil, fmt.Errorf("RS256 requires a public key")
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(config.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("failed to load public key from PEM: %w", err)
		}
		v.publicKey = key
	case AlgHS256:
		if config.SecretKey == "" {
			return nil, fmt.Errorf("HS256 requires secret key")
		}
		v.secret = []byte(config.SecretKey)
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", alg)
	}

	return v, nil
}

// NewVerifierFromFiles builds a verifier from a shared secret or a PEM file
// path. The PEM file wins when both are set.
func NewVerifierFromFiles(secret, publicKeyFile string) (*Verifier, error) {
	if publicKeyFile != "" {
		pemData, err := os.ReadFile(publicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read public key: %w", err)
		}
		return NewVerifier(VerifierConfig{Algorithm: AlgRS256, PublicKeyPEM: string(pemData)})
	}
	return NewVerifier(VerifierConfig{Algorithm: AlgHS256, SecretKey: secret})
}

// Algorithm reports the accepted signing method.
func (v *Verifier) Algorithm() string { return v.alg }

// VerifyToken verifies a JWT token and returns the claims.
func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("%w: token cannot be empty", ErrInvalidToken)
	}

	claims := jwt.MapClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, v.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return extractClaims(claims)
}

func (v *Verifier) key(*jwt.Token) (interface{}, error) {
	if v.alg == AlgRS256 {
		return v.publicKey, nil
	}
	return v.secret, nil
}

// extractClaims reads sub plus either a "scopes" array or a space separated
// "scope" string.
func extractClaims(claims jwt.MapClaims) (*Claims, error) {
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing or invalid 'sub' claim", ErrInvalidToken)
	}

	var scopes []string
	if raw, ok := claims["scopes"]; ok {
		scopes, err = stringSlice(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
	} else if s, ok := claims["scope"].(string); ok {
		scopes = strings.Fields(s)
	}

	if !validScopes(scopes) {
		return nil, fmt.Errorf("%w: invalid scopes: %v", ErrInvalidToken, scopes)
	}

	return &Claims{Subject: sub, Scopes: scopes}, nil
}

func stringSlice(value interface{}) ([]string, error) {
	switch val := value.(type) {
	case []string:
		return val, nil
	case []interface{}:
		result := make([]string, len(val))
		for i, item := range val {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("invalid scopes claim: not a string")
			}
			result[i] = str
		}
		return result, nil
	default:
		return nil, fmt.Errorf("invalid scopes claim: not a string array")
	}
}

func validScopes(scopes []string) bool {
	known := map[string]bool{
		ScopeRead:      true,
		ScopeTelemetry: true,
	}
	for _, scope := range scopes {
		if !known[scope] {
			return false
		}
	}
	return len(scopes) > 0
}
