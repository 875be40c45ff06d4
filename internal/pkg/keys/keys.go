// Package keys loads the token signing key from configuration.
//
// An asymmetric private key (RSA or ECDSA P-256, PEM inline or a file path)
// selects RS256/ES256. A shared secret selects HS256 and is intended for
// single-process development setups only.
package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/carddemo/auth-gateway/internal/core/domain"
)

// ErrInvalidKey is returned when PEM content or key type is not usable.
var ErrInvalidKey = errors.New("invalid key")

// minSecretLength is the shortest HS256 secret accepted.
const minSecretLength = 32

// SigningKey pairs a JWT signing method with the keys it signs and verifies with.
type SigningKey struct {
	Method jwt.SigningMethod
	Sign   any
	Verify any
}

// Load builds a SigningKey from a private key (preferred) or a shared secret.
// Both empty yields domain.ErrSigningKeyUnavailable.
func Load(privateKey, secret string) (*SigningKey, error) {
	if strings.TrimSpace(privateKey) != "" {
		signer, err := ParsePrivateKey(privateKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSigningKeyUnavailable, err)
		}
		return FromSigner(signer)
	}
	if secret != "" {
		if len(secret) < minSecretLength {
			return nil, fmt.Errorf("%w: secret shorter than %d bytes", domain.ErrSigningKeyUnavailable, minSecretLength)
		}
		return &SigningKey{Method: jwt.SigningMethodHS256, Sign: []byte(secret), Verify: []byte(secret)}, nil
	}
	return nil, domain.ErrSigningKeyUnavailable
}

// FromSigner picks RS256 or ES256 from the signer's public key type.
func FromSigner(signer crypto.Signer) (*SigningKey, error) {
	switch pub := signer.Public().(type) {
	case *rsa.PublicKey:
		return &SigningKey{Method: jwt.SigningMethodRS256, Sign: signer, Verify: pub}, nil
	case *ecdsa.PublicKey:
		if pub.Curve != elliptic.P256() {
			return nil, fmt.Errorf("%w: only P-256 ECDSA keys are supported", ErrInvalidKey)
		}
		return &SigningKey{Method: jwt.SigningMethodES256, Sign: signer, Verify: pub}, nil
	default:
		return nil, ErrInvalidKey
	}
}

// LoadPEM reads content from path if s does not look like inline PEM.
func LoadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(s), nil
	}
	return os.ReadFile(s)
}

// ParsePrivateKey parses a PEM-encoded RSA or ECDSA private key.
func ParsePrivateKey(s string) (crypto.Signer, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, ErrInvalidKey
		}
		return signer, nil
	default:
		return nil, ErrInvalidKey
	}
}
