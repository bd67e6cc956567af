// Package auth implements JWT bearer-token verification for the
// gateway's request pipeline. It never issues tokens; verification
// only.
package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Algorithm is the JWT signing algorithm accepted by a Manager.
type Algorithm string

const (
	HS256 Algorithm = "HS256"
	RS256 Algorithm = "RS256"
)

// Claims is the verified claim set handed to the pipeline. Custom
// claims not covered by the named fields are kept in Extra.
type Claims struct {
	Subject  string
	Issuer   string
	Audience []string
	Extra    map[string]any
}

// Manager verifies bearer tokens against a single configured algorithm
// and key, plus optional issuer/audience checks.
type Manager struct {
	algorithm      Algorithm
	secret         []byte
	publicKey      *rsa.PublicKey
	expectIssuer   string
	expectAudience string
}

// NewHS256 builds a Manager for symmetric-secret tokens. secret must be
// at least 32 bytes; config.Validate enforces this at startup.
func NewHS256(secret string, issuer, audience string) (*Manager, error) {
	if len(secret) < 32 {
		return nil, errors.New("auth: HS256 secret must be at least 32 bytes")
	}
	return &Manager{
		algorithm:      HS256,
		secret:         []byte(secret),
		expectIssuer:   issuer,
		expectAudience: audience,
	}, nil
}

// NewRS256 builds a Manager that verifies tokens using the public key
// found in publicKeyFile (PEM-encoded certificate or PKIX public key).
func NewRS256(publicKeyFile string, issuer, audience string) (*Manager, error) {
	pub, err := loadRSAPublicKey(publicKeyFile)
	if err != nil {
		return nil, fmt.Errorf("auth: loading RS256 public key: %w", err)
	}
	return &Manager{
		algorithm:      RS256,
		publicKey:      pub,
		expectIssuer:   issuer,
		expectAudience: audience,
	}, nil
}

// Verify parses and validates tokenString, checking the signing
// algorithm, signature, expiry, issuer, and audience. A token with a
// flipped byte, wrong signature, or expired exp claim fails here.
func (m *Manager) Verify(tokenString string) (Claims, error) {
	parsed, err := jwt.Parse(tokenString, m.keyFunc, jwt.WithValidMethods([]string{string(m.algorithm)}))
	if err != nil {
		return Claims{}, fmt.Errorf("auth: token verification failed: %w", err)
	}
	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("auth: invalid token claims")
	}

	iss, _ := mapClaims.GetIssuer()
	if m.expectIssuer != "" && iss != m.expectIssuer {
		return Claims{}, fmt.Errorf("auth: unexpected issuer %q", iss)
	}

	aud, _ := mapClaims.GetAudience()
	if m.expectAudience != "" && !containsString(aud, m.expectAudience) {
		return Claims{}, fmt.Errorf("auth: audience does not include %q", m.expectAudience)
	}

	sub, _ := mapClaims.GetSubject()

	extra := make(map[string]any, len(mapClaims))
	for k, v := range mapClaims {
		switch k {
		case "iss", "aud", "exp", "sub", "nbf", "iat", "jti":
			continue
		default:
			extra[k] = v
		}
	}

	return Claims{Subject: sub, Issuer: iss, Audience: aud, Extra: extra}, nil
}

func (m *Manager) keyFunc(token *jwt.Token) (any, error) {
	switch m.algorithm {
	case HS256:
		return m.secret, nil
	case RS256:
		return m.publicKey, nil
	default:
		return nil, fmt.Errorf("auth: unsupported algorithm %q", m.algorithm)
	}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// ExtractBearerToken pulls the token out of an "Authorization: Bearer
// <token>" header value. It returns ok=false for any other scheme or
// an empty header.
func ExtractBearerToken(headerValue string) (token string, ok bool) {
	const prefix = "Bearer "
	headerValue = strings.TrimSpace(headerValue)
	if !strings.HasPrefix(headerValue, prefix) {
		return "", false
	}
	token = strings.TrimSpace(strings.TrimPrefix(headerValue, prefix))
	return token, token != ""
}

func loadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}
	if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
		if pub, ok := cert.PublicKey.(*rsa.PublicKey); ok {
			return pub, nil
		}
		return nil, errors.New("certificate does not contain an RSA public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing PKIX public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("key is not RSA")
	}
	return rsaPub, nil
}
