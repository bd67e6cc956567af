package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "01234567890123456789012345678901" // 32 bytes

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return signed
}

func TestNewHS256_RejectsShortSecret(t *testing.T) {
	if _, err := NewHS256("too-short", "", ""); err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
}

func TestVerify_AcceptsValidToken(t *testing.T) {
	m, err := NewHS256(testSecret, "api-gateway", "")
	if err != nil {
		t.Fatalf("NewHS256: %v", err)
	}

	tok := signHS256(t, testSecret, jwt.MapClaims{
		"sub": "user-42",
		"iss": "api-gateway",
		"exp": time.Now().Add(time.Hour).Unix(),
		"role": "admin",
	})

	claims, err := m.Verify(tok)
	if err != nil {
		t.Fatalf("expected valid token, got error: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Extra["role"] != "admin" {
		t.Fatalf("expected custom claim to survive, got %v", claims.Extra)
	}
}

func TestVerify_RejectsExpiredToken(t *testing.T) {
	m, err := NewHS256(testSecret, "", "")
	if err != nil {
		t.Fatalf("NewHS256: %v", err)
	}
	tok := signHS256(t, testSecret, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	if _, err := m.Verify(tok); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	m, err := NewHS256(testSecret, "", "")
	if err != nil {
		t.Fatalf("NewHS256: %v", err)
	}
	tok := signHS256(t, "different-secret-that-is-also-33b", jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	if _, err := m.Verify(tok); err == nil {
		t.Fatalf("expected wrong-secret token to be rejected")
	}
}

func TestVerify_RejectsTamperedToken(t *testing.T) {
	m, err := NewHS256(testSecret, "", "")
	if err != nil {
		t.Fatalf("NewHS256: %v", err)
	}
	tok := signHS256(t, testSecret, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		t.Fatalf("expected a 3-part JWT, got %d parts", len(parts))
	}
	// Flip a byte in the payload segment.
	payload := []byte(parts[1])
	payload[0] ^= 0xFF
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	if _, err := m.Verify(tampered); err == nil {
		t.Fatalf("expected tampered token to be rejected")
	}
}

func TestVerify_RejectsUnexpectedIssuer(t *testing.T) {
	m, err := NewHS256(testSecret, "api-gateway", "")
	if err != nil {
		t.Fatalf("NewHS256: %v", err)
	}
	tok := signHS256(t, testSecret, jwt.MapClaims{
		"sub": "user-1",
		"iss": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	if _, err := m.Verify(tok); err == nil {
		t.Fatalf("expected mismatched issuer to be rejected")
	}
}

func TestVerify_RejectsUnlistedAlgorithm(t *testing.T) {
	m, err := NewHS256(testSecret, "", "")
	if err != nil {
		t.Fatalf("NewHS256: %v", err)
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS384, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret + "0"))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	if _, err := m.Verify(signed); err == nil {
		t.Fatalf("expected HS384 token to be rejected by an HS256 manager")
	}
}

func TestExtractBearerToken_ParsesBearerScheme(t *testing.T) {
	tok, ok := ExtractBearerToken("Bearer abc.def.ghi")
	if !ok || tok != "abc.def.ghi" {
		t.Fatalf("unexpected result: %q %v", tok, ok)
	}
}

func TestExtractBearerToken_RejectsOtherSchemes(t *testing.T) {
	if _, ok := ExtractBearerToken("Basic dXNlcjpwYXNz"); ok {
		t.Fatalf("expected non-bearer scheme to be rejected")
	}
	if _, ok := ExtractBearerToken(""); ok {
		t.Fatalf("expected empty header to be rejected")
	}
}
