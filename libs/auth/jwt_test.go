package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testClaims(role string, exp time.Time) Claims {
	return Claims{
		BusinessID: "biz-1",
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
}

func TestHS256RoundTrip(t *testing.T) {
	token, err := SignHS256(testClaims("owner", time.Now().Add(time.Hour)), "test-secret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := NewVerifier("test-secret", nil).Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.Subject != "user-1" || parsed.BusinessID != "biz-1" || parsed.Role != "owner" {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := NewVerifier("wrong-secret", nil).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken with wrong secret, got %v", err)
	}
}

func TestExpiredToken(t *testing.T) {
	token, err := SignHS256(testClaims("owner", time.Now().Add(-time.Minute)), "s")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := NewVerifier("s", nil).Verify(token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestRS256ViaJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "kid-1",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	}))
	defer srv.Close()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, testClaims("admin", time.Now().Add(time.Hour)))
	tok.Header["kid"] = "kid-1"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	v := NewVerifier("", NewJWKSClient(srv.URL, time.Minute))
	parsed, err := v.Verify(signed)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.Role != "admin" {
		t.Fatalf("unexpected role %q", parsed.Role)
	}

	tok.Header["kid"] = "kid-unknown"
	signed, _ = tok.SignedString(key)
	if _, err := v.Verify(signed); err == nil {
		t.Fatal("expected unknown kid to fail")
	}

	hs, _ := SignHS256(testClaims("admin", time.Now().Add(time.Hour)), "x")
	if _, err := v.Verify(hs); err == nil {
		t.Fatal("expected HS256 to be rejected without a secret")
	}
}

func TestRequireAuthAndRole(t *testing.T) {
	v := NewVerifier("test-secret", nil)
	h := RequireAuth(v)(RequireRole("owner", "admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := ClaimsFromContext(r.Context())
		if claims.BusinessID != "biz-1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})))

	cases := []struct {
		name   string
		role   string
		header string
		want   int
	}{
		{name: "owner", role: "owner", want: http.StatusOK},
		{name: "member", role: "member", want: http.StatusForbidden},
		{name: "missing", header: "-", want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer badtoken", want: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "http://example.com", nil)
		switch tc.header {
		case "":
			token, err := SignHS256(testClaims(tc.role, time.Now().Add(time.Hour)), "test-secret")
			if err != nil {
				t.Fatalf("%s: sign: %v", tc.name, err)
			}
			req.Header.Set("Authorization", "Bearer "+token)
		case "-":
		default:
			req.Header.Set("Authorization", tc.header)
		}
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		if rw.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, rw.Code)
		}
	}
}
