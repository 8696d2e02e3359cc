package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "astrotv",
		Audience: "astrotv-clients",
		TTL:      time.Hour,
	}
}

func TestVerifyValidToken(t *testing.T) {
	cfg := testConfig()
	token, err := GenerateToken(cfg, 42, "ana@example.com")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	v := NewJWTVerifier(cfg)
	for _, credential := range []string{token, "Bearer " + token} {
		id, err := v.Verify(context.Background(), credential)
		if err != nil {
			t.Fatalf("verify %q: %v", credential, err)
		}
		if id.UserID != 42 || id.Email != "ana@example.com" {
			t.Fatalf("unexpected identity: %+v", id)
		}
	}
}

func TestVerifyRejects(t *testing.T) {
	cfg := testConfig()

	otherSecret := *cfg
	otherSecret.Secret = []byte("other")
	forged, _ := GenerateToken(&otherSecret, 42, "")

	past := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: 42,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	expired, _ := past.SignedString(cfg.Secret)

	wrongAudience := *cfg
	wrongAudience.Audience = "someone-else"
	misdirected, _ := GenerateToken(&wrongAudience, 42, "")

	noUser, _ := GenerateToken(cfg, 0, "")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 42})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name       string
		credential string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"wrong secret", forged},
		{"expired", expired},
		{"wrong audience", misdirected},
		{"missing user", noUser},
		{"unsigned", unsigned},
	}

	v := NewJWTVerifier(cfg)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Verify(context.Background(), tt.credential); !errors.Is(err, ErrInvalidCredential) {
				t.Fatalf("expected ErrInvalidCredential, got %v", err)
			}
		})
	}
}
