package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCredential is returned for any credential that fails verification.
var ErrInvalidCredential = errors.New("invalid credential")

// Identity is the verified caller behind a credential.
type Identity struct {
	UserID int64
	Email  string
}

// Verifier turns an opaque credential into an identity.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Identity, error)
}

// JWTVerifier verifies HS256 bearer tokens.
type JWTVerifier struct {
	cfg *JWTConfig
}

// NewJWTVerifier creates a verifier for tokens signed with cfg.Secret.
func NewJWTVerifier(cfg *JWTConfig) *JWTVerifier {
	return &JWTVerifier{cfg: cfg}
}

// Verify validates the credential. A "Bearer " prefix is accepted.
func (v *JWTVerifier) Verify(ctx context.Context, credential string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	credential = strings.TrimSpace(strings.TrimPrefix(credential, "Bearer "))
	if credential == "" {
		return Identity{}, ErrInvalidCredential
	}

	claims, err := ValidateToken(v.cfg, credential)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	return Identity{UserID: claims.UserID, Email: claims.Email}, nil
}
