// Package auth turns admin credentials into capabilities.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/hablemos/language-league/internal/domain/shared"
)

// AdminAuthorizer verifies the shared admin token against a bcrypt hash.
type AdminAuthorizer struct {
	hash  []byte
	actor string
}

// NewAdminAuthorizer creates an authorizer. An empty hash disables admin access.
func NewAdminAuthorizer(hash, actor string) (*AdminAuthorizer, error) {
	if hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("%w: admin token hash: %v", shared.ErrConfigurationInvalid, err)
		}
	}
	if actor == "" {
		actor = "admin"
	}
	return &AdminAuthorizer{hash: []byte(hash), actor: actor}, nil
}

// Enabled reports whether a token hash is configured.
func (a *AdminAuthorizer) Enabled() bool {
	return len(a.hash) > 0
}

// Authorize returns an admin capability when token matches.
func (a *AdminAuthorizer) Authorize(token string) (shared.Capability, error) {
	if !a.Enabled() || token == "" {
		return shared.Capability{}, shared.ErrMissingCapability
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(token)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return shared.Capability{}, shared.ErrInvalidAdminToken
		}
		return shared.Capability{}, shared.WrapError("admin", "Authorize", shared.ErrForbidden, "token check failed", err)
	}
	return shared.NewCapability(a.actor, shared.RoleAdmin), nil
}

// HashToken produces a hash suitable for ADMIN_TOKEN_HASH.
func HashToken(token string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
