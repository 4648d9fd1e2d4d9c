// Package identity provides the acting party for the sync engine.
package identity

import (
	"fmt"
	"strings"

	"payment-tracker/internal/core/domain"
	"payment-tracker/internal/core/ports"
)

// Static is a fixed identity loaded from configuration.
type Static struct {
	address string
	role    domain.Role
}

var _ ports.IdentityProvider = (*Static)(nil)

// NewStatic validates and returns an identity acting as role.
func NewStatic(address string, role string) (*Static, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("identity address is required")
	}
	r := domain.Role(strings.ToLower(strings.TrimSpace(role)))
	if !r.Valid() {
		return nil, fmt.Errorf("unknown identity role %q", role)
	}
	return &Static{address: address, role: r}, nil
}

func (s *Static) Address() string   { return s.address }
func (s *Static) Role() domain.Role { return s.role }
