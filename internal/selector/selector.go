// Package selector picks the portal credential a check cycle runs with.
package selector

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"visa-slot-backend/internal/model"
	"visa-slot-backend/internal/store"
)

// ErrNoCredentialAvailable is returned when no active credential exists.
var ErrNoCredentialAvailable = errors.New("no active credential available")

// Select applies the selection policy to creds:
// an active primary wins; otherwise the highest success rate, then the least
// recently used (never-used first), then the lowest ID.
func Select(creds []model.Credential) (model.Credential, error) {
	active := make([]model.Credential, 0, len(creds))
	for _, c := range creds {
		if !c.IsActive {
			continue
		}
		if c.IsPrimary {
			return c, nil
		}
		active = append(active, c)
	}
	if len(active) == 0 {
		return model.Credential{}, ErrNoCredentialAvailable
	}

	sort.SliceStable(active, func(i, j int) bool {
		return less(active[i], active[j])
	})
	return active[0], nil
}

func less(a, b model.Credential) bool {
	if ra, rb := a.SuccessRate(), b.SuccessRate(); ra != rb {
		return ra > rb
	}
	switch {
	case a.LastUsed == nil && b.LastUsed != nil:
		return true
	case a.LastUsed != nil && b.LastUsed == nil:
		return false
	case a.LastUsed != nil && b.LastUsed != nil && !a.LastUsed.Equal(*b.LastUsed):
		return a.LastUsed.Before(*b.LastUsed)
	}
	return a.ID < b.ID
}

// Selector reads the active credential set from storage and applies Select.
type Selector struct {
	creds store.CredentialStore
}

func New(creds store.CredentialStore) *Selector {
	return &Selector{creds: creds}
}

// Next returns the credential for the next attempt. It has no side effects.
func (s *Selector) Next(ctx context.Context) (model.Credential, error) {
	active, _, err := s.creds.ListCredentials(ctx, store.ListFilter{ActiveOnly: true, Limit: 500})
	if err != nil {
		return model.Credential{}, fmt.Errorf("load credentials: %w", err)
	}
	return Select(active)
}
