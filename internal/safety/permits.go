package safety

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/controlnet-core/internal/eventbus"
)

// IssuePermit grants holder a work permit for ttl.
func (m *Manager) IssuePermit(holder, scope string, ttl time.Duration) (Permit, error) {
	if holder == "" {
		return Permit{}, fmt.Errorf("%w: permit needs a holder", ErrInvalidDefinition)
	}
	if ttl <= 0 {
		return Permit{}, fmt.Errorf("%w: permit ttl must be positive", ErrInvalidDefinition)
	}
	now := m.now()
	p := &Permit{
		ID:        uuid.NewString(),
		Holder:    holder,
		Scope:     scope,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		Status:    PermitActive,
	}
	m.permits.Add(p.ID, p)
	m.logger.Info("work permit issued", "permit_id", p.ID, "holder", holder, "scope", scope, "expires_at", p.ExpiresAt)
	return *p, nil
}

// RevokePermit ends an active permit early.
func (m *Manager) RevokePermit(id string) error {
	p, ok := m.permits.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPermitNotFound, id)
	}
	if p.Status != PermitActive {
		return fmt.Errorf("%w: %s is %s", ErrPermitNotActive, id, p.Status)
	}
	p.Status = PermitRevoked
	m.logger.Info("work permit revoked", "permit_id", id, "holder", p.Holder)
	return nil
}

// Permit returns a copy of one permit.
func (m *Manager) Permit(id string) (Permit, error) {
	p, ok := m.permits.Get(id)
	if !ok {
		return Permit{}, fmt.Errorf("%w: %s", ErrPermitNotFound, id)
	}
	return *p, nil
}

// Permits returns copies of every permit in issue order.
func (m *Manager) Permits() []Permit {
	out := make([]Permit, 0, m.permits.Len())
	m.permits.Each(func(_ string, p *Permit) bool {
		out = append(out, *p)
		return true
	})
	return out
}

// SweepPermits expires every active permit whose deadline has passed and
// returns how many changed.
func (m *Manager) SweepPermits() int {
	now := m.now()
	var expired []*Permit
	m.permits.Each(func(_ string, p *Permit) bool {
		if p.Status == PermitActive && !now.Before(p.ExpiresAt) {
			expired = append(expired, p)
		}
		return true
	})
	for _, p := range expired {
		p.Status = PermitExpired
		m.logger.Warn("work permit expired", "permit_id", p.ID, "holder", p.Holder)
		m.publish(eventbus.PermitExpired, eventbus.PermitEvent{
			PermitID: p.ID,
			Holder:   p.Holder,
			Expired:  p.ExpiresAt,
		})
	}
	return len(expired)
}
