package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"goodwill_sniper/internal/config"
	"goodwill_sniper/internal/logbus"
	"goodwill_sniper/internal/model"
	"goodwill_sniper/internal/provider"
)

// Manager keeps one session per account slot. With a single configured
// account both roles share the command slot.
type Manager struct {
	transport provider.AuthTransport
	cfg       config.AuthConfig
	bus       *logbus.Bus
	now       func() time.Time

	mu       sync.Mutex
	sessions map[model.AccountRole]model.Session
}

func NewManager(t provider.AuthTransport, cfg config.AuthConfig, bus *logbus.Bus, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		transport: t,
		cfg:       cfg,
		bus:       bus,
		now:       now,
		sessions:  make(map[model.AccountRole]model.Session),
	}
}

func (m *Manager) slot(role model.AccountRole) model.AccountRole {
	if m.cfg.DualAccount() && role == model.RoleBid {
		return model.RoleBid
	}
	return model.RoleCommand
}

// Start resolves every slot up front so bad credentials fail at startup.
func (m *Manager) Start(ctx context.Context) error {
	if _, err := m.Session(ctx, model.RoleCommand); err != nil {
		return err
	}
	_, err := m.Session(ctx, model.RoleBid)
	return err
}

// Session returns the cached session of the role, resolving it if needed.
func (m *Manager) Session(ctx context.Context, role model.AccountRole) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot := m.slot(role)
	if s, ok := m.sessions[slot]; ok && s.Valid() {
		s.Role = role
		return s, nil
	}
	return m.resolveLocked(ctx, role, slot)
}

// Refresh drops the role's session and resolves a new one. In dual-account
// mode the other role is untouched.
func (m *Manager) Refresh(ctx context.Context, role model.AccountRole) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot := m.slot(role)
	delete(m.sessions, slot)
	return m.resolveLocked(ctx, role, slot)
}

func (m *Manager) resolveLocked(ctx context.Context, role, slot model.AccountRole) (model.Session, error) {
	acct := m.cfg.AccountFor(slot)
	s, err := Resolve(ctx, m.transport, acct.Credentials(), slot, m.now())
	if err != nil {
		return model.Session{}, err
	}
	m.sessions[slot] = s
	if m.bus != nil {
		m.bus.Log("info", "session resolved", map[string]any{"account": string(slot), "method": string(s.Method)})
	}
	s.Role = role
	return s, nil
}

// Do runs fn with the role's session. When fn reports that the session was
// refused, the session is refreshed and fn runs exactly once more. Other
// errors are returned untouched.
func (m *Manager) Do(ctx context.Context, role model.AccountRole, fn func(model.Session) error) error {
	s, err := m.Session(ctx, role)
	if err != nil {
		return err
	}
	err = fn(s)
	if !errors.Is(err, provider.ErrUnauthorized) {
		return err
	}
	if m.bus != nil {
		m.bus.Log("warn", "session refused, refreshing", map[string]any{"role": string(role)})
	}
	s, rerr := m.Refresh(ctx, role)
	if rerr != nil {
		return errors.Join(err, rerr)
	}
	return fn(s)
}
