// Package auth turns configured credentials into marketplace sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"goodwill_sniper/internal/model"
	"goodwill_sniper/internal/provider"
)

// Error means every configured credential of an account was rejected, or
// none was configured. It is fatal at startup.
type Error struct {
	Role     model.AccountRole
	Attempts []error
}

func (e *Error) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("%s account: no usable credentials configured", e.Role)
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, err := range e.Attempts {
		parts = append(parts, err.Error())
	}
	return fmt.Sprintf("%s account: all credentials rejected (%s)", e.Role, strings.Join(parts, "; "))
}

func (e *Error) Unwrap() []error { return e.Attempts }

// Resolve tries the credentials by kind precedence (access token, encrypted
// password, plaintext password) and returns the first session the marketplace
// accepts. A rejected credential falls through to the next one; any other
// failure is returned as is, without trying the rest.
func Resolve(ctx context.Context, t provider.AuthTransport, creds []model.Credential, role model.AccountRole, now time.Time) (model.Session, error) {
	ordered := append([]model.Credential(nil), creds...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Kind.Rank() < ordered[j].Kind.Rank() })

	var rejected []error
	for _, c := range ordered {
		if !c.Usable() {
			continue
		}
		session, err := attempt(ctx, t, c)
		if err == nil {
			session.Role = role
			session.Method = c.Kind
			session.ObtainedAt = now
			return session, nil
		}
		if !errors.Is(err, provider.ErrRejected) {
			return model.Session{}, fmt.Errorf("%s account via %s: %w", role, c.Kind, err)
		}
		rejected = append(rejected, fmt.Errorf("%s: %w", c.Kind, err))
	}
	return model.Session{}, &Error{Role: role, Attempts: rejected}
}

func attempt(ctx context.Context, t provider.AuthTransport, c model.Credential) (model.Session, error) {
	switch c.Kind {
	case model.CredentialAccessToken:
		token := strings.TrimSpace(c.Token)
		if err := t.ValidateToken(ctx, token); err != nil {
			return model.Session{}, err
		}
		return model.Session{Token: token}, nil
	case model.CredentialEncryptedPassword:
		return t.Login(ctx, c.Username, c.Password)
	case model.CredentialPlaintextPassword:
		return t.Login(ctx, Obfuscate(c.Username), Obfuscate(c.Password))
	default:
		return model.Session{}, fmt.Errorf("unknown credential kind %q", c.Kind)
	}
}
