package model

import (
	"strings"
	"time"
)

type AccountRole string

const (
	// RoleCommand is the read-mostly account: favorites, notes, item details.
	RoleCommand AccountRole = "command"
	// RoleBid is the only account allowed to place bids.
	RoleBid AccountRole = "bid"
)

type CredentialKind string

const (
	CredentialAccessToken       CredentialKind = "access_token"
	CredentialEncryptedPassword CredentialKind = "encrypted_password"
	CredentialPlaintextPassword CredentialKind = "plaintext_password"
)

// Rank orders credential kinds by resolution precedence, lower first.
func (k CredentialKind) Rank() int {
	switch k {
	case CredentialAccessToken:
		return 0
	case CredentialEncryptedPassword:
		return 1
	case CredentialPlaintextPassword:
		return 2
	default:
		return 3
	}
}

type Credential struct {
	Kind     CredentialKind
	Token    string
	Username string
	Password string
}

func (c Credential) Usable() bool {
	switch c.Kind {
	case CredentialAccessToken:
		return strings.TrimSpace(c.Token) != ""
	case CredentialEncryptedPassword, CredentialPlaintextPassword:
		return strings.TrimSpace(c.Username) != "" && strings.TrimSpace(c.Password) != ""
	default:
		return false
	}
}

type Session struct {
	Role       AccountRole      `json:"role"`
	Token      string           `json:"-"`
	Method     CredentialKind   `json:"method"`
	Cookies    []CookieJarEntry `json:"-"`
	ObtainedAt time.Time        `json:"obtainedAt"`
}

func (s Session) Valid() bool {
	return strings.TrimSpace(s.Token) != ""
}
