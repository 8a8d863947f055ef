package auth

import (
	"crypto/subtle"
	"strings"

	"survey-sync/internal/common/config"
	"survey-sync/internal/common/errors"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Verifier checks the static local credential pairs from configuration.
type Verifier struct {
	user  config.Credential
	admin config.Credential
}

func NewVerifier(cfg config.AuthConfig) *Verifier {
	return &Verifier{user: cfg.User, admin: cfg.Admin}
}

// Verify returns the role that matches username and password. Admin is
// checked first so a shared username resolves to the stronger role.
func (v *Verifier) Verify(username, password string) (Role, error) {
	username = strings.TrimSpace(username)
	if matches(v.admin, username, password) {
		return RoleAdmin, nil
	}
	if matches(v.user, username, password) {
		return RoleUser, nil
	}
	return "", errors.NewInvalidCredentialsError()
}

func matches(c config.Credential, username, password string) bool {
	if c.Username == "" || c.Password == "" {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(c.Username), []byte(username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(c.Password), []byte(password)) == 1
	return userOK && passOK
}
