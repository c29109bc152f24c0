package proxy

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Credentials checks a SOCKS5 username/password pair.
type Credentials interface {
	Valid(username, password string) bool
}

// StaticCredentials maps usernames to plain-text passwords.
type StaticCredentials map[string]string

func (c StaticCredentials) Valid(username, password string) bool {
	want, ok := c[username]
	match := subtle.ConstantTimeCompare([]byte(want), []byte(password)) == 1
	return ok && match
}

// HashedCredentials maps usernames to bcrypt password hashes.
type HashedCredentials map[string][]byte

func (c HashedCredentials) Valid(username, password string) bool {
	hash, ok := c[username]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// ParseCredentials builds Credentials from "user:password" entries. The
// passwords must be all plain text or all bcrypt hashes.
func ParseCredentials(entries []string) (Credentials, error) {
	if len(entries) == 0 {
		return nil, errors.New("no users")
	}

	static := StaticCredentials{}
	hashed := HashedCredentials{}
	for _, e := range entries {
		user, pass, ok := strings.Cut(e, ":")
		if !ok || user == "" {
			return nil, fmt.Errorf("user %q: expected user:password", e)
		}
		if _, dup := static[user]; dup {
			return nil, fmt.Errorf("user %q: duplicate", user)
		}
		if _, dup := hashed[user]; dup {
			return nil, fmt.Errorf("user %q: duplicate", user)
		}

		if _, err := bcrypt.Cost([]byte(pass)); err == nil {
			hashed[user] = []byte(pass)
		} else {
			static[user] = pass
		}
	}

	switch {
	case len(hashed) == 0:
		return static, nil
	case len(static) == 0:
		return hashed, nil
	}
	return nil, errors.New("mix of plain and bcrypt passwords")
}
