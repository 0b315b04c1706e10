// Package authstore implements the dashboard's signup/login/profile
// surface: an in-memory user table keyed by username, argon2id
// password hashing, and ULID session tokens. It has no dependency on
// the pipeline, analyzer, or ban ledger; the router wires it in
// alongside them, not through them.
package authstore

import (
	"crypto/rand"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/oklog/ulid/v2"
)

// Errors returned by Store methods. The router maps each to its wire
// status code: ErrUserExists to 409, everything else auth-related to
// 401.
var (
	ErrUserExists         = errors.New("authstore: user exists")
	ErrInvalidCredentials = errors.New("authstore: invalid credentials")
	ErrUnknownToken       = errors.New("authstore: unknown or missing token")
)

// Profile is the public view of a user, returned from GET
// /api/auth/profile. It never carries the password hash.
type Profile struct {
	Username string
	Email    string
	Role     string
}

// user is the stored record. passwordHash is an argon2id-encoded
// string, never the raw password.
type user struct {
	username     string
	email        string
	role         string
	passwordHash string
}

// Store is the process-wide, in-memory user and session table. It is
// lost on restart, consistent with the Non-goal on cross-restart
// persistence.
type Store struct {
	mu       sync.RWMutex
	users    map[string]*user
	sessions map[string]string // token -> username

	entropy io.Reader
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:    make(map[string]*user),
		sessions: make(map[string]string),
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
}

// Signup creates a user with a default role of "user". It returns
// ErrUserExists if the username is already taken.
func (s *Store) Signup(username, password, email string) error {
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return ErrUserExists
	}
	s.users[username] = &user{
		username:     username,
		email:        email,
		role:         "user",
		passwordHash: hash,
	}
	return nil
}

// Login verifies username/password and, on success, mints a fresh
// session token bound to that username for the process's lifetime.
func (s *Store) Login(username, password string) (token string, err error) {
	s.mu.RLock()
	u, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		return "", ErrInvalidCredentials
	}

	match, err := argon2id.ComparePasswordAndHash(password, u.passwordHash)
	if err != nil {
		return "", err
	}
	if !match {
		return "", ErrInvalidCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy)
	token = id.String()
	s.sessions[token] = username
	return token, nil
}

// Profile resolves a bearer token to the bound user's profile. Callers
// pass the token with the "Bearer " prefix already stripped.
func (s *Store) Profile(token string) (Profile, error) {
	if token == "" {
		return Profile{}, ErrUnknownToken
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	username, ok := s.sessions[token]
	if !ok {
		return Profile{}, ErrUnknownToken
	}
	u, ok := s.users[username]
	if !ok {
		return Profile{}, ErrUnknownToken
	}
	return Profile{Username: u.username, Email: u.email, Role: u.role}, nil
}
