package authstore_test

import (
	"errors"
	"testing"

	"github.com/riskgate/riskgate/internal/authstore"
)

func TestSignupThenLogin(t *testing.T) {
	s := authstore.New()
	if err := s.Signup("alice", "hunter2", "alice@example.com"); err != nil {
		t.Fatalf("Signup: %v", err)
	}

	token, err := s.Login("alice", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty session token")
	}

	profile, err := s.Profile(token)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if profile.Username != "alice" || profile.Email != "alice@example.com" || profile.Role != "user" {
		t.Fatalf("profile = %+v", profile)
	}
}

func TestSignupDuplicateUsername(t *testing.T) {
	s := authstore.New()
	if err := s.Signup("bob", "p1", "bob@example.com"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	err := s.Signup("bob", "p2", "other@example.com")
	if !errors.Is(err, authstore.ErrUserExists) {
		t.Fatalf("err = %v, want ErrUserExists", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	s := authstore.New()
	_ = s.Signup("carol", "correct-horse", "carol@example.com")
	_, err := s.Login("carol", "wrong")
	if !errors.Is(err, authstore.ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	s := authstore.New()
	_, err := s.Login("nobody", "whatever")
	if !errors.Is(err, authstore.ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestProfileUnknownToken(t *testing.T) {
	s := authstore.New()
	_, err := s.Profile("not-a-real-token")
	if !errors.Is(err, authstore.ErrUnknownToken) {
		t.Fatalf("err = %v, want ErrUnknownToken", err)
	}
	_, err = s.Profile("")
	if !errors.Is(err, authstore.ErrUnknownToken) {
		t.Fatalf("empty token err = %v, want ErrUnknownToken", err)
	}
}
