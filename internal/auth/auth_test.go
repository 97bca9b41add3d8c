package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/taktline/takt/internal/clock"
)

func seededRoster(t *testing.T) *Roster {
	t.Helper()
	r := NewRoster()
	hash, err := HashPassword("linepass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	r.Put(User{ID: "u-1", Username: "ana", Credential: "BADGE-1", PasswordHash: hash, Role: RoleOperator, Active: true})
	r.Put(User{ID: "u-2", Username: "luis", Credential: "BADGE-2", PasswordHash: hash, Role: RoleSupervisor, Active: true})
	r.Put(User{ID: "u-3", Username: "old", Credential: "BADGE-3", PasswordHash: hash, Role: RoleSupervisor, Active: false})
	return r
}

func TestResolve(t *testing.T) {
	svc := NewService(seededRoster(t), ServiceOptions{Secret: "s"})

	id, err := svc.Resolve("BADGE-2")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id.Role != RoleSupervisor || id.Username != "luis" {
		t.Fatalf("unexpected identity: %+v", id)
	}

	_, err = svc.Resolve("BADGE-404")
	var ae *AuthzError
	if !errors.As(err, &ae) || ae.Reason != DenyCredentialNotFound {
		t.Fatalf("want credential_not_found, got %v", err)
	}

	_, err = svc.Resolve("BADGE-3")
	if !errors.As(err, &ae) || ae.Reason != DenyInactive {
		t.Fatalf("want inactive, got %v", err)
	}
}

func TestRequireSupervisor(t *testing.T) {
	svc := NewService(seededRoster(t), ServiceOptions{Secret: "s"})

	op, _ := svc.Resolve("BADGE-1")
	var ae *AuthzError
	if err := svc.RequireSupervisor(op); !errors.As(err, &ae) || ae.Reason != DenyNotAuthorized {
		t.Fatalf("operator should be denied, got %v", err)
	}
	sup, _ := svc.Resolve("BADGE-2")
	if err := svc.RequireSupervisor(sup); err != nil {
		t.Fatalf("supervisor denied: %v", err)
	}
}

func TestLoginAndVerify(t *testing.T) {
	fake := clock.NewFake(time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC))
	svc := NewService(seededRoster(t), ServiceOptions{Secret: "s", TokenTTL: time.Hour, Clock: fake})

	tok, err := svc.Login("ana", "linepass")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	sess, err := svc.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sess.UserID != "u-1" || sess.Role != RoleOperator {
		t.Fatalf("unexpected session: %+v", sess)
	}

	if _, err := svc.Login("ana", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want invalid credentials, got %v", err)
	}

	fake.Advance(2 * time.Hour)
	if _, err := svc.Verify(tok); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want expiry rejection, got %v", err)
	}
}
