package httpapi

import (
	"context"
	"testing"
	"time"

	"github.com/Ramivz11/aurum-gestion/internal/domain"
	"github.com/Ramivz11/aurum-gestion/internal/store/memory"
)

func newTestAuth(t *testing.T) *AuthManager {
	t.Helper()
	repo := memory.New()
	users := []domain.UserAccount{
		{Username: "admin", Password: mustHashPassword(t, "correct-horse"), Role: domain.RoleAdmin, Active: true, CreatedAt: time.Now().UTC()},
		{Username: "dormido", Password: mustHashPassword(t, "zzz-secret"), Role: domain.RoleSeller, Active: false, CreatedAt: time.Now().UTC()},
	}
	for _, u := range users {
		if err := repo.CreateUser(context.Background(), u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	return NewAuthManager("unit-test-secret-0123456789abcdef", time.Hour, repo)
}

func TestLoginIssuesParseableToken(t *testing.T) {
	auth := newTestAuth(t)

	resp, err := auth.Login(domain.LoginRequest{Username: "Admin", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %q", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	auth := newTestAuth(t)

	if _, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "wrong"}); err == nil {
		t.Fatalf("expected wrong password to fail")
	}
	if _, err := auth.Login(domain.LoginRequest{Username: "nadie", Password: "whatever"}); err == nil {
		t.Fatalf("expected unknown account to fail")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	auth := newTestAuth(t)

	if _, err := auth.Login(domain.LoginRequest{Username: "dormido", Password: "zzz-secret"}); err == nil {
		t.Fatalf("expected inactive account to fail")
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	auth := newTestAuth(t)
	other := NewAuthManager("a-completely-different-secret-key", time.Hour, nil)

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed by another secret to be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	repo := memory.New()
	if err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username: "admin", Password: mustHashPassword(t, "correct-horse"), Role: domain.RoleAdmin, Active: true, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	auth := NewAuthManager("unit-test-secret-0123456789abcdef", time.Hour, repo)

	token, err := auth.sign("admin", domain.RoleAdmin, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestCreateUserValidation(t *testing.T) {
	auth := newTestAuth(t)

	cases := []struct {
		name string
		req  domain.UserCreateRequest
	}{
		{"short username", domain.UserCreateRequest{Username: "ab", Password: "secret-123"}},
		{"short password", domain.UserCreateRequest{Username: "cajero", Password: "123"}},
		{"unknown role", domain.UserCreateRequest{Username: "cajero", Password: "secret-123", Role: "owner"}},
		{"duplicate", domain.UserCreateRequest{Username: "admin", Password: "secret-123"}},
	}
	for _, tc := range cases {
		if _, err := auth.CreateUser(tc.req); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}

	user, err := auth.CreateUser(domain.UserCreateRequest{Username: "Cajero", Password: "secret-123", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.Username != "cajero" {
		t.Fatalf("expected lowercased username, got %q", user.Username)
	}
	if user.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %q", user.Role)
	}
}

func TestBootstrapUpgradesPlaintextPasswords(t *testing.T) {
	repo := memory.New()
	if err := repo.CreateUser(context.Background(), domain.UserAccount{
		Username: "legado", Password: "plain-text-pass", Role: domain.RoleSeller, Active: true, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	auth := NewAuthManager("unit-test-secret-0123456789abcdef", time.Hour, repo)
	if _, err := auth.Login(domain.LoginRequest{Username: "legado", Password: "plain-text-pass"}); err != nil {
		t.Fatalf("expected legacy account to log in after upgrade: %v", err)
	}

	users, err := repo.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 || !isPasswordHash(users[0].Password) {
		t.Fatalf("expected stored password upgraded to a hash, got %+v", users)
	}
}

func TestCSRFTokenWindow(t *testing.T) {
	api := newTestAPI(t)

	current := api.generateCSRFToken()
	if !api.validateCSRFToken(current) {
		t.Fatalf("expected current token to validate")
	}

	prevBucket := time.Now().UTC().Truncate(time.Hour).Unix() - 3600
	if !api.validateCSRFToken(api.csrfTokenForHour(prevBucket)) {
		t.Fatalf("expected previous hour token to validate")
	}

	staleBucket := prevBucket - 3600
	if api.validateCSRFToken(api.csrfTokenForHour(staleBucket)) {
		t.Fatalf("expected two-hour-old token to be rejected")
	}
	if api.validateCSRFToken("") {
		t.Fatalf("expected empty token to be rejected")
	}
}
