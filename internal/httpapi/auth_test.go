package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"distledger/internal/domain"
	"distledger/internal/logging"
	"distledger/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	if _, exists := s.users[user.Username]; exists {
		return store.ErrDuplicateUser
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func legacyAdminStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	users := legacyAdminStore()
	manager := NewAuthManager("test-secret", time.Hour, users, logging.Discard())

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	stored, err := users.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 user, got %d", len(stored))
	}
	if !strings.HasPrefix(stored[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", stored[0].Password)
	}
	if users.updates == 0 {
		t.Fatalf("expected the upgraded hash to be written back")
	}
}

func TestTokenCarriesActor(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, legacyAdminStore(), logging.Discard())
	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: " Admin ", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.TokenType != "Bearer" || resp.Role != domain.RoleAdmin || resp.Username != "admin" {
		t.Fatalf("unexpected login response %+v", resp)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || !actor.Elevated() {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestParseTokenRejects(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, nil, logging.Discard())
	other := NewAuthManager("other-secret", time.Hour, nil, logging.Discard())

	foreign, err := other.sign("admin", domain.RoleAdmin, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	expired, err := manager.sign("admin", domain.RoleAdmin, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	badRole, err := manager.sign("admin", "cashier", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	none, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, jwtlib.MapClaims{"sub": "admin", "role": "admin"}).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	tests := map[string]string{
		"foreign secret": foreign,
		"expired":        expired,
		"unknown role":   badRole,
		"none algorithm": none,
		"garbage":        "not-a-token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := manager.ParseToken(token); err == nil {
				t.Fatalf("expected token to be rejected")
			}
		})
	}
}

func TestCreateUserStoresPasswordHash(t *testing.T) {
	users := legacyAdminStore()
	manager := NewAuthManager("test-secret", time.Hour, users, logging.Discard())

	created, err := manager.CreateUser(context.Background(), domain.CreateUserRequest{
		Username: "Route7",
		Password: "pass12345",
		Role:     domain.RoleRepresentative,
	})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if created.Username != "route7" || created.Role != domain.RoleRepresentative {
		t.Fatalf("unexpected user %+v", created)
	}
	saved := users.users["route7"]
	if saved.Password == "pass12345" || !strings.HasPrefix(saved.Password, "$2") {
		t.Fatalf("expected bcrypt hash, got %s", saved.Password)
	}

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "route7", Password: "pass12345"}); err != nil {
		t.Fatalf("login with new user failed: %v", err)
	}

	_, err = manager.CreateUser(context.Background(), domain.CreateUserRequest{Username: "route7", Password: "another123", Role: domain.RoleAdmin})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate username, got %v", err)
	}
	_, err = manager.CreateUser(context.Background(), domain.CreateUserRequest{Username: "route8", Password: "another123", Role: "cashier"})
	if !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Fatalf("expected unknown role rejected, got %v", err)
	}

	listed := manager.ListUsers(context.Background())
	if len(listed) != 2 || listed[0].Username != "admin" || listed[1].Username != "route7" {
		t.Fatalf("unexpected user list %+v", listed)
	}
}

func TestInactiveAccountCannotLogin(t *testing.T) {
	users := legacyAdminStore()
	account := users.users["admin"]
	account.Active = false
	users.users["admin"] = account

	manager := NewAuthManager("test-secret", time.Hour, users, logging.Discard())
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"}); err == nil {
		t.Fatalf("expected inactive account to be refused")
	}
}
