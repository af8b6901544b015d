package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestService_RegisterAndLogin(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	req := RegisterRequest{
		Email:       "ada@example.com",
		Password:    "supersafe",
		DisplayName: "Ada",
	}

	ctx := context.Background()
	acct, err := svc.Register(ctx, req)
	if err != nil {
		t.Fatalf("register: unexpected error: %v", err)
	}

	if acct.Email != req.Email {
		t.Fatalf("expected email %q got %q", req.Email, acct.Email)
	}
	if acct.Role != RoleParticipant {
		t.Fatalf("register: expected default role %s got %s", RoleParticipant, acct.Role)
	}

	resp, err := svc.Login(ctx, LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		t.Fatalf("login: unexpected error: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login: expected token, got empty string")
	}
	if resp.Account.ID != acct.ID {
		t.Fatalf("login: expected account id %q got %q", acct.ID, resp.Account.ID)
	}

	tokenID, tokenRole, err := svc.VerifyToken(resp.Token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if tokenID != acct.ID {
		t.Fatalf("verify token: expected %q got %q", acct.ID, tokenID)
	}
	if tokenRole != RoleParticipant {
		t.Fatalf("verify token: expected role %s got %s", RoleParticipant, tokenRole)
	}
}

func TestService_RegisterValidation(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:       "ada@example.com",
		Password:    "short",
		DisplayName: "Ada",
	})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}

	if _, err := svc.Register(context.Background(), RegisterRequest{
		Email:       "",
		Password:    "strongpassword",
		DisplayName: "",
	}); err == nil {
		t.Fatal("expected validation error for missing fields")
	}
}

func TestService_DuplicateEmail(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	req := RegisterRequest{
		Email:       "ada@example.com",
		Password:    "strongpassword",
		DisplayName: "Ada",
	}
	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	if _, err := svc.Register(context.Background(), req); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestService_LoginInvalidCredentials(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	_, err := svc.Login(context.Background(), LoginRequest{
		Email:    "unknown@example.com",
		Password: "irrelevant",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

type fakeRepository struct {
	byEmail map[string]Account
	byID    map[string]Account
	nextID  int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		byEmail: make(map[string]Account),
		byID:    make(map[string]Account),
		nextID:  1,
	}
}

func (f *fakeRepository) Create(ctx context.Context, params CreateParams) (Account, error) {
	if _, exists := f.byEmail[strings.ToLower(params.Email)]; exists {
		return Account{}, ErrDuplicateEmail
	}

	id := fmt.Sprintf("acct-%d", f.nextID)
	f.nextID++
	role := params.Role
	if role == "" {
		role = RoleParticipant
	}

	acct := Account{
		ID:           id,
		Email:        params.Email,
		DisplayName:  params.DisplayName,
		PasswordHash: params.PasswordHash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	f.byEmail[strings.ToLower(acct.Email)] = acct
	f.byID[acct.ID] = acct

	return acct, nil
}

func (f *fakeRepository) GetByEmail(ctx context.Context, email string) (Account, error) {
	acct, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acct, nil
}

func (f *fakeRepository) GetByID(ctx context.Context, accountID string) (Account, error) {
	acct, ok := f.byID[accountID]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acct, nil
}
