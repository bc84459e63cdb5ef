package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/memoist-io/idserver/internal/password"
	"github.com/memoist-io/idserver/internal/store"
	"github.com/memoist-io/idserver/internal/token"
	"github.com/memoist-io/idserver/types"
)

func newTestService(t *testing.T) *UserService {
	t.Helper()
	codec, err := token.NewCodec("test-secret", "HS256", 30*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return NewUserService(store.NewMemoryUserRepository(), password.NewHasher(), codec, nil, nil)
}

func register(t *testing.T, svc *UserService, email, username, pw string) types.User {
	t.Helper()
	user, err := svc.Register(context.Background(), email, username, nil, pw)
	if err != nil {
		t.Fatalf("Register(%s): %v", username, err)
	}
	return user
}

func TestRegister(t *testing.T) {
	svc := newTestService(t)

	user := register(t, svc, "a@x.com", "alice", "pw12345")
	if !user.IsActive {
		t.Errorf("new user is not active")
	}
	if user.LastLogin != nil {
		t.Errorf("new user has a last-login timestamp")
	}
	if user.PasswordHash == "pw12345" {
		t.Fatalf("password stored in plaintext")
	}
	if user.CreatedAt.IsZero() || !user.UpdatedAt.Equal(user.CreatedAt) {
		t.Errorf("timestamps not stamped at creation: %v / %v", user.CreatedAt, user.UpdatedAt)
	}

	if _, err := svc.Register(context.Background(), "", "bob", nil, "pw"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty email: err = %v, want ErrInvalidInput", err)
	}
}

func TestRegisterConflicts(t *testing.T) {
	svc := newTestService(t)
	register(t, svc, "a@x.com", "alice", "pw12345")

	if _, err := svc.Register(context.Background(), "a@x.com", "alice2", nil, "pw"); !errors.Is(err, store.ErrConflict) {
		t.Errorf("duplicate email: err = %v, want ErrConflict", err)
	}
	if _, err := svc.Register(context.Background(), "a2@x.com", "alice", nil, "pw"); !errors.Is(err, store.ErrConflict) {
		t.Errorf("duplicate username: err = %v, want ErrConflict", err)
	}
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService(t)
	created := register(t, svc, "a@x.com", "alice", "pw12345")

	user, err := svc.Authenticate(context.Background(), "alice", "pw12345")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.ID != created.ID {
		t.Errorf("authenticated id = %v, want %v", user.ID, created.ID)
	}
	if user.LastLogin == nil {
		t.Errorf("last-login not stamped on login")
	}

	if _, err := svc.Authenticate(context.Background(), "alice", "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("wrong password: err = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.Authenticate(context.Background(), "nobody", "pw12345"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("unknown username: err = %v, want ErrUnauthorized", err)
	}
}

func TestSessionPairAndRefresh(t *testing.T) {
	svc := newTestService(t)
	user := register(t, svc, "a@x.com", "alice", "pw12345")

	pair, err := svc.IssueSessionPair(user)
	if err != nil {
		t.Fatalf("IssueSessionPair: %v", err)
	}
	if pair.TokenType != "bearer" {
		t.Errorf("token_type = %q, want bearer", pair.TokenType)
	}

	fresh, err := svc.RefreshSession(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshSession: %v", err)
	}
	if fresh.AccessToken == "" || fresh.RefreshToken == "" {
		t.Errorf("refresh returned an empty pair")
	}

	// The previous refresh token is not invalidated by rotation.
	if _, err := svc.RefreshSession(context.Background(), pair.RefreshToken); err != nil {
		t.Errorf("old refresh token rejected after rotation: %v", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	svc := newTestService(t)
	user := register(t, svc, "a@x.com", "alice", "pw12345")

	pair, err := svc.IssueSessionPair(user)
	if err != nil {
		t.Fatalf("IssueSessionPair: %v", err)
	}

	if _, err := svc.RefreshSession(context.Background(), pair.AccessToken); !errors.Is(err, ErrNotRefreshToken) {
		t.Errorf("refresh with access token: err = %v, want ErrNotRefreshToken", err)
	}
	if _, err := svc.RefreshSession(context.Background(), "garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("refresh with garbage: err = %v, want ErrUnauthorized", err)
	}
}

func TestRefreshRejectsInactiveAndDeleted(t *testing.T) {
	svc := newTestService(t)
	user := register(t, svc, "a@x.com", "alice", "pw12345")

	pair, err := svc.IssueSessionPair(user)
	if err != nil {
		t.Fatalf("IssueSessionPair: %v", err)
	}

	inactive := false
	if _, err := svc.Update(context.Background(), user.ID.String(), types.UserUpdate{IsActive: &inactive}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := svc.RefreshSession(context.Background(), pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("refresh for inactive account: err = %v, want ErrUnauthorized", err)
	}

	if err := svc.Delete(context.Background(), user.ID.String()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.RefreshSession(context.Background(), pair.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("refresh for deleted account: err = %v, want ErrUnauthorized", err)
	}
}

func TestAuthenticateToken(t *testing.T) {
	svc := newTestService(t)
	user := register(t, svc, "a@x.com", "alice", "pw12345")

	pair, err := svc.IssueSessionPair(user)
	if err != nil {
		t.Fatalf("IssueSessionPair: %v", err)
	}

	resolved, err := svc.AuthenticateToken(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("AuthenticateToken: %v", err)
	}
	if resolved.ID != user.ID {
		t.Errorf("resolved id = %v, want %v", resolved.ID, user.ID)
	}

	if _, err := svc.AuthenticateToken(context.Background(), "not-a-token"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("garbage token: err = %v, want ErrUnauthorized", err)
	}

	if err := svc.Delete(context.Background(), user.ID.String()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.AuthenticateToken(context.Background(), pair.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("token for deleted account: err = %v, want ErrUnauthorized", err)
	}
}

func TestGetRejectsMalformedID(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.Get(context.Background(), "not-a-uuid"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("malformed id: err = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.Get(context.Background(), "eae96b30-8c6f-46c5-a7f2-421bbd4bfd4d"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown id: err = %v, want ErrNotFound", err)
	}
}

func TestListPagination(t *testing.T) {
	svc := newTestService(t)

	// Deterministic creation times, one second apart.
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	usernames := []string{"u1", "u2", "u3", "u4", "u5"}
	for _, name := range usernames {
		register(t, svc, name+"@x.com", name, "pw12345")
	}

	users, total, err := svc.List(context.Background(), nil, 0, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(users) != 2 {
		t.Fatalf("page size = %d, want 2", len(users))
	}
	if users[0].Username != "u5" || users[1].Username != "u4" {
		t.Errorf("order = %s, %s; want newest first (u5, u4)", users[0].Username, users[1].Username)
	}

	users, total, err = svc.List(context.Background(), nil, 4, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 5 || len(users) != 1 {
		t.Errorf("skip=4: got %d users, total %d; want 1 user, total 5", len(users), total)
	}

	if _, _, err := svc.List(context.Background(), nil, -1, 2); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("negative skip: err = %v, want ErrInvalidInput", err)
	}
}

func TestListActiveFilter(t *testing.T) {
	svc := newTestService(t)

	active := register(t, svc, "a@x.com", "alice", "pw12345")
	dormant := register(t, svc, "b@x.com", "bob", "pw12345")

	inactive := false
	if _, err := svc.Update(context.Background(), dormant.ID.String(), types.UserUpdate{IsActive: &inactive}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	filter := false
	users, total, err := svc.List(context.Background(), &filter, 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(users) != 1 {
		t.Fatalf("inactive filter: got %d users, total %d; want 1, 1", len(users), total)
	}
	if users[0].ID != dormant.ID {
		t.Errorf("filtered user = %v, want %v", users[0].ID, dormant.ID)
	}
	if users[0].ID == active.ID {
		t.Errorf("active user leaked into inactive filter")
	}
}

func TestUpdate(t *testing.T) {
	svc := newTestService(t)
	user := register(t, svc, "a@x.com", "alice", "pw12345")

	name := "Alice Liddell"
	updated, err := svc.Update(context.Background(), user.ID.String(), types.UserUpdate{FullName: &name})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.FullName == nil || *updated.FullName != name {
		t.Errorf("full name not applied")
	}
	if updated.Email != "a@x.com" || updated.Username != "alice" {
		t.Errorf("unrelated fields changed: %s / %s", updated.Email, updated.Username)
	}
	if !updated.UpdatedAt.After(user.UpdatedAt) && !updated.UpdatedAt.Equal(user.UpdatedAt) {
		t.Errorf("updated-at went backwards")
	}
}

func TestUpdateConflictLeavesAccountUnmodified(t *testing.T) {
	svc := newTestService(t)
	alice := register(t, svc, "a@x.com", "alice", "pw12345")
	register(t, svc, "b@x.com", "bob", "pw12345")

	taken := "b@x.com"
	if _, err := svc.Update(context.Background(), alice.ID.String(), types.UserUpdate{Email: &taken}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("conflicting email update: err = %v, want ErrConflict", err)
	}

	reloaded, err := svc.Get(context.Background(), alice.ID.String())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if reloaded.Email != "a@x.com" {
		t.Errorf("account modified by failed update: email = %s", reloaded.Email)
	}
	if !reloaded.UpdatedAt.Equal(alice.UpdatedAt) {
		t.Errorf("updated-at refreshed by failed update")
	}
}

func TestDelete(t *testing.T) {
	svc := newTestService(t)
	user := register(t, svc, "a@x.com", "alice", "pw12345")

	if err := svc.Delete(context.Background(), user.ID.String()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Delete(context.Background(), user.ID.String()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}
	if err := svc.Delete(context.Background(), "not-a-uuid"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("malformed id: err = %v, want ErrInvalidInput", err)
	}
}

func TestStats(t *testing.T) {
	svc := newTestService(t)
	register(t, svc, "a@x.com", "alice", "pw12345")
	bob := register(t, svc, "b@x.com", "bob", "pw12345")
	register(t, svc, "c@x.com", "carol", "pw12345")

	inactive := false
	if _, err := svc.Update(context.Background(), bob.ID.String(), types.UserUpdate{IsActive: &inactive}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalUsers != 3 || stats.ActiveUsers != 2 || stats.InactiveUsers != 1 {
		t.Errorf("stats = %+v, want total 3, active 2, inactive 1", stats)
	}
}
