package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/database"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/users"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T, path string) *Store {
	t.Helper()
	db, err := database.Connect(path)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	store, err := NewStore(db, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestStoreRoundTripAndClearAll(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, filepath.Join(t.TempDir(), "client.db"))

	type preferences struct {
		PageSize int `json:"pageSize"`
	}
	if err := store.Set(ctx, "preferences", preferences{PageSize: 5}); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Set(ctx, "preferences", preferences{PageSize: 10}); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	var loaded preferences
	found, err := store.Get(ctx, "preferences", &loaded)
	if err != nil || !found {
		t.Fatalf("expected stored value, found=%v err=%v", found, err)
	}
	if loaded.PageSize != 10 {
		t.Fatalf("expected overwritten value, got %d", loaded.PageSize)
	}

	var stored storageEntry
	if err := store.db.Where("storage_key = ?", KeyPrefix+"preferences").Take(&stored).Error; err != nil {
		t.Fatalf("expected prefixed key in table: %v", err)
	}

	if err := store.db.Create(&storageEntry{Key: "foreign_key", Value: "{}"}).Error; err != nil {
		t.Fatalf("failed to insert foreign key: %v", err)
	}
	if err := store.Set(ctx, "auth", AuthData{Token: "t"}); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.ClearAll(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	var count int64
	store.db.Model(&storageEntry{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected only the unprefixed key to survive, %d rows left", count)
	}
	if found, _ := store.Get(ctx, "preferences", &loaded); found {
		t.Fatalf("expected prefixed keys to be cleared")
	}
}

func TestStoreRejectsEmptyKey(t *testing.T) {
	store := newTestStore(t, filepath.Join(t.TempDir(), "client.db"))
	if err := store.Set(context.Background(), " ", 1); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestSessionSaveRestoreAndInvalidate(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "client.db")
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	first, err := New(ctx, Config{Store: newTestStore(t, path), Clock: clock})
	if err != nil {
		t.Fatalf("new session failed: %v", err)
	}
	if first.IsAuthenticated() {
		t.Fatalf("fresh session must not be authenticated")
	}

	profile := users.Profile{ID: "user-1", Name: "Admin", Email: "admin@example.com", Role: users.RoleAdmin}
	if err := first.Save(ctx, "token-abc", 1800, profile); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !first.IsAuthenticated() || first.Token() != "token-abc" {
		t.Fatalf("expected authenticated session with token")
	}

	restored, err := New(ctx, Config{Store: newTestStore(t, path), Clock: clock})
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	user, ok := restored.CurrentUser()
	if !ok || user.Email != "admin@example.com" {
		t.Fatalf("expected restored profile, got %+v (ok=%v)", user, ok)
	}
	if !restored.IsAuthenticated() {
		t.Fatalf("expected restored session to be authenticated")
	}

	restored.Invalidate()
	if restored.IsAuthenticated() || restored.Token() != "" {
		t.Fatalf("expected invalidated session")
	}
	if _, ok := restored.CurrentUser(); ok {
		t.Fatalf("expected no current user after invalidation")
	}

	reopened, err := New(ctx, Config{Store: newTestStore(t, path), Clock: clock})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if reopened.IsAuthenticated() {
		t.Fatalf("invalidation must be persisted")
	}
}

func TestSessionExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	session, err := New(ctx, Config{
		Store: newTestStore(t, filepath.Join(t.TempDir(), "client.db")),
		Clock: func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new session failed: %v", err)
	}
	if err := session.Save(ctx, "token", 60, users.Profile{ID: "user-1"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if !session.IsAuthenticated() {
		t.Fatalf("expected authenticated before expiry")
	}
	now = now.Add(2 * time.Minute)
	if session.IsAuthenticated() {
		t.Fatalf("expected expired token to be rejected")
	}
	if session.Token() != "token" {
		t.Fatalf("expired token is still readable until invalidated")
	}
}

func TestSessionLogoutPurge(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, filepath.Join(t.TempDir(), "client.db"))
	session, err := New(ctx, Config{Store: store})
	if err != nil {
		t.Fatalf("new session failed: %v", err)
	}
	if err := session.Save(ctx, "token", 0, users.Profile{ID: "user-1"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.Set(ctx, "preferences", map[string]int{"pageSize": 5}); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := session.Logout(ctx, true); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	var preferences map[string]int
	if found, _ := store.Get(ctx, "preferences", &preferences); found {
		t.Fatalf("expected purge to clear every dashboard key")
	}
	if session.IsAuthenticated() {
		t.Fatalf("expected signed out session")
	}
}

func TestSessionSaveRequiresToken(t *testing.T) {
	session, err := New(context.Background(), Config{Store: newTestStore(t, filepath.Join(t.TempDir(), "client.db"))})
	if err != nil {
		t.Fatalf("new session failed: %v", err)
	}
	if err := session.Save(context.Background(), "  ", 60, users.Profile{}); err == nil {
		t.Fatalf("expected error for empty token")
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing store")
	}
}
