package store

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/me/gatehouse/internal/password"
	"github.com/me/gatehouse/pkg/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testCSVStore(t *testing.T) *CSVStore {
	t.Helper()
	return NewCSVStore(filepath.Join(t.TempDir(), "users.csv"), quietLogger())
}

func TestCSVStore_MissingFile(t *testing.T) {
	st := testCSVStore(t)
	ctx := context.Background()

	_, err := st.GetUser(ctx, "admin")
	if !errors.Is(err, model.ErrStoreUnavailable) {
		t.Fatalf("GetUser error = %v, want ErrStoreUnavailable", err)
	}
	if _, err := st.ListUsers(ctx); !errors.Is(err, model.ErrStoreUnavailable) {
		t.Fatalf("ListUsers error = %v, want ErrStoreUnavailable", err)
	}
}

func TestCSVStore_CreateAndGet(t *testing.T) {
	st := testCSVStore(t)
	ctx := context.Background()

	u := &model.User{
		Username:     "alice",
		PasswordHash: password.Hash("pw"),
		Role:         model.RoleUser,
		Avatar:       "uploads/alice.png",
	}
	if err := st.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := st.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got == nil {
		t.Fatal("expected user to be found")
	}
	if got.PasswordHash != u.PasswordHash || got.Role != model.RoleUser || got.Avatar != u.Avatar {
		t.Errorf("GetUser = %+v, want %+v", got, u)
	}

	missing, err := st.GetUser(ctx, "bob")
	if err != nil {
		t.Fatalf("GetUser(bob): %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown user, got %+v", missing)
	}
}

func TestCSVStore_CreateDuplicate(t *testing.T) {
	st := testCSVStore(t)
	ctx := context.Background()

	u := &model.User{Username: "alice", PasswordHash: "x", Role: model.RoleUser}
	if err := st.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	err := st.CreateUser(ctx, u)
	if !errors.Is(err, model.ErrUserExists) {
		t.Fatalf("second CreateUser error = %v, want ErrUserExists", err)
	}

	users, _ := st.ListUsers(ctx)
	if len(users) != 1 {
		t.Errorf("ListUsers len = %d, want 1", len(users))
	}
}

func TestCSVStore_FileLayout(t *testing.T) {
	st := testCSVStore(t)
	ctx := context.Background()

	st.CreateUser(ctx, &model.User{Username: "admin", PasswordHash: "h1", Role: model.RoleAdmin, Avatar: model.DefaultAvatar})
	st.CreateUser(ctx, &model.User{Username: "user1", PasswordHash: "h2", Role: model.RoleUser, Avatar: model.DefaultAvatar})

	data, err := os.ReadFile(st.Path())
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	want := "users,password,role,avatar\n" +
		"admin,h1,admin,uploads/default.png\n" +
		"user1,h2,user,uploads/default.png\n"
	if string(data) != want {
		t.Errorf("file content =\n%s\nwant\n%s", data, want)
	}
}

func TestParseCSV_PaddedHeaderAndMissingAvatar(t *testing.T) {
	input := " users , password ,role\nadmin,abc,admin\n,skipped,user\n"
	users, err := parseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("parseCSV: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("len = %d, want 1", len(users))
	}
	if users[0].Avatar != model.DefaultAvatar {
		t.Errorf("Avatar = %q, want default", users[0].Avatar)
	}
}

func TestParseCSV_MissingColumn(t *testing.T) {
	_, err := parseCSV(strings.NewReader("name,password\nx,y\n"))
	if err == nil {
		t.Fatal("expected error for missing users column")
	}
}

func TestCSVStore_ConcurrentCreate(t *testing.T) {
	st := testCSVStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st.CreateUser(ctx, &model.User{
				Username:     "u" + string(rune('a'+i)),
				PasswordHash: "h",
				Role:         model.RoleUser,
			})
		}(i)
	}
	wg.Wait()

	users, err := st.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 20 {
		t.Errorf("ListUsers len = %d, want 20", len(users))
	}
}

func TestSeed(t *testing.T) {
	st := testCSVStore(t)
	ctx := context.Background()
	hasher, _ := password.NewHasher(password.SchemeSHA256, 0)

	created, err := Seed(ctx, st, hasher, DefaultSeed)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created = %v, want 2 users", created)
	}

	admin, _ := st.GetUser(ctx, "admin")
	if admin == nil || !admin.IsAdmin() {
		t.Fatalf("expected admin user, got %+v", admin)
	}
	if !password.Verify(admin.PasswordHash, "1234") {
		t.Error("admin password should verify")
	}

	// Seeding twice is idempotent.
	created, err = Seed(ctx, st, hasher, DefaultSeed)
	if err != nil {
		t.Fatalf("second Seed: %v", err)
	}
	if len(created) != 0 {
		t.Errorf("second Seed created %v, want none", created)
	}
}
