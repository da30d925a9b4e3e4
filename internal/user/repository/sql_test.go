package repository

import (
	"context"
	"testing"
	"time"

	"authcore/internal/db"
	"authcore/internal/db/dbtest"
	"authcore/internal/user/domain"
)

func newTestRepo(t *testing.T) *SQLRepository {
	t.Helper()
	return NewSQLRepository(dbtest.OpenSQLite(t), db.SQLite)
}

func testUser(id, email string) *domain.User {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.User{
		ID:           id,
		Name:         "Ada",
		Email:        email,
		Phone:        "15551234567",
		PasswordHash: "$2a$04$hash",
		Is2FAEnabled: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestSQLRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	u := testUser("u1", "ada@example.com")
	if err := r.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := r.GetByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if got == nil || got.ID != "u1" || got.Name != "Ada" || got.Phone != u.Phone || !got.Is2FAEnabled {
		t.Fatalf("GetByEmail: got %+v", got)
	}
	if !got.CreatedAt.Equal(u.CreatedAt) {
		t.Errorf("CreatedAt: want %v, got %v", u.CreatedAt, got.CreatedAt)
	}

	byID, err := r.GetByID(ctx, "u1")
	if err != nil || byID == nil || byID.Email != "ada@example.com" {
		t.Fatalf("GetByID: got %+v, %v", byID, err)
	}
}

func TestSQLRepository_GetMissing(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	u, err := r.GetByID(ctx, "nope")
	if err != nil || u != nil {
		t.Fatalf("GetByID missing: want nil, nil; got %+v, %v", u, err)
	}
	u, err = r.GetByEmail(ctx, "nobody@example.com")
	if err != nil || u != nil {
		t.Fatalf("GetByEmail missing: want nil, nil; got %+v, %v", u, err)
	}
}

func TestSQLRepository_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	if err := r.Create(ctx, testUser("u1", "ada@example.com")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := r.Create(ctx, testUser("u2", "ada@example.com"))
	if err != ErrDuplicateEmail {
		t.Fatalf("second Create: want ErrDuplicateEmail, got %v", err)
	}
}

func TestSQLRepository_CreateInvalid(t *testing.T) {
	r := newTestRepo(t)
	u := testUser("u1", "")
	if err := r.Create(context.Background(), u); err == nil {
		t.Fatal("Create without email should fail")
	}
}

func TestSQLRepository_UpdatePasswordHash(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	if err := r.Create(ctx, testUser("u1", "ada@example.com")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	later := time.Now().Add(time.Hour)
	ok, err := r.UpdatePasswordHash(ctx, "u1", "$2a$04$new", later)
	if err != nil || !ok {
		t.Fatalf("UpdatePasswordHash: ok=%v err=%v", ok, err)
	}
	got, _ := r.GetByID(ctx, "u1")
	if got.PasswordHash != "$2a$04$new" {
		t.Errorf("PasswordHash: got %q", got.PasswordHash)
	}
	if got.UpdatedAt.UnixMilli() != later.UnixMilli() {
		t.Errorf("UpdatedAt not bumped: %v", got.UpdatedAt)
	}

	ok, err = r.UpdatePasswordHash(ctx, "missing", "x", later)
	if err != nil || ok {
		t.Fatalf("UpdatePasswordHash missing user: ok=%v err=%v", ok, err)
	}
}

func TestSQLRepository_SetTwoFactorEnabled(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	u := testUser("u1", "ada@example.com")
	u.Is2FAEnabled = false
	if err := r.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < 2; i++ {
		ok, err := r.SetTwoFactorEnabled(ctx, "u1", true, time.Now())
		if err != nil || !ok {
			t.Fatalf("SetTwoFactorEnabled #%d: ok=%v err=%v", i, ok, err)
		}
	}
	got, _ := r.GetByID(ctx, "u1")
	if !got.Is2FAEnabled {
		t.Error("Is2FAEnabled should be true")
	}
	if err := r.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
