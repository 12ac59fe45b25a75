package user

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/mnuddindev/koishi/pkg/utils"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestNewUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u, err := NewUser(ctx, nil, db, "Alice", "alice@example.com", "secret123")
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	if u.Status != StatusPending {
		t.Errorf("status = %q, want pending", u.Status)
	}
	if u.VerificationCode == "" {
		t.Error("expected a verification code")
	}
	if err := utils.ComparePasswords(u.Password, "secret123"); err != nil {
		t.Error("stored password does not match")
	}

	if _, err := NewUser(ctx, nil, db, "Other Alice", "alice@example.com", "hunter22"); err == nil {
		t.Fatal("duplicate email must be rejected")
	}
}

func TestActivateUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u, err := NewUser(ctx, nil, db, "Alice", "alice@example.com", "secret123")
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}

	if _, err := ActivateUser(ctx, nil, db, u.Email, "wrong"); err == nil {
		t.Fatal("wrong code must be rejected")
	}
	if _, err := ActivateUser(ctx, nil, db, u.Email, ""); err == nil {
		t.Fatal("empty code must be rejected")
	}

	activated, err := ActivateUser(ctx, nil, db, u.Email, u.VerificationCode)
	if err != nil {
		t.Fatalf("ActivateUser: %v", err)
	}
	if activated.Status != StatusVerified {
		t.Errorf("status = %q, want verified", activated.Status)
	}

	// idempotent once verified
	if _, err := ActivateUser(ctx, nil, db, u.Email, "anything"); err != nil {
		t.Fatalf("re-activation should be a no-op: %v", err)
	}
}

func TestCollectionRefs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u, err := NewUser(ctx, nil, db, "Alice", "alice@example.com", "secret123")
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}

	id := uuid.New()
	if err := AddCollectionRef(ctx, nil, db, u, id); err != nil {
		t.Fatalf("AddCollectionRef: %v", err)
	}
	if err := AddCollectionRef(ctx, nil, db, u, id); err != nil {
		t.Fatalf("duplicate AddCollectionRef: %v", err)
	}

	got, err := GetUserBy(ctx, nil, db, "id", u.ID)
	if err != nil {
		t.Fatalf("GetUserBy: %v", err)
	}
	if len(got.Collections) != 1 || got.Collections[0] != id {
		t.Fatalf("collections = %v", got.Collections)
	}

	if err := RemoveCollectionRef(ctx, nil, db, got, id); err != nil {
		t.Fatalf("RemoveCollectionRef: %v", err)
	}
	got, err = GetUserBy(ctx, nil, db, "id", u.ID)
	if err != nil {
		t.Fatalf("GetUserBy: %v", err)
	}
	if len(got.Collections) != 0 {
		t.Fatalf("collections = %v after removal", got.Collections)
	}
}
