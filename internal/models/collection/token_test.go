package collection

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRedeemTokenSingleUse(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	userID, targetID := uuid.New(), uuid.New()

	tok, err := IssueToken(ctx, db, CategoryDelete, "confirm", userID, targetID)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	if err := RedeemToken(ctx, db, tok.ID, userID, targetID, CategoryDelete); err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	if err := RedeemToken(ctx, db, tok.ID, userID, targetID, CategoryDelete); err == nil {
		t.Fatal("second redeem must fail")
	}
}

func TestRedeemTokenScoping(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	userID, targetID := uuid.New(), uuid.New()

	tok, err := IssueToken(ctx, db, CategoryDelete, "confirm", userID, targetID)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	if err := RedeemToken(ctx, db, tok.ID, uuid.New(), targetID, CategoryDelete); err == nil {
		t.Fatal("wrong user must not redeem")
	}
	if err := RedeemToken(ctx, db, tok.ID, userID, uuid.New(), CategoryDelete); err == nil {
		t.Fatal("wrong target must not redeem")
	}
	if err := RedeemToken(ctx, db, tok.ID, userID, targetID, CategoryShare); err == nil {
		t.Fatal("wrong category must not redeem")
	}

	// the failed attempts must not have consumed it
	if err := RedeemToken(ctx, db, tok.ID, userID, targetID, CategoryDelete); err != nil {
		t.Fatalf("valid redeem after failed attempts: %v", err)
	}
}

func TestRedeemTokenExpiry(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	userID, targetID := uuid.New(), uuid.New()

	tok := &ActionToken{
		Category:  CategoryDelete,
		Purpose:   "confirm",
		UserID:    userID,
		TargetID:  targetID,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := db.Create(tok).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := RedeemToken(ctx, db, tok.ID, userID, targetID, CategoryDelete); err == nil {
		t.Fatal("expired token must not redeem")
	}
}

func TestListShareInvites(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	if _, err := IssueToken(ctx, db, CategoryShare, "invite a", alice, uuid.New()); err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := IssueToken(ctx, db, CategoryShare, "invite b", bob, uuid.New()); err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	// delete confirmations never show up as invites
	if _, err := IssueToken(ctx, db, CategoryDelete, "confirm", alice, uuid.New()); err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	invites, err := ListShareInvites(ctx, db, alice)
	if err != nil {
		t.Fatalf("ListShareInvites: %v", err)
	}
	if len(invites) != 1 || invites[0].Purpose != "invite a" {
		t.Fatalf("expected alice's single invite, got %d", len(invites))
	}
}

func TestDeclineToken(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	userID, targetID := uuid.New(), uuid.New()

	tok, err := IssueToken(ctx, db, CategoryShare, "invite", userID, targetID)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	if err := DeclineToken(ctx, db, tok.ID, uuid.New()); err == nil {
		t.Fatal("someone else's token must not be declinable")
	}
	if err := DeclineToken(ctx, db, tok.ID, userID); err != nil {
		t.Fatalf("DeclineToken: %v", err)
	}
	if err := RedeemToken(ctx, db, tok.ID, userID, targetID, CategoryShare); err == nil {
		t.Fatal("declined token must be gone")
	}
}

func TestSweepExpiredTokens(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	stale := &ActionToken{
		Category:  CategoryShare,
		UserID:    uuid.New(),
		TargetID:  uuid.New(),
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	if err := db.Create(stale).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	fresh, err := IssueToken(ctx, db, CategoryShare, "invite", uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	removed, err := SweepExpiredTokens(ctx, db)
	if err != nil {
		t.Fatalf("SweepExpiredTokens: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	var count int64
	if err := db.Model(&ActionToken{}).Where("id = ?", fresh.ID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatal("fresh token must survive the sweep")
	}
}
