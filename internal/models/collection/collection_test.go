package collection

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
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
	err = db.AutoMigrate(
		&Collection{},
		&CollectionModel{},
		&CollectionData{},
		&CollectionActions{},
		&CollectionSettings{},
		&ActionToken{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testColumns() []Column {
	return []Column{
		{ColumnName: "plant", DataType: TypeText},
		{ColumnName: "temperature", DataType: TypeNumber, Unit: "C"},
	}
}

func mustCreate(t *testing.T, db *gorm.DB, title string, ownerID uuid.UUID) *Collection {
	t.Helper()
	c, err := NewCollection(context.Background(), nil, db, title, ownerID, testColumns())
	if err != nil {
		t.Fatalf("NewCollection: %v", err)
	}
	return c
}

func TestCanViewCanEdit(t *testing.T) {
	owner := Identity{ID: uuid.New(), Email: "owner@example.com"}
	viewer := Identity{ID: uuid.New(), Email: "viewer@example.com"}
	editor := Identity{ID: uuid.New(), Email: "editor@example.com"}
	stranger := Identity{ID: uuid.New(), Email: "stranger@example.com"}

	c := &Collection{
		OwnerID: owner.ID,
		SharedTo: []Share{
			{UserEmail: viewer.Email, Role: RoleView},
			{UserEmail: editor.Email, Role: RoleEdit},
			{UserEmail: "weird@example.com", Role: "admin"},
		},
	}

	cases := []struct {
		name     string
		caller   Identity
		wantView bool
		wantEdit bool
	}{
		{"owner", owner, true, true},
		{"view share", viewer, true, false},
		{"edit share", editor, true, true},
		{"no relation", stranger, false, false},
		{"anonymous", Identity{}, false, false},
		{"unknown role", Identity{ID: uuid.New(), Email: "weird@example.com"}, true, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.CanView(tc.caller); got != tc.wantView {
				t.Errorf("CanView = %v, want %v", got, tc.wantView)
			}
			if got := c.CanEdit(tc.caller); got != tc.wantEdit {
				t.Errorf("CanEdit = %v, want %v", got, tc.wantEdit)
			}
		})
	}

	// edit implies view for every caller with any grant
	for _, caller := range []Identity{owner, viewer, editor} {
		if c.CanEdit(caller) && !c.CanView(caller) {
			t.Errorf("caller %s can edit but not view", caller.Email)
		}
	}

	c.IsPublic = true
	if !c.CanView(stranger) || !c.CanView(Identity{}) {
		t.Error("public collection should be viewable by anyone")
	}
	if c.CanEdit(stranger) {
		t.Error("public visibility must not grant edit")
	}
}

func TestGetCollectionAccess(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	owner := Identity{ID: uuid.New(), Email: "owner@example.com"}
	guest := Identity{ID: uuid.New(), Email: "guest@example.com"}

	c := mustCreate(t, db, "Garden", owner.ID)

	// no relation: absence and denial look the same
	if _, err := GetCollection(ctx, nil, db, c.ID, guest, false); err == nil {
		t.Fatal("expected NotFound for unrelated caller")
	}
	if _, err := GetCollection(ctx, nil, db, uuid.New(), owner, false); err == nil {
		t.Fatal("expected NotFound for missing collection")
	}

	// view share: read works, edit is Forbidden
	if _, err := UpsertShare(ctx, nil, db, c, Share{UserEmail: guest.Email, Role: RoleView}); err != nil {
		t.Fatalf("UpsertShare: %v", err)
	}
	if _, err := GetCollection(ctx, nil, db, c.ID, guest, false); err != nil {
		t.Fatalf("viewer should read the collection: %v", err)
	}
	if _, err := GetCollectionForEdit(ctx, nil, db, c.ID, guest); err == nil {
		t.Fatal("viewer must not get edit access")
	}

	// last write wins: upgrading to edit replaces the entry
	updated, err := UpsertShare(ctx, nil, db, c, Share{UserEmail: guest.Email, Role: RoleEdit})
	if err != nil {
		t.Fatalf("UpsertShare: %v", err)
	}
	if !updated {
		t.Fatal("second share for the same email should report an update")
	}
	if len(c.SharedTo) != 1 {
		t.Fatalf("expected 1 share entry, got %d", len(c.SharedTo))
	}
	if _, err := GetCollectionForEdit(ctx, nil, db, c.ID, guest); err != nil {
		t.Fatalf("editor should get edit access: %v", err)
	}

	// revoke: back to NotFound
	if err := RemoveShare(ctx, nil, db, c, guest.Email); err != nil {
		t.Fatalf("RemoveShare: %v", err)
	}
	if _, err := GetCollection(ctx, nil, db, c.ID, guest, false); err == nil {
		t.Fatal("revoked caller should be denied")
	}
}

func TestSharesPersistAsJSON(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := Identity{ID: uuid.New(), Email: "owner@example.com"}

	c := mustCreate(t, db, "Garden", owner.ID)
	if _, err := UpsertShare(ctx, nil, db, c, Share{UserEmail: "guest@example.com", Role: RoleView}); err != nil {
		t.Fatalf("UpsertShare: %v", err)
	}

	// reload into a fresh struct so we see exactly what was written
	got := &Collection{}
	if err := db.First(got, "id = ?", c.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(got.SharedTo) != 1 || got.SharedTo[0].UserEmail != "guest@example.com" || got.SharedTo[0].Role != RoleView {
		t.Fatalf("persisted shares = %+v", got.SharedTo)
	}

	// clearing writes the empty list, not a null
	if err := ClearShares(ctx, nil, db, c); err != nil {
		t.Fatalf("ClearShares: %v", err)
	}
	got = &Collection{}
	if err := db.First(got, "id = ?", c.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(got.SharedTo) != 0 {
		t.Fatalf("persisted shares after clear = %+v", got.SharedTo)
	}
}

func TestNewCollectionCreatesChildren(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := Identity{ID: uuid.New(), Email: "owner@example.com"}

	c := mustCreate(t, db, "Garden", owner.ID)

	got, err := GetCollection(ctx, nil, db, c.ID, owner, true)
	if err != nil {
		t.Fatalf("GetCollection: %v", err)
	}
	if got.Model == nil || len(got.Model.Value) != 2 {
		t.Fatal("expected model with 2 columns")
	}
	if got.Data == nil || len(got.Data.Value) != 0 {
		t.Fatal("expected empty dataset")
	}
	if got.Actions == nil || len(got.Actions.Rules) != 0 {
		t.Fatal("expected empty ruleset")
	}
	if len(got.Settings) != 1 || got.Settings[0].Name != "default" {
		t.Fatal("expected one default settings preset")
	}
}

func TestDeleteCascade(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := Identity{ID: uuid.New(), Email: "owner@example.com"}

	c := mustCreate(t, db, "Garden", owner.ID)
	if _, err := IssueToken(ctx, db, CategoryDelete, "confirm", owner.ID, c.ID); err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	if err := DeleteCascade(ctx, nil, db, c.ID); err != nil {
		t.Fatalf("DeleteCascade: %v", err)
	}

	for name, model := range map[string]interface{}{
		"collection": &Collection{},
		"model":      &CollectionModel{},
		"data":       &CollectionData{},
		"actions":    &CollectionActions{},
		"settings":   &CollectionSettings{},
		"tokens":     &ActionToken{},
	} {
		var count int64
		if err := db.Model(model).Count(&count).Error; err != nil {
			t.Fatalf("count %s: %v", name, err)
		}
		if count != 0 {
			t.Errorf("%s rows left after cascade: %d", name, count)
		}
	}
}

func TestListPublicCollections(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	owner := Identity{ID: uuid.New(), Email: "owner@example.com"}

	pub := mustCreate(t, db, "Public garden", owner.ID)
	mustCreate(t, db, "Private garden", owner.ID)
	if err := SetVisibility(ctx, nil, db, pub.ID, true); err != nil {
		t.Fatalf("SetVisibility: %v", err)
	}

	cols, err := ListPublicCollections(ctx, db)
	if err != nil {
		t.Fatalf("ListPublicCollections: %v", err)
	}
	if len(cols) != 1 || cols[0].ID != pub.ID {
		t.Fatalf("expected only the public collection, got %d", len(cols))
	}
	if cols[0].SharedTo != nil {
		t.Error("public listing must hide the share list")
	}
}
