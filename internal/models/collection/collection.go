// Package collection holds the collection aggregate: the collection record
// itself, its schema (model), its rows (data), its rendering presets
// (settings), its alert rules (actions) and the confirmation tokens that
// gate irreversible operations on it.
package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	storage "github.com/mnuddindev/koishi/pkg/redis"
	"github.com/mnuddindev/koishi/pkg/utils"
	"gorm.io/gorm"
)

// Share roles. Anything else is treated as no grant at all.
const (
	RoleView = "view"
	RoleEdit = "edit"
)

const cacheTTL = 10 * time.Minute

// Identity is the resolved caller, as produced by the auth middleware. The
// zero value is an anonymous caller.
type Identity struct {
	ID      uuid.UUID
	Email   string
	IsAdmin bool
}

// Share grants one external user access to a collection, identified by
// email. A duplicate email is resolved last-write-wins.
type Share struct {
	UserEmail string `json:"user_email" validate:"required,email"`
	Role      string `json:"role" validate:"required,oneof=view edit"`
}

// Collection is a user-owned container of a schema, a dataset, rendering
// presets and alert rules. The owner never changes after creation, and the
// Model/Data/Actions children exist for the collection's whole lifetime.
type Collection struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Title    string    `gorm:"size:30;not null" json:"title" validate:"required,max=30"`
	OwnerID  uuid.UUID `gorm:"type:uuid;not null;index" json:"owner"`
	IsPublic bool      `gorm:"default:false" json:"is_public"`
	SharedTo []Share   `gorm:"serializer:json" json:"shared_to"`

	Model    *CollectionModel     `gorm:"foreignKey:ParentID" json:"model,omitempty"`
	Data     *CollectionData      `gorm:"foreignKey:ParentID" json:"data,omitempty"`
	Actions  *CollectionActions   `gorm:"foreignKey:ParentID" json:"actions,omitempty"`
	Settings []CollectionSettings `gorm:"foreignKey:ParentID" json:"settings,omitempty"`
}

func (c *Collection) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ShareRole returns the role granted to the given email, or "" when the
// collection is not shared to it.
func (c *Collection) ShareRole(email string) string {
	if email == "" {
		return ""
	}
	for _, s := range c.SharedTo {
		if s.UserEmail == email {
			return s.Role
		}
	}
	return ""
}

// CanView reports whether the caller may read the collection: it is public,
// the caller owns it, or the collection is shared to the caller's email with
// any role.
func (c *Collection) CanView(caller Identity) bool {
	if c.IsPublic {
		return true
	}
	if caller.ID != uuid.Nil && caller.ID == c.OwnerID {
		return true
	}
	return c.ShareRole(caller.Email) != ""
}

// CanEdit reports whether the caller may mutate the collection's
// sub-resources: the caller owns it, or holds a share with exactly the edit
// role. An unrecognized role value never grants edit.
func (c *Collection) CanEdit(caller Identity) bool {
	if caller.ID != uuid.Nil && caller.ID == c.OwnerID {
		return true
	}
	return c.ShareRole(caller.Email) == RoleEdit
}

// NewCollection creates a collection together with its empty children (data,
// actions, one default settings preset) and its schema, all in one
// transaction. A collection is never observable without its children.
func NewCollection(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, title string, ownerID uuid.UUID, columns []Column) (*Collection, error) {
	if err := ValidateColumns(columns); err != nil {
		return nil, err
	}

	c := &Collection{
		ID:       uuid.New(),
		Title:    title,
		OwnerID:  ownerID,
		SharedTo: []Share{},
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		if err := tx.Create(&CollectionModel{ParentID: c.ID, Value: columns}).Error; err != nil {
			return err
		}
		if err := tx.Create(&CollectionData{ParentID: c.ID, Value: []Row{}}).Error; err != nil {
			return err
		}
		if err := tx.Create(&CollectionActions{ParentID: c.ID, Rules: []Rule{}}).Error; err != nil {
			return err
		}
		return tx.Create(&CollectionSettings{ParentID: c.ID, Name: "default"}).Error
	})
	if err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to create collection")
	}

	return c, nil
}

// GetCollection resolves a collection for the caller, enforcing visibility.
// Absence and lack of any view relation are deliberately indistinguishable:
// both come back as NotFound, so a private collection's existence never
// leaks. With populate set, the Model, Data, Actions and Settings children
// are attached.
func GetCollection(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, id uuid.UUID, caller Identity, populate bool) (*Collection, error) {
	var c *Collection

	if !populate {
		c = cachedCollection(ctx, rclient, id)
	}

	if c == nil {
		c = &Collection{}
		query := db.WithContext(ctx)
		if populate {
			query = query.Preload("Model").Preload("Data").Preload("Actions").Preload("Settings")
		}
		if err := query.First(c, "id = ?", id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, utils.NewError(utils.ErrNotFound.Code, "Collection not found.")
			}
			return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get collection")
		}
		if !populate {
			cacheCollection(ctx, rclient, c)
		}
	}

	if !c.CanView(caller) {
		return nil, utils.NewError(utils.ErrNotFound.Code, "Collection not found.")
	}
	return c, nil
}

// GetCollectionForEdit resolves a collection and requires edit rights.
// Callers with a view-only share get Forbidden; callers with no relation at
// all get the same NotFound as a missing collection.
func GetCollectionForEdit(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, id uuid.UUID, caller Identity) (*Collection, error) {
	c, err := GetCollection(ctx, rclient, db, id, caller, false)
	if err != nil {
		return nil, err
	}
	if !c.CanEdit(caller) {
		return nil, utils.NewError(utils.ErrForbidden.Code, "You are not authorized to edit the collection.")
	}
	return c, nil
}

// GetOwnedCollection resolves a collection owned by the caller. Share and
// visibility management is owner-only, so anything else is NotFound.
func GetOwnedCollection(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, id uuid.UUID, caller Identity) (*Collection, error) {
	c, err := GetCollection(ctx, rclient, db, id, caller, false)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != caller.ID {
		return nil, utils.NewError(utils.ErrNotFound.Code, "Collection not found.")
	}
	return c, nil
}

// GetPublicCollection returns a public collection with children populated,
// hiding the share list.
func GetPublicCollection(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Collection, error) {
	c := &Collection{}
	err := db.WithContext(ctx).
		Preload("Model").Preload("Data").Preload("Actions").Preload("Settings").
		First(c, "id = ? AND is_public = ?", id, true).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.NewError(utils.ErrNotFound.Code, "Collection not found.")
		}
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get collection")
	}
	c.SharedTo = nil
	return c, nil
}

// ListPublicCollections returns all public collections, share lists hidden.
func ListPublicCollections(ctx context.Context, db *gorm.DB) ([]Collection, error) {
	var cs []Collection
	if err := db.WithContext(ctx).Where("is_public = ?", true).Find(&cs).Error; err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to list collections")
	}
	for i := range cs {
		cs[i].SharedTo = nil
	}
	return cs, nil
}

// ListCollectionsByIDs returns the collections from ids that the caller can
// actually view (their accessible list is maintained manually and may lag
// behind revoked shares).
func ListCollectionsByIDs(ctx context.Context, db *gorm.DB, ids []uuid.UUID, caller Identity) ([]Collection, error) {
	if len(ids) == 0 {
		return []Collection{}, nil
	}
	var cs []Collection
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&cs).Error; err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to list collections")
	}
	visible := make([]Collection, 0, len(cs))
	for _, c := range cs {
		if c.CanView(caller) {
			visible = append(visible, c)
		}
	}
	return visible, nil
}

// UpdateTitle renames a collection.
func UpdateTitle(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, id uuid.UUID, title string) (*Collection, error) {
	c := &Collection{}
	if err := db.WithContext(ctx).First(c, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.NewError(utils.ErrNotFound.Code, "Collection not found.")
		}
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get collection")
	}
	c.Title = title
	if err := db.WithContext(ctx).Model(c).Update("title", title).Error; err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to update collection")
	}
	invalidateCollection(ctx, rclient, id)
	return c, nil
}

// SetVisibility flips the public flag on a collection.
func SetVisibility(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, id uuid.UUID, public bool) error {
	res := db.WithContext(ctx).Model(&Collection{}).Where("id = ?", id).Update("is_public", public)
	if res.Error != nil {
		return utils.WrapError(res.Error, utils.ErrInternalServerError.Code, "Failed to update collection")
	}
	if res.RowsAffected == 0 {
		return utils.NewError(utils.ErrNotFound.Code, "Collection not found.")
	}
	invalidateCollection(ctx, rclient, id)
	return nil
}

// UpsertShare adds or replaces the share entry for share.UserEmail and
// reports whether an existing entry was replaced (last write wins).
func UpsertShare(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, c *Collection, share Share) (bool, error) {
	updated := false
	for i := range c.SharedTo {
		if c.SharedTo[i].UserEmail == share.UserEmail {
			c.SharedTo[i] = share
			updated = true
		}
	}
	if !updated {
		c.SharedTo = append(c.SharedTo, share)
	}
	if err := saveShares(ctx, rclient, db, c); err != nil {
		return false, err
	}
	return updated, nil
}

// RemoveShare drops the share entry for the given email, if present.
func RemoveShare(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, c *Collection, email string) error {
	shares := make([]Share, 0, len(c.SharedTo))
	for _, s := range c.SharedTo {
		if s.UserEmail != email {
			shares = append(shares, s)
		}
	}
	c.SharedTo = shares
	return saveShares(ctx, rclient, db, c)
}

// ClearShares drops every share entry on the collection.
func ClearShares(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, c *Collection) error {
	c.SharedTo = []Share{}
	return saveShares(ctx, rclient, db, c)
}

func saveShares(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, c *Collection) error {
	// struct-based update so the json serializer runs on the share list
	if err := db.WithContext(ctx).Model(c).Select("shared_to").Updates(c).Error; err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to update collection shares")
	}
	invalidateCollection(ctx, rclient, c.ID)
	return nil
}

// DeleteCascade removes a collection, its Model, Data, Actions and Settings
// children and any open action tokens targeting it, in one transaction. The
// guarded two-phase confirmation happens before this is called; by the time
// we are here the delete is final.
func DeleteCascade(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, id uuid.UUID) error {
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("parent_id = ?", id).Delete(&CollectionModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("parent_id = ?", id).Delete(&CollectionData{}).Error; err != nil {
			return err
		}
		if err := tx.Where("parent_id = ?", id).Delete(&CollectionActions{}).Error; err != nil {
			return err
		}
		if err := tx.Where("parent_id = ?", id).Delete(&CollectionSettings{}).Error; err != nil {
			return err
		}
		if err := tx.Where("target_id = ?", id).Delete(&ActionToken{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Collection{}, "id = ?", id).Error
	})
	if err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to delete collection")
	}
	invalidateCollection(ctx, rclient, id)
	return nil
}

func cacheKey(id uuid.UUID) string {
	return "collection:" + id.String()
}

func cachedCollection(ctx context.Context, rclient *storage.RedisClient, id uuid.UUID) *Collection {
	if rclient == nil {
		return nil
	}
	cached, err := rclient.Get(ctx, cacheKey(id)).Result()
	if err != nil || cached == "" {
		return nil
	}
	c := &Collection{}
	if err := json.Unmarshal([]byte(cached), c); err != nil {
		return nil
	}
	return c
}

func cacheCollection(ctx context.Context, rclient *storage.RedisClient, c *Collection) {
	if rclient == nil {
		return
	}
	data, err := json.Marshal(c)
	if err != nil {
		return
	}
	rclient.Set(ctx, cacheKey(c.ID), data, cacheTTL)
}

func invalidateCollection(ctx context.Context, rclient *storage.RedisClient, id uuid.UUID) {
	if rclient == nil {
		return
	}
	rclient.Del(ctx, cacheKey(id))
}

// OwnerString renders the owner for display, marking the caller's own
// collections.
func OwnerString(name, email, callerEmail string) string {
	if email == callerEmail {
		return fmt.Sprintf("%s (you)", name)
	}
	return fmt.Sprintf("%s (%s)", name, email)
}
