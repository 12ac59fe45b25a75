// Package user holds the account record and its lifecycle: registration,
// email verification and the per-user list of accessible collections.
package user

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	storage "github.com/mnuddindev/koishi/pkg/redis"
	"github.com/mnuddindev/koishi/pkg/utils"
	"gorm.io/gorm"
)

// Account states. A pending account has registered but not yet confirmed
// its email address.
const (
	StatusPending  = "pending"
	StatusVerified = "verified"
)

const cacheTTL = 10 * time.Minute

// User is one registered account. Collections is the user's accessible
// list: the ids of collections they own or have accepted a share on. It is
// maintained by the handlers, so a revoked share can leave a stale id
// behind; reads always re-check real access.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Name             string      `gorm:"size:30;not null" json:"name" validate:"required,min=2,max=30"`
	Email            string      `gorm:"size:100;uniqueIndex;not null" json:"email" validate:"required,email"`
	Password         string      `gorm:"size:255;not null" json:"-"`
	Status           string      `gorm:"size:10;default:pending" json:"status"`
	VerificationCode string      `gorm:"size:64" json:"-"`
	IsAdmin          bool        `gorm:"default:false" json:"is_admin"`
	Collections      []uuid.UUID `gorm:"serializer:json" json:"collections"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// NewUser registers an account with a hashed password and a pending
// verification code. A taken email is a conflict, not an internal error.
func NewUser(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, name, email, password string) (*User, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to check existing user")
	}
	if count > 0 {
		return nil, utils.NewError(utils.ErrBadRequest.Code, "Email already registered")
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to hash password")
	}
	code, err := utils.GenerateVerificationCode()
	if err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to generate verification code")
	}

	u := &User{
		Name:             name,
		Email:            email,
		Password:         hashed,
		Status:           StatusPending,
		VerificationCode: code,
		Collections:      []uuid.UUID{},
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to create user")
	}
	return u, nil
}

// GetUserBy loads one user by an indexed column ("id" or "email"),
// read-through cached.
func GetUserBy(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, field string, value interface{}) (*User, error) {
	if u := cachedUser(ctx, rclient, field, value); u != nil {
		return u, nil
	}

	u := &User{}
	if err := db.WithContext(ctx).First(u, field+" = ?", value).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.NewError(utils.ErrNotFound.Code, "User not found")
		}
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get user")
	}
	cacheUser(ctx, rclient, u)
	return u, nil
}

// ActivateUser flips a pending account to verified when the code matches.
func ActivateUser(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, email, code string) (*User, error) {
	u, err := GetUserBy(ctx, rclient, db, "email", email)
	if err != nil {
		return nil, err
	}
	if u.Status == StatusVerified {
		return u, nil
	}
	if code == "" || u.VerificationCode != code {
		return nil, utils.NewError(utils.ErrBadRequest.Code, "Invalid verification code")
	}

	err = db.WithContext(ctx).Model(u).Updates(map[string]interface{}{
		"status":            StatusVerified,
		"verification_code": "",
	}).Error
	if err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to activate user")
	}
	u.Status = StatusVerified
	u.VerificationCode = ""
	invalidateUser(ctx, rclient, u)
	return u, nil
}

// AddCollectionRef appends a collection id to the user's accessible list,
// ignoring duplicates.
func AddCollectionRef(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, u *User, id uuid.UUID) error {
	for _, existing := range u.Collections {
		if existing == id {
			return nil
		}
	}
	u.Collections = append(u.Collections, id)
	return saveCollections(ctx, rclient, db, u)
}

// RemoveCollectionRef drops a collection id from the user's accessible
// list, if present.
func RemoveCollectionRef(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, u *User, id uuid.UUID) error {
	kept := make([]uuid.UUID, 0, len(u.Collections))
	for _, existing := range u.Collections {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(u.Collections) {
		return nil
	}
	u.Collections = kept
	return saveCollections(ctx, rclient, db, u)
}

// RemoveCollectionRefAll drops a collection id from every user that holds
// it. Used when a collection is deleted.
func RemoveCollectionRefAll(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, id uuid.UUID) error {
	var users []User
	if err := db.WithContext(ctx).Find(&users).Error; err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to list users")
	}
	for i := range users {
		if err := RemoveCollectionRef(ctx, rclient, db, &users[i], id); err != nil {
			return err
		}
	}
	return nil
}

func saveCollections(ctx context.Context, rclient *storage.RedisClient, db *gorm.DB, u *User) error {
	// struct-based update so the json serializer runs on the id list
	if err := db.WithContext(ctx).Model(u).Select("collections").Updates(u).Error; err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to update user collections")
	}
	invalidateUser(ctx, rclient, u)
	return nil
}

func cacheKey(field string, value interface{}) string {
	return "user:" + field + ":" + toString(value)
}

func toString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case uuid.UUID:
		return v.String()
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// cacheRecord mirrors User without the json:"-" redactions, so a cache hit
// keeps the password hash and verification code intact.
type cacheRecord struct {
	User
	Password         string `json:"password"`
	VerificationCode string `json:"verification_code"`
}

func cachedUser(ctx context.Context, rclient *storage.RedisClient, field string, value interface{}) *User {
	if rclient == nil {
		return nil
	}
	cached, err := rclient.Get(ctx, cacheKey(field, value)).Result()
	if err != nil || cached == "" {
		return nil
	}
	rec := &cacheRecord{}
	if err := json.Unmarshal([]byte(cached), rec); err != nil {
		return nil
	}
	u := rec.User
	u.Password = rec.Password
	u.VerificationCode = rec.VerificationCode
	return &u
}

func cacheUser(ctx context.Context, rclient *storage.RedisClient, u *User) {
	if rclient == nil {
		return
	}
	rec := cacheRecord{User: *u, Password: u.Password, VerificationCode: u.VerificationCode}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	rclient.Set(ctx, cacheKey("id", u.ID), data, cacheTTL)
	rclient.Set(ctx, cacheKey("email", u.Email), data, cacheTTL)
}

func invalidateUser(ctx context.Context, rclient *storage.RedisClient, u *User) {
	if rclient == nil {
		return
	}
	rclient.Del(ctx, cacheKey("id", u.ID), cacheKey("email", u.Email))
}
