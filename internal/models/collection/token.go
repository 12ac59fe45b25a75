package collection

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mnuddindev/koishi/pkg/utils"
	"gorm.io/gorm"
)

// Token categories. Delete tokens arm a pending collection deletion, share
// tokens are invites waiting for the invited user to accept or decline.
const (
	CategoryDelete = "delete"
	CategoryShare  = "share"
)

// TokenTTL bounds how long an unredeemed token stays valid.
const TokenTTL = 24 * time.Hour

// ActionToken is a single-use confirmation for a destructive or consent
// gated operation. The token id is the opaque value handed to the client;
// redeeming it requires the same user, target and category it was minted
// for.
type ActionToken struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"token"`
	Category  string    `gorm:"size:10;not null;index" json:"category"`
	Purpose   string    `gorm:"size:100" json:"purpose"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"-"`
	TargetID  uuid.UUID `gorm:"type:uuid;not null;index" json:"target"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
}

func (t *ActionToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.ExpiresAt.IsZero() {
		t.ExpiresAt = time.Now().Add(TokenTTL)
	}
	return nil
}

// IssueToken mints a fresh token bound to the given user and target.
func IssueToken(ctx context.Context, db *gorm.DB, category, purpose string, userID, targetID uuid.UUID) (*ActionToken, error) {
	t := &ActionToken{
		Category: category,
		Purpose:  purpose,
		UserID:   userID,
		TargetID: targetID,
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to issue action token")
	}
	return t, nil
}

// RedeemToken consumes a token. The lookup and the delete are one
// conditional statement, so a token can be redeemed at most once even under
// concurrent confirmation requests. A token presented by the wrong user, for
// the wrong target or category, or past its expiry is indistinguishable from
// a token that never existed.
func RedeemToken(ctx context.Context, db *gorm.DB, tokenID, userID, targetID uuid.UUID, category string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND user_id = ? AND target_id = ? AND category = ? AND expires_at > ?",
			tokenID, userID, targetID, category, time.Now()).
		Delete(&ActionToken{})
	if res.Error != nil {
		return utils.WrapError(res.Error, utils.ErrInternalServerError.Code, "Failed to redeem action token")
	}
	if res.RowsAffected == 0 {
		return utils.NewError(utils.ErrNotFound.Code, "No valid token found to approve this action.")
	}
	return nil
}

// DeclineToken discards a token held by the given user without acting on it.
func DeclineToken(ctx context.Context, db *gorm.DB, tokenID, userID uuid.UUID) error {
	res := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", tokenID, userID).
		Delete(&ActionToken{})
	if res.Error != nil {
		return utils.WrapError(res.Error, utils.ErrInternalServerError.Code, "Failed to decline action token")
	}
	if res.RowsAffected == 0 {
		return utils.NewError(utils.ErrNotFound.Code, "No valid token found to approve this action.")
	}
	return nil
}

// ListShareInvites returns the pending share invites addressed to a user.
func ListShareInvites(ctx context.Context, db *gorm.DB, userID uuid.UUID) ([]ActionToken, error) {
	var tokens []ActionToken
	err := db.WithContext(ctx).
		Where("user_id = ? AND category = ? AND expires_at > ?", userID, CategoryShare, time.Now()).
		Order("created_at").
		Find(&tokens).Error
	if err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to list share invites")
	}
	return tokens, nil
}

// GetShareInvite loads one pending invite addressed to the given user.
func GetShareInvite(ctx context.Context, db *gorm.DB, tokenID, userID uuid.UUID) (*ActionToken, error) {
	t := &ActionToken{}
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ? AND category = ? AND expires_at > ?", tokenID, userID, CategoryShare, time.Now()).
		First(t).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.NewError(utils.ErrNotFound.Code, "No valid token found to approve this action.")
		}
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to look up share invite")
	}
	return t, nil
}

// FindShareToken looks up the open invite for a user on a collection, if
// any. Re-sharing with a different role reuses the open invite instead of
// stacking a second one.
func FindShareToken(ctx context.Context, db *gorm.DB, userID, targetID uuid.UUID) (*ActionToken, error) {
	t := &ActionToken{}
	err := db.WithContext(ctx).
		Where("user_id = ? AND target_id = ? AND category = ?", userID, targetID, CategoryShare).
		First(t).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to look up share invite")
	}
	return t, nil
}

// UpdateShareTokenPurpose rewrites the purpose text of an open invite and
// renews its expiry.
func UpdateShareTokenPurpose(ctx context.Context, db *gorm.DB, tokenID uuid.UUID, purpose string) error {
	err := db.WithContext(ctx).Model(&ActionToken{}).
		Where("id = ?", tokenID).
		Updates(map[string]interface{}{
			"purpose":    purpose,
			"expires_at": time.Now().Add(TokenTTL),
		}).Error
	if err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to update share invite")
	}
	return nil
}

// SweepExpiredTokens removes every token past its expiry and reports how
// many were dropped.
func SweepExpiredTokens(ctx context.Context, db *gorm.DB) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).
		Delete(&ActionToken{})
	if res.Error != nil {
		return 0, utils.WrapError(res.Error, utils.ErrInternalServerError.Code, "Failed to sweep expired tokens")
	}
	return res.RowsAffected, nil
}
