package collection

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mnuddindev/koishi/pkg/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CollectionSettings is one named client presentation preset for a
// collection. The payload is opaque to the server: clients store whatever
// view configuration they need and read it back verbatim. Every collection
// keeps at least one preset; NewCollection seeds "default".
type CollectionSettings struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	ParentID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"parent"`
	Name      string         `gorm:"size:30;not null" json:"name"`
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *CollectionSettings) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// ListSettings returns every preset of a collection, oldest first.
func ListSettings(ctx context.Context, db *gorm.DB, parentID uuid.UUID) ([]CollectionSettings, error) {
	var presets []CollectionSettings
	err := db.WithContext(ctx).
		Where("parent_id = ?", parentID).
		Order("created_at").
		Find(&presets).Error
	if err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to list collection settings")
	}
	return presets, nil
}

// GetSettings loads one preset, scoped to its collection.
func GetSettings(ctx context.Context, db *gorm.DB, parentID, settingsID uuid.UUID) (*CollectionSettings, error) {
	s := &CollectionSettings{}
	err := db.WithContext(ctx).First(s, "id = ? AND parent_id = ?", settingsID, parentID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.NewError(utils.ErrNotFound.Code, "Settings preset not found.")
		}
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get collection settings")
	}
	return s, nil
}

// CreateSettings adds a new preset to a collection.
func CreateSettings(ctx context.Context, db *gorm.DB, parentID uuid.UUID, name string, payload datatypes.JSON) (*CollectionSettings, error) {
	s := &CollectionSettings{
		ParentID: parentID,
		Name:     name,
		Payload:  payload,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to create settings preset")
	}
	return s, nil
}

// UpdateSettings overwrites the name and payload of a preset.
func UpdateSettings(ctx context.Context, db *gorm.DB, parentID, settingsID uuid.UUID, name string, payload datatypes.JSON) (*CollectionSettings, error) {
	s, err := GetSettings(ctx, db, parentID, settingsID)
	if err != nil {
		return nil, err
	}
	s.Name = name
	s.Payload = payload
	err = db.WithContext(ctx).Model(s).Updates(map[string]interface{}{
		"name":    s.Name,
		"payload": s.Payload,
	}).Error
	if err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to update settings preset")
	}
	return s, nil
}

// DeleteSettings removes a preset. The last remaining preset of a
// collection cannot be deleted.
func DeleteSettings(ctx context.Context, db *gorm.DB, parentID, settingsID uuid.UUID) error {
	var count int64
	if err := db.WithContext(ctx).Model(&CollectionSettings{}).Where("parent_id = ?", parentID).Count(&count).Error; err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to count settings presets")
	}
	if count <= 1 {
		return utils.NewError(utils.ErrBadRequest.Code, "Cannot delete the last settings preset of a collection.")
	}

	res := db.WithContext(ctx).
		Where("id = ? AND parent_id = ?", settingsID, parentID).
		Delete(&CollectionSettings{})
	if res.Error != nil {
		return utils.WrapError(res.Error, utils.ErrInternalServerError.Code, "Failed to delete settings preset")
	}
	if res.RowsAffected == 0 {
		return utils.NewError(utils.ErrNotFound.Code, "Settings preset not found.")
	}
	return nil
}
