package collection

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mnuddindev/koishi/pkg/utils"
	"gorm.io/gorm"
)

// Cell is one value of a row, keyed by the column name from the collection
// model. Values are string-encoded; the model's data type decides how they
// parse.
type Cell struct {
	Column string `json:"column" validate:"required,max=20"`
	Data   string `json:"data" validate:"required"`
}

// Row is an ordered sequence of cells.
type Row []Cell

// Cell returns the cell for the named column, or nil when the row does not
// populate it.
func (r Row) Cell(column string) *Cell {
	for i := range r {
		if r[i].Column == column {
			return &r[i]
		}
	}
	return nil
}

// CollectionData holds every row of one collection, in append order.
//
// Row edits and deletes address rows by position, which assumes the caller
// fetched the current ordering right before. Two concurrent writers can
// still race each other between read and save; that lost-update window is a
// documented limitation, not a guarantee.
type CollectionData struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ParentID  uuid.UUID `gorm:"type:uuid;not null;index" json:"parent"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Value []Row `gorm:"serializer:json" json:"value"`
}

func (d *CollectionData) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// Simplified flattens the rows into plain column->value maps.
func (d *CollectionData) Simplified() []map[string]string {
	simplified := make([]map[string]string, 0, len(d.Value))
	for _, row := range d.Value {
		item := map[string]string{}
		for _, cell := range row {
			item[cell.Column] = cell.Data
		}
		simplified = append(simplified, item)
	}
	return simplified
}

// GetData loads the dataset of a collection.
func GetData(ctx context.Context, db *gorm.DB, parentID uuid.UUID) (*CollectionData, error) {
	d := &CollectionData{}
	if err := db.WithContext(ctx).First(d, "parent_id = ?", parentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.NewError(utils.ErrNotFound.Code, "Collection data not found.")
		}
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get collection data")
	}
	return d, nil
}

// AppendRow validates the row against the collection model and appends it.
func AppendRow(ctx context.Context, db *gorm.DB, parentID uuid.UUID, row Row) error {
	m, err := GetModel(ctx, db, parentID)
	if err != nil {
		return err
	}
	if messages := m.ValidateRow(row); len(messages) > 0 {
		return utils.NewError(utils.ErrBadRequest.Code, "Invalid row", messages[0])
	}

	d, err := GetData(ctx, db, parentID)
	if err != nil {
		return err
	}
	d.Value = append(d.Value, row)
	if err := db.WithContext(ctx).Model(d).Select("value").Updates(d).Error; err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to append row")
	}
	return nil
}

// EditRowAt validates and replaces the row at the given position.
func EditRowAt(ctx context.Context, db *gorm.DB, parentID uuid.UUID, index int, row Row) error {
	m, err := GetModel(ctx, db, parentID)
	if err != nil {
		return err
	}
	if messages := m.ValidateRow(row); len(messages) > 0 {
		return utils.NewError(utils.ErrBadRequest.Code, "Invalid row", messages[0])
	}

	d, err := GetData(ctx, db, parentID)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(d.Value) {
		return utils.NewError(utils.ErrBadRequest.Code, "Row index out of range")
	}
	d.Value[index] = row
	if err := db.WithContext(ctx).Model(d).Select("value").Updates(d).Error; err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to edit row")
	}
	return nil
}

// DeleteRowAt removes the row at the given position.
func DeleteRowAt(ctx context.Context, db *gorm.DB, parentID uuid.UUID, index int) error {
	d, err := GetData(ctx, db, parentID)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(d.Value) {
		return utils.NewError(utils.ErrBadRequest.Code, "Row index out of range")
	}
	d.Value = append(d.Value[:index], d.Value[index+1:]...)
	if err := db.WithContext(ctx).Model(d).Select("value").Updates(d).Error; err != nil {
		return utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to delete row")
	}
	return nil
}
