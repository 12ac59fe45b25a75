package collection

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/mnuddindev/koishi/pkg/utils"
	"gorm.io/gorm"
)

// Column data types. A row cell always travels as a string; the type decides
// how the string must parse.
const (
	TypeText   = "text"
	TypeNumber = "number"
	TypeDate   = "date"
	TypeTime   = "time"
	TypeBool   = "bool"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Column defines one column of a collection's schema. Column names double as
// the keys every row cell and action rule reference, so they are kept short
// and unique within a model.
type Column struct {
	ColumnName string `json:"column_name" validate:"required,max=20"`
	DataType   string `json:"data_type" validate:"required,oneof=text number date time bool"`
	Unit       string `json:"unit" validate:"omitempty,max=5"`
}

// CollectionModel is the ordered column schema of one collection.
type CollectionModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ParentID  uuid.UUID `gorm:"type:uuid;not null;index" json:"parent"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Value []Column `gorm:"serializer:json" json:"value"`
}

func (m *CollectionModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

var columnValidator = validator.New()

// ValidateColumns checks a proposed schema: at least one column, each valid
// on its own, names unique within the model.
func ValidateColumns(columns []Column) error {
	if len(columns) == 0 {
		return utils.NewError(utils.ErrBadRequest.Code, "A collection model needs at least one column")
	}
	seen := map[string]bool{}
	for _, col := range columns {
		if err := columnValidator.Struct(col); err != nil {
			return utils.NewError(utils.ErrBadRequest.Code, fmt.Sprintf("Invalid column %q", col.ColumnName), err.Error())
		}
		if seen[col.ColumnName] {
			return utils.NewError(utils.ErrBadRequest.Code, fmt.Sprintf("Duplicate column %q", col.ColumnName))
		}
		seen[col.ColumnName] = true
	}
	return nil
}

// GetModel loads the schema of a collection.
func GetModel(ctx context.Context, db *gorm.DB, parentID uuid.UUID) (*CollectionModel, error) {
	m := &CollectionModel{}
	if err := db.WithContext(ctx).First(m, "parent_id = ?", parentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.NewError(utils.ErrNotFound.Code, "Collection model not found.")
		}
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get collection model")
	}
	return m, nil
}

// ReplaceColumns swaps the whole schema for a new one.
func ReplaceColumns(ctx context.Context, db *gorm.DB, parentID uuid.UUID, columns []Column) (*CollectionModel, error) {
	if err := ValidateColumns(columns); err != nil {
		return nil, err
	}
	m, err := GetModel(ctx, db, parentID)
	if err != nil {
		return nil, err
	}
	m.Value = columns
	if err := db.WithContext(ctx).Model(m).Select("value").Updates(m).Error; err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to update collection model")
	}
	return m, nil
}

// Column returns the definition of the named column, or nil.
func (m *CollectionModel) Column(name string) *Column {
	for i := range m.Value {
		if m.Value[i].ColumnName == name {
			return &m.Value[i]
		}
	}
	return nil
}

// ValidateRow checks an incoming row against the schema: every cell must
// reference a known column and parse as the column's data type, and every
// column must be populated exactly once. Returns human-readable messages,
// empty when the row is valid.
func (m *CollectionModel) ValidateRow(row Row) []string {
	var messages []string
	remaining := map[string]bool{}
	for _, col := range m.Value {
		remaining[col.ColumnName] = true
	}

	for _, cell := range row {
		col := m.Column(cell.Column)
		if col == nil {
			messages = append(messages, fmt.Sprintf("%s is not allowed", cell.Column))
			continue
		}
		if !remaining[col.ColumnName] {
			messages = append(messages, fmt.Sprintf("%s is set more than once", cell.Column))
			continue
		}
		if err := checkCellType(col.DataType, cell.Data); err != nil {
			messages = append(messages, fmt.Sprintf("%s has to be %q", cell.Column, col.DataType))
			continue
		}
		delete(remaining, col.ColumnName)
	}

	for _, col := range m.Value {
		if remaining[col.ColumnName] {
			messages = append(messages, fmt.Sprintf("%s is missing or not valid", col.ColumnName))
		}
	}
	return messages
}

func checkCellType(dataType, data string) error {
	switch dataType {
	case TypeText:
		return nil
	case TypeNumber:
		_, err := strconv.ParseFloat(data, 64)
		return err
	case TypeDate:
		_, err := time.Parse(dateLayout, data)
		return err
	case TypeTime:
		_, err := time.Parse(timeLayout, data)
		return err
	case TypeBool:
		_, err := strconv.ParseBool(data)
		return err
	default:
		return fmt.Errorf("unsupported data type %q", dataType)
	}
}
