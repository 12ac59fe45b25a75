package v1

import (
	"github.com/gofiber/fiber/v2"
	"github.com/mnuddindev/koishi/internal/auth"
	"github.com/mnuddindev/koishi/internal/models/collection"
	"github.com/mnuddindev/koishi/pkg/utils"
)

// GetModel returns the column schema of a collection.
func GetModel(c *fiber.Ctx) error {
	id, err := collectionID(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	caller := auth.CallerIdentity(c)
	if _, err := collection.GetCollection(c.UserContext(), Redis, DB, id, caller, false); err != nil {
		return utils.SendError(c, err)
	}

	m, err := collection.GetModel(c.UserContext(), DB, id)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, m)
}

// ReplaceModel swaps the whole schema. Existing rows are not migrated;
// clients are expected to change schemas on young collections.
func ReplaceModel(c *fiber.Ctx) error {
	id, err := collectionID(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	type ModelInput struct {
		Columns []collection.Column `json:"columns" validate:"required,min=1,dive"`
	}
	in := new(ModelInput)
	if err := utils.StrictBodyParser(c, in); err != nil {
		return utils.SendError(c, utils.NewError(utils.ErrBadRequest.Code, "Invalid request format"))
	}
	if err := Validator.Validate(in); err != nil {
		return utils.Error(c, utils.NewError(utils.ErrBadRequest.Code, "Validation failed")).WithData(err).Send()
	}

	caller := auth.CallerIdentity(c)
	if _, err := collection.GetCollectionForEdit(c.UserContext(), Redis, DB, id, caller); err != nil {
		return utils.SendError(c, err)
	}

	m, err := collection.ReplaceColumns(c.UserContext(), DB, id, in.Columns)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, m)
}
