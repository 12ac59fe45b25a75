package v1

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/mnuddindev/koishi/internal/auth"
	"github.com/mnuddindev/koishi/internal/models/collection"
	"github.com/mnuddindev/koishi/pkg/utils"
	"gorm.io/datatypes"
)

func settingsID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("sid"))
	if err != nil {
		return uuid.Nil, utils.NewError(utils.ErrBadRequest.Code, "Invalid settings id")
	}
	return id, nil
}

// ListSettings returns every preset of a collection.
func ListSettings(c *fiber.Ctx) error {
	id, err := collectionID(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	caller := auth.CallerIdentity(c)
	if _, err := collection.GetCollection(c.UserContext(), Redis, DB, id, caller, false); err != nil {
		return utils.SendError(c, err)
	}

	presets, err := collection.ListSettings(c.UserContext(), DB, id)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, presets)
}

// GetSettings returns one preset.
func GetSettings(c *fiber.Ctx) error {
	id, err := collectionID(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	sid, err := settingsID(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	caller := auth.CallerIdentity(c)
	if _, err := collection.GetCollection(c.UserContext(), Redis, DB, id, caller, false); err != nil {
		return utils.SendError(c, err)
	}

	s, err := collection.GetSettings(c.UserContext(), DB, id, sid)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, s)
}

// CreateSettings adds a named preset with an opaque payload.
func CreateSettings(c *fiber.Ctx) error {
	id, err := collectionID(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	type SettingsInput struct {
		Name    string         `json:"name" validate:"required,max=30"`
		Payload datatypes.JSON `json:"payload"`
	}
	in := new(SettingsInput)
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

	s, err := collection.CreateSettings(c.UserContext(), DB, id, in.Name, in.Payload)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.Success(c).WithStatus(fiber.StatusCreated).WithData(s).Send()
}

// UpdateSettings overwrites a preset's name and payload.
func UpdateSettings(c *fiber.Ctx) error {
	id, err := collectionID(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	sid, err := settingsID(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	type SettingsInput struct {
		Name    string         `json:"name" validate:"required,max=30"`
		Payload datatypes.JSON `json:"payload"`
	}
	in := new(SettingsInput)
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

	s, err := collection.UpdateSettings(c.UserContext(), DB, id, sid, in.Name, in.Payload)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, s)
}

// DeleteSettings removes a preset, never the last one.
func DeleteSettings(c *fiber.Ctx) error {
	id, err := collectionID(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	sid, err := settingsID(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	caller := auth.CallerIdentity(c)
	if _, err := collection.GetCollectionForEdit(c.UserContext(), Redis, DB, id, caller); err != nil {
		return utils.SendError(c, err)
	}

	if err := collection.DeleteSettings(c.UserContext(), DB, id, sid); err != nil {
		return utils.SendError(c, err)
	}
	return utils.Success(c).WithMessage("Settings preset deleted").Send()
}
