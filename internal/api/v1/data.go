package v1

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/mnuddindev/koishi/internal/auth"
	"github.com/mnuddindev/koishi/internal/events"
	"github.com/mnuddindev/koishi/internal/models/collection"
	"github.com/mnuddindev/koishi/pkg/utils"
)

func rowIndex(c *fiber.Ctx) (int, error) {
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil || index < 0 {
		return 0, utils.NewError(utils.ErrBadRequest.Code, "Invalid row index")
	}
	return index, nil
}

// GetData returns the rows of a collection. With ?simplify the rows come
// back as plain column->value maps instead of cell lists.
func GetData(c *fiber.Ctx) error {
	id, err := collectionID(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	caller := auth.CallerIdentity(c)
	if _, err := collection.GetCollection(c.UserContext(), Redis, DB, id, caller, false); err != nil {
		return utils.SendError(c, err)
	}

	data, err := collection.GetData(c.UserContext(), DB, id)
	if err != nil {
		return utils.SendError(c, err)
	}

	if c.Query("simplify") != "" {
		return utils.SendSuccess(c, data.Simplified())
	}
	return utils.SendSuccess(c, data)
}

// AddRow validates and appends a row, then hands it to the event bus so the
// collection's action rules run in the background.
func AddRow(c *fiber.Ctx) error {
	id, err := collectionID(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	type RowInput struct {
		Row collection.Row `json:"row" validate:"required,min=1"`
	}
	in := new(RowInput)
	if err := utils.StrictBodyParser(c, in); err != nil {
		return utils.SendError(c, utils.NewError(utils.ErrBadRequest.Code, "Invalid request format"))
	}

	caller := auth.CallerIdentity(c)
	col, err := collection.GetCollectionForEdit(c.UserContext(), Redis, DB, id, caller)
	if err != nil {
		return utils.SendError(c, err)
	}

	if err := collection.AppendRow(c.UserContext(), DB, id, in.Row); err != nil {
		return utils.SendError(c, err)
	}

	Bus.Publish(events.RowCommitted{CollectionID: col.ID, Title: col.Title, Row: in.Row})

	return utils.Success(c).WithStatus(fiber.StatusCreated).WithMessage("Row added").Send()
}

// EditRow validates and replaces the row at a position. The edited row runs
// through the action rules the same as a fresh one.
func EditRow(c *fiber.Ctx) error {
	id, err := collectionID(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	index, err := rowIndex(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	type RowInput struct {
		Row collection.Row `json:"row" validate:"required,min=1"`
	}
	in := new(RowInput)
	if err := utils.StrictBodyParser(c, in); err != nil {
		return utils.SendError(c, utils.NewError(utils.ErrBadRequest.Code, "Invalid request format"))
	}

	caller := auth.CallerIdentity(c)
	col, err := collection.GetCollectionForEdit(c.UserContext(), Redis, DB, id, caller)
	if err != nil {
		return utils.SendError(c, err)
	}

	if err := collection.EditRowAt(c.UserContext(), DB, id, index, in.Row); err != nil {
		return utils.SendError(c, err)
	}

	Bus.Publish(events.RowCommitted{CollectionID: col.ID, Title: col.Title, Row: in.Row})

	return utils.Success(c).WithMessage("Row updated").Send()
}

// DeleteRow removes the row at a position.
func DeleteRow(c *fiber.Ctx) error {
	id, err := collectionID(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	index, err := rowIndex(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	caller := auth.CallerIdentity(c)
	if _, err := collection.GetCollectionForEdit(c.UserContext(), Redis, DB, id, caller); err != nil {
		return utils.SendError(c, err)
	}

	if err := collection.DeleteRowAt(c.UserContext(), DB, id, index); err != nil {
		return utils.SendError(c, err)
	}
	return utils.Success(c).WithMessage("Row deleted").Send()
}
