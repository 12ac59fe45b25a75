package v1

import (
	"github.com/gofiber/fiber/v2"
	"github.com/mnuddindev/koishi/internal/auth"
	"github.com/mnuddindev/koishi/internal/models/collection"
	"github.com/mnuddindev/koishi/pkg/utils"
)

// GetActions returns the alerting ruleset of a collection. Connector
// credentials are included, so this requires edit rights, not just view.
func GetActions(c *fiber.Ctx) error {
	id, err := collectionID(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	caller := auth.CallerIdentity(c)
	if _, err := collection.GetCollectionForEdit(c.UserContext(), Redis, DB, id, caller); err != nil {
		return utils.SendError(c, err)
	}

	a, err := collection.GetActions(c.UserContext(), DB, id)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, a)
}

// ReplaceRules swaps the rule list. Rules referencing columns absent from
// the model are rejected.
func ReplaceRules(c *fiber.Ctx) error {
	id, err := collectionID(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	type RulesInput struct {
		Rules []collection.Rule `json:"rules" validate:"dive"`
	}
	in := new(RulesInput)
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

	if in.Rules == nil {
		in.Rules = []collection.Rule{}
	}
	a, err := collection.ReplaceRules(c.UserContext(), DB, id, in.Rules)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, a)
}

// ReplaceConnectors swaps the connector credentials.
func ReplaceConnectors(c *fiber.Ctx) error {
	id, err := collectionID(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	type ConnectorsInput struct {
		Connectors collection.Connectors `json:"connectors"`
	}
	in := new(ConnectorsInput)
	if err := utils.StrictBodyParser(c, in); err != nil {
		return utils.SendError(c, utils.NewError(utils.ErrBadRequest.Code, "Invalid request format"))
	}

	caller := auth.CallerIdentity(c)
	if _, err := collection.GetCollectionForEdit(c.UserContext(), Redis, DB, id, caller); err != nil {
		return utils.SendError(c, err)
	}

	a, err := collection.ReplaceConnectors(c.UserContext(), DB, id, in.Connectors)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, a)
}

// TestConnector sends a probe message through the named connector and
// reports the outcome as text.
func TestConnector(c *fiber.Ctx) error {
	id, err := collectionID(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	caller := auth.CallerIdentity(c)
	if _, err := collection.GetCollectionForEdit(c.UserContext(), Redis, DB, id, caller); err != nil {
		return utils.SendError(c, err)
	}

	a, err := collection.GetActions(c.UserContext(), DB, id)
	if err != nil {
		return utils.SendError(c, err)
	}

	result := a.TestConnector(c.UserContext(), Notifier, c.Params("type"))
	return utils.SendSuccess(c, fiber.Map{"result": result})
}
