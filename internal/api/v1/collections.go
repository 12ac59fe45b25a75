package v1

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/mnuddindev/koishi/internal/auth"
	"github.com/mnuddindev/koishi/internal/models/collection"
	"github.com/mnuddindev/koishi/internal/models/user"
	"github.com/mnuddindev/koishi/pkg/utils"
)

func collectionID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, utils.NewError(utils.ErrBadRequest.Code, "Invalid collection id")
	}
	return id, nil
}

// collectionSummary is one entry of the caller's collection list.
type collectionSummary struct {
	ID       uuid.UUID `json:"id"`
	Title    string    `json:"title"`
	Owner    string    `json:"owner"`
	IsPublic bool      `json:"is_public"`
	Role     string    `json:"role"`
}

// ListCollections returns every collection the caller can reach: owned ones
// plus accepted shares. Stale ids in the accessible list (revoked shares,
// deleted collections) are filtered out here.
func ListCollections(c *fiber.Ctx) error {
	caller := auth.CallerIdentity(c)

	u, err := user.GetUserBy(c.UserContext(), Redis, DB, "id", caller.ID)
	if err != nil {
		return utils.SendError(c, err)
	}

	var owned []collection.Collection
	if err := DB.WithContext(c.UserContext()).Where("owner_id = ?", caller.ID).Find(&owned).Error; err != nil {
		return utils.SendError(c, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to list collections"))
	}

	shared, err := collection.ListCollectionsByIDs(c.UserContext(), DB, u.Collections, caller)
	if err != nil {
		return utils.SendError(c, err)
	}

	seen := map[uuid.UUID]bool{}
	summaries := make([]collectionSummary, 0, len(owned)+len(shared))
	appendOne := func(col collection.Collection) {
		if seen[col.ID] {
			return
		}
		seen[col.ID] = true

		role := "owner"
		ownerLabel := collection.OwnerString(u.Name, u.Email, caller.Email)
		if col.OwnerID != caller.ID {
			role = col.ShareRole(caller.Email)
			if owner, err := user.GetUserBy(c.UserContext(), Redis, DB, "id", col.OwnerID); err == nil {
				ownerLabel = collection.OwnerString(owner.Name, owner.Email, caller.Email)
			} else {
				ownerLabel = "unknown"
			}
		}
		summaries = append(summaries, collectionSummary{
			ID:       col.ID,
			Title:    col.Title,
			Owner:    ownerLabel,
			IsPublic: col.IsPublic,
			Role:     role,
		})
	}
	for _, col := range owned {
		appendOne(col)
	}
	for _, col := range shared {
		appendOne(col)
	}

	return utils.SendSuccess(c, summaries)
}

// CreateCollection creates a collection with its schema and registers it in
// the owner's accessible list.
func CreateCollection(c *fiber.Ctx) error {
	type CreateInput struct {
		Title   string              `json:"title" validate:"required,max=30"`
		Columns []collection.Column `json:"columns" validate:"required,min=1,dive"`
	}
	in := new(CreateInput)
	if err := utils.StrictBodyParser(c, in); err != nil {
		return utils.SendError(c, utils.NewError(utils.ErrBadRequest.Code, "Invalid request format"))
	}
	if err := Validator.Validate(in); err != nil {
		return utils.Error(c, utils.NewError(utils.ErrBadRequest.Code, "Validation failed")).WithData(err).Send()
	}

	caller := auth.CallerIdentity(c)
	col, err := collection.NewCollection(c.UserContext(), Redis, DB, in.Title, caller.ID, in.Columns)
	if err != nil {
		return utils.SendError(c, err)
	}

	if u, uerr := user.GetUserBy(c.UserContext(), Redis, DB, "id", caller.ID); uerr == nil {
		if err := user.AddCollectionRef(c.UserContext(), Redis, DB, u, col.ID); err != nil {
			Logger.Warn(c.UserContext()).WithFields("collection", col.ID.String()).Logs(fmt.Sprintf("Failed to register collection ref: %v", err))
		}
	}

	Logger.Info(c.UserContext()).WithMeta(utils.Map{
		"collection": col.ID.String(),
		"owner":      caller.ID.String(),
	}).Logs("Collection created")

	return utils.Success(c).WithStatus(fiber.StatusCreated).WithData(col).Send()
}

// GetCollection returns one collection the caller can view. Children are
// populated unless ?noPopulate is set.
func GetCollection(c *fiber.Ctx) error {
	id, err := collectionID(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	populate := c.Query("noPopulate") == ""

	caller := auth.CallerIdentity(c)
	col, err := collection.GetCollection(c.UserContext(), Redis, DB, id, caller, populate)
	if err != nil {
		return utils.SendError(c, err)
	}

	if col.OwnerID != caller.ID {
		// Share list is the owner's business only
		col.SharedTo = nil
	}
	return utils.SendSuccess(c, col)
}

// RenameCollection changes the title. Edit rights are enough, ownership is
// not required.
func RenameCollection(c *fiber.Ctx) error {
	id, err := collectionID(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	type RenameInput struct {
		Title string `json:"title" validate:"required,max=30"`
	}
	in := new(RenameInput)
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

	col, err := collection.UpdateTitle(c.UserContext(), Redis, DB, id, in.Title)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, col)
}

// DeleteCollection is a two-phase, owner-only operation. The first call
// issues a confirmation token and answers 202 without deleting anything.
// The second call presents the token and performs the cascade delete.
func DeleteCollection(c *fiber.Ctx) error {
	id, err := collectionID(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	type DeleteInput struct {
		Token string `json:"token"`
	}
	in := new(DeleteInput)
	// an empty body means phase one
	if len(c.Body()) > 0 {
		if err := utils.StrictBodyParser(c, in); err != nil {
			return utils.SendError(c, utils.NewError(utils.ErrBadRequest.Code, "Invalid request format"))
		}
	}

	caller := auth.CallerIdentity(c)
	col, err := collection.GetOwnedCollection(c.UserContext(), Redis, DB, id, caller)
	if err != nil {
		return utils.SendError(c, err)
	}

	if in.Token == "" {
		purpose := fmt.Sprintf("Confirm deletion of collection %q", col.Title)
		token, err := collection.IssueToken(c.UserContext(), DB, collection.CategoryDelete, purpose, caller.ID, col.ID)
		if err != nil {
			return utils.SendError(c, err)
		}
		return utils.Success(c).
			WithStatus(fiber.StatusAccepted).
			WithMessage(purpose).
			WithData(fiber.Map{"token": token.ID, "purpose": token.Purpose}).
			Send()
	}

	tokenID, err := uuid.Parse(in.Token)
	if err != nil {
		return utils.SendError(c, utils.NewError(utils.ErrBadRequest.Code, "Invalid token"))
	}
	if err := collection.RedeemToken(c.UserContext(), DB, tokenID, caller.ID, col.ID, collection.CategoryDelete); err != nil {
		return utils.SendError(c, err)
	}
	if err := collection.DeleteCascade(c.UserContext(), Redis, DB, col.ID); err != nil {
		return utils.SendError(c, err)
	}
	if err := user.RemoveCollectionRefAll(c.UserContext(), Redis, DB, col.ID); err != nil {
		Logger.Warn(c.UserContext()).WithFields("collection", col.ID.String()).Logs(fmt.Sprintf("Failed to clean collection refs: %v", err))
	}

	Logger.Info(c.UserContext()).WithMeta(utils.Map{
		"collection": col.ID.String(),
		"owner":      caller.ID.String(),
	}).Logs("Collection deleted")

	return utils.Success(c).WithMessage("Collection deleted").Send()
}

// ListPublicCollections returns every public collection. No authentication
// needed; a logged-in caller gets owner labels relative to themselves.
func ListPublicCollections(c *fiber.Ctx) error {
	caller := auth.CallerIdentity(c)
	cols, err := collection.ListPublicCollections(c.UserContext(), DB)
	if err != nil {
		return utils.SendError(c, err)
	}

	summaries := make([]collectionSummary, 0, len(cols))
	for _, col := range cols {
		ownerLabel := "unknown"
		if owner, err := user.GetUserBy(c.UserContext(), Redis, DB, "id", col.OwnerID); err == nil {
			ownerLabel = collection.OwnerString(owner.Name, owner.Email, caller.Email)
		}
		summaries = append(summaries, collectionSummary{
			ID:       col.ID,
			Title:    col.Title,
			Owner:    ownerLabel,
			IsPublic: true,
			Role:     collection.RoleView,
		})
	}
	return utils.SendSuccess(c, summaries)
}

// GetPublicCollection returns one public collection with children, no
// authentication required.
func GetPublicCollection(c *fiber.Ctx) error {
	id, err := collectionID(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	col, err := collection.GetPublicCollection(c.UserContext(), DB, id)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, col)
}
