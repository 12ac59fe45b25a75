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

// ShareCollection grants another registered user access to the caller's
// collection. The grant takes effect immediately (last write wins per
// email); a fresh grant additionally leaves an invite in the target's inbox
// so the collection shows up in their list once they accept.
func ShareCollection(c *fiber.Ctx) error {
	id, err := collectionID(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	type ShareInput struct {
		Email string `json:"email" validate:"required,email"`
		Role  string `json:"role" validate:"required,oneof=view edit"`
	}
	in := new(ShareInput)
	if err := utils.StrictBodyParser(c, in); err != nil {
		return utils.SendError(c, utils.NewError(utils.ErrBadRequest.Code, "Invalid request format"))
	}
	if err := Validator.Validate(in); err != nil {
		return utils.Error(c, utils.NewError(utils.ErrBadRequest.Code, "Validation failed")).WithData(err).Send()
	}

	caller := auth.CallerIdentity(c)
	if in.Email == caller.Email {
		return utils.SendError(c, utils.NewError(utils.ErrBadRequest.Code, "Cannot share a collection with yourself"))
	}

	col, err := collection.GetOwnedCollection(c.UserContext(), Redis, DB, id, caller)
	if err != nil {
		return utils.SendError(c, err)
	}

	target, err := user.GetUserBy(c.UserContext(), Redis, DB, "email", in.Email)
	if err != nil {
		return utils.SendError(c, utils.NewError(utils.ErrNotFound.Code, "No registered user with that email"))
	}

	updated, err := collection.UpsertShare(c.UserContext(), Redis, DB, col, collection.Share{UserEmail: in.Email, Role: in.Role})
	if err != nil {
		return utils.SendError(c, err)
	}

	owner, _ := user.GetUserBy(c.UserContext(), Redis, DB, "id", caller.ID)
	ownerName := caller.Email
	if owner != nil {
		ownerName = owner.Name
	}
	purpose := fmt.Sprintf("%s invited you to collection %q as %s", ownerName, col.Title, in.Role)

	existing, err := collection.FindShareToken(c.UserContext(), DB, target.ID, col.ID)
	if err != nil {
		return utils.SendError(c, err)
	}
	switch {
	case existing != nil:
		// open invite gets the new role wording and a fresh expiry
		if err := collection.UpdateShareTokenPurpose(c.UserContext(), DB, existing.ID, purpose); err != nil {
			return utils.SendError(c, err)
		}
	case !updated:
		if _, err := collection.IssueToken(c.UserContext(), DB, collection.CategoryShare, purpose, target.ID, col.ID); err != nil {
			return utils.SendError(c, err)
		}
	}

	message := "Collection shared"
	if updated {
		message = "Share updated"
	}
	return utils.Success(c).WithMessage(message).WithData(col.SharedTo).Send()
}

// UnshareCollection revokes one user's grant and drops any open invite.
func UnshareCollection(c *fiber.Ctx) error {
	id, err := collectionID(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	email := c.Params("email")
	if email == "" {
		return utils.SendError(c, utils.NewError(utils.ErrBadRequest.Code, "Missing email"))
	}

	caller := auth.CallerIdentity(c)
	col, err := collection.GetOwnedCollection(c.UserContext(), Redis, DB, id, caller)
	if err != nil {
		return utils.SendError(c, err)
	}

	if err := collection.RemoveShare(c.UserContext(), Redis, DB, col, email); err != nil {
		return utils.SendError(c, err)
	}

	if target, terr := user.GetUserBy(c.UserContext(), Redis, DB, "email", email); terr == nil {
		if err := user.RemoveCollectionRef(c.UserContext(), Redis, DB, target, col.ID); err != nil {
			Logger.Warn(c.UserContext()).WithFields("collection", col.ID.String()).Logs(fmt.Sprintf("Failed to drop collection ref: %v", err))
		}
		if token, ferr := collection.FindShareToken(c.UserContext(), DB, target.ID, col.ID); ferr == nil && token != nil {
			collection.DeclineToken(c.UserContext(), DB, token.ID, target.ID)
		}
	}

	return utils.Success(c).WithMessage("Share removed").WithData(col.SharedTo).Send()
}

// UnshareAll revokes every grant on the collection at once.
func UnshareAll(c *fiber.Ctx) error {
	id, err := collectionID(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	caller := auth.CallerIdentity(c)
	col, err := collection.GetOwnedCollection(c.UserContext(), Redis, DB, id, caller)
	if err != nil {
		return utils.SendError(c, err)
	}

	revoked := make([]collection.Share, len(col.SharedTo))
	copy(revoked, col.SharedTo)

	if err := collection.ClearShares(c.UserContext(), Redis, DB, col); err != nil {
		return utils.SendError(c, err)
	}

	for _, share := range revoked {
		target, terr := user.GetUserBy(c.UserContext(), Redis, DB, "email", share.UserEmail)
		if terr != nil {
			continue
		}
		if err := user.RemoveCollectionRef(c.UserContext(), Redis, DB, target, col.ID); err != nil {
			Logger.Warn(c.UserContext()).WithFields("collection", col.ID.String()).Logs(fmt.Sprintf("Failed to drop collection ref: %v", err))
		}
		if token, ferr := collection.FindShareToken(c.UserContext(), DB, target.ID, col.ID); ferr == nil && token != nil {
			collection.DeclineToken(c.UserContext(), DB, token.ID, target.ID)
		}
	}

	return utils.Success(c).WithMessage("All shares removed").Send()
}

// SetVisibility flips the public flag, owner only.
func SetVisibility(c *fiber.Ctx) error {
	id, err := collectionID(c)
	if err != nil {
		return utils.SendError(c, err)
	}
	type VisibilityInput struct {
		Public *bool `json:"public" validate:"required"`
	}
	in := new(VisibilityInput)
	if err := utils.StrictBodyParser(c, in); err != nil {
		return utils.SendError(c, utils.NewError(utils.ErrBadRequest.Code, "Invalid request format"))
	}
	if err := Validator.Validate(in); err != nil {
		return utils.Error(c, utils.NewError(utils.ErrBadRequest.Code, "Validation failed")).WithData(err).Send()
	}

	caller := auth.CallerIdentity(c)
	col, err := collection.GetOwnedCollection(c.UserContext(), Redis, DB, id, caller)
	if err != nil {
		return utils.SendError(c, err)
	}

	if err := collection.SetVisibility(c.UserContext(), Redis, DB, col.ID, *in.Public); err != nil {
		return utils.SendError(c, err)
	}

	message := "Collection is now private"
	if *in.Public {
		message = "Collection is now public"
	}
	return utils.Success(c).WithMessage(message).Send()
}

// ListInvites returns the caller's pending share invites.
func ListInvites(c *fiber.Ctx) error {
	caller := auth.CallerIdentity(c)
	invites, err := collection.ListShareInvites(c.UserContext(), DB, caller.ID)
	if err != nil {
		return utils.SendError(c, err)
	}
	return utils.SendSuccess(c, invites)
}

func inviteTokenID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("token"))
	if err != nil {
		return uuid.Nil, utils.NewError(utils.ErrBadRequest.Code, "Invalid token")
	}
	return id, nil
}

// AcceptInvite consumes a share invite and adds the collection to the
// caller's accessible list.
func AcceptInvite(c *fiber.Ctx) error {
	tokenID, err := inviteTokenID(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	caller := auth.CallerIdentity(c)
	invite, err := collection.GetShareInvite(c.UserContext(), DB, tokenID, caller.ID)
	if err != nil {
		return utils.SendError(c, err)
	}
	if err := collection.RedeemToken(c.UserContext(), DB, invite.ID, caller.ID, invite.TargetID, collection.CategoryShare); err != nil {
		return utils.SendError(c, err)
	}

	u, err := user.GetUserBy(c.UserContext(), Redis, DB, "id", caller.ID)
	if err != nil {
		return utils.SendError(c, err)
	}
	if err := user.AddCollectionRef(c.UserContext(), Redis, DB, u, invite.TargetID); err != nil {
		return utils.SendError(c, err)
	}

	return utils.Success(c).WithMessage("Invite accepted").WithData(fiber.Map{"collection": invite.TargetID}).Send()
}

// DeclineInvite discards a share invite. The owner's grant on the
// collection itself is untouched; the collection just never enters the
// caller's list.
func DeclineInvite(c *fiber.Ctx) error {
	tokenID, err := inviteTokenID(c)
	if err != nil {
		return utils.SendError(c, err)
	}

	caller := auth.CallerIdentity(c)
	if err := collection.DeclineToken(c.UserContext(), DB, tokenID, caller.ID); err != nil {
		return utils.SendError(c, err)
	}
	return utils.Success(c).WithMessage("Invite declined").Send()
}
