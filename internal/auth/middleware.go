package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/mnuddindev/koishi/internal/models/collection"
	"github.com/mnuddindev/koishi/internal/models/user"
	storage "github.com/mnuddindev/koishi/pkg/redis"
	"github.com/mnuddindev/koishi/pkg/utils"
	"gorm.io/gorm"
)

// Options carries the dependencies of the auth middlewares.
type Options struct {
	DB      *gorm.DB
	Rclient *storage.RedisClient
}

// RequireAuth validates the x-auth-token header and stores the resolved
// identity in c.Locals("identity"). Pending accounts are rejected until they
// verify their email.
func RequireAuth(opts Options) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := c.Get("x-auth-token")
		if tokenString == "" {
			return utils.SendError(c, utils.NewError(utils.ErrUnauthorized.Code, "Missing auth token"))
		}

		claims, err := VerifyToken(tokenString)
		if err != nil {
			return utils.SendError(c, err)
		}

		u, err := user.GetUserBy(c.UserContext(), opts.Rclient, opts.DB, "id", claims.UserID)
		if err != nil {
			return utils.SendError(c, utils.NewError(utils.ErrUnauthorized.Code, "Invalid or expired token"))
		}
		if u.Status != user.StatusVerified {
			return utils.SendError(c, utils.NewError(utils.ErrForbidden.Code, "Account not verified"))
		}

		c.Locals("identity", collection.Identity{ID: u.ID, Email: u.Email, IsAdmin: u.IsAdmin})
		c.Locals("user_id", u.ID.String())
		return c.Next()
	}
}

// OptionalAuth resolves the caller identity when a valid token is present
// and falls through anonymously otherwise. Public endpoints use it so a
// logged-in caller still sees their private grants.
func OptionalAuth(opts Options) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := c.Get("x-auth-token")
		if tokenString == "" {
			return c.Next()
		}
		claims, err := VerifyToken(tokenString)
		if err != nil {
			return c.Next()
		}
		u, err := user.GetUserBy(c.UserContext(), opts.Rclient, opts.DB, "id", claims.UserID)
		if err != nil || u.Status != user.StatusVerified {
			return c.Next()
		}
		c.Locals("identity", collection.Identity{ID: u.ID, Email: u.Email, IsAdmin: u.IsAdmin})
		c.Locals("user_id", u.ID.String())
		return c.Next()
	}
}

// RequireAdmin gates maintenance endpoints. Must run after RequireAuth.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller := CallerIdentity(c)
		if !caller.IsAdmin {
			return utils.SendError(c, utils.NewError(utils.ErrForbidden.Code, "Admin access required"))
		}
		return c.Next()
	}
}

// CallerIdentity returns the identity stored by the auth middlewares, or
// the anonymous zero value.
func CallerIdentity(c *fiber.Ctx) collection.Identity {
	if id, ok := c.Locals("identity").(collection.Identity); ok {
		return id
	}
	return collection.Identity{}
}
