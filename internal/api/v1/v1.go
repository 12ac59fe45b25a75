// Package v1 implements the versioned HTTP API.
package v1

import (
	"github.com/gofiber/fiber/v2"
	"github.com/mnuddindev/koishi/internal/auth"
	"github.com/mnuddindev/koishi/internal/config"
	"github.com/mnuddindev/koishi/internal/events"
	"github.com/mnuddindev/koishi/pkg/logger"
	"github.com/mnuddindev/koishi/pkg/notify"
	storage "github.com/mnuddindev/koishi/pkg/redis"
	"github.com/mnuddindev/koishi/pkg/utils"
	"gorm.io/gorm"
)

var (
	DB        *gorm.DB
	Redis     *storage.RedisClient
	Logger    *logger.Logger
	Notifier  notify.Notifier
	Bus       *events.Bus
	Cfg       *config.Config
	Validator = utils.NewValidator()
)

// Setup wires the v1 routes onto the app. The package globals above must be
// assigned first.
func Setup(app *fiber.App) {
	opts := auth.Options{DB: DB, Rclient: Redis}
	authed := auth.RequireAuth(opts)
	maybeAuthed := auth.OptionalAuth(opts)

	api := app.Group("/api/v1")

	api.Post("/auth/register", Register)
	api.Post("/auth/activate", Activate)
	api.Post("/auth/login", Login)

	api.Get("/collections/public", maybeAuthed, ListPublicCollections)
	api.Get("/collections/public/:id", GetPublicCollection)

	api.Get("/collections", authed, ListCollections)
	api.Post("/collections", authed, CreateCollection)
	api.Get("/collections/:id", authed, GetCollection)
	api.Patch("/collections/:id", authed, RenameCollection)
	api.Delete("/collections/:id", authed, DeleteCollection)

	api.Get("/collections/:id/data", authed, GetData)
	api.Post("/collections/:id/data", authed, AddRow)
	api.Put("/collections/:id/data/:index", authed, EditRow)
	api.Delete("/collections/:id/data/:index", authed, DeleteRow)

	api.Get("/collections/:id/model", authed, GetModel)
	api.Put("/collections/:id/model", authed, ReplaceModel)

	api.Get("/collections/:id/actions", authed, GetActions)
	api.Put("/collections/:id/actions/rules", authed, ReplaceRules)
	api.Put("/collections/:id/actions/connectors", authed, ReplaceConnectors)
	api.Post("/collections/:id/actions/test/:type", authed, TestConnector)

	api.Get("/collections/:id/settings", authed, ListSettings)
	api.Post("/collections/:id/settings", authed, CreateSettings)
	api.Get("/collections/:id/settings/:sid", authed, GetSettings)
	api.Put("/collections/:id/settings/:sid", authed, UpdateSettings)
	api.Delete("/collections/:id/settings/:sid", authed, DeleteSettings)

	api.Post("/collections/:id/share", authed, ShareCollection)
	api.Delete("/collections/:id/share/:email", authed, UnshareCollection)
	api.Delete("/collections/:id/share", authed, UnshareAll)
	api.Post("/collections/:id/visibility", authed, SetVisibility)

	api.Get("/invites", authed, ListInvites)
	api.Post("/invites/:token/accept", authed, AcceptInvite)
	api.Post("/invites/:token/decline", authed, DeclineInvite)

	api.Post("/system/tokens/sweep", authed, auth.RequireAdmin(), SweepTokens)
}
