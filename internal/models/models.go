// Package models re-exports the persistent entities and collects them for
// schema migration.
package models

import (
	"github.com/mnuddindev/koishi/internal/models/collection"
	"github.com/mnuddindev/koishi/internal/models/user"
)

type (
	User               = user.User
	Collection         = collection.Collection
	CollectionModel    = collection.CollectionModel
	CollectionData     = collection.CollectionData
	CollectionActions  = collection.CollectionActions
	CollectionSettings = collection.CollectionSettings
	ActionToken        = collection.ActionToken
)

// RegisterModels lists every entity AutoMigrate has to know about.
func RegisterModels() []interface{} {
	return []interface{}{
		&User{},
		&Collection{},
		&CollectionModel{},
		&CollectionData{},
		&CollectionActions{},
		&CollectionSettings{},
		&ActionToken{},
	}
}
