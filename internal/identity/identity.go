// Package identity generates opaque identifiers and manages the persisted
// anonymous user identity.
package identity

import (
	"log/slog"

	"github.com/bugshot/bugshot-go/internal/shared"
	"github.com/bugshot/bugshot-go/pkg/host"
	"github.com/google/uuid"
)

const anonymousPrefix = "anon_"

// NewID returns a random version 4 UUID.
func NewID() string {
	return uuid.NewString()
}

// Anonymous returns the identity stored in storage, creating and persisting
// one when absent. When storage cannot be read or written the returned
// identity is ephemeral.
func Anonymous(storage host.Storage, logger *slog.Logger) string {
	if storage == nil {
		return anonymousPrefix + NewID()
	}

	id, ok, err := storage.GetItem(shared.AnonymousUserKey)
	if err != nil {
		logger.Debug("storage unavailable, using ephemeral anonymous id", "error", err)
		return anonymousPrefix + NewID()
	}
	if ok && id != "" {
		return id
	}

	id = anonymousPrefix + NewID()
	if err := storage.SetItem(shared.AnonymousUserKey, id); err != nil {
		logger.Debug("could not persist anonymous id", "error", err)
		return id
	}
	logger.Debug("created anonymous user id", "userId", id)
	return id
}
