package session

import (
	"github.com/wricardo/wargame/game/service"
)

// SessionPersistence defines the interface for persisting sessions.
// Backends store the session snapshot (scenario, catalog and event log) and
// rebuild the world state on Load by replaying the log.
type SessionPersistence interface {
	// Save persists a session to storage
	Save(session *service.Session) error

	// Load retrieves a session from storage by ID
	Load(id string) (*service.Session, error)

	// Delete removes a session from storage
	Delete(id string) error

	// ListAll returns all persisted session IDs
	ListAll() ([]string, error)

	// Exists checks if a session exists in storage
	Exists(id string) bool
}
