package session

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestManagerWithPersistence(t *testing.T) {
	persistence := newFilePersistence(t)
	manager := NewManagerWithPersistence(persistence, zerolog.Nop())

	t.Run("create persists the session", func(t *testing.T) {
		if err := createSession(manager, "per1"); err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		if !persistence.Exists("per1") {
			t.Error("Session should be persisted on create")
		}
	})

	t.Run("save writes applied events", func(t *testing.T) {
		sess, err := manager.Get("per1")
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		stepEast(t, sess, 0)
		if err := manager.Save("per1"); err != nil {
			t.Fatalf("Failed to save session: %v", err)
		}

		loaded, err := persistence.Load("per1")
		if err != nil {
			t.Fatalf("Failed to load session: %v", err)
		}
		if got := len(loaded.Records()); got != 3 {
			t.Errorf("Expected 3 persisted records, got %d", got)
		}
	})

	t.Run("get falls back to storage", func(t *testing.T) {
		if err := manager.DeleteFromMemory("per1"); err != nil {
			t.Fatalf("DeleteFromMemory failed: %v", err)
		}
		sess, err := manager.Get("PER1")
		if err != nil {
			t.Fatalf("Expected session to reload from storage: %v", err)
		}
		if pos := soldierPos(t, sess); pos.X != 1 {
			t.Errorf("Expected replayed soldier at x=1, got %v", pos)
		}
		if manager.Count() != 1 {
			t.Errorf("Reloaded session should be cached, count=%d", manager.Count())
		}
	})

	t.Run("cleanup keeps the stored copy", func(t *testing.T) {
		sess, _ := manager.Get("per1")
		sess.Touch(time.Now().Add(-time.Hour))
		if removed := manager.CleanupExpiredSessions(time.Minute); removed != 1 {
			t.Fatalf("Expected 1 session evicted, got %d", removed)
		}
		if !persistence.Exists("per1") {
			t.Error("Evicted session should remain in storage")
		}
	})

	t.Run("delete removes the stored copy", func(t *testing.T) {
		if err := manager.Delete("per1"); err != nil {
			t.Fatalf("Failed to delete session: %v", err)
		}
		if persistence.Exists("per1") {
			t.Error("Session should be removed from storage")
		}
		if _, err := manager.Get("per1"); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Expected ErrSessionNotFound, got %v", err)
		}
	})
}

func TestManager_LoadPersistedSessions(t *testing.T) {
	persistence := newSQLitePersistence(t)
	for _, id := range []string{"ld01", "ld02"} {
		sess := newTestSession(t, id)
		stepEast(t, sess, 0)
		if err := persistence.Save(sess); err != nil {
			t.Fatalf("Failed to seed %s: %v", id, err)
		}
	}

	manager := NewManagerWithPersistence(persistence, zerolog.Nop())
	if err := manager.LoadPersistedSessions(); err != nil {
		t.Fatalf("LoadPersistedSessions failed: %v", err)
	}
	if manager.Count() != 2 {
		t.Fatalf("Expected 2 sessions loaded, got %d", manager.Count())
	}

	// Loading twice must not duplicate
	if err := manager.LoadPersistedSessions(); err != nil {
		t.Fatalf("Second LoadPersistedSessions failed: %v", err)
	}
	if manager.Count() != 2 {
		t.Errorf("Expected 2 sessions after reload, got %d", manager.Count())
	}

	sess, _ := manager.Get("ld02")
	stepEast(t, sess, 1)
	if err := manager.SaveAllSessions(); err != nil {
		t.Fatalf("SaveAllSessions failed: %v", err)
	}
	loaded, err := persistence.Load("ld02")
	if err != nil {
		t.Fatalf("Failed to load session: %v", err)
	}
	if got := len(loaded.Records()); got != 4 {
		t.Errorf("Expected 4 records after SaveAllSessions, got %d", got)
	}
}

func TestManager_GeneratedIDsAvoidStoredSessions(t *testing.T) {
	persistence := newRedisPersistence(t)
	manager := NewManagerWithPersistence(persistence, zerolog.Nop())

	seen := make(map[string]bool)
	for range 25 {
		if err := createSession(manager, ""); err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
	}
	ids, err := persistence.ListAll()
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	for _, id := range ids {
		if seen[id] {
			t.Errorf("Duplicate generated ID %s", id)
		}
		seen[id] = true
	}
	if len(ids) != 25 {
		t.Errorf("Expected 25 stored sessions, got %d", len(ids))
	}
}
