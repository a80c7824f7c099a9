// Package session provides session storage for the wargame observer service.
//
// Manager keeps live sessions in memory, keyed case-insensitively, and can sit on
// top of a SessionPersistence backend:
//
//   - FilePersistence writes one indented JSON snapshot per session
//   - SQLitePersistence stores sessions and their event logs in SQLite through gorm
//   - RedisPersistence stores metadata as a key and the event log as a list
//
// Backends never store world state. A session is persisted as its scenario, unit
// catalog and event log, and Load rebuilds the state by replaying the log. The
// database backends append only the records they do not hold yet.
//
// Session Identifiers:
//
// Sessions use 4-character hex IDs when the caller does not pick one. Generation
// retries on collisions with both memory and storage.
//
// Usage:
//
//	persistence, err := session.NewFilePersistence("./sessions")
//	if err != nil {
//		log.Fatal(err)
//	}
//	manager := session.NewManagerWithPersistence(persistence, logger)
//	if err := manager.LoadPersistedSessions(); err != nil {
//		log.Fatal(err)
//	}
//
//	sess, err := manager.Create("", "skirmish", "blue", scenario, catalog)
//
// Cleanup:
//
// CleanupExpiredSessions evicts idle sessions from memory. Stored copies stay and
// are reloaded on the next Get.
package session
