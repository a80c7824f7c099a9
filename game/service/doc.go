// Package service provides the business logic layer of the wargame server.
//
// The service package implements:
//   - Multi-session management, one world state per observer
//   - Event application with desync detection
//   - World state, unit and tile queries
//   - Paginated event logs
//   - Scenario and unit catalog access
//
// Core Interfaces:
//
// GameService is the main service interface providing high-level operations.
// SessionManager handles session creation, retrieval, persistence and lifecycle.
// ConfigManager loads scenarios and the unit catalog.
//
// Architecture:
//
// The service layer sits between the transports (HTTP/WebSocket/MCP) and the
// engine. A Session owns one engine.State and the log of events that produced
// it; the log is what gets persisted, and a restored session replays it. Events
// for one session are serialized by the session's mutex, while independent
// sessions run in parallel.
//
// Usage:
//
//	sessionMgr := session.NewManager()
//	configMgr, _ := config.NewManager("configs")
//	gameService, err := service.NewGameService(sessionMgr, configMgr, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	info, err := gameService.CreateSession(ctx, "skirmish", "blue")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	result, err := gameService.ApplyEvent(ctx, info.ID, engine.EndTurn{OldID: 0, NewID: 1})
//
// Desync:
//
// When an event is rejected as a desync the session records the reason and
// refuses every later event with ErrSessionDesynced. The world state stays at the
// last consistent point so it can still be inspected.
//
// Observability:
//
// Operations are traced with OpenTelemetry spans and counted by the
// wargame.events.applied, wargame.events.desync and wargame.sessions.created
// counters. Both use the global providers and cost nothing when none is installed.
package service
