// Package websocket broadcasts session updates to WebSocket subscribers.
//
// Clients connect with ?session=<id> and receive JSON messages for that session only:
//
//	{"session_id": "ab12", "type": "state_update", "world": {...}}
//	{"session_id": "ab12", "type": "event_applied", "record": {...}, "world": {...}}
//
// A single Hub goroutine owns registration and fan-out. Broadcasts are queued
// without blocking the caller; a client whose send buffer is full is dropped.
//
// Usage:
//
//	hub := websocket.NewHub(logger)
//	go hub.Run()
//	defer hub.Stop()
//
//	hub.BroadcastState(sessionID, world)
//
// Incoming frames are read only to keep the connection alive.
package websocket
