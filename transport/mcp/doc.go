// Package mcp exposes the wargame REST API as Model Context Protocol tools.
//
// The Client is a thin proxy: every tool call becomes an HTTP request against a
// running API server, and the JSON response is rendered as text for the agent.
//
// Tools:
//   - create_session, list_sessions, get_session: session lifecycle
//   - world_state: map with unit markers, unit list, turn and desync status
//   - describe_tile, unit_info: point queries
//   - apply_event, apply_events: feed events as {"kind": ..., "data": {...}}
//   - event_history: paginated event log
//   - list_scenarios, unit_types: content and rules
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
//
// The same server can be mounted on an HTTP route by passing request bodies to
// GetMCPServer().HandleMessage.
package mcp
