// Package api exposes the game service over a gorilla/mux REST API.
//
// Routes:
//
//	POST   /api/sessions                      create a session {"scenario_id", "observer"}
//	GET    /api/sessions                      list (?sort=created|accessed&order=asc|desc&limit=&scenario=)
//	GET    /api/sessions/unified              world views side by side (?sessionIds=a,b or ?scenario=)
//	GET    /api/sessions/{id}                 session info
//	DELETE /api/sessions/{id}                 delete a session
//	GET    /api/sessions/{id}/state           world view
//	POST   /api/sessions/{id}/events          apply one event envelope {"kind", "data"}
//	POST   /api/sessions/{id}/events/batch    apply {"events": [...]} in order
//	GET    /api/sessions/{id}/events          paginated event log (?page=&limit=&order=)
//	GET    /api/sessions/{id}/units/{unit}    one unit with its nearest enemy
//	GET    /api/sessions/{id}/tiles/{x}/{y}   terrain and units on a tile
//	GET    /api/scenarios                     scenario listing
//	POST   /api/scenarios                     save a scenario
//	GET    /api/scenarios/{name}              one scenario
//	GET    /api/unit-types                    unit catalog
//	GET    /ws?session={id}                   WebSocket updates
//
// Errors are JSON objects {"error": "..."}. A desync answers 409 Conflict, unknown
// sessions, scenarios and units answer 404, and malformed input answers 400.
//
// Applied events are pushed to WebSocket subscribers as event_applied messages; a
// rejected event pushes a state_update carrying the desync reason.
package api
