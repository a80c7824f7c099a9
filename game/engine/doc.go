// Package engine holds the authoritative world state of the tactical wargame.
//
// The engine package implements:
//   - The terrain grid, built once at construction from a scenario layout
//   - Unit records and the static unit type catalog they are built from
//   - The closed set of game events and the transition applied for each one
//   - Full and partial (fog of war) information about units
//   - Replay of an event log into a state, and a JSON codec for events
//
// Core Types:
//
// State owns the terrain grid and every unit an observer knows about. It is
// changed only through Apply, which takes a Catalog and one Event. Event is a
// sealed interface implemented by Move, EndTurn, CreateUnit, AttackUnit,
// ShowUnit, HideUnit, LoadUnit and UnloadUnit.
//
// Usage:
//
//	state := engine.NewState(engine.Size2{W: 10, H: 10})
//	catalog := engine.DefaultCatalog()
//
//	err := state.Apply(catalog, engine.CreateUnit{UnitInfo: engine.UnitInfo{
//		UnitID: 1, TypeID: 0, PlayerID: 0, Pos: engine.MapPos{X: 0, Y: 0},
//	}})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	units := state.UnitsAt(engine.MapPos{X: 0, Y: 0})
//
// Information Levels:
//
// CreateUnit adds a unit with full information. ShowUnit adds an enemy unit
// that just became visible; its reactive attack points and passenger are nil,
// meaning unknown rather than zero. Each observer gets its own State and is fed
// only the events meant for it.
//
// Desync:
//
// The engine trusts its event source. An event that references a missing unit,
// duplicates an id, or overdraws a budget returns an error matching ErrDesync.
// The rejected event changes nothing, and the State refuses every later event
// with ErrHalted, since the stream no longer matches this state.
package engine
