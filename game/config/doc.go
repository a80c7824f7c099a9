// Package config provides scenario and unit catalog management for the wargame server.
//
// The config package handles:
//   - Loading scenarios from JSON files
//   - Loading the unit type catalog (units.json)
//   - Scenario validation against the catalog
//   - Default scenario management
//   - Scenario discovery and listing
//
// Scenario Format:
//
// Scenarios are stored as JSON files in the configs directory. Each scenario defines:
//   - Grid size and a text layout, one string per row ('.' plain, 'T' trees)
//   - The players taking part
//   - Opening unit placements (id, type name, owner, position, optional passenger)
//
// Unit Catalog:
//
// units.json holds the unit type templates ({"unit_types": [...]}) that budgets are
// refreshed from. When the file is missing the built-in catalog is used.
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Load specific scenario
//	scenario, err := manager.LoadScenario("river_crossing")
//
//	// Get default scenario
//	scenario = manager.GetDefault()
//
//	// List available scenarios
//	scenarios, err := manager.ListScenarios()
//
// Validation:
//
// Every scenario is validated for layout dimensions and characters, unique unit
// ids, placements inside the map and owned by a listed player, and unit type
// names known to the catalog.
package config
