// Command validate checks scenario JSON files in a config directory
// (../configs by default) against the unit catalog found there. It checks:
//   - JSON structure and unknown fields
//   - Grid consistency and allowed terrain characters (. and T)
//   - Unit placements: unique ids, inside the map, known players and types
//   - Carriers: only transporters carry, passengers share the carrier's tile and owner
//   - That the opening placements replay into a state without a desync
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wricardo/wargame/game/config"
	"github.com/wricardo/wargame/game/engine"
)

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages; otherwise it
// accumulates the validation errors that were found.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
}

func (r *ValidationResult) fail(format string, args ...any) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// validateScenario loads and validates a single scenario JSON file against a catalog.
func validateScenario(filePath string, catalog *engine.StaticCatalog) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.fail("Failed to read file: %v", err)
		return result
	}

	var scenario engine.Scenario
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&scenario); err != nil {
		result.fail("Invalid JSON: %v", err)
		return result
	}

	if len(scenario.Layout) == 0 {
		result.fail("Layout is empty")
		return result
	}

	if err := engine.ValidateScenario(&scenario); err != nil {
		result.fail("%s", strings.TrimPrefix(err.Error(), "scenario validation: "))
		return result
	}

	if _, err := engine.OpeningEvents(&scenario, catalog); err != nil {
		result.fail("%v", err)
		return result
	}

	carriers := validateCarriers(&scenario, catalog)
	if !carriers.Valid {
		result.Valid = false
		result.Errors = append(result.Errors, carriers.Errors...)
		return result
	}
	result.Errors = append(result.Errors, carriers.Errors...)

	state, err := openingState(&scenario, catalog)
	if err != nil {
		result.fail("Opening placements do not replay: %v", err)
		return result
	}

	// Add informational data
	result.Errors = append(result.Errors, fmt.Sprintf("✓ Name: %s", scenario.Name))
	result.Errors = append(result.Errors, fmt.Sprintf("✓ Grid: %dx%d", scenario.Width, scenario.Height))
	result.Errors = append(result.Errors, fmt.Sprintf("✓ Trees: %d/%d tiles", state.Map().CountTerrain(engine.Trees), scenario.Width*scenario.Height))

	units := engine.UnitsByPlayer(state)
	strength := engine.TroopStrength(state)
	for _, p := range scenario.Players {
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Player %d: %d units, %d troops", p, units[p], strength[p]))
	}

	return result
}

// validateCarriers ensures every passenger placement is carried by a transporter
// of the same player on the same tile, and that nothing is carried twice.
func validateCarriers(scenario *engine.Scenario, catalog *engine.StaticCatalog) ValidationResult {
	result := ValidationResult{
		Valid:  true,
		Errors: []string{},
	}

	byID := make(map[engine.UnitID]engine.Placement, len(scenario.Units))
	for _, u := range scenario.Units {
		byID[u.UnitID] = u
	}

	carriedBy := make(map[engine.UnitID]engine.UnitID)
	for _, u := range scenario.Units {
		if u.PassengerID == nil {
			continue
		}
		carrierType, _ := catalog.ByName(u.Type)
		if !carrierType.IsTransporter {
			result.fail("Unit %d (%s) is not a transporter but carries unit %d", u.UnitID, u.Type, *u.PassengerID)
			continue
		}

		passenger := byID[*u.PassengerID]
		switch {
		case passenger.UnitID == u.UnitID:
			result.fail("Unit %d carries itself", u.UnitID)
		case passenger.PlayerID != u.PlayerID:
			result.fail("Unit %d (player %d) carries unit %d of player %d", u.UnitID, u.PlayerID, passenger.UnitID, passenger.PlayerID)
		case passenger.Pos != u.Pos:
			result.fail("Passenger %d at %s is not on its carrier %d at %s", passenger.UnitID, passenger.Pos, u.UnitID, u.Pos)
		case passenger.PassengerID != nil:
			result.fail("Passenger %d is itself carrying unit %d", passenger.UnitID, *passenger.PassengerID)
		}

		if other, taken := carriedBy[passenger.UnitID]; taken {
			result.fail("Unit %d is carried by both %d and %d", passenger.UnitID, other, u.UnitID)
		}
		carriedBy[passenger.UnitID] = u.UnitID
	}

	if result.Valid && len(carriedBy) > 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("✓ Carriers: %d passengers loaded", len(carriedBy)))
	}
	return result
}

// openingState replays the scenario placements into a fresh state
func openingState(scenario *engine.Scenario, catalog *engine.StaticCatalog) (*engine.State, error) {
	events, err := engine.OpeningEvents(scenario, catalog)
	if err != nil {
		return nil, err
	}
	return engine.Replay(catalog, scenario, events)
}

// scenarioFiles lists the scenario files of a config directory, skipping the catalog.
func scenarioFiles(configDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(configDir, "*.json"))
	if err != nil {
		return nil, err
	}
	scenarios := files[:0]
	for _, f := range files {
		if filepath.Base(f) != config.CatalogFile {
			scenarios = append(scenarios, f)
		}
	}
	sort.Strings(scenarios)
	return scenarios, nil
}

// main validates every scenario in the config directory given as the first
// argument, printing a concise report and exiting non-zero if any are invalid.
func main() {
	configDir := "../configs"
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	// The manager validates units.json and falls back to the built-in catalog without one.
	manager, err := config.NewManager(configDir)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	catalog := manager.Catalog()

	files, err := scenarioFiles(configDir)
	if err != nil {
		fmt.Printf("Error finding scenario files: %v\n", err)
		os.Exit(1)
	}

	allValid := true
	for _, file := range files {
		result := validateScenario(file, catalog)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Printf("✅ All %d scenarios are valid!\n", len(files))
	} else {
		fmt.Println("❌ Some scenarios have errors")
		os.Exit(1)
	}
}
