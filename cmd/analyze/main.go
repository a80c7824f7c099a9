// Command analyze prints quick, human-readable heuristics about the scenarios in
// the project's configs directory. It summarizes dimensions, tree cover, the
// forces of each player, and how far apart the opposing sides start.
package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/wricardo/wargame/game/config"
	"github.com/wricardo/wargame/game/engine"
)

// PlayerForces summarizes one side of a scenario.
type PlayerForces struct {
	Player   engine.PlayerID
	Units    int
	Troops   int
	Carrying int
}

// Contact is the closest pair of opposing units at the start of a scenario.
type Contact struct {
	UnitID   engine.UnitID
	EnemyID  engine.UnitID
	Distance int
	// Turns is how many full moves on open ground the unit needs to close the gap, -1 if it cannot move.
	Turns int
}

// Analysis is the summary of a single scenario.
type Analysis struct {
	ID         string
	Name       string
	Width      int
	Height     int
	Trees      int
	TreeCover  float64
	TotalUnits int
	Forces     []PlayerForces
	Unopposed  []engine.PlayerID
	Contact    *Contact
}

func main() {
	configDir := "configs"
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	manager, err := config.NewManager(configDir)
	if err != nil {
		fmt.Printf("Error loading configs: %v\n", err)
		os.Exit(1)
	}

	scenarios, err := manager.ListScenarios()
	if err != nil {
		fmt.Printf("Error listing scenarios: %v\n", err)
		os.Exit(1)
	}

	for _, info := range scenarios {
		fmt.Printf("\n=== Analyzing %s ===\n", info.Filename)
		scenario, err := manager.LoadScenario(info.ScenarioID)
		if err != nil {
			fmt.Printf("Error loading scenario: %v\n", err)
			continue
		}
		analysis, err := analyzeScenario(info.ScenarioID, scenario, manager.Catalog())
		if err != nil {
			fmt.Printf("Error analyzing scenario: %v\n", err)
			continue
		}
		printAnalysis(os.Stdout, analysis)
	}
}

func analyzeScenario(id string, scenario *engine.Scenario, catalog *engine.StaticCatalog) (*Analysis, error) {
	events, err := engine.OpeningEvents(scenario, catalog)
	if err != nil {
		return nil, err
	}
	state, err := engine.Replay(catalog, scenario, events)
	if err != nil {
		return nil, err
	}

	a := &Analysis{
		ID:     id,
		Name:   scenario.Name,
		Width:  scenario.Width,
		Height: scenario.Height,
		Trees:  state.Map().CountTerrain(engine.Trees),
	}
	a.TreeCover = float64(a.Trees) / float64(a.Width*a.Height)

	units := engine.UnitsByPlayer(state)
	strength := engine.TroopStrength(state)
	carrying := make(map[engine.PlayerID]int)
	for _, u := range state.SortedUnits() {
		if u.PassengerID != nil {
			carrying[u.PlayerID]++
		}
	}

	players := append([]engine.PlayerID(nil), scenario.Players...)
	sort.Slice(players, func(i, j int) bool { return players[i] < players[j] })
	for _, p := range players {
		a.Forces = append(a.Forces, PlayerForces{
			Player:   p,
			Units:    units[p],
			Troops:   strength[p],
			Carrying: carrying[p],
		})
		a.TotalUnits += units[p]
		if units[p] == 0 {
			a.Unopposed = append(a.Unopposed, p)
		}
	}

	for _, u := range state.SortedUnits() {
		enemy, distance, ok := engine.NearestEnemy(state, u.ID)
		if !ok {
			continue
		}
		if a.Contact != nil && distance >= a.Contact.Distance {
			continue
		}
		a.Contact = &Contact{
			UnitID:   u.ID,
			EnemyID:  enemy.ID,
			Distance: distance,
			Turns:    turnsToClose(distance, u.MovePoints),
		}
	}

	return a, nil
}

// turnsToClose counts the moves needed to end adjacent to a target at the given distance
func turnsToClose(distance, movePoints int) int {
	gap := distance - 1
	if gap <= 0 {
		return 0
	}
	if movePoints <= 0 {
		return -1
	}
	return (gap + movePoints - 1) / movePoints
}

func printAnalysis(w io.Writer, a *Analysis) {
	fmt.Fprintf(w, "Name: %s\n", a.Name)
	fmt.Fprintf(w, "Grid Size: %d x %d\n", a.Width, a.Height)
	fmt.Fprintf(w, "Tree Cover: %d tiles (%.0f%%)\n", a.Trees, a.TreeCover*100)
	fmt.Fprintf(w, "Total Units: %d\n", a.TotalUnits)

	for _, f := range a.Forces {
		fmt.Fprintf(w, "Player %d: %d units, %d troops", f.Player, f.Units, f.Troops)
		if f.Carrying > 0 {
			fmt.Fprintf(w, ", %d loaded transporters", f.Carrying)
		}
		fmt.Fprintln(w)
	}

	if len(a.Unopposed) > 0 {
		fmt.Fprintf(w, "⚠️  WARNING: %d players start without units: %v\n", len(a.Unopposed), a.Unopposed)
	}

	switch {
	case a.Contact == nil:
		fmt.Fprintf(w, "⚠️  No opposing units on the map\n")
	case a.Contact.Turns < 0:
		fmt.Fprintf(w, "Closest contact: unit %d to unit %d at distance %d (unit cannot move)\n",
			a.Contact.UnitID, a.Contact.EnemyID, a.Contact.Distance)
	case a.Contact.Turns == 0:
		fmt.Fprintf(w, "⚠️  Units %d and %d start in contact\n", a.Contact.UnitID, a.Contact.EnemyID)
	default:
		fmt.Fprintf(w, "✅ Closest contact: unit %d to unit %d at distance %d, %d turns away\n",
			a.Contact.UnitID, a.Contact.EnemyID, a.Contact.Distance, a.Contact.Turns)
	}
}
