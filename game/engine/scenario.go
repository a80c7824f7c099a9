package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Scenario describes a battlefield: terrain layout plus the opening placement of units.
type Scenario struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	Layout      []string    `json:"layout"`
	Players     []PlayerID  `json:"players"`
	Units       []Placement `json:"units,omitempty"`
}

// Placement puts one unit of a named type on the map when a session starts
type Placement struct {
	UnitID      UnitID   `json:"unit_id"`
	Type        string   `json:"type"`
	PlayerID    PlayerID `json:"player_id"`
	Pos         MapPos   `json:"pos"`
	PassengerID *UnitID  `json:"passenger_id,omitempty"`
}

// Size returns the scenario grid size
func (s *Scenario) Size() Size2 {
	return Size2{W: s.Width, H: s.Height}
}

// ValidateScenario checks the layout and placements for internal consistency.
// Unit types are checked separately against a catalog by OpeningEvents.
func ValidateScenario(s *Scenario) error {
	if s == nil {
		return fmt.Errorf("scenario validation: scenario is nil")
	}
	if s.Name == "" {
		return fmt.Errorf("scenario validation: name is required")
	}
	if s.Width < MinGridSize || s.Width > MaxGridSize {
		return fmt.Errorf("scenario validation: width must be between %d and %d, got %d", MinGridSize, MaxGridSize, s.Width)
	}
	if s.Height < MinGridSize || s.Height > MaxGridSize {
		return fmt.Errorf("scenario validation: height must be between %d and %d, got %d", MinGridSize, MaxGridSize, s.Height)
	}

	if len(s.Layout) != s.Height {
		return fmt.Errorf("scenario validation: layout must have %d rows to match height, got %d", s.Height, len(s.Layout))
	}
	for i, row := range s.Layout {
		if len(row) != s.Width {
			return fmt.Errorf("scenario validation: row %d must have %d characters to match width, got %d",
				i+1, s.Width, len(row))
		}
		for j, c := range row {
			if _, ok := TerrainFromChar(c); !ok {
				return fmt.Errorf("scenario validation: invalid character '%c' at row %d, col %d", c, i+1, j+1)
			}
		}
	}

	if len(s.Players) == 0 {
		return fmt.Errorf("scenario validation: at least one player is required")
	}
	players := make(map[PlayerID]bool, len(s.Players))
	for _, p := range s.Players {
		players[p] = true
	}

	seen := make(map[UnitID]bool, len(s.Units))
	for _, u := range s.Units {
		if seen[u.UnitID] {
			return fmt.Errorf("scenario validation: duplicate unit id %d", u.UnitID)
		}
		seen[u.UnitID] = true
		if u.Pos.X < 0 || u.Pos.Y < 0 || u.Pos.X >= s.Width || u.Pos.Y >= s.Height {
			return fmt.Errorf("scenario validation: unit %d at %s is outside the map", u.UnitID, u.Pos)
		}
		if !players[u.PlayerID] {
			return fmt.Errorf("scenario validation: unit %d belongs to unknown player %d", u.UnitID, u.PlayerID)
		}
		if strings.TrimSpace(u.Type) == "" {
			return fmt.Errorf("scenario validation: unit %d has no type", u.UnitID)
		}
	}
	for _, u := range s.Units {
		if u.PassengerID != nil && !seen[*u.PassengerID] {
			return fmt.Errorf("scenario validation: unit %d carries unknown passenger %d", u.UnitID, *u.PassengerID)
		}
	}

	return nil
}

// OpeningEvents turns scenario placements into CreateUnit events, resolving type names.
func OpeningEvents(s *Scenario, catalog *StaticCatalog) ([]Event, error) {
	events := make([]Event, 0, len(s.Units))
	for _, u := range s.Units {
		unitType, ok := catalog.ByName(u.Type)
		if !ok {
			return nil, fmt.Errorf("scenario %s: unit %d: %w %q", s.Name, u.UnitID, ErrUnknownUnitType, u.Type)
		}
		events = append(events, CreateUnit{UnitInfo: UnitInfo{
			UnitID:      u.UnitID,
			Pos:         u.Pos,
			TypeID:      unitType.ID,
			PlayerID:    u.PlayerID,
			PassengerID: u.PassengerID,
		}})
	}
	return events, nil
}

// LoadScenario loads and validates a scenario from a JSON file
func LoadScenario(filename string) (*Scenario, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := json.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("failed to parse scenario '%s': %w", filename, err)
	}

	if err := ValidateScenario(&scenario); err != nil {
		return nil, err
	}

	return &scenario, nil
}

// DefaultScenario is the 10x10 skirmish map with the small forest patch.
func DefaultScenario() *Scenario {
	state := NewState(Size2{W: 10, H: 10})
	return &Scenario{
		Name:        "skirmish",
		Description: "Open 10x10 field with a small forest patch",
		Width:       10,
		Height:      10,
		Layout:      state.Map().Rows(),
		Players:     []PlayerID{0, 1},
	}
}

// DefaultCatalog is the built-in unit type database used when no catalog file exists.
func DefaultCatalog() *StaticCatalog {
	return NewStaticCatalog(
		UnitType{ID: 0, Name: "soldier", MovePoints: 3, AttackPoints: 2, ReactiveAttackPoints: 1, Count: 4},
		UnitType{ID: 1, Name: "scout", MovePoints: 5, AttackPoints: 1, ReactiveAttackPoints: 1, Count: 2},
		UnitType{ID: 2, Name: "tank", MovePoints: 4, AttackPoints: 1, ReactiveAttackPoints: 1, Count: 1},
		UnitType{ID: 3, Name: "truck", MovePoints: 6, AttackPoints: 0, ReactiveAttackPoints: 0, Count: 1, IsTransporter: true},
	)
}
