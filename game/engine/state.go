package engine

import (
	"fmt"
	"sort"
)

// forestPatch is the placeholder scenario carved by NewState.
var forestPatch = []MapPos{
	{X: 4, Y: 3},
	{X: 4, Y: 4},
	{X: 4, Y: 5},
	{X: 5, Y: 5},
	{X: 6, Y: 4},
}

// State is the world state of one observer: the terrain grid plus every unit the
// observer knows about. It is mutated only through Apply and is not safe for
// concurrent use; callers serialize events per instance.
type State struct {
	units  map[UnitID]*Unit
	grid   *Map
	failed error
}

// NewState builds an all-plain grid of the given size with the placeholder forest patch.
func NewState(size Size2) *State {
	grid := NewMap(size, Plain)
	for _, pos := range forestPatch {
		if grid.InBounds(pos) {
			grid.setTile(pos, Trees)
		}
	}
	return &State{
		units: make(map[UnitID]*Unit),
		grid:  grid,
	}
}

// NewStateFromScenario builds the grid from a scenario layout. Units are not placed
// here; they enter the state through CreateUnit events.
func NewStateFromScenario(scenario *Scenario) (*State, error) {
	if err := ValidateScenario(scenario); err != nil {
		return nil, err
	}

	grid := NewMap(Size2{W: scenario.Width, H: scenario.Height}, Plain)
	for y, row := range scenario.Layout {
		for x, c := range row {
			terrain, _ := TerrainFromChar(c)
			grid.setTile(MapPos{X: x, Y: y}, terrain)
		}
	}

	return &State{
		units: make(map[UnitID]*Unit),
		grid:  grid,
	}, nil
}

// Units returns a copy of the identity to unit mapping
func (s *State) Units() map[UnitID]Unit {
	out := make(map[UnitID]Unit, len(s.units))
	for id, u := range s.units {
		out[id] = u.Clone()
	}
	return out
}

// SortedUnits returns every unit ordered by id
func (s *State) SortedUnits() []Unit {
	out := make([]Unit, 0, len(s.units))
	for _, u := range s.units {
		out = append(out, u.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Unit returns the unit with the given id. A missing unit is a desync: callers are
// expected to know the id exists.
func (s *State) Unit(id UnitID) (Unit, error) {
	u, ok := s.units[id]
	if !ok {
		return Unit{}, fmt.Errorf("%w: %w: %d", ErrDesync, ErrUnitNotFound, id)
	}
	return u.Clone(), nil
}

// HasUnit reports whether the unit is known to this observer
func (s *State) HasUnit(id UnitID) bool {
	_, ok := s.units[id]
	return ok
}

// UnitsAt returns every unit on pos, ordered by id. This is a linear scan; battles
// are small enough that an index is not worth keeping in sync.
func (s *State) UnitsAt(pos MapPos) []Unit {
	var out []Unit
	for _, u := range s.units {
		if u.Pos == pos {
			out = append(out, u.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IsTileOccupied reports whether any unit stands on pos
func (s *State) IsTileOccupied(pos MapPos) bool {
	return len(s.UnitsAt(pos)) > 0
}

// Map returns the terrain grid. Callers must treat it as read-only.
func (s *State) Map() *Map {
	return s.grid
}

// Err returns the desync that halted this state, or nil
func (s *State) Err() error {
	return s.failed
}

// Apply applies one event. Preconditions are checked before anything is mutated, so
// a rejected event leaves the state as it was. The first desync halts the instance
// and every later call returns ErrHalted.
func (s *State) Apply(catalog Catalog, ev Event) error {
	if s.failed != nil {
		return fmt.Errorf("%w: %w", ErrHalted, s.failed)
	}

	var err error
	switch e := ev.(type) {
	case Move:
		err = s.applyMove(catalog, e)
	case EndTurn:
		err = s.applyEndTurn(catalog, e)
	case CreateUnit:
		err = s.addUnit(catalog, KindCreateUnit, e.UnitInfo, InfoFull)
	case AttackUnit:
		err = s.applyAttack(e)
	case ShowUnit:
		err = s.addUnit(catalog, KindShowUnit, e.UnitInfo, InfoPartial)
	case HideUnit:
		err = s.applyHide(e)
	case LoadUnit:
		err = s.applyLoad(e)
	case UnloadUnit:
		err = s.applyUnload(catalog, e)
	case nil:
		err = desyncNoUnit("", ErrInvalidEvent, "nil event")
	default:
		err = desyncNoUnit(ev.Kind(), ErrInvalidEvent, "unhandled event type %T", ev)
	}

	if err != nil {
		s.failed = err
		return err
	}
	return nil
}
