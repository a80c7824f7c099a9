package engine

import "fmt"

// PlayerID identifies a side in the battle.
type PlayerID int

// UnitID identifies a unit. Ids are assigned upstream and never reused while live.
type UnitID int

// UnitTypeID is a key into the unit type catalog.
type UnitTypeID int

// Terrain is the classification of a single grid cell
type Terrain string

const (
	Plain Terrain = "plain"
	Trees Terrain = "trees"
)

const (
	// InitialMorale is the morale every unit starts with
	InitialMorale = 100

	// MoraleRefresh is added to each incoming player's unit at the turn refresh
	MoraleRefresh = 10

	// Validation constants
	MinGridSize    = 1
	MaxGridSize    = 100
	MaxBatchEvents = 200
)

// MapPos is a grid coordinate
type MapPos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p MapPos) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Size2 is the width and height of the terrain grid
type Size2 struct {
	W int `json:"w"`
	H int `json:"h"`
}

// MoveMode selects the movement cost multiplier
type MoveMode string

const (
	MoveFast MoveMode = "fast"
	MoveHunt MoveMode = "hunt"
)

// costMultiplier returns 1 for fast movement and 2 for anything else.
func (m MoveMode) costMultiplier() int {
	if m == MoveFast {
		return 1
	}
	return 2
}

// FireMode selects which attack budget an attack is paid from
type FireMode string

const (
	FireActive   FireMode = "active"
	FireReactive FireMode = "reactive"
)

// InfoLevel records how much an observer knows about a unit.
type InfoLevel string

const (
	InfoFull    InfoLevel = "full"
	InfoPartial InfoLevel = "partial"
)

// PathNode is one step of a movement path. Cost is the price of entering Pos.
type PathNode struct {
	Pos  MapPos `json:"pos"`
	Cost int    `json:"cost"`
}

// Path is a movement path produced by the upstream path finder.
// The first node is usually the start tile with a zero cost.
type Path struct {
	Nodes []PathNode `json:"nodes"`
}

// NewPath builds a path from positions where every step after the first costs stepCost.
func NewPath(stepCost int, positions ...MapPos) Path {
	nodes := make([]PathNode, len(positions))
	for i, pos := range positions {
		nodes[i] = PathNode{Pos: pos}
		if i > 0 {
			nodes[i].Cost = stepCost
		}
	}
	return Path{Nodes: nodes}
}

// Destination returns the last node of the path
func (p Path) Destination() (MapPos, bool) {
	if len(p.Nodes) == 0 {
		return MapPos{}, false
	}
	return p.Nodes[len(p.Nodes)-1].Pos, true
}

// CostWithin sums node costs, giving up as soon as the sum would pass limit.
// A negative node cost also reports false.
func (p Path) CostWithin(limit int) (int, bool) {
	total := 0
	for _, n := range p.Nodes {
		if n.Cost < 0 || n.Cost > limit-total {
			return total, false
		}
		total += n.Cost
	}
	return total, true
}

// UnitInfo describes a unit as carried by creation, reveal and unload events.
type UnitInfo struct {
	UnitID      UnitID     `json:"unit_id"`
	Pos         MapPos     `json:"pos"`
	TypeID      UnitTypeID `json:"type_id"`
	PlayerID    PlayerID   `json:"player_id"`
	PassengerID *UnitID    `json:"passenger_id,omitempty"`
}
