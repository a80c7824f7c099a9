package engine

import "sort"

// UnitType is the static template every unit of a type starts from.
type UnitType struct {
	ID                   UnitTypeID `json:"id"`
	Name                 string     `json:"name"`
	MovePoints           int        `json:"move_points"`
	AttackPoints         int        `json:"attack_points"`
	ReactiveAttackPoints int        `json:"reactive_attack_points"`
	Count                int        `json:"count"`
	IsTransporter        bool       `json:"is_transporter"`
}

// Catalog is the read-only unit type database
type Catalog interface {
	UnitType(id UnitTypeID) (UnitType, bool)
}

// StaticCatalog is an in-memory Catalog keyed by type id
type StaticCatalog struct {
	types map[UnitTypeID]UnitType
}

// NewStaticCatalog builds a catalog from a list of types. Later duplicates replace earlier ones.
func NewStaticCatalog(types ...UnitType) *StaticCatalog {
	c := &StaticCatalog{types: make(map[UnitTypeID]UnitType, len(types))}
	for _, t := range types {
		c.types[t.ID] = t
	}
	return c
}

// UnitType implements Catalog
func (c *StaticCatalog) UnitType(id UnitTypeID) (UnitType, bool) {
	t, ok := c.types[id]
	return t, ok
}

// ByName finds a type by its name
func (c *StaticCatalog) ByName(name string) (UnitType, bool) {
	for _, t := range c.types {
		if t.Name == name {
			return t, true
		}
	}
	return UnitType{}, false
}

// Types returns every type ordered by id
func (c *StaticCatalog) Types() []UnitType {
	out := make([]UnitType, 0, len(c.types))
	for _, t := range c.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Unit is the runtime record of a unit in play.
//
// ReactiveAttackPoints and PassengerID are nil when the observer only has partial
// information about the unit. Nil means unknown, which is different from zero.
type Unit struct {
	ID                   UnitID     `json:"id"`
	Pos                  MapPos     `json:"pos"`
	PlayerID             PlayerID   `json:"player_id"`
	TypeID               UnitTypeID `json:"type_id"`
	MovePoints           int        `json:"move_points"`
	AttackPoints         int        `json:"attack_points"`
	ReactiveAttackPoints *int       `json:"reactive_attack_points,omitempty"`
	Count                int        `json:"count"`
	Morale               int        `json:"morale"`
	PassengerID          *UnitID    `json:"passenger_id,omitempty"`
	InfoLevel            InfoLevel  `json:"info_level"`
}

// newUnit builds a unit from its type template at the given information level.
func newUnit(info UnitInfo, t UnitType, level InfoLevel) *Unit {
	u := &Unit{
		ID:           info.UnitID,
		Pos:          info.Pos,
		PlayerID:     info.PlayerID,
		TypeID:       info.TypeID,
		MovePoints:   t.MovePoints,
		AttackPoints: t.AttackPoints,
		Count:        t.Count,
		Morale:       InitialMorale,
		InfoLevel:    level,
	}
	if level == InfoFull {
		rap := t.ReactiveAttackPoints
		u.ReactiveAttackPoints = &rap
		if info.PassengerID != nil {
			id := *info.PassengerID
			u.PassengerID = &id
		}
	}
	return u
}

// Clone returns a deep copy so callers cannot reach into the state through pointers.
func (u Unit) Clone() Unit {
	if u.ReactiveAttackPoints != nil {
		rap := *u.ReactiveAttackPoints
		u.ReactiveAttackPoints = &rap
	}
	if u.PassengerID != nil {
		id := *u.PassengerID
		u.PassengerID = &id
	}
	return u
}

// HasFullInfo reports whether hidden attributes are known for this unit
func (u Unit) HasFullInfo() bool {
	return u.InfoLevel == InfoFull
}
