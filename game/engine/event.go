package engine

// EventKind names an event variant on the wire and in logs
type EventKind string

const (
	KindMove       EventKind = "move"
	KindEndTurn    EventKind = "end_turn"
	KindCreateUnit EventKind = "create_unit"
	KindAttackUnit EventKind = "attack_unit"
	KindShowUnit   EventKind = "show_unit"
	KindHideUnit   EventKind = "hide_unit"
	KindLoadUnit   EventKind = "load_unit"
	KindUnloadUnit EventKind = "unload_unit"
)

// EventKinds lists every variant in declaration order.
var EventKinds = []EventKind{
	KindMove,
	KindEndTurn,
	KindCreateUnit,
	KindAttackUnit,
	KindShowUnit,
	KindHideUnit,
	KindLoadUnit,
	KindUnloadUnit,
}

// Event is a closed set of state transitions. Only the types in this file implement it.
type Event interface {
	Kind() EventKind
	sealed()
}

// Move relocates a unit along a path and charges its movement points.
type Move struct {
	UnitID UnitID   `json:"unit_id"`
	Path   Path     `json:"path"`
	Mode   MoveMode `json:"mode"`
}

// EndTurn hands the turn from OldID to NewID.
type EndTurn struct {
	OldID PlayerID `json:"old_id"`
	NewID PlayerID `json:"new_id"`
}

// CreateUnit adds a unit the observer fully knows about.
type CreateUnit struct {
	UnitInfo UnitInfo `json:"unit_info"`
}

// AttackUnit applies losses and suppression to a defender and pays the attacker's cost.
// AttackerID is nil for scripted or environmental damage.
type AttackUnit struct {
	AttackerID       *UnitID  `json:"attacker_id,omitempty"`
	DefenderID       UnitID   `json:"defender_id"`
	Mode             FireMode `json:"mode"`
	Killed           int      `json:"killed"`
	Suppression      int      `json:"suppression"`
	RemoveMovePoints bool     `json:"remove_move_points"`
}

// ShowUnit reveals an enemy unit with partial information.
type ShowUnit struct {
	UnitInfo UnitInfo `json:"unit_info"`
}

// HideUnit removes a unit that left the observer's view.
type HideUnit struct {
	UnitID UnitID `json:"unit_id"`
}

// LoadUnit puts a passenger into a transporter.
type LoadUnit struct {
	PassengerID   UnitID `json:"passenger_id"`
	TransporterID UnitID `json:"transporter_id"`
}

// UnloadUnit drops the transporter's passenger at UnitInfo.Pos.
type UnloadUnit struct {
	TransporterID UnitID   `json:"transporter_id"`
	UnitInfo      UnitInfo `json:"unit_info"`
}

func (Move) Kind() EventKind       { return KindMove }
func (EndTurn) Kind() EventKind    { return KindEndTurn }
func (CreateUnit) Kind() EventKind { return KindCreateUnit }
func (AttackUnit) Kind() EventKind { return KindAttackUnit }
func (ShowUnit) Kind() EventKind   { return KindShowUnit }
func (HideUnit) Kind() EventKind   { return KindHideUnit }
func (LoadUnit) Kind() EventKind   { return KindLoadUnit }
func (UnloadUnit) Kind() EventKind { return KindUnloadUnit }

func (Move) sealed()       {}
func (EndTurn) sealed()    {}
func (CreateUnit) sealed() {}
func (AttackUnit) sealed() {}
func (ShowUnit) sealed()   {}
func (HideUnit) sealed()   {}
func (LoadUnit) sealed()   {}
func (UnloadUnit) sealed() {}

// Attacker is a helper for building AttackUnit events with an attacker
func Attacker(id UnitID) *UnitID {
	return &id
}
