package engine

// Each transition validates everything it needs first and only then mutates, so a
// desync never leaves a half-applied event behind.

func (s *State) applyMove(catalog Catalog, e Move) error {
	unit, ok := s.units[e.UnitID]
	if !ok {
		return desync(KindMove, e.UnitID, ErrUnitNotFound, "mover")
	}
	dest, ok := e.Path.Destination()
	if !ok {
		return desync(KindMove, e.UnitID, ErrInvalidEvent, "empty path")
	}
	if !s.grid.InBounds(dest) {
		return desync(KindMove, e.UnitID, ErrInvalidEvent, "destination %s outside map", dest)
	}
	for _, n := range e.Path.Nodes {
		if n.Cost < 0 {
			return desync(KindMove, e.UnitID, ErrInvalidEvent, "negative step cost %d at %s", n.Cost, n.Pos)
		}
	}
	if unit.MovePoints <= 0 {
		return desync(KindMove, e.UnitID, ErrBudgetExhausted, "no movement points left")
	}
	// Bound the path cost by the budget before multiplying so huge costs cannot wrap.
	multiplier := e.Mode.costMultiplier()
	pathCost, within := e.Path.CostWithin(unit.MovePoints)
	if !within || pathCost > unit.MovePoints/multiplier {
		return desync(KindMove, e.UnitID, ErrBudgetExhausted,
			"path costs more than %d movement points in %s mode", unit.MovePoints, e.Mode)
	}
	cost := pathCost * multiplier
	unitType, ok := catalog.UnitType(unit.TypeID)
	if !ok {
		return desync(KindMove, e.UnitID, ErrUnknownUnitType, "type %d", unit.TypeID)
	}

	unit.Pos = dest
	unit.MovePoints -= cost

	// A carried passenger rides along with its transporter.
	if unitType.IsTransporter && unit.PassengerID != nil {
		if passenger, ok := s.units[*unit.PassengerID]; ok {
			passenger.Pos = dest
		}
	}
	return nil
}

func (s *State) applyEndTurn(catalog Catalog, e EndTurn) error {
	templates := make(map[UnitID]UnitType)
	for id, unit := range s.units {
		if unit.PlayerID != e.NewID {
			continue
		}
		unitType, ok := catalog.UnitType(unit.TypeID)
		if !ok {
			return desync(KindEndTurn, id, ErrUnknownUnitType, "type %d", unit.TypeID)
		}
		templates[id] = unitType
	}

	// Unspent active attacks stay available as reactive fire during the opponent's turn.
	for _, unit := range s.units {
		if unit.PlayerID != e.OldID {
			continue
		}
		if unit.ReactiveAttackPoints != nil {
			*unit.ReactiveAttackPoints += unit.AttackPoints
		}
		unit.AttackPoints = 0
	}

	for id, unitType := range templates {
		unit := s.units[id]
		unit.MovePoints = unitType.MovePoints
		unit.AttackPoints = unitType.AttackPoints
		if unit.ReactiveAttackPoints != nil {
			*unit.ReactiveAttackPoints = unitType.ReactiveAttackPoints
		}
		unit.Morale += MoraleRefresh
	}
	return nil
}

func (s *State) addUnit(catalog Catalog, kind EventKind, info UnitInfo, level InfoLevel) error {
	if _, exists := s.units[info.UnitID]; exists {
		return desync(kind, info.UnitID, ErrDuplicateUnit, "")
	}
	unitType, ok := catalog.UnitType(info.TypeID)
	if !ok {
		return desync(kind, info.UnitID, ErrUnknownUnitType, "type %d", info.TypeID)
	}
	if !s.grid.InBounds(info.Pos) {
		return desync(kind, info.UnitID, ErrInvalidEvent, "position %s outside map", info.Pos)
	}
	s.units[info.UnitID] = newUnit(info, unitType, level)
	return nil
}

func (s *State) applyAttack(e AttackUnit) error {
	defender, ok := s.units[e.DefenderID]
	if !ok {
		return desync(KindAttackUnit, e.DefenderID, ErrUnitNotFound, "defender")
	}
	if e.Killed < 0 || e.Suppression < 0 {
		return desync(KindAttackUnit, e.DefenderID, ErrInvalidEvent,
			"negative losses (killed %d, suppression %d)", e.Killed, e.Suppression)
	}

	// The attacker may be invisible to this observer; its cost is then not ours to track.
	var attacker *Unit
	if e.AttackerID != nil {
		attacker = s.units[*e.AttackerID]
		if e.Mode != FireActive && e.Mode != FireReactive {
			return desync(KindAttackUnit, *e.AttackerID, ErrInvalidEvent, "fire mode %q", e.Mode)
		}
	}
	if attacker != nil {
		switch e.Mode {
		case FireActive:
			if attacker.AttackPoints < 1 {
				return desync(KindAttackUnit, attacker.ID, ErrBudgetExhausted, "no active attack points left")
			}
		case FireReactive:
			if attacker.ReactiveAttackPoints != nil && *attacker.ReactiveAttackPoints < 1 {
				return desync(KindAttackUnit, attacker.ID, ErrBudgetExhausted, "no reactive attack points left")
			}
		}
	}

	defender.Count -= e.Killed
	defender.Morale -= e.Suppression
	if e.RemoveMovePoints {
		defender.MovePoints = 0
	}
	if defender.Count <= 0 {
		s.removeDestroyed(defender)
	}

	if attacker == nil || !s.HasUnit(attacker.ID) {
		return nil
	}
	switch e.Mode {
	case FireActive:
		attacker.AttackPoints--
	case FireReactive:
		if attacker.ReactiveAttackPoints != nil {
			*attacker.ReactiveAttackPoints--
		}
	}
	return nil
}

// removeDestroyed removes a dead unit together with whatever it was carrying.
func (s *State) removeDestroyed(unit *Unit) {
	if unit.PassengerID != nil {
		delete(s.units, *unit.PassengerID)
	}
	delete(s.units, unit.ID)
}

func (s *State) applyHide(e HideUnit) error {
	if !s.HasUnit(e.UnitID) {
		return desync(KindHideUnit, e.UnitID, ErrUnitNotFound, "")
	}
	delete(s.units, e.UnitID)
	return nil
}

func (s *State) applyLoad(e LoadUnit) error {
	transporter, ok := s.units[e.TransporterID]
	if !ok {
		return desync(KindLoadUnit, e.TransporterID, ErrUnitNotFound, "transporter")
	}
	passenger, ok := s.units[e.PassengerID]
	if !ok {
		return desync(KindLoadUnit, e.PassengerID, ErrUnitNotFound, "passenger")
	}
	if e.PassengerID == e.TransporterID {
		return desync(KindLoadUnit, e.PassengerID, ErrInvalidEvent, "unit cannot load itself")
	}

	// A partially known transporter never exposes what it carries.
	// TODO: the passenger itself stays visible to observers that should lose sight of it.
	if transporter.HasFullInfo() {
		id := e.PassengerID
		transporter.PassengerID = &id
	}
	passenger.Pos = transporter.Pos
	passenger.MovePoints = 0
	return nil
}

func (s *State) applyUnload(catalog Catalog, e UnloadUnit) error {
	transporter, ok := s.units[e.TransporterID]
	if !ok {
		return desync(KindUnloadUnit, e.TransporterID, ErrUnitNotFound, "transporter")
	}
	if !s.grid.InBounds(e.UnitInfo.Pos) {
		return desync(KindUnloadUnit, e.UnitInfo.UnitID, ErrInvalidEvent, "position %s outside map", e.UnitInfo.Pos)
	}

	if passenger, ok := s.units[e.UnitInfo.UnitID]; ok {
		transporter.PassengerID = nil
		passenger.Pos = e.UnitInfo.Pos
		return nil
	}

	// The passenger was hidden from this observer until it stepped out.
	unitType, ok := catalog.UnitType(e.UnitInfo.TypeID)
	if !ok {
		return desync(KindUnloadUnit, e.UnitInfo.UnitID, ErrUnknownUnitType, "type %d", e.UnitInfo.TypeID)
	}
	transporter.PassengerID = nil
	s.units[e.UnitInfo.UnitID] = newUnit(e.UnitInfo, unitType, InfoPartial)
	return nil
}
