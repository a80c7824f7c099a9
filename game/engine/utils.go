package engine

// ManhattanDistance calculates the Manhattan distance between two positions
func ManhattanDistance(from, to MapPos) int {
	dx := from.X - to.X
	if dx < 0 {
		dx = -dx
	}
	dy := from.Y - to.Y
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

// NearestEnemy finds the closest unit of another player and returns it with its distance.
// Ties are broken by the lower unit id.
func NearestEnemy(state *State, id UnitID) (Unit, int, bool) {
	self, ok := state.units[id]
	if !ok {
		return Unit{}, 0, false
	}

	minDistance := -1
	var nearest Unit
	for _, u := range state.SortedUnits() {
		if u.PlayerID == self.PlayerID {
			continue
		}
		distance := ManhattanDistance(self.Pos, u.Pos)
		if minDistance == -1 || distance < minDistance {
			minDistance = distance
			nearest = u
		}
	}

	return nearest, minDistance, minDistance >= 0
}

// UnitsByPlayer counts the known units of each player
func UnitsByPlayer(state *State) map[PlayerID]int {
	counts := make(map[PlayerID]int)
	for _, u := range state.units {
		counts[u.PlayerID]++
	}
	return counts
}

// TroopStrength sums the troop counts of each player's known units
func TroopStrength(state *State) map[PlayerID]int {
	strength := make(map[PlayerID]int)
	for _, u := range state.units {
		strength[u.PlayerID] += u.Count
	}
	return strength
}
