package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMove(t *testing.T) {
	origin := MapPos{X: 1, Y: 1}
	tests := []struct {
		name    string
		event   Move
		wantErr error
		wantPos MapPos
		wantMP  int
	}{
		{
			name:    "fast move pays path cost",
			event:   Move{UnitID: 1, Path: NewPath(1, origin, MapPos{X: 2, Y: 1}, MapPos{X: 3, Y: 1}), Mode: MoveFast},
			wantPos: MapPos{X: 3, Y: 1},
			wantMP:  1,
		},
		{
			name:    "hunt move pays double",
			event:   Move{UnitID: 1, Path: NewPath(1, origin, MapPos{X: 1, Y: 2}), Mode: MoveHunt},
			wantPos: MapPos{X: 1, Y: 2},
			wantMP:  1,
		},
		{
			name:    "spending every point is allowed",
			event:   Move{UnitID: 1, Path: NewPath(3, origin, MapPos{X: 1, Y: 2}), Mode: MoveFast},
			wantPos: MapPos{X: 1, Y: 2},
			wantMP:  0,
		},
		{
			name:    "overdraw",
			event:   Move{UnitID: 1, Path: NewPath(2, origin, MapPos{X: 1, Y: 2}), Mode: MoveHunt},
			wantErr: ErrBudgetExhausted,
		},
		{
			name: "huge hunt cost does not wrap",
			event: Move{UnitID: 1, Mode: MoveHunt, Path: Path{Nodes: []PathNode{
				{Pos: origin}, {Pos: MapPos{X: 2, Y: 1}, Cost: math.MaxInt},
			}}},
			wantErr: ErrBudgetExhausted,
		},
		{
			name: "huge fast path sum does not wrap",
			event: Move{UnitID: 1, Mode: MoveFast, Path: Path{Nodes: []PathNode{
				{Pos: origin}, {Pos: MapPos{X: 2, Y: 1}, Cost: math.MaxInt}, {Pos: MapPos{X: 3, Y: 1}, Cost: math.MaxInt},
			}}},
			wantErr: ErrBudgetExhausted,
		},
		{
			name: "negative step cost",
			event: Move{UnitID: 1, Mode: MoveFast, Path: Path{Nodes: []PathNode{
				{Pos: origin}, {Pos: MapPos{X: 2, Y: 1}, Cost: 2}, {Pos: MapPos{X: 3, Y: 1}, Cost: -1},
			}}},
			wantErr: ErrInvalidEvent,
		},
		{
			name:    "unknown mover",
			event:   Move{UnitID: 9, Path: NewPath(1, origin, MapPos{X: 1, Y: 2}), Mode: MoveFast},
			wantErr: ErrUnitNotFound,
		},
		{
			name:    "empty path",
			event:   Move{UnitID: 1, Mode: MoveFast},
			wantErr: ErrInvalidEvent,
		},
		{
			name:    "destination off map",
			event:   Move{UnitID: 1, Path: NewPath(1, origin, MapPos{X: 10, Y: 1}), Mode: MoveFast},
			wantErr: ErrInvalidEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := plainState(t)
			mustApply(t, state, createUnit(1, rifles, 1, origin.X, origin.Y))

			err := state.Apply(testCatalog(), tt.event)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsDesync(err))
				u := mustUnit(t, state, 1)
				assert.Equal(t, origin, u.Pos, "rejected move must not relocate")
				assert.Equal(t, 3, u.MovePoints, "rejected move must not charge")
				return
			}
			require.NoError(t, err)
			u := mustUnit(t, state, 1)
			assert.Equal(t, tt.wantPos, u.Pos)
			assert.Equal(t, tt.wantMP, u.MovePoints)
		})
	}
}

func TestMove_ZeroMovePointsIsDesync(t *testing.T) {
	state := plainState(t)
	mustApply(t, state,
		createUnit(1, rifles, 1, 0, 0),
		Move{UnitID: 1, Path: NewPath(3, MapPos{}, MapPos{X: 1}), Mode: MoveFast},
	)

	err := state.Apply(testCatalog(), Move{UnitID: 1, Path: NewPath(0, MapPos{X: 1}), Mode: MoveFast})
	assert.ErrorIs(t, err, ErrBudgetExhausted)
}

func TestMove_TransporterCarriesPassenger(t *testing.T) {
	state := plainState(t)
	mustApply(t, state,
		createUnit(1, truck, 1, 0, 0),
		createUnit(2, rifles, 1, 0, 1),
		LoadUnit{PassengerID: 2, TransporterID: 1},
		Move{UnitID: 1, Path: NewPath(1, MapPos{}, MapPos{X: 1}, MapPos{X: 2}), Mode: MoveFast},
	)

	assert.Equal(t, MapPos{X: 2, Y: 0}, mustUnit(t, state, 1).Pos)
	assert.Equal(t, MapPos{X: 2, Y: 0}, mustUnit(t, state, 2).Pos)
}

func TestAttack(t *testing.T) {
	t.Run("reactive fire spends reactive points", func(t *testing.T) {
		state := plainState(t)
		mustApply(t, state,
			createUnit(1, rifles, 1, 0, 0),
			createUnit(2, rifles, 2, 0, 1),
			AttackUnit{AttackerID: Attacker(1), DefenderID: 2, Mode: FireReactive, Suppression: 5},
		)
		attacker := mustUnit(t, state, 1)
		assert.Equal(t, 0, *attacker.ReactiveAttackPoints)
		assert.Equal(t, 1, attacker.AttackPoints)
		assert.Equal(t, InitialMorale-5, mustUnit(t, state, 2).Morale)

		err := state.Apply(testCatalog(), AttackUnit{AttackerID: Attacker(1), DefenderID: 2, Mode: FireReactive})
		assert.ErrorIs(t, err, ErrBudgetExhausted)
	})

	t.Run("partially known attacker fires reactively without a budget", func(t *testing.T) {
		state := plainState(t)
		mustApply(t, state,
			ShowUnit{UnitInfo: UnitInfo{UnitID: 1, TypeID: rifles, PlayerID: 2}},
			createUnit(2, rifles, 1, 0, 1),
			AttackUnit{AttackerID: Attacker(1), DefenderID: 2, Mode: FireReactive, Killed: 1},
			AttackUnit{AttackerID: Attacker(1), DefenderID: 2, Mode: FireReactive, Killed: 1},
		)
		assert.Equal(t, 3, mustUnit(t, state, 2).Count)
		assert.Nil(t, mustUnit(t, state, 1).ReactiveAttackPoints)
	})

	t.Run("unknown attacker is ignored", func(t *testing.T) {
		state := plainState(t)
		mustApply(t, state,
			createUnit(2, rifles, 1, 0, 1),
			AttackUnit{AttackerID: Attacker(77), DefenderID: 2, Mode: FireActive, Killed: 2},
		)
		assert.Equal(t, 3, mustUnit(t, state, 2).Count)
	})

	t.Run("suppression can strip movement", func(t *testing.T) {
		state := plainState(t)
		mustApply(t, state,
			createUnit(2, rifles, 1, 0, 1),
			AttackUnit{DefenderID: 2, Mode: FireActive, Suppression: 30, RemoveMovePoints: true},
		)
		defender := mustUnit(t, state, 2)
		assert.Equal(t, 0, defender.MovePoints)
		assert.Equal(t, InitialMorale-30, defender.Morale)
	})

	t.Run("destroyed transporter takes its passenger", func(t *testing.T) {
		state := plainState(t)
		mustApply(t, state,
			createUnit(1, truck, 1, 3, 3),
			createUnit(2, rifles, 1, 3, 3),
			LoadUnit{PassengerID: 2, TransporterID: 1},
			AttackUnit{DefenderID: 1, Mode: FireActive, Killed: 1},
		)
		assert.False(t, state.HasUnit(1))
		assert.False(t, state.HasUnit(2))
	})

	t.Run("unknown defender", func(t *testing.T) {
		state := plainState(t)
		err := state.Apply(testCatalog(), AttackUnit{DefenderID: 4, Mode: FireActive})
		assert.ErrorIs(t, err, ErrUnitNotFound)
	})

	t.Run("negative losses", func(t *testing.T) {
		state := plainState(t)
		mustApply(t, state, createUnit(2, rifles, 1, 0, 1))
		err := state.Apply(testCatalog(), AttackUnit{DefenderID: 2, Mode: FireActive, Killed: -1})
		assert.ErrorIs(t, err, ErrInvalidEvent)
		assert.Equal(t, 5, mustUnit(t, state, 2).Count)
	})

	t.Run("bad fire mode", func(t *testing.T) {
		state := plainState(t)
		mustApply(t, state, createUnit(1, rifles, 1, 0, 0), createUnit(2, rifles, 2, 0, 1))
		err := state.Apply(testCatalog(), AttackUnit{AttackerID: Attacker(1), DefenderID: 2, Mode: "artillery"})
		assert.ErrorIs(t, err, ErrInvalidEvent)
	})
}

func TestCreateAndShow(t *testing.T) {
	t.Run("create copies template budgets", func(t *testing.T) {
		state := plainState(t)
		mustApply(t, state, createUnit(1, mg, 2, 9, 9))
		u := mustUnit(t, state, 1)
		assert.Equal(t, 2, u.MovePoints)
		assert.Equal(t, 2, u.AttackPoints)
		assert.Equal(t, 1, *u.ReactiveAttackPoints)
		assert.Equal(t, 3, u.Count)
		assert.Equal(t, InitialMorale, u.Morale)
		assert.Equal(t, InfoFull, u.InfoLevel)
		assert.Nil(t, u.PassengerID)
	})

	t.Run("duplicate id", func(t *testing.T) {
		state := plainState(t)
		mustApply(t, state, createUnit(1, mg, 2, 0, 0))
		err := state.Apply(testCatalog(), ShowUnit{UnitInfo: UnitInfo{UnitID: 1, TypeID: rifles}})
		assert.ErrorIs(t, err, ErrDuplicateUnit)
	})

	t.Run("unknown type", func(t *testing.T) {
		state := plainState(t)
		err := state.Apply(testCatalog(), createUnit(1, 42, 2, 0, 0))
		assert.ErrorIs(t, err, ErrUnknownUnitType)
	})

	t.Run("off map", func(t *testing.T) {
		state := plainState(t)
		err := state.Apply(testCatalog(), createUnit(1, rifles, 2, -1, 0))
		assert.ErrorIs(t, err, ErrInvalidEvent)
	})
}

func TestHideUnit(t *testing.T) {
	state := plainState(t)
	mustApply(t, state, createUnit(1, rifles, 1, 0, 0), HideUnit{UnitID: 1})
	assert.False(t, state.HasUnit(1))

	// A hidden unit can be seen again later.
	mustApply(t, state, ShowUnit{UnitInfo: UnitInfo{UnitID: 1, TypeID: rifles, PlayerID: 1, Pos: MapPos{X: 2, Y: 2}}})
	assert.Equal(t, InfoPartial, mustUnit(t, state, 1).InfoLevel)
}

func TestLoadUnit(t *testing.T) {
	t.Run("partial transporter keeps passenger hidden", func(t *testing.T) {
		state := plainState(t)
		mustApply(t, state,
			ShowUnit{UnitInfo: UnitInfo{UnitID: 1, TypeID: truck, PlayerID: 2, Pos: MapPos{X: 6, Y: 6}}},
			ShowUnit{UnitInfo: UnitInfo{UnitID: 2, TypeID: rifles, PlayerID: 2, Pos: MapPos{X: 6, Y: 7}}},
			LoadUnit{PassengerID: 2, TransporterID: 1},
		)
		assert.Nil(t, mustUnit(t, state, 1).PassengerID)
		assert.Equal(t, MapPos{X: 6, Y: 6}, mustUnit(t, state, 2).Pos)
	})

	t.Run("partial transporter moves without its hidden passenger", func(t *testing.T) {
		state := plainState(t)
		mustApply(t, state,
			ShowUnit{UnitInfo: UnitInfo{UnitID: 1, TypeID: truck, PlayerID: 2, Pos: MapPos{X: 6, Y: 6}}},
			ShowUnit{UnitInfo: UnitInfo{UnitID: 2, TypeID: rifles, PlayerID: 2, Pos: MapPos{X: 6, Y: 7}}},
			LoadUnit{PassengerID: 2, TransporterID: 1},
			Move{UnitID: 1, Path: NewPath(1, MapPos{X: 6, Y: 6}, MapPos{X: 7, Y: 6}), Mode: MoveFast},
		)
		assert.Equal(t, MapPos{X: 7, Y: 6}, mustUnit(t, state, 1).Pos)
		assert.Equal(t, MapPos{X: 6, Y: 6}, mustUnit(t, state, 2).Pos, "observer never learned what the truck carries")
	})

	t.Run("missing units", func(t *testing.T) {
		state := plainState(t)
		mustApply(t, state, createUnit(1, truck, 1, 0, 0))
		err := state.Apply(testCatalog(), LoadUnit{PassengerID: 2, TransporterID: 1})
		assert.ErrorIs(t, err, ErrUnitNotFound)
	})

	t.Run("self load", func(t *testing.T) {
		state := plainState(t)
		mustApply(t, state, createUnit(1, truck, 1, 0, 0))
		err := state.Apply(testCatalog(), LoadUnit{PassengerID: 1, TransporterID: 1})
		assert.ErrorIs(t, err, ErrInvalidEvent)
	})
}

func TestUnloadUnit(t *testing.T) {
	t.Run("known passenger steps out", func(t *testing.T) {
		state := plainState(t)
		mustApply(t, state,
			createUnit(1, truck, 1, 0, 0),
			createUnit(2, rifles, 1, 0, 0),
			LoadUnit{PassengerID: 2, TransporterID: 1},
			UnloadUnit{TransporterID: 1, UnitInfo: UnitInfo{UnitID: 2, TypeID: rifles, PlayerID: 1, Pos: MapPos{X: 1, Y: 0}}},
		)
		assert.Nil(t, mustUnit(t, state, 1).PassengerID)
		passenger := mustUnit(t, state, 2)
		assert.Equal(t, MapPos{X: 1, Y: 0}, passenger.Pos)
		assert.Equal(t, InfoFull, passenger.InfoLevel)
	})

	t.Run("hidden passenger appears with partial info", func(t *testing.T) {
		state := plainState(t)
		mustApply(t, state,
			ShowUnit{UnitInfo: UnitInfo{UnitID: 1, TypeID: truck, PlayerID: 2, Pos: MapPos{X: 5, Y: 5}}},
			UnloadUnit{TransporterID: 1, UnitInfo: UnitInfo{UnitID: 8, TypeID: rifles, PlayerID: 2, Pos: MapPos{X: 5, Y: 6}}},
		)
		passenger := mustUnit(t, state, 8)
		assert.Equal(t, InfoPartial, passenger.InfoLevel)
		assert.Nil(t, passenger.ReactiveAttackPoints)
		assert.Equal(t, MapPos{X: 5, Y: 6}, passenger.Pos)
	})

	t.Run("unknown transporter", func(t *testing.T) {
		state := plainState(t)
		err := state.Apply(testCatalog(), UnloadUnit{TransporterID: 1, UnitInfo: UnitInfo{UnitID: 2}})
		assert.ErrorIs(t, err, ErrUnitNotFound)
	})
}

func TestEndTurn_UnknownTemplateLeavesStateUntouched(t *testing.T) {
	state := plainState(t)
	mustApply(t, state,
		createUnit(1, rifles, 1, 0, 0),
		Move{UnitID: 1, Path: NewPath(1, MapPos{}, MapPos{X: 1}), Mode: MoveFast},
	)

	// A catalog that no longer knows the unit type cannot refresh the incoming player.
	err := state.Apply(NewStaticCatalog(), EndTurn{OldID: 2, NewID: 1})
	require.ErrorIs(t, err, ErrUnknownUnitType)
	assert.Equal(t, 2, mustUnit(t, state, 1).MovePoints)
}
