package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/wricardo/wargame/game/engine"
)

func testScenario() *engine.Scenario {
	passenger := engine.UnitID(4)
	return &engine.Scenario{
		Name:    "Test Scenario",
		Width:   6,
		Height:  4,
		Layout:  []string{"......", "..TT..", "..TT..", "......"},
		Players: []engine.PlayerID{1, 0, 2},
		Units: []engine.Placement{
			{UnitID: 1, Type: "soldier", PlayerID: 0, Pos: engine.MapPos{X: 0, Y: 0}},
			{UnitID: 2, Type: "tank", PlayerID: 1, Pos: engine.MapPos{X: 5, Y: 3}},
			{UnitID: 3, Type: "truck", PlayerID: 0, Pos: engine.MapPos{X: 0, Y: 3}, PassengerID: &passenger},
			{UnitID: 4, Type: "soldier", PlayerID: 0, Pos: engine.MapPos{X: 0, Y: 3}},
		},
	}
}

func TestAnalyzeScenario(t *testing.T) {
	a, err := analyzeScenario("test", testScenario(), engine.DefaultCatalog())
	if err != nil {
		t.Fatalf("analyzeScenario failed: %v", err)
	}

	if a.Trees != 4 {
		t.Errorf("Expected 4 trees, got %d", a.Trees)
	}
	if a.TotalUnits != 4 {
		t.Errorf("Expected 4 units, got %d", a.TotalUnits)
	}

	if len(a.Forces) != 3 || a.Forces[0].Player != 0 || a.Forces[1].Player != 1 || a.Forces[2].Player != 2 {
		t.Fatalf("Expected forces sorted by player, got %+v", a.Forces)
	}
	if a.Forces[0].Units != 3 || a.Forces[0].Troops != 9 || a.Forces[0].Carrying != 1 {
		t.Errorf("Unexpected forces for player 0: %+v", a.Forces[0])
	}
	if a.Forces[1].Units != 1 || a.Forces[1].Troops != 1 {
		t.Errorf("Unexpected forces for player 1: %+v", a.Forces[1])
	}

	if len(a.Unopposed) != 1 || a.Unopposed[0] != 2 {
		t.Errorf("Expected player 2 without units, got %v", a.Unopposed)
	}

	// The tank reaches the units at (0,3) first; ties keep the lower unit id.
	if a.Contact == nil {
		t.Fatal("Expected a contact")
	}
	if a.Contact.UnitID != 2 || a.Contact.EnemyID != 3 || a.Contact.Distance != 5 || a.Contact.Turns != 1 {
		t.Errorf("Unexpected contact: %+v", a.Contact)
	}
}

func TestAnalyzeScenario_UnknownType(t *testing.T) {
	s := testScenario()
	s.Units[0].Type = "dragon"

	if _, err := analyzeScenario("test", s, engine.DefaultCatalog()); err == nil {
		t.Error("Expected error for unknown unit type")
	}
}

func TestTurnsToClose(t *testing.T) {
	tests := []struct {
		distance   int
		movePoints int
		expected   int
	}{
		{1, 3, 0},
		{0, 3, 0},
		{4, 3, 1},
		{5, 3, 2},
		{8, 3, 3},
		{8, 0, -1},
	}

	for _, test := range tests {
		result := turnsToClose(test.distance, test.movePoints)
		if result != test.expected {
			t.Errorf("turnsToClose(%d, %d) = %d, expected %d", test.distance, test.movePoints, result, test.expected)
		}
	}
}

func TestPrintAnalysis(t *testing.T) {
	a, err := analyzeScenario("test", testScenario(), engine.DefaultCatalog())
	if err != nil {
		t.Fatalf("analyzeScenario failed: %v", err)
	}

	var buf bytes.Buffer
	printAnalysis(&buf, a)
	out := buf.String()

	expected := []string{
		"Name: Test Scenario",
		"Grid Size: 6 x 4",
		"Tree Cover: 4 tiles (17%)",
		"Player 0: 3 units, 9 troops, 1 loaded transporters",
		"players start without units: [2]",
		"Closest contact: unit 2 to unit 3 at distance 5, 1 turns away",
	}
	for _, line := range expected {
		if !strings.Contains(out, line) {
			t.Errorf("Expected %q in output, got:\n%s", line, out)
		}
	}
}

func TestPrintAnalysis_NoContact(t *testing.T) {
	var buf bytes.Buffer
	printAnalysis(&buf, &Analysis{Name: "Empty", Width: 2, Height: 2})

	if !strings.Contains(buf.String(), "No opposing units on the map") {
		t.Errorf("Expected no-contact warning, got:\n%s", buf.String())
	}
}
