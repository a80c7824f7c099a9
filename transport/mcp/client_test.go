package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/wricardo/wargame/api"
	"github.com/wricardo/wargame/game/engine"
	"github.com/wricardo/wargame/game/service"
	"github.com/wricardo/wargame/game/session"
)

func TestNewClient(t *testing.T) {
	baseURL := "http://localhost:8080"
	client := NewClient(baseURL)

	if client.baseURL != baseURL {
		t.Errorf("Expected baseURL %s, got %s", baseURL, client.baseURL)
	}

	if client.httpClient == nil {
		t.Error("Expected httpClient to be initialized")
	}

	if client.mcpServer == nil {
		t.Error("Expected mcpServer to be initialized")
	}

	if client.GetMCPServer() != client.mcpServer {
		t.Error("GetMCPServer should return the underlying server")
	}
}

func TestClient_apiCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected JSON content type, got %q", r.Header.Get("Content-Type"))
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"echo": body["value"]})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	var result map[string]string
	if err := client.apiCall(context.Background(), "POST", "/echo", map[string]string{"value": "hello"}, &result); err != nil {
		t.Fatalf("apiCall failed: %v", err)
	}

	if result["echo"] != "hello" {
		t.Errorf("Expected echo 'hello', got %q", result["echo"])
	}
}

func TestClient_apiCall_Error(t *testing.T) {
	client := NewClient("http://invalid-url-that-does-not-exist:99999")

	var result map[string]any
	err := client.apiCall(context.Background(), "GET", "/test", nil, &result)
	if err == nil {
		t.Error("Expected error for invalid URL")
	}
}

func TestClient_apiCall_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL)

	err := client.apiCall(context.Background(), "GET", "/test", nil, nil)
	if err == nil {
		t.Fatal("Expected error for HTTP 500")
	}

	if !strings.Contains(err.Error(), "API error") {
		t.Errorf("Expected 'API error' in error message, got: %v", err)
	}
}

func TestClient_apiCall_ErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "session desynced"})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	err := client.apiCall(context.Background(), "POST", "/test", map[string]string{}, nil)
	if err == nil || err.Error() != "session desynced" {
		t.Errorf("Expected API error message, got: %v", err)
	}
}

func TestClient_createSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/api/sessions" {
			t.Errorf("Expected POST /api/sessions, got %s %s", r.Method, r.URL.Path)
		}

		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["scenario_id"] != "skirmish" {
			t.Errorf("Expected scenario_id 'skirmish', got %q", body["scenario_id"])
		}

		resp := service.SessionInfo{
			ID:         "test-session-123",
			ScenarioID: "skirmish",
			CreatedAt:  time.Now(),
			World: &service.WorldView{
				Width:  2,
				Height: 1,
				Layout: []string{".T"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(server.URL)

	request := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      "create_session",
			Arguments: map[string]any{"scenario_id": "skirmish"},
		},
	}

	result, err := client.handleCreateSession(context.Background(), request)
	if err != nil {
		t.Fatalf("createSession failed: %v", err)
	}

	text := resultText(t, result)
	if !strings.Contains(text, "test-session-123") {
		t.Errorf("Expected session ID in result, got: %s", text)
	}
	if !strings.Contains(text, ".T\n") {
		t.Errorf("Expected map row in result, got: %s", text)
	}
}

func TestClient_handlerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "session not found"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	result, err := client.handleWorldState(ctx, toolRequest("world_state", map[string]any{"session_id": "nope"}))
	if err != nil {
		t.Fatalf("handleWorldState returned error: %v", err)
	}
	if !result.IsError {
		t.Error("Expected tool error result")
	}

	result, _ = client.handleDescribeTile(ctx, toolRequest("describe_tile", map[string]any{"session_id": "s"}))
	if !result.IsError {
		t.Error("Expected error when x and y are missing")
	}

	result, _ = client.handleApplyEvent(ctx, toolRequest("apply_event", map[string]any{"session_id": "s"}))
	if !result.IsError {
		t.Error("Expected error when kind is missing")
	}

	result, _ = client.handleApplyEvents(ctx, toolRequest("apply_events", map[string]any{"session_id": "s", "events": []any{}}))
	if !result.IsError {
		t.Error("Expected error for empty batch")
	}
}

func TestFormatWorld(t *testing.T) {
	passenger := engine.UnitID(3)
	player := engine.PlayerID(1)
	world := &service.WorldView{
		Width:         4,
		Height:        2,
		Layout:        []string{"..T.", "...."},
		Turn:          2,
		CurrentPlayer: &player,
		Events:        7,
		Units: []engine.Unit{
			{ID: 1, Pos: engine.MapPos{X: 0, Y: 0}, PlayerID: 0, TypeID: 0, Count: 4, Morale: 100, InfoLevel: engine.InfoFull},
			{ID: 2, Pos: engine.MapPos{X: 3, Y: 1}, PlayerID: 1, TypeID: 3, Count: 1, Morale: 90, PassengerID: &passenger, InfoLevel: engine.InfoPartial},
			{ID: 3, Pos: engine.MapPos{X: 3, Y: 1}, PlayerID: 1, TypeID: 0, Count: 2, Morale: 90, InfoLevel: engine.InfoPartial},
		},
	}
	names := map[engine.UnitTypeID]string{0: "soldier", 3: "truck"}

	result := formatWorld(world, names)

	expected := []string{
		"Map 4x2 | Turn: 2 | Events: 7 | Player: 1",
		"0.T.\n",
		"...1\n",
		"#1 soldier p0 (0,0) count=4",
		"rap=?",
		"#2 truck p1 (3,1)",
		"carrying=#3",
		"[partial]",
	}
	for _, field := range expected {
		if !strings.Contains(result, field) {
			t.Errorf("Expected '%s' in formatted output, got: %s", field, result)
		}
	}

	if strings.Contains(result, "DESYNC") {
		t.Errorf("Healthy world should not report desync: %s", result)
	}
}

func TestFormatWorld_Desync(t *testing.T) {
	world := &service.WorldView{
		Width:  2,
		Height: 1,
		Layout: []string{".."},
		Units: []engine.Unit{
			{ID: 1, Pos: engine.MapPos{X: 1, Y: 0}, PlayerID: 0},
			{ID: 2, Pos: engine.MapPos{X: 1, Y: 0}, PlayerID: 1},
		},
		Desync: "hide_unit: unit 42: unit not found",
	}

	result := formatWorld(world, nil)

	if !strings.Contains(result, ".*\n") {
		t.Errorf("Expected stacked marker, got: %s", result)
	}
	if !strings.Contains(result, "type 0") {
		t.Errorf("Expected fallback type label, got: %s", result)
	}
	if !strings.Contains(result, "DESYNC: hide_unit: unit 42") {
		t.Errorf("Expected desync reason, got: %s", result)
	}
}

func TestFormatWorld_Nil(t *testing.T) {
	if got := formatWorld(nil, nil); got != "No world state available" {
		t.Errorf("Unexpected output for nil world: %q", got)
	}
}

func TestFormatBatchResult_Stopped(t *testing.T) {
	result := formatBatchResult(&service.BatchResult{
		Applied:         1,
		RequestedEvents: 3,
		StoppedOnEvent:  2,
		StoppedReason:   "desync",
		World:           &service.WorldView{Layout: []string{"."}, Width: 1, Height: 1},
	}, nil)

	for _, field := range []string{"Applied 1/3 events", "Stopped on event 2: desync"} {
		if !strings.Contains(result, field) {
			t.Errorf("Expected '%s' in formatted output, got: %s", field, result)
		}
	}
}

func TestEnvelopeArg(t *testing.T) {
	env, err := envelopeArg(map[string]any{"kind": "hide_unit", "data": map[string]any{"unit_id": 4}})
	if err != nil {
		t.Fatalf("envelopeArg failed: %v", err)
	}
	if env.Kind != engine.KindHideUnit || string(env.Data) != `{"unit_id":4}` {
		t.Errorf("Unexpected envelope: %s %s", env.Kind, env.Data)
	}

	if _, err := envelopeArg("move"); err == nil {
		t.Error("Expected error for non-object event")
	}
	if _, err := envelopeArg(map[string]any{"data": map[string]any{}}); err == nil {
		t.Error("Expected error for missing kind")
	}
}

// The tools drive a real API server backed by an in-memory session manager.
func TestClient_Integration(t *testing.T) {
	svc, err := service.NewGameService(session.NewManager(), testConfigs{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	server := httptest.NewServer(api.NewServer(svc, nil, zerolog.Nop()))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	result, _ := client.handleCreateSession(ctx, toolRequest("create_session", map[string]any{"scenario_id": "duel", "observer": "blue"}))
	text := resultText(t, result)
	if result.IsError {
		t.Fatalf("create_session failed: %s", text)
	}
	firstLine := strings.SplitN(text, "\n", 2)[0]
	sessionID := strings.TrimPrefix(firstLine, "Created session: ")
	if sessionID == "" || sessionID == firstLine {
		t.Fatalf("Could not read session ID from: %s", text)
	}

	move := map[string]any{
		"session_id": sessionID,
		"kind":       "move",
		"data": map[string]any{
			"unit_id": 1,
			"mode":    "fast",
			"path": map[string]any{"nodes": []any{
				map[string]any{"pos": map[string]any{"x": 0, "y": 0}, "cost": 0},
				map[string]any{"pos": map[string]any{"x": 1, "y": 0}, "cost": 1},
			}},
		},
	}
	result, _ = client.handleApplyEvent(ctx, toolRequest("apply_event", move))
	text = resultText(t, result)
	if result.IsError || !strings.Contains(text, "Applied move as event #3") {
		t.Fatalf("apply_event failed: %s", text)
	}
	if !strings.Contains(text, ".0....\n") || !strings.Contains(text, ".....1\n") {
		t.Errorf("Expected units on the rendered map, got: %s", text)
	}

	result, _ = client.handleDescribeTile(ctx, toolRequest("describe_tile", map[string]any{"session_id": sessionID, "x": 1, "y": 0}))
	text = resultText(t, result)
	if !strings.Contains(text, "Tile (1,0): plain") || !strings.Contains(text, "#1 soldier p0 (1,0)") {
		t.Errorf("Unexpected tile description: %s", text)
	}

	result, _ = client.handleUnitInfo(ctx, toolRequest("unit_info", map[string]any{"session_id": sessionID, "unit_id": 1}))
	text = resultText(t, result)
	if !strings.Contains(text, "Nearest enemy: unit 2 at (5,3)") {
		t.Errorf("Expected nearest enemy, got: %s", text)
	}

	result, _ = client.handleApplyEvents(ctx, toolRequest("apply_events", map[string]any{
		"session_id": sessionID,
		"events": []any{
			map[string]any{"kind": "hide_unit", "data": map[string]any{"unit_id": 42}},
			map[string]any{"kind": "hide_unit", "data": map[string]any{"unit_id": 1}},
		},
	}))
	text = resultText(t, result)
	if !strings.Contains(text, "Applied 0/2 events") || !strings.Contains(text, "DESYNC") {
		t.Errorf("Expected batch to stop on desync, got: %s", text)
	}

	result, _ = client.handleEventHistory(ctx, toolRequest("event_history", map[string]any{"session_id": sessionID, "order": "asc", "limit": 2}))
	text = resultText(t, result)
	if !strings.Contains(text, "Page 1/2, Total: 3") || !strings.Contains(text, "1. ") {
		t.Errorf("Unexpected history: %s", text)
	}

	result, _ = client.handleUnitTypes(ctx, toolRequest("unit_types", nil))
	text = resultText(t, result)
	if !strings.Contains(text, "truck") || !strings.Contains(text, "transporter") {
		t.Errorf("Expected catalog listing, got: %s", text)
	}

	result, _ = client.handleListSessions(ctx, toolRequest("list_sessions", nil))
	text = resultText(t, result)
	if !strings.Contains(text, sessionID) || !strings.Contains(text, "DESYNC") {
		t.Errorf("Expected desynced session in list, got: %s", text)
	}
}

func toolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatal("Expected result content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("Expected text content in result")
	}
	return text.Text
}

type testConfigs struct{}

func (testConfigs) LoadScenario(name string) (*engine.Scenario, error) {
	if name != "duel" {
		return nil, service.ErrScenarioNotFound
	}
	return duelScenario(), nil
}
func (testConfigs) ListScenarios() ([]*service.ScenarioInfo, error) {
	return []*service.ScenarioInfo{{ScenarioID: "duel"}}, nil
}
func (testConfigs) GetDefault() *engine.Scenario                            { return duelScenario() }
func (testConfigs) SaveScenario(name string, scenario *engine.Scenario) error { return nil }
func (testConfigs) Catalog() *engine.StaticCatalog                          { return engine.DefaultCatalog() }

func duelScenario() *engine.Scenario {
	return &engine.Scenario{
		Name:    "duel",
		Width:   6,
		Height:  4,
		Layout:  []string{"......", "..TT..", "......", "......"},
		Players: []engine.PlayerID{0, 1},
		Units: []engine.Placement{
			{UnitID: 1, Type: "soldier", PlayerID: 0, Pos: engine.MapPos{X: 0, Y: 0}},
			{UnitID: 2, Type: "tank", PlayerID: 1, Pos: engine.MapPos{X: 5, Y: 3}},
		},
	}
}
