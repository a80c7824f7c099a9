package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/wargame/game/engine"
	"github.com/wricardo/wargame/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Wargame World State",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Wargame World State - MCP Interface

This is a thin client that proxies all requests to the REST API server.

Each session holds one observer's view of a turn-based tactical battle. You feed it
the events a rules layer produced (move, attack_unit, end_turn, create_unit,
show_unit, hide_unit, load_unit, unload_unit) and it keeps the world state. An event
that references a missing unit or overspends a budget desyncs the session; after
that it refuses further events.

AVAILABLE TOOLS:
- create_session: Start a session from a scenario
- list_sessions / get_session: Inspect sessions
- world_state: Map, units, turn and desync status
- describe_tile: Terrain and units on one tile
- unit_info: One unit with its nearest enemy
- apply_event / apply_events: Feed events as {"kind": ..., "data": {...}}
- event_history: Paginated event log
- list_scenarios / unit_types: Content and rules

Map legend: '.' plain, 'T' trees, digits mark the owning player of a unit, '*' a stack.`),
	)

	c.registerTools()
}

func sessionIDProperty() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "Session ID",
	}
}

func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new session from a scenario (default scenario if omitted)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"scenario_id": map[string]any{
					"type":        "string",
					"description": "Scenario to load (see list_scenarios)",
				},
				"observer": map[string]any{
					"type":        "string",
					"description": "Label of the side whose view this session tracks",
				},
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all active sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a specific session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"session_id": sessionIDProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleGetSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "world_state",
		Description: "Get the map, all units, turn and desync status of a session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"session_id": sessionIDProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleWorldState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "describe_tile",
		Description: "Get the terrain and the units on one tile",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionIDProperty(),
				"x":          map[string]any{"type": "integer", "description": "Column, 0-based"},
				"y":          map[string]any{"type": "integer", "description": "Row, 0-based"},
			},
			Required: []string{"session_id", "x", "y"},
		},
	}, c.handleDescribeTile)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "unit_info",
		Description: "Get one unit with its budgets and nearest enemy",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionIDProperty(),
				"unit_id":    map[string]any{"type": "integer", "description": "Unit ID"},
			},
			Required: []string{"session_id", "unit_id"},
		},
	}, c.handleUnitInfo)

	eventSchema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"kind": map[string]any{
				"type": "string",
				"enum": kindNames(),
			},
			"data": map[string]any{
				"type":        "object",
				"description": "Event payload, e.g. move: {\"unit_id\":1,\"mode\":\"fast\",\"path\":{\"nodes\":[{\"pos\":{\"x\":0,\"y\":0},\"cost\":0},{\"pos\":{\"x\":1,\"y\":0},\"cost\":1}]}}",
			},
		},
		"required": []string{"kind", "data"},
	}

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "apply_event",
		Description: "Apply one event to a session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionIDProperty(),
				"kind":       eventSchema["properties"].(map[string]any)["kind"],
				"data":       eventSchema["properties"].(map[string]any)["data"],
				"intent": map[string]any{
					"type":        "string",
					"description": "Brief explanation of why this event is being fed",
				},
			},
			Required: []string{"session_id", "kind", "data"},
		},
	}, c.handleApplyEvent)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "apply_events",
		Description: fmt.Sprintf("Apply events in order, stopping at the first failure (max %d)", engine.MaxBatchEvents),
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionIDProperty(),
				"events": map[string]any{
					"type":  "array",
					"items": eventSchema,
				},
			},
			Required: []string{"session_id", "events"},
		},
	}, c.handleApplyEvents)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "event_history",
		Description: "Get the paginated event log of a session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionIDProperty(),
				"page":       map[string]any{"type": "integer", "description": "Page number (default 1)"},
				"limit":      map[string]any{"type": "integer", "description": "Events per page (default 20, max 100)"},
				"order": map[string]any{
					"type": "string",
					"enum": []string{"asc", "desc"},
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleEventHistory)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_scenarios",
		Description: "List available scenarios",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, c.handleListScenarios)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "unit_types",
		Description: "List the unit catalog with budgets and transporter flags",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, c.handleUnitTypes)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

func kindNames() []string {
	names := make([]string, 0, len(engine.EventKinds))
	for _, k := range engine.EventKinds {
		names = append(names, string(k))
	}
	return names
}

func (c *Client) apiCall(ctx context.Context, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func arguments(request mcp.CallToolRequest) map[string]any {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return map[string]any{}
	}
	return args
}

// intArg reads a JSON number argument
func intArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// envelopeArg turns a {"kind", "data"} argument into an event envelope
func envelopeArg(raw any) (engine.Envelope, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return engine.Envelope{}, fmt.Errorf("event must be an object with kind and data")
	}
	kind, _ := obj["kind"].(string)
	if kind == "" {
		return engine.Envelope{}, fmt.Errorf("event kind is required")
	}
	data, err := json.Marshal(obj["data"])
	if err != nil {
		return engine.Envelope{}, fmt.Errorf("event data: %w", err)
	}
	return engine.Envelope{Kind: engine.EventKind(kind), Data: data}, nil
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	body := map[string]string{}
	if scenarioID, _ := args["scenario_id"].(string); scenarioID != "" {
		body["scenario_id"] = scenarioID
	}
	if observer, _ := args["observer"].(string); observer != "" {
		body["observer"] = observer
	}

	var info service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Created session: %s\n\n%s", info.ID, formatSessionInfo(&info, nil))), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}
	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		status := "ok"
		if s.World != nil && s.World.Desync != "" {
			status = "DESYNC"
		}
		fmt.Fprintf(&b, "- %s (Scenario: %s, Observer: %s, Created: %s, %s)\n",
			s.ID, s.ScenarioID, s.Observer, s.CreatedAt.Format("15:04:05"), status)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var info service.SessionInfo
	if err := c.apiCall(ctx, "GET", "/api/sessions/"+url.PathEscape(sessionID), nil, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatSessionInfo(&info, c.typeNames(ctx))), nil
}

func (c *Client) handleWorldState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var world service.WorldView
	if err := c.apiCall(ctx, "GET", fmt.Sprintf("/api/sessions/%s/state", url.PathEscape(sessionID)), nil, &world); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatWorld(&world, c.typeNames(ctx))), nil
}

func (c *Client) handleDescribeTile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	x, okX := intArg(args, "x")
	y, okY := intArg(args, "y")
	if !okX || !okY {
		return mcp.NewToolResultError("x and y are required integers"), nil
	}

	var tile service.TileInfo
	path := fmt.Sprintf("/api/sessions/%s/tiles/%d/%d", url.PathEscape(sessionID), x, y)
	if err := c.apiCall(ctx, "GET", path, nil, &tile); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	names := c.typeNames(ctx)
	var b strings.Builder
	fmt.Fprintf(&b, "Tile (%d,%d): %s\n", tile.X, tile.Y, tile.Terrain)
	if !tile.Occupied {
		b.WriteString("No units.\n")
	}
	for _, u := range tile.Units {
		b.WriteString(formatUnitLine(u, names))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleUnitInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	unitID, ok := intArg(args, "unit_id")
	if !ok {
		return mcp.NewToolResultError("unit_id is required"), nil
	}

	var detail service.UnitDetail
	path := fmt.Sprintf("/api/sessions/%s/units/%d", url.PathEscape(sessionID), unitID)
	if err := c.apiCall(ctx, "GET", path, nil, &detail); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	names := map[engine.UnitTypeID]string{detail.Unit.TypeID: detail.TypeName}
	var b strings.Builder
	b.WriteString(formatUnitLine(detail.Unit, names))
	if detail.NearestEnemy != nil {
		fmt.Fprintf(&b, "Nearest enemy: unit %d at (%d,%d), distance %d\n",
			detail.NearestEnemy.ID, detail.NearestEnemy.Pos.X, detail.NearestEnemy.Pos.Y, detail.EnemyDistance)
	} else {
		b.WriteString("No known enemy units.\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleApplyEvent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)

	env, err := envelopeArg(map[string]any{"kind": args["kind"], "data": args["data"]})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var result service.ApplyResult
	path := fmt.Sprintf("/api/sessions/%s/events", url.PathEscape(sessionID))
	if err := c.apiCall(ctx, "POST", path, env, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text := fmt.Sprintf("Applied %s as event #%d\n\n%s",
		result.Record.Event.Kind, result.Record.Seq, formatWorld(result.World, c.typeNames(ctx)))
	return mcp.NewToolResultText(text), nil
}

func (c *Client) handleApplyEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	rawEvents, _ := args["events"].([]any)
	if len(rawEvents) == 0 {
		return mcp.NewToolResultError("events must be a non-empty array"), nil
	}

	envs := make([]engine.Envelope, 0, len(rawEvents))
	for i, raw := range rawEvents {
		env, err := envelopeArg(raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("event %d: %v", i+1, err)), nil
		}
		envs = append(envs, env)
	}

	var result service.BatchResult
	path := fmt.Sprintf("/api/sessions/%s/events/batch", url.PathEscape(sessionID))
	if err := c.apiCall(ctx, "POST", path, map[string]any{"events": envs}, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatBatchResult(&result, c.typeNames(ctx))), nil
}

func (c *Client) handleEventHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)

	params := url.Values{}
	if page, ok := intArg(args, "page"); ok {
		params.Set("page", fmt.Sprint(page))
	}
	if limit, ok := intArg(args, "limit"); ok {
		params.Set("limit", fmt.Sprint(limit))
	}
	if order, _ := args["order"].(string); order != "" {
		params.Set("order", order)
	}

	path := fmt.Sprintf("/api/sessions/%s/events", url.PathEscape(sessionID))
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var history service.HistoryResponse
	if err := c.apiCall(ctx, "GET", path, nil, &history); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatHistory(&history)), nil
}

func (c *Client) handleListScenarios(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var scenarios []service.ScenarioInfo
	if err := c.apiCall(ctx, "GET", "/api/scenarios", nil, &scenarios); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString("Available Scenarios:\n\n")
	for _, s := range scenarios {
		fmt.Fprintf(&b, "- %s: %s (%dx%d, %d units)", s.ScenarioID, s.Name, s.Width, s.Height, s.Units)
		if s.Description != "" {
			fmt.Fprintf(&b, " - %s", s.Description)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleUnitTypes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var types []engine.UnitType
	if err := c.apiCall(ctx, "GET", "/api/unit-types", nil, &types); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString("Unit Types:\n\n")
	for _, t := range types {
		fmt.Fprintf(&b, "- %d %s: move %d, attack %d, reactive %d, count %d",
			t.ID, t.Name, t.MovePoints, t.AttackPoints, t.ReactiveAttackPoints, t.Count)
		if t.IsTransporter {
			b.WriteString(", transporter")
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

// typeNames fetches the catalog for display; a failure only degrades labels.
func (c *Client) typeNames(ctx context.Context) map[engine.UnitTypeID]string {
	var types []engine.UnitType
	if err := c.apiCall(ctx, "GET", "/api/unit-types", nil, &types); err != nil {
		return nil
	}
	names := make(map[engine.UnitTypeID]string, len(types))
	for _, t := range types {
		names[t.ID] = t.Name
	}
	return names
}

// Formatting helpers

func formatSessionInfo(info *service.SessionInfo, names map[engine.UnitTypeID]string) string {
	header := fmt.Sprintf("Session: %s\nScenario: %s\nObserver: %s\nCreated: %s\n\n",
		info.ID, info.ScenarioID, info.Observer, info.CreatedAt.Format("2006-01-02 15:04:05"))
	return header + formatWorld(info.World, names)
}

func formatWorld(world *service.WorldView, names map[engine.UnitTypeID]string) string {
	if world == nil {
		return "No world state available"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Map %dx%d | Turn: %d | Events: %d", world.Width, world.Height, world.Turn, world.Events)
	if world.CurrentPlayer != nil {
		fmt.Fprintf(&b, " | Player: %d", *world.CurrentPlayer)
	}
	b.WriteString("\n\n")

	b.WriteString(renderMap(world))
	b.WriteString("\n")

	if len(world.Units) == 0 {
		b.WriteString("No units.\n")
	}
	for _, u := range world.Units {
		b.WriteString(formatUnitLine(u, names))
	}

	if world.Desync != "" {
		fmt.Fprintf(&b, "\nDESYNC: %s\nThe session refuses further events.\n", world.Desync)
	}
	return b.String()
}

// renderMap overlays unit owners on the terrain rows
func renderMap(world *service.WorldView) string {
	rows := make([][]rune, len(world.Layout))
	for y, row := range world.Layout {
		rows[y] = []rune(row)
	}

	stacks := make(map[engine.MapPos][]engine.Unit)
	for _, u := range world.Units {
		stacks[u.Pos] = append(stacks[u.Pos], u)
	}
	for pos, units := range stacks {
		if pos.Y < 0 || pos.Y >= len(rows) || pos.X < 0 || pos.X >= len(rows[pos.Y]) {
			continue
		}
		mark := '*'
		if len(units) == 1 && units[0].PlayerID >= 0 && units[0].PlayerID <= 9 {
			mark = rune('0' + int(units[0].PlayerID))
		} else if passengerStack(units) {
			mark = rune('0' + int(units[0].PlayerID%10))
		}
		rows[pos.Y][pos.X] = mark
	}

	var b strings.Builder
	for _, row := range rows {
		b.WriteString(string(row))
		b.WriteString("\n")
	}
	return b.String()
}

// passengerStack reports a transporter sharing its tile only with its own passenger
func passengerStack(units []engine.Unit) bool {
	if len(units) != 2 {
		return false
	}
	a, b := units[0], units[1]
	carried := (a.PassengerID != nil && *a.PassengerID == b.ID) || (b.PassengerID != nil && *b.PassengerID == a.ID)
	return carried && a.PlayerID == b.PlayerID
}

func formatUnitLine(u engine.Unit, names map[engine.UnitTypeID]string) string {
	name, ok := names[u.TypeID]
	if !ok || name == "" {
		name = fmt.Sprintf("type %d", u.TypeID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s p%d (%d,%d) count=%d mp=%d ap=%d",
		u.ID, name, u.PlayerID, u.Pos.X, u.Pos.Y, u.Count, u.MovePoints, u.AttackPoints)
	if u.ReactiveAttackPoints != nil {
		fmt.Fprintf(&b, " rap=%d", *u.ReactiveAttackPoints)
	} else {
		b.WriteString(" rap=?")
	}
	fmt.Fprintf(&b, " morale=%d", u.Morale)
	if u.PassengerID != nil {
		fmt.Fprintf(&b, " carrying=#%d", *u.PassengerID)
	}
	fmt.Fprintf(&b, " [%s]\n", u.InfoLevel)
	return b.String()
}

func formatBatchResult(result *service.BatchResult, names map[engine.UnitTypeID]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Applied %d/%d events", result.Applied, result.RequestedEvents)
	if result.Truncated {
		fmt.Fprintf(&b, " (batch truncated to %d)", result.Limit)
	}
	b.WriteString("\n")
	if !result.Success {
		fmt.Fprintf(&b, "Stopped on event %d: %s\n", result.StoppedOnEvent, result.StoppedReason)
	}
	b.WriteString("\n")
	b.WriteString(formatWorld(result.World, names))
	return b.String()
}

func formatHistory(history *service.HistoryResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event Log (Page %d/%d, Total: %d):\n\n", history.Page, history.TotalPages, history.TotalEvents)

	for _, rec := range history.Events {
		fmt.Fprintf(&b, "%d. %s %s %s\n", rec.Seq, rec.AppliedAt.Format("15:04:05"), rec.Event.Kind, string(rec.Event.Data))
	}

	if history.HasNext {
		b.WriteString("\n(More events available on next page)")
	}
	return b.String()
}
