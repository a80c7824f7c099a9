package service

import (
	"time"

	"github.com/wricardo/wargame/game/engine"
)

// SessionInfo provides information about a game session
type SessionInfo struct {
	ID             string     `json:"id"`
	ScenarioID     string     `json:"scenario_id"`
	Observer       string     `json:"observer"`
	CreatedAt      time.Time  `json:"created_at"`
	LastAccessedAt time.Time  `json:"last_accessed_at"`
	World          *WorldView `json:"world"`
}

// WorldView is a read-only snapshot of a session's world state
type WorldView struct {
	SessionID     string           `json:"session_id"`
	ScenarioID    string           `json:"scenario_id"`
	Observer      string           `json:"observer"`
	Width         int              `json:"width"`
	Height        int              `json:"height"`
	Layout        []string         `json:"layout"`
	Units         []engine.Unit    `json:"units"`
	Turn          int              `json:"turn"`
	CurrentPlayer *engine.PlayerID `json:"current_player,omitempty"`
	Events        int              `json:"events"`
	Desync        string           `json:"desync,omitempty"`
}

// ApplyResult contains the result of applying one event
type ApplyResult struct {
	SessionID string      `json:"session_id"`
	Record    EventRecord `json:"record"`
	World     *WorldView  `json:"world"`
}

// BatchResult contains the result of applying several events in order
type BatchResult struct {
	SessionID       string        `json:"session_id"`
	Applied         int           `json:"applied"`
	RequestedEvents int           `json:"requested_events"`
	Success         bool          `json:"success"`
	Records         []EventRecord `json:"records"`
	StoppedOnEvent  int           `json:"stopped_on_event,omitempty"` // 1-based index of the failing event
	StoppedReason   string        `json:"stopped_reason,omitempty"`
	Desync          bool          `json:"desync,omitempty"`
	Truncated       bool          `json:"truncated,omitempty"`
	Limit           int           `json:"limit,omitempty"`
	World           *WorldView    `json:"world"`
}

// UnitDetail is a unit plus decision aids for clients
type UnitDetail struct {
	Unit          engine.Unit  `json:"unit"`
	TypeName      string       `json:"type_name"`
	NearestEnemy  *engine.Unit `json:"nearest_enemy,omitempty"`
	EnemyDistance int          `json:"enemy_distance,omitempty"`
}

// TileInfo describes one map position
type TileInfo struct {
	X        int            `json:"x"`
	Y        int            `json:"y"`
	Terrain  engine.Terrain `json:"terrain"`
	Units    []engine.Unit  `json:"units"`
	Occupied bool           `json:"occupied"`
}

// HistoryOptions configures event log retrieval
type HistoryOptions struct {
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
	Order string `json:"order"` // "asc" or "desc"
}

// HistoryResponse contains a paginated event log
type HistoryResponse struct {
	Events      []EventRecord `json:"events"`
	TotalEvents int           `json:"total_events"`
	Page        int           `json:"page"`
	PageSize    int           `json:"page_size"`
	TotalPages  int           `json:"total_pages"`
	HasNext     bool          `json:"has_next"`
	HasPrevious bool          `json:"has_previous"`
}

// ScenarioInfo provides information about a scenario file
type ScenarioInfo struct {
	Filename    string `json:"filename"`
	ScenarioID  string `json:"scenario_id"` // The identifier to use for session creation
	Name        string `json:"name"`        // Display name
	Description string `json:"description"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Units       int    `json:"units"`
}
