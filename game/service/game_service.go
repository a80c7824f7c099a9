package service

import (
	"context"
	"errors"

	"github.com/wricardo/wargame/game/engine"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrScenarioNotFound = errors.New("scenario not found")
	ErrOutOfBounds      = errors.New("position outside map")
	ErrInvalidScenario  = errors.New("invalid scenario")
)

// GameService defines all game-related operations
type GameService interface {
	// Session Management
	CreateSession(ctx context.Context, scenarioID, observer string) (*SessionInfo, error)
	GetSession(ctx context.Context, sessionID string) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// Event Application
	ApplyEvent(ctx context.Context, sessionID string, ev engine.Event) (*ApplyResult, error)
	ApplyEvents(ctx context.Context, sessionID string, evs []engine.Event) (*BatchResult, error)

	// World State
	GetWorldState(ctx context.Context, sessionID string) (*WorldView, error)
	GetUnit(ctx context.Context, sessionID string, unitID engine.UnitID) (*UnitDetail, error)
	DescribeTile(ctx context.Context, sessionID string, pos engine.MapPos) (*TileInfo, error)
	GetEventLog(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error)

	// Scenarios and Rules
	ListScenarios(ctx context.Context) ([]*ScenarioInfo, error)
	LoadScenario(ctx context.Context, name string) (*engine.Scenario, error)
	SaveScenario(ctx context.Context, name string, scenario *engine.Scenario) error
	UnitTypes(ctx context.Context) ([]engine.UnitType, error)
}

// SessionManager defines session storage operations
type SessionManager interface {
	Create(id, scenarioID, observer string, scenario *engine.Scenario, catalog *engine.StaticCatalog) (*Session, error)
	Get(id string) (*Session, error)
	List() []*Session
	Delete(id string) error
	UpdateLastAccessed(id string) error
	Save(id string) error
}

// ConfigManager handles scenario and unit catalog loading
type ConfigManager interface {
	LoadScenario(name string) (*engine.Scenario, error)
	ListScenarios() ([]*ScenarioInfo, error)
	GetDefault() *engine.Scenario
	SaveScenario(name string, scenario *engine.Scenario) error
	Catalog() *engine.StaticCatalog
}
