package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wricardo/wargame/game/engine"
)

// ErrSessionDesynced is returned for events sent to a session whose state already diverged.
var ErrSessionDesynced = errors.New("session desynced")

// EventRecord is one applied event of a session log
type EventRecord struct {
	ID        string          `json:"id"`
	Seq       int             `json:"seq"`
	Event     engine.Envelope `json:"event"`
	AppliedAt time.Time       `json:"applied_at"`
}

// Snapshot is the persisted form of a session. The world state itself is never stored;
// it is rebuilt by replaying Records on top of Scenario.
type Snapshot struct {
	ID             string            `json:"id"`
	ScenarioID     string            `json:"scenario_id"`
	Observer       string            `json:"observer"`
	Scenario       *engine.Scenario  `json:"scenario"`
	UnitTypes      []engine.UnitType `json:"unit_types"`
	Records        []EventRecord     `json:"records"`
	Desync         string            `json:"desync,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	LastAccessedAt time.Time         `json:"last_accessed_at"`
}

// Session is one observer's view of a battle: a world state plus the log of events
// that produced it. Events are serialized by the session mutex; separate sessions
// share nothing.
type Session struct {
	ID             string
	ScenarioID     string
	Observer       string
	Scenario       *engine.Scenario
	Catalog        *engine.StaticCatalog
	CreatedAt      time.Time
	LastAccessedAt time.Time

	mu     sync.Mutex
	state  *engine.State
	log    []EventRecord
	turn   int
	player *engine.PlayerID
	desync string
}

// NewSession builds the scenario terrain and places its units through CreateUnit events,
// which become the first entries of the log.
func NewSession(id, scenarioID, observer string, scenario *engine.Scenario, catalog *engine.StaticCatalog) (*Session, error) {
	state, err := engine.NewStateFromScenario(scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to build state: %w", err)
	}
	opening, err := engine.OpeningEvents(scenario, catalog)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	s := &Session{
		ID:             id,
		ScenarioID:     scenarioID,
		Observer:       observer,
		Scenario:       scenario,
		Catalog:        catalog,
		CreatedAt:      now,
		LastAccessedAt: now,
		state:          state,
	}
	for _, ev := range opening {
		if _, err := s.apply(ev); err != nil {
			return nil, fmt.Errorf("failed to place scenario units: %w", err)
		}
	}
	return s, nil
}

// RestoreSession rebuilds a session from a snapshot by replaying its log
func RestoreSession(snap Snapshot) (*Session, error) {
	if snap.Scenario == nil {
		return nil, fmt.Errorf("snapshot %s has no scenario", snap.ID)
	}
	state, err := engine.NewStateFromScenario(snap.Scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to build state: %w", err)
	}

	s := &Session{
		ID:             snap.ID,
		ScenarioID:     snap.ScenarioID,
		Observer:       snap.Observer,
		Scenario:       snap.Scenario,
		Catalog:        engine.NewStaticCatalog(snap.UnitTypes...),
		CreatedAt:      snap.CreatedAt,
		LastAccessedAt: snap.LastAccessedAt,
		state:          state,
		log:            make([]EventRecord, 0, len(snap.Records)),
		desync:         snap.Desync,
	}
	for _, rec := range snap.Records {
		ev, err := rec.Event.Event()
		if err != nil {
			return nil, fmt.Errorf("session %s: record %d: %w", snap.ID, rec.Seq, err)
		}
		if err := s.state.Apply(s.Catalog, ev); err != nil {
			return nil, fmt.Errorf("session %s: replay of record %d failed: %w", snap.ID, rec.Seq, err)
		}
		s.track(ev)
		s.log = append(s.log, rec)
	}
	return s, nil
}

// Snapshot captures everything needed to restore the session
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		ID:             s.ID,
		ScenarioID:     s.ScenarioID,
		Observer:       s.Observer,
		Scenario:       s.Scenario,
		UnitTypes:      s.Catalog.Types(),
		Records:        append([]EventRecord(nil), s.log...),
		Desync:         s.desync,
		CreatedAt:      s.CreatedAt,
		LastAccessedAt: s.LastAccessedAt,
	}
}

// Apply applies one event and appends it to the log
func (s *Session) Apply(ev engine.Event) (EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(ev)
}

// ApplyAll applies events in order under one lock and stops at the first failure,
// which is reported as an *engine.ReplayError carrying its index.
func (s *Session) ApplyAll(evs []engine.Event) ([]EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]EventRecord, 0, len(evs))
	for i, ev := range evs {
		rec, err := s.apply(ev)
		if err != nil {
			return records, &engine.ReplayError{Index: i, Err: err}
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *Session) apply(ev engine.Event) (EventRecord, error) {
	if s.desync != "" {
		return EventRecord{}, fmt.Errorf("%w: %w: %s", ErrSessionDesynced, engine.ErrDesync, s.desync)
	}
	env, err := engine.ToEnvelope(ev)
	if err != nil {
		return EventRecord{}, fmt.Errorf("%w: %v", engine.ErrInvalidEvent, err)
	}

	if err := s.state.Apply(s.Catalog, ev); err != nil {
		if engine.IsDesync(err) {
			s.desync = err.Error()
		}
		return EventRecord{}, err
	}
	s.track(ev)

	rec := EventRecord{
		ID:        uuid.NewString(),
		Seq:       len(s.log) + 1,
		Event:     env,
		AppliedAt: time.Now(),
	}
	s.log = append(s.log, rec)
	return rec, nil
}

func (s *Session) track(ev engine.Event) {
	if e, ok := ev.(engine.EndTurn); ok {
		s.turn++
		player := e.NewID
		s.player = &player
	}
}

// World returns a consistent view of the session state
func (s *Session) World() *WorldView {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := s.state.Map().Size()
	view := &WorldView{
		SessionID:  s.ID,
		ScenarioID: s.ScenarioID,
		Observer:   s.Observer,
		Width:      size.W,
		Height:     size.H,
		Layout:     s.state.Map().Rows(),
		Units:      s.state.SortedUnits(),
		Turn:       s.turn,
		Events:     len(s.log),
		Desync:     s.desync,
	}
	if s.player != nil {
		player := *s.player
		view.CurrentPlayer = &player
	}
	return view
}

// UnitDetail returns a unit together with the closest known enemy
func (s *Session) UnitDetail(id engine.UnitID) (*UnitDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Asking about a unit this observer never saw is a lookup miss, not a desync.
	if !s.state.HasUnit(id) {
		return nil, fmt.Errorf("%w: %d", engine.ErrUnitNotFound, id)
	}
	unit, err := s.state.Unit(id)
	if err != nil {
		return nil, err
	}

	detail := &UnitDetail{Unit: unit}
	if t, ok := s.Catalog.UnitType(unit.TypeID); ok {
		detail.TypeName = t.Name
	}
	if enemy, distance, ok := engine.NearestEnemy(s.state, id); ok {
		detail.NearestEnemy = &enemy
		detail.EnemyDistance = distance
	}
	return detail, nil
}

// Tile describes the terrain and units on one position
func (s *Session) Tile(pos engine.MapPos) (*TileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Map().InBounds(pos) {
		return nil, fmt.Errorf("%w: %s", ErrOutOfBounds, pos)
	}
	units := s.state.UnitsAt(pos)
	if units == nil {
		units = []engine.Unit{}
	}
	return &TileInfo{
		X:        pos.X,
		Y:        pos.Y,
		Terrain:  s.state.Map().TileAt(pos),
		Units:    units,
		Occupied: s.state.IsTileOccupied(pos),
	}, nil
}

// Records returns a copy of the event log
func (s *Session) Records() []EventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]EventRecord(nil), s.log...)
}

// Desync returns the reason the session stopped accepting events, if it did
func (s *Session) Desync() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desync
}

// Touch records an access
func (s *Session) Touch(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastAccessedAt = t
}

// LastAccess returns the last access time
func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastAccessedAt
}
