package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wricardo/wargame/game/engine"
)

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	sessions SessionManager
	configs  ConfigManager
	logger   zerolog.Logger
	otel     *telemetry
}

// NewGameService creates a new game service instance
func NewGameService(sessions SessionManager, configs ConfigManager, logger zerolog.Logger) (GameService, error) {
	t, err := newTelemetry()
	if err != nil {
		return nil, err
	}
	return &gameServiceImpl{
		sessions: sessions,
		configs:  configs,
		logger:   logger.With().Str("component", "service").Logger(),
		otel:     t,
	}, nil
}

// CreateSession creates a new session for one observer of a scenario
func (s *gameServiceImpl) CreateSession(ctx context.Context, scenarioID, observer string) (*SessionInfo, error) {
	ctx, span := s.otel.tracer.Start(ctx, "session.create",
		trace.WithAttributes(attribute.String("scenario", scenarioID)))
	defer span.End()

	var scenario *engine.Scenario
	if scenarioID != "" {
		var err error
		scenario, err = s.configs.LoadScenario(scenarioID)
		if err != nil {
			err = s.scenarioLoadError(scenarioID, err)
			failSpan(span, err)
			return nil, err
		}
	} else {
		scenario = s.configs.GetDefault()
		scenarioID = scenario.Name
	}

	// Let session manager generate a proper 4-character ID
	sess, err := s.sessions.Create("", scenarioID, observer, scenario, s.configs.Catalog())
	if err != nil {
		err = fmt.Errorf("failed to create session: %w", err)
		failSpan(span, err)
		return nil, err
	}

	s.otel.created.Add(ctx, 1)
	span.SetAttributes(attribute.String("session", sess.ID))
	s.logger.Info().
		Str("session", sess.ID).
		Str("scenario", scenarioID).
		Str("observer", observer).
		Int("units", len(scenario.Units)).
		Msg("session created")

	return sessionInfo(sess), nil
}

// scenarioLoadError adds the available scenario ids to a not-found error
func (s *gameServiceImpl) scenarioLoadError(scenarioID string, err error) error {
	if !errors.Is(err, ErrScenarioNotFound) {
		return fmt.Errorf("failed to load scenario %s: %w", scenarioID, err)
	}
	available, listErr := s.configs.ListScenarios()
	if listErr == nil && len(available) > 0 {
		ids := make([]string, 0, len(available))
		for _, sc := range available {
			ids = append(ids, sc.ScenarioID)
		}
		return fmt.Errorf("%w: '%s'. Available scenarios: %v", ErrScenarioNotFound, scenarioID, ids)
	}
	return fmt.Errorf("%w: '%s'. Use /api/scenarios to list available scenarios", ErrScenarioNotFound, scenarioID)
}

// GetSession retrieves session information
func (s *gameServiceImpl) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return sessionInfo(sess), nil
}

// ListSessions returns all active sessions ordered by creation time
func (s *gameServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	sessions := s.sessions.List()
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	result := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		result = append(result, sessionInfo(sess))
	}
	return result, nil
}

// DeleteSession removes a session
func (s *gameServiceImpl) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(sessionID); err != nil {
		return err
	}
	s.logger.Info().Str("session", sessionID).Msg("session deleted")
	return nil
}

// ApplyEvent applies one event to a session. A desync is returned as an error and
// leaves the session refusing further events.
func (s *gameServiceImpl) ApplyEvent(ctx context.Context, sessionID string, ev engine.Event) (*ApplyResult, error) {
	if ev == nil {
		return nil, fmt.Errorf("%w: event is required", engine.ErrInvalidEvent)
	}
	ctx, span := s.otel.tracer.Start(ctx, "session.apply", trace.WithAttributes(
		attribute.String("session", sessionID),
		attribute.String("event", string(ev.Kind())),
	))
	defer span.End()

	sess, err := s.session(sessionID)
	if err != nil {
		failSpan(span, err)
		return nil, err
	}

	rec, err := sess.Apply(ev)
	if err != nil {
		s.recordFailure(ctx, sessionID, ev.Kind(), err)
		failSpan(span, err)
		return nil, err
	}
	s.otel.recordApplied(ctx, ev.Kind())
	s.persist(sessionID)

	s.logger.Debug().
		Str("session", sessionID).
		Str("event", string(ev.Kind())).
		Int("seq", rec.Seq).
		Msg("event applied")

	return &ApplyResult{
		SessionID: sessionID,
		Record:    rec,
		World:     sess.World(),
	}, nil
}

// ApplyEvents applies events in order and stops at the first failure. The failure is
// reported in the result, not as an error.
func (s *gameServiceImpl) ApplyEvents(ctx context.Context, sessionID string, evs []engine.Event) (*BatchResult, error) {
	ctx, span := s.otel.tracer.Start(ctx, "session.apply_batch", trace.WithAttributes(
		attribute.String("session", sessionID),
		attribute.Int("events", len(evs)),
	))
	defer span.End()

	sess, err := s.session(sessionID)
	if err != nil {
		failSpan(span, err)
		return nil, err
	}

	result := &BatchResult{
		SessionID:       sessionID,
		RequestedEvents: len(evs),
		Success:         true,
	}

	// Limit batch size to prevent abuse
	if len(evs) > engine.MaxBatchEvents {
		result.Truncated = true
		result.Limit = engine.MaxBatchEvents
		evs = evs[:engine.MaxBatchEvents]
	}
	for i, ev := range evs {
		if ev == nil {
			evs = evs[:i]
			result.Success = false
			result.StoppedOnEvent = i + 1
			result.StoppedReason = fmt.Sprintf("event %d is empty", i+1)
			break
		}
	}

	records, err := sess.ApplyAll(evs)
	result.Records = records
	result.Applied = len(records)
	for _, rec := range records {
		s.otel.recordApplied(ctx, rec.Event.Kind)
	}

	var replayErr *engine.ReplayError
	if errors.As(err, &replayErr) {
		kind := evs[replayErr.Index].Kind()
		s.recordFailure(ctx, sessionID, kind, replayErr.Err)
		failSpan(span, replayErr.Err)

		result.Success = false
		result.StoppedOnEvent = replayErr.Index + 1
		result.StoppedReason = replayErr.Err.Error()
		result.Desync = engine.IsDesync(replayErr.Err)
	} else if err != nil {
		failSpan(span, err)
		return nil, err
	}

	if result.Applied > 0 || result.Desync {
		s.persist(sessionID)
	}
	result.World = sess.World()
	return result, nil
}

// GetWorldState returns the current world view of a session
func (s *gameServiceImpl) GetWorldState(ctx context.Context, sessionID string) (*WorldView, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.World(), nil
}

// GetUnit returns one unit of a session
func (s *gameServiceImpl) GetUnit(ctx context.Context, sessionID string, unitID engine.UnitID) (*UnitDetail, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.UnitDetail(unitID)
}

// DescribeTile returns the terrain and units on one position
func (s *gameServiceImpl) DescribeTile(ctx context.Context, sessionID string, pos engine.MapPos) (*TileInfo, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Tile(pos)
}

// GetEventLog returns the paginated event log of a session
func (s *gameServiceImpl) GetEventLog(ctx context.Context, sessionID string, opts HistoryOptions) (*HistoryResponse, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return paginate(sess.Records(), opts), nil
}

// ListScenarios returns available scenarios
func (s *gameServiceImpl) ListScenarios(ctx context.Context) ([]*ScenarioInfo, error) {
	return s.configs.ListScenarios()
}

// LoadScenario loads a specific scenario
func (s *gameServiceImpl) LoadScenario(ctx context.Context, name string) (*engine.Scenario, error) {
	return s.configs.LoadScenario(name)
}

// SaveScenario validates a scenario against the unit catalog and saves it to disk
func (s *gameServiceImpl) SaveScenario(ctx context.Context, name string, scenario *engine.Scenario) error {
	if err := engine.ValidateScenario(scenario); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	if _, err := engine.OpeningEvents(scenario, s.configs.Catalog()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	if err := s.configs.SaveScenario(name, scenario); err != nil {
		return err
	}
	s.logger.Info().Str("scenario", name).Msg("scenario saved")
	return nil
}

// UnitTypes returns the unit catalog ordered by type id
func (s *gameServiceImpl) UnitTypes(ctx context.Context) ([]engine.UnitType, error) {
	return s.configs.Catalog().Types(), nil
}

func (s *gameServiceImpl) session(sessionID string) (*Session, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionNotFound, err)
	}
	_ = s.sessions.UpdateLastAccessed(sessionID)
	return sess, nil
}

// persist saves the session after a change; failures are logged, not returned
func (s *gameServiceImpl) persist(sessionID string) {
	if err := s.sessions.Save(sessionID); err != nil {
		s.logger.Warn().Err(err).Str("session", sessionID).Msg("failed to persist session")
	}
}

func (s *gameServiceImpl) recordFailure(ctx context.Context, sessionID string, kind engine.EventKind, err error) {
	if !engine.IsDesync(err) {
		return
	}
	s.otel.recordDesync(ctx, kind)
	s.logger.Warn().
		Err(err).
		Str("session", sessionID).
		Str("event", string(kind)).
		Msg("state desync, session halted")
	s.persist(sessionID)
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func sessionInfo(sess *Session) *SessionInfo {
	return &SessionInfo{
		ID:             sess.ID,
		ScenarioID:     sess.ScenarioID,
		Observer:       sess.Observer,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccess(),
		World:          sess.World(),
	}
}

func paginate(records []EventRecord, opts HistoryOptions) *HistoryResponse {
	total := len(records)

	// Apply defaults
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Order != "asc" {
		opts.Order = "desc"
	}

	totalPages := (total + opts.Limit - 1) / opts.Limit
	if totalPages == 0 {
		totalPages = 1
	}

	start := (opts.Page - 1) * opts.Limit
	end := start + opts.Limit
	if end > total {
		end = total
	}

	events := []EventRecord{}
	if start < total {
		if opts.Order == "desc" {
			// Most recent first
			for i := total - 1 - start; i >= total-end; i-- {
				events = append(events, records[i])
			}
		} else {
			events = append(events, records[start:end]...)
		}
	}

	return &HistoryResponse{
		Events:      events,
		TotalEvents: total,
		Page:        opts.Page,
		PageSize:    opts.Limit,
		TotalPages:  totalPages,
		HasNext:     opts.Page < totalPages,
		HasPrevious: opts.Page > 1,
	}
}
