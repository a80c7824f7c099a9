package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/wricardo/wargame/game/engine"
	"github.com/wricardo/wargame/game/service"
)

// SessionRecord is the sessions table row
type SessionRecord struct {
	ID             string `gorm:"primaryKey"`
	ScenarioID     string
	Observer       string
	Scenario       []byte
	UnitTypes      []byte
	Desync         string
	CreatedAt      time.Time
	LastAccessedAt time.Time
}

// EventRecord is one row of a session event log
type EventRecord struct {
	ID        string `gorm:"primaryKey"`
	SessionID string `gorm:"index:idx_event_session_seq,priority:1"`
	Seq       int    `gorm:"index:idx_event_session_seq,priority:2"`
	Kind      string
	Data      []byte
	AppliedAt time.Time
}

// SQLitePersistence implements SessionPersistence on a SQLite database through gorm.
// The event log is append-only: Save inserts only records the table does not have yet.
type SQLitePersistence struct {
	db *gorm.DB
}

// NewSQLitePersistence opens (or creates) the database at path. An empty path uses a
// shared in-memory database.
func NewSQLitePersistence(path string) (*SQLitePersistence, error) {
	if path == "" {
		path = "file::memory:?cache=shared"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	if err := db.AutoMigrate(&SessionRecord{}, &EventRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate session database: %w", err)
	}
	return &SQLitePersistence{db: db}, nil
}

// Save upserts the session row and appends new log records in one transaction
func (sp *SQLitePersistence) Save(session *service.Session) error {
	if session == nil {
		return fmt.Errorf("session cannot be nil")
	}
	snap := session.Snapshot()

	scenario, err := json.Marshal(snap.Scenario)
	if err != nil {
		return fmt.Errorf("failed to marshal scenario: %w", err)
	}
	unitTypes, err := json.Marshal(snap.UnitTypes)
	if err != nil {
		return fmt.Errorf("failed to marshal unit types: %w", err)
	}

	row := SessionRecord{
		ID:             strings.ToLower(snap.ID),
		ScenarioID:     snap.ScenarioID,
		Observer:       snap.Observer,
		Scenario:       scenario,
		UnitTypes:      unitTypes,
		Desync:         snap.Desync,
		CreatedAt:      snap.CreatedAt,
		LastAccessedAt: snap.LastAccessedAt,
	}

	return sp.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("failed to save session %s: %w", snap.ID, err)
		}

		var stored int
		if err := tx.Model(&EventRecord{}).
			Where("session_id = ?", row.ID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&stored).Error; err != nil {
			return fmt.Errorf("failed to read event log of %s: %w", snap.ID, err)
		}

		var rows []EventRecord
		for _, rec := range snap.Records {
			if rec.Seq <= stored {
				continue
			}
			rows = append(rows, EventRecord{
				ID:        rec.ID,
				SessionID: row.ID,
				Seq:       rec.Seq,
				Kind:      string(rec.Event.Kind),
				Data:      rec.Event.Data,
				AppliedAt: rec.AppliedAt,
			})
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to append events of %s: %w", snap.ID, err)
		}
		return nil
	})
}

// Load reads the session row and its ordered log and replays it
func (sp *SQLitePersistence) Load(id string) (*service.Session, error) {
	id = strings.ToLower(id)
	var row SessionRecord
	if err := sp.db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	var events []EventRecord
	if err := sp.db.Where("session_id = ?", id).Order("seq").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to load event log of %s: %w", id, err)
	}

	snap := service.Snapshot{
		ID:             row.ID,
		ScenarioID:     row.ScenarioID,
		Observer:       row.Observer,
		Desync:         row.Desync,
		CreatedAt:      row.CreatedAt,
		LastAccessedAt: row.LastAccessedAt,
		Records:        make([]service.EventRecord, 0, len(events)),
	}
	if err := json.Unmarshal(row.Scenario, &snap.Scenario); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scenario of %s: %w", id, err)
	}
	if err := json.Unmarshal(row.UnitTypes, &snap.UnitTypes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal unit types of %s: %w", id, err)
	}
	for _, ev := range events {
		snap.Records = append(snap.Records, service.EventRecord{
			ID:        ev.ID,
			Seq:       ev.Seq,
			Event:     engine.Envelope{Kind: engine.EventKind(ev.Kind), Data: json.RawMessage(ev.Data)},
			AppliedAt: ev.AppliedAt,
		})
	}

	return service.RestoreSession(snap)
}

// Delete removes a session and its log
func (sp *SQLitePersistence) Delete(id string) error {
	id = strings.ToLower(id)
	return sp.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&SessionRecord{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete session %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotFound
		}
		if err := tx.Where("session_id = ?", id).Delete(&EventRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete event log of %s: %w", id, err)
		}
		return nil
	})
}

// ListAll returns all persisted session IDs
func (sp *SQLitePersistence) ListAll() ([]string, error) {
	var ids []string
	if err := sp.db.Model(&SessionRecord{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return ids, nil
}

// Exists checks if a session row exists
func (sp *SQLitePersistence) Exists(id string) bool {
	var count int64
	if err := sp.db.Model(&SessionRecord{}).Where("id = ?", strings.ToLower(id)).Count(&count).Error; err != nil {
		return false
	}
	return count > 0
}

// Close closes the underlying database
func (sp *SQLitePersistence) Close() error {
	sqlDB, err := sp.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
