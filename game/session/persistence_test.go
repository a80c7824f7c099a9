package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wricardo/wargame/game/engine"
	"github.com/wricardo/wargame/game/service"
)

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

func newTestSession(t *testing.T, id string) *service.Session {
	t.Helper()
	sess, err := service.NewSession(id, "duel", "blue", duelScenario(), engine.DefaultCatalog())
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	return sess
}

func stepEast(t *testing.T, sess *service.Session, fromX int) {
	t.Helper()
	move := engine.Move{
		UnitID: 1,
		Path:   engine.NewPath(1, engine.MapPos{X: fromX, Y: 0}, engine.MapPos{X: fromX + 1, Y: 0}),
		Mode:   engine.MoveFast,
	}
	if _, err := sess.Apply(move); err != nil {
		t.Fatalf("Failed to apply move from x=%d: %v", fromX, err)
	}
}

func soldierPos(t *testing.T, sess *service.Session) engine.MapPos {
	t.Helper()
	detail, err := sess.UnitDetail(1)
	if err != nil {
		t.Fatalf("Failed to get soldier: %v", err)
	}
	return detail.Unit.Pos
}

func newRedisPersistence(t *testing.T) *RedisPersistence {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	rp, err := NewRedisPersistence(client)
	if err != nil {
		t.Fatalf("Failed to create redis persistence: %v", err)
	}
	return rp
}

func newSQLitePersistence(t *testing.T) *SQLitePersistence {
	t.Helper()
	sp, err := NewSQLitePersistence(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("Failed to create sqlite persistence: %v", err)
	}
	t.Cleanup(func() { _ = sp.Close() })
	return sp
}

func newFilePersistence(t *testing.T) *FilePersistence {
	t.Helper()
	fp, err := NewFilePersistence(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create file persistence: %v", err)
	}
	return fp
}

func TestPersistenceBackends(t *testing.T) {
	backends := map[string]func(t *testing.T) SessionPersistence{
		"file":   func(t *testing.T) SessionPersistence { return newFilePersistence(t) },
		"sqlite": func(t *testing.T) SessionPersistence { return newSQLitePersistence(t) },
		"redis":  func(t *testing.T) SessionPersistence { return newRedisPersistence(t) },
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			t.Run("save and load replays the log", func(t *testing.T) {
				p := open(t)
				sess := newTestSession(t, "abcd")
				stepEast(t, sess, 0)

				if err := p.Save(sess); err != nil {
					t.Fatalf("Failed to save session: %v", err)
				}
				if !p.Exists("abcd") {
					t.Fatal("Session should exist after save")
				}

				loaded, err := p.Load("abcd")
				if err != nil {
					t.Fatalf("Failed to load session: %v", err)
				}
				if got := len(loaded.Records()); got != 3 {
					t.Errorf("Expected 3 records (2 placements + 1 move), got %d", got)
				}
				if pos := soldierPos(t, loaded); pos != (engine.MapPos{X: 1, Y: 0}) {
					t.Errorf("Expected soldier at (1,0), got %v", pos)
				}
				if loaded.ScenarioID != "duel" || loaded.Observer != "blue" {
					t.Errorf("Metadata lost: scenario=%q observer=%q", loaded.ScenarioID, loaded.Observer)
				}
			})

			t.Run("repeated saves append only new records", func(t *testing.T) {
				p := open(t)
				sess := newTestSession(t, "ab01")
				if err := p.Save(sess); err != nil {
					t.Fatalf("Failed to save session: %v", err)
				}
				stepEast(t, sess, 0)
				stepEast(t, sess, 1)
				if err := p.Save(sess); err != nil {
					t.Fatalf("Failed to save session: %v", err)
				}
				if err := p.Save(sess); err != nil {
					t.Fatalf("Failed to save session twice: %v", err)
				}

				loaded, err := p.Load("ab01")
				if err != nil {
					t.Fatalf("Failed to load session: %v", err)
				}
				records := loaded.Records()
				if len(records) != 4 {
					t.Fatalf("Expected 4 records, got %d", len(records))
				}
				for i, rec := range records {
					if rec.Seq != i+1 {
						t.Errorf("Record %d has seq %d", i, rec.Seq)
					}
				}
				if pos := soldierPos(t, loaded); pos != (engine.MapPos{X: 2, Y: 0}) {
					t.Errorf("Expected soldier at (2,0), got %v", pos)
				}
			})

			t.Run("desync survives a reload", func(t *testing.T) {
				p := open(t)
				sess := newTestSession(t, "ab02")
				if _, err := sess.Apply(engine.HideUnit{UnitID: 99}); !errors.Is(err, engine.ErrDesync) {
					t.Fatalf("Expected desync, got %v", err)
				}
				if err := p.Save(sess); err != nil {
					t.Fatalf("Failed to save session: %v", err)
				}

				loaded, err := p.Load("ab02")
				if err != nil {
					t.Fatalf("Failed to load session: %v", err)
				}
				if loaded.Desync() == "" {
					t.Fatal("Expected desync reason after reload")
				}
				if _, err := loaded.Apply(engine.HideUnit{UnitID: 1}); !errors.Is(err, service.ErrSessionDesynced) {
					t.Errorf("Expected ErrSessionDesynced, got %v", err)
				}
			})

			t.Run("lookups are case-insensitive", func(t *testing.T) {
				p := open(t)
				if err := p.Save(newTestSession(t, "CaseID")); err != nil {
					t.Fatalf("Failed to save session: %v", err)
				}
				if !p.Exists("caseid") || !p.Exists("CASEID") {
					t.Error("Expected case-insensitive Exists")
				}
				if _, err := p.Load("caseid"); err != nil {
					t.Errorf("Failed to load with lowercase id: %v", err)
				}
			})

			t.Run("list and delete", func(t *testing.T) {
				p := open(t)
				for _, id := range []string{"s002", "s001"} {
					if err := p.Save(newTestSession(t, id)); err != nil {
						t.Fatalf("Failed to save %s: %v", id, err)
					}
				}
				ids, err := p.ListAll()
				if err != nil {
					t.Fatalf("Failed to list sessions: %v", err)
				}
				if len(ids) != 2 {
					t.Fatalf("Expected 2 sessions, got %v", ids)
				}

				if err := p.Delete("s001"); err != nil {
					t.Fatalf("Failed to delete session: %v", err)
				}
				if p.Exists("s001") {
					t.Error("Session should not exist after delete")
				}
				if err := p.Delete("s001"); !errors.Is(err, ErrSessionNotFound) {
					t.Errorf("Expected ErrSessionNotFound on second delete, got %v", err)
				}
				if _, err := p.Load("s001"); !errors.Is(err, ErrSessionNotFound) {
					t.Errorf("Expected ErrSessionNotFound on load, got %v", err)
				}
			})

			t.Run("nil session", func(t *testing.T) {
				p := open(t)
				if err := p.Save(nil); err == nil {
					t.Error("Expected error saving nil session")
				}
			})
		})
	}
}

func TestRedisPersistence_ConcurrentSavesAppendOnce(t *testing.T) {
	rp := newRedisPersistence(t)
	sess := newTestSession(t, "race")
	stepEast(t, sess, 0)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- rp.Save(sess)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Concurrent save failed: %v", err)
		}
	}

	stored, err := rp.client.LLen(context.Background(), redisEventsKey("race")).Result()
	if err != nil {
		t.Fatalf("Failed to read event list: %v", err)
	}
	if stored != 3 {
		t.Errorf("Expected 3 records in redis, got %d", stored)
	}

	loaded, err := rp.Load("race")
	if err != nil {
		t.Fatalf("Failed to load session: %v", err)
	}
	if pos := soldierPos(t, loaded); pos != (engine.MapPos{X: 1, Y: 0}) {
		t.Errorf("Expected soldier at (1,0), got %v", pos)
	}
}
