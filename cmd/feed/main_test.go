package main

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wricardo/wargame/api"
	"github.com/wricardo/wargame/game/config"
	"github.com/wricardo/wargame/game/engine"
	"github.com/wricardo/wargame/game/service"
	"github.com/wricardo/wargame/game/session"
)

const moveSoldier = `{"kind":"move","data":{"unit_id":1,"mode":"fast","path":{"nodes":[{"pos":{"x":1,"y":1},"cost":0},{"pos":{"x":2,"y":1},"cost":1}]}}}`

func newTestServer(t *testing.T) *Client {
	t.Helper()
	configs, err := config.NewManager("../../configs")
	if err != nil {
		t.Skipf("Skipping test - configs not loadable: %v", err)
	}
	svc, err := service.NewGameService(session.NewManager(), configs, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	server := httptest.NewServer(api.NewServer(svc, nil, zerolog.Nop()))
	t.Cleanup(server.Close)

	client := NewClient(server.URL)
	if _, err := client.CreateSession(context.Background(), "skirmish", "blue"); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return client
}

func envelopes(t *testing.T, raw string) []engine.Envelope {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.json")
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("Failed to write events: %v", err)
	}
	envs, err := readEnvelopes(path)
	if err != nil {
		t.Fatalf("readEnvelopes failed: %v", err)
	}
	return envs
}

func TestFeed_OneByOne(t *testing.T) {
	client := newTestServer(t)
	envs := envelopes(t, "["+moveSoldier+"]")

	result, err := feed(context.Background(), client, envs, feedOptions{Delay: time.Millisecond}, zerolog.Nop())
	if err != nil {
		t.Fatalf("feed failed: %v", err)
	}
	if result.Err != nil || result.Applied != 1 || result.Total != 1 {
		t.Fatalf("Expected 1/1 applied, got %+v", result)
	}

	world, err := client.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if world.Events != result.World.Events {
		t.Errorf("Expected server event count %d, got %d", result.World.Events, world.Events)
	}
	for _, u := range world.Units {
		if u.ID == 1 && (u.Pos.X != 2 || u.Pos.Y != 1) {
			t.Errorf("Expected unit 1 at (2,1), got %+v", u.Pos)
		}
	}
}

func TestFeed_StopsOnRejection(t *testing.T) {
	client := newTestServer(t)
	envs := envelopes(t, "["+moveSoldier+`,{"kind":"hide_unit","data":{"unit_id":99}},`+moveSoldier+"]")

	result, err := feed(context.Background(), client, envs, feedOptions{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("feed failed: %v", err)
	}
	if !errors.Is(result.Err, ErrRejected) {
		t.Errorf("Expected ErrRejected, got %v", result.Err)
	}
	if result.Applied != 1 || result.Total != 3 {
		t.Errorf("Expected 1/3 applied, got %d/%d", result.Applied, result.Total)
	}
	if result.World == nil || result.World.Desync == "" {
		t.Errorf("Expected the session to report a desync, got %+v", result.World)
	}
}

func TestFeed_Batch(t *testing.T) {
	client := newTestServer(t)
	envs := envelopes(t, "["+moveSoldier+`,{"kind":"hide_unit","data":{"unit_id":99}}]`)

	result, err := feed(context.Background(), client, envs, feedOptions{Batch: true}, zerolog.Nop())
	if err != nil {
		t.Fatalf("feed failed: %v", err)
	}
	if result.Applied != 1 {
		t.Errorf("Expected 1 applied event, got %d", result.Applied)
	}
	if !errors.Is(result.Err, ErrRejected) {
		t.Errorf("Expected ErrRejected, got %v", result.Err)
	}
}

func TestClient_UnknownSession(t *testing.T) {
	client := newTestServer(t)
	client.sessionID = "does-not-exist"

	if _, err := client.GetState(context.Background()); err == nil {
		t.Error("Expected error for unknown session")
	}
}

func TestReadEnvelopes_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	if err := os.WriteFile(path, []byte(`{"kind":"move"}`), 0644); err != nil {
		t.Fatalf("Failed to write events: %v", err)
	}
	if _, err := readEnvelopes(path); err == nil {
		t.Error("Expected error for a non-array event log")
	}
	if _, err := readEnvelopes(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for a missing file")
	}
}
