// Command feed streams an event log into a session on a running server, one event
// at a time, so WebSocket viewers can follow along. It creates a session (or resumes
// the one saved in .session) and stops at the first event the server rejects.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/wargame/game/engine"
	"github.com/wricardo/wargame/game/service"
)

// ErrRejected is returned when the server refuses an event
var ErrRejected = errors.New("event rejected")

// Client talks to the REST API for a single session
type Client struct {
	baseURL   string
	sessionID string
	client    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) CreateSession(ctx context.Context, scenarioID, observer string) (*service.SessionInfo, error) {
	body := map[string]string{}
	if scenarioID != "" {
		body["scenario_id"] = scenarioID
	}
	if observer != "" {
		body["observer"] = observer
	}

	var info service.SessionInfo
	if err := c.do(ctx, http.MethodPost, "/api/sessions", body, &info); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	c.sessionID = info.ID
	return &info, nil
}

func (c *Client) GetState(ctx context.Context) (*service.WorldView, error) {
	var world service.WorldView
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/sessions/%s/state", c.sessionID), nil, &world); err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}
	return &world, nil
}

// Apply posts one event. A rejected event returns ErrRejected with the server's reason.
func (c *Client) Apply(ctx context.Context, env engine.Envelope) (*service.ApplyResult, error) {
	var result service.ApplyResult
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/sessions/%s/events", c.sessionID), env, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ApplyBatch posts events in one request; the server stops at the first failure
func (c *Client) ApplyBatch(ctx context.Context, envs []engine.Envelope) (*service.BatchResult, error) {
	var result service.BatchResult
	path := fmt.Sprintf("/api/sessions/%s/events/batch", c.sessionID)
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"events": envs}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			if resp.StatusCode < 500 {
				return fmt.Errorf("%w: %s", ErrRejected, errResp.Error)
			}
			return errors.New(errResp.Error)
		}
		return fmt.Errorf("%s - %s", resp.Status, string(data))
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

// feedOptions controls one feed run
type feedOptions struct {
	Delay time.Duration
	Batch bool
}

// feedResult summarizes a feed run
type feedResult struct {
	Applied int
	Total   int
	World   *service.WorldView
	Err     error
}

// feed sends events in order and stops at the first rejection
func feed(ctx context.Context, c *Client, envs []engine.Envelope, opts feedOptions, logger zerolog.Logger) (*feedResult, error) {
	result := &feedResult{Total: len(envs)}

	if opts.Batch {
		batch, err := c.ApplyBatch(ctx, envs)
		if err != nil {
			return nil, err
		}
		result.Applied = batch.Applied
		result.World = batch.World
		if !batch.Success {
			result.Err = fmt.Errorf("%w: event %d: %s", ErrRejected, batch.StoppedOnEvent, batch.StoppedReason)
		}
		return result, nil
	}

	for i, env := range envs {
		applied, err := c.Apply(ctx, env)
		if errors.Is(err, ErrRejected) {
			result.Err = fmt.Errorf("event %d: %w", i+1, err)
			break
		}
		if err != nil {
			return nil, err
		}
		result.Applied++
		result.World = applied.World

		logger.Debug().
			Int("seq", applied.Record.Seq).
			Str("event", string(env.Kind)).
			Msg("event applied")

		if opts.Delay > 0 && i < len(envs)-1 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(opts.Delay):
			}
		}
	}

	if result.Err != nil {
		// The rejected event may have desynced the session; report what the server holds now.
		if world, err := c.GetState(ctx); err == nil {
			result.World = world
		}
	}
	return result, nil
}

func readEnvelopes(path string) ([]engine.Envelope, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var envs []engine.Envelope
	if err := json.NewDecoder(r).Decode(&envs); err != nil {
		return nil, fmt.Errorf("parse events: %w", err)
	}
	return envs, nil
}

const sessionFile = ".session"

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	cmd := &cli.Command{
		Name:      "feed",
		Usage:     "stream an event log into a session on a running server",
		ArgsUsage: "EVENTS_FILE (or - for stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080", Usage: "server URL"},
			&cli.StringFlag{Name: "scenario", Usage: "scenario id for a new session"},
			&cli.StringFlag{Name: "observer", Usage: "observer label for a new session"},
			&cli.StringFlag{Name: "continue", Usage: "feed into an existing session by ID"},
			&cli.BoolFlag{Name: "new", Usage: "ignore the saved session and create a new one"},
			&cli.DurationFlag{Name: "delay", Usage: "pause between events"},
			&cli.BoolFlag{Name: "batch", Usage: "send all events in one batch request"},
			&cli.BoolFlag{Name: "v", Usage: "verbose output"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Bool("v") {
				logger = logger.Level(zerolog.DebugLevel)
			} else {
				logger = logger.Level(zerolog.InfoLevel)
			}

			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("events file is required")
			}
			envs, err := readEnvelopes(path)
			if err != nil {
				return err
			}

			client := NewClient(cmd.String("url"))
			logger.Info().Str("url", cmd.String("url")).Int("events", len(envs)).Msg("connecting to server")

			// Resume an explicit or saved session unless told otherwise
			savedSessionID := cmd.String("continue")
			if savedSessionID == "" && !cmd.Bool("new") {
				if data, err := os.ReadFile(sessionFile); err == nil {
					savedSessionID = string(bytes.TrimSpace(data))
				}
			}

			if savedSessionID != "" {
				client.sessionID = savedSessionID
				if world, err := client.GetState(ctx); err != nil {
					logger.Warn().Err(err).Str("session", savedSessionID).Msg("failed to resume session (may be expired)")
					savedSessionID = ""
				} else {
					logger.Info().Str("session", savedSessionID).Int("events", world.Events).Msg("session resumed")
				}
			}

			if savedSessionID == "" {
				info, err := client.CreateSession(ctx, cmd.String("scenario"), cmd.String("observer"))
				if err != nil {
					return err
				}
				logger.Info().Str("session", info.ID).Str("scenario", info.ScenarioID).Msg("session created")
				if err := os.WriteFile(sessionFile, []byte(info.ID), 0644); err != nil {
					logger.Warn().Err(err).Msg("failed to save session ID")
				}
			}

			result, err := feed(ctx, client, envs, feedOptions{Delay: cmd.Duration("delay"), Batch: cmd.Bool("batch")}, logger)
			if err != nil {
				return err
			}

			event := logger.Info()
			if result.Err != nil {
				event = logger.Error().Err(result.Err)
			}
			if result.World != nil && result.World.Desync != "" {
				event = event.Str("desync", result.World.Desync)
			}
			event.Str("session", client.sessionID).Int("applied", result.Applied).Int("total", result.Total).Msg("feed finished")

			return result.Err
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		os.Exit(1)
	}
}
