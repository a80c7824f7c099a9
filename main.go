// Command wargame serves observer world-state sessions for a turn-based tactical battle.
//
// It supports three commands:
//  1. "serve" (default) – runs the HTTP server exposing REST API, WebSocket, and an /mcp HTTP endpoint
//  2. "mcp" – runs an MCP stdio server and spins up an internal HTTP API if none is available
//  3. "replay" – applies an event log to a scenario offline and reports where it desyncs
//
// Settings come from defaults, an optional settings file, WARGAME_* environment
// variables (and a .env file), then command line flags.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/wargame/api"
	"github.com/wricardo/wargame/game/config"
	"github.com/wricardo/wargame/game/engine"
	"github.com/wricardo/wargame/game/service"
	"github.com/wricardo/wargame/game/session"
	"github.com/wricardo/wargame/settings"
	"github.com/wricardo/wargame/transport/mcp"
	"github.com/wricardo/wargame/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Wargame World State Server"
)

// persistenceSyncInterval is how often in-memory sessions are checked against storage
const persistenceSyncInterval = 5 * time.Second

// app carries the resolved settings and root logger into every command
type app struct {
	settings *settings.Settings
	logger   zerolog.Logger
}

func main() {
	a := &app{logger: zerolog.Nop()}
	if err := a.command().Run(context.Background(), os.Args); err != nil {
		a.logger.Error().Err(err).Msg("command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:           "wargame",
		Usage:          AppName,
		Version:        Version,
		DefaultCommand: "serve",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "settings file (JSON or YAML)"},
			&cli.StringFlag{Name: "host", Usage: "HTTP server host"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "HTTP server port"},
			&cli.StringFlag{Name: "config-dir", Usage: "directory containing scenarios and units.json"},
			&cli.StringFlag{Name: "storage", Usage: "session storage backend: file, sqlite or redis"},
			&cli.StringFlag{Name: "log-level", Usage: "log level: debug, info, warn or error"},
			&cli.BoolFlag{Name: "debug", Usage: "shorthand for --log-level debug"},
			&cli.BoolFlag{Name: "ngrok", Usage: "enable ngrok tunnel"},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "ngrok auth token (or NGROK_AUTHTOKEN)"},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "custom ngrok domain"},
		},
		Before: a.before,
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"server", "http"},
				Usage:   "run HTTP server with API, WebSocket, and MCP endpoint",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runHTTPServer(ctx, a.settings, a.logger)
				},
			},
			{
				Name:    "mcp",
				Aliases: []string{"stdio-mcp", "mcp-stdio"},
				Usage:   "run MCP stdio server, starting an internal HTTP API if none is reachable",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runStdioMCP(ctx, a.settings, a.logger)
				},
			},
			{
				Name:      "replay",
				Usage:     "apply an event log to a scenario and report the outcome",
				ArgsUsage: "EVENTS_FILE (or - for stdin)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "scenario", Aliases: []string{"s"}, Usage: "scenario id (default scenario if empty)"},
				},
				Action: a.replay,
			},
		},
	}
}

// before resolves settings and builds the root logger ahead of any command
func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	// Load .env file if it exists (ignore error if not found)
	envErr := godotenv.Load()

	s, err := settings.Load(cmd.String("config"))
	if err != nil {
		return ctx, err
	}
	applyFlags(cmd, s)
	if err := s.Validate(); err != nil {
		return ctx, err
	}

	a.settings = s
	a.logger = newLogger(os.Stderr, s.Level())

	if envErr == nil {
		a.logger.Debug().Msg("loaded environment variables from .env file")
	} else if !errors.Is(envErr, os.ErrNotExist) {
		a.logger.Warn().Err(envErr).Msg("error loading .env file")
	}
	return ctx, nil
}

// applyFlags lets explicit command line flags win over file and environment settings
func applyFlags(cmd *cli.Command, s *settings.Settings) {
	if cmd.IsSet("host") {
		s.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		s.Port = cmd.Int("port")
	}
	if cmd.IsSet("config-dir") {
		s.ConfigDir = cmd.String("config-dir")
	}
	if cmd.IsSet("storage") {
		s.Storage.Backend = cmd.String("storage")
	}
	if cmd.IsSet("log-level") {
		s.LogLevel = cmd.String("log-level")
	}
	if cmd.Bool("debug") {
		s.LogLevel = "debug"
	}
	if cmd.IsSet("ngrok") {
		s.Ngrok.Enabled = cmd.Bool("ngrok")
	}
	if cmd.IsSet("ngrok-auth") {
		s.Ngrok.AuthToken = cmd.String("ngrok-auth")
	}
	if cmd.IsSet("ngrok-domain") {
		s.Ngrok.Domain = cmd.String("ngrok-domain")
	}
}

func newLogger(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// services bundles what the commands need from the game layer
type services struct {
	game        service.GameService
	sessions    *session.Manager
	persistence session.SessionPersistence
	close       func() error
}

// initializeServices wires the config manager, session storage, and the game service.
func initializeServices(s *settings.Settings, logger zerolog.Logger) (*services, error) {
	configManager, err := config.NewManager(s.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	persistence, closeFn, err := openPersistence(s.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create session persistence: %w", err)
	}

	sessionManager := session.NewManagerWithPersistence(persistence, logger)

	// Load persisted sessions on startup
	if err := sessionManager.LoadPersistedSessions(); err != nil {
		logger.Warn().Err(err).Msg("failed to load persisted sessions")
	}

	gameService, err := service.NewGameService(sessionManager, configManager, logger)
	if err != nil {
		closeFn()
		return nil, fmt.Errorf("failed to create game service: %w", err)
	}

	logger.Info().
		Str("backend", s.Storage.Backend).
		Int("sessions", sessionManager.Count()).
		Str("config_dir", s.ConfigDir).
		Msg("services initialized")

	return &services{
		game:        gameService,
		sessions:    sessionManager,
		persistence: persistence,
		close:       closeFn,
	}, nil
}

// openPersistence opens the configured storage backend and returns its closer
func openPersistence(st settings.StorageSettings) (session.SessionPersistence, func() error, error) {
	noop := func() error { return nil }

	switch st.Backend {
	case settings.BackendSQLite:
		p, err := session.NewSQLitePersistence(st.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil

	case settings.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr: st.RedisAddr,
			DB:   st.RedisDB,
		})
		p, err := session.NewRedisPersistence(client)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return p, client.Close, nil

	case settings.BackendFile, "":
		p, err := session.NewFilePersistence(st.Dir)
		if err != nil {
			return nil, nil, err
		}
		return p, noop, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", st.Backend)
}

// newRouter mounts the API at the root and the MCP proxy at /mcp.
func newRouter(apiServer http.Handler, mcpClient *mcp.Client) *http.ServeMux {
	mainRouter := http.NewServeMux()

	// Mount API server at root
	mainRouter.Handle("/", apiServer)

	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)
		if response == nil {
			// Notifications have no response
			w.WriteHeader(http.StatusAccepted)
			return
		}

		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(responseData)
	})

	return mainRouter
}

// runHTTPServer starts the HTTP server with REST API, WebSocket hub, and an /mcp proxy endpoint.
// If ngrok is enabled, it also provisions a public tunnel.
func runHTTPServer(ctx context.Context, s *settings.Settings, logger zerolog.Logger) error {
	svc, err := initializeServices(s, logger)
	if err != nil {
		return err
	}
	defer svc.close()

	hub := websocket.NewHub(logger)
	go hub.Run()
	defer hub.Stop()

	apiServer := api.NewServer(svc.game, hub, logger)

	addr := s.Addr()
	mcpClient := mcp.NewClient(fmt.Sprintf("http://%s", addr))
	mainRouter := newRouter(apiServer, mcpClient)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mainRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	serverErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()

		logger.Info().
			Str("addr", addr).
			Str("api", fmt.Sprintf("http://%s/api", addr)).
			Str("websocket", fmt.Sprintf("ws://%s/ws?session=<session_id>", addr)).
			Str("mcp", fmt.Sprintf("http://%s/mcp", addr)).
			Msg("HTTP server listening")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	wg.Add(2)
	go func() {
		defer wg.Done()
		sessionCleanupRoutine(ctx, svc.sessions, s.Sessions, logger)
	}()
	go func() {
		defer wg.Done()
		persistenceSyncRoutine(ctx, svc.sessions, svc.persistence, persistenceSyncInterval, logger)
	}()

	if s.Ngrok.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runNgrokTunnel(ctx, s.Ngrok, mainRouter, logger)
		}()
	}

	// Wait for shutdown signal or a listener failure
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err = <-serverErr:
		logger.Error().Err(err).Msg("HTTP server failed")
		stop()
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error().Err(shutdownErr).Msg("HTTP server shutdown error")
	}

	// Wait for all goroutines to finish
	wg.Wait()

	if saveErr := svc.sessions.SaveAllSessions(); saveErr != nil {
		logger.Error().Err(saveErr).Msg("failed to save sessions on shutdown")
	}
	logger.Info().Msg("server stopped")
	return err
}

// runNgrokTunnel serves the router through an ngrok tunnel until ctx is done.
func runNgrokTunnel(ctx context.Context, n settings.NgrokSettings, handler http.Handler, logger zerolog.Logger) {
	log := logger.With().Str("component", "ngrok").Logger()

	if n.AuthToken == "" {
		log.Warn().Msg("ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if n.Domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(n.Domain))
		log.Info().Str("domain", n.Domain).Msg("using custom ngrok domain")
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(n.AuthToken))
	if err != nil {
		log.Error().Err(err).Msg("failed to start ngrok tunnel")
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close ngrok tunnel")
		}
	}()

	url := tun.URL()
	log.Info().
		Str("url", url).
		Str("api", url+"/api").
		Str("websocket", url+"/ws?session=<session_id>").
		Str("mcp", url+"/mcp").
		Msg("ngrok tunnel established")

	if err := http.Serve(tun, handler); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		log.Error().Err(err).Msg("ngrok server error")
	}
	log.Info().Msg("ngrok tunnel closed")
}

// sessionCleanupRoutine periodically evicts sessions that have not been accessed
// within the retention window.
func sessionCleanupRoutine(ctx context.Context, manager *session.Manager, cfg settings.SessionSettings, logger zerolog.Logger) {
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := manager.CleanupExpiredSessions(cfg.MaxAge); removed > 0 {
				logger.Info().Int("removed", removed).Msg("cleaned up expired sessions")
			}
		}
	}
}

// persistenceSyncRoutine removes sessions from memory when their stored copy was
// deleted behind the server's back.
func persistenceSyncRoutine(ctx context.Context, manager *session.Manager, persistence session.SessionPersistence, interval time.Duration, logger zerolog.Logger) {
	if persistence == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pruned := pruneOrphanedSessions(manager, persistence, logger); pruned > 0 {
				logger.Info().Int("pruned", pruned).Msg("storage sync pruned orphaned sessions from memory")
			}
		}
	}
}

func pruneOrphanedSessions(manager *session.Manager, persistence session.SessionPersistence, logger zerolog.Logger) int {
	pruned := 0
	for _, sess := range manager.List() {
		if persistence.Exists(sess.ID) {
			continue
		}
		if err := manager.DeleteFromMemory(sess.ID); err == nil {
			pruned++
			logger.Debug().Str("session", sess.ID).Msg("pruned session from memory (storage copy deleted)")
		}
	}
	return pruned
}

// runStdioMCP runs an MCP stdio server.
// It tries to reuse an API at the configured address; if unavailable, it starts a
// minimal internal HTTP API bound to a random loopback port and targets that.
func runStdioMCP(ctx context.Context, s *settings.Settings, logger zerolog.Logger) error {
	externalURL := fmt.Sprintf("http://%s", s.Addr())
	baseURL := externalURL

	if !apiReachable(externalURL) {
		logger.Info().Str("url", externalURL).Msg("no external API server found, starting internal HTTP server")

		svc, err := initializeServices(s, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := svc.sessions.SaveAllSessions(); err != nil {
				logger.Error().Err(err).Msg("failed to save sessions")
			}
			svc.close()
		}()

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return fmt.Errorf("failed to get available port: %w", err)
		}

		hub := websocket.NewHub(logger)
		go hub.Run()
		defer hub.Stop()

		httpServer := &http.Server{Handler: api.NewServer(svc.game, hub, logger)}
		go func() {
			if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("internal HTTP server error")
			}
		}()
		defer httpServer.Close()

		baseURL = fmt.Sprintf("http://%s", listener.Addr().String())
		logger.Info().Str("url", baseURL).Msg("internal HTTP server started for MCP stdio")
	} else {
		logger.Info().Str("url", externalURL).Msg("external API server found, using it for MCP")
	}

	mcpClient := mcp.NewClient(baseURL)
	logger.Info().Msg("MCP stdio server ready")

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

// apiReachable reports whether an API server answers its health check
func apiReachable(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/api/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

// replayReport is the outcome of replaying an event log offline
type replayReport struct {
	Scenario string
	Applied  int
	Total    int
	// FailedAt is the 1-based index of the failing event, 0 when the log replays cleanly
	FailedAt int
	Err      error
	State    *engine.State
}

func (a *app) replay(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("events file is required")
	}

	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	configManager, err := config.NewManager(a.settings.ConfigDir)
	if err != nil {
		return fmt.Errorf("failed to create config manager: %w", err)
	}

	report, err := replayLog(configManager, cmd.String("scenario"), r)
	if err != nil {
		return err
	}

	w := cmd.Root().Writer
	if w == nil {
		w = os.Stdout
	}
	printReplayReport(w, report)

	a.logger.Debug().
		Str("scenario", report.Scenario).
		Int("applied", report.Applied).
		Int("total", report.Total).
		Msg("replay finished")

	if report.Err != nil {
		return fmt.Errorf("replay stopped at event %d", report.FailedAt)
	}
	return nil
}

// replayLog decodes a JSON array of event envelopes and replays it on top of a scenario's
// opening placements.
func replayLog(configs *config.Manager, scenarioID string, r io.Reader) (*replayReport, error) {
	scenario := configs.GetDefault()
	if scenarioID != "" {
		var err error
		if scenario, err = configs.LoadScenario(scenarioID); err != nil {
			return nil, err
		}
	}
	catalog := configs.Catalog()

	var envs []engine.Envelope
	if err := json.NewDecoder(r).Decode(&envs); err != nil {
		return nil, fmt.Errorf("failed to parse events: %w", err)
	}
	events := make([]engine.Event, 0, len(envs))
	for i, env := range envs {
		ev, err := env.Event()
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i+1, err)
		}
		events = append(events, ev)
	}

	opening, err := engine.OpeningEvents(scenario, catalog)
	if err != nil {
		return nil, err
	}

	state, err := engine.Replay(catalog, scenario, append(opening, events...))
	report := &replayReport{
		Scenario: scenario.Name,
		Applied:  len(events),
		Total:    len(events),
		State:    state,
	}

	var replayErr *engine.ReplayError
	if errors.As(err, &replayErr) {
		if replayErr.Index < len(opening) {
			return nil, fmt.Errorf("scenario placements do not replay: %w", replayErr.Err)
		}
		report.Err = replayErr.Err
		report.Applied = replayErr.Index - len(opening)
		report.FailedAt = report.Applied + 1
	} else if err != nil {
		return nil, err
	}
	return report, nil
}

func printReplayReport(w io.Writer, report *replayReport) {
	fmt.Fprintf(w, "Scenario: %s\n", report.Scenario)
	fmt.Fprintf(w, "Applied: %d/%d events\n", report.Applied, report.Total)

	if report.Err != nil {
		fmt.Fprintf(w, "❌ Stopped at event %d: %v\n", report.FailedAt, report.Err)
		if engine.IsDesync(report.Err) {
			fmt.Fprintln(w, "   The observer's view no longer matches the event stream")
		}
	} else {
		fmt.Fprintln(w, "✅ Log replays cleanly")
	}

	if report.State == nil {
		return
	}
	units := engine.UnitsByPlayer(report.State)
	strength := engine.TroopStrength(report.State)
	players := make([]engine.PlayerID, 0, len(units))
	for p := range units {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i] < players[j] })
	for _, p := range players {
		fmt.Fprintf(w, "Player %d: %d units, %d troops\n", p, units[p], strength[p])
	}
}
