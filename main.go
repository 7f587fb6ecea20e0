// Command memory-match starts the Memory Match session server.
//
// It supports two modes:
//  1. "server" (default): runs the HTTP server exposing REST API, WebSocket, and an /mcp HTTP endpoint
//  2. "stdio-mcp": runs an MCP stdio server and spins up an internal HTTP API if none is available
//
// Flags control host/port, config and storage directories, debug logging,
// and optional ngrok tunneling for easy external access during development.
// Every flag can also be set through the environment or a .env file.
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
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"

	"github.com/wricardo/memory-match/api"
	"github.com/wricardo/memory-match/game/anticheat"
	"github.com/wricardo/memory-match/game/config"
	"github.com/wricardo/memory-match/game/service"
	"github.com/wricardo/memory-match/game/session"
	"github.com/wricardo/memory-match/game/stats"
	"github.com/wricardo/memory-match/transport/mcp"
	"github.com/wricardo/memory-match/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Memory Match Server"
)

const shutdownTimeout = 10 * time.Second

// serverConfig is the resolved command line and environment configuration.
type serverConfig struct {
	Host         string
	Port         int
	ConfigDir    string
	SessionsDir  string
	ResultsFile  string
	GracePeriod  time.Duration
	IdleTimeout  time.Duration
	Debug        bool
	NgrokEnabled bool
	NgrokAuth    string
	NgrokDomain  string
}

func (c serverConfig) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "memory-match",
		Usage:   AppName,
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: "localhost", Usage: "HTTP server host", Sources: cli.EnvVars("HOST")},
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "HTTP server port", Sources: cli.EnvVars("PORT")},
			&cli.StringFlag{Name: "config-dir", Value: "configs", Usage: "Directory containing themes and defaults.yaml", Sources: cli.EnvVars("CONFIG_DIR")},
			&cli.StringFlag{Name: "sessions-dir", Value: "sessions", Usage: "Directory for room snapshots (empty disables persistence)", Sources: cli.EnvVars("SESSIONS_DIR")},
			&cli.StringFlag{Name: "results-file", Value: "results.jsonl", Usage: "JSON lines file for game results (empty disables recording)", Sources: cli.EnvVars("RESULTS_FILE")},
			&cli.DurationFlag{Name: "grace-period", Value: session.DefaultTiming().GracePeriod, Usage: "How long a disconnected player may reconnect", Sources: cli.EnvVars("GRACE_PERIOD")},
			&cli.DurationFlag{Name: "idle-timeout", Value: session.DefaultTiming().IdleTimeout, Usage: "How long an idle room is kept", Sources: cli.EnvVars("IDLE_TIMEOUT")},
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging", Sources: cli.EnvVars("DEBUG")},
			&cli.BoolFlag{Name: "ngrok", Usage: "Enable ngrok tunnel", Sources: cli.EnvVars("NGROK_ENABLED")},
			&cli.StringFlag{Name: "ngrok-auth", Usage: "Ngrok auth token", Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")},
			&cli.StringFlag{Name: "ngrok-domain", Usage: "Custom ngrok domain (optional)", Sources: cli.EnvVars("NGROK_DOMAIN")},
		},
		Action: runServer,
		Commands: []*cli.Command{
			{
				Name:    "server",
				Aliases: []string{"http"},
				Usage:   "Run HTTP server with API, WebSocket, and MCP endpoint (default)",
				Action:  runServer,
			},
			{
				Name:    "stdio-mcp",
				Aliases: []string{"mcp-stdio", "mcp"},
				Usage:   "Run MCP stdio server with internal HTTP server",
				Action:  runStdioMCP,
			},
		},
	}
}

// main loads .env, parses flags and runs the selected mode.
func main() {
	// Load .env file if it exists
	envErr := godotenv.Load()

	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: error loading .env file: %v\n", envErr)
	}
}

func configFromCommand(cmd *cli.Command) serverConfig {
	return serverConfig{
		Host:         cmd.String("host"),
		Port:         int(cmd.Int("port")),
		ConfigDir:    cmd.String("config-dir"),
		SessionsDir:  cmd.String("sessions-dir"),
		ResultsFile:  cmd.String("results-file"),
		GracePeriod:  cmd.Duration("grace-period"),
		IdleTimeout:  cmd.Duration("idle-timeout"),
		Debug:        cmd.Bool("debug"),
		NgrokEnabled: cmd.Bool("ngrok"),
		NgrokAuth:    cmd.String("ngrok-auth"),
		NgrokDomain:  cmd.String("ngrok-domain"),
	}
}

// newLogger builds a production logger, or a development one with --debug.
// Both write to stderr so stdio-mcp keeps stdout for the protocol.
func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.OutputPaths = []string{"stderr"}
		return cfg.Build()
	}
	return zap.NewProduction()
}

// services holds every long-lived component of a running server.
type services struct {
	logger   *zap.Logger
	themes   *config.Manager
	monitor  *anticheat.Monitor
	hub      *websocket.Hub
	manager  *session.Manager
	recorder *stats.FileRecorder
	game     service.GameService
}

// initializeServices wires the theme catalogue, anti-cheat monitor,
// WebSocket hub, room manager and the read-only game service.
func initializeServices(cfg serverConfig, logger *zap.Logger) (*services, error) {
	themes, err := config.NewManager(cfg.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	acOpts := anticheat.DefaultOptions()
	acOpts.Logger = logger
	monitor := anticheat.New(acOpts)

	hub := websocket.NewHub(logger)

	timing := session.DefaultTiming()
	if cfg.GracePeriod > 0 {
		timing.GracePeriod = cfg.GracePeriod
	}
	if cfg.IdleTimeout > 0 {
		timing.IdleTimeout = cfg.IdleTimeout
	}

	opts := []session.Option{
		session.WithGuard(monitor),
		session.WithPublisher(hub),
		session.WithTiming(timing),
		session.WithLogger(logger),
	}

	if cfg.SessionsDir != "" {
		persistence, err := session.NewFilePersistence(cfg.SessionsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create session persistence: %w", err)
		}
		opts = append(opts, session.WithPersistence(persistence))
	}

	var recorder *stats.FileRecorder
	if cfg.ResultsFile != "" {
		recorder, err = stats.NewFileRecorder(cfg.ResultsFile, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open results file: %w", err)
		}
		opts = append(opts, session.WithRecorder(recorder))
	}

	manager := session.NewManager(themes, opts...)
	hub.SetHandler(manager)

	return &services{
		logger:   logger,
		themes:   themes,
		monitor:  monitor,
		hub:      hub,
		manager:  manager,
		recorder: recorder,
		game:     service.NewGameService(manager, themes, monitor),
	}, nil
}

// run starts the background loops and restores persisted rooms. It blocks
// until ctx is done.
func (s *services) run(ctx context.Context) error {
	restored, err := s.manager.RestoreRooms(ctx)
	if err != nil {
		s.logger.Warn("failed to restore some rooms", zap.Error(err))
	}
	if restored > 0 {
		s.logger.Info("restored rooms", zap.Int("count", restored))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.hub.Run(ctx) })
	g.Go(func() error { return s.monitor.Run(ctx) })
	g.Go(func() error { return s.manager.Run(ctx) })
	return g.Wait()
}

// close saves every room and flushes the results file.
func (s *services) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.manager.Shutdown(ctx)
	if s.recorder != nil {
		err = multierr.Append(err, s.recorder.Close())
	}
	return err
}

// handler combines the REST API, WebSocket endpoint and the /mcp endpoint.
func (s *services) handler(baseURL string) http.Handler {
	apiServer := api.NewServer(s.game, s.hub, s.logger)
	mcpClient := mcp.NewClient(baseURL)

	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", apiServer)
	mainRouter.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := mcpClient.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	})
	return mainRouter
}

// runServer starts the HTTP server with REST API, WebSocket hub, and an /mcp proxy endpoint.
// If ngrok is enabled, it also provisions a public tunnel.
func runServer(ctx context.Context, cmd *cli.Command) error {
	cfg := configFromCommand(cmd)
	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting", zap.String("app", AppName), zap.String("version", Version))

	svc, err := initializeServices(cfg, logger)
	if err != nil {
		return err
	}

	addr := cfg.addr()
	handler := svc.handler("http://" + addr)
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.run(ctx) })

	g.Go(func() error {
		logger.Info("HTTP server listening",
			zap.String("rest", "http://"+addr+"/api"),
			zap.String("websocket", "ws://"+addr+"/ws?user=<user_id>"),
			zap.String("mcp", "http://"+addr+"/mcp"))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	if cfg.NgrokEnabled {
		g.Go(func() error {
			serveNgrok(ctx, cfg, handler, logger)
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if cerr := svc.close(); cerr != nil {
		logger.Error("shutdown incomplete", zap.Error(cerr))
		err = multierr.Append(err, cerr)
	}
	logger.Info("server stopped")
	return err
}

// serveNgrok exposes handler through an ngrok tunnel until ctx is done.
// Tunnel failures are logged and never stop the local server.
func serveNgrok(ctx context.Context, cfg serverConfig, handler http.Handler, logger *zap.Logger) {
	if cfg.NgrokAuth == "" {
		logger.Warn("ngrok enabled but no auth token provided (use --ngrok-auth, NGROK_AUTHTOKEN, or NGROK_AUTH_TOKEN)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if cfg.NgrokDomain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(cfg.NgrokDomain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(cfg.NgrokAuth))
	if err != nil {
		logger.Error("failed to start ngrok tunnel", zap.Error(err))
		return
	}

	ngrokServer := &http.Server{Handler: handler}
	go func() {
		<-ctx.Done()
		ngrokServer.Close()
	}()

	ngrokURL := tun.URL()
	logger.Info("ngrok tunnel established",
		zap.String("url", ngrokURL),
		zap.String("websocket", ngrokURL+"/ws?user=<user_id>"),
		zap.String("mcp", ngrokURL+"/mcp"))

	if err := ngrokServer.Serve(tun); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("ngrok server error", zap.Error(err))
	}
	logger.Info("ngrok tunnel closed")
}

// externalAPIAvailable reports whether a server already answers at baseURL.
func externalAPIAvailable(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/healthz")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

// runStdioMCP runs an MCP stdio server. It reuses a server already running
// on the configured address; otherwise it starts an internal HTTP API bound
// to a random loopback port and targets that.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	cfg := configFromCommand(cmd)
	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	baseURL := "http://" + cfg.addr()
	if externalAPIAvailable(baseURL) {
		logger.Info("using external API server for MCP", zap.String("url", baseURL))
		return server.ServeStdio(mcp.NewClient(baseURL).GetMCPServer())
	}

	svc, err := initializeServices(cfg, logger)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to get available port: %w", err)
	}
	baseURL = "http://" + listener.Addr().String()
	logger.Info("starting internal HTTP server for MCP stdio", zap.String("url", baseURL))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpServer := &http.Server{Handler: svc.handler(baseURL)}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.run(gctx) })
	g.Go(func() error {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	serveErr := server.ServeStdio(mcp.NewClient(baseURL).GetMCPServer())

	cancel()
	httpServer.Close()
	err = multierr.Combine(serveErr, g.Wait(), svc.close())
	return err
}
