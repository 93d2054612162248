package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/aboutme/cards/internal/api"
	"github.com/aboutme/cards/internal/auth"
	"github.com/aboutme/cards/internal/cache"
	"github.com/aboutme/cards/internal/config"
	"github.com/aboutme/cards/internal/directory"
	"github.com/aboutme/cards/internal/docstore"
	"github.com/aboutme/cards/internal/storage"
	"github.com/aboutme/cards/internal/worker"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the cards server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running cards server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cards system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP over stdio as mcp.user_id")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "cards.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "cards version %s\n", version)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if withMCP && cfg.MCP.UserID == "" {
		return errors.New("--mcp requires mcp.user_id (CARDS_MCP_USER_ID)")
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("cards is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("cards is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	var profiles directory.ProfileStore = store
	if cfg.Storage.ProfileBackend == config.BackendMongo {
		docs, err := docstore.Open(ctx, cfg.Storage.MongoURI, cfg.Storage.MongoDB)
		if err != nil {
			return fmt.Errorf("opening profile documents: %w", err)
		}
		defer docs.Close(context.Background())
		profiles = docs
		slog.Info("profile documents in mongo", "db", cfg.Storage.MongoDB)
	}

	var profileCache cache.Cache = cache.NewMemory()
	if cfg.Cache.RedisURL != "" {
		rdb, err := cache.DialRedis(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		profileCache = cache.NewRedis(rdb, "cards:")
		slog.Info("profile cache in redis")
	}

	verifier, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		return err
	}

	dir := directory.New(directory.Deps{
		Members:    store,
		Profiles:   profiles,
		Graphs:     store,
		Jobs:       store,
		Cache:      profileCache,
		CacheTTL:   cfg.Cache.TTL,
		MaxCompare: cfg.Directory.MaxCompare,
		PageSize:   cfg.Directory.PageSize,
		Logger:     slog.Default(),
	})

	handler := api.NewAppHandler(api.AppDeps{
		Directory:      dir,
		Verifier:       verifier,
		AllowedOrigins: cfg.Server.Origins(),
		Logger:         slog.Default(),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	if cfg.Server.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.Server.MaxConnections)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "cards listening on %s\n", addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		// Graceful shutdown with timeout.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Start skills graph worker.
	g.Go(func() error {
		worker.New(store, dir, 500*time.Millisecond).Run(gctx)
		return nil
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Directory: dir, UserID: cfg.MCP.UserID})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			slog.Info("MCP server started (stdio transport)", "user_id", cfg.MCP.UserID)
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("MCP stdio server: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func newVerifier(ctx context.Context, cfg config.AuthConfig) (auth.Verifier, error) {
	switch cfg.Mode {
	case config.AuthFirebase:
		v, err := auth.NewFirebaseVerifier(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("initializing firebase auth: %w", err)
		}
		return v, nil
	default:
		v, err := auth.NewJWTVerifier(cfg.JWTSecret)
		if err != nil {
			return nil, fmt.Errorf("initializing jwt auth: %w", err)
		}
		return v, nil
	}
}

func stopServer() error {
	cfg, err := config.LoadClient()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("cards is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop cards (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to cards (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.LoadClient()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	serverURL := strings.TrimRight(cfg.CLI.ServerURL, "/")

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running at %s", serverURL)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Auth", "%s", cfg.Auth.Mode)
	printStatus("Profiles", "%s", cfg.Storage.ProfileBackend)
	if cfg.Cache.RedisURL != "" {
		printStatus("Cache", "redis (ttl %s)", cfg.Cache.TTL)
	} else {
		printStatus("Cache", "in-process (ttl %s)", cfg.Cache.TTL)
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
