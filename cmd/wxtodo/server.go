package main

import (
	"context"
	"errors"
	"fmt"
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

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/wxtodo/internal/api"
	"github.com/kalambet/wxtodo/internal/config"
	"github.com/kalambet/wxtodo/internal/dedup"
	"github.com/kalambet/wxtodo/internal/extract"
	"github.com/kalambet/wxtodo/internal/items"
	"github.com/kalambet/wxtodo/internal/llm"
	"github.com/kalambet/wxtodo/internal/pipeline"
	"github.com/kalambet/wxtodo/internal/storage"
	"github.com/kalambet/wxtodo/internal/transcript"
	"github.com/kalambet/wxtodo/internal/wechat"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the wxtodo server (foreground)",
	Long: `Start the HTTP API and, unless --mcp=false, an MCP server on stdio.

The server stops on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running wxtodo server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show wxtodo system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", true, "serve MCP tools on stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "wxtodo.pid")
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

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func newCompleter(ctx context.Context, cfg config.Config) (llm.Completer, error) {
	c, err := llm.New(llm.Config{
		Provider:      cfg.LLM.Provider,
		OllamaBaseURL: cfg.Ollama.BaseURL,
		OllamaModel:   cfg.Ollama.Model,
		OpenRouterKey: cfg.OpenRouter.APIKey,
		Model:         cfg.OpenRouter.Model,
	})
	if err != nil {
		return nil, err
	}
	if o, ok := c.(*llm.Ollama); ok {
		if err := o.EnsureReady(ctx, os.Stderr); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "wxtodo version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to start twice on the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("wxtodo is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("wxtodo is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	completer, err := newCompleter(ctx, cfg)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	categories, err := extract.LoadCategories(cfg.Extract.CategoriesFile)
	if err != nil {
		return fmt.Errorf("loading categories: %w", err)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	itemStore := items.Open(store.Record(storage.ItemsRecordKey), items.WithLocation(loc))
	extractor := pipeline.NewExtractor(
		itemStore,
		transcript.NewAssembler(loc),
		extract.NewClient(completer, categories),
		dedup.New(cfg.Dedup.SimilarityThreshold),
	)

	deps := api.Deps{
		Items:         itemStore,
		Extractor:     extractor,
		Runs:          store,
		Token:         apiToken,
		LookbackHours: cfg.Batch.LookbackHours,
		Cooldown:      cfg.Cooldown(),
	}

	// The message source is optional; without it only /extract can feed the list.
	if cfg.WeChat.DBDir != "" {
		reader, err := wechat.Open(cfg.WeChat.DBDir)
		if err != nil {
			slog.Warn("WeChat database unavailable, batch extraction disabled", "dir", cfg.WeChat.DBDir, "error", err)
		} else {
			defer reader.Close()
			st := reader.Status()
			slog.Info("WeChat database opened", "dir", cfg.WeChat.DBDir, "message_dbs", st.MessageDBCount, "version", st.DBVersion)
			deps.Chats = reader
			deps.Batcher = pipeline.NewBatcher(extractor, wechat.NewSource(reader), store)
		}
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "wxtodo listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Items:     itemStore,
			Extractor: extractor,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			slog.Info("MCP server started (stdio transport)")
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("wxtodo is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop wxtodo (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to wxtodo (PID %d)", pid)
	return nil
}

type healthResponse struct {
	Status      string              `json:"status"`
	Persistence items.PersistHealth `json:"persistence"`
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client := &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
	if tok, err := config.GetAPIToken(config.NewKeychain()); err == nil {
		client.token = tok
	}

	running := false
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		var h healthResponse
		if err := decodeJSON(resp, &h); err != nil {
			printStatus("Server", "error (%v)", err)
		} else {
			running = true
			printStatus("Server", "running on port %d (%s)", cfg.Server.Port, h.Status)
			if h.Persistence.Failures > 0 {
				printWarning("%d failed writes, last: %s", h.Persistence.Failures, h.Persistence.LastError)
			}
		}
	}

	switch cfg.LLM.Provider {
	case "openrouter":
		printStatus("Model", "%s via OpenRouter", cfg.OpenRouter.Model)
	default:
		o := llm.NewOllama(cfg.Ollama.BaseURL, cfg.Ollama.Model)
		if o.IsRunning(ctx) {
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		} else {
			printStatus("Ollama", "not running")
		}
		printStatus("Model", "%s", cfg.Ollama.Model)
	}

	if cfg.WeChat.DBDir == "" {
		printStatus("WeChat", "not configured (wxtodo config set wechat.db_dir <dir>)")
	} else if r, err := wechat.Open(cfg.WeChat.DBDir); err != nil {
		printStatus("WeChat", "unavailable: %v", err)
	} else {
		groups, _ := r.Groups(ctx)
		printStatus("WeChat", "%d message databases, %d group chats", r.Status().MessageDBCount, len(groups))
		r.Close()
	}

	if running {
		if resp, err := client.get(ctx, "/items/stats"); err == nil {
			var st items.Stats
			if decodeJSON(resp, &st) == nil {
				printStatus("Items", "%d pending, %d overdue, %d completed", st.Pending, st.Overdue, st.Completed)
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
