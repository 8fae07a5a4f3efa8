package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/upload-widget/backend/internal/api"
	"github.com/upload-widget/backend/internal/config"
	"github.com/upload-widget/backend/internal/storage"
	"github.com/upload-widget/backend/internal/upload"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds each shutdown phase: draining uploads, then
// stopping the HTTP server.
const shutdownTimeout = 10 * time.Second

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to the XML config file (default: next to the executable)")
	flag.Parse()

	if *configPath == "" {
		// Get the executable's directory for config resolution
		exePath, err := os.Executable()
		if err != nil {
			fmt.Printf("Failed to get executable path: %v\n", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(exePath), "upload-widget.config.xml")
	}

	// Load XML configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, *configPath); err != nil {
		fmt.Printf("Server error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, configPath string) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	api.ShowErrorDetails(cfg.Advanced.ShowErrorDetails)

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	fileStore, err := newStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	policy, err := cfg.Policy()
	if err != nil {
		return fmt.Errorf("building accept policy: %w", err)
	}

	// Initialize the upload manager
	transport := upload.NewHTTPTransport(cfg.Upload.Endpoint,
		upload.WithProgressInterval(cfg.ProgressInterval()),
		upload.WithTransportLogger(logger.With("component", "transport")),
	)
	uploadMgr := upload.NewManager(transport,
		upload.WithPolicy(policy),
		upload.WithLogger(logger.With("component", "manager")),
	)

	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e, api.MiddlewareOptions{
		EnableRequestLogging: cfg.Advanced.EnableRequestLogging,
		EnableCORS:           cfg.Server.EnableCORS,
		AllowOrigins:         cfg.Server.AllowOrigins,
		BodyLimit:            cfg.Server.BodyLimit,
	})
	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Store:     fileStore,
		UploadMgr: uploadMgr,
		Control: api.ControlOptions{
			DetectContentType: cfg.Upload.DetectContentType,
			FormMemory:        cfg.FormMemoryBytes(),
			LocalRoot:         cfg.Upload.LocalRoot,
		},
		AllowFileDeletion: cfg.Storage.AllowFileDeletion,
		WSMaxMessageKB:    cfg.Advanced.WebSocketMaxMessageSize,
		AllowOrigins:      cfg.Server.AllowOrigins,
		Version:           Version,
		Logger:            logger.With("component", "api"),
		Shutdown:          ctx.Done(),
	}))

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(cfg, configPath)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		if n := uploadMgr.CancelAll(); n > 0 {
			logger.Info("cancelling in-flight uploads", "count", n)
		}
		waitCtx, cancelWait := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelWait()
		if err := uploadMgr.Wait(waitCtx); err != nil {
			logger.Warn("uploads still in flight at shutdown", "error", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newStore(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "", "local":
		return storage.NewLocalStore(cfg.GetUploadDir())
	case "s3":
		return storage.NewS3Store(ctx, cfg.Storage.Bucket, cfg.Storage.Region,
			storage.WithKeyPrefix(cfg.Storage.Prefix),
			storage.WithS3Logger(logger.With("component", "s3")),
		)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func printBanner(cfg *config.AppConfig, configPath string) {
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Upload Widget Server                            ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Storage:    %-45s║\n", cfg.Storage.Backend)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Upload To: %-46s║\n", cfg.Upload.Endpoint)
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
}
