// Command uploader sends local files to an upload endpoint using the same
// accept policy and upload manager as the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/upload-widget/backend/internal/config"
	"github.com/upload-widget/backend/internal/models"
	"github.com/upload-widget/backend/internal/upload"
)

func main() {
	endpoint := flag.String("endpoint", "", "upload endpoint URL (overrides the config)")
	configPath := flag.String("config", "", "path to the XML config file")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: uploader [-endpoint URL] [-config path] file...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.FromEnvironment()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *endpoint != "" {
		cfg.Upload.Endpoint = *endpoint
	}

	level := cfg.LogLevel()
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	code, err := run(cfg, flag.Args(), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "uploader: %v\n", err)
	}
	os.Exit(code)
}

// run uploads paths and returns the process exit code.
func run(cfg *config.AppConfig, paths []string, logger *slog.Logger) (int, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return 1, fmt.Errorf("building accept policy: %w", err)
	}

	files := make([]upload.File, 0, len(paths))
	for _, p := range paths {
		f, err := upload.OpenLocalFile(p, cfg.Upload.DetectContentType)
		if err != nil {
			return 1, err
		}
		files = append(files, f)
	}

	transport := upload.NewHTTPTransport(cfg.Upload.Endpoint,
		upload.WithProgressInterval(cfg.ProgressInterval()),
		upload.WithTransportLogger(logger.With("component", "transport")),
	)
	mgr := upload.NewManager(transport,
		upload.WithPolicy(policy),
		upload.WithLogger(logger.With("component", "manager")),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	updates, unsubscribe := mgr.Subscribe()
	r := newRenderer(os.Stdout)
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		for snap := range updates {
			r.Render(snap)
		}
	}()

	fmt.Printf("Uploading %d file(s) to %s (%s)\n", len(files), cfg.Upload.Endpoint, policy.Hint())
	mgr.AddFiles(files...)

	go func() {
		<-ctx.Done()
		if n := mgr.CancelAll(); n > 0 {
			logger.Info("cancelling uploads", "count", n)
		}
	}()

	if err := mgr.Wait(context.Background()); err != nil {
		return 1, err
	}
	unsubscribe()
	<-rendered

	final := mgr.Snapshot()
	r.Render(final)
	s := summarize(final)
	fmt.Println(s)
	if ctx.Err() != nil {
		return 130, nil
	}
	if s.failed > 0 || s.rejected > 0 {
		return 1, nil
	}
	return 0, nil
}

type summary struct {
	completed, failed, rejected int
}

func summarize(snap models.UploadSnapshot) summary {
	var s summary
	for _, e := range snap.Entries {
		switch e.Status {
		case models.UploadStatusCompleted:
			s.completed++
		case models.UploadStatusFailed:
			s.failed++
		case models.UploadStatusRejected:
			s.rejected++
		}
	}
	return s
}

func (s summary) String() string {
	return fmt.Sprintf("%d completed, %d failed, %d rejected", s.completed, s.failed, s.rejected)
}
