package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/livetemplate/karigar/internal/config"
	"github.com/livetemplate/karigar/internal/server"
)

// shutdownTimeout bounds graceful shutdown after SIGINT/SIGTERM.
const shutdownTimeout = 10 * time.Second

// serveOptions are the serve flags. Unset pointers leave the config value alone.
type serveOptions struct {
	dir        string
	configPath string
	port       string
	host       string
	backend    string
	watch      *bool
	debug      bool
}

func parseServeArgs(args []string) (serveOptions, error) {
	opts := serveOptions{dir: "."}

	value := func(i *int, name string) (string, error) {
		if *i+1 >= len(args) {
			return "", fmt.Errorf("%s requires a value", name)
		}
		*i++
		return args[*i], nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		var err error
		switch arg {
		case "--watch", "-w":
			watch := true
			opts.watch = &watch
		case "--debug", "-d":
			opts.debug = true
		case "--port", "-p":
			opts.port, err = value(&i, arg)
		case "--host":
			opts.host, err = value(&i, arg)
		case "--config", "-c":
			opts.configPath, err = value(&i, arg)
		case "--backend", "-b":
			opts.backend, err = value(&i, arg)
		default:
			if strings.HasPrefix(arg, "-") {
				return opts, fmt.Errorf("unknown flag: %s", arg)
			}
			opts.dir = arg
		}
		if err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// loadConfig reads the config named by opts and applies flag overrides.
func loadConfig(opts serveOptions) (*config.Config, error) {
	if _, err := os.Stat(opts.dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("directory does not exist: %s", opts.dir)
	}
	absDir, err := filepath.Abs(opts.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	var cfg *config.Config
	if opts.configPath != "" {
		cfg, err = config.Load(opts.configPath)
	} else {
		cfg, err = config.LoadFromDir(absDir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if opts.port != "" {
		port, err := strconv.Atoi(opts.port)
		if err != nil {
			return nil, fmt.Errorf("invalid port: %s", opts.port)
		}
		cfg.Server.Port = port
	}
	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.backend != "" {
		cfg.Backend.URL = opts.backend
	}
	if opts.watch != nil {
		cfg.Features.HotReload = *opts.watch
	}
	if opts.debug {
		cfg.Server.Debug = true
	}
	// A relative template dir is relative to the served directory.
	if dir := cfg.Server.TemplateDir; dir != "" && !filepath.IsAbs(dir) {
		cfg.Server.TemplateDir = filepath.Join(absDir, dir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ServeCommand implements the serve command.
func ServeCommand(args []string) error {
	opts, err := parseServeArgs(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	config.SetDebug(cfg.Server.Debug)

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	fmt.Printf("🧵 %s\n\n", cfg.Title)
	fmt.Printf("Backend: %s%s\n", cfg.Backend.GetURL(), cfg.Backend.GetEndpoint())
	if timeout := cfg.Backend.GetTimeout(); timeout > 0 {
		fmt.Printf("Timeout: %v\n", timeout)
	} else {
		fmt.Printf("Timeout: none\n")
	}

	if cfg.Features.HotReload {
		if cfg.Server.TemplateDir == "" {
			fmt.Printf("⚠️  Watch mode needs server.template_dir; using the built-in page\n")
		} else if err := srv.EnableWatch(); err != nil {
			return fmt.Errorf("failed to enable watch mode: %w", err)
		} else {
			fmt.Printf("👀 Watching %s for template changes\n", cfg.Server.TemplateDir)
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("\n🌐 Server running at http://%s\n", addr)
	if cfg.Features.Metrics {
		fmt.Printf("📈 Metrics at http://%s/metrics\n", addr)
	}
	fmt.Printf("Press Ctrl+C to stop\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("[Server] Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func init() {
	log.SetFlags(0) // Remove timestamp from logs
}
