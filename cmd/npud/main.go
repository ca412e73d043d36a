package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"npud/internal/catalog"
	"npud/internal/common/fsutil"
	"npud/internal/config"
	"npud/internal/httpapi"
	"npud/internal/hub"
	"npud/internal/manager"
	"npud/internal/npu"
	"npud/internal/store"
)

// version is stamped via -ldflags at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath      string
		addr         string
		modelsDir    string
		cacheDir     string
		storePath    string
		defaultModel string
		logLevel     string
		corsOrigins  string
	)
	cmd := &cobra.Command{
		Use:     "npud",
		Short:   "OpenAI-compatible inference server for NPU-resident models",
		Version: version,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg config.Config
			if cfgPath != "" {
				loaded, err := config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = loaded
			}
			// Flags override the file.
			if addr != "" {
				cfg.Addr = addr
			}
			if modelsDir != "" {
				cfg.ModelsDir = modelsDir
			}
			if cacheDir != "" {
				cfg.CacheDir = cacheDir
			}
			if storePath != "" {
				cfg.StorePath = storePath
			}
			if defaultModel != "" {
				cfg.DefaultModel = defaultModel
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if corsOrigins != "" {
				cfg.CORSOrigins = splitCSV(corsOrigins)
			}
			cfg.ApplyDefaults()
			return run(cmd.Context(), cfg)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&cfgPath, "config", "c", os.Getenv("NPUD_CONFIG"), "path to server config file (json/yaml/toml)")
	f.StringVar(&addr, "addr", os.Getenv("NPUD_ADDR"), "HTTP listen address, e.g. :8080")
	f.StringVar(&modelsDir, "models-dir", "", "directory of per-model config files")
	f.StringVar(&cacheDir, "cache-dir", "", "artifact cache directory")
	f.StringVar(&storePath, "store", "", "SQLite completion ledger path (empty disables)")
	f.StringVar(&defaultModel, "default-model", "", "model to load before serving")
	f.StringVar(&logLevel, "log-level", "", "zerolog level: debug, info, warn, error")
	f.StringVar(&corsOrigins, "cors-origins", "", "comma-separated allowed CORS origins")
	return cmd
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func run(ctx context.Context, cfg config.Config) error {
	setupLogging(cfg.LogLevel)

	cat, err := catalog.LoadDir(cfg.ModelsDir)
	if err != nil {
		return fmt.Errorf("load model catalog: %w", err)
	}
	if len(cat) == 0 {
		log.Warn().Str("dir", cfg.ModelsDir).Msg("model catalog is empty")
	}

	cacheDir, err := fsutil.ExpandHome(cfg.CacheDir)
	if err != nil {
		return err
	}
	hubClient := hub.NewClient(cacheDir)
	if cfg.HubBaseURL != "" {
		hubClient.BaseURL = cfg.HubBaseURL
	}

	var st *store.Store
	if cfg.StorePath != "" {
		path, err := fsutil.ExpandHome(cfg.StorePath)
		if err != nil {
			return err
		}
		if st, err = store.Open(path); err != nil {
			return err
		}
		defer st.Close()
	}

	mgr := manager.New(manager.Options{
		Catalog:     cat,
		Engine:      npu.NewEngine(),
		Source:      hubClient,
		Store:       st,
		SlotTimeout: cfg.SlotTimeout(),
	})
	defer mgr.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DefaultModel != "" {
		if err := mgr.Preload(ctx, cfg.DefaultModel); err != nil {
			return fmt.Errorf("preload %s: %w", cfg.DefaultModel, err)
		}
	}

	httpapi.Version = version
	httpapi.SetLogger(log.Logger)
	httpapi.SetBaseContext(ctx)
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	httpapi.SetCORSOptions(true, origins,
		[]string{"GET", "POST", "HEAD", "OPTIONS"},
		[]string{"Accept", "Authorization", "Content-Type"})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       cfg.KeepAlive(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("version", version).Msg("npud listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown incomplete")
	}
	return nil
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}
