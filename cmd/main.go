package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/contextual-meta-translator/internal/cache"
	"github.com/MimeLyc/contextual-meta-translator/internal/config"
	"github.com/MimeLyc/contextual-meta-translator/internal/engine"
	"github.com/MimeLyc/contextual-meta-translator/internal/httpapi"
	"github.com/MimeLyc/contextual-meta-translator/internal/metadata"
	"github.com/MimeLyc/contextual-meta-translator/internal/service"
	"github.com/MimeLyc/contextual-meta-translator/internal/telemetry"
	"github.com/MimeLyc/contextual-meta-translator/pkg/log"
)

const shutdownTimeout = 10 * time.Second

var (
	envFile      string
	cacheBackend string
	cacheDBPath  string
)

type cronRunner interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ctxmeta",
		Short: "Translate page metadata with a memoizing cache in front of the translation engine",
		Long: `ctxmeta translates scraped page metadata into several languages.

Results are cached per content and language set; a request for more
languages than were cached before only sends the missing ones to the
engine, in a single invocation.

Commands:
  serve        Run the HTTP API and the cache sweeper
  translate    Translate one metadata snapshot and print the result
  cache        Inspect or clear the translation cache`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before reading the environment")
	root.PersistentFlags().StringVar(&cacheBackend, "cache-backend", "", "Override CACHE_BACKEND (sqlite or memory)")
	root.PersistentFlags().StringVar(&cacheDBPath, "cache-db", "", "Override CACHE_DB_PATH")

	root.AddCommand(
		newServeCmd(),
		newTranslateCmd(),
		newCacheCmd(),
	)
	return root
}

func loadConfig() (*config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	log.InitLogger(log.ParseLevel(os.Getenv("LOG_LEVEL")))

	return config.NewFromEnv(
		config.WithCacheBackend(cacheBackend),
		config.WithCacheDBPath(cacheDBPath),
	)
}

// app holds the components shared by every command.
type app struct {
	cfg           *config.Config
	store         cache.Store
	svc           *service.Service
	shutdownTrace func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config) *app {
	shutdownTrace, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Warn("Tracing disabled: %v", err)
	}

	store := cache.Open(cfg.Cache)
	executor := engine.NewExecutor(
		engine.NewCLITranslator(cfg.Engine),
		engine.WithWorkspaceRoot(cfg.Engine.WorkspaceRoot),
	)
	svc := service.New(store, executor,
		service.WithTTL(cfg.Cache.TTL),
		service.WithDefaultSourceLanguage(cfg.Translate.DefaultSourceLanguage),
		service.WithSourceDetection(cfg.Translate.DetectSourceLanguage),
	)
	return &app{cfg: cfg, store: store, svc: svc, shutdownTrace: shutdownTrace}
}

func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.shutdownTrace(ctx); err != nil {
		log.Warn("Failed to flush traces: %v", err)
	}
	if err := a.store.Close(); err != nil {
		log.Warn("Failed to close cache: %v", err)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the cache sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a := newApp(ctx, cfg)
			defer a.Close()

			cronEngine := cron.New()
			if err := cache.ScheduleSweep(cronEngine, a.store, cfg.Cache.SweepCron); err != nil {
				return fmt.Errorf("schedule cache sweep: %w", err)
			}
			srv := httpapi.NewServer(a.svc, httpapi.WithRequestTimeout(cfg.Translate.RequestTimeout))
			return runWithComponents(ctx, cfg, cronEngine, srv)
		},
	}
}

func runWithComponents(ctx context.Context, cfg *config.Config, cronEngine cronRunner, httpSrv httpServer) error {
	cronEngine.Start()
	defer cronEngine.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP API listening on %s", cfg.HTTP.Addr)
		errCh <- httpSrv.ListenAndServe(cfg.HTTP.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newTranslateCmd() *cobra.Command {
	var (
		languages []string
		input     string
	)
	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate one metadata snapshot and print the result as JSON",
		Long: `Read a metadata snapshot as JSON (from --file, or stdin with "-") and
translate it into every language given with --lang.

The snapshot uses the keys title, description, keywords, h1, ogTitle,
ogDescription, twitterTitle, twitterDescription, sourceLanguage and
sourceHost.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			snapshot, err := readSnapshot(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}

			a := newApp(cmd.Context(), cfg)
			defer a.Close()

			ctx := cmd.Context()
			if cfg.Translate.RequestTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.Translate.RequestTimeout)
				defer cancel()
			}

			result, err := a.svc.Translate(ctx, snapshot, languages)
			if encErr := printJSON(cmd.OutOrStdout(), result); encErr != nil {
				return encErr
			}
			if err != nil {
				service.LogError(err)
				return err
			}
			if perr := result.Err(); perr != nil {
				log.Warn("%v", perr)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&languages, "lang", "l", nil, "Target language (repeatable or comma separated)")
	cmd.Flags().StringVarP(&input, "file", "f", "-", "Snapshot JSON file, - for stdin")
	_ = cmd.MarkFlagRequired("lang")
	return cmd
}

func readSnapshot(stdin io.Reader, path string) (metadata.Snapshot, error) {
	var snapshot metadata.Snapshot
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return snapshot, err
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(&snapshot); err != nil {
		return snapshot, fmt.Errorf("decode snapshot: %w", err)
	}
	return snapshot, nil
}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the translation cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Print the number of live entries and the serving backend",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				a := newApp(cmd.Context(), cfg)
				defer a.Close()

				stats, err := a.svc.CacheStats(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stats)
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every entry of the configured namespace",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				a := newApp(cmd.Context(), cfg)
				defer a.Close()

				return a.svc.ClearCache(cmd.Context())
			},
		},
	)
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
