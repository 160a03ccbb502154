package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Morditux/luxsession"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the session demo HTTP server",
	Long: `Starts an HTTP server with a visit counter backed by luxsession.
Flags override values read from --config.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on")
	serveCmd.Flags().String("backend", "", "Session backend: memory, file, sqlite, postgres, memcached or redis")
	serveCmd.Flags().String("dir", "", "Swap directory for the file backend")
	serveCmd.Flags().String("dsn", "", "Data source name for the sqlite and postgres backends")
	serveCmd.Flags().StringSlice("servers", nil, "Memcached servers")
	serveCmd.Flags().String("redis-addr", "", "Redis address")
}

// resolveConfig loads --config and applies the flags that were set explicitly.
func resolveConfig(cmd *cobra.Command) (config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(path)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	stringFlags := map[string]*string{
		"addr":       &cfg.Addr,
		"backend":    &cfg.Backend,
		"dir":        &cfg.Dir,
		"dsn":        &cfg.DSN,
		"redis-addr": &cfg.RedisAddr,
		"log-level":  &cfg.Log.Level,
		"log-format": &cfg.Log.Format,
	}
	for name, dst := range stringFlags {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	if flags.Changed("servers") {
		cfg.Servers, _ = flags.GetStringSlice("servers")
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := newLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	secure, err := cfg.Session.securePolicy()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := luxsession.NewMetrics(reg)

	store, err := openStore(cfg, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Backend, err)
	}

	worker := luxsession.NewWorker(luxsession.WithWorkerLogger(logger))
	worker.Start(ctx)
	defer worker.Stop()

	mgr := luxsession.NewManager(luxsession.Config{
		Store:       store,
		Worker:      worker,
		Timeout:     cfg.Session.Timeout,
		Expiration:  cfg.Session.Expiration,
		IdleTimeout: cfg.Session.IdleTimeout,
		GCTimer:     cfg.Session.GCTimer,
		Cookies: func(o *luxsession.CookieOptions) {
			if cfg.Session.CookieName != "" {
				o.Name = cfg.Session.CookieName
			}
			o.Secure = secure
		},
		Logger:  logger,
		Metrics: metrics,
	})
	defer func() {
		if err := mgr.Close(); err != nil {
			logger.Warn("failed to close session store", "err", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newRouter(mgr, reg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting luxsessiond", "addr", srv.Addr, "backend", cfg.Backend)
		serverErrors <- srv.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		logger.Info("shutting down")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
			if err := srv.Close(); err != nil {
				return fmt.Errorf("failed to close server: %w", err)
			}
		}
		logger.Info("luxsessiond stopped gracefully")
		return nil
	}
}
