package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/okian/monthlyrank/internal/adapters/http/api"
	"github.com/okian/monthlyrank/internal/adapters/http/swagger"
	"github.com/okian/monthlyrank/internal/adapters/mq/bus"
	"github.com/okian/monthlyrank/internal/config"
	"github.com/okian/monthlyrank/internal/domain/model"
	"github.com/okian/monthlyrank/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		os.Stderr.WriteString("monthlyrank: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "monthlyrank",
		Usage: "Monthly tournament ranking pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				EnvVars: []string{config.EnvConfigFile},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override log_level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and the optional bus consumer",
				Action: serve,
			},
			{
				Name:      "ingest",
				Usage:     "Run result files through the pipeline in order",
				ArgsUsage: "FILE...",
				Action:    ingestFiles,
			},
			{
				Name:      "ranking",
				Usage:     "Print the current ranking of a month",
				ArgsUsage: "YYYY-MM",
				Action:    showRanking,
			},
			{
				Name:      "publish",
				Usage:     "Rewrite the summary of a month and notify again",
				ArgsUsage: "YYYY-MM",
				Action:    publishMonth,
			},
		},
	}
}

// setup loads config and prepares the global logger. Logs go to out.
func setup(c *cli.Context, out io.Writer) (*config.Config, logger.Logger, error) {
	cfg, err := config.LoadFile(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if err := logger.Init(logger.Options{Format: cfg.LogFormat, Output: out}); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	lg := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		lg.Warn(c.Context, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, lg, nil
}

// started builds and starts the pipeline for a one-shot command.
func started(c *cli.Context) (*runtimeDeps, func(), error) {
	cfg, lg, err := setup(c, c.App.ErrWriter)
	if err != nil {
		return nil, nil, err
	}
	deps, err := build(c.Context, cfg, lg)
	if err != nil {
		return nil, nil, err
	}
	if err := deps.svc.Start(c.Context); err != nil {
		_ = deps.Close()
		return nil, nil, err
	}
	stop := func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Context), shutdownTimeout)
		defer cancel()
		if err := deps.svc.Stop(ctx); err != nil {
			lg.Error(ctx, "service stop failed", logger.Error(err))
		}
		if err := deps.Close(); err != nil {
			lg.Error(ctx, "close failed", logger.Error(err))
		}
	}
	return deps, stop, nil
}

func ingestFiles(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("ingest needs at least one file")
	}
	deps, stop, err := started(c)
	if err != nil {
		return err
	}
	defer stop()

	for _, path := range c.Args().Slice() {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		r, err := deps.svc.Submit(c.Context, model.Upload{
			ID:         uuid.NewString(),
			Filename:   filepath.Base(path),
			Content:    content,
			ReceivedAt: time.Now(),
		})
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		fmt.Fprint(c.App.Writer, r.Text)
	}
	return nil
}

func showRanking(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("ranking needs exactly one month")
	}
	deps, stop, err := started(c)
	if err != nil {
		return err
	}
	defer stop()

	r, err := deps.svc.Ranking(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	fmt.Fprint(c.App.Writer, r.Text)
	return nil
}

func publishMonth(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("publish needs exactly one month")
	}
	deps, stop, err := started(c)
	if err != nil {
		return err
	}
	defer stop()

	r, err := deps.svc.Publish(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	fmt.Fprint(c.App.Writer, r.Text)
	return nil
}

func serve(c *cli.Context) error {
	cfg, lg, err := setup(c, nil)
	if err != nil {
		return err
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := build(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			lg.Error(ctx, "close failed", logger.Error(err))
		}
	}()

	svc := deps.svc
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(shutdownCtx); err != nil {
			lg.Error(ctx, "service stop failed", logger.Error(err))
		}
	}()

	if deps.bus != nil {
		router, err := bus.NewRouter(deps.bus, svc, lg.Named("bus"))
		if err != nil {
			return err
		}
		go func() {
			if err := router.Run(ctx); err != nil {
				lg.Error(ctx, "bus router stopped", logger.Error(err))
				stop()
			}
		}()
		defer router.Close()
	}

	apiServer := api.NewServer(svc, func() any { return svc.GetStats() },
		api.WithMaxUploadBytes(cfg.MaxUploadBytes),
		api.WithLogger(lg.Named("api")),
	)
	routes := apiServer.Routes()
	swagger.Register(routes)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           routes,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		lg.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}
	lg.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	lg.Info(ctx, "server stopped")
	return nil
}
