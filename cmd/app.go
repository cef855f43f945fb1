package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/payload/internal/config"
	"github.com/conneroisu/payload/internal/dom"
	"github.com/conneroisu/payload/internal/driver"
	"github.com/conneroisu/payload/internal/logging"
	"github.com/conneroisu/payload/internal/storage"
	"github.com/conneroisu/payload/internal/templates"
	"github.com/conneroisu/payload/internal/transport"
)

// app is the driver of one command invocation and everything it was
// built from.
type app struct {
	cfg       *config.Config
	logger    logging.Logger
	templates *templates.Registry
	engine    *templates.Engine
	driver    *driver.Driver
}

// newApp loads the configuration and wires templates, transport, storage
// and the driver. seed becomes the initial app data.
func newApp(stderr io.Writer, seed map[string]any) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logCfg, err := cfg.LoggerConfig()
	if err != nil {
		return nil, err
	}
	logCfg.Output = stderr
	logger := logging.NewLogger(logCfg)

	reg := templates.NewRegistry()
	engine, err := templates.LoadDir(reg, cfg.Templates.Dir, cfg.Templates.PartialsDir, cfg.Templates.Extension)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	tr, err := transport.NewHTTP(cfg.TransportOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	store, err := storage.Open(cfg.StorageConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	opts := cfg.DriverOptions()
	opts.Templates = reg
	opts.Transport = tr
	opts.Store = store
	opts.Logger = logger
	opts.AppData = seed

	drv, err := driver.New(opts)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		templates: reg,
		engine:    engine,
		driver:    drv,
	}, nil
}

// mount parses the page at path and delivers the driver to it. Mounting
// again, as watch mode does, only rebinds the driver to the new document.
func (a *app) mount(ctx context.Context, path string) (*dom.Document, error) {
	doc, err := loadPage(path)
	if err != nil {
		return nil, err
	}
	if err := a.driver.DeliverDocument(ctx, doc); err != nil {
		return nil, err
	}

	return doc, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.driver.Close(ctx); err != nil {
		a.logger.Warn(ctx, err, "failed to close driver")
	}
}

func loadPage(path string) (*dom.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer f.Close()

	doc, err := dom.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page %s: %w", path, err)
	}

	return doc, nil
}

// commandContext is the command's context, or Background when the command
// was not started through Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}

	return context.Background()
}
