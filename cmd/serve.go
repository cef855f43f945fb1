package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/payload/internal/driver"
	"github.com/conneroisu/payload/internal/server"
	"github.com/conneroisu/payload/internal/templates"
)

var serveCmd = &cobra.Command{
	Use:   "serve PAGE",
	Short: "Start the inspector for a page",
	Long: `Mount a page, run its auto-load cascade and serve it with the inspector.

Endpoints:
  GET    /            current document
  GET    /ws          websocket stream of lifecycle events
  POST   /click       click ?selector= in the live document
  GET    /cache       response and view cache keys
  DELETE /cache       clear caches (?type=response|view&key=...)
  GET    /components  registered components
  GET    /health      liveness

Examples:
  payload serve page.html
  payload serve page.html --port 9090 --watch`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().BoolP("watch", "w", false, "Reload templates when they change")

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("templates.watch", serveCmd.Flags().Lookup("watch"))
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := ValidateFileExists(args[0]); err != nil {
		return err
	}

	a, err := newApp(cmd.ErrOrStderr(), nil)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	doc, err := a.mount(ctx, args[0])
	if err != nil {
		return err
	}

	srv, err := server.New(ctx, a.cfg, a.driver, doc, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Auto-load runs after the observer is registered so the stream sees it.
	if err := a.driver.TriggerAutoLoad(ctx); err != nil {
		a.logger.Warn(ctx, err, "auto-load failed")
	}

	if a.cfg.Templates.Watch {
		fw, err := templates.Watch(ctx, a.templates, a.engine, a.logger, func(names []string) {
			if err := a.driver.ClearCache(driver.CacheAll); err != nil {
				a.logger.Warn(ctx, err, "failed to clear caches after reload")
			}
			a.logger.Info(ctx, "templates reloaded", "names", names)
		})
		if err != nil {
			return fmt.Errorf("failed to watch templates: %w", err)
		}
		defer func() { _ = fw.Stop() }()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Inspecting %s at http://%s\n", args[0], a.cfg.Address())

	return srv.Start(ctx)
}
