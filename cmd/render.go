package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/payload/internal/driver"
	"github.com/conneroisu/payload/internal/templates"
)

var renderCmd = &cobra.Command{
	Use:   "render PAGE",
	Short: "Render a page after its auto-load cascade",
	Long: `Load an HTML page, deliver the driver to it, run every auto-load
element and print the resulting document.

Each --click is applied in order after the auto-load cascade settles, the
way a user would click the matching elements.

Examples:
  payload render page.html
  payload render page.html --click '#next' --click '.tab[data-url]'
  payload render page.html --data '{"user":"ada"}' --out out.html
  payload render page.html --watch    # re-render when templates change`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

var (
	renderClicks []string
	renderData   string
	renderOut    string
	renderWatch  bool
)

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringArrayVarP(&renderClicks, "click", "c", nil, "Selector to click after auto-load (repeatable)")
	renderCmd.Flags().StringVarP(&renderData, "data", "d", "", "Initial app data as a JSON object")
	renderCmd.Flags().StringVar(&renderOut, "out", "", "Write the document to a file instead of stdout")
	renderCmd.Flags().BoolVarP(&renderWatch, "watch", "w", false, "Re-render whenever a template changes")

	AddFlagValidation(renderCmd.Flags(), "data", ValidateJSON)
}

func runRender(cmd *cobra.Command, args []string) error {
	if err := ValidateFileExists(args[0]); err != nil {
		return err
	}

	var seed map[string]any
	if renderData != "" {
		if err := json.Unmarshal([]byte(renderData), &seed); err != nil {
			return fmt.Errorf("invalid --data: %w", err)
		}
	}

	a, err := newApp(cmd.ErrOrStderr(), seed)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	defer a.close(context.Background())

	if err := renderOnce(ctx, a, args[0], renderClicks, renderOut, cmd.OutOrStdout()); err != nil {
		return err
	}
	if !renderWatch {
		return nil
	}

	return watchAndRender(ctx, a, args[0], renderOut, cmd.OutOrStdout())
}

// renderOnce mounts the page, runs auto-load, applies clicks and writes
// the document.
func renderOnce(ctx context.Context, a *app, page string, clicks []string, out string, stdout io.Writer) error {
	doc, err := a.mount(ctx, page)
	if err != nil {
		return err
	}
	if err := a.driver.TriggerAutoLoad(ctx); err != nil {
		return fmt.Errorf("auto-load failed: %w", err)
	}

	for _, sel := range clicks {
		els := doc.Select(sel)
		if len(els) == 0 {
			return fmt.Errorf("--click %q matches no element", sel)
		}
		for _, el := range els {
			if err := a.driver.Click(ctx, el); err != nil {
				return fmt.Errorf("click %q failed: %w", sel, err)
			}
		}
	}

	if out == "" {
		_, err := io.WriteString(stdout, doc.HTML()+"\n")
		return err
	}
	if err := os.WriteFile(out, []byte(doc.HTML()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	a.logger.Info(ctx, "document written", "path", out)

	return nil
}

// watchAndRender renders again after every template reload until
// interrupted. Caches are dropped first since they hold markup from the
// old templates.
func watchAndRender(ctx context.Context, a *app, page, out string, stdout io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reloaded := make(chan []string, 1)
	fw, err := templates.Watch(ctx, a.templates, a.engine, a.logger, func(names []string) {
		select {
		case reloaded <- names:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("failed to watch templates: %w", err)
	}
	defer func() { _ = fw.Stop() }()

	a.logger.Info(ctx, "watching templates", "dirs", a.engine.Dirs())
	for {
		select {
		case <-ctx.Done():
			return nil
		case names := <-reloaded:
			a.logger.Info(ctx, "templates changed, rendering", "names", names)
			if err := a.driver.ClearCache(driver.CacheAll); err != nil {
				return err
			}
			if err := renderOnce(ctx, a, page, renderClicks, out, stdout); err != nil {
				a.logger.Warn(ctx, err, "render failed")
			}
		}
	}
}
