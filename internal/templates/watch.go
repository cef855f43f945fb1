package templates

import (
	"context"
	"time"

	"github.com/conneroisu/payload/internal/logging"
	"github.com/conneroisu/payload/internal/watcher"
)

// ReloadFunc is told which names were reloaded or removed.
type ReloadFunc func(names []string)

// Watch recompiles changed template files into reg until ctx is done. A
// changed partial also recompiles every template, since pongo2 resolves
// includes at parse time.
func Watch(ctx context.Context, reg *Registry, e *Engine, logger logging.Logger, onReload ReloadFunc) (*watcher.FileWatcher, error) {
	logger = logging.OrNop(logger).WithComponent("templates")

	fw, err := watcher.NewFileWatcher(100*time.Millisecond, logger)
	if err != nil {
		return nil, err
	}
	fw.AddFilter(watcher.ExtFilter(e.Ext()))
	fw.AddFilter(watcher.NoHiddenFilter)

	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		var names []string
		partialChanged := false
		for _, ev := range events {
			kind, name, ok := e.Classify(ev.Path)
			if !ok {
				continue
			}
			if kind == KindPartial {
				partialChanged = true
			}
			if ev.Type == watcher.EventTypeDeleted || ev.Type == watcher.EventTypeRenamed {
				reg.Remove(kind, name)
				names = append(names, name)
				logger.Info(ctx, "template removed", "kind", kind, "name", name)
				continue
			}
			tpl, err := e.Compile(name, ev.Path)
			if err != nil {
				logger.Warn(ctx, err, "template reload failed", "kind", kind, "name", name)
				continue
			}
			if err := reg.Replace(kind, name, tpl); err != nil {
				return err
			}
			names = append(names, name)
			logger.Debug(ctx, "template reloaded", "kind", kind, "name", name, "event", ev.Type.String())
		}

		if partialChanged {
			names = append(names, recompileTemplates(ctx, reg, e, logger)...)
		}
		if len(names) > 0 && onReload != nil {
			onReload(names)
		}
		return nil
	})

	for _, dir := range e.Dirs() {
		if err := fw.AddRecursive(dir); err != nil {
			_ = fw.Stop()
			return nil, err
		}
	}
	if err := fw.Start(ctx); err != nil {
		_ = fw.Stop()
		return nil, err
	}

	return fw, nil
}

func recompileTemplates(ctx context.Context, reg *Registry, e *Engine, logger logging.Logger) []string {
	var names []string
	for _, name := range reg.Names(KindTemplate) {
		tpl, ok := reg.Template(name)
		if !ok {
			continue
		}
		if _, isFile := tpl.(*pongoTemplate); !isFile {
			continue
		}
		fresh, err := e.Compile(name, e.pathFor(name))
		if err != nil {
			logger.Warn(ctx, err, "template recompile failed", "name", name)
			continue
		}
		_ = reg.Replace(KindTemplate, name, fresh)
		names = append(names, name)
	}

	return names
}
