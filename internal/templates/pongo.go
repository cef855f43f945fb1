package templates

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/flosch/pongo2/v6"

	"github.com/conneroisu/payload/internal/errors"
)

// Engine compiles template files with pongo2. Include paths in a template
// are resolved relative to the templates directory.
type Engine struct {
	set         *pongo2.TemplateSet
	dir         string
	partialsDir string
	ext         string
}

type pongoTemplate struct {
	name string
	tpl  *pongo2.Template
}

func (p *pongoTemplate) Name() string { return p.name }

func (p *pongoTemplate) Render(_ context.Context, data map[string]any) (string, error) {
	return p.tpl.Execute(pongo2.Context(data))
}

// NewEngine creates an engine rooted at dir. partialsDir may be empty.
func NewEngine(dir, partialsDir, ext string) (*Engine, error) {
	if strings.TrimSpace(ext) == "" {
		ext = ".tpl"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("templates: resolve %q: %w", dir, err)
	}
	base := absDir
	if info, statErr := os.Stat(absDir); statErr != nil || !info.IsDir() {
		base = ""
	}
	loader, err := pongo2.NewLocalFileSystemLoader(base)
	if err != nil {
		return nil, fmt.Errorf("templates: create loader: %w", err)
	}

	e := &Engine{
		set: pongo2.NewSet("payload", loader),
		dir: absDir,
		ext: ext,
	}
	if partialsDir != "" {
		if e.partialsDir, err = filepath.Abs(partialsDir); err != nil {
			return nil, fmt.Errorf("templates: resolve %q: %w", partialsDir, err)
		}
	}

	return e, nil
}

// Ext returns the template file extension.
func (e *Engine) Ext() string { return e.ext }

// Dirs returns the directories the engine loads from.
func (e *Engine) Dirs() []string {
	if e.partialsDir == "" || isWithin(e.partialsDir, e.dir) {
		return []string{e.dir}
	}

	return []string{e.dir, e.partialsDir}
}

// Classify maps a file path to its kind and registry name. Files under the
// partials directory are partials; everything else under dir is a template.
func (e *Engine) Classify(path string) (Kind, string, bool) {
	if filepath.Ext(path) != e.ext {
		return "", "", false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", "", false
	}

	if e.partialsDir != "" && isWithin(abs, e.partialsDir) {
		return KindPartial, nameFrom(e.partialsDir, abs, e.ext), true
	}
	if isWithin(abs, e.dir) {
		return KindTemplate, nameFrom(e.dir, abs, e.ext), true
	}

	return "", "", false
}

func (e *Engine) pathFor(name string) string {
	return filepath.Join(e.dir, filepath.FromSlash(name)+e.ext)
}

// Compile parses one template file.
func (e *Engine) Compile(name, path string) (Template, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	tpl, err := e.set.FromFile(abs)
	if err != nil {
		return nil, errors.NewConfigurationError(errors.ErrCodeInvalidTemplate,
			fmt.Sprintf("template %s: %v", name, err)).WithContext("path", path)
	}

	return &pongoTemplate{name: name, tpl: tpl}, nil
}

// FromString compiles an inline template.
func (e *Engine) FromString(name, src string) (Template, error) {
	tpl, err := e.set.FromString(src)
	if err != nil {
		return nil, errors.NewConfigurationError(errors.ErrCodeInvalidTemplate,
			fmt.Sprintf("template %s: %v", name, err))
	}

	return &pongoTemplate{name: name, tpl: tpl}, nil
}

// LoadDir compiles every template and partial file and registers them.
func LoadDir(reg *Registry, dir, partialsDir, ext string) (*Engine, error) {
	e, err := NewEngine(dir, partialsDir, ext)
	if err != nil {
		return nil, err
	}

	for _, root := range e.Dirs() {
		if _, err := os.Stat(root); os.IsNotExist(err) {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			kind, name, ok := e.Classify(path)
			if !ok {
				return nil
			}
			tpl, err := e.Compile(name, path)
			if err != nil {
				return err
			}
			if kind == KindPartial {
				return reg.AddPartial(name, tpl)
			}
			return reg.AddTemplate(name, tpl)
		})
		if err != nil {
			return nil, err
		}
	}

	return e, nil
}

func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func nameFrom(root, path, ext string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}

	return filepath.ToSlash(strings.TrimSuffix(rel, ext))
}
