//go:build integration
// +build integration

package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/payload/internal/config"
	"github.com/conneroisu/payload/internal/dom"
	"github.com/conneroisu/payload/internal/driver"
	"github.com/conneroisu/payload/internal/logging"
	"github.com/conneroisu/payload/internal/server"
	"github.com/conneroisu/payload/internal/storage"
	"github.com/conneroisu/payload/internal/templates"
	"github.com/conneroisu/payload/internal/transport"
)

const integrationPage = `<!DOCTYPE html>
<html><body>
<a id="load" data-url="/items" data-selector="#list" data-template="items" data-auto-load="true">Load</a>
<ul id="list"></ul>
</body></html>`

type stack struct {
	cfg    *config.Config
	driver *driver.Driver
	doc    *dom.Document
}

// newStack wires a driver from the viper configuration the way the CLI does.
func newStack(t *testing.T, seed map[string]any) *stack {
	t.Helper()

	cfg, err := config.Load()
	require.NoError(t, err)

	reg := templates.NewRegistry()
	_, err = templates.LoadDir(reg, cfg.Templates.Dir, cfg.Templates.PartialsDir, cfg.Templates.Extension)
	require.NoError(t, err)

	tr, err := transport.NewHTTP(cfg.TransportOptions())
	require.NoError(t, err)

	store, err := storage.Open(cfg.StorageConfig())
	require.NoError(t, err)

	opts := cfg.DriverOptions()
	opts.Templates = reg
	opts.Transport = tr
	opts.Store = store
	opts.Logger = logging.Nop()
	opts.AppData = seed

	drv, err := driver.New(opts)
	require.NoError(t, err)

	doc, err := dom.ParseString(integrationPage)
	require.NoError(t, err)
	require.NoError(t, drv.DeliverDocument(context.Background(), doc))

	return &stack{cfg: cfg, driver: drv, doc: doc}
}

func setupIntegration(t *testing.T) {
	t.Helper()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":["x","y"]}`))
	}))
	t.Cleanup(backend.Close)

	dir := t.TempDir()
	tplDir := filepath.Join(dir, "templates")
	require.NoError(t, os.MkdirAll(tplDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tplDir, "items.tpl"),
		[]byte(`{% for i in items %}<li>{{ i }}</li>{% endfor %}`), 0o644))

	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("templates.dir", tplDir)
	viper.Set("templates.partials_dir", filepath.Join(tplDir, "partials"))
	viper.Set("transport.base_url", backend.URL)
	viper.Set("driver.loading_default", false)
	viper.Set("storage.backend", storage.BackendFile)
	viper.Set("storage.path", filepath.Join(dir, "state", "storage.msgpack"))
	viper.Set("driver.persist_app_data", true)
}

func TestIntegration_AppDataSurvivesRestart(t *testing.T) {
	setupIntegration(t)
	ctx := context.Background()

	first := newStack(t, map[string]any{"user": "ada"})
	require.NoError(t, first.driver.TriggerAutoLoad(ctx))
	assert.Contains(t, first.doc.HTML(), "<li>x</li><li>y</li>")
	require.NoError(t, first.driver.Close(ctx))

	second := newStack(t, nil)
	defer func() { _ = second.driver.Close(ctx) }()

	user, ok := second.driver.AppData().Get("user")
	require.True(t, ok, "app data is loaded from the file store on delivery")
	assert.Equal(t, "ada", user)
}

func TestIntegration_InspectorStartStop(t *testing.T) {
	setupIntegration(t)

	l, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	viper.Set("server.port", port)

	s := newStack(t, nil)
	defer func() { _ = s.driver.Close(context.Background()) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := server.New(ctx, s.cfg, s.driver, s.doc, logging.Nop())
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- srv.Start(ctx) }()

	healthURL := fmt.Sprintf("http://localhost:%d/health", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(healthURL)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
