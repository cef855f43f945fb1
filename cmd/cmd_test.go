package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/payload/internal/version"
)

const testPage = `<!DOCTYPE html>
<html><body>
<a id="load" data-url="/items" data-selector="#list" data-template="items" data-cache-response="true" data-auto-load="true">Load</a>
<a id="more" data-url="/more" data-selector="#extra" data-template="items">More</a>
<a id="greet" data-selector="#hello" data-template="greeting">Greet</a>
<a id="bad" data-url="/items" data-selector="#list" data-template="nope">Bad</a>
<ul id="list"></ul>
<ul id="extra"></ul>
<div id="hello"></div>
</body></html>`

// setupProject writes a page and templates to a temp dir, starts a backend
// and points the configuration at both.
func setupProject(t *testing.T) string {
	t.Helper()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/items":
			_, _ = w.Write([]byte(`{"items":["a","b"]}`))
		case "/more":
			_, _ = w.Write([]byte(`{"items":["c"]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(backend.Close)

	dir := t.TempDir()
	tplDir := filepath.Join(dir, "templates")
	require.NoError(t, os.MkdirAll(tplDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tplDir, "items.tpl"),
		[]byte(`{% for i in items %}<li>{{ i }}</li>{% endfor %}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tplDir, "greeting.tpl"),
		[]byte(`<p>{{ app.user }}</p>`), 0o644))

	page := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(page, []byte(testPage), 0o644))

	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("log-level", "off")
	viper.Set("templates.dir", tplDir)
	viper.Set("templates.partials_dir", filepath.Join(tplDir, "partials"))
	viper.Set("transport.base_url", backend.URL)
	viper.Set("driver.loading_default", false)

	return page
}

func newTestCommand() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&out)
	c.SetErr(io.Discard)
	c.SetContext(context.Background())

	return c, &out
}

func resetRenderFlags(t *testing.T) {
	t.Helper()
	renderClicks, renderData, renderOut, renderWatch = nil, "", "", false
	t.Cleanup(func() { renderClicks, renderData, renderOut, renderWatch = nil, "", "", false })
}

func TestRenderRunsAutoLoad(t *testing.T) {
	page := setupProject(t)
	resetRenderFlags(t)

	c, out := newTestCommand()
	require.NoError(t, runRender(c, []string{page}))

	assert.Contains(t, out.String(), `<ul id="list"><li>a</li><li>b</li></ul>`)
	assert.Contains(t, out.String(), `<ul id="extra"></ul>`, "only auto-load elements fire")
}

func TestRenderAppliesClicksInOrder(t *testing.T) {
	page := setupProject(t)
	resetRenderFlags(t)
	renderClicks = []string{"#more", "#greet"}
	renderData = `{"user":"ada"}`

	c, out := newTestCommand()
	require.NoError(t, runRender(c, []string{page}))

	assert.Contains(t, out.String(), `<ul id="extra"><li>c</li></ul>`)
	assert.Contains(t, out.String(), `<div id="hello"><p>ada</p></div>`)
}

func TestRenderWritesFile(t *testing.T) {
	page := setupProject(t)
	resetRenderFlags(t)
	renderOut = filepath.Join(t.TempDir(), "out.html")

	c, out := newTestCommand()
	require.NoError(t, runRender(c, []string{page}))

	assert.Empty(t, out.String())
	written, err := os.ReadFile(renderOut)
	require.NoError(t, err)
	assert.Contains(t, string(written), "<li>a</li>")
}

func TestRenderErrors(t *testing.T) {
	page := setupProject(t)

	tests := []struct {
		name    string
		args    []string
		clicks  []string
		data    string
		wantErr string
	}{
		{name: "missing page", args: []string{filepath.Join(t.TempDir(), "nope.html")}, wantErr: "file does not exist"},
		{name: "unmatched click", args: []string{page}, clicks: []string{"#ghost"}, wantErr: `"#ghost" matches no element`},
		{name: "data is not an object", args: []string{page}, data: `[1]`, wantErr: "invalid --data"},
		{name: "unknown template on click", args: []string{page}, clicks: []string{"#bad"}, wantErr: "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetRenderFlags(t)
			renderClicks = tt.clicks
			renderData = tt.data

			c, _ := newTestCommand()
			err := runRender(c, tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRenderRejectsInvalidConfiguration(t *testing.T) {
	page := setupProject(t)
	resetRenderFlags(t)
	viper.Set("storage.backend", "sqlite")

	c, _ := newTestCommand()
	err := runRender(c, []string{page})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestInspect(t *testing.T) {
	page := setupProject(t)

	previous := *inspectFlags
	t.Cleanup(func() { *inspectFlags = previous })

	t.Run("json", func(t *testing.T) {
		inspectFlags.Format = "json"
		c, out := newTestCommand()
		require.NoError(t, runInspect(c, []string{page}))

		var rows []BoundElement
		require.NoError(t, json.Unmarshal(out.Bytes(), &rows))
		require.Len(t, rows, 4)

		assert.Equal(t, BoundElement{
			ID:       "load",
			Tag:      "a",
			URL:      "/items",
			Method:   "GET",
			Selector: "#list",
			Template: "items",
			Cache:    []string{"response"},
			AutoLoad: true,
			CacheKey: "6:/items",
		}, rows[0])

		assert.Equal(t, "greet", rows[2].ID)
		assert.Empty(t, rows[2].URL)
		assert.Empty(t, rows[2].Method)

		assert.Equal(t, "bad", rows[3].ID)
		assert.Contains(t, rows[3].Error, "nope")
	})

	t.Run("yaml", func(t *testing.T) {
		inspectFlags.Format = "yaml"
		c, out := newTestCommand()
		require.NoError(t, runInspect(c, []string{page}))

		var rows []map[string]any
		require.NoError(t, yaml.Unmarshal(out.Bytes(), &rows))
		require.Len(t, rows, 4)
		assert.Equal(t, "more", rows[1]["id"])
		assert.Equal(t, "/more", rows[1]["url"])
	})

	t.Run("table", func(t *testing.T) {
		inspectFlags.Format = "table"
		inspectFlags.Quiet = false
		c, out := newTestCommand()
		require.NoError(t, runInspect(c, []string{page}))

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		assert.Contains(t, lines[0], "Auto Load")
		assert.Contains(t, lines[0], "Cache Key")
		assert.Contains(t, out.String(), "4 bound element(s)")
	})
}

func TestVersionCommand(t *testing.T) {
	t.Cleanup(func() { versionFormat, versionShort, versionDetailed = "text", false, false })

	versionFormat = "json"
	c, out := newTestCommand()
	require.NoError(t, runVersionCommand(c, nil))

	var info version.BuildInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, version.Get().Version, info.Version)

	versionFormat, versionShort = "text", true
	c, out = newTestCommand()
	require.NoError(t, runVersionCommand(c, nil))
	assert.Equal(t, version.Get().Short()+"\n", out.String())

	versionShort = false
	c, out = newTestCommand()
	require.NoError(t, runVersionCommand(c, nil))
	assert.True(t, strings.HasPrefix(out.String(), "payload "))
}

func TestValidateFormatWithSuggestion(t *testing.T) {
	valid := []string{"table", "json", "yaml"}

	tests := []struct {
		name    string
		value   string
		wantErr bool
		suggest string
	}{
		{name: "exact", value: "json"},
		{name: "case insensitive", value: "YAML"},
		{name: "typo", value: "jsno", wantErr: true, suggest: `did you mean "json"`},
		{name: "prefix", value: "tab", wantErr: true, suggest: `did you mean "table"`},
		{name: "unrelated", value: "csv", wantErr: true},
		{name: "empty", value: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFormatWithSuggestion(tt.value, valid)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), "must be one of: table, json, yaml")
			if tt.suggest != "" {
				assert.Contains(t, err.Error(), tt.suggest)
			} else {
				assert.NotContains(t, err.Error(), "did you mean")
			}
		})
	}
}

func TestAddFlagValidation(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	format := fs.String("format", "text", "")
	AddFlagValidation(fs, "format", func(v string) error {
		return ValidateFormatWithSuggestion(v, []string{"text", "json"})
	})
	// Unknown flags are ignored.
	AddFlagValidation(fs, "missing", ValidateJSON)

	require.Error(t, fs.Parse([]string{"--format", "xml"}))
	assert.Equal(t, "text", *format)

	require.NoError(t, fs.Parse([]string{"--format", "json"}))
	assert.Equal(t, "json", *format)
}

func TestOutputFlagRejectsUnknownFormat(t *testing.T) {
	c := &cobra.Command{}
	flags := AddOutputFlags(c)

	require.Error(t, c.ParseFlags([]string{"-o", "xml"}))
	require.NoError(t, c.ParseFlags([]string{"-o", "yaml", "-q"}))
	assert.Equal(t, "yaml", flags.Format)
	assert.True(t, flags.Quiet)
}

func TestValidateJSONAndFileExists(t *testing.T) {
	assert.NoError(t, ValidateJSON(""))
	assert.NoError(t, ValidateJSON(`{"a":1}`))
	assert.Error(t, ValidateJSON(`[1]`))
	assert.Error(t, ValidateJSON(`{`))

	f := filepath.Join(t.TempDir(), "x")
	assert.Error(t, ValidateFileExists(f))
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	assert.NoError(t, ValidateFileExists(f))
	assert.NoError(t, ValidateFileExists(""))
}
