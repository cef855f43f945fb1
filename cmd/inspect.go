package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/payload/internal/binding"
	"github.com/conneroisu/payload/internal/descriptor"
)

var inspectCmd = &cobra.Command{
	Use:     "inspect PAGE",
	Aliases: []string{"ls"},
	Short:   "List every bound element of a page",
	Long: `List every element of a page that declares a request or a render
target, together with the descriptor the driver resolves for it. Nothing is
fetched.

Examples:
  payload inspect page.html
  payload inspect page.html -o json
  payload inspect page.html -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var inspectFlags *OutputFlags

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectFlags = AddOutputFlags(inspectCmd)
}

// BoundElement is one row of inspect output.
type BoundElement struct {
	ID       string   `json:"id,omitempty" yaml:"id,omitempty"`
	Tag      string   `json:"tag" yaml:"tag"`
	URL      string   `json:"url,omitempty" yaml:"url,omitempty"`
	Method   string   `json:"method,omitempty" yaml:"method,omitempty"`
	Selector string   `json:"selector,omitempty" yaml:"selector,omitempty"`
	Template string   `json:"template,omitempty" yaml:"template,omitempty"`
	Partial  string   `json:"partial,omitempty" yaml:"partial,omitempty"`
	Cache    []string `json:"cache,omitempty" yaml:"cache,omitempty"`
	AutoLoad bool     `json:"auto_load" yaml:"auto_load"`
	CacheKey string   `json:"cache_key,omitempty" yaml:"cache_key,omitempty"`
	Events   []string `json:"events,omitempty" yaml:"events,omitempty"`
	Error    string   `json:"error,omitempty" yaml:"error,omitempty"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	if err := ValidateFileExists(args[0]); err != nil {
		return err
	}

	a, err := newApp(cmd.ErrOrStderr(), nil)
	if err != nil {
		return err
	}
	defer a.close(commandContext(cmd))

	doc, err := loadPage(args[0])
	if err != nil {
		return err
	}

	p := a.driver.Prefix()
	rows := inspectElements(a.driver.Resolver(), doc.Select("["+p+"url], ["+p+"selector]"))

	out := cmd.OutOrStdout()
	switch strings.ToLower(inspectFlags.Format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(rows)
	default:
		if err := outputInspectTable(out, rows); err != nil {
			return err
		}
		if !inspectFlags.Quiet {
			fmt.Fprintf(out, "\n%d bound element(s)\n", len(rows))
		}
		return nil
	}
}

// inspectElements resolves each element. A resolution failure is reported
// on its row rather than aborting the listing.
func inspectElements(r *descriptor.Resolver, els []binding.Element) []BoundElement {
	rows := make([]BoundElement, 0, len(els))
	for _, el := range els {
		row := BoundElement{Tag: el.Tag()}
		row.ID, _ = el.Attr("id")

		d, err := r.Resolve(el, nil)
		if err != nil {
			row.Error = err.Error()
			rows = append(rows, row)
			continue
		}

		row.URL = d.URL
		if d.URL != "" {
			row.Method = strings.ToUpper(d.Method)
			row.CacheKey = d.CacheKey
		}
		row.Selector = d.Selector
		row.Template = d.TemplateName
		row.Partial = d.PartialName
		row.AutoLoad = d.AutoLoad
		row.Events = d.PublishEvents
		if d.CacheRequest {
			row.Cache = append(row.Cache, "request")
		}
		if d.CacheResponse {
			row.Cache = append(row.Cache, "response")
		}
		if d.CacheView {
			row.Cache = append(row.Cache, "view")
		}
		rows = append(rows, row)
	}

	return rows
}

var inspectColumns = []string{"id", "tag", "method", "url", "selector", "template", "cache", "auto load", "cache key", "error"}

func outputInspectTable(out io.Writer, rows []BoundElement) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	title := cases.Title(language.English)
	headers := make([]string, len(inspectColumns))
	for i, c := range inspectColumns {
		headers[i] = title.String(c)
	}
	fmt.Fprintln(w, strings.Join(headers, "\t"))

	for _, r := range rows {
		fmt.Fprintln(w, strings.Join([]string{
			dash(r.ID),
			r.Tag,
			dash(r.Method),
			dash(r.URL),
			dash(r.Selector),
			dash(r.Template),
			dash(strings.Join(r.Cache, ",")),
			fmt.Sprintf("%t", r.AutoLoad),
			dash(r.CacheKey),
			dash(r.Error),
		}, "\t"))
	}

	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
