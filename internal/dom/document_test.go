package dom

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/payload/internal/binding"
	"github.com/conneroisu/payload/internal/errors"
)

const page = `<!DOCTYPE html>
<html><body>
<main id="app">
  <a id="items" href="/items" data-url="/items" data-cache-response="true" class="btn disabled">Items</a>
  <form id="search" action="/search" method="post">
    <input name="q" value="shoes">
    <input name="page" type="hidden" value="2">
    <input name="skip" disabled value="x">
    <input type="checkbox" name="tag" value="new" checked>
    <input type="checkbox" name="tag" value="sale">
    <input type="checkbox" name="tag" value="hot" checked>
    <input type="radio" name="sort" value="asc">
    <input type="radio" name="sort" value="desc" checked>
    <input type="submit" name="go" value="Go">
    <select name="size"><option value="s">S</option><option value="m" selected>M</option></select>
    <select name="color"><option>Red</option><option>Blue</option></select>
    <textarea name="note">hello</textarea>
    <span data-role="loading" style="color: red">...</span>
  </form>
  <div id="list"><p>old</p></div>
</main>
</body></html>`

func mustParse(t *testing.T) *Document {
	t.Helper()
	doc, err := ParseString(page)
	require.NoError(t, err)
	return doc
}

func TestBind(t *testing.T) {
	doc := mustParse(t)

	scope, err := doc.Bind("#app")
	require.NoError(t, err)
	assert.Len(t, scope.Find("a[data-url]"), 1)

	_, err = doc.Bind("#missing")
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestElement_Attributes(t *testing.T) {
	doc := mustParse(t)
	els := doc.Select("#items")
	require.Len(t, els, 1)
	el := els[0]

	assert.Equal(t, "a", el.Tag())
	v, ok := el.Attr("data-url")
	assert.True(t, ok)
	assert.Equal(t, "/items", v)
	_, ok = el.Attr("data-method")
	assert.False(t, ok)
	assert.True(t, el.Disabled())

	want := map[string]string{"url": "/items", "cacheResponse": "true"}
	if diff := cmp.Diff(want, el.Dataset()); diff != "" {
		t.Errorf("Dataset() mismatch (-want +got):\n%s", diff)
	}
}

func TestElement_FormFields(t *testing.T) {
	doc := mustParse(t)
	form := doc.Select("#search")[0]

	want := []binding.Field{
		{Name: "q", Value: "shoes"},
		{Name: "page", Value: "2"},
		{Name: "tag", Value: "new"},
		{Name: "tag", Value: "hot"},
		{Name: "sort", Value: "desc"},
		{Name: "size", Value: "m"},
		{Name: "color", Value: "Red"},
		{Name: "note", Value: "hello"},
	}
	if diff := cmp.Diff(want, form.FormFields()); diff != "" {
		t.Errorf("FormFields() mismatch (-want +got):\n%s", diff)
	}

	assert.Nil(t, doc.Select("#items")[0].FormFields())
}

func TestElement_SetHidden(t *testing.T) {
	doc := mustParse(t)
	loading := doc.Select("#search")[0].Find(`[data-role="loading"]`)
	require.Len(t, loading, 1)

	loading[0].SetHidden(true)
	style, _ := loading[0].Attr("style")
	assert.Equal(t, "color: red; display: none", style)

	loading[0].SetHidden(false)
	style, _ = loading[0].Attr("style")
	assert.Equal(t, "color: red", style)
}

func TestRegion_SetAndPrepend(t *testing.T) {
	doc := mustParse(t)
	scope, err := doc.Bind("body")
	require.NoError(t, err)

	list := scope.Region("#list")
	require.True(t, list.Exists())
	assert.Equal(t, "<p>old</p>", list.HTML())

	require.NoError(t, list.SetHTML(`<ul><li>a</li></ul>`))
	assert.Equal(t, "<ul><li>a</li></ul>", list.HTML())

	require.NoError(t, list.PrependHTML("<small>Loading...</small>",
		binding.Attribute{Name: "data-role", Value: "loading"}))
	assert.Equal(t, `<small data-role="loading">Loading...</small><ul><li>a</li></ul>`, list.HTML())
	assert.Len(t, list.Find(`[data-role="loading"]`), 1)

	list.SetAttr("aria-busy", "true")
	assert.Contains(t, doc.HTML(), `aria-busy="true"`)
	list.RemoveAttr("aria-busy")
	assert.NotContains(t, doc.HTML(), "aria-busy")

	missing := scope.Region("#nope")
	assert.False(t, missing.Exists())
	assert.NoError(t, missing.SetHTML("<p>x</p>"))
	assert.Empty(t, missing.HTML())
}

func TestRegion_DetachAttach(t *testing.T) {
	doc := mustParse(t)
	list := doc.NewRegion("#list")

	frag := list.Detach()
	assert.Equal(t, "<p>old</p>", frag.HTML())
	assert.Empty(t, list.HTML())

	require.NoError(t, list.SetHTML("<p>new</p>"))
	list.Attach(frag)
	assert.Equal(t, "<p>old</p>", list.HTML())
}

func TestCamelCase(t *testing.T) {
	tests := map[string]string{
		"url":            "url",
		"cache-response": "cacheResponse",
		"auto-load":      "autoLoad",
		"a-b-c":          "aBC",
	}
	for in, want := range tests {
		assert.Equal(t, want, camelCase(in), in)
	}
}
