package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	calls []string
}

func (r *recorder) handler(tag string) Handler[int] {
	return func(_ context.Context, name string, _ int) {
		r.calls = append(r.calls, tag+"<"+name)
	}
}

func TestParseName(t *testing.T) {
	tests := []struct {
		in   string
		want Name
	}{
		{"click", Name{Type: "click"}},
		{"click.nav", Name{Type: "click", Namespaces: []string{"nav"}}},
		{"click.b.a.b", Name{Type: "click", Namespaces: []string{"a", "b"}}},
		{".nav", Name{Type: "", Namespaces: []string{"nav"}}},
		{" items.pre ", Name{Type: "items", Namespaces: []string{"pre"}}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseName(tt.in))
		})
	}
}

func TestPublish_NamespaceAddressing(t *testing.T) {
	ch := New[int]()
	rec := &recorder{}
	ctx := context.Background()

	_, err := ch.Subscribe("items", rec.handler("plain"))
	require.NoError(t, err)
	_, err = ch.Subscribe("items.pre", rec.handler("pre"))
	require.NoError(t, err)
	_, err = ch.Subscribe("items.nav other", rec.handler("nav"))
	require.NoError(t, err)

	assert.Equal(t, 3, ch.Publish(ctx, "items", 0))
	assert.Equal(t, []string{"plain<items", "pre<items", "nav<items"}, rec.calls)

	rec.calls = nil
	assert.Equal(t, 1, ch.Publish(ctx, "items.pre", 0))
	assert.Equal(t, []string{"pre<items.pre"}, rec.calls)

	rec.calls = nil
	assert.Equal(t, 1, ch.Publish(ctx, "other", 0))
	assert.Equal(t, 0, ch.Publish(ctx, "missing", 0))
	assert.Equal(t, 0, ch.Publish(ctx, ".nav", 0))
}

func TestUnsubscribe(t *testing.T) {
	ch := New[int]()
	rec := &recorder{}
	ctx := context.Background()

	_, _ = ch.Subscribe("a.nav b.nav", rec.handler("nav"))
	_, _ = ch.Subscribe("a.side", rec.handler("side"))
	_, _ = ch.Subscribe("a", rec.handler("plain"))
	require.Equal(t, 4, ch.Count(""))

	assert.Equal(t, 2, ch.Unsubscribe(".nav"))
	ch.Publish(ctx, "a", 0)
	ch.Publish(ctx, "b", 0)
	assert.Equal(t, []string{"side<a", "plain<a"}, rec.calls)

	assert.Equal(t, 1, ch.Unsubscribe("a.side"))
	assert.Equal(t, 1, ch.Count("a"))
	assert.Equal(t, 1, ch.Unsubscribe("a"))
	assert.Equal(t, 0, ch.Unsubscribe("."))
	assert.Zero(t, ch.Count(""))
}

func TestDefaultNamespace(t *testing.T) {
	ch := New[int](WithDefaultNamespace("default"))
	rec := &recorder{}

	_, _ = ch.Subscribe("saved", rec.handler("x"))
	_, _ = ch.Subscribe("saved.mine", rec.handler("mine"))

	assert.Equal(t, 1, ch.Count("saved.default"))
	assert.Equal(t, 2, ch.Publish(context.Background(), "saved", 0))
	assert.Equal(t, 1, ch.Unsubscribe(".default"))
	assert.Equal(t, 1, ch.Count("saved"))
}

func TestCancel(t *testing.T) {
	ch := New[int]()
	rec := &recorder{}

	ids, err := ch.Subscribe("a b", rec.handler("x"))
	require.NoError(t, err)
	require.Len(t, ids, 2)

	ch.Cancel(ids[0])
	assert.Equal(t, 0, ch.Count("a"))
	assert.Equal(t, 1, ch.Count("b"))
}

func TestSubscribeErrors(t *testing.T) {
	ch := New[int]()

	_, err := ch.Subscribe("a", nil)
	assert.Error(t, err)
	_, err = ch.Subscribe("   ", func(context.Context, string, int) {})
	assert.Error(t, err)
	_, err = ch.Subscribe(".ns", func(context.Context, string, int) {})
	assert.Error(t, err)

	// A bad name anywhere in the list leaves nothing behind.
	ids, err := ch.Subscribe("saved .x", func(context.Context, string, int) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `".x" has no type`)
	assert.Empty(t, ids)
	assert.Zero(t, ch.Count(""))
}

func TestPublish_SubscriberMutatesChannel(t *testing.T) {
	ch := New[int]()
	var calls int
	_, _ = ch.Subscribe("a.once", func(ctx context.Context, _ string, _ int) {
		calls++
		ch.Unsubscribe(".once")
	})
	_, _ = ch.Subscribe("a", func(context.Context, string, int) { calls++ })

	assert.Equal(t, 2, ch.Publish(context.Background(), "a", 0))
	assert.Equal(t, 1, ch.Publish(context.Background(), "a", 0))
	assert.Equal(t, 3, calls)
}

func TestPanicHandler(t *testing.T) {
	var recovered []any
	ch := New[int](WithPanicHandler(func(_ string, r any) { recovered = append(recovered, r) }))
	var after bool

	_, _ = ch.Subscribe("a", func(context.Context, string, int) { panic("boom") })
	_, _ = ch.Subscribe("a", func(context.Context, string, int) { after = true })

	assert.NotPanics(t, func() { ch.Publish(context.Background(), "a", 0) })
	assert.True(t, after)
	assert.Equal(t, []any{"boom"}, recovered)
}
