package appdata

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/payload/internal/logging"
	"github.com/conneroisu/payload/internal/storage"
)

func TestData_Basics(t *testing.T) {
	seed := map[string]any{"user": "ana"}
	d := New(seed)
	seed["user"] = "mutated"

	v, ok := d.Get("user")
	assert.True(t, ok)
	assert.Equal(t, "ana", v)

	d.Set("theme", "dark")
	assert.Equal(t, []string{"theme", "user"}, d.Keys())

	snap := d.Snapshot()
	snap["user"] = "changed"
	v, _ = d.Get("user")
	assert.Equal(t, "ana", v)

	d.Delete("theme")
	_, ok = d.Get("theme")
	assert.False(t, ok)

	d.Replace(map[string]any{"only": 1})
	assert.Equal(t, map[string]any{"only": 1}, d.Snapshot())
}

func TestData_LoadSave(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	store := storage.Safe(mem, logging.Nop())

	d := New(nil)
	assert.False(t, d.Load(ctx, store, DefaultKey))

	d.Set("user", "ana")
	d.Set("count", 2)
	require.NoError(t, d.Save(ctx, store, DefaultKey))

	restored := New(map[string]any{"keep": true})
	assert.True(t, restored.Load(ctx, store, DefaultKey))
	assert.Equal(t, map[string]any{"keep": true, "user": "ana", "count": float64(2)}, restored.Snapshot())

	require.NoError(t, mem.Set(ctx, "bad", []byte("not json")))
	assert.False(t, restored.Load(ctx, store, "bad"))
}

func TestData_Concurrent(t *testing.T) {
	d := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d.Set("k", i)
			_ = d.Snapshot()
		}(i)
	}
	wg.Wait()

	_, ok := d.Get("k")
	assert.True(t, ok)
}
