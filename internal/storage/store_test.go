package storage

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/payload/internal/errors"
	"github.com/conneroisu/payload/internal/logging"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "payload.appData", []byte(`{"user":"ana"}`)))
	v, ok, err := s.Get(ctx, "payload.appData")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"user":"ana"}`, string(v))

	require.NoError(t, s.Set(ctx, "payload.appData", []byte(`{}`)))
	v, _, _ = s.Get(ctx, "payload.appData")
	assert.Equal(t, `{}`, string(v))

	require.NoError(t, s.Remove(ctx, "payload.appData"))
	require.NoError(t, s.Remove(ctx, "payload.appData"))
	_, ok, err = s.Get(ctx, "payload.appData")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	exerciseStore(t, m)

	require.NoError(t, m.Set(context.Background(), "b", nil))
	require.NoError(t, m.Set(context.Background(), "a", nil))
	assert.Equal(t, []string{"a", "b"}, m.Keys())
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "storage.msgpack")
	f, err := NewFile(path)
	require.NoError(t, err)
	exerciseStore(t, f)

	require.NoError(t, f.Set(context.Background(), "k", []byte("v")))

	reopened, err := NewFile(path)
	require.NoError(t, err)
	v, ok, err := reopened.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(v))

	_, err = NewFile("")
	assert.Error(t, err)
}

func TestFile_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.msgpack")
	require.NoError(t, os.WriteFile(path, []byte{0xc1}, 0o644))

	f, err := NewFile(path)
	require.NoError(t, err)
	_, _, err = f.Get(context.Background(), "k")
	assert.Error(t, err)
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("PAYLOAD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PAYLOAD_TEST_REDIS_ADDR not set")
	}

	r := NewRedis(RedisConfig{Addr: addr, Prefix: "payload-test:"})
	defer func() { _ = r.Close() }()
	require.NoError(t, r.Ping(context.Background()))
	exerciseStore(t, r)
}

func TestOpen(t *testing.T) {
	s, err := Open(Config{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(Config{Backend: BackendFile, Path: filepath.Join(t.TempDir(), "s.msgpack")})
	require.NoError(t, err)
	assert.IsType(t, &File{}, s)

	s, err = Open(Config{Backend: BackendRedis, RedisAddr: "localhost:0"})
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, s)
	_ = s.Close()

	_, err = Open(Config{Backend: "etcd"})
	assert.True(t, errors.IsConfigurationError(err))
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, stderrors.New("down")
}
func (brokenStore) Set(context.Context, string, []byte) error { return stderrors.New("down") }
func (brokenStore) Remove(context.Context, string) error      { return stderrors.New("down") }
func (brokenStore) Close() error                               { return stderrors.New("down") }

func TestSafe_NeverFails(t *testing.T) {
	var buf bytes.Buffer
	cfg := logging.DefaultConfig()
	cfg.Output = &buf
	s := Safe(brokenStore{}, logging.NewLogger(cfg))
	ctx := context.Background()

	assert.NotPanics(t, func() {
		s.Set(ctx, "k", []byte("v"))
		s.Remove(ctx, "k")
		s.Close()
	})
	v, ok := s.Get(ctx, "k")
	assert.False(t, ok)
	assert.Nil(t, v)
	assert.Contains(t, buf.String(), "storage write failed")
	assert.Contains(t, buf.String(), "storage read failed")
}
