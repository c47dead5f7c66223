// internal/storage/archive/localfs_test.go
package archive

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/skinquant/internal/core"
)

func TestLocalFS_ImplementsStorage(t *testing.T) {
	var _ Storage = (*LocalFS)(nil)
}

func TestLocalFS_WriteRead(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, fs.Write(ctx, "test/file.json", []byte("test data")))

	got, err := fs.Read(ctx, "test/file.json")
	require.NoError(t, err)
	assert.Equal(t, "test data", string(got))
}

func TestLocalFS_ReadMissing(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())

	_, err := fs.Read(context.Background(), "nope.json")
	assert.True(t, errors.Is(err, core.ErrNoData))
}

func TestLocalFS_ExistsAndDelete(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	ctx := context.Background()

	exists, err := fs.Exists(ctx, "a.json")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, fs.Write(ctx, "a.json", []byte("{}")))
	exists, _ = fs.Exists(ctx, "a.json")
	assert.True(t, exists)

	require.NoError(t, fs.Delete(ctx, "a.json"))
	exists, _ = fs.Exists(ctx, "a.json")
	assert.False(t, exists)
	assert.True(t, errors.Is(fs.Delete(ctx, "a.json"), core.ErrNoData))
}

func TestLocalFS_ListSorted(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	ctx := context.Background()

	for _, p := range []string{"r/b/2.json", "r/a/1.json", "other/x.json"} {
		require.NoError(t, fs.Write(ctx, p, []byte("{}")))
	}

	paths, err := fs.List(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, []string{"r/a/1.json", "r/b/2.json"}, paths)

	paths, err = fs.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestLocalFS_KeysStayInsideRoot(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewLocalFS(dir)
	ctx := context.Background()

	require.NoError(t, fs.Write(ctx, "../../escape.json", []byte("{}")))
	exists, _ := fs.Exists(ctx, "escape.json")
	assert.True(t, exists)

	assert.Error(t, fs.Write(ctx, "   ", []byte("{}")))
}

func TestNew_Backends(t *testing.T) {
	s, err := New(Config{Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalFS{}, s)

	_, err = New(Config{Backend: "localfs"})
	assert.True(t, errors.Is(err, core.ErrConfigMissing))

	_, err = New(Config{Backend: "ftp"})
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))

	_, err = New(Config{Backend: "s3"})
	assert.True(t, errors.Is(err, core.ErrConfigMissing))

	s, err = New(Config{Backend: "s3", S3: S3Config{Bucket: "reports", Endpoint: "http://localhost:9000"}})
	require.NoError(t, err)
	assert.IsType(t, &S3Storage{}, s)
}

func TestReports_SaveLoadList(t *testing.T) {
	fs, _ := NewLocalFS(t.TempDir())
	reports := NewReports(fs)
	ctx := context.Background()

	key, rep, err := reports.Save(ctx, "optimization", "AK-47 | Redline (FT)", map[string]float64{"sharpe": 1.5})
	require.NoError(t, err)
	assert.Contains(t, key, "reports/optimization/ak-47-redline-ft/")
	assert.NotEmpty(t, rep.ID)

	loaded, err := reports.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, rep.ID, loaded.ID)
	assert.JSONEq(t, `{"sharpe":1.5}`, string(loaded.Payload))

	keys, err := reports.List(ctx, "optimization", "AK-47 | Redline (FT)")
	require.NoError(t, err)
	assert.Equal(t, []string{key}, keys)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "awp-medusa", slug("AWP | Medusa"))
	assert.Equal(t, "unnamed", slug("★"))
}
