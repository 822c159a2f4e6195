package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	decomposed := "Café"
	composed := "Café"

	assert.Equal(t, composed, Normalize(decomposed))
	assert.Equal(t, composed, Normalize(composed))
	assert.Equal(t, "localhost", Normalize("localhost"))
}

func TestConcatFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.pem")
	b := filepath.Join(dir, "b.pem")
	dst := filepath.Join(dir, "chain.pem")
	require.NoError(t, os.WriteFile(a, []byte("leaf\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("root\n"), 0o644))

	t.Run("InOrder", func(t *testing.T) {
		require.NoError(t, ConcatFiles(dst, a, b))
		got, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "leaf\nroot\n", string(got))
	})

	t.Run("Truncates", func(t *testing.T) {
		require.NoError(t, os.WriteFile(dst, []byte("stale content that is long\n"), 0o644))
		require.NoError(t, ConcatFiles(dst, b))
		got, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "root\n", string(got))
	})

	t.Run("MissingSource", func(t *testing.T) {
		err := ConcatFiles(dst, a, filepath.Join(dir, "missing.pem"))
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
		assert.Contains(t, err.Error(), "missing.pem")
	})
}

func TestCreateEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.txt")

	require.NoError(t, CreateEmpty(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	require.NoError(t, os.WriteFile(path, []byte("V\t...\n"), 0o644))
	require.NoError(t, CreateEmpty(path))
	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}
