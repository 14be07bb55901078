package engine

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_CreatesLayout(t *testing.T) {
	root := t.TempDir()

	ws, err := Acquire(root)
	require.NoError(t, err)

	assert.Equal(t, root, filepath.Dir(ws.Dir()))
	assert.True(t, strings.HasPrefix(filepath.Base(ws.Dir()), workspacePrefix))
	assert.DirExists(t, ws.InputDir())
	assert.DirExists(t, ws.OutputDir())
	assert.Equal(t, filepath.Join(ws.Dir(), "input", "en.json"), ws.InputPath("en"))
	assert.Equal(t, filepath.Join(ws.Dir(), "output", "pt-BR.json"), ws.OutputPath("pt-BR"))
	assert.Equal(t, filepath.Join(ws.Dir(), "config.yaml"), ws.ConfigPath())

	require.NoError(t, ws.Release())
	assert.NoDirExists(t, ws.Dir())
	require.NoError(t, ws.Release())
}

func TestAcquire_UniqueNames(t *testing.T) {
	root := t.TempDir()

	a, err := Acquire(root)
	require.NoError(t, err)
	defer a.Release()
	b, err := Acquire(root)
	require.NoError(t, err)
	defer b.Release()

	assert.NotEqual(t, a.Dir(), b.Dir())
}
