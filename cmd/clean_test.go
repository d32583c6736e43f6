package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/hoard/internal/utils"
)

func TestCleanTransfer(t *testing.T) {
	dir := filepath.Join(t.TempDir(), utils.DefaultTempDirName)
	require.NoError(t, os.MkdirAll(dir, 0755))
	key := "games/alpha.zip"
	for _, id := range []int{0, 2, 10} {
		require.NoError(t, os.WriteFile(utils.ChunkFileName(dir, key, id), []byte("x"), 0644))
	}
	require.NoError(t, os.WriteFile(utils.StateFileName(dir, key), []byte("{}"), 0644))

	files, ids, err := utils.ChunkFilesOnDisk(dir, key)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 10}, ids)
	assert.Len(t, files, 3)

	require.NoError(t, cleanTransfer(dir, key))
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestCleanTransferKeepsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(utils.ChunkFileName(dir, "a.zip", 0), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(utils.ChunkFileName(dir, "b.zip", 0), []byte("y"), 0644))

	require.NoError(t, cleanTransfer(dir, "a.zip"))
	_, err := os.Stat(utils.ChunkFileName(dir, "b.zip", 0))
	assert.NoError(t, err)
	_, err = os.Stat(utils.ChunkFileName(dir, "a.zip", 0))
	assert.True(t, os.IsNotExist(err))
}

func TestResolveTempDir(t *testing.T) {
	cfg.TempDir = ""
	assert.Equal(t, "/tmp/custom", resolveTempDir("/tmp/custom", "out/game.zip"))
	assert.Equal(t, filepath.Join("out", utils.DefaultTempDirName), resolveTempDir("", "out/game.zip"))
	cfg.TempDir = "/var/hoard"
	defer func() { cfg.TempDir = "" }()
	assert.Equal(t, "/var/hoard", resolveTempDir("", "out/game.zip"))
}
