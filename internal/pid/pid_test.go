package pid_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"codeberg.org/mutker/infologger/internal/errors"
	"codeberg.org/mutker/infologger/internal/pid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "infologger.pid")

	require.NoError(t, pid.Write(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	require.NoError(t, pid.Remove(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Removing twice is not an error
	require.NoError(t, pid.Remove(path))
}

func TestWriteOwnStalePID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "infologger.pid")
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600))

	assert.NoError(t, pid.Write(path))
}

func TestWriteAlreadyRunning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "infologger.pid")
	// The parent of the test binary is alive for the duration of the test
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getppid())), 0o600))

	err := pid.Write(path)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))
}

func TestWriteCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "infologger.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0o600))

	err := pid.Write(path)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInternal))
}

func TestAlive(t *testing.T) {
	assert.True(t, pid.Alive(os.Getpid()))
	assert.False(t, pid.Alive(0))
	assert.False(t, pid.Alive(-1))
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, filepath.Join(os.TempDir(), "infologger.pid"), pid.DefaultPath())
}
