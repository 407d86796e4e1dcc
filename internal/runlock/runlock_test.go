//go:build unix

package runlock_test

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/pimaster/internal/runlock"
)

func TestAcquire_Exclusive(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".lock")

	first, err := runlock.Acquire(path)
	require.NoError(t, err)
	assert.Equal(t, path, first.Path())

	_, err = runlock.Acquire(path)
	require.ErrorIs(t, err, runlock.ErrLocked)

	require.NoError(t, first.Release())
	require.NoError(t, first.Release())

	second, err := runlock.Acquire(path)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestAcquire_RecordsPid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".lock")

	lock, err := runlock.Acquire(path)
	require.NoError(t, err)

	defer lock.Release()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), strings.TrimSpace(string(data)))
}

func TestAcquire_MissingDirectory(t *testing.T) {
	t.Parallel()

	_, err := runlock.Acquire(filepath.Join(t.TempDir(), "nope", ".lock"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
