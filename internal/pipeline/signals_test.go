package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalWatcher(t *testing.T) {
	sw, err := NewSignalWatcher(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { sw.Close() })

	assert.False(t, sw.ShouldStop())
	assert.False(t, sw.ShouldPause())

	require.NoError(t, sw.SendPause())
	assert.True(t, sw.ShouldPause())
	assert.False(t, sw.ShouldStop())

	require.NoError(t, sw.SendKill())
	assert.True(t, sw.ShouldStop())

	sw.ClearSignals()
	assert.False(t, sw.ShouldPause())
	assert.False(t, sw.ShouldStop())
}

func TestSignalWatcher_CloseTwice(t *testing.T) {
	sw, err := NewSignalWatcher(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, sw.Close())
	assert.NoError(t, sw.Close())
}

func TestSignalWatcher_SatisfiesSignals(t *testing.T) {
	var _ Signals = (*SignalWatcher)(nil)
}
