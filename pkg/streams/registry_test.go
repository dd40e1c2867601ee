package streams

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateShowDrop(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.CreateStream("clicks", "web.clicks", "ingest.clicks", 100))
	assert.ErrorIs(t, r.CreateStream("clicks", "x", "y", 1), ErrStreamExists)

	infos := r.ShowStreams()
	require.Len(t, infos, 1)
	assert.Equal(t, "clicks", infos[0].Name)
	assert.Equal(t, "web.clicks", infos[0].Topic)
	assert.False(t, infos[0].Running)

	require.NoError(t, r.DropStream("clicks"))
	assert.ErrorIs(t, r.DropStream("clicks"), ErrStreamNotFound)
	assert.Empty(t, r.ShowStreams())
}

func TestStartStopLifecycle(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.CreateStream("a", "t1", "f1", 1))
	require.NoError(t, r.CreateStream("b", "t2", "f2", 1))

	require.NoError(t, r.StartStream("a"))
	infos := r.ShowStreams()
	assert.True(t, infos[0].Running)
	assert.False(t, infos[1].Running)

	require.NoError(t, r.StartAllStreams())
	for _, info := range r.ShowStreams() {
		assert.True(t, info.Running)
	}

	require.NoError(t, r.StopAllStreams())
	for _, info := range r.ShowStreams() {
		assert.False(t, info.Running)
	}

	assert.ErrorIs(t, r.StartStream("missing"), ErrStreamNotFound)
}

func TestShowStreamsSortedByName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.CreateStream("zeta", "t", "f", 1))
	require.NoError(t, r.CreateStream("alpha", "t", "f", 1))
	infos := r.ShowStreams()
	assert.Equal(t, "alpha", infos[0].Name)
	assert.Equal(t, "zeta", infos[1].Name)
}

func TestTestStream(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.CreateStream("clicks", "web.clicks", "ingest.clicks", 10))

	lines, err := r.TestStream("clicks")
	require.NoError(t, err)
	assert.Contains(t, lines, "topic web.clicks")

	_, err = r.TestStream("missing")
	assert.ErrorIs(t, err, ErrStreamNotFound)
}
