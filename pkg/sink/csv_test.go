package sink_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/OpenTraceLab/OpenTraceSEU/pkg/sink"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileName(t *testing.T) {
	assert.Equal(t, "board 7 data.csv", sink.FileName(7))
}

func TestCSVWritesHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), sink.FileName(1))

	c, err := sink.NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, c.Append(sink.Record{Elapsed: 4, Bank: 0, Slot: 0, Failures: 1}))
	require.NoError(t, c.Append(sink.Record{Elapsed: 9, Bank: 0, Slot: 0, Failures: 2}))
	require.NoError(t, c.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sink.Header+"\n4, 0, 0, 1\n9, 0, 0, 2\n", string(data))
}

func TestCSVAppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), sink.FileName(2))

	first, err := sink.NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, first.Append(sink.Record{Elapsed: 1}))
	require.NoError(t, first.Close())

	second, err := sink.NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, second.Append(sink.Record{Elapsed: 2}))
	require.NoError(t, second.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		sink.Header+"\n1, 0, 0, 0\n"+sink.Header+"\n2, 0, 0, 0\n",
		string(data))
}

func TestCSVReopenDoesNotRepeatHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), sink.FileName(3))

	c, err := sink.NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, c.Append(sink.Record{Elapsed: 1}))
	require.NoError(t, c.Reopen())
	require.NoError(t, c.Append(sink.Record{Elapsed: 2}))
	require.NoError(t, c.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sink.Header+"\n1, 0, 0, 0\n2, 0, 0, 0\n", string(data))
}

func TestCSVAppendAfterClose(t *testing.T) {
	c, err := sink.NewCSV(filepath.Join(t.TempDir(), "closed.csv"))
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.Error(t, c.Append(sink.Record{}))
	assert.NoError(t, c.Close(), "double close is harmless")
}

func TestNewCSVFailsForMissingDirectory(t *testing.T) {
	_, err := sink.NewCSV(filepath.Join(t.TempDir(), "missing", "board 1 data.csv"))
	assert.Error(t, err)
}

func TestCSVRoundTripThroughReadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), sink.FileName(4))
	c, err := sink.NewCSV(path)
	require.NoError(t, err)

	want := []sink.Record{
		{Elapsed: 0, Bank: 0, Slot: 0, Failures: 0},
		{Elapsed: 0, Bank: 0, Slot: 1, Failures: -1},
		{Elapsed: 3, Bank: 1, Slot: 7, Failures: 12},
	}
	for _, rec := range want {
		require.NoError(t, c.Append(rec))
	}
	require.NoError(t, c.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	got, err := sink.ReadCSV(f)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
