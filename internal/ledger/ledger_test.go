package ledger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerRecordsRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfmmcdl.db")

	l, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, l.Record(Entry{
		AccountNo: "00012345",
		Report:    "daily",
		QueryType: "逐日",
		Period:    "2024-01-03",
		Status:    StatusDownloaded,
		Path:      "/out/x.xls",
	}))
	require.NoError(t, l.Record(Entry{
		AccountNo: "00012345",
		Report:    "daily",
		QueryType: "逐笔",
		Period:    "2024-01-03",
		Status:    StatusFailed,
		Detail:    "export failed",
	}))
	require.NoError(t, l.Record(Entry{
		AccountNo: "00067890",
		Report:    "monthly",
		QueryType: "逐日",
		Period:    "2024-01",
		Status:    StatusSkipped,
		Detail:    "login failed",
	}))
	require.NoError(t, l.Close(false))

	summaries, err := ReadSummaries(path, 10)
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	s := summaries[0]
	assert.Equal(t, 1, s.Downloaded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Skipped)
	assert.False(t, s.Cancelled)
	assert.NotEmpty(t, s.StartedAt)
	assert.NotEmpty(t, s.EndedAt)
}

func TestLedgerMarksCancelledRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfmmcdl.db")

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Close(true))

	summaries, err := ReadSummaries(path, 10)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.True(t, summaries[0].Cancelled)
}

func TestLedgerSeparatesRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfmmcdl.db")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Record(Entry{AccountNo: "1", Report: "daily", QueryType: "逐日", Period: "2024-01-03", Status: StatusDownloaded}))
	require.NoError(t, first.Close(false))

	second, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, second.Record(Entry{AccountNo: "1", Report: "daily", QueryType: "逐日", Period: "2024-01-04", Status: StatusDownloaded}))
	require.NoError(t, second.Close(false))

	summaries, err := ReadSummaries(path, 10)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Newest first.
	assert.Greater(t, summaries[0].RunID, summaries[1].RunID)
	assert.Equal(t, 1, summaries[0].Downloaded)
	assert.Equal(t, 1, summaries[1].Downloaded)
}

func TestReadSummariesLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfmmcdl.db")
	for i := 0; i < 3; i++ {
		l, err := Open(path)
		require.NoError(t, err)
		require.NoError(t, l.Close(false))
	}

	summaries, err := ReadSummaries(path, 2)
	require.NoError(t, err)
	assert.Len(t, summaries, 2)
}
