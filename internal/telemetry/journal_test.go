package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournalRecordsInOrder(t *testing.T) {
	j := NewJournal(4)
	j.Record("query-sent", "entry-1")
	j.Record("response-received", "entry-1")

	snap := j.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "query-sent", snap[0].Phase)
	assert.Equal(t, "response-received", snap[1].Phase)
}

func TestJournalWrapsWhenFull(t *testing.T) {
	j := NewJournal(2)
	j.Record("a", "")
	j.Record("b", "")
	j.Record("c", "") // overwrites "a"

	snap := j.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "b", snap[0].Phase)
	assert.Equal(t, "c", snap[1].Phase)
}
