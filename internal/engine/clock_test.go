package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_StartsEmpty(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Pending())
}

func TestClock_ResumesFromLog(t *testing.T) {
	c := NewClockAt(41)
	assert.Equal(t, int64(42), c.Pending())
}

func TestClock_PendingIsStableUntilCommit(t *testing.T) {
	c := NewClock()

	assert.Equal(t, int64(1), c.Pending())
	assert.Equal(t, int64(1), c.Pending(), "an uncommitted seq is handed out again")

	require.NoError(t, c.Commit(1))
	assert.Equal(t, int64(1), c.Current())
	assert.Equal(t, int64(2), c.Pending())
}

func TestClock_CommitOutOfOrder(t *testing.T) {
	c := NewClockAt(5)

	assert.Error(t, c.Commit(5), "already committed")
	assert.Error(t, c.Commit(7), "skips 6")
	assert.Equal(t, int64(5), c.Current())

	require.NoError(t, c.Commit(6))
}
