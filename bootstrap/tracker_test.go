package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	c := newCounter(2)
	assert.False(t, c.complete())

	n, err := c.recordCompletion()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, c.complete())

	n, err = c.recordCompletion()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, c.complete())

	_, err = c.recordCompletion()
	assert.ErrorIs(t, err, ErrUnexpectedResult)
	assert.Equal(t, 2, c.done())
}

func TestCounter_ZeroExpectedIsComplete(t *testing.T) {
	assert.True(t, newCounter(0).complete())
	assert.True(t, newKeyed(0).complete())
}

func TestKeyed(t *testing.T) {
	k := newKeyed(2)

	m, err := k.record("us-west", "r1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"us-west": "r1"}, m)
	assert.False(t, k.complete())

	_, err = k.record("us-west", "r1-again")
	assert.ErrorIs(t, err, ErrDuplicateResult)
	v, ok := k.lookup("us-west")
	require.True(t, ok)
	assert.Equal(t, "r1", v)

	_, err = k.record("us-east", "r2")
	require.NoError(t, err)
	assert.True(t, k.complete())

	_, err = k.record("eu", "r3")
	assert.ErrorIs(t, err, ErrUnexpectedResult)
	assert.Equal(t, 2, k.done())
	assert.Equal(t, 2, k.total())
}

func TestKeyed_SnapshotIsCopy(t *testing.T) {
	k := newKeyed(1)
	_, err := k.record("a", "1")
	require.NoError(t, err)

	snap := k.snapshot()
	snap["a"] = "changed"

	v, _ := k.lookup("a")
	assert.Equal(t, "1", v)
}
