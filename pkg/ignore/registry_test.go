package ignore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chronodrachma/chrd/pkg/blockcache"
)

func ih(b byte) blockcache.IndepHash {
	var h blockcache.IndepHash
	h[0] = b
	return h
}

func TestAddAndSeen(t *testing.T) {
	r := New(4)
	require.False(t, r.Seen(ih(1)))

	r.Add(ih(1))
	require.True(t, r.Seen(ih(1)))
	require.Equal(t, 1, r.Len())
}

func TestRemove(t *testing.T) {
	r := New(4)
	r.Add(ih(1))
	r.Remove(ih(1))
	require.False(t, r.Seen(ih(1)))
}

func TestEvictsOldestPastCapacity(t *testing.T) {
	r := New(2)
	r.Add(ih(1))
	r.Add(ih(2))
	r.Add(ih(3)) // evicts ih(1)

	require.False(t, r.Seen(ih(1)))
	require.True(t, r.Seen(ih(2)))
	require.True(t, r.Seen(ih(3)))
	require.Equal(t, 2, r.Len())
}

func TestNonPositiveCapacityFallsBackToDefault(t *testing.T) {
	r := New(0)
	r.Add(ih(5))
	require.True(t, r.Seen(ih(5)))
}
