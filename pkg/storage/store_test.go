package storage

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chronodrachma/chrd/pkg/blockcache"
)

func ih(b byte) blockcache.IndepHash {
	var h blockcache.IndepHash
	h[0] = b
	return h
}

func mkBlock(indep, prev byte, height uint64) blockcache.Block {
	return blockcache.Block{
		IndepHash:              ih(indep),
		PreviousBlock:          ih(prev),
		CumulativeDiff:         big.NewInt(int64(height)),
		PreviousCumulativeDiff: big.NewInt(int64(height) - 1),
		Height:                 height,
	}
}

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := NewBadgerStore("")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func TestSaveAndGetBlockRoundTrip(t *testing.T) {
	s := newTestStore(t)
	b := mkBlock(1, 0, 0)

	require.NoError(t, s.SaveBlock(b))

	got, err := s.GetBlockByHash(b.IndepHash)
	require.NoError(t, err)
	require.Equal(t, b.IndepHash, got.IndepHash)
	require.Equal(t, 0, b.CumulativeDiff.Cmp(got.CumulativeDiff))

	_, err = s.GetBlockByHash(ih(99))
	require.ErrorIs(t, err, ErrBlockNotFound)
}

func TestCanonicalIndexAndHead(t *testing.T) {
	s := newTestStore(t)
	b1 := mkBlock(1, 0, 0)
	require.NoError(t, s.SaveBlock(b1))
	require.NoError(t, s.SetCanonical(0, b1.IndepHash))
	require.NoError(t, s.SaveHead(b1.IndepHash))

	byHeight, err := s.GetBlockByHeight(0)
	require.NoError(t, err)
	require.Equal(t, b1.IndepHash, byHeight.IndepHash)

	head, err := s.GetHead()
	require.NoError(t, err)
	require.Equal(t, b1.IndepHash, head)
}

func TestLoadRecentWalksBackFromHead(t *testing.T) {
	s := newTestStore(t)
	b1 := mkBlock(1, 0, 0)
	b2 := mkBlock(2, 1, 1)
	b3 := mkBlock(3, 2, 2)
	for _, b := range []blockcache.Block{b1, b2, b3} {
		require.NoError(t, s.SaveBlock(b))
	}
	require.NoError(t, s.SaveHead(b3.IndepHash))

	recent, err := s.LoadRecent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, b3.IndepHash, recent[0].IndepHash)
	require.Equal(t, b2.IndepHash, recent[1].IndepHash)
}

func TestLoadRecentStopsAtGenesis(t *testing.T) {
	s := newTestStore(t)
	b1 := mkBlock(1, 0, 0)
	require.NoError(t, s.SaveBlock(b1))
	require.NoError(t, s.SaveHead(b1.IndepHash))

	recent, err := s.LoadRecent(50)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, b1.IndepHash, recent[0].IndepHash)
}

func TestLoadRecentErrorsWithoutHead(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LoadRecent(10)
	require.ErrorIs(t, err, ErrBlockNotFound)
}
