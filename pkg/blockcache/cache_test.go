package blockcache

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ih(b byte) IndepHash {
	var h IndepHash
	h[0] = b
	return h
}

func sh(b byte) SolutionHash {
	var h SolutionHash
	h[0] = b
	return h
}

func mkBlock(indep, prev byte, solution byte, height uint64, cdiff, prevCDiff int64) Block {
	return Block{
		IndepHash:              ih(indep),
		PreviousBlock:          ih(prev),
		Hash:                   sh(solution),
		CumulativeDiff:         big.NewInt(cdiff),
		PreviousCumulativeDiff: big.NewInt(prevCDiff),
		Height:                 height,
	}
}

// newTestCache mirrors spec.md's scenarios, which assume every inserted
// block is at or past the fork-2.6 height (so NotValidated blocks start
// in the nonce-limiter sub-states the head-skip rule cares about).
func newTestCache(genesis Block) *Cache {
	return New(Config{Fork2_6Height: 0}, genesis)
}

// S1 — basic growth.
func TestScenarioBasicGrowth(t *testing.T) {
	b1 := mkBlock(1, 0, 1, 0, 0, 0)
	c := newTestCache(b1)

	b2 := mkBlock(2, 1, 2, 1, 1, 0)
	c.Add(b2)

	deepest, junction, status, found := c.GetEarliestNotValidatedFromLongestChain()
	require.True(t, found)
	require.Equal(t, b2.IndepHash, deepest)
	require.Equal(t, []IndepHash{b1.IndepHash}, junction)
	require.Equal(t, NotValidated(AwaitingNonceLimiterValidation), status)

	pairs, _ := c.GetLongestChainBlockTxsPairs()
	require.Len(t, pairs, 1)
	require.Equal(t, b1.IndepHash, pairs[0].IndepHash)
}

// S2 — fork with heavier unvalidated tip.
func TestScenarioForkHeavierUnvalidatedTip(t *testing.T) {
	b1 := mkBlock(1, 0, 1, 0, 0, 0)
	c := newTestCache(b1)

	b2 := mkBlock(2, 1, 2, 1, 1, 0)
	c.Add(b2)

	b1_2 := mkBlock(3, 1, 1, 1, 2, 0) // shares b1's solution hash
	c.Add(b1_2)

	require.NoError(t, c.AddValidated(Block{
		IndepHash:              b2.IndepHash,
		PreviousBlock:          b2.PreviousBlock,
		Hash:                   b2.Hash,
		CumulativeDiff:         b2.CumulativeDiff,
		PreviousCumulativeDiff: b2.PreviousCumulativeDiff,
		Height:                 b2.Height,
	}))
	require.NoError(t, c.MarkTip(b2.IndepHash))

	pairs, _ := c.GetLongestChainBlockTxsPairs()
	require.Len(t, pairs, 1)
	require.Equal(t, b1.IndepHash, pairs[0].IndepHash)

	found, err := c.GetBySolutionHash(sh(1), b1_2.IndepHash, big.NewInt(0), big.NewInt(0))
	require.NoError(t, err)
	require.Equal(t, b1.IndepHash, found.IndepHash)
}

// S3 — promotion sequence.
func TestScenarioPromotionSequence(t *testing.T) {
	b1 := mkBlock(1, 0, 1, 0, 0, 0)
	c := newTestCache(b1)

	b2 := mkBlock(2, 1, 2, 1, 1, 0)
	c.Add(b2)
	require.NoError(t, c.AddValidated(b2))
	require.NoError(t, c.MarkTip(b2.IndepHash))

	b2_2 := mkBlock(4, 2, 4, 2, 2, 1)
	c.Add(b2_2)
	require.NoError(t, c.AddValidated(b2_2))

	pairs, notOnChain := c.GetLongestChainBlockTxsPairs()
	require.Len(t, pairs, 3)
	require.Equal(t, []IndepHash{b2_2.IndepHash, b2.IndepHash, b1.IndepHash}, []IndepHash{pairs[0].IndepHash, pairs[1].IndepHash, pairs[2].IndepHash})
	require.Equal(t, 1, notOnChain)
}

// S4 — reorg.
func TestScenarioReorg(t *testing.T) {
	b1 := mkBlock(1, 0, 1, 0, 0, 0)
	c := newTestCache(b1)

	b2 := mkBlock(2, 1, 2, 1, 1, 0)
	require.NoError(t, c.AddValidated(b2))
	require.NoError(t, c.MarkTip(b2.IndepHash))

	b2_2 := mkBlock(4, 2, 4, 2, 2, 1)
	require.NoError(t, c.AddValidated(b2_2))
	require.NoError(t, c.MarkTip(b2_2.IndepHash))

	b3 := mkBlock(5, 2, 5, 2, 3, 1) // heavier sibling of b2_2
	require.NoError(t, c.AddValidated(b3))
	require.NoError(t, c.MarkTip(b3.IndepHash))

	_, status, err := c.GetBlockAndStatus(b2_2.IndepHash)
	require.NoError(t, err)
	require.Equal(t, Validated, status)

	_, status, err = c.GetBlockAndStatus(b3.IndepHash)
	require.NoError(t, err)
	require.Equal(t, OnChain, status)
}

// S5 — pruning.
func TestScenarioPruning(t *testing.T) {
	b1 := mkBlock(1, 0, 1, 0, 0, 0)
	c := newTestCache(b1)

	b2 := mkBlock(2, 1, 2, 1, 1, 0)
	require.NoError(t, c.AddValidated(b2))
	require.NoError(t, c.MarkTip(b2.IndepHash))

	b3 := mkBlock(5, 2, 5, 2, 3, 1)
	require.NoError(t, c.AddValidated(b3))
	require.NoError(t, c.MarkTip(b3.IndepHash))

	c.Prune(1)

	_, err := c.Get(b1.IndepHash)
	require.ErrorIs(t, err, ErrNotFound)

	pairs, _ := c.GetLongestChainBlockTxsPairs()
	require.Len(t, pairs, 2)
	require.Equal(t, b3.IndepHash, pairs[0].IndepHash)
	require.Equal(t, b2.IndepHash, pairs[1].IndepHash)
}

// S6 — nonce-limiter progression.
func TestScenarioNonceLimiterProgression(t *testing.T) {
	b1 := mkBlock(1, 0, 1, 0, 0, 0)
	c := New(Config{Fork2_6Height: 0}, b1)

	b2 := mkBlock(2, 1, 2, 1, 1, 0)
	c.Add(b2)

	_, status, err := c.GetBlockAndStatus(b2.IndepHash)
	require.NoError(t, err)
	require.Equal(t, NotValidated(AwaitingNonceLimiterValidation), status)

	// No-op on unknown hash.
	c.MarkNonceLimiterValidationScheduled(ih(99))

	c.MarkNonceLimiterValidationScheduled(b2.IndepHash)
	_, status, _ = c.GetBlockAndStatus(b2.IndepHash)
	require.Equal(t, NotValidated(NonceLimiterValidationScheduled), status)

	pairs, _ := c.GetLongestChainBlockTxsPairs()
	// b2 is head-skipped (scheduled, not yet validated): the walk restarts at b1.
	require.Len(t, pairs, 1)
	require.Equal(t, b1.IndepHash, pairs[0].IndepHash)

	c.MarkNonceLimiterValidated(b2.IndepHash)
	_, status, _ = c.GetBlockAndStatus(b2.IndepHash)
	require.Equal(t, NotValidated(NonceLimiterValidated), status)

	pairs, _ = c.GetLongestChainBlockTxsPairs()
	require.Len(t, pairs, 2)
	require.Equal(t, b2.IndepHash, pairs[0].IndepHash)
	require.Equal(t, b1.IndepHash, pairs[1].IndepHash)
}

func TestAddRejectsReaddOfValidatedBlock(t *testing.T) {
	b1 := mkBlock(1, 0, 1, 0, 0, 0)
	c := newTestCache(b1)

	b2 := mkBlock(2, 1, 2, 1, 1, 0)
	require.NoError(t, c.AddValidated(b2))

	// Re-add through the gossip path: recovered locally, no change.
	c.Add(b2)
	_, status, err := c.GetBlockAndStatus(b2.IndepHash)
	require.NoError(t, err)
	require.Equal(t, Validated, status)
}

func TestAddValidatedErrorsOnMissingOrUnvalidatedParent(t *testing.T) {
	b1 := mkBlock(1, 0, 1, 0, 0, 0)
	c := newTestCache(b1)

	orphan := mkBlock(9, 8, 9, 1, 1, 0)
	require.ErrorIs(t, c.AddValidated(orphan), ErrPreviousBlockNotFound)

	b2 := mkBlock(2, 1, 2, 1, 1, 0)
	c.Add(b2) // still NotValidated

	b3 := mkBlock(3, 2, 3, 2, 2, 1)
	require.ErrorIs(t, c.AddValidated(b3), ErrPreviousBlockNotValidated)
}

func TestMarkTipUnknownHash(t *testing.T) {
	b1 := mkBlock(1, 0, 1, 0, 0, 0)
	c := newTestCache(b1)
	require.ErrorIs(t, c.MarkTip(ih(77)), ErrNotFound)
}

func TestMarkTipInvalidTipNotValidatedAncestor(t *testing.T) {
	b1 := mkBlock(1, 0, 1, 0, 0, 0)
	c := newTestCache(b1)

	b2 := mkBlock(2, 1, 2, 1, 1, 0)
	c.Add(b2) // NotValidated

	b3 := mkBlock(3, 2, 3, 2, 2, 1)
	// Force-insert b3 as Validated directly against a NotValidated parent
	// is rejected by AddValidated itself; simulate the race by hand to
	// exercise MarkTip's own guard.
	c.mu.Lock()
	c.blocks[b3.IndepHash] = &Entry{Block: b3, Status: Validated, Timestamp: time.Now(), Children: map[IndepHash]struct{}{}, Seq: c.newSeq()}
	c.addChild(b3.PreviousBlock, b3.IndepHash)
	c.mu.Unlock()

	require.ErrorIs(t, c.MarkTip(b3.IndepHash), ErrInvalidTip)
	// Atomic: tip unchanged.
	require.Equal(t, b1.IndepHash, c.Tip())
}

func TestMarkTipIdempotent(t *testing.T) {
	b1 := mkBlock(1, 0, 1, 0, 0, 0)
	c := newTestCache(b1)

	require.NoError(t, c.MarkTip(b1.IndepHash))
	require.Equal(t, b1.IndepHash, c.Tip())
	_, status, _ := c.GetBlockAndStatus(b1.IndepHash)
	require.Equal(t, OnChain, status)
}

func TestAddThenRemoveRoundTrip(t *testing.T) {
	b1 := mkBlock(1, 0, 1, 0, 0, 0)
	c := newTestCache(b1)

	countBefore := c.GetBlockCount()
	b2 := mkBlock(2, 1, 2, 1, 1, 0)
	c.Add(b2)
	c.Remove(b2.IndepHash)

	require.Equal(t, countBefore, c.GetBlockCount())
	_, err := c.Get(b2.IndepHash)
	require.ErrorIs(t, err, ErrNotFound)
	require.False(t, c.IsKnownSolutionHash(sh(2)))
}

func TestAlternativeBlockAging(t *testing.T) {
	b1 := mkBlock(1, 0, 1, 0, 0, 0)
	now := time.Now()
	c := New(Config{
		Fork2_6Height:              1 << 30,
		AlternativeBlockExpiration: time.Millisecond,
		Now:                        func() time.Time { return now },
	}, b1)

	alt := mkBlock(2, 1, 9, 1, 1, 0)
	c.Add(alt)
	require.True(t, c.IsKnownSolutionHash(sh(9)))

	// Advance the clock well past expiration, then touch the same
	// solution bucket with a new block to trigger the lazy purge.
	now = now.Add(time.Hour)
	other := mkBlock(3, 1, 9, 1, 1, 0)
	c.Add(other)

	_, err := c.Get(alt.IndepHash)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = c.Get(other.IndepHash)
	require.NoError(t, err)
}

func TestOnChainBlockNeverAgesOut(t *testing.T) {
	b1 := mkBlock(1, 0, 1, 0, 0, 0)
	now := time.Now()
	c := New(Config{
		Fork2_6Height:              1 << 30,
		AlternativeBlockExpiration: time.Millisecond,
		Now:                        func() time.Time { return now },
	}, b1)

	b2 := mkBlock(2, 1, 9, 1, 1, 0)
	require.NoError(t, c.AddValidated(b2))
	require.NoError(t, c.MarkTip(b2.IndepHash))

	now = now.Add(time.Hour)
	sibling := mkBlock(3, 1, 9, 1, 1, 0)
	c.Add(sibling)

	_, err := c.Get(b2.IndepHash)
	require.NoError(t, err, "an OnChain block must never be aged out")
}

func TestInitializeFromList(t *testing.T) {
	b1 := mkBlock(1, 0, 1, 0, 0, 0)
	b2 := mkBlock(2, 1, 2, 1, 1, 0)
	b3 := mkBlock(3, 2, 3, 2, 2, 1)

	c := New(Config{Fork2_6Height: 1 << 30}, mkBlock(0, 0, 0, 0, 0, 0))
	require.NoError(t, c.InitializeFromList([]Block{b3, b2, b1})) // newest-first

	require.Equal(t, b3.IndepHash, c.Tip())
	for _, b := range []Block{b1, b2, b3} {
		_, status, err := c.GetBlockAndStatus(b.IndepHash)
		require.NoError(t, err)
		require.Equal(t, OnChain, status)
	}
}

// TestRescanMaxCDiffBreaksTiesByInsertionOrder exercises rescanMaxCDiff
// (triggered when the current max-cdiff block is removed) with two
// surviving candidates tied on cumulative_diff. Go map iteration order is
// randomized, so without tracking each Entry's insertion sequence this
// would nondeterministically pick either survivor; invariant 4 requires
// the first-observed one to win every time.
func TestRescanMaxCDiffBreaksTiesByInsertionOrder(t *testing.T) {
	b1 := mkBlock(1, 0, 1, 0, 0, 0)
	c := newTestCache(b1)

	// b2 becomes the max-cdiff candidate (strictly heavier than genesis).
	b2 := mkBlock(2, 1, 2, 1, 5, 0)
	require.NoError(t, c.AddValidated(b2))
	require.Equal(t, b2.IndepHash, c.MaxCumulativeDiffHash())

	// b3 and b4 tie with b2 on cumulative_diff; neither displaces b2 since
	// considerMaxCDiff only updates on strictly-greater.
	b3 := mkBlock(3, 1, 3, 1, 5, 0)
	require.NoError(t, c.AddValidated(b3))
	b4 := mkBlock(4, 1, 4, 1, 5, 0)
	require.NoError(t, c.AddValidated(b4))
	require.Equal(t, b2.IndepHash, c.MaxCumulativeDiffHash())

	// Removing the max-cdiff block forces rescanMaxCDiff to choose among
	// the two remaining, still-tied candidates: b3, observed before b4,
	// must win regardless of map iteration order.
	c.Remove(b2.IndepHash)
	require.Equal(t, b3.IndepHash, c.MaxCumulativeDiffHash())
}

func TestGetBySolutionHashEmptyOrExcludedOnly(t *testing.T) {
	b1 := mkBlock(1, 0, 1, 0, 0, 0)
	c := newTestCache(b1)

	_, err := c.GetBySolutionHash(sh(77), IndepHash{}, big.NewInt(0), big.NewInt(0))
	require.ErrorIs(t, err, ErrNotFound)

	_, err = c.GetBySolutionHash(sh(1), b1.IndepHash, big.NewInt(0), big.NewInt(0))
	require.ErrorIs(t, err, ErrNotFound)
}
