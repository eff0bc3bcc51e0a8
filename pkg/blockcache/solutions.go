package blockcache

import (
	"math/big"
	"time"
)

// forkLength returns 1 + the maximum depth of the subtree rooted at h,
// used to scale how long h itself is allowed to live when it shares a
// solution hash with another cached block: deeper forks survive longer.
func (c *Cache) forkLength(h IndepHash) int {
	entry, ok := c.blocks[h]
	if !ok {
		return 1
	}
	maxChildDepth := 0
	for child := range entry.Children {
		if d := c.forkLength(child); d > maxChildDepth {
			maxChildDepth = d
		}
	}
	return 1 + maxChildDepth
}

// GetForkLength is the exported read-only form of forkLength. ok is
// false when h is not cached.
func (c *Cache) GetForkLength(h IndepHash) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.blocks[h]; !ok {
		return 0, false
	}
	return c.forkLength(h), true
}

// purgeExpiredAlternatives scans the solution bucket that incoming is
// about to join and removes any expired non-OnChain member. Must be
// called with c.mu held for writing, before incoming is itself added to
// the bucket.
func (c *Cache) purgeExpiredAlternatives(sh SolutionHash, incoming IndepHash) {
	bucket, ok := c.solutions[sh]
	if !ok {
		return
	}
	now := c.cfg.Now()
	var expired []IndepHash
	for h := range bucket {
		if h == incoming {
			continue
		}
		entry, ok := c.blocks[h]
		if !ok || entry.Status.Kind == StatusOnChain {
			continue
		}
		lifetime := c.cfg.AlternativeBlockExpiration * time.Duration(c.forkLength(h))
		if now.After(entry.Timestamp.Add(lifetime)) {
			expired = append(expired, h)
		}
	}
	for _, h := range expired {
		c.removeSubtree(h)
		c.cfg.Metrics.ObserveAlternativeExpired()
	}
}

// GetBySolutionHash scans the set of cached blocks sharing solutionHash,
// skipping exclude, and returns the caller's best double-signing
// candidate in preference order: (1) an exact cumulative-difficulty
// twin, (2) a block whose claimed weight overlaps exclude's claimed
// parent weight in both directions (the definition of double-signing at
// overlapping heights), (3) any other match. Returns ErrNotFound if the
// bucket is empty or contains only exclude.
//
// The source's equivalent recurses into itself on a "the looked-up block
// vanished mid-scan" race-retry branch; under this cache's single-writer
// locking that branch is unreachable (the whole scan runs under one
// write-lock acquisition), so it is not reproduced here.
func (c *Cache) GetBySolutionHash(solutionHash SolutionHash, exclude IndepHash, cdiff, prevCDiff *big.Int) (Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.solutions[solutionHash]
	if !ok {
		return Block{}, ErrNotFound
	}

	cdiff = cdiffOrZero(cdiff)
	prevCDiff = cdiffOrZero(prevCDiff)

	var exactTwin, overlap, any *Block
	for h := range bucket {
		if h == exclude {
			continue
		}
		entry, ok := c.blocks[h]
		if !ok {
			continue
		}
		b := entry.Block
		bcd := cdiffOrZero(b.CumulativeDiff)
		bprev := cdiffOrZero(b.PreviousCumulativeDiff)

		if exactTwin == nil && bcd.Cmp(cdiff) == 0 {
			blk := b
			exactTwin = &blk
		}
		if overlap == nil && bcd.Cmp(prevCDiff) > 0 && cdiff.Cmp(bprev) > 0 {
			blk := b
			overlap = &blk
			if c.cfg.OnEquivocation != nil {
				c.cfg.OnEquivocation(exclude, h)
			}
		}
		if any == nil {
			blk := b
			any = &blk
		}
	}

	switch {
	case exactTwin != nil:
		return *exactTwin, nil
	case overlap != nil:
		return *overlap, nil
	case any != nil:
		return *any, nil
	default:
		return Block{}, ErrNotFound
	}
}
