package blockcache

// maxLongestChainRestarts bounds the "reorg in flight" retry loop in
// recomputeLongestChain. Under the single-writer model the whole cache
// is locked for the duration of a mutation, so a second mutation cannot
// actually interleave and flip colors mid-walk; the bound exists purely
// as a defensive backstop against a future change that calls this
// function without holding the write lock.
const maxLongestChainRestarts = 8

// GetEarliestNotValidatedFromLongestChain returns the deepest
// (earliest-height) NotValidated ancestor of the current heaviest
// candidate tip, if the candidate is heavier than the current on-chain
// tip. found is false when the on-chain tip is already the heaviest
// block cached (nothing to validate to catch up), or when the cache's
// max-cumulative-diff candidate chain has no NotValidated ancestor at
// all (shouldn't normally happen when found-worthy, but guarded).
//
// junction lists the blocks from deepest's parent back to the first
// OnChain ancestor (the fork junction), newest first. It stops early,
// without an OnChain block, if the walk falls off the bottom of the
// cache, and is empty if deepest's parent is not cached.
func (c *Cache) GetEarliestNotValidatedFromLongestChain() (deepest IndepHash, junction []IndepHash, status Status, found bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tipEntry, ok := c.blocks[c.tip]
	if !ok {
		return IndepHash{}, nil, Status{}, false
	}
	tipCDiff := cdiffOrZero(tipEntry.Block.CumulativeDiff)
	if tipCDiff.Cmp(c.maxCDiff) >= 0 {
		return IndepHash{}, nil, Status{}, false
	}

	cur := c.maxCDiffHash
	for {
		entry, ok := c.blocks[cur]
		if !ok {
			break
		}
		if entry.Status.Kind != StatusNotValidated {
			break
		}
		deepest = cur
		status = entry.Status
		found = true
		cur = entry.Block.PreviousBlock
	}
	if !found {
		return IndepHash{}, nil, Status{}, false
	}
	for {
		entry, ok := c.blocks[cur]
		if !ok {
			break
		}
		junction = append(junction, cur)
		if entry.Status.Kind == StatusOnChain {
			break
		}
		cur = entry.Block.PreviousBlock
	}
	return deepest, junction, status, true
}

// recomputeLongestChain refreshes the memoized longest-chain summary.
// Must be called with c.mu held for writing. Implements §4.3: head-skip
// for blocks too early to publish, reorg-in-flight restart, and
// pruned-tail truncation.
func (c *Cache) recomputeLongestChain() {
	for attempt := 0; attempt < maxLongestChainRestarts; attempt++ {
		pairs, notOnChain, restart := c.walkLongestChain()
		if restart {
			continue
		}
		c.longestChainPairs = pairs
		c.longestChainNotOn = notOnChain
		return
	}
	// Exhausted retries: keep the previous memoized value rather than
	// publish a possibly-torn summary.
	c.cfg.Metrics.ObserveLongestChainRestartExhausted()
}

func (c *Cache) walkLongestChain() (pairs []ChainPair, notOnChain int, restart bool) {
	cur := c.maxCDiffHash
	depth := c.cfg.StoreBlocksBehindCurrent

	// Head-skip: restart from the parent while the very first block
	// encountered is too early (pre nonce-limiter) to publish.
	for {
		entry, ok := c.blocks[cur]
		if !ok {
			return pairs, notOnChain, false
		}
		if entry.Status.Kind == StatusNotValidated &&
			(entry.Status.Sub == AwaitingNonceLimiterValidation || entry.Status.Sub == NonceLimiterValidationScheduled) {
			cur = entry.Block.PreviousBlock
			continue
		}
		break
	}

	prevWasOnChain := false
	havePrev := false
	for len(pairs) < depth {
		entry, ok := c.blocks[cur]
		if !ok {
			break // pruned-tail: return what was collected.
		}

		isOnChain := entry.Status.Kind == StatusOnChain
		if havePrev && prevWasOnChain && !isOnChain {
			// A concurrent reorg flipped colors mid-walk: restart the
			// whole computation from the (possibly now different)
			// max-cumulative-diff pointer.
			return nil, 0, true
		}

		pairs = append(pairs, ChainPair{IndepHash: cur, Txs: entry.Block.Txs})
		if !isOnChain {
			notOnChain++
		}
		prevWasOnChain = isOnChain
		havePrev = true

		next := entry.Block.PreviousBlock
		if next == cur {
			break
		}
		cur = next
	}
	return pairs, notOnChain, false
}
