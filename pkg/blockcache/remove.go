package blockcache

// Remove deletes h and every descendant of h, transitively. Removing an
// unknown hash is a no-op.
func (c *Cache) Remove(h IndepHash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeSubtree(h)
	c.recomputeLongestChain()
}

// removeSubtree is the shared deletion path used by Remove, Prune, and
// alternative-block aging. Must be called with c.mu held for writing.
func (c *Cache) removeSubtree(h IndepHash) {
	entry, ok := c.blocks[h]
	if !ok {
		return
	}

	// Collect children before deleting so mutation during recursion is
	// safe.
	children := make([]IndepHash, 0, len(entry.Children))
	for child := range entry.Children {
		children = append(children, child)
	}
	for _, child := range children {
		c.removeSubtree(child)
	}

	delete(c.blocks, h)
	c.heights.remove(entry.Block.Height, h)
	c.removeFromSolutions(entry.Block.Hash, h)
	c.removeChild(entry.Block.PreviousBlock, h)
	c.cfg.IgnoreRegistry.Remove(h)
	c.cfg.Metrics.ObserveRemove()

	if h == c.maxCDiffHash {
		c.rescanMaxCDiff()
	}
}

// removeNode deletes h alone, leaving any children in place. Used by Prune
// to retire the lowest cached block while its surviving OnChain child
// becomes the new lowest cached block. Must be called with c.mu held for
// writing.
func (c *Cache) removeNode(h IndepHash) {
	entry, ok := c.blocks[h]
	if !ok {
		return
	}
	delete(c.blocks, h)
	c.heights.remove(entry.Block.Height, h)
	c.removeFromSolutions(entry.Block.Hash, h)
	c.removeChild(entry.Block.PreviousBlock, h)
	c.cfg.IgnoreRegistry.Remove(h)
	c.cfg.Metrics.ObserveRemove()

	if h == c.maxCDiffHash {
		c.rescanMaxCDiff()
	}
}

// Prune repeatedly removes the lowest-height cached block's non-OnChain
// children (and their subtrees) then the low block itself, stopping once
// the lowest height is within depth of the tip's height. This preserves
// the invariant that the lowest cached block is always on-chain.
func (c *Cache) Prune(depth uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tipEntry, ok := c.blocks[c.tip]
	if !ok {
		return
	}
	tipHeight := tipEntry.Block.Height

	defer c.recomputeLongestChain()

	for {
		low, ok := c.heights.min()
		if !ok {
			return
		}
		if tipHeight < depth || low.Height >= tipHeight-depth {
			return
		}

		lowEntry, ok := c.blocks[low.Hash]
		if !ok {
			// Shouldn't happen: heights and blocks are kept in sync.
			c.heights.remove(low.Height, low.Hash)
			continue
		}

		children := make([]IndepHash, 0, len(lowEntry.Children))
		for child := range lowEntry.Children {
			children = append(children, child)
		}
		for _, child := range children {
			if ce, ok := c.blocks[child]; ok && ce.Status.Kind != StatusOnChain {
				c.removeSubtree(child)
			}
		}

		c.removeNode(low.Hash)
		c.cfg.Metrics.ObservePrune()
	}
}
