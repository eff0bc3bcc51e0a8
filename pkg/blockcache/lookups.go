package blockcache

// Get returns the block cached under h, or ErrNotFound.
func (c *Cache) Get(h IndepHash) (Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.blocks[h]
	if !ok {
		return Block{}, ErrNotFound
	}
	return entry.Block, nil
}

// GetBlockAndStatus returns the block and its status, or ErrNotFound.
func (c *Cache) GetBlockAndStatus(h IndepHash) (Block, Status, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.blocks[h]
	if !ok {
		return Block{}, Status{}, ErrNotFound
	}
	return entry.Block, entry.Status, nil
}

// IsKnownSolutionHash reports whether any cached block carries
// solutionHash as its proof-of-work output.
func (c *Cache) IsKnownSolutionHash(solutionHash SolutionHash) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.solutions[solutionHash]
	return ok
}

// GetLongestChainBlockTxsPairs returns the memoized longest-chain
// summary and how many of its entries are not yet OnChain. The summary
// is recomputed internally after every mutating operation (§4.3); this
// getter only reads the memo.
func (c *Cache) GetLongestChainBlockTxsPairs() ([]ChainPair, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pairs := make([]ChainPair, len(c.longestChainPairs))
	copy(pairs, c.longestChainPairs)
	return pairs, c.longestChainNotOn
}

// GetBlockCount returns the number of blocks currently cached.
func (c *Cache) GetBlockCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Tip returns the current on-chain tip hash.
func (c *Cache) Tip() IndepHash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tip
}

// MaxCumulativeDiffHash returns the current heaviest-candidate pointer's
// block hash.
func (c *Cache) MaxCumulativeDiffHash() IndepHash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxCDiffHash
}
