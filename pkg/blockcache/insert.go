package blockcache

import "github.com/rs/zerolog/log"

// Add inserts a freshly gossiped, not-yet-validated block. Re-adding a
// hash whose status is already Validated or OnChain is recovered locally
// (logged, ignored): the consensus layer has already accepted it, so a
// re-add here almost always indicates a bug upstream rather than new
// information.
func (c *Cache) Add(b Block) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.blocks[b.IndepHash]; ok {
		if entry.Status.Kind == StatusNotValidated {
			entry.Block = b
			c.cfg.Metrics.ObserveAdd("replace")
			c.recomputeLongestChain()
			return
		}
		log.Warn().Hex("indep_hash", b.IndepHash[:]).Msg("blockcache: ignoring re-add of a validated block")
		c.cfg.Metrics.ObserveAddRejected()
		return
	}

	entry := &Entry{
		Block:     b,
		Status:    initialStatus(b, c.cfg),
		Timestamp: c.cfg.Now(),
		Children:  make(map[IndepHash]struct{}),
		Seq:       c.newSeq(),
	}
	c.blocks[b.IndepHash] = entry
	c.addChild(b.PreviousBlock, b.IndepHash)

	c.purgeExpiredAlternatives(b.Hash, b.IndepHash)
	c.addToSolutions(b.Hash, b.IndepHash)

	c.considerMaxCDiff(b)
	c.heights.insert(b.Height, b.IndepHash)
	c.cfg.IgnoreRegistry.Add(b.IndepHash)
	c.cfg.Metrics.ObserveAdd("new")

	c.recomputeLongestChain()
}

// AddValidated inserts or promotes a block that has passed full
// validation. The parent must already be cached and must not itself be
// NotValidated — both are programmer errors in the validation pipeline,
// surfaced rather than recovered.
func (c *Cache) AddValidated(b Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	parent, ok := c.blocks[b.PreviousBlock]
	if !ok {
		return ErrPreviousBlockNotFound
	}
	if parent.Status.Kind == StatusNotValidated {
		return ErrPreviousBlockNotValidated
	}

	entry, exists := c.blocks[b.IndepHash]
	switch {
	case !exists:
		entry = &Entry{
			Block:     b,
			Status:    Validated,
			Timestamp: c.cfg.Now(),
			Children:  make(map[IndepHash]struct{}),
			Seq:       c.newSeq(),
		}
		c.blocks[b.IndepHash] = entry
		c.heights.insert(b.Height, b.IndepHash)
		c.cfg.IgnoreRegistry.Add(b.IndepHash)
	case entry.Status.Kind == StatusOnChain:
		entry.Block = b
		// status left as OnChain, timestamp & children preserved.
	default:
		entry.Block = b
		entry.Status = Validated
	}

	c.addChild(b.PreviousBlock, b.IndepHash)
	c.purgeExpiredAlternatives(b.Hash, b.IndepHash)
	c.addToSolutions(b.Hash, b.IndepHash)
	c.considerMaxCDiff(b)
	c.cfg.Metrics.ObserveAdd("validated")

	c.recomputeLongestChain()
	return nil
}

// MarkNonceLimiterValidationScheduled advances h from
// AwaitingNonceLimiterValidation to NonceLimiterValidationScheduled. A
// no-op if h is unknown or not in the required predecessor state:
// producers race to schedule validation and must not have to coordinate.
func (c *Cache) MarkNonceLimiterValidationScheduled(h IndepHash) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.blocks[h]
	if !ok {
		return
	}
	if entry.Status.Kind != StatusNotValidated || entry.Status.Sub != AwaitingNonceLimiterValidation {
		return
	}
	entry.Status = NotValidated(NonceLimiterValidationScheduled)
}

// MarkNonceLimiterValidated advances h from NonceLimiterValidationScheduled
// to NonceLimiterValidated. A no-op if h is unknown or not in the
// required predecessor state.
func (c *Cache) MarkNonceLimiterValidated(h IndepHash) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.blocks[h]
	if !ok {
		return
	}
	if entry.Status.Kind != StatusNotValidated || entry.Status.Sub != NonceLimiterValidationScheduled {
		return
	}
	entry.Status = NotValidated(NonceLimiterValidated)
	c.recomputeLongestChain()
}
