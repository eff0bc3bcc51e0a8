package blockcache

// MarkTip promotes h and every Validated ancestor on its path to OnChain,
// demoting the displaced branch of the prior main chain back to
// Validated. The whole operation is atomic: if any ancestor on the path
// is still NotValidated, ErrInvalidTip is returned and nothing is
// committed.
func (c *Cache) MarkTip(h IndepHash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.blocks[h]; !ok {
		return ErrNotFound
	}

	// Phase 1: walk the path read-only, validating it and collecting the
	// Validated ancestors that need promoting, before mutating anything.
	var toPromote []IndepHash
	cur := h
	anchorParent := IndepHash{}
	anchorFound := false
	for {
		curEntry := c.blocks[cur]
		parentHash := curEntry.Block.PreviousBlock
		parentEntry, ok := c.blocks[parentHash]
		if !ok {
			break // reached the bottom of the cache; nothing left to promote.
		}
		switch parentEntry.Status.Kind {
		case StatusNotValidated:
			return ErrInvalidTip
		case StatusOnChain:
			anchorParent = parentHash
			anchorFound = true
		default: // Validated
			toPromote = append(toPromote, parentHash)
			cur = parentHash
			continue
		}
		break
	}

	// Phase 2: commit.
	c.tip = h
	c.blocks[h].Status = OnChain
	for _, a := range toPromote {
		c.blocks[a].Status = OnChain
	}

	if anchorFound {
		cameFrom := h
		if len(toPromote) > 0 {
			cameFrom = toPromote[len(toPromote)-1]
		}
		if parent, ok := c.blocks[anchorParent]; ok {
			for child := range parent.Children {
				if child == cameFrom {
					continue
				}
				c.demoteOnChainSubtree(child)
			}
		}
	}

	c.cfg.Metrics.ObserveMarkTip(len(toPromote))
	c.recomputeLongestChain()
	return nil
}

// demoteOnChainSubtree walks the subtree rooted at h, flipping every
// OnChain node to Validated. Validated/NotValidated nodes are left
// untouched, but traversal continues into their children regardless:
// invariant 5 guarantees a NotValidated node never has an OnChain
// descendant, so this never does real work below one, it just confirms
// there is none.
func (c *Cache) demoteOnChainSubtree(h IndepHash) {
	entry, ok := c.blocks[h]
	if !ok {
		return
	}
	if entry.Status.Kind == StatusOnChain {
		entry.Status = Validated
	}
	for child := range entry.Children {
		c.demoteOnChainSubtree(child)
	}
}
