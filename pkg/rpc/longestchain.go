package rpc

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/chronodrachma/chrd/pkg/blockcache"
)

// longestChainCacheTTL bounds how stale a served /cache/longest-chain
// response can be. blockcache.Cache already memoizes this internally,
// but recomputing the JSON payload on every poll from a busy explorer
// still costs an allocation and a walk of the RPC response shape; this
// just de-duplicates that across callers within one tick.
const longestChainCacheTTL = 500 * time.Millisecond

const longestChainCacheKey = "longest-chain"

type longestChainResult struct {
	Pairs      []blockcache.ChainPair
	NotOnChain int
}

// longestChainMemo fronts Chain.LongestChainBlockTxsPairs with a
// short-lived ristretto cache so concurrent RPC pollers share one
// recomputation instead of each taking the cache's read lock.
type longestChainMemo struct {
	cache *ristretto.Cache[string, longestChainResult]
}

func newLongestChainMemo() (*longestChainMemo, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, longestChainResult]{
		NumCounters: 100,
		MaxCost:     1 << 16,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &longestChainMemo{cache: c}, nil
}

func (m *longestChainMemo) get(compute func() ([]blockcache.ChainPair, int)) longestChainResult {
	if v, ok := m.cache.Get(longestChainCacheKey); ok {
		return v
	}
	pairs, notOnChain := compute()
	result := longestChainResult{Pairs: pairs, NotOnChain: notOnChain}
	m.cache.SetWithTTL(longestChainCacheKey, result, 1, longestChainCacheTTL)
	m.cache.Wait()
	return result
}
