package blockcache

import (
	"math/big"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// DefaultStoreBlocksBehindCurrent bounds how deep GetLongestChainBlockTxsPairs
// walks back from the heaviest candidate tip.
const DefaultStoreBlocksBehindCurrent = 50

// DefaultAlternativeBlockExpiration is the base lifetime of an unvalidated
// alternative block sharing a solution hash with another cached block,
// before fork-length scaling (§4.5).
const DefaultAlternativeBlockExpiration = 5 * time.Second

// Config carries the cache's tunables and collaborator hooks. A zero
// Config is valid; defaults are applied by New.
type Config struct {
	// Fork2_6Height decides, for a freshly inserted NotValidated block,
	// whether it starts life awaiting nonce-limiter validation (at or
	// past the fork height) or awaiting plain validation (before it).
	Fork2_6Height uint64

	// StoreBlocksBehindCurrent bounds the longest-chain summary depth.
	// Defaults to DefaultStoreBlocksBehindCurrent.
	StoreBlocksBehindCurrent int

	// AlternativeBlockExpiration is the base alternative-block lifetime.
	// Defaults to DefaultAlternativeBlockExpiration.
	AlternativeBlockExpiration time.Duration

	// IgnoreRegistry is notified of insertions and deletions. Defaults
	// to a no-op implementation.
	IgnoreRegistry IgnoreRegistry

	// OnEquivocation, if set, fires synchronously and fire-and-forget
	// whenever GetBySolutionHash resolves its double-signing preference
	// branch (overlapping-height match, §4.5 rule 2).
	OnEquivocation func(a, b IndepHash)

	// Metrics receives cache instrumentation. Defaults to a no-op
	// Metrics that discards every observation.
	Metrics *Metrics

	// Now returns the current time. Defaults to time.Now; overridable
	// so alternative-block aging is deterministic in tests.
	Now func() time.Time
}

func (c *Config) setDefaults() {
	if c.StoreBlocksBehindCurrent <= 0 {
		c.StoreBlocksBehindCurrent = DefaultStoreBlocksBehindCurrent
	}
	if c.AlternativeBlockExpiration <= 0 {
		c.AlternativeBlockExpiration = DefaultAlternativeBlockExpiration
	}
	if c.IgnoreRegistry == nil {
		c.IgnoreRegistry = noopIgnoreRegistry{}
	}
	if c.Metrics == nil {
		c.Metrics = NewNoopMetrics()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Cache is the block DAG. All exported methods are safe for concurrent
// use: mutations take the write lock for their whole duration (no
// suspension points, every critical section is CPU-bound and touches
// only in-memory indices); reads take the shared lock. There is no
// finer-grained locking because a single mutation touches all four
// indices and must be atomic with respect to their invariants.
type Cache struct {
	mu  sync.RWMutex
	cfg Config

	blocks    map[IndepHash]*Entry
	heights   *heightIndex
	solutions map[SolutionHash]map[IndepHash]struct{}

	maxCDiffHash IndepHash
	maxCDiff     *big.Int

	// nextSeq hands out each new Entry's insertion sequence number, used
	// to break cumulative-diff ties deterministically in rescanMaxCDiff.
	nextSeq uint64

	tip IndepHash

	longestChainPairs []ChainPair
	longestChainNotOn int
}

// New wipes all indices and installs b as the sole OnChain block: the
// tip, the max-cumulative-diff candidate, and the root of the height and
// solution indices. Mirrors the source's contract that a cache is always
// rebuilt from a known-good block (usually the persisted tip) rather than
// grown from nothing.
func New(cfg Config, genesis Block) *Cache {
	cfg.setDefaults()
	c := &Cache{
		cfg:       cfg,
		blocks:    make(map[IndepHash]*Entry),
		heights:   newHeightIndex(),
		solutions: make(map[SolutionHash]map[IndepHash]struct{}),
	}
	c.reset(genesis)
	return c
}

func (c *Cache) reset(genesis Block) {
	c.blocks = make(map[IndepHash]*Entry)
	c.heights = newHeightIndex()
	c.solutions = make(map[SolutionHash]map[IndepHash]struct{})
	c.longestChainPairs = nil
	c.longestChainNotOn = 0
	c.nextSeq = 0

	entry := &Entry{
		Block:     genesis,
		Status:    OnChain,
		Timestamp: c.cfg.Now(),
		Children:  make(map[IndepHash]struct{}),
		Seq:       c.newSeq(),
	}
	c.blocks[genesis.IndepHash] = entry
	c.heights.insert(genesis.Height, genesis.IndepHash)
	c.addToSolutions(genesis.Hash, genesis.IndepHash)

	c.tip = genesis.IndepHash
	c.maxCDiffHash = genesis.IndepHash
	c.maxCDiff = cdiffOrZero(genesis.CumulativeDiff)

	c.cfg.IgnoreRegistry.Add(genesis.IndepHash)
	c.recomputeLongestChain()
}

// InitializeFromList installs blocks (newest-first, as produced by a
// persistent store's "blocks behind head" query) into a fresh cache: the
// oldest becomes genesis via New's reset, then each successively newer
// block is added as Validated and immediately promoted to OnChain. The
// result is a cache whose entire contents are on-chain and whose tip is
// the newest supplied block.
func (c *Cache) InitializeFromList(blocks []Block) error {
	if len(blocks) == 0 {
		return errors.New("blockcache: InitializeFromList requires at least one block")
	}

	c.mu.Lock()
	oldest := blocks[len(blocks)-1]
	c.reset(oldest)
	c.mu.Unlock()

	for i := len(blocks) - 2; i >= 0; i-- {
		b := blocks[i]
		if err := c.AddValidated(b); err != nil {
			return errors.Wrapf(err, "blockcache: InitializeFromList add_validated(%x)", b.IndepHash)
		}
		if err := c.MarkTip(b.IndepHash); err != nil {
			return errors.Wrapf(err, "blockcache: InitializeFromList mark_tip(%x)", b.IndepHash)
		}
	}
	return nil
}

// newSeq hands out the next insertion sequence number. Must be called
// with c.mu held for writing.
func (c *Cache) newSeq() uint64 {
	seq := c.nextSeq
	c.nextSeq++
	return seq
}

func cdiffOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// addChild records h as a child of parent, if parent is cached.
func (c *Cache) addChild(parent, h IndepHash) {
	if pe, ok := c.blocks[parent]; ok {
		pe.Children[h] = struct{}{}
	}
}

func (c *Cache) removeChild(parent, h IndepHash) {
	if pe, ok := c.blocks[parent]; ok {
		delete(pe.Children, h)
	}
}

func (c *Cache) addToSolutions(sh SolutionHash, h IndepHash) {
	set, ok := c.solutions[sh]
	if !ok {
		set = make(map[IndepHash]struct{})
		c.solutions[sh] = set
	}
	set[h] = struct{}{}
}

func (c *Cache) removeFromSolutions(sh SolutionHash, h IndepHash) {
	set, ok := c.solutions[sh]
	if !ok {
		return
	}
	delete(set, h)
	if len(set) == 0 {
		delete(c.solutions, sh)
	}
}

// considerMaxCDiff updates the max-cumulative-diff pointer if b is
// strictly heavier than the current candidate. Ties keep whichever block
// was observed first, satisfying invariant 4.
func (c *Cache) considerMaxCDiff(b Block) {
	cd := cdiffOrZero(b.CumulativeDiff)
	if c.maxCDiff == nil || cd.Cmp(c.maxCDiff) > 0 {
		c.maxCDiff = cd
		c.maxCDiffHash = b.IndepHash
	}
}

// rescanMaxCDiff recomputes the max-cumulative-diff pointer from scratch,
// used after the current pointer's block is removed from the cache. Go's
// map iteration order is randomized per run, so ties on cumulative_diff
// are broken by each survivor's Seq (lowest, i.e. first observed, wins)
// rather than by iteration order, satisfying invariant 4's "ties broken
// by whichever was observed first."
func (c *Cache) rescanMaxCDiff() {
	var bestHash IndepHash
	var best *big.Int
	var bestSeq uint64
	for h, e := range c.blocks {
		cd := cdiffOrZero(e.Block.CumulativeDiff)
		cmp := -1
		if best != nil {
			cmp = cd.Cmp(best)
		}
		if best == nil || cmp > 0 || (cmp == 0 && e.Seq < bestSeq) {
			best = cd
			bestHash = h
			bestSeq = e.Seq
		}
	}
	if best == nil {
		best = big.NewInt(0)
	}
	c.maxCDiff = best
	c.maxCDiffHash = bestHash
}

func initialStatus(b Block, cfg Config) Status {
	if b.Height >= cfg.Fork2_6Height {
		return NotValidated(AwaitingNonceLimiterValidation)
	}
	return NotValidated(AwaitingValidation)
}
