// Package blockcache implements the in-memory DAG of blocks that have
// passed proof-of-work validation. It tracks a heaviest-chain pointer
// under concurrent insertion, a per-block validation state machine, a
// solution-hash index for double-signing detection, a children-set per
// block for subtree walks, and an on-chain/off-chain coloring that flips
// atomically on reorgs.
//
// The cache never touches persistent storage, the network, or validation
// logic — it is handed already-PoW-valid blocks by those collaborators and
// answers fork-choice and lookup questions about them.
package blockcache

import (
	"math/big"
	"time"
)

// IndepHashSize is the length in bytes of a block's independent (content)
// hash, the cache's unique block identifier.
const IndepHashSize = 48

// SolutionHashSize is the length in bytes of a block's proof-of-work
// solution hash. Unlike IndepHash, it is not unique: two miners can solve
// the same slot.
const SolutionHashSize = 32

// IndepHash uniquely identifies a block.
type IndepHash [IndepHashSize]byte

// IsZero reports whether h is the zero hash, used as the parent link of a
// root block with no cached ancestor.
func (h IndepHash) IsZero() bool {
	return h == IndepHash{}
}

// SolutionHash is a block's proof-of-work output. Multiple distinct
// blocks may legitimately or maliciously share one.
type SolutionHash [SolutionHashSize]byte

// TxID identifies a transaction included in a block. The cache only ever
// carries these around for GetLongestChainBlockTxsPairs; it never
// inspects transaction contents.
type TxID [32]byte

// Block is the subset of a block's fields the cache consumes. Callers
// convert their own block representation into this struct; the cache
// never parses, serializes, or validates it.
type Block struct {
	IndepHash              IndepHash
	PreviousBlock          IndepHash
	Hash                   SolutionHash
	CumulativeDiff         *big.Int
	PreviousCumulativeDiff *big.Int
	Height                 uint64
	Txs                    []TxID
}

// NotValidatedSubState is the linear progression a NotValidated block
// moves through before it can be promoted to Validated. Modeled as an
// enum rather than a pair of booleans so illegal transitions (e.g.
// NonceLimiterValidated without ever being Scheduled) are unrepresentable.
type NotValidatedSubState int

const (
	AwaitingNonceLimiterValidation NotValidatedSubState = iota
	NonceLimiterValidationScheduled
	NonceLimiterValidated
	AwaitingValidation
)

func (s NotValidatedSubState) String() string {
	switch s {
	case AwaitingNonceLimiterValidation:
		return "AwaitingNonceLimiterValidation"
	case NonceLimiterValidationScheduled:
		return "NonceLimiterValidationScheduled"
	case NonceLimiterValidated:
		return "NonceLimiterValidated"
	case AwaitingValidation:
		return "AwaitingValidation"
	default:
		return "Unknown"
	}
}

// StatusKind is the cache's three-colored classification of a block.
type StatusKind int

const (
	StatusNotValidated StatusKind = iota
	StatusValidated
	StatusOnChain
)

func (k StatusKind) String() string {
	switch k {
	case StatusNotValidated:
		return "NotValidated"
	case StatusValidated:
		return "Validated"
	case StatusOnChain:
		return "OnChain"
	default:
		return "Unknown"
	}
}

// Status is the tagged status variant of a cached block. Sub is only
// meaningful when Kind is StatusNotValidated.
type Status struct {
	Kind StatusKind
	Sub  NotValidatedSubState
}

// NotValidated builds a NotValidated status at the given sub-state.
func NotValidated(sub NotValidatedSubState) Status {
	return Status{Kind: StatusNotValidated, Sub: sub}
}

// Validated is the status of a block that passed full validation but has
// not (yet, or ever) been part of the canonical chain.
var Validated = Status{Kind: StatusValidated}

// OnChain is the status of a block on the single canonical path from the
// tip back to the lowest cached block.
var OnChain = Status{Kind: StatusOnChain}

// Entry is the value the cache stores for every cached block hash.
type Entry struct {
	Block     Block
	Status    Status
	Timestamp time.Time
	Children  map[IndepHash]struct{}

	// Seq is the block's position in insertion order (first-inserted
	// gets the lowest value), assigned once when the Entry is first
	// created and never updated on re-add/promotion. It breaks
	// cumulative-diff ties deterministically by observation order,
	// independent of Go's randomized map iteration order.
	Seq uint64
}

// ChainPair is one (block, transaction ids) element of a longest-chain
// summary.
type ChainPair struct {
	IndepHash IndepHash
	Txs       []TxID
}

// IgnoreRegistry is the outbound collaborator notified on every insertion
// of a new block hash and every deletion. Calls must be fire-and-forget;
// the cache does not wait on or retry them.
type IgnoreRegistry interface {
	Add(h IndepHash)
	Remove(h IndepHash)
}

// noopIgnoreRegistry is used when a Config omits one.
type noopIgnoreRegistry struct{}

func (noopIgnoreRegistry) Add(IndepHash)    {}
func (noopIgnoreRegistry) Remove(IndepHash) {}
