package blockchain

import (
	"math/big"

	"github.com/chronodrachma/chrd/pkg/blockcache"
	"github.com/chronodrachma/chrd/pkg/core/types"
)

// indepHashFromHash widens a 32-byte chain hash into blockcache's
// 48-byte IndepHash, zero-padding the high bytes. hashFromIndepHash is
// its inverse and only ever sees hashes produced this way, so the
// truncation back to 32 bytes never loses information.
func indepHashFromHash(h types.Hash) blockcache.IndepHash {
	var out blockcache.IndepHash
	copy(out[:], h[:])
	return out
}

func hashFromIndepHash(h blockcache.IndepHash) types.Hash {
	var out types.Hash
	copy(out[:], h[:types.HashSize])
	return out
}

func solutionHashFromHash(h types.Hash) blockcache.SolutionHash {
	return blockcache.SolutionHash(h)
}

func txIDFromHash(h types.Hash) blockcache.TxID {
	return blockcache.TxID(h)
}

// toCacheBlock projects the fields of a full chain block that blockcache
// needs to run fork choice: identity, parent link, PoW solution hash,
// cumulative difficulty, height, and the transaction ids it should
// report back through GetLongestChainBlockTxsPairs. PowHash doubles as
// the solution hash since both chains use a 32-byte PoW output.
func toCacheBlock(b *types.Block, cumulativeDiff, parentCumulativeDiff uint64) blockcache.Block {
	txs := make([]blockcache.TxID, len(b.Transactions))
	for i, tx := range b.Transactions {
		txs[i] = txIDFromHash(tx.ID)
	}
	return blockcache.Block{
		IndepHash:              indepHashFromHash(b.Hash),
		PreviousBlock:          indepHashFromHash(b.Header.PrevBlockHash),
		Hash:                   solutionHashFromHash(b.PowHash),
		CumulativeDiff:         new(big.Int).SetUint64(cumulativeDiff),
		PreviousCumulativeDiff: new(big.Int).SetUint64(parentCumulativeDiff),
		Height:                 b.Header.Height,
		Txs:                    txs,
	}
}
