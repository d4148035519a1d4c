// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wnotemgr

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// PoolType identifies the shielded pool an output belongs to.  The numeric
// values match the on-chain protocol identifiers.
type PoolType uint8

const (
	// PoolSapling is the Sapling shielded pool.
	PoolSapling PoolType = 2

	// PoolOrchard is the Orchard shielded pool.
	PoolOrchard PoolType = 3
)

// pools lists every supported pool in its canonical processing order.
var pools = []PoolType{PoolSapling, PoolOrchard}

// String returns the pool as a human-readable name.
func (p PoolType) String() string {
	switch p {
	case PoolSapling:
		return "sapling"
	case PoolOrchard:
		return "orchard"
	default:
		return fmt.Sprintf("unknown pool (%d)", uint8(p))
	}
}

// valid returns whether the pool is one of the supported shielded pools.
func (p PoolType) valid() bool {
	return p == PoolSapling || p == PoolOrchard
}

// AccountID identifies a wallet account.  Accounts are created with
// sequential identifiers starting at zero.
type AccountID uint32

// Nullifier is the value derived from a note's secret material that is
// published on-chain when the note is spent.
type Nullifier [32]byte

// NoteID is the stable identity of a received note: the transaction that
// created it, the shielded pool it lives in, and its output index within that
// transaction.
type NoteID struct {
	TxHash chainhash.Hash
	Pool   PoolType
	Index  uint32
}

// String returns the note ID in txhash:pool:index form.
func (id NoteID) String() string {
	return fmt.Sprintf("%v:%v:%d", id.TxHash, id.Pool, id.Index)
}

// Note is a received shielded output tracked by the store.
type Note struct {
	// NoteID is the note's stable identity.
	NoteID

	// Account is the wallet account the note was received by.
	Account AccountID

	// Value is the note's value in zatoshis.
	Value btcutil.Amount

	// Memo is the note's raw memo field.
	Memo []byte

	// Height is the height of the block the note was mined in.
	Height int32

	// Position is the note commitment's leaf position within its pool's
	// commitment tree.  It is assigned at scan time and never changes.
	Position uint64

	// Commitment is the note commitment appended to the tree.
	Commitment Node

	// Nullifier is the nullifier this note will reveal when spent, as
	// derived by the scanner's viewing key.
	Nullifier Nullifier

	// SpentBy is the hash of the transaction that spent the note, or nil
	// while the note is unspent.
	SpentBy *chainhash.Hash

	// SpentHeight is the height of the block that contained the spend.
	// Only meaningful when SpentBy is non-nil.
	SpentHeight int32
}

// Confirmations returns the number of confirmations the note has at the given
// chain tip height.
func (n *Note) Confirmations(tipHeight int32) int32 {
	return tipHeight - n.Height + 1
}

// BlockMeta identifies a scanned block and carries the chain-linkage data
// used to detect reorganizations.
type BlockMeta struct {
	// Height is the block's height.
	Height int32

	// Hash is the block's hash.
	Hash chainhash.Hash

	// PrevHash is the hash of the block's parent, used to verify that the
	// block extends the store's current chain tip.
	PrevHash chainhash.Hash

	// Time is the block's timestamp.
	Time time.Time
}

// DecryptedNote carries the contents of an output the scanner was able to
// decrypt with one of the wallet's viewing keys.
type DecryptedNote struct {
	// Account is the receiving account.
	Account AccountID

	// Value is the note value in zatoshis.
	Value btcutil.Amount

	// Memo is the raw memo bytes.
	Memo []byte

	// Nullifier is the nullifier the note will reveal when spent.
	Nullifier Nullifier
}

// BlockOutput is one shielded output of a scanned block, in canonical
// in-block order.  Every output carries its on-chain note commitment, which
// must be appended to the pool's tree whether or not the output is ours.
// Note is non-nil only for outputs the scanner decrypted to one of the
// wallet's accounts.
type BlockOutput struct {
	// TxHash is the hash of the transaction containing the output.
	TxHash chainhash.Hash

	// Pool is the shielded pool the output was created in.
	Pool PoolType

	// Index is the output's index within its transaction and pool.
	Index uint32

	// Commitment is the output's note commitment.
	Commitment Node

	// Note holds the decrypted contents if the output is owned by one of
	// the wallet's accounts, and is nil otherwise.
	Note *DecryptedNote
}

// ObservedNullifier is a nullifier revealed by a scanned block, together with
// the transaction that revealed it.
type ObservedNullifier struct {
	// Pool is the shielded pool the nullifier belongs to.
	Pool PoolType

	// Nullifier is the revealed nullifier.
	Nullifier Nullifier

	// SpendingTx is the hash of the transaction that revealed the
	// nullifier.
	SpendingTx chainhash.Hash
}
