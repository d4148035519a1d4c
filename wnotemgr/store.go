// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wnotemgr

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/zeebo/blake3"
	"github.com/zecsuite/zecwallet/walletdb"
	"github.com/zecsuite/zecwallet/walletdb/migration"
)

// DefaultMaxRewindDepth is the default number of blocks behind the chain tip
// the store retains enough state to rewind to.
const DefaultMaxRewindDepth = 100

// Options holds the tunable parameters of a note store.
type Options struct {
	// MaxRewindDepth is the number of blocks behind the chain tip that
	// checkpoints and witness snapshots are retained for.  Rewinds deeper
	// than this fail, and the corresponding blocks can never be rolled
	// back.  Zero selects DefaultMaxRewindDepth.
	MaxRewindDepth int32

	// Seed is the wallet seed.  It is only required when a pending schema
	// migration needs it, or to verify the database belongs to this seed.
	// It may be nil otherwise.
	Seed []byte
}

// Store implements the persistent tracking of shielded notes: received notes
// and their nullifiers, per-pool commitment tree frontiers, and per-note
// incremental witnesses, all keyed by scanned block height so that chain
// reorganizations can be rolled back.
//
// All methods take the store's namespace bucket from a caller-managed
// database transaction, so multiple store operations can be made atomic with
// operations of other stores sharing the same database.  Writes assume a
// single logical writer.
type Store struct {
	maxRewindDepth int32
}

// Open opens the note store within the given database namespace, applying any
// outstanding schema migrations first.  If a pending migration requires the
// wallet seed and opts.Seed is nil, Open fails with an Error of code
// ErrNeedsUpgrade wrapping migration.ErrBlocked; the caller should retry with
// the seed supplied.
func Open(db walletdb.DB, namespaceKey []byte, opts *Options) (*Store, error) {
	if opts == nil {
		opts = &Options{}
	}
	maxRewindDepth := opts.MaxRewindDepth
	if maxRewindDepth == 0 {
		maxRewindDepth = DefaultMaxRewindDepth
	}
	if maxRewindDepth < 0 {
		return nil, storeError(ErrData, fmt.Sprintf(
			"invalid rewind depth %d", maxRewindDepth), nil)
	}

	cfg := &migration.Config{Seed: opts.Seed}
	err := migration.Upgrade(db, namespaceKey, dbMigrations(cfg), cfg)
	if err != nil {
		if errors.Is(err, migration.ErrBlocked) {
			return nil, storeError(ErrNeedsUpgrade,
				"schema upgrade is blocked", err)
		}
		return nil, storeError(ErrDatabase, "schema upgrade failed",
			err)
	}

	// When the caller supplies the seed, verify the database was created
	// for it.
	if opts.Seed != nil {
		h := blake3.NewDeriveKey(seedTagContext)
		h.Write(opts.Seed)
		want := h.Sum(nil)

		err := walletdb.View(db, func(tx walletdb.ReadTx) error {
			tag := tx.ReadBucket(namespaceKey).Get(rootSeedTag)
			if !bytes.Equal(tag, want) {
				return storeError(ErrData,
					"database does not belong to the "+
						"supplied seed", nil)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return &Store{maxRewindDepth: maxRewindDepth}, nil
}

// ChainTip returns the height and hash of the last block applied to the
// store.  Returns an Error with code ErrNoExist before any block has been
// inserted.
func (s *Store) ChainTip(ns walletdb.ReadBucket) (int32, *chainhash.Hash,
	error) {

	return fetchChainTip(ns)
}

// CreateAccount allocates the next sequential account identifier and records
// the account under it.
func (s *Store) CreateAccount(ns walletdb.ReadWriteBucket, name string) (
	AccountID, error) {

	account := fetchNextAccountID(ns)
	if err := putAccountRecord(ns, account, name); err != nil {
		return 0, err
	}
	if err := putNextAccountID(ns, account+1); err != nil {
		return 0, err
	}

	log.Infof("Created account %d (%q)", account, name)
	return account, nil
}

// AccountName returns the name an account was created with.
func (s *Store) AccountName(ns walletdb.ReadBucket, account AccountID) (
	string, error) {

	return fetchAccountRecord(ns, account)
}

// ForEachAccount invokes f for every account in identifier order.
func (s *Store) ForEachAccount(ns walletdb.ReadBucket,
	f func(AccountID, string) error) error {

	return forEachAccount(ns, f)
}

// activeWitness pairs a note with its in-memory witness while a block's
// commitments are being absorbed.
type activeWitness struct {
	id      NoteID
	witness *Witness
}

// InsertBlock applies one scanned block to the store: it records every output
// the scanner decrypted as a received note, appends every output's commitment
// to its pool's tree, advances every tracked witness, marks notes spent for
// every matched nullifier, and checkpoints the resulting tree state at the
// block's height.  The whole block either applies or, via the enclosing
// database transaction, does not.
//
// Blocks must be applied strictly in height order.  A block whose height does
// not directly follow the chain tip fails with ErrBlockDiscontinuity, and one
// whose parent hash does not link to the tip fails with ErrBlockMismatch;
// both indicate the scanner must rewind first.  Re-submitting a block the
// store has already applied is a no-op as long as its hash matches the
// recorded one.
func (s *Store) InsertBlock(ns walletdb.ReadWriteBucket, block *BlockMeta,
	outputs []BlockOutput, spends []ObservedNullifier) error {

	firstBlock := false
	tipHeight, tipHash, err := fetchChainTip(ns)
	if err != nil {
		if !IsError(err, ErrNoExist) {
			return err
		}
		firstBlock = true
	}

	if !firstBlock {
		if block.Height <= tipHeight {
			rec, err := fetchBlockRecord(ns, block.Height)
			if err != nil {
				return err
			}
			if rec.Hash == block.Hash {
				log.Debugf("Block %d (%v) already applied",
					block.Height, block.Hash)
				return nil
			}
			return storeError(ErrBlockMismatch, fmt.Sprintf(
				"block %v at height %d conflicts with "+
					"recorded block %v", block.Hash,
				block.Height, rec.Hash), nil)
		}
		if block.Height != tipHeight+1 {
			return storeError(ErrBlockDiscontinuity, fmt.Sprintf(
				"block height %d does not follow chain tip "+
					"%d", block.Height, tipHeight), nil)
		}
		if block.PrevHash != *tipHash {
			return storeError(ErrBlockMismatch, fmt.Sprintf(
				"block %v at height %d does not extend chain "+
					"tip %v", block.Hash, block.Height,
				*tipHash), nil)
		}
	}

	for i := range outputs {
		if !outputs[i].Pool.valid() {
			return storeError(ErrData, fmt.Sprintf(
				"output %d has unsupported pool %d", i,
				uint8(outputs[i].Pool)), nil)
		}
	}

	// Absorb the block's commitments one pool at a time.  Witnesses of
	// previously received notes are advanced with every commitment, owned
	// or not, and new witnesses are created at the position each owned
	// note's commitment was appended at.
	for _, pool := range pools {
		frontier := NewFrontier()
		if !firstBlock {
			frontier, err = fetchCheckpoint(ns, tipHeight, pool)
			if err != nil {
				return err
			}
		}

		var witnesses []activeWitness
		if !firstBlock {
			err = forEachWitnessAtHeight(ns, tipHeight,
				func(id *NoteID, w *Witness) error {
					if id.Pool != pool {
						return nil
					}
					witnesses = append(witnesses,
						activeWitness{*id, w})
					return nil
				},
			)
			if err != nil {
				return err
			}
		}

		for i := range outputs {
			out := &outputs[i]
			if out.Pool != pool {
				continue
			}

			for _, aw := range witnesses {
				err := aw.witness.Append(out.Commitment)
				if err != nil {
					return err
				}
			}

			position := frontier.Size()
			if err := frontier.Append(out.Commitment); err != nil {
				return err
			}

			if out.Note == nil {
				continue
			}

			id := NoteID{
				TxHash: out.TxHash,
				Pool:   out.Pool,
				Index:  out.Index,
			}
			if existsNoteRecord(ns, &id) != nil {
				return storeError(ErrDuplicateNote,
					fmt.Sprintf("note %v was already "+
						"recorded", id), nil)
			}

			note := &Note{
				NoteID:     id,
				Account:    out.Note.Account,
				Value:      out.Note.Value,
				Memo:       out.Note.Memo,
				Height:     block.Height,
				Position:   position,
				Commitment: out.Commitment,
				Nullifier:  out.Note.Nullifier,
			}
			if err := putNoteRecord(ns, note); err != nil {
				return err
			}
			err = putNullifierIndex(ns, pool, &note.Nullifier,
				keyNote(&id))
			if err != nil {
				return err
			}

			witnesses = append(witnesses, activeWitness{
				id:      id,
				witness: NewWitness(frontier),
			})

			log.Debugf("Received note %v (%v) at height %d "+
				"position %d", id, note.Value, block.Height,
				position)
		}

		err = putCheckpoint(ns, block.Height, pool, frontier)
		if err != nil {
			return err
		}
		for _, aw := range witnesses {
			err = putWitness(ns, block.Height, keyNote(&aw.id),
				aw.witness)
			if err != nil {
				return err
			}
		}
	}

	// Match the block's revealed nullifiers against tracked notes.  A
	// nullifier that matches nothing is recorded so its block can still be
	// rolled back cleanly, and so late-discovered notes can be checked
	// against past spends.
	for i := range spends {
		sp := &spends[i]
		if !sp.Pool.valid() {
			return storeError(ErrData, fmt.Sprintf(
				"spend %d has unsupported pool %d", i,
				uint8(sp.Pool)), nil)
		}

		id, err := fetchNullifierNote(ns, sp.Pool, &sp.Nullifier)
		if err != nil {
			if !IsError(err, ErrNoExist) {
				return err
			}
			err = putUnmatchedNullifier(ns, sp.Pool, &sp.Nullifier,
				block.Height, &sp.SpendingTx)
			if err != nil {
				return err
			}
			continue
		}

		note, err := fetchNoteRecord(ns, id)
		if err != nil {
			return err
		}
		if note.SpentBy != nil {
			if *note.SpentBy == sp.SpendingTx {
				continue
			}
			return storeError(ErrConflictingSpend, fmt.Sprintf(
				"note %v is already spent by %v, cannot be "+
					"spent again by %v", id, *note.SpentBy,
				sp.SpendingTx), nil)
		}

		spendingTx := sp.SpendingTx
		note.SpentBy = &spendingTx
		note.SpentHeight = block.Height
		if err := putNoteRecord(ns, note); err != nil {
			return err
		}

		log.Debugf("Note %v spent by %v at height %d", id,
			sp.SpendingTx, block.Height)
	}

	if err := putBlockRecord(ns, block); err != nil {
		return err
	}
	if err := putChainTip(ns, block.Height, &block.Hash); err != nil {
		return err
	}

	if err := s.pruneBeyondHorizon(ns, block.Height); err != nil {
		return err
	}

	log.Debugf("Applied block %d (%v): %d outputs, %d spends",
		block.Height, block.Hash, len(outputs), len(spends))
	return nil
}

// pruneBeyondHorizon discards state that can no longer be reached by any
// permitted rewind: checkpoints, witness snapshots, and block records below
// the rewind horizon, plus every remaining snapshot of notes whose spend has
// itself passed beyond the horizon.
func (s *Store) pruneBeyondHorizon(ns walletdb.ReadWriteBucket,
	tipHeight int32) error {

	horizon := tipHeight - s.maxRewindDepth
	if horizon <= 0 {
		return nil
	}

	if err := deleteCheckpointsBelow(ns, horizon); err != nil {
		return err
	}
	if err := deleteWitnessesBelow(ns, horizon); err != nil {
		return err
	}
	if err := deleteBlocksBelow(ns, horizon); err != nil {
		return err
	}

	// A note spent below the horizon can never become unspent again, so
	// its witness need not be carried forward.
	var spent []NoteID
	err := forEachNote(ns, func(n *Note) error {
		if n.SpentBy != nil && n.SpentHeight < horizon {
			spent = append(spent, n.NoteID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for i := range spent {
		err := deleteWitnessSnapshots(ns, keyNote(&spent[i]), tipHeight)
		if err != nil {
			return err
		}
	}

	return nil
}
