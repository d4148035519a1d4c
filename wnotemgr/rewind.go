// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wnotemgr

import (
	"fmt"

	"github.com/zecsuite/zecwallet/walletdb"
)

// RewindTo rolls the store back so that the block at the given height is the
// chain tip again, as if no later block had ever been applied: notes received
// above the height are deleted along with their nullifier index entries,
// spends recorded above the height are reversed, and checkpoints, witness
// snapshots, unmatched nullifiers, and block records above the height are
// removed.  Witnesses need no recomputation since the snapshots taken at the
// target height become current again.
//
// Rewinding to the tip or beyond is a no-op.  A target more than the
// configured maximum rewind depth behind the tip fails with an Error of code
// ErrRewindExceedsLimit wrapping a RewindLimitError, and a target the store
// holds no checkpoint for fails with ErrNoSuchCheckpoint.  Run within a
// single database transaction, the rollback is all-or-nothing.
func (s *Store) RewindTo(ns walletdb.ReadWriteBucket, height int32) error {
	tipHeight, _, err := fetchChainTip(ns)
	if err != nil {
		return err
	}
	if height >= tipHeight {
		return nil
	}

	if tipHeight-height > s.maxRewindDepth {
		limitErr := RewindLimitError{
			RequestedHeight: height,
			MinHeight:       tipHeight - s.maxRewindDepth,
		}
		return storeError(ErrRewindExceedsLimit, fmt.Sprintf(
			"rewind from %d to %d exceeds the maximum depth of "+
				"%d blocks", tipHeight, height,
			s.maxRewindDepth), limitErr)
	}

	target, err := fetchBlockRecord(ns, height)
	if err != nil {
		if IsError(err, ErrNoExist) {
			return storeError(ErrNoSuchCheckpoint, fmt.Sprintf(
				"no block was scanned at height %d", height),
				err)
		}
		return err
	}
	for _, pool := range pools {
		if _, err := fetchCheckpoint(ns, height, pool); err != nil {
			return err
		}
	}

	// Drop notes born above the target before reversing spends, so a note
	// both received and spent above the target is simply deleted.
	var drop []Note
	err = forEachNote(ns, func(n *Note) error {
		if n.Height > height {
			drop = append(drop, *n)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for i := range drop {
		n := &drop[i]
		err := deleteNullifierIndex(ns, n.Pool, &n.Nullifier)
		if err != nil {
			return err
		}
		if err := deleteNoteRecord(ns, &n.NoteID); err != nil {
			return err
		}
	}

	restored, err := s.MarkNotesUnspentFrom(ns, height+1)
	if err != nil {
		return err
	}

	if err := deleteUnmatchedNullifiersAbove(ns, height); err != nil {
		return err
	}
	if err := deleteWitnessesAbove(ns, height); err != nil {
		return err
	}
	if err := deleteCheckpointsAbove(ns, height); err != nil {
		return err
	}
	if err := deleteBlocksAbove(ns, height); err != nil {
		return err
	}
	if err := putChainTip(ns, height, &target.Hash); err != nil {
		return err
	}

	log.Infof("Rewound chain tip from %d to %d: dropped %d notes, "+
		"restored %d spends", tipHeight, height, len(drop), restored)
	return nil
}

// MarkNotesUnspentFrom reverses every spend recorded at or above the given
// height, restoring the affected notes to unspent.  It returns the number of
// notes restored.  The notes' witness snapshots are left alone; the caller is
// expected to be rolling back the spending blocks as well.
func (s *Store) MarkNotesUnspentFrom(ns walletdb.ReadWriteBucket,
	height int32) (int, error) {

	var spent []Note
	err := forEachNote(ns, func(n *Note) error {
		if n.SpentBy != nil && n.SpentHeight >= height {
			spent = append(spent, *n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for i := range spent {
		n := &spent[i]
		n.SpentBy = nil
		n.SpentHeight = 0
		if err := putNoteRecord(ns, n); err != nil {
			return 0, err
		}
	}
	return len(spent), nil
}
