// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wnotemgr

import (
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/zecsuite/zecwallet/walletdb"
)

// Balance sums the values of an account's unspent notes.  The total balance
// counts every unspent note; the spendable balance counts only notes with at
// least minConf confirmations at the store's chain tip.  A minConf of zero
// places no confirmation requirement.
func (s *Store) Balance(ns walletdb.ReadBucket, account AccountID,
	minConf int32) (spendable, total btcutil.Amount, err error) {

	tipHeight, _, err := fetchChainTip(ns)
	if err != nil {
		if IsError(err, ErrNoExist) {
			return 0, 0, nil
		}
		return 0, 0, err
	}

	err = forEachNote(ns, func(n *Note) error {
		if n.Account != account || n.SpentBy != nil {
			return nil
		}
		total += n.Value
		if n.Confirmations(tipHeight) >= minConf {
			spendable += n.Value
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return spendable, total, nil
}

// SelectNotes chooses unspent notes of an account whose combined value covers
// the target.  Only notes with at least minConf confirmations and a live
// witness at the chain tip are eligible.  Pools are drawn from in
// poolPreference order (the canonical pool order when nil), and within each
// pool notes are taken largest value first, ties broken by earliest tree
// position, to keep the input count and the selection deterministic.
//
// If the eligible notes cannot cover the target, SelectNotes fails with an
// Error of code ErrInsufficientFunds wrapping an InsufficientFundsError that
// reports the shortfall.  Selection never mutates the store; reserving the
// returned notes against concurrent spends is the caller's concern.
func (s *Store) SelectNotes(ns walletdb.ReadBucket, account AccountID,
	target btcutil.Amount, minConf int32,
	poolPreference []PoolType) ([]*Note, error) {

	if target <= 0 {
		return nil, storeError(ErrData, fmt.Sprintf(
			"invalid selection target %v", target), nil)
	}
	if poolPreference == nil {
		poolPreference = pools
	}

	var (
		eligible  = make(map[PoolType][]*Note)
		available btcutil.Amount
	)
	tipHeight, _, err := fetchChainTip(ns)
	if err != nil && !IsError(err, ErrNoExist) {
		return nil, err
	}
	if err == nil {
		witnesses := ns.NestedReadBucket(bucketWitnesses)
		err = forEachNote(ns, func(n *Note) error {
			if n.Account != account || n.SpentBy != nil {
				return nil
			}
			if n.Confirmations(tipHeight) < minConf {
				return nil
			}
			wk := keyWitness(tipHeight, keyNote(&n.NoteID))
			if witnesses.Get(wk) == nil {
				return nil
			}
			note := *n
			eligible[n.Pool] = append(eligible[n.Pool], &note)
			available += n.Value
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if available < target {
		return nil, storeError(ErrInsufficientFunds, fmt.Sprintf(
			"account %d cannot cover %v", account, target),
			InsufficientFundsError{
				Available: available,
				Needed:    target,
			})
	}

	var (
		selected []*Note
		sum      btcutil.Amount
	)
	for _, pool := range poolPreference {
		notes := eligible[pool]
		sort.Slice(notes, func(i, j int) bool {
			if notes[i].Value != notes[j].Value {
				return notes[i].Value > notes[j].Value
			}
			return notes[i].Position < notes[j].Position
		})
		for _, n := range notes {
			if sum >= target {
				return selected, nil
			}
			selected = append(selected, n)
			sum += n.Value
		}
	}
	if sum < target {
		// Eligible notes exist outside the preferred pools.
		return nil, storeError(ErrInsufficientFunds, fmt.Sprintf(
			"account %d cannot cover %v from preferred pools",
			account, target), InsufficientFundsError{
			Available: sum,
			Needed:    target,
		})
	}
	return selected, nil
}

// NoteWitness returns the authentication path proving a note's commitment is
// part of its pool's tree as of the given anchor height.  Fails with
// ErrWitnessUnavailable when no witness snapshot is retained at that height,
// either because the height is beyond the rewind horizon or because the note
// did not yet exist there.
func (s *Store) NoteWitness(ns walletdb.ReadBucket, id *NoteID,
	anchorHeight int32) (*AuthPath, error) {

	w, err := fetchWitness(ns, anchorHeight, keyNote(id))
	if err != nil {
		return nil, err
	}
	return w.AuthPath()
}

// Anchor returns the root of a pool's commitment tree as of the given height.
// Transactions spending notes witnessed at that height reference this root.
func (s *Store) Anchor(ns walletdb.ReadBucket, pool PoolType,
	height int32) (Node, error) {

	f, err := fetchCheckpoint(ns, height, pool)
	if err != nil {
		return Node{}, err
	}
	return f.Root(), nil
}

// ForEachNote invokes f for every tracked note, in canonical key order.
func (s *Store) ForEachNote(ns walletdb.ReadBucket,
	f func(*Note) error) error {

	return forEachNote(ns, f)
}

// Note returns the tracked note with the given ID, or an Error with code
// ErrNoExist.
func (s *Store) Note(ns walletdb.ReadBucket, id *NoteID) (*Note, error) {
	return fetchNoteRecord(ns, id)
}
