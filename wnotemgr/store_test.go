// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wnotemgr

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"
	"github.com/zecsuite/zecwallet/walletdb"
	_ "github.com/zecsuite/zecwallet/walletdb/bdb"
)

var (
	testNamespaceKey = []byte("wnotemgr")
	testSeed         = []byte{
		0x2a, 0x64, 0x3f, 0x0e, 0x81, 0x55, 0x17, 0xc9,
		0x90, 0x21, 0xd3, 0x4e, 0x6c, 0xab, 0xf8, 0x03,
	}
)

func testDB(t *testing.T) walletdb.DB {
	t.Helper()

	db, err := walletdb.Create(
		"bdb", filepath.Join(t.TempDir(), "notes.db"), 10*time.Second,
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})
	return db
}

func testStore(t *testing.T, opts *Options) (walletdb.DB, *Store) {
	t.Helper()

	if opts == nil {
		opts = &Options{}
	}
	if opts.Seed == nil {
		opts.Seed = testSeed
	}
	db := testDB(t)
	s, err := Open(db, testNamespaceKey, opts)
	require.NoError(t, err)
	return db, s
}

func update(t *testing.T, db walletdb.DB,
	f func(walletdb.ReadWriteBucket) error) {

	t.Helper()
	require.NoError(t, updateErr(db, f))
}

func updateErr(db walletdb.DB,
	f func(walletdb.ReadWriteBucket) error) error {

	return walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		return f(tx.ReadWriteBucket(testNamespaceKey))
	})
}

func view(t *testing.T, db walletdb.DB, f func(walletdb.ReadBucket) error) {
	t.Helper()
	err := walletdb.View(db, func(tx walletdb.ReadTx) error {
		return f(tx.ReadBucket(testNamespaceKey))
	})
	require.NoError(t, err)
}

// testBlock builds deterministic block metadata linking to prev, which may be
// nil for the first scanned block.
func testBlock(height int32, prev *BlockMeta) *BlockMeta {
	b := &BlockMeta{
		Height: height,
		Hash: chainhash.HashH([]byte{
			'b', 'l', 'k', byte(height >> 8), byte(height),
		}),
		Time: time.Unix(1700000000+int64(height)*75, 0),
	}
	if prev != nil {
		b.PrevHash = prev.Hash
	}
	return b
}

// testTxHash builds a deterministic transaction hash.
func testTxHash(tag byte) chainhash.Hash {
	return chainhash.HashH([]byte{'t', 'x', tag})
}

// ownedOutput builds a block output decrypted to the given account.
func ownedOutput(txTag byte, pool PoolType, index uint32, account AccountID,
	value btcutil.Amount, leaf uint64) BlockOutput {

	return BlockOutput{
		TxHash:     testTxHash(txTag),
		Pool:       pool,
		Index:      index,
		Commitment: testLeaf(leaf),
		Note: &DecryptedNote{
			Account:   account,
			Value:     value,
			Nullifier: Nullifier(testLeaf(1000 + leaf)),
		},
	}
}

// foreignOutput builds a block output the scanner could not decrypt.
func foreignOutput(txTag byte, pool PoolType, index uint32,
	leaf uint64) BlockOutput {

	return BlockOutput{
		TxHash:     testTxHash(txTag),
		Pool:       pool,
		Index:      index,
		Commitment: testLeaf(leaf),
	}
}

func applyBlock(db walletdb.DB, s *Store, block *BlockMeta,
	outputs []BlockOutput, spends []ObservedNullifier) error {

	return updateErr(db, func(ns walletdb.ReadWriteBucket) error {
		return s.InsertBlock(ns, block, outputs, spends)
	})
}

// snapshot walks the store's namespace and returns every key/value pair,
// bucket paths included, for bit-for-bit state comparisons.
func snapshot(t *testing.T, db walletdb.DB) map[string]string {
	t.Helper()

	var dump func(b walletdb.ReadBucket, prefix string, m map[string]string)
	dump = func(b walletdb.ReadBucket, prefix string, m map[string]string) {
		err := b.ForEach(func(k, v []byte) error {
			if v == nil {
				dump(b.NestedReadBucket(k),
					prefix+string(k)+"/", m)
				return nil
			}
			m[prefix+string(k)] = string(v)
			return nil
		})
		require.NoError(t, err)
	}

	m := make(map[string]string)
	view(t, db, func(ns walletdb.ReadBucket) error {
		dump(ns, "", m)
		return nil
	})
	return m
}

func TestOpenFreshStoreRequiresSeed(t *testing.T) {
	t.Parallel()

	db := testDB(t)
	_, err := Open(db, testNamespaceKey, nil)
	require.True(t, IsError(err, ErrNeedsUpgrade), "got %v", err)

	// Supplying the seed unblocks the pending migration, after which the
	// store opens without it.
	_, err = Open(db, testNamespaceKey, &Options{Seed: testSeed})
	require.NoError(t, err)
	_, err = Open(db, testNamespaceKey, nil)
	require.NoError(t, err)
}

func TestOpenRejectsForeignSeed(t *testing.T) {
	t.Parallel()

	db := testDB(t)
	_, err := Open(db, testNamespaceKey, &Options{Seed: testSeed})
	require.NoError(t, err)

	_, err = Open(db, testNamespaceKey, &Options{
		Seed: []byte("a different seed entirely"),
	})
	require.True(t, IsError(err, ErrData), "got %v", err)
}

// TestReceiveSpendRewind walks the note lifecycle end to end: a note received
// at height 100 and spent at height 101 contributes nothing to the balance,
// and rewinding the spending block restores it.
func TestReceiveSpendRewind(t *testing.T) {
	t.Parallel()

	db, s := testStore(t, nil)

	var account AccountID
	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		var err error
		account, err = s.CreateAccount(ns, "default")
		return err
	})

	out := ownedOutput(1, PoolSapling, 0, account, 50, 0)
	b100 := testBlock(100, nil)
	require.NoError(t, applyBlock(db, s, b100,
		[]BlockOutput{out}, nil))

	view(t, db, func(ns walletdb.ReadBucket) error {
		spendable, total, err := s.Balance(ns, account, 0)
		require.NoError(t, err)
		require.Equal(t, btcutil.Amount(50), spendable)
		require.Equal(t, btcutil.Amount(50), total)
		return nil
	})

	spendTx := testTxHash(99)
	b101 := testBlock(101, b100)
	require.NoError(t, applyBlock(db, s, b101, nil, []ObservedNullifier{{
		Pool:       PoolSapling,
		Nullifier:  out.Note.Nullifier,
		SpendingTx: spendTx,
	}}))

	view(t, db, func(ns walletdb.ReadBucket) error {
		spendable, total, err := s.Balance(ns, account, 0)
		require.NoError(t, err)
		require.Zero(t, spendable)
		require.Zero(t, total)

		id := NoteID{TxHash: out.TxHash, Pool: out.Pool, Index: 0}
		note, err := s.Note(ns, &id)
		require.NoError(t, err)
		require.NotNil(t, note.SpentBy)
		require.Equal(t, spendTx, *note.SpentBy)
		require.Equal(t, int32(101), note.SpentHeight)
		return nil
	})

	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		return s.RewindTo(ns, 100)
	})

	view(t, db, func(ns walletdb.ReadBucket) error {
		spendable, _, err := s.Balance(ns, account, 0)
		require.NoError(t, err)
		require.Equal(t, btcutil.Amount(50), spendable)

		tipHeight, tipHash, err := s.ChainTip(ns)
		require.NoError(t, err)
		require.Equal(t, int32(100), tipHeight)
		require.Equal(t, b100.Hash, *tipHash)
		return nil
	})
}

// TestRewindIsExactInverse applies blocks past a snapshot point and verifies
// that rewinding restores the identical persisted state, key for key.
func TestRewindIsExactInverse(t *testing.T) {
	t.Parallel()

	db, s := testStore(t, nil)

	out1 := ownedOutput(1, PoolSapling, 0, 0, 30, 0)
	out2 := ownedOutput(2, PoolOrchard, 0, 0, 20, 1)
	b100 := testBlock(100, nil)
	b101 := testBlock(101, b100)
	require.NoError(t, applyBlock(db, s, b100, []BlockOutput{out1}, nil))
	require.NoError(t, applyBlock(db, s, b101, []BlockOutput{out2}, nil))

	before := snapshot(t, db)

	// Two further blocks: one spending a note and recording a foreign
	// nullifier, one receiving another note.
	b102 := testBlock(102, b101)
	require.NoError(t, applyBlock(db, s, b102,
		[]BlockOutput{foreignOutput(3, PoolSapling, 0, 2)},
		[]ObservedNullifier{
			{
				Pool:       PoolSapling,
				Nullifier:  out1.Note.Nullifier,
				SpendingTx: testTxHash(90),
			},
			{
				Pool:       PoolOrchard,
				Nullifier:  Nullifier(testLeaf(5000)),
				SpendingTx: testTxHash(91),
			},
		}))
	b103 := testBlock(103, b102)
	require.NoError(t, applyBlock(db, s, b103,
		[]BlockOutput{ownedOutput(4, PoolOrchard, 1, 0, 70, 3)}, nil))

	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		return s.RewindTo(ns, 101)
	})

	after := snapshot(t, db)
	require.Equal(t, before, after, "rollback was not an exact inverse:\n%v",
		spew.Sdump(after))
}

// TestInsertBlockIdempotent re-applies the tip block and verifies the store
// is left untouched.
func TestInsertBlockIdempotent(t *testing.T) {
	t.Parallel()

	db, s := testStore(t, nil)

	b100 := testBlock(100, nil)
	outputs := []BlockOutput{ownedOutput(1, PoolSapling, 0, 0, 50, 0)}
	require.NoError(t, applyBlock(db, s, b100, outputs, nil))

	before := snapshot(t, db)
	require.NoError(t, applyBlock(db, s, b100, outputs, nil))
	require.Equal(t, before, snapshot(t, db))
}

func TestInsertBlockContinuity(t *testing.T) {
	t.Parallel()

	db, s := testStore(t, nil)

	b100 := testBlock(100, nil)
	require.NoError(t, applyBlock(db, s, b100, nil, nil))

	// Height gap.
	err := applyBlock(db, s, testBlock(102, b100), nil, nil)
	require.True(t, IsError(err, ErrBlockDiscontinuity), "got %v", err)

	// Correct height, broken parent linkage.
	bad := testBlock(101, nil)
	bad.PrevHash = chainhash.HashH([]byte("not the tip"))
	err = applyBlock(db, s, bad, nil, nil)
	require.True(t, IsError(err, ErrBlockMismatch), "got %v", err)

	// Re-submitted height with a different hash.
	conflicting := testBlock(100, nil)
	conflicting.Hash = chainhash.HashH([]byte("other branch"))
	err = applyBlock(db, s, conflicting, nil, nil)
	require.True(t, IsError(err, ErrBlockMismatch), "got %v", err)
}

func TestInsertBlockDuplicateNote(t *testing.T) {
	t.Parallel()

	db, s := testStore(t, nil)

	out := ownedOutput(1, PoolSapling, 0, 0, 50, 0)
	b100 := testBlock(100, nil)
	require.NoError(t, applyBlock(db, s, b100, []BlockOutput{out}, nil))

	// The same (transaction, pool, index) appearing in a later block is an
	// upstream corruption signal, not something to merge.
	err := applyBlock(db, s, testBlock(101, b100), []BlockOutput{out}, nil)
	require.True(t, IsError(err, ErrDuplicateNote), "got %v", err)
}

func TestInsertBlockConflictingSpend(t *testing.T) {
	t.Parallel()

	db, s := testStore(t, nil)

	out := ownedOutput(1, PoolSapling, 0, 0, 50, 0)
	b100 := testBlock(100, nil)
	require.NoError(t, applyBlock(db, s, b100, []BlockOutput{out}, nil))

	b101 := testBlock(101, b100)
	spend := ObservedNullifier{
		Pool:       PoolSapling,
		Nullifier:  out.Note.Nullifier,
		SpendingTx: testTxHash(90),
	}
	require.NoError(t, applyBlock(db, s, b101, nil,
		[]ObservedNullifier{spend}))

	spend.SpendingTx = testTxHash(91)
	err := applyBlock(db, s, testBlock(102, b101), nil,
		[]ObservedNullifier{spend})
	require.True(t, IsError(err, ErrConflictingSpend), "got %v", err)
}

func TestUnmatchedNullifier(t *testing.T) {
	t.Parallel()

	db, s := testStore(t, nil)

	b100 := testBlock(100, nil)
	require.NoError(t, applyBlock(db, s, b100, nil, nil))

	nf := Nullifier(testLeaf(5000))
	spendTx := testTxHash(90)
	b101 := testBlock(101, b100)
	require.NoError(t, applyBlock(db, s, b101, nil, []ObservedNullifier{{
		Pool:       PoolSapling,
		Nullifier:  nf,
		SpendingTx: spendTx,
	}}))

	view(t, db, func(ns walletdb.ReadBucket) error {
		height, tx, err := fetchUnmatchedNullifier(ns, PoolSapling, &nf)
		require.NoError(t, err)
		require.Equal(t, int32(101), height)
		require.Equal(t, spendTx, *tx)
		return nil
	})

	// Rolling back the revealing block forgets the nullifier again.
	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		return s.RewindTo(ns, 100)
	})
	view(t, db, func(ns walletdb.ReadBucket) error {
		_, _, err := fetchUnmatchedNullifier(ns, PoolSapling, &nf)
		require.True(t, IsError(err, ErrNoExist), "got %v", err)
		return nil
	})
}

func TestRewindExceedsLimit(t *testing.T) {
	t.Parallel()

	db, s := testStore(t, &Options{MaxRewindDepth: 5})

	prev := testBlock(100, nil)
	require.NoError(t, applyBlock(db, s, prev, nil, nil))
	for height := int32(101); height <= 110; height++ {
		block := testBlock(height, prev)
		require.NoError(t, applyBlock(db, s, block, nil, nil))
		prev = block
	}

	before := snapshot(t, db)
	err := updateErr(db, func(ns walletdb.ReadWriteBucket) error {
		return s.RewindTo(ns, 103)
	})
	require.True(t, IsError(err, ErrRewindExceedsLimit), "got %v", err)

	var limitErr RewindLimitError
	require.True(t, errors.As(err, &limitErr))
	require.Equal(t, int32(103), limitErr.RequestedHeight)
	require.Equal(t, int32(105), limitErr.MinHeight)

	// A failed rewind leaves the store untouched.
	require.Equal(t, before, snapshot(t, db))

	// Within the limit the rewind goes through.
	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		return s.RewindTo(ns, 106)
	})
}

func TestRewindBeforeFirstScannedBlock(t *testing.T) {
	t.Parallel()

	db, s := testStore(t, nil)

	b100 := testBlock(100, nil)
	require.NoError(t, applyBlock(db, s, b100, nil, nil))
	require.NoError(t, applyBlock(db, s, testBlock(101, b100), nil, nil))

	err := updateErr(db, func(ns walletdb.ReadWriteBucket) error {
		return s.RewindTo(ns, 99)
	})
	require.True(t, IsError(err, ErrNoSuchCheckpoint), "got %v", err)
}

// TestSelectNotesConfirmations covers the confirmation cutoff: with the tip
// at 101, a note from height 100 has two confirmations while a note from
// height 101 has one.
func TestSelectNotesConfirmations(t *testing.T) {
	t.Parallel()

	db, s := testStore(t, nil)

	out30 := ownedOutput(1, PoolSapling, 0, 0, 30, 0)
	out20 := ownedOutput(2, PoolSapling, 0, 0, 20, 1)
	b100 := testBlock(100, nil)
	require.NoError(t, applyBlock(db, s, b100, []BlockOutput{out30}, nil))
	require.NoError(t, applyBlock(db, s, testBlock(101, b100),
		[]BlockOutput{out20}, nil))

	view(t, db, func(ns walletdb.ReadBucket) error {
		selected, err := s.SelectNotes(ns, 0, 25, 2, nil)
		require.NoError(t, err)
		require.Len(t, selected, 1)
		require.Equal(t, out30.TxHash, selected[0].TxHash)
		require.Equal(t, btcutil.Amount(30), selected[0].Value)

		// The height-101 note is not confirmed deep enough to help.
		_, err = s.SelectNotes(ns, 0, 40, 2, nil)
		require.True(t, IsError(err, ErrInsufficientFunds),
			"got %v", err)

		var shortErr InsufficientFundsError
		require.True(t, errors.As(err, &shortErr))
		require.Equal(t, btcutil.Amount(30), shortErr.Available)
		require.Equal(t, btcutil.Amount(40), shortErr.Needed)

		// Relaxing the confirmation requirement makes both eligible.
		selected, err = s.SelectNotes(ns, 0, 40, 1, nil)
		require.NoError(t, err)
		require.Len(t, selected, 2)
		return nil
	})
}

func TestSelectNotesPolicy(t *testing.T) {
	t.Parallel()

	db, s := testStore(t, nil)

	outputs := []BlockOutput{
		ownedOutput(1, PoolSapling, 0, 0, 10, 0),
		ownedOutput(2, PoolSapling, 0, 0, 40, 1),
		ownedOutput(3, PoolOrchard, 0, 0, 25, 2),
		ownedOutput(4, PoolOrchard, 0, 0, 25, 3),
	}
	b100 := testBlock(100, nil)
	require.NoError(t, applyBlock(db, s, b100, outputs, nil))

	// Spend the 40-zatoshi note so selection must look past it.
	b101 := testBlock(101, b100)
	require.NoError(t, applyBlock(db, s, b101, nil, []ObservedNullifier{{
		Pool:       PoolSapling,
		Nullifier:  outputs[1].Note.Nullifier,
		SpendingTx: testTxHash(90),
	}}))

	view(t, db, func(ns walletdb.ReadBucket) error {
		// Spent notes are never selected: covering 30 needs both
		// orchard notes or orchard+sapling depending on preference.
		selected, err := s.SelectNotes(ns, 0, 30, 0, []PoolType{
			PoolOrchard, PoolSapling,
		})
		require.NoError(t, err)
		require.Len(t, selected, 2)
		for _, n := range selected {
			require.Equal(t, PoolOrchard, n.Pool)
			require.Nil(t, n.SpentBy)
		}

		// Equal-value ties break toward the earliest tree position.
		require.Less(t, selected[0].Position, selected[1].Position)

		// A target equal to the sum of every eligible note selects
		// them all.
		selected, err = s.SelectNotes(ns, 0, 60, 0, nil)
		require.NoError(t, err)
		require.Len(t, selected, 3)

		_, err = s.SelectNotes(ns, 0, 61, 0, nil)
		require.True(t, IsError(err, ErrInsufficientFunds),
			"got %v", err)
		return nil
	})
}

// TestWitnessAgainstAnchor retrieves a note's authentication path at an
// anchor height and verifies it against the pool root reported for the same
// height.
func TestWitnessAgainstAnchor(t *testing.T) {
	t.Parallel()

	db, s := testStore(t, nil)

	out := ownedOutput(1, PoolSapling, 0, 0, 50, 0)
	b100 := testBlock(100, nil)
	require.NoError(t, applyBlock(db, s, b100, []BlockOutput{out}, nil))

	// Bury the note under unrelated commitments from later blocks.
	b101 := testBlock(101, b100)
	require.NoError(t, applyBlock(db, s, b101, []BlockOutput{
		foreignOutput(2, PoolSapling, 0, 1),
		foreignOutput(2, PoolSapling, 1, 2),
		foreignOutput(3, PoolOrchard, 0, 3),
	}, nil))

	id := NoteID{TxHash: out.TxHash, Pool: PoolSapling, Index: 0}
	view(t, db, func(ns walletdb.ReadBucket) error {
		for _, anchorHeight := range []int32{100, 101} {
			path, err := s.NoteWitness(ns, &id, anchorHeight)
			require.NoError(t, err)
			require.Equal(t, uint64(0), path.Position)

			root, err := s.Anchor(ns, PoolSapling, anchorHeight)
			require.NoError(t, err)
			require.Equal(t, root, path.Root(out.Commitment),
				"anchor mismatch at height %d", anchorHeight)
		}
		return nil
	})
}

// TestPruneBeyondHorizon verifies that checkpoints and witness snapshots
// older than the rewind horizon are discarded as the chain advances.
func TestPruneBeyondHorizon(t *testing.T) {
	t.Parallel()

	db, s := testStore(t, &Options{MaxRewindDepth: 3})

	out := ownedOutput(1, PoolSapling, 0, 0, 50, 0)
	prev := testBlock(100, nil)
	require.NoError(t, applyBlock(db, s, prev, []BlockOutput{out}, nil))
	for height := int32(101); height <= 110; height++ {
		block := testBlock(height, prev)
		require.NoError(t, applyBlock(db, s, block, nil, nil))
		prev = block
	}

	id := NoteID{TxHash: out.TxHash, Pool: PoolSapling, Index: 0}
	view(t, db, func(ns walletdb.ReadBucket) error {
		minHeight, err := minCheckpointHeight(ns)
		require.NoError(t, err)
		require.Equal(t, int32(107), minHeight)

		_, err = s.NoteWitness(ns, &id, 105)
		require.True(t, IsError(err, ErrWitnessUnavailable),
			"got %v", err)

		// The note itself is untouched and still witnessed at the tip.
		_, err = s.NoteWitness(ns, &id, 110)
		require.NoError(t, err)
		return nil
	})
}

func TestAccounts(t *testing.T) {
	t.Parallel()

	db, s := testStore(t, nil)

	update(t, db, func(ns walletdb.ReadWriteBucket) error {
		for i, name := range []string{"default", "savings"} {
			account, err := s.CreateAccount(ns, name)
			if err != nil {
				return err
			}
			require.Equal(t, AccountID(i), account)
		}
		return nil
	})

	view(t, db, func(ns walletdb.ReadBucket) error {
		name, err := s.AccountName(ns, 1)
		require.NoError(t, err)
		require.Equal(t, "savings", name)

		_, err = s.AccountName(ns, 7)
		require.True(t, IsError(err, ErrNoExist), "got %v", err)

		var names []string
		err = s.ForEachAccount(ns, func(_ AccountID, n string) error {
			names = append(names, n)
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, []string{"default", "savings"}, names)
		return nil
	})
}

// TestBalanceSeparatesAccounts ensures note attribution never leaks across
// accounts.
func TestBalanceSeparatesAccounts(t *testing.T) {
	t.Parallel()

	db, s := testStore(t, nil)

	b100 := testBlock(100, nil)
	require.NoError(t, applyBlock(db, s, b100, []BlockOutput{
		ownedOutput(1, PoolSapling, 0, 0, 30, 0),
		ownedOutput(2, PoolOrchard, 0, 1, 20, 1),
	}, nil))

	view(t, db, func(ns walletdb.ReadBucket) error {
		spendable, _, err := s.Balance(ns, 0, 0)
		require.NoError(t, err)
		require.Equal(t, btcutil.Amount(30), spendable)

		spendable, _, err = s.Balance(ns, 1, 0)
		require.NoError(t, err)
		require.Equal(t, btcutil.Amount(20), spendable)
		return nil
	})
}
