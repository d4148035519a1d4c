// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wnotemgr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnd/tlv"
	"github.com/zecsuite/zecwallet/walletdb"
)

// Naming conventions used in this file:
//
//   fetch*   Loads and deserializes a record from a bucket, returning
//            ErrNoExist when the record is not present.
//   put*     Serializes and stores a record, overwriting any previous value.
//   delete*  Removes a record; deleting a missing record is not an error.
//   forEach* Iterates every record in a bucket in key order.
//
// All integer keys are encoded big endian so that cursor iteration visits
// records in their natural order.

// Bucket names and root-level keys under the store's namespace.
var (
	bucketBlocks      = []byte("blocks")
	bucketNotes       = []byte("notes")
	bucketNullifiers  = []byte("nullifiers")
	bucketUnmatchedNf = []byte("unmatched-nullifiers")
	bucketCheckpoints = []byte("checkpoints")
	bucketWitnesses   = []byte("witnesses")
	bucketAccounts    = []byte("accounts")

	rootCreateDate  = []byte("date")
	rootChainTip    = []byte("tip")
	rootNextAccount = []byte("nextacct")
	rootSeedTag     = []byte("seedtag")
)

// noteKeySize is the length of a note bucket key: transaction hash, pool tag,
// and big-endian output index.
const noteKeySize = chainhash.HashSize + 1 + 4

// TLV record types of the canonical note record value.
const (
	noteTypeAccount     tlv.Type = 1
	noteTypeValue       tlv.Type = 2
	noteTypeMemo        tlv.Type = 3
	noteTypeHeight      tlv.Type = 4
	noteTypePosition    tlv.Type = 5
	noteTypeCommitment  tlv.Type = 6
	noteTypeNullifier   tlv.Type = 7
	noteTypeSpentBy     tlv.Type = 8
	noteTypeSpentHeight tlv.Type = 9
)

// keyNote returns the note bucket key for a note ID.
func keyNote(id *NoteID) []byte {
	k := make([]byte, noteKeySize)
	copy(k, id.TxHash[:])
	k[chainhash.HashSize] = byte(id.Pool)
	binary.BigEndian.PutUint32(k[chainhash.HashSize+1:], id.Index)
	return k
}

// parseNoteKey decodes a note bucket key back into a note ID.
func parseNoteKey(k []byte, id *NoteID) error {
	if len(k) != noteKeySize {
		return storeError(ErrData, fmt.Sprintf("short note key: "+
			"%d bytes", len(k)), nil)
	}
	copy(id.TxHash[:], k[:chainhash.HashSize])
	id.Pool = PoolType(k[chainhash.HashSize])
	id.Index = binary.BigEndian.Uint32(k[chainhash.HashSize+1:])
	return nil
}

// keyHeight returns the 4-byte big-endian encoding of a block height.
func keyHeight(height int32) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, uint32(height))
	return k
}

// keyPoolNullifier returns the nullifier index key for a (pool, nullifier)
// pair.
func keyPoolNullifier(pool PoolType, nf *Nullifier) []byte {
	k := make([]byte, 1+len(nf))
	k[0] = byte(pool)
	copy(k[1:], nf[:])
	return k
}

// keyCheckpoint returns the checkpoint bucket key for a pool's frontier at a
// height.  Height leads so that cursor scans group by height for pruning and
// rewind.
func keyCheckpoint(height int32, pool PoolType) []byte {
	k := make([]byte, 5)
	binary.BigEndian.PutUint32(k, uint32(height))
	k[4] = byte(pool)
	return k
}

// keyWitness returns the witness bucket key for a note's witness snapshot at
// a height.
func keyWitness(height int32, noteKey []byte) []byte {
	k := make([]byte, 4+len(noteKey))
	binary.BigEndian.PutUint32(k, uint32(height))
	copy(k[4:], noteKey)
	return k
}

// valueNoteRecord serializes a note record as a TLV stream.  Optional fields
// (memo, spend information) are emitted only when set.
func valueNoteRecord(n *Note) ([]byte, error) {
	account := uint32(n.Account)
	value := uint64(n.Value)
	height := uint32(n.Height)
	commitment := [32]byte(n.Commitment)
	nullifier := [32]byte(n.Nullifier)

	records := []tlv.Record{
		tlv.MakePrimitiveRecord(noteTypeAccount, &account),
		tlv.MakePrimitiveRecord(noteTypeValue, &value),
	}
	if len(n.Memo) > 0 {
		records = append(records, tlv.MakePrimitiveRecord(
			noteTypeMemo, &n.Memo,
		))
	}
	records = append(records,
		tlv.MakePrimitiveRecord(noteTypeHeight, &height),
		tlv.MakePrimitiveRecord(noteTypePosition, &n.Position),
		tlv.MakePrimitiveRecord(noteTypeCommitment, &commitment),
		tlv.MakePrimitiveRecord(noteTypeNullifier, &nullifier),
	)
	if n.SpentBy != nil {
		spentBy := [32]byte(*n.SpentBy)
		spentHeight := uint32(n.SpentHeight)
		records = append(records,
			tlv.MakePrimitiveRecord(noteTypeSpentBy, &spentBy),
			tlv.MakePrimitiveRecord(
				noteTypeSpentHeight, &spentHeight,
			),
		)
	}

	stream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, storeError(ErrData, "failed to encode note record",
			err)
	}
	var buf bytes.Buffer
	if err := stream.Encode(&buf); err != nil {
		return nil, storeError(ErrData, "failed to encode note record",
			err)
	}
	return buf.Bytes(), nil
}

// readNoteRecord deserializes a note record value into n.  The note's ID
// fields must already be populated from the bucket key.
func readNoteRecord(v []byte, n *Note) error {
	var (
		account     uint32
		value       uint64
		height      uint32
		commitment  [32]byte
		nullifier   [32]byte
		spentBy     [32]byte
		spentHeight uint32
	)
	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(noteTypeAccount, &account),
		tlv.MakePrimitiveRecord(noteTypeValue, &value),
		tlv.MakePrimitiveRecord(noteTypeMemo, &n.Memo),
		tlv.MakePrimitiveRecord(noteTypeHeight, &height),
		tlv.MakePrimitiveRecord(noteTypePosition, &n.Position),
		tlv.MakePrimitiveRecord(noteTypeCommitment, &commitment),
		tlv.MakePrimitiveRecord(noteTypeNullifier, &nullifier),
		tlv.MakePrimitiveRecord(noteTypeSpentBy, &spentBy),
		tlv.MakePrimitiveRecord(noteTypeSpentHeight, &spentHeight),
	)
	if err != nil {
		return storeError(ErrData, "failed to decode note record", err)
	}
	parsedTypes, err := stream.DecodeWithParsedTypes(bytes.NewReader(v))
	if err != nil {
		return storeError(ErrData, "failed to decode note record", err)
	}

	n.Account = AccountID(account)
	n.Value = btcutil.Amount(value)
	n.Height = int32(height)
	n.Commitment = Node(commitment)
	n.Nullifier = Nullifier(nullifier)
	n.SpentBy = nil
	n.SpentHeight = 0
	if t, ok := parsedTypes[noteTypeSpentBy]; ok && t == nil {
		hash := chainhash.Hash(spentBy)
		n.SpentBy = &hash
		n.SpentHeight = int32(spentHeight)
	}
	return nil
}

// putNoteRecord stores a note record under its canonical key.
func putNoteRecord(ns walletdb.ReadWriteBucket, n *Note) error {
	v, err := valueNoteRecord(n)
	if err != nil {
		return err
	}
	err = ns.NestedReadWriteBucket(bucketNotes).Put(keyNote(&n.NoteID), v)
	if err != nil {
		return storeError(ErrDatabase, "failed to store note record",
			err)
	}
	return nil
}

// existsNoteRecord returns the raw note record value, or nil when absent.
func existsNoteRecord(ns walletdb.ReadBucket, id *NoteID) []byte {
	return ns.NestedReadBucket(bucketNotes).Get(keyNote(id))
}

// fetchNoteRecord loads the note with the given ID.
func fetchNoteRecord(ns walletdb.ReadBucket, id *NoteID) (*Note, error) {
	v := existsNoteRecord(ns, id)
	if v == nil {
		return nil, storeError(ErrNoExist, fmt.Sprintf("no note %v",
			id), nil)
	}
	n := &Note{NoteID: *id}
	if err := readNoteRecord(v, n); err != nil {
		return nil, err
	}
	return n, nil
}

// deleteNoteRecord removes a note record.
func deleteNoteRecord(ns walletdb.ReadWriteBucket, id *NoteID) error {
	err := ns.NestedReadWriteBucket(bucketNotes).Delete(keyNote(id))
	if err != nil {
		return storeError(ErrDatabase, "failed to delete note record",
			err)
	}
	return nil
}

// forEachNote invokes f for every note record in the store, in key order.
func forEachNote(ns walletdb.ReadBucket, f func(*Note) error) error {
	return ns.NestedReadBucket(bucketNotes).ForEach(func(k, v []byte) error {
		n := &Note{}
		if err := parseNoteKey(k, &n.NoteID); err != nil {
			return err
		}
		if err := readNoteRecord(v, n); err != nil {
			return err
		}
		return f(n)
	})
}

// putNullifierIndex records that the given nullifier, when revealed, spends
// the note stored under noteKey.
func putNullifierIndex(ns walletdb.ReadWriteBucket, pool PoolType,
	nf *Nullifier, noteKey []byte) error {

	b := ns.NestedReadWriteBucket(bucketNullifiers)
	if err := b.Put(keyPoolNullifier(pool, nf), noteKey); err != nil {
		return storeError(ErrDatabase,
			"failed to store nullifier index", err)
	}
	return nil
}

// fetchNullifierNote resolves a nullifier to the ID of the note it spends.
// Returns ErrNoExist when the nullifier does not belong to any tracked note.
func fetchNullifierNote(ns walletdb.ReadBucket, pool PoolType,
	nf *Nullifier) (*NoteID, error) {

	v := ns.NestedReadBucket(bucketNullifiers).Get(keyPoolNullifier(pool, nf))
	if v == nil {
		return nil, storeError(ErrNoExist, fmt.Sprintf(
			"nullifier %x is not indexed", nf[:]), nil)
	}
	id := &NoteID{}
	if err := parseNoteKey(v, id); err != nil {
		return nil, err
	}
	return id, nil
}

// deleteNullifierIndex removes a nullifier index entry.
func deleteNullifierIndex(ns walletdb.ReadWriteBucket, pool PoolType,
	nf *Nullifier) error {

	b := ns.NestedReadWriteBucket(bucketNullifiers)
	if err := b.Delete(keyPoolNullifier(pool, nf)); err != nil {
		return storeError(ErrDatabase,
			"failed to delete nullifier index", err)
	}
	return nil
}

// putUnmatchedNullifier records a revealed nullifier that did not match any
// tracked note at scan time.  The value records the revealing block height
// and transaction so the entry can be rolled back with its block.
func putUnmatchedNullifier(ns walletdb.ReadWriteBucket, pool PoolType,
	nf *Nullifier, height int32, spendingTx *chainhash.Hash) error {

	v := make([]byte, 4+chainhash.HashSize)
	binary.BigEndian.PutUint32(v, uint32(height))
	copy(v[4:], spendingTx[:])

	b := ns.NestedReadWriteBucket(bucketUnmatchedNf)
	if err := b.Put(keyPoolNullifier(pool, nf), v); err != nil {
		return storeError(ErrDatabase,
			"failed to store unmatched nullifier", err)
	}
	return nil
}

// fetchUnmatchedNullifier returns the height and transaction that revealed an
// unmatched nullifier, or ErrNoExist.
func fetchUnmatchedNullifier(ns walletdb.ReadBucket, pool PoolType,
	nf *Nullifier) (int32, *chainhash.Hash, error) {

	v := ns.NestedReadBucket(bucketUnmatchedNf).Get(keyPoolNullifier(pool, nf))
	if v == nil {
		return 0, nil, storeError(ErrNoExist, fmt.Sprintf(
			"nullifier %x was not observed", nf[:]), nil)
	}
	if len(v) != 4+chainhash.HashSize {
		return 0, nil, storeError(ErrData,
			"malformed unmatched nullifier record", nil)
	}
	height := int32(binary.BigEndian.Uint32(v))
	var hash chainhash.Hash
	copy(hash[:], v[4:])
	return height, &hash, nil
}

// deleteUnmatchedNullifiersAbove removes every unmatched nullifier revealed
// strictly above the given height.
func deleteUnmatchedNullifiersAbove(ns walletdb.ReadWriteBucket,
	height int32) error {

	b := ns.NestedReadWriteBucket(bucketUnmatchedNf)
	var stale [][]byte
	err := b.ForEach(func(k, v []byte) error {
		if len(v) < 4 {
			return storeError(ErrData,
				"malformed unmatched nullifier record", nil)
		}
		if int32(binary.BigEndian.Uint32(v)) > height {
			stale = append(stale, k)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range stale {
		if err := b.Delete(k); err != nil {
			return storeError(ErrDatabase,
				"failed to delete unmatched nullifier", err)
		}
	}
	return nil
}

// putBlockRecord stores a scanned block's metadata under its height.
func putBlockRecord(ns walletdb.ReadWriteBucket, block *BlockMeta) error {
	v := make([]byte, 2*chainhash.HashSize+8)
	copy(v, block.Hash[:])
	copy(v[chainhash.HashSize:], block.PrevHash[:])
	byteOrder.PutUint64(v[2*chainhash.HashSize:],
		uint64(block.Time.Unix()))

	b := ns.NestedReadWriteBucket(bucketBlocks)
	if err := b.Put(keyHeight(block.Height), v); err != nil {
		return storeError(ErrDatabase, "failed to store block record",
			err)
	}
	return nil
}

// fetchBlockRecord loads the block record at a height.
func fetchBlockRecord(ns walletdb.ReadBucket, height int32) (*BlockMeta,
	error) {

	v := ns.NestedReadBucket(bucketBlocks).Get(keyHeight(height))
	if v == nil {
		return nil, storeError(ErrNoExist, fmt.Sprintf(
			"no block record at height %d", height), nil)
	}
	if len(v) != 2*chainhash.HashSize+8 {
		return nil, storeError(ErrData, fmt.Sprintf(
			"malformed block record at height %d", height), nil)
	}
	block := &BlockMeta{Height: height}
	copy(block.Hash[:], v[:chainhash.HashSize])
	copy(block.PrevHash[:], v[chainhash.HashSize:2*chainhash.HashSize])
	block.Time = time.Unix(
		int64(byteOrder.Uint64(v[2*chainhash.HashSize:])), 0,
	)
	return block, nil
}

// deleteBlocksAbove removes every block record strictly above the given
// height.
func deleteBlocksAbove(ns walletdb.ReadWriteBucket, height int32) error {
	return deleteByHeightPrefixAbove(
		ns.NestedReadWriteBucket(bucketBlocks), height,
	)
}

// deleteBlocksBelow removes every block record strictly below the given
// height.
func deleteBlocksBelow(ns walletdb.ReadWriteBucket, height int32) error {
	return deleteByHeightPrefixBelow(
		ns.NestedReadWriteBucket(bucketBlocks), height,
	)
}

// putChainTip records the store's current chain tip.
func putChainTip(ns walletdb.ReadWriteBucket, height int32,
	hash *chainhash.Hash) error {

	v := make([]byte, 4+chainhash.HashSize)
	binary.BigEndian.PutUint32(v, uint32(height))
	copy(v[4:], hash[:])
	if err := ns.Put(rootChainTip, v); err != nil {
		return storeError(ErrDatabase, "failed to store chain tip", err)
	}
	return nil
}

// fetchChainTip returns the store's current chain tip.  Returns ErrNoExist
// before the first block has been inserted.
func fetchChainTip(ns walletdb.ReadBucket) (int32, *chainhash.Hash, error) {
	v := ns.Get(rootChainTip)
	if v == nil {
		return 0, nil, storeError(ErrNoExist, "no chain tip recorded",
			nil)
	}
	if len(v) != 4+chainhash.HashSize {
		return 0, nil, storeError(ErrData, "malformed chain tip record",
			nil)
	}
	height := int32(binary.BigEndian.Uint32(v))
	var hash chainhash.Hash
	copy(hash[:], v[4:])
	return height, &hash, nil
}

// putCheckpoint stores a pool's tree frontier as of a height.
func putCheckpoint(ns walletdb.ReadWriteBucket, height int32, pool PoolType,
	f *Frontier) error {

	b := ns.NestedReadWriteBucket(bucketCheckpoints)
	if err := b.Put(keyCheckpoint(height, pool), f.Serialize()); err != nil {
		return storeError(ErrDatabase, "failed to store checkpoint",
			err)
	}
	return nil
}

// fetchCheckpoint loads a pool's tree frontier as of a height.  Returns
// ErrNoSuchCheckpoint when no checkpoint is recorded there.
func fetchCheckpoint(ns walletdb.ReadBucket, height int32,
	pool PoolType) (*Frontier, error) {

	v := ns.NestedReadBucket(bucketCheckpoints).Get(keyCheckpoint(height, pool))
	if v == nil {
		return nil, storeError(ErrNoSuchCheckpoint, fmt.Sprintf(
			"no %v checkpoint at height %d", pool, height), nil)
	}
	return DeserializeFrontier(v)
}

// deleteCheckpointsAbove removes every checkpoint strictly above the given
// height.
func deleteCheckpointsAbove(ns walletdb.ReadWriteBucket, height int32) error {
	return deleteByHeightPrefixAbove(
		ns.NestedReadWriteBucket(bucketCheckpoints), height,
	)
}

// deleteCheckpointsBelow removes every checkpoint strictly below the given
// height.
func deleteCheckpointsBelow(ns walletdb.ReadWriteBucket, height int32) error {
	return deleteByHeightPrefixBelow(
		ns.NestedReadWriteBucket(bucketCheckpoints), height,
	)
}

// minCheckpointHeight returns the lowest height with a recorded checkpoint,
// or ErrNoExist when no checkpoints exist.
func minCheckpointHeight(ns walletdb.ReadBucket) (int32, error) {
	c := ns.NestedReadBucket(bucketCheckpoints).ReadCursor()
	k, _ := c.First()
	if k == nil {
		return 0, storeError(ErrNoExist, "no checkpoints recorded", nil)
	}
	if len(k) < 4 {
		return 0, storeError(ErrData, "malformed checkpoint key", nil)
	}
	return int32(binary.BigEndian.Uint32(k)), nil
}

// putWitness stores a note's witness snapshot as of a height.
func putWitness(ns walletdb.ReadWriteBucket, height int32, noteKey []byte,
	w *Witness) error {

	b := ns.NestedReadWriteBucket(bucketWitnesses)
	err := b.Put(keyWitness(height, noteKey), w.Serialize())
	if err != nil {
		return storeError(ErrDatabase, "failed to store witness", err)
	}
	return nil
}

// fetchWitness loads a note's witness snapshot as of a height.
func fetchWitness(ns walletdb.ReadBucket, height int32,
	noteKey []byte) (*Witness, error) {

	v := ns.NestedReadBucket(bucketWitnesses).Get(keyWitness(height, noteKey))
	if v == nil {
		return nil, storeError(ErrWitnessUnavailable, fmt.Sprintf(
			"no witness snapshot at height %d", height), nil)
	}
	return DeserializeWitness(v)
}

// forEachWitnessAtHeight invokes f with the note ID and witness of every
// snapshot recorded at the given height.
func forEachWitnessAtHeight(ns walletdb.ReadBucket, height int32,
	f func(*NoteID, *Witness) error) error {

	prefix := keyHeight(height)
	c := ns.NestedReadBucket(bucketWitnesses).ReadCursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var id NoteID
		if err := parseNoteKey(k[4:], &id); err != nil {
			return err
		}
		w, err := DeserializeWitness(v)
		if err != nil {
			return err
		}
		if err := f(&id, w); err != nil {
			return err
		}
	}
	return nil
}

// deleteWitnessesAbove removes every witness snapshot strictly above the
// given height.
func deleteWitnessesAbove(ns walletdb.ReadWriteBucket, height int32) error {
	return deleteByHeightPrefixAbove(
		ns.NestedReadWriteBucket(bucketWitnesses), height,
	)
}

// deleteWitnessesBelow removes every witness snapshot strictly below the
// given height.
func deleteWitnessesBelow(ns walletdb.ReadWriteBucket, height int32) error {
	return deleteByHeightPrefixBelow(
		ns.NestedReadWriteBucket(bucketWitnesses), height,
	)
}

// deleteWitnessSnapshots removes every snapshot of a single note's witness at
// or below the given height.  Used once a spent note's spend falls beyond the
// rewind horizon and its witnesses can never be needed again.
func deleteWitnessSnapshots(ns walletdb.ReadWriteBucket, noteKey []byte,
	height int32) error {

	b := ns.NestedReadWriteBucket(bucketWitnesses)
	var stale [][]byte
	err := b.ForEach(func(k, v []byte) error {
		if len(k) != 4+noteKeySize {
			return storeError(ErrData, "malformed witness key", nil)
		}
		h := int32(binary.BigEndian.Uint32(k))
		if h <= height && bytes.Equal(k[4:], noteKey) {
			stale = append(stale, k)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range stale {
		if err := b.Delete(k); err != nil {
			return storeError(ErrDatabase,
				"failed to delete witness", err)
		}
	}
	return nil
}

// deleteByHeightPrefixAbove removes every record of a height-prefixed bucket
// whose height is strictly greater than the given height.
func deleteByHeightPrefixAbove(b walletdb.ReadWriteBucket,
	height int32) error {

	var stale [][]byte
	err := b.ForEach(func(k, v []byte) error {
		if len(k) < 4 {
			return storeError(ErrData, "malformed height key", nil)
		}
		if int32(binary.BigEndian.Uint32(k)) > height {
			stale = append(stale, k)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range stale {
		if err := b.Delete(k); err != nil {
			return storeError(ErrDatabase,
				"failed to delete stale record", err)
		}
	}
	return nil
}

// deleteByHeightPrefixBelow removes every record of a height-prefixed bucket
// whose height is strictly less than the given height.
func deleteByHeightPrefixBelow(b walletdb.ReadWriteBucket,
	height int32) error {

	var stale [][]byte
	err := b.ForEach(func(k, v []byte) error {
		if len(k) < 4 {
			return storeError(ErrData, "malformed height key", nil)
		}
		if int32(binary.BigEndian.Uint32(k)) < height {
			stale = append(stale, k)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range stale {
		if err := b.Delete(k); err != nil {
			return storeError(ErrDatabase,
				"failed to delete stale record", err)
		}
	}
	return nil
}

// putAccountRecord stores an account's name under its identifier.
func putAccountRecord(ns walletdb.ReadWriteBucket, account AccountID,
	name string) error {

	b := ns.NestedReadWriteBucket(bucketAccounts)
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, uint32(account))
	if err := b.Put(k, []byte(name)); err != nil {
		return storeError(ErrDatabase, "failed to store account record",
			err)
	}
	return nil
}

// fetchAccountRecord returns an account's name.
func fetchAccountRecord(ns walletdb.ReadBucket, account AccountID) (string,
	error) {

	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, uint32(account))
	v := ns.NestedReadBucket(bucketAccounts).Get(k)
	if v == nil {
		return "", storeError(ErrNoExist, fmt.Sprintf(
			"no account %d", account), nil)
	}
	return string(v), nil
}

// forEachAccount invokes f for every account in identifier order.
func forEachAccount(ns walletdb.ReadBucket,
	f func(AccountID, string) error) error {

	return ns.NestedReadBucket(bucketAccounts).ForEach(func(k, v []byte) error {
		if len(k) != 4 {
			return storeError(ErrData, "malformed account key", nil)
		}
		return f(AccountID(binary.BigEndian.Uint32(k)), string(v))
	})
}

// fetchNextAccountID returns the identifier the next created account will
// receive.
func fetchNextAccountID(ns walletdb.ReadBucket) AccountID {
	v := ns.Get(rootNextAccount)
	if len(v) != 4 {
		return 0
	}
	return AccountID(binary.BigEndian.Uint32(v))
}

// putNextAccountID records the identifier for the next created account.
func putNextAccountID(ns walletdb.ReadWriteBucket, next AccountID) error {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, uint32(next))
	if err := ns.Put(rootNextAccount, v); err != nil {
		return storeError(ErrDatabase,
			"failed to store account counter", err)
	}
	return nil
}

// byteOrder is the store's canonical multi-byte integer encoding.
var byteOrder = binary.BigEndian
