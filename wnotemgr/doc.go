// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package wnotemgr provides storage and bookkeeping for shielded notes: the
notes a wallet has received, the nullifiers that spend them, the per-pool
commitment tree accumulators, and the incremental witnesses that prove each
note's membership in those trees.

The store is fed decrypted block data by an external scanner, one block at a
time, and applies each block's effects (received notes, observed spends, tree
appends, witness advancement, and a frontier checkpoint) within a single
database transaction.  Chain reorganizations are handled by rewinding the
entire store to a prior checkpointed height, bounded by a configurable rewind
horizon.  Spendable notes are selected for transaction construction from
committed, sufficiently confirmed state only.

The package assumes a single logical writer: block insertion, rewinds, and
migrations must be serialized by the caller.  Reads (balances, selection,
witness retrieval) may run concurrently within their own database snapshots.
*/
package wnotemgr
