// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wnotemgr

import (
	"encoding/binary"
	"time"

	"github.com/zeebo/blake3"
	"github.com/zecsuite/zecwallet/walletdb"
	"github.com/zecsuite/zecwallet/walletdb/migration"
)

// seedTagContext is the BLAKE3 derive-key context used to fingerprint the
// wallet seed.  The fingerprint ties a database to the seed it was created
// for without storing any key material.
const seedTagContext = "zecwallet wnotemgr v1 seed fingerprint"

// dbMigrations returns the store's schema migration steps.  Steps carry
// explicit dependencies rather than sequential version numbers, so unrelated
// features can add steps without coordinating a linear history.  The cfg
// pointer is shared with the migration runner: steps that declare NeedsSeed
// may read cfg.Seed and are only invoked once the runner has verified it is
// present.
func dbMigrations(cfg *migration.Config) []migration.Step {
	return []migration.Step{
		{
			ID: "initial_setup",
			Apply: func(ns walletdb.ReadWriteBucket) error {
				return applyInitialSetup(ns)
			},
		},
		{
			ID:        "accounts_table",
			DependsOn: []string{"initial_setup"},
			Apply: func(ns walletdb.ReadWriteBucket) error {
				_, err := ns.CreateBucketIfNotExists(
					bucketAccounts,
				)
				if err != nil {
					return err
				}
				return putNextAccountID(ns, 0)
			},
		},
		{
			ID:        "unmatched_nullifiers",
			DependsOn: []string{"initial_setup"},
			Apply: func(ns walletdb.ReadWriteBucket) error {
				_, err := ns.CreateBucketIfNotExists(
					bucketUnmatchedNf,
				)
				return err
			},
		},
		{
			ID:        "seed_fingerprint",
			DependsOn: []string{"accounts_table"},
			NeedsSeed: true,
			Apply: func(ns walletdb.ReadWriteBucket) error {
				return applySeedFingerprint(ns, cfg.Seed)
			},
		},
	}
}

// applyInitialSetup creates the base bucket layout and records the database
// creation time.
func applyInitialSetup(ns walletdb.ReadWriteBucket) error {
	buckets := [][]byte{
		bucketBlocks, bucketNotes, bucketNullifiers,
		bucketCheckpoints, bucketWitnesses,
	}
	for _, bucket := range buckets {
		if _, err := ns.CreateBucketIfNotExists(bucket); err != nil {
			return err
		}
	}

	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, uint64(time.Now().Unix()))
	return ns.Put(rootCreateDate, v)
}

// applySeedFingerprint stores a keyed hash of the wallet seed.  Opening the
// store later with a different seed is detected by comparing fingerprints.
func applySeedFingerprint(ns walletdb.ReadWriteBucket, seed []byte) error {
	h := blake3.NewDeriveKey(seedTagContext)
	h.Write(seed)
	return ns.Put(rootSeedTag, h.Sum(nil))
}
