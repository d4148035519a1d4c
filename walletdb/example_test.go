// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package walletdb_test

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zecsuite/zecwallet/walletdb"
	_ "github.com/zecsuite/zecwallet/walletdb/bdb"
)

// defaultDBTimeout is the timeout used by the examples to wait for the
// database file lock.
const defaultDBTimeout = 10 * time.Second

// This example demonstrates creating a new database.
func ExampleCreate() {
	// This example assumes the bdb (bolt db) driver is imported.
	//
	// import (
	// 	"github.com/zecsuite/zecwallet/walletdb"
	// 	_ "github.com/zecsuite/zecwallet/walletdb/bdb"
	// )

	// Create a database and schedule it to be closed and removed on exit.
	// Typically you wouldn't want to remove the database right away like
	// this, but it's done here in the example to ensure the example cleans
	// up after itself.
	dbPath := filepath.Join(os.TempDir(), "examplecreate.db")
	db, err := walletdb.Create("bdb", dbPath, defaultDBTimeout)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer os.Remove(dbPath)
	defer db.Close()

	// Output:
}

// exampleNum is used as a counter in the exampleLoadDB function to provided
// a unique database name for each example.
var exampleNum = 0

// exampleLoadDB is used in the examples to elide the setup code.
func exampleLoadDB() (walletdb.DB, func(), error) {
	dbName := fmt.Sprintf("exampleload%d.db", exampleNum)
	dbPath := filepath.Join(os.TempDir(), dbName)
	db, err := walletdb.Create("bdb", dbPath, defaultDBTimeout)
	if err != nil {
		return nil, nil, err
	}
	teardownFunc := func() {
		db.Close()
		os.Remove(dbPath)
	}
	exampleNum++

	return db, teardownFunc, err
}

// This example demonstrates creating a new top level bucket.
func ExampleDB_createTopLevelBucket() {
	// Load a database for the purposes of this example and schedule it to
	// be closed and removed on exit. See the Create example for more
	// details on what this step is doing.
	db, teardownFunc, err := exampleLoadDB()
	if err != nil {
		fmt.Println(err)
		return
	}
	defer teardownFunc()

	dbtx, err := db.BeginReadWriteTx()
	if err != nil {
		fmt.Println(err)
		return
	}
	defer dbtx.Commit()

	// Get or create a bucket in the database as needed.  This bucket
	// is what is typically passed to specific sub-packages so they have
	// their own area to work in without worrying about conflicting keys.
	bucketKey := []byte("walletsubpackage")
	bucket, err := dbtx.CreateTopLevelBucket(bucketKey)
	if err != nil {
		fmt.Println(err)
		return
	}

	// Prevent unused error.
	_ = bucket

	// Output:
}

// This example demonstrates creating a new database, getting a namespace from
// it, and using a managed read-write transaction against the namespace to
// store and retrieve data.
func Example_basicUsage() {
	// Create a database and schedule it to be closed and removed on exit.
	// Typically you wouldn't want to remove the database right away like
	// this, but it's done here in the example to ensure the example cleans
	// up after itself.
	dbPath := filepath.Join(os.TempDir(), "exampleusage.db")
	db, err := walletdb.Create("bdb", dbPath, defaultDBTimeout)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer os.Remove(dbPath)
	defer db.Close()

	// Use the Update function of the database to perform a managed
	// read-write transaction.  The transaction will automatically be
	// rolled back if the supplied inner function returns a non-nil error.
	bucketKey := []byte("walletsubpackage")
	err = walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		// Get or create a bucket in the database as needed.  This
		// bucket is what is typically passed to specific sub-packages
		// so they have their own area to work in without worrying
		// about conflicting keys.
		bucket, err := tx.CreateTopLevelBucket(bucketKey)
		if err != nil {
			return err
		}

		// Store some data.
		key := []byte("mykey")
		value := []byte("myvalue")
		return bucket.Put(key, value)
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	// Use the View function of the database to perform a managed
	// read-only transaction.
	err = walletdb.View(db, func(tx walletdb.ReadTx) error {
		key := []byte("mykey")
		bucket := tx.ReadBucket(bucketKey)
		if bucket == nil {
			return fmt.Errorf("bucket %s does not exist",
				bucketKey)
		}

		value := bucket.Get(key)
		fmt.Printf("My value: %s\n", value)
		return nil
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	// Output:
	// My value: myvalue
}
