// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/zecsuite/zecwallet/walletdb"
	_ "github.com/zecsuite/zecwallet/walletdb/bdb"
	"github.com/zecsuite/zecwallet/wnotemgr"
)

// noteStoreNamespaceKey is the top-level database bucket the note store keeps
// all of its data under.
var noteStoreNamespaceKey = []byte("wnotemgr")

var cfg *config

func main() {
	// Use all processor cores.
	runtime.GOMAXPROCS(runtime.NumCPU())

	if err := walletMain(); err != nil {
		os.Exit(1)
	}
}

// walletMain is a work-around main function that is required since deferred
// functions (such as log flushing) are not called with calls to os.Exit.
// Instead, main runs this function and checks for a non-nil error, at which
// point any defers have already run, and if the error is non-nil, the program
// can be exited with an error exit status.
func walletMain() error {
	tcfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = tcfg
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	log.Infof("Version %s", version())

	db, created, err := openNoteDB()
	if err != nil {
		log.Errorf("Unable to open note database: %v", err)
		return err
	}
	defer db.Close()

	opts := &wnotemgr.Options{MaxRewindDepth: cfg.MaxRewindDepth}
	if created {
		// A fresh database needs the seed once, to bind the store to
		// it.
		opts.Seed, err = promptSeed()
		if err != nil {
			return err
		}
	}
	store, err := wnotemgr.Open(db, noteStoreNamespaceKey, opts)
	if wnotemgr.IsError(err, wnotemgr.ErrNeedsUpgrade) {
		// A pending schema migration needs the seed.
		opts.Seed, err = promptSeed()
		if err != nil {
			return err
		}
		store, err = wnotemgr.Open(db, noteStoreNamespaceKey, opts)
	}
	if err != nil {
		log.Errorf("Unable to open note store: %v", err)
		return err
	}

	if err := logStoreStatus(db, store); err != nil {
		log.Errorf("Unable to read note store state: %v", err)
		return err
	}

	addInterruptHandler(func() {
		log.Info("Closing note store...")
	})

	<-interruptHandlersDone
	log.Info("Shutdown complete")
	return nil
}

// openNoteDB opens the note database, creating it first when requested with
// --create.  The second return value reports whether the database was newly
// created.
func openNoteDB() (walletdb.DB, bool, error) {
	dbPath := filepath.Join(cfg.DataDir, walletDbName)
	_, err := os.Stat(dbPath)
	if err == nil {
		db, err := walletdb.Open("bdb", dbPath, cfg.DBTimeout)
		return db, false, err
	}
	if !os.IsNotExist(err) {
		return nil, false, err
	}

	if !cfg.Create {
		return nil, false, fmt.Errorf("the note database does not "+
			"exist; run with --create to create it at %v", dbPath)
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, false, err
	}

	log.Infof("Creating note database at %v", dbPath)
	db, err := walletdb.Create("bdb", dbPath, cfg.DBTimeout)
	return db, true, err
}

// promptSeed reads a hex-encoded wallet seed from standard input.  Key
// derivation happens in an external signer; the seed is only used here to
// fingerprint the database and to unblock migrations that require it.
func promptSeed() ([]byte, error) {
	fmt.Print("Enter wallet seed (hex): ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	seed, err := hex.DecodeString(strings.TrimSpace(line))
	if err != nil {
		return nil, fmt.Errorf("seed is not valid hex: %v", err)
	}
	if len(seed) == 0 {
		return nil, fmt.Errorf("seed must not be empty")
	}
	return seed, nil
}

// logStoreStatus logs the store's chain tip and per-account balances at
// startup.
func logStoreStatus(db walletdb.DB, store *wnotemgr.Store) error {
	return walletdb.View(db, func(tx walletdb.ReadTx) error {
		ns := tx.ReadBucket(noteStoreNamespaceKey)

		tipHeight, tipHash, err := store.ChainTip(ns)
		if err != nil {
			if wnotemgr.IsError(err, wnotemgr.ErrNoExist) {
				log.Info("No blocks scanned yet")
				return nil
			}
			return err
		}
		log.Infof("Chain tip at height %d (%v)", tipHeight, tipHash)

		return store.ForEachAccount(ns, func(
			account wnotemgr.AccountID, name string) error {

			spendable, total, err := store.Balance(ns, account, 1)
			if err != nil {
				return err
			}
			log.Infof("Account %d (%q): balance %v (%v spendable)",
				account, name, total, spendable)
			return nil
		})
	})
}
