// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package migration_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/zecsuite/zecwallet/walletdb"
	_ "github.com/zecsuite/zecwallet/walletdb/bdb"
	"github.com/zecsuite/zecwallet/walletdb/migration"
)

var testNamespace = []byte("test-schema")

func testDB(t *testing.T) walletdb.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := walletdb.Create("bdb", dbPath, time.Second*10)
	if err != nil {
		t.Fatalf("unable to create db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func idsOf(steps []migration.Step) []string {
	ids := make([]string, 0, len(steps))
	for _, step := range steps {
		ids = append(ids, step.ID)
	}
	return ids
}

// TestSortOrder ensures that steps are ordered such that every step follows
// all of its prerequisites, and that registration order is preserved among
// unordered steps.
func TestSortOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		steps []migration.Step
		order []string
	}{
		{
			name:  "empty",
			steps: nil,
			order: []string{},
		},
		{
			name: "no dependencies keeps registration order",
			steps: []migration.Step{
				{ID: "a"}, {ID: "b"}, {ID: "c"},
			},
			order: []string{"a", "b", "c"},
		},
		{
			name: "chain registered in reverse",
			steps: []migration.Step{
				{ID: "c", DependsOn: []string{"b"}},
				{ID: "b", DependsOn: []string{"a"}},
				{ID: "a"},
			},
			order: []string{"a", "b", "c"},
		},
		{
			name: "diamond",
			steps: []migration.Step{
				{ID: "base"},
				{ID: "left", DependsOn: []string{"base"}},
				{ID: "right", DependsOn: []string{"base"}},
				{ID: "top", DependsOn: []string{"left", "right"}},
			},
			order: []string{"base", "left", "right", "top"},
		},
		{
			name: "duplicate edges counted once",
			steps: []migration.Step{
				{ID: "b", DependsOn: []string{"a", "a"}},
				{ID: "a"},
			},
			order: []string{"a", "b"},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			sorted, err := migration.Sort(test.steps)
			if err != nil {
				t.Fatalf("unable to sort: %v", err)
			}

			got := idsOf(sorted)
			if len(got) != len(test.order) {
				t.Fatalf("order mismatch\nexpected: %v\ngot: %v",
					spew.Sdump(test.order), spew.Sdump(got))
			}
			for i := range got {
				if got[i] != test.order[i] {
					t.Fatalf("order mismatch\nexpected: "+
						"%v\ngot: %v",
						spew.Sdump(test.order),
						spew.Sdump(got))
				}
			}
		})
	}
}

// TestSortCycle ensures that a cyclic dependency graph is rejected with
// ErrCycle.
func TestSortCycle(t *testing.T) {
	t.Parallel()

	_, err := migration.Sort([]migration.Step{
		{ID: "a", DependsOn: []string{"c"}},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "c", DependsOn: []string{"b"}},
	})
	if !errors.Is(err, migration.ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}

	// Self-dependency is the smallest possible cycle.
	_, err = migration.Sort([]migration.Step{
		{ID: "a", DependsOn: []string{"a"}},
	})
	if !errors.Is(err, migration.ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}

// TestSortUnknownDependency ensures that a step naming a prerequisite that was
// never registered is rejected.
func TestSortUnknownDependency(t *testing.T) {
	t.Parallel()

	_, err := migration.Sort([]migration.Step{
		{ID: "a", DependsOn: []string{"missing"}},
	})
	if !errors.Is(err, migration.ErrUnknownDependency) {
		t.Fatalf("expected ErrUnknownDependency, got %v", err)
	}
}

// TestSortDuplicateID ensures that two steps registered under the same ID are
// rejected.
func TestSortDuplicateID(t *testing.T) {
	t.Parallel()

	_, err := migration.Sort([]migration.Step{
		{ID: "a"}, {ID: "a"},
	})
	if !errors.Is(err, migration.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

// TestStepsToApply ensures that already-applied steps are filtered out while
// the remaining order is preserved.
func TestStepsToApply(t *testing.T) {
	t.Parallel()

	sorted := []migration.Step{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	applied := map[string]struct{}{"b": {}}

	toApply := migration.StepsToApply(sorted, func(id string) bool {
		_, ok := applied[id]
		return ok
	})

	got := idsOf(toApply)
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("unexpected steps to apply: %v", spew.Sdump(got))
	}
}

// TestUpgradeAppliesOnce ensures that an upgrade applies each step exactly
// once, in dependency order, and that re-running the upgrade is a no-op.
func TestUpgradeAppliesOnce(t *testing.T) {
	t.Parallel()

	db := testDB(t)

	var appliedOrder []string
	record := func(id string) func(walletdb.ReadWriteBucket) error {
		return func(ns walletdb.ReadWriteBucket) error {
			appliedOrder = append(appliedOrder, id)
			return nil
		}
	}

	steps := []migration.Step{
		{ID: "second", DependsOn: []string{"first"}, Apply: record("second")},
		{ID: "first", Apply: record("first")},
	}

	if err := migration.Upgrade(db, testNamespace, steps, nil); err != nil {
		t.Fatalf("unable to upgrade: %v", err)
	}
	if len(appliedOrder) != 2 || appliedOrder[0] != "first" ||
		appliedOrder[1] != "second" {

		t.Fatalf("unexpected application order: %v",
			spew.Sdump(appliedOrder))
	}

	// A second run must not invoke any step again.
	appliedOrder = nil
	if err := migration.Upgrade(db, testNamespace, steps, nil); err != nil {
		t.Fatalf("unable to re-run upgrade: %v", err)
	}
	if len(appliedOrder) != 0 {
		t.Fatalf("steps re-applied on second run: %v",
			spew.Sdump(appliedOrder))
	}
}

// TestUpgradeBlockedOnSeed ensures that a step requiring the wallet seed fails
// with ErrBlocked when the seed is absent and succeeds when it is supplied.
func TestUpgradeBlockedOnSeed(t *testing.T) {
	t.Parallel()

	db := testDB(t)

	applied := false
	steps := []migration.Step{
		{
			ID:        "needs-seed",
			NeedsSeed: true,
			Apply: func(ns walletdb.ReadWriteBucket) error {
				applied = true
				return nil
			},
		},
	}

	err := migration.Upgrade(db, testNamespace, steps, nil)
	if !errors.Is(err, migration.ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
	if applied {
		t.Fatal("blocked step must not run")
	}

	cfg := &migration.Config{Seed: []byte{0x01, 0x02}}
	if err := migration.Upgrade(db, testNamespace, steps, cfg); err != nil {
		t.Fatalf("unable to upgrade with seed: %v", err)
	}
	if !applied {
		t.Fatal("step was not applied")
	}
}

// TestUpgradeAtomicFailure ensures that a failing step leaves no marker and no
// partial writes behind, while steps applied before the failure remain
// recorded.
func TestUpgradeAtomicFailure(t *testing.T) {
	t.Parallel()

	db := testDB(t)

	errBroken := errors.New("broken migration")
	steps := []migration.Step{
		{
			ID: "ok",
			Apply: func(ns walletdb.ReadWriteBucket) error {
				return ns.Put([]byte("ok-key"), []byte{1})
			},
		},
		{
			ID:        "broken",
			DependsOn: []string{"ok"},
			Apply: func(ns walletdb.ReadWriteBucket) error {
				// Write something, then fail: nothing of this
				// must survive.
				if err := ns.Put([]byte("partial"), []byte{1}); err != nil {
					return err
				}
				return errBroken
			},
		},
	}

	err := migration.Upgrade(db, testNamespace, steps, nil)
	if !errors.Is(err, errBroken) {
		t.Fatalf("expected broken migration error, got %v", err)
	}

	err = walletdb.View(db, func(tx walletdb.ReadTx) error {
		ns := tx.ReadBucket(testNamespace)
		if ns == nil {
			t.Fatal("namespace missing")
		}
		if ns.Get([]byte("ok-key")) == nil {
			t.Fatal("first step's write went missing")
		}
		if ns.Get([]byte("partial")) != nil {
			t.Fatal("failed step's write leaked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unable to inspect db: %v", err)
	}

	// Fixing the broken step and re-running must only apply the broken
	// step, proving the first step's marker survived.
	okRuns := 0
	steps[0].Apply = func(ns walletdb.ReadWriteBucket) error {
		okRuns++
		return nil
	}
	steps[1].Apply = func(ns walletdb.ReadWriteBucket) error {
		return nil
	}
	if err := migration.Upgrade(db, testNamespace, steps, nil); err != nil {
		t.Fatalf("unable to upgrade after fix: %v", err)
	}
	if okRuns != 0 {
		t.Fatal("already-applied step ran again")
	}
}
