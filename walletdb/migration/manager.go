// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package migration

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/zecsuite/zecwallet/walletdb"
)

var (
	// ErrCycle is returned when the dependency graph formed by a set of
	// migration steps is not acyclic, which makes it impossible to compute
	// an application order.
	ErrCycle = errors.New("migration dependency graph contains a cycle")

	// ErrUnknownDependency is returned when a migration step declares a
	// prerequisite that does not match the ID of any registered step.
	ErrUnknownDependency = errors.New("migration depends on unknown step")

	// ErrDuplicateID is returned when two migration steps are registered
	// under the same ID.
	ErrDuplicateID = errors.New("duplicate migration ID")

	// ErrBlocked is returned when a migration step requires external data,
	// such as the wallet seed, that the caller did not supply.  The
	// migration cannot proceed until the caller re-runs the upgrade with
	// the data present.
	ErrBlocked = errors.New("migration requires data that was not supplied")
)

// appliedBucketName is the key of the nested bucket within the manager's
// namespace under which one marker per applied step is recorded.  The markers
// are what make re-running an upgrade a no-op.
var appliedBucketName = []byte("applied-migrations")

// byteOrder is the preferred byte order used through the migration package.
var byteOrder = binary.BigEndian

// Step is a single schema migration.  Steps form a directed acyclic graph
// through their DependsOn sets, and are applied in a topological order of
// that graph, each within its own database transaction.
type Step struct {
	// ID uniquely identifies the step.  It doubles as the step's
	// idempotency marker key within the database.
	ID string

	// DependsOn is the set of IDs of steps that must have been applied
	// before this step can run.
	DependsOn []string

	// NeedsSeed denotes that the step's transformation requires the wallet
	// seed to be supplied through Config.  If the seed is absent, the
	// upgrade fails with ErrBlocked before any part of the step runs.
	NeedsSeed bool

	// Apply performs the forward transformation within the given
	// namespace.  A nil Apply records the marker without performing any
	// work, which is useful for steps that only exist to anchor
	// dependencies.
	Apply func(ns walletdb.ReadWriteBucket) error
}

// Config carries the external inputs that individual migration steps may
// require.
type Config struct {
	// Seed is the wallet seed, if the caller has access to it.  Only
	// steps with NeedsSeed set ever read it.
	Seed []byte
}

// Sort returns the steps in a valid application order using Kahn's algorithm.
// The order is deterministic: among steps whose prerequisites are satisfied,
// registration order wins.  Returns ErrCycle if the graph has a cycle,
// ErrUnknownDependency if a prerequisite names no registered step, and
// ErrDuplicateID if two steps share an ID.
func Sort(steps []Step) ([]Step, error) {
	byID := make(map[string]int, len(steps))
	for i, step := range steps {
		if _, ok := byID[step.ID]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID,
				step.ID)
		}
		byID[step.ID] = i
	}

	// Compute each node's input degree, skipping duplicate edges so a
	// step that lists the same prerequisite twice is not over-counted.
	inDegree := make([]int, len(steps))
	outEdges := make([][]int, len(steps))
	for i, step := range steps {
		seen := make(map[string]struct{}, len(step.DependsOn))
		for _, dep := range step.DependsOn {
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}

			j, ok := byID[dep]
			if !ok {
				return nil, fmt.Errorf("%w: %q requires %q",
					ErrUnknownDependency, step.ID, dep)
			}
			outEdges[j] = append(outEdges[j], i)
			inDegree[i]++
		}
	}

	sorted := make([]Step, 0, len(steps))
	done := make([]bool, len(steps))
	for len(sorted) < len(steps) {
		// Pick the first unapplied step with no outstanding
		// prerequisites.  Scanning from the front keeps the order
		// stable with respect to registration order.
		next := -1
		for i := range steps {
			if !done[i] && inDegree[i] == 0 {
				next = i
				break
			}
		}
		if next == -1 {
			return nil, ErrCycle
		}

		done[next] = true
		sorted = append(sorted, steps[next])
		for _, m := range outEdges[next] {
			inDegree[m]--
		}
	}

	return sorted, nil
}

// StepsToApply filters an already-sorted step sequence down to the steps whose
// idempotency markers are absent, i.e. the steps that still need to run.
func StepsToApply(sorted []Step, applied func(id string) bool) []Step {
	var toApply []Step
	for _, step := range sorted {
		if !applied(step.ID) {
			toApply = append(toApply, step)
		}
	}
	return toApply
}

// Upgrade brings the schema within the given top level namespace up to date by
// applying, in dependency order, every registered step that has not yet been
// applied.  Each step runs inside its own read/write transaction together with
// the write of its idempotency marker, so a step either fully applies and is
// recorded, or leaves the database untouched.  Re-running Upgrade with the
// same steps is a no-op.
//
// Upgrade must complete (or fail) before the namespace is put to any other
// use.
func Upgrade(db walletdb.DB, namespaceKey []byte, steps []Step,
	cfg *Config) error {

	sorted, err := Sort(steps)
	if err != nil {
		return err
	}

	// Collect the markers up front so the common fully-migrated case
	// requires no write transaction at all.
	applied := make(map[string]struct{})
	err = walletdb.View(db, func(tx walletdb.ReadTx) error {
		ns := tx.ReadBucket(namespaceKey)
		if ns == nil {
			return nil
		}
		markers := ns.NestedReadBucket(appliedBucketName)
		if markers == nil {
			return nil
		}
		return markers.ForEach(func(k, _ []byte) error {
			applied[string(k)] = struct{}{}
			return nil
		})
	})
	if err != nil {
		return err
	}

	toApply := StepsToApply(sorted, func(id string) bool {
		_, ok := applied[id]
		return ok
	})
	if len(toApply) == 0 {
		log.Debugf("Schema namespace %q is up to date", namespaceKey)
		return nil
	}

	for _, step := range toApply {
		if step.NeedsSeed && (cfg == nil || cfg.Seed == nil) {
			return fmt.Errorf("%w: step %q needs the wallet seed",
				ErrBlocked, step.ID)
		}

		log.Infof("Applying migration %q", step.ID)

		err := walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
			ns, err := tx.CreateTopLevelBucket(namespaceKey)
			if err != nil {
				return err
			}
			markers, err := ns.CreateBucketIfNotExists(
				appliedBucketName,
			)
			if err != nil {
				return err
			}

			// A concurrent or prior partial run may have applied
			// the step after the snapshot above was taken.
			if markers.Get([]byte(step.ID)) != nil {
				return nil
			}

			if step.Apply != nil {
				if err := step.Apply(ns); err != nil {
					return err
				}
			}

			var marker [8]byte
			byteOrder.PutUint64(
				marker[:], uint64(time.Now().Unix()),
			)
			return markers.Put([]byte(step.ID), marker[:])
		})
		if err != nil {
			return fmt.Errorf("migration %q failed: %w",
				step.ID, err)
		}
	}

	return nil
}
