// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wnotemgr

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// testLeaf returns a deterministic leaf commitment for tests.
func testLeaf(i uint64) Node {
	var n Node
	binary.BigEndian.PutUint64(n[:], i+1)
	return n
}

// naiveRoot computes a tree root from the complete leaf set, level by level,
// independently of the incremental frontier and witness machinery.
func naiveRoot(leaves []Node) Node {
	level := append([]Node(nil), leaves...)
	for alt := 0; alt < TreeDepth; alt++ {
		if len(level) == 0 {
			return emptyRoots[TreeDepth]
		}
		next := make([]Node, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := emptyRoots[alt]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashMerkleNode(
				uint8(alt), level[i], right,
			))
		}
		level = next
	}
	return level[0]
}

func TestEmptyTreeRoot(t *testing.T) {
	t.Parallel()

	f := NewFrontier()
	require.Equal(t, uint64(0), f.Size())
	require.Equal(t, EmptyRoot(), f.Root())
	require.Equal(t, naiveRoot(nil), f.Root())
}

// TestFrontierRootMatchesNaive verifies that the incremental frontier derives
// the same root as a from-scratch computation over the full leaf set, across
// sizes that exercise every carry pattern of the first few tree levels.
func TestFrontierRootMatchesNaive(t *testing.T) {
	t.Parallel()

	f := NewFrontier()
	var leaves []Node
	for i := uint64(0); i < 40; i++ {
		leaf := testLeaf(i)
		require.NoError(t, f.Append(leaf))
		leaves = append(leaves, leaf)

		require.Equal(t, uint64(len(leaves)), f.Size())
		require.Equal(t, naiveRoot(leaves), f.Root(),
			"root mismatch at %d leaves", len(leaves))
	}
}

// TestWitnessAuthPath creates a witness for every leaf as the tree grows and
// checks that each witness's authentication path authenticates its leaf
// against the root of the final tree.
func TestWitnessAuthPath(t *testing.T) {
	t.Parallel()

	const numLeaves = 17

	f := NewFrontier()
	var (
		leaves    []Node
		witnesses []*Witness
	)
	for i := uint64(0); i < numLeaves; i++ {
		leaf := testLeaf(i)
		for _, w := range witnesses {
			require.NoError(t, w.Append(leaf))
		}
		require.NoError(t, f.Append(leaf))
		witnesses = append(witnesses, NewWitness(f))
		leaves = append(leaves, leaf)
	}

	wantRoot := naiveRoot(leaves)
	require.Equal(t, wantRoot, f.Root())

	for i, w := range witnesses {
		require.Equal(t, uint64(i), w.Position())
		require.Equal(t, wantRoot, w.Root(), "witness %d root", i)

		path, err := w.AuthPath()
		require.NoError(t, err)
		require.Equal(t, uint64(i), path.Position)
		require.Equal(t, wantRoot, path.Root(leaves[i]),
			"witness %d path", i)
	}
}

// TestWitnessTracksGrowingTree advances a single witness through a long run
// of appends, checking the witness root against the frontier root after each
// one.
func TestWitnessTracksGrowingTree(t *testing.T) {
	t.Parallel()

	f := NewFrontier()
	require.NoError(t, f.Append(testLeaf(0)))
	w := NewWitness(f)

	for i := uint64(1); i < 70; i++ {
		leaf := testLeaf(i)
		require.NoError(t, w.Append(leaf))
		require.NoError(t, f.Append(leaf))
		require.Equal(t, f.Root(), w.Root(),
			"witness root diverged at %d leaves", i+1)
	}
}

func TestFrontierSerializeRoundTrip(t *testing.T) {
	t.Parallel()

	f := NewFrontier()
	for i := uint64(0); i < 11; i++ {
		require.NoError(t, f.Append(testLeaf(i)))
	}

	restored, err := DeserializeFrontier(f.Serialize())
	require.NoError(t, err)
	require.Equal(t, f.Size(), restored.Size())
	require.Equal(t, f.Root(), restored.Root())

	// The restored frontier must keep absorbing leaves identically.
	require.NoError(t, f.Append(testLeaf(11)))
	require.NoError(t, restored.Append(testLeaf(11)))
	require.Equal(t, f.Root(), restored.Root())
}

func TestWitnessSerializeRoundTrip(t *testing.T) {
	t.Parallel()

	f := NewFrontier()
	require.NoError(t, f.Append(testLeaf(0)))
	w := NewWitness(f)
	for i := uint64(1); i < 13; i++ {
		leaf := testLeaf(i)
		require.NoError(t, w.Append(leaf))
		require.NoError(t, f.Append(leaf))
	}

	restored, err := DeserializeWitness(w.Serialize())
	require.NoError(t, err)
	require.Equal(t, w.Position(), restored.Position())
	require.Equal(t, w.Root(), restored.Root())

	wantPath, err := w.AuthPath()
	require.NoError(t, err)
	gotPath, err := restored.AuthPath()
	require.NoError(t, err)
	require.Equal(t, wantPath, gotPath)

	// The restored witness must keep advancing identically.
	require.NoError(t, w.Append(testLeaf(13)))
	require.NoError(t, restored.Append(testLeaf(13)))
	require.Equal(t, w.Root(), restored.Root())
}

func TestDeserializeMalformed(t *testing.T) {
	t.Parallel()

	_, err := DeserializeFrontier([]byte{1, 2})
	require.True(t, IsError(err, ErrData))

	_, err = DeserializeWitness(nil)
	require.True(t, IsError(err, ErrData))
}
