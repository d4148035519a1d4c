// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wnotemgr

import (
	"bytes"
	"fmt"

	"github.com/zeebo/blake3"
)

// TreeDepth is the depth of each pool's note commitment tree.  A tree of this
// depth holds up to 2^32 note commitments, which is far beyond any realistic
// wallet lifetime.
const TreeDepth = 32

// maxLeaves is the maximum number of commitments a tree can hold.
const maxLeaves = uint64(1) << TreeDepth

// merkleNodeContext is the BLAKE3 derive-key context used for commitment tree
// node hashing.  Changing it changes every root and witness, so it is part of
// the store's persistent format.
const merkleNodeContext = "zecwallet wnotemgr v1 merkle node"

// Node is a commitment tree node hash.  Leaves are note commitments; interior
// nodes are derived with hashMerkleNode.
type Node [32]byte

// String returns the node hash as a hexadecimal string.
func (n Node) String() string {
	return fmt.Sprintf("%x", n[:])
}

// hashMerkleNode derives the parent of two sibling subtree roots.  The
// altitude of the children (0 for leaves) is mixed in so that nodes at
// different levels can never collide.
func hashMerkleNode(altitude uint8, left, right Node) Node {
	h := blake3.NewDeriveKey(merkleNodeContext)
	h.Write([]byte{altitude})
	h.Write(left[:])
	h.Write(right[:])

	var n Node
	copy(n[:], h.Sum(nil))
	return n
}

// emptyRoots[i] is the root of an empty subtree of height i.  emptyRoots[0]
// is the uncommitted leaf value.
var emptyRoots [TreeDepth + 1]Node

func init() {
	for i := 1; i <= TreeDepth; i++ {
		emptyRoots[i] = hashMerkleNode(
			uint8(i-1), emptyRoots[i-1], emptyRoots[i-1],
		)
	}
}

// EmptyRoot returns the root of a commitment tree holding no leaves.
func EmptyRoot() Node {
	return emptyRoots[TreeDepth]
}

// Frontier is the minimal state of an append-only commitment tree needed to
// continue appending leaves and to derive the current root: the left/right
// leaves of the rightmost leaf pair plus the roots of each completed subtree
// along the tree's right-hand edge ("ommers").  Absent positions are nil.
//
// The representation follows the usual incremental Merkle tree construction:
// the set positions of the frontier correspond exactly to the set bits of the
// leaf count.
type Frontier struct {
	left    *Node
	right   *Node
	parents []*Node
}

// NewFrontier returns the frontier of an empty commitment tree.
func NewFrontier() *Frontier {
	return &Frontier{}
}

// clone returns a deep copy of the frontier.
func (f *Frontier) clone() *Frontier {
	c := &Frontier{}
	if f.left != nil {
		l := *f.left
		c.left = &l
	}
	if f.right != nil {
		r := *f.right
		c.right = &r
	}
	c.parents = make([]*Node, len(f.parents))
	for i, p := range f.parents {
		if p != nil {
			n := *p
			c.parents[i] = &n
		}
	}
	return c
}

// Size returns the number of leaves that have been appended to the tree.
func (f *Frontier) Size() uint64 {
	var size uint64
	if f.left != nil {
		size++
	}
	if f.right != nil {
		size++
	}
	for i, p := range f.parents {
		if p != nil {
			size += uint64(1) << uint(i+1)
		}
	}
	return size
}

// Append adds a note commitment as the tree's next leaf.  Returns an Error
// with code ErrTreeFull once the tree holds 2^TreeDepth leaves.
func (f *Frontier) Append(cm Node) error {
	if f.Size() >= maxLeaves {
		return storeError(ErrTreeFull, "commitment tree is full", nil)
	}

	switch {
	case f.left == nil:
		n := cm
		f.left = &n
	case f.right == nil:
		n := cm
		f.right = &n
	default:
		// Both leaf slots are occupied: complete the pair and carry
		// the combined subtree root up the right-hand edge.
		combined := hashMerkleNode(0, *f.left, *f.right)
		n := cm
		f.left = &n
		f.right = nil

		for i := 0; i < TreeDepth; i++ {
			if i < len(f.parents) {
				if f.parents[i] != nil {
					combined = hashMerkleNode(
						uint8(i+1), *f.parents[i],
						combined,
					)
					f.parents[i] = nil
					continue
				}
				c := combined
				f.parents[i] = &c
				return nil
			}
			c := combined
			f.parents = append(f.parents, &c)
			return nil
		}
		return storeError(ErrTreeFull, "commitment tree is full", nil)
	}
	return nil
}

// isComplete returns whether the frontier describes a perfect subtree of the
// given height, i.e. one with no vacant positions.
func (f *Frontier) isComplete(height int) bool {
	if f.left == nil || f.right == nil {
		return false
	}
	if len(f.parents) != height-1 {
		return false
	}
	for _, p := range f.parents {
		if p == nil {
			return false
		}
	}
	return true
}

// rootAt computes the root of the tree padded out to the given height.
// Vacant right-hand positions are filled from the filler, which yields empty
// subtree roots unless primed with witness data.
func (f *Frontier) rootAt(height int, filler *pathFiller) Node {
	left := emptyRoots[0]
	if f.left != nil {
		left = *f.left
	}
	right := filler.next(0)
	if f.right != nil {
		right = *f.right
	}

	root := hashMerkleNode(0, left, right)
	for i := 0; i < height-1; i++ {
		if i < len(f.parents) && f.parents[i] != nil {
			root = hashMerkleNode(uint8(i+1), *f.parents[i], root)
		} else {
			root = hashMerkleNode(
				uint8(i+1), root, filler.next(uint8(i+1)),
			)
		}
	}
	return root
}

// Root returns the root of the full-depth tree in its current state.
func (f *Frontier) Root() Node {
	return f.rootAt(TreeDepth, newPathFiller(nil))
}

// pathFiller supplies the hashes of the subtrees to the right of a frontier
// when computing roots and authentication paths.  Queued nodes (from witness
// bookkeeping) are consumed first; once exhausted, empty subtree roots are
// produced.
type pathFiller struct {
	queue []Node
}

func newPathFiller(queue []Node) *pathFiller {
	return &pathFiller{queue: queue}
}

func (pf *pathFiller) next(altitude uint8) Node {
	if len(pf.queue) > 0 {
		n := pf.queue[0]
		pf.queue = pf.queue[1:]
		return n
	}
	return emptyRoots[altitude]
}

// AuthPath is the authentication path proving that a specific leaf is part of
// a commitment tree: the sibling subtree root at each level, leaf to root,
// together with the leaf's position.  It is handed to the external prover
// as-is.
type AuthPath struct {
	// Path holds the sibling hash at each level, ordered from the leaf's
	// sibling upward.
	Path [TreeDepth]Node

	// Position is the leaf's position in the tree.
	Position uint64
}

// Root recomputes the tree root implied by the path for the given leaf.  A
// witness is valid iff this equals the anchor root it was derived at.
func (p *AuthPath) Root(leaf Node) Node {
	root := leaf
	pos := p.Position
	for i := 0; i < TreeDepth; i++ {
		if pos&1 == 1 {
			root = hashMerkleNode(uint8(i), p.Path[i], root)
		} else {
			root = hashMerkleNode(uint8(i), root, p.Path[i])
		}
		pos >>= 1
	}
	return root
}

// Witness is the incremental witness for a single note commitment.  It is
// created from the tree frontier at the moment the note's commitment is
// appended, and advanced with every leaf appended afterwards.  Only the
// leaves appended after the note's position contribute: the witness carries
// the frontier as of its creation, the roots of subtrees completed since
// ("filled"), and at most one partially-built subtree ("cursor").
type Witness struct {
	tree        *Frontier
	filled      []Node
	cursor      *Frontier
	cursorDepth int
}

// NewWitness creates a witness for the leaf most recently appended to the
// given frontier.  The frontier is copied, so the caller may keep appending
// to it.
func NewWitness(f *Frontier) *Witness {
	return &Witness{tree: f.clone()}
}

// Position returns the position of the witnessed leaf.
func (w *Witness) Position() uint64 {
	return w.tree.Size() - 1
}

// filler returns a pathFiller primed with the witness's accumulated
// right-hand subtree roots.
func (w *Witness) filler() *pathFiller {
	queue := make([]Node, 0, len(w.filled)+1)
	queue = append(queue, w.filled...)
	if w.cursor != nil {
		queue = append(queue, w.cursor.rootAt(
			w.cursorDepth, newPathFiller(nil),
		))
	}
	return newPathFiller(queue)
}

// nextDepth returns the height of the next subtree to the right of the
// witnessed leaf that has yet to be completed.
func (w *Witness) nextDepth() int {
	skip := len(w.filled)

	if w.tree.left == nil {
		if skip > 0 {
			skip--
		} else {
			return 0
		}
	}
	if w.tree.right == nil {
		if skip > 0 {
			skip--
		} else {
			return 0
		}
	}

	d := 1
	for _, p := range w.tree.parents {
		if p == nil {
			if skip > 0 {
				skip--
			} else {
				return d
			}
		}
		d++
	}

	return d + skip
}

// Append absorbs a leaf appended to the tree after the witnessed note's
// position.
func (w *Witness) Append(cm Node) error {
	if w.cursor != nil {
		if err := w.cursor.Append(cm); err != nil {
			return err
		}
		if w.cursor.isComplete(w.cursorDepth) {
			w.filled = append(w.filled, w.cursor.rootAt(
				w.cursorDepth, newPathFiller(nil),
			))
			w.cursor = nil
		}
		return nil
	}

	w.cursorDepth = w.nextDepth()
	if w.cursorDepth >= TreeDepth {
		return storeError(ErrTreeFull,
			"witness cannot absorb more leaves", nil)
	}

	if w.cursorDepth == 0 {
		w.filled = append(w.filled, cm)
		return nil
	}

	w.cursor = NewFrontier()
	return w.cursor.Append(cm)
}

// Root returns the tree root the witness is currently anchored at, i.e. the
// root of the tree after every leaf the witness has absorbed.
func (w *Witness) Root() Node {
	return w.tree.rootAt(TreeDepth, w.filler())
}

// AuthPath returns the authentication path for the witnessed leaf against the
// witness's current root.
func (w *Witness) AuthPath() (*AuthPath, error) {
	if w.tree.left == nil {
		return nil, storeError(ErrData,
			"witness has no witnessed leaf", nil)
	}

	filler := w.filler()
	path := &AuthPath{Position: w.Position()}

	// Level 0: if the right leaf slot is occupied, the witnessed leaf is
	// the right child and its sibling is the left leaf.
	if w.tree.right != nil {
		path.Path[0] = *w.tree.left
	} else {
		path.Path[0] = filler.next(0)
	}

	for i := 0; i < TreeDepth-1; i++ {
		if i < len(w.tree.parents) && w.tree.parents[i] != nil {
			path.Path[i+1] = *w.tree.parents[i]
		} else {
			path.Path[i+1] = filler.next(uint8(i + 1))
		}
	}

	return path, nil
}

// The canonical frontier serialization is:
//
//   [0]     Left leaf presence (1 byte)
//   [1:33]  Left leaf, if present (32 bytes)
//   ...     Right leaf presence + hash, as above
//   [n]     Parent count (1 byte)
//   [n+1:]  For each parent: presence (1 byte) + hash if present (32 bytes)
//
// The witness serialization is the witness frontier, the filled node count
// (1 byte) and nodes, the cursor depth (1 byte), and the optional cursor
// frontier behind a presence byte.

func writeOptionalNode(buf *bytes.Buffer, n *Node) {
	if n == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	buf.Write(n[:])
}

func readOptionalNode(buf *bytes.Reader) (*Node, error) {
	present, err := buf.ReadByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	var n Node
	if _, err := buf.Read(n[:]); err != nil {
		return nil, err
	}
	return &n, nil
}

// Serialize returns the canonical serialization of the frontier.
func (f *Frontier) Serialize() []byte {
	buf := new(bytes.Buffer)
	f.serialize(buf)
	return buf.Bytes()
}

func (f *Frontier) serialize(buf *bytes.Buffer) {
	writeOptionalNode(buf, f.left)
	writeOptionalNode(buf, f.right)
	buf.WriteByte(byte(len(f.parents)))
	for _, p := range f.parents {
		writeOptionalNode(buf, p)
	}
}

func deserializeFrontier(buf *bytes.Reader) (*Frontier, error) {
	f := &Frontier{}
	var err error
	if f.left, err = readOptionalNode(buf); err != nil {
		return nil, err
	}
	if f.right, err = readOptionalNode(buf); err != nil {
		return nil, err
	}
	numParents, err := buf.ReadByte()
	if err != nil {
		return nil, err
	}
	if int(numParents) >= TreeDepth {
		return nil, fmt.Errorf("frontier parent count %d exceeds "+
			"tree depth", numParents)
	}
	f.parents = make([]*Node, numParents)
	for i := range f.parents {
		if f.parents[i], err = readOptionalNode(buf); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// DeserializeFrontier decodes a frontier from its canonical serialization.
func DeserializeFrontier(b []byte) (*Frontier, error) {
	f, err := deserializeFrontier(bytes.NewReader(b))
	if err != nil {
		return nil, storeError(ErrData, "malformed frontier", err)
	}
	return f, nil
}

// Serialize returns the canonical serialization of the witness.
func (w *Witness) Serialize() []byte {
	buf := new(bytes.Buffer)
	w.tree.serialize(buf)
	buf.WriteByte(byte(len(w.filled)))
	for _, n := range w.filled {
		buf.Write(n[:])
	}
	buf.WriteByte(byte(w.cursorDepth))
	if w.cursor != nil {
		buf.WriteByte(1)
		w.cursor.serialize(buf)
	} else {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// DeserializeWitness decodes a witness from its canonical serialization.
func DeserializeWitness(b []byte) (*Witness, error) {
	buf := bytes.NewReader(b)
	w := &Witness{}

	tree, err := deserializeFrontier(buf)
	if err != nil {
		return nil, storeError(ErrData, "malformed witness", err)
	}
	w.tree = tree

	numFilled, err := buf.ReadByte()
	if err != nil {
		return nil, storeError(ErrData, "malformed witness", err)
	}
	w.filled = make([]Node, numFilled)
	for i := range w.filled {
		if _, err := buf.Read(w.filled[i][:]); err != nil {
			return nil, storeError(ErrData, "malformed witness",
				err)
		}
	}

	cursorDepth, err := buf.ReadByte()
	if err != nil {
		return nil, storeError(ErrData, "malformed witness", err)
	}
	w.cursorDepth = int(cursorDepth)

	hasCursor, err := buf.ReadByte()
	if err != nil {
		return nil, storeError(ErrData, "malformed witness", err)
	}
	if hasCursor == 1 {
		cursor, err := deserializeFrontier(buf)
		if err != nil {
			return nil, storeError(ErrData, "malformed witness",
				err)
		}
		w.cursor = cursor
	}

	return w, nil
}
