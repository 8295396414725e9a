// Package wire implements the on-disk tree format: each node is
// length-prefixed, pivot-typed, and carries a bitfield plus offset table so
// a reader can locate any child without loading the whole tree. Offsets are
// relative to the start of the tree's byte slice; a stored offset is the
// real offset plus one, so zero stays reserved as the "empty" sentinel.
package wire

import (
	"bytes"
	"encoding/binary"

	"github.com/ssargent/geotree/pkg/coord"
	"github.com/ssargent/geotree/pkg/dberrors"
	"github.com/ssargent/geotree/pkg/spatial"
)

// scalarSize returns the encoded width in bytes of one T value. The engine
// only instantiates T with fixed-width numeric kinds, so this is a constant
// per instantiation rather than a varint-measured length.
func scalarSize[T coord.Number]() int {
	var z T
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, z)
	return buf.Len()
}

func putScalar[T coord.Number](buf *bytes.Buffer, v T) error {
	return binary.Write(buf, binary.BigEndian, v)
}

func getScalar[T coord.Number](r *bytes.Reader) (T, error) {
	var v T
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func putUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func getUvarint(r *bytes.Reader) (uint64, error) {
	return binary.ReadUvarint(r)
}

// Serialize encodes an entire tree (root plus every reachable Branch
// descendant) into a single flat byte slice in pre-order: a node is written
// immediately after its parent's header, before any sibling. Data leaves
// referenced only by offset are written inline at the point a Branch or Data
// slot needs them; TreeRefs are never inlined, only their id and bounds.
func Serialize[T coord.Number, V spatial.Value](tree *spatial.Tree[T, V]) ([]byte, error) {
	var out bytes.Buffer
	enc := &encoder[T, V]{dim: tree.Dim}
	if _, err := enc.writeNode(&out, tree.Root, 0); err != nil {
		return nil, dberrors.Serialize("tree encode", err)
	}
	return out.Bytes(), nil
}

type encoder[T coord.Number, V spatial.Value] struct {
	dim  int
	base uint64 // absolute offset of the buffer currently being written
}

// writeNode appends node's bytes to out and returns the offset at which it
// was written (the offset of out's length before the write).
func (e *encoder[T, V]) writeNode(out *bytes.Buffer, n spatial.Node[T, V], level int) (uint64, error) {
	offset := uint64(out.Len())
	switch node := n.(type) {
	case *spatial.Data[T, V]:
		if err := e.writeData(out, node); err != nil {
			return 0, err
		}
	case *spatial.Branch[T, V]:
		if err := e.writeBranch(out, node, level); err != nil {
			return 0, err
		}
	default:
		return 0, dberrors.NewInvariantViolation("unknown node kind during encode")
	}
	return offset, nil
}

func (e *encoder[T, V]) writeData(out *bytes.Buffer, d *spatial.Data[T, V]) error {
	var body bytes.Buffer
	putUvarint(&body, uint64(len(d.Records)))
	for _, rec := range d.Records {
		for _, c := range rec.Point {
			body.WriteByte(boolByte(c.IsInterval))
			if err := putScalar(&body, c.Lo); err != nil {
				return err
			}
			if c.IsInterval {
				if err := putScalar(&body, c.Hi); err != nil {
					return err
				}
			}
		}
		id := rec.Value.RecordID()
		putUvarint(&body, uint64(len(id)))
		body.WriteString(id)
		payload := rec.Value.Payload()
		putUvarint(&body, uint64(len(payload)))
		body.Write(payload)
	}
	putUvarint(&body, uint64(len(d.Refs)))
	for _, ref := range d.Refs {
		putUvarint(&body, uint64(ref.ID))
		for _, v := range ref.Bounds.Min {
			if err := putScalar(&body, v); err != nil {
				return err
			}
		}
		for _, v := range ref.Bounds.Max {
			if err := putScalar(&body, v); err != nil {
				return err
			}
		}
	}

	var tag bytes.Buffer
	tag.WriteByte(tagData)

	var header bytes.Buffer
	binary.Write(&header, binary.BigEndian, uint32(4+tag.Len()+body.Len())) //nolint:errcheck // fixed-size write to a growable buffer never fails
	out.Write(header.Bytes())
	out.Write(tag.Bytes())
	out.Write(body.Bytes())
	return nil
}

func (e *encoder[T, V]) writeBranch(out *bytes.Buffer, b *spatial.Branch[T, V], level int) error {
	slots := len(b.Nodes) + len(b.Intersections)
	bitfield := make([]bool, slots)
	children := make([]spatial.Node[T, V], 0, slots)
	children = append(children, b.Intersections...)
	children = append(children, b.Nodes...)
	for i, c := range children {
		_, isData := c.(*spatial.Data[T, V])
		bitfield[i] = isData && len(c.(*spatial.Data[T, V]).Refs) == 0
	}

	var tag bytes.Buffer
	tag.WriteByte(tagBranch)
	putUvarint(&tag, uint64(b.Axis))
	putUvarint(&tag, uint64(len(b.Pivots)))
	for _, p := range b.Pivots {
		if err := putScalar(&tag, p); err != nil {
			return err
		}
	}
	putUvarint(&tag, uint64(len(b.IntersectKeys)))
	for _, k := range b.IntersectKeys {
		binary.Write(&tag, binary.BigEndian, k) //nolint:errcheck
	}
	bfBytes := (slots + 7) / 8
	field := make([]byte, bfBytes)
	for i, on := range bitfield {
		if on {
			field[i/8] |= 1 << uint(i%8)
		}
	}
	tag.Write(field)

	// Reserve the offset table; children are written after this node's
	// header+tag so pre-order layout holds, then offsets are patched in.
	offsetsAt := tag.Len()
	for range children {
		var z uint64
		binary.Write(&tag, binary.BigEndian, z) //nolint:errcheck
	}

	headerLen := 4 + tag.Len()
	childBuf := new(bytes.Buffer)
	childOffsets := make([]uint64, len(children))
	baseOffset := e.base + uint64(out.Len()) + uint64(headerLen)
	savedBase := e.base
	e.base = baseOffset
	for i, c := range children {
		if isEmptyNode(c) {
			continue
		}
		off, err := e.writeNode(childBuf, c, level+1)
		if err != nil {
			return err
		}
		childOffsets[i] = baseOffset + off + 1
	}
	e.base = savedBase

	tagBytes := tag.Bytes()
	for i, off := range childOffsets {
		pos := offsetsAt + i*8
		binary.BigEndian.PutUint64(tagBytes[pos:pos+8], off)
	}

	total := uint32(headerLen + childBuf.Len())
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], total)
	out.Write(lenBuf[:])
	out.Write(tagBytes)
	out.Write(childBuf.Bytes())
	return nil
}

func isEmptyNode[T coord.Number, V spatial.Value](n spatial.Node[T, V]) bool {
	d, ok := n.(*spatial.Data[T, V])
	return ok && len(d.Records) == 0 && len(d.Refs) == 0
}

const (
	tagBranch byte = 0
	tagData   byte = 1
)

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// ByteSize returns the number of bytes Serialize would produce for node,
// without materializing the buffer, used by the builder to decide when a
// leaf or tree crosses its configured size thresholds.
func ByteSize[T coord.Number, V spatial.Value](n spatial.Node[T, V]) (int, error) {
	buf, err := nodeBytes(n)
	if err != nil {
		return 0, err
	}
	return len(buf), nil
}

func nodeBytes[T coord.Number, V spatial.Value](n spatial.Node[T, V]) ([]byte, error) {
	var out bytes.Buffer
	enc := &encoder[T, V]{}
	if _, err := enc.writeNode(&out, n, 0); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
