package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/ssargent/geotree/pkg/coord"
	"github.com/ssargent/geotree/pkg/dberrors"
	"github.com/ssargent/geotree/pkg/spatial"
)

// Deserialize reverses Serialize, given the tree's arity and a Decoder that
// reconstructs values from their stored id+payload.
func Deserialize[T coord.Number, V spatial.Value](buf []byte, dim int, decode spatial.Decoder[V]) (*spatial.Tree[T, V], error) {
	d := &decoderState[T, V]{buf: buf, dim: dim, decode: decode}
	root, err := d.readNode(0)
	if err != nil {
		return nil, dberrors.Serialize("tree decode", err)
	}
	return &spatial.Tree[T, V]{Root: root, Dim: dim}, nil
}

type decoderState[T coord.Number, V spatial.Value] struct {
	buf    []byte
	dim    int
	decode spatial.Decoder[V]
}

func (d *decoderState[T, V]) readNode(offset uint64) (spatial.Node[T, V], error) {
	if offset+4 > uint64(len(d.buf)) {
		return nil, dberrors.NewInvariantViolation("node offset out of range")
	}
	total := binary.BigEndian.Uint32(d.buf[offset : offset+4])
	body := d.buf[offset+4 : uint64(offset)+uint64(total)]
	r := bytes.NewReader(body)
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagData:
		return d.readData(r)
	case tagBranch:
		return d.readBranch(offset, r)
	default:
		return nil, dberrors.NewInvariantViolation("unknown node tag during decode")
	}
}

func (d *decoderState[T, V]) readData(r *bytes.Reader) (spatial.Node[T, V], error) {
	n, err := getUvarint(r)
	if err != nil {
		return nil, err
	}
	records := make([]spatial.Record[T, V], 0, n)
	for i := uint64(0); i < n; i++ {
		pt := make(spatial.Point[T], d.dim)
		for a := 0; a < d.dim; a++ {
			isIvByte, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			lo, err := getScalar[T](r)
			if err != nil {
				return nil, err
			}
			if isIvByte == 1 {
				hi, err := getScalar[T](r)
				if err != nil {
					return nil, err
				}
				pt[a] = coord.Interval(lo, hi)
			} else {
				pt[a] = coord.Scalar(lo)
			}
		}
		idLen, err := getUvarint(r)
		if err != nil {
			return nil, err
		}
		idBuf := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBuf); err != nil {
			return nil, err
		}
		plLen, err := getUvarint(r)
		if err != nil {
			return nil, err
		}
		plBuf := make([]byte, plLen)
		if plLen > 0 {
			if _, err := io.ReadFull(r, plBuf); err != nil {
				return nil, err
			}
		}
		val, err := d.decode(string(idBuf), plBuf)
		if err != nil {
			return nil, err
		}
		records = append(records, spatial.Record[T, V]{Point: pt, Value: val})
	}

	refCount, err := getUvarint(r)
	if err != nil {
		return nil, err
	}
	refs := make([]spatial.TreeRef[T], 0, refCount)
	for i := uint64(0); i < refCount; i++ {
		id, err := getUvarint(r)
		if err != nil {
			return nil, err
		}
		minV := make([]T, d.dim)
		for a := 0; a < d.dim; a++ {
			v, err := getScalar[T](r)
			if err != nil {
				return nil, err
			}
			minV[a] = v
		}
		maxV := make([]T, d.dim)
		for a := 0; a < d.dim; a++ {
			v, err := getScalar[T](r)
			if err != nil {
				return nil, err
			}
			maxV[a] = v
		}
		refs = append(refs, spatial.TreeRef[T]{ID: spatial.TreeID(id), Bounds: spatial.Bounds[T]{Min: minV, Max: maxV}})
	}
	return &spatial.Data[T, V]{Records: records, Refs: refs}, nil
}

func (d *decoderState[T, V]) readBranch(nodeStart uint64, r *bytes.Reader) (spatial.Node[T, V], error) {
	axis64, err := getUvarint(r)
	if err != nil {
		return nil, err
	}
	npiv, err := getUvarint(r)
	if err != nil {
		return nil, err
	}
	pivots := make([]T, npiv)
	for i := range pivots {
		pivots[i], err = getScalar[T](r)
		if err != nil {
			return nil, err
		}
	}
	nkeys, err := getUvarint(r)
	if err != nil {
		return nil, err
	}
	keys := make([]uint32, nkeys)
	for i := range keys {
		if err := binary.Read(r, binary.BigEndian, &keys[i]); err != nil {
			return nil, err
		}
	}
	slots := int(nkeys) + int(npiv) + 1
	bfBytes := (slots + 7) / 8
	field := make([]byte, bfBytes)
	if _, err := io.ReadFull(r, field); err != nil {
		return nil, err
	}

	offsets := make([]uint64, slots)
	for i := range offsets {
		var off uint64
		if err := binary.Read(r, binary.BigEndian, &off); err != nil {
			return nil, err
		}
		offsets[i] = off
	}

	children := make([]spatial.Node[T, V], slots)
	for i, off := range offsets {
		if off == 0 {
			children[i] = &spatial.Data[T, V]{}
			continue
		}
		abs := off - 1
		n, err := d.readNode(abs)
		if err != nil {
			return nil, err
		}
		children[i] = n
	}

	intersections := children[:nkeys]
	gapNodes := children[nkeys:]
	return &spatial.Branch[T, V]{
		Axis:          int(axis64),
		Pivots:        pivots,
		Nodes:         gapNodes,
		IntersectKeys: keys,
		Intersections: intersections,
	}, nil
}
