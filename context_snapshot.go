package flotalk

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
)

// DumpRootBlock serializes ctx's root cell block to a zlib-compressed byte
// stream, a debug/inspection helper in the same spirit as iolang's
// zlib-compressed embedded core scripts (vm.go's finalInit). Only Nil, Bool,
// Int, Float and String slots are supported; any other kind is rejected with
// an error. In particular a Reference's meaning is scoped to this Context's
// live class/allocator state and cannot be replayed into a different one.
func (ctx *Context) DumpRootBlock() ([]byte, error) {
	n := ctx.Heap.Len(ctx.RootBlock)
	var raw bytes.Buffer
	if err := binary.Write(&raw, binary.BigEndian, uint32(n)); err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		v := ctx.Heap.CellValue(Cell{Block: ctx.RootBlock, Index: i})
		if err := encodeSnapshotValue(&raw, v); err != nil {
			return nil, fmt.Errorf("flotalk: dumping root slot %d: %w", i, err)
		}
	}

	var out bytes.Buffer
	w := zlib.NewWriter(&out)
	if _, err := w.Write(raw.Bytes()); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// RestoreRootBlock overwrites ctx's root cell block with the contents of a
// snapshot produced by DumpRootBlock. Existing root bindings (and their
// symbol-to-index assignments) are left alone; only the backing Values are
// replaced, so RestoreRootBlock is meaningful only against a Context whose
// root symbol table was populated in the same order as when the snapshot was
// taken.
func (ctx *Context) RestoreRootBlock(snapshot []byte) error {
	r, err := zlib.NewReader(bytes.NewReader(snapshot))
	if err != nil {
		return err
	}
	defer r.Close()

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return err
	}

	n := ctx.Heap.Len(ctx.RootBlock)
	if int(count) > n {
		ctx.Heap.Resize(ctx, ctx.RootBlock, int(count))
		n = int(count)
	}
	for i := 0; i < int(count); i++ {
		v, err := decodeSnapshotValue(r)
		if err != nil {
			return fmt.Errorf("flotalk: restoring root slot %d: %w", i, err)
		}
		cell := Cell{Block: ctx.RootBlock, Index: i}
		ctx.ReleaseValue(ctx.Heap.CellValue(cell))
		ctx.Heap.SetCellValue(cell, v)
	}
	return nil
}

// snapshotTag identifies an encoded Value's Kind in a DumpRootBlock stream.
// It only covers Nil, Bool, Int, Float and String (see DumpRootBlock).
type snapshotTag byte

const (
	snapTagNil snapshotTag = iota
	snapTagBoolFalse
	snapTagBoolTrue
	snapTagInt
	snapTagFloat
	snapTagString
)

func encodeSnapshotValue(w io.Writer, v Value) error {
	switch v.Kind {
	case KindNil:
		return binary.Write(w, binary.BigEndian, snapTagNil)
	case KindBool:
		tag := snapTagBoolFalse
		if v.Bool {
			tag = snapTagBoolTrue
		}
		return binary.Write(w, binary.BigEndian, tag)
	case KindInt:
		if err := binary.Write(w, binary.BigEndian, snapTagInt); err != nil {
			return err
		}
		return binary.Write(w, binary.BigEndian, v.Int)
	case KindFloat:
		if err := binary.Write(w, binary.BigEndian, snapTagFloat); err != nil {
			return err
		}
		return binary.Write(w, binary.BigEndian, v.Float)
	case KindString:
		if err := binary.Write(w, binary.BigEndian, snapTagString); err != nil {
			return err
		}
		b := []byte(v.Str)
		if err := binary.Write(w, binary.BigEndian, uint32(len(b))); err != nil {
			return err
		}
		_, err := w.Write(b)
		return err
	default:
		return fmt.Errorf("flotalk: root slot of kind %d is not snapshot-safe", v.Kind)
	}
}

func decodeSnapshotValue(r io.Reader) (Value, error) {
	var tag snapshotTag
	if err := binary.Read(r, binary.BigEndian, &tag); err != nil {
		return Value{}, err
	}
	switch tag {
	case snapTagNil:
		return Nil, nil
	case snapTagBoolFalse:
		return False, nil
	case snapTagBoolTrue:
		return True, nil
	case snapTagInt:
		var n int64
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return Value{}, err
		}
		return NewInt(n), nil
	case snapTagFloat:
		var f float64
		if err := binary.Read(r, binary.BigEndian, &f); err != nil {
			return Value{}, err
		}
		return NewFloat(f), nil
	case snapTagString:
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return Value{}, err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return Value{}, err
		}
		return NewString(string(b)), nil
	default:
		return Value{}, fmt.Errorf("flotalk: unknown snapshot tag %d", tag)
	}
}
