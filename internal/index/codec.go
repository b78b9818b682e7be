package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// File layout: 4-byte magic, uint16 version, uint32 dimension, uint32 row
// count, then count*dimension little-endian float32 values.
var fileMagic = [4]byte{'S', 'D', 'X', 'I'}

const fileVersion uint16 = 1

// Header bounds. A corrupt header must fail on the payload read, not force
// a giant allocation first.
const (
	maxFileDim      = 1 << 16 // floats per row
	maxPreallocVals = 1 << 22 // floats reserved up front (16 MiB)
)

// Encode writes the index in its binary file format.
func (f *Flat) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.Write(fileMagic[:]); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, fileVersion); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(f.dim)); err != nil {
		return fmt.Errorf("write dimension: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(f.Len())); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, f.data); err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}

	return bw.Flush()
}

// Decode reads an index written by Encode.
func Decode(r io.Reader) (*Flat, error) {
	br := bufio.NewReader(r)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if magic != fileMagic {
		return nil, fmt.Errorf("bad index file magic %q", magic[:])
	}

	var version uint16
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if version != fileVersion {
		return nil, fmt.Errorf("unsupported index file version %d", version)
	}

	var dim, count uint32
	if err := binary.Read(br, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("read dimension: %w", err)
	}
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	if dim == 0 {
		return nil, fmt.Errorf("index file has zero dimension")
	}
	if dim > maxFileDim {
		return nil, fmt.Errorf("index file dimension %d exceeds limit %d", dim, maxFileDim)
	}

	// Row-by-row reads keep the allocation proportional to the payload
	// actually present, so an inflated count fails on the first missing row.
	prealloc := int(dim) * int(count)
	if prealloc > maxPreallocVals {
		prealloc = maxPreallocVals
	}
	data := make([]float32, 0, prealloc)
	row := make([]float32, dim)
	for i := uint32(0); i < count; i++ {
		if err := binary.Read(br, binary.LittleEndian, row); err != nil {
			return nil, fmt.Errorf("read vectors: row %d: %w", i, err)
		}
		data = append(data, row...)
	}

	return &Flat{dim: int(dim), data: data}, nil
}
