// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

import (
	"encoding/binary"
	"io"
	"sync"
)

// Source is the shared, reference-counted byte origin behind every View.
// Only one read may be in flight against a Source at a time; Views
// serialize through the embedded mutex so that nested components never
// race on the same underlying reader.
type Source struct {
	mu     sync.Mutex
	r      io.ReadSeeker
	length int64
}

// NewSource wraps r as a Source. length is the total number of bytes
// available from r, used to bound subview creation.
func NewSource(r io.ReadSeeker, length int64) *Source {
	return &Source{r: r, length: length}
}

func (s *Source) readAt(buf []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.r.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(s.r, buf)
}

// View is a cheaply-cloned subrange of a Source: (source, offset, length).
// Reads and seeks are expressed in view-local coordinates; position is
// always within [0, length]. Views are the substrate every container
// (IFD, ISO-BMFF, CIFF, RAF) is built on, which lets an Exif block nested
// inside a JPEG preview nested inside an MP4 box be parsed without ever
// copying the surrounding bytes.
type View struct {
	src    *Source
	base   int64 // absolute offset of view position 0 within src
	length int64
	pos    int64

	byteOrder Endian

	buf     []byte
	isEOF   bool
	readErr error
}

// CreateView creates a View over the whole remainder of source starting at
// offset. It errors when offset exceeds the source's length.
func CreateView(source *Source, offset int64) (*View, error) {
	if offset > source.length {
		return nil, newFormatErrorf("create_view: offset %d exceeds source length %d", offset, source.length)
	}
	return &View{
		src:    source,
		base:   offset,
		length: source.length - offset,
	}, nil
}

// CreateSubview creates a View into the same Source as parent, anchored at
// offset within parent's coordinates. The resulting length is clipped to
// parent.length - offset, which means a subview can never read past its
// parent's effective end even if the underlying Source is larger.
func CreateSubview(parent *View, offset int64) (*View, error) {
	if offset < 0 || offset > parent.length {
		return nil, newFormatErrorf("create_subview: offset %d out of range [0,%d]", offset, parent.length)
	}
	return &View{
		src:       parent.src,
		base:      parent.base + offset,
		length:    parent.length - offset,
		byteOrder: parent.byteOrder,
	}, nil
}

// Clone returns a cheap copy of v sharing the same Source, positioned at 0.
func (v *View) Clone() *View {
	return &View{src: v.src, base: v.base, length: v.length, byteOrder: v.byteOrder}
}

// Length returns the view's length in bytes.
func (v *View) Length() int64 { return v.length }

// Pos returns the current read position, in view-local coordinates.
func (v *View) Pos() int64 { return v.pos }

// ByteOrder returns the endian currently routed through this view's typed
// reads.
func (v *View) ByteOrder() Endian { return v.byteOrder }

// SetByteOrder sets the endian used by typed reads on this view.
func (v *View) SetByteOrder(e Endian) { v.byteOrder = e }

// Seek moves the read position to an absolute view-local offset. Seeking
// past the view's effective end returns an EOF-like error without
// advancing position, per the I/O view contract.
func (v *View) Seek(pos int64) error {
	if pos < 0 || pos > v.length {
		return io.ErrUnexpectedEOF
	}
	v.pos = pos
	return nil
}

// SeekRelative moves the read position by a relative delta.
func (v *View) SeekRelative(delta int64) error {
	return v.Seek(v.pos + delta)
}

// Skip advances the read position by n bytes without reading.
func (v *View) Skip(n int64) error {
	return v.SeekRelative(n)
}

func (v *View) allocateBuf(n int) {
	if n > cap(v.buf) {
		v.buf = make([]byte, n)
	}
	v.buf = v.buf[:n]
}

// Read fills dst from the view's current position and advances it.
func (v *View) Read(dst []byte) (int, error) {
	if v.pos+int64(len(dst)) > v.length {
		return 0, &BufferTooSmallError{Wanted: int64(len(dst)), Have: v.length - v.pos}
	}
	n, err := v.src.readAt(dst, v.base+v.pos)
	v.pos += int64(n)
	return n, err
}

func (v *View) readN(n int) []byte {
	v.allocateBuf(n)
	if _, err := v.Read(v.buf[:n]); err != nil {
		v.stop(err)
	}
	return v.buf[:n]
}

func (v *View) readNE(n int) ([]byte, error) {
	v.allocateBuf(n)
	if _, err := v.Read(v.buf[:n]); err != nil {
		return nil, err
	}
	return v.buf[:n], nil
}

// stop panics with errStop after recording err, mirroring the teacher's
// "one silent EOF" streaming idiom: callers higher up recover and turn
// this into either a benign nil or a wrapped error.
func (v *View) stop(err error) {
	if err == io.EOF && !v.isEOF {
		v.isEOF = true
		return
	}
	if err != nil {
		v.readErr = err
	}
	panic(errStop)
}

func (v *View) order() binary.ByteOrder {
	return v.byteOrder.order()
}

// ReadU8 reads a single byte.
func (v *View) ReadU8() uint8 { return v.readN(1)[0] }

// ReadU16 reads a 16-bit unsigned integer using the view's endian.
func (v *View) ReadU16() uint16 { return v.order().Uint16(v.readN(2)) }

// ReadU32 reads a 32-bit unsigned integer using the view's endian.
func (v *View) ReadU32() uint32 { return v.order().Uint32(v.readN(4)) }

// ReadI32 reads a 32-bit signed integer using the view's endian.
func (v *View) ReadI32() int32 { return int32(v.ReadU32()) }

// ReadU64 reads a 64-bit unsigned integer using the view's endian.
func (v *View) ReadU64() uint64 { return v.order().Uint64(v.readN(8)) }

// ReadU16E is the error-returning variant of ReadU16, used where the
// caller wants to treat a short read as "feature absent" instead of a
// fatal abort.
func (v *View) ReadU16E() (uint16, error) {
	b, err := v.readNE(2)
	if err != nil {
		return 0, err
	}
	return v.order().Uint16(b), nil
}

// ReadU32E is the error-returning variant of ReadU32.
func (v *View) ReadU32E() (uint32, error) {
	b, err := v.readNE(4)
	if err != nil {
		return 0, err
	}
	return v.order().Uint32(b), nil
}

// ReadU64E is the error-returning variant of ReadU64.
func (v *View) ReadU64E() (uint64, error) {
	b, err := v.readNE(8)
	if err != nil {
		return 0, err
	}
	return v.order().Uint64(b), nil
}

// ReadU16Array reads count little/big-endian uint16 values, per the
// view's current byte order, byteswapping in place into dst.
func (v *View) ReadU16Array(dst []uint16) {
	raw := v.readN(len(dst) * 2)
	order := v.order()
	for i := range dst {
		dst[i] = order.Uint16(raw[i*2:])
	}
}

// ReadU32Array reads count little/big-endian uint32 values into dst.
func (v *View) ReadU32Array(dst []uint32) {
	raw := v.readN(len(dst) * 4)
	order := v.order()
	for i := range dst {
		dst[i] = order.Uint32(raw[i*4:])
	}
}

// ReadBytes reads exactly len(dst) bytes into dst.
func (v *View) ReadBytes(dst []byte) error {
	_, err := v.Read(dst)
	return err
}

// ReadBytesVolatile reads n bytes into a buffer that is only valid until
// the next read on this view.
func (v *View) ReadBytesVolatile(n int) []byte {
	return v.readN(n)
}

// ReadNullTerminated reads up to max bytes, stopping at (and excluding) the
// first NUL byte. Used for ASCII tag values.
func (v *View) ReadNullTerminated(max int) []byte {
	var b []byte
	for range max {
		c := v.ReadU8()
		if c == 0 {
			return b
		}
		b = append(b, c)
	}
	return b
}

// PreservePos runs f and restores the read position afterward regardless
// of whether f itself seeks around.
func (v *View) PreservePos(f func() error) error {
	pos := v.pos
	err := f()
	v.pos = pos
	return err
}

// Reader adapts a View to io.Reader for handing off to generic decoders
// (e.g. a JPEG thumbnail decoder) without copying.
func (v *View) Reader() io.Reader {
	return &viewReader{v: v}
}

type viewReader struct{ v *View }

func (r *viewReader) Read(p []byte) (int, error) {
	n := len(p)
	remaining := r.v.length - r.v.pos
	if int64(n) > remaining {
		n = int(remaining)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return r.v.Read(p[:n])
}
