// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

import (
	"bytes"
	"testing"

	qt "github.com/frankban/quicktest"
)

// buildMinimalTIFF assembles the smallest possible little-endian TIFF: an
// 8-byte header pointing at one IFD with a single inline Ascii Model entry.
func buildMinimalTIFF() []byte {
	var buf bytes.Buffer
	buf.WriteString("II")
	buf.Write([]byte{0x2a, 0x00})
	buf.Write([]byte{0x08, 0x00, 0x00, 0x00}) // first IFD at offset 8

	buf.Write([]byte{0x01, 0x00}) // entry count = 1

	// tagModelTIFF (0x0110), TypeAscii (2), count 4, inline "AB\0\0"
	buf.Write([]byte{0x10, 0x01})
	buf.Write([]byte{0x02, 0x00})
	buf.Write([]byte{0x04, 0x00, 0x00, 0x00})
	buf.WriteString("AB\x00\x00")

	buf.Write([]byte{0x00, 0x00, 0x00, 0x00}) // next IFD pointer = 0
	return buf.Bytes()
}

func newTestView(data []byte) *View {
	src := NewSource(bytes.NewReader(data), int64(len(data)))
	v, err := CreateView(src, 0)
	if err != nil {
		panic(err)
	}
	return v
}

func TestLoadIFDContainerAndReadDir(t *testing.T) {
	c := qt.New(t)

	view := newTestView(buildMinimalTIFF())
	container, err := LoadIFDContainer(view, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(view.ByteOrder(), qt.Equals, Little)

	first, err := container.FirstOffset()
	c.Assert(err, qt.IsNil)
	c.Assert(first, qt.Equals, uint32(8))

	dir, err := container.ReadDir(int64(first), KindMain)
	c.Assert(err, qt.IsNil)
	c.Assert(dir.NextOffset, qt.Equals, uint32(0))

	fa := NewFieldAccess(container, dir, 0, nil)
	model, ok := fa.Ascii(tagModelTIFF)
	c.Assert(ok, qt.IsTrue)
	c.Assert(model, qt.Equals, "AB")
}

func TestChainStopsAtZeroNextOffset(t *testing.T) {
	c := qt.New(t)

	view := newTestView(buildMinimalTIFF())
	container, err := LoadIFDContainer(view, nil)
	c.Assert(err, qt.IsNil)

	dirs, err := container.Chain(8, KindMain)
	c.Assert(err, qt.IsNil)
	c.Assert(len(dirs), qt.Equals, 1)
}

func TestDefaultMagicCheckRejectsUnknownHeader(t *testing.T) {
	c := qt.New(t)

	c.Assert(DefaultMagicCheck([4]byte{'X', 'X', 'X', 'X'}), qt.Equals, Unset)
	c.Assert(DefaultMagicCheck([4]byte{'I', 'I', 0x2a, 0x00}), qt.Equals, Little)
	c.Assert(DefaultMagicCheck([4]byte{'M', 'M', 0x00, 0x2a}), qt.Equals, Big)
}
