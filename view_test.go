// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

import (
	"bytes"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestViewReadU16U32(t *testing.T) {
	c := qt.New(t)

	buf := []byte{0x00, 0x2a, 0x00, 0x00, 0x01, 0x00}
	src := NewSource(bytes.NewReader(buf), int64(len(buf)))
	v, err := CreateView(src, 0)
	c.Assert(err, qt.IsNil)
	v.SetByteOrder(Big)

	c.Assert(v.ReadU16(), qt.Equals, uint16(0x002a))
	c.Assert(v.ReadU32(), qt.Equals, uint32(0x00000100))
}

func TestCreateViewOffsetBeyondSource(t *testing.T) {
	c := qt.New(t)

	buf := []byte{1, 2, 3}
	src := NewSource(bytes.NewReader(buf), int64(len(buf)))
	_, err := CreateView(src, 10)
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestCreateSubviewClipsToParentLength(t *testing.T) {
	c := qt.New(t)

	buf := []byte{1, 2, 3, 4, 5, 6}
	src := NewSource(bytes.NewReader(buf), int64(len(buf)))
	parent, err := CreateView(src, 0)
	c.Assert(err, qt.IsNil)

	sub, err := CreateSubview(parent, 2)
	c.Assert(err, qt.IsNil)
	c.Assert(sub.Length(), qt.Equals, int64(4))

	_, err = CreateSubview(parent, 100)
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestEndianOther(t *testing.T) {
	c := qt.New(t)

	c.Assert(Little.Other(), qt.Equals, Big)
	c.Assert(Big.Other(), qt.Equals, Little)
}

func TestViewReadBytesVolatile(t *testing.T) {
	c := qt.New(t)

	buf := []byte{0xde, 0xad, 0xbe, 0xef}
	src := NewSource(bytes.NewReader(buf), int64(len(buf)))
	v, err := CreateView(src, 0)
	c.Assert(err, qt.IsNil)

	got := v.ReadBytesVolatile(4)
	c.Assert(got, qt.DeepEquals, buf)
}
