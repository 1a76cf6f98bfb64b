// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestUnpackBigEndian12(t *testing.T) {
	c := qt.New(t)

	// Two samples packed into 3 bytes: 0xABC and 0xDEF.
	data := []byte{0xAB, 0xCD, 0xEF}
	out, err := UnpackBigEndian12(data, 2, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.DeepEquals, []uint16{0xABC, 0xDEF})
}

func TestUnpackBigEndian12OddCount(t *testing.T) {
	c := qt.New(t)

	data := []byte{0xAB, 0xCD, 0xEF, 0x12, 0x34}
	out, err := UnpackBigEndian12(data, 3, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(out[0], qt.Equals, uint16(0xABC))
	c.Assert(out[1], qt.Equals, uint16(0xDEF))
	c.Assert(out[2], qt.Equals, uint16(0x123))
}

func TestUnpackBigEndian12ShortBuffer(t *testing.T) {
	c := qt.New(t)

	_, err := UnpackBigEndian12([]byte{0x00, 0x00}, 2, 1)
	c.Assert(err, qt.Not(qt.IsNil))
	_, ok := err.(*BufferTooSmallError)
	c.Assert(ok, qt.IsTrue)
}

func TestUnpackLittleEndian14(t *testing.T) {
	c := qt.New(t)

	// Four 14-bit samples, all set to the max value 0x3FFF, packed LSB-first.
	want := []uint16{0x3fff, 0x3fff, 0x3fff, 0x3fff}
	data := make([]byte, 7)
	for i := range data {
		data[i] = 0xff
	}
	out, err := UnpackLittleEndian14(data, 4, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.DeepEquals, want)
}

func TestUnpackMinoltaPackedDelegatesToBigEndian12(t *testing.T) {
	c := qt.New(t)

	data := []byte{0xAB, 0xCD, 0xEF}
	out, err := UnpackMinoltaPacked(data, 2, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.DeepEquals, []uint16{0xABC, 0xDEF})
}
