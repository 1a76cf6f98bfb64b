// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestBuiltinColorMatrixEOS40D(t *testing.T) {
	c := qt.New(t)

	m, ok := BuiltinColorMatrix(TypeId{Vendor: VendorCanon, Model: 0x80000232})
	c.Assert(ok, qt.IsTrue)
	c.Assert(m.Matrix[0], qt.Equals, int32(6071))
}

func TestBuiltinColorMatrixUnknownModel(t *testing.T) {
	c := qt.New(t)

	_, ok := BuiltinColorMatrix(TypeId{Vendor: VendorCanon, Model: 0xdeadbeef})
	c.Assert(ok, qt.IsFalse)
}

func TestBuiltinBlackWhitePanasonicDefaultBlack(t *testing.T) {
	c := qt.New(t)

	bw, ok := BuiltinBlackWhite(TypeId{Vendor: VendorPanasonic, Model: 0x0001})
	c.Assert(ok, qt.IsTrue)
	c.Assert(bw.Black, qt.Equals, uint16(15))
}

func TestTypeIdIsKnownModel(t *testing.T) {
	c := qt.New(t)

	c.Assert(TypeId{Vendor: VendorCanon}.IsKnownModel(), qt.IsFalse)
	c.Assert(TypeId{Vendor: VendorCanon, Model: 1}.IsKnownModel(), qt.IsTrue)
}
