// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

import (
	"bytes"
	"encoding/binary"
	"testing"

	qt "github.com/frankban/quicktest"
)

// buildMinimalMP4 assembles a tiny box tree: a top-level "ftyp" box
// followed by a "moov" box containing one empty "trak" child.
func buildMinimalMP4() []byte {
	var buf bytes.Buffer

	writeBox := func(typ string, payload []byte) {
		var sizeBuf [4]byte
		binary.BigEndian.PutUint32(sizeBuf[:], uint32(8+len(payload)))
		buf.Write(sizeBuf[:])
		buf.WriteString(typ)
		buf.Write(payload)
	}

	writeBox("ftyp", []byte("crx \x00\x00\x00\x01"))

	var moovPayload bytes.Buffer
	var trakSize [4]byte
	binary.BigEndian.PutUint32(trakSize[:], 8)
	moovPayload.Write(trakSize[:])
	moovPayload.WriteString("trak")

	writeBox("moov", moovPayload.Bytes())

	return buf.Bytes()
}

func fcc(s string) fourCC {
	var f fourCC
	copy(f[:], s)
	return f
}

func TestParseMP4ContainerBoxTree(t *testing.T) {
	c := qt.New(t)

	data := buildMinimalMP4()
	view := newTestView(data)
	view.SetByteOrder(Big)

	mc, err := ParseMP4Container(view)
	c.Assert(err, qt.IsNil)
	c.Assert(len(mc.Root.Children), qt.Equals, 2)

	ftyp, ok := mc.Root.Find(fcc("ftyp"))
	c.Assert(ok, qt.IsTrue)
	c.Assert(ftyp.Size, qt.Equals, int64(16))

	moov, ok := mc.Root.Find(fcc("moov"))
	c.Assert(ok, qt.IsTrue)
	c.Assert(len(moov.Children), qt.Equals, 1)

	trak, ok := moov.Find(fcc("trak"))
	c.Assert(ok, qt.IsTrue)
	c.Assert(trak.Type, qt.Equals, fcc("trak"))

	all := mc.Root.All(fcc("trak"))
	c.Assert(len(all), qt.Equals, 1)

	found, ok := mc.Root.FindPath("moov", "trak")
	c.Assert(ok, qt.IsTrue)
	c.Assert(found, qt.Equals, trak)
}
