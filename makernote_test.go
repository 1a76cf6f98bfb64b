// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

import (
	"bytes"
	"testing"

	qt "github.com/frankban/quicktest"
	goexiftiff "github.com/rwcarlsen/goexif/tiff"
)

// TestMainIFDCrossValidatesAgainstGoexif decodes the same minimal TIFF
// bytes both through this engine's own IFD reader and through
// rwcarlsen/goexif/tiff, and checks the two agree on the inline Model
// field. This is the cross-validation goexif was pulled in for: an
// independent TIFF reader to catch a systematic mistake in this engine's
// own entry-value decoding that a self-comparison couldn't.
func TestMainIFDCrossValidatesAgainstGoexif(t *testing.T) {
	c := qt.New(t)

	data := buildMinimalTIFF()

	view := newTestView(data)
	container, err := LoadIFDContainer(view, nil)
	c.Assert(err, qt.IsNil)
	first, err := container.FirstOffset()
	c.Assert(err, qt.IsNil)
	dir, err := container.ReadDir(int64(first), KindMain)
	c.Assert(err, qt.IsNil)
	fa := NewFieldAccess(container, dir, 0, nil)
	ownModel, ok := fa.Ascii(tagModelTIFF)
	c.Assert(ok, qt.IsTrue)

	tif, err := goexiftiff.Decode(bytes.NewReader(data))
	c.Assert(err, qt.IsNil)
	c.Assert(len(tif.Dirs), qt.Not(qt.Equals), 0)

	var goexifModel string
	for _, tag := range tif.Dirs[0].Tags {
		if tag.Id == tagModelTIFF {
			goexifModel, err = tag.StringVal()
			c.Assert(err, qt.IsNil)
		}
	}

	c.Assert(ownModel, qt.Equals, goexifModel)
}
