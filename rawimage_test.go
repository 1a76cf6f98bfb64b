// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

import (
	"bytes"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestThumbnailReadBytesPatchesOlympusSOI(t *testing.T) {
	c := qt.New(t)

	th := Thumbnail{
		PatchSOI: true,
		Payload: ThumbnailPayload{
			IsInline: true,
			Inline:   []byte{0xee, 0xd8, 0xff, 0xe0},
		},
	}
	got, err := th.ReadBytes(nil)
	c.Assert(err, qt.IsNil)
	c.Assert(got[0], qt.Equals, byte(0xff))
	c.Assert(got[1:], qt.DeepEquals, []byte{0xd8, 0xff, 0xe0})
}

func TestThumbnailReadBytesLeavesValidSOIAlone(t *testing.T) {
	c := qt.New(t)

	th := Thumbnail{
		PatchSOI: true,
		Payload: ThumbnailPayload{
			IsInline: true,
			Inline:   []byte{0xff, 0xd8, 0xff, 0xe0},
		},
	}
	got, err := th.ReadBytes(nil)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, []byte{0xff, 0xd8, 0xff, 0xe0})
}

func TestThumbnailReadBytesNoPatchWhenFlagUnset(t *testing.T) {
	c := qt.New(t)

	th := Thumbnail{
		Payload: ThumbnailPayload{
			IsInline: true,
			Inline:   []byte{0xee, 0xd8, 0xff, 0xe0},
		},
	}
	got, err := th.ReadBytes(nil)
	c.Assert(err, qt.IsNil)
	c.Assert(got[0], qt.Equals, byte(0xee))
}

func TestThumbnailReadBytesFromView(t *testing.T) {
	c := qt.New(t)

	buf := []byte{0x00, 0x00, 0xee, 0xd8, 0xff, 0xe0}
	src := NewSource(bytes.NewReader(buf), int64(len(buf)))
	view, err := CreateView(src, 0)
	c.Assert(err, qt.IsNil)

	th := Thumbnail{
		PatchSOI: true,
		Payload: ThumbnailPayload{
			Offset: 2,
			Length: 4,
		},
	}
	got, err := th.ReadBytes(view)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, []byte{0xff, 0xd8, 0xff, 0xe0})
}
