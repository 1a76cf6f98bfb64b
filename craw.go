// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

// CRAWOffsetEntry is one (offset, length) pair from the CRAW header's
// offset table. Entry index 1 conventionally carries a larger preview
// JPEG preceded by a fixed-length box/header structure.
type CRAWOffsetEntry struct {
	Offset, Length int64
}

// CRAWHeader is Canon's CR3-specific extension of the ISO-BMFF container:
// an inline cover thumbnail, up to four embedded metadata blocks (each a
// full TIFF stream wrapped as its own IFDContainer), and an ordered
// offset table whose second entry locates the larger preview JPEG.
type CRAWHeader struct {
	ThumbnailJPEG  []byte
	ThumbnailW     int
	ThumbnailH     int
	MetadataBlocks []*IFDContainer

	Offsets []CRAWOffsetEntry

	PreviewOffset int64
	PreviewLength int64
	PreviewW      int
	PreviewH      int
}

// TrackDescriptor is one video-track's raw-stream location: dimensions,
// an is-JPEG flag (when set, the "raw" track is actually a still JPEG
// preview and must not be treated as raw), and the byte offset/length of
// its sample data.
type TrackDescriptor struct {
	Width, Height int
	IsJPEG        bool
	Offset        int64
	Length        int64
}

var (
	fccCRAW = fourCC{'C', 'R', 'A', 'W'}
	fccTHMB = fourCC{'T', 'H', 'M', 'B'}
	fccMoov = fourCC{'m', 'o', 'o', 'v'}
	fccTrak = fourCC{'t', 'r', 'a', 'k'}
	fccMdia = fourCC{'m', 'd', 'i', 'a'}
	fccMinf = fourCC{'m', 'i', 'n', 'f'}
	fccStbl = fourCC{'s', 't', 'b', 'l'}
	fccStsd = fourCC{'s', 't', 's', 'd'}
	fccCo64 = fourCC{'c', 'o', '6', '4'}
	fccStco = fourCC{'s', 't', 'c', 'o'}
	fccTkhd = fourCC{'t', 'k', 'h', 'd'}
)

// cmtFourCC returns the fourCC for one of the four CMT metadata block
// boxes (CMT1..CMT4), numbered 1-based as the spec describes them.
func cmtFourCC(n int) fourCC {
	return fourCC{'C', 'M', 'T', byte('0' + n)}
}

// ParseCRAWHeader locates the CRAW box under moov and extracts Canon's
// CR3-specific inputs: the inline cover thumbnail, up to four embedded
// metadata TIFF blobs (each re-wrapped as its own IFDContainer), and the
// offset table whose entry 1 carries the larger preview JPEG.
func ParseCRAWHeader(c *MP4Container) (*CRAWHeader, error) {
	moov, ok := c.Root.Find(fccMoov)
	if !ok {
		return nil, newFormatErrorf("cr3: no moov box")
	}
	craw, ok := moov.Find(fccCRAW)
	if !ok {
		// Some encoders nest CRAW one level deeper, under the first trak.
		for _, trak := range moov.All(fccTrak) {
			if b, found := trak.Find(fccCRAW); found {
				craw = b
				break
			}
		}
		if craw == nil {
			return nil, newFormatErrorf("cr3: no CRAW header box")
		}
	}

	h := &CRAWHeader{}

	if thmb, ok := craw.Find(fccTHMB); ok {
		if err := h.parseThumbnail(c, thmb, craw.End(c.view.Length())); err != nil {
			return nil, err
		}
	}

	for i := 1; i <= 4; i++ {
		cmtBox, ok := craw.Find(cmtFourCC(i))
		if !ok {
			continue
		}
		bv, err := c.BodyView(cmtBox, craw.End(c.view.Length()))
		if err != nil {
			return nil, err
		}
		inner, err := LoadIFDContainer(bv, nil)
		if err != nil {
			// Not every CMT slot is a well-formed TIFF stream in every
			// firmware revision; skip rather than abort the whole parse.
			continue
		}
		h.MetadataBlocks = append(h.MetadataBlocks, inner)
	}

	if err := h.parseOffsetTable(c, craw); err != nil {
		return nil, err
	}

	return h, nil
}

func (h *CRAWHeader) parseThumbnail(c *MP4Container, thmb *Box, parentEnd int64) error {
	v, err := c.BodyView(thmb, parentEnd)
	if err != nil {
		return err
	}
	v.SetByteOrder(Big)
	// THMB layout (observed): u32 version/flags, u16 width, u16 height,
	// u32 jpegLength, then the inline JPEG bytes.
	if err := v.Skip(4); err != nil {
		return err
	}
	w, err := v.ReadU16E()
	if err != nil {
		return err
	}
	hh, err := v.ReadU16E()
	if err != nil {
		return err
	}
	jlen, err := v.ReadU32E()
	if err != nil {
		return err
	}
	data := make([]byte, jlen)
	if err := v.ReadBytes(data); err != nil {
		return err
	}
	h.ThumbnailW, h.ThumbnailH = int(w), int(hh)
	h.ThumbnailJPEG = data
	return nil
}

// parseOffsetTable reads the CRAW box's (offset, length) table and, for
// entry 1, follows the fixed 44+2-byte preamble to read the larger
// preview JPEG's width/height/length.
func (h *CRAWHeader) parseOffsetTable(c *MP4Container, craw *Box) error {
	// The offset table itself lives in a sibling "CTBO" box in real CR3
	// files; we model it as entries directly addressable from craw's
	// body for the subset of fields this engine consumes.
	ctbo, ok := craw.Find(fourCC{'C', 'T', 'B', 'O'})
	if !ok {
		return nil
	}
	v, err := c.BodyView(ctbo, craw.End(c.view.Length()))
	if err != nil {
		return err
	}
	v.SetByteOrder(Big)
	count, err := v.ReadU32E()
	if err != nil {
		return err
	}
	for i := 0; i < int(count); i++ {
		_, err := v.ReadU32E() // index, unused
		if err != nil {
			break
		}
		off, err := v.ReadU64E()
		if err != nil {
			break
		}
		length, err := v.ReadU64E()
		if err != nil {
			break
		}
		h.Offsets = append(h.Offsets, CRAWOffsetEntry{Offset: int64(off), Length: int64(length)})
	}

	if len(h.Offsets) > 1 {
		entry := h.Offsets[1]
		pv, err := CreateSubview(c.view, entry.Offset)
		if err != nil {
			return err
		}
		pv.SetByteOrder(Big)
		if err := pv.Skip(44 + 2); err != nil {
			return err
		}
		w, err := pv.ReadU16E()
		if err != nil {
			return err
		}
		hh, err := pv.ReadU16E()
		if err != nil {
			return err
		}
		if err := pv.Skip(2); err != nil {
			return err
		}
		plen, err := pv.ReadU32E()
		if err != nil {
			return err
		}
		h.PreviewOffset = entry.Offset
		h.PreviewW, h.PreviewH = int(w), int(hh)
		h.PreviewLength = int64(plen)
	}

	return nil
}

// readTkhdDimensions reads the display width/height from a tkhd box body.
// A truncated or malformed tkhd is tolerated: the track descriptor simply
// keeps its zero-value dimensions, which callers fill in from the raw
// sample data's own IFD instead.
func readTkhdDimensions(v *View, td *TrackDescriptor) {
	defer func() {
		if r := recover(); r != nil {
			if r != errStop {
				panic(r)
			}
		}
	}()
	v.SetByteOrder(Big)
	version := v.ReadU8()
	v.Skip(3) // flags
	if version == 1 {
		v.Skip(8 + 8 + 4 + 4 + 8)
	} else {
		v.Skip(4 + 4 + 4 + 4 + 4)
	}
	v.Skip(8 + 2 + 2 + 2 + 2 + 36) // reserved, layer, alternate group, volume, reserved, matrix
	wFixed, err := v.ReadU32E()
	if err != nil {
		return
	}
	hFixed, err := v.ReadU32E()
	if err != nil {
		return
	}
	td.Width = int(wFixed >> 16)
	td.Height = int(hFixed >> 16)
}

// ParseTrackDescriptor reads the width/height/is-JPEG/sample location of
// one trak box from stsd/stbl. Track 2 is conventionally the CRAW raw
// stream; when its CRAW sample entry's is-JPEG flag is set, the "raw"
// track is actually a still JPEG preview.
func ParseTrackDescriptor(c *MP4Container, trak *Box) (TrackDescriptor, error) {
	var td TrackDescriptor

	if tkhd, ok := trak.Find(fccTkhd); ok {
		v, err := c.BodyView(tkhd, trak.End(c.view.Length()))
		if err == nil {
			readTkhdDimensions(v, &td)
		}
	}

	mdia, ok := trak.Find(fccMdia)
	if !ok {
		return td, ErrNotFound
	}
	minf, ok := mdia.Find(fccMinf)
	if !ok {
		return td, ErrNotFound
	}
	stbl, ok := minf.Find(fccStbl)
	if !ok {
		return td, ErrNotFound
	}
	stsd, ok := stbl.Find(fccStsd)
	if ok {
		if _, isJPEG := stsd.Find(fourCC{'j', 'p', 'e', 'g'}); isJPEG {
			td.IsJPEG = true
		}
		if _, isCraw := stsd.Find(fccCRAW); isCraw {
			td.IsJPEG = false
		}
	}

	if co64, ok := stbl.Find(fccCo64); ok {
		v, err := c.BodyView(co64, stbl.End(c.view.Length()))
		if err == nil {
			v.SetByteOrder(Big)
			v.Skip(4)
			n, _ := v.ReadU32E()
			if n > 0 {
				off, _ := v.ReadU64E()
				td.Offset = int64(off)
			}
		}
	} else if stco, ok := stbl.Find(fccStco); ok {
		v, err := c.BodyView(stco, stbl.End(c.view.Length()))
		if err == nil {
			v.SetByteOrder(Big)
			v.Skip(4)
			n, _ := v.ReadU32E()
			if n > 0 {
				off, _ := v.ReadU32E()
				td.Offset = int64(off)
			}
		}
	}

	if stsz, ok := stbl.Find(fourCC{'s', 't', 's', 'z'}); ok {
		v, err := c.BodyView(stsz, stbl.End(c.view.Length()))
		if err == nil {
			v.SetByteOrder(Big)
			v.Skip(4)
			size, _ := v.ReadU32E()
			if n, _ := v.ReadU32E(); size == 0 && n > 0 {
				size, _ = v.ReadU32E()
			}
			td.Length = int64(size)
		}
	}

	return td, nil
}
