// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

const (
	tagNewSubfileType       = 0x00fe
	tagImageWidth           = 0x0100
	tagImageLength          = 0x0101
	tagBitsPerSample        = 0x0102
	tagCompression          = 0x0103
	tagPhotometric          = 0x0106
	tagStripOffsets         = 0x0111
	tagStripByteCounts      = 0x0117
	tagJPEGInterchangeFmt   = 0x0201
	tagJPEGInterchangeFmtLn = 0x0202
)

const (
	compressionNoneTIFF = 1
	compressionJPEGTIFF = 6
	compressionLJPEG    = 7

	photometricRGB = 2
)

// ThumbnailFromDir inspects one non-Raw-kind directory and returns the
// Thumbnail it describes, if any. It implements the enumeration rules in
// the container design: the Canon CR2 "8-bit RGB mislabeled as JPEG" bug
// workaround, SOF peeking when a JPEG-kind stream omits its dimensions,
// and the BitsPerSample==8 requirement for RGB-photometric strips.
func ThumbnailFromDir(c *IFDContainer, dir *Dir, base int64) (Thumbnail, bool) {
	if dir.Kind == KindRaw {
		return Thumbnail{}, false
	}
	fa := NewFieldAccess(c, dir, base, nil)

	if subfileType, ok := fa.U32(tagNewSubfileType); ok && subfileType != 0 && subfileType != 1 {
		return Thumbnail{}, false
	}

	compression, _ := fa.U32(tagCompression)
	photometric, hasPhotometric := fa.U32(tagPhotometric)

	offset, offsetTag, hasOffset := firstPresent(fa, tagStripOffsets, tagJPEGInterchangeFmt)
	if !hasOffset {
		return Thumbnail{}, false
	}
	var lengthTag uint16
	switch offsetTag {
	case tagStripOffsets:
		lengthTag = tagStripByteCounts
	case tagJPEGInterchangeFmt:
		lengthTag = tagJPEGInterchangeFmtLn
	}
	length, hasLength := fa.U32(lengthTag)
	if !hasLength {
		return Thumbnail{}, false
	}

	width, _ := fa.U32(tagImageWidth)
	height, _ := fa.U32(tagImageLength)

	kind := DataKindJPEG
	if compression == compressionNoneTIFF {
		kind = DataKindPixmap8
	}

	// Canon CR2 bug workaround: a strip labeled JPEG/LJPEG whose byte
	// count is at least width*height*3 is actually raw 8-bit RGB with a
	// stale compression tag; discard it as a thumbnail candidate.
	if (compression == compressionJPEGTIFF || compression == compressionLJPEG) &&
		width > 0 && height > 0 && uint64(length) >= uint64(width)*uint64(height)*3 {
		return Thumbnail{}, false
	}

	if (width == 0 || height == 0) && kind == DataKindJPEG {
		if w, h, ok := peekJPEGDimensions(c, int64(offset), int64(length)); ok {
			width, height = uint32(w), uint32(h)
		}
	}

	if hasPhotometric && photometric == photometricRGB {
		bps, ok := fa.U32Array(tagBitsPerSample)
		if !ok {
			return Thumbnail{}, false
		}
		for _, b := range bps {
			if b != 8 {
				return Thumbnail{}, false
			}
		}
	}

	return Thumbnail{
		Width:  int(width),
		Height: int(height),
		Kind:   kind,
		Payload: ThumbnailPayload{
			Offset: int64(offset),
			Length: int64(length),
		},
	}, true
}

func firstPresent(fa *FieldAccess, tags ...uint16) (uint32, uint16, bool) {
	for _, t := range tags {
		if v, ok := fa.U32(t); ok {
			return v, t, true
		}
	}
	return 0, 0, false
}

// peekJPEGDimensions reads just enough of a JPEG stream embedded at
// (offset, length) within the container's view to find its first SOF
// marker's width/height, without materializing the whole preview.
func peekJPEGDimensions(c *IFDContainer, offset, length int64) (width, height int, ok bool) {
	sub, err := CreateSubview(c.view, offset)
	if err != nil {
		return 0, 0, false
	}
	sub.SetByteOrder(Big)
	if length > 0 && length < sub.Length() {
		sub.length = length
	}

	var soi [2]byte
	if err := sub.ReadBytes(soi[:]); err != nil || soi[0] != 0xff || soi[1] != 0xd8 {
		return 0, 0, false
	}
	for {
		marker, err := sub.ReadU16E()
		if err != nil {
			return 0, 0, false
		}
		if marker>>8 != 0xff {
			return 0, 0, false
		}
		if marker == 0xffd8 || marker == 0xff01 || (marker >= 0xffd0 && marker <= 0xffd7) {
			continue
		}
		if marker == 0xffd9 {
			return 0, 0, false
		}
		segLen, err := sub.ReadU16E()
		if err != nil {
			return 0, 0, false
		}
		isSOF := marker >= 0xffc0 && marker <= 0xffcf && marker != 0xffc4 && marker != 0xffc8 && marker != 0xffcc
		if isSOF {
			if err := sub.Skip(1); err != nil { // precision
				return 0, 0, false
			}
			h, err := sub.ReadU16E()
			if err != nil {
				return 0, 0, false
			}
			w, err := sub.ReadU16E()
			if err != nil {
				return 0, 0, false
			}
			return int(w), int(h), true
		}
		if segLen < 2 {
			return 0, 0, false
		}
		if err := sub.Skip(int64(segLen) - 2); err != nil {
			return 0, 0, false
		}
	}
}
