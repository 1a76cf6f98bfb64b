// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

// CFAPattern identifies the color filter array geometry of a sensor.
//
//go:generate stringer -type=CFAPattern
type CFAPattern uint8

const (
	CFAUnknown CFAPattern = iota
	Rggb
	Gbrg
	Grbg
	Bggr
	XTrans // 6x6 = 36 cell mosaic, Fujifilm.
	Mono
)

// DataKind describes the shape of RawImage.Data.
//
//go:generate stringer -type=DataKind
type DataKind uint8

const (
	DataKindRaw DataKind = iota
	DataKindCompressedRaw
	DataKindJPEG
	DataKindPixmap8
	DataKindPixmap16
)

// Compression identifies which decompressor (if any) a CompressedRaw
// payload requires.
//
//go:generate stringer -type=Compression
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionJPEG
	CompressionLJPEG
	CompressionArw
	CompressionNikonPack
	CompressionNikonQuantized
	CompressionPentaxPack
	CompressionCustom
	CompressionOlympus
	CompressionCanonCRW
	CompressionFujiRAF
	// CompressionCanonCRX tags a Canon CR3 sample track's payload. No
	// decoder for Canon's CRX codec is wired up; parser_cr3.go always
	// returns this kind as DataKindCompressedRaw regardless of
	// skipDecompress.
	CompressionCanonCRX
)

// Rect is an integer rectangle, width/height exclusive of x0,y0.
type Rect struct {
	X0, Y0, X1, Y1 int
}

// Width returns the rectangle's width.
func (r Rect) Width() int { return r.X1 - r.X0 }

// Height returns the rectangle's height.
func (r Rect) Height() int { return r.Y1 - r.Y0 }

// Within reports whether r is contained within other.
func (r Rect) Within(other Rect) bool {
	return r.X0 >= other.X0 && r.Y0 >= other.Y0 && r.X1 <= other.X1 && r.Y1 <= other.Y1
}

// PixelData holds one of the three possible raw sensor payload shapes:
// an 8-bit blob (compressed-raw or JPEG bytes as-is), a 16-bit sample
// array (uncompressed or already decompressed), or tiled 8-bit blobs
// (DNG tiled LJPEG, one entry per tile).
type PixelData struct {
	Blob8  []byte
	Data16 []uint16
	Tiles8 [][]byte
}

// RawImage is the decoded (or still-compressed) sensor payload plus the
// metadata needed to interpret it.
type RawImage struct {
	Width, Height int
	BitsPerSample int

	CFA  CFAPattern
	Kind DataKind
	Data PixelData

	Compression Compression

	ActiveArea Rect
	UserCrop   Rect

	AspectRatio float64

	// Blacks and Whites always have length 4 even for monochannel
	// sensors, where the green slot is replicated.
	Blacks [4]uint16
	Whites [4]uint16

	// AsShotNeutral holds 3 or 4 per-channel gains such that a neutral
	// gray target lands on unity; nil if the parser instead recorded a
	// chromaticity (AsShotWhiteXY).
	AsShotNeutral []float64
	AsShotWhiteXY [2]float64

	// Metadata carries vendor fields that don't map onto a structured
	// RawImage field above. Canon CRW is the only populated source today:
	// CIFFContainer.SynthesizeExifSurface's translated FocalLength,
	// FileDescription, OriginalFileName, TargetDistanceSetting, OwnerName,
	// SerialNumber, CapturedTime, and CameraSettings, since CRW has no
	// real IFD for callers to read them from directly (crwParser.IFD
	// always returns ErrNotSupported).
	Metadata map[string]any
}

// MaxForBits returns (1<<bpc)-1, the conventional default white level
// used whenever a camera's built-in table specifies 0 (meaning "use the
// bit-depth ceiling").
func MaxForBits(bpc int) uint16 {
	return uint16((1 << uint(bpc)) - 1)
}

// ThumbnailPayload is either an inline byte vector or a pointer into a
// container; exactly one of Inline or (Offset,Length) is meaningful,
// discriminated by IsInline.
type ThumbnailPayload struct {
	IsInline       bool
	Inline         []byte
	Offset, Length int64
}

// Thumbnail describes one embedded preview image. Dimension, the map key
// parsers build thumbnail tables under, is max(Width, Height).
type Thumbnail struct {
	Width, Height int
	Kind          DataKind
	Payload       ThumbnailPayload
	// PatchSOI marks a thumbnail some Olympus/Epson bodies write with a
	// leading 0xEE instead of 0xFF for the JPEG SOI marker; ReadBytes
	// rewrites that first byte before returning.
	PatchSOI bool
}

// ReadBytes materializes the thumbnail's bytes, reading from view when the
// payload is a container offset rather than inline data, and applying the
// PatchSOI rewrite some Olympus/Epson thumbnails need.
func (t Thumbnail) ReadBytes(view *View) ([]byte, error) {
	var data []byte
	if t.Payload.IsInline {
		data = append([]byte(nil), t.Payload.Inline...)
	} else {
		sub, err := CreateSubview(view, t.Payload.Offset)
		if err != nil {
			return nil, err
		}
		if t.Payload.Length > 0 && t.Payload.Length < sub.Length() {
			sub.length = t.Payload.Length
		}
		data = append([]byte(nil), sub.ReadBytesVolatile(int(sub.Length()))...)
	}
	if t.PatchSOI && len(data) >= 1 && data[0] == 0xee {
		data[0] = 0xff
	}
	return data, nil
}

// Dimension returns max(Width, Height), the canonical key thumbnail
// tables are indexed by.
func (t Thumbnail) Dimension() int {
	if t.Width > t.Height {
		return t.Width
	}
	return t.Height
}
