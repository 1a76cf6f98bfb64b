// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

// Raw-data assembly (spec 4.12): the shared path every TIFF-based parser
// (CR2, NEF, ARW, ORF, PEF, RW2, DNG, ERF, SR2) funnels through once it has
// located the directory holding the sensor strip/tile.

const (
	tagPredictor     = 0x013d
	tagTileWidth     = 0x0142
	tagTileLength    = 0x0143
	tagTileOffsets   = 0x0144
	tagTileByteCnts  = 0x0145
	tagCFARepeatDim  = 0x828d
	tagCFAPatternOld = 0x828e
	tagActiveArea    = 0xc68d
	tagDefaultCropOr = 0xc61f
	tagDefaultCropSz = 0xc620
	tagBlackLevel    = 0xc61a
	tagWhiteLevel    = 0xc61d
	tagAsShotNeutral = 0xc628
	tagAsShotWhiteXY = 0xc629

	compressionNikonPack      = 34713
	compressionFujiRAF        = 34892
	compressionOlympus        = 65535
	compressionArwLossless    = 32803
	compressionCustom         = 65000
	compressionNikonQuantized = 34714
	compressionPentaxPack     = 65535 // Pentax reuses the private-range slot distinctly per vendor dispatch.
)

// RawDataOptions controls GetRawData's behavior.
type RawDataOptions struct {
	// SkipDecompress leaves the payload as CompressedRaw/JPEG bytes rather
	// than invoking a decompressor, when the caller only wants geometry and
	// calibration metadata.
	SkipDecompress bool
	// CFA is the sensor's color filter array, determined by the caller
	// (from a MakerNote record, a container-specific table, or a TIFF
	// CFAPattern tag) since not every format declares it identically.
	CFA CFAPattern
	// Compression, when non-zero, overrides the directory's own
	// Compression tag — used when a vendor parser already knows the
	// precise compression scheme from other evidence (e.g. Canon CRW).
	Compression Compression
	// BlackWhite supplies a built-in per-camera fallback for black/white
	// levels when the file itself doesn't declare them.
	BlackWhite *CameraBlackWhite
	// NikonDecodeTable is the raw bytes of a Nikon MakerNote's
	// NEFDecodeTable2 entry (header + vpred seeds + curve), read by the
	// NEF parser since it lives outside the directory GetRawData walks.
	// Required for CompressionNikonQuantized; nil yields NotSupported.
	NikonDecodeTable []byte
}

// GetRawData assembles a RawImage from dir: BitsPerSample, Strip/Tile
// offsets and byte counts, image dimensions, photometric interpretation,
// and compression, then attaches crop/calibration metadata. This is the
// `tiff_get_rawdata`-equivalent shared path named in the container design.
func GetRawData(c *IFDContainer, dir *Dir, base int64, opts RawDataOptions) (*RawImage, error) {
	fa := NewFieldAccess(c, dir, base, nil)

	width, ok := fa.U32(tagImageWidth)
	if !ok {
		return nil, ErrNotFound
	}
	height, ok := fa.U32(tagImageLength)
	if !ok {
		return nil, ErrNotFound
	}

	bps := 16
	if bpsArr, ok := fa.U32Array(tagBitsPerSample); ok && len(bpsArr) > 0 {
		bps = int(bpsArr[0])
	}

	compression := opts.Compression
	if compression == CompressionNone {
		compression = compressionTagToKind(firstU32(fa, tagCompression))
	}

	img := &RawImage{
		Width:         int(width),
		Height:        int(height),
		BitsPerSample: bps,
		CFA:           opts.CFA,
		Compression:   compression,
	}

	if err := loadRawPayload(c, fa, dir, base, img, opts); err != nil {
		return nil, err
	}

	attachCalibration(fa, img, opts.BlackWhite)

	return img, nil
}

func firstU32(fa *FieldAccess, tag uint16) uint32 {
	v, _ := fa.U32(tag)
	return v
}

// compressionTagToKind maps a TIFF Compression tag value to the engine's
// Compression enum. Values outside the recognized set default to
// CompressionCustom, deferring to vendor-specific dispatch.
func compressionTagToKind(tag uint32) Compression {
	switch tag {
	case compressionNoneTIFF:
		return CompressionNone
	case compressionLJPEG:
		return CompressionLJPEG
	case compressionJPEGTIFF:
		return CompressionJPEG
	case compressionNikonPack:
		return CompressionNikonPack
	case compressionNikonQuantized:
		return CompressionNikonQuantized
	case compressionFujiRAF:
		return CompressionFujiRAF
	case compressionOlympus:
		return CompressionOlympus
	default:
		return CompressionCustom
	}
}

// loadRawPayload reads the strip or tile bytes referenced by dir and either
// stores them as-is (SkipDecompress, or a still-compressed kind with no
// decompressor wired yet) or runs the matching decompressor.
func loadRawPayload(c *IFDContainer, fa *FieldAccess, dir *Dir, base int64, img *RawImage, opts RawDataOptions) error {
	if tileOffsets, ok := fa.U32Array(tagTileOffsets); ok {
		return loadTiledPayload(c, fa, dir, base, img, opts, tileOffsets)
	}

	offsets, ok := fa.U32Array(tagStripOffsets)
	if !ok {
		return ErrNotFound
	}
	counts, ok := fa.U32Array(tagStripByteCounts)
	if !ok {
		return ErrNotFound
	}
	if len(offsets) == 0 || len(counts) == 0 {
		return ErrNotFound
	}

	// Only the single-strip case is assembled directly; multi-strip TIFF
	// RAW files in this format family always declare one strip spanning
	// the whole frame.
	offset, length := int64(offsets[0]), int64(counts[0])
	if length+offset > c.View().Length() {
		return newFormatErrorf("rawdata: strip [%d,%d) exceeds file length %d", offset, offset+length, c.View().Length())
	}

	sub, err := CreateSubview(c.View(), offset)
	if err != nil {
		return err
	}
	sub.SetByteOrder(dir.Endian)
	if length < sub.Length() {
		sub.length = length
	}

	if opts.SkipDecompress || img.Compression == CompressionNone && img.BitsPerSample == 16 {
		return loadUncompressedOrRaw(sub, img, opts)
	}

	switch img.Compression {
	case CompressionLJPEG:
		decoded, err := DecodeLosslessJPEG(sub, nil)
		if err != nil {
			return err
		}
		img.Kind = DataKindRaw
		img.Data.Data16 = decoded.Samples
		if img.Width == 0 {
			img.Width = decoded.Width
		}
		return nil
	case CompressionNikonPack:
		n := img.Width * img.Height
		out, err := UnpackBigEndian12(sub.ReadBytesVolatile(int(sub.Length())), img.Width, img.Height)
		if err != nil {
			return err
		}
		img.Kind = DataKindRaw
		img.Data.Data16 = out[:n]
		return nil
	case CompressionNikonQuantized:
		decoded, black, white, err := DecodeNikonQuantized(sub, img.Width, img.Height, img.BitsPerSample, opts.NikonDecodeTable)
		if err != nil {
			return err
		}
		img.Kind = DataKindRaw
		img.Data.Data16 = decoded
		img.Width = len(decoded) / img.Height
		for i := range img.Blacks {
			img.Blacks[i] = black
			img.Whites[i] = white
		}
		return nil
	case CompressionCanonCRW:
		// CRW's raw payload lives in a CIFF heap record, not a TIFF
		// strip/tile; parser_crw.go calls DecodeCanonCRW directly against
		// the CIFF container instead of routing through GetRawData.
		return newDecompressionErrorf("crw: compression handled by the CIFF parser, not GetRawData")
	default:
		return loadUncompressedOrRaw(sub, img, opts)
	}
}

// loadUncompressedOrRaw handles the non-decompressed cases from spec 4.12:
// 16-bit payload read as an endian-aware array, 10/12/14-bit payload
// unpacked, 8-bit payload widened, and anything left over kept as an
// opaque CompressedRaw blob (JPEG/Arw/PentaxPack/Custom/Olympus).
func loadUncompressedOrRaw(sub *View, img *RawImage, opts RawDataOptions) error {
	if opts.SkipDecompress && img.Compression != CompressionNone {
		img.Kind = DataKindCompressedRaw
		img.Data.Blob8 = append([]byte(nil), sub.ReadBytesVolatile(int(sub.Length()))...)
		return nil
	}

	n := img.Width * img.Height
	switch {
	case img.Compression == CompressionNone && img.BitsPerSample == 16:
		data := make([]uint16, n)
		raw := sub.ReadBytesVolatile(n * 2)
		order := sub.ByteOrder().order()
		for i := range data {
			data[i] = order.Uint16(raw[i*2:])
		}
		img.Kind = DataKindRaw
		img.Data.Data16 = data
		return nil
	case img.Compression == CompressionNone && img.BitsPerSample == 8:
		raw := sub.ReadBytesVolatile(n)
		data := make([]uint16, n)
		for i, b := range raw {
			data[i] = uint16(b)
		}
		img.Kind = DataKindRaw
		img.Data.Data16 = data
		return nil
	case img.Compression == CompressionNone && (img.BitsPerSample == 10 || img.BitsPerSample == 12 || img.BitsPerSample == 14):
		raw := sub.ReadBytesVolatile(int(sub.Length()))
		data, err := UnpackFromReader(raw, n, img.BitsPerSample)
		if err != nil {
			return err
		}
		img.Kind = DataKindRaw
		img.Data.Data16 = data
		return nil
	default:
		img.Kind = DataKindCompressedRaw
		img.Data.Blob8 = append([]byte(nil), sub.ReadBytesVolatile(int(sub.Length()))...)
		return nil
	}
}

// loadTiledPayload handles DNG's tiled-LJPEG layout: each TileOffsets entry
// is an independent LJPEG stream whose dimensions come from TileWidth/
// TileLength.
func loadTiledPayload(c *IFDContainer, fa *FieldAccess, dir *Dir, base int64, img *RawImage, opts RawDataOptions, tileOffsets []uint32) error {
	tileByteCounts, ok := fa.U32Array(tagTileByteCnts)
	if !ok || len(tileByteCounts) != len(tileOffsets) {
		return newFormatErrorf("rawdata: tile offset/byte-count length mismatch")
	}
	tileWidth, _ := fa.U32(tagTileWidth)
	tileLength, _ := fa.U32(tagTileLength)

	if opts.SkipDecompress {
		img.Kind = DataKindCompressedRaw
		tiles := make([][]byte, len(tileOffsets))
		for i, off := range tileOffsets {
			sub, err := CreateSubview(c.View(), int64(off))
			if err != nil {
				return err
			}
			n := int64(tileByteCounts[i])
			if n < sub.Length() {
				sub.length = n
			}
			tiles[i] = append([]byte(nil), sub.ReadBytesVolatile(int(sub.Length()))...)
		}
		img.Data.Tiles8 = tiles
		return nil
	}

	tilesPerRow := 1
	if tileWidth > 0 {
		tilesPerRow = (int(img.Width) + int(tileWidth) - 1) / int(tileWidth)
	}
	out := make([]uint16, img.Width*img.Height)
	for i, off := range tileOffsets {
		sub, err := CreateSubview(c.View(), int64(off))
		if err != nil {
			return err
		}
		sub.SetByteOrder(dir.Endian)
		n := int64(tileByteCounts[i])
		if n < sub.Length() {
			sub.length = n
		}
		decoded, err := DecodeLosslessJPEG(sub, nil)
		if err != nil {
			return err
		}
		tileRow := i / tilesPerRow
		tileCol := i % tilesPerRow
		x0 := tileCol * int(tileWidth)
		y0 := tileRow * int(tileLength)
		copyTileInto(out, img.Width, img.Height, x0, y0, decoded.Samples, decoded.Width, decoded.Height)
	}
	img.Kind = DataKindRaw
	img.Data.Data16 = out
	return nil
}

func copyTileInto(dst []uint16, dstW, dstH, x0, y0 int, src []uint16, srcW, srcH int) {
	for y := 0; y < srcH; y++ {
		dy := y0 + y
		if dy >= dstH {
			break
		}
		for x := 0; x < srcW; x++ {
			dx := x0 + x
			if dx >= dstW {
				break
			}
			dst[dy*dstW+dx] = src[y*srcW+x]
		}
	}
}

// attachCalibration populates active-area, user-crop, black/white levels,
// and as-shot-neutral/white-XY per spec 4.12's closing paragraph: DNG tags
// first, falling back to the built-in camera table when the file is silent
// (and, within the table, `white == 0` means "use the bit-depth ceiling").
func attachCalibration(fa *FieldAccess, img *RawImage, bw *CameraBlackWhite) {
	if area, ok := fa.U32Array(tagActiveArea); ok && len(area) == 4 {
		img.ActiveArea = Rect{X0: int(area[1]), Y0: int(area[0]), X1: int(area[3]), Y1: int(area[2])}
	} else {
		img.ActiveArea = Rect{X0: 0, Y0: 0, X1: img.Width, Y1: img.Height}
	}

	if origin, ok := fa.U32Array(tagDefaultCropOr); ok && len(origin) == 2 {
		if size, ok := fa.U32Array(tagDefaultCropSz); ok && len(size) == 2 {
			img.UserCrop = Rect{
				X0: int(origin[0]), Y0: int(origin[1]),
				X1: int(origin[0] + size[0]), Y1: int(origin[1] + size[1]),
			}
		}
	}
	if img.UserCrop == (Rect{}) {
		img.UserCrop = img.ActiveArea
	}

	blacks, hasBlacks := fa.U32Array(tagBlackLevel)
	whites, hasWhites := fa.U32Array(tagWhiteLevel)
	for i := 0; i < 4; i++ {
		switch {
		case hasBlacks && i < len(blacks):
			img.Blacks[i] = uint16(blacks[i])
		case hasBlacks && len(blacks) == 1:
			img.Blacks[i] = uint16(blacks[0])
		case bw != nil:
			img.Blacks[i] = bw.Black
		}
		switch {
		case hasWhites && i < len(whites):
			img.Whites[i] = uint16(whites[i])
		case hasWhites && len(whites) == 1:
			img.Whites[i] = uint16(whites[0])
		case bw != nil && bw.White != 0:
			img.Whites[i] = bw.White
		default:
			img.Whites[i] = MaxForBits(img.BitsPerSample)
		}
	}

	if neutral, ok := fa.FloatArray(tagAsShotNeutral); ok && len(neutral) >= 3 {
		img.AsShotNeutral = neutral
		return
	}
	if xy, ok := fa.FloatArray(tagAsShotWhiteXY); ok && len(xy) == 2 {
		img.AsShotWhiteXY = [2]float64{xy[0], xy[1]}
	}
}
