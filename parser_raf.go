// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

// Fujifilm RAF (spec 4.5, 4.10): a custom header, not TIFF-shaped at the
// top level, though an embedded JPEG preview usually carries its own
// Exif/TIFF sub-container which spec 4.5 prefers when present.
type rafParser struct {
	view *View
	c    *RAFContainer
}

func openRAF(view *View) (Parser, error) {
	c, err := LoadRAFContainer(view)
	if err != nil {
		return nil, err
	}
	return &rafParser{view: view, c: c}, nil
}

func (p *rafParser) View() *View { return p.view }

// fujifilmModelIDs assigns the small integer model slots cameradata.go's
// built-in table keys Fujifilm bodies with, mirroring nikonModelIDs: RAF's
// camera string is the only model-identifying field this container
// exposes, and Fujifilm carries no numeric model ID of its own.
var fujifilmModelIDs = map[string]uint32{
	"X-Pro1": 0x0001,
}

func (p *rafParser) IdentifyID() (TypeId, error) {
	model := p.c.Header.CameraString
	for prefix, id := range fujifilmModelIDs {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			return TypeId{Vendor: VendorFujifilm, Model: id}, nil
		}
	}
	if model == "" {
		return TypeId{Vendor: VendorFujifilm}, ErrNotFound
	}
	return TypeId{Vendor: VendorFujifilm}, ErrNotFound
}

// Thumbnails returns the header's embedded JPEG preview; RAF carries
// exactly one.
func (p *rafParser) Thumbnails() ([]Thumbnail, error) {
	if p.c.Header.JPEGLength == 0 {
		return nil, ErrNotFound
	}
	w, h := 0, 0
	if sub, err := CreateSubview(p.view, p.c.Header.JPEGOffset); err == nil {
		sub.SetByteOrder(Big)
		if p.c.Header.JPEGLength < sub.Length() {
			sub.length = p.c.Header.JPEGLength
		}
		w, h, _ = jpegDimensionsFromView(sub)
	}
	return []Thumbnail{{
		Width: w, Height: h, Kind: DataKindJPEG,
		Payload: ThumbnailPayload{Offset: p.c.Header.JPEGOffset, Length: p.c.Header.JPEGLength},
	}}, nil
}

// IFD exposes the embedded Exif/TIFF sub-container spec 4.5 prefers, when
// the JPEG preview carries one; there is no native RAF IFD surface
// otherwise.
func (p *rafParser) IFD(kind IFDKind) (*Dir, *IFDContainer, error) {
	if kind != KindMain && kind != KindExif {
		return nil, nil, ErrNotSupported
	}
	inner, err := p.c.EmbeddedExifIFD()
	if err != nil {
		return nil, nil, err
	}
	first, err := inner.FirstOffset()
	if err != nil {
		return nil, nil, err
	}
	dir, err := inner.ReadDir(int64(first), KindMain)
	if err != nil {
		return nil, nil, err
	}
	return dir, inner, nil
}

// LoadRawData prefers the embedded Exif subIFD's raw-strip fields when
// present (spec 4.5), falling back to the metadata table's sensor
// dimensions and the header's CFA blob otherwise.
func (p *rafParser) LoadRawData(skipDecompress bool) (*RawImage, error) {
	cfa, _ := p.c.DetectCFA()

	if inner, err := p.c.EmbeddedExifIFD(); err == nil {
		if first, err := inner.FirstOffset(); err == nil {
			if dir, c, err := locateRawDirTIFF(inner, mustChain(inner, first)); err == nil {
				return GetRawData(c, dir, 0, RawDataOptions{SkipDecompress: skipDecompress, CFA: cfa})
			}
		}
	}

	height, width, ok := p.c.ImageHeightWidth()
	if !ok {
		height, width, ok = p.c.SensorDimension()
	}
	if !ok || p.c.Header.CFALength == 0 {
		return nil, ErrNotFound
	}

	img := &RawImage{Width: width, Height: height, BitsPerSample: 16, CFA: cfa}

	sub, err := CreateSubview(p.view, p.c.Header.CFAOffset)
	if err != nil {
		return nil, err
	}
	sub.SetByteOrder(Big)
	if p.c.Header.CFALength < sub.Length() {
		sub.length = p.c.Header.CFALength
	}

	if skipDecompress {
		img.Kind = DataKindCompressedRaw
		img.Compression = CompressionFujiRAF
		img.Data.Blob8 = append([]byte(nil), sub.ReadBytesVolatile(int(sub.Length()))...)
		return img, nil
	}

	samples, w, h, err := DecodeFujiRAF(sub, cfa)
	if err != nil {
		return nil, err
	}
	img.Kind = DataKindRaw
	img.Data.Data16 = samples
	img.Width, img.Height = w, h
	return img, nil
}

func (p *rafParser) BuiltinColorMatrix() (CameraColorMatrix, bool) {
	id, err := p.IdentifyID()
	if err != nil {
		return CameraColorMatrix{}, false
	}
	return BuiltinColorMatrix(id)
}

// mustChain walks an IFD chain, treating any error on a non-empty result
// as tolerable the same way openTIFFBase does.
func mustChain(c *IFDContainer, first uint32) []*Dir {
	dirs, err := c.Chain(first, KindMain)
	if err != nil && len(dirs) == 0 {
		return nil
	}
	return dirs
}
