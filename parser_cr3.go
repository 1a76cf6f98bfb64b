// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

// Canon CR3 (spec 4.3): an ISO-BMFF/MP4 box tree carrying a Canon "CRAW"
// header (inline thumbnail, up to four embedded TIFF metadata blocks, a
// larger preview JPEG) plus a conventional track layout whose second trak
// is the raw sample stream.
type cr3Parser struct {
	view   *View
	c      *MP4Container
	header *CRAWHeader
	tracks []TrackDescriptor
}

func openCR3(view *View) (Parser, error) {
	c, err := ParseMP4Container(view)
	if err != nil {
		return nil, err
	}
	header, err := ParseCRAWHeader(c)
	if err != nil {
		return nil, err
	}
	p := &cr3Parser{view: view, c: c, header: header}
	if moov, ok := c.Root.Find(fccMoov); ok {
		for _, trak := range moov.All(fccTrak) {
			td, err := ParseTrackDescriptor(c, trak)
			if err != nil {
				continue
			}
			p.tracks = append(p.tracks, td)
		}
	}
	return p, nil
}

func (p *cr3Parser) View() *View { return p.view }

// cmtDir returns the first directory of the n'th (1-based) CMT metadata
// block, per ParseCRAWHeader's indexing.
func (p *cr3Parser) cmtDir(n int) (*Dir, *IFDContainer, bool) {
	if n < 1 || n > len(p.header.MetadataBlocks) {
		return nil, nil, false
	}
	c := p.header.MetadataBlocks[n-1]
	first, err := c.FirstOffset()
	if err != nil {
		return nil, nil, false
	}
	dir, err := c.ReadDir(int64(first), KindMain)
	if err != nil {
		return nil, nil, false
	}
	return dir, c, true
}

// IdentifyID reads Canon's MakerNote tag 0x0010 out of the CMT3 block,
// which Canon's firmware already wraps as its own stand-alone TIFF stream
// (unlike CR2/CRW, no MakerNote-offset sniffing is needed: CMT3's entries
// are already relative to their own container).
func (p *cr3Parser) IdentifyID() (TypeId, error) {
	dir, c, ok := p.cmtDir(3)
	if !ok {
		return TypeId{Vendor: VendorCanon}, ErrNotFound
	}
	fa := NewFieldAccess(c, dir, 0, nil)
	modelID, ok := fa.U32(tagCanonModelID)
	if !ok {
		return TypeId{Vendor: VendorCanon}, ErrNotFound
	}
	return TypeId{Vendor: VendorCanon, Model: modelID}, nil
}

func (p *cr3Parser) Thumbnails() ([]Thumbnail, error) {
	var out []Thumbnail
	if p.header.ThumbnailJPEG != nil {
		out = append(out, Thumbnail{
			Width: p.header.ThumbnailW, Height: p.header.ThumbnailH,
			Kind: DataKindJPEG,
			Payload: ThumbnailPayload{IsInline: true, Inline: p.header.ThumbnailJPEG},
		})
	}
	if p.header.PreviewLength > 0 {
		out = append(out, Thumbnail{
			Width: p.header.PreviewW, Height: p.header.PreviewH,
			Kind: DataKindJPEG,
			Payload: ThumbnailPayload{
				Offset: p.header.PreviewOffset, Length: p.header.PreviewLength,
			},
		})
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// IFD maps the engine's directory roles onto the CMT metadata blocks: CMT1
// is the main/Exif-equivalent TIFF, CMT2 the Exif block proper, CMT3 the
// MakerNote. There is no raw-strip IFD: the sensor payload lives in a
// track sample, not a TIFF strip (see LoadRawData).
func (p *cr3Parser) IFD(kind IFDKind) (*Dir, *IFDContainer, error) {
	var n int
	switch kind {
	case KindMain:
		n = 1
	case KindExif:
		n = 2
	case KindMakerNote:
		n = 3
	default:
		return nil, nil, ErrNotSupported
	}
	dir, c, ok := p.cmtDir(n)
	if !ok {
		return nil, nil, ErrNotFound
	}
	return dir, c, nil
}

// rawTrack returns track 2 (spec 4.3: "Track 2 is conventionally the CRAW
// raw stream"), or ErrNotFound if it's a still-JPEG preview track instead
// of raw sensor data.
func (p *cr3Parser) rawTrack() (TrackDescriptor, error) {
	if len(p.tracks) < 2 {
		return TrackDescriptor{}, ErrNotFound
	}
	td := p.tracks[1]
	if td.IsJPEG {
		return TrackDescriptor{}, ErrNotFound
	}
	return td, nil
}

// LoadRawData returns the CRAW-compressed sample as an opaque
// CompressedRaw blob: this engine has no CRX decoder, so skipDecompress
// is effectively always true for CR3.
func (p *cr3Parser) LoadRawData(skipDecompress bool) (*RawImage, error) {
	td, err := p.rawTrack()
	if err != nil {
		return nil, err
	}
	sub, err := CreateSubview(p.view, td.Offset)
	if err != nil {
		return nil, err
	}
	if td.Length > 0 && td.Length < sub.Length() {
		sub.length = td.Length
	}
	data := append([]byte(nil), sub.ReadBytesVolatile(int(sub.Length()))...)
	return &RawImage{
		Width: td.Width, Height: td.Height,
		Kind:        DataKindCompressedRaw,
		Compression: CompressionCanonCRX,
		Data:        PixelData{Blob8: data},
	}, nil
}

func (p *cr3Parser) BuiltinColorMatrix() (CameraColorMatrix, bool) {
	id, err := p.IdentifyID()
	if err != nil {
		return CameraColorMatrix{}, false
	}
	return BuiltinColorMatrix(id)
}
