// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

// Minolta MRW (spec 4.11): a block-stream container, not TIFF-shaped at
// top level, though its TTW block wraps a conventional TIFF/IFD container
// that carries the file's Exif-equivalent metadata.
type mrwParser struct {
	view *View
	c    *MRWContainer
}

func openMRW(view *View) (Parser, error) {
	c, err := LoadMRWContainer(view, Big)
	if err != nil {
		return nil, err
	}
	return &mrwParser{view: view, c: c}, nil
}

func (p *mrwParser) View() *View { return p.view }

// minoltaModelIDs mirrors nikonModelIDs/fujifilmModelIDs: MRW's TTW block
// carries a standard TIFF Model string but no vendor-private numeric ID,
// so built-in calibration lookups key off a parser-assigned slot instead.
var minoltaModelIDs = map[string]uint32{
	"DiMAGE A2": 0x0001,
}

func (p *mrwParser) IdentifyID() (TypeId, error) {
	ifd, err := p.c.IFD()
	if err != nil {
		return TypeId{Vendor: VendorMinolta}, err
	}
	first, err := ifd.FirstOffset()
	if err != nil {
		return TypeId{Vendor: VendorMinolta}, err
	}
	dir, err := ifd.ReadDir(int64(first), KindMain)
	if err != nil {
		return TypeId{Vendor: VendorMinolta}, err
	}
	fa := NewFieldAccess(ifd, dir, 0, nil)
	model, ok := fa.Ascii(tagModelTIFF)
	if !ok {
		return TypeId{Vendor: VendorMinolta}, ErrNotFound
	}
	if id, ok := minoltaModelIDs[model]; ok {
		return TypeId{Vendor: VendorMinolta, Model: id}, nil
	}
	return TypeId{Vendor: VendorMinolta}, ErrNotFound
}

// Thumbnails delegates to the TTW block's wrapped TIFF directory chain,
// the only place MRW carries a preview image.
func (p *mrwParser) Thumbnails() ([]Thumbnail, error) {
	ifd, err := p.c.IFD()
	if err != nil {
		return nil, err
	}
	first, err := ifd.FirstOffset()
	if err != nil {
		return nil, err
	}
	dirs := mustChain(ifd, first)
	var out []Thumbnail
	for _, d := range dirs {
		if th, ok := ThumbnailFromDir(ifd, d, 0); ok {
			out = append(out, th)
		}
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (p *mrwParser) IFD(kind IFDKind) (*Dir, *IFDContainer, error) {
	if kind != KindMain {
		return nil, nil, ErrNotSupported
	}
	ifd, err := p.c.IFD()
	if err != nil {
		return nil, nil, err
	}
	first, err := ifd.FirstOffset()
	if err != nil {
		return nil, nil, err
	}
	dir, err := ifd.ReadDir(int64(first), KindMain)
	if err != nil {
		return nil, nil, err
	}
	return dir, ifd, nil
}

// LoadRawData reads the PRD block's geometry and storage mode (spec 8
// scenario 6: storage-type 0x59 + pixel-size 12 means W*H + W*H/2 packed
// bytes) and unpacks or returns the opaque blob per skipDecompress.
func (p *mrwParser) LoadRawData(skipDecompress bool) (*RawImage, error) {
	info, err := p.c.PRDInfo()
	if err != nil {
		return nil, err
	}

	img := &RawImage{
		Width: info.Width, Height: info.Height,
		BitsPerSample: info.BitsPerSample, CFA: info.CFA,
	}

	// The pixel data immediately follows the MRM block stream; MRM.Length
	// is the absolute offset LoadMRWContainer itself stops scanning
	// sibling blocks at.
	sub, err := CreateSubview(p.view, p.c.MRM.Length)
	if err != nil {
		return nil, err
	}

	if skipDecompress {
		img.Kind = DataKindCompressedRaw
		if info.IsPacked {
			img.Compression = CompressionCustom
		}
		img.Data.Blob8 = append([]byte(nil), sub.ReadBytesVolatile(int(sub.Length()))...)
		return img, nil
	}

	if !info.IsPacked {
		n := info.Width * info.Height
		raw := sub.ReadBytesVolatile(n * 2)
		order := sub.ByteOrder().order()
		data := make([]uint16, n)
		for i := range data {
			data[i] = order.Uint16(raw[i*2:])
		}
		img.Kind = DataKindRaw
		img.Data.Data16 = data
		return img, nil
	}

	n := info.Width*info.Height + info.Width*info.Height/2
	samples, err := UnpackMinoltaPacked(sub.ReadBytesVolatile(n), info.Width, info.Height)
	if err != nil {
		return nil, err
	}
	img.Kind = DataKindRaw
	img.Data.Data16 = samples
	return img, nil
}

func (p *mrwParser) BuiltinColorMatrix() (CameraColorMatrix, bool) {
	id, err := p.IdentifyID()
	if err != nil {
		return CameraColorMatrix{}, false
	}
	return BuiltinColorMatrix(id)
}
