// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package rawmeta

import "strings"

// Sony ARW (spec 4.12): a pure-TIFF container. The A100, Sony's first ARW
// body, is a documented exception (spec 4.1): its SubIFDs tag (0x14A)
// points at the raw pixel payload directly rather than at a nested IFD,
// so locateRawDirTIFF's generic SubIFD walk must be skipped for it.
type arwParser struct {
	*tiffParserBase
}

func openARW(view *View) (Parser, error) {
	base, err := openTIFFBase(view, nil, VendorSony, false, false)
	if err != nil {
		return nil, err
	}
	return &arwParser{base}, nil
}

const tagSonyModel = tagModelTIFF

var sonyModelIDs = map[string]uint32{
	"DSLR-A100": 0x0001,
}

func (p *arwParser) isA100() bool {
	if len(p.mainDirs) == 0 {
		return false
	}
	fa := NewFieldAccess(p.c, p.mainDirs[0], 0, nil)
	model, _ := fa.Ascii(tagSonyModel)
	return strings.Contains(model, "DSLR-A100")
}

func (p *arwParser) IdentifyID() (TypeId, error) {
	if len(p.mainDirs) == 0 {
		return TypeId{Vendor: VendorSony}, ErrNotFound
	}
	fa := NewFieldAccess(p.c, p.mainDirs[0], 0, nil)
	model, ok := fa.Ascii(tagSonyModel)
	if !ok {
		return TypeId{Vendor: VendorSony}, ErrNotFound
	}
	for prefix, id := range sonyModelIDs {
		if strings.Contains(model, prefix) {
			return TypeId{Vendor: VendorSony, Model: id}, nil
		}
	}
	return TypeId{Vendor: VendorSony}, ErrNotFound
}

// LoadRawData routes the A100's raw-in-SubIFDs-slot quirk through
// loadA100RawData and defers to the generic TIFF path otherwise.
func (p *arwParser) LoadRawData(skipDecompress bool) (*RawImage, error) {
	var img *RawImage
	var err error
	if p.isA100() {
		img, err = p.loadA100RawData(skipDecompress)
	} else {
		img, err = p.loadRawData(RawDataOptions{SkipDecompress: skipDecompress})
	}
	if err != nil {
		return nil, err
	}
	if ratio, ok := sonyAspectRatioFromCameraSettings2010(p.tiffParserBase); ok {
		img.AspectRatio = ratio
	}
	return img, nil
}

// tagSonyCameraSettings2010 is the Sony MakerNote tag (spec 9 open
// question) whose payload is byte-enciphered through sonyTag0x2010Table;
// ExifTool's tag name is CameraSettings2010.
const tagSonyCameraSettings2010 = 0x2010

// sonyCameraSettings2010AspectRatioOffset is the byte index ExifTool's
// "2010e" dialect reads the framing aspect ratio from within the
// deciphered CameraSettings2010 block (models SLT-A58/A99, ILCE-3000,
// NEX-3N/5R/5T/6, RX100/RX1/RX1R).
const sonyCameraSettings2010AspectRatioOffset = 6444

// sonyAspectRatioFromCameraSettings2010 deciphers MakerNote tag 0x2010 (spec
// 9's i^3 mod 249 permutation) and decodes its framing aspect ratio byte.
// Shared by arwParser and sr2Parser: both embed *tiffParserBase.
func sonyAspectRatioFromCameraSettings2010(p *tiffParserBase) (float64, bool) {
	_, mnDir, mnContainer, err := p.exifAndMakerNote()
	if err != nil || mnDir == nil {
		return 0, false
	}
	fa := NewFieldAccess(mnContainer, mnDir, mnDir.MakerNoteBase, nil)
	raw, ok := fa.Bytes(tagSonyCameraSettings2010)
	if !ok || len(raw) <= sonyCameraSettings2010AspectRatioOffset {
		return 0, false
	}
	deciphered := decipherSonyTag0x2010(raw)
	switch deciphered[sonyCameraSettings2010AspectRatioOffset] {
	case 0:
		return 16.0 / 9.0, true
	case 1:
		return 4.0 / 3.0, true
	case 2:
		return 3.0 / 2.0, true
	case 3:
		return 1.0, true
	default:
		// 5 is panorama, everything else unrecognized; both leave
		// AspectRatio unset like the reference does.
		return 0, false
	}
}

// loadA100RawData reads the A100's raw pixel payload directly from the
// SubIFDs entry's first offset (spec 4.1: "Sony A100 uses this area for
// raw payload" rather than a nested directory), using the main
// directory's own declared dimensions.
func (p *arwParser) loadA100RawData(skipDecompress bool) (*RawImage, error) {
	dir := p.mainDirs[0]
	fa := NewFieldAccess(p.c, dir, 0, nil)
	width, ok := fa.U32(tagImageWidth)
	if !ok {
		return nil, ErrNotFound
	}
	height, ok := fa.U32(tagImageLength)
	if !ok {
		return nil, ErrNotFound
	}

	e, ok := dir.Get(subIFDsTag)
	if !ok {
		return nil, ErrNotFound
	}
	raw, err := p.c.EntryData(e, 0)
	if err != nil || len(raw) < 4 {
		return nil, ErrNotFound
	}
	offset := int64(dir.Endian.order().Uint32(raw))

	img := &RawImage{Width: int(width), Height: int(height), BitsPerSample: 16}

	sub, err := CreateSubview(p.view, offset)
	if err != nil {
		return nil, err
	}
	n := int(width) * int(height)

	if skipDecompress {
		img.Kind = DataKindCompressedRaw
		img.Data.Blob8 = append([]byte(nil), sub.ReadBytesVolatile(n*2)...)
		return img, nil
	}

	rawBytes := sub.ReadBytesVolatile(n * 2)
	order := dir.Endian.order()
	data := make([]uint16, n)
	for i := range data {
		data[i] = order.Uint16(rawBytes[i*2:])
	}
	img.Kind = DataKindRaw
	img.Data.Data16 = data
	return img, nil
}

func (p *arwParser) BuiltinColorMatrix() (CameraColorMatrix, bool) {
	id, err := p.IdentifyID()
	if err != nil {
		return CameraColorMatrix{}, false
	}
	return BuiltinColorMatrix(id)
}
